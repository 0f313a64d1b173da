package event

import (
	"github.com/3leaps/batchlog/pkg/jobid"
)

// UnfulfillLog records requests the master has not yet fulfilled for a job.
type UnfulfillLog struct {
	JobID            int32 `json:"job_id"`
	NotSwitched      int32 `json:"not_switched"`
	Sig              int32 `json:"sig"`
	Sig1             int32 `json:"sig1"`
	Sig1Flags        int32 `json:"sig1_flags"`
	ChkPeriod        int64 `json:"chk_period"`
	NotModified      int32 `json:"not_modified"`
	Idx              int32 `json:"idx"`
	MiscOpts4PendSig int32 `json:"misc_opts4_pend_sig"`
}

func (p *UnfulfillLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *UnfulfillLog) walk(w walker) {
	w.i32("jobId", &p.JobID)
	w.i32("notSwitched", &p.NotSwitched)
	w.i32("sig", &p.Sig)
	w.i32("sig1", &p.Sig1)
	w.i32("sig1Flags", &p.Sig1Flags)
	w.i64("chkPeriod", &p.ChkPeriod)
	w.i32("notModified", &p.NotModified)
	w.i32("idx", &p.Idx)
	if w.since(V60) {
		w.i32("miscOpts4PendSig", &p.MiscOpts4PendSig)
	}
}

// ChkpntLog records a checkpoint.
type ChkpntLog struct {
	JobID  int32 `json:"job_id"`
	Period int64 `json:"period"`
	Pid    int32 `json:"pid"`
	OK     int32 `json:"ok"`
	Flags  int32 `json:"flags"`
	Idx    int32 `json:"idx"`
}

func (p *ChkpntLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *ChkpntLog) walk(w walker) {
	w.i32("jobId", &p.JobID)
	w.i64("period", &p.Period)
	w.i32("pid", &p.Pid)
	w.i32("ok", &p.OK)
	w.i32("flags", &p.Flags)
	w.i32("idx", &p.Idx)
}

// SignalLog records a signal sent to a job.
type SignalLog struct {
	JobID        int32  `json:"job_id"`
	UserID       int32  `json:"user_id"`
	RunCount     int32  `json:"run_count"`
	SignalSymbol string `json:"signal_symbol"`
	Idx          int32  `json:"idx"`
	UserName     string `json:"user_name"`
}

func (p *SignalLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *SignalLog) walk(w walker) {
	w.i32("jobId", &p.JobID)
	w.i32("userId", &p.UserID)
	w.i32("runCount", &p.RunCount)
	w.str("signalSymbol", &p.SignalSymbol)
	w.i32("idx", &p.Idx)
	w.str("userName", &p.UserName)
}

// SigactLog records the progress of a signal action on the execution host.
type SigactLog struct {
	JobID        int32  `json:"job_id"`
	Period       int64  `json:"period"`
	Pid          int32  `json:"pid"`
	Status       int32  `json:"status"`
	Reasons      int32  `json:"reasons"`
	Flags        int32  `json:"flags"`
	SignalSymbol string `json:"signal_symbol"`
	ActStatus    int32  `json:"act_status"`
	Idx          int32  `json:"idx"`
}

func (p *SigactLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *SigactLog) walk(w walker) {
	w.i32("jobId", &p.JobID)
	w.i64("period", &p.Period)
	w.i32("pid", &p.Pid)
	w.i32("jStatus", &p.Status)
	w.i32("reasons", &p.Reasons)
	w.i32("flags", &p.Flags)
	w.str("signalSymbol", &p.SignalSymbol)
	w.i32("actStatus", &p.ActStatus)
	w.i32("idx", &p.Idx)
}

// JobForwardLog records a job forwarded to a remote cluster.
type JobForwardLog struct {
	JobID      int32    `json:"job_id"`
	Cluster    string   `json:"cluster"`
	ReserHosts []string `json:"reser_hosts,omitempty"`
	Idx        int32    `json:"idx"`
	JFlags     int32    `json:"jflags"`
}

func (p *JobForwardLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *JobForwardLog) walk(w walker) {
	w.i32("jobId", &p.JobID)
	w.str("cluster", &p.Cluster)
	w.strs("reserHosts", &p.ReserHosts)
	w.i32("idx", &p.Idx)
	w.i32("jFlags", &p.JFlags)
}

// JobAcceptLog records a job accepted from a remote cluster.
type JobAcceptLog struct {
	JobID     int32  `json:"job_id"`
	RemoteJid int64  `json:"remote_jid"`
	Cluster   string `json:"cluster"`
	Idx       int32  `json:"idx"`
	JFlags    int32  `json:"jflags"`
}

func (p *JobAcceptLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *JobAcceptLog) walk(w walker) {
	w.i32("jobId", &p.JobID)
	w.i64("remoteJid", &p.RemoteJid)
	w.str("cluster", &p.Cluster)
	w.i32("idx", &p.Idx)
	w.i32("jFlags", &p.JFlags)
}

// StatusAckLog acknowledges a status report.
type StatusAckLog struct {
	JobID     int32 `json:"job_id"`
	StatusNum int32 `json:"status_num"`
	Idx       int32 `json:"idx"`
}

func (p *StatusAckLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *StatusAckLog) walk(w walker) {
	w.i32("jobId", &p.JobID)
	w.i32("statusNum", &p.StatusNum)
	w.i32("idx", &p.Idx)
}

// JobMsgLog records a message sent to a job, or its acknowledgement.
type JobMsgLog struct {
	UsrID int32  `json:"usr_id"`
	JobID int32  `json:"job_id"`
	MsgID int32  `json:"msg_id"`
	Type  int32  `json:"type"`
	Src   string `json:"src"`
	Dest  string `json:"dest"`
	Msg   string `json:"msg"`
	Idx   int32  `json:"idx"`
}

func (p *JobMsgLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *JobMsgLog) walk(w walker) {
	w.i32("usrId", &p.UsrID)
	w.i32("jobId", &p.JobID)
	w.i32("msgId", &p.MsgID)
	w.i32("type", &p.Type)
	w.str("src", &p.Src)
	w.str("dest", &p.Dest)
	w.str("msg", &p.Msg)
	w.i32("idx", &p.Idx)
}

// JobExceptionLog records a job exception such as overrun or underrun.
type JobExceptionLog struct {
	JobID      int32 `json:"job_id"`
	ExceptMask int32 `json:"except_mask"`
	ActMask    int32 `json:"act_mask"`
	TimeEvent  int64 `json:"time_event"`
	ExceptInfo int32 `json:"except_info"`
	Idx        int32 `json:"idx"`
}

func (p *JobExceptionLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *JobExceptionLog) walk(w walker) {
	w.i32("jobId", &p.JobID)
	w.i32("exceptMask", &p.ExceptMask)
	w.i32("actMask", &p.ActMask)
	w.i64("timeEvent", &p.TimeEvent)
	w.i32("exceptInfo", &p.ExceptInfo)
	w.i32("idx", &p.Idx)
}

// JobForceLog records a forced dispatch.
type JobForceLog struct {
	UserID    int32    `json:"user_id"`
	ExecHosts []string `json:"exec_hosts,omitempty"`
	JobID     int32    `json:"job_id"`
	Idx       int32    `json:"idx"`
	Options   int32    `json:"options"`
	UserName  string   `json:"user_name"`
	Queue     string   `json:"queue,omitempty"`
}

func (p *JobForceLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *JobForceLog) walk(w walker) {
	w.i32("userId", &p.UserID)
	w.strs("execHosts", &p.ExecHosts)
	w.i32("jobId", &p.JobID)
	w.i32("idx", &p.Idx)
	w.i32("options", &p.Options)
	w.str("userName", &p.UserName)
	if w.since(V70) {
		w.str("queue", &p.Queue)
	}
}

// JobAttrSetLog records attributes reported by an interactive job.
type JobAttrSetLog struct {
	JobID    int32  `json:"job_id"`
	Idx      int32  `json:"idx"`
	UID      int32  `json:"uid"`
	Port     int32  `json:"port"`
	Hostname string `json:"hostname"`
}

func (p *JobAttrSetLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *JobAttrSetLog) walk(w walker) {
	w.i32("jobId", &p.JobID)
	w.i32("idx", &p.Idx)
	w.i32("uid", &p.UID)
	w.i32("port", &p.Port)
	w.str("hostname", &p.Hostname)
}

// JobExtMsgLog records an external message posted to a job.
type JobExtMsgLog struct {
	JobID      int32  `json:"job_id"`
	Idx        int32  `json:"idx"`
	MsgIdx     int32  `json:"msg_idx"`
	Desc       string `json:"desc"`
	UserID     int32  `json:"user_id"`
	DataSize   int64  `json:"data_size"`
	PostTime   int64  `json:"post_time"`
	DataStatus int32  `json:"data_status"`
	FileName   string `json:"file_name"`
	UserName   string `json:"user_name"`
}

func (p *JobExtMsgLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *JobExtMsgLog) walk(w walker) {
	w.i32("jobId", &p.JobID)
	w.i32("idx", &p.Idx)
	w.i32("msgIdx", &p.MsgIdx)
	w.str("desc", &p.Desc)
	w.i32("userId", &p.UserID)
	w.i64("dataSize", &p.DataSize)
	w.i64("postTime", &p.PostTime)
	w.i32("dataStatus", &p.DataStatus)
	w.str("fileName", &p.FileName)
	w.str("userName", &p.UserName)
}

// JobAttaDataLog records data attached to an external message.
type JobAttaDataLog struct {
	JobID      int32  `json:"job_id"`
	Idx        int32  `json:"idx"`
	MsgIdx     int32  `json:"msg_idx"`
	DataSize   int64  `json:"data_size"`
	DataStatus int32  `json:"data_status"`
	UserID     int32  `json:"user_id"`
	FileName   string `json:"file_name"`
	UserName   string `json:"user_name"`
}

func (p *JobAttaDataLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *JobAttaDataLog) walk(w walker) {
	w.i32("jobId", &p.JobID)
	w.i32("idx", &p.Idx)
	w.i32("msgIdx", &p.MsgIdx)
	w.i64("dataSize", &p.DataSize)
	w.i32("dataStatus", &p.DataStatus)
	w.i32("userId", &p.UserID)
	w.str("fileName", &p.FileName)
	w.str("userName", &p.UserName)
}

// JobChunkLog groups jobs dispatched together. Members are packed ids, so the
// record references several jobs and is not job scoped.
type JobChunkLog struct {
	MembJobIDs []int64  `json:"memb_job_ids,omitempty"`
	ExecHosts  []string `json:"exec_hosts,omitempty"`
}

// Members unpacks MembJobIDs.
func (p *JobChunkLog) Members() []jobid.ID {
	out := make([]jobid.ID, 0, len(p.MembJobIDs))
	for _, packed := range p.MembJobIDs {
		out = append(out, jobid.FromPacked(packed))
	}
	return out
}

func (p *JobChunkLog) walk(w walker) {
	w.i64s("membJobId", &p.MembJobIDs)
	w.strs("execHosts", &p.ExecHosts)
}

// ResizeNotifyStartLog records the start of a resize notification.
type ResizeNotifyStartLog struct {
	JobID       int32    `json:"job_id"`
	Idx         int32    `json:"idx"`
	NotifyID    int32    `json:"notify_id"`
	ResizeHosts []string `json:"resize_hosts,omitempty"`
}

func (p *ResizeNotifyStartLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *ResizeNotifyStartLog) walk(w walker) {
	w.i32("jobId", &p.JobID)
	w.i32("idx", &p.Idx)
	w.i32("notifyId", &p.NotifyID)
	w.strs("resizeHosts", &p.ResizeHosts)
}

// ResizeNotifyAcceptLog records that the execution agent started the resize
// notification command.
type ResizeNotifyAcceptLog struct {
	JobID               int32 `json:"job_id"`
	Idx                 int32 `json:"idx"`
	NotifyID            int32 `json:"notify_id"`
	ResizeNotifyCmdPid  int32 `json:"resize_notify_cmd_pid"`
	ResizeNotifyCmdPGid int32 `json:"resize_notify_cmd_pgid"`
	Status              int32 `json:"status"`
}

func (p *ResizeNotifyAcceptLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *ResizeNotifyAcceptLog) walk(w walker) {
	w.i32("jobId", &p.JobID)
	w.i32("idx", &p.Idx)
	w.i32("notifyId", &p.NotifyID)
	w.i32("resizeNotifyCmdPid", &p.ResizeNotifyCmdPid)
	w.i32("resizeNotifyCmdPGid", &p.ResizeNotifyCmdPGid)
	w.i32("status", &p.Status)
}

// ResizeNotifyDoneLog records completion of a resize notification.
type ResizeNotifyDoneLog struct {
	JobID    int32 `json:"job_id"`
	Idx      int32 `json:"idx"`
	NotifyID int32 `json:"notify_id"`
	Status   int32 `json:"status"`
}

func (p *ResizeNotifyDoneLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *ResizeNotifyDoneLog) walk(w walker) {
	w.i32("jobId", &p.JobID)
	w.i32("idx", &p.Idx)
	w.i32("notifyId", &p.NotifyID)
	w.i32("status", &p.Status)
}

// ResizeReleaseLog records hosts released from a running job.
type ResizeReleaseLog struct {
	JobID           int32    `json:"job_id"`
	Idx             int32    `json:"idx"`
	ReqID           int32    `json:"req_id"`
	Options         int32    `json:"options"`
	UserID          int32    `json:"user_id"`
	UserName        string   `json:"user_name"`
	ResizeNotifyCmd string   `json:"resize_notify_cmd"`
	ResizeHosts     []string `json:"resize_hosts,omitempty"`
}

func (p *ResizeReleaseLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *ResizeReleaseLog) walk(w walker) {
	w.i32("jobId", &p.JobID)
	w.i32("idx", &p.Idx)
	w.i32("reqId", &p.ReqID)
	w.i32("options", &p.Options)
	w.i32("userId", &p.UserID)
	w.str("userName", &p.UserName)
	w.str("resizeNotifyCmd", &p.ResizeNotifyCmd)
	w.strs("resizeHosts", &p.ResizeHosts)
}

// ResizeCancelLog records a cancelled resize request.
type ResizeCancelLog struct {
	JobID    int32  `json:"job_id"`
	Idx      int32  `json:"idx"`
	UserID   int32  `json:"user_id"`
	UserName string `json:"user_name"`
}

func (p *ResizeCancelLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *ResizeCancelLog) walk(w walker) {
	w.i32("jobId", &p.JobID)
	w.i32("idx", &p.Idx)
	w.i32("userId", &p.UserID)
	w.str("userName", &p.UserName)
}

// Resize types.
const (
	ResizeGrow   int32 = 1
	ResizeShrink int32 = 2
)

// JobResizeLog records a completed allocation change of a running job.
type JobResizeLog struct {
	JobID                int32    `json:"job_id"`
	Idx                  int32    `json:"idx"`
	StartTime            int64    `json:"start_time"`
	UserID               int32    `json:"user_id"`
	UserName             string   `json:"user_name"`
	ResizeType           int32    `json:"resize_type"`
	LastResizeStartTime  int64    `json:"last_resize_start_time"`
	LastResizeFinishTime int64    `json:"last_resize_finish_time"`
	ExecHosts            []string `json:"exec_hosts,omitempty"`
	ResizeHosts          []string `json:"resize_hosts,omitempty"`
}

func (p *JobResizeLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *JobResizeLog) walk(w walker) {
	w.i32("jobId", &p.JobID)
	w.i32("idx", &p.Idx)
	w.i64("startTime", &p.StartTime)
	w.i32("userId", &p.UserID)
	w.str("userName", &p.UserName)
	w.i32("resizeType", &p.ResizeType)
	w.i64("lastResizeStartTime", &p.LastResizeStartTime)
	w.i64("lastResizeFinishTime", &p.LastResizeFinishTime)
	w.strs("execHosts", &p.ExecHosts)
	w.strs("resizeHosts", &p.ResizeHosts)
}
