package event

// Queue control operations.
const (
	QueueOpen       int32 = 1
	QueueClosed     int32 = 2
	QueueActivate   int32 = 3
	QueueInactivate int32 = 4
	QueueClean      int32 = 5
)

// Host control operations.
const (
	HostOpen     int32 = 1
	HostClose    int32 = 2
	HostReboot   int32 = 3
	HostShutdown int32 = 4
)

// QueueCtrlLog records an administrative queue operation.
type QueueCtrlLog struct {
	OpCode   int32  `json:"op_code"`
	Queue    string `json:"queue"`
	UserID   int32  `json:"user_id"`
	UserName string `json:"user_name"`
	Message  string `json:"message,omitempty"`
}

func (p *QueueCtrlLog) walk(w walker) {
	w.i32("opCode", &p.OpCode)
	w.str("queue", &p.Queue)
	w.i32("userId", &p.UserID)
	w.str("userName", &p.UserName)
	if w.since(V70) {
		w.str("message", &p.Message)
	}
}

// HostCtrlLog records an administrative host operation.
type HostCtrlLog struct {
	OpCode   int32  `json:"op_code"`
	Host     string `json:"host"`
	UserID   int32  `json:"user_id"`
	UserName string `json:"user_name"`
	Message  string `json:"message,omitempty"`
}

func (p *HostCtrlLog) walk(w walker) {
	w.i32("opCode", &p.OpCode)
	w.str("host", &p.Host)
	w.i32("userId", &p.UserID)
	w.str("userName", &p.UserName)
	if w.since(V70) {
		w.str("message", &p.Message)
	}
}

// HgCtrlLog records an operation applied to a host group.
type HgCtrlLog struct {
	OpCode    int32  `json:"op_code"`
	Host      string `json:"host"`
	GroupName string `json:"group_name"`
	UserID    int32  `json:"user_id"`
	UserName  string `json:"user_name"`
	Message   string `json:"message,omitempty"`
}

func (p *HgCtrlLog) walk(w walker) {
	w.i32("opCode", &p.OpCode)
	w.str("host", &p.Host)
	w.str("grpName", &p.GroupName)
	w.i32("userId", &p.UserID)
	w.str("userName", &p.UserName)
	if w.since(V70) {
		w.str("message", &p.Message)
	}
}

// MbdStartLog records a master daemon start.
type MbdStartLog struct {
	Master    string `json:"master"`
	Cluster   string `json:"cluster"`
	NumHosts  int32  `json:"num_hosts"`
	NumQueues int32  `json:"num_queues"`
}

func (p *MbdStartLog) walk(w walker) {
	w.str("master", &p.Master)
	w.str("cluster", &p.Cluster)
	w.i32("numHosts", &p.NumHosts)
	w.i32("numQueues", &p.NumQueues)
}

// MbdDieLog records a master daemon shutdown.
type MbdDieLog struct {
	Master        string `json:"master"`
	NumRemoveJobs int32  `json:"num_remove_jobs"`
	ExitCode      int32  `json:"exit_code"`
	Message       string `json:"message,omitempty"`
}

func (p *MbdDieLog) walk(w walker) {
	w.str("master", &p.Master)
	w.i32("numRemoveJobs", &p.NumRemoveJobs)
	w.i32("exitCode", &p.ExitCode)
	if w.since(V70) {
		w.str("message", &p.Message)
	}
}

// LoadIndexLog lists the load index names configured at the time of writing.
type LoadIndexLog struct {
	Names []string `json:"names,omitempty"`
}

func (p *LoadIndexLog) walk(w walker) {
	w.strs("name", &p.Names)
}

// LogSwitchLog opens a new log segment and carries the last job id issued.
type LogSwitchLog struct {
	LastJobID int32 `json:"last_job_id"`
}

func (p *LogSwitchLog) walk(w walker) {
	w.i32("lastJobId", &p.LastJobID)
}

// EOSLog marks the end of a closed segment.
type EOSLog struct {
	EOS int32 `json:"eos"`
}

func (p *EOSLog) walk(w walker) {
	w.i32("eos", &p.EOS)
}

// JgrpLog records a job group being added or modified.
type JgrpLog struct {
	UserID      int32  `json:"user_id"`
	SubmitTime  int64  `json:"submit_time"`
	UserName    string `json:"user_name"`
	DepCond     string `json:"dep_cond"`
	TimeEvent   string `json:"time_event"`
	GroupSpec   string `json:"group_spec"`
	DestSpec    string `json:"dest_spec"`
	DelOptions  int32  `json:"del_options"`
	DelOptions2 int32  `json:"del_options2"`
	SLA         string `json:"sla"`
	MaxJLimit   int32  `json:"max_jlimit"`
}

func (p *JgrpLog) walk(w walker) {
	w.i32("userId", &p.UserID)
	w.i64("submitTime", &p.SubmitTime)
	w.str("userName", &p.UserName)
	w.str("depCond", &p.DepCond)
	w.str("timeEvent", &p.TimeEvent)
	w.str("groupSpec", &p.GroupSpec)
	w.str("destSpec", &p.DestSpec)
	w.i32("delOptions", &p.DelOptions)
	w.i32("delOptions2", &p.DelOptions2)
	if !w.since(V60) {
		return
	}
	w.str("sla", &p.SLA)
	if w.since(V70) {
		w.i32("maxJLimit", &p.MaxJLimit)
	}
}

// JgrpCtrlLog records a control operation on a job group.
type JgrpCtrlLog struct {
	UserID    int32  `json:"user_id"`
	UserName  string `json:"user_name"`
	GroupSpec string `json:"group_spec"`
	CtrlOp    int32  `json:"ctrl_op"`
	Message   string `json:"message,omitempty"`
}

func (p *JgrpCtrlLog) walk(w walker) {
	w.i32("userId", &p.UserID)
	w.str("userName", &p.UserName)
	w.str("groupSpec", &p.GroupSpec)
	w.i32("ctrlOp", &p.CtrlOp)
	if w.since(V70) {
		w.str("message", &p.Message)
	}
}

// JgrpStatusLog records a job group status change.
type JgrpStatusLog struct {
	GroupSpec string `json:"group_spec"`
	Status    int32  `json:"status"`
	OldStatus int32  `json:"old_status"`
}

func (p *JgrpStatusLog) walk(w walker) {
	w.str("groupSpec", &p.GroupSpec)
	w.i32("status", &p.Status)
	w.i32("oldStatus", &p.OldStatus)
}

// RsvFinishLog records the end of an advance reservation.
type RsvFinishLog struct {
	RsvReqTime int64    `json:"rsv_req_time"`
	RsvID      string   `json:"rsv_id"`
	UID        int32    `json:"uid"`
	UserName   string   `json:"user_name"`
	Hosts      []string `json:"hosts,omitempty"`
	Name       string   `json:"name,omitempty"`
}

func (p *RsvFinishLog) walk(w walker) {
	w.i64("rsvReqTime", &p.RsvReqTime)
	w.str("rsvId", &p.RsvID)
	w.i32("uid", &p.UID)
	w.str("userName", &p.UserName)
	w.strs("alloc", &p.Hosts)
	if w.since(V70) {
		w.str("name", &p.Name)
	}
}

// SLALog records a service class recompute.
type SLALog struct {
	Name     string `json:"name"`
	Consumer string `json:"consumer"`
	GoalType int32  `json:"goal_type"`
	State    int32  `json:"state"`
	Optimum  int32  `json:"optimum"`
}

func (p *SLALog) walk(w walker) {
	w.str("name", &p.Name)
	w.str("consumer", &p.Consumer)
	w.i32("goaltype", &p.GoalType)
	w.i32("state", &p.State)
	w.i32("optimum", &p.Optimum)
}

// Legacy holds the raw field tokens of an obsolete event type so it can be
// passed through unchanged.
type Legacy struct {
	Tokens []string `json:"tokens,omitempty"`
}

func (p *Legacy) walk(w walker) {
	w.rest(&p.Tokens)
}
