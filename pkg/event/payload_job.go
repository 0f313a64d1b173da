package event

import (
	"github.com/3leaps/batchlog/pkg/jobid"
	"github.com/3leaps/batchlog/pkg/reason"
)

// JobNewLog records a job submission.
type JobNewLog struct {
	JobID            int32    `json:"job_id"`
	UserID           int32    `json:"user_id"`
	Options          int32    `json:"options"`
	Options2         int32    `json:"options2"`
	NumProcessors    int32    `json:"num_processors"`
	SubmitTime       int64    `json:"submit_time"`
	BeginTime        int64    `json:"begin_time"`
	TermTime         int64    `json:"term_time"`
	SigValue         int32    `json:"sig_value"`
	ChkpntPeriod     int32    `json:"chkpnt_period"`
	RestartPid       int32    `json:"restart_pid"`
	RLimits          []int32  `json:"rlimits,omitempty"`
	HostSpec         string   `json:"host_spec"`
	HostFactor       float64  `json:"host_factor"`
	Umask            int32    `json:"umask"`
	Queue            string   `json:"queue"`
	ResReq           string   `json:"res_req"`
	FromHost         string   `json:"from_host"`
	Cwd              string   `json:"cwd"`
	ChkpntDir        string   `json:"chkpnt_dir"`
	InFile           string   `json:"in_file"`
	OutFile          string   `json:"out_file"`
	ErrFile          string   `json:"err_file"`
	JobFile          string   `json:"job_file"`
	AskedHosts       []string `json:"asked_hosts,omitempty"`
	DependCond       string   `json:"depend_cond"`
	JobName          string   `json:"job_name"`
	Command          string   `json:"command"`
	PreExecCmd       string   `json:"pre_exec_cmd"`
	MailUser         string   `json:"mail_user"`
	ProjectName      string   `json:"project_name"`
	NiosPort         int32    `json:"nios_port"`
	MaxNumProcessors int32    `json:"max_num_processors"`
	LoginShell       string   `json:"login_shell"`
	SchedHostType    string   `json:"sched_host_type"`
	UserName         string   `json:"user_name"`
	Idx              int32    `json:"idx"`
	UserPriority     int32    `json:"user_priority"`

	// 6.0
	JobGroup          string `json:"job_group"`
	SLA               string `json:"sla"`
	Extsched          string `json:"extsched"`
	WarningAction     string `json:"warning_action"`
	WarningTimePeriod int32  `json:"warning_time_period"`
	// 6.2
	LicenseProject string `json:"license_project"`
	Options3       int32  `json:"options3"`
	// 7.0
	App               string `json:"app"`
	PostExecCmd       string `json:"post_exec_cmd"`
	RuntimeEstimation int32  `json:"runtime_estimation"`
	// 7.02
	RequeueEValues string `json:"requeue_evalues"`
	JobDescription string `json:"job_description"`
	// 7.04
	InitChkpntPeriod int32 `json:"init_chkpnt_period"`
	MigThreshold     int32 `json:"mig_threshold"`
	// 7.06
	NotifyCmd string `json:"notify_cmd"`
	UserGroup string `json:"user_group"`
}

func (p *JobNewLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *JobNewLog) walk(w walker) {
	w.i32("jobId", &p.JobID)
	w.i32("userId", &p.UserID)
	w.i32("options", &p.Options)
	w.i32("options2", &p.Options2)
	w.i32("numProcessors", &p.NumProcessors)
	w.i64("submitTime", &p.SubmitTime)
	w.i64("beginTime", &p.BeginTime)
	w.i64("termTime", &p.TermTime)
	w.i32("sigValue", &p.SigValue)
	w.i32("chkpntPeriod", &p.ChkpntPeriod)
	w.i32("restartPid", &p.RestartPid)
	w.i32s("rLimits", &p.RLimits)
	w.str("hostSpec", &p.HostSpec)
	w.f64("hostFactor", &p.HostFactor)
	w.i32("umask", &p.Umask)
	w.str("queue", &p.Queue)
	w.str("resReq", &p.ResReq)
	w.str("fromHost", &p.FromHost)
	w.str("cwd", &p.Cwd)
	w.str("chkpntDir", &p.ChkpntDir)
	w.str("inFile", &p.InFile)
	w.str("outFile", &p.OutFile)
	w.str("errFile", &p.ErrFile)
	w.str("jobFile", &p.JobFile)
	w.strs("askedHosts", &p.AskedHosts)
	w.str("dependCond", &p.DependCond)
	w.str("jobName", &p.JobName)
	w.str("command", &p.Command)
	w.str("preExecCmd", &p.PreExecCmd)
	w.str("mailUser", &p.MailUser)
	w.str("projectName", &p.ProjectName)
	w.i32("niosPort", &p.NiosPort)
	w.i32("maxNumProcessors", &p.MaxNumProcessors)
	w.str("loginShell", &p.LoginShell)
	w.str("schedHostType", &p.SchedHostType)
	w.str("userName", &p.UserName)
	w.i32("idx", &p.Idx)
	w.i32("userPriority", &p.UserPriority)
	if !w.since(V60) {
		return
	}
	w.str("jobGroup", &p.JobGroup)
	w.str("sla", &p.SLA)
	w.str("extsched", &p.Extsched)
	w.str("warningAction", &p.WarningAction)
	w.i32("warningTimePeriod", &p.WarningTimePeriod)
	if !w.since(V62) {
		return
	}
	w.str("licenseProject", &p.LicenseProject)
	w.i32("options3", &p.Options3)
	if !w.since(V70) {
		return
	}
	w.str("app", &p.App)
	w.str("postExecCmd", &p.PostExecCmd)
	w.i32("runtimeEstimation", &p.RuntimeEstimation)
	if !w.since(V702) {
		return
	}
	w.str("requeueEValues", &p.RequeueEValues)
	w.str("jobDescription", &p.JobDescription)
	if !w.since(V704) {
		return
	}
	w.i32("initChkpntPeriod", &p.InitChkpntPeriod)
	w.i32("migThreshold", &p.MigThreshold)
	if !w.since(V706) {
		return
	}
	w.str("notifyCmd", &p.NotifyCmd)
	w.str("userGroup", &p.UserGroup)
}

// JobStartLog records a dispatch. It is also the layout of PRE_EXEC_START.
type JobStartLog struct {
	JobID        int32       `json:"job_id"`
	Status       Status      `json:"status"`
	StatusFlags  StatusFlags `json:"status_flags"`
	JobPid       int32       `json:"job_pid"`
	JobPGid      int32       `json:"job_pgid"`
	HostFactor   float64     `json:"host_factor"`
	ExecHosts    []string    `json:"exec_hosts,omitempty"`
	QueuePreCmd  string      `json:"queue_pre_cmd"`
	QueuePostCmd string      `json:"queue_post_cmd"`
	JFlags       int32       `json:"jflags"`
	UserGroup    string      `json:"user_group"`
	Idx          int32       `json:"idx"`

	// 6.0
	AdditionalInfo string `json:"additional_info"`
	// 7.0
	PreemptBackfill int32 `json:"preempt_backfill"`
	// 7.02
	JFlags2 int32 `json:"jflags2"`
	// 7.06
	EffectiveResReq string `json:"effective_res_req"`
	NumAllocSlots   int32  `json:"num_alloc_slots"`
}

func (p *JobStartLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *JobStartLog) walk(w walker) {
	w.i32("jobId", &p.JobID)
	w.status("jStatus", &p.Status, &p.StatusFlags)
	w.i32("jobPid", &p.JobPid)
	w.i32("jobPGid", &p.JobPGid)
	w.f64("hostFactor", &p.HostFactor)
	w.strs("execHosts", &p.ExecHosts)
	w.str("queuePreCmd", &p.QueuePreCmd)
	w.str("queuePostCmd", &p.QueuePostCmd)
	w.i32("jFlags", &p.JFlags)
	w.str("userGroup", &p.UserGroup)
	w.i32("idx", &p.Idx)
	if !w.since(V60) {
		return
	}
	w.str("additionalInfo", &p.AdditionalInfo)
	if !w.since(V70) {
		return
	}
	w.i32("duration4PreemptBackfill", &p.PreemptBackfill)
	if !w.since(V702) {
		return
	}
	w.i32("jFlags2", &p.JFlags2)
	if !w.since(V706) {
		return
	}
	w.str("effectiveResReq", &p.EffectiveResReq)
	w.i32("numAllocSlots", &p.NumAllocSlots)
}

// JobStartAcceptLog records that the execution agent accepted a dispatch.
type JobStartAcceptLog struct {
	JobID   int32 `json:"job_id"`
	JobPid  int32 `json:"job_pid"`
	JobPGid int32 `json:"job_pgid"`
	Idx     int32 `json:"idx"`
}

func (p *JobStartAcceptLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *JobStartAcceptLog) walk(w walker) {
	w.i32("jobId", &p.JobID)
	w.i32("jobPid", &p.JobPid)
	w.i32("jobPGid", &p.JobPGid)
	w.i32("idx", &p.Idx)
}

// JobStatusLog records a status change with its pending or suspending reason.
type JobStatusLog struct {
	JobID       int32             `json:"job_id"`
	Status      Status            `json:"status"`
	StatusFlags StatusFlags       `json:"status_flags"`
	Reason      int32             `json:"reason"`
	Subreasons  int32             `json:"subreasons"`
	CPUTime     float64           `json:"cpu_time"`
	EndTime     int64             `json:"end_time"`
	JFlags      int32             `json:"jflags"`
	ExitStatus  int32             `json:"exit_status"`
	Idx         int32             `json:"idx"`
	ExitReason  reason.ExitReason `json:"exit_reason"`

	// 6.0
	TermInfo int32 `json:"term_info"`
	// 7.0
	RunTime int32 `json:"run_time"`
}

func (p *JobStatusLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *JobStatusLog) walk(w walker) {
	w.i32("jobId", &p.JobID)
	w.status("jStatus", &p.Status, &p.StatusFlags)
	w.i32("reason", &p.Reason)
	w.i32("subreasons", &p.Subreasons)
	w.f64("cpuTime", &p.CPUTime)
	w.i64("endTime", &p.EndTime)
	w.i32("jFlags", &p.JFlags)
	w.i32("exitStatus", &p.ExitStatus)
	w.i32("idx", &p.Idx)
	exitReason(w, "exitReason", &p.ExitReason)
	if !w.since(V60) {
		return
	}
	w.i32("exitInfo", &p.TermInfo)
	if !w.since(V70) {
		return
	}
	w.i32("runTime", &p.RunTime)
}

// SbdJobStatusLog records a status reported by the execution agent.
type SbdJobStatusLog struct {
	JobID         int32             `json:"job_id"`
	Status        Status            `json:"status"`
	StatusFlags   StatusFlags       `json:"status_flags"`
	Reasons       int32             `json:"reasons"`
	Subreasons    int32             `json:"subreasons"`
	ActPid        int32             `json:"act_pid"`
	ActValue      int32             `json:"act_value"`
	ActPeriod     int64             `json:"act_period"`
	ActFlags      int32             `json:"act_flags"`
	ActStatus     int32             `json:"act_status"`
	ActReasons    int32             `json:"act_reasons"`
	ActSubReasons int32             `json:"act_sub_reasons"`
	Idx           int32             `json:"idx"`
	ExitReason    reason.ExitReason `json:"exit_reason"`

	// 6.0
	SigValue int32 `json:"sig_value"`
	// 7.0
	ExitInfo int32 `json:"exit_info"`
}

func (p *SbdJobStatusLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *SbdJobStatusLog) walk(w walker) {
	w.i32("jobId", &p.JobID)
	w.status("jStatus", &p.Status, &p.StatusFlags)
	w.i32("reasons", &p.Reasons)
	w.i32("subreasons", &p.Subreasons)
	w.i32("actPid", &p.ActPid)
	w.i32("actValue", &p.ActValue)
	w.i64("actPeriod", &p.ActPeriod)
	w.i32("actFlags", &p.ActFlags)
	w.i32("actStatus", &p.ActStatus)
	w.i32("actReasons", &p.ActReasons)
	w.i32("actSubReasons", &p.ActSubReasons)
	w.i32("idx", &p.Idx)
	exitReason(w, "exitReason", &p.ExitReason)
	if !w.since(V60) {
		return
	}
	w.i32("sigValue", &p.SigValue)
	if !w.since(V70) {
		return
	}
	w.i32("exitInfo", &p.ExitInfo)
}

// SbdUnreportedStatusLog records that the execution agent lost contact with
// the master before it could report a status.
type SbdUnreportedStatusLog struct {
	JobID        int32       `json:"job_id"`
	ActPid       int32       `json:"act_pid"`
	JobPid       int32       `json:"job_pid"`
	JobPGid      int32       `json:"job_pgid"`
	NewStatus    Status      `json:"new_status"`
	StatusFlags  StatusFlags `json:"status_flags"`
	Reason       int32       `json:"reason"`
	Subreasons   int32       `json:"subreasons"`
	ExecUID      int32       `json:"exec_uid"`
	ExitStatus   int32       `json:"exit_status"`
	ExecCwd      string      `json:"exec_cwd"`
	ExecHome     string      `json:"exec_home"`
	ExecUsername string      `json:"exec_username"`
	MsgID        int32       `json:"msg_id"`
	Idx          int32       `json:"idx"`

	// 6.0
	SigValue int32 `json:"sig_value"`
	// 7.0
	RunTime int32 `json:"run_time"`
}

func (p *SbdUnreportedStatusLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *SbdUnreportedStatusLog) walk(w walker) {
	w.i32("jobId", &p.JobID)
	w.i32("actPid", &p.ActPid)
	w.i32("jobPid", &p.JobPid)
	w.i32("jobPGid", &p.JobPGid)
	w.status("newStatus", &p.NewStatus, &p.StatusFlags)
	w.i32("reason", &p.Reason)
	w.i32("subreasons", &p.Subreasons)
	w.i32("execUid", &p.ExecUID)
	w.i32("exitStatus", &p.ExitStatus)
	w.str("execCwd", &p.ExecCwd)
	w.str("execHome", &p.ExecHome)
	w.str("execUsername", &p.ExecUsername)
	w.i32("msgId", &p.MsgID)
	w.i32("idx", &p.Idx)
	if !w.since(V60) {
		return
	}
	w.i32("sigValue", &p.SigValue)
	if !w.since(V70) {
		return
	}
	w.i32("runTime", &p.RunTime)
}

// JobFinishLog is the accounting record written when a job finishes.
type JobFinishLog struct {
	JobID            int32             `json:"job_id"`
	UserID           int32             `json:"user_id"`
	Options          int32             `json:"options"`
	NumProcessors    int32             `json:"num_processors"`
	Status           Status            `json:"status"`
	StatusFlags      StatusFlags       `json:"status_flags"`
	SubmitTime       int64             `json:"submit_time"`
	BeginTime        int64             `json:"begin_time"`
	TermTime         int64             `json:"term_time"`
	StartTime        int64             `json:"start_time"`
	EndTime          int64             `json:"end_time"`
	Queue            string            `json:"queue"`
	ResReq           string            `json:"res_req"`
	FromHost         string            `json:"from_host"`
	Cwd              string            `json:"cwd"`
	InFile           string            `json:"in_file"`
	OutFile          string            `json:"out_file"`
	ErrFile          string            `json:"err_file"`
	JobFile          string            `json:"job_file"`
	ExecHosts        []string          `json:"exec_hosts,omitempty"`
	CPUTime          float64           `json:"cpu_time"`
	JobName          string            `json:"job_name"`
	Command          string            `json:"command"`
	ProjectName      string            `json:"project_name"`
	ExitStatus       int32             `json:"exit_status"`
	MaxNumProcessors int32             `json:"max_num_processors"`
	LoginShell       string            `json:"login_shell"`
	Idx              int32             `json:"idx"`
	MaxRMem          int32             `json:"max_rmem"`
	MaxRSwap         int32             `json:"max_rswap"`
	ExitReason       reason.ExitReason `json:"exit_reason"`
	UserName         string            `json:"user_name"`

	// 6.0
	TermInfo int32  `json:"term_info"`
	SLA      string `json:"sla"`
	JobGroup string `json:"job_group"`
	// 7.0
	App     string `json:"app"`
	RunTime int32  `json:"run_time"`
	// 7.02
	JobDescription string `json:"job_description"`
	// 7.04
	ExceptMask int32 `json:"except_mask"`
	// 7.06
	EffectiveResReq string `json:"effective_res_req"`
}

func (p *JobFinishLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *JobFinishLog) walk(w walker) {
	w.i32("jobId", &p.JobID)
	w.i32("userId", &p.UserID)
	w.i32("options", &p.Options)
	w.i32("numProcessors", &p.NumProcessors)
	w.status("jStatus", &p.Status, &p.StatusFlags)
	w.i64("submitTime", &p.SubmitTime)
	w.i64("beginTime", &p.BeginTime)
	w.i64("termTime", &p.TermTime)
	w.i64("startTime", &p.StartTime)
	w.i64("endTime", &p.EndTime)
	w.str("queue", &p.Queue)
	w.str("resReq", &p.ResReq)
	w.str("fromHost", &p.FromHost)
	w.str("cwd", &p.Cwd)
	w.str("inFile", &p.InFile)
	w.str("outFile", &p.OutFile)
	w.str("errFile", &p.ErrFile)
	w.str("jobFile", &p.JobFile)
	w.strs("execHosts", &p.ExecHosts)
	w.f64("cpuTime", &p.CPUTime)
	w.str("jobName", &p.JobName)
	w.str("command", &p.Command)
	w.str("projectName", &p.ProjectName)
	w.i32("exitStatus", &p.ExitStatus)
	w.i32("maxNumProcessors", &p.MaxNumProcessors)
	w.str("loginShell", &p.LoginShell)
	w.i32("idx", &p.Idx)
	w.i32("maxRMem", &p.MaxRMem)
	w.i32("maxRSwap", &p.MaxRSwap)
	exitReason(w, "exitReason", &p.ExitReason)
	w.str("userName", &p.UserName)
	if !w.since(V60) {
		return
	}
	w.i32("exitInfo", &p.TermInfo)
	w.str("sla", &p.SLA)
	w.str("jgroup", &p.JobGroup)
	if !w.since(V70) {
		return
	}
	w.str("app", &p.App)
	w.i32("runTime", &p.RunTime)
	if !w.since(V702) {
		return
	}
	w.str("jobDescription", &p.JobDescription)
	if !w.since(V704) {
		return
	}
	w.i32("exceptMask", &p.ExceptMask)
	if !w.since(V706) {
		return
	}
	w.str("effectiveResReq", &p.EffectiveResReq)
}

// JobRequeueLog records a requeue of a finished job.
type JobRequeueLog struct {
	JobID int32 `json:"job_id"`
	Idx   int32 `json:"idx"`
}

func (p *JobRequeueLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *JobRequeueLog) walk(w walker) {
	w.i32("jobId", &p.JobID)
	w.i32("idx", &p.Idx)
}

// JobCleanLog removes a finished job from the live registry.
type JobCleanLog struct {
	JobID int32 `json:"job_id"`
	Idx   int32 `json:"idx"`
}

func (p *JobCleanLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *JobCleanLog) walk(w walker) {
	w.i32("jobId", &p.JobID)
	w.i32("idx", &p.Idx)
}

// JobSwitchLog records a queue switch.
type JobSwitchLog struct {
	UserID   int32  `json:"user_id"`
	JobID    int32  `json:"job_id"`
	Queue    string `json:"queue"`
	Idx      int32  `json:"idx"`
	UserName string `json:"user_name"`
}

func (p *JobSwitchLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *JobSwitchLog) walk(w walker) {
	w.i32("userId", &p.UserID)
	w.i32("jobId", &p.JobID)
	w.str("queue", &p.Queue)
	w.i32("idx", &p.Idx)
	w.str("userName", &p.UserName)
}

// JobMoveLog records a change of a pending job's position in its queue.
type JobMoveLog struct {
	UserID   int32  `json:"user_id"`
	JobID    int32  `json:"job_id"`
	Position int32  `json:"position"`
	Base     int32  `json:"base"`
	Idx      int32  `json:"idx"`
	UserName string `json:"user_name"`
}

func (p *JobMoveLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *JobMoveLog) walk(w walker) {
	w.i32("userId", &p.UserID)
	w.i32("jobId", &p.JobID)
	w.i32("position", &p.Position)
	w.i32("base", &p.Base)
	w.i32("idx", &p.Idx)
	w.str("userName", &p.UserName)
}

// JobModLog records a parameter change. The job is named by string ("123" or
// "123[4]") as in the historical layout.
type JobModLog struct {
	JobIDStr         string   `json:"job_id_str"`
	Options          int32    `json:"options"`
	Options2         int32    `json:"options2"`
	DelOptions       int32    `json:"del_options"`
	DelOptions2      int32    `json:"del_options2"`
	UserID           int32    `json:"user_id"`
	UserName         string   `json:"user_name"`
	SubmitTime       int64    `json:"submit_time"`
	Umask            int32    `json:"umask"`
	NumProcessors    int32    `json:"num_processors"`
	BeginTime        int64    `json:"begin_time"`
	TermTime         int64    `json:"term_time"`
	SigValue         int32    `json:"sig_value"`
	RestartPid       int32    `json:"restart_pid"`
	JobName          string   `json:"job_name"`
	Queue            string   `json:"queue"`
	AskedHosts       []string `json:"asked_hosts,omitempty"`
	ResReq           string   `json:"res_req"`
	HostSpec         string   `json:"host_spec"`
	DependCond       string   `json:"depend_cond"`
	InFile           string   `json:"in_file"`
	OutFile          string   `json:"out_file"`
	ErrFile          string   `json:"err_file"`
	Command          string   `json:"command"`
	ChkpntPeriod     int32    `json:"chkpnt_period"`
	ChkpntDir        string   `json:"chkpnt_dir"`
	JobFile          string   `json:"job_file"`
	FromHost         string   `json:"from_host"`
	Cwd              string   `json:"cwd"`
	PreExecCmd       string   `json:"pre_exec_cmd"`
	MailUser         string   `json:"mail_user"`
	ProjectName      string   `json:"project_name"`
	NiosPort         int32    `json:"nios_port"`
	MaxNumProcessors int32    `json:"max_num_processors"`
	LoginShell       string   `json:"login_shell"`
	UserPriority     int32    `json:"user_priority"`

	// 6.0
	JobGroup       string `json:"job_group"`
	SLA            string `json:"sla"`
	LicenseProject string `json:"license_project"`
	// 7.0
	App         string `json:"app"`
	PostExecCmd string `json:"post_exec_cmd"`
	// 7.02
	JobDescription string `json:"job_description"`
}

// Job parses JobIDStr. An unparsable id yields the zero ID.
func (p *JobModLog) Job() jobid.ID {
	id, err := jobid.Parse(p.JobIDStr)
	if err != nil {
		return jobid.ID{}
	}
	return id
}

func (p *JobModLog) walk(w walker) {
	w.str("jobIdStr", &p.JobIDStr)
	w.i32("options", &p.Options)
	w.i32("options2", &p.Options2)
	w.i32("delOptions", &p.DelOptions)
	w.i32("delOptions2", &p.DelOptions2)
	w.i32("userId", &p.UserID)
	w.str("userName", &p.UserName)
	w.i64("submitTime", &p.SubmitTime)
	w.i32("umask", &p.Umask)
	w.i32("numProcessors", &p.NumProcessors)
	w.i64("beginTime", &p.BeginTime)
	w.i64("termTime", &p.TermTime)
	w.i32("sigValue", &p.SigValue)
	w.i32("restartPid", &p.RestartPid)
	w.str("jobName", &p.JobName)
	w.str("queue", &p.Queue)
	w.strs("askedHosts", &p.AskedHosts)
	w.str("resReq", &p.ResReq)
	w.str("hostSpec", &p.HostSpec)
	w.str("dependCond", &p.DependCond)
	w.str("inFile", &p.InFile)
	w.str("outFile", &p.OutFile)
	w.str("errFile", &p.ErrFile)
	w.str("command", &p.Command)
	w.i32("chkpntPeriod", &p.ChkpntPeriod)
	w.str("chkpntDir", &p.ChkpntDir)
	w.str("jobFile", &p.JobFile)
	w.str("fromHost", &p.FromHost)
	w.str("cwd", &p.Cwd)
	w.str("preExecCmd", &p.PreExecCmd)
	w.str("mailUser", &p.MailUser)
	w.str("projectName", &p.ProjectName)
	w.i32("niosPort", &p.NiosPort)
	w.i32("maxNumProcessors", &p.MaxNumProcessors)
	w.str("loginShell", &p.LoginShell)
	w.i32("userPriority", &p.UserPriority)
	if !w.since(V60) {
		return
	}
	w.str("jobGroup", &p.JobGroup)
	w.str("sla", &p.SLA)
	w.str("licenseProject", &p.LicenseProject)
	if !w.since(V70) {
		return
	}
	w.str("app", &p.App)
	w.str("postExecCmd", &p.PostExecCmd)
	if !w.since(V702) {
		return
	}
	w.str("jobDescription", &p.JobDescription)
}

// MigLog records a migration request.
type MigLog struct {
	JobID      int32    `json:"job_id"`
	AskedHosts []string `json:"asked_hosts,omitempty"`
	UserID     int32    `json:"user_id"`
	Idx        int32    `json:"idx"`
	UserName   string   `json:"user_name"`
}

func (p *MigLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *MigLog) walk(w walker) {
	w.i32("jobId", &p.JobID)
	w.strs("askedHosts", &p.AskedHosts)
	w.i32("userId", &p.UserID)
	w.i32("idx", &p.Idx)
	w.str("userName", &p.UserName)
}

// JobExecuteLog records the execution environment of a started job.
type JobExecuteLog struct {
	JobID        int32  `json:"job_id"`
	ExecUID      int32  `json:"exec_uid"`
	ExecHome     string `json:"exec_home"`
	ExecCwd      string `json:"exec_cwd"`
	JobPGid      int32  `json:"job_pgid"`
	ExecUsername string `json:"exec_username"`
	JobPid       int32  `json:"job_pid"`
	Idx          int32  `json:"idx"`

	// 6.0
	AdditionalInfo string `json:"additional_info"`
	// 7.0
	SLAScaledRunLimit int32 `json:"sla_scaled_run_limit"`
	// 7.02
	Position int32 `json:"position"`
	// 7.04
	ExecRusage string `json:"exec_rusage"`
	// 7.06
	PreemptBackfill int32 `json:"preempt_backfill"`
}

func (p *JobExecuteLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *JobExecuteLog) walk(w walker) {
	w.i32("jobId", &p.JobID)
	w.i32("execUid", &p.ExecUID)
	w.str("execHome", &p.ExecHome)
	w.str("execCwd", &p.ExecCwd)
	w.i32("jobPGid", &p.JobPGid)
	w.str("execUsername", &p.ExecUsername)
	w.i32("jobPid", &p.JobPid)
	w.i32("idx", &p.Idx)
	if !w.since(V60) {
		return
	}
	w.str("additionalInfo", &p.AdditionalInfo)
	if !w.since(V70) {
		return
	}
	w.i32("SLAscaledRunLimit", &p.SLAScaledRunLimit)
	if !w.since(V702) {
		return
	}
	w.i32("position", &p.Position)
	if !w.since(V704) {
		return
	}
	w.str("execRusage", &p.ExecRusage)
	if !w.since(V706) {
		return
	}
	w.i32("duration4PreemptBackfill", &p.PreemptBackfill)
}

// JobRunRusageLog is a periodic resource usage sample of a running job.
type JobRunRusageLog struct {
	JobID   int32   `json:"job_id"`
	Idx     int32   `json:"idx"`
	UTime   float64 `json:"utime"`
	STime   float64 `json:"stime"`
	Mem     int32   `json:"mem"`
	Swap    int32   `json:"swap"`
	NumPids int32   `json:"num_pids"`
}

func (p *JobRunRusageLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *JobRunRusageLog) walk(w walker) {
	w.i32("jobId", &p.JobID)
	w.i32("idx", &p.Idx)
	w.f64("utime", &p.UTime)
	w.f64("stime", &p.STime)
	w.i32("mem", &p.Mem)
	w.i32("swap", &p.Swap)
	w.i32("npids", &p.NumPids)
}

// TaskFinishLog records a finished task of a parallel job.
type TaskFinishLog struct {
	JobID      int32   `json:"job_id"`
	Idx        int32   `json:"idx"`
	TaskID     int32   `json:"task_id"`
	TaskPid    int32   `json:"task_pid"`
	ExitStatus int32   `json:"exit_status"`
	Host       string  `json:"host"`
	CPUTime    float64 `json:"cpu_time"`
}

func (p *TaskFinishLog) Job() jobid.ID { return jobid.New(p.JobID, p.Idx) }

func (p *TaskFinishLog) walk(w walker) {
	w.i32("jobId", &p.JobID)
	w.i32("idx", &p.Idx)
	w.i32("taskId", &p.TaskID)
	w.i32("taskPid", &p.TaskPid)
	w.i32("exitStatus", &p.ExitStatus)
	w.str("host", &p.Host)
	w.f64("cpuTime", &p.CPUTime)
}
