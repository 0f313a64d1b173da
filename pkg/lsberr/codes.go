// Package lsberr defines the stable LSBE error space surfaced to external
// collaborators. Codes are historical wire values and are never renumbered.
package lsberr

import "fmt"

// Code is an LSBE error number.
type Code int

const (
	NoError        Code = 0
	NoJob          Code = 1
	NotStarted     Code = 2
	JobStarted     Code = 3
	JobFinish      Code = 4
	StopJob        Code = 5
	DependSyntax   Code = 6
	Exclusive      Code = 7
	Root           Code = 8
	Migration      Code = 9
	Unchkpntable   Code = 10
	NoOutput       Code = 11
	NoJobID        Code = 12
	OnlyInteract   Code = 13
	NoInteractive  Code = 14
	NoUser         Code = 15
	BadUser        Code = 16
	Permission     Code = 17
	BadQueue       Code = 18
	QueueName      Code = 19
	QueueClosed    Code = 20
	QueueWindow    Code = 21
	QueueUse       Code = 22
	BadHost        Code = 23
	ProcNum        Code = 24
	Reserve1       Code = 25
	Reserve2       Code = 26
	NoGroup        Code = 27
	BadGroup       Code = 28
	QueueHost      Code = 29
	UJobLimit      Code = 30
	NoHost         Code = 31
	BadChklog      Code = 32
	PJobLimit      Code = 33
	NoLSFHost      Code = 34
	BadArg         Code = 35
	BadTime        Code = 36
	StartTime      Code = 37
	BadLimit       Code = 38
	OverLimit      Code = 39
	BadCmd         Code = 40
	BadSignal      Code = 41
	BadJob         Code = 42
	QJobLimit      Code = 43
	UnknownEvent   Code = 44
	EventFormat    Code = 45
	EOF            Code = 46
	Mbatchd        Code = 47
	Lsblib         Code = 48
	Lslib          Code = 49
	SysCall        Code = 50
	NoMem          Code = 51
	Service        Code = 52
	NoEnv          Code = 53
	ChkpntCall     Code = 54
	NoFork         Code = 55
	Protocol       Code = 57
	XDR            Code = 58
	Port           Code = 59
	TimeOut        Code = 60
	ConnTimeout    Code = 61
	ConnRefused    Code = 62
	ConnExist      Code = 63
	ConnNonexist   Code = 64
	SbdUnreach     Code = 65
	OpRetry        Code = 66
	UserJLimit     Code = 67
	JobModify      Code = 68
	JobModifyOnce  Code = 69
	JobDependent   Code = 70
	BadEventSeq    Code = 71
	IllegalTransit Code = 72
)

type info struct {
	name string
	text string
}

var table = map[Code]info{
	NoError:        {"LSBE_NO_ERROR", "No error"},
	NoJob:          {"LSBE_NO_JOB", "No matching job found"},
	NotStarted:     {"LSBE_NOT_STARTED", "Job has not started yet"},
	JobStarted:     {"LSBE_JOB_STARTED", "Job has already started"},
	JobFinish:      {"LSBE_JOB_FINISH", "Job has already finished"},
	StopJob:        {"LSBE_STOP_JOB", "Ask sbatchd to stop the wrong job"},
	DependSyntax:   {"LSBE_DEPEND_SYNTAX", "Dependency condition syntax error"},
	Exclusive:      {"LSBE_EXCLUSIVE", "Queue does not accept EXCLUSIVE jobs"},
	Root:           {"LSBE_ROOT", "Root job is not allowed"},
	Migration:      {"LSBE_MIGRATION", "Job is already being migrated"},
	Unchkpntable:   {"LSBE_J_UNCHKPNTABLE", "Job is not checkpointable"},
	NoOutput:       {"LSBE_NO_OUTPUT", "No output so far"},
	NoJobID:        {"LSBE_NO_JOBID", "No job id can be used now"},
	OnlyInteract:   {"LSBE_ONLY_INTERACTIVE", "Queue only accepts interactive jobs"},
	NoInteractive:  {"LSBE_NO_INTERACTIVE", "Queue does not accept interactive jobs"},
	NoUser:         {"LSBE_NO_USER", "No user defined in the batch configuration"},
	BadUser:        {"LSBE_BAD_USER", "Unknown user"},
	Permission:     {"LSBE_PERMISSION", "User permission denied"},
	BadQueue:       {"LSBE_BAD_QUEUE", "No such queue"},
	QueueName:      {"LSBE_QUEUE_NAME", "Queue name must be specified"},
	QueueClosed:    {"LSBE_QUEUE_CLOSED", "Queue has been closed"},
	QueueWindow:    {"LSBE_QUEUE_WINDOW", "Not activated because queue windows are closed"},
	QueueUse:       {"LSBE_QUEUE_USE", "User cannot use the queue"},
	BadHost:        {"LSBE_BAD_HOST", "Bad host name, host group name or cluster name"},
	ProcNum:        {"LSBE_PROC_NUM", "Too many processors requested"},
	Reserve1:       {"LSBE_RESERVE1", "Reserved for future use"},
	Reserve2:       {"LSBE_RESERVE2", "Reserved for future use"},
	NoGroup:        {"LSBE_NO_GROUP", "No user/host group defined in the system"},
	BadGroup:       {"LSBE_BAD_GROUP", "No such user/host group"},
	QueueHost:      {"LSBE_QUEUE_HOST", "Host or host group is not used by the queue"},
	UJobLimit:      {"LSBE_UJOB_LIMIT", "Queue does not have enough per-user job slots"},
	NoHost:         {"LSBE_NO_HOST", "Current host is more suitable at this time"},
	BadChklog:      {"LSBE_BAD_CHKLOG", "Checkpoint log is not found or is corrupted"},
	PJobLimit:      {"LSBE_PJOB_LIMIT", "Queue does not have enough per-processor job slots"},
	NoLSFHost:      {"LSBE_NOLSF_HOST", "Request from non-LSF host rejected"},
	BadArg:         {"LSBE_BAD_ARG", "Bad argument"},
	BadTime:        {"LSBE_BAD_TIME", "Bad time specification"},
	StartTime:      {"LSBE_START_TIME", "Start time is later than termination time"},
	BadLimit:       {"LSBE_BAD_LIMIT", "Bad CPU limit specification"},
	OverLimit:      {"LSBE_OVER_LIMIT", "Cannot exceed queue's hard limit(s)"},
	BadCmd:         {"LSBE_BAD_CMD", "Empty job"},
	BadSignal:      {"LSBE_BAD_SIGNAL", "Signal not supported"},
	BadJob:         {"LSBE_BAD_JOB", "Bad job name"},
	QJobLimit:      {"LSBE_QJOB_LIMIT", "Queue does not have enough total job slots"},
	UnknownEvent:   {"LSBE_UNKNOWN_EVENT", "Unknown event"},
	EventFormat:    {"LSBE_EVENT_FORMAT", "Bad event format"},
	EOF:            {"LSBE_EOF", "End of file"},
	Mbatchd:        {"LSBE_MBATCHD", "Master batch daemon internal error"},
	Lsblib:         {"LSBE_LSBLIB", "Batch library internal error"},
	Lslib:          {"LSBE_LSLIB", "Base library call failed"},
	SysCall:        {"LSBE_SYS_CALL", "System call failed"},
	NoMem:          {"LSBE_NO_MEM", "Cannot allocate memory"},
	Service:        {"LSBE_SERVICE", "Batch service not registered"},
	NoEnv:          {"LSBE_NO_ENV", "Environment variable is not set"},
	ChkpntCall:     {"LSBE_CHKPNT_CALL", "Checkpoint system call failed"},
	NoFork:         {"LSBE_NO_FORK", "Batch daemon failed to fork"},
	Protocol:       {"LSBE_PROTOCOL", "Batch protocol error"},
	XDR:            {"LSBE_XDR", "Data encoding or decoding error"},
	Port:           {"LSBE_PORT", "Fail to bind to an appropriate port number"},
	TimeOut:        {"LSBE_TIME_OUT", "Contacting batch daemon: communication timeout"},
	ConnTimeout:    {"LSBE_CONN_TIMEOUT", "Timeout on connect call to server"},
	ConnRefused:    {"LSBE_CONN_REFUSED", "Connection refused by server"},
	ConnExist:      {"LSBE_CONN_EXIST", "Server connection already exists"},
	ConnNonexist:   {"LSBE_CONN_NONEXIST", "Server is not connected"},
	SbdUnreach:     {"LSBE_SBD_UNREACH", "Unable to contact execution host"},
	OpRetry:        {"LSBE_OP_RETRY", "Operation is in progress"},
	UserJLimit:     {"LSBE_USER_JLIMIT", "User or one of user's groups does not have enough job slots"},
	JobModify:      {"LSBE_JOB_MODIFY", "Job parameters cannot be changed now"},
	JobModifyOnce:  {"LSBE_JOB_MODIFY_ONCE", "Modified parameters have not been used"},
	JobDependent:   {"LSBE_J_DEPEND", "Job dependency condition is not satisfied"},
	BadEventSeq:    {"LSBE_BAD_EVENT_SEQ", "Event is older than the job's last applied event"},
	IllegalTransit: {"LSBE_ILLEGAL_TRANSITION", "Event cannot apply to the job's current state"},
}

// String returns the historical constant name.
func (c Code) String() string {
	if i, ok := table[c]; ok {
		return i.name
	}
	return fmt.Sprintf("LSBE_%d", int(c))
}

// Text returns the default user-facing message.
func (c Code) Text() string {
	if i, ok := table[c]; ok {
		return i.text
	}
	return "Unknown error"
}

// Known reports whether c is registered.
func (c Code) Known() bool {
	_, ok := table[c]
	return ok
}
