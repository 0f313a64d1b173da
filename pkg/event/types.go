package event

import (
	"fmt"
	"strings"
)

// Type is the historical integer event type written in the second field of
// every log line.
type Type int32

const (
	JobNew                Type = 1
	JobStart              Type = 2
	JobStatus             Type = 3
	JobSwitch             Type = 4
	JobMove               Type = 5
	QueueCtrl             Type = 6
	HostCtrl              Type = 7
	MbdDie                Type = 8
	MbdUnfulfill          Type = 9
	JobFinish             Type = 10
	LoadIndex             Type = 11
	Chkpnt                Type = 12
	Mig                   Type = 13
	PreExecStart          Type = 14
	MbdStart              Type = 15
	JobRoute              Type = 16
	JobModify             Type = 17
	JobSignal             Type = 18
	CalNew                Type = 19
	CalModify             Type = 20
	CalDelete             Type = 21
	JobForward            Type = 22
	JobAccept             Type = 23
	StatusAck             Type = 24
	JobExecute            Type = 25
	JobMsg                Type = 26
	JobMsgAck             Type = 27
	JobRequeue            Type = 28
	JobOccupyReq          Type = 29
	JobVacated            Type = 30
	JobSigAct             Type = 32
	SbdJobStatus          Type = 34
	JobStartAccept        Type = 35
	CalUndelete           Type = 36
	JobClean              Type = 37
	JobException          Type = 38
	JgrpAdd               Type = 39
	JgrpMod               Type = 40
	JgrpCtrl              Type = 41
	JobForce              Type = 42
	LogSwitch             Type = 43
	JobModify2            Type = 44
	JgrpStatus            Type = 45
	JobAttrSet            Type = 46
	JobExtMsg             Type = 47
	JobAttaData           Type = 48
	JobChunk              Type = 49
	SbdUnreportedStatus   Type = 50
	AdrsvFinish           Type = 51
	HgHostCtrl            Type = 52
	CPUProfileStatus      Type = 53
	DataLogging           Type = 54
	JobRunRusage          Type = 55
	EndOfStream           Type = 56
	SLARecompute          Type = 57
	MetricLog             Type = 58
	TaskFinish            Type = 59
	JobResizeNotifyStart  Type = 60
	JobResizeNotifyAccept Type = 61
	JobResizeNotifyDone   Type = 62
	JobResizeRelease      Type = 63
	JobResizeCancel       Type = 64
	JobResize             Type = 65
)

type typeInfo struct {
	name   string
	newFn  func() Payload
	legacy bool
}

func legacyPayload() Payload { return &Legacy{} }

var types = map[Type]typeInfo{
	JobNew:                {"JOB_NEW", func() Payload { return &JobNewLog{} }, false},
	JobStart:              {"JOB_START", func() Payload { return &JobStartLog{} }, false},
	JobStatus:             {"JOB_STATUS", func() Payload { return &JobStatusLog{} }, false},
	JobSwitch:             {"JOB_SWITCH", func() Payload { return &JobSwitchLog{} }, false},
	JobMove:               {"JOB_MOVE", func() Payload { return &JobMoveLog{} }, false},
	QueueCtrl:             {"QUEUE_CTRL", func() Payload { return &QueueCtrlLog{} }, false},
	HostCtrl:              {"HOST_CTRL", func() Payload { return &HostCtrlLog{} }, false},
	MbdDie:                {"MBD_DIE", func() Payload { return &MbdDieLog{} }, false},
	MbdUnfulfill:          {"MBD_UNFULFILL", func() Payload { return &UnfulfillLog{} }, false},
	JobFinish:             {"JOB_FINISH", func() Payload { return &JobFinishLog{} }, false},
	LoadIndex:             {"LOAD_INDEX", func() Payload { return &LoadIndexLog{} }, false},
	Chkpnt:                {"CHKPNT", func() Payload { return &ChkpntLog{} }, false},
	Mig:                   {"MIG", func() Payload { return &MigLog{} }, false},
	PreExecStart:          {"PRE_EXEC_START", func() Payload { return &JobStartLog{} }, false},
	MbdStart:              {"MBD_START", func() Payload { return &MbdStartLog{} }, false},
	JobRoute:              {"JOB_ROUTE", legacyPayload, true},
	JobModify:             {"JOB_MODIFY", legacyPayload, true},
	JobSignal:             {"JOB_SIGNAL", func() Payload { return &SignalLog{} }, false},
	CalNew:                {"CAL_NEW", legacyPayload, true},
	CalModify:             {"CAL_MODIFY", legacyPayload, true},
	CalDelete:             {"CAL_DELETE", legacyPayload, true},
	JobForward:            {"JOB_FORWARD", func() Payload { return &JobForwardLog{} }, false},
	JobAccept:             {"JOB_ACCEPT", func() Payload { return &JobAcceptLog{} }, false},
	StatusAck:             {"STATUS_ACK", func() Payload { return &StatusAckLog{} }, false},
	JobExecute:            {"JOB_EXECUTE", func() Payload { return &JobExecuteLog{} }, false},
	JobMsg:                {"JOB_MSG", func() Payload { return &JobMsgLog{} }, false},
	JobMsgAck:             {"JOB_MSG_ACK", func() Payload { return &JobMsgLog{} }, false},
	JobRequeue:            {"JOB_REQUEUE", func() Payload { return &JobRequeueLog{} }, false},
	JobOccupyReq:          {"JOB_OCCUPY_REQ", legacyPayload, true},
	JobVacated:            {"JOB_VACATED", legacyPayload, true},
	JobSigAct:             {"JOB_SIGACT", func() Payload { return &SigactLog{} }, false},
	SbdJobStatus:          {"SBD_JOB_STATUS", func() Payload { return &SbdJobStatusLog{} }, false},
	JobStartAccept:        {"JOB_START_ACCEPT", func() Payload { return &JobStartAcceptLog{} }, false},
	CalUndelete:           {"CAL_UNDELETE", legacyPayload, true},
	JobClean:              {"JOB_CLEAN", func() Payload { return &JobCleanLog{} }, false},
	JobException:          {"JOB_EXCEPTION", func() Payload { return &JobExceptionLog{} }, false},
	JgrpAdd:               {"JGRP_ADD", func() Payload { return &JgrpLog{} }, false},
	JgrpMod:               {"JGRP_MOD", func() Payload { return &JgrpLog{} }, false},
	JgrpCtrl:              {"JGRP_CTRL", func() Payload { return &JgrpCtrlLog{} }, false},
	JobForce:              {"JOB_FORCE", func() Payload { return &JobForceLog{} }, false},
	LogSwitch:             {"LOG_SWITCH", func() Payload { return &LogSwitchLog{} }, false},
	JobModify2:            {"JOB_MODIFY2", func() Payload { return &JobModLog{} }, false},
	JgrpStatus:            {"JGRP_STATUS", func() Payload { return &JgrpStatusLog{} }, false},
	JobAttrSet:            {"JOB_ATTR_SET", func() Payload { return &JobAttrSetLog{} }, false},
	JobExtMsg:             {"JOB_EXT_MSG", func() Payload { return &JobExtMsgLog{} }, false},
	JobAttaData:           {"JOB_ATTA_DATA", func() Payload { return &JobAttaDataLog{} }, false},
	JobChunk:              {"JOB_CHUNK", func() Payload { return &JobChunkLog{} }, false},
	SbdUnreportedStatus:   {"SBD_UNREPORTED_STATUS", func() Payload { return &SbdUnreportedStatusLog{} }, false},
	AdrsvFinish:           {"ADRSV_FINISH", func() Payload { return &RsvFinishLog{} }, false},
	HgHostCtrl:            {"HGHOST_CTRL", func() Payload { return &HgCtrlLog{} }, false},
	CPUProfileStatus:      {"CPUPROFILE_STATUS", legacyPayload, true},
	DataLogging:           {"DATA_LOGGING", legacyPayload, true},
	JobRunRusage:          {"JOB_RUN_RUSAGE", func() Payload { return &JobRunRusageLog{} }, false},
	EndOfStream:           {"END_OF_STREAM", func() Payload { return &EOSLog{} }, false},
	SLARecompute:          {"SLA_RECOMPUTE", func() Payload { return &SLALog{} }, false},
	MetricLog:             {"METRIC_LOG", legacyPayload, true},
	TaskFinish:            {"TASK_FINISH", func() Payload { return &TaskFinishLog{} }, false},
	JobResizeNotifyStart:  {"JOB_RESIZE_NOTIFY_START", func() Payload { return &ResizeNotifyStartLog{} }, false},
	JobResizeNotifyAccept: {"JOB_RESIZE_NOTIFY_ACCEPT", func() Payload { return &ResizeNotifyAcceptLog{} }, false},
	JobResizeNotifyDone:   {"JOB_RESIZE_NOTIFY_DONE", func() Payload { return &ResizeNotifyDoneLog{} }, false},
	JobResizeRelease:      {"JOB_RESIZE_RELEASE", func() Payload { return &ResizeReleaseLog{} }, false},
	JobResizeCancel:       {"JOB_RESIZE_CANCEL", func() Payload { return &ResizeCancelLog{} }, false},
	JobResize:             {"JOB_RESIZE", func() Payload { return &JobResizeLog{} }, false},
}

var typesByName = func() map[string]Type {
	m := make(map[string]Type, len(types))
	for t, info := range types {
		m[info.name] = t
	}
	return m
}()

// Known reports whether t is in the event catalog.
func (t Type) Known() bool {
	_, ok := types[t]
	return ok
}

// Legacy reports whether t is an obsolete type decoded as raw tokens.
func (t Type) Legacy() bool {
	return types[t].legacy
}

// String returns the catalog name without the EVENT_ prefix.
func (t Type) String() string {
	if info, ok := types[t]; ok {
		return info.name
	}
	return fmt.Sprintf("EVENT_%d", int32(t))
}

// Types returns every catalogued type in ascending order.
func Types() []Type {
	out := make([]Type, 0, len(types))
	for t := Type(1); t <= JobResize; t++ {
		if t.Known() {
			out = append(out, t)
		}
	}
	return out
}

// ParseType resolves a catalog name ("JOB_NEW" or "EVENT_JOB_NEW").
func ParseType(name string) (Type, bool) {
	name = strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "EVENT_")
	t, ok := typesByName[name]
	return t, ok
}

// NewPayload returns an empty payload for t, or nil if t is not catalogued.
func NewPayload(t Type) Payload {
	info, ok := types[t]
	if !ok {
		return nil
	}
	return info.newFn()
}
