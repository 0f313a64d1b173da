package scheduler

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/3leaps/batchlog/pkg/event"
)

// Host states derived from HOST_CTRL and HGHOST_CTRL.
const (
	HostStatusOK       = "ok"
	HostStatusClosed   = "closed"
	HostStatusRebooted = "rebooted"
	HostStatusShutdown = "shutdown"
)

// QueueState is the administrative state of a queue.
type QueueState struct {
	Name    string    `json:"name"`
	Open    bool      `json:"open"`
	Active  bool      `json:"active"`
	LastOp  int32     `json:"last_op"`
	User    string    `json:"user,omitempty"`
	Message string    `json:"message,omitempty"`
	Cleaned time.Time `json:"cleaned,omitzero"`
	Updated time.Time `json:"updated"`
}

// HostState is the administrative state of an execution host.
type HostState struct {
	Name    string    `json:"name"`
	Status  string    `json:"status"`
	LastOp  int32     `json:"last_op"`
	User    string    `json:"user,omitempty"`
	Message string    `json:"message,omitempty"`
	Groups  []string  `json:"groups,omitempty"`
	Updated time.Time `json:"updated"`
}

// MasterState describes the scheduler daemon that wrote the log.
type MasterState struct {
	Host      string    `json:"host,omitempty"`
	Cluster   string    `json:"cluster,omitempty"`
	Up        bool      `json:"up"`
	NumHosts  int32     `json:"num_hosts,omitempty"`
	NumQueues int32     `json:"num_queues,omitempty"`
	StartedAt time.Time `json:"started_at,omitzero"`
	StoppedAt time.Time `json:"stopped_at,omitzero"`
	ExitCode  int32     `json:"exit_code,omitempty"`
	Message   string    `json:"message,omitempty"`
}

// JobGroup is a job group known from JGRP_* events.
type JobGroup struct {
	Path      string    `json:"path"`
	User      string    `json:"user,omitempty"`
	SLA       string    `json:"sla,omitempty"`
	MaxJLimit int32     `json:"max_jlimit,omitempty"`
	Status    int32     `json:"status"`
	LastCtrl  int32     `json:"last_ctrl,omitempty"`
	Created   time.Time `json:"created,omitzero"`
	Updated   time.Time `json:"updated"`
}

// ClusterState is a point-in-time copy of cluster-level state.
type ClusterState struct {
	Master    MasterState  `json:"master"`
	LastJobID int32        `json:"last_job_id"`
	Queues    []QueueState `json:"queues"`
	Hosts     []HostState  `json:"hosts"`
	JobGroups []JobGroup   `json:"job_groups"`
	Position  uint64       `json:"position"`
}

// cluster tracks state carried by non-job events.
type cluster struct {
	mu        sync.RWMutex
	master    MasterState
	lastJobID int32
	queues    map[string]*QueueState
	hosts     map[string]*HostState
	groups    map[string]*JobGroup
	position  uint64
}

func newCluster() *cluster {
	return &cluster{
		queues: make(map[string]*QueueState),
		hosts:  make(map[string]*HostState),
		groups: make(map[string]*JobGroup),
	}
}

// observe folds rec into the cluster state and reports whether the record
// type is one the cluster tracks.
func (c *cluster) observe(rec *event.Record) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.position = max(c.position, rec.Seq)
	at := rec.Timestamp()

	switch p := rec.Payload.(type) {
	case *event.JobNewLog:
		if p.JobID > 0 {
			c.lastJobID = p.JobID
		}
		return false
	case *event.LogSwitchLog:
		if p.LastJobID > 0 {
			c.lastJobID = p.LastJobID
		}
	case *event.QueueCtrlLog:
		q := c.queue(p.Queue)
		switch p.OpCode {
		case event.QueueOpen:
			q.Open = true
		case event.QueueClosed:
			q.Open = false
		case event.QueueActivate:
			q.Active = true
		case event.QueueInactivate:
			q.Active = false
		case event.QueueClean:
			q.Cleaned = at
		}
		q.LastOp = p.OpCode
		q.User = p.UserName
		q.Message = p.Message
		q.Updated = at
	case *event.HostCtrlLog:
		c.hostOp(p.Host, p.OpCode, p.UserName, p.Message, at)
	case *event.HgCtrlLog:
		h := c.hostOp(p.Host, p.OpCode, p.UserName, p.Message, at)
		if p.GroupName != "" && !slices.Contains(h.Groups, p.GroupName) {
			h.Groups = append(h.Groups, p.GroupName)
			slices.Sort(h.Groups)
		}
	case *event.MbdStartLog:
		c.master = MasterState{
			Host:      p.Master,
			Cluster:   p.Cluster,
			Up:        true,
			NumHosts:  p.NumHosts,
			NumQueues: p.NumQueues,
			StartedAt: at,
		}
	case *event.MbdDieLog:
		if p.Master != "" {
			c.master.Host = p.Master
		}
		c.master.Up = false
		c.master.StoppedAt = at
		c.master.ExitCode = p.ExitCode
		c.master.Message = p.Message
	case *event.JgrpLog:
		g := c.group(p.GroupSpec)
		if g.Created.IsZero() {
			if p.SubmitTime > 0 {
				g.Created = time.Unix(p.SubmitTime, 0).UTC()
			} else {
				g.Created = at
			}
		}
		g.User = p.UserName
		g.SLA = p.SLA
		g.MaxJLimit = p.MaxJLimit
		g.Updated = at
	case *event.JgrpCtrlLog:
		g := c.group(p.GroupSpec)
		g.LastCtrl = p.CtrlOp
		g.Updated = at
	case *event.JgrpStatusLog:
		g := c.group(p.GroupSpec)
		g.Status = p.Status
		g.Updated = at
	default:
		return false
	}
	return true
}

func (c *cluster) queue(name string) *QueueState {
	q, ok := c.queues[name]
	if !ok {
		q = &QueueState{Name: name, Open: true, Active: true}
		c.queues[name] = q
	}
	return q
}

func (c *cluster) hostOp(name string, op int32, user, msg string, at time.Time) *HostState {
	h, ok := c.hosts[name]
	if !ok {
		h = &HostState{Name: name, Status: HostStatusOK}
		c.hosts[name] = h
	}
	switch op {
	case event.HostOpen:
		h.Status = HostStatusOK
	case event.HostClose:
		h.Status = HostStatusClosed
	case event.HostReboot:
		h.Status = HostStatusRebooted
	case event.HostShutdown:
		h.Status = HostStatusShutdown
	}
	h.LastOp = op
	h.User = user
	h.Message = msg
	h.Updated = at
	return h
}

func (c *cluster) group(path string) *JobGroup {
	g, ok := c.groups[path]
	if !ok {
		g = &JobGroup{Path: path}
		c.groups[path] = g
	}
	return g
}

func (c *cluster) last() int32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastJobID
}

func (c *cluster) snapshot() ClusterState {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := ClusterState{
		Master:    c.master,
		LastJobID: c.lastJobID,
		Queues:    make([]QueueState, 0, len(c.queues)),
		Hosts:     make([]HostState, 0, len(c.hosts)),
		JobGroups: make([]JobGroup, 0, len(c.groups)),
		Position:  c.position,
	}
	for _, name := range slices.Sorted(maps.Keys(c.queues)) {
		out.Queues = append(out.Queues, *c.queues[name])
	}
	for _, name := range slices.Sorted(maps.Keys(c.hosts)) {
		h := *c.hosts[name]
		h.Groups = slices.Clone(h.Groups)
		out.Hosts = append(out.Hosts, h)
	}
	for _, path := range slices.Sorted(maps.Keys(c.groups)) {
		out.JobGroups = append(out.JobGroups, *c.groups[path])
	}
	return out
}
