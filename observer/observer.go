// Package observer implements the read-only introspection surface
// described in §4.14/§6: a process snapshot, a process tree built from
// registered supervisors, a lifecycle subscription passthrough, and a
// stop-by-id operation, plus the optional chi/Prometheus HTTP surface
// in http.go. It is grounded on the teacher corpus's router and
// metrics idioms rather than on any single file in rutaka-n-ergonode,
// which ships no comparable introspection surface of its own.
package observer

import (
	"sync"
	"time"

	"github.com/nodeforge/actorframe/actor"
	"github.com/nodeforge/actorframe/supervisor"
)

// ServerSummary is one entry of Snapshot's servers list.
type ServerSummary struct {
	Ref          actor.ServerRef
	Name         string
	Status       actor.Status
	MessageCount uint64
	StartedAt    time.Time
}

// SupervisorSummary is one entry of Snapshot's supervisors list.
type SupervisorSummary struct {
	Name     string
	Ref      actor.ServerRef
	Children []supervisor.ChildInfo
}

// Snapshot is the point-in-time view returned by Server.Snapshot (§6).
type Snapshot struct {
	ProcessCount   int
	TotalMessages  uint64
	TotalRestarts  int
	NodesConnected int
	Servers        []ServerSummary
	Supervisors    []SupervisorSummary
}

// TreeNode is one entry of the forest ProcessTree returns (§6).
type TreeNode struct {
	ID       string
	Type     string     // "server" | "supervisor"
	Children []TreeNode `json:",omitempty"`
}

// NodeLister is the small slice of *cluster.Node that observer needs,
// kept as an interface here so this package never imports cluster (the
// reverse dependency would otherwise make metrics unreachable from a
// single-node, non-distributed Runtime).
type NodeLister interface {
	ConnectedNodeCount() int
}

// Server is the in-process introspection surface (§4.14): a thin,
// read-mostly wrapper over the L1 process table plus whatever top-level
// supervisors callers choose to make visible.
type Server struct {
	rt    *actor.Runtime
	nodes NodeLister

	mu   sync.Mutex
	sups map[string]actor.ServerRef
}

// New constructs a Server bound to rt. nodes may be nil for a
// standalone, non-distributed runtime, in which case NodesConnected is
// always 0.
func New(rt *actor.Runtime, nodes NodeLister) *Server {
	return &Server{rt: rt, nodes: nodes, sups: make(map[string]actor.ServerRef)}
}

// RegisterSupervisor makes a top-level supervisor, and its children,
// visible to Snapshot and ProcessTree under name.
func (s *Server) RegisterSupervisor(name string, ref actor.ServerRef) {
	s.mu.Lock()
	s.sups[name] = ref
	s.mu.Unlock()
}

func (s *Server) supervisorRefs() map[string]actor.ServerRef {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]actor.ServerRef, len(s.sups))
	for k, v := range s.sups {
		out[k] = v
	}
	return out
}

// Snapshot returns the current process/supervisor/node counts (§6).
func (s *Server) Snapshot() Snapshot {
	infos := s.rt.Snapshot()
	out := Snapshot{ProcessCount: len(infos), Servers: make([]ServerSummary, 0, len(infos))}
	for _, in := range infos {
		out.TotalMessages += in.MessageCount
		out.Servers = append(out.Servers, ServerSummary{
			Ref: in.Ref, Name: in.Name, Status: in.Status,
			MessageCount: in.MessageCount, StartedAt: in.StartedAt,
		})
	}

	for name, ref := range s.supervisorRefs() {
		children, err := supervisor.ListChildren(s.rt, ref)
		if err != nil {
			continue
		}
		for _, c := range children {
			out.TotalRestarts += c.RestartCount
		}
		out.Supervisors = append(out.Supervisors, SupervisorSummary{Name: name, Ref: ref, Children: children})
	}

	if s.nodes != nil {
		out.NodesConnected = s.nodes.ConnectedNodeCount()
	}
	return out
}

// ProcessTree builds the forest §6 describes: one root per registered
// supervisor with its live children as leaves, plus any server not
// owned by a registered supervisor as its own root.
func (s *Server) ProcessTree() []TreeNode {
	refs := s.supervisorRefs()

	owned := make(map[actor.ServerRef]struct{})
	forest := make([]TreeNode, 0, len(refs))
	for name, ref := range refs {
		node := TreeNode{ID: name, Type: "supervisor"}
		children, err := supervisor.ListChildren(s.rt, ref)
		if err == nil {
			for _, c := range children {
				if c.Removed {
					continue
				}
				owned[c.Ref] = struct{}{}
				node.Children = append(node.Children, TreeNode{ID: c.ID, Type: "server"})
			}
		}
		forest = append(forest, node)
	}

	for _, info := range s.rt.Snapshot() {
		if _, ok := owned[info.Ref]; ok {
			continue
		}
		forest = append(forest, TreeNode{ID: info.Ref.String(), Type: "server"})
	}
	return forest
}

// Subscribe forwards to the lifecycle bus (§4.12) — the mechanism every
// dashboard subscription is ultimately built on.
func (s *Server) Subscribe(handler actor.Subscriber) (unsubscribe func()) {
	return s.rt.Bus().Subscribe(handler)
}

// StopProcess requests id's graceful shutdown (§6).
func (s *Server) StopProcess(id actor.ServerRef, reason string) error {
	if reason == "" {
		reason = actor.ReasonShutdown
	}
	actor.Stop(s.rt, id, reason)
	return nil
}
