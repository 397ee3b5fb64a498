package actor

import (
	"fmt"
	"sync/atomic"
)

// ServerId is an opaque, process-wide unique identity assigned when a
// server is started. It carries no meaning outside the process table
// that issued it.
type ServerId uint64

// NodeID identifies a runtime instance within a cluster, conventionally
// "name@host:port". The empty NodeID always means "this node".
type NodeID string

// ServerRef is a non-owning handle to a server: a bare ServerId locally,
// or a {ServerId, NodeID} pair once it crosses the wire. Dangling refs
// are legal; operations against a dead target fail with NoProcess.
type ServerRef struct {
	ID   ServerId
	Node NodeID
}

// IsLocal reports whether ref names a server on this node.
func (r ServerRef) IsLocal() bool { return r.Node == "" }

func (r ServerRef) String() string {
	if r.IsLocal() {
		return fmt.Sprintf("<%d>", uint64(r.ID))
	}
	return fmt.Sprintf("<%d@%s>", uint64(r.ID), r.Node)
}

// Zero reports whether ref is the zero ServerRef, i.e. never assigned.
func (r ServerRef) Zero() bool { return r.ID == 0 && r.Node == "" }

var serverIdCounter uint64

func newServerId() ServerId {
	return ServerId(atomic.AddUint64(&serverIdCounter, 1))
}
