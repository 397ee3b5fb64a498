package actor

import (
	"sync/atomic"
	"time"

	"github.com/nodeforge/actorframe/actorerr"
)

// processEntry is the process table's record for one live server. It is
// owned exclusively by the Registry goroutine; callers only ever see
// copies taken under the registry's request/reply protocol, mirroring
// the teacher's registrar returning a value-copy of *Process.
type processEntry struct {
	id        ServerId
	ref       ServerRef
	name      string
	server    *Server
	startedAt time.Time
}

// Info is a point-in-time, safe-to-share snapshot of a server's stats,
// used by Observer and by tests.
type Info struct {
	Ref          ServerRef
	Name         string
	Status       Status
	MessageCount uint64
	StartedAt    time.Time
	TrapExit     bool
}

type registerRequest struct {
	entry *processEntry
	reply chan error
}

type unregisterRequest struct {
	id ServerId
}

type lookupByNameRequest struct {
	name  string
	reply chan *processEntry
}

type lookupByIDRequest struct {
	id    ServerId
	reply chan *processEntry
}

type listRequest struct {
	reply chan []*processEntry
}

// Registry is the L1 local registry and process table: a total map
// name -> ServerRef (unique names) plus the set of all live servers on
// this node. It runs as a single goroutine owning its maps, generalized
// from the teacher's registrar.run() select loop.
type Registry struct {
	register   chan registerRequest
	unregister chan unregisterRequest
	lookupName chan lookupByNameRequest
	lookupID   chan lookupByIDRequest
	list       chan listRequest

	done chan struct{}
}

// NewRegistry starts a registry goroutine and returns a handle to it.
func NewRegistry() *Registry {
	r := &Registry{
		register:   make(chan registerRequest),
		unregister: make(chan unregisterRequest, 16),
		lookupName: make(chan lookupByNameRequest),
		lookupID:   make(chan lookupByIDRequest),
		list:       make(chan listRequest),
		done:       make(chan struct{}),
	}
	go r.run()
	return r
}

func (r *Registry) run() {
	names := make(map[string]ServerId)
	processes := make(map[ServerId]*processEntry)

	for {
		select {
		case req := <-r.register:
			e := req.entry
			if e.name != "" {
				if _, exists := names[e.name]; exists {
					req.reply <- actorerr.ErrNameInUse
					continue
				}
				names[e.name] = e.id
			}
			processes[e.id] = e
			req.reply <- nil

		case req := <-r.unregister:
			if e, ok := processes[req.id]; ok {
				delete(processes, req.id)
				if e.name != "" {
					delete(names, e.name)
				}
			}

		case req := <-r.lookupName:
			if id, ok := names[req.name]; ok {
				req.reply <- processes[id]
			} else {
				req.reply <- nil
			}

		case req := <-r.lookupID:
			req.reply <- processes[req.id]

		case req := <-r.list:
			out := make([]*processEntry, 0, len(processes))
			for _, e := range processes {
				out = append(out, e)
			}
			req.reply <- out

		case <-r.done:
			return
		}
	}
}

// Close stops the registry goroutine. Intended for test/teardown use;
// a running Runtime normally lives for the process lifetime.
func (r *Registry) Close() { close(r.done) }

func (r *Registry) add(e *processEntry) error {
	reply := make(chan error, 1)
	r.register <- registerRequest{entry: e, reply: reply}
	return <-reply
}

func (r *Registry) remove(id ServerId) {
	r.unregister <- unregisterRequest{id: id}
}

func (r *Registry) byName(name string) *processEntry {
	reply := make(chan *processEntry, 1)
	r.lookupName <- lookupByNameRequest{name: name, reply: reply}
	return <-reply
}

func (r *Registry) byID(id ServerId) *processEntry {
	reply := make(chan *processEntry, 1)
	r.lookupID <- lookupByIDRequest{id: id, reply: reply}
	return <-reply
}

func (r *Registry) all() []*processEntry {
	reply := make(chan []*processEntry, 1)
	r.list <- listRequest{reply: reply}
	return <-reply
}

// Lookup resolves a registered local name to a ServerRef (§4.3).
func (r *Registry) Lookup(name string) (ServerRef, bool) {
	e := r.byName(name)
	if e == nil {
		return ServerRef{}, false
	}
	return e.ref, true
}

// Snapshot returns Info for every live local server, used by Observer.
func (r *Registry) Snapshot() []Info {
	entries := r.all()
	out := make([]Info, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.server.Info())
	}
	return out
}

func atomicLoadStatus(v *uint32) Status {
	switch atomic.LoadUint32(v) {
	case uint32(statusStarting):
		return StatusStarting
	case uint32(statusRunning):
		return StatusRunning
	case uint32(statusTerminating):
		return StatusTerminating
	default:
		return StatusTerminated
	}
}
