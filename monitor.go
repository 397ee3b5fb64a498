package actor

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nodeforge/actorframe/actorerr"
)

// MonitorID identifies a single monitor registration (§3). It is opaque
// outside this package beyond string-equality and wire transport.
type MonitorID string

func newMonitorID() MonitorID { return MonitorID(uuid.NewString()) }

type monitorRecord struct {
	id      MonitorID
	watcher ServerRef           // set when delivery is via the lifecycle bus
	onDown  func(reason string) // set when delivery is a direct callback (remote monitor hook)
}

// Monitors is the L1 monitor table: unidirectional, at-most-once death
// watches (§4.4). It is guarded by a mutex rather than run as its own
// goroutine-actor, which §5 explicitly allows ("MAY use fine-grained
// locks or a single actor per data structure") — monitor bookkeeping is
// O(1) map work with no blocking I/O, so a short critical section is
// simpler than a channel protocol without sacrificing correctness.
type Monitors struct {
	mu       sync.Mutex
	byTarget map[ServerId]map[MonitorID]*monitorRecord
	byID     map[MonitorID]*monitorRecord
	targetOf map[MonitorID]ServerId
}

// NewMonitors constructs an empty monitor table.
func NewMonitors() *Monitors {
	return &Monitors{
		byTarget: make(map[ServerId]map[MonitorID]*monitorRecord),
		byID:     make(map[MonitorID]*monitorRecord),
		targetOf: make(map[MonitorID]ServerId),
	}
}

// monitor installs a bus-delivered monitor from watcher onto target
// (§4.4). A dead or unknown local target fires process_down with
// reason noproc immediately; a remote target is delegated to the
// Runtime's RemoteRouter.
func (m *Monitors) monitor(rt *Runtime, watcher ServerRef, target ServerRef) (MonitorID, error) {
	if !target.IsLocal() {
		if rt.remote == nil {
			return "", actorerr.ErrNoConnection
		}
		return rt.remote.RemoteMonitor(watcher, target)
	}

	id := newMonitorID()
	entry := rt.registry.byID(target.ID)
	if entry == nil || atomicLoadStatus(&entry.server.status) == StatusTerminated {
		rt.bus.Publish(Event{
			Kind: EventProcessDown, Ref: watcher, MonitorID: id,
			Target: target, Reason: ReasonNoProc,
		})
		return id, nil
	}

	rec := &monitorRecord{id: id, watcher: watcher}
	m.mu.Lock()
	if m.byTarget[target.ID] == nil {
		m.byTarget[target.ID] = make(map[MonitorID]*monitorRecord)
	}
	m.byTarget[target.ID][id] = rec
	m.byID[id] = rec
	m.targetOf[id] = target.ID
	m.mu.Unlock()
	return id, nil
}

// MonitorLocalWithCallback installs a monitor on a local target, firing
// onDown directly instead of publishing a lifecycle event. The
// distribution layer uses this to bridge a remote monitor_install onto
// the local process table (§4.11).
func (m *Monitors) MonitorLocalWithCallback(rt *Runtime, targetID ServerId, onDown func(reason string)) (MonitorID, bool) {
	id := newMonitorID()
	entry := rt.registry.byID(targetID)
	if entry == nil || atomicLoadStatus(&entry.server.status) == StatusTerminated {
		return id, false
	}
	rec := &monitorRecord{id: id, onDown: onDown}
	m.mu.Lock()
	if m.byTarget[targetID] == nil {
		m.byTarget[targetID] = make(map[MonitorID]*monitorRecord)
	}
	m.byTarget[targetID][id] = rec
	m.byID[id] = rec
	m.targetOf[id] = targetID
	m.mu.Unlock()
	return id, true
}

// demonitor cancels a pending monitor. A monitor on a remote target is
// never recorded in this table (monitor delegates it entirely to the
// RemoteRouter), so an id not found here is routed to
// rt.remote.RemoteDemonitor instead; a local id is simply dropped
// (§4.11).
func (m *Monitors) demonitor(rt *Runtime, id MonitorID) {
	m.mu.Lock()
	_, ok := m.byID[id]
	if !ok {
		m.mu.Unlock()
		if rt.remote != nil {
			rt.remote.RemoteDemonitor(id)
		}
		return
	}
	targetID := m.targetOf[id]
	delete(m.byID, id)
	delete(m.targetOf, id)
	if set, ok := m.byTarget[targetID]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(m.byTarget, targetID)
		}
	}
	m.mu.Unlock()
}

// notifyDown fires every monitor registered against target exactly
// once, then forgets them (§4.4, §8 property 5). Called by Server on
// termination.
func (m *Monitors) notifyDown(rt *Runtime, target ServerRef, reason string) {
	m.mu.Lock()
	set := m.byTarget[target.ID]
	delete(m.byTarget, target.ID)
	for id := range set {
		delete(m.byID, id)
		delete(m.targetOf, id)
	}
	m.mu.Unlock()

	for id, rec := range set {
		if rec.onDown != nil {
			rec.onDown(reason)
			continue
		}
		rt.bus.Publish(Event{
			Kind: EventProcessDown, Ref: rec.watcher, MonitorID: id,
			Target: target, Reason: reason,
		})
	}
}

// linkSet tracks the local peers symmetrically linked to one server
// (§4.4). Guarded the same way as Monitors, for the same reason.
type linkSet struct {
	mu    sync.Mutex
	peers map[ServerId]struct{}
}

func newLinkSet() *linkSet {
	return &linkSet{peers: make(map[ServerId]struct{})}
}

func (l *linkSet) add(id ServerId) {
	l.mu.Lock()
	l.peers[id] = struct{}{}
	l.mu.Unlock()
}

func (l *linkSet) remove(id ServerId) {
	l.mu.Lock()
	delete(l.peers, id)
	l.mu.Unlock()
}

func (l *linkSet) snapshot() []ServerId {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ServerId, 0, len(l.peers))
	for id := range l.peers {
		out = append(out, id)
	}
	return out
}

// propagate enqueues a LinkExit envelope into every linked peer still
// registered, and severs the link on both sides (§4.4).
func (l *linkSet) propagate(rt *Runtime, from ServerRef, reason string) {
	for _, peerID := range l.snapshot() {
		l.remove(peerID)
		entry := rt.registry.byID(peerID)
		if entry == nil {
			continue
		}
		entry.server.links.remove(from.ID)
		env := envelope{kind: envLinkExit, from: from, reason: reason}
		select {
		case entry.server.mailbox <- env:
		default:
			// Block up to the deadline instead of spawning a goroutine,
			// which could deliver this exit out of order relative to a
			// cast already queued behind it by the same sender.
			select {
			case entry.server.mailbox <- env:
			case <-time.After(DefaultBackpressureTimeout):
			}
		}
	}
}

// linkTwo establishes a symmetric link between two local servers
// (§4.4). Both refs must already be live local servers.
func (rt *Runtime) linkTwo(a, b ServerRef) error {
	if !a.IsLocal() || !b.IsLocal() {
		return actorerr.ErrNoConnection
	}
	ea := rt.registry.byID(a.ID)
	eb := rt.registry.byID(b.ID)
	if ea == nil || eb == nil {
		return actorerr.ErrNoProcess
	}
	ea.server.links.add(b.ID)
	eb.server.links.add(a.ID)
	return nil
}

// unlinkTwo removes a previously established link, if any.
func (rt *Runtime) unlinkTwo(a, b ServerRef) {
	if ea := rt.registry.byID(a.ID); ea != nil {
		ea.server.links.remove(b.ID)
	}
	if eb := rt.registry.byID(b.ID); eb != nil {
		eb.server.links.remove(a.ID)
	}
}
