package actor

import "time"

// RemoteRouter is implemented by the distribution layer (package
// cluster) and injected into a Runtime so that L1 operations against a
// non-local ServerRef transparently cross the network (§4.8, §4.11).
// A Runtime with no RemoteRouter is a standalone, single-node actor
// system: operations against remote refs fail with NoConnection.
type RemoteRouter interface {
	RemoteCall(ref ServerRef, msg interface{}, timeout time.Duration) (interface{}, error)
	RemoteCast(ref ServerRef, msg interface{}) error
	RemoteMonitor(watcher ServerRef, target ServerRef) (MonitorID, error)
	RemoteDemonitor(id MonitorID)
}

// Runtime bundles the L1 subsystems a set of servers on this node
// share: the process table/registry, the monitor/link graph, and the
// lifecycle bus. It is the generalization of the teacher's *Node: the
// teacher wires one registrar per Node; here the Runtime is that
// wiring point, with distribution injected rather than hard-coded.
type Runtime struct {
	registry *Registry
	monitors *Monitors
	bus      *Bus
	remote   RemoteRouter
}

// NewRuntime constructs a standalone (non-distributed) Runtime.
func NewRuntime() *Runtime {
	return &Runtime{
		registry: NewRegistry(),
		monitors: NewMonitors(),
		bus:      NewBus(),
	}
}

// SetRemoteRouter wires a distribution layer into this Runtime. Package
// cluster calls this once, after constructing its Node, to make remote
// refs resolvable from Call/Cast/Monitor.
func (rt *Runtime) SetRemoteRouter(r RemoteRouter) { rt.remote = r }

// Registry exposes the local registry for name lookups (§4.3).
func (rt *Runtime) Registry() *Registry { return rt.registry }

// Bus exposes the lifecycle event bus for subscribers (§4.12).
func (rt *Runtime) Bus() *Bus { return rt.bus }

// Lookup resolves to a local server by name (§4.3).
func (rt *Runtime) Lookup(name string) (ServerRef, bool) { return rt.registry.Lookup(name) }

// Snapshot returns Info for every live local server (§6 Observer).
func (rt *Runtime) Snapshot() []Info { return rt.registry.Snapshot() }

// InstallRemoteMonitor is called by the distribution layer on the
// target's node when a monitor_install frame arrives (§4.11): it
// bridges a remote watcher onto the local monitor table via a
// callback that the caller (cluster.Node) uses to send process_down
// back over the wire.
func (rt *Runtime) InstallRemoteMonitor(targetID ServerId, onDown func(reason string)) (MonitorID, bool) {
	return rt.monitors.MonitorLocalWithCallback(rt, targetID, onDown)
}

// CancelRemoteMonitor removes a monitor installed via
// InstallRemoteMonitor, used when a demonitor/cancellation frame
// arrives (§4.11).
func (rt *Runtime) CancelRemoteMonitor(id MonitorID) { rt.monitors.demonitor(rt, id) }

// ByID exposes the process table lookup the distribution layer needs to
// resolve an incoming "call"/"cast"/"spawn" frame's target locally.
func (rt *Runtime) ByID(id ServerId) (ServerRef, bool) {
	e := rt.registry.byID(id)
	if e == nil {
		return ServerRef{}, false
	}
	return e.ref, true
}
