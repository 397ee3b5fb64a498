package supervisor

import (
	"fmt"
	"sync"
	"time"

	"github.com/nodeforge/actorframe/actor"
	"github.com/nodeforge/actorframe/actorerr"
)

// DefaultShutdownTimeout is used for any ChildSpec that leaves
// ShutdownTimeout at zero.
const DefaultShutdownTimeout = 5 * time.Second

type childRec struct {
	spec         ChildSpec
	ref          actor.ServerRef
	monitorID    actor.MonitorID
	restartCount int
	removed      bool
}

// supervisorState is the Init-allocated state threaded through every
// callback, mirroring the teacher's Process.state but shaped for the
// supervision domain.
type supervisorState struct {
	strategy  Strategy
	intensity *intensityTracker
	children  []*childRec

	mu           sync.Mutex
	monitorIndex map[actor.MonitorID]int
	pending      map[actor.MonitorID]chan string

	unsubscribe func()
}

func (st *supervisorState) findIndex(id string) int {
	for i, c := range st.children {
		if c.spec.ID == id && !c.removed {
			return i
		}
	}
	return -1
}

func (st *supervisorState) snapshot() []ChildInfo {
	out := make([]ChildInfo, 0, len(st.children))
	for _, c := range st.children {
		out = append(out, ChildInfo{
			ID: c.spec.ID, Ref: c.ref, Restart: c.spec.Restart,
			RestartCount: c.restartCount, Removed: c.removed,
		})
	}
	return out
}

// shutdownChild stops a running child and blocks until its
// process_down is observed or its ShutdownTimeout elapses, whichever
// comes first (§4.5's ordered, bounded shutdown). A no-op on an
// already-dead child.
func (st *supervisorState) shutdownChild(rt *actor.Runtime, c *childRec) string {
	if c.ref.Zero() {
		return actor.ReasonNormal
	}
	timeout := c.spec.ShutdownTimeout
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}

	ch := make(chan string, 1)
	st.mu.Lock()
	st.pending[c.monitorID] = ch
	st.mu.Unlock()

	actor.Stop(rt, c.ref, actor.ReasonShutdown)

	var reason string
	select {
	case reason = <-ch:
	case <-time.After(timeout):
		reason = actor.ReasonKilled
		st.mu.Lock()
		delete(st.pending, c.monitorID)
		st.mu.Unlock()
	}

	st.mu.Lock()
	delete(st.monitorIndex, c.monitorID)
	st.mu.Unlock()
	c.ref = actor.ServerRef{}
	return reason
}

type childDownMsg struct {
	monitorID actor.MonitorID
	target    actor.ServerRef
	reason    string
}

type (
	startChildReq     struct{ spec ChildSpec }
	terminateChildReq struct{ id string }
	restartChildReq   struct{ id string }
	listChildrenReq   struct{}
)

type sup struct{ actor.BaseBehavior }

// Start spawns a supervisor running spec: it starts every child in
// declaration order and, if any fails, tears down the ones already
// started (reverse order) and reports InitializationError — the same
// contract actor.Start gives a single server (§4.5).
func Start(rt *actor.Runtime, spec Spec, opts actor.StartOptions) (actor.ServerRef, error) {
	opts.InitArgs = []interface{}{spec}
	return actor.Start(rt, &sup{}, opts)
}

func (b *sup) Init(ctx *actor.Context, args []interface{}) (interface{}, error) {
	spec := args[0].(Spec)
	st := &supervisorState{
		strategy:     spec.Strategy,
		intensity:    newIntensityTracker(spec.Intensity),
		monitorIndex: make(map[actor.MonitorID]int),
		pending:      make(map[actor.MonitorID]chan string),
	}

	rt := ctx.Runtime()
	self := ctx.Self()

	for _, cs := range spec.Children {
		ref, err := cs.Start(rt)
		if err != nil {
			for i := len(st.children) - 1; i >= 0; i-- {
				st.shutdownChild(rt, st.children[i])
			}
			return nil, fmt.Errorf("start child %q: %w", cs.ID, err)
		}
		monID, _ := ctx.Monitor(ref)
		idx := len(st.children)
		st.children = append(st.children, &childRec{spec: cs, ref: ref, monitorID: monID})
		st.monitorIndex[monID] = idx
	}

	st.unsubscribe = rt.Bus().Subscribe(func(ev actor.Event) {
		if ev.Kind != actor.EventProcessDown {
			return
		}
		st.mu.Lock()
		if ch, ok := st.pending[ev.MonitorID]; ok {
			delete(st.pending, ev.MonitorID)
			st.mu.Unlock()
			ch <- ev.Reason
			return
		}
		_, tracked := st.monitorIndex[ev.MonitorID]
		st.mu.Unlock()
		if !tracked {
			return
		}
		actor.Cast(rt, self, childDownMsg{monitorID: ev.MonitorID, target: ev.Target, reason: ev.Reason})
	})

	return st, nil
}

func (b *sup) HandleCast(ctx *actor.Context, msg interface{}, state interface{}) (interface{}, error) {
	st := state.(*supervisorState)
	m, ok := msg.(childDownMsg)
	if !ok {
		return st, nil
	}
	return st, b.onChildDown(ctx, st, m)
}

func (b *sup) onChildDown(ctx *actor.Context, st *supervisorState, m childDownMsg) error {
	st.mu.Lock()
	idx, ok := st.monitorIndex[m.monitorID]
	if ok {
		delete(st.monitorIndex, m.monitorID)
	}
	st.mu.Unlock()
	if !ok {
		return nil // stale notification for a child we already reconciled
	}

	st.children[idx].ref = actor.ServerRef{}

	if !needsRestart(st.children[idx].spec.Restart, m.reason) {
		if st.children[idx].spec.Restart == Temporary {
			st.children[idx].removed = true
		}
		return nil
	}

	victims := affectedIndices(st, idx)
	rt := ctx.Runtime()

	// Stop the siblings dragged in by OneForAll/RestForOne, in reverse
	// declaration order; idx itself is already down.
	for i := len(victims) - 1; i >= 0; i-- {
		if victims[i] != idx {
			st.shutdownChild(rt, st.children[victims[i]])
		}
	}

	for _, i := range victims {
		if !st.intensity.allow(time.Now()) {
			return actorerr.ErrMaxRestartsExceeded
		}
		child := st.children[i]
		ref, err := child.spec.Start(rt)
		if err != nil {
			return fmt.Errorf("restart child %q: %w", child.spec.ID, err)
		}
		monID, _ := ctx.Monitor(ref)
		child.ref = ref
		child.monitorID = monID
		child.restartCount++
		st.mu.Lock()
		st.monitorIndex[monID] = i
		st.mu.Unlock()
		rt.Bus().Publish(actor.Event{
			Kind: actor.EventRestarted, Ref: ref, Name: child.spec.ID,
			Attempt: child.restartCount,
		})
	}
	return nil
}

func needsRestart(policy RestartPolicy, reason string) bool {
	switch policy {
	case Permanent:
		return true
	case Transient:
		return reason != actor.ReasonNormal && reason != actor.ReasonShutdown
	default: // Temporary
		return false
	}
}

// affectedIndices returns, in ascending declaration order, the indices
// that must restart together with idx under the supervisor's strategy
// (§4.5).
func affectedIndices(st *supervisorState, idx int) []int {
	switch st.strategy {
	case OneForAll:
		out := make([]int, 0, len(st.children))
		for i, c := range st.children {
			if !c.removed {
				out = append(out, i)
			}
		}
		return out
	case RestForOne:
		out := make([]int, 0, len(st.children)-idx)
		for i := idx; i < len(st.children); i++ {
			if !st.children[i].removed {
				out = append(out, i)
			}
		}
		return out
	default: // OneForOne
		return []int{idx}
	}
}

func (b *sup) HandleCall(ctx *actor.Context, msg interface{}, state interface{}) (interface{}, interface{}, error) {
	st := state.(*supervisorState)
	rt := ctx.Runtime()

	switch m := msg.(type) {
	case startChildReq:
		if st.findIndex(m.spec.ID) >= 0 {
			return nil, st, actorerr.ErrDuplicateChild
		}
		ref, err := m.spec.Start(rt)
		if err != nil {
			return nil, st, err
		}
		monID, _ := ctx.Monitor(ref)
		st.mu.Lock()
		idx := len(st.children)
		st.children = append(st.children, &childRec{spec: m.spec, ref: ref, monitorID: monID})
		st.monitorIndex[monID] = idx
		st.mu.Unlock()
		return ref, st, nil

	case terminateChildReq:
		idx := st.findIndex(m.id)
		if idx < 0 {
			return nil, st, actorerr.ErrChildNotFound
		}
		st.shutdownChild(rt, st.children[idx])
		st.children[idx].removed = true
		return nil, st, nil

	case restartChildReq:
		idx := st.findIndex(m.id)
		if idx < 0 {
			return nil, st, actorerr.ErrChildNotFound
		}
		child := st.children[idx]
		if !child.ref.Zero() {
			return nil, st, fmt.Errorf("child %q already running", m.id)
		}
		ref, err := child.spec.Start(rt)
		if err != nil {
			return nil, st, err
		}
		monID, _ := ctx.Monitor(ref)
		child.ref = ref
		child.monitorID = monID
		child.restartCount++
		st.mu.Lock()
		st.monitorIndex[monID] = idx
		st.mu.Unlock()
		return ref, st, nil

	case listChildrenReq:
		return st.snapshot(), st, nil
	}
	return nil, st, actor.ErrUnhandledCall
}

func (b *sup) Terminate(ctx *actor.Context, reason error, state interface{}) {
	st := state.(*supervisorState)
	st.unsubscribe()
	rt := ctx.Runtime()
	for i := len(st.children) - 1; i >= 0; i-- {
		st.shutdownChild(rt, st.children[i])
	}
}

// StartChild dynamically adds and starts a new child under a running
// supervisor (§4.5).
func StartChild(rt *actor.Runtime, supRef actor.ServerRef, spec ChildSpec) (actor.ServerRef, error) {
	reply, err := actor.Call(rt, supRef, startChildReq{spec: spec}, 0)
	if err != nil {
		return actor.ServerRef{}, err
	}
	return reply.(actor.ServerRef), nil
}

// TerminateChild stops one child and removes it from supervision.
func TerminateChild(rt *actor.Runtime, supRef actor.ServerRef, id string) error {
	_, err := actor.Call(rt, supRef, terminateChildReq{id: id}, 0)
	return err
}

// RestartChild starts again, by id, a supervised child whose process is
// not running (for example a Transient child that exited normally). A
// child stopped through TerminateChild is no longer supervised, so
// RestartChild fails for it with ChildNotFound.
func RestartChild(rt *actor.Runtime, supRef actor.ServerRef, id string) (actor.ServerRef, error) {
	reply, err := actor.Call(rt, supRef, restartChildReq{id: id}, 0)
	if err != nil {
		return actor.ServerRef{}, err
	}
	return reply.(actor.ServerRef), nil
}

// ListChildren returns a snapshot of every child's current state.
func ListChildren(rt *actor.Runtime, supRef actor.ServerRef) ([]ChildInfo, error) {
	reply, err := actor.Call(rt, supRef, listChildrenReq{}, 0)
	if err != nil {
		return nil, err
	}
	return reply.([]ChildInfo), nil
}
