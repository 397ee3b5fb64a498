package supervisor

import (
	"fmt"
	"testing"
	"time"

	"github.com/nodeforge/actorframe/actor"
	"github.com/stretchr/testify/require"
)

// worker is a minimal behavior that exits abnormally the first time it
// receives "die", letting tests drive restart scenarios deterministically.
type worker struct {
	actor.BaseBehavior
	onStart func()
}

func (w *worker) Init(ctx *actor.Context, args []interface{}) (interface{}, error) {
	if w.onStart != nil {
		w.onStart()
	}
	return 0, nil
}

func (w *worker) HandleCast(ctx *actor.Context, msg interface{}, state interface{}) (interface{}, error) {
	if msg == "die" {
		return state, fmt.Errorf("boom")
	}
	return state, nil
}

func childSpec(id string, restart RestartPolicy, starts *int) ChildSpec {
	return ChildSpec{
		ID:      id,
		Restart: restart,
		Start: func(rt *actor.Runtime) (actor.ServerRef, error) {
			w := &worker{onStart: func() { *starts++ }}
			return actor.Start(rt, w, actor.StartOptions{})
		},
	}
}

// TestOneForOneRestartsOnlyFailedChild covers S2: a permanent child
// crashes and only that child is restarted, siblings untouched.
func TestOneForOneRestartsOnlyFailedChild(t *testing.T) {
	rt := actor.NewRuntime()
	var startsA, startsB int

	specA := childSpec("a", Permanent, &startsA)
	specB := childSpec("b", Permanent, &startsB)

	supRef, err := Start(rt, Spec{
		Strategy:  OneForOne,
		Children:  []ChildSpec{specA, specB},
		Intensity: Intensity{MaxRestarts: 5, Within: time.Second},
	}, actor.StartOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, startsA)
	require.Equal(t, 1, startsB)

	children, err := ListChildren(rt, supRef)
	require.NoError(t, err)
	require.NoError(t, actor.Cast(rt, children[0].Ref, "die"))

	require.Eventually(t, func() bool {
		return startsA == 2
	}, time.Second, 5*time.Millisecond)
	require.Equal(t, 1, startsB, "sibling must not restart under one_for_one")
}

// TestOneForAllRestartsEverySibling covers S3.
func TestOneForAllRestartsEverySibling(t *testing.T) {
	rt := actor.NewRuntime()
	var startsA, startsB int

	specA := childSpec("a", Permanent, &startsA)
	specB := childSpec("b", Permanent, &startsB)

	supRef, err := Start(rt, Spec{
		Strategy:  OneForAll,
		Children:  []ChildSpec{specA, specB},
		Intensity: Intensity{MaxRestarts: 5, Within: time.Second},
	}, actor.StartOptions{})
	require.NoError(t, err)

	children, err := ListChildren(rt, supRef)
	require.NoError(t, err)
	require.NoError(t, actor.Cast(rt, children[0].Ref, "die"))

	require.Eventually(t, func() bool {
		return startsA == 2 && startsB == 2
	}, time.Second, 5*time.Millisecond, "one_for_all must restart every sibling")
}

// TestIntensityThrottleStopsSupervisor covers property 4: repeated
// crashes past the intensity window bring the supervisor itself down.
func TestIntensityThrottleStopsSupervisor(t *testing.T) {
	rt := actor.NewRuntime()
	var starts int
	spec := childSpec("flaky", Permanent, &starts)

	supRef, err := Start(rt, Spec{
		Strategy:  OneForOne,
		Children:  []ChildSpec{spec},
		Intensity: Intensity{MaxRestarts: 2, Within: time.Minute},
	}, actor.StartOptions{})
	require.NoError(t, err)

	events := make(chan actor.Event, 8)
	unsub := rt.Bus().Subscribe(func(ev actor.Event) { events <- ev })
	defer unsub()

	for i := 0; i < 3; i++ {
		children, err := ListChildren(rt, supRef)
		if err != nil {
			break // supervisor already gone
		}
		_ = actor.Cast(rt, children[0].Ref, "die")
		time.Sleep(30 * time.Millisecond)
	}

	require.Eventually(t, func() bool {
		_, ok := rt.ByID(supRef.ID)
		return !ok
	}, time.Second, 10*time.Millisecond, "supervisor must exit once restart intensity is exceeded")
}

// TestTemporaryChildIsNotRestarted covers the Temporary restart policy.
func TestTemporaryChildIsNotRestarted(t *testing.T) {
	rt := actor.NewRuntime()
	var starts int
	spec := childSpec("scratch", Temporary, &starts)

	supRef, err := Start(rt, Spec{
		Strategy:  OneForOne,
		Children:  []ChildSpec{spec},
		Intensity: Intensity{MaxRestarts: 5, Within: time.Second},
	}, actor.StartOptions{})
	require.NoError(t, err)

	children, err := ListChildren(rt, supRef)
	require.NoError(t, err)
	require.NoError(t, actor.Cast(rt, children[0].Ref, "die"))

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 1, starts, "temporary child must not be restarted")

	children, err = ListChildren(rt, supRef)
	require.NoError(t, err)
	require.True(t, children[0].Removed)
}

// TestStartChildAndTerminateChild exercises the dynamic child API.
func TestStartChildAndTerminateChild(t *testing.T) {
	rt := actor.NewRuntime()
	supRef, err := Start(rt, Spec{
		Strategy:  OneForOne,
		Intensity: Intensity{MaxRestarts: 5, Within: time.Second},
	}, actor.StartOptions{})
	require.NoError(t, err)

	var starts int
	ref, err := StartChild(rt, supRef, childSpec("dyn", Transient, &starts))
	require.NoError(t, err)
	require.False(t, ref.Zero())

	_, err = StartChild(rt, supRef, childSpec("dyn", Transient, &starts))
	require.Error(t, err)

	require.NoError(t, TerminateChild(rt, supRef, "dyn"))
	require.Error(t, TerminateChild(rt, supRef, "dyn"))
}
