package actor

import (
	"fmt"
	"testing"
	"time"

	"github.com/nodeforge/actorframe/actorerr"
	"github.com/stretchr/testify/require"
)

// accumulator implements S1: handleCast(n, state) -> state+[n]; a "get"
// call returns the accumulated slice.
type accumulator struct {
	BaseBehavior
}

func (accumulator) Init(ctx *Context, args []interface{}) (interface{}, error) {
	return []int{}, nil
}

func (accumulator) HandleCast(ctx *Context, msg interface{}, state interface{}) (interface{}, error) {
	n := msg.(int)
	return append(state.([]int), n), nil
}

func (accumulator) HandleCall(ctx *Context, msg interface{}, state interface{}) (interface{}, interface{}, error) {
	if msg == "get" {
		return state, state, nil
	}
	return nil, state, ErrUnhandledCall
}

func TestCastFIFOThenCallReturnsAccumulated(t *testing.T) {
	rt := NewRuntime()
	ref, err := Start(rt, accumulator{}, StartOptions{})
	require.NoError(t, err)

	for _, n := range []int{1, 2, 3, 4, 5} {
		require.NoError(t, Cast(rt, ref, n))
	}

	reply, err := Call(rt, ref, "get", time.Second)
	require.NoError(t, err)
	require.Equal(t, []int{1, 2, 3, 4, 5}, reply)
}

type slowBehavior struct {
	BaseBehavior
	release chan struct{}
}

func (b *slowBehavior) Init(ctx *Context, args []interface{}) (interface{}, error) { return nil, nil }

func (b *slowBehavior) HandleCall(ctx *Context, msg interface{}, state interface{}) (interface{}, interface{}, error) {
	<-b.release
	return "late", state, nil
}

func TestCallTimesOutWhileCalleeContinues(t *testing.T) {
	rt := NewRuntime()
	release := make(chan struct{})
	ref, err := Start(rt, &slowBehavior{release: release}, StartOptions{})
	require.NoError(t, err)

	start := time.Now()
	_, err = Call(rt, ref, "ping", 50*time.Millisecond)
	elapsed := time.Since(start)
	require.ErrorIs(t, err, actorerr.ErrTimeout)
	require.Less(t, elapsed, 200*time.Millisecond)

	close(release)
	// Give the callee a moment to actually finish; its late reply must
	// simply be discarded, never delivered or observed by this test.
	time.Sleep(20 * time.Millisecond)
}

func TestDuplicateNameFails(t *testing.T) {
	rt := NewRuntime()
	_, err := Start(rt, accumulator{}, StartOptions{Name: "dup"})
	require.NoError(t, err)

	_, err = Start(rt, accumulator{}, StartOptions{Name: "dup"})
	require.Error(t, err)
}

func TestStopRemovesNameAndFiresMonitor(t *testing.T) {
	rt := NewRuntime()
	target, err := Start(rt, accumulator{}, StartOptions{Name: "victim"})
	require.NoError(t, err)

	watcher, err := Start(rt, accumulator{}, StartOptions{})
	require.NoError(t, err)

	events := make(chan Event, 4)
	unsub := rt.Bus().Subscribe(func(ev Event) { events <- ev })
	defer unsub()

	ctx := &Context{server: rt.registry.byID(watcher.ID).server}
	_, err = ctx.Monitor(target)
	require.NoError(t, err)

	Stop(rt, target, ReasonNormal)

	deadline := time.After(time.Second)
	var sawDown bool
	for !sawDown {
		select {
		case ev := <-events:
			if ev.Kind == EventProcessDown && ev.Target == target {
				require.Equal(t, ReasonNormal, ev.Reason)
				sawDown = true
			}
		case <-deadline:
			t.Fatal("timed out waiting for process_down")
		}
	}

	_, ok := rt.Lookup("victim")
	require.False(t, ok)
}

func TestLinkPropagatesAbnormalExit(t *testing.T) {
	rt := NewRuntime()

	aRef, err := Start(rt, &errorOnCast{}, StartOptions{})
	require.NoError(t, err)
	bRef, err := Start(rt, &trapExitBehavior{}, StartOptions{TrapExit: true})
	require.NoError(t, err)

	aCtx := &Context{server: rt.registry.byID(aRef.ID).server}
	require.NoError(t, aCtx.Link(bRef))

	require.NoError(t, Cast(rt, aRef, "boom"))

	b := rt.registry.byID(bRef.ID).server
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(*b.state.(*[]LinkExit)) > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.NotEmpty(t, *b.state.(*[]LinkExit), "trap-exit peer must receive the linked server's abnormal exit")
}

type errorOnCast struct{ BaseBehavior }

func (errorOnCast) Init(ctx *Context, args []interface{}) (interface{}, error) { return nil, nil }
func (errorOnCast) HandleCast(ctx *Context, msg interface{}, state interface{}) (interface{}, error) {
	return nil, fmt.Errorf("boom")
}

type trapExitBehavior struct{ BaseBehavior }

func (trapExitBehavior) Init(ctx *Context, args []interface{}) (interface{}, error) {
	return &[]LinkExit{}, nil
}
func (trapExitBehavior) HandleCast(ctx *Context, msg interface{}, state interface{}) (interface{}, error) {
	if exit, ok := msg.(LinkExit); ok {
		list := state.(*[]LinkExit)
		*list = append(*list, exit)
	}
	return state, nil
}
