package cluster_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nodeforge/actorframe/actor"
	"github.com/nodeforge/actorframe/actorerr"
	"github.com/nodeforge/actorframe/clustertest"
)

type blockingBehavior struct {
	actor.BaseBehavior
	release chan struct{}
}

func (b *blockingBehavior) HandleCall(ctx *actor.Context, msg interface{}, state interface{}) (interface{}, interface{}, error) {
	<-b.release
	return "too-late", state, nil
}

// TestRemoteCallTimesOutWhenCalleeNeverReplies covers S4: node1 calls a
// server on node2 whose handleCall never returns; the call resolves
// with Timeout close to the requested deadline rather than hanging or
// failing early.
func TestRemoteCallTimesOutWhenCalleeNeverReplies(t *testing.T) {
	c := clustertest.New(t, 2)
	caller, callee := c.Nodes[0], c.Nodes[1]

	release := make(chan struct{})
	defer close(release)
	callee.Node.Behaviors().Register("blocker", func() actor.Behavior {
		return &blockingBehavior{release: release}
	})

	ref, err := caller.Node.RemoteSpawn(callee.NodeID(), "blocker", "", "")
	require.NoError(t, err)

	start := time.Now()
	_, err = actor.Call(caller.Runtime, ref, "ping", 200*time.Millisecond)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, actorerr.ErrTimeout)
	require.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	require.Less(t, elapsed, time.Second, "timeout fired far later than the requested deadline")
}
