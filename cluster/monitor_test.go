package cluster_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nodeforge/actorframe/actor"
	"github.com/nodeforge/actorframe/clustertest"
)

type watcherBehavior struct {
	actor.BaseBehavior
	target    actor.ServerRef
	monitorID *actor.MonitorID
}

func (w *watcherBehavior) Init(ctx *actor.Context, args []interface{}) (interface{}, error) {
	id, err := ctx.Monitor(w.target)
	if err == nil {
		*w.monitorID = id
	}
	return nil, err
}

// TestRemoteMonitorFiresProcessDownOnNodeLoss covers S5: a monitor
// installed from node1 on a process living on node2 fires
// process_down(_, noconnection) once node2 disappears.
func TestRemoteMonitorFiresProcessDownOnNodeLoss(t *testing.T) {
	c := clustertest.New(t, 2)
	watcherNode, targetNode := c.Nodes[0], c.Nodes[1]

	targetNode.Node.Behaviors().Register("echo", func() actor.Behavior { return actor.BaseBehavior{} })
	targetRef, err := watcherNode.Node.RemoteSpawn(targetNode.NodeID(), "echo", "", "")
	require.NoError(t, err)

	events := make(chan actor.Event, 4)
	unsubscribe := watcherNode.Runtime.Bus().Subscribe(func(ev actor.Event) {
		if ev.Kind == actor.EventProcessDown {
			events <- ev
		}
	})
	defer unsubscribe()

	var monID actor.MonitorID
	_, err = actor.Start(watcherNode.Runtime, &watcherBehavior{target: targetRef, monitorID: &monID}, actor.StartOptions{})
	require.NoError(t, err)

	c.Kill(t, 1)

	select {
	case ev := <-events:
		require.Equal(t, monID, ev.MonitorID)
		require.Equal(t, actor.ReasonNoConnection, ev.Reason)
	case <-time.After(3 * time.Second):
		t.Fatal("process_down was not delivered after node loss")
	}
}
