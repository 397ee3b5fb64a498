package cluster_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nodeforge/actorframe/actor"
	"github.com/nodeforge/actorframe/clustertest"
)

// TestGlobalRegistryConvergesOnConcurrentRegister covers S6: two nodes
// race to register the same name for distinct local refs. Once gossip
// quiesces, both resolve whereis('main') to the same entry; the loser's
// register either failed locally or its binding was overwritten.
func TestGlobalRegistryConvergesOnConcurrentRegister(t *testing.T) {
	c := clustertest.New(t, 2)

	ref0, err := actor.Start(c.Nodes[0].Runtime, actor.BaseBehavior{}, actor.StartOptions{})
	require.NoError(t, err)
	ref1, err := actor.Start(c.Nodes[1].Runtime, actor.BaseBehavior{}, actor.StartOptions{})
	require.NoError(t, err)

	done := make(chan struct{}, 2)
	go func() { _ = c.Nodes[0].Node.Register("main", ref0); done <- struct{}{} }()
	go func() { _ = c.Nodes[1].Node.Register("main", ref1); done <- struct{}{} }()
	<-done
	<-done

	require.Eventually(t, func() bool {
		w0, ok0 := c.Nodes[0].Node.Whereis("main")
		w1, ok1 := c.Nodes[1].Node.Whereis("main")
		return ok0 && ok1 && w0.ID == w1.ID
	}, 2*time.Second, 10*time.Millisecond, "global registry did not converge on a single winner")

	winner, _ := c.Nodes[0].Node.Whereis("main")
	require.Contains(t, []actor.ServerId{ref0.ID, ref1.ID}, winner.ID)
}

// TestGlobalRegistryConvergenceAcrossThreeNodes covers testable
// property 6: with three nodes concurrently registering the same name,
// the deterministic (registeredAt, priority) order still settles on
// exactly one winner everywhere once the message graph quiesces.
func TestGlobalRegistryConvergenceAcrossThreeNodes(t *testing.T) {
	c := clustertest.New(t, 3)

	refs := make([]actor.ServerRef, len(c.Nodes))
	for i, n := range c.Nodes {
		ref, err := actor.Start(n.Runtime, actor.BaseBehavior{}, actor.StartOptions{})
		require.NoError(t, err)
		refs[i] = ref
	}

	done := make(chan struct{}, len(c.Nodes))
	for i, n := range c.Nodes {
		i, n := i, n
		go func() { _ = n.Node.Register("shared", refs[i]); done <- struct{}{} }()
	}
	for range c.Nodes {
		<-done
	}

	require.Eventually(t, func() bool {
		var winner actor.ServerId
		for i, n := range c.Nodes {
			w, ok := n.Node.Whereis("shared")
			if !ok {
				return false
			}
			if i == 0 {
				winner = w.ID
			} else if w.ID != winner {
				return false
			}
		}
		return true
	}, 3*time.Second, 10*time.Millisecond, "registry did not converge across three nodes")
}
