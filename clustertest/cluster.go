// Package clustertest provides in-process, loopback-TCP test clusters
// for exercising package cluster's distribution layer without any
// external process or network dependency. It exists only to back
// cluster/*_test.go's end-to-end scenarios (S4-S6) and is not part of
// the framework's public surface.
package clustertest

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nodeforge/actorframe/actor"
	"github.com/nodeforge/actorframe/cluster"
)

// Node bundles one in-process cluster.Node with the actor.Runtime it is
// bound to and the Config it was started with.
type Node struct {
	Runtime *actor.Runtime
	Node    *cluster.Node
	Config  *cluster.Config
}

// NodeID is this node's wire identity, the string every ServerRef.Node
// and every cluster.Node.RemoteSpawn target address uses.
func (n *Node) NodeID() string { return n.Config.NodeID() }

// Cluster is a set of Nodes dialed into a full mesh over 127.0.0.1.
type Cluster struct {
	Nodes []*Node

	cancel context.CancelFunc
}

// New starts count nodes on freshly allocated loopback ports, each
// seeded to dial every node started before it, and blocks until the
// mesh converges (every node sees count-1 connected peers) or the test
// fails. Every node is stopped via t.Cleanup, in reverse start order.
func New(t *testing.T, count int) *Cluster {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Cluster{cancel: cancel}

	ports := make([]int, count)
	for i := range ports {
		ports[i] = freePort(t)
	}

	for i := 0; i < count; i++ {
		cfg := cluster.DefaultConfig()
		cfg.NodeName = fmt.Sprintf("node%d", i)
		cfg.Host = "127.0.0.1"
		cfg.Port = ports[i]

		// Fast timing so convergence and failure-detection tests don't
		// have to wait out the production defaults (§4.7 default
		// heartbeatIntervalMs is seconds-scale).
		cfg.HeartbeatInterval = 30 * time.Millisecond
		cfg.HeartbeatMissThreshold = 3
		cfg.ReconnectDelay = 10 * time.Millisecond
		cfg.MaxReconnectDelay = 100 * time.Millisecond

		for j := 0; j < i; j++ {
			cfg.Seeds = append(cfg.Seeds, fmt.Sprintf("127.0.0.1:%d", ports[j]))
		}

		rt := actor.NewRuntime()
		node := cluster.NewNode(cfg, rt)
		require.NoError(t, node.Start(ctx), "start %s", cfg.NodeID())
		c.Nodes = append(c.Nodes, &Node{Runtime: rt, Node: node, Config: cfg})
	}

	t.Cleanup(func() {
		cancel()
		for i := len(c.Nodes) - 1; i >= 0; i-- {
			_ = c.Nodes[i].Node.Stop()
		}
	})

	c.AwaitFullMesh(t, 5*time.Second)
	return c
}

// AwaitFullMesh blocks until every still-running node in c reports
// len(c.Nodes)-1 connected peers, failing the test on timeout.
func (c *Cluster) AwaitFullMesh(t *testing.T, timeout time.Duration) {
	t.Helper()
	want := len(c.Nodes) - 1
	require.Eventually(t, func() bool {
		for _, n := range c.Nodes {
			if n.Node.ConnectedNodeCount() < want {
				return false
			}
		}
		return true
	}, timeout, 5*time.Millisecond, "cluster of %d did not converge to a full mesh", len(c.Nodes))
}

// Kill stops node i's transport and membership goroutines without
// touching the rest of the cluster, simulating that node vanishing
// (§8 S5's "kill Node2").
func (c *Cluster) Kill(t *testing.T, i int) {
	t.Helper()
	require.NoError(t, c.Nodes[i].Node.Stop())
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}
