package cluster

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker/v2"

	"github.com/nodeforge/actorframe/actor"
)

// breakerFor returns (creating if needed) the circuit breaker guarding
// dials to addr (§4.6's "dial reconnect"): repeated failures trip it so
// a dead peer is probed periodically instead of hammered continuously.
func (n *Node) breakerFor(addr string) *gobreaker.CircuitBreaker[*conn] {
	n.mu.Lock()
	defer n.mu.Unlock()
	if b, ok := n.breakers[addr]; ok {
		return b
	}
	b := gobreaker.NewCircuitBreaker[*conn](gobreaker.Settings{
		Name:        "dial:" + addr,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     n.cfg.MaxReconnectDelay,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})
	n.breakers[addr] = b
	return b
}

// maintainPeer dials addr, and on any disconnect, keeps retrying with
// exponential backoff (bounded by a circuit breaker) until ctx is
// cancelled (§4.6).
func (n *Node) maintainPeer(ctx context.Context, addr string) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = n.cfg.ReconnectDelay
	bo.MaxInterval = n.cfg.MaxReconnectDelay
	bo.Multiplier = n.cfg.ReconnectBackoffMultiplier
	bo.RandomizationFactor = 0.2 // ±20% jitter per §4.6

	breaker := n.breakerFor(addr)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		var peerHS handshakeMsg
		c, err := breaker.Execute(func() (*conn, error) {
			c, hs, err := n.dialPeer(addr)
			peerHS = hs
			return c, err
		})
		if err != nil {
			delay := bo.NextBackOff()
			if delay == backoff.Stop {
				delay = n.cfg.MaxReconnectDelay
			}
			n.log.Warn().Str("addr", addr).Err(err).Dur("retryIn", delay).Msg("dial failed")
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
				continue
			}
		}
		bo.Reset()

		p := n.registerPeer(peerHS.NodeID, addr, c)
		n.log.Info().Str("peer", p.nodeID).Msg("peer connected (outbound)")
		n.servePeer(ctx, p)
		// servePeer returns once the connection drops; loop to redial.
	}
}

// servePeer reads frames from p until the connection fails, dispatching
// each by tag, and runs the heartbeat ticker alongside.
func (n *Node) servePeer(ctx context.Context, p *peer) {
	done := make(chan struct{})
	go n.heartbeatLoop(ctx, p, done)
	defer close(done)

	p.mu.Lock()
	c := p.conn
	p.mu.Unlock()
	if c == nil {
		return
	}

	for {
		t, err := c.recv()
		if err != nil {
			n.markDisconnected(p, "disconnect")
			return
		}
		p.mu.Lock()
		p.lastHeartbeat = time.Now()
		p.missedHeartbeat = 0
		p.mu.Unlock()

		n.dispatchInbound(p, t)
	}
}

func (n *Node) heartbeatLoop(ctx context.Context, p *peer, done chan struct{}) {
	ticker := time.NewTicker(n.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-done:
			return
		case <-ticker.C:
			p.mu.Lock()
			c := p.conn
			p.missedHeartbeat++
			missed := p.missedHeartbeat
			p.mu.Unlock()
			if missed >= n.cfg.HeartbeatMissThreshold {
				n.markDisconnected(p, "timeout")
				return
			}
			if c != nil {
				_ = c.send(heartbeatMsg{NodeID: n.cfg.NodeID(), EpochMs: time.Now().UnixMilli()}.toTerm())
			}
		}
	}
}

// dispatchInbound routes one decoded frame to the handler for its tag.
func (n *Node) dispatchInbound(p *peer, t interface{}) {
	tag, ok := tagOf(t)
	if !ok {
		return
	}
	switch tag {
	case tagHeartbeat:
		// lastHeartbeat/missedHeartbeat already updated by servePeer.
	case tagPeers:
		n.onPeers(peersFromTerm(t))
	case tagCall:
		n.handleInboundCall(p, callFromTerm(t))
	case tagCallReply:
		n.handleInboundCallReply(callReplyFromTerm(t))
	case tagCast:
		n.handleInboundCast(castFromTerm(t))
	case tagSpawn:
		n.handleInboundSpawn(p, spawnFromTerm(t))
	case tagSpawnReply:
		n.handleInboundSpawnReply(spawnReplyFromTerm(t))
	case tagMonitorInstall:
		n.handleInboundMonitorInstall(p, monitorInstallFromTerm(t))
	case tagMonitorReply:
		n.handleInboundMonitorReply(monitorReplyFromTerm(t))
	case tagMonitorCancel:
		n.handleInboundMonitorCancel(monitorCancelFromTerm(t))
	case tagProcessDown:
		n.handleInboundProcessDown(processDownFromTerm(t))
	case tagRegistrySync:
		n.registry.onSync(p.nodeID, registrySyncFromTerm(t))
	case tagUnregister:
		n.registry.onUnregister(unregisterFromTerm(t))
	default:
		n.log.Warn().Str("tag", tag).Msg("unknown inbound frame")
	}
}

// onPeers dials any gossiped peer address we are not already connected
// to (§4.7's "each new peer id triggers a dial if not already connected").
func (n *Node) onPeers(addrs []string) {
	for _, addr := range addrs {
		n.mu.Lock()
		known := false
		for _, p := range n.peers {
			if p.addr == addr {
				known = true
				break
			}
		}
		n.mu.Unlock()
		if known {
			continue
		}
		addr := addr
		n.Go(func() error { n.maintainPeer(n.egCtx, addr); return nil })
	}
}

// onPeerDown fans a peer's disappearance out to the local subsystems
// that care: process-down for every remote monitor that pointed at it,
// and eviction of the global registry entries it owned (§4.10, §4.11).
func (n *Node) onPeerDown(nodeID, reason string) {
	n.remoteMonitorsMu.Lock()
	var toFire []actor.MonitorID
	for monID, owner := range n.remoteMonitors {
		if owner == nodeID {
			toFire = append(toFire, monID)
			delete(n.remoteMonitors, monID)
		}
	}
	n.remoteMonitorsMu.Unlock()

	for _, monID := range toFire {
		n.rt.Bus().Publish(actor.Event{
			Kind: actor.EventProcessDown, MonitorID: monID,
			Reason: actor.ReasonNoConnection,
		})
	}

	n.registry.evictNode(nodeID)
	n.rt.Bus().Publish(actor.Event{Kind: actor.EventTerminated, Name: "node:" + nodeID, Reason: reason})
}
