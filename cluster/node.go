// Package cluster implements the L3 distribution layer: TCP transport
// with HMAC-framed handshakes, gossip membership with heartbeats,
// correlated remote call/cast, a behavior registry for remote spawn, a
// gossiped global name registry with deterministic conflict
// resolution, and cross-node monitors. A Node is the generalization of
// the teacher's single-process registrar/Process pair to many
// cooperating OS processes connected over loopback or a real network.
package cluster

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dchest/siphash"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/errgroup"

	"github.com/nodeforge/actorframe/actor"
	"github.com/nodeforge/actorframe/actorerr"
	"github.com/nodeforge/actorframe/internal/logging"
	"github.com/nodeforge/actorframe/wire"
)

// peerStatus mirrors NodeInfo.status (§3).
type peerStatus string

const (
	peerConnecting   peerStatus = "connecting"
	peerConnected    peerStatus = "connected"
	peerDisconnected peerStatus = "disconnected"
)

type peer struct {
	nodeID string
	addr   string

	mu              sync.Mutex
	conn            *conn
	status          peerStatus
	lastHeartbeat   time.Time
	missedHeartbeat int
}

// Node is the distribution-layer handle bound to one actor.Runtime. It
// implements actor.RemoteRouter so that L1 Call/Cast/Monitor against a
// non-local ServerRef transparently cross the network.
type Node struct {
	cfg *Config
	rt  *actor.Runtime
	log zerolog.Logger

	listener net.Listener

	mu       sync.Mutex
	peers    map[string]*peer // nodeID -> peer
	breakers map[string]*gobreaker.CircuitBreaker[*conn]

	pendingCallsMu sync.Mutex
	pendingCalls   map[string]chan callReplyMsg

	pendingSpawnMu sync.Mutex
	pendingSpawns  map[string]chan spawnReplyMsg

	pendingMonitorMu sync.Mutex
	pendingMonitors  map[string]chan monitorReplyMsg

	remoteMonitorsMu sync.Mutex
	remoteMonitors   map[actor.MonitorID]string // monitorId -> node that owns the target

	inboundMonitorsMu sync.Mutex
	inboundMonitors   map[actor.MonitorID]string // monitorId -> node whose watcher asked for this target

	behaviors *BehaviorRegistry
	registry  *globalRegistry

	eg     *errgroup.Group
	egCtx  context.Context
	cancel context.CancelFunc
}

// NewNode constructs a Node bound to rt and wires it as rt's
// RemoteRouter. It does not yet listen or dial; call Start for that.
func NewNode(cfg *Config, rt *actor.Runtime) *Node {
	n := &Node{
		cfg:             cfg,
		rt:              rt,
		log:             logging.Component("cluster.node"),
		peers:           make(map[string]*peer),
		breakers:        make(map[string]*gobreaker.CircuitBreaker[*conn]),
		pendingCalls:    make(map[string]chan callReplyMsg),
		pendingSpawns:   make(map[string]chan spawnReplyMsg),
		pendingMonitors: make(map[string]chan monitorReplyMsg),
		remoteMonitors:  make(map[actor.MonitorID]string),
		inboundMonitors: make(map[actor.MonitorID]string),
		behaviors:       NewBehaviorRegistry(),
	}
	n.registry = newGlobalRegistry(n)
	rt.SetRemoteRouter(n)
	return n
}

// Behaviors exposes the behavior registry for Register calls (§4.9).
func (n *Node) Behaviors() *BehaviorRegistry { return n.behaviors }

// Register claims name for ref in the cluster-wide global registry,
// gossiping the binding to every connected peer (§4.10). It fails with
// ErrGlobalNameConflict if a higher-priority entry already holds name.
func (n *Node) Register(name string, ref actor.ServerRef) error {
	return n.registry.register(name, ref)
}

// Unregister drops name from the global registry if this node owns it,
// gossiping the removal (§4.10).
func (n *Node) Unregister(name string) {
	n.registry.unregister(name)
}

// Whereis resolves a globally registered name to its owning server's
// ref, wherever in the cluster it lives (§4.10).
func (n *Node) Whereis(name string) (actor.ServerRef, bool) {
	return n.registry.whereis(name)
}

// ConnectedNodeCount reports how many peers currently hold a live
// connection, satisfying observer.NodeLister.
func (n *Node) ConnectedNodeCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	count := 0
	for _, p := range n.peers {
		p.mu.Lock()
		if p.status == peerConnected {
			count++
		}
		p.mu.Unlock()
	}
	return count
}

// Go enlists fn in the same errgroup Start is using, so callers (e.g.
// package observer's HTTP server) start and stop alongside transport
// and membership.
func (n *Node) Go(fn func() error) {
	if n.eg != nil {
		n.eg.Go(fn)
	}
}

// Context returns the group context bound to this node's lifetime,
// cancelled on Stop.
func (n *Node) Context() context.Context { return n.egCtx }

// Start begins listening for inbound peers and dialing configured
// seeds, running both concurrently via errgroup (mirrors the
// concurrent-startup idiom the example corpus uses in its server
// main.go files).
func (n *Node) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port))
	if err != nil {
		return fmt.Errorf("cluster: listen: %w", err)
	}
	n.listener = ln

	egCtx, cancel := context.WithCancel(ctx)
	eg, egCtx := errgroup.WithContext(egCtx)
	n.eg = eg
	n.egCtx = egCtx
	n.cancel = cancel

	eg.Go(func() error { return n.acceptLoop(egCtx) })
	for _, seed := range n.cfg.Seeds {
		seed := seed
		eg.Go(func() error { n.maintainPeer(egCtx, seed); return nil })
	}
	n.log.Info().Str("node", n.cfg.NodeID()).Str("addr", ln.Addr().String()).Msg("cluster node started")
	return nil
}

// Stop tears down the listener and every peer connection, then waits
// for every errgroup goroutine (transport, membership, and anything
// enlisted via Go) to return.
func (n *Node) Stop() error {
	if n.cancel != nil {
		n.cancel()
	}
	if n.listener != nil {
		n.listener.Close()
	}
	n.mu.Lock()
	for _, p := range n.peers {
		p.mu.Lock()
		if p.conn != nil {
			p.conn.close()
		}
		p.mu.Unlock()
	}
	n.mu.Unlock()

	if n.eg == nil {
		return nil
	}
	if err := n.eg.Wait(); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

func (n *Node) acceptLoop(ctx context.Context) error {
	for {
		nc, err := n.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go n.handleAccepted(ctx, nc)
	}
}

func (n *Node) handleAccepted(ctx context.Context, nc net.Conn) {
	c := newConn(nc)
	hs, err := n.acceptHandshake(c)
	if err != nil {
		n.log.Warn().Err(err).Msg("inbound handshake failed")
		c.close()
		return
	}
	p := n.registerPeer(hs.NodeID, fmt.Sprintf("%s:%d", hs.Host, hs.Port), c)
	n.log.Info().Str("peer", p.nodeID).Msg("peer connected (inbound)")
	n.servePeer(ctx, p)
}

// registerPeer installs or replaces the connection for nodeID.
func (n *Node) registerPeer(nodeID, addr string, c *conn) *peer {
	n.mu.Lock()
	p, ok := n.peers[nodeID]
	if !ok {
		p = &peer{nodeID: nodeID, addr: addr}
		n.peers[nodeID] = p
	}
	n.mu.Unlock()

	p.mu.Lock()
	p.conn = c
	p.status = peerConnected
	p.lastHeartbeat = time.Now()
	p.missedHeartbeat = 0
	p.mu.Unlock()

	n.rt.Bus().Publish(actor.Event{Kind: actor.EventStarted, Name: "node:" + nodeID})

	if n.registry != nil {
		n.registry.fullSyncTo(nodeID)
	}
	n.gossipPeersTo(nodeID)
	return p
}

// gossipPeersTo sends addr for every peer we know about to nodeID, so a
// newly joined node learns the cluster transitively rather than only
// from its own configured seeds (§4.7).
func (n *Node) gossipPeersTo(nodeID string) {
	n.mu.Lock()
	addrs := make([]string, 0, len(n.peers))
	for _, p := range n.peers {
		if p.nodeID != nodeID {
			addrs = append(addrs, p.addr)
		}
	}
	n.mu.Unlock()
	if len(addrs) == 0 {
		return
	}
	_ = n.sendTerm(nodeID, peersMsg{Addrs: addrs}.toTerm())
}

func (n *Node) markDisconnected(p *peer, reason string) {
	p.mu.Lock()
	already := p.status == peerDisconnected
	p.status = peerDisconnected
	if p.conn != nil {
		p.conn.close()
		p.conn = nil
	}
	p.mu.Unlock()
	if already {
		return
	}
	n.log.Warn().Str("peer", p.nodeID).Str("reason", reason).Msg("node down")
	n.onPeerDown(p.nodeID, reason)
}

// siphashPriority computes the deterministic NodeId hash used as a
// GlobalRegistryEntry's tie-break priority (§3, §4.10), grounded on the
// keyed short-input hash used for similar fixed identifiers elsewhere
// in the example corpus.
func siphashPriority(nodeID string) uint32 {
	h := siphash.Hash(0, 0, []byte(nodeID))
	return uint32(h)
}

func (n *Node) peerByNode(nodeID string) (*peer, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	p, ok := n.peers[nodeID]
	return p, ok
}

// sendTerm encodes and writes t to the current connection for nodeID,
// failing with NoConnection if the peer is not presently connected.
func (n *Node) sendTerm(nodeID string, t wire.Term) error {
	p, ok := n.peerByNode(nodeID)
	if !ok {
		return actorerr.ErrNoConnection
	}
	p.mu.Lock()
	c := p.conn
	p.mu.Unlock()
	if c == nil {
		return actorerr.ErrNoConnection
	}
	if err := c.send(t); err != nil {
		return actorerr.Wrap(actorerr.ErrNoConnection, err)
	}
	return nil
}
