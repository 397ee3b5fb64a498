package cluster

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nodeforge/actorframe/actor"
	"github.com/nodeforge/actorframe/actorerr"
)

// BehaviorFactory constructs a fresh, stateless actor.Behavior value for
// one remote spawn request (§4.9). Factories are looked up by name
// because an actor.Behavior cannot itself cross the wire.
type BehaviorFactory func() actor.Behavior

// BehaviorRegistry maps registered names to factories so a remote node
// can ask "start me a worker of kind X" without shipping code (§4.9).
type BehaviorRegistry struct {
	mu  sync.RWMutex
	reg map[string]BehaviorFactory
}

// NewBehaviorRegistry constructs an empty registry.
func NewBehaviorRegistry() *BehaviorRegistry {
	return &BehaviorRegistry{reg: make(map[string]BehaviorFactory)}
}

// Register binds name to factory. A later call with the same name
// replaces the prior binding, matching the teacher's process registrar
// idiom of "last registration wins" for local name binding.
func (b *BehaviorRegistry) Register(name string, factory BehaviorFactory) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reg[name] = factory
}

func (b *BehaviorRegistry) lookup(name string) (BehaviorFactory, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	f, ok := b.reg[name]
	return f, ok
}

// RemoteSpawn asks targetNode to start behaviorName under StartOptions
// derived from name/registration, returning the ref the remote node
// assigned (§4.9).
func (n *Node) RemoteSpawn(targetNode, behaviorName, name, registration string) (actor.ServerRef, error) {
	cid := uuid.NewString()
	reply := make(chan spawnReplyMsg, 1)

	n.pendingSpawnMu.Lock()
	n.pendingSpawns[cid] = reply
	n.pendingSpawnMu.Unlock()
	defer func() {
		n.pendingSpawnMu.Lock()
		delete(n.pendingSpawns, cid)
		n.pendingSpawnMu.Unlock()
	}()

	m := spawnMsg{CorrelationID: cid, BehaviorName: behaviorName, Name: name, Registration: registration}
	if err := n.sendTerm(targetNode, m.toTerm()); err != nil {
		return actor.ServerRef{}, err
	}

	select {
	case res := <-reply:
		if res.Status != "ok" {
			return actor.ServerRef{}, actorerr.ErrBehaviorNotFound
		}
		return actor.ServerRef{ID: actor.ServerId(res.ServerID), Node: actor.NodeID(targetNode)}, nil
	case <-time.After(actor.DefaultCallTimeout):
		return actor.ServerRef{}, actorerr.ErrTimeout
	}
}

// handleInboundSpawn services a spawn frame by starting behaviorName
// locally and, when Registration asks for it, registering the new
// server under Name (local or global).
func (n *Node) handleInboundSpawn(p *peer, m spawnMsg) {
	factory, ok := n.behaviors.lookup(m.BehaviorName)
	if !ok {
		_ = n.sendTerm(p.nodeID, spawnReplyMsg{CorrelationID: m.CorrelationID, Status: "err"}.toTerm())
		return
	}

	opts := actor.StartOptions{}
	if m.Registration == "local" {
		opts.Name = m.Name
	}
	ref, err := actor.Start(n.rt, factory(), opts)
	if err != nil {
		_ = n.sendTerm(p.nodeID, spawnReplyMsg{CorrelationID: m.CorrelationID, Status: "err"}.toTerm())
		return
	}
	if m.Registration == "global" && m.Name != "" {
		_ = n.registry.register(m.Name, ref)
	}
	_ = n.sendTerm(p.nodeID, spawnReplyMsg{CorrelationID: m.CorrelationID, Status: "ok", ServerID: int64(ref.ID)}.toTerm())
}
