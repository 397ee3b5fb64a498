package cluster

import (
	"sync"
	"time"

	"github.com/nodeforge/actorframe/actor"
	"github.com/nodeforge/actorframe/actorerr"
	"github.com/nodeforge/actorframe/wire"
)

// globalEntry is one name's binding in the gossiped global registry
// (§3 GlobalRegistryEntry, §4.10).
type globalEntry struct {
	name         string
	ref          actor.ServerRef
	nodeID       string
	registeredAt int64
	priority     uint32
}

// before reports whether e should win a conflict against other, using
// the deterministic (registeredAt, priority) lexicographic order every
// node computes identically without a coordinator (§4.10).
func (e globalEntry) before(other globalEntry) bool {
	if e.registeredAt != other.registeredAt {
		return e.registeredAt < other.registeredAt
	}
	return e.priority < other.priority
}

// globalRegistry is the distribution layer's name table: entries
// gossiped via registry_sync frames, conflicts resolved the same way on
// every node so the table converges without a leader (§4.10).
type globalRegistry struct {
	n *Node

	mu      sync.Mutex
	entries map[string]globalEntry
}

func newGlobalRegistry(n *Node) *globalRegistry {
	return &globalRegistry{n: n, entries: make(map[string]globalEntry)}
}

// register claims name for ref on this node, broadcasting the new
// entry to every connected peer. A name already held by an entry that
// wins the conflict order fails with GlobalNameConflict (§4.10).
func (g *globalRegistry) register(name string, ref actor.ServerRef) error {
	candidate := globalEntry{
		name: name, ref: ref, nodeID: g.n.cfg.NodeID(),
		registeredAt: time.Now().UnixMilli(),
		priority:     siphashPriority(g.n.cfg.NodeID()),
	}

	g.mu.Lock()
	if existing, ok := g.entries[name]; ok && existing.before(candidate) {
		g.mu.Unlock()
		return actorerr.ErrGlobalNameConflict
	}
	g.entries[name] = candidate
	g.mu.Unlock()

	g.broadcast(registrySyncMsg{Entries: []registryEntryWire{entryToWire(candidate)}})
	return nil
}

// unregister drops name if this node owns it, broadcasting the removal.
func (g *globalRegistry) unregister(name string) {
	g.mu.Lock()
	e, ok := g.entries[name]
	if ok && e.nodeID == g.n.cfg.NodeID() {
		delete(g.entries, name)
	}
	g.mu.Unlock()
	if ok {
		g.broadcast(unregisterMsg{Name: name, NodeID: g.n.cfg.NodeID()})
	}
}

// whereis resolves a globally registered name, wherever its owning
// server lives (§4.10).
func (g *globalRegistry) whereis(name string) (actor.ServerRef, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[name]
	if !ok {
		return actor.ServerRef{}, false
	}
	return e.ref, true
}

// onSync merges an inbound registry_sync frame's entries, applying the
// same conflict order as a local register (§4.10). A full-sync frame
// first evicts every entry we currently believe fromNode owns, so a
// name it has since given up does not survive as a stale binding once
// its authoritative state has arrived.
func (g *globalRegistry) onSync(fromNode string, msg registrySyncMsg) {
	g.mu.Lock()
	if msg.FullSync {
		for name, e := range g.entries {
			if e.nodeID == fromNode {
				delete(g.entries, name)
			}
		}
	}
	for _, w := range msg.Entries {
		e := entryFromWire(w)
		existing, has := g.entries[e.name]
		if !has || e.before(existing) || existing.nodeID == e.nodeID {
			g.entries[e.name] = e
		}
	}
	g.mu.Unlock()
}

func (g *globalRegistry) onUnregister(m unregisterMsg) {
	g.mu.Lock()
	if e, ok := g.entries[m.Name]; ok && e.nodeID == m.NodeID {
		delete(g.entries, m.Name)
	}
	g.mu.Unlock()
}

// evictNode drops every entry owned by a node that has gone down, so a
// stale binding cannot shadow a future re-registration (§4.10, §4.7).
func (g *globalRegistry) evictNode(nodeID string) {
	g.mu.Lock()
	for name, e := range g.entries {
		if e.nodeID == nodeID {
			delete(g.entries, name)
		}
	}
	g.mu.Unlock()
}

// fullSyncTo ships every currently-known entry to a newly connected
// peer so it converges immediately instead of waiting on incremental
// updates (§4.10's "full sync on nodeUp").
func (g *globalRegistry) fullSyncTo(nodeID string) {
	g.mu.Lock()
	entries := make([]registryEntryWire, 0, len(g.entries))
	for _, e := range g.entries {
		entries = append(entries, entryToWire(e))
	}
	g.mu.Unlock()
	_ = g.n.sendTerm(nodeID, registrySyncMsg{Entries: entries, FullSync: true}.toTerm())
}

func (g *globalRegistry) broadcast(m registrySyncOrUnregister) {
	g.n.mu.Lock()
	ids := make([]string, 0, len(g.n.peers))
	for id := range g.n.peers {
		ids = append(ids, id)
	}
	g.n.mu.Unlock()
	for _, id := range ids {
		_ = g.n.sendTerm(id, m.toTerm())
	}
}

// registrySyncOrUnregister lets broadcast accept either wire message
// shape without duplicating the peer-iteration loop.
type registrySyncOrUnregister interface {
	toTerm() wire.Term
}

func entryToWire(e globalEntry) registryEntryWire {
	return registryEntryWire{
		Name: e.name, ServerID: uint64(e.ref.ID), NodeID: e.nodeID,
		RegisteredAt: e.registeredAt, Priority: int64(e.priority),
	}
}

func entryFromWire(w registryEntryWire) globalEntry {
	return globalEntry{
		name:         w.Name,
		ref:          actor.ServerRef{ID: actor.ServerId(w.ServerID), Node: actor.NodeID(w.NodeID)},
		nodeID:       w.NodeID,
		registeredAt: w.RegisteredAt,
		priority:     uint32(w.Priority),
	}
}
