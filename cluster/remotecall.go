package cluster

import (
	"time"

	"github.com/google/uuid"

	"github.com/nodeforge/actorframe/actor"
	"github.com/nodeforge/actorframe/actorerr"
	"github.com/nodeforge/actorframe/wire"
)

// RemoteCall implements actor.RemoteRouter, bridging a Call against a
// non-local ServerRef onto a call/call_reply round trip (§4.8). Message
// payloads must already be wire.Term-compatible values (nil, bool,
// int64, float64, string, []byte, []Term, map[string]Term); anything
// else fails at encode time with the wrapped transport error.
func (n *Node) RemoteCall(ref actor.ServerRef, msg interface{}, timeout time.Duration) (interface{}, error) {
	cid := uuid.NewString()
	reply := make(chan callReplyMsg, 1)

	n.pendingCallsMu.Lock()
	n.pendingCalls[cid] = reply
	n.pendingCallsMu.Unlock()
	defer func() {
		n.pendingCallsMu.Lock()
		delete(n.pendingCalls, cid)
		n.pendingCallsMu.Unlock()
	}()

	m := callMsg{CorrelationID: cid, TargetServerID: uint64(ref.ID), Payload: msg}
	if err := n.sendTerm(string(ref.Node), m.toTerm()); err != nil {
		return nil, err
	}

	select {
	case res := <-reply:
		if res.Status == "err" {
			errMsg, _ := res.Value.(string)
			for _, sentinel := range []*actorerr.Error{actorerr.ErrNoProcess, actorerr.ErrTimeout} {
				if errMsg == sentinel.Error() {
					return nil, sentinel
				}
			}
			return nil, actorerr.CalleeError(errMsg)
		}
		return res.Value, nil
	case <-time.After(timeout):
		return nil, actorerr.ErrTimeout
	}
}

// RemoteCast implements actor.RemoteRouter for fire-and-forget sends
// (§4.8). Delivery is best-effort: a disconnected peer silently drops
// the cast, mirroring the local Cast-against-a-dead-ref semantics.
func (n *Node) RemoteCast(ref actor.ServerRef, msg interface{}) error {
	m := castMsg{TargetServerID: uint64(ref.ID), Payload: msg}
	if err := n.sendTerm(string(ref.Node), m.toTerm()); err != nil {
		return nil
	}
	return nil
}

// RemoteMonitor implements actor.RemoteRouter, installing a monitor on
// target's owning node and remembering the watcher locally so a later
// process_down frame can be republished on this node's bus (§4.11).
func (n *Node) RemoteMonitor(watcher actor.ServerRef, target actor.ServerRef) (actor.MonitorID, error) {
	cid := uuid.NewString()
	reply := make(chan monitorReplyMsg, 1)

	n.pendingMonitorMu.Lock()
	n.pendingMonitors[cid] = reply
	n.pendingMonitorMu.Unlock()
	defer func() {
		n.pendingMonitorMu.Lock()
		delete(n.pendingMonitors, cid)
		n.pendingMonitorMu.Unlock()
	}()

	m := monitorInstallMsg{CorrelationID: cid, WatcherServerID: uint64(watcher.ID), TargetServerID: uint64(target.ID)}
	if err := n.sendTerm(string(target.Node), m.toTerm()); err != nil {
		return "", err
	}

	select {
	case res := <-reply:
		id := actor.MonitorID(res.MonitorID)
		n.remoteMonitorsMu.Lock()
		n.remoteMonitors[id] = string(target.Node)
		n.remoteMonitorsMu.Unlock()
		return id, nil
	case <-time.After(actor.DefaultCallTimeout):
		return "", actorerr.ErrTimeout
	}
}

// RemoteDemonitor implements actor.RemoteRouter, best-effort: the local
// bookkeeping is dropped immediately and the owning node is told to
// cancel its side of the monitor, but a failed send is not reported as
// an error since the watcher has already stopped caring either way.
func (n *Node) RemoteDemonitor(id actor.MonitorID) {
	n.remoteMonitorsMu.Lock()
	owner, ok := n.remoteMonitors[id]
	delete(n.remoteMonitors, id)
	n.remoteMonitorsMu.Unlock()
	if !ok {
		return
	}
	_ = n.sendTerm(owner, monitorCancelMsg{MonitorID: string(id)}.toTerm())
}

// handleInboundCall services a call frame addressed to one of our local
// servers, replying over the same connection's owning node.
func (n *Node) handleInboundCall(p *peer, m callMsg) {
	ref, ok := n.rt.ByID(actor.ServerId(m.TargetServerID))
	if !ok {
		n.replyCallErr(p.nodeID, m.CorrelationID, actorerr.ErrNoProcess)
		return
	}
	go func() {
		reply, err := actor.Call(n.rt, ref, m.Payload, 0)
		if err != nil {
			n.replyCallErr(p.nodeID, m.CorrelationID, err)
			return
		}
		_ = n.sendTerm(p.nodeID, callReplyMsg{CorrelationID: m.CorrelationID, Status: "ok", Value: reply}.toTerm())
	}()
}

func (n *Node) replyCallErr(nodeID, cid string, err error) {
	_ = n.sendTerm(nodeID, callReplyMsg{CorrelationID: cid, Status: "err", Value: err.Error()}.toTerm())
}

func (n *Node) handleInboundCallReply(m callReplyMsg) {
	n.pendingCallsMu.Lock()
	ch, ok := n.pendingCalls[m.CorrelationID]
	n.pendingCallsMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- m:
	default:
	}
}

func (n *Node) handleInboundCast(m castMsg) {
	ref, ok := n.rt.ByID(actor.ServerId(m.TargetServerID))
	if !ok {
		return
	}
	_ = actor.Cast(n.rt, ref, m.Payload)
}

func (n *Node) handleInboundSpawnReply(m spawnReplyMsg) {
	n.pendingSpawnMu.Lock()
	ch, ok := n.pendingSpawns[m.CorrelationID]
	n.pendingSpawnMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- m:
	default:
	}
}
