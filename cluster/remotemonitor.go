package cluster

import "github.com/nodeforge/actorframe/actor"

// handleInboundMonitorInstall services a monitor_install frame: it
// bridges the remote watcher onto our local monitor table via
// actor.Runtime.InstallRemoteMonitor, remembering which node to notify
// when the target eventually goes down (§4.11).
func (n *Node) handleInboundMonitorInstall(p *peer, m monitorInstallMsg) {
	watcherNode := p.nodeID

	var monID actor.MonitorID
	id, ok := n.rt.InstallRemoteMonitor(actor.ServerId(m.TargetServerID), func(reason string) {
		n.inboundMonitorsMu.Lock()
		delete(n.inboundMonitors, monID)
		n.inboundMonitorsMu.Unlock()
		_ = n.sendTerm(watcherNode, processDownMsg{MonitorID: string(monID), Reason: reason}.toTerm())
	})
	if !ok {
		_ = n.sendTerm(watcherNode, monitorReplyMsg{CorrelationID: m.CorrelationID, MonitorID: ""}.toTerm())
		return
	}
	monID = id

	n.inboundMonitorsMu.Lock()
	n.inboundMonitors[id] = watcherNode
	n.inboundMonitorsMu.Unlock()

	_ = n.sendTerm(watcherNode, monitorReplyMsg{CorrelationID: m.CorrelationID, MonitorID: string(id)}.toTerm())
}

// handleInboundMonitorCancel services a monitor_cancel frame: it cancels
// the local InstallRemoteMonitor registration a prior monitor_install
// created, so a dead or demonitoring watcher stops being notified.
func (n *Node) handleInboundMonitorCancel(m monitorCancelMsg) {
	id := actor.MonitorID(m.MonitorID)
	n.inboundMonitorsMu.Lock()
	delete(n.inboundMonitors, id)
	n.inboundMonitorsMu.Unlock()
	n.rt.CancelRemoteMonitor(id)
}

func (n *Node) handleInboundMonitorReply(m monitorReplyMsg) {
	n.pendingMonitorMu.Lock()
	ch, ok := n.pendingMonitors[m.CorrelationID]
	n.pendingMonitorMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- m:
	default:
	}
}

// handleInboundProcessDown republishes a remote target's death on this
// node's lifecycle bus for the local watcher that originally called
// RemoteMonitor (§4.11).
func (n *Node) handleInboundProcessDown(m processDownMsg) {
	monID := actor.MonitorID(m.MonitorID)

	n.remoteMonitorsMu.Lock()
	delete(n.remoteMonitors, monID)
	n.remoteMonitorsMu.Unlock()

	n.rt.Bus().Publish(actor.Event{
		Kind:      actor.EventProcessDown,
		MonitorID: monID,
		Reason:    m.Reason,
	})
}
