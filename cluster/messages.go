package cluster

import (
	"github.com/nodeforge/actorframe/wire"
)

// Wire message tags (§6). `peers` is an addition grounded on §4.7's
// gossip requirement, which names the behavior ("exchange known-peer
// lists") without assigning it a tag of its own.
const (
	tagHandshake      = "handshake"
	tagHeartbeat      = "heartbeat"
	tagPeers          = "peers"
	tagCall           = "call"
	tagCallReply      = "call_reply"
	tagCast           = "cast"
	tagSpawn          = "spawn"
	tagSpawnReply     = "spawn_reply"
	tagMonitorInstall = "monitor_install"
	tagMonitorReply   = "monitor_reply"
	tagMonitorCancel  = "monitor_cancel"
	tagProcessDown    = "process_down"
	tagRegistrySync   = "registry_sync"
	tagUnregister     = "unregister"
)

func asMap(t wire.Term) (map[string]wire.Term, bool) {
	m, ok := t.(map[string]wire.Term)
	return m, ok
}

func tagOf(t wire.Term) (string, bool) {
	m, ok := asMap(t)
	if !ok {
		return "", false
	}
	return wire.GetString(m, "tag")
}

func withTag(tag string, fields map[string]wire.Term) wire.Term {
	fields["tag"] = tag
	return fields
}

type handshakeMsg struct {
	ProtocolVersion int64
	NodeID          string
	Host            string
	Port            int64
	Nonce           []byte
	HMAC            []byte
}

func (m handshakeMsg) toTerm() wire.Term {
	return withTag(tagHandshake, wire.Map(
		"protocolVersion", m.ProtocolVersion,
		"nodeId", m.NodeID,
		"host", m.Host,
		"port", m.Port,
		"nonce", m.Nonce,
		"hmac", m.HMAC,
	))
}

func handshakeFromTerm(t wire.Term) handshakeMsg {
	mp, _ := asMap(t)
	nodeID, _ := wire.GetString(mp, "nodeId")
	host, _ := wire.GetString(mp, "host")
	port, _ := wire.GetInt64(mp, "port")
	version, _ := wire.GetInt64(mp, "protocolVersion")
	nonce, _ := wire.GetBytes(mp, "nonce")
	hmacVal, _ := wire.GetBytes(mp, "hmac")
	return handshakeMsg{
		ProtocolVersion: version, NodeID: nodeID, Host: host, Port: port,
		Nonce: nonce, HMAC: hmacVal,
	}
}

type heartbeatMsg struct {
	NodeID  string
	EpochMs int64
}

func (m heartbeatMsg) toTerm() wire.Term {
	return withTag(tagHeartbeat, wire.Map("nodeId", m.NodeID, "epochMs", m.EpochMs))
}

type peersMsg struct {
	Addrs []string
}

func (m peersMsg) toTerm() wire.Term {
	list := make([]wire.Term, len(m.Addrs))
	for i, a := range m.Addrs {
		list[i] = a
	}
	return withTag(tagPeers, wire.Map("addrs", list))
}

func peersFromTerm(t wire.Term) []string {
	mp, _ := asMap(t)
	list, _ := wire.GetList(mp, "addrs")
	out := make([]string, 0, len(list))
	for _, v := range list {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

type callMsg struct {
	CorrelationID  string
	TargetServerID uint64
	Payload        wire.Term
}

func (m callMsg) toTerm() wire.Term {
	return withTag(tagCall, wire.Map(
		"correlationId", m.CorrelationID, "targetServerId", int64(m.TargetServerID), "payload", m.Payload,
	))
}

func callFromTerm(t wire.Term) callMsg {
	mp, _ := asMap(t)
	cid, _ := wire.GetString(mp, "correlationId")
	target, _ := wire.GetInt64(mp, "targetServerId")
	return callMsg{CorrelationID: cid, TargetServerID: uint64(target), Payload: mp["payload"]}
}

type callReplyMsg struct {
	CorrelationID string
	Status        string // "ok" | "err"
	Value         wire.Term
}

func (m callReplyMsg) toTerm() wire.Term {
	return withTag(tagCallReply, wire.Map(
		"correlationId", m.CorrelationID, "status", m.Status, "value", m.Value,
	))
}

func callReplyFromTerm(t wire.Term) callReplyMsg {
	mp, _ := asMap(t)
	cid, _ := wire.GetString(mp, "correlationId")
	status, _ := wire.GetString(mp, "status")
	return callReplyMsg{CorrelationID: cid, Status: status, Value: mp["value"]}
}

type castMsg struct {
	TargetServerID uint64
	Payload        wire.Term
}

func (m castMsg) toTerm() wire.Term {
	return withTag(tagCast, wire.Map("targetServerId", int64(m.TargetServerID), "payload", m.Payload))
}

func castFromTerm(t wire.Term) castMsg {
	mp, _ := asMap(t)
	target, _ := wire.GetInt64(mp, "targetServerId")
	return castMsg{TargetServerID: uint64(target), Payload: mp["payload"]}
}

type spawnMsg struct {
	CorrelationID string
	BehaviorName  string
	Name          string
	Registration  string // "" | "local" | "global"
}

func (m spawnMsg) toTerm() wire.Term {
	return withTag(tagSpawn, wire.Map(
		"correlationId", m.CorrelationID, "behaviorName", m.BehaviorName,
		"name", m.Name, "registration", m.Registration,
	))
}

func spawnFromTerm(t wire.Term) spawnMsg {
	mp, _ := asMap(t)
	cid, _ := wire.GetString(mp, "correlationId")
	behavior, _ := wire.GetString(mp, "behaviorName")
	name, _ := wire.GetString(mp, "name")
	reg, _ := wire.GetString(mp, "registration")
	return spawnMsg{CorrelationID: cid, BehaviorName: behavior, Name: name, Registration: reg}
}

type spawnReplyMsg struct {
	CorrelationID string
	Status        string
	ServerID      int64
}

func (m spawnReplyMsg) toTerm() wire.Term {
	return withTag(tagSpawnReply, wire.Map(
		"correlationId", m.CorrelationID, "status", m.Status, "serverId", m.ServerID,
	))
}

func spawnReplyFromTerm(t wire.Term) spawnReplyMsg {
	mp, _ := asMap(t)
	cid, _ := wire.GetString(mp, "correlationId")
	status, _ := wire.GetString(mp, "status")
	serverID, _ := wire.GetInt64(mp, "serverId")
	return spawnReplyMsg{CorrelationID: cid, Status: status, ServerID: serverID}
}

type monitorInstallMsg struct {
	CorrelationID   string
	WatcherServerID uint64
	TargetServerID  uint64
}

func (m monitorInstallMsg) toTerm() wire.Term {
	return withTag(tagMonitorInstall, wire.Map(
		"correlationId", m.CorrelationID, "watcherServerId", int64(m.WatcherServerID), "targetServerId", int64(m.TargetServerID),
	))
}

func monitorInstallFromTerm(t wire.Term) monitorInstallMsg {
	mp, _ := asMap(t)
	cid, _ := wire.GetString(mp, "correlationId")
	watcher, _ := wire.GetInt64(mp, "watcherServerId")
	target, _ := wire.GetInt64(mp, "targetServerId")
	return monitorInstallMsg{CorrelationID: cid, WatcherServerID: uint64(watcher), TargetServerID: uint64(target)}
}

type monitorReplyMsg struct {
	CorrelationID string
	MonitorID     string
}

func (m monitorReplyMsg) toTerm() wire.Term {
	return withTag(tagMonitorReply, wire.Map(
		"correlationId", m.CorrelationID, "monitorId", m.MonitorID,
	))
}

func monitorReplyFromTerm(t wire.Term) monitorReplyMsg {
	mp, _ := asMap(t)
	cid, _ := wire.GetString(mp, "correlationId")
	monID, _ := wire.GetString(mp, "monitorId")
	return monitorReplyMsg{CorrelationID: cid, MonitorID: monID}
}

type monitorCancelMsg struct {
	MonitorID string
}

func (m monitorCancelMsg) toTerm() wire.Term {
	return withTag(tagMonitorCancel, wire.Map("monitorId", m.MonitorID))
}

func monitorCancelFromTerm(t wire.Term) monitorCancelMsg {
	mp, _ := asMap(t)
	monID, _ := wire.GetString(mp, "monitorId")
	return monitorCancelMsg{MonitorID: monID}
}

type processDownMsg struct {
	MonitorID string
	Reason    string
}

func (m processDownMsg) toTerm() wire.Term {
	return withTag(tagProcessDown, wire.Map("monitorId", m.MonitorID, "reason", m.Reason))
}

func processDownFromTerm(t wire.Term) processDownMsg {
	mp, _ := asMap(t)
	monID, _ := wire.GetString(mp, "monitorId")
	reason, _ := wire.GetString(mp, "reason")
	return processDownMsg{MonitorID: monID, Reason: reason}
}

type registryEntryWire struct {
	Name         string
	ServerID     uint64
	NodeID       string
	RegisteredAt int64
	Priority     int64
}

type registrySyncMsg struct {
	Entries  []registryEntryWire
	FullSync bool
}

func (m registrySyncMsg) toTerm() wire.Term {
	entries := make([]wire.Term, len(m.Entries))
	for i, e := range m.Entries {
		entries[i] = wire.Map(
			"name", e.Name, "serverId", int64(e.ServerID), "nodeId", e.NodeID,
			"registeredAt", e.RegisteredAt, "priority", e.Priority,
		)
	}
	return withTag(tagRegistrySync, wire.Map("entries", entries, "fullSync", m.FullSync))
}

func registrySyncFromTerm(t wire.Term) registrySyncMsg {
	mp, _ := asMap(t)
	list, _ := wire.GetList(mp, "entries")
	out := registrySyncMsg{}
	if b, ok := mp["fullSync"].(bool); ok {
		out.FullSync = b
	}
	for _, v := range list {
		em, ok := asMap(v)
		if !ok {
			continue
		}
		name, _ := wire.GetString(em, "name")
		nodeID, _ := wire.GetString(em, "nodeId")
		serverID, _ := wire.GetInt64(em, "serverId")
		registeredAt, _ := wire.GetInt64(em, "registeredAt")
		priority, _ := wire.GetInt64(em, "priority")
		out.Entries = append(out.Entries, registryEntryWire{
			Name: name, ServerID: uint64(serverID), NodeID: nodeID,
			RegisteredAt: registeredAt, Priority: priority,
		})
	}
	return out
}

type unregisterMsg struct {
	Name   string
	NodeID string
}

func (m unregisterMsg) toTerm() wire.Term {
	return withTag(tagUnregister, wire.Map("name", m.Name, "nodeId", m.NodeID))
}

func unregisterFromTerm(t wire.Term) unregisterMsg {
	mp, _ := asMap(t)
	name, _ := wire.GetString(mp, "name")
	nodeID, _ := wire.GetString(mp, "nodeId")
	return unregisterMsg{Name: name, NodeID: nodeID}
}
