package cluster

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"net"
	"strconv"
	"sync"

	"github.com/nodeforge/actorframe/actorerr"
	"github.com/nodeforge/actorframe/wire"
)

const protocolVersion = 1

// conn wraps one peer's TCP socket with the frame encoding and a write
// mutex, since call replies, heartbeats and gossip all write
// concurrently from different goroutines onto the same socket.
type conn struct {
	nc net.Conn
	mu sync.Mutex
}

func newConn(nc net.Conn) *conn { return &conn{nc: nc} }

func (c *conn) send(t wire.Term) error {
	payload, err := wire.Encode(t)
	if err != nil {
		return fmt.Errorf("transport: encode: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return wire.WriteFrame(c.nc, payload)
}

func (c *conn) recv() (wire.Term, error) {
	payload, err := wire.ReadFrame(c.nc)
	if err != nil {
		return nil, err
	}
	return wire.Decode(payload)
}

func (c *conn) close() error { return c.nc.Close() }

// computeHMAC is the §4.6 handshake authenticator:
// HMAC-SHA256(clusterSecret, nonce || nodeId).
func computeHMAC(secret string, nonce []byte, nodeID string) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(nonce)
	mac.Write([]byte(nodeID))
	return mac.Sum(nil)
}

func newNonce() []byte {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return b
}

// dialPeer opens a TCP connection to addr and performs the outbound
// handshake half of §4.6: send our handshake, validate theirs. An unset
// ClusterSecret accepts any peer (§6).
func (n *Node) dialPeer(addr string) (*conn, handshakeMsg, error) {
	nc, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, handshakeMsg{}, err
	}
	c := newConn(nc)

	nonce := newNonce()
	host, portStr, _ := net.SplitHostPort(addr)
	port, _ := strconv.Atoi(portStr)
	_ = host
	ours := handshakeMsg{
		ProtocolVersion: protocolVersion,
		NodeID:          n.cfg.NodeID(),
		Host:            n.cfg.Host,
		Port:            int64(n.cfg.Port),
		Nonce:           nonce,
		HMAC:            computeHMAC(n.cfg.ClusterSecret, nonce, n.cfg.NodeID()),
	}
	if err := c.send(ours.toTerm()); err != nil {
		c.close()
		return nil, handshakeMsg{}, err
	}

	reply, err := c.recv()
	if err != nil {
		c.close()
		return nil, handshakeMsg{}, err
	}
	tag, _ := tagOf(reply)
	if tag != tagHandshake {
		c.close()
		return nil, handshakeMsg{}, fmt.Errorf("transport: expected handshake, got %q", tag)
	}
	peer := handshakeFromTerm(reply)
	if err := n.verifyHandshake(peer, port); err != nil {
		c.close()
		return nil, handshakeMsg{}, err
	}
	return c, peer, nil
}

// acceptHandshake performs the inbound half: read the dialer's
// handshake, validate it, reply with our own.
func (n *Node) acceptHandshake(c *conn) (handshakeMsg, error) {
	first, err := c.recv()
	if err != nil {
		return handshakeMsg{}, err
	}
	tag, _ := tagOf(first)
	if tag != tagHandshake {
		return handshakeMsg{}, fmt.Errorf("transport: expected handshake, got %q", tag)
	}
	peer := handshakeFromTerm(first)
	if err := n.verifyHandshake(peer, int(peer.Port)); err != nil {
		return handshakeMsg{}, err
	}

	nonce := newNonce()
	ours := handshakeMsg{
		ProtocolVersion: protocolVersion,
		NodeID:          n.cfg.NodeID(),
		Host:            n.cfg.Host,
		Port:            int64(n.cfg.Port),
		Nonce:           nonce,
		HMAC:            computeHMAC(n.cfg.ClusterSecret, nonce, n.cfg.NodeID()),
	}
	if err := c.send(ours.toTerm()); err != nil {
		return handshakeMsg{}, err
	}
	return peer, nil
}

func (n *Node) verifyHandshake(peer handshakeMsg, _ int) error {
	if peer.ProtocolVersion != protocolVersion {
		return errHandshake("protocol version mismatch")
	}
	if peer.NodeID == n.cfg.NodeID() {
		return errHandshake("peer reports our own nodeId")
	}
	if n.cfg.ClusterSecret != "" {
		want := computeHMAC(n.cfg.ClusterSecret, peer.Nonce, peer.NodeID)
		if !hmac.Equal(want, peer.HMAC) {
			return errHandshake("hmac mismatch")
		}
	}
	return nil
}

func errHandshake(why string) error {
	return actorerr.New(actorerr.KindDistribution, "HandshakeFailed", "%s", why)
}
