package overlay

import (
	"net"
	"strconv"

	"golang.org/x/xerrors"

	"github.com/veilnet/veil/customCrypto"
	"github.com/veilnet/veil/dht"
	z "github.com/veilnet/veil/logger"
	"github.com/veilnet/veil/onion"
	"github.com/veilnet/veil/registry"
	"github.com/veilnet/veil/types"
)

// execOnionPacketMessage peels one layer off an inbound onion. A forwarding
// layer is re-emitted to the next hop on a fresh connection; a delivery
// layer surfaces the payload. Peel failures are dropped without a trace on
// the wire.
func (n *Node) execOnionPacketMessage(msg types.Message, from string) error {
	packet := msg.(*types.OnionPacketMessage)

	result, err := onion.Unwrap(packet.Packet, n.identity.PrivateKey())
	if err != nil {
		z.Logger.Debug().Msgf("[%s] dropping onion packet on circuit %s", n.StreamAddr(), packet.CircuitID)
		return nil
	}

	if result.Delivery() {
		n.emitAnonymousMessage(result.Payload)
		return nil
	}

	return n.sendPacket(result.NextHop, types.OnionPacketMessage{
		CircuitID: packet.CircuitID,
		Packet:    *result.Packet,
	})
}

// execDHTQueryMessage answers a stream-side key query from the local store.
func (n *Node) execDHTQueryMessage(msg types.Message, from string) error {
	query := msg.(*types.DHTQueryMessage)

	value, _ := n.dht.LocalGet(query.Key)

	p, ok := n.peerFrom(from)
	if !ok {
		return nil
	}

	return writeFrame(p.conn, p, types.AnonymousMessage{
		Payload: value,
		QueryID: query.QueryID,
	})
}

// execPeerDiscoveryMessage records an announced node in the directory and
// the routing table. A first-hand announcement is answered once with our
// own, so both sides end up with each other's relay material.
func (n *Node) execPeerDiscoveryMessage(msg types.Message, from string) error {
	discovery := msg.(*types.PeerDiscoveryMessage)

	err := n.recordAnnouncement(discovery)
	if err != nil {
		return err
	}

	if discovery.Reply {
		return nil
	}

	p, ok := n.peerFrom(from)
	if !ok {
		return nil
	}

	reply, err := n.announcement(true)
	if err != nil {
		return err
	}

	return writeFrame(p.conn, p, reply)
}

// execAnonymousMessage surfaces an application payload received directly on
// the stream transport.
func (n *Node) execAnonymousMessage(msg types.Message, from string) error {
	anon := msg.(*types.AnonymousMessage)

	n.emitAnonymousMessage(anon.Payload)
	return nil
}

// recordAnnouncement validates an announcement and stores its relay
// material.
func (n *Node) recordAnnouncement(discovery *types.PeerDiscoveryMessage) error {
	id, err := dht.NodeIDFromHex(discovery.NodeID)
	if err != nil {
		return registry.ErrMalformedFrame
	}

	publicKey, err := customCrypto.UnmarshalPublicKey(discovery.PublicKey)
	if err != nil {
		return registry.ErrMalformedFrame
	}

	n.directory.Add(discovery.NodeID, DirectoryEntry{
		PublicKey: publicKey,
		Endpoint:  discovery.TCPEndpoint,
	})
	n.dht.RoutingTable().Observe(id, discovery.UDPEndpoint)

	z.Logger.Debug().Msgf("[%s] recorded announcement of %s at %s",
		n.StreamAddr(), discovery.NodeID, discovery.TCPEndpoint)
	return nil
}

// announcement builds this node's own discovery frame.
func (n *Node) announcement(reply bool) (types.PeerDiscoveryMessage, error) {
	publicKey, err := customCrypto.MarshalPublicKey(n.identity.PublicKey())
	if err != nil {
		return types.PeerDiscoveryMessage{}, err
	}

	return types.PeerDiscoveryMessage{
		NodeID:      n.ID().Hex(),
		TCPEndpoint: n.StreamAddr(),
		UDPEndpoint: n.DatagramAddr(),
		PublicKey:   publicKey,
		Reply:       reply,
	}, nil
}

// peerFrom resolves the mixer's from tag back to a live peer.
func (n *Node) peerFrom(from string) (*peer, bool) {
	id, err := strconv.ParseUint(from, 10, 64)
	if err != nil {
		return nil, false
	}
	return n.peers.Get(id)
}

// sendPacket opens a fresh stream connection to an endpoint, writes one
// frame and closes.
func (n *Node) sendPacket(endpoint string, msg types.Message) error {
	conn, err := net.DialTimeout("tcp", endpoint, dialTimeout)
	if err != nil {
		return xerrors.Errorf("failed to dial %s: %v", endpoint, err)
	}
	defer conn.Close()

	return writeFrame(conn, nil, msg)
}
