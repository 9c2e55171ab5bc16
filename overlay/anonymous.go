package overlay

import (
	"bufio"
	"encoding/json"
	"net"
	"time"

	"golang.org/x/xerrors"

	"github.com/veilnet/veil/dht"
	z "github.com/veilnet/veil/logger"
	"github.com/veilnet/veil/types"
)

// SendAnonymousMessage routes a payload through a fresh circuit. Relays are
// picked by walking the routing table towards random identifiers, so the
// same relay may be drawn more than once. The envelope leaves on a transient
// connection to the first hop; no relay past it ever sees this node's
// address.
func (n *Node) SendAnonymousMessage(payload json.RawMessage) error {
	ids := make([]dht.NodeID, 0, n.conf.CircuitLength)
	for i := 0; i < n.conf.CircuitLength; i++ {
		contacts := n.dht.RoutingTable().Closest(dht.NewRandomNodeID(), 1)
		if len(contacts) == 0 {
			continue
		}
		ids = append(ids, contacts[0].ID)
	}

	circuit, err := n.engine.BuildCircuit(ids)
	if err != nil {
		return xerrors.Errorf("failed to build circuit: %v", err)
	}

	envelope, err := n.engine.Wrap(payload, circuit)
	if err != nil {
		return xerrors.Errorf("failed to wrap payload: %v", err)
	}

	z.Logger.Info().Msgf("[%s] sending anonymous message over %d-hop circuit %s",
		n.StreamAddr(), len(circuit.Hops), circuit.ID)

	return n.sendPacket(circuit.Hops[0].Endpoint, types.OnionPacketMessage{
		CircuitID: circuit.ID,
		Packet:    envelope,
	})
}

// HolePunch opens a datagram path to an endpoint across a NAT. True when
// the acknowledgement came back from exactly that endpoint within the
// timeout.
func (n *Node) HolePunch(endpoint string) (bool, error) {
	return n.dht.HolePunch(endpoint)
}

// Announce introduces this node to a peer over the stream transport: it
// sends our discovery frame and records the peer's answer, so both ends
// hold each other's relay material afterwards.
func (n *Node) Announce(endpoint string) error {
	conn, err := net.DialTimeout("tcp", endpoint, dialTimeout)
	if err != nil {
		return xerrors.Errorf("failed to dial %s: %v", endpoint, err)
	}
	defer conn.Close()

	ours, err := n.announcement(false)
	if err != nil {
		return err
	}

	err = writeFrame(conn, nil, ours)
	if err != nil {
		return err
	}

	err = conn.SetReadDeadline(time.Now().Add(announceWait))
	if err != nil {
		return xerrors.Errorf("failed to set a ReadDeadline: %v", err)
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)
	if !scanner.Scan() {
		return xerrors.Errorf("no announcement reply from %s", endpoint)
	}

	msg, err := n.registry.Decode(scanner.Bytes())
	if err != nil {
		return xerrors.Errorf("bad announcement reply from %s: %v", endpoint, err)
	}

	reply, ok := msg.(*types.PeerDiscoveryMessage)
	if !ok {
		return xerrors.Errorf("unexpected %s reply from %s", msg.Name(), endpoint)
	}

	return n.recordAnnouncement(reply)
}
