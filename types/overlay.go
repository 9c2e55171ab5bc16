package types

import "encoding/json"

// OnionEnvelope is one layer of a nested onion. The ciphertext decrypts, for
// the designated relay only, to either a forwarding record (inner envelope
// plus next hop endpoint) or a terminal delivery record. The tag on the
// outermost layer is opaque padding, indistinguishable from the random tags
// of the inner layers.
type OnionEnvelope struct {
	Ciphertext string `json:"ciphertext"`
	NextHopTag string `json:"next_hop_tag"`
}

// OnionPacketMessage carries an onion envelope between relays on the stream
// transport.
type OnionPacketMessage struct {
	CircuitID string        `json:"circuitId"`
	Packet    OnionEnvelope `json:"packet"`
}

// DHTQueryMessage asks a peer for its local view of a key over the stream
// transport. Answered with an AnonymousMessage carrying the same query ID.
type DHTQueryMessage struct {
	Key     string `json:"key"`
	QueryID string `json:"queryId"`
}

// PeerDiscoveryMessage announces a node: its identifier, its two endpoints
// and its public encryption key. A peer receiving an announcement with Reply
// false answers once with its own, Reply true.
type PeerDiscoveryMessage struct {
	NodeID      string `json:"nodeId"`
	TCPEndpoint string `json:"tcpEndpoint"`
	UDPEndpoint string `json:"udpEndpoint"`
	PublicKey   string `json:"publicKey"`
	Reply       bool   `json:"reply"`
}

// AnonymousMessage surfaces an application payload at the receiving node.
type AnonymousMessage struct {
	Payload json.RawMessage `json:"payload"`
	QueryID string          `json:"queryId,omitempty"`
}

// DummyTrafficMessage is cover traffic. Recipients have no handler for it:
// it is decoded and dropped.
type DummyTrafficMessage struct {
	Data      string `json:"data"`
	Timestamp int64  `json:"timestamp"`
}
