package types

import "fmt"

// -----------------------------------------------------------------------------
// OnionPacketMessage

// NewEmpty implements types.Message.
func (o OnionPacketMessage) NewEmpty() Message {
	return &OnionPacketMessage{}
}

// Name implements types.Message.
func (o OnionPacketMessage) Name() string {
	return "ONION_PACKET"
}

// String implements types.Message.
func (o OnionPacketMessage) String() string {
	return fmt.Sprintf("{ONION_PACKET circuit %s}", o.CircuitID)
}

// -----------------------------------------------------------------------------
// DHTQueryMessage

// NewEmpty implements types.Message.
func (d DHTQueryMessage) NewEmpty() Message {
	return &DHTQueryMessage{}
}

// Name implements types.Message.
func (d DHTQueryMessage) Name() string {
	return "DHT_QUERY"
}

// String implements types.Message.
func (d DHTQueryMessage) String() string {
	return fmt.Sprintf("{DHT_QUERY %s}", d.Key)
}

// -----------------------------------------------------------------------------
// PeerDiscoveryMessage

// NewEmpty implements types.Message.
func (p PeerDiscoveryMessage) NewEmpty() Message {
	return &PeerDiscoveryMessage{}
}

// Name implements types.Message.
func (p PeerDiscoveryMessage) Name() string {
	return "PEER_DISCOVERY"
}

// String implements types.Message.
func (p PeerDiscoveryMessage) String() string {
	return fmt.Sprintf("{PEER_DISCOVERY %s at %s}", p.NodeID, p.TCPEndpoint)
}

// -----------------------------------------------------------------------------
// AnonymousMessage

// NewEmpty implements types.Message.
func (a AnonymousMessage) NewEmpty() Message {
	return &AnonymousMessage{}
}

// Name implements types.Message.
func (a AnonymousMessage) Name() string {
	return "ANONYMOUS_MESSAGE"
}

// String implements types.Message.
func (a AnonymousMessage) String() string {
	return "{ANONYMOUS_MESSAGE}"
}

// -----------------------------------------------------------------------------
// DummyTrafficMessage

// NewEmpty implements types.Message.
func (d DummyTrafficMessage) NewEmpty() Message {
	return &DummyTrafficMessage{}
}

// Name implements types.Message.
func (d DummyTrafficMessage) Name() string {
	return "DUMMY_TRAFFIC"
}

// String implements types.Message.
func (d DummyTrafficMessage) String() string {
	return "{DUMMY_TRAFFIC}"
}
