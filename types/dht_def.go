package types

import "fmt"

// -----------------------------------------------------------------------------
// PingMessage

// NewEmpty implements types.Message.
func (p PingMessage) NewEmpty() Message {
	return &PingMessage{}
}

// Name implements types.Message.
func (p PingMessage) Name() string {
	return "PING"
}

// String implements types.Message.
func (p PingMessage) String() string {
	return fmt.Sprintf("{PING from %s}", p.NodeID)
}

// -----------------------------------------------------------------------------
// PongMessage

// NewEmpty implements types.Message.
func (p PongMessage) NewEmpty() Message {
	return &PongMessage{}
}

// Name implements types.Message.
func (p PongMessage) Name() string {
	return "PONG"
}

// String implements types.Message.
func (p PongMessage) String() string {
	return fmt.Sprintf("{PONG from %s}", p.NodeID)
}

// -----------------------------------------------------------------------------
// StoreMessage

// NewEmpty implements types.Message.
func (s StoreMessage) NewEmpty() Message {
	return &StoreMessage{}
}

// Name implements types.Message.
func (s StoreMessage) Name() string {
	return "STORE"
}

// String implements types.Message.
func (s StoreMessage) String() string {
	return fmt.Sprintf("{STORE %s}", s.Key)
}

// -----------------------------------------------------------------------------
// FindValueMessage

// NewEmpty implements types.Message.
func (f FindValueMessage) NewEmpty() Message {
	return &FindValueMessage{}
}

// Name implements types.Message.
func (f FindValueMessage) Name() string {
	return "FIND_VALUE"
}

// String implements types.Message.
func (f FindValueMessage) String() string {
	return fmt.Sprintf("{FIND_VALUE %s query %s}", f.Key, f.QueryID)
}

// -----------------------------------------------------------------------------
// FoundMessage

// NewEmpty implements types.Message.
func (f FoundMessage) NewEmpty() Message {
	return &FoundMessage{}
}

// Name implements types.Message.
func (f FoundMessage) Name() string {
	return "FOUND"
}

// String implements types.Message.
func (f FoundMessage) String() string {
	return fmt.Sprintf("{FOUND %s query %s}", f.Key, f.QueryID)
}

// -----------------------------------------------------------------------------
// NodesMessage

// NewEmpty implements types.Message.
func (n NodesMessage) NewEmpty() Message {
	return &NodesMessage{}
}

// Name implements types.Message.
func (n NodesMessage) Name() string {
	return "NODES"
}

// String implements types.Message.
func (n NodesMessage) String() string {
	return fmt.Sprintf("{NODES %d contacts}", len(n.Contacts))
}

// -----------------------------------------------------------------------------
// NatPunchMessage

// NewEmpty implements types.Message.
func (n NatPunchMessage) NewEmpty() Message {
	return &NatPunchMessage{}
}

// Name implements types.Message.
func (n NatPunchMessage) Name() string {
	return "NAT_PUNCH"
}

// String implements types.Message.
func (n NatPunchMessage) String() string {
	return fmt.Sprintf("{NAT_PUNCH from %s}", n.NodeID)
}

// -----------------------------------------------------------------------------
// NatPunchAckMessage

// NewEmpty implements types.Message.
func (n NatPunchAckMessage) NewEmpty() Message {
	return &NatPunchAckMessage{}
}

// Name implements types.Message.
func (n NatPunchAckMessage) Name() string {
	return "NAT_PUNCH_ACK"
}

// String implements types.Message.
func (n NatPunchAckMessage) String() string {
	return fmt.Sprintf("{NAT_PUNCH_ACK from %s}", n.NodeID)
}
