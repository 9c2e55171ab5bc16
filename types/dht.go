package types

import "encoding/json"

// ContactInfo is the wire form of a routing-table contact.
type ContactInfo struct {
	NodeID   string `json:"nodeId"`
	Endpoint string `json:"endpoint"`
}

// PingMessage probes a node for liveness.
type PingMessage struct {
	NodeID string `json:"nodeId"`
}

// PongMessage answers a PingMessage.
type PongMessage struct {
	NodeID string `json:"nodeId"`
}

// StoreMessage asks a node to hold a replicated record. Fire-and-forget:
// there is no response frame.
type StoreMessage struct {
	NodeID string          `json:"nodeId"`
	Key    string          `json:"key"`
	Value  json.RawMessage `json:"value"`
}

// FindValueMessage asks a node for the value stored under a key hash. The
// query ID correlates the eventual FoundMessage or NodesMessage with the
// waiter that issued the request.
type FindValueMessage struct {
	NodeID  string `json:"nodeId"`
	Key     string `json:"key"`
	QueryID string `json:"queryId"`
}

// FoundMessage carries a value hit back to the querier.
type FoundMessage struct {
	NodeID  string          `json:"nodeId"`
	Key     string          `json:"key"`
	QueryID string          `json:"queryId"`
	Value   json.RawMessage `json:"value"`
}

// NodesMessage is the miss answer to a FindValueMessage: the closest contacts
// the queried node knows of.
type NodesMessage struct {
	NodeID   string        `json:"nodeId"`
	QueryID  string        `json:"queryId"`
	Contacts []ContactInfo `json:"contacts"`
}

// NatPunchMessage opens a hole in the sender's NAT towards the recipient.
type NatPunchMessage struct {
	NodeID    string `json:"nodeId"`
	Timestamp int64  `json:"timestamp"`
}

// NatPunchAckMessage confirms a NatPunchMessage.
type NatPunchAckMessage struct {
	NodeID string `json:"nodeId"`
}
