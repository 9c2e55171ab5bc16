package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

// Every frame type survives an encode/decode cycle with its wire tag under
// the "type" key.
func Test_Encode_Decode_Identity(t *testing.T) {
	messages := []Message{
		&PingMessage{NodeID: "aa"},
		&PongMessage{NodeID: "aa"},
		&StoreMessage{NodeID: "aa", Key: "bb", Value: json.RawMessage(`{"v":1}`)},
		&FindValueMessage{NodeID: "aa", Key: "bb", QueryID: "q1"},
		&FoundMessage{NodeID: "aa", Key: "bb", QueryID: "q1", Value: json.RawMessage(`42`)},
		&NodesMessage{NodeID: "aa", QueryID: "q1", Contacts: []ContactInfo{{NodeID: "cc", Endpoint: "127.0.0.1:1"}}},
		&NatPunchMessage{NodeID: "aa", Timestamp: 123},
		&NatPunchAckMessage{NodeID: "aa"},
		&OnionPacketMessage{CircuitID: "c1", Packet: OnionEnvelope{Ciphertext: "zz", NextHopTag: "tt"}},
		&DHTQueryMessage{Key: "bb", QueryID: "q1"},
		&PeerDiscoveryMessage{NodeID: "aa", TCPEndpoint: "127.0.0.1:1", UDPEndpoint: "127.0.0.1:2", PublicKey: "pk"},
		&AnonymousMessage{Payload: json.RawMessage(`"hi"`)},
		&DummyTrafficMessage{Data: "zz", Timestamp: 123},
	}

	for _, msg := range messages {
		frame, err := Encode(msg)
		require.NoError(t, err)

		var probe struct {
			Type string `json:"type"`
		}
		require.NoError(t, json.Unmarshal(frame, &probe))
		require.Equal(t, msg.Name(), probe.Type)

		decoded := msg.NewEmpty()
		require.NoError(t, json.Unmarshal(frame, decoded))
		require.Equal(t, msg, decoded)
	}
}

func Test_Encode_Emits_Flat_Fields(t *testing.T) {
	frame, err := Encode(&PingMessage{NodeID: "aa"})
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(frame, &fields))
	require.Equal(t, "PING", fields["type"])
	require.Equal(t, "aa", fields["nodeId"])
}
