package onion

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/veilnet/veil/dht"
	"github.com/veilnet/veil/types"
)

// mapResolver resolves from a fixed map.
//
// - implements onion.Resolver
type mapResolver map[dht.NodeID]Hop

func (r mapResolver) Resolve(id dht.NodeID) (Hop, bool) {
	hop, ok := r[id]
	return hop, ok
}

func newTestRelays(t *testing.T, count int) ([]dht.NodeID, []*rsa.PrivateKey, mapResolver) {
	ids := make([]dht.NodeID, count)
	keys := make([]*rsa.PrivateKey, count)
	resolver := mapResolver{}

	for i := 0; i < count; i++ {
		key, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)

		ids[i] = dht.NewRandomNodeID()
		keys[i] = key
		resolver[ids[i]] = Hop{
			ID:        ids[i],
			PublicKey: &key.PublicKey,
			Endpoint:  fmt.Sprintf("127.0.0.1:%d", 9000+i),
		}
	}

	return ids, keys, resolver
}

func Test_Engine_BuildCircuit(t *testing.T) {
	ids, _, resolver := newTestRelays(t, 3)

	engine, err := NewEngine(resolver, 0)
	require.NoError(t, err)

	circuit, err := engine.BuildCircuit(ids)
	require.NoError(t, err)
	require.Len(t, circuit.Hops, 3)
	require.Len(t, circuit.ID, 32)

	stored, ok := engine.Circuit(circuit.ID)
	require.True(t, ok)
	require.Equal(t, circuit, stored)
}

func Test_Engine_BuildCircuit_Skips_Unresolvable(t *testing.T) {
	ids, _, resolver := newTestRelays(t, 2)

	engine, err := NewEngine(resolver, 0)
	require.NoError(t, err)

	withStranger := []dht.NodeID{ids[0], dht.NewRandomNodeID(), ids[1]}
	circuit, err := engine.BuildCircuit(withStranger)
	require.NoError(t, err)
	require.Len(t, circuit.Hops, 2)
}

func Test_Engine_BuildCircuit_Nothing_Resolves(t *testing.T) {
	engine, err := NewEngine(mapResolver{}, 0)
	require.NoError(t, err)

	_, err = engine.BuildCircuit([]dht.NodeID{dht.NewRandomNodeID()})
	require.ErrorIs(t, err, ErrEmptyCircuit)
}

func Test_Engine_Circuit_Cap_Evicts_LRU(t *testing.T) {
	ids, _, resolver := newTestRelays(t, 1)

	engine, err := NewEngine(resolver, 2)
	require.NoError(t, err)

	first, err := engine.BuildCircuit(ids)
	require.NoError(t, err)
	second, err := engine.BuildCircuit(ids)
	require.NoError(t, err)

	// touching the first keeps it warm; the third build evicts the second
	_, ok := engine.Circuit(first.ID)
	require.True(t, ok)

	_, err = engine.BuildCircuit(ids)
	require.NoError(t, err)
	require.Equal(t, 2, engine.NumCircuits())

	_, ok = engine.Circuit(second.ID)
	require.False(t, ok)
}

// Peeling a 3-hop onion hop by hop, in order, surfaces the payload exactly
// at the last relay.
func Test_Onion_Wrap_Peel_RoundTrip(t *testing.T) {
	ids, keys, resolver := newTestRelays(t, 3)

	engine, err := NewEngine(resolver, 0)
	require.NoError(t, err)

	circuit, err := engine.BuildCircuit(ids)
	require.NoError(t, err)

	envelope, err := engine.Wrap(json.RawMessage(`"hello"`), circuit)
	require.NoError(t, err)

	// hop 0 and hop 1 see forwarding layers pointing at the next endpoint
	result, err := Unwrap(envelope, keys[0])
	require.NoError(t, err)
	require.False(t, result.Delivery())
	require.Equal(t, circuit.Hops[1].Endpoint, result.NextHop)

	result, err = Unwrap(*result.Packet, keys[1])
	require.NoError(t, err)
	require.False(t, result.Delivery())
	require.Equal(t, circuit.Hops[2].Endpoint, result.NextHop)

	// hop 2 surfaces the payload with its timestamp
	result, err = Unwrap(*result.Packet, keys[2])
	require.NoError(t, err)
	require.True(t, result.Delivery())
	require.Equal(t, json.RawMessage(`"hello"`), result.Payload)
	require.Greater(t, result.Timestamp, int64(0))
}

func Test_Onion_Peel_Wrong_Key_Fails(t *testing.T) {
	ids, keys, resolver := newTestRelays(t, 3)

	engine, err := NewEngine(resolver, 0)
	require.NoError(t, err)

	circuit, err := engine.BuildCircuit(ids)
	require.NoError(t, err)

	envelope, err := engine.Wrap(json.RawMessage(`"hello"`), circuit)
	require.NoError(t, err)

	// peeling out of order fails
	_, err = Unwrap(envelope, keys[1])
	require.ErrorIs(t, err, ErrPeelFailed)

	// peeling with a foreign key fails
	stranger, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	_, err = Unwrap(envelope, stranger)
	require.ErrorIs(t, err, ErrPeelFailed)
}

func Test_Onion_Single_Hop_Delivers(t *testing.T) {
	ids, keys, resolver := newTestRelays(t, 1)

	engine, err := NewEngine(resolver, 0)
	require.NoError(t, err)

	circuit, err := engine.BuildCircuit(ids)
	require.NoError(t, err)

	envelope, err := engine.Wrap(json.RawMessage(`{"a":1}`), circuit)
	require.NoError(t, err)
	require.Len(t, envelope.NextHopTag, 32)

	result, err := Unwrap(envelope, keys[0])
	require.NoError(t, err)
	require.True(t, result.Delivery())
	require.Equal(t, json.RawMessage(`{"a":1}`), result.Payload)
}

func Test_Onion_Garbage_Envelope_Fails(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	_, err = Unwrap(types.OnionEnvelope{Ciphertext: "not base64!"}, key)
	require.ErrorIs(t, err, ErrPeelFailed)

	_, err = Unwrap(types.OnionEnvelope{Ciphertext: "aGVsbG8="}, key)
	require.ErrorIs(t, err, ErrPeelFailed)
}
