package dht

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veilnet/veil/transport"
	"github.com/veilnet/veil/transport/udp"
)

func newTestDHTNode(t *testing.T, conf Configuration) (*Node, transport.ClosableSocket) {
	socket, err := udp.NewUDP().CreateSocket("127.0.0.1:0")
	require.NoError(t, err)

	conf.Socket = socket
	n := NewNode(conf)
	require.NoError(t, n.Start())

	t.Cleanup(func() {
		n.Stop()
		socket.Close()
	})

	return n, socket
}

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached before timeout")
}

func Test_Node_Ping_Populates_Both_Tables(t *testing.T) {
	a, _ := newTestDHTNode(t, Configuration{})
	b, _ := newTestDHTNode(t, Configuration{})

	require.NoError(t, a.Ping(b.Addr()))

	waitUntil(t, time.Second, func() bool {
		return a.RoutingTable().NumContacts() == 1 && b.RoutingTable().NumContacts() == 1
	})

	closest := b.RoutingTable().Closest(a.ID(), 1)
	require.Equal(t, a.ID(), closest[0].ID)
	require.Equal(t, a.Addr(), closest[0].Endpoint)
}

func Test_Node_Put_Replicates_To_Closest(t *testing.T) {
	a, _ := newTestDHTNode(t, Configuration{})
	b, _ := newTestDHTNode(t, Configuration{})

	require.NoError(t, a.Ping(b.Addr()))
	waitUntil(t, time.Second, func() bool {
		return a.RoutingTable().NumContacts() == 1
	})

	require.NoError(t, a.Put("alpha", json.RawMessage(`42`)))

	waitUntil(t, time.Second, func() bool {
		_, ok := b.LocalGet("alpha")
		return ok
	})
}

func Test_Node_Get_Local_Hit_Without_Network(t *testing.T) {
	a, socket := newTestDHTNode(t, Configuration{})

	require.NoError(t, a.Put("alpha", json.RawMessage(`42`)))

	sent := len(socket.GetOuts())

	value, err := a.Get("alpha")
	require.NoError(t, err)
	require.Equal(t, json.RawMessage(`42`), value)

	// the local hit issued no UDP traffic
	require.Equal(t, sent, len(socket.GetOuts()))
}

func Test_Node_Get_Expired_Goes_To_Network(t *testing.T) {
	a, socket := newTestDHTNode(t, Configuration{TTL: time.Millisecond})

	require.NoError(t, a.Put("alpha", json.RawMessage(`42`)))
	time.Sleep(5 * time.Millisecond)

	sent := len(socket.GetOuts())

	// alone in the network: the fan-out has nobody to ask
	_, err := a.Get("alpha")
	require.ErrorIs(t, err, ErrNotFound)
	require.Equal(t, sent, len(socket.GetOuts()))
}

func Test_Node_Get_Fetches_From_Peer(t *testing.T) {
	a, _ := newTestDHTNode(t, Configuration{})
	b, _ := newTestDHTNode(t, Configuration{})

	// only b holds the record
	require.NoError(t, b.Put("alpha", json.RawMessage(`"hello"`)))

	require.NoError(t, a.Ping(b.Addr()))
	waitUntil(t, time.Second, func() bool {
		return a.RoutingTable().NumContacts() == 1
	})

	value, err := a.Get("alpha")
	require.NoError(t, err)
	require.Equal(t, json.RawMessage(`"hello"`), value)
}

func Test_Node_Get_Miss_Returns_NotFound(t *testing.T) {
	a, _ := newTestDHTNode(t, Configuration{})
	b, _ := newTestDHTNode(t, Configuration{})

	require.NoError(t, a.Ping(b.Addr()))
	waitUntil(t, time.Second, func() bool {
		return a.RoutingTable().NumContacts() == 1
	})

	// b answers NODES, which counts as a miss, so the lookup ends well
	// before the timeout
	start := time.Now()
	_, err := a.Get("nothing")
	require.ErrorIs(t, err, ErrNotFound)
	require.Less(t, time.Since(start), findValueTimeout)
}

func Test_Node_Drops_Malformed_Frames(t *testing.T) {
	a, _ := newTestDHTNode(t, Configuration{})

	sender, err := udp.NewUDP().CreateSocket("127.0.0.1:0")
	require.NoError(t, err)
	defer sender.Close()

	require.NoError(t, sender.Send(a.Addr(), []byte("not json"), 0))
	require.NoError(t, sender.Send(a.Addr(), []byte(`{"type":"WHATEVER"}`), 0))
	require.NoError(t, sender.Send(a.Addr(), []byte(`{"type":"PING","nodeId":"xx"}`), 0))

	// malformed frames were dropped without a response and without feeding
	// the routing table
	time.Sleep(100 * time.Millisecond)
	require.Equal(t, 0, a.RoutingTable().NumContacts())

	// the node is still alive: a valid ping gets a pong
	frame := []byte(`{"type":"PING","nodeId":"` + NewRandomNodeID().Hex() + `"}`)
	require.NoError(t, sender.Send(a.Addr(), frame, 0))

	dg, err := sender.Recv(time.Second)
	require.NoError(t, err)
	require.Contains(t, string(dg.Payload), "PONG")
}

func Test_Node_HolePunch_Acked(t *testing.T) {
	a, _ := newTestDHTNode(t, Configuration{})
	b, _ := newTestDHTNode(t, Configuration{})

	ok, err := a.HolePunch(b.Addr())
	require.NoError(t, err)
	require.True(t, ok)

	// the handshake fed both routing tables
	waitUntil(t, time.Second, func() bool {
		return a.RoutingTable().NumContacts() == 1 && b.RoutingTable().NumContacts() == 1
	})
}

func Test_Node_HolePunch_Timeout(t *testing.T) {
	a, _ := newTestDHTNode(t, Configuration{})

	// nobody listens there
	ok, err := a.HolePunch("127.0.0.1:1")
	require.NoError(t, err)
	require.False(t, ok)
}
