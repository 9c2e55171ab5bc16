package overlay

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func testConnPair(t *testing.T) (net.Conn, net.Conn) {
	client, server := net.Pipe()
	t.Cleanup(func() {
		client.Close()
		server.Close()
	})
	return client, server
}

func Test_PeerSet_Add_Remove(t *testing.T) {
	ps := newPeerSet(0)

	_, server := testConnPair(t)
	p, err := ps.Add(server)
	require.NoError(t, err)
	require.Equal(t, 1, ps.Len())

	got, ok := ps.Get(p.id)
	require.True(t, ok)
	require.Equal(t, p, got)

	ps.Remove(p.id)
	require.Equal(t, 0, ps.Len())

	_, ok = ps.Get(p.id)
	require.False(t, ok)

	// removing twice is a no-op
	ps.Remove(p.id)
}

func Test_PeerSet_Cap(t *testing.T) {
	ps := newPeerSet(2)

	for i := 0; i < 2; i++ {
		_, server := testConnPair(t)
		_, err := ps.Add(server)
		require.NoError(t, err)
	}

	_, server := testConnPair(t)
	_, err := ps.Add(server)
	require.ErrorIs(t, err, ErrPeerSetFull)
	require.Equal(t, 2, ps.Len())
}

func Test_PeerSet_Random(t *testing.T) {
	ps := newPeerSet(0)
	require.Nil(t, ps.Random())

	_, server := testConnPair(t)
	p, err := ps.Add(server)
	require.NoError(t, err)

	require.Equal(t, p, ps.Random())
}
