package overlay

import (
	"crypto/rand"
	"encoding/binary"
	"math"
	"net"
	"sync"

	"golang.org/x/xerrors"

	mrand "math/rand"
)

// ErrPeerSetFull is returned by Add when the connection cap of an
// unstructured mesh is reached.
var ErrPeerSetFull = xerrors.New("peer connection limit reached")

// peer is one live stream connection, known under a freshly drawn 64-bit
// identifier.
type peer struct {
	id        uint64
	conn      net.Conn
	writeLock sync.Mutex
	closeOnce sync.Once
}

// close shuts the connection down exactly once.
func (p *peer) close() {
	p.closeOnce.Do(func() {
		p.conn.Close()
	})
}

/*
A thread-safe map of live peer connections. At most one connection lives per
peer identifier; removal closes the connection and happens exactly once.
*/
type peerSet struct {
	sync.Mutex
	peers map[uint64]*peer
	max   int
}

// newPeerSet returns an empty set. max <= 0 means no connection cap.
func newPeerSet(max int) *peerSet {
	return &peerSet{
		peers: make(map[uint64]*peer),
		max:   max,
	}
}

// Add registers a connection under a fresh peer identifier.
func (ps *peerSet) Add(conn net.Conn) (*peer, error) {
	ps.Lock()
	defer ps.Unlock()

	if ps.max > 0 && len(ps.peers) >= ps.max {
		return nil, ErrPeerSetFull
	}

	id := randomPeerID()
	for _, taken := ps.peers[id]; taken; _, taken = ps.peers[id] {
		id = randomPeerID()
	}

	p := &peer{id: id, conn: conn}
	ps.peers[id] = p
	return p, nil
}

// Remove drops a peer and closes its connection. A second call for the same
// identifier is a no-op.
func (ps *peerSet) Remove(id uint64) {
	ps.Lock()
	p, ok := ps.peers[id]
	delete(ps.peers, id)
	ps.Unlock()

	if ok {
		p.close()
	}
}

// Get returns a live peer.
func (ps *peerSet) Get(id uint64) (*peer, bool) {
	ps.Lock()
	defer ps.Unlock()

	p, ok := ps.peers[id]
	return p, ok
}

// Random picks a live peer uniformly at random, nil when the set is empty.
func (ps *peerSet) Random() *peer {
	ps.Lock()
	defer ps.Unlock()

	if len(ps.peers) == 0 {
		return nil
	}

	pick := mrand.Intn(len(ps.peers))
	for _, p := range ps.peers {
		if pick == 0 {
			return p
		}
		pick--
	}
	return nil
}

// Len returns the number of live peers.
func (ps *peerSet) Len() int {
	ps.Lock()
	defer ps.Unlock()

	return len(ps.peers)
}

// CloseAll drops every peer.
func (ps *peerSet) CloseAll() {
	ps.Lock()
	peers := make([]*peer, 0, len(ps.peers))
	for _, p := range ps.peers {
		peers = append(peers, p)
	}
	ps.peers = make(map[uint64]*peer)
	ps.Unlock()

	for _, p := range peers {
		p.close()
	}
}

func randomPeerID() uint64 {
	var buf [8]byte
	_, err := rand.Read(buf[:])
	if err != nil {
		return uint64(mrand.Int63n(math.MaxInt64))
	}
	return binary.BigEndian.Uint64(buf[:])
}
