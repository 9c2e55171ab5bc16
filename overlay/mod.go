package overlay

import (
	"bufio"
	"net"
	"strconv"
	"sync"
	"time"

	"golang.org/x/xerrors"

	"github.com/veilnet/veil/dht"
	"github.com/veilnet/veil/identity"
	z "github.com/veilnet/veil/logger"
	"github.com/veilnet/veil/onion"
	"github.com/veilnet/veil/registry"
	"github.com/veilnet/veil/transport"
	"github.com/veilnet/veil/transport/udp"
	"github.com/veilnet/veil/types"
)

// Mesh topologies.
const (
	MeshUnstructured = "unstructured"
	MeshStructured   = "structured"
)

// Roles under the structured mesh.
const (
	RoleSupernode = "supernode"
	RoleLeaf      = "leaf"
)

const (
	// DefaultPort is the UDP and TCP bind port.
	DefaultPort = 3000
	// DefaultCircuitLength is the number of hops per circuit.
	DefaultCircuitLength = 3
	// DefaultMixingDelayMax is the upper bound of the inbound mixing delay.
	DefaultMixingDelayMax = 100 * time.Millisecond
	// DefaultMaxPeerConnections caps the peer set under the unstructured
	// mesh.
	DefaultMaxPeerConnections = 8

	dialTimeout   = 3 * time.Second
	announceWait  = 3 * time.Second
	maxFrameBytes = 1 << 20
)

// Configuration holds the parameters of an overlay node. This struct will
// evolve.
type Configuration struct {
	// Address is the host to bind both sockets on.
	// Default: 0.0.0.0
	Address string

	// Port is the UDP and TCP bind port. 0 lets the system pick a free port
	// for each socket; a negative value falls back to DefaultPort (3000).
	Port int

	// NodeID is the DHT identifier. The zero value draws a random one.
	NodeID dht.NodeID

	// Transport creates the datagram socket shared by the DHT node and the
	// NAT-punch facility.
	// Default: udp.NewUDP()
	Transport transport.Transport

	// K is the bucket size of the routing table.
	// Default: 20
	K int

	// Alpha is the DHT lookup parallelism.
	// Default: 3
	Alpha int

	// StorageTTL is how long replicated records stay readable.
	// Default: 1h
	StorageTTL time.Duration

	// CircuitLength is the number of relays drawn per circuit.
	// Default: 3
	CircuitLength int

	// MaxLiveCircuits caps the circuits the onion engine remembers, evicted
	// LRU.
	// Default: 128
	MaxLiveCircuits int

	// MixingDelayMax is the upper bound of the random delay every inbound
	// stream frame waits before dispatch.
	// Default: 100ms
	MixingDelayMax time.Duration

	// CoverTrafficDisabled turns the periodic dummy traffic off.
	// Default: false (cover traffic enabled)
	CoverTrafficDisabled bool

	// MeshType is "unstructured" or "structured".
	// Default: unstructured
	MeshType string

	// Role is "supernode" or "leaf". Only read under the structured mesh.
	Role string

	// SupernodeList is the ordered list of supernode stream endpoints a leaf
	// announces itself to at startup. Only read under the structured mesh.
	SupernodeList []string

	// MaxPeerConnections caps the peer set. Only enforced under the
	// unstructured mesh.
	// Default: 8
	MaxPeerConnections int
}

func (c *Configuration) fillDefaults() {
	if c.Address == "" {
		c.Address = "0.0.0.0"
	}
	if c.Port < 0 {
		c.Port = DefaultPort
	}
	if c.Transport == nil {
		c.Transport = udp.NewUDP()
	}
	if c.StorageTTL <= 0 {
		c.StorageTTL = dht.DefaultTTL
	}
	if c.CircuitLength <= 0 {
		c.CircuitLength = DefaultCircuitLength
	}
	if c.MixingDelayMax <= 0 {
		c.MixingDelayMax = DefaultMixingDelayMax
	}
	if c.MeshType == "" {
		c.MeshType = MeshUnstructured
	}
	if c.MaxPeerConnections <= 0 {
		c.MaxPeerConnections = DefaultMaxPeerConnections
	}
}

// NewNode assembles an overlay node: identity, DHT node, onion engine, peer
// set and mixer. The datagram socket is bound here; the stream socket is
// bound by Start.
func NewNode(conf Configuration) (*Node, error) {
	conf.fillDefaults()

	ident, err := identity.New()
	if err != nil {
		return nil, xerrors.Errorf("failed to create identity: %v", err)
	}

	socket, err := conf.Transport.CreateSocket(net.JoinHostPort(conf.Address, strconv.Itoa(conf.Port)))
	if err != nil {
		return nil, xerrors.Errorf("failed to create datagram socket: %v", err)
	}

	directory := NewDirectory()

	engine, err := onion.NewEngine(directoryResolver{dir: directory}, conf.MaxLiveCircuits)
	if err != nil {
		return nil, xerrors.Errorf("failed to create onion engine: %v", err)
	}

	maxPeers := conf.MaxPeerConnections
	if conf.MeshType == MeshStructured {
		maxPeers = 0
	}

	n := &Node{
		conf:      conf,
		identity:  ident,
		directory: directory,
		engine:    engine,
		peers:     newPeerSet(maxPeers),
		socket:    socket,
		done:      make(chan struct{}),
	}

	n.dht = dht.NewNode(dht.Configuration{
		ID:     conf.NodeID,
		Socket: socket,
		K:      conf.K,
		Alpha:  conf.Alpha,
		TTL:    conf.StorageTTL,
	})

	n.mixer = newMixer(conf.MixingDelayMax, n.dispatch)

	reg := registry.NewRegistry()
	reg.RegisterMessageCallback(types.OnionPacketMessage{}, n.execOnionPacketMessage)
	reg.RegisterMessageCallback(types.DHTQueryMessage{}, n.execDHTQueryMessage)
	reg.RegisterMessageCallback(types.PeerDiscoveryMessage{}, n.execPeerDiscoveryMessage)
	reg.RegisterMessageCallback(types.AnonymousMessage{}, n.execAnonymousMessage)
	// cover traffic decodes but has no handler, so it is dropped on release
	reg.RegisterMessage(types.DummyTrafficMessage{})
	n.registry = reg

	return n, nil
}

// Node is an overlay node: it owns the identity, the DHT node and the onion
// engine, and dispatches between them, its peer set and the two sockets.
type Node struct {
	sync.Mutex
	conf      Configuration
	identity  *identity.Identity
	dht       *dht.Node
	engine    *onion.Engine
	directory *Directory
	peers     *peerSet
	mixer     *mixer
	registry  *registry.Registry
	socket    transport.ClosableSocket

	listener net.Listener
	done     chan struct{}
	open     bool

	onAnonymousMessage func(payload []byte)
	onPeerConnected    func(peerID uint64)
}

// ID returns the node's DHT identifier.
func (n *Node) ID() dht.NodeID {
	return n.dht.ID()
}

// Identity returns the node's identity.
func (n *Node) Identity() *identity.Identity {
	return n.identity
}

// DHT returns the node's DHT node.
func (n *Node) DHT() *dht.Node {
	return n.dht
}

// Directory returns the node's relay directory.
func (n *Node) Directory() *Directory {
	return n.directory
}

// DatagramAddr returns the endpoint of the UDP socket.
func (n *Node) DatagramAddr() string {
	return n.dht.Addr()
}

// StreamAddr returns the endpoint of the TCP listener. Empty before Start.
func (n *Node) StreamAddr() string {
	n.Lock()
	defer n.Unlock()

	if n.listener == nil {
		return ""
	}
	return n.listener.Addr().String()
}

// NumPeers returns the number of live peer connections.
func (n *Node) NumPeers() int {
	return n.peers.Len()
}

// OnAnonymousMessage installs the callback fired when an onion surfaces its
// terminal payload at this node.
func (n *Node) OnAnonymousMessage(f func(payload []byte)) {
	n.Lock()
	defer n.Unlock()
	n.onAnonymousMessage = f
}

// OnPeerConnected installs the callback fired when a peer connection is
// accepted.
func (n *Node) OnPeerConnected(f func(peerID uint64)) {
	n.Lock()
	defer n.Unlock()
	n.onPeerConnected = f
}

func (n *Node) emitAnonymousMessage(payload []byte) {
	n.Lock()
	f := n.onAnonymousMessage
	n.Unlock()

	if f != nil {
		f(payload)
	}
}

func (n *Node) emitPeerConnected(peerID uint64) {
	n.Lock()
	f := n.onPeerConnected
	n.Unlock()

	if f != nil {
		f(peerID)
	}
}

// Start begins serving both sockets, the mixer and, unless disabled, the
// cover-traffic task. Under the structured mesh a leaf announces itself to
// every configured supernode.
func (n *Node) Start() error {
	err := n.dht.Start()
	if err != nil {
		return xerrors.Errorf("failed to start dht node: %v", err)
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(n.conf.Address, strconv.Itoa(n.conf.Port)))
	if err != nil {
		return xerrors.Errorf("failed to listen on stream socket: %v", err)
	}

	n.Lock()
	n.listener = listener
	n.open = true
	n.Unlock()

	go n.acceptLoop()
	go n.mixer.run(n.done)

	if !n.conf.CoverTrafficDisabled {
		go n.coverTrafficLoop()
	}

	if n.conf.MeshType == MeshStructured && n.conf.Role == RoleLeaf {
		for _, supernode := range n.conf.SupernodeList {
			go func(endpoint string) {
				err := n.Announce(endpoint)
				if err != nil {
					z.Logger.Err(err).Msgf("[%s] failed to announce to supernode %s", n.StreamAddr(), endpoint)
				}
			}(supernode)
		}
	}

	z.Logger.Info().Msgf("[%s] overlay node up, datagram socket on %s", n.StreamAddr(), n.DatagramAddr())
	return nil
}

// Stop shuts the node down. It returns an error if already stopped.
func (n *Node) Stop() error {
	n.Lock()
	if !n.open {
		n.Unlock()
		return xerrors.Errorf("overlay node is already closed")
	}
	n.open = false
	listener := n.listener
	n.Unlock()

	close(n.done)
	listener.Close()
	n.peers.CloseAll()

	err := n.dht.Stop()
	n.socket.Close()
	return err
}

func (n *Node) isOpen() bool {
	n.Lock()
	defer n.Unlock()
	return n.open
}

func (n *Node) acceptLoop() {
	for {
		conn, err := n.listener.Accept()
		if err != nil {
			if !n.isOpen() {
				return
			}
			z.Logger.Debug().Msgf("[%s] accept failed: %v", n.StreamAddr(), err)
			continue
		}

		p, err := n.peers.Add(conn)
		if err != nil {
			conn.Close()
			z.Logger.Debug().Msgf("[%s] rejecting connection from %s: %v",
				n.StreamAddr(), conn.RemoteAddr(), err)
			continue
		}

		n.emitPeerConnected(p.id)
		go n.serveConn(p)
	}
}

// serveConn reads newline-delimited JSON frames off a peer connection and
// feeds them to the mixer. The peer is removed exactly once, when the
// connection dies.
func (n *Node) serveConn(p *peer) {
	defer n.peers.Remove(p.id)

	scanner := bufio.NewScanner(p.conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFrameBytes)

	for scanner.Scan() {
		frame := make([]byte, len(scanner.Bytes()))
		copy(frame, scanner.Bytes())

		n.mixer.Enqueue(frame, strconv.FormatUint(p.id, 10))
	}
}

// dispatch routes one released frame by its type tag.
func (n *Node) dispatch(frame []byte, from string) {
	err := n.registry.Process(frame, from)
	if err != nil {
		z.Logger.Debug().Msgf("[%s] dropping stream frame: %v", n.StreamAddr(), err)
	}
}

// writeFrame writes one newline-terminated JSON frame in a single write
// call.
func writeFrame(conn net.Conn, p *peer, msg types.Message) error {
	frame, err := types.Encode(msg)
	if err != nil {
		return xerrors.Errorf("failed to encode %s frame: %v", msg.Name(), err)
	}
	frame = append(frame, '\n')

	if p != nil {
		p.writeLock.Lock()
		defer p.writeLock.Unlock()
	}

	_, err = conn.Write(frame)
	if err != nil {
		return xerrors.Errorf("failed to write %s frame: %v", msg.Name(), err)
	}

	return nil
}
