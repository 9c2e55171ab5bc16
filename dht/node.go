package dht

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/xid"
	"golang.org/x/xerrors"

	z "github.com/veilnet/veil/logger"
	"github.com/veilnet/veil/registry"
	"github.com/veilnet/veil/transport"
	"github.com/veilnet/veil/types"
)

const (
	// DefaultK is the bucket size.
	DefaultK = 20
	// DefaultAlpha is the lookup parallelism.
	DefaultAlpha = 3

	findValueTimeout = 5 * time.Second
	natPunchTimeout  = 3 * time.Second
	sendTimeout      = time.Second
	recvTimeout      = time.Second
)

// ErrNotFound is returned by Get when neither the local store nor any queried
// node holds a live record for the key.
var ErrNotFound = xerrors.New("value not found")

// Configuration holds the parameters of a DHT node. Zero values fall back to
// the defaults.
type Configuration struct {
	// ID is the node identifier. The zero value draws a random one.
	ID NodeID

	// Socket is the datagram socket the node listens on. The socket is shared
	// with the overlay's NAT-punch facility; only the DHT node reads from it.
	Socket transport.ClosableSocket

	// K is the bucket size. Default: 20.
	K int

	// Alpha is the number of concurrent FIND_VALUE queries per lookup.
	// Default: 3.
	Alpha int

	// TTL is how long stored records stay readable. Default: 1 hour.
	TTL time.Duration
}

// NewNode creates a DHT node. Call Start to begin serving.
func NewNode(conf Configuration) *Node {
	if (conf.ID == NodeID{}) {
		conf.ID = NewRandomNodeID()
	}
	if conf.K <= 0 {
		conf.K = DefaultK
	}
	if conf.Alpha <= 0 {
		conf.Alpha = DefaultAlpha
	}
	if conf.TTL <= 0 {
		conf.TTL = DefaultTTL
	}

	n := &Node{
		conf:         conf,
		routingTable: NewRoutingTable(conf.ID, conf.K),
		store:        NewStore(),
		queries:      newQueryChannels(),
		punches:      newPunchListeners(),
	}

	reg := registry.NewRegistry()
	reg.RegisterMessageCallback(types.PingMessage{}, n.execPingMessage)
	reg.RegisterMessageCallback(types.PongMessage{}, n.execPongMessage)
	reg.RegisterMessageCallback(types.StoreMessage{}, n.execStoreMessage)
	reg.RegisterMessageCallback(types.FindValueMessage{}, n.execFindValueMessage)
	reg.RegisterMessageCallback(types.FoundMessage{}, n.execFoundMessage)
	reg.RegisterMessageCallback(types.NodesMessage{}, n.execNodesMessage)
	reg.RegisterMessageCallback(types.NatPunchMessage{}, n.execNatPunchMessage)
	reg.RegisterMessageCallback(types.NatPunchAckMessage{}, n.execNatPunchAckMessage)
	n.registry = reg

	return n
}

// Node is a Kademlia-style DHT node: a routing table of k-buckets, a
// replicated key→value store, and the UDP message protocol tying them to the
// rest of the network.
type Node struct {
	sync.Mutex
	conf         Configuration
	registry     *registry.Registry
	routingTable *RoutingTable
	store        *Store
	queries      *queryChannels
	punches      *punchListeners
	open         bool
}

// ID returns the node identifier.
func (n *Node) ID() NodeID {
	return n.conf.ID
}

// Addr returns the endpoint of the datagram socket.
func (n *Node) Addr() string {
	return n.conf.Socket.GetAddress()
}

// RoutingTable returns the node's routing table.
func (n *Node) RoutingTable() *RoutingTable {
	return n.routingTable
}

// Start begins serving the datagram socket.
func (n *Node) Start() error {
	n.setOpen(true)

	go n.listen()

	return nil
}

// Stop shuts the node down. It returns an error if already stopped.
func (n *Node) Stop() error {
	if !n.isOpen() {
		return xerrors.Errorf("dht node %s is already closed", n.Addr())
	}
	n.setOpen(false)
	return nil
}

func (n *Node) setOpen(open bool) {
	n.Lock()
	defer n.Unlock()
	n.open = open
}

func (n *Node) isOpen() bool {
	n.Lock()
	defer n.Unlock()
	return n.open
}

func (n *Node) listen() {
	for {
		if !n.isOpen() {
			return
		}

		dg, err := n.conf.Socket.Recv(recvTimeout)
		if err != nil {
			if errors.Is(err, transport.TimeoutError(0)) {
				continue
			}
			if !n.isOpen() {
				return
			}
			z.Logger.Err(err).Msgf("[%s] error while receiving datagram", n.Addr())
			continue
		}

		err = n.registry.Process(dg.Payload, dg.Source)
		if err != nil {
			z.Logger.Debug().Msgf("[%s] dropping frame from %s: %v", n.Addr(), dg.Source, err)
		}
	}
}

// observe feeds a sender into the routing table. A frame whose nodeId does
// not parse counts as malformed.
func (n *Node) observe(nodeID, endpoint string) error {
	id, err := NodeIDFromHex(nodeID)
	if err != nil {
		return registry.ErrMalformedFrame
	}

	n.routingTable.Observe(id, endpoint)
	return nil
}

func (n *Node) send(dest string, msg types.Message) error {
	frame, err := types.Encode(msg)
	if err != nil {
		return xerrors.Errorf("failed to encode %s frame: %v", msg.Name(), err)
	}

	err = n.conf.Socket.Send(dest, frame, sendTimeout)
	if err != nil {
		return xerrors.Errorf("failed to send %s frame to %s: %v", msg.Name(), dest, err)
	}

	return nil
}

func (n *Node) execPingMessage(msg types.Message, from string) error {
	ping := msg.(*types.PingMessage)

	err := n.observe(ping.NodeID, from)
	if err != nil {
		return err
	}

	return n.send(from, types.PongMessage{NodeID: n.conf.ID.Hex()})
}

func (n *Node) execPongMessage(msg types.Message, from string) error {
	pong := msg.(*types.PongMessage)

	return n.observe(pong.NodeID, from)
}

func (n *Node) execStoreMessage(msg types.Message, from string) error {
	store := msg.(*types.StoreMessage)

	err := n.observe(store.NodeID, from)
	if err != nil {
		return err
	}

	_, err = NodeIDFromHex(store.Key)
	if err != nil {
		return registry.ErrMalformedFrame
	}

	n.store.Put(store.Key, store.Value, n.conf.TTL)
	return nil
}

func (n *Node) execFindValueMessage(msg types.Message, from string) error {
	findValue := msg.(*types.FindValueMessage)

	err := n.observe(findValue.NodeID, from)
	if err != nil {
		return err
	}

	keyHash, err := NodeIDFromHex(findValue.Key)
	if err != nil {
		return registry.ErrMalformedFrame
	}

	value, ok := n.store.Get(findValue.Key)
	if ok {
		return n.send(from, types.FoundMessage{
			NodeID:  n.conf.ID.Hex(),
			Key:     findValue.Key,
			QueryID: findValue.QueryID,
			Value:   value,
		})
	}

	contacts := n.routingTable.Closest(keyHash, n.conf.K)
	infos := make([]types.ContactInfo, 0, len(contacts))
	for _, contact := range contacts {
		infos = append(infos, types.ContactInfo{
			NodeID:   contact.ID.Hex(),
			Endpoint: contact.Endpoint,
		})
	}

	return n.send(from, types.NodesMessage{
		NodeID:   n.conf.ID.Hex(),
		QueryID:  findValue.QueryID,
		Contacts: infos,
	})
}

func (n *Node) execFoundMessage(msg types.Message, from string) error {
	found := msg.(*types.FoundMessage)

	n.queries.Push(found.QueryID, found)

	return n.observe(found.NodeID, from)
}

func (n *Node) execNodesMessage(msg types.Message, from string) error {
	nodes := msg.(*types.NodesMessage)

	n.queries.Push(nodes.QueryID, nodes)

	return n.observe(nodes.NodeID, from)
}

func (n *Node) execNatPunchMessage(msg types.Message, from string) error {
	punch := msg.(*types.NatPunchMessage)

	err := n.observe(punch.NodeID, from)
	if err != nil {
		return err
	}

	return n.send(from, types.NatPunchAckMessage{NodeID: n.conf.ID.Hex()})
}

func (n *Node) execNatPunchAckMessage(msg types.Message, from string) error {
	ack := msg.(*types.NatPunchAckMessage)

	// one-shot listeners come before our own dispatch
	n.punches.Resolve(from)

	return n.observe(ack.NodeID, from)
}

// Ping probes an endpoint. The answer, if any, lands in the routing table
// through the regular observe path.
func (n *Node) Ping(endpoint string) error {
	return n.send(endpoint, types.PingMessage{NodeID: n.conf.ID.Hex()})
}

// Put inserts the record locally, then replicates it with a STORE to the k
// closest known nodes. Replication is fire-and-forget and runs in parallel.
func (n *Node) Put(key string, value json.RawMessage) error {
	keyHash := HashKey(key)
	n.store.Put(keyHash.Hex(), value, n.conf.TTL)

	contacts := n.routingTable.Closest(keyHash, n.conf.K)
	for _, contact := range contacts {
		go func(endpoint string) {
			err := n.send(endpoint, types.StoreMessage{
				NodeID: n.conf.ID.Hex(),
				Key:    keyHash.Hex(),
				Value:  value,
			})
			if err != nil {
				z.Logger.Debug().Msgf("[%s] failed to replicate %s to %s: %v", n.Addr(), key, endpoint, err)
			}
		}(contact.Endpoint)
	}

	return nil
}

// Get returns the value under a key. A live local record short-circuits with
// no network traffic; otherwise the alpha closest known nodes are queried
// concurrently and the first matching FOUND wins. Returns ErrNotFound when
// every query misses or the timeout passes.
func (n *Node) Get(key string) (json.RawMessage, error) {
	keyHash := HashKey(key)

	value, ok := n.store.Get(keyHash.Hex())
	if ok {
		return value, nil
	}

	contacts := n.routingTable.Closest(keyHash, n.conf.Alpha)
	if len(contacts) == 0 {
		return nil, ErrNotFound
	}

	queryID := xid.New().String()
	replies := n.queries.MakeChannel(queryID, len(contacts))
	defer n.queries.Delete(queryID)

	for _, contact := range contacts {
		err := n.send(contact.Endpoint, types.FindValueMessage{
			NodeID:  n.conf.ID.Hex(),
			Key:     keyHash.Hex(),
			QueryID: queryID,
		})
		if err != nil {
			z.Logger.Debug().Msgf("[%s] failed to query %s: %v", n.Addr(), contact.Endpoint, err)
		}
	}

	deadline := time.After(findValueTimeout)
	misses := 0

	for {
		select {
		case reply := <-replies:
			found, ok := reply.(*types.FoundMessage)
			if ok && len(found.Value) > 0 {
				return found.Value, nil
			}
			misses++
			if misses >= len(contacts) {
				return nil, ErrNotFound
			}
		case <-deadline:
			return nil, ErrNotFound
		}
	}
}

// LocalGet reads the local store only, without any network traffic.
func (n *Node) LocalGet(key string) (json.RawMessage, bool) {
	return n.store.Get(HashKey(key).Hex())
}

// HolePunch sends a NAT_PUNCH to the endpoint and reports whether a
// NAT_PUNCH_ACK came back from exactly that endpoint within the timeout.
// Expiry deallocates the waiter without touching the socket.
func (n *Node) HolePunch(endpoint string) (bool, error) {
	acked := n.punches.Install(endpoint)
	defer n.punches.Delete(endpoint)

	err := n.send(endpoint, types.NatPunchMessage{
		NodeID:    n.conf.ID.Hex(),
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return false, err
	}

	select {
	case <-acked:
		return true, nil
	case <-time.After(natPunchTimeout):
		return false, nil
	}
}
