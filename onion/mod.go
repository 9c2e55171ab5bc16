package onion

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/xerrors"

	"github.com/veilnet/veil/customCrypto"
	"github.com/veilnet/veil/dht"
	z "github.com/veilnet/veil/logger"
	"github.com/veilnet/veil/types"
)

// DefaultMaxCircuits caps the number of live circuits an engine remembers.
// Older circuits are evicted least-recently-used first.
const DefaultMaxCircuits = 128

// ErrPeelFailed is returned by Unwrap when a layer does not decrypt or parse.
// Callers drop the packet silently.
var ErrPeelFailed = xerrors.New("onion peel failed")

// ErrEmptyCircuit is returned by BuildCircuit when not a single relay could
// be resolved.
var ErrEmptyCircuit = xerrors.New("no relay could be resolved")

// Hop is one relay of a circuit: its identifier, the public key its layer is
// encrypted to, and the stream endpoint the previous hop forwards to.
type Hop struct {
	ID        dht.NodeID
	PublicKey *rsa.PublicKey
	Endpoint  string
}

// Circuit is an ordered sequence of hops under a fresh 128-bit identifier.
type Circuit struct {
	ID       string
	Hops     []Hop
	Created  time.Time
	LastUsed time.Time
}

// Resolver turns a node identifier into relay material. Supplied by the
// overlay at construction, so the engine needs no reference back into it.
type Resolver interface {
	Resolve(id dht.NodeID) (Hop, bool)
}

// NewEngine creates an onion engine. maxCircuits <= 0 falls back to
// DefaultMaxCircuits.
func NewEngine(resolver Resolver, maxCircuits int) (*Engine, error) {
	if maxCircuits <= 0 {
		maxCircuits = DefaultMaxCircuits
	}

	circuits, err := lru.New(maxCircuits)
	if err != nil {
		return nil, xerrors.Errorf("failed to create circuit cache: %v", err)
	}

	return &Engine{
		resolver: resolver,
		circuits: circuits,
	}, nil
}

// Engine assembles circuits and builds and peels the layered envelopes that
// travel along them.
type Engine struct {
	sync.Mutex
	resolver Resolver
	circuits *lru.Cache
}

// BuildCircuit resolves each identifier to a relay and assembles a circuit.
// Identifiers the resolver does not know are skipped silently, so the
// circuit may come out shorter than requested. Fails only when nothing
// resolves.
func (e *Engine) BuildCircuit(ids []dht.NodeID) (*Circuit, error) {
	hops := make([]Hop, 0, len(ids))
	for _, id := range ids {
		hop, ok := e.resolver.Resolve(id)
		if !ok {
			z.Logger.Debug().Msgf("skipping unresolvable relay %s", id.Hex())
			continue
		}
		hops = append(hops, hop)
	}

	if len(hops) == 0 {
		return nil, ErrEmptyCircuit
	}

	circuit := &Circuit{
		ID:      randomTag(),
		Hops:    hops,
		Created: time.Now(),
	}

	e.Lock()
	defer e.Unlock()
	e.circuits.Add(circuit.ID, circuit)

	return circuit, nil
}

// Circuit returns a live circuit by ID, marking it used.
func (e *Engine) Circuit(id string) (*Circuit, bool) {
	e.Lock()
	defer e.Unlock()

	value, ok := e.circuits.Get(id)
	if !ok {
		return nil, false
	}

	circuit := value.(*Circuit)
	circuit.LastUsed = time.Now()
	return circuit, true
}

// NumCircuits returns the number of live circuits.
func (e *Engine) NumCircuits() int {
	e.Lock()
	defer e.Unlock()

	return e.circuits.Len()
}

// forwardRecord is the plaintext of a non-terminal layer: the envelope for
// the next relay and where to send it.
type forwardRecord struct {
	Packet  types.OnionEnvelope `json:"packet"`
	NextHop string              `json:"next_hop"`
}

// deliveryRecord is the plaintext of the terminal layer.
type deliveryRecord struct {
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

// Wrap nests the payload in one encryption layer per hop, innermost first.
// The layer for hop i decrypts, with hop i's private key alone, to the
// envelope for hop i+1 plus that hop's endpoint; the last layer decrypts to
// the timestamped payload.
func (e *Engine) Wrap(payload json.RawMessage, circuit *Circuit) (types.OnionEnvelope, error) {
	if len(circuit.Hops) == 0 {
		return types.OnionEnvelope{}, ErrEmptyCircuit
	}

	last := len(circuit.Hops) - 1

	plaintext, err := json.Marshal(deliveryRecord{
		Payload:   payload,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		return types.OnionEnvelope{}, xerrors.Errorf("failed to marshal delivery record: %v", err)
	}

	envelope, err := wrapLayer(circuit.Hops[last].PublicKey, plaintext)
	if err != nil {
		return types.OnionEnvelope{}, err
	}

	for i := last - 1; i >= 0; i-- {
		plaintext, err = json.Marshal(forwardRecord{
			Packet:  envelope,
			NextHop: circuit.Hops[i+1].Endpoint,
		})
		if err != nil {
			return types.OnionEnvelope{}, xerrors.Errorf("failed to marshal forward record: %v", err)
		}

		envelope, err = wrapLayer(circuit.Hops[i].PublicKey, plaintext)
		if err != nil {
			return types.OnionEnvelope{}, err
		}
	}

	return envelope, nil
}

func wrapLayer(publicKey *rsa.PublicKey, plaintext []byte) (types.OnionEnvelope, error) {
	ciphertext, err := customCrypto.EncryptRSA(publicKey, plaintext)
	if err != nil {
		return types.OnionEnvelope{}, xerrors.Errorf("failed to encrypt onion layer: %v", err)
	}

	return types.OnionEnvelope{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
		NextHopTag: randomTag(),
	}, nil
}

// PeelResult is one peeled layer: either a forward to the next hop or, when
// NextHop is empty, the terminal delivery.
type PeelResult struct {
	NextHop   string
	Packet    *types.OnionEnvelope
	Payload   json.RawMessage
	Timestamp int64
}

// Delivery reports whether the peel surfaced the terminal payload.
func (r *PeelResult) Delivery() bool {
	return r.NextHop == ""
}

// Unwrap peels one layer with the node's private key. A relay learns nothing
// beyond its own plaintext: the previous hop, the next hop, and an opaque
// inner envelope. Any decryption or parse failure yields ErrPeelFailed.
func Unwrap(envelope types.OnionEnvelope, privateKey *rsa.PrivateKey) (*PeelResult, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(envelope.Ciphertext)
	if err != nil {
		return nil, ErrPeelFailed
	}

	plaintext, err := customCrypto.DecryptRSA(privateKey, ciphertext)
	if err != nil {
		return nil, ErrPeelFailed
	}

	var record struct {
		Packet    *types.OnionEnvelope `json:"packet"`
		NextHop   string               `json:"next_hop"`
		Payload   json.RawMessage      `json:"payload"`
		Timestamp int64                `json:"timestamp"`
	}
	err = json.Unmarshal(plaintext, &record)
	if err != nil {
		return nil, ErrPeelFailed
	}

	if record.NextHop != "" {
		if record.Packet == nil {
			return nil, ErrPeelFailed
		}
		return &PeelResult{NextHop: record.NextHop, Packet: record.Packet}, nil
	}

	return &PeelResult{Payload: record.Payload, Timestamp: record.Timestamp}, nil
}

// randomTag draws a fresh 128-bit identifier, 32 hex characters. Used both
// for circuit IDs and for the opaque next-hop tags on envelope layers.
func randomTag() string {
	tag := make([]byte, 16)
	_, err := rand.Read(tag)
	if err != nil {
		panic(err)
	}
	return hex.EncodeToString(tag)
}
