package identity

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"sync"
	"time"

	"github.com/rs/xid"
	"golang.org/x/xerrors"

	"github.com/veilnet/veil/customCrypto"
)

const rsaKeyBits = 2048

// Limits on ephemeral keys. A key that has signed maxEphemeralUses times, or
// that is older than ephemeralLifetime, is destroyed on the next Sign.
const (
	maxEphemeralUses  = 100
	ephemeralLifetime = time.Hour
)

// ErrUnknownEphemeralKey is returned by Sign when the handle does not name a
// live ephemeral key.
var ErrUnknownEphemeralKey = xerrors.New("unknown ephemeral key")

// ErrEphemeralKeyExpired is returned by Sign when the key hit its usage or
// age cap. The key is destroyed.
var ErrEphemeralKeyExpired = xerrors.New("ephemeral key expired")

// Identity is a long-term keypair together with a random pseudonym tag by
// which the node is known at the application layer, unlinked to any network
// address. Ephemeral keys are owned exclusively by the identity; external
// holders only ever see opaque handles.
type Identity struct {
	sync.Mutex
	keyPair       *rsa.PrivateKey
	pseudonym     string
	ephemeralKeys map[string]*ephemeralKey
}

type ephemeralKey struct {
	keyPair *rsa.PrivateKey
	created time.Time
	uses    int
}

// New creates an identity with a fresh RSA-2048 keypair and a 128-bit random
// pseudonym tag.
func New() (*Identity, error) {
	keyPair, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return nil, xerrors.Errorf("failed to generate long-term keypair: %v", err)
	}

	tag := make([]byte, 16)
	_, err = rand.Read(tag)
	if err != nil {
		return nil, xerrors.Errorf("failed to generate pseudonym tag: %v", err)
	}

	return &Identity{
		keyPair:       keyPair,
		pseudonym:     hex.EncodeToString(tag),
		ephemeralKeys: make(map[string]*ephemeralKey),
	}, nil
}

// Pseudonym returns the pseudonym tag, 32 hex characters.
func (id *Identity) Pseudonym() string {
	return id.pseudonym
}

// PublicKey returns the long-term public key.
func (id *Identity) PublicKey() *rsa.PublicKey {
	return &id.keyPair.PublicKey
}

// PrivateKey returns the long-term private key. Used by the onion engine to
// peel envelopes addressed to this node.
func (id *Identity) PrivateKey() *rsa.PrivateKey {
	return id.keyPair
}

// NewEphemeral mints a keypair with usage caps and returns its handle.
func (id *Identity) NewEphemeral() (string, error) {
	keyPair, err := rsa.GenerateKey(rand.Reader, rsaKeyBits)
	if err != nil {
		return "", xerrors.Errorf("failed to generate ephemeral keypair: %v", err)
	}

	handle := xid.New().String()

	id.Lock()
	defer id.Unlock()

	id.ephemeralKeys[handle] = &ephemeralKey{
		keyPair: keyPair,
		created: time.Now(),
	}

	return handle, nil
}

// Sign signs msg with the ephemeral key behind handle and returns the
// signature in base64. The use counter is incremented first; if the key then
// exceeds its usage cap, or is past its lifetime, it is destroyed and
// ErrEphemeralKeyExpired is returned.
func (id *Identity) Sign(msg []byte, handle string) (string, error) {
	id.Lock()
	defer id.Unlock()

	key, ok := id.ephemeralKeys[handle]
	if !ok {
		return "", ErrUnknownEphemeralKey
	}

	key.uses++
	if key.uses > maxEphemeralUses || time.Since(key.created) > ephemeralLifetime {
		delete(id.ephemeralKeys, handle)
		return "", ErrEphemeralKeyExpired
	}

	digest := sha256.Sum256(msg)
	signature, err := customCrypto.SignRSA(key.keyPair, digest[:])
	if err != nil {
		return "", xerrors.Errorf("failed to sign with ephemeral key: %v", err)
	}

	return base64.StdEncoding.EncodeToString(signature), nil
}

// EphemeralPublicKey returns the public half of a live ephemeral key.
func (id *Identity) EphemeralPublicKey(handle string) (*rsa.PublicKey, error) {
	id.Lock()
	defer id.Unlock()

	key, ok := id.ephemeralKeys[handle]
	if !ok {
		return nil, ErrUnknownEphemeralKey
	}

	return &key.keyPair.PublicKey, nil
}

// Prove returns SHA-256(pseudonym || challenge), a proof of pseudonym
// ownership for the given challenge.
func (id *Identity) Prove(challenge []byte) []byte {
	return digestProof(id.pseudonym, challenge)
}

// Verify checks a proof against the recomputed digest in constant time, so
// that a mismatch leaks no byte-position timing.
func Verify(proof, challenge []byte, pseudonym string) bool {
	expected := digestProof(pseudonym, challenge)
	return subtle.ConstantTimeCompare(proof, expected) == 1
}

func digestProof(pseudonym string, challenge []byte) []byte {
	h := sha256.New()
	h.Write([]byte(pseudonym))
	h.Write(challenge)
	return h.Sum(nil)
}
