package testing

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/veilnet/veil/overlay"
)

// Option is a function transforming a test node configuration.
type Option func(*overlay.Configuration)

// WithCircuitLength sets the number of hops per circuit.
func WithCircuitLength(length int) Option {
	return func(conf *overlay.Configuration) {
		conf.CircuitLength = length
	}
}

// WithMixingDelayMax sets the upper bound of the inbound mixing delay.
func WithMixingDelayMax(delay time.Duration) Option {
	return func(conf *overlay.Configuration) {
		conf.MixingDelayMax = delay
	}
}

// WithMaxPeerConnections caps the peer set.
func WithMaxPeerConnections(max int) Option {
	return func(conf *overlay.Configuration) {
		conf.MaxPeerConnections = max
	}
}

// WithMesh sets the mesh topology and role.
func WithMesh(meshType, role string, supernodes []string) Option {
	return func(conf *overlay.Configuration) {
		conf.MeshType = meshType
		conf.Role = role
		conf.SupernodeList = supernodes
	}
}

// NewTestNode creates and starts an overlay node on the loopback interface,
// with ephemeral ports and without cover traffic so tests see only the
// frames they cause.
func NewTestNode(t *testing.T, opts ...Option) *overlay.Node {
	conf := overlay.Configuration{
		Address:              "127.0.0.1",
		Port:                 0,
		CoverTrafficDisabled: true,
	}

	for _, opt := range opts {
		opt(&conf)
	}

	node, err := overlay.NewNode(conf)
	require.NoError(t, err)

	err = node.Start()
	require.NoError(t, err)

	return node
}

// Connect introduces a to b, so both hold each other's relay material.
func Connect(t *testing.T, a, b *overlay.Node) {
	err := a.Announce(b.StreamAddr())
	require.NoError(t, err)
}

// WaitUntil polls cond until it holds or the timeout passes.
func WaitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not reached before timeout")
}
