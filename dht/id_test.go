package dht

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_NodeID_Hex_RoundTrip(t *testing.T) {
	id := NewRandomNodeID()

	parsed, err := NodeIDFromHex(id.Hex())
	require.NoError(t, err)
	require.True(t, id.Equal(parsed))
	require.Len(t, id.Hex(), 40)
}

func Test_NodeID_Hex_Rejects_Garbage(t *testing.T) {
	_, err := NodeIDFromHex("zz")
	require.Error(t, err)

	_, err = NodeIDFromHex("abcd")
	require.Error(t, err)
}

func Test_HashKey_Is_Stable(t *testing.T) {
	require.Equal(t, HashKey("alpha"), HashKey("alpha"))
	require.NotEqual(t, HashKey("alpha"), HashKey("beta"))
}

// The most-significant differing bit picks the bucket: flipping the top bit
// lands in bucket 0, flipping the bottom bit in bucket 159.
func Test_Distance_BucketIndex(t *testing.T) {
	self, err := NodeIDFromHex(strings.Repeat("00", 20))
	require.NoError(t, err)

	top, err := NodeIDFromHex("80" + strings.Repeat("00", 19))
	require.NoError(t, err)
	require.Equal(t, 0, self.Distance(top).BucketIndex())

	bottom, err := NodeIDFromHex(strings.Repeat("00", 19) + "01")
	require.NoError(t, err)
	require.Equal(t, 159, self.Distance(bottom).BucketIndex())

	// zero distance shares the last bucket
	require.Equal(t, 159, self.Distance(self).BucketIndex())
	require.True(t, self.Distance(self).IsZero())
}

func Test_Distance_Compares_Big_Endian(t *testing.T) {
	a, err := NodeIDFromHex("01" + strings.Repeat("00", 19))
	require.NoError(t, err)
	b, err := NodeIDFromHex(strings.Repeat("00", 19) + "ff")
	require.NoError(t, err)

	var zero NodeID
	require.True(t, zero.Distance(b).Less(zero.Distance(a)))
	require.False(t, zero.Distance(a).Less(zero.Distance(a)))
}
