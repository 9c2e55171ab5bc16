package dht

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func mustID(t *testing.T, s string) NodeID {
	id, err := NodeIDFromHex(s)
	require.NoError(t, err)
	return id
}

// Three IDs in the same bucket as seen from the zero node.
func sameBucketIDs(t *testing.T) (NodeID, NodeID, NodeID) {
	a := mustID(t, "80"+strings.Repeat("00", 19))
	b := mustID(t, "81"+strings.Repeat("00", 19))
	c := mustID(t, "82"+strings.Repeat("00", 19))
	return a, b, c
}

func Test_RoutingTable_Observe_Orders_Most_Recent_First(t *testing.T) {
	var self NodeID
	rt := NewRoutingTable(self, 20)

	a, b, c := sameBucketIDs(t)
	rt.Observe(a, "127.0.0.1:1")
	rt.Observe(b, "127.0.0.1:2")
	rt.Observe(c, "127.0.0.1:3")

	// re-observing A moves it back to the front
	rt.Observe(a, "127.0.0.1:1")

	bucket := rt.Bucket(0)
	require.Len(t, bucket, 3)
	require.Equal(t, a, bucket[0].ID)
	require.Equal(t, c, bucket[1].ID)
	require.Equal(t, b, bucket[2].ID)
}

func Test_RoutingTable_Observe_Evicts_Tail(t *testing.T) {
	var self NodeID
	rt := NewRoutingTable(self, 2)

	a, b, c := sameBucketIDs(t)
	rt.Observe(a, "127.0.0.1:1")
	rt.Observe(b, "127.0.0.1:2")
	rt.Observe(c, "127.0.0.1:3")

	bucket := rt.Bucket(0)
	require.Len(t, bucket, 2)
	require.Equal(t, c, bucket[0].ID)
	require.Equal(t, b, bucket[1].ID)
}

func Test_RoutingTable_Observe_No_Duplicates(t *testing.T) {
	var self NodeID
	rt := NewRoutingTable(self, 20)

	a, _, _ := sameBucketIDs(t)
	rt.Observe(a, "127.0.0.1:1")
	rt.Observe(a, "127.0.0.1:1")

	require.Equal(t, 1, rt.NumContacts())
}

func Test_RoutingTable_Observe_Ignores_Self(t *testing.T) {
	self := NewRandomNodeID()
	rt := NewRoutingTable(self, 20)

	rt.Observe(self, "127.0.0.1:1")
	require.Equal(t, 0, rt.NumContacts())
}

// Every contact sits in the bucket named by the most-significant differing
// bit, and no bucket exceeds k.
func Test_RoutingTable_Bucket_Invariants(t *testing.T) {
	self := NewRandomNodeID()
	k := 4
	rt := NewRoutingTable(self, k)

	for i := 0; i < 200; i++ {
		rt.Observe(NewRandomNodeID(), "127.0.0.1:1")
	}

	for index := 0; index < IDBits; index++ {
		bucket := rt.Bucket(index)
		require.LessOrEqual(t, len(bucket), k)

		seen := map[NodeID]bool{}
		for _, contact := range bucket {
			require.Equal(t, index, self.Distance(contact.ID).BucketIndex())
			require.False(t, seen[contact.ID])
			seen[contact.ID] = true
		}
	}
}

func Test_RoutingTable_Closest_Boundaries(t *testing.T) {
	var self NodeID
	rt := NewRoutingTable(self, 20)

	require.Empty(t, rt.Closest(NewRandomNodeID(), 0))

	a, b, c := sameBucketIDs(t)
	rt.Observe(a, "127.0.0.1:1")
	rt.Observe(b, "127.0.0.1:2")
	rt.Observe(c, "127.0.0.1:3")

	target := mustID(t, "80"+strings.Repeat("00", 19))

	all := rt.Closest(target, 10)
	require.Len(t, all, 3)
	require.Equal(t, a, all[0].ID)
	require.Equal(t, b, all[1].ID)
	require.Equal(t, c, all[2].ID)

	one := rt.Closest(target, 1)
	require.Len(t, one, 1)
	require.Equal(t, a, one[0].ID)
}

func Test_RoutingTable_Closest_Fully_Sorted(t *testing.T) {
	var self NodeID
	// k covers all 50 IDs, so no bucket evicts and every contact stays
	rt := NewRoutingTable(self, 50)

	for i := 0; i < 50; i++ {
		rt.Observe(NewRandomNodeID(), "127.0.0.1:1")
	}

	target := NewRandomNodeID()
	all := rt.Closest(target, 1000)
	require.Len(t, all, 50)

	for i := 1; i < len(all); i++ {
		prev := target.Distance(all[i-1].ID)
		cur := target.Distance(all[i].ID)
		require.False(t, cur.Less(prev))
	}
}
