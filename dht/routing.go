package dht

import (
	"sort"
	"sync"
	"time"
)

// Contact is a known node: its identifier, the endpoint of its datagram
// socket, and when we last heard from it. Contacts are only ever mutated
// through the routing table.
type Contact struct {
	ID       NodeID
	Endpoint string
	LastSeen time.Time
}

// NewRoutingTable returns an empty table for the given node, keeping at most
// k contacts per bucket.
func NewRoutingTable(self NodeID, k int) *RoutingTable {
	return &RoutingTable{
		self: self,
		k:    k,
	}
}

// RoutingTable is a fixed array of IDBits buckets. A contact lives in the
// bucket indexed by the most-significant set bit of XOR(self, contact), and
// buckets keep their contacts most-recently-seen first.
type RoutingTable struct {
	sync.Mutex
	self    NodeID
	k       int
	buckets [IDBits][]Contact
}

// Observe records that a node was just heard from. The contact moves to (or
// enters at) the front of its bucket; if the bucket then holds more than k
// contacts, the least-recently-seen one is dropped.
func (rt *RoutingTable) Observe(id NodeID, endpoint string) {
	dist := rt.self.Distance(id)
	if dist.IsZero() {
		return
	}

	rt.Lock()
	defer rt.Unlock()

	index := dist.BucketIndex()
	bucket := rt.buckets[index]

	for i, contact := range bucket {
		if contact.ID.Equal(id) {
			bucket = append(bucket[:i], bucket[i+1:]...)
			break
		}
	}

	bucket = append([]Contact{{ID: id, Endpoint: endpoint, LastSeen: time.Now()}}, bucket...)
	if len(bucket) > rt.k {
		bucket = bucket[:rt.k]
	}

	rt.buckets[index] = bucket
}

// Closest returns up to count contacts sorted by ascending XOR distance to
// the target, ties broken by the lexicographic order of the endpoint string.
func (rt *RoutingTable) Closest(target NodeID, count int) []Contact {
	rt.Lock()
	defer rt.Unlock()

	all := make([]Contact, 0)
	for _, bucket := range rt.buckets {
		all = append(all, bucket...)
	}

	sort.Slice(all, func(i, j int) bool {
		di := target.Distance(all[i].ID)
		dj := target.Distance(all[j].ID)
		if di == dj {
			return all[i].Endpoint < all[j].Endpoint
		}
		return di.Less(dj)
	})

	if count < 0 {
		count = 0
	}
	if count < len(all) {
		all = all[:count]
	}
	return all
}

// Bucket returns a copy of the bucket at the given index.
func (rt *RoutingTable) Bucket(index int) []Contact {
	rt.Lock()
	defer rt.Unlock()

	bucket := make([]Contact, len(rt.buckets[index]))
	copy(bucket, rt.buckets[index])
	return bucket
}

// NumContacts returns the total number of contacts in the table.
func (rt *RoutingTable) NumContacts() int {
	rt.Lock()
	defer rt.Unlock()

	total := 0
	for _, bucket := range rt.buckets {
		total += len(bucket)
	}
	return total
}
