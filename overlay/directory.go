package overlay

import (
	"crypto/rsa"
	"sync"

	"github.com/veilnet/veil/dht"
	"github.com/veilnet/veil/onion"
)

// DirectoryEntry is what the overlay knows about a relay: the public key its
// onion layers are encrypted to and its stream endpoint.
type DirectoryEntry struct {
	PublicKey *rsa.PublicKey
	Endpoint  string
}

/*
A map which contains the relay material of nodes known to the overlay, keyed
by node identifier. It is thread-safe and has some basic functionalities.
*/
type Directory struct {
	sync.Mutex
	dir map[string]DirectoryEntry
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{dir: make(map[string]DirectoryEntry)}
}

// Add records or refreshes a node's relay material. Returns true if the node
// was not known before.
func (d *Directory) Add(nodeID string, entry DirectoryEntry) bool {
	d.Lock()
	defer d.Unlock()

	_, check := d.dir[nodeID]
	d.dir[nodeID] = entry
	return !check
}

// Get returns a node's relay material.
func (d *Directory) Get(nodeID string) (DirectoryEntry, bool) {
	d.Lock()
	defer d.Unlock()

	entry, check := d.dir[nodeID]
	return entry, check
}

// Contains reports whether the node is known.
func (d *Directory) Contains(nodeID string) bool {
	d.Lock()
	defer d.Unlock()

	_, check := d.dir[nodeID]
	return check
}

// Len returns the number of known nodes.
func (d *Directory) Len() int {
	d.Lock()
	defer d.Unlock()

	return len(d.dir)
}

// directoryResolver feeds the onion engine from the directory.
//
// - implements onion.Resolver
type directoryResolver struct {
	dir *Directory
}

// Resolve implements onion.Resolver
func (r directoryResolver) Resolve(id dht.NodeID) (onion.Hop, bool) {
	entry, ok := r.dir.Get(id.Hex())
	if !ok {
		return onion.Hop{}, false
	}

	return onion.Hop{
		ID:        id,
		PublicKey: entry.PublicKey,
		Endpoint:  entry.Endpoint,
	}, true
}
