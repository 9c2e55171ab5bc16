package dht

import (
	"sync"

	"github.com/veilnet/veil/types"
)

/*
A thread-safe map containing reply channels for in-flight FIND_VALUE queries,
keyed by query ID. A response with no matching waiter is dropped.
*/
type queryChannels struct {
	sync.Mutex
	channelMap map[string]chan types.Message
}

func newQueryChannels() *queryChannels {
	return &queryChannels{channelMap: make(map[string]chan types.Message)}
}

func (qc *queryChannels) MakeChannel(id string, size int) chan types.Message {
	qc.Lock()
	defer qc.Unlock()

	ch := make(chan types.Message, size)
	qc.channelMap[id] = ch
	return ch
}

func (qc *queryChannels) Push(id string, msg types.Message) {
	qc.Lock()
	defer qc.Unlock()

	ch, check := qc.channelMap[id]
	if !check {
		return
	}

	select {
	case ch <- msg:
	default:
	}
}

func (qc *queryChannels) Delete(id string) {
	qc.Lock()
	defer qc.Unlock()

	delete(qc.channelMap, id)
}

/*
A thread-safe map containing one-shot listeners for NAT_PUNCH_ACK frames,
keyed by the exact endpoint the punch was aimed at.
*/
type punchListeners struct {
	sync.Mutex
	channelMap map[string]chan bool
}

func newPunchListeners() *punchListeners {
	return &punchListeners{channelMap: make(map[string]chan bool)}
}

func (pl *punchListeners) Install(endpoint string) chan bool {
	pl.Lock()
	defer pl.Unlock()

	ch := make(chan bool, 1)
	pl.channelMap[endpoint] = ch
	return ch
}

// Resolve fires the listener installed for an endpoint, if any, and reports
// whether one was there.
func (pl *punchListeners) Resolve(endpoint string) bool {
	pl.Lock()
	defer pl.Unlock()

	ch, check := pl.channelMap[endpoint]
	if !check {
		return false
	}

	select {
	case ch <- true:
	default:
	}
	delete(pl.channelMap, endpoint)
	return true
}

func (pl *punchListeners) Delete(endpoint string) {
	pl.Lock()
	defer pl.Unlock()

	delete(pl.channelMap, endpoint)
}
