package overlay

import (
	"container/heap"
	mrand "math/rand"
	"sync"
	"time"

	z "github.com/veilnet/veil/logger"
)

// mixRecord is one pending inbound frame with its scheduled release time.
type mixRecord struct {
	frame     []byte
	from      string
	releaseAt time.Time
}

// newMixer returns a mixer releasing frames through dispatch after a delay
// drawn uniformly from [0, delayMax].
func newMixer(delayMax time.Duration, dispatch func(frame []byte, from string)) *mixer {
	return &mixer{
		delayMax: delayMax,
		dispatch: dispatch,
		wake:     make(chan struct{}, 1),
	}
}

// mixer decorrelates frame arrival and departure timing: each inbound frame
// waits a random delay before dispatch, so release order is deliberately not
// arrival order.
type mixer struct {
	sync.Mutex
	queue    mixQueue
	delayMax time.Duration
	dispatch func(frame []byte, from string)
	wake     chan struct{}
}

// Enqueue schedules a frame for release.
func (m *mixer) Enqueue(frame []byte, from string) {
	delay := time.Duration(0)
	if m.delayMax > 0 {
		delay = time.Duration(mrand.Int63n(int64(m.delayMax) + 1))
	}

	m.Lock()
	heap.Push(&m.queue, &mixRecord{
		frame:     frame,
		from:      from,
		releaseAt: time.Now().Add(delay),
	})
	m.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

// run releases due frames until done closes.
func (m *mixer) run(done <-chan struct{}) {
	for {
		due, wait := m.takeDue()

		for _, record := range due {
			m.release(record)
		}

		select {
		case <-done:
			return
		case <-m.wake:
		case <-time.After(wait):
		}
	}
}

// takeDue pops every record whose release time has passed and returns how
// long to sleep until the next one.
func (m *mixer) takeDue() ([]*mixRecord, time.Duration) {
	m.Lock()
	defer m.Unlock()

	now := time.Now()
	due := make([]*mixRecord, 0)
	for m.queue.Len() > 0 && !m.queue[0].releaseAt.After(now) {
		due = append(due, heap.Pop(&m.queue).(*mixRecord))
	}

	wait := time.Second
	if m.queue.Len() > 0 {
		wait = time.Until(m.queue[0].releaseAt)
	}

	return due, wait
}

// release dispatches one frame. A failing or panicking dispatcher must not
// take the node down.
func (m *mixer) release(record *mixRecord) {
	defer func() {
		if r := recover(); r != nil {
			z.Logger.Error().Msgf("mixing dispatcher panicked: %v", r)
		}
	}()

	m.dispatch(record.frame, record.from)
}

// Len returns the number of frames waiting for release.
func (m *mixer) Len() int {
	m.Lock()
	defer m.Unlock()

	return m.queue.Len()
}

// mixQueue orders pending records by release time.
//
// - implements heap.Interface
type mixQueue []*mixRecord

func (q mixQueue) Len() int { return len(q) }

func (q mixQueue) Less(i, j int) bool { return q[i].releaseAt.Before(q[j].releaseAt) }

func (q mixQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *mixQueue) Push(x interface{}) {
	*q = append(*q, x.(*mixRecord))
}

func (q *mixQueue) Pop() interface{} {
	old := *q
	n := len(old)
	record := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return record
}
