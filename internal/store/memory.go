package store

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/sensor-relay/internal/channel"
)

// ringBuffer is a fixed-capacity FIFO of samples. The oldest sample is
// overwritten when the buffer is full.
type ringBuffer struct {
	buf      []Sample
	capacity int
	head     int // next write position
	count    int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{
		buf:      make([]Sample, capacity),
		capacity: capacity,
	}
}

func (r *ringBuffer) push(s Sample) (dropped bool) {
	if r.count == r.capacity {
		// Overwrite oldest: head is already pointing at it.
		r.buf[r.head] = s
		r.head = (r.head + 1) % r.capacity
		return true
	}
	r.buf[r.head] = s
	r.head = (r.head + 1) % r.capacity
	r.count++
	return false
}

// oldestAfter returns the oldest sample strictly newer than after.
func (r *ringBuffer) oldestAfter(after time.Time) (Sample, bool) {
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		s := r.buf[(start+i)%r.capacity]
		if s.Time.After(after) {
			return s, true
		}
	}
	return Sample{}, false
}

// countAfter reports how many samples are strictly newer than after.
func (r *ringBuffer) countAfter(after time.Time) int {
	start := (r.head - r.count + r.capacity) % r.capacity
	n := 0
	for i := 0; i < r.count; i++ {
		if r.buf[(start+i)%r.capacity].Time.After(after) {
			n++
		}
	}
	return n
}

type memObservation struct {
	ring         *ringBuffer
	changeBy     float64
	lastAccepted channel.Value
	notify       NotifyFunc
	onDrop       func()
	warned       bool
}

// Memory is an in-process Store backed by per-path ring buffers.
type Memory struct {
	mu  sync.Mutex
	obs map[string]*memObservation
	log zerolog.Logger
}

// NewMemory creates an empty in-memory store.
func NewMemory(log zerolog.Logger) *Memory {
	return &Memory{
		obs: make(map[string]*memObservation),
		log: log,
	}
}

// Observe registers a buffered path.
func (m *Memory) Observe(path string, obs Observation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.obs[path]; ok {
		return fmt.Errorf("store: path %q already observed", path)
	}
	depth := obs.Depth
	if depth <= 0 {
		depth = DefaultDepth
	}
	m.obs[path] = &memObservation{
		ring:     newRingBuffer(depth),
		changeBy: obs.ChangeBy,
		onDrop:   obs.OnDrop,
	}
	return nil
}

// Subscribe registers the notify callback for a path.
func (m *Memory) Subscribe(path string, fn NotifyFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.obs[path]
	if !ok {
		return fmt.Errorf("store: path %q not observed", path)
	}
	o.notify = fn
	return nil
}

// Push appends a sample, applying the change-by filter, and notifies the
// path's subscriber.
func (m *Memory) Push(path string, s Sample) error {
	m.mu.Lock()
	o, ok := m.obs[path]
	if !ok {
		m.mu.Unlock()
		return fmt.Errorf("store: path %q not observed", path)
	}
	if !changeByAccepts(o.changeBy, o.lastAccepted, s.Value) {
		m.mu.Unlock()
		return nil
	}
	o.lastAccepted = s.Value
	dropped := o.ring.push(s)
	if dropped && !o.warned {
		o.warned = true
		m.log.Warn().Str("path", path).Int("depth", o.ring.capacity).
			Msg("buffer full, dropping oldest samples")
	}
	notify := o.notify
	onDrop := o.onDrop
	m.mu.Unlock()

	if dropped && onDrop != nil {
		onDrop()
	}
	if notify != nil {
		notify(path, s)
	}
	return nil
}

// QueryAfter returns the oldest sample strictly newer than after.
func (m *Memory) QueryAfter(path string, after time.Time) (Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.obs[path]
	if !ok {
		return Sample{}, fmt.Errorf("store: path %q not observed", path)
	}
	s, ok := o.ring.oldestAfter(after)
	if !ok {
		return Sample{}, ErrNotFound
	}
	return s, nil
}

// CountAfter reports how many buffered samples are strictly newer than
// after.
func (m *Memory) CountAfter(path string, after time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.obs[path]
	if !ok {
		return 0, fmt.Errorf("store: path %q not observed", path)
	}
	return o.ring.countAfter(after), nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error {
	return nil
}
