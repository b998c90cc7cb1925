package store

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"

	"github.com/sweeney/sensor-relay/internal/channel"
)

// Badger is a persistent Store. Samples survive process restarts, so a relay
// that crashes mid-backlog resumes draining where it left off.
type Badger struct {
	db  *badger.DB
	log zerolog.Logger

	mu  sync.Mutex
	obs map[string]*badgerObservation
}

type badgerObservation struct {
	depth        int
	changeBy     float64
	lastAccepted channel.Value
	count        int
	notify       NotifyFunc
	onDrop       func()
}

// NewBadger opens (or creates) a store at dir.
func NewBadger(dir string, log zerolog.Logger) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger store: %w", err)
	}
	return &Badger{
		db:  db,
		log: log,
		obs: make(map[string]*badgerObservation),
	}, nil
}

// sampleKey builds "path\x00<big-endian unix nanos>" so that a prefix scan
// over one path iterates samples in timestamp order.
func sampleKey(path string, t time.Time) []byte {
	key := make([]byte, 0, len(path)+9)
	key = append(key, path...)
	key = append(key, 0)
	var ts [8]byte
	// Flip the sign bit so pre-epoch times (notably the zero time.Time
	// used as a "never delivered" cursor) sort before post-epoch ones.
	binary.BigEndian.PutUint64(ts[:], uint64(t.UnixNano())^(1<<63))
	return append(key, ts[:]...)
}

func samplePrefix(path string) []byte {
	return append([]byte(path), 0)
}

// envelope tags the concrete value type for decoding.
type envelope struct {
	Time     time.Time         `json:"time"`
	Scalar   *channel.Scalar   `json:"scalar,omitempty"`
	Vector   *channel.Vector3  `json:"vector,omitempty"`
	Position *channel.Position `json:"position,omitempty"`
}

func encodeSample(s Sample) ([]byte, error) {
	env := envelope{Time: s.Time}
	switch v := s.Value.(type) {
	case channel.Scalar:
		env.Scalar = &v
	case channel.Vector3:
		env.Vector = &v
	case channel.Position:
		env.Position = &v
	default:
		return nil, fmt.Errorf("store: unsupported value type %T", s.Value)
	}
	return json.Marshal(env)
}

func decodeSample(data []byte) (Sample, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Sample{}, fmt.Errorf("store: decode sample: %w", err)
	}
	s := Sample{Time: env.Time}
	switch {
	case env.Scalar != nil:
		s.Value = *env.Scalar
	case env.Vector != nil:
		s.Value = *env.Vector
	case env.Position != nil:
		s.Value = *env.Position
	default:
		return Sample{}, fmt.Errorf("store: sample has no value")
	}
	return s, nil
}

// Observe registers a buffered path and restores its buffered sample count
// and newest value from disk.
func (b *Badger) Observe(path string, obs Observation) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.obs[path]; ok {
		return fmt.Errorf("store: path %q already observed", path)
	}
	depth := obs.Depth
	if depth <= 0 {
		depth = DefaultDepth
	}
	o := &badgerObservation{depth: depth, changeBy: obs.ChangeBy, onDrop: obs.OnDrop}

	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := samplePrefix(path)
		var newest []byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			o.count++
			var err error
			newest, err = it.Item().ValueCopy(newest[:0])
			if err != nil {
				return err
			}
		}
		if newest != nil {
			s, err := decodeSample(newest)
			if err != nil {
				return err
			}
			o.lastAccepted = s.Value
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: restore %q: %w", path, err)
	}

	b.obs[path] = o
	return nil
}

// Subscribe registers the notify callback for a path.
func (b *Badger) Subscribe(path string, fn NotifyFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	o, ok := b.obs[path]
	if !ok {
		return fmt.Errorf("store: path %q not observed", path)
	}
	o.notify = fn
	return nil
}

// Push appends a sample, pruning the oldest entry when the buffer exceeds
// its depth, and notifies the path's subscriber.
func (b *Badger) Push(path string, s Sample) error {
	b.mu.Lock()
	o, ok := b.obs[path]
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("store: path %q not observed", path)
	}
	if !changeByAccepts(o.changeBy, o.lastAccepted, s.Value) {
		b.mu.Unlock()
		return nil
	}

	data, err := encodeSample(s)
	if err != nil {
		b.mu.Unlock()
		return err
	}

	key := sampleKey(path, s.Time)
	replaced := false
	err = b.db.Update(func(txn *badger.Txn) error {
		switch _, err := txn.Get(key); {
		case err == nil:
			// Same timestamp already buffered; overwrite in place
			// without growing or pruning.
			replaced = true
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		if err := txn.Set(key, data); err != nil {
			return err
		}
		if replaced || o.count < o.depth {
			return nil
		}
		// Prune the oldest sample for this path, never the one just
		// written: a sample older than everything buffered must not
		// delete itself.
		it := txn.NewIterator(badger.IteratorOptions{Prefix: samplePrefix(path)})
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			oldest := it.Item().KeyCopy(nil)
			if bytes.Equal(oldest, key) {
				continue
			}
			return txn.Delete(oldest)
		}
		return nil
	})
	if err != nil {
		b.mu.Unlock()
		return fmt.Errorf("store: push %q: %w", path, err)
	}

	pruned := false
	if !replaced {
		if o.count < o.depth {
			o.count++
		} else {
			pruned = true
			b.log.Warn().Str("path", path).Int("depth", o.depth).
				Msg("buffer full, dropping oldest samples")
		}
	}
	o.lastAccepted = s.Value
	notify := o.notify
	onDrop := o.onDrop
	b.mu.Unlock()

	if pruned && onDrop != nil {
		onDrop()
	}
	if notify != nil {
		notify(path, s)
	}
	return nil
}

// QueryAfter returns the oldest sample strictly newer than after.
func (b *Badger) QueryAfter(path string, after time.Time) (Sample, error) {
	b.mu.Lock()
	_, ok := b.obs[path]
	b.mu.Unlock()
	if !ok {
		return Sample{}, fmt.Errorf("store: path %q not observed", path)
	}

	var out Sample
	found := false
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{Prefix: samplePrefix(path)})
		defer it.Close()
		// Seek past every sample at or before the requested timestamp.
		it.Seek(sampleKey(path, after.Add(time.Nanosecond)))
		if !it.Valid() {
			return nil
		}
		return it.Item().Value(func(data []byte) error {
			s, err := decodeSample(data)
			if err != nil {
				return err
			}
			out = s
			found = true
			return nil
		})
	})
	if err != nil {
		return Sample{}, fmt.Errorf("store: query %q: %w", path, err)
	}
	if !found {
		return Sample{}, ErrNotFound
	}
	return out, nil
}

// CountAfter reports how many buffered samples are strictly newer than
// after.
func (b *Badger) CountAfter(path string, after time.Time) (int, error) {
	b.mu.Lock()
	_, ok := b.obs[path]
	b.mu.Unlock()
	if !ok {
		return 0, fmt.Errorf("store: path %q not observed", path)
	}

	n := 0
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.IteratorOptions{Prefix: samplePrefix(path)}
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(sampleKey(path, after.Add(time.Nanosecond))); it.Valid(); it.Next() {
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("store: count %q: %w", path, err)
	}
	return n, nil
}

// Close closes the underlying database.
func (b *Badger) Close() error {
	return b.db.Close()
}
