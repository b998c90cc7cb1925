package transport

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/sweeney/sensor-relay/internal/channel"
)

// DefaultMaxEntries bounds how many values one record may carry.
const DefaultMaxEntries = 64

// Entry is one timestamped numeric value at a dotted resource path.
type Entry struct {
	Path  string
	Time  time.Time
	Value float64
}

// Record accumulates entries for a single push. It is not safe for
// concurrent use; the pipeline owns one per publish cycle.
type Record struct {
	entries []Entry
	max     int
}

// NewRecord returns an empty record holding at most max entries.
// A max of zero or less falls back to DefaultMaxEntries.
func NewRecord(max int) *Record {
	if max <= 0 {
		max = DefaultMaxEntries
	}
	return &Record{max: max}
}

func (r *Record) Len() int    { return len(r.entries) }
func (r *Record) Empty() bool { return len(r.entries) == 0 }

// Entries returns the accumulated entries. The slice is shared; callers
// must not mutate it.
func (r *Record) Entries() []Entry { return r.entries }

// Reset drops all accumulated entries, keeping the capacity limit.
func (r *Record) Reset() { r.entries = r.entries[:0] }

// AppendNumeric adds one scalar entry. Non-finite values are rejected
// with ErrPayload, a full record with ErrRecordFull.
func (r *Record) AppendNumeric(path string, ts time.Time, value float64) error {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return fmt.Errorf("%w: non-finite value at %s", ErrPayload, path)
	}
	if len(r.entries) >= r.max {
		return ErrRecordFull
	}
	r.entries = append(r.entries, Entry{Path: path, Time: ts, Value: value})
	return nil
}

// Append encodes a channel value at its base path. Scalars map to the
// base path itself. Vectors fan out to .X/.Y/.Z suffixes. Positions map
// to the LwM2M location object plus a named vertical-accuracy resource,
// ignoring the base path. Either all components are appended or none.
func (r *Record) Append(basePath string, ts time.Time, v channel.Value) error {
	mark := len(r.entries)
	var err error
	switch val := v.(type) {
	case channel.Scalar:
		err = r.AppendNumeric(basePath, ts, float64(val))
	case channel.Vector3:
		err = r.appendAll(ts,
			Entry{Path: basePath + ".X", Value: val.X},
			Entry{Path: basePath + ".Y", Value: val.Y},
			Entry{Path: basePath + ".Z", Value: val.Z},
		)
	case channel.Position:
		err = r.appendAll(ts,
			Entry{Path: "lwm2m.6.0.0", Value: val.Lat},
			Entry{Path: "lwm2m.6.0.1", Value: val.Lon},
			Entry{Path: "lwm2m.6.0.2", Value: val.Alt},
			Entry{Path: "lwm2m.6.0.3", Value: val.HAcc},
			Entry{Path: "Sensors.Gps.VerticalAccuracy", Value: val.VAcc},
		)
	default:
		err = fmt.Errorf("%w: unknown value kind at %s", ErrPayload, basePath)
	}
	if err != nil {
		r.entries = r.entries[:mark]
		return err
	}
	return nil
}

func (r *Record) appendAll(ts time.Time, entries ...Entry) error {
	for _, e := range entries {
		if err := r.AppendNumeric(e.Path, ts, e.Value); err != nil {
			return err
		}
	}
	return nil
}

// Extend appends previously encoded entries, restoring a failed batch.
// Entries beyond capacity are not appended; the count of those dropped is
// returned so the caller can report them.
func (r *Record) Extend(entries []Entry) (dropped int) {
	for i, e := range entries {
		if len(r.entries) >= r.max {
			return len(entries) - i
		}
		r.entries = append(r.entries, e)
	}
	return 0
}

type wireEntry struct {
	Path      string  `json:"path"`
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

type wireRecord struct {
	Records []wireEntry `json:"records"`
}

// Payload serializes the record for the wire. Timestamps are encoded as
// Unix milliseconds.
func (r *Record) Payload() ([]byte, error) {
	w := wireRecord{Records: make([]wireEntry, 0, len(r.entries))}
	for _, e := range r.entries {
		w.Records = append(w.Records, wireEntry{
			Path:      e.Path,
			Timestamp: e.Time.UnixMilli(),
			Value:     e.Value,
		})
	}
	b, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayload, err)
	}
	return b, nil
}
