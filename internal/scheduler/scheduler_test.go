package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/sweeney/sensor-relay/internal/channel"
	"github.com/sweeney/sensor-relay/internal/logging"
	"github.com/sweeney/sensor-relay/internal/metrics"
	"github.com/sweeney/sensor-relay/internal/sensor"
	"github.com/sweeney/sensor-relay/internal/transport"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func at(sec int) time.Time {
	return t0.Add(time.Duration(sec) * time.Second)
}

type testWriter struct{ t *testing.T }

func (w testWriter) Write(p []byte) (int, error) {
	w.t.Log(string(p))
	return len(p), nil
}

func lightChannel(values ...channel.Value) *channel.Channel {
	return &channel.Channel{
		Name:       "light level",
		RecordPath: "Sensors.Light.Level",
		Read:       sensor.NewFake(values...).Reader(),
		Threshold:  channel.ScalarDelta(channel.DefaultLightThreshold),
	}
}

func pressureChannel(values ...channel.Value) *channel.Channel {
	return &channel.Channel{
		Name:       "pressure",
		RecordPath: "Sensors.Pressure.Pressure",
		Read:       sensor.NewFake(values...).Reader(),
		Threshold:  channel.ScalarDelta(channel.DefaultPressureThreshold),
	}
}

func newScheduler(t *testing.T, cfg Config, chs ...*channel.Channel) (*Scheduler, *transport.Fake) {
	t.Helper()
	pusher := transport.NewFake()
	s := New(channel.NewRegistry(chs...), pusher, cfg, metrics.NewTest(), logging.NewTestLogger(testWriter{t}))
	return s, pusher
}

// succeed acknowledges the most recent batch push.
func succeed(s *Scheduler, pusher *transport.Fake) {
	s.OnComplete(transport.Completion{Token: pusher.LastToken(), Status: transport.StatusSuccess})
}

func entryPaths(p transport.PushedRecord) []string {
	paths := make([]string, 0, len(p.Entries))
	for _, e := range p.Entries {
		paths = append(paths, e.Path)
	}
	return paths
}

func TestBaselineRecordedAndPublished(t *testing.T) {
	s, pusher := newScheduler(t, Config{}, lightChannel(channel.Scalar(100)))

	s.Tick(at(0))

	if len(pusher.Pushes) != 1 {
		t.Fatalf("expected 1 push, got %d", len(pusher.Pushes))
	}
	got := pusher.Pushes[0].Entries
	if len(got) != 1 || got[0].Path != "Sensors.Light.Level" || got[0].Value != 100 {
		t.Errorf("unexpected entries: %+v", got)
	}
}

func TestInsignificantChangeNotRecorded(t *testing.T) {
	ch := lightChannel(channel.Scalar(100), channel.Scalar(50), channel.Scalar(400))
	s, pusher := newScheduler(t, Config{}, ch)

	s.Tick(at(0)) // baseline
	succeed(s, pusher)

	s.Tick(at(1)) // 50: delta 50 under the 200 threshold
	if len(pusher.Pushes) != 1 {
		t.Fatalf("insignificant change pushed: %d pushes", len(pusher.Pushes))
	}
	if ch.LastRecorded != channel.Scalar(100) {
		t.Errorf("LastRecorded = %v, want 100", ch.LastRecorded)
	}

	s.Tick(at(2)) // 400: delta 300 crosses the threshold
	if ch.LastRecorded != channel.Scalar(400) {
		t.Errorf("LastRecorded = %v, want 400", ch.LastRecorded)
	}
	// Publish wanted but throttled (2s < 10s): deferred, not dropped.
	if len(pusher.Pushes) != 1 {
		t.Fatalf("throttled publish went out early: %d pushes", len(pusher.Pushes))
	}
	if !s.Deferred() {
		t.Error("expected deferred publish")
	}

	s.Tick(at(10))
	if len(pusher.Pushes) != 2 {
		t.Fatalf("expected deferred publish at t=10, got %d pushes", len(pusher.Pushes))
	}
	got := pusher.Pushes[1].Entries
	if len(got) != 1 || got[0].Value != 400 {
		t.Errorf("unexpected entries: %+v", got)
	}
}

func TestThrottleDefersSecondPublish(t *testing.T) {
	ch := lightChannel(
		channel.Scalar(100), // t=0 baseline
		channel.Scalar(400), // t=2 crosses threshold
		channel.Scalar(400),
	)
	s, pusher := newScheduler(t, Config{}, ch)

	s.Tick(at(0))
	succeed(s, pusher)
	s.Tick(at(2))

	if len(pusher.Pushes) != 1 || !s.Deferred() {
		t.Fatalf("expected deferral, pushes=%d deferred=%v", len(pusher.Pushes), s.Deferred())
	}

	// Nothing new between t=3 and t=9; the deferred publish must wait.
	for sec := 3; sec < 10; sec++ {
		s.Tick(at(sec))
		if len(pusher.Pushes) != 1 {
			t.Fatalf("publish escaped throttle at t=%d", sec)
		}
	}

	s.Tick(at(10))
	if len(pusher.Pushes) != 2 {
		t.Fatalf("expected exactly one deferred push at t=10, got %d total", len(pusher.Pushes))
	}
}

func TestForcedFlushBoundsStaleness(t *testing.T) {
	// Constant pressure never crosses its 1.0 kPa threshold; the forced
	// flush still publishes it once MaxInterval passes.
	ch := pressureChannel(channel.Scalar(100.0))
	s, pusher := newScheduler(t, Config{}, ch)

	s.Tick(at(0)) // baseline
	succeed(s, pusher)

	forcedAt := -1
	for sec := 1; sec <= 150; sec++ {
		s.Tick(at(sec))
		if len(pusher.Pushes) > 1 {
			forcedAt = sec
			break
		}
	}
	if forcedAt != 121 {
		t.Fatalf("forced publish at t=%d, want 121", forcedAt)
	}

	// The stale value rides along via the catch-up recording, stamped
	// with its read time.
	got := pusher.Pushes[1].Entries
	if len(got) != 1 || got[0].Value != 100.0 {
		t.Fatalf("unexpected entries: %+v", got)
	}
	if got[0].Time != at(121) {
		t.Errorf("catch-up timestamp = %v, want %v", got[0].Time, at(121))
	}
}

func TestStaleChannelRidesAlongWithTriggeredPublish(t *testing.T) {
	// Light crosses its threshold at t=61; pressure has been quiet since
	// its baseline and exceeds TimeToStale, so it is caught up in the
	// same batch.
	light := &channel.Channel{
		Name:       "light level",
		RecordPath: "Sensors.Light.Level",
		Threshold:  channel.ScalarDelta(channel.DefaultLightThreshold),
	}
	lightFake := sensor.NewFake(channel.Scalar(100))
	light.Read = lightFake.Reader()
	press := pressureChannel(channel.Scalar(100.0))

	s, pusher := newScheduler(t, Config{}, light, press)

	s.Tick(at(0)) // baselines for both
	succeed(s, pusher)

	for sec := 1; sec <= 60; sec++ {
		s.Tick(at(sec))
	}
	if len(pusher.Pushes) != 1 {
		t.Fatalf("unexpected publish before trigger: %d", len(pusher.Pushes))
	}

	lightFake.Values = []channel.Value{channel.Scalar(400)}
	lightFake.Reset()
	s.Tick(at(61))

	if len(pusher.Pushes) != 2 {
		t.Fatalf("expected triggered publish, got %d", len(pusher.Pushes))
	}
	paths := entryPaths(pusher.Pushes[1])
	wantLight, wantPressure := false, false
	for _, p := range paths {
		switch p {
		case "Sensors.Light.Level":
			wantLight = true
		case "Sensors.Pressure.Pressure":
			wantPressure = true
		}
	}
	if !wantLight || !wantPressure {
		t.Errorf("batch paths = %v, want light and stale pressure", paths)
	}
}

func TestFailedBatchRetainedForRetry(t *testing.T) {
	ch := lightChannel(channel.Scalar(100))
	s, pusher := newScheduler(t, Config{}, ch)

	s.Tick(at(0))
	if len(pusher.Pushes) != 1 {
		t.Fatalf("expected 1 push, got %d", len(pusher.Pushes))
	}
	s.OnComplete(transport.Completion{Token: pusher.LastToken(), Status: transport.StatusFailed})

	if !s.Deferred() {
		t.Fatal("expected retry to be deferred")
	}

	// Retry carries the original entry.
	s.Tick(at(10))
	if len(pusher.Pushes) != 2 {
		t.Fatalf("expected retry push, got %d", len(pusher.Pushes))
	}
	got := pusher.Pushes[1].Entries
	if len(got) != 1 || got[0].Value != 100 {
		t.Errorf("retried entries = %+v", got)
	}

	succeed(s, pusher)
	s.Tick(at(20))
	if len(pusher.Pushes) != 2 {
		t.Errorf("spurious push after successful retry: %d", len(pusher.Pushes))
	}
}

func TestRestoreOverflowRerecordsDroppedChannel(t *testing.T) {
	ch := lightChannel(channel.Scalar(100), channel.Scalar(400))
	s, pusher := newScheduler(t, Config{MaxRecordEntries: 1}, ch)

	s.Tick(at(0)) // baseline [100] pushed
	s.Tick(at(1)) // 400 recorded, publish deferred

	// The failed batch fills the restored record; the 400 entry does not
	// fit and is dropped, so its channel must be marked for re-record.
	s.OnComplete(transport.Completion{Token: pusher.LastToken(), Status: transport.StatusFailed})

	if !ch.NeverRecorded() {
		t.Fatal("expected recorded slot cleared for dropped entry")
	}

	s.Tick(at(10)) // retry [100]
	if len(pusher.Pushes) != 2 {
		t.Fatalf("expected retry push, got %d", len(pusher.Pushes))
	}
	succeed(s, pusher)

	s.Tick(at(11)) // cleared slot re-records 400 without a fresh crossing
	if ch.LastRecorded != channel.Scalar(400) {
		t.Fatalf("LastRecorded = %v, want re-recorded 400", ch.LastRecorded)
	}

	s.Tick(at(21))
	if len(pusher.Pushes) != 3 {
		t.Fatalf("expected re-recorded publish, got %d pushes", len(pusher.Pushes))
	}
	got := pusher.Pushes[2].Entries
	if len(got) != 1 || got[0].Value != 400 {
		t.Errorf("re-recorded entries = %+v", got)
	}
}

func TestBusyPushDeferred(t *testing.T) {
	ch := lightChannel(channel.Scalar(100))
	s, pusher := newScheduler(t, Config{}, ch)
	pusher.PushError = transport.ErrBusy

	s.Tick(at(0))
	if len(pusher.Pushes) != 0 || !s.Deferred() {
		t.Fatalf("expected deferral on busy transport, pushes=%d deferred=%v",
			len(pusher.Pushes), s.Deferred())
	}

	pusher.PushError = nil
	s.Tick(at(1))
	// lastPublish never advanced, so the retry is immediate.
	if len(pusher.Pushes) != 1 {
		t.Fatalf("expected retry push, got %d", len(pusher.Pushes))
	}
}

func TestReadErrorSkipsChannel(t *testing.T) {
	fake := sensor.NewFake(channel.Scalar(100))
	fake.ReadError = errors.New("sensor unreachable")
	ch := &channel.Channel{
		Name:       "light level",
		RecordPath: "Sensors.Light.Level",
		Read:       fake.Reader(),
		Threshold:  channel.ScalarDelta(channel.DefaultLightThreshold),
	}
	s, pusher := newScheduler(t, Config{}, ch)

	s.Tick(at(0))
	if len(pusher.Pushes) != 0 {
		t.Fatalf("expected no push for unreadable channel, got %d", len(pusher.Pushes))
	}

	// Sensor recovers; the baseline goes out.
	fake.ReadError = nil
	s.Tick(at(1))
	if len(pusher.Pushes) != 1 {
		t.Fatalf("expected push after recovery, got %d", len(pusher.Pushes))
	}
}

func TestSecondBatchWaitsForOutstandingPush(t *testing.T) {
	ch := lightChannel(channel.Scalar(100), channel.Scalar(400), channel.Scalar(800))
	s, pusher := newScheduler(t, Config{MinInterval: 1 * time.Second}, ch)

	s.Tick(at(0)) // baseline pushed, completion pending
	s.Tick(at(2)) // 400 recorded, but a batch is still in flight

	if len(pusher.Pushes) != 1 {
		t.Fatalf("expected second batch to wait, got %d pushes", len(pusher.Pushes))
	}
	if !s.Deferred() {
		t.Fatal("expected deferral while push outstanding")
	}

	succeed(s, pusher)
	s.Tick(at(3))
	if len(pusher.Pushes) != 2 {
		t.Fatalf("expected deferred batch after completion, got %d", len(pusher.Pushes))
	}
}
