package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"
)

func TestNewTracker(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	cfg := Config{Mode: "polling", TickMs: 1000, Broker: "tcp://localhost:1883", HTTPAddr: ":8099"}
	tr := NewTracker(start, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(start) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, start)
	}
	if snap.Config.Mode != "polling" {
		t.Errorf("Config.Mode: got %q, want polling", snap.Config.Mode)
	}
	if snap.Config.HTTPAddr != ":8099" {
		t.Errorf("Config.HTTPAddr: got %q, want %q", snap.Config.HTTPAddr, ":8099")
	}
	if snap.SessionUp {
		t.Error("expected SessionUp=false initially")
	}
	if len(snap.Channels) != 0 {
		t.Errorf("expected no channels initially, got %d", len(snap.Channels))
	}
}

func TestUpdateChannelsAndSnapshot(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	ts := time.Date(2026, 3, 1, 9, 0, 5, 0, time.UTC)
	tr.UpdateChannels([]ChannelStatus{
		{Name: "light", State: "PUSHING", LastRead: ts, LastRecorded: ts},
		{Name: "pressure", State: "IDLE"},
	})

	snap := tr.Snapshot()
	if len(snap.Channels) != 2 {
		t.Fatalf("Channels: got %d, want 2", len(snap.Channels))
	}
	if snap.Channels[0].Name != "light" || snap.Channels[0].State != "PUSHING" {
		t.Errorf("channel 0: got %+v", snap.Channels[0])
	}
	if !snap.Channels[0].LastRecorded.Equal(ts) {
		t.Errorf("LastRecorded: got %v, want %v", snap.Channels[0].LastRecorded, ts)
	}
}

func TestSetSession(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	tr.SetSession(true)
	if !tr.Snapshot().SessionUp {
		t.Error("expected SessionUp=true")
	}

	tr.SetSession(false)
	if tr.Snapshot().SessionUp {
		t.Error("expected SessionUp=false")
	}
}

func TestSetLastPublish(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})

	if !tr.Snapshot().LastPublish.IsZero() {
		t.Error("expected zero LastPublish initially")
	}

	ts := time.Date(2026, 3, 1, 9, 2, 0, 0, time.UTC)
	tr.SetLastPublish(ts)
	if !tr.Snapshot().LastPublish.Equal(ts) {
		t.Errorf("LastPublish: got %v, want %v", tr.Snapshot().LastPublish, ts)
	}
}

func TestSnapshotUptime(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	snap := Snapshot{
		StartTime: start,
		Now:       start.Add(15 * time.Minute),
	}

	if snap.Uptime() != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", snap.Uptime())
	}
}

func TestSnapshotNowIsSet(t *testing.T) {
	tr := NewTracker(time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC), Config{})

	before := time.Now()
	snap := tr.Snapshot()
	after := time.Now()

	if snap.Now.Before(before) || snap.Now.After(after) {
		t.Errorf("Now (%v) not between %v and %v", snap.Now, before, after)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	tr.UpdateChannels([]ChannelStatus{{Name: "light", State: "IDLE"}})

	snap1 := tr.Snapshot()

	tr.UpdateChannels([]ChannelStatus{{Name: "light", State: "FAULT"}})

	// snap1 should still reflect old state
	if snap1.Channels[0].State != "IDLE" {
		t.Error("snapshot should be a copy; channel state was modified")
	}
}

func TestFormatJSON(t *testing.T) {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	snap := Snapshot{
		Channels: []ChannelStatus{
			{Name: "light", State: "PUSHING", LastRead: start.Add(14 * time.Minute)},
			{Name: "pressure", State: "IDLE"},
		},
		SessionUp:   true,
		LastPublish: start.Add(10 * time.Minute),
		StartTime:   start,
		Now:         start.Add(15 * time.Minute),
		Config:      Config{Mode: "buffered", TickMs: 1000, MinPublishMs: 10000, Broker: "tcp://localhost:1883", HTTPAddr: ":8099"},
	}

	data := FormatJSON(snap)

	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	if !parsed.Status.SessionUp {
		t.Error("expected session_up=true")
	}
	if parsed.Status.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", parsed.Status.UptimeSeconds)
	}
	if parsed.Status.LastPublish != "2026-03-01T09:10:00Z" {
		t.Errorf("LastPublish: got %q", parsed.Status.LastPublish)
	}
	if len(parsed.Status.Channels) != 2 {
		t.Fatalf("channels: got %d, want 2", len(parsed.Status.Channels))
	}
	if parsed.Status.Channels[0].State != "PUSHING" {
		t.Errorf("channel state: got %q, want PUSHING", parsed.Status.Channels[0].State)
	}
	if parsed.Status.Config.Mode != "buffered" {
		t.Errorf("config mode: got %q, want buffered", parsed.Status.Config.Mode)
	}
}

func TestFormatJSONOmitsZeroTimes(t *testing.T) {
	snap := Snapshot{
		Channels:  []ChannelStatus{{Name: "light", State: "IDLE"}},
		StartTime: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		Now:       time.Date(2026, 3, 1, 9, 0, 1, 0, time.UTC),
	}

	data := FormatJSON(snap)

	var raw map[string]interface{}
	json.Unmarshal(data, &raw)
	st := raw["status"].(map[string]interface{})
	if _, exists := st["last_publish"]; exists {
		t.Error("last_publish should be omitted when zero")
	}
	ch := st["channels"].([]interface{})[0].(map[string]interface{})
	if _, exists := ch["last_delivered"]; exists {
		t.Error("last_delivered should be omitted when zero")
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	// Writer
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			tr.UpdateChannels([]ChannelStatus{{Name: "light", State: "IDLE"}})
			tr.SetSession(i%2 == 0)
			tr.SetLastPublish(time.Now())
		}
	}()

	// Reader
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			snap := tr.Snapshot()
			_ = snap.Uptime()
		}
	}()

	wg.Wait()
}
