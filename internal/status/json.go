package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	SessionUp     bool          `json:"session_up"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	LastPublish   string        `json:"last_publish,omitempty"`
	Channels      []ChannelJSON `json:"channels"`
	Config        ConfigJSON    `json:"config"`
}

// ChannelJSON is the JSON representation of one channel.
type ChannelJSON struct {
	Name          string `json:"name"`
	State         string `json:"state"`
	LastRead      string `json:"last_read,omitempty"`
	LastRecorded  string `json:"last_recorded,omitempty"`
	LastDelivered string `json:"last_delivered,omitempty"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Mode         string `json:"mode"`
	TickMs       int64  `json:"tick_ms"`
	MinPublishMs int64  `json:"min_publish_ms"`
	MaxPublishMs int64  `json:"max_publish_ms"`
	StaleMs      int64  `json:"stale_ms"`
	Broker       string `json:"broker"`
	HTTPAddr     string `json:"http_addr"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func buildInner(snap Snapshot) StatusInner {
	channels := make([]ChannelJSON, 0, len(snap.Channels))
	for _, ch := range snap.Channels {
		channels = append(channels, ChannelJSON{
			Name:          ch.Name,
			State:         ch.State,
			LastRead:      formatTime(ch.LastRead),
			LastRecorded:  formatTime(ch.LastRecorded),
			LastDelivered: formatTime(ch.LastDelivered),
		})
	}

	return StatusInner{
		SessionUp:     snap.SessionUp,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		LastPublish:   formatTime(snap.LastPublish),
		Channels:      channels,
		Config: ConfigJSON{
			Mode:         snap.Config.Mode,
			TickMs:       snap.Config.TickMs,
			MinPublishMs: snap.Config.MinPublishMs,
			MaxPublishMs: snap.Config.MaxPublishMs,
			StaleMs:      snap.Config.StaleMs,
			Broker:       snap.Config.Broker,
			HTTPAddr:     snap.Config.HTTPAddr,
		},
	}
}

// FormatJSON returns the JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}
