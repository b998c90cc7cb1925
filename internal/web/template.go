package web

import (
	"fmt"
	"html/template"
	"io"
	"time"

	"github.com/sweeney/sensor-relay/internal/status"
)

var indexTmpl = template.Must(template.New("index").Funcs(template.FuncMap{
	"uptime": func(d time.Duration) string {
		d = d.Truncate(time.Second)
		days := int(d.Hours()) / 24
		h := int(d.Hours()) % 24
		m := int(d.Minutes()) % 60
		s := int(d.Seconds()) % 60
		if days > 0 {
			return fmt.Sprintf("%dd %dh %dm %ds", days, h, m, s)
		}
		if h > 0 {
			return fmt.Sprintf("%dh %dm %ds", h, m, s)
		}
		if m > 0 {
			return fmt.Sprintf("%dm %ds", m, s)
		}
		return fmt.Sprintf("%ds", s)
	},
	"when": func(t time.Time) string {
		if t.IsZero() {
			return "never"
		}
		return t.UTC().Format("2006-01-02T15:04:05Z")
	},
	"stateClass": func(s string) string {
		switch s {
		case "IDLE":
			return "idle"
		case "PUSHING", "BACKLOGGED":
			return "busy"
		case "FAULT":
			return "fault"
		}
		return "unknown"
	},
}).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Sensor Relay</title>
<style>
body { font-family: monospace; max-width: 720px; margin: 2em auto; padding: 0 1em; }
h1 { font-size: 1.4em; }
table { border-collapse: collapse; width: 100%; margin: 1em 0; }
td, th { text-align: left; padding: 4px 8px; border-bottom: 1px solid #ddd; }
.idle { color: green; }
.busy { color: orange; font-weight: bold; }
.fault { color: red; font-weight: bold; }
.unknown { color: #888; }
.connected { color: green; }
.disconnected { color: red; }
</style>
</head>
<body>
<h1>Sensor Relay</h1>

<h2>Channels</h2>
<table>
<tr><th>Channel</th><th>State</th><th>Last Read</th><th>Last Recorded</th><th>Last Delivered</th></tr>
{{range .Channels}}<tr>
<td>{{.Name}}</td>
<td class="{{stateClass .State}}">{{.State}}</td>
<td>{{when .LastRead}}</td>
<td>{{when .LastRecorded}}</td>
<td>{{when .LastDelivered}}</td>
</tr>{{end}}
</table>

<h2>Connectivity</h2>
<table>
<tr><th>Session</th><td class="{{if .SessionUp}}connected{{else}}disconnected{{end}}">{{if .SessionUp}}up{{else}}down{{end}}</td></tr>
<tr><th>Broker</th><td>{{.Config.Broker}}</td></tr>
<tr><th>Last Publish</th><td>{{when .LastPublish}}</td></tr>
</table>

<h2>System</h2>
<table>
<tr><th>Mode</th><td>{{.Config.Mode}}</td></tr>
<tr><th>Uptime</th><td>{{uptime .Uptime}}</td></tr>
<tr><th>Started</th><td>{{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}}</td></tr>
<tr><th>Tick</th><td>{{.Config.TickMs}}ms</td></tr>
<tr><th>Min Publish</th><td>{{.Config.MinPublishMs}}ms</td></tr>
<tr><th>Max Publish</th><td>{{.Config.MaxPublishMs}}ms</td></tr>
<tr><th>Stale After</th><td>{{.Config.StaleMs}}ms</td></tr>
<tr><th>HTTP</th><td>{{.Config.HTTPAddr}}</td></tr>
</table>

<p><a href="/index.json">JSON</a> &middot; <a href="/metrics">Metrics</a></p>
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	// Snapshot has Uptime() method but template needs a Duration field.
	data := struct {
		status.Snapshot
		Uptime time.Duration
	}{
		Snapshot: snap,
		Uptime:   snap.Uptime(),
	}
	indexTmpl.Execute(w, data)
}
