package web

import (
	"html/template"
	"io"
	"log"
	"strings"
	"time"

	"github.com/sweeney/ledmodes/internal/status"
)

// page is the data the status page renders.
type page struct {
	status.Snapshot
	Uptime time.Duration
}

var funcs = template.FuncMap{
	// since renders d rounded down to whole seconds.
	"since": func(d time.Duration) string {
		return d.Truncate(time.Second).String()
	},
	"modeOrUnknown": func(s string) string {
		if s == "" {
			return "UNKNOWN"
		}
		return s
	},
	"upper": strings.ToUpper,
}

var indexTmpl = template.Must(template.New("index").Funcs(funcs).Parse(indexHTML))

const indexHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>LED Modes</title>
<style>
:root { --fg: #222; --muted: #777; --ok: #2a7; --bad: #c33; --warn: #d90; }
body { font: 14px/1.4 ui-monospace, monospace; color: var(--fg); max-width: 40em; margin: 1.5em auto; padding: 0 1em; }
header { display: flex; align-items: baseline; gap: .6em; }
header h1 { font-size: 1.3em; margin: 0; }
section { margin-top: 1.2em; }
section h2 { font-size: 1em; text-transform: uppercase; color: var(--muted); margin: 0 0 .3em; }
dl { display: grid; grid-template-columns: 12em 1fr; margin: 0; }
dt, dd { margin: 0; padding: 3px 0; border-top: 1px solid #eee; }
.mode { font-weight: bold; }
.unknown, .pending { color: var(--warn); }
.up, .ok { color: var(--ok); }
.down, .err, .dropped { color: var(--bad); }
.live-dot { font-size: .8em; }
footer { margin-top: 1.5em; color: var(--muted); }
</style>
</head>
<body>
<header>
<h1>LED Modes</h1>
<span>{{upper .Config.Variant}}</span>
{{if .Config.WSBroker}}<span id="live-dot" class="live-dot pending" title="connecting" data-broker="{{.Config.WSBroker}}" data-topic="{{.Config.TopicPrefix}}/events">&#9679;</span>{{end}}
</header>

<section>
<h2>Mode</h2>
<dl>
<dt>Current</dt><dd id="mode" class="{{if .Ready}}mode{{else}}unknown{{end}}">{{modeOrUnknown .Mode}}</dd>
<dt>Last event</dt><dd id="last-event">{{with .LastEvent}}{{.}}{{else}}-{{end}}</dd>
<dt>Changed</dt><dd>{{if .Ready}}{{.LastTransition.UTC.Format "2006-01-02T15:04:05Z"}}{{else}}-{{end}}</dd>
<dt>Transitions</dt><dd>{{.Transitions}}</dd>
<dt>Ticks here</dt><dd>{{.Ticks}}</dd>
<dt>Queued events</dt><dd>{{.QueueDepth}}</dd>
</dl>
</section>

<section>
<h2>Inputs</h2>
<dl>
{{range $ev, $n := .Inputs.Pushed}}<dt>{{$ev}}</dt><dd>{{$n}}</dd>
{{else}}<dt>Events</dt><dd>none yet</dd>
{{end}}{{range $ev, $n := .Inputs.Dropped}}<dt>{{$ev}} dropped</dt><dd class="dropped">{{$n}}</dd>
{{end}}<dt>Throttled</dt><dd>{{.Inputs.Throttled}}</dd>
</dl>
</section>

<section>
<h2>Broker</h2>
<dl>
<dt>Link</dt><dd class="{{if .MQTTConnected}}up{{else}}down{{end}}">{{if .MQTTConnected}}up{{else}}down{{end}}</dd>
<dt>Address</dt><dd>{{.Config.Broker}}</dd>
<dt>Prefix</dt><dd>{{.Config.TopicPrefix}}</dd>
</dl>
</section>

<section>
<h2>Process</h2>
<dl>
<dt>Boot id</dt><dd>{{.BootID}}</dd>
<dt>Up</dt><dd>{{since .Uptime}} (since {{.StartTime.UTC.Format "2006-01-02T15:04:05Z"}})</dd>
<dt>Tick</dt><dd>{{.Config.TickMs}}ms</dd>
<dt>Lock timeout</dt><dd>{{.Config.LockTimeoutMs}}ms</dd>
<dt>Debounce</dt><dd>{{.Config.DebounceMs}}ms</dd>
<dt>Heartbeat</dt><dd>{{with .Config.HeartbeatMs}}{{.}}ms{{else}}off{{end}}</dd>
<dt>Listen</dt><dd>{{.Config.HTTPAddr}}</dd>
</dl>
</section>

<footer><a href="/index.json">index.json</a> &middot; <a href="/metrics">metrics</a></footer>
{{if .Config.WSBroker}}
<script src="/mqtt.min.js"></script>
<script>
(function() {
  var dot = document.getElementById("live-dot");
  var mode = document.getElementById("mode");
  var last = document.getElementById("last-event");
  var states = {
    connect: ["ok", "live"],
    reconnect: ["pending", "reconnecting"],
    offline: ["err", "offline"],
    error: ["err", "error"]
  };

  var client = mqtt.connect(dot.dataset.broker, { reconnectPeriod: 5000 });
  Object.keys(states).forEach(function(name) {
    client.on(name, function() {
      dot.className = "live-dot " + states[name][0];
      dot.title = states[name][1];
    });
  });
  client.on("connect", function() {
    client.subscribe(dot.dataset.topic);
  });
  client.on("message", function(_, raw) {
    var m;
    try { m = JSON.parse(raw.toString()).mode; } catch (e) { return; }
    if (!m) { return; }
    mode.textContent = m.to;
    mode.className = "mode";
    last.textContent = m.trigger;
  });
})();
</script>
{{end}}
</body>
</html>
`

func renderHTML(w io.Writer, snap status.Snapshot) {
	if err := indexTmpl.Execute(w, page{Snapshot: snap, Uptime: snap.Uptime()}); err != nil {
		log.Printf("status page: %v", err)
	}
}
