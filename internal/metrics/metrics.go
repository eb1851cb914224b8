// Package metrics exposes Prometheus counters and gauges for the mode engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/ledmodes/internal/fsm"
)

const namespace = "ledmodes"

// Metrics owns a private registry so tests can create as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	pushed      *prometheus.CounterVec
	dropped     *prometheus.CounterVec
	throttled   prometheus.Counter
	transitions *prometheus.CounterVec
	ticks       *prometheus.CounterVec
	state       prometheus.Gauge
	queueDepth  prometheus.Gauge
	publishes   *prometheus.CounterVec
	requests    *prometheus.CounterVec
	durations   *prometheus.HistogramVec
}

// New creates and registers all collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		pushed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_pushed_total",
			Help:      "Events accepted into the queue.",
		}, []string{"event", "source"}),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Events dropped because the queue was full.",
		}, []string{"event", "source"}),
		throttled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_throttled_total",
			Help:      "Remote commands rejected by the rate limiter.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transitions_total",
			Help:      "Mode activations by source and target mode.",
		}, []string{"from", "to"}),
		ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Act invocations per mode.",
		}, []string{"state"}),
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "current_state",
			Help:      "Numeric id of the active mode.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Events waiting in the queue at the last sample.",
		}),
		publishes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mqtt_publish_total",
			Help:      "MQTT publish attempts by outcome.",
		}, []string{"result"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served by the status server.",
		}, []string{"route", "method", "status"}),
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
	}
	m.registry.MustRegister(
		m.pushed, m.dropped, m.throttled,
		m.transitions, m.ticks, m.state, m.queueDepth,
		m.publishes, m.requests, m.durations,
	)
	return m
}

// EventPushed implements input.Recorder.
func (m *Metrics) EventPushed(e fsm.Event, src string) {
	m.pushed.WithLabelValues(e.String(), src).Inc()
}

// EventDropped implements input.Recorder.
func (m *Metrics) EventDropped(e fsm.Event, src string) {
	m.dropped.WithLabelValues(e.String(), src).Inc()
}

// CommandThrottled implements input.Recorder.
func (m *Metrics) CommandThrottled() {
	m.throttled.Inc()
}

// Transition records a mode activation and updates the current state gauge.
func (m *Metrics) Transition(from, to string, toID fsm.StateID) {
	m.transitions.WithLabelValues(from, to).Inc()
	m.state.Set(float64(toID))
}

// Tick records one Act of the named mode.
func (m *Metrics) Tick(state string) {
	m.ticks.WithLabelValues(state).Inc()
}

// SetQueueDepth records the number of queued events.
func (m *Metrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

// Published records the outcome of an MQTT publish.
func (m *Metrics) Published(err error) {
	if err != nil {
		m.publishes.WithLabelValues("error").Inc()
		return
	}
	m.publishes.WithLabelValues("ok").Inc()
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware counts and times requests for route.
func (m *Metrics) Middleware(route string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			m.requests.WithLabelValues(route, r.Method, strconv.Itoa(rec.status)).Inc()
			m.durations.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}
