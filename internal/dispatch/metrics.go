package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"

	pkgprom "github.com/deca-sh/gateway/internal/pkg/prometheus"
)

var (
	metricQueued = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gateway",
		Subsystem: "dispatch",
		Name:      "queued",
		Help:      "Requests currently waiting in the dispatcher's priority queue.",
	})
	metricRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gateway",
		Subsystem: "dispatch",
		Name:      "running",
		Help:      "Requests currently executing in the handler.",
	})
	metricCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gateway",
		Subsystem: "dispatch",
		Name:      "completed_total",
		Help:      "Requests that finished, labeled by source and outcome.",
	}, []string{"source", "outcome"})
)

func init() {
	pkgprom.GetRegistry().MustRegister(metricQueued, metricRunning, metricCompleted)
}

// publishMetrics is invoked from event hooks installed by callers that want
// the default gateway metrics; it is not wired automatically so tests and
// alternate embedders can opt out by supplying their own EventHooks.
func publishMetrics() EventHooks {
	return EventHooks{
		OnComplete: func(req *Request, resp *Response) {
			metricCompleted.WithLabelValues(string(req.Source), "ok").Inc()
		},
		OnError: func(req *Request, err error) {
			metricCompleted.WithLabelValues(string(req.Source), "error").Inc()
		},
	}
}

// Metrics returns EventHooks that publish dispatch counters to the process
// Prometheus registry. Compose with ComposeHooks if the caller also needs
// its own hooks.
func Metrics() EventHooks {
	return publishMetrics()
}

// ComposeHooks runs every hs in order for each event. Nil hooks are skipped.
func ComposeHooks(hs ...EventHooks) EventHooks {
	return EventHooks{
		OnEnqueue: func(req *Request) {
			for _, h := range hs {
				if h.OnEnqueue != nil {
					h.OnEnqueue(req)
				}
			}
		},
		OnActive: func(req *Request) {
			for _, h := range hs {
				if h.OnActive != nil {
					h.OnActive(req)
				}
			}
		},
		OnComplete: func(req *Request, resp *Response) {
			for _, h := range hs {
				if h.OnComplete != nil {
					h.OnComplete(req, resp)
				}
			}
		},
		OnError: func(req *Request, err error) {
			for _, h := range hs {
				if h.OnError != nil {
					h.OnError(req, err)
				}
			}
		},
	}
}
