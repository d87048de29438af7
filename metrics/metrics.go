package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DirectoryFetchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "battlealert_directory_fetches_total",
			Help: "Total master server directory fetch attempts",
		},
		[]string{"result"}, // ok|absent
	)

	CandidatesFound = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "battlealert_candidates_found",
			Help: "Candidates produced by the most recent directory fetch",
		},
	)

	ProbesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "battlealert_probes_total",
			Help: "Total latency probes by outcome",
		},
		[]string{"result"}, // accepted|rejected|no_response
	)

	ProbeRTT = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "battlealert_probe_rtt_seconds",
			Help:    "Round-trip time of answered discovery probes",
			Buckets: []float64{0.01, 0.025, 0.05, 0.075, 0.1, 0.15, 0.2, 0.3, 0.5, 0.75, 1},
		},
	)

	JobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "battlealert_jobs_total",
			Help: "Discovery jobs that stopped, by final state",
		},
		[]string{"result"}, // done|cancelled
	)

	ServersAccepted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "battlealert_servers_accepted_total",
			Help: "Servers that passed the tic delay threshold",
		},
	)
)

func init() {
	prometheus.MustRegister(DirectoryFetchesTotal)
	prometheus.MustRegister(CandidatesFound)
	prometheus.MustRegister(ProbesTotal)
	prometheus.MustRegister(ProbeRTT)
	prometheus.MustRegister(JobsTotal)
	prometheus.MustRegister(ServersAccepted)
}

func Register(mux *http.ServeMux) {
	mux.Handle("/metrics", promhttp.Handler())
}
