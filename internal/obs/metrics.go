package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the raffle collectors
type Metrics struct {
	Registry *prometheus.Registry

	EntriesTotal      *prometheus.CounterVec // raffle, result=success|insufficient_stake|not_open
	UpkeepsTotal      *prometheus.CounterVec // raffle, result=performed|not_needed|not_open|oracle_error
	FulfillmentsTotal *prometheus.CounterVec // raffle, result=settled|unknown_request|no_participants|payout_failed
	PayoutAmount      *prometheus.CounterVec // raffle

	Players             *prometheus.GaugeVec // raffle
	PendingRequests     *prometheus.GaugeVec // raffle, 0 or 1
	CalculatingSeconds  *prometheus.GaugeVec // raffle, set by the stuck-round monitor
	OracleLatencySecond *prometheus.HistogramVec
}

// NewMetrics creates and registers the collectors on a dedicated registry
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		EntriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tyche",
				Subsystem: "raffle",
				Name:      "entries_total",
				Help:      "Total raffle entry attempts by result.",
			},
			[]string{"raffle", "result"},
		),
		UpkeepsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tyche",
				Subsystem: "raffle",
				Name:      "upkeeps_total",
				Help:      "Total perform-upkeep attempts by result.",
			},
			[]string{"raffle", "result"},
		),
		FulfillmentsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tyche",
				Subsystem: "raffle",
				Name:      "fulfillments_total",
				Help:      "Total randomness fulfillments by result.",
			},
			[]string{"raffle", "result"},
		),
		PayoutAmount: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tyche",
				Subsystem: "raffle",
				Name:      "payout_amount_total",
				Help:      "Sum of balances paid out to winners.",
			},
			[]string{"raffle"},
		),
		Players: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "tyche",
				Subsystem: "raffle",
				Name:      "players",
				Help:      "Entries in the current round.",
			},
			[]string{"raffle"},
		),
		PendingRequests: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "tyche",
				Subsystem: "raffle",
				Name:      "pending_requests",
				Help:      "Outstanding randomness requests (0 or 1).",
			},
			[]string{"raffle"},
		),
		CalculatingSeconds: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "tyche",
				Subsystem: "keeper",
				Name:      "calculating_seconds",
				Help:      "Seconds the raffle has been waiting for randomness.",
			},
			[]string{"raffle"},
		),
		OracleLatencySecond: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tyche",
				Subsystem: "oracle",
				Name:      "request_duration_seconds",
				Help:      "Latency of randomness requests.",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
			},
			[]string{"raffle"},
		),
	}

	m.Registry.MustRegister(
		m.EntriesTotal,
		m.UpkeepsTotal,
		m.FulfillmentsTotal,
		m.PayoutAmount,
		m.Players,
		m.PendingRequests,
		m.CalculatingSeconds,
		m.OracleLatencySecond,
	)

	return m
}

// Handler exposes the registry for scraping
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
