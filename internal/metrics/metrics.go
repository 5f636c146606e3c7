package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcportal",
			Name:      "http_requests_total",
			Help:      "Count of API requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	statusCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcportal",
			Name:      "status_cache_total",
			Help:      "Status cache lookups by result (hit, miss).",
		},
		[]string{"result"},
	)

	statusProbes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcportal",
			Name:      "status_probes_total",
			Help:      "Server list pings by outcome.",
		},
		[]string{"outcome"},
	)

	probeLatency = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "mcportal",
			Name:      "status_probe_latency_ms",
			Help:      "Latency of successful server list pings in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 1500},
		},
	)

	discordMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcportal",
			Name:      "discord_messages_total",
			Help:      "Discord notifications by channel (dm, fallback) and result.",
		},
		[]string{"channel", "result"},
	)

	whitelistNotified = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "mcportal",
			Name:      "whitelist_notified_total",
			Help:      "Players announced after appearing in the whitelist.",
		},
	)

	applicationDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcportal",
			Name:      "application_decisions_total",
			Help:      "Applications by action (submitted, shortlist, accept, reject, reset, delete).",
		},
		[]string{"action"},
	)

	ticketEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "mcportal",
			Name:      "ticket_events_total",
			Help:      "Support ticket activity by kind.",
		},
		[]string{"kind"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests, statusCache, statusProbes, probeLatency,
			discordMessages, whitelistNotified, applicationDecisions, ticketEvents,
		)
	})
}

func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncStatusCache(result string) {
	statusCache.WithLabelValues(result).Inc()
}

func IncStatusProbe(outcome string) {
	statusProbes.WithLabelValues(outcome).Inc()
}

func ObserveProbeLatency(ms float64) {
	probeLatency.Observe(ms)
}

func IncDiscord(channel, result string) {
	discordMessages.WithLabelValues(channel, result).Inc()
}

func AddWhitelistNotified(n int) {
	whitelistNotified.Add(float64(n))
}

func IncApplication(action string) {
	applicationDecisions.WithLabelValues(action).Inc()
}

func IncTicket(kind string) {
	ticketEvents.WithLabelValues(kind).Inc()
}
