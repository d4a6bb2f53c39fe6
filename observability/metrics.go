package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups every Prometheus instrument of the process. All components
// receive the same instance; a nil Metrics disables instrumentation, which
// keeps tests free of a registry.
type Metrics struct {
	OnlineUsers       prometheus.Gauge
	OpenConnections   prometheus.Gauge
	RoutedMessages    *prometheus.CounterVec
	TypingRelayed     prometheus.Counter
	DroppedPushes     prometheus.Counter
	ProcessRSSBytes   prometheus.Gauge
	ProcessCPUPercent prometheus.Gauge
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OnlineUsers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "courier_online_users",
			Help: "Number of user identities with at least one live connection.",
		}),
		OpenConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "courier_open_connections",
			Help: "Number of open websocket connections.",
		}),
		RoutedMessages: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "courier_routed_messages_total",
			Help: "Messages routed, labelled by delivery status.",
		}, []string{"status"}),
		TypingRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "courier_typing_notices_total",
			Help: "Typing notices relayed to online recipients.",
		}),
		DroppedPushes: factory.NewCounter(prometheus.CounterOpts{
			Name: "courier_dropped_pushes_total",
			Help: "Outbound events dropped because a connection buffer was full.",
		}),
		ProcessRSSBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "courier_process_rss_bytes",
			Help: "Resident memory of the server process.",
		}),
		ProcessCPUPercent: factory.NewGauge(prometheus.GaugeOpts{
			Name: "courier_process_cpu_percent",
			Help: "CPU usage of the server process.",
		}),
	}
}
