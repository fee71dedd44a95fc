package command

import "github.com/prometheus/client_golang/prometheus"

const (
	resultSent     = "sent"
	resultFailed   = "failed"
	resultRejected = "rejected"

	unknownType = "unknown"
)

var (
	dispatchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "signage_commands_dispatched_total",
			Help: "Dispatch attempts by command type and result.",
		},
		[]string{"type", "result"},
	)
	deliveryDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "signage_command_delivery_seconds",
			Help:    "Latency of a single gateway delivery.",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func init() {
	prometheus.MustRegister(dispatchTotal, deliveryDuration)
}
