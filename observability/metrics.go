package observability

import (
	"net/http"
	"sync"

	"go_secure_send/networking/opcode"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registerOnce sync.Once

	requestsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "securesend",
			Subsystem: "protocol",
			Name:      "requests_total",
			Help:      "Requests sent to the server by op code.",
		},
		[]string{"op"},
	)
	responsesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "securesend",
			Subsystem: "protocol",
			Name:      "responses_total",
			Help:      "Responses received from the server by op code.",
		},
		[]string{"op"},
	)
	rejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "securesend",
			Subsystem: "protocol",
			Name:      "rejections_total",
			Help:      "Server rejections counted against the error budget.",
		},
		[]string{"reason"},
	)
	filePackets = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "securesend",
			Subsystem: "transfer",
			Name:      "packets_total",
			Help:      "File packets written.",
		},
	)
	fileBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "securesend",
			Subsystem: "transfer",
			Name:      "bytes_total",
			Help:      "Frame bytes written for file packets.",
		},
	)
	bursts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "securesend",
			Subsystem: "transfer",
			Name:      "bursts_total",
			Help:      "Complete file bursts sent.",
		},
	)
	sessions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "securesend",
			Subsystem: "session",
			Name:      "outcomes_total",
			Help:      "Finished sessions by terminal state.",
		},
		[]string{"outcome"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(requestsSent, responsesReceived, rejections,
			filePackets, fileBytes, bursts, sessions)
	})
}

func RecordRequest(code uint16) {
	RegisterMetrics()
	requestsSent.WithLabelValues(opcode.Name(code)).Inc()
}

func RecordResponse(code uint16) {
	RegisterMetrics()
	responsesReceived.WithLabelValues(opcode.Name(code)).Inc()
}

func RecordRejection(reason string) {
	RegisterMetrics()
	rejections.WithLabelValues(reason).Inc()
}

func RecordBurst(packets, bytes int) {
	RegisterMetrics()
	bursts.Inc()
	filePackets.Add(float64(packets))
	fileBytes.Add(float64(bytes))
}

func RecordOutcome(outcome string) {
	RegisterMetrics()
	sessions.WithLabelValues(outcome).Inc()
}

// Handler exposes the registered metrics in the Prometheus text format
func Handler() http.Handler {
	RegisterMetrics()
	return promhttp.Handler()
}
