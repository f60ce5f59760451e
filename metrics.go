package wampclient

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/frol/wampclient/wamp"
)

var (
	registerOnce sync.Once

	messagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wampclient",
			Name:      "messages_total",
			Help:      "WAMP messages sent and received, by type.",
		},
		[]string{"direction", "type"},
	)
	unhandledMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wampclient",
			Name:      "unhandled_messages_total",
			Help:      "Router messages dropped because no handler exists for their code.",
		},
		[]string{"type"},
	)
	decodeFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wampclient",
			Name:      "decode_failures_total",
			Help:      "Inbound payloads dropped because they could not be decoded.",
		},
		[]string{"stage"},
	)
	correlationMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wampclient",
			Name:      "correlation_misses_total",
			Help:      "Replies and invocations that matched no pending request or registration.",
		},
		[]string{"type"},
	)
	pendingGauge = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "wampclient",
			Name:      "pending_requests",
			Help:      "Requests waiting for a reply from the router.",
		},
		[]string{"kind"},
	)
	invocationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "wampclient",
			Name:      "invocation_duration_seconds",
			Help:      "Time spent in registered procedure handlers.",
			Buckets:   prometheus.DefBuckets,
		},
	)
)

// RegisterMetrics registers the client's collectors with the default
// prometheus registry. It is safe to call more than once.
func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(messagesTotal, unhandledMessages, decodeFailures,
			correlationMisses, pendingGauge, invocationDuration)
	})
}

const (
	stageDeserialize = "deserialize"
	stageEnvelope    = "envelope"
	stageMessage     = "message"
)

// undefined codes share one label value
const unknownType = "unknown"

func typeLabel(mt wamp.MessageType) string {
	if !mt.Defined() {
		return unknownType
	}
	return mt.String()
}

func recordMessage(direction string, mt wamp.MessageType) {
	messagesTotal.WithLabelValues(direction, typeLabel(mt)).Inc()
}

func recordUnhandled(mt wamp.MessageType) {
	unhandledMessages.WithLabelValues(typeLabel(mt)).Inc()
}

func recordDecodeFailure(stage string) {
	decodeFailures.WithLabelValues(stage).Inc()
}

func recordCorrelationMiss(mt wamp.MessageType) {
	correlationMisses.WithLabelValues(typeLabel(mt)).Inc()
}

func recordInvocation(d time.Duration) {
	invocationDuration.Observe(d.Seconds())
}
