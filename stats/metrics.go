package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "smbclient"

// Registry holds every client metric. It is separate from the default
// registry so embedding programs can choose where to expose it.
var Registry = prometheus.NewRegistry()

var (
	bytesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "bytes_total",
		Help:      "Payload bytes transferred, by direction.",
	}, []string{"direction"})

	opsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operations_total",
		Help:      "High level operations started, by kind.",
	}, []string{"op"})

	requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "SMB2 requests completed, by command and result.",
	}, []string{"command", "result"})

	requestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "request_duration_seconds",
		Help:      "Round trip time of SMB2 requests.",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 10),
	}, []string{"command"})

	protocolErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "protocol_errors_total",
		Help:      "Replies that violated the protocol and tore the connection down.",
	})

	retriesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retries_total",
		Help:      "Transient chunk failures that were retried.",
	}, []string{"op"})
)

func init() {
	Registry.MustRegister(
		bytesTotal,
		opsTotal,
		requestsTotal,
		requestDuration,
		protocolErrors,
		retriesTotal,
		collectors.NewGoCollector(),
	)
}
