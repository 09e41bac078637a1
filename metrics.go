package cachewire

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeOK        = "ok"
	outcomeException = "exception"
	outcomeError     = "error"
)

// Metrics exports wire and request accounting to Prometheus.
// It implements wire.Stats and can be shared by a client and a server.
type Metrics struct {
	sentBytes             prometheus.Counter
	receivedBytes         prometheus.Counter
	messagesBeingReceived prometheus.Gauge
	bytesBeingReceived    prometheus.Gauge
	connectionsTimedOut   prometheus.Counter

	requests        *prometheus.CounterVec
	retries         prometheus.Counter
	handled         *prometheus.CounterVec
	handledDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors under namespace and registers them with reg.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		sentBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wire",
			Name:      "sent_bytes_total",
			Help:      "Bytes written to connections.",
		}),
		receivedBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wire",
			Name:      "received_bytes_total",
			Help:      "Bytes read from connections.",
		}),
		messagesBeingReceived: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "wire",
			Name:      "messages_being_received",
			Help:      "Messages whose header was read and that were not cleared yet.",
		}),
		bytesBeingReceived: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "wire",
			Name:      "bytes_being_received",
			Help:      "Payload bytes of the messages being received.",
		}),
		connectionsTimedOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "wire",
			Name:      "connections_timed_out_total",
			Help:      "Receives that gave up waiting on the flow gate.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "requests_total",
			Help:      "Client requests by outcome.",
		}, []string{"outcome"}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "client",
			Name:      "retries_total",
			Help:      "Requests resent to another server.",
		}),
		handled: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "messages_total",
			Help:      "Requests handled by the server, by message type and outcome.",
		}, []string{"type", "outcome"}),
		handledDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "message_duration_seconds",
			Help:      "Time from a complete request to its response being sent.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"type"}),
	}

	collectors := []prometheus.Collector{
		m.sentBytes, m.receivedBytes, m.messagesBeingReceived, m.bytesBeingReceived,
		m.connectionsTimedOut, m.requests, m.retries, m.handled, m.handledDuration,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) IncSentBytes(n int) {
	m.sentBytes.Add(float64(n))
}

func (m *Metrics) IncReceivedBytes(n int) {
	m.receivedBytes.Add(float64(n))
}

func (m *Metrics) IncMessagesBeingReceived(bytes int) {
	m.messagesBeingReceived.Inc()
	m.bytesBeingReceived.Add(float64(bytes))
}

func (m *Metrics) DecMessagesBeingReceived(bytes int) {
	m.messagesBeingReceived.Dec()
	m.bytesBeingReceived.Sub(float64(bytes))
}

func (m *Metrics) IncConnectionsTimedOut() {
	m.connectionsTimedOut.Inc()
}

func (m *Metrics) recordRequest(outcome string) {
	m.requests.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordRetry() {
	m.retries.Inc()
}

func (m *Metrics) recordHandled(msgType, outcome string, d time.Duration) {
	m.handled.WithLabelValues(msgType, outcome).Inc()
	m.handledDuration.WithLabelValues(msgType).Observe(d.Seconds())
}
