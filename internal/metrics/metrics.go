// Package metrics holds the bridge's prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	FixesPublished = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gps_bridge",
		Name:      "fixes_published_total",
		Help:      "Fix records handed to the broker, by message type.",
	}, []string{"type"})

	PublishErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gps_bridge",
		Name:      "publish_errors_total",
		Help:      "Fix publishes the broker client refused.",
	})

	SentencesRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gps_bridge",
		Name:      "sentences_rejected_total",
		Help:      "NMEA lines that produced no fix, by reason.",
	}, []string{"reason"})

	SerialErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "gps_bridge",
		Name:      "serial_errors_total",
		Help:      "Serial runtime errors that stopped streaming.",
	})

	Commands = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "gps_bridge",
		Name:      "control_commands_total",
		Help:      "Control commands handled, by command and outcome.",
	}, []string{"command", "success"})

	Streaming = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "gps_bridge",
		Name:      "streaming",
		Help:      "1 while the serial read loop is active.",
	})
)

// Registry holds every collector above.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		FixesPublished,
		PublishErrors,
		SentencesRejected,
		SerialErrors,
		Commands,
		Streaming,
	)
}
