package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	buildInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name:        "wobbridge_build_info",
			Help:        "Build information",
			ConstLabels: prometheus.Labels{"component": "server"},
		},
		[]string{"version"},
	)

	connectedAgents = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "wobbridge_connected_agents",
			Help: "Number of currently registered bridge agents",
		},
	)

	eventsReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wobbridge_events_received_total",
			Help: "Event envelopes received from agents",
		},
		[]string{"event_type"},
	)

	commandsSent = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wobbridge_commands_sent_total",
			Help: "Command envelopes dispatched to agents",
		},
		[]string{"command"},
	)

	commandOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wobbridge_command_outcomes_total",
			Help: "Command results by outcome",
		},
		[]string{"command", "outcome"},
	)

	commandDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wobbridge_command_duration_seconds",
			Help:    "Round trip duration of dispatched commands",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	consoleEvicted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "wobbridge_console_entries_evicted_total",
			Help: "Console entries dropped by bounded retention",
		},
	)
)

// Register registers all metrics with the provided registerer.
func Register(r prometheus.Registerer) {
	r.MustRegister(buildInfo, connectedAgents, eventsReceived, commandsSent, commandOutcomes, commandDuration, consoleEvicted)
}

// SetServerBuildInfo sets the build info metric for the server.
func SetServerBuildInfo(version string) {
	buildInfo.WithLabelValues(version).Set(1)
}

// AgentConnected adjusts the connected agent gauge.
func AgentConnected(delta int) {
	connectedAgents.Add(float64(delta))
}

// RecordEvent counts one received event envelope.
func RecordEvent(eventType string) {
	eventsReceived.WithLabelValues(eventType).Inc()
}

// RecordCommand counts one dispatched command.
func RecordCommand(command string) {
	commandsSent.WithLabelValues(command).Inc()
}

// RecordCommandOutcome counts a command result.
func RecordCommandOutcome(command string, success bool) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	commandOutcomes.WithLabelValues(command, outcome).Inc()
}

// ObserveCommandDuration records the round trip duration of a command.
func ObserveCommandDuration(command string, d time.Duration) {
	commandDuration.WithLabelValues(command).Observe(d.Seconds())
}

// RecordConsoleEviction counts one entry dropped by retention.
func RecordConsoleEviction() {
	consoleEvicted.Inc()
}
