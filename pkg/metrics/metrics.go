package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PollCycles tracks every RUNNING cycle by result
	// result: found, empty, error
	PollCycles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_poll_cycles_total",
		Help: "Total number of poll cycles executed by the monitor",
	}, []string{"result"})

	// CycleDuration measures fetch + forward latency inside one cycle
	// A cycle close to 5s means the loop will start skipping boundaries
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "monitor_cycle_duration_seconds",
		Help:    "Duration of a poll cycle from fetch to broadcast",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	})

	// ForwardOutcomes counts forwarder decisions
	// outcome: forwarded, duplicate, failed
	ForwardOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_forward_outcomes_total",
		Help: "Forwarder results per outcome",
	}, []string{"outcome"})

	// Resyncs counts error-driven returns to SYNCHRONIZING
	Resyncs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_resyncs_total",
		Help: "Number of times the loop lost alignment after an error",
	})

	// Running provides a binary 0/1 signal for the monitor intent flag
	Running = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monitor_running",
		Help: "1 while monitoring is started, 0 when stopped",
	})

	// DedupKeys tracks the size of the in-memory forwarded set
	// It only grows during the process lifetime
	DedupKeys = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monitor_dedup_keys",
		Help: "Record keys admitted by the dedup guard",
	})

	// Subscribers is the number of connected live-update sockets
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monitor_ws_subscribers",
		Help: "Current number of websocket observers",
	})

	// NotificationsDropped counts events a sink could not take in time
	NotificationsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_notifications_dropped_total",
		Help: "Events dropped by a notification sink",
	}, []string{"sink"})

	// BrokerHealth provides a 0/1 signal per external broker
	BrokerHealth = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "monitor_broker_healthy",
		Help: "Current health status of an event broker (1 healthy, 0 unhealthy)",
	}, []string{"broker"})
)
