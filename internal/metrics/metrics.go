package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	WakeDetections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kmfl_wake_detections_total",
			Help: "Total number of wake word detections",
		},
	)

	Turns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kmfl_turns_total",
			Help: "Total number of answered turns by reply category",
		},
		[]string{"category"},
	)

	SilenceTimeouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kmfl_silence_timeouts_total",
			Help: "Listening turns that ended without any speech",
		},
	)

	RecognitionRestarts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kmfl_recognition_restarts_total",
			Help: "Recognition stream restarts by reason",
		},
		[]string{"reason"},
	)

	PlaybackFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "kmfl_playback_failures_total",
			Help: "Playback requests that ended with an error",
		},
	)

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "kmfl_active_sessions",
			Help: "Number of connected conversation sessions",
		},
	)

	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kmfl_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)
)
