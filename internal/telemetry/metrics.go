package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quizlive",
		Name:      "sessions_created_total",
		Help:      "Game sessions created since process start.",
	})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quizlive",
		Name:      "active_sessions",
		Help:      "Sessions currently held in the registry.",
	})

	AnswersScored = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "quizlive",
		Name:      "answers_scored_total",
		Help:      "Answers accepted, scored and recorded.",
	})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "quizlive",
		Name:      "ws_connections",
		Help:      "Websocket connections currently open.",
	})
)
