// ABOUTME: Prometheus metrics for the chat service
// ABOUTME: Counters and latency histograms registered via promauto

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "copilotchat"

var (
	// MessagesSent counts user messages forwarded to the agent.
	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "messages_sent_total",
		Help:      "User messages sent to the Copilot Studio agent",
	})

	// SendErrors counts sends that ended in an error.
	SendErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "send_errors_total",
		Help:      "Messages whose agent response ended in an error",
	})

	// ActivitiesReceived counts agent activities by wire type.
	ActivitiesReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "activities_received_total",
		Help:      "Agent activities received, labeled by activity type",
	}, []string{"type"})

	// ResponseDuration observes time from send to end of response stream.
	ResponseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "response_duration_seconds",
		Help:      "Time from sending a message to the end of the response stream",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	})

	// ConversationsStarted counts new conversations.
	ConversationsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conversations_started_total",
		Help:      "Conversations started with the agent",
	})

	// ActiveSessions tracks live browser sessions.
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_sessions",
		Help:      "Browser sessions currently tracked",
	})

	// SignIns counts completed OAuth sign-ins.
	SignIns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sign_ins_total",
		Help:      "Completed Entra ID sign-ins",
	})
)
