package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MessagesClassified counts inspected messages by verdict.
	MessagesClassified = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modbot_messages_classified_total",
		Help: "Number of messages inspected, by verdict",
	}, []string{"verdict"})

	// DeleteFailures counts best-effort deletions that failed, by reason.
	DeleteFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modbot_delete_failures_total",
		Help: "Number of message deletions that failed",
	}, []string{"reason"})

	// ApprovalsResolved counts approval requests by terminal state.
	ApprovalsResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modbot_approvals_resolved_total",
		Help: "Number of approval requests reaching a terminal state",
	}, []string{"outcome"})

	ApprovalsPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "modbot_approvals_pending",
		Help: "Number of approval requests awaiting the owner",
	})

	// ActionsExecuted counts kick and ban calls by result.
	ActionsExecuted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modbot_actions_executed_total",
		Help: "Number of moderation actions dispatched",
	}, []string{"action", "result"})

	CommandsHandled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "modbot_commands_total",
		Help: "Number of prefix commands handled",
	}, []string{"command", "result"})
)
