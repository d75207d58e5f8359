// Package metrics holds the prometheus instruments exposed on the
// daemon's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RenewalExecutions counts reload invocations by trigger reason and
	// outcome ("success" or "failure").
	RenewalExecutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credmon_renewal_executions_total",
		Help: "Number of proxy reload executions, by reason and outcome.",
	}, []string{"reason", "outcome"})

	// RenewalsDeferred counts requests that arrived inside the cooldown
	// window and armed a deferred execution.
	RenewalsDeferred = promauto.NewCounter(prometheus.CounterOpts{
		Name: "credmon_renewals_deferred_total",
		Help: "Number of renewal requests deferred by the cooldown window.",
	})

	// RenewalsCoalesced counts requests folded into an already-armed
	// deferred execution.
	RenewalsCoalesced = promauto.NewCounter(prometheus.CounterOpts{
		Name: "credmon_renewals_coalesced_total",
		Help: "Number of renewal requests coalesced into a pending one.",
	})

	// WatchEvents counts debounced filesystem change signals by reason.
	WatchEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "credmon_watch_events_total",
		Help: "Number of debounced credential change events, by reason.",
	}, []string{"reason"})

	// HealthProbeFailures counts failed probes of the proxy health
	// endpoint.
	HealthProbeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "credmon_health_probe_failures_total",
		Help: "Number of failed proxy health probes.",
	})
)
