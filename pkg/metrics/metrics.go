// Package metrics provides Prometheus metrics for the Clover service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MergesTotal tracks merge attempts by status
	MergesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "merge",
			Name:      "merges_total",
			Help:      "Total number of user merges by status",
		},
		[]string{"status"},
	)

	// MergeDuration tracks merge duration in seconds
	MergeDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "clover",
			Subsystem: "merge",
			Name:      "duration_seconds",
			Help:      "Duration of user merges in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
	)

	// RelationTransfersTotal tracks relation transfers by relation and outcome
	RelationTransfersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "merge",
			Name:      "relation_transfers_total",
			Help:      "Total number of relation transfers by relation and outcome",
		},
		[]string{"relation", "outcome"},
	)

	// ForwardMembersAdded tracks memberships copied by forward reconciliation
	ForwardMembersAdded = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "merge",
			Name:      "forward_members_added_total",
			Help:      "Total number of many-to-many memberships copied onto absorbers",
		},
		[]string{"relation"},
	)

	// MergeCommandsConsumed tracks merge commands read from Kafka
	MergeCommandsConsumed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "consumer",
			Name:      "merge_commands_total",
			Help:      "Total number of merge commands consumed by status",
		},
		[]string{"status"},
	)

	// LockContention tracks merges refused because a user was already being merged
	LockContention = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "clover",
			Subsystem: "merge",
			Name:      "lock_contention_total",
			Help:      "Total number of merges refused because a user lock was held",
		},
	)
)

// Status labels
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
	StatusInvalid = "invalid"
)
