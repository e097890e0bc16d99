// Package metrics wires the light-client core's observable counters and
// gauges into Prometheus. It is ambient instrumentation, not a spec
// component: the fork tree, trie calculator, block tree, and verification
// state machine all function identically whether or not a Registry is
// attached.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles every metric the core exposes. Callers construct one
// with NewRegistry and pass it (or its individual metrics) into the
// components that report through it; nothing in this package polls or
// pushes on its own.
type Registry struct {
	BlocksVerifiedTotal   *prometheus.CounterVec
	BlocksInsertedTotal   prometheus.Counter
	VerificationDuplicate prometheus.Counter
	VerificationFailed    prometheus.Counter
	CurrentBestNumber     prometheus.Gauge
	TrieRootComputations  prometheus.Counter
	TrieStorageRequests   prometheus.Counter
}

// NewRegistry constructs a Registry and registers every metric with reg.
func NewRegistry(reg prometheus.Registerer) *Registry {
	r := &Registry{
		BlocksVerifiedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "lightcore",
			Subsystem: "verify",
			Name:      "blocks_verified_total",
			Help:      "Count of header/body verification attempts by outcome.",
		}, []string{"outcome"}),
		BlocksInsertedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lightcore",
			Subsystem: "blocktree",
			Name:      "blocks_inserted_total",
			Help:      "Count of blocks appended to the non-finalized tree.",
		}),
		VerificationDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lightcore",
			Subsystem: "verify",
			Name:      "duplicate_total",
			Help:      "Count of verifications that found an already-known hash.",
		}),
		VerificationFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lightcore",
			Subsystem: "verify",
			Name:      "failed_total",
			Help:      "Count of verifications rejected by the consensus verifier.",
		}),
		CurrentBestNumber: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "lightcore",
			Subsystem: "blocktree",
			Name:      "current_best_number",
			Help:      "Block number of the tree's current best block.",
		}),
		TrieRootComputations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lightcore",
			Subsystem: "trie",
			Name:      "root_computations_total",
			Help:      "Count of completed root Merkle value calculations.",
		}),
		TrieStorageRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "lightcore",
			Subsystem: "trie",
			Name:      "storage_value_requests_total",
			Help:      "Count of StorageValue suspensions emitted by the trie calculator.",
		}),
	}

	reg.MustRegister(
		r.BlocksVerifiedTotal,
		r.BlocksInsertedTotal,
		r.VerificationDuplicate,
		r.VerificationFailed,
		r.CurrentBestNumber,
		r.TrieRootComputations,
		r.TrieStorageRequests,
	)
	return r
}
