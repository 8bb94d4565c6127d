// Package metrics exposes the validator's prometheus gauges and counters
// on MetricsAddr, covering consensus progress and pool/store pressure.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry groups the counters and gauges the validator reports.
type Registry struct {
	VotesCast        prometheus.Counter
	QcsFormed        prometheus.Counter
	BlocksCommitted  prometheus.Counter
	ViewChanges      prometheus.Counter
	PoolStageGauge   *prometheus.GaugeVec
	LockConflicts    prometheus.Counter
	ExecutionErrors  prometheus.Counter
	HighQcHeight     prometheus.Gauge
	LockedQcHeight   prometheus.Gauge

	registry *prometheus.Registry
}

// NewRegistry constructs and registers all validator metrics on a fresh
// prometheus.Registry.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		VotesCast: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dan_consensus_votes_cast_total",
			Help: "Number of votes cast by this replica.",
		}),
		QcsFormed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dan_consensus_qcs_formed_total",
			Help: "Number of quorum certificates formed while leading.",
		}),
		BlocksCommitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dan_consensus_blocks_committed_total",
			Help: "Number of blocks committed via the three-chain rule.",
		}),
		ViewChanges: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dan_consensus_view_changes_total",
			Help: "Number of view changes triggered by leader timeout.",
		}),
		PoolStageGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dan_pool_transactions_by_stage",
			Help: "Current transaction pool record count per stage.",
		}, []string{"stage"}),
		LockConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dan_store_lock_conflicts_total",
			Help: "Number of substate lock conflicts observed.",
		}),
		ExecutionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dan_executor_execution_failures_total",
			Help: "Number of transactions rejected with ExecutionFailure.",
		}),
		HighQcHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dan_consensus_high_qc_height",
			Help: "Height of the current high QC.",
		}),
		LockedQcHeight: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dan_consensus_locked_block_height",
			Help: "Height of the current locked block.",
		}),
	}
	reg.MustRegister(
		r.VotesCast, r.QcsFormed, r.BlocksCommitted, r.ViewChanges,
		r.PoolStageGauge, r.LockConflicts, r.ExecutionErrors,
		r.HighQcHeight, r.LockedQcHeight,
	)
	r.registry = reg
	return r
}

// Handler returns an http.Handler serving the registry in the prometheus
// text exposition format, meant to be mounted on Config.MetricsAddr.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
