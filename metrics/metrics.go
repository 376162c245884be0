// Package metrics exposes Prometheus instrumentation for every control-plane
// component (planner, pipeline, aggregator, proposer, challenger): request
// pipeline throughput and latency, dispute game lifecycle counts, and bond
// claims, alongside the standard op-stack L1/L2 ref and RPC metrics.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

const Namespace = "op_succinct"

var _ opmetrics.RegistryMetricer = (*Metrics)(nil)

// Metricer is implemented by Metrics and NoopMetrics. Components depend on
// this interface rather than *Metrics so tests can inject NoopMetrics.
type Metricer interface {
	RecordInfo(version string)
	RecordUp()

	// RecordRequestCreated fires when the planner or aggregator enqueues a
	// new request (spec §4.4, §4.6).
	RecordRequestCreated(kind string)
	// RecordRequestStatus fires on every request status transition observed
	// by the pipeline (spec §4.5's state machine).
	RecordRequestStatus(kind string, status string)
	// RecordRequestDuration records the wall-clock time a request spent in
	// the pipeline between creation and its terminal status (Complete,
	// Relayed, Failed, or Cancelled).
	RecordRequestDuration(kind string, terminalStatus string, seconds float64)
	// RecordProofLatency records the duration of a single proving attempt,
	// as reported by the Prover Network Client (component B, spec §4.3).
	RecordProofLatency(kind string, seconds float64)

	// RecordGameCreated fires when the Proposer Loop submits create() (spec
	// §4.8 step 3).
	RecordGameCreated(role string)
	// RecordGameChallenged fires when the Challenger Loop submits
	// challenge() (spec §4.9 step 3).
	RecordGameChallenged(role string)
	// RecordGameResolved fires once a resolve() call lands, tagged with
	// whether the resolving role won.
	RecordGameResolved(role string, won bool)
	// RecordBondClaimed fires when claimCredit() lands (spec §4.8 step 7,
	// §4.9 bond-claim step), amountWei as a float64 (bond amounts are small
	// enough in practice not to lose precision; see DESIGN.md).
	RecordBondClaimed(role string, amountWei float64)
	// RecordAnchorAdvanced fires when the Proposer Loop moves the anchor to
	// a finalized DefenderWins game (spec §4.8 step 6).
	RecordAnchorAdvanced(l2Block uint64)

	// RecordPipelineQueueDepth reports the number of requests currently
	// sitting in a given pipeline stage (spec §4.5), sampled once per tick.
	RecordPipelineQueueDepth(status string, n float64)

	opmetrics.RefMetricer
	opmetrics.RPCMetricer
}

// Metrics is the production Metricer, backed by a dedicated
// prometheus.Registry (spec §6.5's ambient-stack expansion: every component
// exposes /metrics the way op-node and op-batcher do).
type Metrics struct {
	ns       string
	registry *prometheus.Registry
	factory  opmetrics.Factory

	opmetrics.RefMetrics
	opmetrics.RPCMetrics

	info prometheus.GaugeVec
	up   prometheus.Gauge

	requestsCreated  prometheus.CounterVec
	requestStatus    prometheus.GaugeVec
	requestDuration  prometheus.HistogramVec
	proofLatency     prometheus.HistogramVec

	gamesCreated    prometheus.CounterVec
	gamesChallenged prometheus.CounterVec
	gamesResolved   prometheus.CounterVec
	bondsClaimed    prometheus.CounterVec
	bondAmount      prometheus.CounterVec
	anchorBlock     prometheus.Gauge

	pipelineDepth prometheus.GaugeVec
}

var _ Metricer = (*Metrics)(nil)

// NewMetrics constructs a Metrics instance namespaced per process (proposer,
// challenger, or validity), mirroring op-interop-mon's per-process namespace
// convention.
func NewMetrics(procName string) *Metrics {
	if procName == "" {
		procName = "default"
	}
	ns := Namespace + "_" + procName

	registry := opmetrics.NewRegistry()
	factory := opmetrics.With(registry)

	return &Metrics{
		ns:       ns,
		registry: registry,
		factory:  factory,

		RefMetrics: opmetrics.MakeRefMetrics(ns, factory),
		RPCMetrics: opmetrics.MakeRPCMetrics(ns, factory),

		info: *factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "info",
			Help:      "Information about this op-succinct process",
		}, []string{"version"}),
		up: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "up",
			Help:      "1 if the process has finished starting up",
		}),

		requestsCreated: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "requests_created_total",
			Help:      "Number of proof requests created, by kind",
		}, []string{"kind"}),
		requestStatus: *factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "request_status",
			Help:      "Number of transitions observed into a status, by kind and status (never decremented)",
		}, []string{"kind", "status"}),
		requestDuration: *factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "request_duration_seconds",
			Help:      "Time a request spent in the pipeline before reaching a terminal status",
			Buckets:   prometheus.ExponentialBuckets(10, 2, 12),
		}, []string{"kind", "terminal_status"}),
		proofLatency: *factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "proof_latency_seconds",
			Help:      "Time the Prover Network Client spent waiting for a single proof",
			Buckets:   prometheus.ExponentialBuckets(5, 2, 12),
		}, []string{"kind"}),

		gamesCreated: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "games_created_total",
			Help:      "Number of dispute games created, by role",
		}, []string{"role"}),
		gamesChallenged: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "games_challenged_total",
			Help:      "Number of dispute games challenged, by role",
		}, []string{"role"}),
		gamesResolved: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "games_resolved_total",
			Help:      "Number of dispute games resolved, by role and outcome",
		}, []string{"role", "won"}),
		bondsClaimed: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "bonds_claimed_total",
			Help:      "Number of claimCredit calls landed, by role",
		}, []string{"role"}),
		bondAmount: *factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "bond_wei_claimed_total",
			Help:      "Cumulative bond wei claimed, by role",
		}, []string{"role"}),
		anchorBlock: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "anchor_l2_block",
			Help:      "Highest L2 block whose output root has been finalized on-chain",
		}),

		pipelineDepth: *factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "pipeline_queue_depth",
			Help:      "Number of requests sitting in a given pipeline status",
		}, []string{"status"}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Document() []opmetrics.DocumentedMetric {
	return m.factory.Document()
}

func (m *Metrics) RecordInfo(version string) {
	m.info.WithLabelValues(version).Set(1)
}

func (m *Metrics) RecordUp() {
	m.up.Set(1)
}

func (m *Metrics) RecordRequestCreated(kind string) {
	m.requestsCreated.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordRequestStatus(kind string, status string) {
	m.requestStatus.WithLabelValues(kind, status).Inc()
}

func (m *Metrics) RecordRequestDuration(kind string, terminalStatus string, seconds float64) {
	m.requestDuration.WithLabelValues(kind, terminalStatus).Observe(seconds)
}

func (m *Metrics) RecordProofLatency(kind string, seconds float64) {
	m.proofLatency.WithLabelValues(kind).Observe(seconds)
}

func (m *Metrics) RecordGameCreated(role string) {
	m.gamesCreated.WithLabelValues(role).Inc()
}

func (m *Metrics) RecordGameChallenged(role string) {
	m.gamesChallenged.WithLabelValues(role).Inc()
}

func (m *Metrics) RecordGameResolved(role string, won bool) {
	m.gamesResolved.WithLabelValues(role, fmt.Sprintf("%t", won)).Inc()
}

func (m *Metrics) RecordBondClaimed(role string, amountWei float64) {
	m.bondsClaimed.WithLabelValues(role).Inc()
	m.bondAmount.WithLabelValues(role).Add(amountWei)
}

func (m *Metrics) RecordAnchorAdvanced(l2Block uint64) {
	m.anchorBlock.Set(float64(l2Block))
}

func (m *Metrics) RecordPipelineQueueDepth(status string, n float64) {
	m.pipelineDepth.WithLabelValues(status).Set(n)
}
