package metrics

import (
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
)

// noopMetrics discards every recording; used by components run outside of a
// full driver (unit tests, or wiring that passes no Metricer).
type noopMetrics struct {
	opmetrics.NoopRefMetrics
	opmetrics.NoopRPCMetrics
}

var NoopMetrics Metricer = new(noopMetrics)

func (*noopMetrics) RecordInfo(version string) {}
func (*noopMetrics) RecordUp()                 {}

func (*noopMetrics) RecordRequestCreated(kind string)                                     {}
func (*noopMetrics) RecordRequestStatus(kind string, status string)                       {}
func (*noopMetrics) RecordRequestDuration(kind string, terminalStatus string, seconds float64) {}
func (*noopMetrics) RecordProofLatency(kind string, seconds float64)                      {}

func (*noopMetrics) RecordGameCreated(role string)              {}
func (*noopMetrics) RecordGameChallenged(role string)           {}
func (*noopMetrics) RecordGameResolved(role string, won bool)   {}
func (*noopMetrics) RecordBondClaimed(role string, amountWei float64) {}
func (*noopMetrics) RecordAnchorAdvanced(l2Block uint64)        {}

func (*noopMetrics) RecordPipelineQueueDepth(status string, n float64) {}
