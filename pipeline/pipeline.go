// Package pipeline implements the Proof Request Pipeline (component F): the
// durable state machine that drives each request from Unrequested through
// witness generation, execution, proving, and completion (spec §4.3).
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/succinctlabs/op-succinct-go/metrics"
	"github.com/succinctlabs/op-succinct-go/prover"
	"github.com/succinctlabs/op-succinct-go/store"
	"github.com/succinctlabs/op-succinct-go/types"
)

// WitnessGenerator runs the out-of-process host that produces witness bytes
// for a request (spec §4.3 (1)-(3)): spawn with a structured argument set,
// stop when ctx (which carries the wall-clock timeout) expires, and capture
// the serialized witness on success. NativeHostGenerator kills only the host
// process on expiry, not processes the host itself started.
type WitnessGenerator interface {
	Generate(ctx context.Context, req *types.Request) (witness []byte, err error)
}

// Executor runs the in-VM dry execution of the zk-program against the
// witness and reports cycle/gas counters (spec §4.3's Execution step).
type Executor interface {
	Execute(ctx context.Context, req *types.Request, witness []byte) (stats types.ExecutionStats, err error)
}

// Config bounds the pipeline's concurrency per spec §4.3 and names the
// resource limits the Executing step enforces.
type Config struct {
	MaxConcurrentWitnessGen   int
	MaxConcurrentProofRequests int
	RangeCycleLimit           uint64
	RangeGasLimit             uint64
	WitnessGenTimeout         time.Duration
	ProvingDeadline           time.Duration
}

// Pipeline drives one request at a time through the state machine; callers
// call StartWitnessGen for each Unrequested request on each poll interval,
// and the pipeline checks Config's concurrency limits via CountInFlight.
type Pipeline struct {
	log      log.Logger
	st       store.Store
	wg       WitnessGenerator
	exec     Executor
	prover   prover.Client
	cfg      Config
	m        metrics.Metricer
}

func NewPipeline(l log.Logger, st store.Store, wg WitnessGenerator, exec Executor, pv prover.Client, cfg Config, m metrics.Metricer) *Pipeline {
	if m == nil {
		m = metrics.NoopMetrics
	}
	return &Pipeline{log: l, st: st, wg: wg, exec: exec, prover: pv, cfg: cfg, m: m}
}

// CanStartWitnessGen reports whether the WitnessGen∪Executing concurrency
// gate has slack (spec §4.3).
func (p *Pipeline) CanStartWitnessGen(ctx context.Context) (bool, error) {
	n, err := p.st.CountInFlight(ctx, func(s types.RequestStatus) bool {
		return s == types.StatusWitnessGen || s == types.StatusExecuting
	})
	if err != nil {
		return false, err
	}
	return n < p.cfg.MaxConcurrentWitnessGen, nil
}

// CanStartProving reports whether the Proving concurrency gate has slack.
func (p *Pipeline) CanStartProving(ctx context.Context) (bool, error) {
	n, err := p.st.CountInFlight(ctx, func(s types.RequestStatus) bool {
		return s == types.StatusProving
	})
	if err != nil {
		return false, err
	}
	return n < p.cfg.MaxConcurrentProofRequests, nil
}

// StartWitnessGen transitions an Unrequested request to WitnessGen and
// begins the host subprocess (spec §4.3 transition witness_gen_start).
func (p *Pipeline) StartWitnessGen(ctx context.Context, req *types.Request) error {
	if ok, err := p.CanStartWitnessGen(ctx); err != nil {
		return err
	} else if !ok {
		return nil
	}

	err := p.st.UpdateStatus(ctx, req.ID, types.StatusUnrequested, func(r *types.Request) {
		r.Status = types.StatusWitnessGen
	})
	if err != nil {
		return err
	}
	p.m.RecordRequestStatus(req.Kind.String(), types.StatusWitnessGen.String())

	go p.runWitnessGen(req)
	return nil
}

func (p *Pipeline) runWitnessGen(req *types.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.WitnessGenTimeout)
	defer cancel()

	witness, err := p.wg.Generate(ctx, req)
	if err != nil {
		p.log.Error("witness generation failed", "request", req.ID, "err", err)
		p.failRequest(context.Background(), req.ID, types.StatusWitnessGen, "WitnessGen")
		return
	}

	if err := p.st.UpdateStatus(context.Background(), req.ID, types.StatusWitnessGen, func(r *types.Request) {
		r.Status = types.StatusExecuting
	}); err != nil {
		p.log.Error("advancing witness-ready request to executing", "request", req.ID, "err", err)
		return
	}
	p.m.RecordRequestStatus(req.Kind.String(), types.StatusExecuting.String())

	p.runExecution(req, witness)
}

func (p *Pipeline) runExecution(req *types.Request, witness []byte) {
	ctx := context.Background()
	stats, err := p.exec.Execute(ctx, req, witness)
	if err != nil {
		p.log.Error("execution failed", "request", req.ID, "err", err)
		p.failRequest(ctx, req.ID, types.StatusExecuting, "Execution")
		return
	}

	if p.exceedsResourceLimits(stats) {
		p.splitRequest(ctx, req)
		return
	}

	if req.Mode == types.RequestModeMock {
		if err := p.st.UpdateStatus(ctx, req.ID, types.StatusExecuting, func(r *types.Request) {
			r.Status = types.StatusComplete
			r.ExecutionStats = stats
		}); err != nil {
			p.log.Error("completing mock-mode request", "request", req.ID, "err", err)
			return
		}
		p.recordTerminal(req, types.StatusComplete)
		return
	}

	if err := p.st.UpdateStatus(ctx, req.ID, types.StatusExecuting, func(r *types.Request) {
		r.Status = types.StatusProving
		r.ExecutionStats = stats
	}); err != nil {
		p.log.Error("advancing executed request to proving", "request", req.ID, "err", err)
		return
	}
	p.m.RecordRequestStatus(req.Kind.String(), types.StatusProving.String())

	p.submitProof(req)
}

// recordTerminal reports a request's status and the wall-clock time it spent
// in the pipeline once it reaches a terminal status (spec §4.5's state
// machine; Complete, Relayed, Failed, Cancelled).
func (p *Pipeline) recordTerminal(req *types.Request, status types.RequestStatus) {
	p.m.RecordRequestStatus(req.Kind.String(), status.String())
	p.m.RecordRequestDuration(req.Kind.String(), status.String(), time.Since(req.Timing.CreatedAt).Seconds())
}

func (p *Pipeline) exceedsResourceLimits(stats types.ExecutionStats) bool {
	return stats[types.StatKeyCycles] > p.cfg.RangeCycleLimit || stats[types.StatKeyGas] > p.cfg.RangeGasLimit
}

// splitRequest replaces an over-budget Range request with two half-width
// Range requests and marks the original Failed with reason "Split" (spec
// §4.3's splitting rule). Splitting is only valid for Range requests;
// Aggregation requests that exceed limits fail outright.
func (p *Pipeline) splitRequest(ctx context.Context, req *types.Request) {
	if req.Kind != types.RequestKindRange {
		p.failRequest(ctx, req.ID, types.StatusExecuting, "ResourceExceeded")
		return
	}
	if req.EndBlock-req.StartBlock <= 1 {
		p.log.Error("cannot split a single-block range", "request", req.ID)
		p.failRequest(ctx, req.ID, types.StatusExecuting, "ResourceExceeded")
		return
	}

	mid := (req.StartBlock + req.EndBlock) / 2
	for _, half := range [2][2]uint64{{req.StartBlock, mid}, {mid, req.EndBlock}} {
		_, err := p.st.CreateRequest(ctx, &types.Request{
			Kind:            types.RequestKindRange,
			Mode:            req.Mode,
			StartBlock:      half[0],
			EndBlock:        half[1],
			Status:          types.StatusUnrequested,
			VkeyCommitments: req.VkeyCommitments,
			L1ChainID:       req.L1ChainID,
			L2ChainID:       req.L2ChainID,
		})
		if err != nil {
			p.log.Error("creating split range", "request", req.ID, "err", err)
			continue
		}
		p.m.RecordRequestCreated(types.RequestKindRange.String())
	}

	p.failRequest(ctx, req.ID, types.StatusExecuting, "Split")
}

func (p *Pipeline) submitProof(req *types.Request) {
	ctx := context.Background()
	handle, err := p.prover.Submit(ctx, prover.SubmitRequest{
		Vkey: req.VkeyCommitments.RangeVkeyCommitment[:],
	})
	if err != nil {
		p.log.Error("submitting proof request", "request", req.ID, "err", err)
		p.failRequest(ctx, req.ID, types.StatusProving, "ProverSubmit")
		return
	}
	if err := p.st.UpdateStatus(ctx, req.ID, types.StatusProving, func(r *types.Request) {
		r.ProofNetworkID = handle.ID
	}); err != nil {
		p.log.Warn("recording proof network handle", "request", req.ID, "err", err)
	}

	p.pollProof(req.ID, handle, req.Kind, time.Now())
}

// pollProof re-polls an already-submitted handle until it is fulfilled,
// unfulfillable, or the proving deadline passes. Per spec §4.2's idempotency
// contract, a transport error mid-poll is never request failure — it is the
// same re-poll path used on recovery (spec §4.3's "resumes polling them
// (Proving)"), so a crash between submission and fulfillment never needs to
// resubmit.
func (p *Pipeline) pollProof(id types.RequestID, handle prover.RequestHandle, kind types.RequestKind, submittedAt time.Time) {
	ctx := context.Background()
	deadline := time.Now().Add(p.cfg.ProvingDeadline)
	for {
		if time.Now().After(deadline) {
			p.log.Warn("proving deadline exceeded", "request", id)
			p.failRequest(ctx, id, types.StatusProving, "DeadlineExceeded")
			return
		}

		res, err := p.prover.Status(ctx, handle)
		if err != nil {
			// Per spec §4.2's idempotency contract, a transport error here is
			// not request failure: re-poll on the next tick.
			p.log.Warn("polling proof status", "request", id, "err", err)
			time.Sleep(time.Second)
			continue
		}

		switch res.Status {
		case prover.StatusFulfilled:
			req, err := p.st.GetRequest(ctx, id)
			if err != nil {
				p.log.Error("fetching request before completing", "request", id, "err", err)
				return
			}
			if err := p.st.UpdateStatus(ctx, id, types.StatusProving, func(r *types.Request) {
				r.Status = types.StatusComplete
				r.Artifact = res.ProofBytes
			}); err != nil {
				p.log.Error("completing proven request", "request", id, "err", err)
				return
			}
			p.m.RecordProofLatency(kind.String(), time.Since(submittedAt).Seconds())
			p.recordTerminal(req, types.StatusComplete)
			return
		case prover.StatusUnfulfillable:
			p.log.Error("proof unfulfillable", "request", id, "reason", res.Reason)
			p.failRequest(ctx, id, types.StatusProving, fmt.Sprintf("Unfulfillable: %s", res.Reason))
			return
		default:
			time.Sleep(time.Second)
		}
	}
}

func (p *Pipeline) failRequest(ctx context.Context, id types.RequestID, expectedPrior types.RequestStatus, reason string) {
	req, err := p.st.GetRequest(ctx, id)
	if err != nil {
		p.log.Error("fetching request before marking failed", "request", id, "err", err)
		return
	}
	if err := p.st.UpdateStatus(ctx, id, expectedPrior, func(r *types.Request) {
		r.Status = types.StatusFailed
		r.FailureReason = reason
	}); err != nil {
		p.log.Error("marking request failed", "request", id, "reason", reason, "err", err)
		return
	}
	p.recordTerminal(req, types.StatusFailed)
}

// Recover resumes pipeline state on process start (spec §4.3 Recovery):
// requests left in Proving are re-polled; requests left in WitnessGen or
// Executing are treated as crashed and marked Failed so the planner can
// re-plan their range.
func (p *Pipeline) Recover(ctx context.Context) error {
	crashed, err := p.st.ListRequests(ctx, store.Filter{
		Statuses: []types.RequestStatus{types.StatusWitnessGen, types.StatusExecuting},
	})
	if err != nil {
		return fmt.Errorf("recovering crashed requests: %w", err)
	}
	for _, req := range crashed {
		p.failRequest(ctx, req.ID, req.Status, "RecoveredAfterCrash")
	}

	proving, err := p.st.ListRequests(ctx, store.Filter{
		Statuses: []types.RequestStatus{types.StatusProving},
	})
	if err != nil {
		return fmt.Errorf("recovering in-flight proofs: %w", err)
	}
	for _, req := range proving {
		if len(req.ProofNetworkID) == 0 {
			// Crashed before the network handle was recorded: there is
			// nothing to re-poll, so resubmit from scratch.
			go p.submitProof(req)
			continue
		}
		go p.pollProof(req.ID, prover.RequestHandle{ID: req.ProofNetworkID}, req.Kind, req.Timing.UpdatedAt)
	}
	return nil
}
