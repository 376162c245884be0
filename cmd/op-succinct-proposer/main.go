// Command op-succinct-proposer runs the Proposer Loop (component J): it
// plans range proofs, drives them through the Proof Request Pipeline,
// aggregates completed spans, and posts the result on-chain either as a
// dispute game (fault-proof mode) or a direct L2 output (validity mode),
// selected by which of --factory-address/--l2-output-oracle-address is set.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/optimism/op-service/ctxinterrupt"
	"github.com/ethereum-optimism/optimism/op-service/dial"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum-optimism/optimism/op-service/oppprof"
	oprpc "github.com/ethereum-optimism/optimism/op-service/rpc"

	"github.com/succinctlabs/op-succinct-go/aggregator"
	"github.com/succinctlabs/op-succinct-go/bindings"
	"github.com/succinctlabs/op-succinct-go/chaindata"
	"github.com/succinctlabs/op-succinct-go/disputegame"
	"github.com/succinctlabs/op-succinct-go/flags"
	"github.com/succinctlabs/op-succinct-go/gameview"
	"github.com/succinctlabs/op-succinct-go/metrics"
	"github.com/succinctlabs/op-succinct-go/pipeline"
	"github.com/succinctlabs/op-succinct-go/planner"
	"github.com/succinctlabs/op-succinct-go/proposer"
	"github.com/succinctlabs/op-succinct-go/prover"
	"github.com/succinctlabs/op-succinct-go/signer"
	"github.com/succinctlabs/op-succinct-go/store"
	succinctTypes "github.com/succinctlabs/op-succinct-go/types"
)

func main() {
	app := cli.NewApp()
	app.Name = "op-succinct-proposer"
	app.Usage = "Plans, proves, and posts op-succinct output proposals"
	app.Flags = flags.ProposerFlags
	app.Action = ProposerMain

	if err := app.Run(os.Args); err != nil {
		log.Crit("application failed", "err", err)
	}
}

func ProposerMain(cliCtx *cli.Context) error {
	if err := flags.CheckRequired(cliCtx); err != nil {
		return err
	}
	cfg, err := flags.NewProposerConfig(cliCtx)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := cfg.Check(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := oplog.NewLogger(oplog.AppOut(cliCtx), cfg.LogConfig)
	oplog.SetGlobalLogHandler(logger.Handler())

	ctx := ctxinterrupt.WithCancelOnInterrupt(context.Background())

	m := metrics.NewMetrics("op_succinct_proposer")
	m.RecordInfo(app_version())
	m.RecordUp()

	fetcher, l1Client, err := dialChainData(ctx, logger, cfg.CommonConfig)
	if err != nil {
		return err
	}

	sign, ourAddress, err := dialSigner(ctx, logger, fetcher, cfg.CommonConfig)
	if err != nil {
		return err
	}
	l1ChainID, err := fetcher.L1ChainID(ctx)
	if err != nil {
		return fmt.Errorf("fetching L1 chain id: %w", err)
	}
	sender := signer.NewSender(logger, l1Client, sign, ourAddress, l1ChainID, cfg.NumConfirmations)

	st, err := openStore(ctx, cfg.DatabaseDSN)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}

	rangePlanner := planner.NewPlanner(st, cfg.Prover.RangeProofInterval)

	witnessGen := pipeline.NewNativeHostGenerator(logger, fetcher, pipeline.NativeHostGeneratorConfig{
		BinaryPath:    cfg.Pipeline.NativeHostBinaryPath,
		DataDir:       cfg.Pipeline.NativeHostDataDir,
		L2NodeAddress: cfg.L2Rpc,
		L1NodeAddress: cfg.L1Rpc,
	})
	proofPipeline := pipeline.NewPipeline(logger, st, witnessGen, pipeline.NewNoopExecutor(), prover.NewMockClient(), pipeline.Config{
		MaxConcurrentWitnessGen:    cfg.Pipeline.MaxConcurrentWitnessGen,
		MaxConcurrentProofRequests: cfg.Pipeline.MaxConcurrentProofRequests,
		RangeCycleLimit:            cfg.Pipeline.RangeCycleLimit,
		RangeGasLimit:              cfg.Pipeline.RangeGasLimit,
		WitnessGenTimeout:          cfg.Pipeline.WitnessGenTimeout,
		ProvingDeadline:            cfg.Pipeline.ProvingDeadline,
	}, m)
	if err := proofPipeline.Recover(ctx); err != nil {
		return fmt.Errorf("recovering pipeline state: %w", err)
	}

	agg := aggregator.NewAggregator(st, fetcher, cfg.ProposalIntervalInBlocks)
	aggDriver := newAggregationDriver(logger, agg, fetcher, 0)

	metricsSrv, err := opmetrics.ListenAndServe(ctx, m.Registry(), cfg.MetricsConfig.ListenAddr, cfg.MetricsConfig.ListenPort)
	if err != nil {
		return fmt.Errorf("starting metrics server: %w", err)
	}
	defer metricsSrv.Shutdown(context.Background())

	pprofSrv := oppprof.New(logger, &cfg.PprofConfig)
	if err := pprofSrv.Start(); err != nil {
		return fmt.Errorf("starting pprof server: %w", err)
	}
	defer pprofSrv.Stop(context.Background())

	rpcServer := oprpc.NewServer(cfg.RPCConfig.ListenAddr, cfg.RPCConfig.ListenPort, app_version(), oprpc.WithLogger(logger))
	if err := rpcServer.Start(); err != nil {
		return fmt.Errorf("starting rpc server: %w", err)
	}
	defer rpcServer.Stop()

	switch cfg.Mode() {
	case flags.ModeValidity:
		if err := runValidityProposer(ctx, logger, cfg, fetcher, st, sender, rangePlanner, proofPipeline, aggDriver, m); err != nil {
			return err
		}
	default:
		if err := runFaultProofProposer(ctx, logger, cfg, fetcher, l1Client, st, sender, ourAddress, rangePlanner, proofPipeline, aggDriver, m); err != nil {
			return err
		}
	}

	<-ctx.Done()
	return nil
}

func app_version() string { return "v0.1.0" }

// openStore opens a persistent sqlite-backed store when dsn is set, falling
// back to an in-memory store that does not survive a restart otherwise.
func openStore(ctx context.Context, dsn string) (store.Store, error) {
	if dsn == "" {
		return store.NewMemoryStore(), nil
	}
	return store.OpenSQLite(ctx, dsn)
}

// dialChainData dials L1, L2, and the rollup node and wraps them in a
// chaindata.Fetcher, the shared Chain Data Fetcher every downstream
// component reads through.
func dialChainData(ctx context.Context, l log.Logger, cfg flags.CommonConfig) (*chaindata.Fetcher, *ethclient.Client, error) {
	l1Client, err := ethclient.DialContext(ctx, cfg.L1Rpc)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing l1: %w", err)
	}
	l2Client, err := chaindata.DialL2Client(ctx, cfg.L2Rpc)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing l2: %w", err)
	}
	rollupProvider, err := dial.NewStaticL2RollupProvider(ctx, l, cfg.RollupRpc)
	if err != nil {
		return nil, nil, fmt.Errorf("dialing rollup node: %w", err)
	}
	return chaindata.NewFetcher(l, l1Client, l2Client, rollupProvider), l1Client, nil
}

// dialSigner builds the configured Signer (local private key or remote
// signer, spec §4.1) and resolves the address it signs on behalf of.
func dialSigner(ctx context.Context, l log.Logger, fetcher *chaindata.Fetcher, cfg flags.CommonConfig) (signer.Signer, common.Address, error) {
	if cfg.PrivateKey != "" {
		pk, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, common.Address{}, fmt.Errorf("parsing private key: %w", err)
		}
		chainID, err := fetcher.L1ChainID(ctx)
		if err != nil {
			return nil, common.Address{}, fmt.Errorf("fetching chain id for signer: %w", err)
		}
		return signer.NewPkSigner(pk, chainID), crypto.PubkeyToAddress(pk.PublicKey), nil
	}

	remote, err := signer.DialRemoteSigner(ctx, cfg.SignerURL, cfg.SignerAddress)
	if err != nil {
		return nil, common.Address{}, fmt.Errorf("dialing remote signer: %w", err)
	}
	return remote, cfg.SignerAddress, nil
}

// runValidityProposer wires the submitter.Submitter and drives its main
// loop: plan ranges, run them through the pipeline, aggregate completed
// spans, then pop and post the next relayable aggregation (spec §4.6).
func runValidityProposer(
	ctx context.Context,
	l log.Logger,
	cfg flags.ProposerConfig,
	fetcher *chaindata.Fetcher,
	st store.Store,
	sender *signer.Sender,
	rangePlanner *planner.Planner,
	proofPipeline *pipeline.Pipeline,
	aggDriver *aggregationDriver,
	m *metrics.Metrics,
) error {
	ooTx, err := bindings.NewOPSuccinctL2OutputOracleTransactor()
	if err != nil {
		return fmt.Errorf("building L2OutputOracle transactor: %w", err)
	}
	sub := newValiditySubmitter(l, st, sender, ooTx, cfg.L2OutputOracleAddress, fetcher, m)

	go driveLoop(ctx, l, cfg.FetchInterval, func(ctx context.Context) {
		tickPlanAndProve(ctx, l, fetcher, st, rangePlanner, proofPipeline, m)
		aggDriver.tick(ctx)
		sub.tick(ctx)
	})
	return nil
}

// runFaultProofProposer wires the Dispute Game Mirror, proposer.Policy, and
// gameview.Runner, restoring prior state from the backup file if present,
// and drives its main loop (spec §4.7/§4.8).
func runFaultProofProposer(
	ctx context.Context,
	l log.Logger,
	cfg flags.ProposerConfig,
	fetcher *chaindata.Fetcher,
	l1Client *ethclient.Client,
	st store.Store,
	sender *signer.Sender,
	ourAddress common.Address,
	rangePlanner *planner.Planner,
	proofPipeline *pipeline.Pipeline,
	aggDriver *aggregationDriver,
	m *metrics.Metrics,
) error {
	factoryCaller, err := bindings.NewDisputeGameFactoryCaller(cfg.FactoryAddress, l1Client)
	if err != nil {
		return fmt.Errorf("building DisputeGameFactory caller: %w", err)
	}
	factoryTx, err := bindings.NewDisputeGameFactoryTransactor()
	if err != nil {
		return fmt.Errorf("building DisputeGameFactory transactor: %w", err)
	}
	gameTx, err := bindings.NewFaultDisputeGameTransactor()
	if err != nil {
		return fmt.Errorf("building FaultDisputeGame transactor: %w", err)
	}
	newGame := func(addr common.Address) (disputegame.GameCaller, error) {
		return bindings.NewFaultDisputeGameCaller(addr, l1Client)
	}

	commitments, err := readCommitments(factoryCaller, cfg.GameType, l1Client)
	if err != nil {
		l.Warn("reading vkey commitments from chain failed, continuing with zero commitments", "err", err)
	}

	mirror := disputegame.NewMirror(l, factoryCaller, newGame, fetcher, commitments)
	backupStore := seedMirror(ctx, l, mirror, cfg.BackupPath, factoryCaller, newGame, fetcher)

	l1ChainID, err := fetcher.L1ChainID(ctx)
	if err != nil {
		return fmt.Errorf("fetching l1 chain id: %w", err)
	}
	l2ChainID, err := fetcher.L2ChainID(ctx)
	if err != nil {
		return fmt.Errorf("fetching l2 chain id: %w", err)
	}

	txSender := newTxSenderAdapter(sender)

	policy := proposer.NewPolicy(l, st, fetcher, cfg.FactoryAddress, factoryTx, factoryCaller, gameTx, txSender, l1ChainID.Uint64(), l2ChainID.Uint64(), commitments, proposer.Config{
		GameType:                  cfg.GameType,
		ProposalInterval:          cfg.ProposalIntervalInBlocks,
		MaxConcurrentDefenseTasks: cfg.MaxConcurrentDefenseTasks,
		FinalityDelay:             cfg.FinalityDelay,
		OurAddress:                ourAddress,
		FastFinality:              cfg.FastFinalityMode,
		FastFinalityProvingLimit:  int(cfg.FastFinalityProvingLimit),
	}, m)

	registry, err := bindings.NewAnchorStateRegistryCaller(cfg.AnchorStateRegistryAddress, l1Client)
	if err != nil {
		return fmt.Errorf("building AnchorStateRegistry caller: %w", err)
	}
	runner := gameview.NewRunner(l, mirror, gameTx, registry, txSender, ourAddress, cfg.FinalityDelay, policy, m)

	go driveLoop(ctx, l, cfg.FetchInterval, func(ctx context.Context) {
		tickPlanAndProve(ctx, l, fetcher, st, rangePlanner, proofPipeline, m)
		aggDriver.tick(ctx)
		if err := runner.Tick(ctx, time.Now()); err != nil {
			l.Error("proposer tick failed", "err", err)
		}
		if err := saveBackup(backupStore, mirror); err != nil {
			l.Warn("saving backup failed", "err", err)
		}
	})
	return nil
}

// tickPlanAndProve plans the next range request (if the safe head allows
// one) and starts witness generation for every Unrequested request the
// pipeline's concurrency gate admits (spec §4.3, §4.4).
func tickPlanAndProve(ctx context.Context, l log.Logger, fetcher *chaindata.Fetcher, st store.Store, p *planner.Planner, pl *pipeline.Pipeline, m *metrics.Metrics) {
	safeHead, err := fetcher.SafeL2Head(ctx)
	if err != nil {
		l.Warn("fetching safe l2 head for planning", "err", err)
		return
	}

	heads, err := currentHeads(ctx, st, safeHead)
	if err != nil {
		l.Warn("computing planner heads", "err", err)
		return
	}

	if req, err := p.Plan(ctx, heads); err != nil {
		l.Warn("planning next range", "err", err)
	} else if req != nil {
		m.RecordRequestCreated(req.Kind.String())
		l.Info("planned range request", "request", req.ID, "start", req.StartBlock, "end", req.EndBlock)
	}

	kind := succinctTypes.RequestKindRange
	unrequested, err := st.ListRequests(ctx, store.Filter{Kind: &kind, Statuses: []succinctTypes.RequestStatus{succinctTypes.StatusUnrequested}})
	if err != nil {
		l.Warn("listing unrequested ranges", "err", err)
		return
	}
	for _, req := range unrequested {
		if err := pl.StartWitnessGen(ctx, req); err != nil {
			l.Warn("starting witness gen", "request", req.ID, "err", err)
		}
	}

	reportQueueDepth(ctx, l, st, m)
}

// reportQueueDepth samples the number of requests sitting in each in-flight
// pipeline stage and reports them as a gauge (spec §4.5), once per tick.
func reportQueueDepth(ctx context.Context, l log.Logger, st store.Store, m *metrics.Metrics) {
	for _, status := range []succinctTypes.RequestStatus{
		succinctTypes.StatusUnrequested,
		succinctTypes.StatusWitnessGen,
		succinctTypes.StatusExecuting,
		succinctTypes.StatusProving,
	} {
		n, err := st.CountInFlight(ctx, func(s succinctTypes.RequestStatus) bool { return s == status })
		if err != nil {
			l.Warn("counting in-flight requests for queue depth", "status", status, "err", err)
			continue
		}
		m.RecordPipelineQueueDepth(status.String(), float64(n))
	}
}

// currentHeads computes planner.Heads from the store's highest relayed and
// in-flight range requests plus the safe head ceiling (spec §4.4).
func currentHeads(ctx context.Context, st store.Store, safeHead uint64) (planner.Heads, error) {
	kind := succinctTypes.RequestKindRange
	relayed, err := st.ListRequests(ctx, store.Filter{Kind: &kind, Statuses: []succinctTypes.RequestStatus{succinctTypes.StatusRelayed}})
	if err != nil {
		return planner.Heads{}, err
	}
	var onChain uint64
	for _, r := range relayed {
		if r.EndBlock > onChain {
			onChain = r.EndBlock
		}
	}

	inFlight, err := st.ListRequests(ctx, store.Filter{Kind: &kind, Statuses: []succinctTypes.RequestStatus{
		succinctTypes.StatusUnrequested, succinctTypes.StatusWitnessGen, succinctTypes.StatusExecuting,
		succinctTypes.StatusProving, succinctTypes.StatusComplete,
	}})
	if err != nil {
		return planner.Heads{}, err
	}
	var highestInFlight uint64
	for _, r := range inFlight {
		if r.EndBlock > highestInFlight {
			highestInFlight = r.EndBlock
		}
	}

	return planner.Heads{OnChain: onChain, InFlight: highestInFlight, Finalized: safeHead}, nil
}

// driveLoop runs tick once immediately, then on every interval until ctx is
// done, mirroring the original source's single-ticker proposer/challenger
// binaries (original_source/fault_proof/bin/proposer.rs's main loop).
func driveLoop(ctx context.Context, l log.Logger, interval time.Duration, tick func(context.Context)) {
	tick(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}
