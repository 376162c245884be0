// Command op-succinct-challenger runs the Challenger Loop (component K): it
// mirrors the dispute game factory, challenges games whose root claim
// disagrees with the locally computed output root (or, in test deployments,
// a configurable fraction of otherwise-valid games), and claims bonds it is
// owed once a challenge resolves in its favor.
package main

import (
	"context"
	"fmt"
	"math/rand"
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

	"github.com/succinctlabs/op-succinct-go/bindings"
	"github.com/succinctlabs/op-succinct-go/challenger"
	"github.com/succinctlabs/op-succinct-go/chaindata"
	"github.com/succinctlabs/op-succinct-go/disputegame"
	"github.com/succinctlabs/op-succinct-go/flags"
	"github.com/succinctlabs/op-succinct-go/gameview"
	"github.com/succinctlabs/op-succinct-go/metrics"
	"github.com/succinctlabs/op-succinct-go/signer"
)

func main() {
	app := cli.NewApp()
	app.Name = "op-succinct-challenger"
	app.Usage = "Mirrors and challenges op-succinct dispute games"
	app.Flags = flags.ChallengerFlags
	app.Action = ChallengerMain

	if err := app.Run(os.Args); err != nil {
		log.Crit("application failed", "err", err)
	}
}

func ChallengerMain(cliCtx *cli.Context) error {
	if err := flags.CheckRequired(cliCtx); err != nil {
		return err
	}
	cfg, err := flags.NewChallengerConfig(cliCtx)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	if err := cfg.Check(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := oplog.NewLogger(oplog.AppOut(cliCtx), cfg.LogConfig)
	oplog.SetGlobalLogHandler(logger.Handler())

	ctx := ctxinterrupt.WithCancelOnInterrupt(context.Background())

	m := metrics.NewMetrics("op_succinct_challenger")
	m.RecordInfo(app_version())
	m.RecordUp()

	l1Client, err := ethclient.DialContext(ctx, cfg.L1Rpc)
	if err != nil {
		return fmt.Errorf("dialing l1: %w", err)
	}
	l2Client, err := chaindata.DialL2Client(ctx, cfg.L2Rpc)
	if err != nil {
		return fmt.Errorf("dialing l2: %w", err)
	}
	rollupProvider, err := dial.NewStaticL2RollupProvider(ctx, logger, cfg.RollupRpc)
	if err != nil {
		return fmt.Errorf("dialing rollup node: %w", err)
	}
	fetcher := chaindata.NewFetcher(logger, l1Client, l2Client, rollupProvider)

	sign, ourAddress, err := dialSigner(ctx, logger, fetcher, cfg)
	if err != nil {
		return err
	}
	l1ChainID, err := fetcher.L1ChainID(ctx)
	if err != nil {
		return fmt.Errorf("fetching l1 chain id: %w", err)
	}
	sender := signer.NewSender(logger, l1Client, sign, ourAddress, l1ChainID, cfg.NumConfirmations)
	txSender := newTxSenderAdapter(sender)

	factoryCaller, err := bindings.NewDisputeGameFactoryCaller(cfg.FactoryAddress, l1Client)
	if err != nil {
		return fmt.Errorf("building DisputeGameFactory caller: %w", err)
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
		logger.Warn("reading vkey commitments from chain failed, continuing with zero commitments", "err", err)
	}

	mirror := disputegame.NewMirror(logger, factoryCaller, newGame, fetcher, commitments)
	backupStore := seedMirror(ctx, logger, mirror, cfg.BackupPath, factoryCaller, newGame, fetcher)

	policy := challenger.NewPolicy(logger, fetcher, factoryCaller, gameTx, txSender, challenger.Config{
		GameType:                     cfg.GameType,
		FinalityDelay:                cfg.FinalityDelay,
		MaliciousChallengePercentage: cfg.MaliciousChallengePercentage,
	}, rand.New(rand.NewSource(time.Now().UnixNano())), m)

	registry, err := bindings.NewAnchorStateRegistryCaller(cfg.AnchorStateRegistryAddress, l1Client)
	if err != nil {
		return fmt.Errorf("building AnchorStateRegistry caller: %w", err)
	}
	runner := gameview.NewRunner(logger, mirror, gameTx, registry, txSender, ourAddress, cfg.FinalityDelay, policy, m)

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

	driveLoop(ctx, logger, cfg.FetchInterval, func(ctx context.Context) {
		if err := runner.Tick(ctx, time.Now()); err != nil {
			logger.Error("challenger tick failed", "err", err)
		}
		if err := saveBackup(backupStore, mirror); err != nil {
			logger.Warn("saving backup failed", "err", err)
		}
	})

	<-ctx.Done()
	return nil
}

func app_version() string { return "v0.1.0" }

// dialSigner builds the configured Signer (local private key or remote
// signer, spec §4.1) and resolves the address it signs on behalf of.
func dialSigner(ctx context.Context, l log.Logger, fetcher *chaindata.Fetcher, cfg flags.ChallengerConfig) (signer.Signer, common.Address, error) {
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

// driveLoop runs tick once immediately, then on every interval until ctx is
// done, matching the proposer binary's loop shape.
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
