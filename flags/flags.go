// Package flags defines the CLI surface shared by the proposer, challenger,
// and validity drivers (spec §6.4), following op-interop-mon/flags's
// required/optional split and its append-on-init wiring of the op-service
// ambient flag groups (rpc, log, metrics, pprof).
package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"

	opservice "github.com/ethereum-optimism/optimism/op-service"
	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum-optimism/optimism/op-service/oppprof"
	oprpc "github.com/ethereum-optimism/optimism/op-service/rpc"
)

const EnvVarPrefix = "OP_SUCCINCT"

func prefixEnvVars(name string) []string {
	return opservice.PrefixEnvVar(EnvVarPrefix, name)
}

// Flags common to every driver: L1/L2 endpoints, the factory address, the
// game type being operated on, and where proposer state is backed up (spec
// §4.1, §4.10).
var (
	L1RpcFlag = &cli.StringFlag{
		Name:     "l1-rpc",
		Usage:    "L1 RPC endpoint",
		EnvVars:  prefixEnvVars("L1_RPC"),
		Required: true,
	}
	L2RpcFlag = &cli.StringFlag{
		Name:     "l2-rpc",
		Usage:    "L2 execution RPC endpoint",
		EnvVars:  prefixEnvVars("L2_RPC"),
		Required: true,
	}
	RollupRpcFlag = &cli.StringFlag{
		Name:     "rollup-rpc",
		Usage:    "L2 rollup node RPC endpoint, used for safe/finalized head and output root queries",
		EnvVars:  prefixEnvVars("ROLLUP_RPC"),
		Required: true,
	}
	// FactoryAddressFlag and L2OutputOracleAddressFlag select the driver's
	// mode (spec §9 decision 1): exactly one of them is set. The
	// DisputeGameFactory address runs the fault-proof path (disputegame +
	// gameview); the L2OutputOracle address runs the validity path
	// (submitter). Neither is marked Required at the cli.Flag level because
	// which one is required depends on the role and the other's presence;
	// that choice is enforced in ProposerConfig.Check and ChallengerConfig.Check.
	FactoryAddressFlag = &cli.StringFlag{
		Name:    "factory-address",
		Usage:   "Address of the DisputeGameFactory contract (fault-proof mode)",
		EnvVars: prefixEnvVars("FACTORY_ADDRESS"),
	}
	L2OutputOracleAddressFlag = &cli.StringFlag{
		Name:    "l2-output-oracle-address",
		Usage:   "Address of the OPSuccinctL2OutputOracle contract (validity mode, proposer only)",
		EnvVars: prefixEnvVars("L2_OUTPUT_ORACLE_ADDRESS"),
	}
	GameTypeFlag = &cli.UintFlag{
		Name:    "game-type",
		Usage:   "Dispute game type this driver creates/challenges",
		EnvVars: prefixEnvVars("GAME_TYPE"),
		Value:   0,
	}
	PrivateKeyFlag = &cli.StringFlag{
		Name:    "private-key",
		Usage:   "Hex private key used to sign L1 transactions. Mutually exclusive with --signer-url",
		EnvVars: prefixEnvVars("PRIVATE_KEY"),
	}
	SignerURLFlag = &cli.StringFlag{
		Name:    "signer-url",
		Usage:   "Remote signer endpoint, as an alternative to --private-key",
		EnvVars: prefixEnvVars("SIGNER_URL"),
	}
	SignerAddressFlag = &cli.StringFlag{
		Name:    "signer-address",
		Usage:   "Address the remote signer signs on behalf of; required with --signer-url",
		EnvVars: prefixEnvVars("SIGNER_ADDRESS"),
	}
	FetchIntervalFlag = &cli.DurationFlag{
		Name:    "fetch-interval",
		Usage:   "Poll interval between driver ticks",
		EnvVars: prefixEnvVars("FETCH_INTERVAL"),
		Value:   defaultFetchInterval,
	}
	BackupPathFlag = &cli.StringFlag{
		Name:    "backup-path",
		Usage:   "Path to the proposer state backup JSON file (empty disables backup)",
		EnvVars: prefixEnvVars("BACKUP_PATH"),
	}
	NumConfirmationsFlag = &cli.Uint64Flag{
		Name:    "num-confirmations",
		Usage:   "Number of L1 block confirmations to wait for before treating a transaction as included",
		EnvVars: prefixEnvVars("NUM_CONFIRMATIONS"),
		Value:   3,
	}
	AnchorStateRegistryAddressFlag = &cli.StringFlag{
		Name:    "anchor-state-registry-address",
		Usage:   "Address of the AnchorStateRegistry contract (fault-proof mode, used to check game finality)",
		EnvVars: prefixEnvVars("ANCHOR_STATE_REGISTRY_ADDRESS"),
	}
	DatabaseDSNFlag = &cli.StringFlag{
		Name:    "database-dsn",
		Usage:   "database/sql DSN for the request store (sqlite, e.g. \"file:op-succinct.db?_pragma=journal_mode(WAL)\"); empty uses an in-memory store that does not survive a restart",
		EnvVars: prefixEnvVars("DATABASE_DSN"),
	}
)

// Proposer flags, grounded on fault_proof/src/config.rs's ProposerConfig
// (spec §4.8, §6.4). EnableGameResolutionFlag,
// MaxGamesToCheckForResolutionFlag and FinalityDelayFlag are also listed in
// optionalFlags, so the challenger accepts them too.
var (
	ProposalIntervalFlag = &cli.Uint64Flag{
		Name:    "proposal-interval-in-blocks",
		Usage:   "L2 block interval between successive game proposals",
		EnvVars: prefixEnvVars("PROPOSAL_INTERVAL_IN_BLOCKS"),
		Value:   1800,
	}
	MaxGamesToCheckForDefenseFlag = &cli.Uint64Flag{
		Name:    "max-games-to-check-for-defense",
		Usage:   "Number of most recent games to check for required defense each tick; read into the config but not consulted: every mirrored game is checked",
		EnvVars: prefixEnvVars("MAX_GAMES_TO_CHECK_FOR_DEFENSE"),
		Value:   10,
	}
	EnableGameResolutionFlag = &cli.BoolFlag{
		Name:    "enable-game-resolution",
		Usage:   "Attempt to resolve resolvable games; read into the config but not consulted: resolvable games are always resolved",
		EnvVars: prefixEnvVars("ENABLE_GAME_RESOLUTION"),
		Value:   true,
	}
	MaxGamesToCheckForResolutionFlag = &cli.Uint64Flag{
		Name:    "max-games-to-check-for-resolution",
		Usage:   "Number of most recent games to check for resolution each tick; read into the config but not consulted: every mirrored game is checked",
		EnvVars: prefixEnvVars("MAX_GAMES_TO_CHECK_FOR_RESOLUTION"),
		Value:   10,
	}
	FastFinalityModeFlag = &cli.BoolFlag{
		Name:    "fast-finality-mode",
		Usage:   "Submit an upfront aggregation proof alongside game creation instead of waiting for the challenge window",
		EnvVars: prefixEnvVars("FAST_FINALITY_MODE"),
	}
	FastFinalityProvingLimitFlag = &cli.Uint64Flag{
		Name:    "fast-finality-proving-limit",
		Usage:   "Maximum number of concurrent upfront proofs in fast-finality mode",
		EnvVars: prefixEnvVars("FAST_FINALITY_PROVING_LIMIT"),
		Value:   5,
	}
	MaxConcurrentDefenseTasksFlag = &cli.IntFlag{
		Name:    "max-concurrent-defense-tasks",
		Usage:   "Maximum number of in-flight defense (counter-proof) tasks",
		EnvVars: prefixEnvVars("MAX_CONCURRENT_DEFENSE_TASKS"),
		Value:   5,
	}
	FinalityDelayFlag = &cli.DurationFlag{
		Name:    "finality-delay",
		Usage:   "Minimum age a resolved game must reach before its anchor advance is trusted",
		EnvVars: prefixEnvVars("FINALITY_DELAY"),
		Value:   0,
	}
)

// Challenger-only flags, grounded on fault_proof/src/config.rs's
// ChallengerConfig (spec §4.9, §6.4) plus the malicious-test-mode supplement
// (SPEC_FULL.md §7).
var (
	MaxGamesToCheckForChallengeFlag = &cli.Uint64Flag{
		Name:    "max-games-to-check-for-challenge",
		Usage:   "Number of most recent games to check for challenge each tick; read into the config but not consulted: every mirrored game is checked",
		EnvVars: prefixEnvVars("MAX_GAMES_TO_CHECK_FOR_CHALLENGE"),
		Value:   100,
	}
	MaliciousChallengePercentageFlag = &cli.Float64Flag{
		Name:    "malicious-challenge-percentage",
		Usage:   "Percentage, in [0, 100), chance per valid game per tick of challenging it anyway, to exercise defense paths in staging",
		EnvVars: prefixEnvVars("MALICIOUS_CHALLENGE_PERCENTAGE"),
		Value:   0,
	}
)

// Prover Network flags (component B, spec §4.3), grounded on
// fault_proof/src/config.rs's NetworkProverConfig / auction policy fields.
var (
	ProverNetworkRpcFlag = &cli.StringFlag{
		Name:    "prover-network-rpc",
		Usage:   "Succinct Prover Network RPC endpoint",
		EnvVars: prefixEnvVars("PROVER_NETWORK_RPC"),
	}
	ProverNetworkKeyFlag = &cli.StringFlag{
		Name:    "prover-network-private-key",
		Usage:   "Private key authenticating requests to the Prover Network",
		EnvVars: prefixEnvVars("PROVER_NETWORK_PRIVATE_KEY"),
	}
	MaxPricePerPGUFlag = &cli.Uint64Flag{
		Name:    "max-price-per-pgu",
		Usage:   "Maximum price per proof gas unit the auction strategy may accept; 0 means unrestricted",
		EnvVars: prefixEnvVars("MAX_PRICE_PER_PGU"),
	}
	MinAuctionPeriodFlag = &cli.Uint64Flag{
		Name:    "min-auction-period",
		Usage:   "Minimum auction window, in seconds, for Auction-strategy proof requests",
		EnvVars: prefixEnvVars("MIN_AUCTION_PERIOD"),
	}
	ProverWhitelistFlag = &cli.StringSliceFlag{
		Name:    "prover-whitelist",
		Usage:   "Restrict proof fulfillment to these prover addresses; empty means unrestricted",
		EnvVars: prefixEnvVars("PROVER_WHITELIST"),
	}
	RangeProofIntervalFlag = &cli.Uint64Flag{
		Name:    "range-proof-interval",
		Usage:   "Number of L2 blocks covered by each range proof request",
		EnvVars: prefixEnvVars("RANGE_PROOF_INTERVAL"),
		Value:   1800,
	}
)

// Proof Request Pipeline flags (component F, spec §4.3), proposer-only
// since the challenger loop never drives witness generation or proving.
var (
	NativeHostBinaryFlag = &cli.StringFlag{
		Name:    "native-host-path",
		Usage:   "Path to the native_host_runner executable used for witness generation",
		EnvVars: prefixEnvVars("NATIVE_HOST_PATH"),
		Value:   "native_host_runner",
	}
	NativeHostDataDirFlag = &cli.StringFlag{
		Name:    "native-host-data-dir",
		Usage:   "Data directory passed to the native host for its derivation cache",
		EnvVars: prefixEnvVars("NATIVE_HOST_DATA_DIR"),
	}
	MaxConcurrentWitnessGenFlag = &cli.IntFlag{
		Name:    "max-concurrent-witness-gen",
		Usage:   "Maximum number of requests in WitnessGen or Executing at once",
		EnvVars: prefixEnvVars("MAX_CONCURRENT_WITNESS_GEN"),
		Value:   10,
	}
	MaxConcurrentProofRequestsFlag = &cli.IntFlag{
		Name:    "max-concurrent-proof-requests",
		Usage:   "Maximum number of requests in Proving at once",
		EnvVars: prefixEnvVars("MAX_CONCURRENT_PROOF_REQUESTS"),
		Value:   10,
	}
	RangeCycleLimitFlag = &cli.Uint64Flag{
		Name:    "range-cycle-limit",
		Usage:   "zkVM cycle budget above which a range request is split in two",
		EnvVars: prefixEnvVars("RANGE_CYCLE_LIMIT"),
		Value:   1_000_000_000,
	}
	RangeGasLimitFlag = &cli.Uint64Flag{
		Name:    "range-gas-limit",
		Usage:   "L2 gas budget above which a range request is split in two",
		EnvVars: prefixEnvVars("RANGE_GAS_LIMIT"),
		Value:   1_000_000_000,
	}
	WitnessGenTimeoutFlag = &cli.DurationFlag{
		Name:    "witness-gen-timeout",
		Usage:   "Wall-clock timeout for one witness generation subprocess",
		EnvVars: prefixEnvVars("WITNESS_GEN_TIMEOUT"),
		Value:   20 * time.Minute,
	}
	ProvingDeadlineFlag = &cli.DurationFlag{
		Name:    "proving-deadline",
		Usage:   "Maximum time to wait for a submitted proof request to fulfill",
		EnvVars: prefixEnvVars("PROVING_DEADLINE"),
		Value:   2 * time.Hour,
	}
)

const defaultFetchInterval = 10 * time.Second

var requiredFlags = []cli.Flag{
	L1RpcFlag,
	L2RpcFlag,
	RollupRpcFlag,
}

var optionalFlags = []cli.Flag{
	FactoryAddressFlag,
	GameTypeFlag,
	PrivateKeyFlag,
	SignerURLFlag,
	SignerAddressFlag,
	FetchIntervalFlag,
	BackupPathFlag,
	NumConfirmationsFlag,
	AnchorStateRegistryAddressFlag,
	DatabaseDSNFlag,
	EnableGameResolutionFlag,
	MaxGamesToCheckForResolutionFlag,
	FinalityDelayFlag,
}

// ProposerFlags is every flag the proposer binary accepts.
var ProposerFlags []cli.Flag

// ChallengerFlags is every flag the challenger binary accepts.
var ChallengerFlags []cli.Flag

func init() {
	ambient := []cli.Flag{}
	ambient = append(ambient, oprpc.CLIFlags(EnvVarPrefix)...)
	ambient = append(ambient, oplog.CLIFlags(EnvVarPrefix)...)
	ambient = append(ambient, opmetrics.CLIFlags(EnvVarPrefix)...)
	ambient = append(ambient, oppprof.CLIFlags(EnvVarPrefix)...)

	proposerOnly := []cli.Flag{
		L2OutputOracleAddressFlag,
		ProposalIntervalFlag,
		MaxGamesToCheckForDefenseFlag,
		FastFinalityModeFlag,
		FastFinalityProvingLimitFlag,
		MaxConcurrentDefenseTasksFlag,
	}
	challengerOnly := []cli.Flag{
		MaxGamesToCheckForChallengeFlag,
		MaliciousChallengePercentageFlag,
	}
	proverFlags := []cli.Flag{
		ProverNetworkRpcFlag,
		ProverNetworkKeyFlag,
		MaxPricePerPGUFlag,
		MinAuctionPeriodFlag,
		ProverWhitelistFlag,
		RangeProofIntervalFlag,
	}
	pipelineFlags := []cli.Flag{
		NativeHostBinaryFlag,
		NativeHostDataDirFlag,
		MaxConcurrentWitnessGenFlag,
		MaxConcurrentProofRequestsFlag,
		RangeCycleLimitFlag,
		RangeGasLimitFlag,
		WitnessGenTimeoutFlag,
		ProvingDeadlineFlag,
	}

	ProposerFlags = append(append(append(append(append([]cli.Flag{}, requiredFlags...), optionalFlags...), proposerOnly...), proverFlags...), pipelineFlags...)
	ProposerFlags = append(ProposerFlags, ambient...)

	ChallengerFlags = append(append(append([]cli.Flag{}, requiredFlags...), optionalFlags...), challengerOnly...)
	ChallengerFlags = append(ChallengerFlags, ambient...)
}

// CheckRequired verifies every required flag was actually set, matching
// op-interop-mon/flags.CheckRequired.
func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
