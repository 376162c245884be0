package flags

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	oplog "github.com/ethereum-optimism/optimism/op-service/log"
	opmetrics "github.com/ethereum-optimism/optimism/op-service/metrics"
	"github.com/ethereum-optimism/optimism/op-service/oppprof"
	oprpc "github.com/ethereum-optimism/optimism/op-service/rpc"

	"github.com/succinctlabs/op-succinct-go/prover"
)

// CommonConfig holds the connection, signing, and ambient-stack settings
// every driver needs regardless of role (spec §4.1, §6.4).
type CommonConfig struct {
	L1Rpc                         string
	L2Rpc                         string
	RollupRpc                     string
	FactoryAddress                common.Address
	L2OutputOracleAddress         common.Address
	AnchorStateRegistryAddress    common.Address
	GameType                      uint32

	PrivateKey    string
	SignerURL     string
	SignerAddress common.Address

	FetchInterval    time.Duration
	BackupPath       string
	NumConfirmations uint64
	DatabaseDSN      string

	LogConfig     oplog.CLIConfig
	MetricsConfig opmetrics.CLIConfig
	PprofConfig   oppprof.CLIConfig
	RPCConfig     oprpc.CLIConfig
}

func newCommonConfig(ctx *cli.Context) (CommonConfig, error) {
	var factoryAddr common.Address
	if v := ctx.String(FactoryAddressFlag.Name); v != "" {
		if !common.IsHexAddress(v) {
			return CommonConfig{}, fmt.Errorf("invalid --%s: %q", FactoryAddressFlag.Name, v)
		}
		factoryAddr = common.HexToAddress(v)
	}

	var l2ooAddr common.Address
	if v := ctx.String(L2OutputOracleAddressFlag.Name); v != "" {
		if !common.IsHexAddress(v) {
			return CommonConfig{}, fmt.Errorf("invalid --%s: %q", L2OutputOracleAddressFlag.Name, v)
		}
		l2ooAddr = common.HexToAddress(v)
	}

	var signerAddr common.Address
	if v := ctx.String(SignerAddressFlag.Name); v != "" {
		signerAddr = common.HexToAddress(v)
	}

	var anchorRegistryAddr common.Address
	if v := ctx.String(AnchorStateRegistryAddressFlag.Name); v != "" {
		if !common.IsHexAddress(v) {
			return CommonConfig{}, fmt.Errorf("invalid --%s: %q", AnchorStateRegistryAddressFlag.Name, v)
		}
		anchorRegistryAddr = common.HexToAddress(v)
	}

	return CommonConfig{
		L1Rpc:                      ctx.String(L1RpcFlag.Name),
		L2Rpc:                      ctx.String(L2RpcFlag.Name),
		RollupRpc:                  ctx.String(RollupRpcFlag.Name),
		FactoryAddress:             factoryAddr,
		L2OutputOracleAddress:      l2ooAddr,
		AnchorStateRegistryAddress: anchorRegistryAddr,
		GameType:                   uint32(ctx.Uint(GameTypeFlag.Name)),

		PrivateKey:    ctx.String(PrivateKeyFlag.Name),
		SignerURL:     ctx.String(SignerURLFlag.Name),
		SignerAddress: signerAddr,

		FetchInterval:    ctx.Duration(FetchIntervalFlag.Name),
		BackupPath:       ctx.String(BackupPathFlag.Name),
		NumConfirmations: ctx.Uint64(NumConfirmationsFlag.Name),
		DatabaseDSN:      ctx.String(DatabaseDSNFlag.Name),

		LogConfig:     oplog.ReadCLIConfig(ctx),
		MetricsConfig: opmetrics.ReadCLIConfig(ctx),
		PprofConfig:   oppprof.ReadCLIConfig(ctx),
		RPCConfig:     oprpc.ReadCLIConfig(ctx),
	}, nil
}

// Check validates the fields every role needs regardless of mode: required
// endpoints are non-empty and exactly one signing method is configured.
// Which of FactoryAddress/L2OutputOracleAddress is required depends on the
// role (spec §9 decision 1), so that check lives in ProposerConfig.Check and
// ChallengerConfig.Check instead of here.
func (c CommonConfig) Check() error {
	if c.L1Rpc == "" {
		return fmt.Errorf("%s is required", L1RpcFlag.Name)
	}
	if c.L2Rpc == "" {
		return fmt.Errorf("%s is required", L2RpcFlag.Name)
	}
	if c.RollupRpc == "" {
		return fmt.Errorf("%s is required", RollupRpcFlag.Name)
	}
	hasKey := c.PrivateKey != ""
	hasSigner := c.SignerURL != ""
	if hasKey == hasSigner {
		return fmt.Errorf("exactly one of --%s or --%s must be set", PrivateKeyFlag.Name, SignerURLFlag.Name)
	}
	if hasSigner && c.SignerAddress == (common.Address{}) {
		return fmt.Errorf("--%s is required when --%s is set", SignerAddressFlag.Name, SignerURLFlag.Name)
	}
	return nil
}

// ProverConfig holds the Prover Network Client's connection and auction
// policy settings (component B, spec §4.2/§4.3, supplemented per §7).
type ProverConfig struct {
	NetworkRpc        string
	NetworkPrivateKey string
	Policy            prover.AuctionPolicy
	RangeProofInterval uint64
}

func newProverConfig(ctx *cli.Context) ProverConfig {
	var whitelist []common.Address
	for _, a := range ctx.StringSlice(ProverWhitelistFlag.Name) {
		whitelist = append(whitelist, common.HexToAddress(a))
	}
	return ProverConfig{
		NetworkRpc:        ctx.String(ProverNetworkRpcFlag.Name),
		NetworkPrivateKey: ctx.String(ProverNetworkKeyFlag.Name),
		Policy: prover.AuctionPolicy{
			MaxPricePerPGU:   ctx.Uint64(MaxPricePerPGUFlag.Name),
			MinAuctionPeriod: ctx.Uint64(MinAuctionPeriodFlag.Name),
			Whitelist:        whitelist,
		},
		RangeProofInterval: ctx.Uint64(RangeProofIntervalFlag.Name),
	}
}

// PipelineConfig holds the Proof Request Pipeline's concurrency gates and
// witness-gen invocation settings (component F, spec §4.3). Proposer-only:
// the challenger loop never drives witness generation or proving.
type PipelineConfig struct {
	NativeHostBinaryPath  string
	NativeHostDataDir     string
	MaxConcurrentWitnessGen    int
	MaxConcurrentProofRequests int
	RangeCycleLimit       uint64
	RangeGasLimit         uint64
	WitnessGenTimeout     time.Duration
	ProvingDeadline       time.Duration
}

func newPipelineConfig(ctx *cli.Context) PipelineConfig {
	return PipelineConfig{
		NativeHostBinaryPath:       ctx.String(NativeHostBinaryFlag.Name),
		NativeHostDataDir:          ctx.String(NativeHostDataDirFlag.Name),
		MaxConcurrentWitnessGen:    ctx.Int(MaxConcurrentWitnessGenFlag.Name),
		MaxConcurrentProofRequests: ctx.Int(MaxConcurrentProofRequestsFlag.Name),
		RangeCycleLimit:            ctx.Uint64(RangeCycleLimitFlag.Name),
		RangeGasLimit:              ctx.Uint64(RangeGasLimitFlag.Name),
		WitnessGenTimeout:          ctx.Duration(WitnessGenTimeoutFlag.Name),
		ProvingDeadline:            ctx.Duration(ProvingDeadlineFlag.Name),
	}
}

// ProposerConfig is the Proposer Loop's full configuration (spec §4.8,
// §6.4), grounded on fault_proof/src/config.rs's ProposerConfig.
type ProposerConfig struct {
	CommonConfig
	Prover   ProverConfig
	Pipeline PipelineConfig

	ProposalIntervalInBlocks     uint64
	MaxGamesToCheckForDefense    uint64
	EnableGameResolution         bool
	MaxGamesToCheckForResolution uint64
	FastFinalityMode             bool
	FastFinalityProvingLimit     uint64
	MaxConcurrentDefenseTasks    int
	FinalityDelay                time.Duration
}

// NewProposerConfig reads every proposer flag off ctx.
func NewProposerConfig(ctx *cli.Context) (ProposerConfig, error) {
	common, err := newCommonConfig(ctx)
	if err != nil {
		return ProposerConfig{}, err
	}
	return ProposerConfig{
		CommonConfig: common,
		Prover:       newProverConfig(ctx),
		Pipeline:     newPipelineConfig(ctx),

		ProposalIntervalInBlocks:     ctx.Uint64(ProposalIntervalFlag.Name),
		MaxGamesToCheckForDefense:    ctx.Uint64(MaxGamesToCheckForDefenseFlag.Name),
		EnableGameResolution:         ctx.Bool(EnableGameResolutionFlag.Name),
		MaxGamesToCheckForResolution: ctx.Uint64(MaxGamesToCheckForResolutionFlag.Name),
		FastFinalityMode:             ctx.Bool(FastFinalityModeFlag.Name),
		FastFinalityProvingLimit:     ctx.Uint64(FastFinalityProvingLimitFlag.Name),
		MaxConcurrentDefenseTasks:    ctx.Int(MaxConcurrentDefenseTasksFlag.Name),
		FinalityDelay:                ctx.Duration(FinalityDelayFlag.Name),
	}, nil
}

// Mode reports which contract this config's driver targets, mirroring
// driver.go's NewL2OutputSubmitter branch on Cfg.L2OutputOracleAddr versus
// Cfg.DisputeGameFactoryAddr.
type Mode int

const (
	ModeFaultProof Mode = iota
	ModeValidity
)

// Mode returns the driver mode selected by whichever address is configured.
// Check must be called first to guarantee exactly one is set.
func (c CommonConfig) Mode() Mode {
	if c.L2OutputOracleAddress != (common.Address{}) {
		return ModeValidity
	}
	return ModeFaultProof
}

func (c ProposerConfig) Check() error {
	if err := c.CommonConfig.Check(); err != nil {
		return err
	}
	hasFactory := c.FactoryAddress != (common.Address{})
	hasOracle := c.L2OutputOracleAddress != (common.Address{})
	if hasFactory == hasOracle {
		return fmt.Errorf("exactly one of --%s or --%s must be set", FactoryAddressFlag.Name, L2OutputOracleAddressFlag.Name)
	}
	if hasFactory && c.AnchorStateRegistryAddress == (common.Address{}) {
		return fmt.Errorf("--%s is required when --%s is set", AnchorStateRegistryAddressFlag.Name, FactoryAddressFlag.Name)
	}
	if c.ProposalIntervalInBlocks == 0 {
		return fmt.Errorf("--%s must be positive", ProposalIntervalFlag.Name)
	}
	if c.FastFinalityMode && c.FastFinalityProvingLimit == 0 {
		return fmt.Errorf("--%s must be positive when --%s is set", FastFinalityProvingLimitFlag.Name, FastFinalityModeFlag.Name)
	}
	return nil
}

// ChallengerConfig is the Challenger Loop's full configuration (spec §4.9,
// §6.4), grounded on fault_proof/src/config.rs's ChallengerConfig plus the
// malicious-test-mode supplement (SPEC_FULL.md §7).
type ChallengerConfig struct {
	CommonConfig

	MaxGamesToCheckForChallenge  uint64
	EnableGameResolution         bool
	MaxGamesToCheckForResolution uint64
	MaliciousChallengePercentage float64
	FinalityDelay                time.Duration
}

// NewChallengerConfig reads every challenger flag off ctx.
func NewChallengerConfig(ctx *cli.Context) (ChallengerConfig, error) {
	common, err := newCommonConfig(ctx)
	if err != nil {
		return ChallengerConfig{}, err
	}
	return ChallengerConfig{
		CommonConfig: common,

		MaxGamesToCheckForChallenge:  ctx.Uint64(MaxGamesToCheckForChallengeFlag.Name),
		EnableGameResolution:         ctx.Bool(EnableGameResolutionFlag.Name),
		MaxGamesToCheckForResolution: ctx.Uint64(MaxGamesToCheckForResolutionFlag.Name),
		MaliciousChallengePercentage: ctx.Float64(MaliciousChallengePercentageFlag.Name),
		FinalityDelay:                ctx.Duration(FinalityDelayFlag.Name),
	}, nil
}

func (c ChallengerConfig) Check() error {
	if err := c.CommonConfig.Check(); err != nil {
		return err
	}
	if c.FactoryAddress == (common.Address{}) {
		return fmt.Errorf("--%s is required", FactoryAddressFlag.Name)
	}
	if c.AnchorStateRegistryAddress == (common.Address{}) {
		return fmt.Errorf("--%s is required", AnchorStateRegistryAddressFlag.Name)
	}
	if c.MaliciousChallengePercentage < 0 || c.MaliciousChallengePercentage >= 100 {
		return fmt.Errorf("--%s must be in [0, 100)", MaliciousChallengePercentageFlag.Name)
	}
	return nil
}
