package cmd

import (
	"net"
	"strconv"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	vaaLib "github.com/wormhole-foundation/wormhole/sdk/vaa"

	"github.com/orbital-protocol/relayer/internal/config"
	"github.com/orbital-protocol/relayer/internal/payload"
)

// registerFlags declares every configuration flag. Flag names double as
// viper keys and, upper-cased with dashes replaced, as environment variables.
func registerFlags(fs *pflag.FlagSet) {
	fs.String("relayer-name", config.DefaultRelayerName, "Name used to prefix bookkeeping keys")
	fs.String("spy-host", config.DefaultSpyEndpoint, "Comma separated guardian spy endpoints in priority order")
	fs.Duration("probe-timeout", config.DefaultProbeTimeout, "Timeout for a single endpoint probe")
	fs.Int("startup-attempts", config.DefaultStartAttempts, "Consecutive startup failures before giving up")
	fs.Duration("startup-delay", config.DefaultStartDelay, "Delay between startup attempts")
	fs.String("borrow-selector", payload.DefaultBorrowSelector, "Borrow method selector (hex)")
	fs.String("repay-selector", payload.DefaultRepaySelector, "Repay method selector (hex)")
	fs.Uint64("sui-starting-sequence", 1, "Sui sequence that missed-message recovery starts from")
	fs.Uint64("eth-starting-sequence", 1, "Avalanche sequence that missed-message recovery starts from")

	// Storage
	fs.String("upstash-redis-url", "", "REST key-value endpoint")
	fs.String("upstash-redis-token", "", "REST key-value bearer token")
	fs.String("redis-cloud-url", "", "Redis URL (redis:// or rediss://)")
	fs.String("redis-cloud-password", "", "Redis password")
	fs.Duration("storage-canary-timeout", config.DefaultCanaryTimeout, "Timeout for the storage canary")

	// Avalanche
	fs.String("eth-rpc-url", config.DefaultEVMRPCURL, "Avalanche RPC URL")
	fs.Int64("eth-chain-id", config.DefaultEVMChainID, "Avalanche EVM chain id (0 asks the node)")
	fs.String("eth-private-key", "", "Avalanche relayer private key (hex)")
	fs.String("orbital-evm", config.DefaultOrbitalEVM, "Orbital contract on Avalanche, also its emitter")
	fs.String("evm-token-in", config.DefaultEVMTokenIn, "Default collateral token on Avalanche")
	fs.String("evm-token-out", config.DefaultEVMTokenOut, "Default borrowed token on Avalanche")
	fs.Int("evm-gas-margin", config.DefaultEVMGasMarginPct, "Percent added to the gas estimate")
	fs.Duration("evm-confirm-timeout", config.DefaultConfirmTimeout, "Receipt wait timeout on Avalanche")

	// Sui
	fs.String("sui-rpc-url", config.DefaultSuiRPCURL, "Sui fullnode JSON-RPC URL")
	fs.String("sui-private-key", "", "Sui relayer key (mnemonic, hex seed or base64)")
	fs.String("sui-package", config.DefaultOrbitalSui, "Orbital Move package id")
	fs.String("sui-module", config.DefaultSuiModule, "Orbital Move module name")
	fs.String("sui-emitter", config.DefaultSuiEmitter, "Orbital emitter on Sui")
	fs.String("sui-state", config.DefaultSuiState, "Orbital shared state object")
	fs.String("sui-owner-cap", config.DefaultSuiOwnerCap, "Orbital owner capability object")
	fs.String("sui-clock", config.DefaultSuiClock, "Sui clock object")
	fs.String("sui-coin-in-type", config.DefaultSuiCoinInType, "Collateral coin type on Sui")
	fs.String("sui-coin-out-type", config.DefaultSuiCoinOutType, "Borrowed coin type on Sui")
	fs.Uint64("sui-gas-budget", config.DefaultSuiGasBudget, "Gas budget in MIST")
	fs.Duration("sui-confirm-timeout", config.DefaultConfirmTimeout, "Finality wait timeout on Sui")

	// Surfaces
	fs.String("host", "127.0.0.1", "Health server listen host")
	fs.Int("port", 3000, "Health server listen port")
	fs.String("wormholescan-url", config.DefaultWormholescan, "Wormholescan API for source tx lookups (empty disables)")
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) {
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
	})
}

// buildConfig assembles and validates the immutable runtime configuration.
func buildConfig(v *viper.Viper) (config.Config, error) {
	cfg := config.Default()

	borrow, err := payload.ParseSelector(v.GetString("borrow-selector"))
	if err != nil {
		return cfg, errors.Wrap(err, "borrow selector")
	}
	repay, err := payload.ParseSelector(v.GetString("repay-selector"))
	if err != nil {
		return cfg, errors.Wrap(err, "repay selector")
	}

	cfg.RelayerName = v.GetString("relayer-name")
	cfg.SpyEndpoints = config.SplitList(v.GetString("spy-host"))
	cfg.ProbeTimeout = v.GetDuration("probe-timeout")
	cfg.Selectors = payload.Selectors{Borrow: borrow, Repay: repay}
	cfg.Emitters = map[vaaLib.ChainID]string{
		vaaLib.ChainIDSui:       v.GetString("sui-emitter"),
		vaaLib.ChainIDAvalanche: v.GetString("orbital-evm"),
	}
	cfg.StartingSequence = map[vaaLib.ChainID]uint64{
		vaaLib.ChainIDSui:       v.GetUint64("sui-starting-sequence"),
		vaaLib.ChainIDAvalanche: v.GetUint64("eth-starting-sequence"),
	}
	cfg.Startup = config.Startup{
		MaxAttempts: v.GetInt("startup-attempts"),
		RetryDelay:  v.GetDuration("startup-delay"),
	}
	cfg.Storage = config.Storage{
		RestURL:       v.GetString("upstash-redis-url"),
		RestToken:     v.GetString("upstash-redis-token"),
		RedisURL:      v.GetString("redis-cloud-url"),
		RedisPassword: v.GetString("redis-cloud-password"),
		CanaryTimeout: v.GetDuration("storage-canary-timeout"),
	}
	cfg.EVM = config.EVM{
		RPCURL:          v.GetString("eth-rpc-url"),
		ChainID:         v.GetInt64("eth-chain-id"),
		PrivateKey:      v.GetString("eth-private-key"),
		OrbitalContract: v.GetString("orbital-evm"),
		TokenIn:         v.GetString("evm-token-in"),
		TokenOut:        v.GetString("evm-token-out"),
		GasMarginPct:    v.GetInt("evm-gas-margin"),
		ConfirmTimeout:  v.GetDuration("evm-confirm-timeout"),
	}
	cfg.Sui = config.Sui{
		RPCURL:         v.GetString("sui-rpc-url"),
		PrivateKey:     v.GetString("sui-private-key"),
		OrbitalPackage: v.GetString("sui-package"),
		Module:         v.GetString("sui-module"),
		Emitter:        v.GetString("sui-emitter"),
		StateObject:    v.GetString("sui-state"),
		OwnerCap:       v.GetString("sui-owner-cap"),
		Clock:          v.GetString("sui-clock"),
		CoinInType:     v.GetString("sui-coin-in-type"),
		CoinOutType:    v.GetString("sui-coin-out-type"),
		GasBudget:      v.GetUint64("sui-gas-budget"),
		ConfirmTimeout: v.GetDuration("sui-confirm-timeout"),
	}
	cfg.HTTPAddr = net.JoinHostPort(v.GetString("host"), strconv.Itoa(v.GetInt("port")))
	cfg.WormholescanURL = v.GetString("wormholescan-url")

	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}
