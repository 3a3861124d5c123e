package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	vaaLib "github.com/wormhole-foundation/wormhole/sdk/vaa"

	"github.com/orbital-protocol/relayer/internal/payload"
)

// Testnet defaults for the Orbital deployment on Avalanche Fuji and Sui testnet.
const (
	DefaultRelayerName = "OrbitalRelayer"
	DefaultSpyEndpoint = "localhost:7073"
	DefaultHTTPAddr    = "127.0.0.1:3000"

	DefaultEVMRPCURL       = "https://api.avax-test.network/ext/bc/C/rpc"
	DefaultEVMChainID      = 43113
	DefaultOrbitalEVM      = "0xE580dF77F7Bee058f640F56c0111F80f5D3df60E"
	DefaultEVMTokenIn      = "0xac8D0593eAF1527D89343CDE8Aa46ec261D09EA4" // USDT
	DefaultEVMTokenOut     = "0x95dBbcDC215407e039997589f5839dEB58827F49" // FUD
	DefaultEVMGasMarginPct = 20

	DefaultSuiRPCURL      = "https://fullnode.testnet.sui.io:443"
	DefaultOrbitalSui     = "0xabb45ed94ba7366b631bee1dce8ecb456508f66b66bf7135841d8d57d2026270"
	DefaultSuiEmitter     = "0xb872e9e85580f1b53e1bdb4f7abccb5c523a99f47cc8876106387971781f19a0"
	DefaultSuiState       = "0xfb27fa6eac7fa42133e8c414cd066175ffecff49d4343306a0db7a4b1ac61082"
	DefaultSuiOwnerCap    = "0xdf170db1a8fa28aa9840f18e307778bb038f74f91f1d1b6ec82001cc8454b2af"
	DefaultSuiClock       = "0x0000000000000000000000000000000000000000000000000000000000000006"
	DefaultSuiFaucet      = "0xae28fd09dc8df11e5b3a1d3389723cd9469988944661e708f6ddf4fb2f1fd644"
	DefaultSuiGasBudget   = 50_000_000
	DefaultSuiModule      = "orbital"
	DefaultWormholescan   = "https://api.testnet.wormholescan.io"
	DefaultStartAttempts  = 5
	DefaultStartDelay     = 5 * time.Second
	DefaultConfirmTimeout = 2 * time.Minute
	DefaultProbeTimeout   = 5 * time.Second
	DefaultCanaryTimeout  = 5 * time.Second
)

// DefaultSuiCoinInType and DefaultSuiCoinOutType are the faucet coins the
// testnet deployment lends against.
var (
	DefaultSuiCoinInType  = DefaultSuiFaucet + "::usdt::USDT"
	DefaultSuiCoinOutType = DefaultSuiFaucet + "::fud::FUD"
)

// Config is built once at startup and handed to every component constructor.
// Components must treat it as read-only.
type Config struct {
	RelayerName string

	// SpyEndpoints are guardian spy candidates in priority order.
	SpyEndpoints []string
	ProbeTimeout time.Duration

	// Emitters maps each source chain to the hex emitter address to subscribe to.
	Emitters map[vaaLib.ChainID]string
	// StartingSequence is the lowest sequence dispatched per source chain.
	StartingSequence map[vaaLib.ChainID]uint64

	Selectors payload.Selectors

	Startup Startup
	Storage Storage
	EVM     EVM
	Sui     Sui

	HTTPAddr        string
	WormholescanURL string
}

type Startup struct {
	MaxAttempts int
	RetryDelay  time.Duration
}

type Storage struct {
	RestURL       string
	RestToken     string
	RedisURL      string
	RedisPassword string
	CanaryTimeout time.Duration
}

type EVM struct {
	RPCURL          string
	ChainID         int64
	PrivateKey      string
	OrbitalContract string
	TokenIn         string
	TokenOut        string
	GasMarginPct    int
	ConfirmTimeout  time.Duration
}

type Sui struct {
	RPCURL         string
	PrivateKey     string
	OrbitalPackage string
	Module         string
	Emitter        string
	StateObject    string
	OwnerCap       string
	Clock          string
	CoinInType     string
	CoinOutType    string
	GasBudget      uint64
	ConfirmTimeout time.Duration
}

// Default returns a testnet configuration without private keys.
func Default() Config {
	return Config{
		RelayerName:  DefaultRelayerName,
		SpyEndpoints: []string{DefaultSpyEndpoint},
		ProbeTimeout: DefaultProbeTimeout,
		Emitters: map[vaaLib.ChainID]string{
			vaaLib.ChainIDSui:       DefaultSuiEmitter,
			vaaLib.ChainIDAvalanche: DefaultOrbitalEVM,
		},
		StartingSequence: map[vaaLib.ChainID]uint64{
			vaaLib.ChainIDSui:       1,
			vaaLib.ChainIDAvalanche: 1,
		},
		Selectors: payload.DefaultSelectors(),
		Startup: Startup{
			MaxAttempts: DefaultStartAttempts,
			RetryDelay:  DefaultStartDelay,
		},
		Storage: Storage{
			CanaryTimeout: DefaultCanaryTimeout,
		},
		EVM: EVM{
			RPCURL:          DefaultEVMRPCURL,
			ChainID:         DefaultEVMChainID,
			OrbitalContract: DefaultOrbitalEVM,
			TokenIn:         DefaultEVMTokenIn,
			TokenOut:        DefaultEVMTokenOut,
			GasMarginPct:    DefaultEVMGasMarginPct,
			ConfirmTimeout:  DefaultConfirmTimeout,
		},
		Sui: Sui{
			RPCURL:         DefaultSuiRPCURL,
			OrbitalPackage: DefaultOrbitalSui,
			Module:         DefaultSuiModule,
			Emitter:        DefaultSuiEmitter,
			StateObject:    DefaultSuiState,
			OwnerCap:       DefaultSuiOwnerCap,
			Clock:          DefaultSuiClock,
			CoinInType:     DefaultSuiCoinInType,
			CoinOutType:    DefaultSuiCoinOutType,
			GasBudget:      DefaultSuiGasBudget,
			ConfirmTimeout: DefaultConfirmTimeout,
		},
		HTTPAddr:        DefaultHTTPAddr,
		WormholescanURL: DefaultWormholescan,
	}
}

// Validate rejects configurations the relayer cannot start with. Missing
// private keys are not errors; see Warnings.
func (c Config) Validate() error {
	if len(c.SpyEndpoints) == 0 {
		return errors.New("at least one spy endpoint is required")
	}
	for _, chain := range []vaaLib.ChainID{vaaLib.ChainIDSui, vaaLib.ChainIDAvalanche} {
		if strings.TrimSpace(c.Emitters[chain]) == "" {
			return errors.Errorf("emitter address for chain %s is required", chain)
		}
		if _, err := vaaLib.StringToAddress(c.Emitters[chain]); err != nil {
			return errors.Wrapf(err, "emitter address for chain %s", chain)
		}
	}
	if c.Startup.MaxAttempts < 1 {
		return errors.Errorf("startup attempts must be at least 1, got %d", c.Startup.MaxAttempts)
	}
	if c.Startup.RetryDelay < 0 {
		return errors.New("startup retry delay must not be negative")
	}
	if len(c.Selectors.Borrow) == 0 || len(c.Selectors.Repay) == 0 {
		return errors.New("borrow and repay selectors are required")
	}
	if c.EVM.GasMarginPct < 0 {
		return errors.New("gas margin must not be negative")
	}
	return nil
}

// Warnings lists non-fatal configuration gaps.
func (c Config) Warnings() []string {
	var w []string
	if c.EVM.PrivateKey == "" {
		w = append(w, "EVM private key not set: routes to the EVM chain are disabled")
	}
	if c.Sui.PrivateKey == "" {
		w = append(w, "Sui private key not set: routes to the Sui chain are disabled")
	}
	if c.Storage.RestURL == "" && c.Storage.RedisURL == "" {
		w = append(w, "no storage backend configured: bookkeeping disabled")
	}
	return w
}

// SplitList splits a comma separated flag value, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
