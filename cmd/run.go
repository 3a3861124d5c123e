package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	vaaLib "github.com/wormhole-foundation/wormhole/sdk/vaa"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/orbital-protocol/relayer/internal"
	"github.com/orbital-protocol/relayer/internal/clients"
	"github.com/orbital-protocol/relayer/internal/config"
	"github.com/orbital-protocol/relayer/internal/health"
	"github.com/orbital-protocol/relayer/internal/metrics"
	"github.com/orbital-protocol/relayer/internal/payload"
	"github.com/orbital-protocol/relayer/internal/probe"
	"github.com/orbital-protocol/relayer/internal/storage"
	"github.com/orbital-protocol/relayer/internal/submitter"
)

const txLookupClientTimeout = 5 * time.Second

// runCmd relays Orbital borrow and repay messages in both directions
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Relay Orbital messages between Sui and Avalanche",
	Long: `Subscribes to the guardian spy for messages from the Orbital emitters on Sui and
Avalanche and submits each borrow or repay to the contract on the other chain.

Routes to a chain whose private key is not configured are logged and skipped.`,
	SilenceUsage: true,
	PreRun: func(cmd *cobra.Command, args []string) {
		printBanner()
	},
	RunE: runRelay,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runRelay(cmd *cobra.Command, args []string) error {
	logger := configureLogging(cmd, args)
	defer func() { _ = logger.Sync() }()

	cfg, err := buildConfig(viper.GetViper())
	if err != nil {
		return err
	}
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	bookkeeper := storage.NewBookkeeper(logger, cfg.RelayerName)
	router := internal.NewRouter(logger, payload.NewDecoder(cfg.Selectors))
	if err := registerRoutes(logger, cfg, router, bookkeeper); err != nil {
		return err
	}

	var txHashes internal.TxHashResolver
	if cfg.WormholescanURL != "" {
		txHashes = clients.NewWormholescanClient(logger, cfg.WormholescanURL, txLookupClientTimeout)
	}

	relayer := internal.NewRelayer(logger,
		internal.Options{
			SpyEndpoints:     cfg.SpyEndpoints,
			Emitters:         cfg.Emitters,
			StartingSequence: cfg.StartingSequence,
			MaxAttempts:      cfg.Startup.MaxAttempts,
			RetryDelay:       cfg.Startup.RetryDelay,
		},
		internal.Dependencies{
			Prober: probe.NewProber(logger, cfg.ProbeTimeout),
			Dial:   internal.SpyDialer(logger),
			SelectStorage: func(ctx context.Context) storage.Handle {
				return storage.Select(ctx, logger, cfg.Storage)
			},
			Router:     router,
			Bookkeeper: bookkeeper,
			TxHashes:   txHashes,
			Metrics:    m,
		})

	logger.Info("Starting Orbital relayer",
		zap.String("name", cfg.RelayerName),
		zap.Strings("spyEndpoints", cfg.SpyEndpoints),
		zap.String("suiEmitter", cfg.Emitters[vaaLib.ChainIDSui]),
		zap.String("evmEmitter", cfg.Emitters[vaaLib.ChainIDAvalanche]),
		zap.String("httpAddr", cfg.HTTPAddr))

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return relayer.Start(gctx)
	})
	g.Go(func() error {
		return health.NewServer(logger, cfg.HTTPAddr, reg).Run(gctx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Relayer stopped with error", zap.Error(err))
		return err
	}
	logger.Info("Relayer stopped")
	return nil
}

// registerRoutes installs a builder for each destination chain that has a key.
func registerRoutes(logger *zap.Logger, cfg config.Config, router *internal.Router, loans submitter.LoanResolver) error {
	if cfg.EVM.PrivateKey != "" {
		evmClient, err := clients.NewEVMClient(logger, cfg.EVM.RPCURL, cfg.EVM.PrivateKey, cfg.EVM.ChainID)
		if err != nil {
			return errors.Wrap(err, "failed to create EVM client")
		}
		logger.Info("Relaying to Avalanche enabled",
			zap.String("address", evmClient.Address().Hex()),
			zap.String("contract", cfg.EVM.OrbitalContract))

		evm := submitter.NewEVMSubmitter(logger, submitter.EVMConfig{
			Contract: common.HexToAddress(cfg.EVM.OrbitalContract),
			Tokens: map[submitter.TokenRole]common.Address{
				submitter.TokenDefaultIn:  common.HexToAddress(cfg.EVM.TokenIn),
				submitter.TokenDefaultOut: common.HexToAddress(cfg.EVM.TokenOut),
			},
			GasMarginPct:   cfg.EVM.GasMarginPct,
			ConfirmTimeout: cfg.EVM.ConfirmTimeout,
		}, evmClient)
		router.Register(payload.MethodBorrow, evm)
		router.Register(payload.MethodRepay, evm)
	}

	if cfg.Sui.PrivateKey != "" {
		suiClient, err := clients.NewSuiClient(logger, cfg.Sui.RPCURL, cfg.Sui.PrivateKey)
		if err != nil {
			return errors.Wrap(err, "failed to create Sui client")
		}
		logger.Info("Relaying to Sui enabled",
			zap.String("address", suiClient.Address()),
			zap.String("package", cfg.Sui.OrbitalPackage))

		sui := submitter.NewSuiSubmitter(logger, submitter.SuiConfig{
			Package:        cfg.Sui.OrbitalPackage,
			Module:         cfg.Sui.Module,
			StateObject:    cfg.Sui.StateObject,
			OwnerCap:       cfg.Sui.OwnerCap,
			Clock:          cfg.Sui.Clock,
			CoinInType:     cfg.Sui.CoinInType,
			CoinOutType:    cfg.Sui.CoinOutType,
			GasBudget:      cfg.Sui.GasBudget,
			ConfirmTimeout: cfg.Sui.ConfirmTimeout,
		}, suiClient, loans)
		router.Register(payload.MethodBorrow, sui)
		router.Register(payload.MethodRepay, sui)
	}

	logger.Info("Routes registered", zap.Strings("routes", router.Routes()))
	return nil
}
