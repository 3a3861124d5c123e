package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/orbital-protocol/relayer/internal/clients"
	"github.com/orbital-protocol/relayer/internal/config"
	"github.com/orbital-protocol/relayer/internal/probe"
	"github.com/orbital-protocol/relayer/internal/storage"
)

const checkTimeout = 30 * time.Second

// checkCmd prints the effective configuration and tests connectivity
var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Print the effective configuration and test storage and spy connectivity",
	Long: `Prints the configuration with secrets masked, warns about missing keys, selects a
storage backend with its canary and probes the spy endpoints. It never relays.`,
	SilenceUsage: true,
	RunE:         runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	logger := configureLogging(cmd, args)
	defer func() { _ = logger.Sync() }()

	cfg, err := buildConfig(viper.GetViper())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	writeSummary(out, configSummary(cfg))
	for _, w := range cfg.Warnings() {
		fmt.Fprintf(out, "WARNING: %s\n", w)
	}

	ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
	defer cancel()

	handle := storage.Select(ctx, logger, cfg.Storage)
	defer func() { _ = handle.Close() }()
	fmt.Fprintf(out, "storage backend: %s\n", handle.Kind())

	endpoint, live := probe.NewProber(logger, cfg.ProbeTimeout).Select(ctx, cfg.SpyEndpoints)
	fmt.Fprintf(out, "spy endpoint: %s (reachable: %t)\n", endpoint, live)

	logger.Debug("Check finished", zap.Stringer("storage", handle.Kind()), zap.Bool("spyReachable", live))
	return nil
}

type summaryLine struct {
	key   string
	value string
}

func configSummary(cfg config.Config) []summaryLine {
	return []summaryLine{
		{"relayer name", cfg.RelayerName},
		{"spy endpoints", strings.Join(cfg.SpyEndpoints, ", ")},
		{"sui emitter", cfg.Sui.Emitter},
		{"evm emitter / contract", cfg.EVM.OrbitalContract},
		{"eth rpc", cfg.EVM.RPCURL},
		{"eth chain id", fmt.Sprint(cfg.EVM.ChainID)},
		{"eth private key", maskSecret(cfg.EVM.PrivateKey)},
		{"eth address", evmAddress(cfg.EVM.PrivateKey)},
		{"sui rpc", cfg.Sui.RPCURL},
		{"sui package", cfg.Sui.OrbitalPackage},
		{"sui private key", maskSecret(cfg.Sui.PrivateKey)},
		{"sui address", suiAddress(cfg.Sui.PrivateKey)},
		{"rest storage", cfg.Storage.RestURL},
		{"rest token", maskSecret(cfg.Storage.RestToken)},
		{"redis url", maskURL(cfg.Storage.RedisURL)},
		{"redis password", maskSecret(cfg.Storage.RedisPassword)},
		{"http", cfg.HTTPAddr},
		{"wormholescan", cfg.WormholescanURL},
	}
}

func writeSummary(w io.Writer, lines []summaryLine) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, l := range lines {
		v := l.value
		if v == "" {
			v = "-"
		}
		fmt.Fprintf(tw, "%s:\t%s\n", l.key, v)
	}
	_ = tw.Flush()
}

// maskSecret keeps at most the first and last four characters.
func maskSecret(s string) string {
	switch {
	case s == "":
		return "(not set)"
	case len(s) <= 12:
		return "****"
	default:
		return s[:4] + "****" + s[len(s)-4:]
	}
}

// maskURL hides userinfo in a connection URL.
func maskURL(s string) string {
	at := strings.LastIndex(s, "@")
	scheme := strings.Index(s, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return s
	}
	return s[:scheme+3] + "****" + s[at:]
}

func evmAddress(key string) string {
	if key == "" {
		return ""
	}
	pk, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(key), "0x"))
	if err != nil {
		return "invalid key: " + err.Error()
	}
	return crypto.PubkeyToAddress(pk.PublicKey).Hex()
}

func suiAddress(key string) string {
	if key == "" {
		return ""
	}
	kp, err := clients.ParseSuiKey(key)
	if err != nil {
		return "invalid key: " + err.Error()
	}
	return kp.Address()
}
