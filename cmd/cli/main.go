package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kato0x/pump-bundler/pkg/config"
	"github.com/kato0x/pump-bundler/pkg/engine"
	"github.com/kato0x/pump-bundler/pkg/jito"
	"github.com/kato0x/pump-bundler/pkg/rpc"
	"github.com/kato0x/pump-bundler/pkg/txbuilder"
	"github.com/kato0x/pump-bundler/pkg/wallet"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type globalOpts struct {
	rpcURL         string
	commitment     string
	devPath        string
	walletsPath    string
	relayUUID      string
	broadcast      bool
	skipPreflight  bool
	waitForLanding bool
	tipLamports    uint64
	chunkSize      int
	cuLimit        uint32
	cuPrice        uint64
	retryAttempts  int
	rateLimitRPS   float64
	logLevel       string
	timeoutSec     int
}

func newRootCmd() *cobra.Command {
	opts := &globalOpts{}

	root := &cobra.Command{
		Use:   "pump-bundler",
		Short: "Multi-wallet bundle engine for pump.fun launches",
	}

	root.PersistentFlags().StringVar(&opts.rpcURL, "rpc-url", os.Getenv("RPC_URL"), "RPC endpoint (default mainnet if empty)")
	root.PersistentFlags().StringVar(&opts.commitment, "commitment", "confirmed", "RPC commitment level")
	root.PersistentFlags().StringVar(&opts.devPath, "dev", os.Getenv("DEV_KEYPAIR"), "path to solana-keygen json for the dev wallet")
	root.PersistentFlags().StringVar(&opts.walletsPath, "wallets", os.Getenv("WALLETS_FILE"), "path to base58 private keys, one per line")
	root.PersistentFlags().StringVar(&opts.relayUUID, "relay-uuid", os.Getenv("JITO_UUID"), "Jito rate-limit UUID")
	root.PersistentFlags().BoolVar(&opts.broadcast, "broadcast", true, "fan bundles out to all block engines")
	root.PersistentFlags().BoolVar(&opts.skipPreflight, "skip-preflight", true, "skip preflight checks on RPC sends")
	root.PersistentFlags().BoolVar(&opts.waitForLanding, "wait", false, "wait for on-chain landing before exiting")
	root.PersistentFlags().Uint64Var(&opts.tipLamports, "tip", 1_000_000, "Jito tip in lamports")
	root.PersistentFlags().IntVar(&opts.chunkSize, "chunk-size", txbuilder.DefaultChunkSize, "wallets per transaction")
	root.PersistentFlags().Uint32Var(&opts.cuLimit, "cu-limit", 1_400_000, "compute unit limit per transaction")
	root.PersistentFlags().Uint64Var(&opts.cuPrice, "cu-price", 0, "compute unit price in micro-lamports")
	root.PersistentFlags().IntVar(&opts.retryAttempts, "retry-attempts", 3, "RPC retry attempts")
	root.PersistentFlags().Float64Var(&opts.rateLimitRPS, "rate-limit-rps", 8, "rate limit RPS (0 to disable)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "log level (debug|info|warn|error)")
	root.PersistentFlags().IntVar(&opts.timeoutSec, "timeout-sec", 20, "RPC timeout seconds")

	root.AddCommand(
		newBuyCmd(opts),
		newLaunchCmd(opts),
		newDumpCmd(opts),
		newAmmSellCmd(opts),
		newStaggerCmd(opts),
		newQuoteCmd(opts),
	)

	return root
}

// deps holds everything a command run needs after wiring.
type deps struct {
	engine  *engine.Engine
	rpc     *rpc.Client
	dev     wallet.Local
	wallets []wallet.Local
	policy  engine.Policy
}

func wire(cmd *cobra.Command, opts *globalOpts) (*deps, error) {
	cfg := config.DefaultRPCConfig()
	if opts.rpcURL != "" {
		cfg.RPCURL = opts.rpcURL
	}
	if opts.commitment != "" {
		cfg.Commitment = opts.commitment
	}
	cfg.RateLimit.RPS = opts.rateLimitRPS
	cfg.Retry.MaxAttempts = opts.retryAttempts
	if opts.timeoutSec > 0 {
		cfg.Timeout = time.Duration(opts.timeoutSec) * time.Second
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()}).
		Level(parseLogLevel(opts.logLevel)).
		With().Timestamp().Logger()
	cfg.Logger = log

	client := rpc.NewClient(cfg)
	builder := txbuilder.NewBuilder(client).WithSkipPreflight(opts.skipPreflight)

	relayCfg := config.DefaultRelayConfig()
	relayCfg.UUID = opts.relayUUID
	relayCfg.Broadcast = opts.broadcast
	relay := jito.NewClient(relayCfg, log)

	d := &deps{
		engine: engine.New(client, builder, relay, engine.WithLogger(log)),
		rpc:    client,
		policy: engine.Policy{
			ChunkSize:        opts.chunkSize,
			TipLamports:      opts.tipLamports,
			WaitForLanding:   opts.waitForLanding,
			LandingTimeout:   60 * time.Second,
			ComputeUnitLimit: opts.cuLimit,
			ComputeUnitPrice: opts.cuPrice,
		},
	}

	if opts.devPath != "" {
		dev, err := wallet.NewLocalFromKeygen(opts.devPath)
		if err != nil {
			return nil, err
		}
		d.dev = dev
	}
	if opts.walletsPath != "" {
		store, err := wallet.LoadStore(opts.walletsPath)
		if err != nil {
			return nil, err
		}
		d.wallets = store.Wallets()
	}
	return d, nil
}

func parseLogLevel(lvl string) zerolog.Level {
	switch strings.ToLower(lvl) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
