package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/getsentry/sentry-go"
	flag "github.com/spf13/pflag"

	"github.com/moltpump/feeshare/feeshare/pkg/buyback"
	"github.com/moltpump/feeshare/feeshare/pkg/chain"
	"github.com/moltpump/feeshare/feeshare/pkg/config"
	"github.com/moltpump/feeshare/feeshare/pkg/feesharing"
	"github.com/moltpump/feeshare/feeshare/pkg/metrics"
	"github.com/moltpump/feeshare/feeshare/pkg/notify"
	"github.com/moltpump/feeshare/feeshare/pkg/scheduler"
	"github.com/moltpump/feeshare/feeshare/pkg/server"
	"github.com/moltpump/feeshare/feeshare/pkg/store"
	"github.com/moltpump/feeshare/feeshare/pkg/txsender"
	"github.com/moltpump/feeshare/utils/pkg/logger"
	"github.com/moltpump/feeshare/utils/pkg/pacer"
)

// Set via ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const shutdownTimeout = 10 * time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	verboseFlag := flag.Bool("verbose", false, "enable verbose (debug) logging")
	envFileFlag := flag.String("env-file", ".env", "optional dotenv file loaded before reading the environment")

	// Chain configuration
	rpcURLFlag := flag.String("rpc-url", "", "Solana RPC URL, defaults to mainnet-beta (or set SOLANA_RPC_URL env var)")
	treasuryFlag := flag.String("treasury", "", "platform treasury wallet receiving the platform share (or set TREASURY_WALLET env var)")

	// Service configuration
	listenAddrFlag := flag.String("listen-addr", ":8080", "admin HTTP listen address (or set ADMIN_LISTEN_ADDR env var)")
	scheduleFlag := flag.String("schedule", scheduler.DefaultSchedule, "cron schedule for automatic distribution (or set DISTRIBUTE_CRON env var)")
	runOnStartFlag := flag.Bool("run-on-start", false, "run a distribution pass immediately on startup (or set RUN_ON_START=true env var)")
	thresholdFlag := flag.Uint64("auto-threshold-lamports", scheduler.DefaultAutoThresholdLamports, "vault balance that triggers automatic distribution (or set AUTO_DISTRIBUTE_THRESHOLD_LAMPORTS env var)")
	slippageFlag := flag.Uint64("slippage-bps", buyback.DefaultSlippageBps, "buyback slippage tolerance in basis points (or set BUYBACK_SLIPPAGE_BPS env var)")

	// Commands
	migrateFlag := flag.Bool("migrate", false, "run database migrations and exit")
	setupMintFlag := flag.String("setup-mint", "", "create the fee sharing config for a mint and exit (requires --agent)")
	agentFlag := flag.String("agent", "", "agent wallet for --setup-mint and --update-shares")
	updateSharesFlag := flag.String("update-shares", "", "rewrite the shareholders of a configured mint and exit (requires --agent)")
	distributeMintFlag := flag.String("distribute-mint", "", "distribute creator fees for a mint and exit")
	runOnceFlag := flag.Bool("run-once", false, "run a single distribution pass over all active assets and exit")

	flag.Parse()

	log := logger.New(*verboseFlag)

	if loaded, err := config.LoadDotEnv(*envFileFlag); err != nil {
		return err
	} else if loaded {
		log.Info("loaded environment file", "path", *envFileFlag)
	}

	// Override flags with environment variables if set
	if *rpcURLFlag == "" || os.Getenv("SOLANA_RPC_URL") != "" {
		*rpcURLFlag = chain.GetRPCURL()
	}
	if v := os.Getenv("TREASURY_WALLET"); v != "" {
		*treasuryFlag = v
	}
	if v := os.Getenv("ADMIN_LISTEN_ADDR"); v != "" {
		*listenAddrFlag = v
	}
	if v := os.Getenv("DISTRIBUTE_CRON"); v != "" {
		*scheduleFlag = v
	}
	if os.Getenv("RUN_ON_START") == "true" {
		*runOnStartFlag = true
	}
	if v := os.Getenv("AUTO_DISTRIBUTE_THRESHOLD_LAMPORTS"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid AUTO_DISTRIBUTE_THRESHOLD_LAMPORTS: %w", err)
		}
		*thresholdFlag = n
	}
	if v := os.Getenv("BUYBACK_SLIPPAGE_BPS"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid BUYBACK_SLIPPAGE_BPS: %w", err)
		}
		*slippageFlag = n
	}

	metrics.BuildInfo.WithLabelValues(version, commit, date).Set(1)

	if dsn := os.Getenv("SENTRY_DSN"); dsn != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              dsn,
			Release:          version,
			Environment:      os.Getenv("SENTRY_ENVIRONMENT"),
			EnableTracing:    true,
			TracesSampleRate: 1.0,
		}); err != nil {
			return fmt.Errorf("failed to initialize sentry: %w", err)
		}
		defer sentry.Flush(2 * time.Second)
		log.Info("sentry initialized")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pgCfg, err := store.LoadConfigFromEnv()
	if err != nil {
		return err
	}
	if *migrateFlag {
		return store.RunMigrations(ctx, log, pgCfg.ConnString())
	}

	platform, err := config.ParsePrivateKey(os.Getenv("PLATFORM_WALLET_PRIVATE_KEY"))
	if err != nil {
		return fmt.Errorf("PLATFORM_WALLET_PRIVATE_KEY: %w", err)
	}
	treasury, err := chain.ParseAddress(*treasuryFlag)
	if err != nil {
		return fmt.Errorf("--treasury or TREASURY_WALLET: %w", err)
	}

	pool, err := store.Connect(ctx, log, pgCfg.ConnString())
	if err != nil {
		return err
	}
	defer pool.Close()
	db, err := store.New(pool)
	if err != nil {
		return err
	}

	client, err := chain.NewClient(chain.ClientConfig{
		Logger: log,
		RPC:    chain.NewRPCClient(*rpcURLFlag),
	})
	if err != nil {
		return fmt.Errorf("failed to create chain client: %w", err)
	}
	if err := client.Health(ctx); err != nil {
		return fmt.Errorf("rpc health check failed: %w", err)
	}

	sender, err := txsender.New(txsender.Config{Logger: log, Chain: client})
	if err != nil {
		return err
	}

	fees, err := feesharing.NewService(feesharing.ServiceConfig{
		Logger:     log,
		Chain:      client,
		Sender:     sender,
		Platform:   platform,
		Treasury:   treasury,
		BatchPacer: pacer.NewRate(feesharing.DefaultBatchDelay),
		Audit:      db,
	})
	if err != nil {
		return err
	}

	buybacks, err := buyback.New(buyback.Config{
		Logger:      log,
		Chain:       client,
		Sender:      sender,
		Platform:    platform,
		SlippageBps: *slippageFlag,
		Audit:       db,
	})
	if err != nil {
		return err
	}

	log.Info("fee engine configured",
		"version", version,
		"platform", fees.PlatformWallet(),
		"treasury", treasury,
		"agent_bps", feesharing.DefaultAgentShareBps,
		"platform_bps", feesharing.DefaultPlatformShareBps)

	// One-shot commands
	if *setupMintFlag != "" {
		mint, agent, err := mintAndAgent(*setupMintFlag, *agentFlag, "--setup-mint")
		if err != nil {
			return err
		}
		res, err := fees.SetupFeeSharing(ctx, mint, agent)
		if err != nil {
			return err
		}
		log.Info("fee sharing configured", "mint", mint, "config", res.ConfigAddress, "setup_signature", res.SetupSignature, "update_signature", res.UpdateSignature)
		return nil
	}

	if *updateSharesFlag != "" {
		mint, agent, err := mintAndAgent(*updateSharesFlag, *agentFlag, "--update-shares")
		if err != nil {
			return err
		}
		sig, err := fees.UpdateShareholders(ctx, mint, agent)
		if err != nil {
			return err
		}
		if sig == (solana.Signature{}) {
			log.Info("shareholders already up to date", "mint", mint)
			return nil
		}
		log.Info("shareholders updated", "mint", mint, "signature", sig)
		return nil
	}

	if *distributeMintFlag != "" {
		mint, err := chain.ParseAddress(*distributeMintFlag)
		if err != nil {
			return err
		}
		d, err := fees.DistributeCreatorFees(ctx, mint)
		if err != nil {
			return err
		}
		log.Info("creator fees distributed", "mint", mint, "signature", d.Signature, "lamports", d.Amount, "sol", chain.LamportsToSOL(d.Amount))
		return nil
	}

	var notifier scheduler.Notifier = notify.Noop{}
	if url := os.Getenv("SLACK_WEBHOOK_URL"); url != "" {
		n, err := notify.NewSlack(notify.SlackConfig{Logger: log, WebhookURL: url})
		if err != nil {
			return err
		}
		notifier = n
	}

	sched, err := scheduler.New(scheduler.Config{
		Logger:                log,
		Assets:                db,
		Fees:                  fees,
		Buyback:               buybacks,
		Notifier:              notifier,
		Schedule:              *scheduleFlag,
		RunOnStart:            *runOnStartFlag,
		AutoThresholdLamports: *thresholdFlag,
	})
	if err != nil {
		return err
	}

	if *runOnceFlag {
		res, err := sched.TriggerManualRun(ctx)
		if err != nil {
			return err
		}
		log.Info("distribution pass complete",
			"checked", res.TokensChecked,
			"distributed", res.TokensDistributed,
			"buybacks", res.BuybacksExecuted,
			"failures", res.Failures(),
			"sol", chain.LamportsToSOL(res.TotalDistributedLamports))
		return nil
	}

	var origins []string
	if v := os.Getenv("ADMIN_CORS_ORIGINS"); v != "" {
		for _, o := range strings.Split(v, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	srv, err := server.New(server.Config{
		Logger:         log,
		Addr:           *listenAddrFlag,
		AuthToken:      os.Getenv("ADMIN_TOKEN"),
		Fees:           fees,
		Runner:         sched,
		Assets:         db,
		Events:         db,
		AllowedOrigins: origins,
	})
	if err != nil {
		return fmt.Errorf("failed to create admin server: %w", err)
	}

	if err := sched.Start(ctx); err != nil {
		return err
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- srv.Start() }()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received")
	case err := <-serveErr:
		if err != nil {
			log.Error("admin server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("admin server shutdown failed", "error", err)
	}

	select {
	case <-sched.Stop().Done():
	case <-shutdownCtx.Done():
		return errors.New("timed out waiting for the in-flight distribution run")
	}
	return nil
}

func mintAndAgent(rawMint, rawAgent, command string) (solana.PublicKey, solana.PublicKey, error) {
	mint, err := chain.ParseAddress(rawMint)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, err
	}
	if rawAgent == "" {
		return solana.PublicKey{}, solana.PublicKey{}, fmt.Errorf("--agent is required for %s", command)
	}
	agent, err := chain.ParseAddress(rawAgent)
	if err != nil {
		return solana.PublicKey{}, solana.PublicKey{}, err
	}
	return mint, agent, nil
}
