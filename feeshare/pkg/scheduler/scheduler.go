// Package scheduler runs the periodic creator fee distribution over all
// active assets, with an optional buyback of the agent share afterwards.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/getsentry/sentry-go"
	"github.com/jonboulle/clockwork"
	"github.com/moltpump/feeshare/feeshare/pkg/buyback"
	"github.com/moltpump/feeshare/feeshare/pkg/chain"
	"github.com/moltpump/feeshare/feeshare/pkg/feesharing"
	"github.com/moltpump/feeshare/feeshare/pkg/metrics"
	"github.com/moltpump/feeshare/feeshare/pkg/store"
	"github.com/moltpump/feeshare/utils/pkg/pacer"
	"github.com/robfig/cron/v3"
)

const (
	DefaultSchedule              = "*/10 * * * *"
	DefaultAutoThresholdLamports = 1_000_000_000
	DefaultAssetDelay            = time.Second
)

const (
	TriggerScheduled = "scheduled"
	TriggerStartup   = "startup"
	TriggerManual    = "manual"
)

var (
	ErrRunInProgress = errors.New("a distribution run is already in progress")
	ErrStopped       = errors.New("scheduler is stopped")
)

// Assets lists the assets a run iterates over.
type Assets interface {
	ListActiveAssets(ctx context.Context) ([]store.Asset, error)
	MarkGraduated(ctx context.Context, mint string) error
}

// Fees is the fee sharing surface a run needs.
type Fees interface {
	ConfigStatus(ctx context.Context, mint solana.PublicKey) (bool, error)
	VaultBalance(ctx context.Context, mint solana.PublicKey) (uint64, error)
	DistributeCreatorFees(ctx context.Context, mint solana.PublicKey) (*feesharing.Distribution, error)
	AgentShare(amount uint64) uint64
}

type Buyback interface {
	ExecuteBuyback(ctx context.Context, mint solana.PublicKey, lamports uint64) (*buyback.Result, error)
}

// Notifier receives the summary of every finished run.
type Notifier interface {
	NotifyBatch(ctx context.Context, res *BatchResult) error
}

type Config struct {
	Logger   *slog.Logger
	Assets   Assets
	Fees     Fees
	Buyback  Buyback
	Notifier Notifier
	Clock    clockwork.Clock

	// Schedule is a standard five field cron expression evaluated in UTC.
	Schedule   string
	RunOnStart bool

	// AutoThresholdLamports is the vault balance at which a run distributes.
	AutoThresholdLamports uint64

	// Pacer is waited on after every asset that reached the distribution
	// stage.
	Pacer pacer.Pacer
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Assets == nil {
		return errors.New("assets are required")
	}
	if cfg.Fees == nil {
		return errors.New("fees are required")
	}
	if cfg.Buyback == nil {
		return errors.New("buyback is required")
	}
	if cfg.Notifier == nil {
		return errors.New("notifier is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return fmt.Errorf("invalid schedule %q: %w", cfg.Schedule, err)
	}
	if cfg.AutoThresholdLamports == 0 {
		cfg.AutoThresholdLamports = DefaultAutoThresholdLamports
	}
	if cfg.Pacer == nil {
		cfg.Pacer = pacer.NewFixed(cfg.Clock, DefaultAssetDelay)
	}
	return nil
}

type Scheduler struct {
	log  *slog.Logger
	cfg  Config
	cron *cron.Cron

	// running is held for the whole of a run, scheduled or manual.
	running atomic.Bool

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
	baseCtx context.Context
}

func New(cfg Config) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Scheduler{
		log:     cfg.Logger,
		cfg:     cfg,
		cron:    cron.New(cron.WithLocation(time.UTC)),
		baseCtx: context.Background(),
	}, nil
}

// Start arms the recurring trigger. Runs use a context detached from ctx's
// cancellation so shutdown never interrupts an in-flight run.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.baseCtx = context.WithoutCancel(ctx)
	s.mu.Unlock()

	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() { s.tick(TriggerScheduled) }); err != nil {
		return fmt.Errorf("failed to register distribution schedule: %w", err)
	}
	s.cron.Start()
	s.log.Info("scheduler: started", "schedule", s.cfg.Schedule, "threshold_lamports", s.cfg.AutoThresholdLamports)

	if s.cfg.RunOnStart {
		go s.tick(TriggerStartup)
	}
	return nil
}

// Stop disarms the trigger and rejects new runs. The returned context is
// done once the in-flight run, if any, has finished.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		cancel()
		s.log.Info("scheduler: stopped")
	}()
	return ctx
}

// Running reports whether a run currently holds the guard.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// TriggerManualRun runs a batch immediately and returns its result. It
// shares the guard with scheduled runs and fails with ErrRunInProgress
// rather than running concurrently.
func (s *Scheduler) TriggerManualRun(ctx context.Context) (*BatchResult, error) {
	release, err := s.acquire()
	if err != nil {
		return nil, err
	}
	defer release()
	return s.run(context.WithoutCancel(ctx), TriggerManual)
}

func (s *Scheduler) tick(trigger string) {
	release, err := s.acquire()
	switch {
	case errors.Is(err, ErrRunInProgress):
		s.log.Info("scheduler: skipping run, previous run still in progress", "trigger", trigger)
		metrics.BatchSkippedTotal.Inc()
		return
	case err != nil:
		return
	}
	defer release()

	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if _, err := s.run(ctx, trigger); err != nil {
		s.log.Error("scheduler: run failed", "trigger", trigger, "error", err)
	}
}

func (s *Scheduler) acquire() (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return nil, ErrStopped
	}
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrRunInProgress
	}
	s.wg.Add(1)
	return func() {
		s.running.Store(false)
		s.wg.Done()
	}, nil
}

func (s *Scheduler) run(ctx context.Context, trigger string) (_ *BatchResult, err error) {
	span := sentry.StartSpan(ctx, "feeshare.batch", sentry.WithDescription(trigger))
	defer span.Finish()
	ctx = span.Context()

	start := s.cfg.Clock.Now()
	res := &BatchResult{Trigger: trigger, StartedAt: start.UTC()}

	defer func() {
		res.Duration = s.cfg.Clock.Since(start)
		metrics.BatchRunDuration.Observe(res.Duration.Seconds())

		if r := recover(); r != nil {
			s.log.Error("scheduler: run panicked", "trigger", trigger, "panic", r)
			metrics.PanicsRecoveredTotal.WithLabelValues("scheduler").Inc()
			sentry.CurrentHub().Recover(r)
			err = fmt.Errorf("distribution run panicked: %v", r)
		}

		status := "success"
		if err != nil {
			status = "error"
			span.Status = sentry.SpanStatusInternalError
		} else {
			span.Status = sentry.SpanStatusOK
		}
		metrics.BatchRunsTotal.WithLabelValues(trigger, status).Inc()
	}()

	assets, err := s.cfg.Assets.ListActiveAssets(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active assets: %w", err)
	}
	if len(assets) == 0 {
		s.log.Info("scheduler: no active assets", "trigger", trigger)
		return res, nil
	}

	s.log.Info("scheduler: run started", "trigger", trigger, "assets", len(assets))
	for _, asset := range assets {
		ar, checked := s.processAsset(ctx, asset)
		if checked {
			res.TokensChecked++
		}
		res.record(ar)
		metrics.AssetOutcomesTotal.WithLabelValues(string(ar.Status)).Inc()

		if ar.Status.Processed() {
			if err := s.cfg.Pacer.Wait(ctx); err != nil {
				s.log.Warn("scheduler: pacing wait failed", "error", err)
			}
		}
	}

	s.log.Info("scheduler: run complete",
		"trigger", trigger,
		"checked", res.TokensChecked,
		"distributed", res.TokensDistributed,
		"buybacks", res.BuybacksExecuted,
		"lamports", res.TotalDistributedLamports,
		"sol", chain.LamportsToSOL(res.TotalDistributedLamports),
		"duration", s.cfg.Clock.Since(start))

	if err := s.cfg.Notifier.NotifyBatch(ctx, res); err != nil {
		s.log.Warn("scheduler: failed to send batch summary", "error", err)
	}
	return res, nil
}

// processAsset runs the distribution pipeline for one asset. checked
// reports whether the asset has a shareholder config.
func (s *Scheduler) processAsset(ctx context.Context, asset store.Asset) (ar AssetResult, checked bool) {
	ar = AssetResult{Mint: asset.Mint, Symbol: asset.Symbol}

	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduler: asset processing panicked", "mint", asset.Mint, "panic", r)
			metrics.PanicsRecoveredTotal.WithLabelValues("scheduler_asset").Inc()
			sentry.CurrentHub().Recover(r)
			ar.Status = AssetStatusError
			ar.Error = fmt.Sprintf("panic: %v", r)
		}
	}()

	mint, err := chain.ParseAddress(asset.Mint)
	if err != nil {
		ar.Status = AssetStatusError
		ar.Error = err.Error()
		return ar, false
	}

	configured, err := s.cfg.Fees.ConfigStatus(ctx, mint)
	if err != nil {
		s.log.Warn("scheduler: failed to check fee sharing config", "mint", mint, "symbol", asset.Symbol, "error", err)
		ar.Status = AssetStatusError
		ar.Error = err.Error()
		return ar, false
	}
	if !configured {
		ar.Status = AssetStatusSkippedNoConfig
		return ar, false
	}

	balance, err := s.cfg.Fees.VaultBalance(ctx, mint)
	if err != nil {
		s.log.Warn("scheduler: failed to read vault balance", "mint", mint, "symbol", asset.Symbol, "error", err)
		ar.Status = AssetStatusError
		ar.Error = err.Error()
		return ar, true
	}
	ar.VaultBalanceLamports = balance
	if balance < s.cfg.AutoThresholdLamports {
		ar.Status = AssetStatusBelowThreshold
		return ar, true
	}

	s.log.Info("scheduler: vault above threshold, distributing", "mint", mint, "symbol", asset.Symbol, "sol", chain.LamportsToSOL(balance))
	dist, err := s.cfg.Fees.DistributeCreatorFees(ctx, mint)
	if err != nil {
		s.log.Error("scheduler: distribution failed", "mint", mint, "symbol", asset.Symbol, "error", err)
		ar.Status = AssetStatusDistributionFailed
		ar.Error = err.Error()
		return ar, true
	}
	ar.Status = AssetStatusDistributed
	ar.DistributedLamports = dist.Amount
	ar.DistributionSignature = dist.Signature.String()

	if !asset.BuybackEnabled {
		return ar, true
	}

	lamports := s.cfg.Fees.AgentShare(dist.Amount)
	ar.BuybackLamports = lamports
	bb, err := s.cfg.Buyback.ExecuteBuyback(ctx, mint, lamports)
	if err != nil {
		s.log.Error("scheduler: buyback failed", "mint", mint, "symbol", asset.Symbol, "lamports", lamports, "error", err)
		ar.Status = AssetStatusBuybackFailed
		ar.Error = err.Error()

		var (
			burnErr  *buyback.BurnFailedError
			noTokens *buyback.NoTokensReceivedError
		)
		switch {
		case errors.As(err, &burnErr):
			ar.PurchaseSignature = burnErr.PurchaseSignature.String()
		case errors.As(err, &noTokens):
			ar.PurchaseSignature = noTokens.PurchaseSignature.String()
		}
		if errors.Is(err, buyback.ErrGraduated) {
			if err := s.cfg.Assets.MarkGraduated(ctx, asset.Mint); err != nil {
				s.log.Warn("scheduler: failed to mark asset graduated", "mint", mint, "error", err)
			}
		}
		return ar, true
	}

	ar.Status = AssetStatusBuybackExecuted
	ar.TokensBurned = bb.TokensBurned
	ar.PurchaseSignature = bb.PurchaseSignature.String()
	ar.BurnSignature = bb.BurnSignature.String()
	return ar, true
}
