// Package buyback spends SOL on an asset's bonding curve and sends the
// purchased tokens to an unrecoverable burn address.
package buyback

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"
	"github.com/moltpump/feeshare/feeshare/pkg/chain"
	"github.com/moltpump/feeshare/feeshare/pkg/metrics"
	"github.com/moltpump/feeshare/feeshare/pkg/pump"
	"github.com/moltpump/feeshare/feeshare/pkg/store"
)

const (
	DefaultSlippageBps = 500
	DefaultSettleDelay = time.Second
)

// Transaction descriptions, also used as metric labels.
const (
	TxPurchase = "buyback_purchase"
	TxBurn     = "buyback_burn"
)

// Chain is the ledger read access the executor needs.
type Chain interface {
	AccountInfo(ctx context.Context, pk solana.PublicKey) (*chain.Account, error)
	TokenBalance(ctx context.Context, tokenAccount solana.PublicKey) (uint64, error)
}

type Sender interface {
	SendWithRetry(ctx context.Context, instructions []solana.Instruction, signers []solana.PrivateKey, description string) (solana.Signature, error)
}

type Auditor interface {
	AppendEvent(ctx context.Context, ev store.Event) error
}

type Config struct {
	Logger      *slog.Logger
	Chain       Chain
	Sender      Sender
	Platform    solana.PrivateKey
	BurnAddress solana.PublicKey
	SlippageBps uint64
	// SettleDelay is waited after the purchase confirms before the token
	// balance is re-read.
	SettleDelay time.Duration
	Clock       clockwork.Clock
	Audit       Auditor
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Chain == nil {
		return errors.New("chain is required")
	}
	if cfg.Sender == nil {
		return errors.New("sender is required")
	}
	if len(cfg.Platform) == 0 {
		return errors.New("platform wallet is required")
	}
	if cfg.BurnAddress.IsZero() {
		cfg.BurnAddress = pump.DefaultBurnAddress
	}
	if cfg.SlippageBps == 0 {
		cfg.SlippageBps = DefaultSlippageBps
	}
	if cfg.SlippageBps >= pump.TotalBasisPoints {
		return fmt.Errorf("slippage %d bps must be below %d", cfg.SlippageBps, pump.TotalBasisPoints)
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Audit == nil {
		cfg.Audit = store.NoopAuditor{}
	}
	return nil
}

// Result is a completed buy-and-burn.
type Result struct {
	Mint              solana.PublicKey `json:"mint"`
	PurchaseSignature solana.Signature `json:"purchase_signature"`
	BurnSignature     solana.Signature `json:"burn_signature"`
	TokensBurned      uint64           `json:"tokens_burned"`
	LamportsSpent     uint64           `json:"lamports_spent"`
}

type Executor struct {
	log      *slog.Logger
	cfg      Config
	platform solana.PublicKey
}

func New(cfg Config) (*Executor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Executor{
		log:      cfg.Logger,
		cfg:      cfg,
		platform: cfg.Platform.PublicKey(),
	}, nil
}

// ExecuteBuyback buys mint with at most lamports and burns what the platform
// wallet holds afterwards. If the purchase lands but the burn fails the
// error is a *BurnFailedError carrying the purchase signature.
func (e *Executor) ExecuteBuyback(ctx context.Context, mint solana.PublicKey, lamports uint64) (*Result, error) {
	res, err := e.execute(ctx, mint, lamports)

	ev := store.Event{Mint: mint.String(), Kind: store.EventKindBuyback, Lamports: lamports}
	var burnErr *BurnFailedError
	var noTokens *NoTokensReceivedError
	switch {
	case err == nil:
		ev.Success = true
		ev.Signatures = []string{res.PurchaseSignature.String(), res.BurnSignature.String()}
		ev.Tokens = res.TokensBurned
		metrics.BuybacksTotal.WithLabelValues("success").Inc()
	case errors.As(err, &burnErr):
		ev.Signatures = []string{burnErr.PurchaseSignature.String()}
		ev.Tokens = burnErr.TokensBought
		metrics.BuybacksTotal.WithLabelValues("burn_failed").Inc()
	case errors.As(err, &noTokens):
		ev.Signatures = []string{noTokens.PurchaseSignature.String()}
		metrics.BuybacksTotal.WithLabelValues("no_tokens").Inc()
	case errors.Is(err, ErrGraduated):
		metrics.BuybacksTotal.WithLabelValues("graduated").Inc()
	default:
		metrics.BuybacksTotal.WithLabelValues("error").Inc()
	}
	if err != nil {
		ev.Error = err.Error()
		e.log.Warn("buyback: failed", "mint", mint, "lamports", lamports, "error", err)
	}
	if !errors.Is(err, ErrZeroAmount) {
		if auditErr := e.cfg.Audit.AppendEvent(ctx, ev); auditErr != nil {
			metrics.AuditWriteErrorsTotal.Inc()
			e.log.Warn("buyback: failed to record audit event", "mint", mint, "error", auditErr)
		}
	}
	return res, err
}

func (e *Executor) execute(ctx context.Context, mint solana.PublicKey, lamports uint64) (*Result, error) {
	if lamports == 0 {
		return nil, ErrZeroAmount
	}

	curveAcct, err := e.cfg.Chain.AccountInfo(ctx, pump.BondingCurvePDA(mint))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bonding curve for %s: %w", mint, err)
	}
	curve, err := pump.DecodeBondingCurve(curveAcct.Data)
	if err != nil {
		return nil, err
	}
	if curve.Complete {
		return nil, fmt.Errorf("%w: %s", ErrGraduated, mint)
	}

	globalAcct, err := e.cfg.Chain.AccountInfo(ctx, pump.GlobalPDA())
	if err != nil {
		return nil, fmt.Errorf("failed to fetch pump global: %w", err)
	}
	global, err := pump.DecodeGlobal(globalAcct.Data)
	if err != nil {
		return nil, err
	}

	mintAcct, err := e.cfg.Chain.AccountInfo(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch mint %s: %w", mint, err)
	}
	tokenProgram, err := pump.TokenProgramForOwner(mintAcct.Owner)
	if err != nil {
		return nil, err
	}
	decimals, err := pump.MintDecimals(mintAcct.Data)
	if err != nil {
		return nil, err
	}

	quote := pump.QuoteBuy(curve, global, lamports)
	if quote == 0 {
		return nil, fmt.Errorf("%w: %d lamports", ErrZeroQuote, lamports)
	}
	minOut := pump.ApplySlippage(quote, e.cfg.SlippageBps)
	e.log.Info("buyback: purchasing", "mint", mint, "lamports", lamports, "sol", chain.LamportsToSOL(lamports), "quote", quote, "min_out", minOut)

	platformATA := pump.AssociatedTokenAddress(e.platform, mint, tokenProgram)
	buyIx, err := pump.BuyExactSolIn(pump.BuyParams{
		User:           e.platform,
		Mint:           mint,
		Creator:        curve.Creator,
		FeeRecipient:   global.FeeRecipient,
		TokenProgram:   tokenProgram,
		SpendableSolIn: lamports,
		MinTokensOut:   minOut,
	})
	if err != nil {
		return nil, err
	}
	buyIxs := e.withATA(ctx, platformATA, e.platform, mint, tokenProgram, buyIx)

	purchaseSig, err := e.cfg.Sender.SendWithRetry(ctx, buyIxs, e.signers(), TxPurchase)
	if err != nil {
		return nil, fmt.Errorf("failed to purchase %s: %w", mint, err)
	}
	e.log.Info("buyback: purchase confirmed", "mint", mint, "signature", purchaseSig)

	select {
	case <-ctx.Done():
		return nil, &BurnFailedError{PurchaseSignature: purchaseSig, Err: ctx.Err()}
	case <-e.cfg.Clock.After(e.cfg.SettleDelay):
	}

	bought, err := e.cfg.Chain.TokenBalance(ctx, platformATA)
	if err != nil {
		return nil, &BurnFailedError{PurchaseSignature: purchaseSig, Err: fmt.Errorf("failed to read purchased balance: %w", err)}
	}
	if bought == 0 {
		return nil, &NoTokensReceivedError{PurchaseSignature: purchaseSig}
	}

	burnATA := pump.AssociatedTokenAddress(e.cfg.BurnAddress, mint, tokenProgram)
	transferIx := pump.TokenTransfer(tokenProgram, platformATA, mint, burnATA, e.platform, bought, decimals)
	burnIxs := e.withATA(ctx, burnATA, e.cfg.BurnAddress, mint, tokenProgram, transferIx)

	burnSig, err := e.cfg.Sender.SendWithRetry(ctx, burnIxs, e.signers(), TxBurn)
	if err != nil {
		return nil, &BurnFailedError{PurchaseSignature: purchaseSig, TokensBought: bought, Err: err}
	}
	e.log.Info("buyback: tokens burned", "mint", mint, "tokens", bought, "signature", burnSig)

	return &Result{
		Mint:              mint,
		PurchaseSignature: purchaseSig,
		BurnSignature:     burnSig,
		TokensBurned:      bought,
		LamportsSpent:     lamports,
	}, nil
}

// withATA prepends an idempotent create of ata unless it is known to exist.
func (e *Executor) withATA(ctx context.Context, ata, owner, mint, tokenProgram solana.PublicKey, ix solana.Instruction) []solana.Instruction {
	if _, err := e.cfg.Chain.AccountInfo(ctx, ata); err == nil {
		return []solana.Instruction{ix}
	}
	return []solana.Instruction{
		pump.CreateAssociatedTokenAccountIdempotent(e.platform, owner, mint, tokenProgram),
		ix,
	}
}

func (e *Executor) signers() []solana.PrivateKey {
	return []solana.PrivateKey{e.cfg.Platform}
}
