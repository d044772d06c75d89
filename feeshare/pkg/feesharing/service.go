// Package feesharing manages pump.fun fee sharing configs and distributes
// accrued creator fees to their shareholders.
package feesharing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/moltpump/feeshare/feeshare/pkg/chain"
	"github.com/moltpump/feeshare/feeshare/pkg/pump"
	"github.com/moltpump/feeshare/feeshare/pkg/store"
	"github.com/moltpump/feeshare/utils/pkg/pacer"
)

const (
	DefaultAgentShareBps            = 7000
	DefaultPlatformShareBps         = 3000
	DefaultMinDistributableLamports = 10_000_000
	DefaultBatchDelay               = 500 * time.Millisecond
)

// Transaction descriptions, also used as metric labels.
const (
	TxCreateConfig      = "create_fee_sharing_config"
	TxUpdateShares      = "update_fee_shares"
	TxDistributeCreator = "distribute_creator_fees"
)

// Chain is the ledger read access the service needs.
type Chain interface {
	AccountInfo(ctx context.Context, pk solana.PublicKey) (*chain.Account, error)
	TokenBalance(ctx context.Context, tokenAccount solana.PublicKey) (uint64, error)
	RentExemptMinimum(ctx context.Context, size uint64) (uint64, error)
	Simulate(ctx context.Context, payer solana.PublicKey, instructions ...solana.Instruction) (*chain.Simulation, error)
}

// Sender submits transactions with blockhash retry.
type Sender interface {
	SendWithRetry(ctx context.Context, instructions []solana.Instruction, signers []solana.PrivateKey, description string) (solana.Signature, error)
}

// Auditor records fee operation outcomes.
type Auditor interface {
	AppendEvent(ctx context.Context, ev store.Event) error
}

type ServiceConfig struct {
	Logger   *slog.Logger
	Chain    Chain
	Sender   Sender
	Platform solana.PrivateKey
	Treasury solana.PublicKey

	AgentShareBps            uint16
	PlatformShareBps         uint16
	MinDistributableLamports uint64

	// BatchPacer spaces out BatchDistributeCreatorFees submissions.
	BatchPacer pacer.Pacer
	Audit      Auditor
}

func (cfg *ServiceConfig) Validate() error {
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
	if cfg.Treasury.IsZero() {
		return errors.New("treasury wallet is required")
	}
	if cfg.AgentShareBps == 0 && cfg.PlatformShareBps == 0 {
		cfg.AgentShareBps = DefaultAgentShareBps
		cfg.PlatformShareBps = DefaultPlatformShareBps
	}
	if uint32(cfg.AgentShareBps)+uint32(cfg.PlatformShareBps) != pump.TotalBasisPoints {
		return fmt.Errorf("%w: agent %d + platform %d", pump.ErrSharesSum, cfg.AgentShareBps, cfg.PlatformShareBps)
	}
	if cfg.MinDistributableLamports == 0 {
		cfg.MinDistributableLamports = DefaultMinDistributableLamports
	}
	if cfg.BatchPacer == nil {
		cfg.BatchPacer = pacer.NewRate(DefaultBatchDelay)
	}
	if cfg.Audit == nil {
		cfg.Audit = store.NoopAuditor{}
	}
	return nil
}

type Service struct {
	log      *slog.Logger
	cfg      ServiceConfig
	platform solana.PublicKey
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Service{
		log:      cfg.Logger,
		cfg:      cfg,
		platform: cfg.Platform.PublicKey(),
	}, nil
}

// PlatformWallet returns the fee payer and config authority.
func (s *Service) PlatformWallet() solana.PublicKey {
	return s.platform
}

// AgentShare returns the agent's portion of amount, rounded down.
func (s *Service) AgentShare(amount uint64) uint64 {
	return pump.MulBps(amount, uint64(s.cfg.AgentShareBps))
}

// Shareholders returns the target split for an agent.
func (s *Service) Shareholders(agent solana.PublicKey) []pump.Shareholder {
	return []pump.Shareholder{
		{Address: agent, ShareBps: s.cfg.AgentShareBps},
		{Address: s.cfg.Treasury, ShareBps: s.cfg.PlatformShareBps},
	}
}

func (s *Service) signers() []solana.PrivateKey {
	return []solana.PrivateKey{s.cfg.Platform}
}

func (s *Service) audit(ctx context.Context, ev store.Event) {
	if err := s.cfg.Audit.AppendEvent(ctx, ev); err != nil {
		s.log.Warn("feesharing: failed to record audit event", "mint", ev.Mint, "kind", ev.Kind, "error", err)
	}
}

func (s *Service) bondingCurve(ctx context.Context, mint solana.PublicKey) (*pump.BondingCurve, error) {
	acct, err := s.cfg.Chain.AccountInfo(ctx, pump.BondingCurvePDA(mint))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch bonding curve for %s: %w", mint, err)
	}
	return pump.DecodeBondingCurve(acct.Data)
}

func (s *Service) sharingConfig(ctx context.Context, mint solana.PublicKey) (*pump.SharingConfig, error) {
	acct, err := s.cfg.Chain.AccountInfo(ctx, pump.SharingConfigPDA(mint))
	if errors.Is(err, chain.ErrAccountNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, mint)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sharing config for %s: %w", mint, err)
	}
	return pump.DecodeSharingConfig(acct.Data)
}
