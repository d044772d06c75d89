package feesharing

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/moltpump/feeshare/feeshare/pkg/chain"
	"github.com/moltpump/feeshare/feeshare/pkg/metrics"
	"github.com/moltpump/feeshare/feeshare/pkg/pump"
	"golang.org/x/sync/errgroup"
)

// VaultBalance returns the creator fees waiting to be distributed for mint:
// the pump creator vault's lamports above its rent-exempt minimum plus the
// wrapped SOL held by the AMM creator vault. Both vaults are keyed by the
// creator recorded on the bonding curve.
func (s *Service) VaultBalance(ctx context.Context, mint solana.PublicKey) (uint64, error) {
	curve, err := s.bondingCurve(ctx, mint)
	if err != nil {
		return 0, err
	}
	return s.creatorVaultBalance(ctx, curve.Creator)
}

func (s *Service) creatorVaultBalance(ctx context.Context, creator solana.PublicKey) (uint64, error) {
	var total uint64

	vault, err := s.cfg.Chain.AccountInfo(ctx, pump.CreatorVaultPDA(creator))
	switch {
	case errors.Is(err, chain.ErrAccountNotFound):
	case err != nil:
		return 0, fmt.Errorf("failed to fetch creator vault: %w", err)
	default:
		rent, err := s.cfg.Chain.RentExemptMinimum(ctx, uint64(len(vault.Data)))
		if err != nil {
			return 0, err
		}
		if vault.Lamports > rent {
			total += vault.Lamports - rent
		}
	}

	wsol, err := s.cfg.Chain.TokenBalance(ctx, pump.AMMCreatorVaultATA(creator))
	switch {
	case errors.Is(err, chain.ErrAccountNotFound):
	case err != nil:
		return 0, fmt.Errorf("failed to fetch amm creator vault: %w", err)
	default:
		total += wsol
	}
	return total, nil
}

// CreatorVaultBalance is VaultBalance with read failures mapped to 0, so
// callers treat an unreadable vault as empty.
func (s *Service) CreatorVaultBalance(ctx context.Context, mint solana.PublicKey) uint64 {
	balance, err := s.VaultBalance(ctx, mint)
	if err != nil {
		s.degraded("vault_balance", mint, err)
		return 0
	}
	return balance
}

// ConfigStatus reports whether mint's coin creator has been migrated to its
// sharing config. It only reads chain state.
func (s *Service) ConfigStatus(ctx context.Context, mint solana.PublicKey) (bool, error) {
	curve, err := s.bondingCurve(ctx, mint)
	if err != nil {
		return false, err
	}
	return pump.HasMigratedToSharingConfig(mint, curve.Creator), nil
}

// HasShareholderConfig is ConfigStatus with read failures mapped to false.
func (s *Service) HasShareholderConfig(ctx context.Context, mint solana.PublicKey) bool {
	ok, err := s.ConfigStatus(ctx, mint)
	if err != nil {
		s.degraded("config_status", mint, err)
		return false
	}
	return ok
}

// MinimumDistributable asks the pump program for the smallest vault balance
// it will distribute for mint.
func (s *Service) MinimumDistributable(ctx context.Context, mint solana.PublicKey) (uint64, error) {
	cfg, err := s.sharingConfig(ctx, mint)
	if err != nil {
		return 0, err
	}
	return s.minimumDistributable(ctx, mint, cfg)
}

func (s *Service) minimumDistributable(ctx context.Context, mint solana.PublicKey, cfg *pump.SharingConfig) (uint64, error) {
	ix := pump.GetMinimumDistributableFee(mint, cfg.Addresses())
	sim, err := s.cfg.Chain.Simulate(ctx, s.platform, ix)
	if err != nil {
		return 0, err
	}
	if sim.Err != nil {
		return 0, fmt.Errorf("minimum distributable fee simulation failed: %v", sim.Err)
	}
	out, err := pump.DecodeMinimumDistributableFee(sim.ReturnData)
	if err != nil {
		return 0, err
	}
	return out.MinimumRequired, nil
}

// MinimumDistributableFee is MinimumDistributable with any failure,
// including a missing config, mapped to the configured default.
func (s *Service) MinimumDistributableFee(ctx context.Context, mint solana.PublicKey) uint64 {
	minimum, err := s.MinimumDistributable(ctx, mint)
	if err != nil {
		s.degraded("minimum_distributable", mint, err)
		return s.cfg.MinDistributableLamports
	}
	return minimum
}

func (s *Service) degraded(read string, mint solana.PublicKey, err error) {
	metrics.DegradedReadsTotal.WithLabelValues(read).Inc()
	s.log.Warn("feesharing: read failed, using default", "read", read, "mint", mint, "error", err)
}

// TokensReadyForDistribution filters mints to those with a sharing config
// and a vault balance of at least the default minimum distributable.
func (s *Service) TokensReadyForDistribution(ctx context.Context, mints []solana.PublicKey) []solana.PublicKey {
	ready := []solana.PublicKey{}
	for _, mint := range mints {
		if !s.HasShareholderConfig(ctx, mint) {
			continue
		}
		if s.CreatorVaultBalance(ctx, mint) >= s.cfg.MinDistributableLamports {
			ready = append(ready, mint)
		}
	}
	return ready
}

// FeeStatus summarizes the fee sharing state of one mint.
type FeeStatus struct {
	Mint                         solana.PublicKey   `json:"mint"`
	ConfigAddress                solana.PublicKey   `json:"config_address"`
	HasConfig                    bool               `json:"has_config"`
	VaultBalanceLamports         uint64             `json:"vault_balance_lamports"`
	VaultBalanceSOL              float64            `json:"vault_balance_sol"`
	MinimumDistributableLamports uint64             `json:"minimum_distributable_lamports"`
	CanDistribute                bool               `json:"can_distribute"`
	AgentShareBps                uint16             `json:"agent_share_bps"`
	PlatformShareBps             uint16             `json:"platform_share_bps"`
	Shareholders                 []pump.Shareholder `json:"shareholders"`
}

// Status reads config, balance, minimum and shareholders concurrently. Read
// failures degrade the same way as the individual accessors.
func (s *Service) Status(ctx context.Context, mint solana.PublicKey) *FeeStatus {
	st := &FeeStatus{
		Mint:             mint,
		ConfigAddress:    pump.SharingConfigPDA(mint),
		AgentShareBps:    s.cfg.AgentShareBps,
		PlatformShareBps: s.cfg.PlatformShareBps,
		Shareholders:     []pump.Shareholder{},
	}

	var g errgroup.Group
	g.Go(func() error {
		st.HasConfig = s.HasShareholderConfig(ctx, mint)
		return nil
	})
	g.Go(func() error {
		st.VaultBalanceLamports = s.CreatorVaultBalance(ctx, mint)
		return nil
	})
	g.Go(func() error {
		st.MinimumDistributableLamports = s.MinimumDistributableFee(ctx, mint)
		return nil
	})
	g.Go(func() error {
		holders, err := s.FetchShareholders(ctx, mint)
		if err == nil {
			st.Shareholders = holders
		}
		return nil
	})
	_ = g.Wait()

	st.VaultBalanceSOL = chain.LamportsToSOL(st.VaultBalanceLamports)
	st.CanDistribute = st.HasConfig && st.VaultBalanceLamports >= st.MinimumDistributableLamports
	return st
}

// TokenStats is one configured mint's entry in AgentStats.
type TokenStats struct {
	Mint                 solana.PublicKey `json:"mint_address"`
	Symbol               string           `json:"symbol,omitempty"`
	VaultBalanceLamports uint64           `json:"vault_balance_lamports"`
	CanDistribute        bool             `json:"can_distribute"`
}

// AgentStats aggregates pending creator fees across an agent's mints.
type AgentStats struct {
	TotalTokens                    int          `json:"total_tokens"`
	TokensWithFeeSharing           int          `json:"tokens_with_fee_sharing"`
	TokensReadyForDistribution     int          `json:"tokens_ready_for_distribution"`
	TotalVaultBalanceLamports      uint64       `json:"total_vault_balance_lamports"`
	AgentShareBps                  uint16       `json:"agent_share_bps"`
	EstimatedAgentEarningsLamports uint64       `json:"estimated_agent_earnings_lamports"`
	Tokens                         []TokenStats `json:"tokens"`
}

// AgentStats reads each mint with the defaulting accessors, so one bad read
// never hides the others. Mints without a sharing config are counted in
// TotalTokens only.
func (s *Service) AgentStats(ctx context.Context, mints []solana.PublicKey) *AgentStats {
	st := &AgentStats{
		TotalTokens:   len(mints),
		AgentShareBps: s.cfg.AgentShareBps,
		Tokens:        []TokenStats{},
	}
	for _, mint := range mints {
		if !s.HasShareholderConfig(ctx, mint) {
			continue
		}
		st.TokensWithFeeSharing++

		balance := s.CreatorVaultBalance(ctx, mint)
		ready := balance >= s.MinimumDistributableFee(ctx, mint)
		if ready {
			st.TokensReadyForDistribution++
		}
		st.TotalVaultBalanceLamports += balance
		st.Tokens = append(st.Tokens, TokenStats{
			Mint:                 mint,
			VaultBalanceLamports: balance,
			CanDistribute:        ready,
		})
	}
	st.EstimatedAgentEarningsLamports = s.AgentShare(st.TotalVaultBalanceLamports)
	return st
}
