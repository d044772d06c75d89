package feesharing

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/moltpump/feeshare/feeshare/pkg/metrics"
	"github.com/moltpump/feeshare/feeshare/pkg/pump"
	"github.com/moltpump/feeshare/feeshare/pkg/store"
)

// Distribution is a confirmed creator fee payout. Amount is the vault
// balance observed just before submission.
type Distribution struct {
	Mint      solana.PublicKey `json:"mint"`
	Signature solana.Signature `json:"signature"`
	Amount    uint64           `json:"amount_lamports"`
}

// DistributeCreatorFees pays out mint's creator vault to its shareholders.
// It submits nothing when the config is missing (ErrConfigNotFound) or the
// balance is below the program minimum (*BelowMinimumError).
func (s *Service) DistributeCreatorFees(ctx context.Context, mint solana.PublicKey) (*Distribution, error) {
	cfg, err := s.sharingConfig(ctx, mint)
	if err != nil {
		return nil, err
	}

	minimum, err := s.minimumDistributable(ctx, mint, cfg)
	if err != nil {
		s.degraded("minimum_distributable", mint, err)
		minimum = s.cfg.MinDistributableLamports
	}

	balance, err := s.VaultBalance(ctx, mint)
	if err != nil {
		return nil, fmt.Errorf("failed to read vault balance for %s: %w", mint, err)
	}
	if balance < minimum {
		s.log.Info("feesharing: skipping distribution below minimum", "mint", mint, "balance", balance, "minimum", minimum)
		return nil, &BelowMinimumError{Mint: mint, Balance: balance, Minimum: minimum}
	}

	ix := pump.DistributeCreatorFees(mint, cfg.Addresses())
	sig, err := s.cfg.Sender.SendWithRetry(ctx, []solana.Instruction{ix}, s.signers(), TxDistributeCreator)
	if err != nil {
		metrics.DistributionsTotal.WithLabelValues("error").Inc()
		s.audit(ctx, store.Event{Mint: mint.String(), Kind: store.EventKindDistribution, Lamports: balance, Error: err.Error()})
		return nil, fmt.Errorf("failed to distribute creator fees for %s: %w", mint, err)
	}

	metrics.DistributionsTotal.WithLabelValues("success").Inc()
	metrics.DistributedLamportsTotal.Add(float64(balance))
	s.audit(ctx, store.Event{Mint: mint.String(), Kind: store.EventKindDistribution, Success: true, Signatures: []string{sig.String()}, Lamports: balance})
	s.log.Info("feesharing: creator fees distributed", "mint", mint, "lamports", balance, "signature", sig)

	return &Distribution{Mint: mint, Signature: sig, Amount: balance}, nil
}

// MintDistribution is one entry of a batch distribution.
type MintDistribution struct {
	Mint         solana.PublicKey
	Distribution *Distribution
	Err          error
}

// BatchDistributeCreatorFees distributes each mint in order, pacing between
// submissions. A failure is recorded against its mint and the batch
// continues.
func (s *Service) BatchDistributeCreatorFees(ctx context.Context, mints []solana.PublicKey) []MintDistribution {
	results := make([]MintDistribution, 0, len(mints))
	for i, mint := range mints {
		d, err := s.DistributeCreatorFees(ctx, mint)
		results = append(results, MintDistribution{Mint: mint, Distribution: d, Err: err})

		if i < len(mints)-1 {
			if err := s.cfg.BatchPacer.Wait(ctx); err != nil {
				for _, rest := range mints[i+1:] {
					results = append(results, MintDistribution{Mint: rest, Err: err})
				}
				break
			}
		}
	}
	return results
}
