package feesharing

import (
	"context"
	"fmt"
	"slices"

	"github.com/gagliardetto/solana-go"
	"github.com/moltpump/feeshare/feeshare/pkg/pump"
	"github.com/moltpump/feeshare/feeshare/pkg/store"
)

// SetupResult is a completed fee sharing setup.
type SetupResult struct {
	Mint            solana.PublicKey `json:"mint"`
	ConfigAddress   solana.PublicKey `json:"config_address"`
	SetupSignature  solana.Signature `json:"setup_signature"`
	UpdateSignature solana.Signature `json:"update_signature"`
}

// SetupFeeSharing creates the sharing config for a freshly launched mint
// with the platform wallet as payer and authority, then replaces the
// platform's placeholder share with the agent/treasury split. The second
// step only runs if the first succeeded; its failure is reported as a
// *PartialSetupError.
func (s *Service) SetupFeeSharing(ctx context.Context, mint, agent solana.PublicKey) (*SetupResult, error) {
	next := s.Shareholders(agent)
	if err := pump.ValidateShares(next); err != nil {
		return nil, err
	}
	config := pump.SharingConfigPDA(mint)

	s.log.Info("feesharing: setting up fee sharing", "mint", mint, "agent", agent, "treasury", s.cfg.Treasury, "agent_bps", s.cfg.AgentShareBps, "platform_bps", s.cfg.PlatformShareBps)

	createIx := pump.CreateFeeSharingConfig(s.platform, mint, nil)
	setupSig, err := s.cfg.Sender.SendWithRetry(ctx, []solana.Instruction{createIx}, s.signers(), TxCreateConfig)
	if err != nil {
		s.audit(ctx, store.Event{Mint: mint.String(), Kind: store.EventKindSetup, Error: err.Error()})
		return nil, fmt.Errorf("failed to create fee sharing config for %s: %w", mint, err)
	}
	s.log.Info("feesharing: config created", "mint", mint, "config", config, "signature", setupSig)

	updateSig, err := s.submitShares(ctx, mint, []solana.PublicKey{s.platform}, next)
	if err != nil {
		s.audit(ctx, store.Event{Mint: mint.String(), Kind: store.EventKindSetup, Signatures: []string{setupSig.String()}, Error: err.Error()})
		return nil, &PartialSetupError{Mint: mint, ConfigAddress: config, SetupSignature: setupSig, Err: err}
	}

	s.audit(ctx, store.Event{Mint: mint.String(), Kind: store.EventKindSetup, Success: true, Signatures: []string{setupSig.String(), updateSig.String()}})
	return &SetupResult{
		Mint:            mint,
		ConfigAddress:   config,
		SetupSignature:  setupSig,
		UpdateSignature: updateSig,
	}, nil
}

// UpdateShareholders sets the agent/treasury split on an existing config,
// replacing whatever shareholders the chain currently records. It is the
// recovery path after a *PartialSetupError. When the config already holds
// the target split nothing is submitted and a zero signature is returned.
func (s *Service) UpdateShareholders(ctx context.Context, mint, agent solana.PublicKey) (solana.Signature, error) {
	next := s.Shareholders(agent)
	if err := pump.ValidateShares(next); err != nil {
		return solana.Signature{}, err
	}
	cfg, err := s.sharingConfig(ctx, mint)
	if err != nil {
		return solana.Signature{}, err
	}
	if slices.Equal(cfg.Shareholders, next) {
		s.log.Info("feesharing: shareholders already up to date", "mint", mint)
		return solana.Signature{}, nil
	}
	sig, err := s.submitShares(ctx, mint, cfg.Addresses(), next)
	if err != nil {
		s.audit(ctx, store.Event{Mint: mint.String(), Kind: store.EventKindSetup, Error: err.Error()})
		return solana.Signature{}, err
	}
	s.audit(ctx, store.Event{Mint: mint.String(), Kind: store.EventKindSetup, Success: true, Signatures: []string{sig.String()}})
	return sig, nil
}

func (s *Service) submitShares(ctx context.Context, mint solana.PublicKey, current []solana.PublicKey, next []pump.Shareholder) (solana.Signature, error) {
	ix, err := pump.UpdateFeeShares(s.platform, mint, current, next)
	if err != nil {
		return solana.Signature{}, err
	}
	sig, err := s.cfg.Sender.SendWithRetry(ctx, []solana.Instruction{ix}, s.signers(), TxUpdateShares)
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to update fee shares for %s: %w", mint, err)
	}
	s.log.Info("feesharing: shareholders updated", "mint", mint, "signature", sig)
	return sig, nil
}

// FetchShareholders returns the shareholders recorded on chain for mint.
func (s *Service) FetchShareholders(ctx context.Context, mint solana.PublicKey) ([]pump.Shareholder, error) {
	cfg, err := s.sharingConfig(ctx, mint)
	if err != nil {
		return nil, err
	}
	return cfg.Shareholders, nil
}
