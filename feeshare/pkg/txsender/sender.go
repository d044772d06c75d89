// Package txsender builds, signs and submits transactions, refreshing the
// blockhash and retrying when a submission expires before confirmation.
package txsender

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
)

const (
	DefaultMaxRetries = 3
	DefaultRetryDelay = 2 * time.Second
)

// Chain is the ledger access the sender needs.
type Chain interface {
	LatestBlockhash(ctx context.Context) (chain.Blockhash, error)
	SendAndConfirm(ctx context.Context, tx *solana.Transaction, lastValidBlockHeight uint64) (solana.Signature, error)
}

type Config struct {
	Logger     *slog.Logger
	Chain      Chain
	Clock      clockwork.Clock
	MaxRetries int
	RetryDelay time.Duration
}

func (cfg *Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Chain == nil {
		return errors.New("chain is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = DefaultRetryDelay
	}
	return nil
}

type Sender struct {
	log *slog.Logger
	cfg Config
}

func New(cfg Config) (*Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Sender{log: cfg.Logger, cfg: cfg}, nil
}

// SendWithRetry submits instructions signed by signers, the first of which
// pays the fee. Only blockhash expiry is retried, up to MaxRetries attempts
// with RetryDelay between them. An expired attempt may still have landed, so
// callers must tolerate a duplicate submission.
func (s *Sender) SendWithRetry(ctx context.Context, instructions []solana.Instruction, signers []solana.PrivateKey, description string) (solana.Signature, error) {
	if len(signers) == 0 {
		return solana.Signature{}, &TransactionFailedError{Description: description, Err: errors.New("no signers")}
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.MaxRetries; attempt++ {
		sig, err := s.attempt(ctx, instructions, signers)
		if err == nil {
			metrics.TransactionAttemptsTotal.WithLabelValues(description, "success").Inc()
			s.log.Info("txsender: transaction confirmed", "description", description, "signature", sig.String(), "attempt", attempt)
			return sig, nil
		}
		lastErr = err

		if !chain.IsBlockhashExpired(err) {
			metrics.TransactionAttemptsTotal.WithLabelValues(description, "error").Inc()
			s.log.Warn("txsender: transaction failed", "description", description, "attempt", attempt, "error", err)
			return solana.Signature{}, &TransactionFailedError{Description: description, Attempts: attempt, Err: err}
		}
		metrics.TransactionAttemptsTotal.WithLabelValues(description, "expired").Inc()
		if attempt >= s.cfg.MaxRetries {
			break
		}

		s.log.Warn("txsender: blockhash expired, retrying", "description", description, "attempt", attempt, "delay", s.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			return solana.Signature{}, &TransactionFailedError{Description: description, Attempts: attempt, Err: ctx.Err()}
		case <-s.cfg.Clock.After(s.cfg.RetryDelay):
		}
	}

	s.log.Error("txsender: retries exhausted", "description", description, "attempts", s.cfg.MaxRetries, "error", lastErr)
	return solana.Signature{}, &TransactionFailedError{Description: description, Attempts: s.cfg.MaxRetries, Err: lastErr}
}

func (s *Sender) attempt(ctx context.Context, instructions []solana.Instruction, signers []solana.PrivateKey) (solana.Signature, error) {
	bh, err := s.cfg.Chain.LatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}

	tx, err := solana.NewTransaction(instructions, bh.Hash, solana.TransactionPayer(signers[0].PublicKey()))
	if err != nil {
		return solana.Signature{}, fmt.Errorf("failed to build transaction: %w", err)
	}
	if _, err := tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		for i := range signers {
			if signers[i].PublicKey().Equals(key) {
				return &signers[i]
			}
		}
		return nil
	}); err != nil {
		return solana.Signature{}, fmt.Errorf("failed to sign transaction: %w", err)
	}

	return s.cfg.Chain.SendAndConfirm(ctx, tx, bh.LastValidBlockHeight)
}
