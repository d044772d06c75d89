package chain

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/jonboulle/clockwork"
	"github.com/moltpump/feeshare/utils/pkg/retry"
)

// RPC is the subset of the solana-go RPC client used by Client.
type RPC interface {
	GetAccountInfoWithOpts(ctx context.Context, account solana.PublicKey, opts *solanarpc.GetAccountInfoOpts) (*solanarpc.GetAccountInfoResult, error)
	GetBalance(ctx context.Context, account solana.PublicKey, commitment solanarpc.CommitmentType) (*solanarpc.GetBalanceResult, error)
	GetTokenAccountBalance(ctx context.Context, account solana.PublicKey, commitment solanarpc.CommitmentType) (*solanarpc.GetTokenAccountBalanceResult, error)
	GetMinimumBalanceForRentExemption(ctx context.Context, dataSize uint64, commitment solanarpc.CommitmentType) (uint64, error)
	GetLatestBlockhash(ctx context.Context, commitment solanarpc.CommitmentType) (*solanarpc.GetLatestBlockhashResult, error)
	GetBlockHeight(ctx context.Context, commitment solanarpc.CommitmentType) (uint64, error)
	GetSignatureStatuses(ctx context.Context, searchTransactionHistory bool, transactionSignatures ...solana.Signature) (*solanarpc.GetSignatureStatusesResult, error)
	SendTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts solanarpc.TransactionOpts) (solana.Signature, error)
	SimulateTransactionWithOpts(ctx context.Context, transaction *solana.Transaction, opts *solanarpc.SimulateTransactionOpts) (*solanarpc.SimulateTransactionResponse, error)
	GetSlot(ctx context.Context, commitment solanarpc.CommitmentType) (uint64, error)
}

type ClientConfig struct {
	Logger              *slog.Logger
	RPC                 RPC
	Clock               clockwork.Clock
	Commitment          solanarpc.CommitmentType
	ConfirmPollInterval time.Duration
	// ConfirmTimeout bounds how long SendAndConfirm polls for a signature.
	ConfirmTimeout time.Duration
	// SendMaxRetries is forwarded to the RPC node's own rebroadcast loop.
	SendMaxRetries uint
	ReadRetry      retry.Config
}

func (cfg *ClientConfig) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.RPC == nil {
		return errors.New("rpc client is required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Commitment == "" {
		cfg.Commitment = solanarpc.CommitmentConfirmed
	}
	if cfg.ConfirmPollInterval <= 0 {
		cfg.ConfirmPollInterval = 500 * time.Millisecond
	}
	if cfg.ConfirmTimeout <= 0 {
		cfg.ConfirmTimeout = 90 * time.Second
	}
	if cfg.SendMaxRetries == 0 {
		cfg.SendMaxRetries = 3
	}
	if cfg.ReadRetry.MaxAttempts == 0 {
		cfg.ReadRetry = retry.DefaultConfig()
	}
	if cfg.ReadRetry.Clock == nil {
		cfg.ReadRetry.Clock = cfg.Clock
	}
	return nil
}

// Account is a decoded view of an on-chain account.
type Account struct {
	Address  solana.PublicKey
	Lamports uint64
	Owner    solana.PublicKey
	Data     []byte
}

// Blockhash is a recent blockhash and the last block height at which a
// transaction referencing it can still be included.
type Blockhash struct {
	Hash                 solana.Hash
	LastValidBlockHeight uint64
}

// Simulation is the outcome of a simulated transaction.
type Simulation struct {
	Err        any
	Logs       []string
	ReturnData []byte
}

// Client is the ledger access layer shared by every component. It is safe
// for sequential reuse and holds no per-call state.
type Client struct {
	log *slog.Logger
	cfg ClientConfig
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Client{
		log: cfg.Logger,
		cfg: cfg,
	}, nil
}

// NewRPCClient returns a solana-go RPC client for url.
func NewRPCClient(url string) *solanarpc.Client {
	return solanarpc.New(url)
}

// AccountInfo returns the account at pk, or ErrAccountNotFound.
func (c *Client) AccountInfo(ctx context.Context, pk solana.PublicKey) (*Account, error) {
	out, err := retry.DoValue(ctx, c.cfg.ReadRetry, func() (*solanarpc.GetAccountInfoResult, error) {
		return c.cfg.RPC.GetAccountInfoWithOpts(ctx, pk, &solanarpc.GetAccountInfoOpts{
			Encoding:   solana.EncodingBase64,
			Commitment: c.cfg.Commitment,
		})
	})
	if err != nil {
		if errors.Is(err, solanarpc.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, pk)
		}
		return nil, fmt.Errorf("failed to get account info for %s: %w", pk, err)
	}
	if out == nil || out.Value == nil {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotFound, pk)
	}
	var data []byte
	if out.Value.Data != nil {
		data = out.Value.Data.GetBinary()
	}
	return &Account{
		Address:  pk,
		Lamports: out.Value.Lamports,
		Owner:    out.Value.Owner,
		Data:     data,
	}, nil
}

// AccountExists reports whether pk holds an account.
func (c *Client) AccountExists(ctx context.Context, pk solana.PublicKey) (bool, error) {
	_, err := c.AccountInfo(ctx, pk)
	if errors.Is(err, ErrAccountNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Lamports returns the native balance of pk.
func (c *Client) Lamports(ctx context.Context, pk solana.PublicKey) (uint64, error) {
	out, err := retry.DoValue(ctx, c.cfg.ReadRetry, func() (*solanarpc.GetBalanceResult, error) {
		return c.cfg.RPC.GetBalance(ctx, pk, c.cfg.Commitment)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get balance for %s: %w", pk, err)
	}
	return out.Value, nil
}

// TokenBalance returns the raw token amount held by a token account.
func (c *Client) TokenBalance(ctx context.Context, tokenAccount solana.PublicKey) (uint64, error) {
	out, err := retry.DoValue(ctx, c.cfg.ReadRetry, func() (*solanarpc.GetTokenAccountBalanceResult, error) {
		return c.cfg.RPC.GetTokenAccountBalance(ctx, tokenAccount, c.cfg.Commitment)
	})
	if err != nil {
		if errors.Is(err, solanarpc.ErrNotFound) || strings.Contains(strings.ToLower(err.Error()), "could not find account") {
			return 0, fmt.Errorf("%w: %s", ErrAccountNotFound, tokenAccount)
		}
		return 0, fmt.Errorf("failed to get token balance for %s: %w", tokenAccount, err)
	}
	if out == nil || out.Value == nil {
		return 0, fmt.Errorf("%w: %s", ErrAccountNotFound, tokenAccount)
	}
	amount, err := strconv.ParseUint(out.Value.Amount, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token amount %q: %w", out.Value.Amount, err)
	}
	return amount, nil
}

// RentExemptMinimum returns the minimum lamports for an account of size bytes.
func (c *Client) RentExemptMinimum(ctx context.Context, size uint64) (uint64, error) {
	out, err := retry.DoValue(ctx, c.cfg.ReadRetry, func() (uint64, error) {
		return c.cfg.RPC.GetMinimumBalanceForRentExemption(ctx, size, c.cfg.Commitment)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get rent exemption minimum: %w", err)
	}
	return out, nil
}

// LatestBlockhash fetches a fresh reference blockhash.
func (c *Client) LatestBlockhash(ctx context.Context) (Blockhash, error) {
	out, err := retry.DoValue(ctx, c.cfg.ReadRetry, func() (*solanarpc.GetLatestBlockhashResult, error) {
		return c.cfg.RPC.GetLatestBlockhash(ctx, c.cfg.Commitment)
	})
	if err != nil {
		return Blockhash{}, fmt.Errorf("failed to get latest blockhash: %w", err)
	}
	if out == nil || out.Value == nil {
		return Blockhash{}, errors.New("failed to get latest blockhash: empty response")
	}
	return Blockhash{
		Hash:                 out.Value.Blockhash,
		LastValidBlockHeight: out.Value.LastValidBlockHeight,
	}, nil
}

// SendAndConfirm submits a signed transaction and waits until it reaches the
// configured commitment. If the chain's block height passes
// lastValidBlockHeight first, or ConfirmTimeout elapses without a definite
// answer, a *BlockhashExpiredError is returned.
func (c *Client) SendAndConfirm(ctx context.Context, tx *solana.Transaction, lastValidBlockHeight uint64) (solana.Signature, error) {
	maxRetries := c.cfg.SendMaxRetries
	sig, err := c.cfg.RPC.SendTransactionWithOpts(ctx, tx, solanarpc.TransactionOpts{
		Encoding:            solana.EncodingBase64,
		PreflightCommitment: c.cfg.Commitment,
		MaxRetries:          &maxRetries,
	})
	if err != nil {
		if IsBlockhashExpired(err) {
			return solana.Signature{}, &BlockhashExpiredError{LastValidBlockHeight: lastValidBlockHeight, Err: err}
		}
		return solana.Signature{}, fmt.Errorf("failed to send transaction: %w", err)
	}
	c.log.Debug("chain: transaction sent", "signature", sig.String())

	deadline := c.cfg.Clock.NewTimer(c.cfg.ConfirmTimeout)
	defer deadline.Stop()
	ticker := c.cfg.Clock.NewTicker(c.cfg.ConfirmPollInterval)
	defer ticker.Stop()

	for {
		confirmed, err := c.checkStatus(ctx, sig)
		if err != nil {
			return sig, err
		}
		if confirmed {
			return sig, nil
		}

		height, err := c.cfg.RPC.GetBlockHeight(ctx, c.cfg.Commitment)
		if err != nil {
			c.log.Debug("chain: failed to get block height", "error", err)
		} else if height > lastValidBlockHeight {
			// A last status check closes the race between landing and expiry.
			confirmed, err := c.checkStatus(ctx, sig)
			if err != nil {
				return sig, err
			}
			if confirmed {
				return sig, nil
			}
			return sig, &BlockhashExpiredError{Signature: sig, LastValidBlockHeight: lastValidBlockHeight}
		}

		select {
		case <-ctx.Done():
			return sig, fmt.Errorf("context cancelled while confirming %s: %w", sig, ctx.Err())
		case <-deadline.Chan():
			return sig, &BlockhashExpiredError{
				Signature:            sig,
				LastValidBlockHeight: lastValidBlockHeight,
				Err:                  fmt.Errorf("not confirmed within %s", c.cfg.ConfirmTimeout),
			}
		case <-ticker.Chan():
		}
	}
}

func (c *Client) checkStatus(ctx context.Context, sig solana.Signature) (bool, error) {
	out, err := c.cfg.RPC.GetSignatureStatuses(ctx, false, sig)
	if err != nil {
		c.log.Debug("chain: failed to get signature status", "signature", sig.String(), "error", err)
		return false, nil
	}
	if out == nil || len(out.Value) == 0 || out.Value[0] == nil {
		return false, nil
	}
	status := out.Value[0]
	if status.Err != nil {
		return false, &TransactionError{Signature: sig, Err: status.Err}
	}
	switch status.ConfirmationStatus {
	case solanarpc.ConfirmationStatusConfirmed, solanarpc.ConfirmationStatusFinalized:
		return true, nil
	case solanarpc.ConfirmationStatusProcessed:
		return c.cfg.Commitment == solanarpc.CommitmentProcessed, nil
	}
	return false, nil
}

// Simulate runs the instructions with payer as fee payer without signature
// verification, returning logs and program return data.
func (c *Client) Simulate(ctx context.Context, payer solana.PublicKey, instructions ...solana.Instruction) (*Simulation, error) {
	tx, err := solana.NewTransaction(instructions, solana.Hash{}, solana.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("failed to build simulation transaction: %w", err)
	}
	tx.Signatures = make([]solana.Signature, tx.Message.Header.NumRequiredSignatures)

	out, err := retry.DoValue(ctx, c.cfg.ReadRetry, func() (*solanarpc.SimulateTransactionResponse, error) {
		return c.cfg.RPC.SimulateTransactionWithOpts(ctx, tx, &solanarpc.SimulateTransactionOpts{
			SigVerify:              false,
			Commitment:             c.cfg.Commitment,
			ReplaceRecentBlockhash: true,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("failed to simulate transaction: %w", err)
	}
	if out == nil || out.Value == nil {
		return nil, errors.New("failed to simulate transaction: empty response")
	}

	sim := &Simulation{
		Err:  out.Value.Err,
		Logs: out.Value.Logs,
	}
	if len(instructions) > 0 {
		sim.ReturnData = parseReturnData(out.Value.Logs, instructions[len(instructions)-1].ProgramID())
	}
	return sim, nil
}

// parseReturnData extracts the last "Program return: <program> <base64>"
// entry emitted by program.
func parseReturnData(logs []string, program solana.PublicKey) []byte {
	prefix := "Program return: " + program.String() + " "
	var data []byte
	for _, line := range logs {
		if !strings.HasPrefix(line, prefix) {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimSpace(strings.TrimPrefix(line, prefix)))
		if err != nil {
			continue
		}
		data = decoded
	}
	return data
}

// Health checks that the RPC node is serving slots.
func (c *Client) Health(ctx context.Context) error {
	slot, err := c.cfg.RPC.GetSlot(ctx, c.cfg.Commitment)
	if err != nil {
		return fmt.Errorf("failed to get slot: %w", err)
	}
	if slot == 0 {
		return errors.New("rpc reported slot 0")
	}
	return nil
}
