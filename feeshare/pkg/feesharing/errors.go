package feesharing

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var ErrConfigNotFound = errors.New("fee sharing config not found")

// BelowMinimumError is returned when a vault holds less than the program's
// minimum distributable amount. Nothing is submitted.
type BelowMinimumError struct {
	Mint    solana.PublicKey
	Balance uint64
	Minimum uint64
}

func (e *BelowMinimumError) Error() string {
	return fmt.Sprintf("balance %d below minimum distributable %d for %s", e.Balance, e.Minimum, e.Mint)
}

// PartialSetupError reports that the sharing config was created but the
// shareholder update failed. UpdateShareholders completes the setup.
type PartialSetupError struct {
	Mint           solana.PublicKey
	ConfigAddress  solana.PublicKey
	SetupSignature solana.Signature
	Err            error
}

func (e *PartialSetupError) Error() string {
	return fmt.Sprintf("fee sharing config %s created in %s but shareholder update failed: %v", e.ConfigAddress, e.SetupSignature, e.Err)
}

func (e *PartialSetupError) Unwrap() error { return e.Err }
