package buyback

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	ErrZeroAmount = errors.New("buyback amount must be positive")
	ErrGraduated  = errors.New("asset has graduated off the bonding curve; buyback is not supported")
	ErrZeroQuote  = errors.New("bonding curve quotes zero tokens for the buyback amount")
)

// NoTokensReceivedError is returned when the purchase confirmed but the
// platform token account holds nothing afterwards. No burn is attempted.
type NoTokensReceivedError struct {
	PurchaseSignature solana.Signature
}

func (e *NoTokensReceivedError) Error() string {
	return fmt.Sprintf("no tokens received from purchase %s", e.PurchaseSignature)
}

// BurnFailedError is returned when the purchase succeeded but the burn
// transfer did not. The tokens remain in the platform wallet.
type BurnFailedError struct {
	PurchaseSignature solana.Signature
	TokensBought      uint64
	Err               error
}

func (e *BurnFailedError) Error() string {
	return fmt.Sprintf("purchase %s bought %d tokens but burn failed: %v", e.PurchaseSignature, e.TokensBought, e.Err)
}

func (e *BurnFailedError) Unwrap() error { return e.Err }
