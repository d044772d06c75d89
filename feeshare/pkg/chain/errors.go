package chain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// ErrAccountNotFound is returned when an account does not exist on chain.
var ErrAccountNotFound = errors.New("account not found")

// BlockhashExpiredError reports that a transaction's recent blockhash stopped
// being valid before the transaction was observed as confirmed. The
// transaction may still have landed.
type BlockhashExpiredError struct {
	Signature            solana.Signature
	LastValidBlockHeight uint64
	Err                  error
}

func (e *BlockhashExpiredError) Error() string {
	if e.Err != nil && e.Signature != (solana.Signature{}) {
		return fmt.Sprintf("signature %s has expired (last valid block height %d): %v", e.Signature, e.LastValidBlockHeight, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("blockhash expired (block height exceeded %d): %v", e.LastValidBlockHeight, e.Err)
	}
	return fmt.Sprintf("signature %s has expired: block height exceeded %d", e.Signature, e.LastValidBlockHeight)
}

func (e *BlockhashExpiredError) Unwrap() error { return e.Err }

// TransactionError reports a transaction that executed and failed on chain.
type TransactionError struct {
	Signature solana.Signature
	Err       any
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("transaction %s failed: %v", e.Signature, e.Err)
}

// IsBlockhashExpired reports whether err means the transaction's reference
// blockhash is no longer usable.
func IsBlockhashExpired(err error) bool {
	if err == nil {
		return false
	}
	var expired *BlockhashExpiredError
	if errors.As(err, &expired) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "block height exceeded") ||
		strings.Contains(msg, "blockhash not found")
}
