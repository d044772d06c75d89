package txsender

import (
	"errors"
	"fmt"
)

var ErrTransactionFailed = errors.New("transaction failed")

// TransactionFailedError is returned when a transaction reaches a terminal
// failure, either on a non-retryable error or after exhausting retries.
type TransactionFailedError struct {
	Description string
	Attempts    int
	Err         error
}

func (e *TransactionFailedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Description, e.Attempts, e.Err)
}

func (e *TransactionFailedError) Unwrap() error { return e.Err }

func (e *TransactionFailedError) Is(target error) bool { return target == ErrTransactionFailed }
