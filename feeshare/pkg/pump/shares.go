package pump

import (
	"errors"
	"fmt"
	"math"
	"math/bits"

	"github.com/gagliardetto/solana-go"
)

// TotalBasisPoints is the denominator of every share and fee rate.
const TotalBasisPoints = 10_000

// MaxShareholders is the largest shareholder table the fees program accepts.
const MaxShareholders = 10

var (
	ErrNoShareholders       = errors.New("no shareholders")
	ErrTooManyShareholders  = errors.New("too many shareholders")
	ErrZeroShare            = errors.New("shareholder share must be positive")
	ErrDuplicateShareholder = errors.New("duplicate shareholder")
	ErrSharesSum            = errors.New("shareholder shares must sum to 10000 basis points")
)

// Shareholder is one entry of a sharing config.
type Shareholder struct {
	Address  solana.PublicKey `json:"address"`
	ShareBps uint16           `json:"share_bps"`
}

// ValidateShares checks a shareholder table before it is submitted.
func ValidateShares(shares []Shareholder) error {
	if len(shares) == 0 {
		return ErrNoShareholders
	}
	if len(shares) > MaxShareholders {
		return fmt.Errorf("%w: %d > %d", ErrTooManyShareholders, len(shares), MaxShareholders)
	}
	seen := make(map[solana.PublicKey]struct{}, len(shares))
	var total uint32
	for _, s := range shares {
		if s.ShareBps == 0 {
			return fmt.Errorf("%w: %s", ErrZeroShare, s.Address)
		}
		if _, ok := seen[s.Address]; ok {
			return fmt.Errorf("%w: %s", ErrDuplicateShareholder, s.Address)
		}
		seen[s.Address] = struct{}{}
		total += uint32(s.ShareBps)
	}
	if total != TotalBasisPoints {
		return fmt.Errorf("%w: got %d", ErrSharesSum, total)
	}
	return nil
}

// MulBps returns floor(amount * bps / 10000) without overflow.
func MulBps(amount, bps uint64) uint64 {
	return mulDiv(amount, bps, TotalBasisPoints)
}

// mulDiv returns floor(a*b/c) using a 128-bit intermediate. The result
// saturates at MaxUint64.
func mulDiv(a, b, c uint64) uint64 {
	if c == 0 {
		return 0
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= c {
		return math.MaxUint64
	}
	q, _ := bits.Div64(hi, lo, c)
	return q
}

// ApplySlippage lowers amount by bps to form a minimum-output bound.
func ApplySlippage(amount, bps uint64) uint64 {
	if bps >= TotalBasisPoints {
		return 0
	}
	return amount - MulBps(amount, bps)
}

// QuoteBuy estimates the tokens received for solIn lamports spent on the
// curve. Protocol and creator fees are taken out of solIn first, then the
// constant product of the virtual reserves gives the output, capped at the
// real token reserves.
func QuoteBuy(curve *BondingCurve, global *Global, solIn uint64) uint64 {
	if curve == nil || global == nil || solIn == 0 || curve.Complete {
		return 0
	}
	feeBps := global.FeeBasisPoints
	if !curve.Creator.IsZero() {
		feeBps += global.CreatorFeeBasisPoints
	}
	netSol := mulDiv(solIn, TotalBasisPoints, TotalBasisPoints+feeBps)
	if netSol == 0 {
		return 0
	}
	denom, carry := bits.Add64(curve.VirtualSolReserves, netSol, 0)
	if carry != 0 {
		return 0
	}
	tokens := mulDiv(netSol, curve.VirtualTokenReserves, denom)
	return min(tokens, curve.RealTokenReserves)
}
