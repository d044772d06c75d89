package pump

import (
	"math"
	"math/big"
	"math/rand/v2"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func TestFeeshare_Pump_ValidateShares(t *testing.T) {
	t.Parallel()

	a := solana.NewWallet().PublicKey()
	b := solana.NewWallet().PublicKey()

	tests := []struct {
		name    string
		shares  []Shareholder
		wantErr error
	}{
		{name: "agent and platform", shares: []Shareholder{{a, 7000}, {b, 3000}}},
		{name: "single holder", shares: []Shareholder{{a, 10000}}},
		{name: "empty", shares: nil, wantErr: ErrNoShareholders},
		{name: "short of total", shares: []Shareholder{{a, 7000}, {b, 2999}}, wantErr: ErrSharesSum},
		{name: "over total", shares: []Shareholder{{a, 7000}, {b, 3001}}, wantErr: ErrSharesSum},
		{name: "zero share", shares: []Shareholder{{a, 10000}, {b, 0}}, wantErr: ErrZeroShare},
		{name: "duplicate", shares: []Shareholder{{a, 5000}, {a, 5000}}, wantErr: ErrDuplicateShareholder},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := ValidateShares(tt.shares)
			if tt.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("too many", func(t *testing.T) {
		t.Parallel()
		shares := make([]Shareholder, MaxShareholders+1)
		for i := range shares {
			shares[i] = Shareholder{Address: solana.NewWallet().PublicKey(), ShareBps: 1}
		}
		require.ErrorIs(t, ValidateShares(shares), ErrTooManyShareholders)
	})
}

func TestFeeshare_Pump_ValidateShares_RandomSplits(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewPCG(1, 2))
	for range 500 {
		n := 1 + rng.IntN(MaxShareholders)
		shares := make([]Shareholder, n)
		var sum int
		for i := range shares {
			bps := 1 + rng.IntN(3000)
			shares[i] = Shareholder{Address: solana.NewWallet().PublicKey(), ShareBps: uint16(bps)}
			sum += bps
		}
		err := ValidateShares(shares)
		if sum == TotalBasisPoints {
			require.NoError(t, err)
		} else {
			require.ErrorIs(t, err, ErrSharesSum)
		}

		// Forcing the last share to close the gap always yields a valid table.
		rest := sum - int(shares[n-1].ShareBps)
		if rest < TotalBasisPoints {
			shares[n-1].ShareBps = uint16(TotalBasisPoints - rest)
			require.NoError(t, ValidateShares(shares))
		}
	}
}

func TestFeeshare_Pump_MulBps(t *testing.T) {
	t.Parallel()

	require.Equal(t, uint64(700_000_000), MulBps(1_000_000_000, 7000))
	require.Equal(t, uint64(0), MulBps(1, 7000))
	require.Equal(t, uint64(6), MulBps(9, 7000))
	require.Equal(t, uint64(math.MaxUint64), MulBps(math.MaxUint64, TotalBasisPoints))
	require.Equal(t, uint64(math.MaxUint64/2), MulBps(math.MaxUint64, 5000))

	t.Run("split never exceeds amount", func(t *testing.T) {
		t.Parallel()
		rng := rand.New(rand.NewPCG(3, 4))
		for range 1000 {
			amount := rng.Uint64()
			agent := uint64(rng.IntN(TotalBasisPoints + 1))
			sum := MulBps(amount, agent) + MulBps(amount, TotalBasisPoints-agent)
			require.LessOrEqual(t, sum, amount)
			require.LessOrEqual(t, amount-sum, uint64(1))
		}
	})
}

func TestFeeshare_Pump_ApplySlippage(t *testing.T) {
	t.Parallel()

	require.Equal(t, uint64(950), ApplySlippage(1000, 500))
	require.Equal(t, uint64(1000), ApplySlippage(1000, 0))
	require.Equal(t, uint64(0), ApplySlippage(1000, TotalBasisPoints))
	require.Equal(t, uint64(10), ApplySlippage(10, 1))
}

func TestFeeshare_Pump_QuoteBuy(t *testing.T) {
	t.Parallel()

	global := &Global{FeeBasisPoints: 95, CreatorFeeBasisPoints: 5}
	curve := &BondingCurve{
		VirtualTokenReserves: 1_073_000_000_000_000,
		VirtualSolReserves:   30_000_000_000,
		RealTokenReserves:    793_100_000_000_000,
		Creator:              solana.NewWallet().PublicKey(),
	}

	t.Run("constant product after fees", func(t *testing.T) {
		t.Parallel()
		solIn := uint64(1_000_000_000)
		netSol := solIn * TotalBasisPoints / (TotalBasisPoints + 100)
		want := new(big.Int).Mul(new(big.Int).SetUint64(curve.VirtualTokenReserves), new(big.Int).SetUint64(netSol))
		want.Quo(want, new(big.Int).SetUint64(curve.VirtualSolReserves+netSol))
		require.Equal(t, want.Uint64(), QuoteBuy(curve, global, solIn))
	})

	t.Run("no creator fee without creator", func(t *testing.T) {
		t.Parallel()
		noCreator := *curve
		noCreator.Creator = solana.PublicKey{}
		require.Greater(t, QuoteBuy(&noCreator, global, 1_000_000_000), QuoteBuy(curve, global, 1_000_000_000))
	})

	t.Run("capped at real reserves", func(t *testing.T) {
		t.Parallel()
		small := *curve
		small.RealTokenReserves = 10
		require.Equal(t, uint64(10), QuoteBuy(&small, global, 1_000_000_000))
	})

	t.Run("complete curve quotes nothing", func(t *testing.T) {
		t.Parallel()
		done := *curve
		done.Complete = true
		require.Zero(t, QuoteBuy(&done, global, 1_000_000_000))
	})

	t.Run("zero input", func(t *testing.T) {
		t.Parallel()
		require.Zero(t, QuoteBuy(curve, global, 0))
	})
}
