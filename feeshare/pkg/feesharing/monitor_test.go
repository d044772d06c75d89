package feesharing

import (
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/moltpump/feeshare/feeshare/pkg/pump"
	"github.com/stretchr/testify/require"
)

func TestFeeshare_FeeSharing_VaultBalance(t *testing.T) {
	t.Parallel()

	t.Run("pump vault above rent plus amm wrapped SOL", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(t)
		mint := solana.NewWallet().PublicKey()
		creator := solana.NewWallet().PublicKey()
		svc.ledger.launch(t, mint, creator)
		svc.ledger.putAccount(t, pump.CreatorVaultPDA(creator), testRent+300, nil)
		svc.ledger.tokens[pump.AMMCreatorVaultATA(creator)] = 700

		balance, err := svc.VaultBalance(t.Context(), mint)
		require.NoError(t, err)
		require.Equal(t, uint64(1000), balance)
	})

	t.Run("missing vaults are empty", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(t)
		mint := solana.NewWallet().PublicKey()
		svc.ledger.launch(t, mint, solana.NewWallet().PublicKey())

		balance, err := svc.VaultBalance(t.Context(), mint)
		require.NoError(t, err)
		require.Zero(t, balance)
	})

	t.Run("vault below rent is empty", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(t)
		mint := solana.NewWallet().PublicKey()
		creator := solana.NewWallet().PublicKey()
		svc.ledger.launch(t, mint, creator)
		svc.ledger.putAccount(t, pump.CreatorVaultPDA(creator), testRent-1, nil)

		balance, err := svc.VaultBalance(t.Context(), mint)
		require.NoError(t, err)
		require.Zero(t, balance)
	})

	t.Run("read failure degrades to zero", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(t)
		mint := solana.NewWallet().PublicKey()
		svc.ledger.readErr[pump.BondingCurvePDA(mint)] = errRPCDown

		_, err := svc.VaultBalance(t.Context(), mint)
		require.ErrorIs(t, err, errRPCDown)
		require.Zero(t, svc.CreatorVaultBalance(t.Context(), mint))
	})
}

func TestFeeshare_FeeSharing_ConfigStatus(t *testing.T) {
	t.Parallel()

	t.Run("migrated creator", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(t)
		mint := solana.NewWallet().PublicKey()
		svc.ledger.configure(t, mint, svc.Shareholders(solana.NewWallet().PublicKey()))

		for range 3 {
			ok, err := svc.ConfigStatus(t.Context(), mint)
			require.NoError(t, err)
			require.True(t, ok)
			require.True(t, svc.HasShareholderConfig(t.Context(), mint))
		}
		require.Empty(t, svc.sender.calls())
	})

	t.Run("original creator", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(t)
		mint := solana.NewWallet().PublicKey()
		svc.ledger.launch(t, mint, solana.NewWallet().PublicKey())

		ok, err := svc.ConfigStatus(t.Context(), mint)
		require.NoError(t, err)
		require.False(t, ok)
	})

	t.Run("unreadable curve", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(t)
		mint := solana.NewWallet().PublicKey()

		_, err := svc.ConfigStatus(t.Context(), mint)
		require.Error(t, err)
		require.False(t, svc.HasShareholderConfig(t.Context(), mint))
	})
}

func TestFeeshare_FeeSharing_MinimumDistributable(t *testing.T) {
	t.Parallel()

	t.Run("reads simulation return data", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(t)
		mint := solana.NewWallet().PublicKey()
		svc.ledger.configure(t, mint, svc.Shareholders(solana.NewWallet().PublicKey()))
		svc.ledger.minimum = 42_000_000

		minimum, err := svc.MinimumDistributable(t.Context(), mint)
		require.NoError(t, err)
		require.Equal(t, uint64(42_000_000), minimum)
		require.Equal(t, uint64(42_000_000), svc.MinimumDistributableFee(t.Context(), mint))
	})

	t.Run("missing config maps to default without simulating", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(t)
		mint := solana.NewWallet().PublicKey()

		_, err := svc.MinimumDistributable(t.Context(), mint)
		require.ErrorIs(t, err, ErrConfigNotFound)
		require.Equal(t, uint64(DefaultMinDistributableLamports), svc.MinimumDistributableFee(t.Context(), mint))
		require.Zero(t, svc.ledger.simCalls)
	})

	t.Run("simulation failure maps to default", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(t)
		mint := solana.NewWallet().PublicKey()
		svc.ledger.configure(t, mint, svc.Shareholders(solana.NewWallet().PublicKey()))
		svc.ledger.simErr = errRPCDown

		require.Equal(t, uint64(DefaultMinDistributableLamports), svc.MinimumDistributableFee(t.Context(), mint))
	})
}

func TestFeeshare_FeeSharing_TokensReadyForDistribution(t *testing.T) {
	t.Parallel()

	svc := newTestService(t)
	ready := solana.NewWallet().PublicKey()
	low := solana.NewWallet().PublicKey()
	unconfigured := solana.NewWallet().PublicKey()
	unreadable := solana.NewWallet().PublicKey()

	svc.ledger.configure(t, ready, svc.Shareholders(solana.NewWallet().PublicKey()))
	svc.ledger.fund(t, ready, DefaultMinDistributableLamports)
	svc.ledger.configure(t, low, svc.Shareholders(solana.NewWallet().PublicKey()))
	svc.ledger.fund(t, low, DefaultMinDistributableLamports-1)
	svc.ledger.launch(t, unconfigured, solana.NewWallet().PublicKey())

	got := svc.TokensReadyForDistribution(t.Context(), []solana.PublicKey{low, ready, unconfigured, unreadable})
	require.Equal(t, []solana.PublicKey{ready}, got)
	require.Empty(t, svc.TokensReadyForDistribution(t.Context(), nil))
}

func TestFeeshare_FeeSharing_Status(t *testing.T) {
	t.Parallel()

	t.Run("configured and funded", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(t)
		mint := solana.NewWallet().PublicKey()
		agent := solana.NewWallet().PublicKey()
		svc.ledger.configure(t, mint, svc.Shareholders(agent))
		svc.ledger.fund(t, mint, 1_500_000_000)

		st := svc.Status(t.Context(), mint)
		require.True(t, st.HasConfig)
		require.True(t, st.CanDistribute)
		require.Equal(t, uint64(1_500_000_000), st.VaultBalanceLamports)
		require.InDelta(t, 1.5, st.VaultBalanceSOL, 1e-9)
		require.Equal(t, uint64(DefaultMinDistributableLamports), st.MinimumDistributableLamports)
		require.Equal(t, svc.Shareholders(agent), st.Shareholders)
		require.Equal(t, pump.SharingConfigPDA(mint), st.ConfigAddress)
	})

	t.Run("unknown mint degrades", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(t)
		st := svc.Status(t.Context(), solana.NewWallet().PublicKey())
		require.False(t, st.HasConfig)
		require.False(t, st.CanDistribute)
		require.Zero(t, st.VaultBalanceLamports)
		require.Empty(t, st.Shareholders)
	})
}

func TestFeeshare_FeeSharing_AgentStats(t *testing.T) {
	t.Parallel()

	t.Run("aggregates configured mints", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(t)
		agent := solana.NewWallet().PublicKey()
		ready := solana.NewWallet().PublicKey()
		low := solana.NewWallet().PublicKey()
		unconfigured := solana.NewWallet().PublicKey()

		svc.ledger.configure(t, ready, svc.Shareholders(agent))
		svc.ledger.fund(t, ready, 2_000_000_000)
		svc.ledger.configure(t, low, svc.Shareholders(agent))
		svc.ledger.fund(t, low, 5_000_000)
		svc.ledger.launch(t, unconfigured, solana.NewWallet().PublicKey())

		st := svc.AgentStats(t.Context(), []solana.PublicKey{ready, low, unconfigured})
		require.Equal(t, 3, st.TotalTokens)
		require.Equal(t, 2, st.TokensWithFeeSharing)
		require.Equal(t, 1, st.TokensReadyForDistribution)
		require.Equal(t, uint64(2_005_000_000), st.TotalVaultBalanceLamports)
		require.Equal(t, uint64(1_403_500_000), st.EstimatedAgentEarningsLamports)
		require.Equal(t, uint16(DefaultAgentShareBps), st.AgentShareBps)
		require.Len(t, st.Tokens, 2)
		require.Equal(t, ready, st.Tokens[0].Mint)
		require.True(t, st.Tokens[0].CanDistribute)
		require.False(t, st.Tokens[1].CanDistribute)
		require.Empty(t, svc.sender.calls())
	})

	t.Run("unreadable mints are left out", func(t *testing.T) {
		t.Parallel()
		svc := newTestService(t)
		mint := solana.NewWallet().PublicKey()
		svc.ledger.readErr[pump.BondingCurvePDA(mint)] = errRPCDown

		st := svc.AgentStats(t.Context(), []solana.PublicKey{mint})
		require.Equal(t, 1, st.TotalTokens)
		require.Zero(t, st.TokensWithFeeSharing)
		require.Zero(t, st.EstimatedAgentEarningsLamports)
		require.Empty(t, st.Tokens)
	})

	t.Run("no mints", func(t *testing.T) {
		t.Parallel()
		st := newTestService(t).AgentStats(t.Context(), nil)
		require.Zero(t, st.TotalTokens)
		require.NotNil(t, st.Tokens)
	})
}
