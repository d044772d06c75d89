package pump

import (
	"crypto/sha256"
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
)

func TestFeeshare_Pump_PDAs(t *testing.T) {
	t.Parallel()

	mint := solana.NewWallet().PublicKey()

	t.Run("deterministic", func(t *testing.T) {
		t.Parallel()
		require.Equal(t, SharingConfigPDA(mint), SharingConfigPDA(mint))
		require.Equal(t, BondingCurvePDA(mint), BondingCurvePDA(mint))
		require.NotEqual(t, SharingConfigPDA(mint), BondingCurvePDA(mint))
	})

	t.Run("matches solana-go associated token address", func(t *testing.T) {
		t.Parallel()
		owner := solana.NewWallet().PublicKey()
		want, _, err := solana.FindAssociatedTokenAddress(owner, mint)
		require.NoError(t, err)
		require.Equal(t, want, AssociatedTokenAddress(owner, mint, TokenProgramID))
		require.NotEqual(t, want, AssociatedTokenAddress(owner, mint, Token2022ProgramID))
	})

	t.Run("migration marker", func(t *testing.T) {
		t.Parallel()
		require.True(t, HasMigratedToSharingConfig(mint, SharingConfigPDA(mint)))
		require.False(t, HasMigratedToSharingConfig(mint, solana.NewWallet().PublicKey()))
		require.False(t, HasMigratedToSharingConfig(mint, SharingConfigPDA(solana.NewWallet().PublicKey())))
	})
}

func TestFeeshare_Pump_TokenProgramForOwner(t *testing.T) {
	t.Parallel()

	pk, err := TokenProgramForOwner(TokenProgramID)
	require.NoError(t, err)
	require.Equal(t, TokenProgramID, pk)

	pk, err = TokenProgramForOwner(Token2022ProgramID)
	require.NoError(t, err)
	require.Equal(t, Token2022ProgramID, pk)

	_, err = TokenProgramForOwner(SystemProgramID)
	require.Error(t, err)
}

func TestFeeshare_Pump_Accounts(t *testing.T) {
	t.Parallel()

	t.Run("bonding curve", func(t *testing.T) {
		t.Parallel()
		creator := solana.NewWallet().PublicKey()
		data, err := EncodeAccount(&BondingCurve{
			VirtualTokenReserves: 1,
			VirtualSolReserves:   2,
			RealTokenReserves:    3,
			RealSolReserves:      4,
			TokenTotalSupply:     5,
			Complete:             true,
			Creator:              creator,
		})
		require.NoError(t, err)
		require.Len(t, data, 8+5*8+1+32)

		curve, err := DecodeBondingCurve(data)
		require.NoError(t, err)
		require.Equal(t, uint64(2), curve.VirtualSolReserves)
		require.True(t, curve.Complete)
		require.Equal(t, creator, curve.Creator)
	})

	t.Run("sharing config", func(t *testing.T) {
		t.Parallel()
		a := solana.NewWallet().PublicKey()
		b := solana.NewWallet().PublicKey()
		data, err := EncodeAccount(&SharingConfig{
			Status:       SharingConfigActive,
			Shareholders: []Shareholder{{a, 7000}, {b, 3000}},
		})
		require.NoError(t, err)

		cfg, err := DecodeSharingConfig(data)
		require.NoError(t, err)
		require.Equal(t, []solana.PublicKey{a, b}, cfg.Addresses())
		require.Equal(t, uint16(7000), cfg.Shareholders[0].ShareBps)
	})

	t.Run("wrong discriminator", func(t *testing.T) {
		t.Parallel()
		data, err := EncodeAccount(&BondingCurve{})
		require.NoError(t, err)
		_, err = DecodeSharingConfig(data)
		require.ErrorIs(t, err, ErrInvalidDiscriminator)
	})

	t.Run("truncated", func(t *testing.T) {
		t.Parallel()
		data, err := EncodeAccount(&BondingCurve{})
		require.NoError(t, err)
		_, err = DecodeBondingCurve(data[:20])
		require.ErrorIs(t, err, ErrAccountTooShort)
		_, err = DecodeBondingCurve(data[:4])
		require.ErrorIs(t, err, ErrAccountTooShort)
	})

	t.Run("mint decimals", func(t *testing.T) {
		t.Parallel()
		data := make([]byte, 82)
		data[44] = 6
		d, err := MintDecimals(data)
		require.NoError(t, err)
		require.Equal(t, uint8(6), d)
		_, err = MintDecimals(data[:40])
		require.ErrorIs(t, err, ErrAccountTooShort)
	})
}

func TestFeeshare_Pump_Instructions(t *testing.T) {
	t.Parallel()

	mint := solana.NewWallet().PublicKey()
	platform := solana.NewWallet().PublicKey()
	agent := solana.NewWallet().PublicKey()
	treasury := solana.NewWallet().PublicKey()

	anchor := func(name string) []byte {
		sum := sha256.Sum256([]byte("global:" + name))
		return sum[:8]
	}

	t.Run("update fee shares", func(t *testing.T) {
		t.Parallel()
		ix, err := UpdateFeeShares(platform, mint, []solana.PublicKey{platform}, []Shareholder{{agent, 7000}, {treasury, 3000}})
		require.NoError(t, err)
		require.Equal(t, FeesProgramID, ix.ProgramID())

		data, err := ix.Data()
		require.NoError(t, err)
		require.Equal(t, anchor("update_fee_shares"), data[:8])
		require.Equal(t, uint32(2), binary.LittleEndian.Uint32(data[8:12]))
		require.Equal(t, agent.Bytes(), data[12:44])
		require.Equal(t, uint16(7000), binary.LittleEndian.Uint16(data[44:46]))

		accounts := ix.Accounts()
		last := accounts[len(accounts)-1]
		require.Equal(t, platform, last.PublicKey)
		require.True(t, last.IsWritable)
		require.True(t, accounts[2].IsSigner)
	})

	t.Run("update fee shares rejects bad split", func(t *testing.T) {
		t.Parallel()
		_, err := UpdateFeeShares(platform, mint, nil, []Shareholder{{agent, 7000}, {treasury, 2000}})
		require.ErrorIs(t, err, ErrSharesSum)
	})

	t.Run("distribute creator fees", func(t *testing.T) {
		t.Parallel()
		ix := DistributeCreatorFees(mint, []solana.PublicKey{agent, treasury})
		require.Equal(t, ProgramID, ix.ProgramID())
		data, err := ix.Data()
		require.NoError(t, err)
		require.Equal(t, anchor("distribute_creator_fees"), data)

		accounts := ix.Accounts()
		require.Equal(t, SharingConfigPDA(mint), accounts[2].PublicKey)
		require.Equal(t, CreatorVaultPDA(SharingConfigPDA(mint)), accounts[3].PublicKey)
		require.True(t, accounts[3].IsWritable)
		require.Equal(t, treasury, accounts[len(accounts)-1].PublicKey)
	})

	t.Run("buy exact sol in", func(t *testing.T) {
		t.Parallel()
		ix, err := BuyExactSolIn(BuyParams{
			User:           platform,
			Mint:           mint,
			Creator:        SharingConfigPDA(mint),
			FeeRecipient:   treasury,
			TokenProgram:   TokenProgramID,
			SpendableSolIn: 700,
			MinTokensOut:   95,
		})
		require.NoError(t, err)
		data, err := ix.Data()
		require.NoError(t, err)
		require.Len(t, data, 8+8+8+1)
		require.Equal(t, anchor("buy_exact_sol_in"), data[:8])
		require.Equal(t, uint64(700), binary.LittleEndian.Uint64(data[8:16]))
		require.Equal(t, uint64(95), binary.LittleEndian.Uint64(data[16:24]))
	})

	t.Run("token transfer", func(t *testing.T) {
		t.Parallel()
		ix := TokenTransfer(Token2022ProgramID, agent, mint, treasury, platform, 1234, 6)
		require.Equal(t, Token2022ProgramID, ix.ProgramID())
		data, err := ix.Data()
		require.NoError(t, err)
		require.Equal(t, byte(12), data[0])
		require.Equal(t, uint64(1234), binary.LittleEndian.Uint64(data[1:9]))
		require.Equal(t, byte(6), data[9])
		require.True(t, ix.Accounts()[3].IsSigner)
	})

	t.Run("minimum distributable fee return data", func(t *testing.T) {
		t.Parallel()
		raw := make([]byte, 17)
		binary.LittleEndian.PutUint64(raw[:8], 10_000_000)
		binary.LittleEndian.PutUint64(raw[8:16], 42)
		raw[16] = 1
		out, err := DecodeMinimumDistributableFee(raw)
		require.NoError(t, err)
		require.Equal(t, uint64(10_000_000), out.MinimumRequired)
		require.Equal(t, uint64(42), out.DistributableFees)
		require.True(t, out.CanDistribute)

		_, err = DecodeMinimumDistributableFee(raw[:3])
		require.Error(t, err)
	})
}
