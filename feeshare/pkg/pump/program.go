// Package pump encodes and decodes accounts and instructions of the pump.fun
// bonding-curve, pump AMM and pump fees programs. Everything here is offline;
// callers fetch account data and submit instructions themselves.
package pump

import (
	"crypto/sha256"
	"fmt"

	"github.com/gagliardetto/solana-go"
)

var (
	ProgramID     = solana.MustPublicKeyFromBase58("6EF8rrecthR5Dkzon8Nwu78hRvfCKubJ14M5uBEwF6P")
	AMMProgramID  = solana.MustPublicKeyFromBase58("pAMMBay6oceH9fJKBRHGP5D4bD4sWpmSwMn52FMfXEA")
	FeesProgramID = solana.MustPublicKeyFromBase58("pfeeUxB6jkeY1Hxd7CsFCAjcbHA9rWtchMGdZ6VojVZ")

	TokenProgramID           = solana.MustPublicKeyFromBase58("TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA")
	Token2022ProgramID       = solana.MustPublicKeyFromBase58("TokenzQdBNbLqP5VEhdkAS6EPFLC1PHnBgCXEpPxuEb")
	AssociatedTokenProgramID = solana.MustPublicKeyFromBase58("ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL")
	SystemProgramID          = solana.MustPublicKeyFromBase58("11111111111111111111111111111111")
	WrappedSOLMint           = solana.MustPublicKeyFromBase58("So11111111111111111111111111111111111111112")
	DefaultBurnAddress       = solana.MustPublicKeyFromBase58("1nc1nerator11111111111111111111111111111111")
)

func findPDA(program solana.PublicKey, seeds ...[]byte) solana.PublicKey {
	pda, _, err := solana.FindProgramAddress(seeds, program)
	if err != nil {
		// Only reachable with malformed seeds, which are all fixed here.
		panic(fmt.Sprintf("pump: failed to derive program address: %v", err))
	}
	return pda
}

// GlobalPDA is the pump program's global settings account.
func GlobalPDA() solana.PublicKey {
	return findPDA(ProgramID, []byte("global"))
}

func BondingCurvePDA(mint solana.PublicKey) solana.PublicKey {
	return findPDA(ProgramID, []byte("bonding-curve"), mint.Bytes())
}

// CreatorVaultPDA holds the creator fees accrued on the bonding curve.
func CreatorVaultPDA(creator solana.PublicKey) solana.PublicKey {
	return findPDA(ProgramID, []byte("creator-vault"), creator.Bytes())
}

// AMMCreatorVaultAuthorityPDA owns the wrapped-SOL account that accrues
// creator fees after graduation.
func AMMCreatorVaultAuthorityPDA(creator solana.PublicKey) solana.PublicKey {
	return findPDA(AMMProgramID, []byte("creator_vault"), creator.Bytes())
}

// AMMCreatorVaultATA is the wrapped-SOL token account of the AMM creator vault.
func AMMCreatorVaultATA(creator solana.PublicKey) solana.PublicKey {
	return AssociatedTokenAddress(AMMCreatorVaultAuthorityPDA(creator), WrappedSOLMint, TokenProgramID)
}

// SharingConfigPDA is the fee sharing config of mint.
func SharingConfigPDA(mint solana.PublicKey) solana.PublicKey {
	return findPDA(FeesProgramID, []byte("sharing-config"), mint.Bytes())
}

func FeeProgramGlobalPDA() solana.PublicKey {
	return findPDA(FeesProgramID, []byte("fee-program-global"))
}

func FeeConfigPDA() solana.PublicKey {
	return findPDA(FeesProgramID, []byte("fee_config"), ProgramID.Bytes())
}

func EventAuthorityPDA(program solana.PublicKey) solana.PublicKey {
	return findPDA(program, []byte("__event_authority"))
}

func GlobalVolumeAccumulatorPDA() solana.PublicKey {
	return findPDA(ProgramID, []byte("global_volume_accumulator"))
}

func UserVolumeAccumulatorPDA(user solana.PublicKey) solana.PublicKey {
	return findPDA(ProgramID, []byte("user_volume_accumulator"), user.Bytes())
}

// AssociatedTokenAddress derives the associated token account of owner for
// mint under tokenProgram (SPL token or token-2022).
func AssociatedTokenAddress(owner, mint, tokenProgram solana.PublicKey) solana.PublicKey {
	return findPDA(AssociatedTokenProgramID, owner.Bytes(), tokenProgram.Bytes(), mint.Bytes())
}

// HasMigratedToSharingConfig reports whether the coin creator recorded on the
// bonding curve has been handed over to the mint's sharing config.
func HasMigratedToSharingConfig(mint, creator solana.PublicKey) bool {
	return creator.Equals(SharingConfigPDA(mint))
}

// TokenProgramForOwner returns the token program that owns a mint account.
func TokenProgramForOwner(owner solana.PublicKey) (solana.PublicKey, error) {
	switch {
	case owner.Equals(TokenProgramID):
		return TokenProgramID, nil
	case owner.Equals(Token2022ProgramID):
		return Token2022ProgramID, nil
	}
	return solana.PublicKey{}, fmt.Errorf("mint owned by unexpected program %s", owner)
}

type discriminator [8]byte

func instructionDiscriminator(name string) discriminator {
	return hashDiscriminator("global:" + name)
}

func accountDiscriminator(name string) discriminator {
	return hashDiscriminator("account:" + name)
}

func hashDiscriminator(preimage string) discriminator {
	sum := sha256.Sum256([]byte(preimage))
	var d discriminator
	copy(d[:], sum[:8])
	return d
}
