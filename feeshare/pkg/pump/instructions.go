package pump

import (
	"encoding/binary"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var (
	createFeeSharingConfigDiscriminator     = instructionDiscriminator("create_fee_sharing_config")
	updateFeeSharesDiscriminator            = instructionDiscriminator("update_fee_shares")
	distributeCreatorFeesDiscriminator      = instructionDiscriminator("distribute_creator_fees")
	getMinimumDistributableFeeDiscriminator = instructionDiscriminator("get_minimum_distributable_fee")
	buyExactSolInDiscriminator              = instructionDiscriminator("buy_exact_sol_in")
)

// SPL token instruction tags.
const (
	tokenInstructionTransferChecked = 12
	ataInstructionCreateIdempotent  = 1
)

type instruction struct {
	programID solana.PublicKey
	accounts  solana.AccountMetaSlice
	data      []byte
}

func (i *instruction) ProgramID() solana.PublicKey     { return i.programID }
func (i *instruction) Accounts() []*solana.AccountMeta { return i.accounts }
func (i *instruction) Data() ([]byte, error)           { return i.data, nil }

func newInstruction(program solana.PublicKey, data []byte, accounts ...*solana.AccountMeta) solana.Instruction {
	return &instruction{programID: program, accounts: accounts, data: data}
}

func encodeArgs(d discriminator, args any) ([]byte, error) {
	if args == nil {
		return d[:], nil
	}
	body, err := bin.MarshalBorsh(args)
	if err != nil {
		return nil, err
	}
	return append(d[:], body...), nil
}

func readonly(pk solana.PublicKey) *solana.AccountMeta { return solana.Meta(pk) }
func writable(pk solana.PublicKey) *solana.AccountMeta { return solana.Meta(pk).WRITE() }

// CreateFeeSharingConfig creates the sharing config of mint with payer as its
// admin and sole initial shareholder. pool is the AMM pool of a graduated
// mint, or nil while the mint trades on its bonding curve.
func CreateFeeSharingConfig(payer, mint solana.PublicKey, pool *solana.PublicKey) solana.Instruction {
	poolMeta := readonly(FeesProgramID)
	if pool != nil {
		poolMeta = writable(*pool)
	}
	data, _ := encodeArgs(createFeeSharingConfigDiscriminator, nil)
	return newInstruction(FeesProgramID, data,
		readonly(EventAuthorityPDA(FeesProgramID)),
		readonly(FeesProgramID),
		writable(payer).SIGNER(),
		readonly(FeeProgramGlobalPDA()),
		readonly(mint),
		writable(SharingConfigPDA(mint)),
		readonly(SystemProgramID),
		writable(BondingCurvePDA(mint)),
		readonly(ProgramID),
		readonly(EventAuthorityPDA(ProgramID)),
		poolMeta,
		readonly(AMMProgramID),
		readonly(EventAuthorityPDA(AMMProgramID)),
	)
}

type updateFeeSharesArgs struct {
	Shareholders []Shareholder
}

// UpdateFeeShares replaces the shareholder table of mint's sharing config.
// current lists the shareholders being replaced; they are passed as
// remaining accounts so any fees accrued to them are settled first.
func UpdateFeeShares(authority, mint solana.PublicKey, current []solana.PublicKey, next []Shareholder) (solana.Instruction, error) {
	if err := ValidateShares(next); err != nil {
		return nil, err
	}
	data, err := encodeArgs(updateFeeSharesDiscriminator, &updateFeeSharesArgs{Shareholders: next})
	if err != nil {
		return nil, fmt.Errorf("failed to encode update_fee_shares: %w", err)
	}
	config := SharingConfigPDA(mint)
	metas := []*solana.AccountMeta{
		readonly(EventAuthorityPDA(FeesProgramID)),
		readonly(FeesProgramID),
		readonly(authority).SIGNER(),
		readonly(FeeProgramGlobalPDA()),
		readonly(mint),
		writable(config),
		readonly(BondingCurvePDA(mint)),
		writable(CreatorVaultPDA(config)),
		readonly(SystemProgramID),
		readonly(ProgramID),
		readonly(EventAuthorityPDA(ProgramID)),
		readonly(AMMProgramID),
		readonly(EventAuthorityPDA(AMMProgramID)),
		writable(AMMCreatorVaultAuthorityPDA(config)),
		writable(AMMCreatorVaultATA(config)),
		readonly(WrappedSOLMint),
		readonly(TokenProgramID),
		readonly(AssociatedTokenProgramID),
	}
	for _, pk := range current {
		metas = append(metas, writable(pk))
	}
	return newInstruction(FeesProgramID, data, metas...), nil
}

func creatorFeeAccounts(mint solana.PublicKey, shareholders []solana.PublicKey, write bool) []*solana.AccountMeta {
	config := SharingConfigPDA(mint)
	vault := readonly(CreatorVaultPDA(config))
	if write {
		vault = writable(CreatorVaultPDA(config))
	}
	metas := []*solana.AccountMeta{
		readonly(mint),
		readonly(BondingCurvePDA(mint)),
		readonly(config),
		vault,
		readonly(SystemProgramID),
		readonly(EventAuthorityPDA(ProgramID)),
		readonly(ProgramID),
	}
	for _, pk := range shareholders {
		if write {
			metas = append(metas, writable(pk))
		} else {
			metas = append(metas, readonly(pk))
		}
	}
	return metas
}

// DistributeCreatorFees pays out the creator vault of a configured mint to
// its shareholders, which must be listed in stored order.
func DistributeCreatorFees(mint solana.PublicKey, shareholders []solana.PublicKey) solana.Instruction {
	data, _ := encodeArgs(distributeCreatorFeesDiscriminator, nil)
	return newInstruction(ProgramID, data, creatorFeeAccounts(mint, shareholders, true)...)
}

// GetMinimumDistributableFee is a view instruction. Its result is read from
// simulation return data with DecodeMinimumDistributableFee.
func GetMinimumDistributableFee(mint solana.PublicKey, shareholders []solana.PublicKey) solana.Instruction {
	data, _ := encodeArgs(getMinimumDistributableFeeDiscriminator, nil)
	return newInstruction(ProgramID, data, creatorFeeAccounts(mint, shareholders, false)...)
}

// MinimumDistributableFee is the return value of get_minimum_distributable_fee.
type MinimumDistributableFee struct {
	MinimumRequired   uint64
	DistributableFees uint64
	CanDistribute     bool
}

func DecodeMinimumDistributableFee(data []byte) (*MinimumDistributableFee, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("%w: return data is %d bytes", ErrAccountTooShort, len(data))
	}
	out := &MinimumDistributableFee{MinimumRequired: binary.LittleEndian.Uint64(data[:8])}
	if len(data) >= 16 {
		out.DistributableFees = binary.LittleEndian.Uint64(data[8:16])
	}
	if len(data) >= 17 {
		out.CanDistribute = data[16] != 0
	}
	return out, nil
}

type buyExactSolInArgs struct {
	SpendableSolIn uint64
	MinTokensOut   uint64
	TrackVolume    bool
}

// BuyParams describes a bonding-curve purchase that spends at most
// SpendableSolIn lamports.
type BuyParams struct {
	User           solana.PublicKey
	Mint           solana.PublicKey
	Creator        solana.PublicKey
	FeeRecipient   solana.PublicKey
	TokenProgram   solana.PublicKey
	SpendableSolIn uint64
	MinTokensOut   uint64
}

func BuyExactSolIn(p BuyParams) (solana.Instruction, error) {
	data, err := encodeArgs(buyExactSolInDiscriminator, &buyExactSolInArgs{
		SpendableSolIn: p.SpendableSolIn,
		MinTokensOut:   p.MinTokensOut,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode buy_exact_sol_in: %w", err)
	}
	curve := BondingCurvePDA(p.Mint)
	return newInstruction(ProgramID, data,
		readonly(GlobalPDA()),
		writable(p.FeeRecipient),
		readonly(p.Mint),
		writable(curve),
		writable(AssociatedTokenAddress(curve, p.Mint, p.TokenProgram)),
		writable(AssociatedTokenAddress(p.User, p.Mint, p.TokenProgram)),
		writable(p.User).SIGNER(),
		readonly(SystemProgramID),
		readonly(p.TokenProgram),
		writable(CreatorVaultPDA(p.Creator)),
		readonly(EventAuthorityPDA(ProgramID)),
		readonly(ProgramID),
		readonly(GlobalVolumeAccumulatorPDA()),
		writable(UserVolumeAccumulatorPDA(p.User)),
		readonly(FeeConfigPDA()),
		readonly(FeesProgramID),
	), nil
}

// CreateAssociatedTokenAccountIdempotent creates owner's token account for
// mint unless it already exists.
func CreateAssociatedTokenAccountIdempotent(payer, owner, mint, tokenProgram solana.PublicKey) solana.Instruction {
	return newInstruction(AssociatedTokenProgramID, []byte{ataInstructionCreateIdempotent},
		writable(payer).SIGNER(),
		writable(AssociatedTokenAddress(owner, mint, tokenProgram)),
		readonly(owner),
		readonly(mint),
		readonly(SystemProgramID),
		readonly(tokenProgram),
	)
}

// TokenTransfer moves amount base units between token accounts of mint.
// It uses TransferChecked, which both token programs accept.
func TokenTransfer(tokenProgram, source, mint, destination, owner solana.PublicKey, amount uint64, decimals uint8) solana.Instruction {
	data := make([]byte, 10)
	data[0] = tokenInstructionTransferChecked
	binary.LittleEndian.PutUint64(data[1:9], amount)
	data[9] = decimals
	return newInstruction(tokenProgram, data,
		writable(source),
		readonly(mint),
		writable(destination),
		readonly(owner).SIGNER(),
	)
}
