package pump

import (
	"errors"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

var (
	ErrInvalidDiscriminator = errors.New("account discriminator mismatch")
	ErrAccountTooShort      = errors.New("account data too short")
)

var (
	globalDiscriminator        = accountDiscriminator("Global")
	bondingCurveDiscriminator  = accountDiscriminator("BondingCurve")
	sharingConfigDiscriminator = accountDiscriminator("SharingConfig")
)

// Global is the leading, stable portion of the pump program's global
// account. Trailing fields added by later program versions are ignored.
type Global struct {
	Discriminator               [8]byte
	Initialized                 bool
	Authority                   solana.PublicKey
	FeeRecipient                solana.PublicKey
	InitialVirtualTokenReserves uint64
	InitialVirtualSolReserves   uint64
	InitialRealTokenReserves    uint64
	TokenTotalSupply            uint64
	FeeBasisPoints              uint64
	WithdrawAuthority           solana.PublicKey
	EnableMigrate               bool
	PoolMigrationFee            uint64
	CreatorFeeBasisPoints       uint64
}

// BondingCurve is the per-mint bonding curve state.
type BondingCurve struct {
	Discriminator        [8]byte
	VirtualTokenReserves uint64
	VirtualSolReserves   uint64
	RealTokenReserves    uint64
	RealSolReserves      uint64
	TokenTotalSupply     uint64
	Complete             bool
	Creator              solana.PublicKey
}

// Sharing config status values.
const (
	SharingConfigPaused uint8 = 0
	SharingConfigActive uint8 = 1
)

// SharingConfig is the pump fees program's per-mint shareholder table.
type SharingConfig struct {
	Discriminator [8]byte
	Bump          uint8
	Version       uint8
	Status        uint8
	Mint          solana.PublicKey
	Admin         solana.PublicKey
	AdminRevoked  bool
	Shareholders  []Shareholder
}

// Addresses returns the shareholder addresses in stored order.
func (c *SharingConfig) Addresses() []solana.PublicKey {
	out := make([]solana.PublicKey, len(c.Shareholders))
	for i, s := range c.Shareholders {
		out[i] = s.Address
	}
	return out
}

func DecodeGlobal(data []byte) (*Global, error) {
	var g Global
	if err := decodeAccount(data, globalDiscriminator, &g); err != nil {
		return nil, fmt.Errorf("failed to decode global: %w", err)
	}
	return &g, nil
}

func DecodeBondingCurve(data []byte) (*BondingCurve, error) {
	var c BondingCurve
	if err := decodeAccount(data, bondingCurveDiscriminator, &c); err != nil {
		return nil, fmt.Errorf("failed to decode bonding curve: %w", err)
	}
	return &c, nil
}

func DecodeSharingConfig(data []byte) (*SharingConfig, error) {
	var c SharingConfig
	if err := decodeAccount(data, sharingConfigDiscriminator, &c); err != nil {
		return nil, fmt.Errorf("failed to decode sharing config: %w", err)
	}
	return &c, nil
}

func decodeAccount(data []byte, want discriminator, v any) error {
	if len(data) < len(want) {
		return ErrAccountTooShort
	}
	var got discriminator
	copy(got[:], data[:8])
	if got != want {
		return ErrInvalidDiscriminator
	}
	if err := bin.NewBorshDecoder(data).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrAccountTooShort, err)
	}
	return nil
}

// EncodeAccount serializes an account with its discriminator. It is used to
// build fixtures and is the inverse of the Decode functions.
func EncodeAccount(v any) ([]byte, error) {
	switch a := v.(type) {
	case *Global:
		a.Discriminator = globalDiscriminator
	case *BondingCurve:
		a.Discriminator = bondingCurveDiscriminator
	case *SharingConfig:
		a.Discriminator = sharingConfigDiscriminator
	default:
		return nil, fmt.Errorf("unsupported account type %T", v)
	}
	return bin.MarshalBorsh(v)
}

// Mint layout offsets shared by SPL token and token-2022 base mints.
const (
	mintDecimalsOffset = 44
	mintBaseSize       = 82
)

// MintDecimals reads the decimals byte of a token mint account.
func MintDecimals(data []byte) (uint8, error) {
	if len(data) < mintBaseSize {
		return 0, fmt.Errorf("%w: mint is %d bytes", ErrAccountTooShort, len(data))
	}
	return data[mintDecimalsOffset], nil
}
