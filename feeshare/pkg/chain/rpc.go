package chain

import (
	"fmt"
	"os"
	"strings"

	"github.com/gagliardetto/solana-go"
)

// DefaultRPCURL is used when SOLANA_RPC_URL is unset.
const DefaultRPCURL = "https://api.mainnet-beta.solana.com"

// LamportsPerSOL is the number of lamports in one SOL.
const LamportsPerSOL = 1_000_000_000

// GetRPCURL returns SOLANA_RPC_URL, falling back to DefaultRPCURL.
func GetRPCURL() string {
	if url := strings.TrimSpace(os.Getenv("SOLANA_RPC_URL")); url != "" {
		return url
	}
	return DefaultRPCURL
}

// ParseAddress parses a base58 account address.
func ParseAddress(s string) (solana.PublicKey, error) {
	pk, err := solana.PublicKeyFromBase58(s)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("invalid address %q: %w", s, err)
	}
	return pk, nil
}

// LamportsToSOL converts lamports to SOL for display only.
func LamportsToSOL(lamports uint64) float64 {
	return float64(lamports) / LamportsPerSOL
}

// SOLToLamports converts a SOL amount to lamports, truncating fractional lamports.
func SOLToLamports(sol float64) uint64 {
	if sol <= 0 {
		return 0
	}
	return uint64(sol * LamportsPerSOL)
}
