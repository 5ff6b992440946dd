package blockchain

import (
	"strings"

	"github.com/mr-tron/base58"
)

// WrappedSolMint is the wrapped native SOL mint address
const WrappedSolMint = "So11111111111111111111111111111111111111112"

// placeholderRun marks synthetic sysvar-style addresses that are never
// real wallets (long runs of '1' in the base58 form).
const placeholderRun = "111111111111111111111111"

// IsValidPubkey reports whether s decodes to a 32-byte ed25519 public key
func IsValidPubkey(s string) bool {
	raw, err := base58.Decode(s)
	if err != nil {
		return false
	}
	return len(raw) == 32
}

// IsCandidateWallet reports whether an address is worth probing as a new
// wallet: plausible length, not a sysvar-style placeholder, valid pubkey.
func IsCandidateWallet(addr string) bool {
	if len(addr) < 32 {
		return false
	}
	if strings.Contains(addr, placeholderRun) {
		return false
	}
	return IsValidPubkey(addr)
}
