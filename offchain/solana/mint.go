package solana

import (
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go/programs/token"
)

// DecodeMintDecimals reads the decimals of an SPL token mint account.
func DecodeMintDecimals(data []byte) (uint8, error) {
	var mint token.Mint
	if err := mint.UnmarshalWithDecoder(bin.NewBinDecoder(data)); err != nil {
		return 0, fmt.Errorf("solana: decode mint: %w", err)
	}
	if !mint.IsInitialized {
		return 0, fmt.Errorf("solana: mint not initialized")
	}
	return mint.Decimals, nil
}
