package solana

import (
	"fmt"

	ag_solanago "github.com/gagliardetto/solana-go"
	ata "github.com/gagliardetto/solana-go/programs/associated-token-account"
)

// FindAssociatedTokenAddress returns the canonical token account for wallet and mint.
func FindAssociatedTokenAddress(wallet, mint Pubkey) (Pubkey, uint8, error) {
	addr, bump, err := ag_solanago.FindAssociatedTokenAddress(
		ag_solanago.PublicKeyFromBytes(wallet[:]),
		ag_solanago.PublicKeyFromBytes(mint[:]),
	)
	if err != nil {
		return Pubkey{}, 0, fmt.Errorf("solana: find associated token address: %w", err)
	}
	return Pubkey(addr), bump, nil
}

// ataCreateIdempotent is the associated token program's CreateIdempotent
// discriminant. It takes the same accounts as Create but succeeds when the
// account already exists.
const ataCreateIdempotent = 1

// CreateAssociatedTokenAccountInstruction creates wallet's token account for
// mint, funded by payer. The instruction is a no-op when the account exists.
func CreateAssociatedTokenAccountInstruction(payer, wallet, mint Pubkey) (Instruction, error) {
	built, err := ata.NewCreateInstruction(
		ag_solanago.PublicKeyFromBytes(payer[:]),
		ag_solanago.PublicKeyFromBytes(wallet[:]),
		ag_solanago.PublicKeyFromBytes(mint[:]),
	).ValidateAndBuild()
	if err != nil {
		return Instruction{}, fmt.Errorf("solana: build create ata: %w", err)
	}
	ix, err := fromSolanaGo(built)
	if err != nil {
		return Instruction{}, err
	}
	ix.Data = []byte{ataCreateIdempotent}
	return ix, nil
}

func fromSolanaGo(ix ag_solanago.Instruction) (Instruction, error) {
	data, err := ix.Data()
	if err != nil {
		return Instruction{}, fmt.Errorf("solana: encode instruction data: %w", err)
	}
	metas := ix.Accounts()
	accounts := make([]AccountMeta, 0, len(metas))
	for _, m := range metas {
		accounts = append(accounts, AccountMeta{
			Pubkey:     Pubkey(m.PublicKey),
			IsSigner:   m.IsSigner,
			IsWritable: m.IsWritable,
		})
	}
	return Instruction{
		ProgramID: Pubkey(ix.ProgramID()),
		Accounts:  accounts,
		Data:      data,
	}, nil
}
