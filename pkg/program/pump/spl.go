package pump

import (
	"github.com/gagliardetto/solana-go"

	"github.com/kato0x/pump-bundler/pkg/constants"
)

// BuildCreateATAIdempotent constructs a CreateIdempotent associated-token
// instruction: a no-op on-chain when the account already exists, so it is
// always safe to prepend before a buy.
func BuildCreateATAIdempotent(payer, wallet, mint, tokenProgram solana.PublicKey) (solana.Instruction, error) {
	ata, err := FindAssociatedTokenAccount(wallet, mint, tokenProgram)
	if err != nil {
		return nil, err
	}
	metas := []*solana.AccountMeta{
		solana.NewAccountMeta(payer, true, true),
		solana.NewAccountMeta(ata, true, false),
		solana.NewAccountMeta(wallet, false, false),
		solana.NewAccountMeta(mint, false, false),
		solana.NewAccountMeta(constants.SystemProgramID, false, false),
		solana.NewAccountMeta(tokenProgram, false, false),
	}
	// CreateIdempotent discriminator = 1
	return solana.NewInstruction(constants.AssociatedTokenProgramID, metas, []byte{1}), nil
}

// BuildTokenTransfer constructs an SPL token transfer between two token
// accounts, signed by the source owner.
func BuildTokenTransfer(source, destination, owner solana.PublicKey, amount uint64, tokenProgram solana.PublicKey) solana.Instruction {
	// Transfer instruction discriminator = 3
	data := make([]byte, 9)
	data[0] = 3
	for i := 0; i < 8; i++ {
		data[1+i] = byte(amount >> (8 * i))
	}
	metas := []*solana.AccountMeta{
		solana.NewAccountMeta(source, true, false),
		solana.NewAccountMeta(destination, true, false),
		solana.NewAccountMeta(owner, false, true),
	}
	return solana.NewInstruction(tokenProgram, metas, data)
}

// BuildCloseAccount constructs a CloseAccount instruction, returning the
// account's rent lamports to destination.
func BuildCloseAccount(account, destination, owner, tokenProgram solana.PublicKey) solana.Instruction {
	// CloseAccount instruction discriminator = 9
	data := []byte{9}
	metas := []*solana.AccountMeta{
		solana.NewAccountMeta(account, true, false),
		solana.NewAccountMeta(destination, true, false),
		solana.NewAccountMeta(owner, false, true),
	}
	return solana.NewInstruction(tokenProgram, metas, data)
}
