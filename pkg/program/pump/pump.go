// Package pump contains instruction builders and account decoders for the
// pump.fun bonding-curve program. Account ordering and data layouts follow
// the on-chain program exactly; any deviation fails on-chain, not locally.
package pump

import (
	"bytes"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/kato0x/pump-bundler/pkg/constants"
)

// ProgramKey is the pump.fun bonding-curve program address.
var ProgramKey = constants.PumpProgramID

// Anchor method discriminators.
var (
	buyDiscriminator    = []byte{102, 6, 61, 18, 1, 218, 235, 234}
	sellDiscriminator   = []byte{51, 230, 133, 164, 1, 127, 131, 173}
	createDiscriminator = []byte{24, 30, 200, 40, 5, 28, 7, 119}
)

// BuyArgs are the buy instruction arguments: token amount to receive and
// the SOL spend cap after slippage.
type BuyArgs struct {
	Amount     uint64 `json:"amount"`
	MaxSolCost uint64 `json:"maxSolCost"`
}

// BuyAccounts is the positional account list for buy.
type BuyAccounts struct {
	Global                 solana.PublicKey `json:"global"`
	FeeRecipient           solana.PublicKey `json:"feeRecipient"`
	Mint                   solana.PublicKey `json:"mint"`
	BondingCurve           solana.PublicKey `json:"bondingCurve"`
	AssociatedBondingCurve solana.PublicKey `json:"associatedBondingCurve"`
	AssociatedUser         solana.PublicKey `json:"associatedUser"`
	User                   solana.PublicKey `json:"user"`
	SystemProgram          solana.PublicKey `json:"systemProgram"`
	TokenProgram           solana.PublicKey `json:"tokenProgram"`
	CreatorVault           solana.PublicKey `json:"creatorVault"`
	EventAuthority         solana.PublicKey `json:"eventAuthority"`
	Program                solana.PublicKey `json:"program"`
}

// BuildBuy assembles a buy instruction. Deterministic: identical inputs
// produce byte-identical output.
func BuildBuy(accounts BuyAccounts, args BuyArgs) (solana.Instruction, error) {
	data, err := encodeArgs(buyDiscriminator, args)
	if err != nil {
		return nil, err
	}
	metas := []*solana.AccountMeta{
		solana.NewAccountMeta(accounts.Global, false, false),
		solana.NewAccountMeta(accounts.FeeRecipient, true, false),
		solana.NewAccountMeta(accounts.Mint, false, false),
		solana.NewAccountMeta(accounts.BondingCurve, true, false),
		solana.NewAccountMeta(accounts.AssociatedBondingCurve, true, false),
		solana.NewAccountMeta(accounts.AssociatedUser, true, false),
		solana.NewAccountMeta(accounts.User, true, true),
		solana.NewAccountMeta(accounts.SystemProgram, false, false),
		solana.NewAccountMeta(accounts.TokenProgram, false, false),
		solana.NewAccountMeta(accounts.CreatorVault, true, false),
		solana.NewAccountMeta(accounts.EventAuthority, false, false),
		solana.NewAccountMeta(accounts.Program, false, false),
	}
	return solana.NewInstruction(ProgramKey, metas, data), nil
}

// SellArgs are the sell instruction arguments: token amount to sell and the
// minimum SOL proceeds after slippage.
type SellArgs struct {
	Amount       uint64 `json:"amount"`
	MinSolOutput uint64 `json:"minSolOutput"`
}

// SellAccounts is the positional account list for sell. Note the creator
// vault sits between the system and token programs, unlike buy.
type SellAccounts struct {
	Global                 solana.PublicKey `json:"global"`
	FeeRecipient           solana.PublicKey `json:"feeRecipient"`
	Mint                   solana.PublicKey `json:"mint"`
	BondingCurve           solana.PublicKey `json:"bondingCurve"`
	AssociatedBondingCurve solana.PublicKey `json:"associatedBondingCurve"`
	AssociatedUser         solana.PublicKey `json:"associatedUser"`
	User                   solana.PublicKey `json:"user"`
	SystemProgram          solana.PublicKey `json:"systemProgram"`
	CreatorVault           solana.PublicKey `json:"creatorVault"`
	TokenProgram           solana.PublicKey `json:"tokenProgram"`
	EventAuthority         solana.PublicKey `json:"eventAuthority"`
	Program                solana.PublicKey `json:"program"`
}

// BuildSell assembles a sell instruction.
func BuildSell(accounts SellAccounts, args SellArgs) (solana.Instruction, error) {
	data, err := encodeArgs(sellDiscriminator, args)
	if err != nil {
		return nil, err
	}
	metas := []*solana.AccountMeta{
		solana.NewAccountMeta(accounts.Global, false, false),
		solana.NewAccountMeta(accounts.FeeRecipient, true, false),
		solana.NewAccountMeta(accounts.Mint, false, false),
		solana.NewAccountMeta(accounts.BondingCurve, true, false),
		solana.NewAccountMeta(accounts.AssociatedBondingCurve, true, false),
		solana.NewAccountMeta(accounts.AssociatedUser, true, false),
		solana.NewAccountMeta(accounts.User, true, true),
		solana.NewAccountMeta(accounts.SystemProgram, false, false),
		solana.NewAccountMeta(accounts.CreatorVault, true, false),
		solana.NewAccountMeta(accounts.TokenProgram, false, false),
		solana.NewAccountMeta(accounts.EventAuthority, false, false),
		solana.NewAccountMeta(accounts.Program, false, false),
	}
	return solana.NewInstruction(ProgramKey, metas, data), nil
}

// CreateArgs are the create instruction arguments. Name, Symbol and Uri are
// borsh length-prefixed strings.
type CreateArgs struct {
	Name    string           `json:"name"`
	Symbol  string           `json:"symbol"`
	Uri     string           `json:"uri"`
	Creator solana.PublicKey `json:"creator"`
}

// CreateAccounts is the positional account list for create. Mint is a fresh
// keypair and must co-sign.
type CreateAccounts struct {
	Mint                   solana.PublicKey `json:"mint"`
	MintAuthority          solana.PublicKey `json:"mintAuthority"`
	BondingCurve           solana.PublicKey `json:"bondingCurve"`
	AssociatedBondingCurve solana.PublicKey `json:"associatedBondingCurve"`
	Global                 solana.PublicKey `json:"global"`
	MplTokenMetadata       solana.PublicKey `json:"mplTokenMetadata"`
	Metadata               solana.PublicKey `json:"metadata"`
	User                   solana.PublicKey `json:"user"`
	SystemProgram          solana.PublicKey `json:"systemProgram"`
	TokenProgram           solana.PublicKey `json:"tokenProgram"`
	AssociatedTokenProgram solana.PublicKey `json:"associatedTokenProgram"`
	Rent                   solana.PublicKey `json:"rent"`
	EventAuthority         solana.PublicKey `json:"eventAuthority"`
	Program                solana.PublicKey `json:"program"`
}

// BuildCreate assembles a create instruction for a new token and its
// bonding curve.
func BuildCreate(accounts CreateAccounts, args CreateArgs) (solana.Instruction, error) {
	data, err := encodeArgs(createDiscriminator, args)
	if err != nil {
		return nil, err
	}
	metas := []*solana.AccountMeta{
		solana.NewAccountMeta(accounts.Mint, true, true),
		solana.NewAccountMeta(accounts.MintAuthority, false, false),
		solana.NewAccountMeta(accounts.BondingCurve, true, false),
		solana.NewAccountMeta(accounts.AssociatedBondingCurve, true, false),
		solana.NewAccountMeta(accounts.Global, false, false),
		solana.NewAccountMeta(accounts.MplTokenMetadata, false, false),
		solana.NewAccountMeta(accounts.Metadata, true, false),
		solana.NewAccountMeta(accounts.User, true, true),
		solana.NewAccountMeta(accounts.SystemProgram, false, false),
		solana.NewAccountMeta(accounts.TokenProgram, false, false),
		solana.NewAccountMeta(accounts.AssociatedTokenProgram, false, false),
		solana.NewAccountMeta(accounts.Rent, false, false),
		solana.NewAccountMeta(accounts.EventAuthority, false, false),
		solana.NewAccountMeta(accounts.Program, false, false),
	}
	return solana.NewInstruction(ProgramKey, metas, data), nil
}

func encodeArgs(discriminator []byte, args interface{}) ([]byte, error) {
	buf := new(bytes.Buffer)
	buf.Write(discriminator)
	if err := bin.NewBorshEncoder(buf).Encode(args); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DeriveBondingCurve returns the curve PDA for a mint.
func DeriveBondingCurve(mint solana.PublicKey) (solana.PublicKey, error) {
	pk, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(constants.SeedBondingCurve), mint.Bytes()},
		ProgramKey,
	)
	return pk, err
}

// DeriveCreatorVault returns the creator-vault PDA for a curve creator.
// Buys and sells route the creator's fee share here; the creator comes from
// the decoded BondingCurve account, never from caller input.
func DeriveCreatorVault(creator solana.PublicKey) (solana.PublicKey, error) {
	pk, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(constants.SeedCreatorVault), creator.Bytes()},
		ProgramKey,
	)
	return pk, err
}

// DeriveMetadata returns the metaplex metadata PDA for a mint.
func DeriveMetadata(mint solana.PublicKey) (solana.PublicKey, error) {
	pk, _, err := solana.FindProgramAddress(
		[][]byte{
			[]byte(constants.SeedMetadata),
			constants.MetadataProgramID.Bytes(),
			mint.Bytes(),
		},
		constants.MetadataProgramID,
	)
	return pk, err
}

// FindAssociatedTokenAccount derives the ATA for wallet/mint under the given
// token program.
func FindAssociatedTokenAccount(wallet, mint, tokenProgram solana.PublicKey) (solana.PublicKey, error) {
	pk, _, err := solana.FindProgramAddress(
		[][]byte{wallet.Bytes(), tokenProgram.Bytes(), mint.Bytes()},
		constants.AssociatedTokenProgramID,
	)
	return pk, err
}
