// Package pumpamm contains instruction builders and account decoders for
// the pump.fun AMM program, which hosts pools for tokens that graduated off
// their bonding curve.
package pumpamm

import (
	"bytes"
	"encoding/binary"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"github.com/kato0x/pump-bundler/pkg/constants"
	"github.com/kato0x/pump-bundler/pkg/types"
)

// ProgramKey is the pump.fun AMM program address.
var ProgramKey = constants.PumpAmmProgramID

var sellDiscriminator = []byte{51, 230, 133, 164, 1, 127, 131, 173}

// Pool layout:
//
//	0..8     discriminator
//	8        pool_bump                 u8
//	9..11    index                     u16 LE
//	11..43   creator                   pubkey
//	43..75   base_mint                 pubkey
//	75..107  quote_mint                pubkey
//	107..139 lp_mint                   pubkey
//	139..171 pool_base_token_account   pubkey
//	171..203 pool_quote_token_account  pubkey
//	203..211 lp_supply                 u64 LE
//	211..243 coin_creator              pubkey
const poolLen = 243

// Pool is the decoded AMM pool state.
type Pool struct {
	PoolBump              uint8
	Index                 uint16
	Creator               solana.PublicKey
	BaseMint              solana.PublicKey
	QuoteMint             solana.PublicKey
	LpMint                solana.PublicKey
	PoolBaseTokenAccount  solana.PublicKey
	PoolQuoteTokenAccount solana.PublicKey
	LpSupply              uint64
	CoinCreator           solana.PublicKey
}

// Unmarshal decodes the raw account data, failing on short input.
func (p *Pool) Unmarshal(data []byte) error {
	if len(data) < poolLen {
		return types.AccountLayoutError{Account: "Pool", Want: poolLen, Got: len(data)}
	}
	p.PoolBump = data[8]
	p.Index = binary.LittleEndian.Uint16(data[9:11])
	p.Creator = solana.PublicKeyFromBytes(data[11:43])
	p.BaseMint = solana.PublicKeyFromBytes(data[43:75])
	p.QuoteMint = solana.PublicKeyFromBytes(data[75:107])
	p.LpMint = solana.PublicKeyFromBytes(data[107:139])
	p.PoolBaseTokenAccount = solana.PublicKeyFromBytes(data[139:171])
	p.PoolQuoteTokenAccount = solana.PublicKeyFromBytes(data[171:203])
	p.LpSupply = binary.LittleEndian.Uint64(data[203:211])
	p.CoinCreator = solana.PublicKeyFromBytes(data[211:243])
	return nil
}

// SellArgs are the sell instruction arguments: base tokens in, minimum
// quote (WSOL) out after slippage.
type SellArgs struct {
	BaseAmountIn      uint64 `json:"baseAmountIn"`
	MinQuoteAmountOut uint64 `json:"minQuoteAmountOut"`
}

// SellAccounts is the positional account list for an AMM sell.
type SellAccounts struct {
	Pool                             solana.PublicKey `json:"pool"`
	User                             solana.PublicKey `json:"user"`
	GlobalConfig                     solana.PublicKey `json:"globalConfig"`
	BaseMint                         solana.PublicKey `json:"baseMint"`
	QuoteMint                        solana.PublicKey `json:"quoteMint"`
	UserBaseTokenAccount             solana.PublicKey `json:"userBaseTokenAccount"`
	UserQuoteTokenAccount            solana.PublicKey `json:"userQuoteTokenAccount"`
	PoolBaseTokenAccount             solana.PublicKey `json:"poolBaseTokenAccount"`
	PoolQuoteTokenAccount            solana.PublicKey `json:"poolQuoteTokenAccount"`
	ProtocolFeeRecipient             solana.PublicKey `json:"protocolFeeRecipient"`
	ProtocolFeeRecipientTokenAccount solana.PublicKey `json:"protocolFeeRecipientTokenAccount"`
	BaseTokenProgram                 solana.PublicKey `json:"baseTokenProgram"`
	QuoteTokenProgram                solana.PublicKey `json:"quoteTokenProgram"`
	SystemProgram                    solana.PublicKey `json:"systemProgram"`
	AssociatedTokenProgram           solana.PublicKey `json:"associatedTokenProgram"`
	EventAuthority                   solana.PublicKey `json:"eventAuthority"`
	Program                          solana.PublicKey `json:"program"`
	CoinCreatorVaultAta              solana.PublicKey `json:"coinCreatorVaultAta"`
	CoinCreatorVaultAuthority        solana.PublicKey `json:"coinCreatorVaultAuthority"`
}

// BuildSell assembles an AMM sell instruction.
func BuildSell(accounts SellAccounts, args SellArgs) (solana.Instruction, error) {
	buf := new(bytes.Buffer)
	buf.Write(sellDiscriminator)
	if err := bin.NewBorshEncoder(buf).Encode(args); err != nil {
		return nil, err
	}
	metas := []*solana.AccountMeta{
		solana.NewAccountMeta(accounts.Pool, false, false),
		solana.NewAccountMeta(accounts.User, true, true),
		solana.NewAccountMeta(accounts.GlobalConfig, false, false),
		solana.NewAccountMeta(accounts.BaseMint, false, false),
		solana.NewAccountMeta(accounts.QuoteMint, false, false),
		solana.NewAccountMeta(accounts.UserBaseTokenAccount, true, false),
		solana.NewAccountMeta(accounts.UserQuoteTokenAccount, true, false),
		solana.NewAccountMeta(accounts.PoolBaseTokenAccount, true, false),
		solana.NewAccountMeta(accounts.PoolQuoteTokenAccount, true, false),
		solana.NewAccountMeta(accounts.ProtocolFeeRecipient, false, false),
		solana.NewAccountMeta(accounts.ProtocolFeeRecipientTokenAccount, true, false),
		solana.NewAccountMeta(accounts.BaseTokenProgram, false, false),
		solana.NewAccountMeta(accounts.QuoteTokenProgram, false, false),
		solana.NewAccountMeta(accounts.SystemProgram, false, false),
		solana.NewAccountMeta(accounts.AssociatedTokenProgram, false, false),
		solana.NewAccountMeta(accounts.EventAuthority, false, false),
		solana.NewAccountMeta(accounts.Program, false, false),
		solana.NewAccountMeta(accounts.CoinCreatorVaultAta, true, false),
		solana.NewAccountMeta(accounts.CoinCreatorVaultAuthority, false, false),
	}
	return solana.NewInstruction(ProgramKey, metas, buf.Bytes()), nil
}

// DeriveCreatorVaultAuthority returns the coin-creator vault authority PDA.
// The creator comes from the decoded Pool account.
func DeriveCreatorVaultAuthority(coinCreator solana.PublicKey) (solana.PublicKey, error) {
	pk, _, err := solana.FindProgramAddress(
		[][]byte{[]byte(constants.SeedCreatorVaultAmm), coinCreator.Bytes()},
		ProgramKey,
	)
	return pk, err
}
