package pump

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kato0x/pump-bundler/pkg/constants"
	"github.com/kato0x/pump-bundler/pkg/types"
)

func testBuyAccounts(t *testing.T) BuyAccounts {
	t.Helper()
	mint := solana.NewWallet().PublicKey()
	user := solana.NewWallet().PublicKey()
	bc, err := DeriveBondingCurve(mint)
	require.NoError(t, err)
	return BuyAccounts{
		Global:         constants.PumpGlobal,
		FeeRecipient:   constants.PumpFeeRecipient,
		Mint:           mint,
		BondingCurve:   bc,
		User:           user,
		SystemProgram:  constants.SystemProgramID,
		TokenProgram:   constants.TokenProgramID,
		EventAuthority: constants.PumpEventAuthority,
		Program:        ProgramKey,
	}
}

func TestBuildBuyLayout(t *testing.T) {
	accts := testBuyAccounts(t)
	args := BuyArgs{Amount: 123_456_789, MaxSolCost: 987_654_321}

	ix, err := BuildBuy(accts, args)
	require.NoError(t, err)

	assert.Equal(t, ProgramKey, ix.ProgramID())
	assert.Len(t, ix.Accounts(), 12)

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 24)
	assert.Equal(t, []byte{102, 6, 61, 18, 1, 218, 235, 234}, data[:8])
	assert.Equal(t, args.Amount, binary.LittleEndian.Uint64(data[8:16]))
	assert.Equal(t, args.MaxSolCost, binary.LittleEndian.Uint64(data[16:24]))

	// Only the user signs; the user, curve, ATAs, fee recipient and creator
	// vault are writable.
	metas := ix.Accounts()
	assert.True(t, metas[6].IsSigner)
	assert.True(t, metas[6].IsWritable)
	for i, m := range metas {
		if i != 6 {
			assert.False(t, m.IsSigner, "account %d must not sign", i)
		}
	}
	assert.False(t, metas[0].IsWritable, "global is read-only")
	assert.True(t, metas[1].IsWritable, "fee recipient is writable")
	assert.True(t, metas[3].IsWritable, "bonding curve is writable")
}

func TestBuildSellLayout(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	user := solana.NewWallet().PublicKey()
	accts := SellAccounts{
		Global:         constants.PumpGlobal,
		FeeRecipient:   constants.PumpFeeRecipient,
		Mint:           mint,
		User:           user,
		SystemProgram:  constants.SystemProgramID,
		TokenProgram:   constants.TokenProgramID,
		EventAuthority: constants.PumpEventAuthority,
		Program:        ProgramKey,
	}
	args := SellArgs{Amount: 55_555, MinSolOutput: 7_777}

	ix, err := BuildSell(accts, args)
	require.NoError(t, err)

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 24)
	assert.Equal(t, []byte{51, 230, 133, 164, 1, 127, 131, 173}, data[:8])
	assert.Equal(t, args.Amount, binary.LittleEndian.Uint64(data[8:16]))
	assert.Equal(t, args.MinSolOutput, binary.LittleEndian.Uint64(data[16:24]))

	// Creator vault precedes the token program on sell.
	metas := ix.Accounts()
	require.Len(t, metas, 12)
	assert.Equal(t, accts.SystemProgram, metas[7].PublicKey)
	assert.Equal(t, accts.TokenProgram, metas[9].PublicKey)
}

func TestBuildCreateLayout(t *testing.T) {
	mint := solana.NewWallet().PublicKey()
	user := solana.NewWallet().PublicKey()
	accts := CreateAccounts{
		Mint:    mint,
		User:    user,
		Program: ProgramKey,
	}
	args := CreateArgs{Name: "Test Token", Symbol: "TST", Uri: "https://example.com/meta.json", Creator: user}

	ix, err := BuildCreate(accts, args)
	require.NoError(t, err)

	data, err := ix.Data()
	require.NoError(t, err)
	assert.Equal(t, []byte{24, 30, 200, 40, 5, 28, 7, 119}, data[:8])

	// Borsh string: u32 length prefix then bytes.
	assert.Equal(t, uint32(len(args.Name)), binary.LittleEndian.Uint32(data[8:12]))
	assert.Equal(t, []byte(args.Name), data[12:12+len(args.Name)])

	// Trailing 32 bytes are the creator key.
	assert.Equal(t, user.Bytes(), data[len(data)-32:])

	metas := ix.Accounts()
	require.Len(t, metas, 14)
	assert.True(t, metas[0].IsSigner, "mint keypair must co-sign")
	assert.True(t, metas[7].IsSigner, "user must sign")
}

func TestBuildDeterministic(t *testing.T) {
	accts := testBuyAccounts(t)
	args := BuyArgs{Amount: 1, MaxSolCost: 2}

	a, err := BuildBuy(accts, args)
	require.NoError(t, err)
	b, err := BuildBuy(accts, args)
	require.NoError(t, err)

	da, _ := a.Data()
	db, _ := b.Data()
	assert.Equal(t, da, db)
	assert.Equal(t, a.Accounts(), b.Accounts())
}

func TestBuildCreateATAIdempotent(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	wallet := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()

	a, err := BuildCreateATAIdempotent(payer, wallet, mint, constants.TokenProgramID)
	require.NoError(t, err)
	b, err := BuildCreateATAIdempotent(payer, wallet, mint, constants.TokenProgramID)
	require.NoError(t, err)

	da, _ := a.Data()
	db, _ := b.Data()
	assert.Equal(t, []byte{1}, da)
	assert.Equal(t, da, db)
	assert.Equal(t, a.Accounts(), b.Accounts())
	assert.Equal(t, constants.AssociatedTokenProgramID, a.ProgramID())
}

func TestBuildTokenTransfer(t *testing.T) {
	src := solana.NewWallet().PublicKey()
	dst := solana.NewWallet().PublicKey()
	owner := solana.NewWallet().PublicKey()

	ix := BuildTokenTransfer(src, dst, owner, 42_000_000, constants.TokenProgramID)
	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 9)
	assert.Equal(t, byte(3), data[0])
	assert.Equal(t, uint64(42_000_000), binary.LittleEndian.Uint64(data[1:9]))

	metas := ix.Accounts()
	require.Len(t, metas, 3)
	assert.True(t, metas[2].IsSigner, "owner signs")
	assert.False(t, metas[2].IsWritable)
}

func TestBondingCurveUnmarshal(t *testing.T) {
	creator := solana.NewWallet().PublicKey()
	data := make([]byte, bondingCurveLen)
	binary.LittleEndian.PutUint64(data[8:16], 1_073_000_000_000_000)
	binary.LittleEndian.PutUint64(data[16:24], 30_000_000_000)
	binary.LittleEndian.PutUint64(data[24:32], 793_100_000_000_000)
	binary.LittleEndian.PutUint64(data[40:48], 1_000_000_000_000_000)
	data[48] = 0
	copy(data[49:81], creator.Bytes())

	var bc BondingCurve
	require.NoError(t, bc.Unmarshal(data))
	assert.Equal(t, uint64(1_073_000_000_000_000), bc.VirtualTokenReserves)
	assert.Equal(t, uint64(30_000_000_000), bc.VirtualSolReserves)
	assert.Equal(t, uint64(793_100_000_000_000), bc.RealTokenReserves)
	assert.False(t, bc.Complete)
	assert.Equal(t, creator, bc.Creator)
}

func TestBondingCurveUnmarshalShortData(t *testing.T) {
	var bc BondingCurve
	err := bc.Unmarshal(make([]byte, 48))

	var layoutErr types.AccountLayoutError
	require.ErrorAs(t, err, &layoutErr)
	assert.Equal(t, "BondingCurve", layoutErr.Account)
	assert.Equal(t, bondingCurveLen, layoutErr.Want)
	assert.Equal(t, 48, layoutErr.Got)
}

func TestGlobalUnmarshal(t *testing.T) {
	feeRecipient := solana.NewWallet().PublicKey()
	data := make([]byte, globalLen)
	data[8] = 1
	copy(data[41:73], feeRecipient.Bytes())
	binary.LittleEndian.PutUint64(data[73:81], 1_073_000_000_000_000)
	binary.LittleEndian.PutUint64(data[81:89], 30_000_000_000)
	binary.LittleEndian.PutUint64(data[105:113], 100)

	var g Global
	require.NoError(t, g.Unmarshal(data))
	assert.True(t, g.Initialized)
	assert.Equal(t, feeRecipient, g.FeeRecipient)
	assert.Equal(t, uint64(30_000_000_000), g.InitialVirtualSolReserves)
	assert.Equal(t, uint64(100), g.FeeBasisPoints)
}

func TestTokenAccountAmount(t *testing.T) {
	data := make([]byte, 165)
	binary.LittleEndian.PutUint64(data[64:72], 5_000_000)

	amt, err := TokenAccountAmount(data)
	require.NoError(t, err)
	assert.Equal(t, uint64(5_000_000), amt)

	_, err = TokenAccountAmount(make([]byte, 10))
	var layoutErr types.AccountLayoutError
	assert.ErrorAs(t, err, &layoutErr)
}
