package pumpamm

import (
	"encoding/binary"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kato0x/pump-bundler/pkg/types"
)

func TestPoolUnmarshal(t *testing.T) {
	creator := solana.NewWallet().PublicKey()
	baseMint := solana.NewWallet().PublicKey()
	coinCreator := solana.NewWallet().PublicKey()

	data := make([]byte, poolLen)
	data[8] = 254
	binary.LittleEndian.PutUint16(data[9:11], 3)
	copy(data[11:43], creator.Bytes())
	copy(data[43:75], baseMint.Bytes())
	copy(data[75:107], solana.WrappedSol.Bytes())
	binary.LittleEndian.PutUint64(data[203:211], 12_345)
	copy(data[211:243], coinCreator.Bytes())

	var p Pool
	require.NoError(t, p.Unmarshal(data))
	assert.Equal(t, uint8(254), p.PoolBump)
	assert.Equal(t, uint16(3), p.Index)
	assert.Equal(t, creator, p.Creator)
	assert.Equal(t, baseMint, p.BaseMint)
	assert.Equal(t, solana.WrappedSol, p.QuoteMint)
	assert.Equal(t, uint64(12_345), p.LpSupply)
	assert.Equal(t, coinCreator, p.CoinCreator)
}

func TestPoolUnmarshalShortData(t *testing.T) {
	var p Pool
	err := p.Unmarshal(make([]byte, 200))

	var layoutErr types.AccountLayoutError
	require.ErrorAs(t, err, &layoutErr)
	assert.Equal(t, "Pool", layoutErr.Account)
	assert.Equal(t, poolLen, layoutErr.Want)
}

func TestBuildSellLayout(t *testing.T) {
	accts := SellAccounts{
		Pool:    solana.NewWallet().PublicKey(),
		User:    solana.NewWallet().PublicKey(),
		Program: ProgramKey,
	}
	args := SellArgs{BaseAmountIn: 1_000_000, MinQuoteAmountOut: 700}

	ix, err := BuildSell(accts, args)
	require.NoError(t, err)

	assert.Equal(t, ProgramKey, ix.ProgramID())

	data, err := ix.Data()
	require.NoError(t, err)
	require.Len(t, data, 24)
	assert.Equal(t, []byte{51, 230, 133, 164, 1, 127, 131, 173}, data[:8])
	assert.Equal(t, args.BaseAmountIn, binary.LittleEndian.Uint64(data[8:16]))
	assert.Equal(t, args.MinQuoteAmountOut, binary.LittleEndian.Uint64(data[16:24]))

	metas := ix.Accounts()
	require.Len(t, metas, 19)
	assert.True(t, metas[1].IsSigner, "user signs")
	assert.True(t, metas[1].IsWritable)
	assert.True(t, metas[17].IsWritable, "creator vault ata is writable")
	assert.False(t, metas[18].IsWritable, "vault authority is read-only")
}

func TestDeriveCreatorVaultAuthorityDeterministic(t *testing.T) {
	coinCreator := solana.NewWallet().PublicKey()

	a, err := DeriveCreatorVaultAuthority(coinCreator)
	require.NoError(t, err)
	b, err := DeriveCreatorVaultAuthority(coinCreator)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.False(t, a.IsZero())
}
