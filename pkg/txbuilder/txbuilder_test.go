package txbuilder

import (
	"context"
	"encoding/binary"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kato0x/pump-bundler/pkg/types"
	"github.com/kato0x/pump-bundler/pkg/wallet"
)

type fakeChain struct {
	blockhashCalls int
	statuses       []*solanarpc.SignatureStatusesResult
	sent           []*solana.Transaction
}

func (f *fakeChain) GetLatestBlockhash(ctx context.Context) (*solanarpc.GetLatestBlockhashResult, error) {
	f.blockhashCalls++
	var h solana.Hash
	h[0] = byte(f.blockhashCalls)
	return &solanarpc.GetLatestBlockhashResult{
		Value: &solanarpc.LatestBlockhashResult{Blockhash: h, LastValidBlockHeight: 100},
	}, nil
}

func (f *fakeChain) SendTransaction(ctx context.Context, tx *solana.Transaction, opts solanarpc.TransactionOpts) (solana.Signature, error) {
	f.sent = append(f.sent, tx)
	if len(tx.Signatures) > 0 {
		return tx.Signatures[0], nil
	}
	return solana.Signature{}, nil
}

func (f *fakeChain) GetSignatureStatuses(ctx context.Context, sigs ...solana.Signature) (*solanarpc.GetSignatureStatusesResult, error) {
	return &solanarpc.GetSignatureStatusesResult{Value: f.statuses}, nil
}

func newWallet(t *testing.T) wallet.Local {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return wallet.NewLocalFromPrivateKey(key)
}

func transferGroup(w wallet.Local) Group {
	ix := system.NewTransferInstruction(1_000, w.PublicKey(), solana.NewWallet().PublicKey()).Build()
	return Group{Instructions: []solana.Instruction{ix}, Signers: []wallet.Signer{w}}
}

func TestChunk(t *testing.T) {
	groups := make([]Group, 10)

	chunks := Chunk(groups, 4)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 4)
	assert.Len(t, chunks[1], 4)
	assert.Len(t, chunks[2], 2)

	// Zero size falls back to the default.
	assert.Len(t, Chunk(groups, 0), 3)

	assert.Empty(t, Chunk(nil, 4))
}

func TestBuildBundle(t *testing.T) {
	chain := &fakeChain{}
	b := NewBuilder(chain)
	payer := newWallet(t)

	groups := make([]Group, 5)
	wallets := make([]wallet.Local, 5)
	for i := range groups {
		wallets[i] = newWallet(t)
		groups[i] = transferGroup(wallets[i])
	}

	tipIx := system.NewTransferInstruction(10_000, payer.PublicKey(), solana.NewWallet().PublicKey()).Build()
	plan := Plan{
		FeePayer:  payer,
		Prologue:  ComputeBudgetIxs(200_000, 0),
		FirstOnly: []solana.Instruction{tipIx},
		Groups:    groups,
		ChunkSize: 2,
	}

	txs, err := b.BuildBundle(context.Background(), plan)
	require.NoError(t, err)
	require.Len(t, txs, 3, "ceil(5/2) transactions")

	// Every chunk fetched its own blockhash.
	assert.Equal(t, 3, chain.blockhashCalls)
	assert.NotEqual(t, txs[0].Message.RecentBlockhash, txs[1].Message.RecentBlockhash)

	// Prologue in every tx, tip only in the first: first tx has
	// prologue + tip + 2 transfers, the rest have prologue + transfers.
	assert.Len(t, txs[0].Message.Instructions, 4)
	assert.Len(t, txs[1].Message.Instructions, 3)
	assert.Len(t, txs[2].Message.Instructions, 2)

	// Minimal signer subsets: payer plus the chunk's wallets.
	assert.Equal(t, uint8(3), txs[0].Message.Header.NumRequiredSignatures)
	assert.Equal(t, uint8(2), txs[2].Message.Header.NumRequiredSignatures)

	// Signatures verify against the message for every transaction.
	for _, tx := range txs {
		msg, err := tx.Message.MarshalBinary()
		require.NoError(t, err)
		require.Len(t, tx.Signatures, int(tx.Message.Header.NumRequiredSignatures))
		for i, sig := range tx.Signatures {
			assert.True(t, tx.Message.AccountKeys[i].Verify(msg, sig))
		}
	}
}

func TestBuildBundleValidation(t *testing.T) {
	b := NewBuilder(&fakeChain{})

	_, err := b.BuildBundle(context.Background(), Plan{Groups: []Group{{}}})
	assert.ErrorIs(t, err, types.ErrNilSigner)

	_, err = b.BuildBundle(context.Background(), Plan{FeePayer: newWallet(t)})
	assert.ErrorIs(t, err, types.ErrNoInstructions)
}

func TestSignTransactionMissingSignerLeavesNoPartialSigs(t *testing.T) {
	chain := &fakeChain{}
	b := NewBuilder(chain)
	payer := newWallet(t)
	other := newWallet(t)

	ix := system.NewTransferInstruction(1, other.PublicKey(), payer.PublicKey()).Build()
	tx, err := b.BuildTransaction(context.Background(), payer.PublicKey(), ix)
	require.NoError(t, err)

	// The other wallet must sign but is not provided.
	err = SignTransaction(context.Background(), tx, payer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing signer")
	assert.Empty(t, tx.Signatures, "failed signing must not attach partial signatures")
}

func TestWaitForConfirmation(t *testing.T) {
	sig := solana.Signature{1}

	t.Run("confirmed", func(t *testing.T) {
		chain := &fakeChain{statuses: []*solanarpc.SignatureStatusesResult{
			{ConfirmationStatus: solanarpc.ConfirmationStatusConfirmed},
		}}
		err := NewBuilder(chain).WaitForConfirmation(context.Background(), sig, ConfirmationConfirmed)
		assert.NoError(t, err)
	})

	t.Run("on-chain failure", func(t *testing.T) {
		chain := &fakeChain{statuses: []*solanarpc.SignatureStatusesResult{
			{Err: map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}},
		}}
		err := NewBuilder(chain).WaitForConfirmation(context.Background(), sig, ConfirmationConfirmed)
		assert.ErrorIs(t, err, types.ErrTransactionFailed)
	})

	t.Run("timeout is unconfirmed, not failed", func(t *testing.T) {
		chain := &fakeChain{statuses: []*solanarpc.SignatureStatusesResult{nil}}
		ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		defer cancel()
		err := NewBuilder(chain).WaitForConfirmation(ctx, sig, ConfirmationConfirmed)
		assert.ErrorIs(t, err, types.ErrConfirmationTimeout)
	})
}

func TestComputeBudgetIxs(t *testing.T) {
	ixs := ComputeBudgetIxs(1_400_000, 5_000)
	require.Len(t, ixs, 2)

	limitData, err := ixs[0].Data()
	require.NoError(t, err)
	require.Len(t, limitData, 5)
	assert.Equal(t, byte(2), limitData[0])
	assert.Equal(t, uint32(1_400_000), binary.LittleEndian.Uint32(limitData[1:5]))

	priceData, err := ixs[1].Data()
	require.NoError(t, err)
	require.Len(t, priceData, 9)
	assert.Equal(t, byte(3), priceData[0])
	assert.Equal(t, uint64(5_000), binary.LittleEndian.Uint64(priceData[1:9]))

	// Without a price only the limit directive is emitted.
	assert.Len(t, ComputeBudgetIxs(200_000, 0), 1)
}
