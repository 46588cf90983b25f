package engine

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kato0x/pump-bundler/pkg/config"
	"github.com/kato0x/pump-bundler/pkg/constants"
	"github.com/kato0x/pump-bundler/pkg/jito"
	"github.com/kato0x/pump-bundler/pkg/program/pump"
	"github.com/kato0x/pump-bundler/pkg/txbuilder"
	"github.com/kato0x/pump-bundler/pkg/types"
	"github.com/kato0x/pump-bundler/pkg/wallet"
)

// fakeChain backs both the engine's reads and the builder's blockhash and
// send paths.
type fakeChain struct {
	accounts      map[string]*solanarpc.Account
	tokenBalances map[string]uint64

	blockhashCalls int
	// failBlockhashAfter, when positive, fails every blockhash fetch after
	// that many successful calls.
	failBlockhashAfter int
	sent               []*solana.Transaction
	statuses           []*solanarpc.SignatureStatusesResult
}

func (f *fakeChain) GetAccountInfo(ctx context.Context, addr solana.PublicKey) (*solanarpc.Account, error) {
	return f.accounts[addr.String()], nil
}

func (f *fakeChain) GetMultipleAccounts(ctx context.Context, addrs ...solana.PublicKey) (map[string]*solanarpc.Account, error) {
	out := make(map[string]*solanarpc.Account, len(addrs))
	for _, addr := range addrs {
		out[addr.String()] = f.accounts[addr.String()]
	}
	return out, nil
}

func (f *fakeChain) GetBalance(ctx context.Context, addr solana.PublicKey) (uint64, error) {
	if acc := f.accounts[addr.String()]; acc != nil {
		return acc.Lamports, nil
	}
	return 0, nil
}

func (f *fakeChain) GetTokenAccountBalance(ctx context.Context, ata solana.PublicKey) (uint64, error) {
	balance, ok := f.tokenBalances[ata.String()]
	if !ok {
		return 0, errors.New("could not find account")
	}
	return balance, nil
}

func (f *fakeChain) GetLatestBlockhash(ctx context.Context) (*solanarpc.GetLatestBlockhashResult, error) {
	f.blockhashCalls++
	if f.failBlockhashAfter > 0 && f.blockhashCalls > f.failBlockhashAfter {
		return nil, errors.New("blockhash unavailable")
	}
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

type fakeRelay struct {
	bundles [][]*solana.Transaction
	err     error
}

func (f *fakeRelay) Submit(ctx context.Context, txs []*solana.Transaction) ([]jito.SubmitResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bundles = append(f.bundles, txs)
	return []jito.SubmitResult{{Endpoint: "https://relay.test", BundleID: "bundle-1"}}, nil
}

func (f *fakeRelay) WaitForLanding(ctx context.Context, bundleID string, timeout time.Duration) error {
	return nil
}

func curveAccountData(vtr, vsr uint64, creator solana.PublicKey, complete bool) []byte {
	data := make([]byte, 81)
	binary.LittleEndian.PutUint64(data[8:16], vtr)
	binary.LittleEndian.PutUint64(data[16:24], vsr)
	binary.LittleEndian.PutUint64(data[24:32], vtr/2)
	binary.LittleEndian.PutUint64(data[32:40], vsr/2)
	binary.LittleEndian.PutUint64(data[40:48], 1_000_000_000_000_000)
	if complete {
		data[48] = 1
	}
	copy(data[49:81], creator.Bytes())
	return data
}

type testEnv struct {
	chain   *fakeChain
	relay   *fakeRelay
	engine  *Engine
	mint    solana.PublicKey
	creator solana.PublicKey
}

func newTestEnv(t *testing.T, complete bool) *testEnv {
	t.Helper()
	chain := &fakeChain{
		accounts:      map[string]*solanarpc.Account{},
		tokenBalances: map[string]uint64{},
	}
	relay := &fakeRelay{}

	mint := solana.NewWallet().PublicKey()
	creator := solana.NewWallet().PublicKey()
	bc, err := pump.DeriveBondingCurve(mint)
	require.NoError(t, err)
	chain.accounts[bc.String()] = &solanarpc.Account{
		Owner: constants.PumpProgramID,
		Data: solanarpc.DataBytesOrJSONFromBytes(
			curveAccountData(1_073_000_000_000_000, 30_000_000_000, creator, complete),
		),
	}

	return &testEnv{
		chain:   chain,
		relay:   relay,
		engine:  New(chain, txbuilder.NewBuilder(chain), relay),
		mint:    mint,
		creator: creator,
	}
}

func (env *testEnv) fundWallet(t *testing.T, lamports uint64) wallet.Local {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	w := wallet.NewLocalFromPrivateKey(key)
	env.chain.accounts[w.PublicKey().String()] = &solanarpc.Account{Lamports: lamports}
	return w
}

func (env *testEnv) setTokenBalance(t *testing.T, owner solana.PublicKey, amount uint64) {
	t.Helper()
	ata, err := pump.FindAssociatedTokenAccount(owner, env.mint, constants.TokenProgramID)
	require.NoError(t, err)
	env.chain.tokenBalances[ata.String()] = amount
}

func TestBundleBuySkipsUnderfunded(t *testing.T) {
	env := newTestEnv(t, false)
	funded1 := env.fundWallet(t, 2_000_000_000)
	funded2 := env.fundWallet(t, 2_000_000_000)
	poor := env.fundWallet(t, 500_000_000)

	report, err := env.engine.BundleBuy(context.Background(), BuyRequest{
		Mint:         env.mint,
		Wallets:      []wallet.Local{funded1, poor, funded2},
		SolPerWallet: 1_000_000_000,
		Policy:       DefaultPolicy(),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Included())
	assert.Equal(t, 1, report.Skipped())
	for _, wr := range report.Wallets {
		if wr.Wallet.Equals(poor.PublicKey()) {
			assert.Equal(t, StatusSkipped, wr.Status)
			assert.Contains(t, wr.Reason, "insufficient balance")
		}
	}

	require.Len(t, env.relay.bundles, 1)
	txs := env.relay.bundles[0]
	require.Len(t, txs, 1, "two groups fit one transaction")

	// Compute budget, tip, fee transfer, then ATA+buy per wallet.
	assert.Len(t, txs[0].Message.Instructions, 7)
	assert.Equal(t, uint8(2), txs[0].Message.Header.NumRequiredSignatures)
}

func TestBundleBuyRunningReserves(t *testing.T) {
	env := newTestEnv(t, false)
	wallets := make([]wallet.Local, 3)
	for i := range wallets {
		wallets[i] = env.fundWallet(t, 10_000_000_000)
	}

	report, err := env.engine.BundleBuy(context.Background(), BuyRequest{
		Mint:         env.mint,
		Wallets:      wallets,
		SolPerWallet: 1_000_000_000,
		Policy:       DefaultPolicy(),
	})
	require.NoError(t, err)
	require.Equal(t, 3, report.Included())

	// Identical spends fill less and less as earlier buys move the curve.
	var fills []uint64
	for _, wr := range report.Wallets {
		fills = append(fills, wr.TokensOut)
	}
	require.Len(t, fills, 3)
	assert.Greater(t, fills[0], fills[1])
	assert.Greater(t, fills[1], fills[2])
}

func TestBundleBuyGraduatedCurve(t *testing.T) {
	env := newTestEnv(t, true)
	w := env.fundWallet(t, 2_000_000_000)

	_, err := env.engine.BundleBuy(context.Background(), BuyRequest{
		Mint:         env.mint,
		Wallets:      []wallet.Local{w},
		SolPerWallet: 1_000_000_000,
		Policy:       DefaultPolicy(),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "graduated")
}

func TestBundleBuyTooManyWallets(t *testing.T) {
	env := newTestEnv(t, false)
	wallets := make([]wallet.Local, 21)
	for i := range wallets {
		wallets[i] = env.fundWallet(t, 2_000_000_000)
	}

	_, err := env.engine.BundleBuy(context.Background(), BuyRequest{
		Mint:         env.mint,
		Wallets:      wallets,
		SolPerWallet: 1_000_000_000,
		Policy:       DefaultPolicy(),
	})
	var verr types.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "wallets", verr.Field)
}

func TestDevDump(t *testing.T) {
	env := newTestEnv(t, false)
	dev := env.fundWallet(t, 5_000_000_000)
	holder := env.fundWallet(t, 1_000_000_000)
	empty := env.fundWallet(t, 1_000_000_000)

	env.setTokenBalance(t, dev.PublicKey(), 1_000_000)
	env.setTokenBalance(t, holder.PublicKey(), 500_000)

	report, err := env.engine.DevDump(context.Background(), DumpRequest{
		Mint:    env.mint,
		Dev:     dev,
		Wallets: []wallet.Local{holder, empty},
		Percent: 50,
		Policy:  DefaultPolicy(),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Skipped())
	require.Len(t, env.relay.bundles, 1)

	// Dev result carries the consolidated sell amount: half of dev's
	// holdings plus half of the holder's.
	devResult := report.Wallets[len(report.Wallets)-1]
	assert.True(t, devResult.Wallet.Equals(dev.PublicKey()))
	assert.Equal(t, uint64(750_000), devResult.TokensOut)
	assert.NotZero(t, devResult.SolAmount)
}

func TestDevDumpNothingToSell(t *testing.T) {
	env := newTestEnv(t, false)
	dev := env.fundWallet(t, 5_000_000_000)
	empty := env.fundWallet(t, 1_000_000_000)

	_, err := env.engine.DevDump(context.Background(), DumpRequest{
		Mint:    env.mint,
		Dev:     dev,
		Wallets: []wallet.Local{empty},
		Percent: 100,
		Policy:  DefaultPolicy(),
	})
	assert.ErrorIs(t, err, types.ErrZeroAmount)
}

func TestDevDumpQuoteFailureMarksWalletsFailed(t *testing.T) {
	env := newTestEnv(t, false)
	dev := env.fundWallet(t, 5_000_000_000)
	holder := env.fundWallet(t, 1_000_000_000)

	// A dust holding quotes to zero proceeds, so the fee floor makes the
	// consolidated sell unquotable before anything is submitted.
	env.setTokenBalance(t, holder.PublicKey(), 10)

	report, err := env.engine.DevDump(context.Background(), DumpRequest{
		Mint:    env.mint,
		Dev:     dev,
		Wallets: []wallet.Local{holder},
		Percent: 100,
		Policy:  DefaultPolicy(),
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrFeeExceedsAmount)
	assert.Empty(t, env.relay.bundles, "nothing reaches the relay")

	// The holder was only planned; the report must not claim its transfer
	// went out.
	require.Len(t, report.Wallets, 1)
	assert.True(t, report.Wallets[0].Wallet.Equals(holder.PublicKey()))
	assert.Equal(t, StatusFailed, report.Wallets[0].Status)
	assert.Contains(t, report.Wallets[0].Reason, "quote")
}

func TestLaunchBundleShape(t *testing.T) {
	env := newTestEnv(t, false)
	dev := env.fundWallet(t, 10_000_000_000)
	wallets := make([]wallet.Local, 5)
	for i := range wallets {
		wallets[i] = env.fundWallet(t, 2_000_000_000)
	}

	report, err := env.engine.Launch(context.Background(), LaunchRequest{
		Name:         "Test Token",
		Symbol:       "TEST",
		URI:          "https://example.com/meta.json",
		Dev:          dev,
		Wallets:      wallets,
		DevBuy:       500_000_000,
		SolPerWallet: 1_000_000_000,
		Policy:       DefaultPolicy(),
	})
	require.NoError(t, err)

	assert.False(t, report.Mint.IsZero(), "a mint keypair is generated when none is supplied")

	// One create transaction plus ceil(5/4) buy transactions.
	require.Len(t, env.relay.bundles, 1)
	assert.Len(t, env.relay.bundles[0], 3)

	// Dev first, then snipers in order, sniper fills decreasing along the
	// curve.
	require.Len(t, report.Wallets, 6)
	assert.True(t, report.Wallets[0].Wallet.Equals(dev.PublicKey()))
	for i := 2; i < len(report.Wallets); i++ {
		assert.Less(t, report.Wallets[i].TokensOut, report.Wallets[i-1].TokensOut)
	}

	// The create transaction is signed by dev and the mint keypair.
	createTx := env.relay.bundles[0][0]
	assert.Equal(t, uint8(2), createTx.Message.Header.NumRequiredSignatures)
}

func TestLaunchRejectsOversizedBundle(t *testing.T) {
	env := newTestEnv(t, false)
	dev := env.fundWallet(t, 10_000_000_000)
	wallets := make([]wallet.Local, 17)
	for i := range wallets {
		wallets[i] = env.fundWallet(t, 2_000_000_000)
	}

	_, err := env.engine.Launch(context.Background(), LaunchRequest{
		Name:         "Test Token",
		Symbol:       "TEST",
		URI:          "https://example.com/meta.json",
		Dev:          dev,
		Wallets:      wallets,
		SolPerWallet: 1_000_000_000,
		Policy:       DefaultPolicy(),
	})
	var verr types.ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestLaunchBuildFailureReportsSnipers(t *testing.T) {
	env := newTestEnv(t, false)
	dev := env.fundWallet(t, 10_000_000_000)
	w1 := env.fundWallet(t, 2_000_000_000)
	w2 := env.fundWallet(t, 2_000_000_000)

	// First blockhash fetch builds the create transaction; the second, for
	// the sniper chunk, fails.
	env.chain.failBlockhashAfter = 1

	report, err := env.engine.Launch(context.Background(), LaunchRequest{
		Name:         "Test Token",
		Symbol:       "TEST",
		URI:          "https://example.com/meta.json",
		Dev:          dev,
		Wallets:      []wallet.Local{w1, w2},
		SolPerWallet: 1_000_000_000,
		Policy:       DefaultPolicy(),
	})
	require.Error(t, err)
	assert.Empty(t, env.relay.bundles)

	// Every planned sniper still appears in the report, as failed.
	require.Len(t, report.Wallets, 2)
	want := map[string]bool{w1.PublicKey().String(): true, w2.PublicKey().String(): true}
	for _, wr := range report.Wallets {
		assert.True(t, want[wr.Wallet.String()])
		assert.Equal(t, StatusFailed, wr.Status)
		assert.Contains(t, wr.Reason, "build")
	}
}

func TestLaunchZeroDevBuyChargesFlatFeeOnly(t *testing.T) {
	env := newTestEnv(t, false)
	dev := env.fundWallet(t, 10_000_000_000)

	_, err := env.engine.Launch(context.Background(), LaunchRequest{
		Name:   "Test Token",
		Symbol: "TEST",
		URI:    "https://example.com/meta.json",
		Dev:    dev,
		Policy: DefaultPolicy(),
	})
	require.NoError(t, err)
	require.Len(t, env.relay.bundles, 1)

	// Compute budget, tip, fee transfer, create.
	createTx := env.relay.bundles[0][0]
	require.Len(t, createTx.Message.Instructions, 4)
	feeIx := createTx.Message.Instructions[2]
	program, err := createTx.Message.Program(feeIx.ProgramIDIndex)
	require.NoError(t, err)
	assert.True(t, program.Equals(constants.SystemProgramID))

	// System transfer layout: u32 discriminator, then u64 lamports. With no
	// dev buy there is no curve fee, only the flat create fee.
	data := []byte(feeIx.Data)
	require.Len(t, data, 12)
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(data[0:4]))
	assert.Equal(t, config.DefaultFeePolicy().FlatFeeLamports, binary.LittleEndian.Uint64(data[4:12]))
}

func TestStaggerBuy(t *testing.T) {
	env := newTestEnv(t, false)
	env.chain.statuses = []*solanarpc.SignatureStatusesResult{
		{ConfirmationStatus: solanarpc.ConfirmationStatusConfirmed},
	}
	w1 := env.fundWallet(t, 2_000_000_000)
	w2 := env.fundWallet(t, 2_000_000_000)

	report, err := env.engine.StaggerBuy(context.Background(), StaggerRequest{
		Mint:         env.mint,
		Wallets:      []wallet.Local{w1, w2},
		SolPerWallet: 1_000_000_000,
		DelayMin:     time.Millisecond,
		DelayMax:     2 * time.Millisecond,
		Policy:       DefaultPolicy(),
	})
	require.NoError(t, err)

	require.Len(t, env.chain.sent, 2, "one transaction per wallet")
	for _, wr := range report.Wallets {
		assert.Equal(t, StatusConfirmed, wr.Status)
		assert.False(t, wr.Signature.IsZero())
	}

	// Compute budget, fee transfer, ATA, buy.
	assert.Len(t, env.chain.sent[0].Message.Instructions, 4)
}

func TestStaggerBuyDelayValidation(t *testing.T) {
	env := newTestEnv(t, false)
	w := env.fundWallet(t, 2_000_000_000)

	_, err := env.engine.StaggerBuy(context.Background(), StaggerRequest{
		Mint:         env.mint,
		Wallets:      []wallet.Local{w},
		SolPerWallet: 1_000_000_000,
		DelayMin:     2 * time.Second,
		DelayMax:     time.Second,
		Policy:       DefaultPolicy(),
	})
	var verr types.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "delay", verr.Field)
}
