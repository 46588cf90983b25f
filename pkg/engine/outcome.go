package engine

import (
	"github.com/gagliardetto/solana-go"

	"github.com/kato0x/pump-bundler/pkg/jito"
)

// Status is the terminal state of one wallet's participation.
type Status string

const (
	// StatusSubmitted means a relay accepted the bundle carrying this
	// wallet; on-chain landing was not awaited.
	StatusSubmitted Status = "submitted"
	// StatusConfirmed means the transaction or bundle landed on-chain.
	StatusConfirmed Status = "confirmed"
	// StatusSkipped means preflight excluded the wallet before signing.
	StatusSkipped Status = "skipped"
	// StatusFailed means building, signing, submission, or execution
	// failed for this wallet.
	StatusFailed Status = "failed"
	// StatusUnconfirmed means submission succeeded but confirmation was
	// not observed before timeout; the outcome is unknown.
	StatusUnconfirmed Status = "unconfirmed"
)

// WalletResult is one participant's outcome.
type WalletResult struct {
	Wallet    solana.PublicKey
	Status    Status
	Reason    string
	Signature solana.Signature
	// TokensOut is the expected token fill on buys, before slippage.
	TokensOut uint64
	// SolAmount is lamports spent on buys, or expected proceeds on sells.
	SolAmount uint64
}

// BundleResult records relay acceptance for one bundle.
type BundleResult struct {
	Endpoints []jito.SubmitResult
	TxCount   int
	Landed    bool
}

// Report is the consolidated result of one flow. Partial success is the
// expected shape: some wallets included, some skipped, each with a reason.
type Report struct {
	Mint    solana.PublicKey
	Bundle  *BundleResult
	Wallets []WalletResult
}

// Included counts wallets that made it into a submission.
func (r Report) Included() int {
	n := 0
	for _, w := range r.Wallets {
		switch w.Status {
		case StatusSubmitted, StatusConfirmed, StatusUnconfirmed:
			n++
		}
	}
	return n
}

// Skipped counts wallets excluded at preflight.
func (r Report) Skipped() int {
	n := 0
	for _, w := range r.Wallets {
		if w.Status == StatusSkipped {
			n++
		}
	}
	return n
}

// Failed counts wallets with build, submit, or execution failures.
func (r Report) Failed() int {
	n := 0
	for _, w := range r.Wallets {
		if w.Status == StatusFailed {
			n++
		}
	}
	return n
}

// ExplorerTxURL returns a solscan link for a signature.
func ExplorerTxURL(sig solana.Signature) string {
	return "https://solscan.io/tx/" + sig.String()
}

// CoinURL returns the pump.fun page for a mint.
func CoinURL(mint solana.PublicKey) string {
	return "https://pump.fun/coin/" + mint.String()
}
