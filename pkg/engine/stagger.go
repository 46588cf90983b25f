package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/kato0x/pump-bundler/pkg/constants"
	"github.com/kato0x/pump-bundler/pkg/curve"
	"github.com/kato0x/pump-bundler/pkg/txbuilder"
	"github.com/kato0x/pump-bundler/pkg/types"
	"github.com/kato0x/pump-bundler/pkg/wallet"
)

// StaggerRequest describes sequential buys with randomized delays, trading
// atomicity for a spread-out, organic-looking fill pattern.
type StaggerRequest struct {
	Mint         solana.PublicKey
	Wallets      []wallet.Local
	SolPerWallet uint64
	DelayMin     time.Duration
	DelayMax     time.Duration
	Policy       Policy
}

// StaggerBuy sends one buy per wallet over plain RPC, waiting for
// confirmation and a randomized delay between sends. The curve is re-read
// before every buy, so each quote reflects all prior fills, including
// other traders landing in between.
func (e *Engine) StaggerBuy(ctx context.Context, req StaggerRequest) (Report, error) {
	report := Report{Mint: req.Mint}

	if err := types.ValidatePublicKey("mint", req.Mint); err != nil {
		return report, err
	}
	if len(req.Wallets) == 0 {
		return report, types.ErrNoWallets
	}
	if err := types.ValidateAmount("solPerWallet", req.SolPerWallet); err != nil {
		return report, err
	}
	if req.DelayMax < req.DelayMin {
		return report, types.NewValidationError("delay", "max delay below min delay")
	}

	for i, w := range req.Wallets {
		if i > 0 {
			if err := sleepJittered(ctx, req.DelayMin, req.DelayMax); err != nil {
				return report, err
			}
		}
		result := e.staggerOne(ctx, req, w)
		report.Wallets = append(report.Wallets, result)
		e.log.Info().
			Str("wallet", result.Wallet.String()).
			Str("status", string(result.Status)).
			Int("remaining", len(req.Wallets)-i-1).
			Msg("stagger step done")
	}
	return report, nil
}

// staggerOne runs the full read-quote-buy-confirm cycle for one wallet.
func (e *Engine) staggerOne(ctx context.Context, req StaggerRequest, w wallet.Local) WalletResult {
	pk := w.PublicKey()

	cs, err := e.readCurve(ctx, req.Mint)
	if err != nil {
		return WalletResult{Wallet: pk, Status: StatusFailed, Reason: err.Error()}
	}
	if cs.State.Complete {
		return WalletResult{Wallet: pk, Status: StatusSkipped, Reason: "curve graduated"}
	}

	schedule := e.feeSchedule()
	fee := schedule.Fee(req.SolPerWallet)
	need := req.SolPerWallet + fee + constants.TokenAccountRent + networkFeeMargin
	balance, err := e.chain.GetBalance(ctx, pk)
	if err != nil {
		return WalletResult{Wallet: pk, Status: StatusFailed, Reason: fmt.Sprintf("getBalance: %v", err)}
	}
	if balance < need {
		return WalletResult{
			Wallet: pk,
			Status: StatusSkipped,
			Reason: fmt.Sprintf("insufficient balance: have %d, need %d", balance, need),
		}
	}

	q, err := curve.QuoteBuy(buyReserves(cs.State), req.SolPerWallet, schedule)
	if err != nil {
		return WalletResult{Wallet: pk, Status: StatusSkipped, Reason: fmt.Sprintf("quote: %v", err)}
	}

	group, err := e.buyGroup(req.Mint, w, cs, q, req.SolPerWallet)
	if err != nil {
		return WalletResult{Wallet: pk, Status: StatusFailed, Reason: fmt.Sprintf("build: %v", err)}
	}

	// Every wallet pays its own service fee; there is no bundle to
	// aggregate into.
	ixs := txbuilder.ComputeBudgetIxs(req.Policy.ComputeUnitLimit, req.Policy.ComputeUnitPrice)
	ixs = append(ixs, system.NewTransferInstruction(fee, pk, e.fees.CollectionWallet).Build())
	ixs = append(ixs, group.Instructions...)

	tx, err := e.builder.BuildTransaction(ctx, pk, ixs...)
	if err != nil {
		return WalletResult{Wallet: pk, Status: StatusFailed, Reason: err.Error()}
	}
	if err := txbuilder.SignTransaction(ctx, tx, w); err != nil {
		return WalletResult{Wallet: pk, Status: StatusFailed, Reason: err.Error()}
	}
	sig, err := e.builder.Send(ctx, tx)
	if err != nil {
		return WalletResult{Wallet: pk, Status: StatusFailed, Reason: err.Error()}
	}

	result := WalletResult{
		Wallet:    pk,
		Status:    StatusSubmitted,
		Signature: sig,
		TokensOut: q.AmountOut,
		SolAmount: req.SolPerWallet,
	}

	waitCtx, cancel := context.WithTimeout(ctx, req.Policy.LandingTimeout)
	err = e.builder.WaitForConfirmation(waitCtx, sig, txbuilder.ConfirmationConfirmed)
	cancel()
	switch {
	case err == nil:
		result.Status = StatusConfirmed
	case errors.Is(err, types.ErrConfirmationTimeout):
		result.Status = StatusUnconfirmed
		result.Reason = err.Error()
	default:
		result.Status = StatusFailed
		result.Reason = err.Error()
	}
	return result
}

// sleepJittered blocks for a uniform random duration in [min, max],
// honoring context cancellation.
func sleepJittered(ctx context.Context, min, max time.Duration) error {
	delay := min
	if span := max - min; span > 0 {
		delay += time.Duration(rand.Int63n(int64(span)))
	}
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
