package engine

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/kato0x/pump-bundler/pkg/constants"
	"github.com/kato0x/pump-bundler/pkg/curve"
	"github.com/kato0x/pump-bundler/pkg/jito"
	"github.com/kato0x/pump-bundler/pkg/program/pump"
	"github.com/kato0x/pump-bundler/pkg/txbuilder"
	"github.com/kato0x/pump-bundler/pkg/types"
	"github.com/kato0x/pump-bundler/pkg/wallet"
)

// BuyRequest describes a multi-wallet bundled buy.
type BuyRequest struct {
	Mint         solana.PublicKey
	Wallets      []wallet.Local
	SolPerWallet uint64
	Policy       Policy
}

// buyPlanEntry pairs an included wallet with its computed amounts.
type buyPlanEntry struct {
	wallet  wallet.Local
	group   txbuilder.Group
	fee     uint64
	spend   uint64
	balance uint64
	tokens  uint64
}

// BundleBuy buys the same SOL amount from every funded wallet in one
// atomic bundle. Underfunded wallets are skipped with a reason; the run
// proceeds with whoever qualifies.
func (e *Engine) BundleBuy(ctx context.Context, req BuyRequest) (Report, error) {
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
	if maxWallets := req.Policy.ChunkSize * txbuilder.MaxTxsPerBundle; len(req.Wallets) > maxWallets {
		return report, types.NewValidationError("wallets",
			fmt.Sprintf("at most %d wallets fit one bundle", maxWallets))
	}

	cs, err := e.readCurve(ctx, req.Mint)
	if err != nil {
		return report, err
	}
	if cs.State.Complete {
		return report, fmt.Errorf("curve for %s has graduated; trade on the AMM pool instead", req.Mint)
	}

	balances, err := e.walletBalances(ctx, req.Wallets)
	if err != nil {
		return report, err
	}

	schedule := e.feeSchedule()
	reserves := buyReserves(cs.State)
	var included []buyPlanEntry

	for _, w := range req.Wallets {
		pk := w.PublicKey()
		balance := balances[pk.String()]
		fee := schedule.Fee(req.SolPerWallet)
		need := req.SolPerWallet + fee + constants.TokenAccountRent + networkFeeMargin

		if balance < need {
			report.Wallets = append(report.Wallets, WalletResult{
				Wallet: pk,
				Status: StatusSkipped,
				Reason: fmt.Sprintf("insufficient balance: have %d, need %d", balance, need),
			})
			e.log.Warn().Str("wallet", pk.String()).Uint64("balance", balance).Uint64("need", need).Msg("wallet skipped")
			continue
		}

		// Each buy perturbs the curve; later wallets quote against the
		// reserves as the earlier buys in the same bundle leave them.
		q, err := curve.QuoteBuy(reserves, req.SolPerWallet, schedule)
		if err != nil {
			report.Wallets = append(report.Wallets, WalletResult{
				Wallet: pk,
				Status: StatusSkipped,
				Reason: fmt.Sprintf("quote: %v", err),
			})
			continue
		}
		reserves.Input = q.NewInputReserve
		reserves.Output = q.NewOutputReserve

		group, err := e.buyGroup(req.Mint, w, cs, q, req.SolPerWallet)
		if err != nil {
			report.Wallets = append(report.Wallets, WalletResult{
				Wallet: pk,
				Status: StatusFailed,
				Reason: fmt.Sprintf("build: %v", err),
			})
			continue
		}
		included = append(included, buyPlanEntry{
			wallet:  w,
			group:   group,
			fee:     q.Fee,
			spend:   req.SolPerWallet,
			balance: balance,
			tokens:  q.AmountOut,
		})
	}

	// The lead wallet also pays the tip and the aggregated service fee;
	// demote leads that cannot cover the extra load.
	included, demoted := electLead(included, req.Policy.TipLamports, constants.TokenAccountRent+networkFeeMargin)
	for _, d := range demoted {
		report.Wallets = append(report.Wallets, WalletResult{
			Wallet: d.wallet.PublicKey(),
			Status: StatusSkipped,
			Reason: "insufficient balance to lead bundle (tip and fee transfer)",
		})
	}
	if len(included) == 0 {
		return report, fmt.Errorf("%w after preflight", types.ErrNoWallets)
	}

	lead := included[0].wallet
	var totalFee uint64
	groups := make([]txbuilder.Group, 0, len(included))
	for _, entry := range included {
		totalFee += entry.fee
		groups = append(groups, entry.group)
	}

	firstOnly := []solana.Instruction{
		system.NewTransferInstruction(req.Policy.TipLamports, lead.PublicKey(), jito.RandomTipAccount()).Build(),
		system.NewTransferInstruction(totalFee, lead.PublicKey(), e.fees.CollectionWallet).Build(),
	}

	txs, err := e.builder.BuildBundle(ctx, txbuilder.Plan{
		FeePayer:  lead,
		Prologue:  txbuilder.ComputeBudgetIxs(req.Policy.ComputeUnitLimit, req.Policy.ComputeUnitPrice),
		FirstOnly: firstOnly,
		Groups:    groups,
		ChunkSize: req.Policy.ChunkSize,
	})
	if err != nil {
		return report, err
	}

	bundle, err := e.submitBundle(ctx, txs, req.Policy)
	report.Bundle = bundle
	status, reason := bundleStatus(bundle, err)
	for _, entry := range included {
		report.Wallets = append(report.Wallets, WalletResult{
			Wallet:    entry.wallet.PublicKey(),
			Status:    status,
			Reason:    reason,
			TokensOut: entry.tokens,
			SolAmount: entry.spend,
		})
	}
	return report, err
}

// buyGroup builds one wallet's instruction group: idempotent ATA creation
// followed by the buy with slippage applied.
func (e *Engine) buyGroup(mint solana.PublicKey, w wallet.Local, cs curveState, q curve.Quote, maxSol uint64) (txbuilder.Group, error) {
	accts, err := buyAccountsFor(mint, w.PublicKey(), cs)
	if err != nil {
		return txbuilder.Group{}, err
	}
	ataIx, err := pump.BuildCreateATAIdempotent(w.PublicKey(), w.PublicKey(), mint, constants.TokenProgramID)
	if err != nil {
		return txbuilder.Group{}, err
	}
	buyIx, err := pump.BuildBuy(accts, pump.BuyArgs{
		Amount:     curve.ApplySlippage(q.AmountOut, e.slippage.BuyBps),
		MaxSolCost: maxSol,
	})
	if err != nil {
		return txbuilder.Group{}, err
	}
	return txbuilder.Group{
		Instructions: []solana.Instruction{ataIx, buyIx},
		Signers:      []wallet.Signer{w},
	}, nil
}

// walletBalances fetches lamport balances for all wallets in one call.
// Missing accounts read as zero.
func (e *Engine) walletBalances(ctx context.Context, wallets []wallet.Local) (map[string]uint64, error) {
	addrs := make([]solana.PublicKey, len(wallets))
	for i, w := range wallets {
		addrs[i] = w.PublicKey()
	}
	accounts, err := e.chain.GetMultipleAccounts(ctx, addrs...)
	if err != nil {
		return nil, types.RPCError{Op: "getMultipleAccounts", Err: err}
	}
	balances := make(map[string]uint64, len(wallets))
	for _, addr := range addrs {
		if acc := accounts[addr.String()]; acc != nil {
			balances[addr.String()] = acc.Lamports
		}
	}
	return balances, nil
}

// electLead drops leading entries whose balance cannot also cover the tip
// and the whole bundle's service fee transfer.
func electLead(entries []buyPlanEntry, tip, reserveMargin uint64) (kept, demoted []buyPlanEntry) {
	for len(entries) > 0 {
		var totalFee uint64
		for _, entry := range entries {
			totalFee += entry.fee
		}
		lead := entries[0]
		if lead.balance >= lead.spend+totalFee+tip+reserveMargin {
			return entries, demoted
		}
		demoted = append(demoted, lead)
		entries = entries[1:]
	}
	return entries, demoted
}

// bundleStatus maps a submission outcome to a per-wallet status.
func bundleStatus(bundle *BundleResult, err error) (Status, string) {
	switch {
	case err != nil && bundle == nil:
		return StatusFailed, err.Error()
	case err != nil:
		// Accepted by a relay but landing was not observed.
		return StatusUnconfirmed, err.Error()
	case bundle != nil && bundle.Landed:
		return StatusConfirmed, ""
	default:
		return StatusSubmitted, ""
	}
}
