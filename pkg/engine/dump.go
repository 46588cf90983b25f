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

// transferChunkSize keeps consolidation transactions under the wire-size
// ceiling; transfers are cheap but the final sell references 12+ accounts.
const transferChunkSize = 3

// DumpRequest describes a consolidated exit: every wallet sends a
// percentage of its holdings to the dev wallet, which sells the total in
// the same bundle.
type DumpRequest struct {
	Mint    solana.PublicKey
	Dev     wallet.Local
	Wallets []wallet.Local
	Percent uint8
	Policy  Policy
}

// DevDump consolidates tokens from all wallets into the dev wallet and
// sells them in one atomic bundle. Wallets with no holdings are skipped.
func (e *Engine) DevDump(ctx context.Context, req DumpRequest) (Report, error) {
	report := Report{Mint: req.Mint}

	if err := types.ValidatePublicKey("mint", req.Mint); err != nil {
		return report, err
	}
	if len(req.Dev.PrivateKey()) == 0 {
		return report, types.ErrNilSigner
	}
	if err := types.ValidatePercent("percent", req.Percent); err != nil {
		return report, err
	}
	maxWallets := transferChunkSize*txbuilder.MaxTxsPerBundle - 1
	if len(req.Wallets) > maxWallets {
		return report, types.NewValidationError("wallets",
			fmt.Sprintf("at most %d wallets fit one dump bundle", maxWallets))
	}

	cs, err := e.readCurve(ctx, req.Mint)
	if err != nil {
		return report, err
	}
	if cs.State.Complete {
		return report, fmt.Errorf("curve for %s has graduated; use AmmSell", req.Mint)
	}

	devATA, err := pump.FindAssociatedTokenAccount(req.Dev.PublicKey(), req.Mint, constants.TokenProgramID)
	if err != nil {
		return report, err
	}

	var (
		groups    []txbuilder.Group
		totalSell uint64
		planned   []WalletResult
	)
	// Planned wallets get no status until submission is attempted; every
	// exit path below stamps them so the report never claims an outcome
	// that did not happen.
	finish := func(status Status, reason string) {
		for _, p := range planned {
			p.Status = status
			p.Reason = reason
			report.Wallets = append(report.Wallets, p)
		}
	}

	// Dev's own holdings sell without a transfer hop.
	devBalance, err := e.chain.GetTokenAccountBalance(ctx, devATA)
	if err == nil {
		totalSell += percentOf(devBalance, req.Percent)
	}

	for _, w := range req.Wallets {
		pk := w.PublicKey()
		srcATA, err := pump.FindAssociatedTokenAccount(pk, req.Mint, constants.TokenProgramID)
		if err != nil {
			return report, err
		}
		balance, err := e.chain.GetTokenAccountBalance(ctx, srcATA)
		if err != nil || balance == 0 {
			report.Wallets = append(report.Wallets, WalletResult{
				Wallet: pk,
				Status: StatusSkipped,
				Reason: "no tokens to dump",
			})
			continue
		}
		amount := percentOf(balance, req.Percent)
		if amount == 0 {
			report.Wallets = append(report.Wallets, WalletResult{
				Wallet: pk,
				Status: StatusSkipped,
				Reason: "rounded holding is zero",
			})
			continue
		}

		transferIx := pump.BuildTokenTransfer(srcATA, devATA, pk, amount, constants.TokenProgramID)
		group := txbuilder.Group{
			Instructions: []solana.Instruction{transferIx},
			Signers:      []wallet.Signer{w},
		}
		// Dumping everything strands the rent-exempt lamports; close the
		// account back to its owner.
		if req.Percent == 100 {
			group.Instructions = append(group.Instructions, pump.BuildCloseAccount(srcATA, pk, pk, constants.TokenProgramID))
		}
		groups = append(groups, group)
		totalSell += amount

		planned = append(planned, WalletResult{
			Wallet:    pk,
			TokensOut: amount,
		})
	}

	if totalSell == 0 {
		return report, fmt.Errorf("%w: nothing to sell", types.ErrZeroAmount)
	}

	q, err := curve.QuoteSell(sellReserves(cs.State), totalSell, e.feeSchedule())
	if err != nil {
		finish(StatusFailed, fmt.Sprintf("quote: %v", err))
		return report, err
	}

	sellGroup, err := e.sellGroup(req.Mint, req.Dev, cs, totalSell, q)
	if err != nil {
		finish(StatusFailed, fmt.Sprintf("build: %v", err))
		return report, err
	}
	groups = append(groups, sellGroup)

	firstOnly := []solana.Instruction{
		system.NewTransferInstruction(req.Policy.TipLamports, req.Dev.PublicKey(), jito.RandomTipAccount()).Build(),
	}
	if ataIx, err := pump.BuildCreateATAIdempotent(req.Dev.PublicKey(), req.Dev.PublicKey(), req.Mint, constants.TokenProgramID); err == nil {
		firstOnly = append(firstOnly, ataIx)
	}

	txs, err := e.builder.BuildBundle(ctx, txbuilder.Plan{
		FeePayer:  req.Dev,
		Prologue:  txbuilder.ComputeBudgetIxs(req.Policy.ComputeUnitLimit, req.Policy.ComputeUnitPrice),
		FirstOnly: firstOnly,
		Groups:    groups,
		ChunkSize: transferChunkSize,
	})
	if err != nil {
		finish(StatusFailed, fmt.Sprintf("build: %v", err))
		return report, err
	}

	bundle, err := e.submitBundle(ctx, txs, req.Policy)
	report.Bundle = bundle
	status, reason := bundleStatus(bundle, err)
	finish(status, reason)
	report.Wallets = append(report.Wallets, WalletResult{
		Wallet:    req.Dev.PublicKey(),
		Status:    status,
		Reason:    reason,
		TokensOut: totalSell,
		SolAmount: q.AmountOut,
	})
	return report, err
}

// sellGroup builds the dev's sell plus the service fee transfer taken from
// the quoted proceeds.
func (e *Engine) sellGroup(mint solana.PublicKey, dev wallet.Local, cs curveState, amount uint64, q curve.Quote) (txbuilder.Group, error) {
	accts, err := sellAccountsFor(mint, dev.PublicKey(), cs)
	if err != nil {
		return txbuilder.Group{}, err
	}
	sellIx, err := pump.BuildSell(accts, pump.SellArgs{
		Amount:       amount,
		MinSolOutput: curve.ApplySlippage(q.AmountOut, e.slippage.SellBps),
	})
	if err != nil {
		return txbuilder.Group{}, err
	}
	feeIx := system.NewTransferInstruction(
		e.feeSchedule().Fee(q.AmountOut), dev.PublicKey(), e.fees.CollectionWallet,
	).Build()
	return txbuilder.Group{
		Instructions: []solana.Instruction{sellIx, feeIx},
		Signers:      []wallet.Signer{dev},
	}, nil
}

// percentOf computes amount*percent/100 without overflow for realistic
// token supplies.
func percentOf(amount uint64, percent uint8) uint64 {
	if percent >= 100 {
		return amount
	}
	return amount / 100 * uint64(percent)
}
