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

// Fallback launch-state reserves, used when the global config account
// cannot be read. These match the program's current initialization values.
const (
	defaultInitialVirtualSol   = 30_000_000_000
	defaultInitialVirtualToken = 1_073_000_000_000_000
)

// LaunchRequest describes a create-and-bundle launch: the token is created
// and bought by the dev and the sniper wallets in one atomic bundle, so no
// outside buyer can land between creation and the first fills.
type LaunchRequest struct {
	Name   string
	Symbol string
	URI    string

	Dev wallet.Local
	// Mint is the new token's keypair. Leave zero to generate one.
	Mint wallet.Local

	Wallets      []wallet.Local
	DevBuy       uint64
	SolPerWallet uint64
	Policy       Policy
}

// Launch creates the token and fills dev plus sniper buys atomically. The
// first transaction carries create, the dev buy, the tip, and the service
// fees; sniper buys follow in chunked transactions within the same bundle.
func (e *Engine) Launch(ctx context.Context, req LaunchRequest) (Report, error) {
	var report Report

	if req.Name == "" || req.Symbol == "" || req.URI == "" {
		return report, types.NewValidationError("metadata", "name, symbol, and uri are required")
	}
	if len(req.Dev.PrivateKey()) == 0 {
		return report, types.ErrNilSigner
	}
	if len(req.Wallets) > 0 {
		if err := types.ValidateAmount("solPerWallet", req.SolPerWallet); err != nil {
			return report, err
		}
	}
	// The create transaction occupies one bundle slot.
	maxWallets := req.Policy.ChunkSize * (txbuilder.MaxTxsPerBundle - 1)
	if len(req.Wallets) > maxWallets {
		return report, types.NewValidationError("wallets",
			fmt.Sprintf("at most %d sniper wallets fit one launch bundle", maxWallets))
	}

	mint := req.Mint
	if len(mint.PrivateKey()) == 0 {
		var err error
		mint, err = wallet.NewLocalRandom()
		if err != nil {
			return report, err
		}
	}
	report.Mint = mint.PublicKey()

	reserves := e.launchReserves(ctx)
	schedule := e.feeSchedule()

	bondingCurve, err := pump.DeriveBondingCurve(mint.PublicKey())
	if err != nil {
		return report, err
	}
	// The curve does not exist yet; synthesize the post-create state so
	// account derivation and quoting work before the bundle lands.
	cs := curveState{
		Address: bondingCurve,
		State: pump.BondingCurve{
			VirtualTokenReserves: reserves.Output,
			VirtualSolReserves:   reserves.Input,
			Creator:              req.Dev.PublicKey(),
		},
	}

	var devTokens uint64
	if req.DevBuy > 0 {
		q, err := curve.QuoteBuy(reserves, req.DevBuy, schedule)
		if err != nil {
			return report, err
		}
		devTokens = q.AmountOut
		reserves.Input = q.NewInputReserve
		reserves.Output = q.NewOutputReserve
	}

	balances, err := e.walletBalances(ctx, req.Wallets)
	if err != nil {
		return report, err
	}

	var (
		included []buyPlanEntry
		totalFee uint64
	)
	if req.DevBuy > 0 {
		totalFee = schedule.Fee(req.DevBuy)
	}
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
			continue
		}
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

		group, err := e.buyGroup(mint.PublicKey(), w, cs, q, req.SolPerWallet)
		if err != nil {
			report.Wallets = append(report.Wallets, WalletResult{
				Wallet: pk,
				Status: StatusFailed,
				Reason: fmt.Sprintf("build: %v", err),
			})
			continue
		}
		totalFee += q.Fee
		included = append(included, buyPlanEntry{
			wallet: w,
			group:  group,
			spend:  req.SolPerWallet,
			tokens: q.AmountOut,
		})
	}

	createTx, err := e.buildCreateTx(ctx, req, mint, cs, devTokens, totalFee)
	if err != nil {
		return report, err
	}
	txs := []*solana.Transaction{createTx}

	if len(included) > 0 {
		groups := make([]txbuilder.Group, len(included))
		for i, entry := range included {
			groups[i] = entry.group
		}
		buyTxs, err := e.builder.BuildBundle(ctx, txbuilder.Plan{
			FeePayer:  req.Dev,
			Prologue:  txbuilder.ComputeBudgetIxs(req.Policy.ComputeUnitLimit, req.Policy.ComputeUnitPrice),
			Groups:    groups,
			ChunkSize: req.Policy.ChunkSize,
		})
		if err != nil {
			for _, entry := range included {
				report.Wallets = append(report.Wallets, WalletResult{
					Wallet: entry.wallet.PublicKey(),
					Status: StatusFailed,
					Reason: fmt.Sprintf("build: %v", err),
				})
			}
			return report, err
		}
		txs = append(txs, buyTxs...)
	}

	bundle, err := e.submitBundle(ctx, txs, req.Policy)
	report.Bundle = bundle
	status, reason := bundleStatus(bundle, err)

	report.Wallets = append(report.Wallets, WalletResult{
		Wallet:    req.Dev.PublicKey(),
		Status:    status,
		Reason:    reason,
		TokensOut: devTokens,
		SolAmount: req.DevBuy,
	})
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

// buildCreateTx assembles and signs the first launch transaction: compute
// budget, tip, service fees, create, and the optional dev buy.
func (e *Engine) buildCreateTx(ctx context.Context, req LaunchRequest, mint wallet.Local, cs curveState, devTokens, aggregateFee uint64) (*solana.Transaction, error) {
	dev := req.Dev.PublicKey()
	mintKey := mint.PublicKey()

	metadata, err := pump.DeriveMetadata(mintKey)
	if err != nil {
		return nil, err
	}
	assocCurve, err := pump.FindAssociatedTokenAccount(cs.Address, mintKey, constants.TokenProgramID)
	if err != nil {
		return nil, err
	}
	createIx, err := pump.BuildCreate(pump.CreateAccounts{
		Mint:                   mintKey,
		MintAuthority:          constants.PumpMintAuthority,
		BondingCurve:           cs.Address,
		AssociatedBondingCurve: assocCurve,
		Global:                 constants.PumpGlobal,
		MplTokenMetadata:       constants.MetadataProgramID,
		Metadata:               metadata,
		User:                   dev,
		SystemProgram:          constants.SystemProgramID,
		TokenProgram:           constants.TokenProgramID,
		AssociatedTokenProgram: constants.AssociatedTokenProgramID,
		Rent:                   constants.SysvarRentProgramID,
		EventAuthority:         constants.PumpEventAuthority,
		Program:                pump.ProgramKey,
	}, pump.CreateArgs{
		Name:    req.Name,
		Symbol:  req.Symbol,
		Uri:     req.URI,
		Creator: dev,
	})
	if err != nil {
		return nil, err
	}

	ixs := txbuilder.ComputeBudgetIxs(req.Policy.ComputeUnitLimit, req.Policy.ComputeUnitPrice)
	ixs = append(ixs,
		system.NewTransferInstruction(req.Policy.TipLamports, dev, jito.RandomTipAccount()).Build(),
		system.NewTransferInstruction(e.fees.FlatFeeLamports+aggregateFee, dev, e.fees.CollectionWallet).Build(),
		createIx,
	)

	if req.DevBuy > 0 {
		ataIx, err := pump.BuildCreateATAIdempotent(dev, dev, mintKey, constants.TokenProgramID)
		if err != nil {
			return nil, err
		}
		accts, err := buyAccountsFor(mintKey, dev, cs)
		if err != nil {
			return nil, err
		}
		buyIx, err := pump.BuildBuy(accts, pump.BuyArgs{
			Amount:     curve.ApplySlippage(devTokens, e.slippage.BuyBps),
			MaxSolCost: req.DevBuy,
		})
		if err != nil {
			return nil, err
		}
		ixs = append(ixs, ataIx, buyIx)
	}

	tx, err := e.builder.BuildTransaction(ctx, dev, ixs...)
	if err != nil {
		return nil, err
	}
	if err := txbuilder.SignTransaction(ctx, tx, req.Dev, mint); err != nil {
		return nil, err
	}
	return tx, nil
}

// launchReserves reads the program's initial virtual reserves from the
// global config, falling back to the known mainnet values.
func (e *Engine) launchReserves(ctx context.Context) curve.Reserves {
	fallback := curve.Reserves{
		Input:  defaultInitialVirtualSol,
		Output: defaultInitialVirtualToken,
		Scheme: curve.SchemeBondingCurve,
	}
	acc, err := e.chain.GetAccountInfo(ctx, constants.PumpGlobal)
	if err != nil || acc == nil || acc.Data == nil {
		e.log.Warn().Err(err).Msg("global config unavailable, using fallback reserves")
		return fallback
	}
	var global pump.Global
	if err := global.Unmarshal(acc.Data.GetBinary()); err != nil {
		e.log.Warn().Err(err).Msg("global config undecodable, using fallback reserves")
		return fallback
	}
	return curve.Reserves{
		Input:  global.InitialVirtualSolReserves,
		Output: global.InitialVirtualTokenReserves,
		Scheme: curve.SchemeBondingCurve,
	}
}
