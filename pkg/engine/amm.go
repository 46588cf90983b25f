package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/kato0x/pump-bundler/pkg/constants"
	"github.com/kato0x/pump-bundler/pkg/curve"
	"github.com/kato0x/pump-bundler/pkg/program/pump"
	"github.com/kato0x/pump-bundler/pkg/program/pumpamm"
	"github.com/kato0x/pump-bundler/pkg/txbuilder"
	"github.com/kato0x/pump-bundler/pkg/types"
	"github.com/kato0x/pump-bundler/pkg/wallet"
)

// ammTotalFeeBps is the pool's combined LP, protocol, and creator fee used
// when quoting AMM swaps.
const ammTotalFeeBps = 30

// AmmSellRequest sells a percentage of one wallet's holdings into the
// graduated pool.
type AmmSellRequest struct {
	Pool    solana.PublicKey
	Seller  wallet.Local
	Percent uint8
	Policy  Policy
}

// AmmSell sells base tokens into a pump AMM pool over plain RPC. Pool
// reserves are read from the pool's token accounts, so the quote reflects
// real, not virtual, liquidity.
func (e *Engine) AmmSell(ctx context.Context, req AmmSellRequest) (Report, error) {
	var report Report

	if err := types.ValidatePublicKey("pool", req.Pool); err != nil {
		return report, err
	}
	if len(req.Seller.PrivateKey()) == 0 {
		return report, types.ErrNilSigner
	}
	if err := types.ValidatePercent("percent", req.Percent); err != nil {
		return report, err
	}

	pool, err := e.readPool(ctx, req.Pool)
	if err != nil {
		return report, err
	}
	report.Mint = pool.BaseMint

	seller := req.Seller.PublicKey()
	sellerBase, err := pump.FindAssociatedTokenAccount(seller, pool.BaseMint, constants.TokenProgramID)
	if err != nil {
		return report, err
	}
	balance, err := e.chain.GetTokenAccountBalance(ctx, sellerBase)
	if err != nil {
		return report, types.RPCError{Op: "getTokenAccountBalance", Err: err}
	}
	amount := percentOf(balance, req.Percent)
	if amount == 0 {
		return report, fmt.Errorf("%w: wallet holds no base tokens", types.ErrZeroAmount)
	}

	baseReserve, err := e.chain.GetTokenAccountBalance(ctx, pool.PoolBaseTokenAccount)
	if err != nil {
		return report, types.RPCError{Op: "getTokenAccountBalance", Err: err}
	}
	quoteReserve, err := e.chain.GetTokenAccountBalance(ctx, pool.PoolQuoteTokenAccount)
	if err != nil {
		return report, types.RPCError{Op: "getTokenAccountBalance", Err: err}
	}

	q, err := curve.QuoteAmm(curve.Reserves{
		Input:  baseReserve,
		Output: quoteReserve,
		Scheme: curve.SchemeAmm,
	}, amount, ammTotalFeeBps)
	if err != nil {
		return report, err
	}

	ixs, err := e.ammSellIxs(req.Pool, pool, req.Seller, amount, q)
	if err != nil {
		return report, err
	}
	ixs = append(txbuilder.ComputeBudgetIxs(req.Policy.ComputeUnitLimit, req.Policy.ComputeUnitPrice), ixs...)

	tx, err := e.builder.BuildTransaction(ctx, seller, ixs...)
	if err != nil {
		return report, err
	}
	if err := txbuilder.SignTransaction(ctx, tx, req.Seller); err != nil {
		return report, err
	}
	sig, err := e.builder.Send(ctx, tx)
	if err != nil {
		report.Wallets = append(report.Wallets, WalletResult{
			Wallet: seller, Status: StatusFailed, Reason: err.Error(),
		})
		return report, err
	}
	e.log.Info().Str("signature", sig.String()).Uint64("tokens", amount).Msg("amm sell sent")

	result := WalletResult{
		Wallet:    seller,
		Status:    StatusSubmitted,
		Signature: sig,
		TokensOut: amount,
		SolAmount: q.AmountOut,
	}
	if req.Policy.WaitForLanding {
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
	}
	report.Wallets = append(report.Wallets, result)
	return report, err
}

// ammSellIxs builds the WSOL account setup, the sell, the unwrap, and the
// service fee transfer.
func (e *Engine) ammSellIxs(poolAddr solana.PublicKey, pool pumpamm.Pool, seller wallet.Local, amount uint64, q curve.Quote) ([]solana.Instruction, error) {
	user := seller.PublicKey()

	userBase, err := pump.FindAssociatedTokenAccount(user, pool.BaseMint, constants.TokenProgramID)
	if err != nil {
		return nil, err
	}
	userQuote, err := pump.FindAssociatedTokenAccount(user, pool.QuoteMint, constants.TokenProgramID)
	if err != nil {
		return nil, err
	}
	protocolFeeATA, err := pump.FindAssociatedTokenAccount(constants.AmmProtocolFeeRecipient, pool.QuoteMint, constants.TokenProgramID)
	if err != nil {
		return nil, err
	}
	vaultAuthority, err := pumpamm.DeriveCreatorVaultAuthority(pool.CoinCreator)
	if err != nil {
		return nil, err
	}
	vaultATA, err := pump.FindAssociatedTokenAccount(vaultAuthority, pool.QuoteMint, constants.TokenProgramID)
	if err != nil {
		return nil, err
	}

	sellIx, err := pumpamm.BuildSell(pumpamm.SellAccounts{
		Pool:                             poolAddr,
		User:                             user,
		GlobalConfig:                     constants.AmmGlobalConfig,
		BaseMint:                         pool.BaseMint,
		QuoteMint:                        pool.QuoteMint,
		UserBaseTokenAccount:             userBase,
		UserQuoteTokenAccount:            userQuote,
		PoolBaseTokenAccount:             pool.PoolBaseTokenAccount,
		PoolQuoteTokenAccount:            pool.PoolQuoteTokenAccount,
		ProtocolFeeRecipient:             constants.AmmProtocolFeeRecipient,
		ProtocolFeeRecipientTokenAccount: protocolFeeATA,
		BaseTokenProgram:                 constants.TokenProgramID,
		QuoteTokenProgram:                constants.TokenProgramID,
		SystemProgram:                    constants.SystemProgramID,
		AssociatedTokenProgram:           constants.AssociatedTokenProgramID,
		EventAuthority:                   constants.AmmEventAuthority,
		Program:                          pumpamm.ProgramKey,
		CoinCreatorVaultAta:              vaultATA,
		CoinCreatorVaultAuthority:        vaultAuthority,
	}, pumpamm.SellArgs{
		BaseAmountIn:      amount,
		MinQuoteAmountOut: curve.ApplySlippage(q.AmountOut, e.slippage.SellBps),
	})
	if err != nil {
		return nil, err
	}

	wsolATA, err := pump.BuildCreateATAIdempotent(user, user, pool.QuoteMint, constants.TokenProgramID)
	if err != nil {
		return nil, err
	}
	feeIx := system.NewTransferInstruction(
		e.feeSchedule().Fee(q.AmountOut), user, e.fees.CollectionWallet,
	).Build()

	return []solana.Instruction{
		wsolATA,
		sellIx,
		// Close the WSOL account to unwrap proceeds back to native SOL.
		pump.BuildCloseAccount(userQuote, user, user, constants.TokenProgramID),
		feeIx,
	}, nil
}

// readPool fetches and decodes an AMM pool account.
func (e *Engine) readPool(ctx context.Context, addr solana.PublicKey) (pumpamm.Pool, error) {
	acc, err := e.chain.GetAccountInfo(ctx, addr)
	if err != nil {
		return pumpamm.Pool{}, types.RPCError{Op: "getAccountInfo", Err: err}
	}
	if acc == nil || acc.Data == nil {
		return pumpamm.Pool{}, fmt.Errorf("pool account %s not found", addr)
	}
	var pool pumpamm.Pool
	if err := pool.Unmarshal(acc.Data.GetBinary()); err != nil {
		return pumpamm.Pool{}, err
	}
	return pool, nil
}
