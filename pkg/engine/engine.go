// Package engine sequences reads, quotes, instruction building, signing
// and relay submission into the launch and trading flows. All flows are
// best-effort batches: wallets that fail preflight are skipped with a
// reason, never silently dropped, and never abort the rest of the run.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"github.com/rs/zerolog"

	"github.com/kato0x/pump-bundler/pkg/config"
	"github.com/kato0x/pump-bundler/pkg/constants"
	"github.com/kato0x/pump-bundler/pkg/curve"
	"github.com/kato0x/pump-bundler/pkg/jito"
	"github.com/kato0x/pump-bundler/pkg/program/pump"
	"github.com/kato0x/pump-bundler/pkg/txbuilder"
	"github.com/kato0x/pump-bundler/pkg/types"
)

// networkFeeMargin covers base signature fees when checking wallet
// balances ahead of inclusion.
const networkFeeMargin = 100_000

// ChainReader is the read surface the engine needs before planning. RPC
// read failures here abort the whole operation: no partial plan is built
// on unreadable state.
type ChainReader interface {
	GetAccountInfo(ctx context.Context, addr solana.PublicKey) (*solanarpc.Account, error)
	GetMultipleAccounts(ctx context.Context, addrs ...solana.PublicKey) (map[string]*solanarpc.Account, error)
	GetBalance(ctx context.Context, addr solana.PublicKey) (uint64, error)
	GetTokenAccountBalance(ctx context.Context, ata solana.PublicKey) (uint64, error)
}

// Relay delivers signed bundles atomically.
type Relay interface {
	Submit(ctx context.Context, txs []*solana.Transaction) ([]jito.SubmitResult, error)
	WaitForLanding(ctx context.Context, bundleID string, timeout time.Duration) error
}

// Policy tunes how a flow batches, pays, and waits. The zero value is not
// usable; start from DefaultPolicy.
type Policy struct {
	// ChunkSize is the number of participant groups per transaction.
	ChunkSize int
	// TipLamports is the relay tip carried by the first transaction.
	TipLamports uint64
	// WaitForLanding switches the completion contract from "relay accepted
	// the bundle" to "the bundle confirmed on-chain".
	WaitForLanding bool
	// LandingTimeout bounds the landing wait.
	LandingTimeout time.Duration
	// ComputeUnitLimit and ComputeUnitPrice form the compute-budget
	// prologue attached to every transaction.
	ComputeUnitLimit uint32
	ComputeUnitPrice uint64
}

// DefaultPolicy returns the standard bundle policy.
func DefaultPolicy() Policy {
	return Policy{
		ChunkSize:        txbuilder.DefaultChunkSize,
		TipLamports:      1_000_000,
		LandingTimeout:   60 * time.Second,
		ComputeUnitLimit: 1_400_000,
	}
}

// Engine wires the collaborators for every flow.
type Engine struct {
	chain    ChainReader
	builder  *txbuilder.Builder
	relay    Relay
	fees     config.FeePolicy
	slippage config.SlippagePolicy
	log      zerolog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) Option {
	return func(e *Engine) { e.log = log }
}

// WithFeePolicy overrides the default fee schedule.
func WithFeePolicy(p config.FeePolicy) Option {
	return func(e *Engine) { e.fees = p }
}

// WithSlippagePolicy overrides the default slippage tolerances.
func WithSlippagePolicy(p config.SlippagePolicy) Option {
	return func(e *Engine) { e.slippage = p }
}

// New constructs an Engine.
func New(chain ChainReader, builder *txbuilder.Builder, relay Relay, opts ...Option) *Engine {
	e := &Engine{
		chain:    chain,
		builder:  builder,
		relay:    relay,
		fees:     config.DefaultFeePolicy(),
		slippage: config.DefaultSlippagePolicy(),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) feeSchedule() curve.FeeSchedule {
	return curve.FeeSchedule{
		Bps:   e.fees.TransferFeeBps,
		Denom: e.fees.FeeDenominator,
		Floor: e.fees.FeeFloorLamports,
	}
}

// curveState is a planning-time snapshot of one mint's bonding curve.
type curveState struct {
	Address solana.PublicKey
	State   pump.BondingCurve
}

// readCurve fetches and decodes the bonding curve for a mint.
func (e *Engine) readCurve(ctx context.Context, mint solana.PublicKey) (curveState, error) {
	addr, err := pump.DeriveBondingCurve(mint)
	if err != nil {
		return curveState{}, fmt.Errorf("derive bonding curve: %w", err)
	}
	acc, err := e.chain.GetAccountInfo(ctx, addr)
	if err != nil {
		return curveState{}, types.RPCError{Op: "getAccountInfo", Err: err}
	}
	if acc == nil || acc.Data == nil {
		return curveState{}, fmt.Errorf("%w: mint %s", types.ErrBondingCurveNotFound, mint)
	}
	var bc pump.BondingCurve
	if err := bc.Unmarshal(acc.Data.GetBinary()); err != nil {
		return curveState{}, err
	}
	return curveState{Address: addr, State: bc}, nil
}

// buyReserves orients curve reserves for the SOL-in direction.
func buyReserves(bc pump.BondingCurve) curve.Reserves {
	return curve.Reserves{
		Input:  bc.VirtualSolReserves,
		Output: bc.VirtualTokenReserves,
		Scheme: curve.SchemeBondingCurve,
	}
}

// sellReserves orients curve reserves for the token-in direction.
func sellReserves(bc pump.BondingCurve) curve.Reserves {
	return curve.Reserves{
		Input:  bc.VirtualTokenReserves,
		Output: bc.VirtualSolReserves,
		Scheme: curve.SchemeBondingCurve,
	}
}

// buyAccountsFor fills the buy account list for one user. The creator
// vault derives from the decoded curve state, never from caller input.
func buyAccountsFor(mint, user solana.PublicKey, cs curveState) (pump.BuyAccounts, error) {
	creatorVault, err := pump.DeriveCreatorVault(cs.State.Creator)
	if err != nil {
		return pump.BuyAccounts{}, err
	}
	assocUser, err := pump.FindAssociatedTokenAccount(user, mint, constants.TokenProgramID)
	if err != nil {
		return pump.BuyAccounts{}, err
	}
	assocCurve, err := pump.FindAssociatedTokenAccount(cs.Address, mint, constants.TokenProgramID)
	if err != nil {
		return pump.BuyAccounts{}, err
	}
	return pump.BuyAccounts{
		Global:                 constants.PumpGlobal,
		FeeRecipient:           constants.PumpFeeRecipient,
		Mint:                   mint,
		BondingCurve:           cs.Address,
		AssociatedBondingCurve: assocCurve,
		AssociatedUser:         assocUser,
		User:                   user,
		SystemProgram:          constants.SystemProgramID,
		TokenProgram:           constants.TokenProgramID,
		CreatorVault:           creatorVault,
		EventAuthority:         constants.PumpEventAuthority,
		Program:                pump.ProgramKey,
	}, nil
}

// sellAccountsFor fills the sell account list for one user.
func sellAccountsFor(mint, user solana.PublicKey, cs curveState) (pump.SellAccounts, error) {
	creatorVault, err := pump.DeriveCreatorVault(cs.State.Creator)
	if err != nil {
		return pump.SellAccounts{}, err
	}
	assocUser, err := pump.FindAssociatedTokenAccount(user, mint, constants.TokenProgramID)
	if err != nil {
		return pump.SellAccounts{}, err
	}
	assocCurve, err := pump.FindAssociatedTokenAccount(cs.Address, mint, constants.TokenProgramID)
	if err != nil {
		return pump.SellAccounts{}, err
	}
	return pump.SellAccounts{
		Global:                 constants.PumpGlobal,
		FeeRecipient:           constants.PumpFeeRecipient,
		Mint:                   mint,
		BondingCurve:           cs.Address,
		AssociatedBondingCurve: assocCurve,
		AssociatedUser:         assocUser,
		User:                   user,
		SystemProgram:          constants.SystemProgramID,
		CreatorVault:           creatorVault,
		TokenProgram:           constants.TokenProgramID,
		EventAuthority:         constants.PumpEventAuthority,
		Program:                pump.ProgramKey,
	}, nil
}

// submitBundle ships signed transactions and optionally waits for landing.
func (e *Engine) submitBundle(ctx context.Context, txs []*solana.Transaction, policy Policy) (*BundleResult, error) {
	results, err := e.relay.Submit(ctx, txs)
	if err != nil {
		return nil, err
	}
	bundle := &BundleResult{Endpoints: results, TxCount: len(txs)}
	e.log.Info().
		Int("txs", len(txs)).
		Int("endpoints", len(results)).
		Str("bundle", results[0].BundleID).
		Msg("bundle accepted")

	if !policy.WaitForLanding {
		return bundle, nil
	}
	if err := e.relay.WaitForLanding(ctx, results[0].BundleID, policy.LandingTimeout); err != nil {
		return bundle, err
	}
	bundle.Landed = true
	return bundle, nil
}
