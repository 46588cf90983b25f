// Package curve implements the integer swap math for bonding curves and
// AMM pools. All arithmetic widens through big.Int before narrowing back
// to uint64, and all division truncates toward zero to match on-chain
// semantics exactly.
package curve

import (
	"math/big"

	"github.com/kato0x/pump-bundler/pkg/types"
)

// Scheme selects the fee model applied to a swap.
type Scheme uint8

const (
	// SchemeBondingCurve charges a floored percentage fee on the input
	// (buys) or on the proceeds (sells).
	SchemeBondingCurve Scheme = iota
	// SchemeAmm charges a combined lp/protocol/creator basis-point fee
	// deducted from the input before the constant-product step.
	SchemeAmm
)

func (s Scheme) String() string {
	switch s {
	case SchemeBondingCurve:
		return "bonding-curve"
	case SchemeAmm:
		return "amm"
	default:
		return "unknown"
	}
}

// Reserves is a snapshot of a pool's two sides at read time, oriented by
// swap direction: Input is the reserve of the asset being paid in, Output
// the reserve of the asset being received. Staleness is expected; callers
// guard against it with slippage bounds, not locking.
type Reserves struct {
	Input  uint64
	Output uint64
	Scheme Scheme
}

// Quote is the result of one swap computation. Derived, never stored;
// recompute after every reserve-perturbing call.
type Quote struct {
	AmountOut        uint64
	Fee              uint64
	NewInputReserve  uint64
	NewOutputReserve uint64
}

// FeeSchedule is the bonding-curve percentage fee with a floor.
type FeeSchedule struct {
	Bps   uint64
	Denom uint64
	Floor uint64
}

// Fee computes max(Floor, amount * Bps / Denom).
func (f FeeSchedule) Fee(amount uint64) uint64 {
	pct := mulDiv(amount, f.Bps, f.Denom)
	if pct < f.Floor {
		return f.Floor
	}
	return pct
}

// QuoteBuy computes a bonding-curve buy: the fee comes off the input, the
// remainder goes through the constant-product formula.
func QuoteBuy(r Reserves, amountIn uint64, fees FeeSchedule) (Quote, error) {
	if amountIn == 0 {
		return Quote{}, types.ErrZeroAmount
	}
	if r.Input == 0 || r.Output == 0 {
		return Quote{}, types.ErrEmptyReserves
	}

	fee := fees.Fee(amountIn)
	if fee >= amountIn {
		return Quote{}, types.ErrFeeExceedsAmount
	}
	net := amountIn - fee

	out := constantProductOut(net, r.Input, r.Output)
	if out >= r.Output {
		return Quote{}, types.ErrDrainsReserve
	}

	return Quote{
		AmountOut:        out,
		Fee:              fee,
		NewInputReserve:  r.Input + net,
		NewOutputReserve: r.Output - out,
	}, nil
}

// QuoteSell computes a bonding-curve sell: the full token amount goes
// through the constant-product formula and the fee is deducted from the
// SOL proceeds. Reserves are oriented token-in / SOL-out.
func QuoteSell(r Reserves, amountIn uint64, fees FeeSchedule) (Quote, error) {
	if amountIn == 0 {
		return Quote{}, types.ErrZeroAmount
	}
	if r.Input == 0 || r.Output == 0 {
		return Quote{}, types.ErrEmptyReserves
	}

	gross := constantProductOut(amountIn, r.Input, r.Output)
	if gross >= r.Output {
		return Quote{}, types.ErrDrainsReserve
	}

	fee := fees.Fee(gross)
	if fee >= gross {
		return Quote{}, types.ErrFeeExceedsAmount
	}

	return Quote{
		AmountOut:        gross - fee,
		Fee:              fee,
		NewInputReserve:  r.Input + amountIn,
		NewOutputReserve: r.Output - gross,
	}, nil
}

// QuoteAmm computes an AMM pool swap. The combined fee is taken off the
// input as amount * denom / (denom + totalFeeBps), then the remainder is
// swapped against the k invariant with a one-unit conservative rounding
// adjustment on the input side.
func QuoteAmm(r Reserves, amountIn, totalFeeBps uint64) (Quote, error) {
	if amountIn == 0 {
		return Quote{}, types.ErrZeroAmount
	}
	if r.Input == 0 || r.Output == 0 {
		return Quote{}, types.ErrEmptyReserves
	}

	actual := mulDiv(amountIn, 10_000, 10_000+totalFeeBps)
	if actual == 0 {
		return Quote{}, types.ErrFeeExceedsAmount
	}

	k := new(big.Int).Mul(
		new(big.Int).SetUint64(r.Input),
		new(big.Int).SetUint64(r.Output),
	)
	newInput := new(big.Int).SetUint64(r.Input + actual - 1)
	newOutput := new(big.Int).Quo(k, newInput)

	outBig := new(big.Int).Sub(new(big.Int).SetUint64(r.Output), newOutput)
	if outBig.Sign() <= 0 {
		return Quote{}, types.ErrDrainsReserve
	}
	out := outBig.Uint64()
	if out >= r.Output {
		return Quote{}, types.ErrDrainsReserve
	}

	return Quote{
		AmountOut:        out,
		Fee:              amountIn - actual,
		NewInputReserve:  r.Input + actual,
		NewOutputReserve: r.Output - out,
	}, nil
}

// ApplySlippage discounts an expected output by bps basis points, flooring.
// A 1500 bps discount on a buy quote keeps 85% of the quoted tokens as the
// minimum acceptable fill.
func ApplySlippage(amount, bps uint64) uint64 {
	if bps >= 10_000 {
		return 0
	}
	return mulDiv(amount, 10_000-bps, 10_000)
}

// constantProductOut is floor(in * outReserve / (inReserve + in)). The
// intermediate product exceeds 64 bits for realistic reserves, hence the
// big.Int widening.
func constantProductOut(in, inReserve, outReserve uint64) uint64 {
	num := new(big.Int).Mul(
		new(big.Int).SetUint64(in),
		new(big.Int).SetUint64(outReserve),
	)
	den := new(big.Int).Add(
		new(big.Int).SetUint64(inReserve),
		new(big.Int).SetUint64(in),
	)
	return new(big.Int).Quo(num, den).Uint64()
}

// mulDiv is floor(a * b / den) with 128-bit intermediates.
func mulDiv(a, b, den uint64) uint64 {
	if den == 0 {
		return 0
	}
	r := new(big.Int).Mul(
		new(big.Int).SetUint64(a),
		new(big.Int).SetUint64(b),
	)
	return r.Quo(r, new(big.Int).SetUint64(den)).Uint64()
}
