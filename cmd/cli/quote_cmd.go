package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kato0x/pump-bundler/pkg/config"
	"github.com/kato0x/pump-bundler/pkg/curve"
	"github.com/kato0x/pump-bundler/pkg/program/pump"
	"github.com/kato0x/pump-bundler/pkg/types"
)

func newQuoteCmd(opts *globalOpts) *cobra.Command {
	var (
		mintStr string
		sol     float64
		tokens  uint64
	)

	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Quote a buy or sell against the live bonding curve",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := wire(cmd, opts)
			if err != nil {
				return err
			}
			mint, err := parsePubkey("mint", mintStr)
			if err != nil {
				return err
			}

			addr, err := pump.DeriveBondingCurve(mint)
			if err != nil {
				return err
			}
			acc, err := d.rpc.GetAccountInfo(cmd.Context(), addr)
			if err != nil {
				return err
			}
			if acc == nil || acc.Data == nil {
				return fmt.Errorf("%w: mint %s", types.ErrBondingCurveNotFound, mint)
			}
			var bc pump.BondingCurve
			if err := bc.Unmarshal(acc.Data.GetBinary()); err != nil {
				return err
			}

			fees := config.DefaultFeePolicy()
			schedule := curve.FeeSchedule{
				Bps:   fees.TransferFeeBps,
				Denom: fees.FeeDenominator,
				Floor: fees.FeeFloorLamports,
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "curve: %s complete=%v\n", addr, bc.Complete)
			fmt.Fprintf(out, "reserves: sol=%d tokens=%d\n", bc.VirtualSolReserves, bc.VirtualTokenReserves)

			switch {
			case sol > 0:
				q, err := curve.QuoteBuy(curve.Reserves{
					Input:  bc.VirtualSolReserves,
					Output: bc.VirtualTokenReserves,
					Scheme: curve.SchemeBondingCurve,
				}, solToLamports(sol), schedule)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "buy %.4f SOL -> %d tokens (fee %d lamports)\n", sol, q.AmountOut, q.Fee)
			case tokens > 0:
				q, err := curve.QuoteSell(curve.Reserves{
					Input:  bc.VirtualTokenReserves,
					Output: bc.VirtualSolReserves,
					Scheme: curve.SchemeBondingCurve,
				}, tokens, schedule)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "sell %d tokens -> %d lamports (fee %d lamports)\n", tokens, q.AmountOut, q.Fee)
			default:
				return fmt.Errorf("one of --sol or --tokens is required")
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mintStr, "mint", "", "token mint address")
	cmd.Flags().Float64Var(&sol, "sol", 0, "quote a buy of this many SOL")
	cmd.Flags().Uint64Var(&tokens, "tokens", 0, "quote a sell of this many base units")
	_ = cmd.MarkFlagRequired("mint")
	return cmd
}
