package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kato0x/pump-bundler/pkg/engine"
	"github.com/kato0x/pump-bundler/pkg/types"
)

func newDumpCmd(opts *globalOpts) *cobra.Command {
	var (
		mintStr string
		percent uint8
	)

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Consolidate tokens to the dev wallet and sell in one bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := wire(cmd, opts)
			if err != nil {
				return err
			}
			if len(d.dev.PrivateKey()) == 0 {
				return fmt.Errorf("%w (use --dev)", types.ErrNilSigner)
			}
			mint, err := parsePubkey("mint", mintStr)
			if err != nil {
				return err
			}

			report, err := d.engine.DevDump(cmd.Context(), engine.DumpRequest{
				Mint:    mint,
				Dev:     d.dev,
				Wallets: d.wallets,
				Percent: percent,
				Policy:  d.policy,
			})
			printReport(cmd, report)
			return err
		},
	}

	cmd.Flags().StringVar(&mintStr, "mint", "", "token mint address")
	cmd.Flags().Uint8Var(&percent, "percent", 100, "percentage of each wallet's holdings to sell")
	_ = cmd.MarkFlagRequired("mint")
	return cmd
}

func newAmmSellCmd(opts *globalOpts) *cobra.Command {
	var (
		poolStr string
		percent uint8
	)

	cmd := &cobra.Command{
		Use:   "amm-sell",
		Short: "Sell the dev wallet's tokens into a graduated AMM pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := wire(cmd, opts)
			if err != nil {
				return err
			}
			if len(d.dev.PrivateKey()) == 0 {
				return fmt.Errorf("%w (use --dev)", types.ErrNilSigner)
			}
			pool, err := parsePubkey("pool", poolStr)
			if err != nil {
				return err
			}

			report, err := d.engine.AmmSell(cmd.Context(), engine.AmmSellRequest{
				Pool:    pool,
				Seller:  d.dev,
				Percent: percent,
				Policy:  d.policy,
			})
			printReport(cmd, report)
			return err
		},
	}

	cmd.Flags().StringVar(&poolStr, "pool", "", "AMM pool address")
	cmd.Flags().Uint8Var(&percent, "percent", 100, "percentage of holdings to sell")
	_ = cmd.MarkFlagRequired("pool")
	return cmd
}
