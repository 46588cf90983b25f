package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kato0x/pump-bundler/pkg/engine"
	"github.com/kato0x/pump-bundler/pkg/types"
)

func newBuyCmd(opts *globalOpts) *cobra.Command {
	var (
		mintStr string
		solEach float64
	)

	cmd := &cobra.Command{
		Use:   "bundle-buy",
		Short: "Buy from all wallets in one atomic bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := wire(cmd, opts)
			if err != nil {
				return err
			}
			mint, err := parsePubkey("mint", mintStr)
			if err != nil {
				return err
			}
			if len(d.wallets) == 0 {
				return fmt.Errorf("%w (use --wallets)", types.ErrNoWallets)
			}

			report, err := d.engine.BundleBuy(cmd.Context(), engine.BuyRequest{
				Mint:         mint,
				Wallets:      d.wallets,
				SolPerWallet: solToLamports(solEach),
				Policy:       d.policy,
			})
			printReport(cmd, report)
			return err
		},
	}

	cmd.Flags().StringVar(&mintStr, "mint", "", "token mint address")
	cmd.Flags().Float64Var(&solEach, "sol", 0, "SOL to spend per wallet")
	_ = cmd.MarkFlagRequired("mint")
	_ = cmd.MarkFlagRequired("sol")
	return cmd
}

func newStaggerCmd(opts *globalOpts) *cobra.Command {
	var (
		mintStr  string
		solEach  float64
		delayMin string
		delayMax string
	)

	cmd := &cobra.Command{
		Use:   "stagger",
		Short: "Buy from wallets sequentially with randomized delays",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := wire(cmd, opts)
			if err != nil {
				return err
			}
			mint, err := parsePubkey("mint", mintStr)
			if err != nil {
				return err
			}
			if len(d.wallets) == 0 {
				return fmt.Errorf("%w (use --wallets)", types.ErrNoWallets)
			}
			dmin, err := parseDuration("delay-min", delayMin)
			if err != nil {
				return err
			}
			dmax, err := parseDuration("delay-max", delayMax)
			if err != nil {
				return err
			}

			report, err := d.engine.StaggerBuy(cmd.Context(), engine.StaggerRequest{
				Mint:         mint,
				Wallets:      d.wallets,
				SolPerWallet: solToLamports(solEach),
				DelayMin:     dmin,
				DelayMax:     dmax,
				Policy:       d.policy,
			})
			printReport(cmd, report)
			return err
		},
	}

	cmd.Flags().StringVar(&mintStr, "mint", "", "token mint address")
	cmd.Flags().Float64Var(&solEach, "sol", 0, "SOL to spend per wallet")
	cmd.Flags().StringVar(&delayMin, "delay-min", "2s", "minimum delay between buys")
	cmd.Flags().StringVar(&delayMax, "delay-max", "8s", "maximum delay between buys")
	_ = cmd.MarkFlagRequired("mint")
	_ = cmd.MarkFlagRequired("sol")
	return cmd
}
