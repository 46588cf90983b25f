package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kato0x/pump-bundler/pkg/engine"
	"github.com/kato0x/pump-bundler/pkg/types"
	"github.com/kato0x/pump-bundler/pkg/wallet"
)

func newLaunchCmd(opts *globalOpts) *cobra.Command {
	var (
		name        string
		symbol      string
		uri         string
		devBuy      float64
		solEach     float64
		mintKeyPath string
	)

	cmd := &cobra.Command{
		Use:   "launch",
		Short: "Create a token and fill dev plus sniper buys in one bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := wire(cmd, opts)
			if err != nil {
				return err
			}
			if len(d.dev.PrivateKey()) == 0 {
				return fmt.Errorf("%w (use --dev)", types.ErrNilSigner)
			}

			req := engine.LaunchRequest{
				Name:         name,
				Symbol:       symbol,
				URI:          uri,
				Dev:          d.dev,
				Wallets:      d.wallets,
				DevBuy:       solToLamports(devBuy),
				SolPerWallet: solToLamports(solEach),
				Policy:       d.policy,
			}
			if mintKeyPath != "" {
				mint, err := wallet.NewLocalFromKeygen(mintKeyPath)
				if err != nil {
					return err
				}
				req.Mint = mint
			}

			report, err := d.engine.Launch(cmd.Context(), req)
			if !report.Mint.IsZero() {
				fmt.Fprintf(cmd.OutOrStdout(), "mint: %s\n%s\n", report.Mint, engine.CoinURL(report.Mint))
			}
			printReport(cmd, report)
			return err
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "token name")
	cmd.Flags().StringVar(&symbol, "symbol", "", "token symbol")
	cmd.Flags().StringVar(&uri, "uri", "", "metadata URI")
	cmd.Flags().Float64Var(&devBuy, "dev-buy", 0, "SOL the dev wallet buys at launch")
	cmd.Flags().Float64Var(&solEach, "sol", 0, "SOL per sniper wallet")
	cmd.Flags().StringVar(&mintKeyPath, "mint-key", "", "optional solana-keygen json for a vanity mint")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("symbol")
	_ = cmd.MarkFlagRequired("uri")
	return cmd
}
