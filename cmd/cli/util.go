package main

import (
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/cobra"

	"github.com/kato0x/pump-bundler/pkg/engine"
)

// parsePubkey converts a base58 string to a PublicKey.
func parsePubkey(label, v string) (solana.PublicKey, error) {
	if v == "" {
		return solana.PublicKey{}, fmt.Errorf("%s is required", label)
	}
	pk, err := solana.PublicKeyFromBase58(v)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("%s invalid pubkey: %w", label, err)
	}
	return pk, nil
}

func parseDuration(label, v string) (time.Duration, error) {
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s invalid duration: %w", label, err)
	}
	return d, nil
}

func solToLamports(sol float64) uint64 {
	return uint64(sol * float64(solana.LAMPORTS_PER_SOL))
}

func printReport(cmd *cobra.Command, report engine.Report) {
	out := cmd.OutOrStdout()
	for _, wr := range report.Wallets {
		fmt.Fprintf(out, "%s  %-11s", wr.Wallet, wr.Status)
		if wr.TokensOut > 0 {
			fmt.Fprintf(out, "  tokens=%d", wr.TokensOut)
		}
		if wr.SolAmount > 0 {
			fmt.Fprintf(out, "  lamports=%d", wr.SolAmount)
		}
		if !wr.Signature.IsZero() {
			fmt.Fprintf(out, "  %s", engine.ExplorerTxURL(wr.Signature))
		}
		if wr.Reason != "" {
			fmt.Fprintf(out, "  (%s)", wr.Reason)
		}
		fmt.Fprintln(out)
	}
	if b := report.Bundle; b != nil {
		landed := "submitted"
		if b.Landed {
			landed = "landed"
		}
		fmt.Fprintf(out, "bundle: %d txs, %d endpoints accepted, %s\n", b.TxCount, len(b.Endpoints), landed)
		for _, r := range b.Endpoints {
			fmt.Fprintf(out, "  %s -> %s\n", r.Endpoint, r.BundleID)
		}
	}
	fmt.Fprintf(out, "included=%d skipped=%d failed=%d\n", report.Included(), report.Skipped(), report.Failed())
}
