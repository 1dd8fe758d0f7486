// Package main implements the gosolo CLI: a standalone Bitcoin solo-mining
// engine speaking Stratum V1 against a public solo pool.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gosolo",
	Short: "Bitcoin solo-mining engine",
	Long: `gosolo is a standalone Bitcoin solo miner: it generates a wallet,
connects to a Stratum V1 pool, searches the nonce space on the CPU
(hint-guided first, then exhaustive sweeps), and submits winning shares.
The engine stops on the first qualifying block it finds.`,
	SilenceUsage: true,
}

func main() {
	rootCmd.AddCommand(newMineCmd())
	rootCmd.AddCommand(newWalletCmd())
	rootCmd.AddCommand(newPoolsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
