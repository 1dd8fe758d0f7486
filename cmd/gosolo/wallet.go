package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mkrell/gosolo/internal/config"
	"github.com/mkrell/gosolo/internal/wallet"
	"github.com/mkrell/gosolo/pkg/log"
)

func newWalletCmd() *cobra.Command {
	var regenerate bool

	cmd := &cobra.Command{
		Use:   "wallet",
		Short: "Show (or regenerate) the mining wallet",
		Long: `Prints the wallet's address, public key, WIF export, and creation
time. Creates a wallet if none exists. With --new, a fresh keypair replaces
the stored wallet; the old key is gone, so export it first if it ever
received coins.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			logger := log.New(cfg.ServiceName, cfg.Version, "error", cfg.LogFormat)
			manager := wallet.NewManager(cfg.WalletDir, logger)

			var w *wallet.Wallet
			if regenerate {
				w, err = manager.Generate()
				if err != nil {
					return err
				}
				if err := manager.Save(w); err != nil {
					fmt.Fprintf(os.Stderr, "warning: wallet not saved: %v\n", err)
				}
			} else {
				w, err = manager.GetOrCreate()
				if err != nil {
					return err
				}
			}

			out, err := json.MarshalIndent(wallet.ExportWallet(w), "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			fmt.Fprintf(os.Stderr, "wallet file: %s\n", manager.Path())
			return nil
		},
	}

	cmd.Flags().BoolVar(&regenerate, "new", false, "generate a fresh keypair, replacing the stored wallet")
	return cmd
}
