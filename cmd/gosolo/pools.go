package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkrell/gosolo/internal/stratum"
)

func newPoolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pools",
		Short: "List known solo pool presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, name := range stratum.PresetNames() {
				preset, _ := stratum.Preset(name)
				fmt.Printf("%-14s %s:%d\n", name, preset.Host, preset.Port)
			}
			return nil
		},
	}
}
