package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dsync-go/dsync/internal/dsyncerr"
	"github.com/dsync-go/dsync/internal/engine"
)

// newAddCmd implements `dsync add <local_path>` (spec.md section 4.6).
func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <local_path>",
		Short: "Stage a file or directory for the next push",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return dsyncerr.IO("resolving current directory", err)
			}

			logger := buildLogger()

			b, err := engine.Open(dir, logger)
			if err != nil {
				return err
			}
			defer b.Close()

			ig, err := b.LoadIgnore()
			if err != nil {
				return err
			}

			return engine.Add(b, ig, args[0], logger)
		},
	}
}
