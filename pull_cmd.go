package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/dsync-go/dsync/internal/dsyncerr"
	"github.com/dsync-go/dsync/internal/engine"
)

// newPullCmd implements `dsync pull` (spec.md section 4.4).
func newPullCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pull",
		Short: "Reconcile the working tree from the remote",
		Args:  cobra.NoArgs,
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

			rc, err := newRemoteClient(logger)
			if err != nil {
				return err
			}

			pull := engine.NewPull(b.Repo, b.Store, b.Shadow, rc, ig, logger)

			return pull.Run(context.Background())
		},
	}
}
