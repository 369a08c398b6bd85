package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"

	"github.com/dsync-go/dsync/internal/dsyncerr"
	"github.com/dsync-go/dsync/internal/engine"
)

// newPushCmd implements `dsync push` (spec.md section 4.5).
func newPushCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "push",
		Short: "Publish staged changes to the remote",
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

			rc, err := newRemoteClient(logger)
			if err != nil {
				return err
			}

			push := engine.NewPush(b.Repo, b.Store, b.Shadow, rc, logger)

			return push.Run(context.Background())
		},
	}
}
