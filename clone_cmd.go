package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/dsync-go/dsync/internal/engine"
	"github.com/dsync-go/dsync/internal/repo"
)

// newCloneCmd implements `dsync clone <remote_path> [local_path]`,
// spec.md section 4.7.
func newCloneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clone <remote_path> [local_path]",
		Short: "Clone a remote folder into a new local repository",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			remotePath := args[0]

			localRoot := repo.DeriveLocalRoot(remotePath)
			if len(args) == 2 {
				localRoot = args[1]
			}

			logger := buildLogger()

			rc, err := newRemoteClient(logger)
			if err != nil {
				return err
			}

			b, err := engine.Clone(context.Background(), rc, remotePath, localRoot, logger)
			if err != nil {
				return err
			}
			defer b.Close()

			return nil
		},
	}
}
