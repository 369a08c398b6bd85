package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dsync-go/dsync/internal/dsyncerr"
	"github.com/dsync-go/dsync/internal/repo"
)

// newInitCmd implements `dsync init <remote_path>`: create an empty
// repository at the current directory (spec.md section 6).
func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init <remote_path>",
		Short: "Create an empty repository at the current directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.Getwd()
			if err != nil {
				return dsyncerr.IO("resolving current directory", err)
			}

			_, err = repo.Init(dir, args[0])

			return err
		},
	}
}
