package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newReconstructCmd(deps *cliDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "reconstruct [documentId]",
		Short: "Print a document's full text reassembled from its stored chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			chunks, err := deps.openChunkStore(ctx)
			if err != nil {
				return fmt.Errorf("open chunk store: %w", err)
			}
			text, err := chunks.ReconstructDocument(ctx, args[0])
			if err != nil {
				return fmt.Errorf("reconstruct document: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
}
