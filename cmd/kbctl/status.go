package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newStatusCmd(deps *cliDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "status [documentId]",
		Short: "Show a document's ingestion state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			chunks, err := deps.openChunkStore(ctx)
			if err != nil {
				return fmt.Errorf("open chunk store: %w", err)
			}
			doc, err := chunks.GetDocument(ctx, args[0])
			if err != nil {
				return fmt.Errorf("get document: %w", err)
			}

			rows := pterm.TableData{
				{"field", "value"},
				{"id", doc.ID},
				{"campaignId", doc.CampaignID},
				{"displayName", doc.DisplayName},
				{"mimeType", string(doc.MIMEType)},
				{"classification", string(doc.Classification)},
				{"state", string(doc.State)},
			}
			if doc.ChunkCount != nil {
				rows = append(rows, []string{"chunkCount", fmt.Sprintf("%d", *doc.ChunkCount)})
			}
			if doc.ProcessingError != "" {
				rows = append(rows, []string{"processingError", doc.ProcessingError})
			}
			return pterm.DefaultTable.WithHasHeader().WithData(rows).Render()
		},
	}
}
