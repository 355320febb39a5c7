package main

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"campaignkb/internal/documents"
	"campaignkb/internal/ingest"
	"campaignkb/internal/queue"
)

func newRetryCmd(deps *cliDeps) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [documentId]",
		Short: "Re-enqueue a failed document's ingestion job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			documentID := args[0]

			chunks, err := deps.openChunkStore(ctx)
			if err != nil {
				return fmt.Errorf("open chunk store: %w", err)
			}
			doc, err := chunks.GetDocument(ctx, documentID)
			if err != nil {
				return fmt.Errorf("get document: %w", err)
			}
			if doc.State != documents.StateFailed {
				return fmt.Errorf("document %s is in state %q, not failed", documentID, doc.State)
			}

			q, err := deps.openQueue()
			if err != nil {
				return fmt.Errorf("open queue: %w", err)
			}
			// The prior job hash under this id is terminal (failed); remove
			// it first so Enqueue's id-based dedup doesn't treat the retry
			// as a no-op against the old record. Remove is a no-op if the
			// record is already gone.
			if err := q.Remove(ctx, documentID); err != nil {
				return fmt.Errorf("remove prior job record: %w", err)
			}

			jobID, err := q.Enqueue(ctx, "index-document", ingest.Payload{
				DocumentID: doc.ID,
				CampaignID: doc.CampaignID,
				StorageKey: doc.StorageKey,
				MIMEType:   string(doc.MIMEType),
			}, queue.EnqueueOptions{
				JobID: documentID,
			})
			if err != nil {
				return fmt.Errorf("enqueue retry job: %w", err)
			}

			pterm.Success.Printfln("re-enqueued document %s as job %s", documentID, jobID)
			return nil
		},
	}
}
