package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"campaignkb/internal/documents"
	"campaignkb/internal/ingest"
	"campaignkb/internal/queue"
)

var extToMIME = map[string]documents.MIME{
	".pdf":  documents.MIMEPDF,
	".txt":  documents.MIMEPlainText,
	".md":   documents.MIMEMarkdown,
	".docx": documents.MIMERichText,
	".png":  documents.MIMEPNG,
	".jpg":  documents.MIMEJPEG,
	".jpeg": documents.MIMEJPEG,
	".webp": documents.MIMEWebP,
}

func newIngestCmd(deps *cliDeps) *cobra.Command {
	var (
		campaignID     string
		mimeOverride   string
		classification string
		tags           []string
	)

	cmd := &cobra.Command{
		Use:   "ingest [file]",
		Short: "Upload a document and enqueue it for ingestion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := args[0]

			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read file: %w", err)
			}

			mime, err := resolveMIME(path, mimeOverride)
			if err != nil {
				return err
			}

			blobs, err := deps.openBlobs(ctx)
			if err != nil {
				return fmt.Errorf("open object store: %w", err)
			}
			chunks, err := deps.openChunkStore(ctx)
			if err != nil {
				return fmt.Errorf("open chunk store: %w", err)
			}
			q, err := deps.openQueue()
			if err != nil {
				return fmt.Errorf("open queue: %w", err)
			}

			key, err := blobs.Put(ctx, campaignID, filepath.Base(path), data, string(mime))
			if err != nil {
				return fmt.Errorf("upload blob: %w", err)
			}

			now := time.Now()
			doc, err := documents.New(campaignID, filepath.Base(path), filepath.Base(path), mime, int64(len(data)), key, documents.Classification(classification), tags, now)
			if err != nil {
				return fmt.Errorf("build document: %w", err)
			}
			if err := chunks.InsertDocument(ctx, doc); err != nil {
				return fmt.Errorf("persist document: %w", err)
			}

			jobID, err := q.Enqueue(ctx, "index-document", ingest.Payload{
				DocumentID: doc.ID,
				CampaignID: doc.CampaignID,
				StorageKey: doc.StorageKey,
				MIMEType:   string(doc.MIMEType),
			}, queue.EnqueueOptions{
				JobID: doc.ID,
			})
			if err != nil {
				return fmt.Errorf("enqueue ingestion job: %w", err)
			}

			pterm.Success.Printfln("uploaded %s as document %s, enqueued job %s", path, doc.ID, jobID)
			return nil
		},
	}

	cmd.Flags().StringVar(&campaignID, "campaign", "", "campaign id the document belongs to (required)")
	cmd.Flags().StringVar(&mimeOverride, "mime", "", "override the MIME type inferred from the file extension")
	cmd.Flags().StringVar(&classification, "classification", "", "one of rulebook|setting|notes|map|image (default: inferred)")
	cmd.Flags().StringSliceVar(&tags, "tag", nil, "repeatable free-form tag")
	_ = cmd.MarkFlagRequired("campaign")

	return cmd
}

func resolveMIME(path, override string) (documents.MIME, error) {
	if override != "" {
		mime := documents.MIME(override)
		if !documents.IsAllowed(mime) {
			return "", fmt.Errorf("unsupported MIME %q", override)
		}
		return mime, nil
	}
	ext := strings.ToLower(filepath.Ext(path))
	mime, ok := extToMIME[ext]
	if !ok {
		return "", fmt.Errorf("cannot infer MIME from extension %q; pass --mime", ext)
	}
	return mime, nil
}
