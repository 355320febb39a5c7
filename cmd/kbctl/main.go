// Command kbctl is the operator CLI for the campaign knowledge base: upload
// a document, check its ingestion status, retry a failed one, inspect the
// job queue, and run an ad hoc hybrid search. Subcommand structure grounded
// on Aman-CERP-amanmcp/cmd/amanmcp/cmd's cobra root+subcommand layout;
// output formatting uses pterm the way that corpus reaches for a terminal
// UI library instead of raw fmt.Println tables.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"campaignkb/internal/chunkstore"
	"campaignkb/internal/config"
	"campaignkb/internal/embedclient"
	"campaignkb/internal/objectstore"
	"campaignkb/internal/queue"
	"campaignkb/internal/search"
)

const indexDocumentJob = "index-document"

// cliDeps holds the lazily-opened collaborators a subcommand may need.
// Every field is nil until the subcommand that needs it opens it, so a
// command that only touches the queue never dials Postgres.
type cliDeps struct {
	cfg    config.Config
	chunks *chunkstore.Store
	blobs  *objectstore.Facade
	q      *queue.Queue
}

func (d *cliDeps) openChunkStore(ctx context.Context) (*chunkstore.Store, error) {
	if d.chunks == nil {
		s, err := chunkstore.Open(ctx, d.cfg.Database, d.cfg.Embedding.Dimensions)
		if err != nil {
			return nil, err
		}
		d.chunks = s
	}
	return d.chunks, nil
}

func (d *cliDeps) openBlobs(ctx context.Context) (*objectstore.Facade, error) {
	if d.blobs == nil {
		backend, err := objectstore.NewS3Store(ctx, d.cfg.ObjectStore)
		if err != nil {
			return nil, err
		}
		d.blobs = objectstore.NewFacade(backend)
	}
	return d.blobs, nil
}

func (d *cliDeps) openQueue() (*queue.Queue, error) {
	if d.q == nil {
		q, err := queue.Open(d.cfg.Queue, indexDocumentJob)
		if err != nil {
			return nil, err
		}
		d.q = q
	}
	return d.q, nil
}

func (d *cliDeps) close() {
	if d.chunks != nil {
		d.chunks.Close()
	}
	if d.q != nil {
		_ = d.q.Close()
	}
}

func main() {
	deps := &cliDeps{}

	root := &cobra.Command{
		Use:   "kbctl",
		Short: "Operate the campaign knowledge base ingestion and retrieval service",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			deps.cfg = cfg
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			deps.close()
		},
	}

	root.AddCommand(
		newIngestCmd(deps),
		newStatusCmd(deps),
		newRetryCmd(deps),
		newQueueCmd(deps),
		newSearchCmd(deps),
		newReconstructCmd(deps),
	)

	if err := root.Execute(); err != nil {
		pterm.Error.Println(err)
		os.Exit(1)
	}
}

func newHybridSearcher(pool *chunkstore.Store) *search.HybridSearcher {
	p := pool.Pool()
	return search.NewHybridSearcher(search.NewVectorSearcher(p), search.NewLexicalSearcher(p))
}

func mustEmbedder(cfg config.Config) *embedclient.Client {
	return embedclient.New(cfg.Embedding)
}
