// Command ingestd runs the campaign knowledge base's ingestion worker pool:
// it dequeues index-document jobs from the Redis queue and drives each one
// through the extract/chunk/embed/store pipeline. Grounded on
// cmd/orchestrator/main.go for the config-load, signal.NotifyContext,
// run()-returns-error shape.
package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"campaignkb/internal/chunkstore"
	"campaignkb/internal/config"
	"campaignkb/internal/embedclient"
	"campaignkb/internal/ingest"
	"campaignkb/internal/objectstore"
	"campaignkb/internal/observability"
	"campaignkb/internal/queue"
	"campaignkb/internal/worker"
)

const indexDocumentJob = "index-document"

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("ingestd")
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	observability.Init(observability.Config{LogLevel: cfg.LogLevel})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	blobBackend, err := objectstore.NewS3Store(ctx, cfg.ObjectStore)
	if err != nil {
		return fmt.Errorf("init object store: %w", err)
	}
	blobs := objectstore.NewFacade(blobBackend)

	chunks, err := chunkstore.Open(ctx, cfg.Database, cfg.Embedding.Dimensions)
	if err != nil {
		return fmt.Errorf("init chunk store: %w", err)
	}
	defer chunks.Close()

	embedder := embedclient.New(cfg.Embedding)
	if err := embedder.CheckReachability(ctx); err != nil {
		log.Warn().Err(err).Msg("embedding_endpoint_unreachable_at_startup")
	}

	q, err := queue.Open(cfg.Queue, indexDocumentJob)
	if err != nil {
		return fmt.Errorf("init queue: %w", err)
	}
	defer func() {
		if cerr := q.Close(); cerr != nil {
			log.Error().Err(cerr).Msg("error closing queue redis client")
		}
	}()

	pipeline := ingest.New(blobs, chunks, embedder, cfg.Chunk)

	pool := worker.New(q, pipeline.Handler(), cfg.Worker, worker.Callbacks{
		OnCompleted: func(job queue.Job) {
			log.Info().Str("job_id", job.ID).Str("result", job.Result).Msg("ingest_job_completed")
		},
		OnFailed: func(job queue.Job, err error) {
			log.Error().Str("job_id", job.ID).Err(err).Msg("ingest_job_failed")
		},
		OnStalled: func(jobID string) {
			log.Warn().Str("job_id", jobID).Msg("ingest_job_stalled")
		},
		OnError: func(err error) {
			log.Error().Err(err).Msg("ingest_worker_error")
		},
	})

	log.Info().Int("concurrency", cfg.Worker.Concurrency).Msg("ingestd starting")
	pool.Start(ctx)

	<-ctx.Done()
	log.Info().Msg("ingestd shutting down")
	stillActive := pool.Shutdown(cfg.Worker.ShutdownTimeout)
	if stillActive > 0 {
		log.Warn().Int("still_active", stillActive).Msg("ingestd shutdown timed out with jobs in flight")
	}
	return nil
}
