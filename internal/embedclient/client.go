// Package embedclient implements the embedding client: batched,
// timeout-guarded, retrying calls to the external embedding endpoint.
// Grounded on internal/embedding/client.go's context-timeout wrapping and
// body-preview error reporting, combined with the retry/backoff shape from
// Aman-CERP-amanmcp/internal/embed/retry.go, since internal/embedding has
// no retry loop of its own — batching and retry are grounded on different
// source files.
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"campaignkb/internal/config"
	"campaignkb/internal/kberrors"
)

// Client calls the embedding endpoint. It holds no mutable state, so
// concurrent calls from different ingestion jobs are safe.
type Client struct {
	cfg        config.EmbeddingConfig
	httpClient *http.Client
}

// New builds a Client from configuration.
func New(cfg config.EmbeddingConfig) *Client {
	return &Client{cfg: cfg, httpClient: http.DefaultClient}
}

type embedRequest struct {
	Model    string   `json:"model"`
	Input    []string `json:"input"`
	Truncate bool     `json:"truncate"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed embeds every text in texts, batching by the configured batch size,
// retrying transient per-batch failures, and failing the whole call if any
// batch's terminal attempt fails. The result has exactly len(texts) vectors,
// each of the configured dimension.
func (c *Client) Embed(ctx context.Context, texts []string, onBatchDone func(done, total int)) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, kberrors.New(kberrors.EmptyContent, "embedclient.Embed", nil)
	}

	batchSize := c.cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 20
	}

	out := make([][]float32, 0, len(texts))
	retry := defaultRetryConfig(c.cfg.MaxRetries)

	for start := 0; start < len(texts); start += batchSize {
		if err := ctx.Err(); err != nil {
			return nil, kberrors.New(kberrors.Cancelled, "embedclient.Embed", err)
		}

		end := start + batchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		var vectors [][]float32
		err := withRetry(ctx, retry, func() (bool, error) {
			v, retryable, err := c.embedBatch(ctx, batch)
			vectors = v
			return retryable, err
		})
		if err != nil {
			return nil, kberrors.New(kberrors.EmbeddingFailed, "embedclient.Embed", err)
		}

		for _, v := range vectors {
			if c.cfg.Dimensions > 0 && len(v) != c.cfg.Dimensions {
				return nil, kberrors.New(kberrors.EmbeddingFailed, "embedclient.Embed",
					fmt.Errorf("embedding dimension mismatch: got %d, want %d", len(v), c.cfg.Dimensions))
			}
		}

		out = append(out, vectors...)
		if onBatchDone != nil {
			onBatchDone(end, len(texts))
		}
	}

	return out, nil
}

// embedBatch performs one HTTP call. The bool return reports whether a
// failed call is worth retrying (network errors and 5xx are; 4xx are not).
func (c *Client) embedBatch(ctx context.Context, inputs []string) ([][]float32, bool, error) {
	reqBody, err := json.Marshal(embedRequest{Model: c.cfg.Model, Input: inputs, Truncate: true})
	if err != nil {
		return nil, false, err
	}

	timeout := c.cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := c.cfg.BaseURL + c.cfg.Path
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.APIHeader == "Authorization" && c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	} else if c.cfg.APIHeader != "" && c.cfg.APIKey != "" {
		req.Header.Set(c.cfg.APIHeader, c.cfg.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, err
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		retryable := resp.StatusCode >= 500
		return nil, retryable, fmt.Errorf("embedding endpoint %s: %s", resp.Status, string(bodyBytes))
	}

	var er embedResponse
	if err := json.Unmarshal(bodyBytes, &er); err != nil {
		preview := bodyBytes
		if len(preview) > 200 {
			preview = preview[:200]
		}
		return nil, false, fmt.Errorf("parse embedding response (input count %d, body %q): %w", len(inputs), preview, err)
	}
	if len(er.Embeddings) != len(inputs) {
		return nil, false, fmt.Errorf("unexpected embedding count: got %d, want %d", len(er.Embeddings), len(inputs))
	}

	return er.Embeddings, false, nil
}

// CheckReachability verifies the embedding endpoint responds correctly by
// sending a small test request.
func (c *Client) CheckReachability(ctx context.Context) error {
	_, err := c.Embed(ctx, []string{"ping"}, nil)
	if err != nil {
		return fmt.Errorf("embedding endpoint reachability check failed: %w", err)
	}
	return nil
}
