// Copyright (c) 2025 Northbound System
// Author: Nicholas Skitch
package embeddings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/northbound/chunkcore/internal/model"
)

// DenseClient embeds text into dense vectors against a dataset's
// configured embedding server, the generalisation of OpenAIEmbedder to
// an arbitrary per-dataset endpoint (DenseEmbeddingURL/APIKey) instead
// of a single process-wide OpenAI key.
type DenseClient struct {
	httpClient *http.Client
}

// NewDenseClient builds a dense embedding client with a 30-second
// request timeout.
func NewDenseClient() *DenseClient {
	return &DenseClient{httpClient: &http.Client{Timeout: 30 * time.Second}}
}

// EmbedDense embeds a batch of texts against cfg's dense embedding
// server, validating the returned arity against the supported set.
// Output length and order mirror the input.
func (c *DenseClient) EmbedDense(ctx context.Context, texts []string, cfg model.ServerDatasetConfiguration) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("EmbedDense: no texts supplied")
	}

	type requestPayload struct {
		Input []string `json:"input"`
	}
	payload := requestPayload{Input: texts}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("EmbedDense: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", cfg.DenseEmbeddingURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("EmbedDense: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if cfg.DenseEmbeddingAPIKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", cfg.DenseEmbeddingAPIKey))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("EmbedDense: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("EmbedDense: embedding server error (status %d): %s", resp.StatusCode, string(body))
	}

	type responsePayload struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
	}

	var response responsePayload
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("EmbedDense: failed to decode response: %w", err)
	}

	if len(response.Data) != len(texts) {
		return nil, fmt.Errorf("EmbedDense: expected %d embeddings, got %d", len(texts), len(response.Data))
	}

	out := make([][]float32, len(response.Data))
	for i, d := range response.Data {
		if !model.SupportedArities[len(d.Embedding)] {
			return nil, fmt.Errorf("EmbedDense: unsupported dense arity %d", len(d.Embedding))
		}
		out[i] = d.Embedding
	}
	return out, nil
}

// EmbedSingle embeds one text, the single-item convenience the
// ingestion worker's per-message path and update handler call to embed
// a chunk's whole content directly (split-average sub-chunks go through
// EmbedDense as one batch).
func (c *DenseClient) EmbedSingle(ctx context.Context, text string, cfg model.ServerDatasetConfiguration) ([]float32, error) {
	out, err := c.EmbedDense(ctx, []string{text}, cfg)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}
