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

// SparseInput pairs a chunk's content with its optional boost phrase,
// the two fields a full-text embedding call needs per item.
type SparseInput struct {
	Text        string
	BoostPhrase *model.BoostPhrase
}

// SparseClient embeds text into sparse lexical vectors, following the
// same single-endpoint POST-then-decode shape as DenseClient but
// against a dataset's sparse embedding server.
type SparseClient struct {
	httpClient *http.Client
}

// NewSparseClient builds a sparse embedding client.
func NewSparseClient() *SparseClient {
	return &SparseClient{httpClient: &http.Client{Timeout: 30 * time.Second}}
}

// EmbedSparse embeds a batch of (text, boost phrase) pairs. When
// full-text is disabled for the dataset, callers should substitute
// model.SparseStub() per input instead of calling this.
func (c *SparseClient) EmbedSparse(ctx context.Context, inputs []SparseInput, cfg model.ServerDatasetConfiguration) ([][]model.SparseTerm, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("EmbedSparse: no inputs supplied")
	}

	type item struct {
		Text        string  `json:"text"`
		BoostPhrase *string `json:"boost_phrase,omitempty"`
		BoostFactor float64 `json:"boost_factor,omitempty"`
	}
	type requestPayload struct {
		Inputs []item `json:"inputs"`
	}

	payload := requestPayload{Inputs: make([]item, len(inputs))}
	for i, in := range inputs {
		it := item{Text: in.Text}
		if in.BoostPhrase != nil {
			it.BoostPhrase = &in.BoostPhrase.Phrase
			it.BoostFactor = in.BoostPhrase.BoostFactor
		}
		payload.Inputs[i] = it
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("EmbedSparse: failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", cfg.SparseEmbeddingURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("EmbedSparse: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("EmbedSparse: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("EmbedSparse: embedding server error (status %d): %s", resp.StatusCode, string(body))
	}

	type responsePayload struct {
		Data []struct {
			Indices []uint32  `json:"indices"`
			Values  []float32 `json:"values"`
		} `json:"data"`
	}

	var response responsePayload
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("EmbedSparse: failed to decode response: %w", err)
	}

	if len(response.Data) != len(inputs) {
		return nil, fmt.Errorf("EmbedSparse: expected %d sparse vectors, got %d", len(inputs), len(response.Data))
	}

	out := make([][]model.SparseTerm, len(response.Data))
	for i, d := range response.Data {
		if len(d.Indices) != len(d.Values) {
			return nil, fmt.Errorf("EmbedSparse: mismatched indices/values lengths at item %d", i)
		}
		terms := make([]model.SparseTerm, len(d.Indices))
		for j := range d.Indices {
			terms[j] = model.SparseTerm{TokenID: d.Indices[j], Weight: d.Values[j]}
		}
		out[i] = terms
	}
	return out, nil
}
