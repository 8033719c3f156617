// Package remote talks to the three remote model dependencies named in
// spec.md §4.6 (embedder, chat/LLM, reranker) over OpenAI-compatible
// HTTP APIs. The teacher drove these models through a local Python
// subprocess (internal/ipc); a server with externally-configurable,
// possibly load-balanced model endpoints needs plain HTTP clients
// instead, so this follows the doRequest/http.Client shape already
// established in internal/store/vector for talking to an HTTP
// dependency, wrapped with internal/retry for transient failures.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ragline/ragline/internal/config"
	"github.com/ragline/ragline/internal/ragerr"
	"github.com/ragline/ragline/internal/retry"
)

// Embedder turns text into dense vectors.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelID() string
}

// Chat drives the LLM calls used for chunking and entity extraction,
// both of which require the model to answer in strict JSON.
type Chat interface {
	CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error)
	ModelID() string
}

// Reranker scores (query, document) pairs for both rerank passes in
// spec.md §4.8.
type Reranker interface {
	Rerank(ctx context.Context, query string, documents []string) ([]float32, error)
	ModelID() string
}

// httpClient is the shared low-level transport every remote model
// client is built on.
type httpClient struct {
	baseURL string
	client  *http.Client
	retryP  retry.Policy
}

func newHTTPClient(baseURL string, timeout time.Duration, retryAttempts int) *httpClient {
	return &httpClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		retryP:  retry.DefaultPolicy(retryAttempts),
	}
}

func (h *httpClient) postJSON(ctx context.Context, path string, reqBody, respBody interface{}) error {
	_, err := retry.Do(ctx, h.retryP, func(ctx context.Context) (struct{}, error) {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return struct{}{}, ragerr.Wrap(ragerr.Internal, "remote: marshal request", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.baseURL+path, bytes.NewReader(b))
		if err != nil {
			return struct{}{}, ragerr.Wrap(ragerr.Internal, "remote: build request", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := h.client.Do(req)
		if err != nil {
			return struct{}{}, ragerr.Wrap(ragerr.DependencyTransient, "remote: request failed", err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(resp.Body)
		if err != nil {
			return struct{}{}, ragerr.Wrap(ragerr.DependencyTransient, "remote: read response", err)
		}
		if resp.StatusCode >= 500 {
			return struct{}{}, ragerr.New(ragerr.DependencyTransient, fmt.Sprintf("remote: status %d: %s", resp.StatusCode, string(raw)))
		}
		if resp.StatusCode >= 400 {
			return struct{}{}, ragerr.New(ragerr.DependencyFatal, fmt.Sprintf("remote: status %d: %s", resp.StatusCode, string(raw)))
		}
		if err := json.Unmarshal(raw, respBody); err != nil {
			return struct{}{}, ragerr.Wrap(ragerr.MalformedUpstream, "remote: parse response", err)
		}
		return struct{}{}, nil
	})
	return err
}

// ---- Embedder ----

type openAIEmbedder struct {
	http      *httpClient
	model     string
	dimension int
}

// NewEmbedder builds an Embedder against an OpenAI-compatible
// /v1/embeddings endpoint (Ollama, vLLM, and the real OpenAI API all
// implement this surface).
func NewEmbedder(card config.ModelCard, timeout time.Duration, retryAttempts int) Embedder {
	return &openAIEmbedder{
		http:      newHTTPClient(card.BaseURL, timeout, retryAttempts),
		model:     card.ID,
		dimension: card.Dimension,
	}
}

func (e *openAIEmbedder) Dimension() int  { return e.dimension }
func (e *openAIEmbedder) ModelID() string { return e.model }

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

func (e *openAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	var resp embeddingsResponse
	if err := e.http.postJSON(ctx, "/embeddings", embeddingsRequest{Model: e.model, Input: texts}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, ragerr.New(ragerr.MalformedUpstream, "remote: embeddings response returned a different number of vectors than texts submitted")
	}
	out := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(out) {
			return nil, ragerr.New(ragerr.MalformedUpstream, "remote: embeddings response index out of range")
		}
		out[d.Index] = d.Embedding
	}
	for _, v := range out {
		if v == nil {
			return nil, ragerr.New(ragerr.MalformedUpstream, "remote: embeddings response missing a vector for one or more texts")
		}
	}
	return out, nil
}

// ---- Chat ----

type openAIChat struct {
	http  *httpClient
	model string
}

// NewChat builds a Chat against an OpenAI-compatible /v1/chat/completions
// endpoint.
func NewChat(card config.ModelCard, timeout time.Duration, retryAttempts int) Chat {
	return &openAIChat{
		http:  newHTTPClient(card.BaseURL, timeout, retryAttempts),
		model: card.ID,
	}
}

func (c *openAIChat) ModelID() string { return c.model }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	Temperature    float64       `json:"temperature"`
	ResponseFormat struct {
		Type string `json:"type"`
	} `json:"response_format"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// CompleteJSON asks the model to respond with a single JSON object and
// returns its raw text, per spec.md §4.5/§4.6's requirement that
// chunking and entity extraction are driven by strict-JSON LLM calls.
func (c *openAIChat) CompleteJSON(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	req := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userPrompt},
		},
		Temperature: 0,
	}
	req.ResponseFormat.Type = "json_object"

	var resp chatResponse
	if err := c.http.postJSON(ctx, "/chat/completions", req, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ragerr.New(ragerr.MalformedUpstream, "remote: chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// ---- Reranker ----

type crossEncoderReranker struct {
	http  *httpClient
	model string
}

// NewReranker builds a Reranker against a cross-encoder /rerank
// endpoint (the shape exposed by llama.cpp server, TEI, and most
// self-hosted reranker deployments).
func NewReranker(card config.ModelCard, timeout time.Duration, retryAttempts int) Reranker {
	return &crossEncoderReranker{
		http:  newHTTPClient(card.BaseURL, timeout, retryAttempts),
		model: card.ID,
	}
}

func (r *crossEncoderReranker) ModelID() string { return r.model }

type rerankRequest struct {
	Model     string   `json:"model"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []struct {
		Index          int     `json:"index"`
		RelevanceScore float32 `json:"relevance_score"`
	} `json:"results"`
}

func (r *crossEncoderReranker) Rerank(ctx context.Context, query string, documents []string) ([]float32, error) {
	if len(documents) == 0 {
		return nil, nil
	}
	var resp rerankResponse
	if err := r.http.postJSON(ctx, "/rerank", rerankRequest{Model: r.model, Query: query, Documents: documents}, &resp); err != nil {
		return nil, err
	}
	scores := make([]float32, len(documents))
	for _, res := range resp.Results {
		if res.Index < 0 || res.Index >= len(scores) {
			continue
		}
		scores[res.Index] = res.RelevanceScore
	}
	return scores, nil
}
