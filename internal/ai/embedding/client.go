// internal/ai/embedding/client.go
package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"
)

var (
	ErrEmbeddingTimeout = errors.New("EMBEDDING_TIMEOUT")
	ErrEmbeddingFailed  = errors.New("EMBEDDING_FAILED")
)

// Config holds the embedding endpoint settings. SmallModel is the fast
// recall model, LargeModel the higher-quality re-score model.
type Config struct {
	BaseURL    string
	APIKey     string
	SmallModel string
	LargeModel string
	MaxRetries int
}

// Client calls an OpenAI-compatible embeddings API.
type Client struct {
	config *Config
	client *http.Client
}

func NewClient(config *Config) *Client {
	if config.MaxRetries == 0 {
		config.MaxRetries = 2
	}
	return &Client{
		config: config,
		client: &http.Client{
			// Rely only on context for timeouts
		},
	}
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// EmbedSmall embeds text with the fast recall model.
func (c *Client) EmbedSmall(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, c.config.SmallModel, text)
}

// EmbedLarge embeds text with the higher-quality re-score model.
func (c *Client) EmbedLarge(ctx context.Context, text string) ([]float32, error) {
	return c.embed(ctx, c.config.LargeModel, text)
}

func (c *Client) embed(ctx context.Context, model, text string) ([]float32, error) {
	body, _ := json.Marshal(embedRequest{Model: model, Input: text})

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ErrEmbeddingTimeout
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", c.config.BaseURL+"/embeddings", bytes.NewBuffer(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		if c.config.APIKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)
		}

		resp, lastErr = c.client.Do(httpReq)
		if lastErr == nil {
			if resp.StatusCode == http.StatusOK {
				break
			}
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			resp = nil
		}

		if ctx.Err() != nil {
			return nil, ErrEmbeddingTimeout
		}
	}

	if lastErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrEmbeddingTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, lastErr)
	}

	if resp == nil {
		return nil, fmt.Errorf("%w: no successful response after retries", ErrEmbeddingFailed)
	}
	defer resp.Body.Close()

	var apiResponse embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrEmbeddingFailed, err)
	}

	if len(apiResponse.Data) == 0 || len(apiResponse.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding in response", ErrEmbeddingFailed)
	}

	return apiResponse.Data[0].Embedding, nil
}
