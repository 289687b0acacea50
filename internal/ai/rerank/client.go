// internal/ai/rerank/client.go
package rerank

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
	ErrRerankTimeout = errors.New("RERANK_TIMEOUT")
	ErrRerankFailed  = errors.New("RERANK_FAILED")
)

// Config holds the cross-encoder rerank endpoint settings.
type Config struct {
	BaseURL    string
	APIKey     string
	Model      string
	MaxRetries int
}

// Client calls a cross-encoder text similarity API. One call scores every
// sentence against the source sentence.
type Client struct {
	config *Config
	client *http.Client
}

func NewClient(config *Config) *Client {
	if config.MaxRetries == 0 {
		config.MaxRetries = 1
	}
	return &Client{
		config: config,
		client: &http.Client{
			// Rely only on context for timeouts
		},
	}
}

type rerankRequest struct {
	Model string `json:"model"`
	Input struct {
		SourceSentence string   `json:"source_sentence"`
		Sentences      []string `json:"sentences"`
	} `json:"input"`
}

type rerankResponse struct {
	Output struct {
		Scores []float64 `json:"scores"`
	} `json:"output"`
}

// Score returns one relevance score per sentence, aligned by index with the
// input. A short-count response is an error so callers never misalign scores.
func (c *Client) Score(ctx context.Context, source string, sentences []string) ([]float64, error) {
	reqBody := rerankRequest{Model: c.config.Model}
	reqBody.Input.SourceSentence = source
	reqBody.Input.Sentences = sentences
	body, _ := json.Marshal(reqBody)

	var resp *http.Response
	var lastErr error

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(100*(1<<(attempt-1))) * time.Millisecond
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ErrRerankTimeout
			}
		}

		httpReq, err := http.NewRequestWithContext(ctx, "POST", c.config.BaseURL+"/rerank", bytes.NewBuffer(body))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRerankFailed, err)
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
			return nil, ErrRerankTimeout
		}
	}

	if lastErr != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, ErrRerankTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrRerankFailed, lastErr)
	}

	if resp == nil {
		return nil, fmt.Errorf("%w: no successful response after retries", ErrRerankFailed)
	}
	defer resp.Body.Close()

	var apiResponse rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&apiResponse); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrRerankFailed, err)
	}

	if len(apiResponse.Output.Scores) != len(sentences) {
		return nil, fmt.Errorf("%w: got %d scores for %d sentences",
			ErrRerankFailed, len(apiResponse.Output.Scores), len(sentences))
	}

	return apiResponse.Output.Scores, nil
}
