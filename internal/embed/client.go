package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"
)

// batchChunkSize caps inputs per API request. Smaller chunks keep
// responses reliably parseable and bound the cost of one retry.
const batchChunkSize = 25

// Client talks to an OpenAI-compatible embeddings endpoint
// (POST {endpoint} with {"model", "input", "dimensions"}). Requests are
// rate limited and retried with exponential backoff, so callers see
// either a vector or a genuinely exhausted error.
type Client struct {
	endpoint string
	apiKey   string
	model    string
	dims     int
	client   *http.Client
	limiter  *rate.Limiter
}

type embedRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embedResponse struct {
	Data []embedding `json:"data"`
}

type embedding struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

// NewClient builds a Client for the given endpoint. requestsPerMinute
// throttles the hosted API; zero means a conservative 60 RPM.
func NewClient(endpoint, apiKey, model string, dims, requestsPerMinute int) *Client {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	every := time.Minute / time.Duration(requestsPerMinute)
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		model:    model,
		dims:     dims,
		client:   &http.Client{Timeout: 60 * time.Second},
		limiter:  rate.NewLimiter(rate.Every(every), 1),
	}
}

// Available reports whether the client is configured to make calls.
func (c *Client) Available() bool {
	return c.endpoint != "" && c.apiKey != ""
}

// Embed generates a vector embedding for one text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("embed: service returned no embeddings")
	}
	return resp.Data[0].Embedding, nil
}

// EmbedBatch generates embeddings for multiple texts, chunked to respect
// API limits. result[i] corresponds to texts[i]: the service's Index
// field is used to reassemble order, and a missing index is an error
// rather than a silently nil vector.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, len(texts))

	for start := 0; start < len(texts); start += batchChunkSize {
		end := start + batchChunkSize
		if end > len(texts) {
			end = len(texts)
		}
		chunk := texts[start:end]

		resp, err := c.embed(ctx, chunk)
		if err != nil {
			return nil, fmt.Errorf("embed: batch chunk starting at %d failed: %w", start, err)
		}

		for _, item := range resp.Data {
			if item.Index < 0 || item.Index >= len(chunk) {
				return nil, fmt.Errorf("embed: service returned out-of-range index %d for chunk of size %d", item.Index, len(chunk))
			}
			results[start+item.Index] = item.Embedding
		}
	}

	for i, r := range results {
		if r == nil {
			return nil, fmt.Errorf("embed: missing embedding for index %d", i)
		}
	}

	return results, nil
}

func (c *Client) embed(ctx context.Context, input []string) (*embedResponse, error) {
	body, err := json.Marshal(embedRequest{
		Model:      c.model,
		Input:      input,
		Dimensions: c.dims,
	})
	if err != nil {
		return nil, fmt.Errorf("embed: marshal request: %w", err)
	}
	return c.doWithRetry(ctx, body)
}

// doWithRetry executes the API request, retrying up to 3 times on HTTP
// 429 and 5xx with exponential backoff. A Retry-After header on 429 is
// honored up to a 30s cap. Malformed 200 bodies are treated as
// retryable: truncated JSON from an overloaded service is transient.
func (c *Client) doWithRetry(ctx context.Context, reqBody []byte) (*embedResponse, error) {
	const maxRetries = 3
	backoffs := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("embed: rate limiter wait: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(reqBody))
		if err != nil {
			return nil, fmt.Errorf("embed: create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("embed: request cancelled: %w", ctx.Err())
			}
			return nil, fmt.Errorf("embed: request failed: %w", err)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("embed: read response: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			var parsed embedResponse
			if err := json.Unmarshal(body, &parsed); err != nil {
				lastErr = fmt.Errorf("embed: parse response: %w", err)
				if attempt < maxRetries {
					if err := sleepCtx(ctx, backoffs[attempt]); err != nil {
						return nil, err
					}
				}
				continue
			}
			return &parsed, nil
		}

		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		if !retryable || attempt == maxRetries {
			return nil, fmt.Errorf("embed: service returned status %d: %s", resp.StatusCode, truncateBody(body))
		}

		wait := backoffs[attempt]
		if resp.StatusCode == http.StatusTooManyRequests {
			if after := retryAfter(resp.Header.Get("Retry-After")); after > 0 {
				wait = after
			}
		}
		lastErr = fmt.Errorf("embed: service returned status %d", resp.StatusCode)
		if err := sleepCtx(ctx, wait); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("embed: retries exhausted: %w", lastErr)
}

// retryAfter parses a Retry-After header in seconds, capped at 30s so a
// misbehaving service cannot stall a tier indefinitely.
func retryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	secs, err := strconv.Atoi(header)
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("embed: request cancelled during retry: %w", ctx.Err())
	case <-time.After(d):
		return nil
	}
}

func truncateBody(body []byte) string {
	const max = 200
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
