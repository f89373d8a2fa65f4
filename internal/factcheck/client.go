// Package factcheck verifies claims against an external claim-review
// search API and maps review ratings onto article fact-check statuses.
package factcheck

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/abelbrown/chorus/internal/config"
	"github.com/abelbrown/chorus/internal/model"
)

// Verifier checks one claim against an external review corpus.
type Verifier interface {
	// Verify returns a fact-check status for the claim: verified,
	// disputed, or unclear.
	Verify(ctx context.Context, claim string) (string, error)

	// Available reports whether the verifier is configured to make calls.
	Available() bool
}

// Client talks to a claim-review search endpoint
// (GET {endpoint}?query=...&key=...). Requests are rate limited and
// retried with exponential backoff, same discipline as the embedding
// client: callers see a verdict or a genuinely exhausted error.
type Client struct {
	endpoint string
	apiKey   string
	client   *http.Client
	limiter  *rate.Limiter
}

type searchResponse struct {
	Claims []claim `json:"claims"`
}

type claim struct {
	Text        string        `json:"text"`
	Claimant    string        `json:"claimant,omitempty"`
	ClaimReview []claimReview `json:"claimReview"`
}

type claimReview struct {
	Publisher     publisher `json:"publisher"`
	URL           string    `json:"url"`
	Title         string    `json:"title,omitempty"`
	TextualRating string    `json:"textualRating"`
	ReviewDate    string    `json:"reviewDate,omitempty"`
}

type publisher struct {
	Name string `json:"name"`
	Site string `json:"site"`
}

func NewClient(cfg config.FactCheckConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		endpoint: cfg.Endpoint,
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
		limiter:  rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// Available reports whether the client is configured to make calls.
func (c *Client) Available() bool {
	return c.endpoint != "" && c.apiKey != ""
}

// Verify checks one claim. Claim reviews vote by textual rating:
// disputing language counts against, supporting language counts for,
// majority wins, ties stay unclear. An empty result set is unclear, not
// an error; the absence of reviews says nothing about the claim.
func (c *Client) Verify(ctx context.Context, claim string) (string, error) {
	if strings.TrimSpace(claim) == "" {
		return model.FactCheckUnclear, nil
	}

	resp, err := c.search(ctx, claim)
	if err != nil {
		return "", err
	}
	return verdictFor(resp), nil
}

func (c *Client) search(ctx context.Context, query string) (*searchResponse, error) {
	u, err := url.Parse(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("factcheck: bad endpoint: %w", err)
	}
	q := u.Query()
	q.Set("query", query)
	q.Set("languageCode", "en")
	if c.apiKey != "" {
		q.Set("key", c.apiKey)
	}
	u.RawQuery = q.Encode()

	return c.doWithRetry(ctx, u.String())
}

func verdictFor(resp *searchResponse) string {
	verified, disputed := 0, 0
	for _, cl := range resp.Claims {
		for _, rev := range cl.ClaimReview {
			switch rateReview(rev.TextualRating) {
			case model.FactCheckVerified:
				verified++
			case model.FactCheckDisputed:
				disputed++
			}
		}
	}
	switch {
	case disputed > verified:
		return model.FactCheckDisputed
	case verified > disputed:
		return model.FactCheckVerified
	default:
		return model.FactCheckUnclear
	}
}

// Disputing language is checked first so "mostly false" and "untrue"
// land on the right side despite containing supporting substrings.
var disputingRatings = []string{
	"false", "untrue", "pants on fire", "incorrect", "misleading",
	"fake", "hoax", "debunk", "wrong", "unsupported", "fabricat",
	"baseless", "distort", "exaggerat",
}

var supportingRatings = []string{
	"true", "correct", "accurate", "confirmed", "verified", "legitimate",
}

// rateReview maps one textual rating to a vote.
func rateReview(rating string) string {
	lower := strings.ToLower(rating)
	for _, kw := range disputingRatings {
		if strings.Contains(lower, kw) {
			return model.FactCheckDisputed
		}
	}
	for _, kw := range supportingRatings {
		if strings.Contains(lower, kw) {
			return model.FactCheckVerified
		}
	}
	return model.FactCheckUnclear
}

// doWithRetry executes the GET, retrying up to 3 times on HTTP 429 and
// 5xx with exponential backoff. A Retry-After header on 429 is honored
// up to a 30s cap. Malformed 200 bodies are retryable: truncated JSON
// from an overloaded service is transient.
func (c *Client) doWithRetry(ctx context.Context, requestURL string) (*searchResponse, error) {
	const maxRetries = 3
	backoffs := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("factcheck: rate limiter wait: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return nil, fmt.Errorf("factcheck: create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("factcheck: request cancelled: %w", ctx.Err())
			}
			return nil, fmt.Errorf("factcheck: request failed: %w", err)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("factcheck: read response: %w", err)
		}

		if resp.StatusCode == http.StatusOK {
			var parsed searchResponse
			if err := json.Unmarshal(body, &parsed); err != nil {
				lastErr = fmt.Errorf("factcheck: parse response: %w", err)
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
			return nil, fmt.Errorf("factcheck: service returned status %d: %s", resp.StatusCode, truncateBody(body))
		}

		wait := backoffs[attempt]
		if resp.StatusCode == http.StatusTooManyRequests {
			if after := retryAfter(resp.Header.Get("Retry-After")); after > 0 {
				wait = after
			}
		}
		lastErr = fmt.Errorf("factcheck: service returned status %d", resp.StatusCode)
		if err := sleepCtx(ctx, wait); err != nil {
			return nil, err
		}
	}

	return nil, fmt.Errorf("factcheck: retries exhausted: %w", lastErr)
}

// retryAfter parses a Retry-After header in seconds, capped at 30s.
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
		return fmt.Errorf("factcheck: request cancelled during retry: %w", ctx.Err())
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
