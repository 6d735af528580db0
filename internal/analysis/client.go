// Package analysis maps transcripts to structured expense interpretations
// via a remote text-completion service.
package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BufaXiwang/AudioExpenseTracker/internal/common"
	"github.com/BufaXiwang/AudioExpenseTracker/internal/model"
	"github.com/BufaXiwang/AudioExpenseTracker/internal/service"
)

// ErrInvalidResponse indicates the service answered with an envelope we
// could not use (bad JSON or no completion choices).
var ErrInvalidResponse = errors.New("invalid analysis response")

// apiError is a non-200 answer from the analysis endpoint.
type apiError struct {
	status int
}

func (e *apiError) Error() string {
	return fmt.Sprintf("analysis API error (status %d)", e.status)
}

// IsAuthError reports whether err is an authentication failure (HTTP
// 401/403), which retrying cannot fix.
func IsAuthError(err error) bool {
	var ae *apiError
	if errors.As(err, &ae) {
		return ae.status == http.StatusUnauthorized || ae.status == http.StatusForbidden
	}
	return false
}

// Config holds analysis client settings.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxRetries  int
	MaxTokens   int
	Temperature float64
	RetryDelay  time.Duration
	Timeout     time.Duration
}

// Client talks to the completion endpoint. Transport failures are retried
// with backoff and surfaced after exhaustion; unparseable completion
// content is absorbed into a deterministic fallback and never surfaced.
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	cfg        Config
	retryOpts  service.RetryOptions
}

var _ service.Analyzer = (*Client)(nil)

// NewClient creates an analysis client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Model == "" {
		cfg.Model = "gpt-4o-mini"
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 500
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = 0.2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	retryOpts := service.RetryOptions{
		MaxAttempts:  cfg.MaxRetries,
		InitialDelay: cfg.RetryDelay,
		MaxDelay:     8 * time.Second,
		Multiplier:   2.0,
	}
	if retryOpts.MaxAttempts == 0 {
		retryOpts.MaxAttempts = 3
	}
	if retryOpts.InitialDelay == 0 {
		retryOpts.InitialDelay = time.Second
	}

	return &Client{
		cfg:       cfg,
		logger:    logger,
		retryOpts: retryOpts,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Analyze converts a transcript into a structured expense interpretation.
// Misconfiguration (missing key, bad URL, unencodable request) fails fast;
// transport errors are retried up to the configured attempts with 401/403
// aborting immediately. Once the service answers 200, Analyze always
// returns a usable result: unparseable content becomes the fallback.
func (c *Client) Analyze(ctx context.Context, request model.AnalysisRequest) (model.AnalysisResult, error) {
	started := time.Now()

	if c.cfg.APIKey == "" {
		return model.AnalysisResult{}, common.ErrMissingAPIKey
	}
	endpoint, err := completionEndpoint(c.cfg.BaseURL)
	if err != nil {
		return model.AnalysisResult{}, err
	}

	body, err := json.Marshal(map[string]any{
		"model": c.cfg.Model,
		"messages": []map[string]string{
			{"role": "user", "content": buildPrompt(request)},
		},
		"max_tokens":  c.cfg.MaxTokens,
		"temperature": c.cfg.Temperature,
		"stream":      false,
	})
	if err != nil {
		return model.AnalysisResult{}, fmt.Errorf("failed to encode analysis request: %w", err)
	}

	var content string
	err = common.WithRetry(ctx, func() error {
		text, callErr := c.complete(ctx, endpoint, body)
		if callErr != nil {
			retryErr := &common.RetryableError{Err: callErr, Retryable: !IsAuthError(callErr)}
			c.logger.Warn("analysis attempt failed",
				"request_id", request.RequestID,
				"retryable", common.IsRetryable(retryErr),
				"error", callErr)
			return retryErr
		}
		content = text
		return nil
	}, c.retryOpts)
	if err != nil {
		return model.AnalysisResult{}, err
	}

	result, ok := parseContent(content, request)
	if !ok {
		c.logger.Info("completion content not parseable, using fallback",
			"request_id", request.RequestID)
		result = fallbackResult(request)
	}
	result.ProcessingTime = time.Since(started)

	c.logger.Info("transcript analyzed",
		"request_id", request.RequestID,
		"valid", result.IsValid(),
		"category", result.Category,
		"alternatives", len(result.Alternatives),
		"processing_time", result.ProcessingTime)
	return result, nil
}

// completionEndpoint resolves the chat completions URL. A bare host keeps
// the conventional path; a base URL that already carries a path is used
// as-is so self-hosted gateways work.
func completionEndpoint(baseURL string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", fmt.Errorf("%w: %q", common.ErrInvalidBaseURL, baseURL)
	}
	if parsed.Path == "" || parsed.Path == "/" {
		parsed.Path = "/v1/chat/completions"
	}
	return parsed.String(), nil
}

// complete performs one HTTP attempt and returns the completion text.
func (c *Client) complete(ctx context.Context, endpoint string, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(body)))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", fmt.Errorf("%w: %s", common.ErrRateLimit, string(respBody))
	}
	if resp.StatusCode != http.StatusOK {
		return "", &apiError{status: resp.StatusCode}
	}

	var envelope struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &envelope); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(envelope.Choices) == 0 {
		return "", fmt.Errorf("%w: no completion choices returned", ErrInvalidResponse)
	}
	return envelope.Choices[0].Message.Content, nil
}
