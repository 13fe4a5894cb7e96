package ocrapi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	EngineName = "paddle"

	maxResponseBytes = 256 << 20
)

// Client calls a PaddleOCR-VL style layout-parsing endpoint.
type Client struct {
	httpClient      *http.Client
	apiURL          string
	apiKey          string
	maxRetries      int
	initialInterval time.Duration
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// WithRetry sets how often transient failures are retried and the first backoff interval.
func WithRetry(maxRetries int, initialInterval time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.initialInterval = initialInterval
	}
}

func NewClient(apiURL, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		httpClient:      &http.Client{Timeout: 120 * time.Second},
		apiURL:          apiURL,
		apiKey:          apiKey,
		maxRetries:      2,
		initialInterval: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Name() string { return EngineName }

// RecognizeFile reads the file and picks the document type from its extension.
func (c *Client) RecognizeFile(ctx context.Context, path string, opts Options) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return c.Recognize(ctx, Document{
		Name: filepath.Base(path),
		Data: data,
		Type: FileTypeFor(path),
	}, opts)
}

// RecognizeBytes recognizes in-memory image bytes such as a screenshot.
func (c *Client) RecognizeBytes(ctx context.Context, data []byte, opts Options) (*Result, error) {
	return c.Recognize(ctx, Document{Name: "screenshot.png", Data: data, Type: FileTypeImage}, opts)
}

// Recognize sends the document and retries transient failures with exponential backoff.
func (c *Client) Recognize(ctx context.Context, doc Document, opts Options) (*Result, error) {
	if len(doc.Data) == 0 {
		return nil, ErrEmptyDocument
	}

	body, err := json.Marshal(request{
		File:     base64.StdEncoding.EncodeToString(doc.Data),
		FileType: doc.Type,
		Options:  opts,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialInterval
	retryPolicy := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(max(c.maxRetries, 0))), ctx)

	attempt := 0
	start := time.Now()
	result, err := backoff.RetryWithData(func() (*Result, error) {
		attempt++
		res, err := c.send(ctx, body)
		if err == nil {
			return res, nil
		}
		if !isTransient(ctx, err) {
			return nil, backoff.Permanent(err)
		}
		slog.Warn("ocr request failed, retrying",
			"attempt", attempt,
			"document", doc.Name,
			"error", err)
		return nil, err
	}, retryPolicy)
	if err != nil {
		return nil, fmt.Errorf("ocr request for %s failed after %d attempt(s): %w", doc.Name, attempt, err)
	}

	slog.Info("ocr request completed",
		"document", doc.Name,
		"file_type", int(doc.Type),
		"pages", len(result.Pages),
		"attempts", attempt,
		"duration_ms", time.Since(start).Milliseconds())
	return result, nil
}

func (c *Client) send(ctx context.Context, body []byte) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "token "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			slog.Debug("failed to close ocr response body", "error", cerr)
		}
	}()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(payload)}
	}

	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "invalid json response", Body: string(payload)}
	}
	if env.ErrorCode != 0 {
		return nil, &APIError{StatusCode: resp.StatusCode, ErrorCode: env.ErrorCode, Message: env.ErrorMsg}
	}
	if len(env.Result) == 0 || string(env.Result) == "null" {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: "response has no result", Body: string(payload)}
	}

	result, err := ParseResult(env.Result)
	if err != nil {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: err.Error()}
	}
	result.LogID = env.LogID
	return result, nil
}

// isTransient treats network failures, 429 and 5xx as retryable.
func isTransient(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}

// FileTypeFor maps .pdf to FileTypePDF and everything else to FileTypeImage.
func FileTypeFor(name string) FileType {
	if strings.EqualFold(filepath.Ext(name), ".pdf") {
		return FileTypePDF
	}
	return FileTypeImage
}
