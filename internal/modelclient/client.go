// internal/modelclient/client.go

// Package modelclient implements the Responses API client the turn
// controller talks to. One logical request may span several HTTP exchanges:
// transient statuses are retried on an exponential backoff schedule while
// client errors fail immediately.
package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/xkilldash9x/operant/api/schemas"
	"github.com/xkilldash9x/operant/internal/agent"
	"github.com/xkilldash9x/operant/internal/config"
)

// defaultTruncation lets the API drop the oldest context when the history
// outgrows the model window, which long computer-use turns routinely do.
const defaultTruncation = "auto"

// Client talks to an OpenAI-compatible Responses endpoint.
type Client struct {
	cfg        config.ModelConfig
	endpoint   string
	httpClient *http.Client
	logger     *zap.Logger

	// newBackOff builds the retry schedule for one CreateResponse call.
	// Swapped out in tests to keep retries fast.
	newBackOff func() backoff.BackOff
}

var _ agent.ModelRequester = (*Client)(nil)

// requestPayload is the Responses API request body.
type requestPayload struct {
	Model      string         `json:"model"`
	Input      []schemas.Item `json:"input"`
	Tools      []schemas.Tool `json:"tools,omitempty"`
	Truncation string         `json:"truncation,omitempty"`
}

// apiError is the error envelope the API wraps failures in.
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// NewClient initializes the client from the model configuration. The API
// key must already be resolved (config binds OPENAI_API_KEY).
func NewClient(cfg config.ModelConfig, logger *zap.Logger) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("model API key is required (set OPENAI_API_KEY)")
	}

	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	maxElapsed := cfg.MaxElapsed
	if maxElapsed <= 0 {
		maxElapsed = 2 * time.Minute
	}

	return &Client{
		cfg:      cfg,
		endpoint: base + "/responses",
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.Named("model_client"),
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxInterval = 30 * time.Second
			b.MaxElapsedTime = maxElapsed
			return b
		},
	}, nil
}

// CreateResponse sends the conversation and tool declarations to the model
// and returns the decoded response, retrying transient failures.
func (c *Client) CreateResponse(ctx context.Context, input []schemas.Item, tools []schemas.Tool) (*schemas.ModelResponse, error) {
	payload := requestPayload{
		Model:      c.cfg.Model,
		Input:      input,
		Tools:      tools,
		Truncation: defaultTruncation,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	if c.logger.Core().Enabled(zap.DebugLevel) {
		// Image payloads are stripped so the dump stays readable.
		c.logger.Debug("Dispatching model request.",
			zap.String("model", c.cfg.Model),
			zap.Int("items", len(input)),
			zap.Int("tools", len(tools)),
			zap.Any("input", schemas.SanitizedHistory(input)))
	}

	var response *schemas.ModelResponse

	operation := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create HTTP request: %w", err))
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		if c.cfg.Org != "" {
			httpReq.Header.Set("Openai-Organization", c.cfg.Org)
		}

		startTime := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		duration := time.Since(startTime)

		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			c.logger.Warn("Network error during model request, retrying...", zap.Error(err))
			return fmt.Errorf("failed to execute HTTP request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response body: %w", err)
		}

		if resp.StatusCode != http.StatusOK {
			return c.handleAPIError(resp.StatusCode, respBody)
		}

		var decoded schemas.ModelResponse
		if err := json.Unmarshal(respBody, &decoded); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode response payload: %w", err))
		}
		if len(decoded.Output) == 0 {
			return backoff.Permanent(fmt.Errorf("model returned an empty output"))
		}

		fields := []zap.Field{
			zap.Duration("duration", duration),
			zap.String("response_id", decoded.ID),
			zap.Int("output_items", len(decoded.Output)),
		}
		if decoded.Usage != nil {
			fields = append(fields,
				zap.Int("input_tokens", decoded.Usage.InputTokens),
				zap.Int("output_tokens", decoded.Usage.OutputTokens),
				zap.Int("total_tokens", decoded.Usage.TotalTokens))
		}
		c.logger.Info("Model exchange complete.", fields...)

		response = &decoded
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(c.newBackOff(), ctx)); err != nil {
		return nil, err
	}
	return response, nil
}

// handleAPIError folds a non-200 exchange into a retryable or permanent
// error. Rate limits and server-side failures are worth retrying; anything
// else means the request itself is wrong.
func (c *Client) handleAPIError(statusCode int, body []byte) error {
	message := strings.TrimSpace(string(body))
	var decoded apiError
	if err := json.Unmarshal(body, &decoded); err == nil && decoded.Error.Message != "" {
		message = decoded.Error.Message
	}

	c.logger.Error("Model API returned error status",
		zap.Int("status", statusCode),
		zap.String("message", message))
	err := fmt.Errorf("model API error: status %d: %s", statusCode, message)

	switch statusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return err
	default:
		return backoff.Permanent(err)
	}
}
