package vrfhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/XavierBriggs/Tyche/pkg/contracts"
	"github.com/XavierBriggs/Tyche/pkg/models"
	"github.com/google/uuid"
)

const (
	userAgent         = "Tyche/1.0 (Raffle Keeper)"
	defaultTimeout    = 10 * time.Second
	defaultMaxRetries = 3
	defaultRetryDelay = 2 * time.Second
	requestsPath      = "/v1/requests"
	callbackPathFmt   = "/v1/raffles/%s/fulfillments"
)

// Config holds the remote coordinator settings
type Config struct {
	BaseURL     string // coordinator endpoint, e.g. "https://vrf.example.com"
	APIKey      string
	CallbackURL string // public base URL of this server; fulfillments are POSTed back here
	Timeout     time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
}

// Client requests randomness from a remote coordinator over HTTP
// The coordinator answers asynchronously by calling the raffle's fulfillment endpoint
type Client struct {
	baseURL     string
	apiKey      string
	callbackURL string
	httpClient  *http.Client
	maxRetries  int
	retryDelay  time.Duration
}

// Ensure Client implements RandomnessOracle
var _ contracts.RandomnessOracle = (*Client)(nil)

// NewClient creates a coordinator client
func NewClient(cfg Config) (*Client, error) {
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("invalid coordinator url %q: %w", cfg.BaseURL, err)
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	retryDelay := cfg.RetryDelay
	if retryDelay == 0 {
		retryDelay = defaultRetryDelay
	}

	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		callbackURL: strings.TrimRight(cfg.CallbackURL, "/"),
		httpClient:  &http.Client{Timeout: timeout},
		maxRetries:  maxRetries,
		retryDelay:  retryDelay,
	}, nil
}

// RequestRandomWords submits a request and returns the coordinator-assigned id
func (c *Client) RequestRandomWords(ctx context.Context, req models.RandomWordsRequest) (models.RequestID, error) {
	payload := requestPayload{
		KeyHash:              req.KeyHash,
		SubscriptionID:       req.SubscriptionID,
		RequestConfirmations: req.RequestConfirmations,
		CallbackGasLimit:     req.CallbackGasLimit,
		NumWords:             req.NumWords,
		Consumer:             req.Consumer,
	}
	if c.callbackURL != "" {
		payload.CallbackURL = c.callbackURL + fmt.Sprintf(callbackPathFmt, url.PathEscape(req.Consumer))
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("marshal request: %w", err)
	}

	// Same key on every attempt so the coordinator can dedupe retries
	idempotencyKey := uuid.NewString()

	body, err := c.doRequestWithRetry(ctx, data, idempotencyKey)
	if err != nil {
		return 0, fmt.Errorf("request random words failed: %w", err)
	}

	var resp requestResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return 0, fmt.Errorf("parse request response: %w", err)
	}
	if resp.RequestID == 0 {
		return 0, errors.New("coordinator returned no request id")
	}

	return models.RequestID(resp.RequestID), nil
}

// doRequestWithRetry performs the POST with retry logic
func (c *Client) doRequestWithRetry(ctx context.Context, data []byte, idempotencyKey string) ([]byte, error) {
	var lastErr error

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff
			backoff := c.retryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		body, err := c.doRequest(ctx, data, idempotencyKey)
		if err == nil {
			return body, nil
		}

		lastErr = err

		// Don't retry on client errors (4xx except 429)
		var httpErr *HTTPError
		if errors.As(err, &httpErr) {
			if httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 && httpErr.StatusCode != http.StatusTooManyRequests {
				return nil, err
			}
		}
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}

// doRequest performs a single HTTP request
func (c *Client) doRequest(ctx context.Context, data []byte, idempotencyKey string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+requestsPath, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Idempotency-Key", idempotencyKey)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusCreated {
		return nil, &HTTPError{
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(body)),
		}
	}

	return body, nil
}

// HTTPError is a non-success response from the coordinator
type HTTPError struct {
	StatusCode int
	Message    string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

type requestPayload struct {
	KeyHash              string `json:"key_hash"`
	SubscriptionID       uint64 `json:"subscription_id"`
	RequestConfirmations uint16 `json:"request_confirmations"`
	CallbackGasLimit     uint32 `json:"callback_gas_limit"`
	NumWords             uint32 `json:"num_words"`
	Consumer             string `json:"consumer"`
	CallbackURL          string `json:"callback_url,omitempty"`
}

type requestResponse struct {
	RequestID uint64 `json:"request_id"`
}
