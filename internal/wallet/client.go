// Package wallet provides an HTTP payout sink that asks an external wallet service
// to transfer a round's balance to its winner.
package wallet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/XavierBriggs/Tyche/internal/obs"
	"github.com/XavierBriggs/Tyche/pkg/contracts"
	"github.com/XavierBriggs/Tyche/pkg/models"
	"github.com/sirupsen/logrus"
)

// Client handles HTTP communication with the wallet service
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        logrus.FieldLogger
}

// Config holds configuration for the wallet client
type Config struct {
	BaseURL string // e.g., "http://localhost:5010"
	APIKey  string
	Timeout time.Duration
}

// TransferRequest is the request format for a payout transfer
type TransferRequest struct {
	Raffle    string `json:"raffle"`
	Round     uint64 `json:"round"`
	RequestID uint64 `json:"request_id"`
	To        string `json:"to"`
	Amount    string `json:"amount"`
}

// TransferResponse is the response from the transfers endpoint
type TransferResponse struct {
	OK     bool   `json:"ok"`
	TxHash string `json:"tx_hash,omitempty"`
	Error  string `json:"error,omitempty"`
}

var _ contracts.PayoutSink = (*Client)(nil)

// NewClient creates a new wallet client
func NewClient(cfg Config, log logrus.FieldLogger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	if log == nil {
		log = obs.NopLogger()
	}

	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log: log.WithField("component", "wallet"),
	}
}

// Transfer asks the wallet to pay payout.Amount to payout.To
// Any non-2xx status or a response without ok=true is a failure
func (c *Client) Transfer(ctx context.Context, payout models.Payout) error {
	req := TransferRequest{
		Raffle:    payout.Raffle,
		Round:     payout.Round,
		RequestID: uint64(payout.RequestID),
		To:        payout.To,
		Amount:    payout.Amount.String(),
	}

	jsonData, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal transfer request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transfers", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// One transfer per round; lets the wallet reject replays
	httpReq.Header.Set("Idempotency-Key", idempotencyKey(payout))
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("transfer request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("transfer rejected (status %d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var transferResp TransferResponse
	if err := json.Unmarshal(body, &transferResp); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	if !transferResp.OK {
		return fmt.Errorf("transfer not confirmed: %s", transferResp.Error)
	}

	c.log.WithFields(logrus.Fields{
		"raffle":  payout.Raffle,
		"round":   payout.Round,
		"winner":  payout.To,
		"amount":  req.Amount,
		"tx_hash": transferResp.TxHash,
	}).Info("transfer confirmed")

	return nil
}

// idempotencyKey prefers the round id, which never repeats across process restarts
func idempotencyKey(payout models.Payout) string {
	if payout.RoundID != "" {
		return payout.Raffle + ":" + payout.RoundID
	}
	return payout.Raffle + ":" + strconv.FormatUint(payout.Round, 10)
}
