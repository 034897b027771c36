package wallet

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/XavierBriggs/Tyche/pkg/models"
	"github.com/XavierBriggs/Tyche/pkg/testutil"
	"github.com/stretchr/testify/assert"
)

func payout() models.Payout {
	return models.Payout{
		Raffle:    "weekly",
		Round:     3,
		RequestID: 8,
		To:        testutil.PlayerC,
		Amount:    testutil.Amount("0.3"),
	}
}

func TestTransfer(t *testing.T) {
	var got TransferRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/transfers", r.URL.Path)
		assert.Equal(t, "weekly:3", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"ok": true, "tx_hash": "0xabc"}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL + "/", APIKey: "k"}, nil)
	assert.NoError(t, c.Transfer(context.Background(), payout()))

	assert.Equal(t, TransferRequest{
		Raffle:    "weekly",
		Round:     3,
		RequestID: 8,
		To:        testutil.PlayerC,
		Amount:    "0.3",
	}, got)
}

func TestTransfer_FailsClosed(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `boom`},
		{"conflict", http.StatusConflict, `{"ok": false, "error": "already paid"}`},
		{"not confirmed", http.StatusOK, `{"ok": false, "error": "insufficient funds"}`},
		{"garbage", http.StatusOK, `not json`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			c := NewClient(Config{BaseURL: srv.URL}, nil)
			assert.Error(t, c.Transfer(context.Background(), payout()))
		})
	}
}

func TestTransfer_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: url}, nil)
	assert.Error(t, c.Transfer(context.Background(), payout()))
}

func TestTransfer_IdempotencyKeyFollowsRoundID(t *testing.T) {
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer srv.Close()

	c := NewClient(Config{BaseURL: srv.URL}, nil)

	// Same raffle and round number from two process lifetimes
	first := payout()
	first.RoundID = "6f1c2f4e-0d43-4a57-9a43-3c1d0e6a7b10"
	second := payout()
	second.RoundID = "a2b9e0c7-51f8-4c8e-8d5e-7f0b3a91c2d4"

	assert.NoError(t, c.Transfer(context.Background(), first))
	assert.NoError(t, c.Transfer(context.Background(), first))
	assert.NoError(t, c.Transfer(context.Background(), second))

	assert.Equal(t, []string{
		"weekly:6f1c2f4e-0d43-4a57-9a43-3c1d0e6a7b10",
		"weekly:6f1c2f4e-0d43-4a57-9a43-3c1d0e6a7b10",
		"weekly:a2b9e0c7-51f8-4c8e-8d5e-7f0b3a91c2d4",
	}, keys)
}
