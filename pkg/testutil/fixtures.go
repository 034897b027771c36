package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/XavierBriggs/Tyche/pkg/models"
	"github.com/shopspring/decimal"
)

// Test participant addresses
const (
	PlayerA = "0x70997970C51812dc3A010C7d01b50e0d17dc79C8"
	PlayerB = "0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC"
	PlayerC = "0x90F79bf6EB2c4f870365E785982E1f101E93b906"
	PlayerD = "0x15d34AAf54267DB7D7c367839AAf71A00a2C6A65"
)

// TestGasLane is the key hash used by test raffles
const TestGasLane = "0xd89b2bf150e3b9e13446986e571fb9cab24b13cea0a43ea20a6049a85cc807cc"

// Amount parses a decimal literal, panicking on bad input
func Amount(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// ManualClock is a clock that only moves when told to
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock fixed at start
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current fake time
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// RecordingOracle hands out sequential request ids and records every request
type RecordingOracle struct {
	mu       sync.Mutex
	next     models.RequestID
	requests []models.RandomWordsRequest
	Err      error
}

// NewRecordingOracle creates an oracle whose first request id is 1
func NewRecordingOracle() *RecordingOracle {
	return &RecordingOracle{next: 1}
}

// RequestRandomWords records req and returns the next id, or Err when set
func (o *RecordingOracle) RequestRandomWords(ctx context.Context, req models.RandomWordsRequest) (models.RequestID, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.Err != nil {
		return 0, o.Err
	}
	id := o.next
	o.next++
	o.requests = append(o.requests, req)
	return id, nil
}

// Requests returns the recorded requests
func (o *RecordingOracle) Requests() []models.RandomWordsRequest {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]models.RandomWordsRequest, len(o.requests))
	copy(out, o.requests)
	return out
}

// RecordingSink records payouts and optionally fails them
type RecordingSink struct {
	mu      sync.Mutex
	payouts []models.Payout
	Err     error
}

// Transfer records payout, or returns Err when set
func (s *RecordingSink) Transfer(ctx context.Context, payout models.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.Err != nil {
		return s.Err
	}
	s.payouts = append(s.payouts, payout)
	return nil
}

// SetErr changes the failure returned by Transfer
func (s *RecordingSink) SetErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Err = err
}

// Payouts returns the recorded payouts
func (s *RecordingSink) Payouts() []models.Payout {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Payout, len(s.payouts))
	copy(out, s.payouts)
	return out
}

// RecordingNotifier records notifications
type RecordingNotifier struct {
	mu    sync.Mutex
	items []models.Notification
}

// Notify records n
func (r *RecordingNotifier) Notify(ctx context.Context, n models.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

// Kinds returns the recorded notification kinds in order
func (r *RecordingNotifier) Kinds() []models.NotificationKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.NotificationKind, len(r.items))
	for i, n := range r.items {
		out[i] = n.Kind
	}
	return out
}

// Last returns the most recent notification
func (r *RecordingNotifier) Last() (models.Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.items) == 0 {
		return models.Notification{}, false
	}
	return r.items[len(r.items)-1], true
}
