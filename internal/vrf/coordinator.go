// Package vrf provides an in-process VRF coordinator for development networks.
//
// It hands out sequential request ids, keeps each request pending until it is fulfilled,
// and delivers words to the consumer registered under the request's consumer name.
// Subscriptions are charged baseFee + callbackGasLimit*gasPriceLink when a request is
// fulfilled, the same way the local-network mock coordinator bills them.
package vrf

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/XavierBriggs/Tyche/internal/obs"
	"github.com/XavierBriggs/Tyche/pkg/contracts"
	"github.com/XavierBriggs/Tyche/pkg/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/sha3"
)

// MaxNumWords is the largest number of words a single request may ask for
const MaxNumWords uint32 = 500

var (
	ErrInvalidSubscription = errors.New("invalid subscription")
	ErrInvalidConsumer     = errors.New("consumer not registered on subscription")
	ErrInsufficientBalance = errors.New("insufficient subscription balance")
	ErrNonexistentRequest  = errors.New("nonexistent request")
	ErrInvalidRandomWords  = errors.New("invalid random words")
	ErrInvalidNumWords     = errors.New("invalid number of words")
)

// Config holds coordinator pricing and worker settings
type Config struct {
	BaseFee      decimal.Decimal // LINK charged per fulfillment
	GasPriceLink decimal.Decimal // LINK per unit of callback gas

	// Worker settings; ignored unless Start is called
	FulfillDelay time.Duration // minimum age before a request is auto-fulfilled
	PollInterval time.Duration
	MaxAttempts  int // consumer rejections before a request is dropped
}

// DefaultConfig mirrors the local mock: 0.25 LINK base fee, 1e9 wei gas price
func DefaultConfig() Config {
	return Config{
		BaseFee:      decimal.RequireFromString("0.25"),
		GasPriceLink: decimal.New(1, -9),
		FulfillDelay: 2 * time.Second,
		PollInterval: time.Second,
		MaxAttempts:  5,
	}
}

// Subscription is a funded billing account for randomness requests
type Subscription struct {
	ID        uint64          `json:"id"`
	Balance   decimal.Decimal `json:"balance"`
	Consumers []string        `json:"consumers"`
	Requests  uint64          `json:"requests"`
}

// Request is a pending randomness request
type Request struct {
	ID               models.RequestID `json:"id"`
	SubscriptionID   uint64           `json:"subscription_id"`
	Consumer         string           `json:"consumer"`
	KeyHash          string           `json:"key_hash"`
	NumWords         uint32           `json:"num_words"`
	CallbackGasLimit uint32           `json:"callback_gas_limit"`
	RequestedAt      time.Time        `json:"requested_at"`
	Attempts         int              `json:"attempts"`
}

type subscription struct {
	balance   decimal.Decimal
	consumers map[string]bool
	requests  uint64
}

// Coordinator is an in-memory randomness oracle
type Coordinator struct {
	cfg   Config
	clock contracts.Clock
	log   logrus.FieldLogger

	mu        sync.Mutex
	nextSub   uint64
	nextReq   models.RequestID
	subs      map[uint64]*subscription
	pending   map[models.RequestID]*Request
	consumers map[string]contracts.RandomWordsConsumer

	stopChan chan struct{}
	wg       sync.WaitGroup
}

var _ contracts.RandomnessOracle = (*Coordinator)(nil)

// NewCoordinator creates a coordinator with no subscriptions
func NewCoordinator(cfg Config, clock contracts.Clock, log logrus.FieldLogger) *Coordinator {
	if log == nil {
		log = obs.NopLogger()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	return &Coordinator{
		cfg:       cfg,
		clock:     clock,
		log:       log.WithField("component", "vrf"),
		nextSub:   1,
		nextReq:   1,
		subs:      make(map[uint64]*subscription),
		pending:   make(map[models.RequestID]*Request),
		consumers: make(map[string]contracts.RandomWordsConsumer),
		stopChan:  make(chan struct{}),
	}
}

// CreateSubscription opens an empty subscription and returns its id
func (c *Coordinator) CreateSubscription() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextSub
	c.nextSub++
	c.subs[id] = &subscription{balance: decimal.Zero, consumers: make(map[string]bool)}
	c.log.WithField("subscription_id", id).Info("subscription created")
	return id
}

// FundSubscription adds amount to the subscription balance
func (c *Coordinator) FundSubscription(subID uint64, amount decimal.Decimal) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subs[subID]
	if !ok {
		return fmt.Errorf("fund subscription %d: %w", subID, ErrInvalidSubscription)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("fund subscription %d: amount must be > 0, got %s", subID, amount)
	}
	sub.balance = sub.balance.Add(amount)
	return nil
}

// AddConsumer authorizes name to request against the subscription and routes its fulfillments to consumer
func (c *Coordinator) AddConsumer(subID uint64, name string, consumer contracts.RandomWordsConsumer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subs[subID]
	if !ok {
		return fmt.Errorf("add consumer %s: %w", name, ErrInvalidSubscription)
	}
	sub.consumers[name] = true
	c.consumers[name] = consumer
	return nil
}

// GetSubscription returns a copy of the subscription
func (c *Coordinator) GetSubscription(subID uint64) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subs[subID]
	if !ok {
		return Subscription{}, fmt.Errorf("get subscription %d: %w", subID, ErrInvalidSubscription)
	}
	out := Subscription{ID: subID, Balance: sub.balance, Requests: sub.requests}
	for name := range sub.consumers {
		out.Consumers = append(out.Consumers, name)
	}
	sort.Strings(out.Consumers)
	return out, nil
}

// RequestRandomWords records a pending request; delivery happens later through
// FulfillRandomWords or the background worker, never from inside this call
func (c *Coordinator) RequestRandomWords(ctx context.Context, req models.RandomWordsRequest) (models.RequestID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	sub, ok := c.subs[req.SubscriptionID]
	if !ok {
		return 0, fmt.Errorf("request random words: %w", ErrInvalidSubscription)
	}
	if !sub.consumers[req.Consumer] {
		return 0, fmt.Errorf("request random words for %s: %w", req.Consumer, ErrInvalidConsumer)
	}
	if req.NumWords == 0 || req.NumWords > MaxNumWords {
		return 0, fmt.Errorf("request random words: %w: %d", ErrInvalidNumWords, req.NumWords)
	}

	id := c.nextReq
	c.nextReq++
	sub.requests++
	c.pending[id] = &Request{
		ID:               id,
		SubscriptionID:   req.SubscriptionID,
		Consumer:         req.Consumer,
		KeyHash:          req.KeyHash,
		NumWords:         req.NumWords,
		CallbackGasLimit: req.CallbackGasLimit,
		RequestedAt:      c.clock.Now(),
	}

	c.log.WithFields(logrus.Fields{
		"request_id":      id,
		"consumer":        req.Consumer,
		"subscription_id": req.SubscriptionID,
	}).Debug("random words requested")
	return id, nil
}

// Pending returns outstanding requests ordered by id
func (c *Coordinator) Pending() []Request {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Request, 0, len(c.pending))
	for _, r := range c.pending {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Payment returns the LINK charged for a fulfillment with the given callback gas limit
func (c *Coordinator) Payment(callbackGasLimit uint32) decimal.Decimal {
	return c.cfg.BaseFee.Add(c.cfg.GasPriceLink.Mul(decimal.NewFromInt(int64(callbackGasLimit))))
}

// FulfillRandomWords delivers deterministic words derived from the request id
func (c *Coordinator) FulfillRandomWords(ctx context.Context, id models.RequestID) error {
	return c.FulfillRandomWordsWithOverride(ctx, id, nil)
}

// FulfillRandomWordsWithOverride delivers words to the request's consumer
// An empty words slice falls back to derived words; otherwise its length must match the request
func (c *Coordinator) FulfillRandomWordsWithOverride(ctx context.Context, id models.RequestID, words []*big.Int) error {
	// Step 1: Validate and price the request
	c.mu.Lock()
	req, ok := c.pending[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("fulfill request %d: %w", id, ErrNonexistentRequest)
	}
	if len(words) == 0 {
		words = DeriveWords(id, req.NumWords)
	} else if uint32(len(words)) != req.NumWords {
		c.mu.Unlock()
		return fmt.Errorf("fulfill request %d: %w: got %d, want %d", id, ErrInvalidRandomWords, len(words), req.NumWords)
	}

	sub, ok := c.subs[req.SubscriptionID]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("fulfill request %d: %w", id, ErrInvalidSubscription)
	}
	payment := c.Payment(req.CallbackGasLimit)
	if sub.balance.LessThan(payment) {
		c.mu.Unlock()
		return fmt.Errorf("fulfill request %d: %w: balance %s, payment %s", id, ErrInsufficientBalance, sub.balance, payment)
	}
	consumer := c.consumers[req.Consumer]
	c.mu.Unlock()

	if consumer == nil {
		return fmt.Errorf("fulfill request %d: %w: %s", id, ErrInvalidConsumer, req.Consumer)
	}

	// Step 2: Deliver outside the lock; the consumer takes its own
	deliverErr := consumer.FulfillRandomWords(ctx, id, words)

	// Step 3: Settle or count the failed attempt
	c.mu.Lock()
	defer c.mu.Unlock()

	req, ok = c.pending[id]
	if !ok {
		// Fulfilled concurrently
		return deliverErr
	}
	if deliverErr != nil {
		req.Attempts++
		if req.Attempts >= c.cfg.MaxAttempts {
			delete(c.pending, id)
			c.log.WithFields(logrus.Fields{
				"request_id": id,
				"consumer":   req.Consumer,
				"attempts":   req.Attempts,
			}).WithError(deliverErr).Error("dropping request after repeated consumer failures")
		}
		return fmt.Errorf("deliver request %d to %s: %w", id, req.Consumer, deliverErr)
	}

	sub.balance = sub.balance.Sub(payment)
	delete(c.pending, id)

	c.log.WithFields(logrus.Fields{
		"request_id": id,
		"consumer":   req.Consumer,
		"payment":    payment.String(),
	}).Info("random words fulfilled")
	return nil
}

// Start runs the auto-fulfill worker until Stop or ctx is done
func (c *Coordinator) Start(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PollInterval)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.fulfillDue(ctx)
			case <-c.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the worker and waits for an in-flight pass to finish
func (c *Coordinator) Stop() {
	close(c.stopChan)
	c.wg.Wait()
}

// fulfillDue delivers every request older than FulfillDelay
func (c *Coordinator) fulfillDue(ctx context.Context) {
	now := c.clock.Now()
	for _, req := range c.Pending() {
		if now.Sub(req.RequestedAt) < c.cfg.FulfillDelay {
			continue
		}
		if err := c.FulfillRandomWords(ctx, req.ID); err != nil {
			c.log.WithField("request_id", req.ID).WithError(err).Warn("auto-fulfill failed")
		}
	}
}

// DeriveWords returns n words as keccak256(requestId || index)
func DeriveWords(id models.RequestID, n uint32) []*big.Int {
	words := make([]*big.Int, n)
	var buf [12]byte
	binary.BigEndian.PutUint64(buf[:8], uint64(id))
	for i := uint32(0); i < n; i++ {
		binary.BigEndian.PutUint32(buf[8:], i)
		h := sha3.NewLegacyKeccak256()
		h.Write(buf[:])
		words[i] = new(big.Int).SetBytes(h.Sum(nil))
	}
	return words
}
