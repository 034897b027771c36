package writer

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/XavierBriggs/Tyche/internal/obs"
	"github.com/XavierBriggs/Tyche/pkg/contracts"
	"github.com/XavierBriggs/Tyche/pkg/models"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	defaultBatchSize     = 100
	defaultFlushInterval = 5 * time.Second
	streamKeyFormat      = "raffle.events.%s" // raffle.events.weekly
)

// Writer batches raffle notifications into Postgres and publishes them to Redis Streams
// Notify never blocks on I/O; the background loop flushes on a ticker or when a batch fills
type Writer struct {
	db    *sql.DB
	redis *redis.Client
	log   logrus.FieldLogger

	batchSize     int
	flushInterval time.Duration

	buffer []record
	mu     sync.Mutex

	flushNow chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
}

type record struct {
	id string
	models.Notification
}

// StreamMessage represents a message published to a raffle's event stream
type StreamMessage struct {
	EventID     string                  `json:"event_id"`
	Kind        models.NotificationKind `json:"kind"`
	Raffle      string                  `json:"raffle"`
	Round       uint64                  `json:"round"`
	Participant string                  `json:"participant,omitempty"`
	Amount      string                  `json:"amount,omitempty"`
	RequestID   uint64                  `json:"request_id,omitempty"`
	EmittedAt   time.Time               `json:"emitted_at"`
}

var _ contracts.Notifier = (*Writer)(nil)

// NewWriter creates a new batching writer
func NewWriter(db *sql.DB, redisClient *redis.Client, log logrus.FieldLogger) *Writer {
	if log == nil {
		log = obs.NopLogger()
	}
	return &Writer{
		db:            db,
		redis:         redisClient,
		log:           log.WithField("component", "writer"),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
		buffer:        make([]record, 0, defaultBatchSize),
		flushNow:      make(chan struct{}, 1),
		stopChan:      make(chan struct{}),
	}
}

// Start begins the background flush loop
func (w *Writer) Start(ctx context.Context) {
	ticker := time.NewTicker(w.flushInterval)

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				w.flushAndLog(ctx)
			case <-w.flushNow:
				w.flushAndLog(ctx)
			case <-w.stopChan:
				// Final flush on shutdown; ctx may already be cancelled
				w.flushAndLog(context.Background())
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop flushes what is buffered and stops the loop
func (w *Writer) Stop() {
	close(w.stopChan)
	w.wg.Wait()
}

// Notify buffers n and wakes the flush loop when the batch is full
func (w *Writer) Notify(ctx context.Context, n models.Notification) {
	w.mu.Lock()
	w.buffer = append(w.buffer, record{id: uuid.NewString(), Notification: n})
	shouldFlush := len(w.buffer) >= w.batchSize
	w.mu.Unlock()

	if shouldFlush {
		select {
		case w.flushNow <- struct{}{}:
		default:
		}
	}
}

// Pending returns the number of buffered notifications
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.buffer)
}

func (w *Writer) flushAndLog(ctx context.Context) {
	if err := w.Flush(ctx); err != nil {
		w.log.WithError(err).Error("flush notifications")
	}
}

// Flush writes buffered notifications to raffle_events and publishes them
// A failed write puts the batch back at the front of the buffer
func (w *Writer) Flush(ctx context.Context) error {
	w.mu.Lock()
	if len(w.buffer) == 0 {
		w.mu.Unlock()
		return nil
	}

	// Swap buffer
	batch := w.buffer
	w.buffer = make([]record, 0, w.batchSize)
	w.mu.Unlock()

	if err := w.insert(ctx, batch); err != nil {
		w.mu.Lock()
		w.buffer = append(batch, w.buffer...)
		w.mu.Unlock()
		return err
	}

	// Publish to Redis Streams (after successful DB write)
	if err := w.publishToStream(ctx, batch); err != nil {
		// Log but don't fail - DB is source of truth
		w.log.WithError(err).Warn("publish to stream")
	}

	return nil
}

func (w *Writer) insert(ctx context.Context, batch []record) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO raffle_events (
			event_id, kind, raffle, round, participant, amount, request_id, emitted_at
		)
		SELECT * FROM UNNEST(
			$1::uuid[], $2::text[], $3::text[], $4::bigint[],
			$5::text[], $6::numeric[], $7::bigint[], $8::timestamptz[]
		)
		ON CONFLICT (event_id) DO NOTHING
	`

	ids := make([]string, len(batch))
	kinds := make([]string, len(batch))
	raffles := make([]string, len(batch))
	rounds := make([]int64, len(batch))
	participants := make([]string, len(batch))
	amounts := make([]string, len(batch))
	requestIDs := make([]int64, len(batch))
	emittedAts := make([]time.Time, len(batch))

	for i, r := range batch {
		ids[i] = r.id
		kinds[i] = string(r.Kind)
		raffles[i] = r.Raffle
		rounds[i] = int64(r.Round)
		participants[i] = r.Participant
		amounts[i] = r.Amount.String()
		requestIDs[i] = int64(r.RequestID)
		emittedAts[i] = r.EmittedAt
	}

	if _, err := tx.ExecContext(ctx, query,
		pq.Array(ids), pq.Array(kinds), pq.Array(raffles), pq.Array(rounds),
		pq.Array(participants), pq.Array(amounts), pq.Array(requestIDs), pq.Array(emittedAts),
	); err != nil {
		return fmt.Errorf("insert raffle events: %w", err)
	}

	// Commit transaction
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// publishToStream publishes notifications to one stream per raffle
func (w *Writer) publishToStream(ctx context.Context, batch []record) error {
	if w.redis == nil || len(batch) == 0 {
		return nil
	}

	// Group by raffle for separate streams
	byRaffle := make(map[string][]record)
	for _, r := range batch {
		byRaffle[r.Raffle] = append(byRaffle[r.Raffle], r)
	}

	for raffle, records := range byRaffle {
		streamKey := fmt.Sprintf(streamKeyFormat, raffle)

		pipe := w.redis.Pipeline()

		for _, r := range records {
			msg := StreamMessage{
				EventID:     r.id,
				Kind:        r.Kind,
				Raffle:      r.Raffle,
				Round:       r.Round,
				Participant: r.Participant,
				RequestID:   uint64(r.RequestID),
				EmittedAt:   r.EmittedAt,
			}
			if !r.Amount.IsZero() {
				msg.Amount = r.Amount.String()
			}

			msgJSON, err := json.Marshal(msg)
			if err != nil {
				return fmt.Errorf("marshal stream message: %w", err)
			}

			pipe.XAdd(ctx, &redis.XAddArgs{
				Stream: streamKey,
				Values: map[string]interface{}{
					"kind": string(r.Kind),
					"data": msgJSON,
				},
			})
		}

		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("redis pipeline exec for stream %s: %w", streamKey, err)
		}
	}

	return nil
}

// RecentWinners returns the latest WinnerPicked events for a raffle, newest first
func (w *Writer) RecentWinners(ctx context.Context, raffle string, limit int) ([]models.Winner, error) {
	query := `
		SELECT raffle, participant, request_id, emitted_at
		FROM raffle_events
		WHERE raffle = $1 AND kind = $2
		ORDER BY emitted_at DESC
		LIMIT $3
	`

	rows, err := w.db.QueryContext(ctx, query, raffle, string(models.NotificationWinnerPicked), limit)
	if err != nil {
		return nil, fmt.Errorf("query recent winners: %w", err)
	}
	defer rows.Close()

	var winners []models.Winner
	for rows.Next() {
		var (
			win       models.Winner
			requestID int64
		)
		if err := rows.Scan(&win.Raffle, &win.Winner, &requestID, &win.PickedAt); err != nil {
			return nil, fmt.Errorf("scan winner: %w", err)
		}
		win.RequestID = models.RequestID(requestID)
		winners = append(winners, win)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return winners, nil
}

// NextRound returns one past the highest round with a recorded WinnerPicked event
// Events still buffered in memory are not visible here
func (w *Writer) NextRound(ctx context.Context, raffle string) (uint64, error) {
	var last int64
	query := `SELECT COALESCE(MAX(round), 0) FROM raffle_events WHERE raffle = $1 AND kind = $2`
	if err := w.db.QueryRowContext(ctx, query, raffle, string(models.NotificationWinnerPicked)).Scan(&last); err != nil {
		return 0, fmt.Errorf("query last round: %w", err)
	}
	return uint64(last) + 1, nil
}
