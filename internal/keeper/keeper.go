// Package keeper is the automation caller: it polls every registered raffle, performs upkeep
// when a round is due, and reports rounds that wait on randomness for too long.
package keeper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/XavierBriggs/Tyche/internal/obs"
	"github.com/XavierBriggs/Tyche/internal/raffle"
	"github.com/XavierBriggs/Tyche/internal/registry"
	"github.com/XavierBriggs/Tyche/internal/snapshot"
	"github.com/XavierBriggs/Tyche/pkg/contracts"
	"github.com/XavierBriggs/Tyche/pkg/models"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Config holds keeper schedules
type Config struct {
	PollInterval  time.Duration // how often each raffle is checked
	StuckAfter    time.Duration // calculating longer than this is reported
	MonitorPeriod time.Duration
}

// Keeper orchestrates upkeep for all registered raffles
type Keeper struct {
	cfg      Config
	registry *registry.RaffleRegistry
	cache    *snapshot.Cache // optional
	clock    contracts.Clock
	log      logrus.FieldLogger
	metrics  *obs.Metrics

	cron *cron.Cron
}

// NewKeeper creates a keeper; cache and metrics may be nil
func NewKeeper(cfg Config, reg *registry.RaffleRegistry, cache *snapshot.Cache, clock contracts.Clock, log logrus.FieldLogger, metrics *obs.Metrics) *Keeper {
	if log == nil {
		log = obs.NopLogger()
	}
	if cfg.MonitorPeriod == 0 {
		cfg.MonitorPeriod = time.Minute
	}
	log = log.WithField("component", "keeper")

	return &Keeper{
		cfg:      cfg,
		registry: reg,
		cache:    cache,
		clock:    clock,
		log:      log,
		metrics:  metrics,
		cron: cron.New(
			cron.WithLocation(time.UTC),
			cron.WithLogger(cronLogger{log: log}),
			cron.WithChain(cron.Recover(cronLogger{log: log})),
		),
	}
}

// Start schedules polling for each registered raffle plus the stuck-round monitor
func (k *Keeper) Start(ctx context.Context) error {
	raffles := k.registry.GetAll()
	if len(raffles) == 0 {
		return fmt.Errorf("no raffles registered")
	}
	if k.cfg.PollInterval <= 0 {
		return fmt.Errorf("invalid poll interval %v", k.cfg.PollInterval)
	}

	skip := cron.SkipIfStillRunning(cronLogger{log: k.log})

	for _, e := range raffles {
		e := e
		job := skip(cron.FuncJob(func() {
			if _, err := k.RunOnce(ctx, e); err != nil {
				k.log.WithField("raffle", e.Name()).WithError(err).Error("upkeep run failed")
			}
		}))
		if _, err := k.cron.AddJob(every(k.cfg.PollInterval), job); err != nil {
			return fmt.Errorf("schedule raffle %s: %w", e.Name(), err)
		}
		k.log.WithFields(logrus.Fields{
			"raffle":        e.Name(),
			"poll_interval": k.cfg.PollInterval.String(),
		}).Info("started upkeep polling")
	}

	if k.cfg.StuckAfter > 0 {
		if _, err := k.cron.AddJob(every(k.cfg.MonitorPeriod), skip(cron.FuncJob(func() { k.CheckStuck() }))); err != nil {
			return fmt.Errorf("schedule stuck-round monitor: %w", err)
		}
	}

	k.cron.Start()
	return nil
}

// Stop halts scheduling and waits for running jobs
func (k *Keeper) Stop() {
	<-k.cron.Stop().Done()
}

// RunOnce checks a raffle and performs upkeep when needed
func (k *Keeper) RunOnce(ctx context.Context, e *raffle.Engine) (bool, error) {
	log := k.log.WithField("raffle", e.Name())

	// Step 1: Advisory check, lock-free
	check, performData := e.CheckUpkeep(ctx, nil)
	if !check.UpkeepNeeded {
		k.refreshCache(ctx, e)
		return false, nil
	}

	// Step 2: Perform; the engine re-checks and another caller may have won
	requestID, err := e.PerformUpkeep(ctx, performData)
	if err != nil {
		if errors.Is(err, raffle.ErrUpkeepNotNeeded) || errors.Is(err, raffle.ErrRaffleNotOpen) {
			log.WithError(err).Debug("upkeep no longer needed")
			k.refreshCache(ctx, e)
			return false, nil
		}
		return false, fmt.Errorf("perform upkeep: %w", err)
	}
	log.WithField("request_id", requestID).Info("performed upkeep")

	// Step 3: Write-through snapshot cache
	k.refreshCache(ctx, e)
	return true, nil
}

// refreshCache publishes the raffle's snapshot when it differs from the cached one
func (k *Keeper) refreshCache(ctx context.Context, e *raffle.Engine) {
	if k.cache == nil {
		return
	}

	snaps := []models.RaffleSnapshot{e.Snapshot()}
	changes, err := k.cache.DetectChanges(ctx, snaps)
	if err != nil {
		k.log.WithField("raffle", e.Name()).WithError(err).Warn("detect snapshot changes")
		return
	}
	if len(changes) == 0 {
		return
	}

	if err := k.cache.Update(ctx, snaps); err != nil {
		// Log but don't fail - cache will rebuild
		k.log.WithField("raffle", e.Name()).WithError(err).Warn("update snapshot cache")
		return
	}
	k.log.WithFields(logrus.Fields{
		"raffle": e.Name(),
		"change": changes[0].Type,
	}).Debug("snapshot cache updated")
}

// CheckStuck reports raffles calculating for longer than StuckAfter and returns their names
// Nothing is retried or reopened; an operator has to look at the oracle
func (k *Keeper) CheckStuck() []string {
	now := k.clock.Now()

	var stuck []string
	for _, e := range k.registry.GetAll() {
		snap := e.Snapshot()

		waiting := time.Duration(0)
		if snap.State == models.RaffleStateCalculating && !snap.CalculatingSince.IsZero() {
			waiting = now.Sub(snap.CalculatingSince)
		}
		if k.metrics != nil {
			k.metrics.CalculatingSeconds.WithLabelValues(e.Name()).Set(waiting.Seconds())
		}

		if k.cfg.StuckAfter > 0 && waiting > k.cfg.StuckAfter {
			stuck = append(stuck, e.Name())
			fields := logrus.Fields{
				"raffle":  e.Name(),
				"round":   snap.Round,
				"waiting": waiting.String(),
			}
			if snap.PendingRequest != nil {
				fields["request_id"] = *snap.PendingRequest
			}
			k.log.WithFields(fields).Warn("raffle stuck waiting for randomness")
		}
	}
	return stuck
}

func every(d time.Duration) string {
	return "@every " + d.String()
}

// cronLogger routes cron's own logging through logrus
type cronLogger struct {
	log logrus.FieldLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(toFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithFields(toFields(keysAndValues)).WithError(err).Error(msg)
}

func toFields(keysAndValues []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
