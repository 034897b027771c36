// Package registry holds the raffles hosted by one process, keyed by name.
package registry

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"sync"

	"github.com/XavierBriggs/Tyche/internal/raffle"
	"github.com/XavierBriggs/Tyche/pkg/models"
)

// Names end up in URL paths, Redis keys, metric labels and the VRF consumer id
var namePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,62}$`)

// ErrInvalidName is returned for names that are not lower-case slugs
var ErrInvalidName = errors.New("raffle name must match " + namePattern.String())

// RaffleRegistry manages the raffles hosted by this process
type RaffleRegistry struct {
	raffles map[string]*raffle.Engine
	mu      sync.RWMutex
}

// NewRaffleRegistry creates a new raffle registry
func NewRaffleRegistry() *RaffleRegistry {
	return &RaffleRegistry{
		raffles: make(map[string]*raffle.Engine),
	}
}

// Register adds a raffle under its configured name
func (r *RaffleRegistry) Register(e *raffle.Engine) error {
	if e == nil {
		return errors.New("register raffle: nil engine")
	}
	name := e.Name()
	if !namePattern.MatchString(name) {
		return fmt.Errorf("register raffle %q: %w", name, ErrInvalidName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.raffles[name]; exists {
		return fmt.Errorf("raffle %s is already registered", name)
	}
	r.raffles[name] = e
	return nil
}

// Get retrieves a raffle by name
func (r *RaffleRegistry) Get(name string) (*raffle.Engine, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.raffles[name]
	return e, exists
}

// GetAll returns all registered raffles ordered by name
func (r *RaffleRegistry) GetAll() []*raffle.Engine {
	r.mu.RLock()
	raffles := make([]*raffle.Engine, 0, len(r.raffles))
	for _, e := range r.raffles {
		raffles = append(raffles, e)
	}
	r.mu.RUnlock()

	sort.Slice(raffles, func(i, j int) bool { return raffles[i].Name() < raffles[j].Name() })
	return raffles
}

// Snapshots returns the published view of every raffle, ordered by name
func (r *RaffleRegistry) Snapshots() []models.RaffleSnapshot {
	engines := r.GetAll()
	snaps := make([]models.RaffleSnapshot, 0, len(engines))
	for _, e := range engines {
		snaps = append(snaps, e.Snapshot())
	}
	return snaps
}

// InState returns the raffles whose published state is state, ordered by name
func (r *RaffleRegistry) InState(state models.RaffleState) []*raffle.Engine {
	var out []*raffle.Engine
	for _, e := range r.GetAll() {
		if e.State() == state {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the number of registered raffles
func (r *RaffleRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.raffles)
}
