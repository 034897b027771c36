// Package api exposes the raffles over HTTP: entries, upkeep, fulfillment callbacks and read views.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/XavierBriggs/Tyche/internal/obs"
	"github.com/XavierBriggs/Tyche/internal/raffle"
	"github.com/XavierBriggs/Tyche/internal/registry"
	"github.com/XavierBriggs/Tyche/pkg/contracts"
	"github.com/XavierBriggs/Tyche/pkg/models"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

// WinnerSource lists settled rounds
type WinnerSource interface {
	RecentWinners(ctx context.Context, raffle string, limit int) ([]models.Winner, error)
}

// PayoutSource lists recorded payouts
type PayoutSource interface {
	Payouts(ctx context.Context, raffle string, limit int) ([]models.Payout, error)
}

// Config holds server options
type Config struct {
	EntryRateLimit float64
	EntryBurst     int
	CallbackToken  string // required as a bearer token on fulfillments when set
}

// Server routes HTTP requests to registered raffles
type Server struct {
	cfg      Config
	registry *registry.RaffleRegistry
	network  contracts.NetworkProfile
	winners  WinnerSource // optional
	payouts  PayoutSource // optional
	metrics  *obs.Metrics // optional
	limiter  *RateLimiter
	log      logrus.FieldLogger
}

// NewServer creates the API server; winners and metrics may be nil
func NewServer(cfg Config, reg *registry.RaffleRegistry, network contracts.NetworkProfile, winners WinnerSource, metrics *obs.Metrics, log logrus.FieldLogger) *Server {
	if log == nil {
		log = obs.NopLogger()
	}
	if cfg.EntryRateLimit <= 0 {
		cfg.EntryRateLimit = 5
	}
	if cfg.EntryBurst <= 0 {
		cfg.EntryBurst = 10
	}
	log = log.WithField("component", "api")

	return &Server{
		cfg:      cfg,
		registry: reg,
		network:  network,
		winners:  winners,
		metrics:  metrics,
		limiter:  NewRateLimiter(cfg.EntryRateLimit, cfg.EntryBurst, log),
		log:      log,
	}
}

// SetPayoutSource enables the payouts listing
func (s *Server) SetPayoutSource(p PayoutSource) {
	s.payouts = p
}

// Router builds the route table
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestIDMiddleware, loggingMiddleware(s.log))

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/raffles", s.handleListRaffles).Methods(http.MethodGet)
	v1.HandleFunc("/raffles/{name}", s.handleGetRaffle).Methods(http.MethodGet)
	v1.HandleFunc("/raffles/{name}/players", s.handleListPlayers).Methods(http.MethodGet)
	v1.HandleFunc("/raffles/{name}/players/{index:[0-9]+}", s.handleGetPlayer).Methods(http.MethodGet)
	v1.Handle("/raffles/{name}/entries", s.limiter.Handler(http.HandlerFunc(s.handleEnter))).Methods(http.MethodPost)
	v1.HandleFunc("/raffles/{name}/upkeep", s.handleCheckUpkeep).Methods(http.MethodGet)
	v1.HandleFunc("/raffles/{name}/upkeep", s.handlePerformUpkeep).Methods(http.MethodPost)
	v1.HandleFunc("/raffles/{name}/fulfillments", s.handleFulfill).Methods(http.MethodPost)
	v1.HandleFunc("/raffles/{name}/winners", s.handleWinners).Methods(http.MethodGet)
	v1.HandleFunc("/raffles/{name}/payouts", s.handlePayouts).Methods(http.MethodGet)

	return r
}

func (s *Server) engine(w http.ResponseWriter, r *http.Request) (*raffle.Engine, bool) {
	name := mux.Vars(r)["name"]
	e, ok := s.registry.Get(name)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", errRaffleMissing, name))
		return nil, false
	}
	return e, true
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"network": s.network.GetName(),
		"raffles": s.registry.Count(),
	})
}

func (s *Server) handleListRaffles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Snapshots())
}

// raffleView adds the fixed request parameters to a snapshot
type raffleView struct {
	models.RaffleSnapshot
	NumWords             uint32 `json:"num_words"`
	RequestConfirmations uint16 `json:"request_confirmations"`
}

func (s *Server) handleGetRaffle(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engine(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, raffleView{
		RaffleSnapshot:       e.Snapshot(),
		NumWords:             e.NumWords(),
		RequestConfirmations: e.RequestConfirmations(),
	})
}

func (s *Server) handleListPlayers(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engine(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"players": e.Players()})
}

func (s *Server) handleGetPlayer(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engine(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(mux.Vars(r)["index"])
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid player index: %w", err))
		return
	}
	player, err := e.Player(index)
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"index": index, "player": player})
}

type enterRequest struct {
	Participant string          `json:"participant"`
	Amount      decimal.Decimal `json:"amount"`
}

func (s *Server) handleEnter(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engine(w, r)
	if !ok {
		return
	}

	var req enterRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.network.ValidateParticipant(req.Participant); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := e.EnterRaffle(r.Context(), req.Participant, req.Amount); err != nil {
		writeEngineError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"raffle":  e.Name(),
		"round":   e.Round(),
		"players": e.NumberOfPlayers(),
		"balance": e.Balance(),
	})
}

func (s *Server) handleCheckUpkeep(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engine(w, r)
	if !ok {
		return
	}
	check, _ := e.CheckUpkeep(r.Context(), nil)
	writeJSON(w, http.StatusOK, check)
}

func (s *Server) handlePerformUpkeep(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engine(w, r)
	if !ok {
		return
	}
	id, err := e.PerformUpkeep(r.Context(), nil)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"raffle":     e.Name(),
		"round":      e.Round(),
		"request_id": id,
	})
}

// fulfillRequest carries random words as decimal (or 0x-prefixed hex) strings
type fulfillRequest struct {
	RequestID   models.RequestID `json:"request_id"`
	RandomWords []string         `json:"random_words"`
}

func (s *Server) handleFulfill(w http.ResponseWriter, r *http.Request) {
	if !s.authorizedCallback(r) {
		writeError(w, http.StatusUnauthorized, errUnauthorized)
		return
	}
	e, ok := s.engine(w, r)
	if !ok {
		return
	}

	var req fulfillRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	words, err := parseWords(req.RandomWords)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := e.FulfillRandomWords(r.Context(), req.RequestID, words); err != nil {
		writeEngineError(w, err)
		return
	}

	snap := e.Snapshot()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"raffle":        snap.Raffle,
		"recent_winner": snap.RecentWinner,
		"round":         snap.Round,
	})
}

// authorizedCallback fails closed off development networks when no token is configured
func (s *Server) authorizedCallback(r *http.Request) bool {
	if s.cfg.CallbackToken == "" {
		return s.network.IsDevelopment()
	}
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.CallbackToken)) == 1
}

func (s *Server) handleWinners(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engine(w, r)
	if !ok {
		return
	}

	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if s.winners == nil {
		winners := []models.Winner{}
		if last := e.RecentWinner(); last != "" {
			winners = append(winners, models.Winner{Raffle: e.Name(), Winner: last})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"winners": winners})
		return
	}

	winners, err := s.winners.RecentWinners(r.Context(), e.Name(), limit)
	if err != nil {
		s.log.WithError(err).WithField("raffle", e.Name()).Error("failed to load winners")
		writeError(w, http.StatusInternalServerError, errors.New("failed to load winners"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"winners": winners})
}

type payoutView struct {
	Raffle    string           `json:"raffle"`
	Round     uint64           `json:"round"`
	RequestID models.RequestID `json:"request_id"`
	To        string           `json:"to"`
	Amount    decimal.Decimal  `json:"amount"`
}

func (s *Server) handlePayouts(w http.ResponseWriter, r *http.Request) {
	e, ok := s.engine(w, r)
	if !ok {
		return
	}
	if s.payouts == nil {
		writeError(w, http.StatusNotFound, errors.New("payout history is not recorded by this sink"))
		return
	}
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	payouts, err := s.payouts.Payouts(r.Context(), e.Name(), limit)
	if err != nil {
		s.log.WithError(err).WithField("raffle", e.Name()).Error("failed to load payouts")
		writeError(w, http.StatusInternalServerError, errors.New("failed to load payouts"))
		return
	}
	views := make([]payoutView, 0, len(payouts))
	for _, p := range payouts {
		views = append(views, payoutView{
			Raffle:    p.Raffle,
			Round:     p.Round,
			RequestID: p.RequestID,
			To:        p.To,
			Amount:    p.Amount,
		})
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"payouts": views})
}

func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid limit %q", v)
	}
	return min(n, maxListLimit), nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func parseWords(raw []string) ([]*big.Int, error) {
	words := make([]*big.Int, 0, len(raw))
	for i, s := range raw {
		digits, base := strings.TrimSpace(s), 10
		if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
			digits, base = digits[2:], 16
		}
		word, ok := new(big.Int).SetString(digits, base)
		if !ok || word.Sign() < 0 {
			return nil, fmt.Errorf("random_words[%d]: %q is not an unsigned integer", i, s)
		}
		words = append(words, word)
	}
	return words, nil
}
