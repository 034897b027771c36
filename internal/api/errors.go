package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/XavierBriggs/Tyche/internal/raffle"
)

var (
	errRateLimited   = errors.New("rate limit exceeded")
	errRaffleMissing = errors.New("raffle not found")
	errUnauthorized  = errors.New("unauthorized")
)

type errorResponse struct {
	Error  string                      `json:"error"`
	Upkeep *raffle.UpkeepNotNeededError `json:"upkeep,omitempty"`
}

// statusFor maps engine errors onto HTTP status codes
func statusFor(err error) int {
	var notNeeded *raffle.UpkeepNotNeededError
	switch {
	case errors.As(err, &notNeeded):
		return http.StatusPreconditionFailed
	case errors.Is(err, raffle.ErrInsufficientStake),
		errors.Is(err, raffle.ErrInvalidParticipant),
		errors.Is(err, raffle.ErrMissingRandomWords):
		return http.StatusBadRequest
	case errors.Is(err, raffle.ErrRaffleNotOpen),
		errors.Is(err, raffle.ErrNoParticipants):
		return http.StatusConflict
	case errors.Is(err, raffle.ErrUnknownRequest), errors.Is(err, errRaffleMissing):
		return http.StatusNotFound
	case errors.Is(err, raffle.ErrPayoutFailed):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	resp := errorResponse{Error: err.Error()}
	var notNeeded *raffle.UpkeepNotNeededError
	if errors.As(err, &notNeeded) {
		resp.Upkeep = notNeeded
	}
	writeJSON(w, status, resp)
}

func writeEngineError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err)
}
