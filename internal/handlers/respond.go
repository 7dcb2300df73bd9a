package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/jason-s-yu/blackjack/internal/database"
	"github.com/jason-s-yu/blackjack/internal/game"
	"github.com/sirupsen/logrus"
)

const maxBodyBytes = 1 << 16

// errorResponse is the body of every failed request.
type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps domain errors to HTTP status codes. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusRequestTimeout
	case errors.Is(err, game.ErrInvalidBet), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, database.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, ErrGameNotFound), errors.Is(err, database.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, game.ErrGameOver),
		errors.Is(err, game.ErrCannotDouble),
		errors.Is(err, game.ErrNotDealt),
		errors.Is(err, database.ErrGameNotActive),
		errors.Is(err, database.ErrUsernameTaken),
		errors.Is(err, ErrRoundInProgress),
		errors.Is(err, ErrDealInFlight):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// errBadRequest wraps payload validation failures.
var errBadRequest = errors.New("bad request")

type badRequest string

func (b badRequest) Error() string { return string(b) }
func (b badRequest) Unwrap() error { return errBadRequest }

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError logs err and sends it as {"error": ...}. Server-side failures
// are reported to the client with a generic message.
func (s *GameServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	entry := s.Logger.WithFields(logrus.Fields{
		"method": r.Method,
		"path":   r.URL.Path,
		"status": status,
	}).WithError(err)

	msg := err.Error()
	if status >= 500 {
		entry.Error("request failed")
		msg = http.StatusText(status)
	} else {
		entry.Debug("request rejected")
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeJSON reads a JSON body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return badRequest("invalid request payload")
	}
	return nil
}
