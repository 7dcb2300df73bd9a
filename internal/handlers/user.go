package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jason-s-yu/blackjack/internal/auth"
	"github.com/jason-s-yu/blackjack/internal/database"
	"github.com/jason-s-yu/blackjack/internal/models"
	"github.com/sirupsen/logrus"
)

const (
	minUsernameLen = 3
	maxUsernameLen = 50
	minPasswordLen = 6
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type messageResponse struct {
	Message  string `json:"message"`
	Username string `json:"username,omitempty"`
}

func (c *credentialsRequest) normalize() {
	c.Username = strings.TrimSpace(c.Username)
}

// TestHandler answers the client's connectivity probe.
func (s *GameServer) TestHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, messageResponse{Message: "Blackjack API is up"})
}

// RegisterHandler creates an account with the table's starting money.
//
// Request payload:
//
//	{
//	  "username": "alice",
//	  "password": "secret1"
//	}
func (s *GameServer) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.normalize()

	if n := utf8.RuneCountInString(req.Username); n < minUsernameLen || n > maxUsernameLen {
		s.writeError(w, r, badRequest("username must be between 3 and 50 characters"))
		return
	}
	if utf8.RuneCountInString(req.Password) < minPasswordLen {
		s.writeError(w, r, badRequest("password must be at least 6 characters"))
		return
	}

	user := models.User{
		Username: req.Username,
		Password: req.Password,
		Money:    s.Rules.StartingMoney,
	}
	if err := s.Store.CreateUser(r.Context(), &user); err != nil {
		s.writeError(w, r, err)
		return
	}

	s.Logger.WithFields(logrus.Fields{"user_id": user.ID, "username": user.Username}).Info("user registered")
	writeJSON(w, http.StatusCreated, messageResponse{Message: "Registration successful", Username: user.Username})
}

// LoginHandler checks the credentials and sets the auth_token session cookie.
func (s *GameServer) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	req.normalize()
	if req.Username == "" || req.Password == "" {
		s.writeError(w, r, badRequest("username and password are required"))
		return
	}

	user, err := s.Store.AuthenticateUser(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, database.ErrInvalidCredentials) {
			s.Logger.WithField("username", req.Username).Info("failed login attempt")
		}
		s.writeError(w, r, err)
		return
	}

	token, claims, err := auth.CreateJWT(user.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	auth.SetSessionCookie(w, token, claims, s.CookieSecure)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Login successful", Username: user.Username})
}

// LogoutHandler clears the cookie and revokes the token so a copied cookie stops working.
// It succeeds even without a valid session.
func (s *GameServer) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	if claims, err := s.authenticate(r); err == nil && s.Revoker != nil {
		if err := s.Revoker.RevokeToken(r.Context(), claims.TokenID, claims.TTL(time.Now())); err != nil {
			s.Logger.WithError(err).WithField("user_id", claims.UserID).Warn("failed to revoke session token")
		}
	}
	auth.ClearSessionCookie(w, s.CookieSecure)
	writeJSON(w, http.StatusOK, messageResponse{Message: "Logged out"})
}

// ProfileHandler returns the logged-in user's UserProfile.
func (s *GameServer) ProfileHandler(w http.ResponseWriter, r *http.Request) {
	user, err := s.Store.GetUserByID(r.Context(), userIDFrom(r.Context()))
	if errors.Is(err, database.ErrUserNotFound) {
		// the account behind a still-valid token is gone
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: errInvalidSession.Error()})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, user.Profile())
}

// HistoryHandler lists the user's most recent rounds, newest first. ?limit= caps the count.
func (s *GameServer) HistoryHandler(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, r, badRequest("limit must be a positive integer"))
			return
		}
		limit = min(n, 100)
	}

	games, err := s.Store.ListGames(r.Context(), userIDFrom(r.Context()), limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, games)
}
