package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/jason-s-yu/blackjack/internal/auth"
)

type sessionKey struct{}

var (
	errNotLoggedIn    = errors.New("not logged in")
	errInvalidSession = errors.New("invalid or expired session")
	errLoggedOut      = errors.New("session has been logged out")
)

// authenticate resolves the request's session token into verified claims.
func (s *GameServer) authenticate(r *http.Request) (*auth.Claims, error) {
	token, err := auth.TokenFromRequest(r)
	if err != nil {
		return nil, errNotLoggedIn
	}
	claims, err := auth.AuthenticateJWT(token)
	if err != nil {
		return nil, errInvalidSession
	}
	if s.Revoker != nil {
		revoked, err := s.Revoker.IsRevoked(r.Context(), claims.TokenID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, errLoggedOut
		}
	}
	return claims, nil
}

// RequireSession rejects requests without a valid session with 401, which
// makes the web client log out.
func (s *GameServer) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := s.authenticate(r)
		if err != nil {
			if errors.Is(err, errNotLoggedIn) || errors.Is(err, errInvalidSession) || errors.Is(err, errLoggedOut) {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: err.Error()})
				return
			}
			s.writeError(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), sessionKey{}, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func sessionFrom(ctx context.Context) *auth.Claims {
	c, _ := ctx.Value(sessionKey{}).(*auth.Claims)
	return c
}

// userIDFrom returns the authenticated user id. Only valid behind RequireSession.
func userIDFrom(ctx context.Context) uuid.UUID {
	if c := sessionFrom(ctx); c != nil {
		return c.UserID
	}
	return uuid.Nil
}
