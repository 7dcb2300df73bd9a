// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CookieName is the session cookie the web client sends with every request.
const CookieName = "auth_token"

// ErrNoToken is returned when a request carries neither the session cookie nor a bearer token.
var ErrNoToken = errors.New("no session token")

// privateKey and publicKey are used for signing and verifying JWT tokens.
var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// tokenExpire is the lifetime of issued tokens (0 => never).
	tokenExpire time.Duration
)

// Claims is the verified content of a session token.
type Claims struct {
	UserID  uuid.UUID
	TokenID string
	// ExpiresAt is zero for tokens that never expire.
	ExpiresAt time.Time
}

// TTL is how long the token remains valid from now, or 0 if it never expires.
func (c *Claims) TTL(now time.Time) time.Duration {
	if c.ExpiresAt.IsZero() {
		return 0
	}
	return c.ExpiresAt.Sub(now)
}

// Init generates a fresh ed25519 key pair at runtime and sets the token expiration.
// Tokens issued before a restart become invalid.
func Init(expire time.Duration) error {
	var err error
	publicKey, privateKey, err = ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	tokenExpire = expire
	return nil
}

// InitFromPath reads raw ed25519 private/public keys from file and sets the token expiration.
func InitFromPath(privatePath, publicPath string, expire time.Duration) error {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(privateKeyData) != ed25519.PrivateKeySize || len(publicKeyData) != ed25519.PublicKeySize {
		return fmt.Errorf("unexpected ed25519 key sizes: private=%d public=%d", len(privateKeyData), len(publicKeyData))
	}

	privateKey = ed25519.PrivateKey(privateKeyData)
	publicKey = ed25519.PublicKey(publicKeyData)
	tokenExpire = expire
	return nil
}

// CreateJWT creates a signed JWT token with "sub" = userID and a random "jti".
// "exp" is only set when an expiry is configured.
func CreateJWT(userID uuid.UUID) (string, *Claims, error) {
	now := time.Now()
	rc := jwt.RegisteredClaims{
		Subject:  userID.String(),
		ID:       uuid.NewString(),
		IssuedAt: jwt.NewNumericDate(now),
	}
	out := &Claims{UserID: userID, TokenID: rc.ID}
	if tokenExpire > 0 {
		out.ExpiresAt = now.Add(tokenExpire)
		rc.ExpiresAt = jwt.NewNumericDate(out.ExpiresAt)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, rc)
	signed, err := token.SignedString(privateKey)
	if err != nil {
		return "", nil, err
	}
	return signed, out, nil
}

// AuthenticateJWT verifies a JWT string and returns its claims if valid.
func AuthenticateJWT(tokenString string) (*Claims, error) {
	var rc jwt.RegisteredClaims
	t, err := jwt.ParseWithClaims(tokenString, &rc, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return nil, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	userID, err := uuid.Parse(rc.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid sub in jwt: %w", err)
	}
	out := &Claims{UserID: userID, TokenID: rc.ID}
	if rc.ExpiresAt != nil {
		out.ExpiresAt = rc.ExpiresAt.Time
	}
	return out, nil
}

// SetSessionCookie writes the session cookie. secure should be true when served over TLS.
func SetSessionCookie(w http.ResponseWriter, token string, claims *Claims, secure bool) {
	c := &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	}
	if claims != nil && !claims.ExpiresAt.IsZero() {
		c.Expires = claims.ExpiresAt
	}
	http.SetCookie(w, c)
}

// ClearSessionCookie expires the session cookie on the client.
func ClearSessionCookie(w http.ResponseWriter, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
	})
}

// TokenFromRequest returns the session token from the auth_token cookie,
// falling back to an "Authorization: Bearer" header for non-browser clients.
func TokenFromRequest(r *http.Request) (string, error) {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok && tok != "" {
			return tok, nil
		}
	}
	return "", ErrNoToken
}
