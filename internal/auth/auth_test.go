package auth

import (
	"crypto/ed25519"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	// keep hashing cheap under test
	Params = &HashParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}
	os.Exit(m.Run())
}

func TestPasswordRoundTrip(t *testing.T) {
	hash, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.Contains(t, hash, "$argon2id$v=19$m=1024,t=1,p=1$")

	ok, err := VerifyPassword("hunter2", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = VerifyPassword("hunter3", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	other, err := HashPassword("hunter2")
	require.NoError(t, err)
	assert.NotEqual(t, hash, other, "each hash uses a fresh salt")
}

func TestVerifyPasswordBadHash(t *testing.T) {
	_, err := VerifyPassword("x", "plaintext")
	assert.ErrorIs(t, err, ErrInvalidHash)

	_, err = VerifyPassword("x", "$argon2id$v=1$m=1,t=1,p=1$AAAA$AAAA")
	assert.ErrorIs(t, err, ErrIncompatibleVersion)

	_, err = VerifyPassword("x", "$argon2id$v=19$m=1,t=1,p=1$!!$AAAA")
	assert.ErrorIs(t, err, ErrInvalidHash)
}

func TestJWTRoundTrip(t *testing.T) {
	require.NoError(t, Init(time.Hour))
	uid := uuid.New()

	tok, claims, err := CreateJWT(uid)
	require.NoError(t, err)
	assert.NotEmpty(t, claims.TokenID)
	assert.WithinDuration(t, time.Now().Add(time.Hour), claims.ExpiresAt, 5*time.Second)

	got, err := AuthenticateJWT(tok)
	require.NoError(t, err)
	assert.Equal(t, uid, got.UserID)
	assert.Equal(t, claims.TokenID, got.TokenID)
	assert.Greater(t, got.TTL(time.Now()), 59*time.Minute)
}

func TestJWTNeverExpires(t *testing.T) {
	require.NoError(t, Init(0))
	tok, claims, err := CreateJWT(uuid.New())
	require.NoError(t, err)
	assert.True(t, claims.ExpiresAt.IsZero())

	got, err := AuthenticateJWT(tok)
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), got.TTL(time.Now()))
}

func TestJWTRejects(t *testing.T) {
	require.NoError(t, Init(time.Hour))

	_, err := AuthenticateJWT("not-a-token")
	assert.Error(t, err)

	// signed with a different key
	_, otherPriv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	forged, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.RegisteredClaims{Subject: uuid.NewString()}).SignedString(otherPriv)
	require.NoError(t, err)
	_, err = AuthenticateJWT(forged)
	assert.Error(t, err)

	// expired
	expired, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.RegisteredClaims{
		Subject:   uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
	}).SignedString(privateKey)
	require.NoError(t, err)
	_, err = AuthenticateJWT(expired)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	// HMAC tokens are refused outright
	hmacTok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: uuid.NewString()}).SignedString([]byte("k"))
	require.NoError(t, err)
	_, err = AuthenticateJWT(hmacTok)
	assert.Error(t, err)

	// subject must be a uuid
	badSub, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.RegisteredClaims{Subject: "bob"}).SignedString(privateKey)
	require.NoError(t, err)
	_, err = AuthenticateJWT(badSub)
	assert.Error(t, err)
}

func TestInitFromPath(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	dir := t.TempDir()
	privPath := filepath.Join(dir, "jwt.key")
	pubPath := filepath.Join(dir, "jwt.pub")
	require.NoError(t, os.WriteFile(privPath, priv, 0o600))
	require.NoError(t, os.WriteFile(pubPath, pub, 0o600))

	require.NoError(t, InitFromPath(privPath, pubPath, 0))
	tok, _, err := CreateJWT(uuid.New())
	require.NoError(t, err)
	_, err = AuthenticateJWT(tok)
	assert.NoError(t, err)

	require.NoError(t, os.WriteFile(pubPath, []byte("short"), 0o600))
	assert.Error(t, InitFromPath(privPath, pubPath, 0))
	assert.Error(t, InitFromPath(filepath.Join(dir, "missing"), pubPath, 0))
}

func TestSessionCookie(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	rec := httptest.NewRecorder()
	SetSessionCookie(rec, "tok", &Claims{ExpiresAt: exp}, true)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	c := cookies[0]
	assert.Equal(t, CookieName, c.Name)
	assert.Equal(t, "tok", c.Value)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.True(t, exp.Equal(c.Expires))

	rec = httptest.NewRecorder()
	ClearSessionCookie(rec, false)
	cookies = rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)
	assert.Equal(t, -1, cookies[0].MaxAge)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	_, err := TokenFromRequest(r)
	assert.ErrorIs(t, err, ErrNoToken)

	r.Header.Set("Authorization", "Bearer abc")
	tok, err := TokenFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "abc", tok)

	r.AddCookie(&http.Cookie{Name: CookieName, Value: "fromcookie"})
	tok, err = TokenFromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "fromcookie", tok, "cookie wins over header")

	r = httptest.NewRequest(http.MethodGet, "/", nil)
	r.Header.Set("Authorization", "Basic xyz")
	_, err = TokenFromRequest(r)
	assert.ErrorIs(t, err, ErrNoToken)
}
