// Package auth protects the tool server's HTTP transport with a single
// bcrypt-hashed bearer key.
package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrUnauthenticated is returned when no bearer token is present.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrInvalidAPIKey is returned when the token does not match the hash.
	ErrInvalidAPIKey = errors.New("invalid API key")
)

// minKeyLength rejects obviously malformed keys before paying for bcrypt.
const minKeyLength = 8

// KeyAuthenticator checks bearer tokens against one bcrypt hash. Verified
// tokens are remembered for ttl so bcrypt runs once per key per window.
type KeyAuthenticator struct {
	hash     []byte
	ttl      time.Duration
	verified sync.Map // map[string]time.Time (expiry)
	now      func() time.Time
	logger   *zap.Logger
}

// NewKeyAuthenticator validates the hash up front so a bad deployment fails
// at startup instead of on the first request.
func NewKeyAuthenticator(hash string, ttl time.Duration, logger *zap.Logger) (*KeyAuthenticator, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, errors.New("auth: API key hash is not a bcrypt hash")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KeyAuthenticator{hash: []byte(hash), ttl: ttl, now: time.Now, logger: logger}, nil
}

// Authenticate checks a raw token.
func (a *KeyAuthenticator) Authenticate(token string) error {
	if len(token) < minKeyLength {
		return ErrInvalidAPIKey
	}
	if exp, ok := a.verified.Load(token); ok && a.now().Before(exp.(time.Time)) {
		return nil
	}
	if err := bcrypt.CompareHashAndPassword(a.hash, []byte(token)); err != nil {
		return ErrInvalidAPIKey
	}
	a.verified.Store(token, a.now().Add(a.ttl))
	return nil
}

// Middleware rejects requests without a valid bearer token.
func (a *KeyAuthenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := ExtractBearerToken(r)
		if !ok {
			writeError(w, "Missing or invalid Authorization header")
			return
		}
		if err := a.Authenticate(token); err != nil {
			a.logger.Warn("auth failed", zap.String("remote", r.RemoteAddr), zap.Error(err))
			writeError(w, "Invalid API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ExtractBearerToken extracts the token from "Authorization: Bearer <token>".
func ExtractBearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) < len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(prefix):])
	return token, token != ""
}

type errorResp struct {
	Detail string `json:"detail"`
}

func writeError(w http.ResponseWriter, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(errorResp{Detail: detail}) //nolint:errcheck
}
