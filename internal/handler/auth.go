package handler

import (
	"crypto/subtle"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

const (
	authRealm        = "Authentication Required"
	unauthorizedBody = "Unauthorized Access"
)

// Credentials is the single identity accepted on the webhook endpoint.
// The password is kept only as a salted bcrypt hash. Immutable after
// construction.
type Credentials struct {
	username string
	hash     []byte
}

// NewCredentials hashes password once for later comparisons.
func NewCredentials(username, password string) (*Credentials, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("auth: failed to hash webhook password: %w", err)
	}
	return &Credentials{username: username, hash: hash}, nil
}

// Verify reports whether username and password match the identity.
// The password hash is always compared so the timing does not reveal
// whether the username was known.
func (c *Credentials) Verify(username, password string) bool {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(c.username)) == 1
	passOK := bcrypt.CompareHashAndPassword(c.hash, []byte(password)) == nil
	return userOK && passOK
}

// RequireBasicAuth returns an http.Handler that rejects requests with 401
// unless they carry HTTP Basic credentials matching creds. The request body
// is not read on rejection.
func RequireBasicAuth(creds *Credentials, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok || !creds.Verify(username, password) {
			slog.Warn("webhook: authentication failed", "remote_addr", r.RemoteAddr, "credentials_present", ok)
			w.Header().Set("WWW-Authenticate", `Basic realm="`+authRealm+`"`)
			w.WriteHeader(http.StatusUnauthorized)
			if _, err := io.WriteString(w, unauthorizedBody); err != nil {
				slog.Error("webhook: failed to write response", "error", err)
			}
			return
		}
		next.ServeHTTP(w, r)
	})
}
