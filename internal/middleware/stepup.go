package middleware

import (
	"net/http"

	"github.com/pquerna/otp/totp"
)

// StepUp enforces a second factor on privileged endpoints. Round lifecycle
// and ownership changes are irreversible, so a bearer token alone is not
// enough to reach them.
type StepUp struct {
	secret string
}

// NewStepUp constructs a StepUp verifier. An empty secret disables the check,
// which is the expected state for local development.
func NewStepUp(secret string) *StepUp {
	return &StepUp{secret: secret}
}

// Require validates the X-TOTP-Code header against the configured secret.
func (s *StepUp) Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.secret == "" {
			next.ServeHTTP(w, r)
			return
		}

		code := r.Header.Get("X-TOTP-Code")
		if code == "" {
			jsonError(w, http.StatusUnauthorized, "X-TOTP-Code header required")
			return
		}

		if !totp.Validate(code, s.secret) {
			jsonError(w, http.StatusUnauthorized, "Invalid TOTP code")
			return
		}

		next.ServeHTTP(w, r)
	})
}
