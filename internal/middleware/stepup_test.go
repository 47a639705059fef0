package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const stepUpTestSecret = "JBSWY3DPEHPK3PXP"

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestStepUp_AllowsValidCode(t *testing.T) {
	s := NewStepUp(stepUpTestSecret)
	handler := s.Require(okHandler())

	code, err := totp.GenerateCode(stepUpTestSecret, time.Now())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/rounds/open", nil)
	req.Header.Set("X-TOTP-Code", code)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestStepUp_RejectsMissingCode(t *testing.T) {
	s := NewStepUp(stepUpTestSecret)
	handler := s.Require(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/rounds/open", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "X-TOTP-Code header required")
}

func TestStepUp_RejectsInvalidCode(t *testing.T) {
	s := NewStepUp(stepUpTestSecret)
	handler := s.Require(okHandler())

	// Five digits can never validate against the six-digit default.
	req := httptest.NewRequest(http.MethodPost, "/rounds/open", nil)
	req.Header.Set("X-TOTP-Code", "12345")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid TOTP code")
}

func TestStepUp_DisabledWithoutSecret(t *testing.T) {
	s := NewStepUp("")
	handler := s.Require(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/rounds/open", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
