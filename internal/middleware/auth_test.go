package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"stokvel/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-secret"

func signUserToken(t *testing.T, userID uuid.UUID, secret string, expiresAt time.Time) string {
	t.Helper()
	claims := jwt.MapClaims{
		"user_id": userID.String(),
		"exp":     expiresAt.Unix(),
		"iat":     time.Now().Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func signOperatorToken(t *testing.T, operatorID uuid.UUID, role domain.OperatorRole) string {
	t.Helper()
	claims := jwt.MapClaims{
		"operator_id": operatorID.String(),
		"name":        "test-operator",
		"role":        string(role),
		"exp":         time.Now().Add(time.Hour).Unix(),
		"iat":         time.Now().Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testJWTSecret))
	require.NoError(t, err)
	return token
}

func TestAuthenticate_InjectsUserID(t *testing.T) {
	mw := NewAuthMiddleware(testJWTSecret, nil)
	userID := uuid.New()

	var gotID uuid.UUID
	var gotOK bool
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, gotOK = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/pool", nil)
	req.Header.Set("Authorization", "Bearer "+signUserToken(t, userID, testJWTSecret, time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, gotOK)
	assert.Equal(t, userID, gotID)
}

func TestAuthenticate_RejectsMissingHeader(t *testing.T) {
	mw := NewAuthMiddleware(testJWTSecret, nil)
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/pool", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Authorization header required")
}

func TestAuthenticate_RejectsWrongSecret(t *testing.T) {
	mw := NewAuthMiddleware(testJWTSecret, nil)
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/pool", nil)
	req.Header.Set("Authorization", "Bearer "+signUserToken(t, uuid.New(), "other-secret", time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAuthenticate_RejectsExpiredToken(t *testing.T) {
	mw := NewAuthMiddleware(testJWTSecret, nil)
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/pool", nil)
	req.Header.Set("Authorization", "Bearer "+signUserToken(t, uuid.New(), testJWTSecret, time.Now().Add(-time.Hour)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

type fakeBlacklist struct {
	revoked map[string]bool
}

func (f *fakeBlacklist) Blacklist(ctx context.Context, token string, expiration time.Duration) error {
	f.revoked[token] = true
	return nil
}

func (f *fakeBlacklist) IsBlacklisted(ctx context.Context, token string) (bool, error) {
	return f.revoked[token], nil
}

func TestAuthenticate_RejectsRevokedToken(t *testing.T) {
	token := signUserToken(t, uuid.New(), testJWTSecret, time.Now().Add(time.Hour))
	blacklist := &fakeBlacklist{revoked: map[string]bool{token: true}}

	mw := NewAuthMiddleware(testJWTSecret, blacklist)
	handler := mw.Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	req := httptest.NewRequest(http.MethodGet, "/pool", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Token revoked")
}

func TestAuthenticateOperator_InjectsIdentity(t *testing.T) {
	mw := NewAuthMiddleware(testJWTSecret, nil)
	operatorID := uuid.New()

	var gotID uuid.UUID
	var gotRole domain.OperatorRole
	handler := mw.AuthenticateOperator(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID, _ = OperatorIDFromContext(r.Context())
		gotRole, _ = OperatorRoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodPost, "/rounds/open", nil)
	req.Header.Set("Authorization", "Bearer "+signOperatorToken(t, operatorID, domain.OperatorRoleManager))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, operatorID, gotID)
	assert.Equal(t, domain.OperatorRoleManager, gotRole)
}

func TestAuthenticateOperator_RejectsUserToken(t *testing.T) {
	mw := NewAuthMiddleware(testJWTSecret, nil)
	handler := mw.AuthenticateOperator(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be reached")
	}))

	// A valid user token carries no operator_id claim.
	req := httptest.NewRequest(http.MethodPost, "/rounds/open", nil)
	req.Header.Set("Authorization", "Bearer "+signUserToken(t, uuid.New(), testJWTSecret, time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireRole_EnforcesAllowedRoles(t *testing.T) {
	mw := NewAuthMiddleware(testJWTSecret, nil)
	handler := mw.AuthenticateOperator(
		RequireRole(domain.OperatorRoleOwner)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})),
	)

	// 1. Manager tokens are rejected on owner-only routes
	req := httptest.NewRequest(http.MethodPost, "/admin/capacity", nil)
	req.Header.Set("Authorization", "Bearer "+signOperatorToken(t, uuid.New(), domain.OperatorRoleManager))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// 2. Owner tokens pass
	req = httptest.NewRequest(http.MethodPost, "/admin/capacity", nil)
	req.Header.Set("Authorization", "Bearer "+signOperatorToken(t, uuid.New(), domain.OperatorRoleOwner))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
