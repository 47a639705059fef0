// Package middleware hosts authentication, logging, and rate limiting middleware.
package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strings"
	"time"

	"stokvel/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// contextKey avoids collisions when storing values in request contexts.
type contextKey string

const (
	ctxUserIDKey       contextKey = "user_id"
	ctxOperatorIDKey   contextKey = "operator_id"
	ctxOperatorRoleKey contextKey = "operator_role"
	ctxTokenKey        contextKey = "bearer_token"
)

// TokenBlacklist revokes bearer tokens ahead of their natural expiry.
type TokenBlacklist interface {
	Blacklist(ctx context.Context, token string, expiration time.Duration) error
	IsBlacklisted(ctx context.Context, token string) (bool, error)
}

// AuthMiddleware validates bearer JWTs and injects caller identity into the context.
type AuthMiddleware struct {
	jwtSecret string
	blacklist TokenBlacklist
}

// NewAuthMiddleware constructs an AuthMiddleware. The blacklist is optional;
// when nil, revocation checks are skipped.
func NewAuthMiddleware(secret string, blacklist TokenBlacklist) *AuthMiddleware {
	return &AuthMiddleware{jwtSecret: secret, blacklist: blacklist}
}

// Authenticate enforces bearer auth for pool participants and populates the
// user id on the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, tokenString, ok := m.verify(w, r)
		if !ok {
			return
		}

		userIDStr, ok := claims["user_id"].(string)
		if !ok {
			jsonError(w, http.StatusUnauthorized, "Invalid user ID in token")
			return
		}
		userID, err := uuid.Parse(userIDStr)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "Invalid user ID format")
			return
		}

		ctx := context.WithValue(r.Context(), ctxUserIDKey, userID)
		ctx = context.WithValue(ctx, ctxTokenKey, tokenString)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// AuthenticateOperator enforces bearer auth for service operators and
// populates operator id and role on the request context.
func (m *AuthMiddleware) AuthenticateOperator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, tokenString, ok := m.verify(w, r)
		if !ok {
			return
		}

		operatorIDStr, ok := claims["operator_id"].(string)
		if !ok {
			jsonError(w, http.StatusUnauthorized, "Invalid operator ID in token")
			return
		}
		operatorID, err := uuid.Parse(operatorIDStr)
		if err != nil {
			jsonError(w, http.StatusUnauthorized, "Invalid operator ID format")
			return
		}

		role, ok := claims["role"].(string)
		if !ok {
			jsonError(w, http.StatusUnauthorized, "Invalid role in token")
			return
		}

		ctx := context.WithValue(r.Context(), ctxOperatorIDKey, operatorID)
		ctx = context.WithValue(ctx, ctxOperatorRoleKey, domain.OperatorRole(role))
		ctx = context.WithValue(ctx, ctxTokenKey, tokenString)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireRole rejects requests whose operator token carries none of the
// allowed roles. It must run after AuthenticateOperator.
func RequireRole(roles ...domain.OperatorRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			role, ok := OperatorRoleFromContext(r.Context())
			if !ok {
				jsonError(w, http.StatusUnauthorized, "Operator authentication required")
				return
			}
			for _, allowed := range roles {
				if role == allowed {
					next.ServeHTTP(w, r)
					return
				}
			}
			jsonError(w, http.StatusForbidden, "Insufficient role")
		})
	}
}

func (m *AuthMiddleware) verify(w http.ResponseWriter, r *http.Request) (jwt.MapClaims, string, bool) {
	authHeader := r.Header.Get("Authorization")
	if strings.TrimSpace(authHeader) == "" {
		jsonError(w, http.StatusUnauthorized, "Authorization header required")
		return nil, "", false
	}

	parts := strings.Fields(authHeader)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		jsonError(w, http.StatusUnauthorized, "Invalid authorization format")
		return nil, "", false
	}
	tokenString := parts[1]

	if m.blacklist != nil {
		revoked, err := m.blacklist.IsBlacklisted(r.Context(), tokenString)
		if err != nil {
			jsonError(w, http.StatusInternalServerError, "Internal server error")
			return nil, "", false
		}
		if revoked {
			jsonError(w, http.StatusUnauthorized, "Token revoked")
			return nil, "", false
		}
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(m.jwtSecret), nil
	})
	if err != nil || !token.Valid {
		jsonError(w, http.StatusUnauthorized, "Invalid token")
		return nil, "", false
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		jsonError(w, http.StatusUnauthorized, "Invalid token claims")
		return nil, "", false
	}

	if exp, ok := claims["exp"].(float64); ok {
		if time.Now().Unix() > int64(exp) {
			jsonError(w, http.StatusUnauthorized, "Token expired")
			return nil, "", false
		}
	}

	return claims, tokenString, true
}

// UserIDFromContext returns the authenticated user's UUID from context.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	v := ctx.Value(ctxUserIDKey)
	id, ok := v.(uuid.UUID)
	return id, ok
}

// OperatorIDFromContext returns the authenticated operator's UUID from context.
func OperatorIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	v := ctx.Value(ctxOperatorIDKey)
	id, ok := v.(uuid.UUID)
	return id, ok
}

// OperatorRoleFromContext returns the authenticated operator's role from context.
func OperatorRoleFromContext(ctx context.Context) (domain.OperatorRole, bool) {
	v := ctx.Value(ctxOperatorRoleKey)
	role, ok := v.(domain.OperatorRole)
	return role, ok
}

// BearerTokenFromContext returns the raw bearer token, for revocation on logout.
func BearerTokenFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(ctxTokenKey)
	s, ok := v.(string)
	return s, ok
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		allowed := os.Getenv("CORS_ALLOWED_ORIGINS")
		origin := r.Header.Get("Origin")
		if strings.TrimSpace(allowed) != "" {
			// Restrict to configured origins
			origins := strings.Split(allowed, ",")
			ok := false
			for _, o := range origins {
				if strings.EqualFold(strings.TrimSpace(o), origin) {
					ok = true
					break
				}
			}
			if ok {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			}
		} else {
			// Development default: reflect origin if present, fallback to *
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID, X-TOTP-Code, Idempotency-Key")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
