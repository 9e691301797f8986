/*
auth.go - Account handlers and JWT middleware

PURPOSE:
  Registration, login, and bearer-token verification. The attendance
  engine trusts the userId this layer produces; everything
  authentication-related stays out of the core.

TOKENS:
  HMAC-signed JWT, 24h expiry. Claims carry userId, email, and role.
  The role gates the /api/admin routes.

PASSWORDS:
  bcrypt with the default cost. Hashes never leave the store layer's
  User struct and are never serialized in responses.

SEE ALSO:
  - server.go: Middleware wiring
  - handlers.go: The handlers these middlewares protect
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/odcheck/attendance-engine/attendance"
	"github.com/odcheck/attendance-engine/store/sqlite"
)

const (
	RoleParticipant = "participant"
	RoleAdmin       = "admin"

	tokenTTL = 24 * time.Hour
)

// Claims is the JWT payload for authenticated requests.
type Claims struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

type contextKey string

const claimsKey contextKey = "authClaims"

// ClaimsFromContext returns the verified claims set by Authenticator.
func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*Claims)
	return c, ok
}

// IssueToken signs a 24h JWT for the user.
func IssueToken(secret []byte, u *sqlite.User) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: u.ID,
		Email:  u.Email,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// =============================================================================
// MIDDLEWARE
// =============================================================================

// Authenticator verifies the Bearer token and stores the claims in the
// request context. 401 on anything malformed, invalid, or expired.
func Authenticator(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				writeError(w, http.StatusUnauthorized, "Authentication token required", nil)
				return
			}

			raw, ok := strings.CutPrefix(header, "Bearer ")
			if !ok {
				writeError(w, http.StatusUnauthorized, "Invalid authorization header", nil)
				return
			}

			claims := &Claims{}
			token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
				if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
					return nil, jwt.ErrSignatureInvalid
				}
				return secret, nil
			})
			if err != nil || !token.Valid {
				if errors.Is(err, jwt.ErrTokenExpired) {
					writeError(w, http.StatusUnauthorized, "Token expired", nil)
					return
				}
				writeError(w, http.StatusUnauthorized, "Invalid token", nil)
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects non-admin callers. Must run after Authenticator.
func RequireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := ClaimsFromContext(r.Context())
		if !ok || claims.Role != RoleAdmin {
			writeError(w, http.StatusForbidden, "Admin privileges required", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// ACCOUNT HANDLERS
// =============================================================================

// Register creates an account.
// POST /api/auth/register
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Email == "" || req.Password == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "email, password and name are required", nil)
		return
	}
	role := req.Role
	if role == "" {
		role = RoleParticipant
	}
	if role != RoleParticipant && role != RoleAdmin {
		writeError(w, http.StatusBadRequest, "Unknown role", nil)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to hash password", err)
		return
	}

	user := sqlite.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		Name:         req.Name,
		Role:         role,
		PasswordHash: string(hash),
	}
	if err := h.Store.SaveUser(r.Context(), user); err != nil {
		if errors.Is(err, sqlite.ErrDuplicateEmail) {
			writeError(w, http.StatusConflict, "Email already registered", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to create user", err)
		return
	}

	writeJSON(w, http.StatusCreated, toUserDTO(&user))
}

// Login verifies credentials and issues a token.
// POST /api/auth/login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required", nil)
		return
	}

	user, err := h.Store.GetUserByEmail(r.Context(), req.Email)
	if err != nil {
		if attendance.IsNotFound(err) {
			// Same response as a wrong password; don't leak which emails exist.
			writeError(w, http.StatusUnauthorized, "Invalid email or password", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to look up user", err)
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		writeError(w, http.StatusUnauthorized, "Invalid email or password", nil)
		return
	}

	token, err := IssueToken(h.JWTSecret, user)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to issue token", err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Token: token, User: toUserDTO(user)})
}

// Me returns the authenticated user's account.
// GET /api/auth/me
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	claims, _ := ClaimsFromContext(r.Context())

	user, err := h.Store.GetUser(r.Context(), claims.UserID)
	if err != nil {
		if attendance.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "User not found", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to look up user", err)
		return
	}

	writeJSON(w, http.StatusOK, toUserDTO(user))
}
