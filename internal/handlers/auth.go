package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/domainkv/apiserver/internal/auth"
	"github.com/domainkv/apiserver/internal/services"
	"github.com/domainkv/apiserver/internal/store"
	"github.com/go-chi/chi/v5"
)

// AuthHandler provides login, registration, and session introspection.
type AuthHandler struct {
	users  *services.UserService
	secret []byte
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(users *services.UserService, jwtSecret string) *AuthHandler {
	return &AuthHandler{
		users:  users,
		secret: []byte(jwtSecret),
	}
}

// AuthRouter registers the authentication routes on the given router.
func AuthRouter(r chi.Router, users *services.UserService, jwtSecret string, requireAuth func(http.Handler) http.Handler) {
	handler := NewAuthHandler(users, jwtSecret)

	r.Post("/login", handler.Login)
	r.Post("/register", handler.Register)
	r.With(requireAuth).Get("/users/me", handler.Me)
}

// RequireAuth constructs the authentication middleware: it verifies
// the bearer token and injects the decoded claims into the request
// context. Claims are only proof of identity; authorization gates
// re-read the user row.
func RequireAuth(jwtSecret string) func(http.Handler) http.Handler {
	secret := []byte(jwtSecret)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Unauthorized, no token provided")
				return
			}

			claims, err := auth.ParseToken(tokenString, secret)
			if err != nil {
				writeError(w, http.StatusUnauthorized, "Unauthorized, invalid token")
				return
			}

			ctx := context.WithValue(r.Context(), contextClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Login verifies credentials and returns a bearer token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing credentials")
		return
	}

	user, err := h.users.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, services.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "Incorrect username or password.")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	token, err := auth.IssueToken(user.ID, user.Username, user.IsAdmin, h.secret)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create token")
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{Message: "Logged in successfully", Token: token})
}

// Register creates a new account. It starts inactive and without any
// domain access until an admin enables it.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	user, err := h.users.Register(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			writeError(w, http.StatusConflict, "username already exists")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to create user")
		return
	}

	writeJSON(w, http.StatusCreated, RegisterResponse{Message: "User created", ID: user.ID})
}

// Me reports the identity baked into the presented token.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized, invalid token")
		return
	}

	writeJSON(w, http.StatusOK, MeResponse{
		IsLoggedIn: true,
		User: MeUser{
			ID:       claims.UserID,
			Username: claims.Username,
			IsAdmin:  claims.IsAdmin,
		},
	})
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	Message string `json:"message"`
	Token   string `json:"token"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	Message string `json:"message"`
	ID      int    `json:"id"`
}

type MeResponse struct {
	IsLoggedIn bool   `json:"isLoggedIn"`
	User       MeUser `json:"user"`
}

type MeUser struct {
	ID       int    `json:"id"`
	Username string `json:"username"`
	IsAdmin  bool   `json:"isAdmin"`
}

func bearerToken(r *http.Request) (string, error) {
	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	if authHeader == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", errors.New("invalid authorization")
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errors.New("invalid authorization")
	}
	return token, nil
}
