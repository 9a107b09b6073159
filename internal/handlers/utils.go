package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/domainkv/apiserver/internal/auth"
	"github.com/domainkv/apiserver/internal/services"
)

type contextKey string

const contextClaimsKey contextKey = "claims"

func claimsFromContext(ctx context.Context) (auth.Claims, error) {
	claims, ok := ctx.Value(contextClaimsKey).(auth.Claims)
	if !ok || claims.UserID < 1 {
		return auth.Claims{}, errors.New("missing claims")
	}
	return claims, nil
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

// writeAccessError maps an authorization-gate failure onto its HTTP
// status. Unknown errors are storage failures and become 500.
func writeAccessError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrDomainNotFound):
		writeError(w, http.StatusNotFound, "Domain not found")
	case errors.Is(err, services.ErrUserNotCurrent):
		writeError(w, http.StatusUnauthorized, "Unauthorized, user not found or inactive")
	case errors.Is(err, services.ErrDomainForbidden):
		writeError(w, http.StatusForbidden, "Access denied to this domain")
	case errors.Is(err, services.ErrAdminRequired):
		writeError(w, http.StatusForbidden, "Access denied. Admin required.")
	default:
		writeError(w, http.StatusInternalServerError, "authorization check failed")
	}
}

// ErrorResponse is a simple error payload.
type ErrorResponse struct {
	Error string `json:"error"`
}

// MessageResponse is a simple confirmation payload.
type MessageResponse struct {
	Message string `json:"message"`
}
