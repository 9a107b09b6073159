package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/domainkv/apiserver/internal/services"
	"github.com/domainkv/apiserver/internal/store"
	"github.com/domainkv/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// AdminHandler serves domain and user management. Every route sits
// behind the fresh-admin gate.
type AdminHandler struct {
	users      *services.UserService
	domains    *services.DomainService
	membership *services.MembershipService
	export     *services.ExportService
	access     *services.AccessService
}

// NewAdminHandler constructs a handler with the provided services.
func NewAdminHandler(
	users *services.UserService,
	domains *services.DomainService,
	membership *services.MembershipService,
	export *services.ExportService,
	access *services.AccessService,
) *AdminHandler {
	return &AdminHandler{
		users:      users,
		domains:    domains,
		membership: membership,
		export:     export,
		access:     access,
	}
}

// AdminRouter registers the /admin subtree on the given router.
func AdminRouter(
	r chi.Router,
	users *services.UserService,
	domains *services.DomainService,
	membership *services.MembershipService,
	export *services.ExportService,
	access *services.AccessService,
	requireAuth func(http.Handler) http.Handler,
) {
	handler := NewAdminHandler(users, domains, membership, export, access)

	r.Use(requireAuth, handler.requireAdmin)

	r.Get("/domains", handler.ListDomains)
	r.Post("/domains", handler.CreateDomain)
	r.Delete("/domains/{domain}", handler.DeleteDomain)
	r.Post("/domains/{domain}/export", handler.ExportDomain)

	r.Get("/users", handler.ListUsers)
	r.Post("/users", handler.CreateUser)
	r.Put("/users/{userID}", handler.UpdateUser)
	r.Delete("/users/{userID}", handler.DeleteUser)
	r.Post("/users/{userID}/domains", handler.AddUserDomain)
	r.Delete("/users/{userID}/domains/{domain}", handler.RemoveUserDomain)
}

// requireAdmin re-reads the caller's user row: the token's isAdmin
// claim is never trusted, so a demotion takes effect on the next
// request even while old tokens are still circulating.
func (h *AdminHandler) requireAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := claimsFromContext(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized, no token provided")
			return
		}

		if _, err := h.access.AuthorizeAdmin(r.Context(), claims.UserID); err != nil {
			writeAccessError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *AdminHandler) ListDomains(w http.ResponseWriter, r *http.Request) {
	domains, err := h.domains.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list domains")
		return
	}
	writeJSON(w, http.StatusOK, DomainListResponse{Domains: domains})
}

func (h *AdminHandler) CreateDomain(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	domain, err := h.domains.Create(r.Context(), req.Name)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrInvalidDomainName):
			writeError(w, http.StatusBadRequest, "Domain name is required")
		case errors.Is(err, store.ErrConflict):
			writeError(w, http.StatusConflict, "Domain already exists")
		default:
			writeError(w, http.StatusInternalServerError, "failed to create domain")
		}
		return
	}

	writeJSON(w, http.StatusCreated, DomainCreatedResponse{
		Message: "Domain created successfully",
		Domain:  DomainName{Name: domain.Name},
	})
}

func (h *AdminHandler) DeleteDomain(w http.ResponseWriter, r *http.Request) {
	changed, err := h.domains.Delete(r.Context(), chi.URLParam(r, "domain"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete domain")
		return
	}
	if !changed {
		writeError(w, http.StatusNotFound, "Domain not found")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "Domain deleted successfully"})
}

// ExportDomain snapshots a domain's live records into object storage.
func (h *AdminHandler) ExportDomain(w http.ResponseWriter, r *http.Request) {
	domain := chi.URLParam(r, "domain")
	if err := h.access.CheckDomain(r.Context(), domain); err != nil {
		writeAccessError(w, err)
		return
	}

	result, err := h.export.ExportDomain(r.Context(), domain)
	if err != nil {
		if errors.Is(err, services.ErrNoSnapshotStorage) {
			writeError(w, http.StatusServiceUnavailable, "snapshot storage not configured")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to export domain")
		return
	}

	writeJSON(w, http.StatusCreated, ExportResponse{
		Message:   "Domain exported successfully",
		ObjectKey: result.ObjectKey,
		Records:   result.Records,
	})
}

func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, UserListResponse{Users: users})
}

func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req AdminCreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "missing required fields")
		return
	}

	var domains []string
	if req.Domain != "" {
		name := services.NormalizeDomainName(req.Domain)
		if err := h.access.CheckDomain(r.Context(), name); err != nil {
			writeAccessError(w, err)
			return
		}
		domains = []string{name}
	}

	user, err := h.users.CreateUser(r.Context(), req.Username, req.Password, domains, req.IsActive, req.IsAdmin)
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

func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		IsActive  *bool `json:"isActive"`
		IsDeleted *bool `json:"isDeleted"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.IsActive == nil {
		writeError(w, http.StatusBadRequest, "isActive is required")
		return
	}

	changed, err := h.users.UpdateStatus(r.Context(), userID, *req.IsActive, req.IsDeleted)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update user")
		return
	}

	writeJSON(w, http.StatusOK, UserUpdateResponse{Message: "User updated", Changes: boolToChanges(changed)})
}

func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	changed, err := h.users.Delete(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete user")
		return
	}
	if !changed {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "User deleted"})
}

// AddUserDomain grants a user access to an existing domain. Granting
// access the user already has is a no-op success.
func (h *AdminHandler) AddUserDomain(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		Domain string `json:"domain"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	name := services.NormalizeDomainName(req.Domain)
	if name == "" {
		writeError(w, http.StatusBadRequest, "Domain name is required")
		return
	}
	if err := h.access.CheckDomain(r.Context(), name); err != nil {
		writeAccessError(w, err)
		return
	}

	if err := h.membership.AddDomain(r.Context(), userID, name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update domain access")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Domain access granted"})
}

// RemoveUserDomain revokes a user's access to a domain. Revoking a
// non-member is a no-op success.
func (h *AdminHandler) RemoveUserDomain(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	domain := services.NormalizeDomainName(chi.URLParam(r, "domain"))
	if err := h.membership.RemoveDomain(r.Context(), userID, domain); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "User not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update domain access")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Domain access revoked"})
}

type DomainListResponse struct {
	Domains []types.Domain `json:"domains"`
}

type DomainName struct {
	Name string `json:"name"`
}

type DomainCreatedResponse struct {
	Message string     `json:"message"`
	Domain  DomainName `json:"domain"`
}

type ExportResponse struct {
	Message   string `json:"message"`
	ObjectKey string `json:"objectKey"`
	Records   int    `json:"records"`
}

type AdminCreateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Domain   string `json:"domain"`
	IsActive bool   `json:"isActive"`
	IsAdmin  bool   `json:"isAdmin"`
}
