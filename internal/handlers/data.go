package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/domainkv/apiserver/internal/services"
	"github.com/domainkv/apiserver/internal/store"
	"github.com/domainkv/apiserver/types"
	"github.com/go-chi/chi/v5"
)

// DataHandler serves the per-domain key-value endpoints and the
// domain-scoped user management endpoints.
type DataHandler struct {
	records *services.RecordService
	users   *services.UserService
	access  *services.AccessService
}

// NewDataHandler constructs a handler with the provided services.
func NewDataHandler(records *services.RecordService, users *services.UserService, access *services.AccessService) *DataHandler {
	return &DataHandler{records: records, users: users, access: access}
}

// DomainRouter registers the /{domain} subtree on the given router.
func DomainRouter(
	r chi.Router,
	records *services.RecordService,
	users *services.UserService,
	access *services.AccessService,
	requireAuth func(http.Handler) http.Handler,
) {
	handler := NewDataHandler(records, users, access)

	r.Route("/data", func(r chi.Router) {
		r.Use(requireAuth, handler.requireDomainAccess)
		r.Get("/", handler.ListRecords)
		r.Post("/", handler.UpsertRecord)
		r.Get("/{key}", handler.GetRecord)
		r.Put("/{key}", handler.UpdateRecord)
		r.Delete("/{key}", handler.DeleteRecord)
	})

	r.Route("/users", func(r chi.Router) {
		r.Use(requireAuth, handler.requireDomainAdmin)
		r.Get("/", handler.ListDomainUsers)
		r.Put("/{userID}", handler.UpdateDomainUser)
	})
}

// requireDomainAccess runs the per-domain authorization gates for the
// authenticated caller against the {domain} URL parameter.
func (h *DataHandler) requireDomainAccess(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := claimsFromContext(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized, no token provided")
			return
		}

		if _, err := h.access.AuthorizeDomain(r.Context(), claims.UserID, chi.URLParam(r, "domain")); err != nil {
			writeAccessError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireDomainAdmin gates the domain-scoped user management routes:
// the domain must exist and the caller must be a current admin.
func (h *DataHandler) requireDomainAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, err := claimsFromContext(r.Context())
		if err != nil {
			writeError(w, http.StatusUnauthorized, "Unauthorized, no token provided")
			return
		}

		if err := h.access.CheckDomain(r.Context(), chi.URLParam(r, "domain")); err != nil {
			writeAccessError(w, err)
			return
		}
		if _, err := h.access.AuthorizeAdmin(r.Context(), claims.UserID); err != nil {
			writeAccessError(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (h *DataHandler) ListRecords(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized, no token provided")
		return
	}

	records, err := h.records.List(r.Context(), claims.UserID, chi.URLParam(r, "domain"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list data")
		return
	}

	writeJSON(w, http.StatusOK, DataListResponse{Data: records})
}

func (h *DataHandler) UpsertRecord(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized, no token provided")
		return
	}

	var req UpsertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if strings.TrimSpace(req.Key) == "" {
		writeError(w, http.StatusBadRequest, "key is required")
		return
	}

	record, err := h.records.Upsert(r.Context(), claims.UserID, chi.URLParam(r, "domain"), req.Key, req.Value)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store data")
		return
	}

	writeJSON(w, http.StatusCreated, DataResponse{Data: record})
}

func (h *DataHandler) GetRecord(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized, no token provided")
		return
	}

	record, err := h.records.Get(r.Context(), claims.UserID, chi.URLParam(r, "domain"), chi.URLParam(r, "key"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "No data found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch data")
		return
	}

	writeJSON(w, http.StatusOK, DataResponse{Data: record})
}

func (h *DataHandler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized, no token provided")
		return
	}

	var req UpdateValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}

	domain := chi.URLParam(r, "domain")
	key := chi.URLParam(r, "key")

	changed, err := h.records.UpdateValue(r.Context(), claims.UserID, domain, key, req.Value)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update data")
		return
	}
	if !changed {
		writeError(w, http.StatusNotFound, "Key not found.")
		return
	}

	record, err := h.records.Get(r.Context(), claims.UserID, domain, key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch data")
		return
	}
	writeJSON(w, http.StatusOK, DataResponse{Data: record})
}

func (h *DataHandler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	claims, err := claimsFromContext(r.Context())
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized, no token provided")
		return
	}

	changed, err := h.records.Delete(r.Context(), claims.UserID, chi.URLParam(r, "domain"), chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to delete data")
		return
	}
	if !changed {
		writeError(w, http.StatusNotFound, "Key not found.")
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Key deleted"})
}

// ListDomainUsers lists the users with access to the domain: members
// by their domain set, admins implicitly.
func (h *DataHandler) ListDomainUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListByDomain(r.Context(), chi.URLParam(r, "domain"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}
	writeJSON(w, http.StatusOK, UserListResponse{Users: users})
}

func (h *DataHandler) UpdateDomainUser(w http.ResponseWriter, r *http.Request) {
	userID, err := parseUserID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req struct {
		IsActive *bool `json:"isActive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request")
		return
	}
	if req.IsActive == nil {
		writeError(w, http.StatusBadRequest, "isActive is required")
		return
	}

	changed, err := h.users.UpdateStatus(r.Context(), userID, *req.IsActive, nil)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to update user")
		return
	}

	writeJSON(w, http.StatusOK, UserUpdateResponse{Message: "User updated", Changes: boolToChanges(changed)})
}

// DataListResponse wraps a list of records.
type DataListResponse struct {
	Data []types.Record `json:"data"`
}

// DataResponse wraps a single record.
type DataResponse struct {
	Data types.Record `json:"data"`
}

type UpsertRequest struct {
	Key   string  `json:"key"`
	Value *string `json:"value"`
}

type UpdateValueRequest struct {
	Value *string `json:"value"`
}

type UserListResponse struct {
	Users []types.User `json:"users"`
}

type UserUpdateResponse struct {
	Message string `json:"message"`
	Changes int    `json:"changes"`
}

func parseUserID(r *http.Request) (int, error) {
	raw := chi.URLParam(r, "userID")
	id, err := strconv.Atoi(raw)
	if err != nil || id < 1 {
		return 0, errors.New("invalid user id")
	}
	return id, nil
}

func boolToChanges(changed bool) int {
	if changed {
		return 1
	}
	return 0
}
