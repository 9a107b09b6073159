package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/domainkv/apiserver/internal/auth"
	"github.com/domainkv/apiserver/internal/services"
	"github.com/domainkv/apiserver/internal/store"
	"github.com/domainkv/apiserver/types"
)

const (
	testSecret     = "test-secret"
	testBcryptCost = 4
)

// testEnv is a full API instance over in-memory repositories, routed
// exactly like the production server.
type testEnv struct {
	router  http.Handler
	users   *memUserRepo
	domains *memDomainRepo
	records *memRecordRepo
	userSvc *services.UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	env := &testEnv{
		users:   &memUserRepo{users: make(map[int]types.User)},
		domains: &memDomainRepo{domains: make(map[string]types.Domain)},
		records: &memRecordRepo{records: make(map[memRecordKey]types.Record)},
	}

	userService := services.NewUserService(env.users, testBcryptCost)
	domainService := services.NewDomainService(env.domains)
	accessService := services.NewAccessService(env.users, env.domains)
	membershipService := services.NewMembershipService(env.users)
	recordService := services.NewRecordService(env.records, services.NewEventPublisher(nil, slog.Default()))
	exportService := services.NewExportService(env.records, nil)
	env.userSvc = userService

	requireAuth := RequireAuth(testSecret)

	router := chi.NewRouter()
	router.Get("/healthz", Healthz)
	AuthRouter(router, userService, testSecret, requireAuth)
	router.Route("/admin", func(r chi.Router) {
		AdminRouter(r, userService, domainService, membershipService, exportService, accessService, requireAuth)
	})
	router.Route("/{domain}", func(r chi.Router) {
		DomainRouter(r, recordService, userService, accessService, requireAuth)
	})
	env.router = router

	return env
}

// seedDomain registers a domain directly in the repository.
func (env *testEnv) seedDomain(t *testing.T, name string) {
	t.Helper()
	_, err := env.domains.Create(context.Background(), name)
	require.NoError(t, err)
}

// seedUser creates an account directly through the user service so
// the password hash is real.
func (env *testEnv) seedUser(t *testing.T, username, password string, isActive, isAdmin bool, domains ...string) types.User {
	t.Helper()
	user, err := env.userSvc.CreateUser(context.Background(), username, password, domains, isActive, isAdmin)
	require.NoError(t, err)
	return user
}

// login performs a real /login request and returns the bearer token.
func (env *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	resp := env.do(t, http.MethodPost, "/login", "", map[string]string{
		"username": username,
		"password": password,
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	var body LoginResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.NotEmpty(t, body.Token)
	return body.Token
}

// staleToken issues a token directly, bypassing login. Used to model
// tokens that outlive changes to the user row.
func staleToken(t *testing.T, userID int, username string, isAdmin bool) string {
	t.Helper()
	token, err := auth.IssueToken(userID, username, isAdmin, []byte(testSecret))
	require.NoError(t, err)
	return token
}

// do runs one request through the router.
func (env *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp := httptest.NewRecorder()
	env.router.ServeHTTP(resp, req)
	return resp
}

func itoa(id int) string { return strconv.Itoa(id) }

func decodeBody[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var body T
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body
}

// memUserRepo mirrors the SQL user repository: lookups skip deleted
// rows and domain updates are version guarded.
type memUserRepo struct {
	mu    sync.Mutex
	seq   int
	users map[int]types.User
}

func (r *memUserRepo) GetByID(_ context.Context, id int) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok || user.IsDeleted {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *memUserRepo) GetByUsername(_ context.Context, username string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Username == username && !user.IsDeleted {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *memUserRepo) List(_ context.Context) ([]types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]types.User, 0, len(r.users))
	for _, user := range r.users {
		if !user.IsDeleted {
			users = append(users, user)
		}
	}
	return users, nil
}

func (r *memUserRepo) ListByDomain(_ context.Context, domain string) ([]types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]types.User, 0, len(r.users))
	for _, user := range r.users {
		if user.IsDeleted {
			continue
		}
		if user.IsAdmin || user.HasDomain(domain) {
			users = append(users, user)
		}
	}
	return users, nil
}

func (r *memUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.users {
		if existing.Username == user.Username && !existing.IsDeleted {
			return types.User{}, store.ErrConflict
		}
	}
	r.seq++
	user.ID = r.seq
	now := time.Now()
	user.CreatedAt = now
	user.ModifiedAt = now
	r.users[user.ID] = user
	return user, nil
}

func (r *memUserRepo) UpdateStatus(_ context.Context, id int, isActive bool, isDeleted *bool) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok || user.IsDeleted {
		return false, nil
	}
	user.IsActive = isActive
	if isDeleted != nil {
		user.IsDeleted = *isDeleted
	}
	user.ModifiedAt = time.Now()
	r.users[id] = user
	return true, nil
}

func (r *memUserRepo) SoftDelete(_ context.Context, id int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok || user.IsDeleted {
		return false, nil
	}
	user.IsDeleted = true
	r.users[id] = user
	return true, nil
}

func (r *memUserRepo) UpdateDomains(_ context.Context, id int, domains []string, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok || user.IsDeleted || user.Version != expectedVersion {
		return store.ErrVersionConflict
	}
	user.Domains = types.SplitDomainList(types.JoinDomainList(domains))
	user.Version++
	user.ModifiedAt = time.Now()
	r.users[id] = user
	return nil
}

// setAdmin flips the admin flag behind any circulating tokens.
func (r *memUserRepo) setAdmin(id int, isAdmin bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user := r.users[id]
	user.IsAdmin = isAdmin
	r.users[id] = user
}

// memDomainRepo mirrors the SQL domain repository.
type memDomainRepo struct {
	mu      sync.Mutex
	domains map[string]types.Domain
}

func (r *memDomainRepo) Get(_ context.Context, name string) (types.Domain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	domain, ok := r.domains[name]
	if !ok || domain.IsDeleted {
		return types.Domain{}, store.ErrNotFound
	}
	return domain, nil
}

func (r *memDomainRepo) List(_ context.Context) ([]types.Domain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	domains := make([]types.Domain, 0, len(r.domains))
	for _, domain := range r.domains {
		if !domain.IsDeleted {
			domains = append(domains, domain)
		}
	}
	return domains, nil
}

func (r *memDomainRepo) Create(_ context.Context, name string) (types.Domain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.domains[name]; ok && !existing.IsDeleted {
		return types.Domain{}, store.ErrConflict
	}
	domain := types.Domain{Name: name, CreatedAt: time.Now(), ModifiedAt: time.Now()}
	r.domains[name] = domain
	return domain, nil
}

func (r *memDomainRepo) SoftDelete(_ context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	domain, ok := r.domains[name]
	if !ok || domain.IsDeleted {
		return false, nil
	}
	domain.IsDeleted = true
	r.domains[name] = domain
	return true, nil
}

// memRecordRepo mirrors the SQL record repository, including
// upsert-revives-slot semantics.
type memRecordRepo struct {
	mu      sync.Mutex
	records map[memRecordKey]types.Record
}

type memRecordKey struct {
	userID int
	domain string
	key    string
}

func (r *memRecordRepo) List(_ context.Context, userID int, domain string) ([]types.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	records := make([]types.Record, 0, len(r.records))
	for _, record := range r.records {
		if record.UserID == userID && record.Domain == domain && !record.IsDeleted {
			records = append(records, record)
		}
	}
	return records, nil
}

func (r *memRecordRepo) ListByDomain(_ context.Context, domain string) ([]types.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	records := make([]types.Record, 0, len(r.records))
	for _, record := range r.records {
		if record.Domain == domain && !record.IsDeleted {
			records = append(records, record)
		}
	}
	return records, nil
}

func (r *memRecordRepo) Get(_ context.Context, userID int, domain, key string) (types.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[memRecordKey{userID, domain, key}]
	if !ok || record.IsDeleted {
		return types.Record{}, store.ErrNotFound
	}
	return record, nil
}

func (r *memRecordRepo) Upsert(_ context.Context, userID int, domain, key string, value *string) (types.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot := memRecordKey{userID, domain, key}
	now := time.Now()
	record, ok := r.records[slot]
	if !ok {
		record = types.Record{UserID: userID, Domain: domain, Key: key, CreatedAt: now}
	}
	record.Value = value
	record.IsDeleted = false
	record.ModifiedAt = now
	r.records[slot] = record
	return record, nil
}

func (r *memRecordRepo) UpdateValue(_ context.Context, userID int, domain, key string, value *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot := memRecordKey{userID, domain, key}
	record, ok := r.records[slot]
	if !ok || record.IsDeleted {
		return false, nil
	}
	record.Value = value
	record.ModifiedAt = time.Now()
	r.records[slot] = record
	return true, nil
}

func (r *memRecordRepo) SoftDelete(_ context.Context, userID int, domain, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot := memRecordKey{userID, domain, key}
	record, ok := r.records[slot]
	if !ok || record.IsDeleted {
		return false, nil
	}
	record.IsDeleted = true
	record.ModifiedAt = time.Now()
	r.records[slot] = record
	return true, nil
}

func (r *memRecordRepo) slotCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}
