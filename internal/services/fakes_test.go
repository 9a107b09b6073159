package services

import (
	"context"
	"sync"
	"time"

	"github.com/domainkv/apiserver/internal/store"
	"github.com/domainkv/apiserver/types"
)

// fakeUserRepo is an in-memory UserRepository mirroring the SQL
// semantics: lookups skip deleted rows, domain updates are guarded by
// the row version.
type fakeUserRepo struct {
	mu    sync.Mutex
	seq   int
	users map[int]types.User

	// forceConflicts makes the next N UpdateDomains calls fail with
	// ErrVersionConflict without touching state.
	forceConflicts     int
	updateDomainsCalls int
}

func newFakeUserRepo(users ...types.User) *fakeUserRepo {
	repo := &fakeUserRepo{users: make(map[int]types.User)}
	for _, user := range users {
		if user.ID == 0 {
			repo.seq++
			user.ID = repo.seq
		} else if user.ID > repo.seq {
			repo.seq = user.ID
		}
		repo.users[user.ID] = user
	}
	return repo
}

func (r *fakeUserRepo) GetByID(_ context.Context, id int) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok || user.IsDeleted {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *fakeUserRepo) GetByUsername(_ context.Context, username string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Username == username && !user.IsDeleted {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *fakeUserRepo) List(_ context.Context) ([]types.User, error) {
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

func (r *fakeUserRepo) ListByDomain(_ context.Context, domain string) ([]types.User, error) {
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

func (r *fakeUserRepo) Create(_ context.Context, user types.User) (types.User, error) {
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

func (r *fakeUserRepo) UpdateStatus(_ context.Context, id int, isActive bool, isDeleted *bool) (bool, error) {
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

func (r *fakeUserRepo) SoftDelete(_ context.Context, id int) (bool, error) {
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

func (r *fakeUserRepo) UpdateDomains(_ context.Context, id int, domains []string, expectedVersion int) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updateDomainsCalls++
	if r.forceConflicts > 0 {
		r.forceConflicts--
		return store.ErrVersionConflict
	}
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

// fakeDomainRepo is an in-memory DomainRepository.
type fakeDomainRepo struct {
	mu      sync.Mutex
	domains map[string]types.Domain
}

func newFakeDomainRepo(names ...string) *fakeDomainRepo {
	repo := &fakeDomainRepo{domains: make(map[string]types.Domain)}
	for _, name := range names {
		repo.domains[name] = types.Domain{Name: name, CreatedAt: time.Now(), ModifiedAt: time.Now()}
	}
	return repo
}

func (r *fakeDomainRepo) Get(_ context.Context, name string) (types.Domain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	domain, ok := r.domains[name]
	if !ok || domain.IsDeleted {
		return types.Domain{}, store.ErrNotFound
	}
	return domain, nil
}

func (r *fakeDomainRepo) List(_ context.Context) ([]types.Domain, error) {
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

func (r *fakeDomainRepo) Create(_ context.Context, name string) (types.Domain, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.domains[name]; ok {
		return types.Domain{}, store.ErrConflict
	}
	domain := types.Domain{Name: name, CreatedAt: time.Now(), ModifiedAt: time.Now()}
	r.domains[name] = domain
	return domain, nil
}

func (r *fakeDomainRepo) SoftDelete(_ context.Context, name string) (bool, error) {
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

// fakeRecordRepo is an in-memory RecordRepository with upsert-on-slot
// semantics.
type fakeRecordRepo struct {
	mu      sync.Mutex
	records map[recordKey]types.Record
}

type recordKey struct {
	userID int
	domain string
	key    string
}

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{records: make(map[recordKey]types.Record)}
}

func (r *fakeRecordRepo) List(_ context.Context, userID int, domain string) ([]types.Record, error) {
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

func (r *fakeRecordRepo) ListByDomain(_ context.Context, domain string) ([]types.Record, error) {
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

func (r *fakeRecordRepo) Get(_ context.Context, userID int, domain, key string) (types.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[recordKey{userID, domain, key}]
	if !ok || record.IsDeleted {
		return types.Record{}, store.ErrNotFound
	}
	return record, nil
}

func (r *fakeRecordRepo) Upsert(_ context.Context, userID int, domain, key string, value *string) (types.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot := recordKey{userID, domain, key}
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

func (r *fakeRecordRepo) UpdateValue(_ context.Context, userID int, domain, key string, value *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot := recordKey{userID, domain, key}
	record, ok := r.records[slot]
	if !ok || record.IsDeleted {
		return false, nil
	}
	record.Value = value
	record.ModifiedAt = time.Now()
	r.records[slot] = record
	return true, nil
}

func (r *fakeRecordRepo) SoftDelete(_ context.Context, userID int, domain, key string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	slot := recordKey{userID, domain, key}
	record, ok := r.records[slot]
	if !ok || record.IsDeleted {
		return false, nil
	}
	record.IsDeleted = true
	record.ModifiedAt = time.Now()
	r.records[slot] = record
	return true, nil
}

func (r *fakeRecordRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// fakePublisher captures published events.
type fakePublisher struct {
	mu       sync.Mutex
	channels []string
	payloads [][]byte
}

func (p *fakePublisher) Publish(_ context.Context, channel string, data []byte, _ map[string]string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	p.payloads = append(p.payloads, data)
	return "msg-1", nil
}

func (p *fakePublisher) published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.channels)
}
