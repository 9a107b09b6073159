package services

import (
	"context"

	"github.com/domainkv/apiserver/types"
)

// RecordRepository defines persistence operations for key-value entries.
type RecordRepository interface {
	List(ctx context.Context, userID int, domain string) ([]types.Record, error)
	ListByDomain(ctx context.Context, domain string) ([]types.Record, error)
	Get(ctx context.Context, userID int, domain, key string) (types.Record, error)
	Upsert(ctx context.Context, userID int, domain, key string, value *string) (types.Record, error)
	UpdateValue(ctx context.Context, userID int, domain, key string, value *string) (bool, error)
	SoftDelete(ctx context.Context, userID int, domain, key string) (bool, error)
}

// RecordService encapsulates key-value use-cases and emits a change
// event after every successful write.
type RecordService struct {
	repo   RecordRepository
	events *EventPublisher
}

func NewRecordService(repo RecordRepository, events *EventPublisher) *RecordService {
	return &RecordService{repo: repo, events: events}
}

func (s *RecordService) List(ctx context.Context, userID int, domain string) ([]types.Record, error) {
	return s.repo.List(ctx, userID, domain)
}

func (s *RecordService) Get(ctx context.Context, userID int, domain, key string) (types.Record, error) {
	return s.repo.Get(ctx, userID, domain, key)
}

// Upsert writes a record. Repeating the same write is idempotent, and
// upserting a soft-deleted key revives the same slot.
func (s *RecordService) Upsert(ctx context.Context, userID int, domain, key string, value *string) (types.Record, error) {
	record, err := s.repo.Upsert(ctx, userID, domain, key, value)
	if err != nil {
		return types.Record{}, err
	}
	s.events.RecordChanged(ctx, RecordOpUpsert, domain, key, userID)
	return record, nil
}

// UpdateValue overwrites a live record's value. Returns false when no
// live row matched.
func (s *RecordService) UpdateValue(ctx context.Context, userID int, domain, key string, value *string) (bool, error) {
	changed, err := s.repo.UpdateValue(ctx, userID, domain, key, value)
	if err != nil {
		return false, err
	}
	if changed {
		s.events.RecordChanged(ctx, RecordOpUpdate, domain, key, userID)
	}
	return changed, nil
}

// Delete soft-deletes a live record. Returns false when no live row
// matched.
func (s *RecordService) Delete(ctx context.Context, userID int, domain, key string) (bool, error) {
	changed, err := s.repo.SoftDelete(ctx, userID, domain, key)
	if err != nil {
		return false, err
	}
	if changed {
		s.events.RecordChanged(ctx, RecordOpDelete, domain, key, userID)
	}
	return changed, nil
}

func (s *RecordService) ListByDomain(ctx context.Context, domain string) ([]types.Record, error) {
	return s.repo.ListByDomain(ctx, domain)
}
