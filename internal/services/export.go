package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/domainkv/apiserver/internal/storage"
	"github.com/google/uuid"
)

// ErrNoSnapshotStorage is returned when export is requested but no
// object-storage backend is configured.
var ErrNoSnapshotStorage = errors.New("snapshot storage not configured")

// ExportService serializes a domain's live records into a JSON snapshot
// and stores it in object storage.
type ExportService struct {
	records RecordRepository
	storage *storage.Storage
}

func NewExportService(records RecordRepository, store *storage.Storage) *ExportService {
	return &ExportService{records: records, storage: store}
}

// ExportResult describes a stored snapshot.
type ExportResult struct {
	ObjectKey string `json:"objectKey"`
	Records   int    `json:"records"`
}

type snapshot struct {
	Domain     string          `json:"domain"`
	ExportedAt time.Time       `json:"exportedAt"`
	Records    []snapshotEntry `json:"records"`
}

type snapshotEntry struct {
	UserID     int       `json:"userId"`
	Key        string    `json:"key"`
	Value      *string   `json:"value"`
	CreatedAt  time.Time `json:"createdAt"`
	ModifiedAt time.Time `json:"modifiedAt"`
}

// ExportDomain snapshots every live record of the domain. The caller
// has already verified the domain exists.
func (s *ExportService) ExportDomain(ctx context.Context, domain string) (ExportResult, error) {
	if s.storage == nil {
		return ExportResult{}, ErrNoSnapshotStorage
	}

	records, err := s.records.ListByDomain(ctx, domain)
	if err != nil {
		return ExportResult{}, fmt.Errorf("collect records: %w", err)
	}

	now := time.Now().UTC()
	doc := snapshot{
		Domain:     domain,
		ExportedAt: now,
		Records:    make([]snapshotEntry, 0, len(records)),
	}
	for _, record := range records {
		doc.Records = append(doc.Records, snapshotEntry{
			UserID:     record.UserID,
			Key:        record.Key,
			Value:      record.Value,
			CreatedAt:  record.CreatedAt,
			ModifiedAt: record.ModifiedAt,
		})
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return ExportResult{}, fmt.Errorf("encode snapshot: %w", err)
	}

	key := fmt.Sprintf("exports/%s/%s-%s.json", domain, now.Format(time.RFC3339), uuid.NewString())
	if err := s.storage.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json"); err != nil {
		return ExportResult{}, fmt.Errorf("store snapshot: %w", err)
	}

	return ExportResult{ObjectKey: key, Records: len(doc.Records)}, nil
}
