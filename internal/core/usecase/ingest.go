package usecase

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/kirillkom/filing-qa/internal/core/domain"
	"github.com/kirillkom/filing-qa/internal/core/ports"
)

// maxFilingBytes bounds a single filing payload.
const maxFilingBytes = 64 << 20

type IngestFilingUseCase struct {
	repo    ports.FilingRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

func NewIngestFilingUseCase(
	repo ports.FilingRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *IngestFilingUseCase {
	return &IngestFilingUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
	}
}

func (uc *IngestFilingUseCase) Register(ctx context.Context, payload io.Reader) (*domain.FilingRecord, error) {
	filing, err := decodeFiling(payload)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(filing)
	if err != nil {
		return nil, fmt.Errorf("encode filing: %w", err)
	}
	key := filing.Key()
	if err := uc.storage.Save(ctx, key.StorageKey(), bytes.NewReader(body)); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	now := time.Now().UTC()
	rec := &domain.FilingRecord{
		FilingKey:    key,
		StoragePath:  key.StorageKey(),
		Status:       domain.FilingIngested,
		SectionCount: len(filing.Sections),
		TableCount:   len(filing.Tables),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if existing, err := uc.repo.GetByKey(ctx, key); err == nil {
		rec.CreatedAt = existing.CreatedAt
		rec.WorkbookPath = existing.WorkbookPath
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("fetch filing record: %w", err)
	}

	if err := uc.repo.Upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("upsert filing record: %w", err)
	}

	if err := uc.queue.PublishFilingIngested(ctx, key); err != nil {
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}

	return rec, nil
}

// AttachWorkbook stores a spreadsheet exhibit for an already registered filing.
func (uc *IngestFilingUseCase) AttachWorkbook(ctx context.Context, key domain.FilingKey, workbook io.Reader) (*domain.FilingRecord, error) {
	key.Ticker = strings.ToUpper(strings.TrimSpace(key.Ticker))
	rec, err := uc.repo.GetByKey(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("fetch filing record: %w", err)
	}

	path := WorkbookStorageKey(key)
	if err := uc.storage.Save(ctx, path, workbook); err != nil {
		return nil, fmt.Errorf("save workbook: %w", err)
	}

	rec.WorkbookPath = path
	rec.Status = domain.FilingIngested
	rec.Error = ""
	rec.UpdatedAt = time.Now().UTC()
	if err := uc.repo.Upsert(ctx, rec); err != nil {
		return nil, fmt.Errorf("upsert filing record: %w", err)
	}
	if err := uc.queue.PublishFilingIngested(ctx, key); err != nil {
		return nil, fmt.Errorf("publish ingestion event: %w", err)
	}
	return rec, nil
}

func WorkbookStorageKey(key domain.FilingKey) string {
	return strings.TrimSuffix(key.StorageKey(), ".json") + ".xlsx"
}

func decodeFiling(payload io.Reader) (domain.Filing, error) {
	var filing domain.Filing
	dec := json.NewDecoder(io.LimitReader(payload, maxFilingBytes))
	if err := dec.Decode(&filing); err != nil {
		return domain.Filing{}, domain.WrapError(domain.ErrInvalidInput, "decode filing", err)
	}
	if err := filing.Validate(); err != nil {
		return domain.Filing{}, err
	}
	filing.Ticker = strings.ToUpper(strings.TrimSpace(filing.Ticker))
	return filing, nil
}
