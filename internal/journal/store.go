package journal

import (
	"context"

	"github.com/yanun0323/errors"
	"gorm.io/gorm"
)

const insertBatchSize = 100

// Store persists journal batches.
type Store interface {
	SaveFills(ctx context.Context, records []FillRecord) error
	SaveRejections(ctx context.Context, records []RejectionRecord) error
	SaveCloses(ctx context.Context, records []CloseRecord) error
}

// GormStore writes journal tables through gorm.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates or updates the journal tables.
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&FillRecord{}, &RejectionRecord{}, &CloseRecord{}); err != nil {
		return errors.Wrap(err, "migrate journal tables")
	}
	return nil
}

func (s *GormStore) SaveFills(ctx context.Context, records []FillRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(records, insertBatchSize).Error
}

func (s *GormStore) SaveRejections(ctx context.Context, records []RejectionRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(records, insertBatchSize).Error
}

func (s *GormStore) SaveCloses(ctx context.Context, records []CloseRecord) error {
	if len(records) == 0 {
		return nil
	}
	return s.db.WithContext(ctx).CreateInBatches(records, insertBatchSize).Error
}
