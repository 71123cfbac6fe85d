package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"chatrelay/internal/model"
)

type FileRepository struct {
	db *gorm.DB
}

func NewFileRepository(db *gorm.DB) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) Create(ctx context.Context, record *model.FileRecord) error {
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("create file record failed: %w", err)
	}
	return nil
}

// ListBySessionID returns the newest uploads first.
func (r *FileRepository) ListBySessionID(ctx context.Context, sessionID string) ([]model.FileRecord, error) {
	records := make([]model.FileRecord, 0)
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("uploaded_at DESC").
		Order("id DESC").
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list file records failed: %w", err)
	}
	return records, nil
}

func (r *FileRepository) GetBySessionAndName(ctx context.Context, sessionID, filename string) (*model.FileRecord, error) {
	var record model.FileRecord
	if err := r.db.WithContext(ctx).
		Where("session_id = ? AND filename = ?", sessionID, filename).
		First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get file record failed: %w", err)
	}
	return &record, nil
}

func (r *FileRepository) ListBySessionAndNames(ctx context.Context, sessionID string, filenames []string) ([]model.FileRecord, error) {
	records := make([]model.FileRecord, 0, len(filenames))
	if len(filenames) == 0 {
		return records, nil
	}
	if err := r.db.WithContext(ctx).
		Where("session_id = ? AND filename IN ?", sessionID, filenames).
		Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list file records by name failed: %w", err)
	}
	return records, nil
}

func (r *FileRepository) DeleteByIDs(ctx context.Context, ids []uint) error {
	if len(ids) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Delete(&model.FileRecord{}, ids).Error; err != nil {
		return fmt.Errorf("delete file records failed: %w", err)
	}
	return nil
}
