package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"gopherai-docqa/internal/model"
)

type ChatRecordRepository struct {
	db *gorm.DB
}

func NewChatRecordRepository(db *gorm.DB) *ChatRecordRepository {
	return &ChatRecordRepository{db: db}
}

// Create inserts the record. A record that already exists, as happens when
// the queue redelivers a message, is not an error.
func (r *ChatRecordRepository) Create(ctx context.Context, record *model.ChatRecord) error {
	err := r.db.WithContext(ctx).Create(record).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create chat record failed: %w", err)
	}
	return nil
}

// ListRecent returns up to limit records, newest first.
func (r *ChatRecordRepository) ListRecent(ctx context.Context, limit int) ([]model.ChatRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	var records []model.ChatRecord
	if err := r.db.WithContext(ctx).Order("asked_at DESC").Limit(limit).Find(&records).Error; err != nil {
		return nil, fmt.Errorf("list chat records failed: %w", err)
	}
	return records, nil
}
