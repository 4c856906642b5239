package postgres

import (
	"context"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"gopherai-docqa/internal/platform/gormdb"
)

func New(ctx context.Context, dsn string) (*gorm.DB, error) {
	return gormdb.Open(ctx, "postgres", postgres.Open(dsn))
}
