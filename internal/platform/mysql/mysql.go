package mysql

import (
	"context"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"gopherai-docqa/internal/platform/gormdb"
)

// New opens MySQL. The DSN must carry parseTime=true for the time columns.
func New(ctx context.Context, dsn string) (*gorm.DB, error) {
	return gormdb.Open(ctx, "mysql", mysql.New(mysql.Config{
		DSN:               dsn,
		DefaultStringSize: 256,
	}))
}
