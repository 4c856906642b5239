package app

import (
	"context"
	"io"

	"gopherai-docqa/internal/model"
)

type DocumentStore interface {
	Create(ctx context.Context, doc *model.Document) error
	List(ctx context.Context) ([]model.Document, error)
	DeleteByID(ctx context.Context, id string) (bool, error)
}

type ChunkStore interface {
	SaveChunks(ctx context.Context, chunks []model.Chunk) error
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
	GetByIDs(ctx context.Context, ids []string) (map[string]model.Chunk, error)
	ListAll(ctx context.Context, fn func(model.Chunk) error) error
}

// FileArchive keeps the raw uploaded bytes. It is optional.
type FileArchive interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Remove(ctx context.Context, key string) error
}

type ChatRecordStore interface {
	Create(ctx context.Context, record *model.ChatRecord) error
	ListRecent(ctx context.Context, limit int) ([]model.ChatRecord, error)
}

type ChatRecordPublisher interface {
	Publish(ctx context.Context, record model.ChatRecord) error
}

type HistoryCache interface {
	GetHistory(ctx context.Context) ([]model.ChatRecord, bool, error)
	SetHistory(ctx context.Context, records []model.ChatRecord) error
	DeleteHistory(ctx context.Context) error
	MarkDirty(ctx context.Context) error
	IsDirty(ctx context.Context) (bool, error)
}
