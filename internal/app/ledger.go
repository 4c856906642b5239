package app

import (
	"context"
	"log"

	"gopherai-docqa/internal/model"
)

const defaultHistoryLimit = 50

// ChatLedger is the append-only record of answered questions. With a
// publisher configured, records are written asynchronously by the worker.
type ChatLedger struct {
	store        ChatRecordStore
	publisher    ChatRecordPublisher
	historyCache HistoryCache
	limit        int
}

func NewChatLedger(store ChatRecordStore, publisher ChatRecordPublisher, historyCache HistoryCache, limit int) *ChatLedger {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	return &ChatLedger{
		store:        store,
		publisher:    publisher,
		historyCache: historyCache,
		limit:        limit,
	}
}

func (l *ChatLedger) Append(ctx context.Context, record model.ChatRecord) error {
	if l.historyCache != nil {
		_ = l.historyCache.MarkDirty(ctx)
		_ = l.historyCache.DeleteHistory(ctx)
	}
	if l.publisher != nil {
		err := l.publisher.Publish(ctx, record)
		if err == nil {
			return nil
		}
		log.Printf("publish chat record failed, writing directly: %v", err)
	}
	return l.store.Create(ctx, &record)
}

// List returns up to limit records, most recent first. A limit of zero uses
// the configured history limit.
func (l *ChatLedger) List(ctx context.Context, limit int) ([]model.ChatRecord, error) {
	if limit <= 0 || limit > l.limit {
		limit = l.limit
	}
	cacheable := l.historyCache != nil && limit == l.limit

	if cacheable {
		dirty, err := l.historyCache.IsDirty(ctx)
		if err == nil && !dirty {
			if cached, hit, cacheErr := l.historyCache.GetHistory(ctx); cacheErr == nil && hit {
				return cached, nil
			}
		}
	}

	records, err := l.store.ListRecent(ctx, limit)
	if err != nil {
		return nil, err
	}
	if cacheable {
		if dirty, dirtyErr := l.historyCache.IsDirty(ctx); dirtyErr == nil && !dirty {
			_ = l.historyCache.SetHistory(ctx, records)
		}
	}
	return records, nil
}
