package app

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/vectorindex"
)

// DocumentRegistry is the authority on which documents exist. It keeps the
// registered set in memory, backed by the document store, and owns cascade
// deletion into the vector index and chunk store.
type DocumentRegistry struct {
	store   DocumentStore
	chunks  ChunkStore
	index   *vectorindex.Index
	archive FileArchive

	mu   sync.RWMutex
	docs map[string]model.Document

	// serializes deletes so a document is torn down once
	deleteMu sync.Mutex

	now func() time.Time
}

func NewDocumentRegistry(store DocumentStore, chunks ChunkStore, index *vectorindex.Index, archive FileArchive) *DocumentRegistry {
	return &DocumentRegistry{
		store:   store,
		chunks:  chunks,
		index:   index,
		archive: archive,
		docs:    make(map[string]model.Document),
		now:     time.Now,
	}
}

// Register persists doc and makes it visible. Callers register only after
// every chunk of the document is indexed and stored.
func (r *DocumentRegistry) Register(ctx context.Context, doc *model.Document) error {
	if doc == nil || doc.ID == "" {
		return fmt.Errorf("%w: document id is required", ErrValidation)
	}
	if err := r.store.Create(ctx, doc); err != nil {
		return err
	}
	r.mu.Lock()
	r.docs[doc.ID] = *doc
	r.mu.Unlock()
	return nil
}

// List returns registered documents, most recent upload first.
func (r *DocumentRegistry) List() []model.Document {
	r.mu.RLock()
	out := make([]model.Document, 0, len(r.docs))
	for _, d := range r.docs {
		out = append(out, d)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UploadDate.Equal(out[j].UploadDate) {
			return out[i].UploadDate.After(out[j].UploadDate)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (r *DocumentRegistry) Get(id string) (model.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	if !ok {
		return model.Document{}, fmt.Errorf("%w: document %s", ErrNotFound, id)
	}
	return doc, nil
}

// IsLive reports whether id names a registered document.
func (r *DocumentRegistry) IsLive(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.docs[id]
	return ok
}

func (r *DocumentRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}

// Delete removes the document's vectors, then its chunks, then the registry
// record. The document stays listed until every dependent is gone, so a
// failed delete can be retried.
func (r *DocumentRegistry) Delete(ctx context.Context, id string) error {
	r.deleteMu.Lock()
	defer r.deleteMu.Unlock()

	doc, err := r.Get(id)
	if err != nil {
		return err
	}

	removed := r.index.DeleteByDocument(id)
	if removed != doc.NumChunks {
		log.Printf("delete document %s: index held %d vectors, expected %d", id, removed, doc.NumChunks)
	}
	if _, err := r.chunks.DeleteByDocument(ctx, id); err != nil {
		return err
	}
	existed, err := r.store.DeleteByID(ctx, id)
	if err != nil {
		return err
	}
	if !existed {
		log.Printf("delete document %s: registry row was already gone", id)
	}

	r.mu.Lock()
	delete(r.docs, id)
	r.mu.Unlock()

	if r.archive != nil && doc.StoragePath != "" {
		if err := r.archive.Remove(ctx, doc.StoragePath); err != nil {
			log.Printf("remove archived file %s failed: %v", doc.StoragePath, err)
		}
	}
	return nil
}

// OpenFile returns the archived bytes of a registered document.
func (r *DocumentRegistry) OpenFile(ctx context.Context, id string) (io.ReadCloser, int64, model.Document, error) {
	doc, err := r.Get(id)
	if err != nil {
		return nil, 0, model.Document{}, err
	}
	if r.archive == nil || doc.StoragePath == "" {
		return nil, 0, model.Document{}, fmt.Errorf("%w: no archived file for document %s", ErrNotFound, id)
	}
	rc, size, err := r.archive.Get(ctx, doc.StoragePath)
	if err != nil {
		return nil, 0, model.Document{}, err
	}
	return rc, size, doc, nil
}

// RecoveryReport summarizes a startup recovery.
type RecoveryReport struct {
	Documents     int
	Chunks        int
	OrphanChunks  int
	OrphanDocIDs  []string
	PurgedDocIDs  []string
	MissingChunks []string
}

// RecoverOptions controls what Recover may delete. Orphan chunks belong to
// no registered document; another process may still be ingesting them, so
// they are only purged when PurgeOrphans is set and their newest chunk is
// older than OrphanGrace.
type RecoverOptions struct {
	PurgeOrphans bool
	OrphanGrace  time.Duration
}

// Recover loads registered documents and rebuilds the vector index from the
// chunk store. Orphan chunks are never indexed.
func (r *DocumentRegistry) Recover(ctx context.Context, opts RecoverOptions) (*RecoveryReport, error) {
	docs, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	live := make(map[string]model.Document, len(docs))
	for _, d := range docs {
		live[d.ID] = d
	}

	report := &RecoveryReport{Documents: len(docs)}
	byDoc := make(map[string][]vectorindex.Entry)
	var order []string
	orphanNewest := make(map[string]time.Time)
	err = r.chunks.ListAll(ctx, func(c model.Chunk) error {
		if _, ok := live[c.DocumentID]; !ok {
			newest, seen := orphanNewest[c.DocumentID]
			if !seen {
				report.OrphanDocIDs = append(report.OrphanDocIDs, c.DocumentID)
			}
			if !seen || c.CreatedAt.After(newest) {
				orphanNewest[c.DocumentID] = c.CreatedAt
			}
			report.OrphanChunks++
			return nil
		}
		if _, ok := byDoc[c.DocumentID]; !ok {
			order = append(order, c.DocumentID)
		}
		byDoc[c.DocumentID] = append(byDoc[c.DocumentID], vectorindex.Entry{
			ChunkID:    c.ID,
			DocumentID: c.DocumentID,
			Vector:     c.Vector,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, id := range order {
		if err := r.index.InsertBatch(byDoc[id]); err != nil {
			return nil, fmt.Errorf("rebuild index for document %s failed: %w", id, err)
		}
		report.Chunks += len(byDoc[id])
	}
	if opts.PurgeOrphans {
		cutoff := r.now().Add(-opts.OrphanGrace)
		for _, id := range report.OrphanDocIDs {
			if orphanNewest[id].After(cutoff) {
				continue
			}
			if _, err := r.chunks.DeleteByDocument(ctx, id); err != nil {
				return nil, err
			}
			report.PurgedDocIDs = append(report.PurgedDocIDs, id)
		}
	}
	for _, d := range docs {
		if d.NumChunks > 0 && len(byDoc[d.ID]) != d.NumChunks {
			report.MissingChunks = append(report.MissingChunks, d.ID)
		}
	}

	r.mu.Lock()
	r.docs = live
	r.mu.Unlock()
	return report, nil
}
