package app

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"gopherai-docqa/internal/chunker"
	"gopherai-docqa/internal/embedding"
	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/vectorindex"
)

const (
	minReadableChars      = 10
	defaultMaxFileSize    = 50 << 20
	defaultIngestParallel = 4
)

// Extractor returns the text of each page of a document.
type Extractor func(data []byte) ([]string, error)

type UploadFile struct {
	Filename string
	Data     []byte
}

type FailedFile struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

type UploadResult struct {
	Uploaded    int              `json:"uploaded"`
	Failed      int              `json:"failed"`
	Documents   []model.Document `json:"documents"`
	FailedFiles []FailedFile     `json:"failed_files"`
}

type PipelineOptions struct {
	MaxFileSize int64
	Concurrency int
}

// Pipeline ingests uploaded files. Each file runs extract, chunk, embed,
// index, persist and register in order; files never affect each other.
type Pipeline struct {
	chunker  *chunker.Chunker
	extract  Extractor
	embedder *embedding.Gateway
	index    *vectorindex.Index
	chunks   ChunkStore
	registry *DocumentRegistry
	archive  FileArchive
	opts     PipelineOptions

	now   func() time.Time
	newID func() string
}

func NewPipeline(
	ch *chunker.Chunker,
	extract Extractor,
	embedder *embedding.Gateway,
	index *vectorindex.Index,
	chunks ChunkStore,
	registry *DocumentRegistry,
	archive FileArchive,
	opts PipelineOptions,
) *Pipeline {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = defaultMaxFileSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = defaultIngestParallel
	}
	return &Pipeline{
		chunker:  ch,
		extract:  extract,
		embedder: embedder,
		index:    index,
		chunks:   chunks,
		registry: registry,
		archive:  archive,
		opts:     opts,
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// Upload ingests every file independently and reports per-file outcomes in
// input order.
func (p *Pipeline) Upload(ctx context.Context, files []UploadFile) *UploadResult {
	docs := make([]*model.Document, len(files))
	errs := make([]error, len(files))

	var g errgroup.Group
	g.SetLimit(p.opts.Concurrency)
	for i := range files {
		i := i
		g.Go(func() error {
			docs[i], errs[i] = p.IngestFile(ctx, files[i])
			return nil
		})
	}
	_ = g.Wait()

	result := &UploadResult{
		Documents:   []model.Document{},
		FailedFiles: []FailedFile{},
	}
	for i, f := range files {
		if errs[i] != nil {
			log.Printf("ingest %s failed: %v", f.Filename, errs[i])
			result.FailedFiles = append(result.FailedFiles, FailedFile{Filename: f.Filename, Error: errs[i].Error()})
			continue
		}
		result.Documents = append(result.Documents, *docs[i])
	}
	result.Uploaded = len(result.Documents)
	result.Failed = len(result.FailedFiles)
	return result
}

// IngestFile runs the whole pipeline for one file. On failure nothing of
// the file remains in the index, the chunk store or the registry.
func (p *Pipeline) IngestFile(ctx context.Context, f UploadFile) (*model.Document, error) {
	if err := p.validate(f); err != nil {
		return nil, err
	}

	pages, err := p.extract(f.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	if countReadable(pages) < minReadableChars {
		return nil, fmt.Errorf("%w: no readable text found in PDF", ErrExtraction)
	}

	spans := p.chunker.Chunk(pages)
	if len(spans) == 0 {
		return nil, fmt.Errorf("%w: no readable text found in PDF", ErrExtraction)
	}

	texts := make([]string, len(spans))
	for i, s := range spans {
		texts[i] = s.Text
	}
	results := p.embedder.EmbedBatch(ctx, texts)
	for i, r := range results {
		if r.Err != nil {
			return nil, fmt.Errorf("%w: chunk %d of %d: %v", ErrEmbedding, i+1, len(spans), r.Err)
		}
	}

	docID := p.newID()
	now := p.now()
	chunks := make([]model.Chunk, len(spans))
	entries := make([]vectorindex.Entry, len(spans))
	ids := make([]string, len(spans))
	for i, s := range spans {
		ids[i] = model.ChunkID(docID, i)
		chunks[i] = model.Chunk{
			ID:         ids[i],
			DocumentID: docID,
			Ordinal:    i,
			Page:       s.Page,
			EndPage:    s.EndPage,
			Filename:   f.Filename,
			Text:       s.Text,
			Vector:     results[i].Vector,
			CreatedAt:  now,
		}
		entries[i] = vectorindex.Entry{ChunkID: ids[i], DocumentID: docID, Vector: results[i].Vector}
	}

	if err := p.index.InsertBatch(entries); err != nil {
		return nil, fmt.Errorf("index chunks failed: %w", err)
	}
	if err := p.chunks.SaveChunks(ctx, chunks); err != nil {
		p.discard(docID, "")
		return nil, err
	}

	doc := &model.Document{
		ID:         docID,
		Filename:   f.Filename,
		FileSize:   int64(len(f.Data)),
		UploadDate: now,
	}
	doc.SetChunkIDs(ids)

	if p.archive != nil {
		key := archiveKey(docID, f.Filename)
		if err := p.archive.Put(ctx, key, f.Data, "application/pdf"); err != nil {
			p.discard(docID, "")
			return nil, err
		}
		doc.StoragePath = key
	}

	if err := p.registry.Register(ctx, doc); err != nil {
		p.discard(docID, doc.StoragePath)
		return nil, err
	}
	return doc, nil
}

func (p *Pipeline) validate(f UploadFile) error {
	if !strings.EqualFold(filepath.Ext(f.Filename), ".pdf") {
		return fmt.Errorf("%w: only PDF files are supported", ErrValidation)
	}
	if len(f.Data) == 0 {
		return fmt.Errorf("%w: file is empty", ErrValidation)
	}
	if int64(len(f.Data)) > p.opts.MaxFileSize {
		return fmt.Errorf("%w: file exceeds %d MB limit", ErrValidation, p.opts.MaxFileSize>>20)
	}
	return nil
}

// discard undoes partial work of a failed ingestion. It runs on a fresh
// context so a canceled upload still cleans up.
func (p *Pipeline) discard(docID, archivedKey string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	p.index.DeleteByDocument(docID)
	if _, err := p.chunks.DeleteByDocument(ctx, docID); err != nil {
		log.Printf("discard chunks of %s failed: %v", docID, err)
	}
	if archivedKey != "" && p.archive != nil {
		if err := p.archive.Remove(ctx, archivedKey); err != nil {
			log.Printf("discard archived file %s failed: %v", archivedKey, err)
		}
	}
}

func archiveKey(docID, filename string) string {
	return "documents/" + docID + "/" + filepath.Base(filename)
}

func countReadable(pages []string) int {
	n := 0
	for _, p := range pages {
		for _, r := range p {
			if !unicode.IsSpace(r) {
				n++
			}
		}
	}
	return n
}
