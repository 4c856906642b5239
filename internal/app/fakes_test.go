package app

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strings"
	"sync"

	"gopherai-docqa/internal/ai"
	"gopherai-docqa/internal/chunker"
	"gopherai-docqa/internal/embedding"
	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/vectorindex"
)

type memDocumentStore struct {
	mu        sync.Mutex
	docs      map[string]model.Document
	createErr error
	// onCreate runs before a document is stored, outside the lock
	onCreate  func(doc model.Document)
}

func newMemDocumentStore() *memDocumentStore {
	return &memDocumentStore{docs: make(map[string]model.Document)}
}

func (s *memDocumentStore) Create(_ context.Context, doc *model.Document) error {
	if s.onCreate != nil {
		s.onCreate(*doc)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	s.docs[doc.ID] = *doc
	return nil
}

func (s *memDocumentStore) List(context.Context) ([]model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Document, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, d)
	}
	return out, nil
}

func (s *memDocumentStore) DeleteByID(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.docs[id]
	delete(s.docs, id)
	return ok, nil
}

type memChunkStore struct {
	mu      sync.Mutex
	chunks  []model.Chunk
	saveErr error
}

func (s *memChunkStore) SaveChunks(_ context.Context, chunks []model.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.chunks = append(s.chunks, chunks...)
	return nil
}

func (s *memChunkStore) DeleteByDocument(_ context.Context, documentID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.chunks[:0]
	n := 0
	for _, c := range s.chunks {
		if c.DocumentID == documentID {
			n++
			continue
		}
		kept = append(kept, c)
	}
	s.chunks = kept
	return n, nil
}

func (s *memChunkStore) GetByIDs(_ context.Context, ids []string) (map[string]model.Chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := make(map[string]model.Chunk)
	for _, c := range s.chunks {
		if _, ok := want[c.ID]; ok {
			out[c.ID] = c
		}
	}
	return out, nil
}

func (s *memChunkStore) ListAll(_ context.Context, fn func(model.Chunk) error) error {
	s.mu.Lock()
	snapshot := append([]model.Chunk(nil), s.chunks...)
	s.mu.Unlock()
	for _, c := range snapshot {
		if err := fn(c); err != nil {
			return err
		}
	}
	return nil
}

func (s *memChunkStore) count(documentID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.chunks {
		if c.DocumentID == documentID {
			n++
		}
	}
	return n
}

func (s *memChunkStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

type memArchive struct {
	mu     sync.Mutex
	files  map[string][]byte
	putErr error
}

func newMemArchive() *memArchive { return &memArchive{files: make(map[string][]byte)} }

func (a *memArchive) Put(_ context.Context, key string, data []byte, _ string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.putErr != nil {
		return a.putErr
	}
	a.files[key] = append([]byte(nil), data...)
	return nil
}

func (a *memArchive) Get(_ context.Context, key string) (io.ReadCloser, int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	data, ok := a.files[key]
	if !ok {
		return nil, 0, errors.New("no such key")
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

func (a *memArchive) Remove(_ context.Context, key string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.files, key)
	return nil
}

type memChatStore struct {
	mu      sync.Mutex
	records []model.ChatRecord
}

func (s *memChatStore) Create(_ context.Context, r *model.ChatRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *r)
	return nil
}

func (s *memChatStore) ListRecent(_ context.Context, limit int) ([]model.ChatRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]model.ChatRecord(nil), s.records...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type countingGenerator struct {
	mu     sync.Mutex
	calls  int
	answer string
	err    error
	last   string
}

func (g *countingGenerator) Generate(_ context.Context, question, passages string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.last = passages
	if g.err != nil {
		return "", g.err
	}
	if g.answer != "" {
		return g.answer, nil
	}
	return "answer to " + question, nil
}

type failingEmbedder struct{ err error }

func (f failingEmbedder) EmbedBatch(context.Context, []string) ([][]float32, error) {
	return nil, f.err
}

// strictEmbedder rejects any batch of more than one text and any text
// containing poison, as a provider with per-input validation would.
type strictEmbedder struct {
	inner  embedding.Embedder
	poison string

	mu      sync.Mutex
	batches int
}

func (e *strictEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	e.batches++
	e.mu.Unlock()
	if len(texts) > 1 {
		return nil, errors.New("400 batch rejected")
	}
	if strings.Contains(texts[0], e.poison) {
		return nil, errors.New("400 bad input")
	}
	return e.inner.EmbedBatch(ctx, texts)
}

// textExtractor treats the upload bytes as text with pages split by form feeds.
func textExtractor(data []byte) ([]string, error) {
	if bytes.HasPrefix(data, []byte("%CORRUPT")) {
		return nil, errors.New("malformed xref table")
	}
	return strings.Split(string(data), "\f"), nil
}

type testEnv struct {
	docs     *memDocumentStore
	chunks   *memChunkStore
	archive  *memArchive
	index    *vectorindex.Index
	gateway  *embedding.Gateway
	registry *DocumentRegistry
	pipeline *Pipeline
	chat     *memChatStore
	ledger   *ChatLedger
	gen      *countingGenerator
	orch     *Orchestrator
}

func newTestEnv(embedder embedding.Embedder) *testEnv {
	if embedder == nil {
		embedder = ai.NewHashEmbedder(128)
	}
	env := &testEnv{
		docs:    newMemDocumentStore(),
		chunks:  &memChunkStore{},
		archive: newMemArchive(),
		index:   vectorindex.New(),
		gateway: embedding.NewGateway(embedder, embedding.Config{BatchSize: 4}),
		chat:    &memChatStore{},
		gen:     &countingGenerator{},
	}
	env.registry = NewDocumentRegistry(env.docs, env.chunks, env.index, env.archive)
	env.pipeline = NewPipeline(
		chunker.New(chunker.WithWindowSize(120), chunker.WithOverlapFraction(0.1)),
		textExtractor, env.gateway, env.index, env.chunks, env.registry, env.archive,
		PipelineOptions{MaxFileSize: 1 << 20, Concurrency: 3},
	)
	env.ledger = NewChatLedger(env.chat, nil, nil, 50)
	env.orch = NewOrchestrator(env.gateway, env.index, env.chunks, env.registry, env.gen, env.ledger,
		OrchestratorOptions{TopK: 3, SnippetChars: 40})
	return env
}

func pdf(name, text string) UploadFile {
	return UploadFile{Filename: name, Data: []byte(text)}
}
