package app

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"gopherai-docqa/internal/ai"
	"gopherai-docqa/internal/embedding"
	"gopherai-docqa/internal/model"
	"gopherai-docqa/internal/vectorindex"
)

// NoDocumentsAnswer is returned when nothing relevant is indexed.
const NoDocumentsAnswer = "I don't have any documents to answer from. Please upload documents first."

const (
	defaultTopK         = 5
	defaultSnippetChars = 500
)

type AskResult struct {
	Answer  string           `json:"answer"`
	Sources []model.Citation `json:"sources"`
}

type OrchestratorOptions struct {
	TopK         int
	SnippetChars int
}

// Orchestrator answers questions from the indexed corpus.
type Orchestrator struct {
	embedder  *embedding.Gateway
	index     *vectorindex.Index
	chunks    ChunkStore
	registry  *DocumentRegistry
	generator ai.Generator
	ledger    *ChatLedger
	opts      OrchestratorOptions

	now   func() time.Time
	newID func() string
}

func NewOrchestrator(
	embedder *embedding.Gateway,
	index *vectorindex.Index,
	chunks ChunkStore,
	registry *DocumentRegistry,
	generator ai.Generator,
	ledger *ChatLedger,
	opts OrchestratorOptions,
) *Orchestrator {
	if opts.TopK <= 0 {
		opts.TopK = defaultTopK
	}
	if opts.SnippetChars <= 0 {
		opts.SnippetChars = defaultSnippetChars
	}
	return &Orchestrator{
		embedder:  embedder,
		index:     index,
		chunks:    chunks,
		registry:  registry,
		generator: generator,
		ledger:    ledger,
		opts:      opts,
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// Ask embeds the question, retrieves the top chunks of live documents and
// asks the generator for a grounded answer. Failures are *AskError and
// leave no chat record. An empty corpus is not a failure.
func (o *Orchestrator) Ask(ctx context.Context, question string) (*AskResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, &AskError{State: StateReceived, Err: fmt.Errorf("%w: question is empty", ErrValidation)}
	}

	vec, err := o.embedder.Embed(ctx, question)
	if err != nil {
		return nil, &AskError{State: StateReceived, Err: fmt.Errorf("%w: %v", ErrEmbedding, err)}
	}

	chunks, err := o.retrieve(ctx, vec)
	if err != nil {
		return nil, &AskError{State: StateEmbedded, Err: err}
	}
	if len(chunks) == 0 {
		return &AskResult{Answer: NoDocumentsAnswer, Sources: []model.Citation{}}, nil
	}

	answer, err := o.generator.Generate(ctx, question, BuildContext(chunks))
	if err != nil {
		return nil, &AskError{State: StateRetrieved, Err: fmt.Errorf("%w: %v", ErrGeneration, err)}
	}
	answer = strings.TrimSpace(answer)
	if answer == "" {
		return nil, &AskError{State: StateRetrieved, Err: fmt.Errorf("%w: model returned an empty answer", ErrGeneration)}
	}

	citations := make([]model.Citation, len(chunks))
	for i, c := range chunks {
		citations[i] = model.Citation{
			Filename: c.Filename,
			Page:     c.Page,
			Text:     snippet(c.Text, o.opts.SnippetChars),
		}
	}

	record := model.ChatRecord{
		ID:        o.newID(),
		Question:  question,
		Answer:    answer,
		Sources:   uniqueFilenames(chunks),
		Citations: citations,
		Timestamp: o.now(),
	}
	if o.ledger != nil {
		if err := o.ledger.Append(ctx, record); err != nil {
			log.Printf("append chat record failed: %v", err)
		}
	}

	return &AskResult{Answer: answer, Sources: citations}, nil
}

// retrieve returns up to TopK chunks of registered documents, best first.
// Hits of documents still ingesting or mid-delete are skipped, so the index
// is queried with headroom.
func (o *Orchestrator) retrieve(ctx context.Context, vec []float32) ([]model.Chunk, error) {
	hits, err := o.index.Search(vec, o.opts.TopK*2)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbedding, err)
	}

	ids := make([]string, 0, o.opts.TopK)
	for _, h := range hits {
		if len(ids) == o.opts.TopK {
			break
		}
		if o.registry.IsLive(h.DocumentID) {
			ids = append(ids, h.ChunkID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	byID, err := o.chunks.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make([]model.Chunk, 0, len(ids))
	for _, id := range ids {
		c, ok := byID[id]
		if !ok {
			log.Printf("indexed chunk %s missing from chunk store", id)
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// BuildContext tags each chunk with its source and joins them with blank lines.
func BuildContext(chunks []model.Chunk) string {
	parts := make([]string, len(chunks))
	for i, c := range chunks {
		if c.Page == model.NoPage {
			parts[i] = fmt.Sprintf("[Source: %s]\n%s", c.Filename, c.Text)
			continue
		}
		parts[i] = fmt.Sprintf("[Source: %s, Page: %d]\n%s", c.Filename, c.Page, c.Text)
	}
	return strings.Join(parts, "\n\n")
}

func snippet(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return strings.TrimSpace(string(runes[:limit])) + "..."
}

func uniqueFilenames(chunks []model.Chunk) model.StringList {
	seen := make(map[string]struct{}, len(chunks))
	out := make(model.StringList, 0, len(chunks))
	for _, c := range chunks {
		if _, ok := seen[c.Filename]; ok {
			continue
		}
		seen[c.Filename] = struct{}{}
		out = append(out, c.Filename)
	}
	return out
}
