// Package vectorindex is an in-memory cosine-similarity index over chunk
// vectors, keyed by chunk id with a back-reference to the owning document.
package vectorindex

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
)

var (
	ErrZeroVector        = errors.New("vectorindex: zero-magnitude vector")
	ErrDimensionMismatch = errors.New("vectorindex: dimension mismatch")
)

// Entry is one vector to insert.
type Entry struct {
	ChunkID    string
	DocumentID string
	Vector     []float32
}

// Hit is one search result. Score is the cosine similarity to the query.
type Hit struct {
	ChunkID    string
	DocumentID string
	Score      float64
}

type entry struct {
	documentID string
	vec        []float32 // unit length
	seq        uint64
}

// Index holds normalized vectors so that search is a dot product. All
// methods are safe for concurrent use; writers hold the lock only while
// publishing prepared entries.
type Index struct {
	mu      sync.RWMutex
	entries map[string]*entry
	byDoc   map[string]map[string]struct{}
	dim     int
	nextSeq uint64
}

func New() *Index {
	return &Index{
		entries: make(map[string]*entry),
		byDoc:   make(map[string]map[string]struct{}),
	}
}

// Insert adds or replaces the entry for chunkID. Replacing keeps the
// original insertion position for tie-breaking.
func (x *Index) Insert(chunkID, documentID string, vector []float32) error {
	return x.InsertBatch([]Entry{{ChunkID: chunkID, DocumentID: documentID, Vector: vector}})
}

// InsertBatch adds all entries or none. Readers never observe a subset.
func (x *Index) InsertBatch(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	prepared := make([][]float32, len(entries))
	dim := len(entries[0].Vector)
	for i, e := range entries {
		if len(e.Vector) != dim {
			return fmt.Errorf("%w: entry %s has %d, want %d", ErrDimensionMismatch, e.ChunkID, len(e.Vector), dim)
		}
		v, err := normalize(e.Vector)
		if err != nil {
			return fmt.Errorf("entry %s: %w", e.ChunkID, err)
		}
		prepared[i] = v
	}

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.dim != 0 && x.dim != dim {
		return fmt.Errorf("%w: got %d, index holds %d", ErrDimensionMismatch, dim, x.dim)
	}
	x.dim = dim
	for i, e := range entries {
		if old, ok := x.entries[e.ChunkID]; ok {
			x.unlinkLocked(e.ChunkID, old.documentID)
			old.documentID = e.DocumentID
			old.vec = prepared[i]
			x.linkLocked(e.ChunkID, e.DocumentID)
			continue
		}
		x.nextSeq++
		x.entries[e.ChunkID] = &entry{documentID: e.DocumentID, vec: prepared[i], seq: x.nextSeq}
		x.linkLocked(e.ChunkID, e.DocumentID)
	}
	return nil
}

// DeleteByDocument removes every entry owned by documentID and returns how
// many were removed. The removal is a single critical section.
func (x *Index) DeleteByDocument(documentID string) int {
	x.mu.Lock()
	defer x.mu.Unlock()
	ids := x.byDoc[documentID]
	for id := range ids {
		delete(x.entries, id)
	}
	delete(x.byDoc, documentID)
	if len(x.entries) == 0 {
		x.dim = 0
	}
	return len(ids)
}

// Search returns at most k hits ordered by descending score, ties broken by
// insertion order. An empty index yields an empty result.
func (x *Index) Search(query []float32, k int) ([]Hit, error) {
	if k <= 0 {
		return []Hit{}, nil
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	if len(x.entries) == 0 {
		return []Hit{}, nil
	}
	if len(query) != x.dim {
		return nil, fmt.Errorf("%w: query has %d, index holds %d", ErrDimensionMismatch, len(query), x.dim)
	}
	q, err := normalize(query)
	if err != nil {
		return []Hit{}, nil
	}

	type scored struct {
		hit Hit
		seq uint64
	}
	all := make([]scored, 0, len(x.entries))
	for id, e := range x.entries {
		all = append(all, scored{
			hit: Hit{ChunkID: id, DocumentID: e.documentID, Score: dot(q, e.vec)},
			seq: e.seq,
		})
	}
	sort.Slice(all, func(a, b int) bool {
		if all[a].hit.Score != all[b].hit.Score {
			return all[a].hit.Score > all[b].hit.Score
		}
		return all[a].seq < all[b].seq
	})
	if k > len(all) {
		k = len(all)
	}
	out := make([]Hit, k)
	for i := 0; i < k; i++ {
		out[i] = all[i].hit
	}
	return out, nil
}

// Len returns the number of entries.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}

// CountByDocument returns the number of entries owned by documentID.
func (x *Index) CountByDocument(documentID string) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.byDoc[documentID])
}

// Documents returns the ids of every document with at least one entry.
func (x *Index) Documents() []string {
	x.mu.RLock()
	defer x.mu.RUnlock()
	out := make([]string, 0, len(x.byDoc))
	for id := range x.byDoc {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (x *Index) linkLocked(chunkID, documentID string) {
	set, ok := x.byDoc[documentID]
	if !ok {
		set = make(map[string]struct{})
		x.byDoc[documentID] = set
	}
	set[chunkID] = struct{}{}
}

func (x *Index) unlinkLocked(chunkID, documentID string) {
	set := x.byDoc[documentID]
	delete(set, chunkID)
	if len(set) == 0 {
		delete(x.byDoc, documentID)
	}
}

func normalize(v []float32) ([]float32, error) {
	mag := math.Sqrt(dot(v, v))
	if mag == 0 || math.IsNaN(mag) || math.IsInf(mag, 0) {
		return nil, ErrZeroVector
	}
	out := make([]float32, len(v))
	for i, f := range v {
		out[i] = float32(float64(f) / mag)
	}
	return out, nil
}

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}
