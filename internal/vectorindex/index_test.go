package vectorindex

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSearch_EmptyIndex(t *testing.T) {
	x := New()
	hits, err := x.Search([]float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
	assert.NotNil(t, hits)
}

func TestSearch_OrderAndLimit(t *testing.T) {
	x := New()
	require.NoError(t, x.Insert("far", "d1", []float32{0, 1}))
	require.NoError(t, x.Insert("near", "d1", []float32{1, 0.1}))
	require.NoError(t, x.Insert("mid", "d2", []float32{1, 1}))

	hits, err := x.Search([]float32{2, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "near", hits[0].ChunkID)
	assert.Equal(t, "mid", hits[1].ChunkID)
	assert.Equal(t, "d2", hits[1].DocumentID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
	assert.InDelta(t, 0.7071, hits[1].Score, 1e-3)

	all, err := x.Search([]float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestSearch_TiesKeepInsertionOrder(t *testing.T) {
	x := New()
	for i := 0; i < 5; i++ {
		require.NoError(t, x.Insert(fmt.Sprintf("c%d", i), "d", []float32{1, 1}))
	}
	// replacing an entry does not move it
	require.NoError(t, x.Insert("c0", "d", []float32{2, 2}))

	hits, err := x.Search([]float32{1, 1}, 5)
	require.NoError(t, err)
	var ids []string
	for _, h := range hits {
		ids = append(ids, h.ChunkID)
	}
	assert.Equal(t, []string{"c0", "c1", "c2", "c3", "c4"}, ids)
}

func TestInsert_IdempotentOnChunkID(t *testing.T) {
	x := New()
	require.NoError(t, x.Insert("c1", "d1", []float32{1, 0}))
	require.NoError(t, x.Insert("c1", "d1", []float32{1, 0}))
	assert.Equal(t, 1, x.Len())
	assert.Equal(t, 1, x.CountByDocument("d1"))

	require.NoError(t, x.Insert("c1", "d2", []float32{0, 1}))
	assert.Equal(t, 0, x.CountByDocument("d1"))
	assert.Equal(t, 1, x.CountByDocument("d2"))
}

func TestInsert_Rejects(t *testing.T) {
	x := New()
	assert.ErrorIs(t, x.Insert("z", "d", []float32{0, 0}), ErrZeroVector)

	require.NoError(t, x.Insert("a", "d", []float32{1, 0}))
	assert.ErrorIs(t, x.Insert("b", "d", []float32{1, 0, 0}), ErrDimensionMismatch)

	_, err := x.Search([]float32{1, 0, 0}, 1)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestInsertBatch_AllOrNothing(t *testing.T) {
	x := New()
	err := x.InsertBatch([]Entry{
		{ChunkID: "a", DocumentID: "d", Vector: []float32{1, 0}},
		{ChunkID: "b", DocumentID: "d", Vector: []float32{0, 0}},
	})
	require.Error(t, err)
	assert.Equal(t, 0, x.Len())
}

func TestDeleteByDocument(t *testing.T) {
	x := New()
	require.NoError(t, x.InsertBatch([]Entry{
		{ChunkID: "a_0", DocumentID: "a", Vector: []float32{1, 0}},
		{ChunkID: "a_1", DocumentID: "a", Vector: []float32{0.9, 0.1}},
		{ChunkID: "b_0", DocumentID: "b", Vector: []float32{0, 1}},
	}))

	assert.Equal(t, 2, x.DeleteByDocument("a"))
	assert.Equal(t, 0, x.DeleteByDocument("a"))
	assert.Equal(t, 0, x.DeleteByDocument("missing"))
	assert.Equal(t, []string{"b"}, x.Documents())

	hits, err := x.Search([]float32{1, 0}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "b", hits[0].DocumentID)

	// once empty, a new dimension is accepted
	assert.Equal(t, 1, x.DeleteByDocument("b"))
	require.NoError(t, x.Insert("c", "c", []float32{1, 2, 3}))
}

func TestSearch_NonPositiveK(t *testing.T) {
	x := New()
	require.NoError(t, x.Insert("a", "d", []float32{1, 0}))
	hits, err := x.Search([]float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestConcurrentDeleteNeverExposesPartialDocument(t *testing.T) {
	x := New()
	const perDoc = 50
	entries := func(doc string) []Entry {
		out := make([]Entry, perDoc)
		for i := range out {
			out[i] = Entry{ChunkID: fmt.Sprintf("%s_%d", doc, i), DocumentID: doc, Vector: []float32{1, float32(i)}}
		}
		return out
	}
	require.NoError(t, x.InsertBatch(entries("keep")))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			_ = x.InsertBatch(entries("churn"))
			x.DeleteByDocument("churn")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			hits, err := x.Search([]float32{1, 1}, 1000)
			assert.NoError(t, err)
			counts := map[string]int{}
			for _, h := range hits {
				counts[h.DocumentID]++
			}
			assert.Equal(t, perDoc, counts["keep"])
			if n, ok := counts["churn"]; ok {
				assert.Equal(t, perDoc, n)
			}
		}
	}()
	wg.Wait()
}
