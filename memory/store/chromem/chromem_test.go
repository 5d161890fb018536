package chromem_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/pilot-go-sdk/memory"
	chromemstore "github.com/becomeliminal/pilot-go-sdk/memory/store/chromem"
)

func record(id string, seq int64, embedding []float32) memory.Record {
	return memory.Record{
		ID:        id,
		Text:      "record " + id,
		Embedding: embedding,
		Source:    "src-" + id,
		Seq:       seq,
		CreatedAt: time.Now(),
	}
}

func TestQuery_LimitAboveCountIsClamped(t *testing.T) {
	store, err := chromemstore.New()
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, record("a", 1, []float32{1, 0})))
	require.NoError(t, store.Store(ctx, record("b", 2, []float32{0, 1})))

	// Asking for far more than the collection holds must succeed and return
	// everything, not fail per oversized nResults.
	hits, err := store.Query(ctx, []float32{1, 0}, 50)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ID)
	assert.Equal(t, int64(1), hits[0].Seq)
	assert.Equal(t, "src-a", hits[0].Source)
	assert.Greater(t, hits[0].Similarity, hits[1].Similarity)
}

func TestQuery_EmptyCollection(t *testing.T) {
	store, err := chromemstore.New()
	require.NoError(t, err)

	hits, err := store.Query(context.Background(), []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestClear_ResetsCollection(t *testing.T) {
	store, err := chromemstore.New()
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Store(ctx, record("a", 1, []float32{1, 0})))
	require.Equal(t, 1, store.Count())

	require.NoError(t, store.Clear(ctx))
	assert.Equal(t, 0, store.Count())

	// The store stays usable after a clear.
	require.NoError(t, store.Store(ctx, record("b", 2, []float32{0, 1})))
	assert.Equal(t, 1, store.Count())
}
