// Package memory implements the long-term store: text is chunked, embedded,
// persisted in a vector backend, and recalled by cosine similarity.
package memory

import (
	"context"
	"math"
	"time"
)

// Record is one stored memory chunk.
type Record struct {
	// ID is unique per record. Chunks split from one Add call share Source.
	ID        string
	Text      string
	Embedding []float32

	// Source groups the chunks of a single Add call.
	Source string

	// Seq is the global insertion counter. Ties on similarity resolve in
	// Seq order so recall is deterministic.
	Seq       int64
	CreatedAt time.Time
}

// ScoredRecord is a query hit with its cosine similarity.
type ScoredRecord struct {
	Record
	Similarity float32
}

// Embedder converts text to embedding vectors.
// Implementations: mock (testing), ollama (local models), onnx (in-process).
type Embedder interface {
	// Embed converts a single text to an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the embedding vector size.
	Dimensions() int
}

// VectorStore is the persistence backend. Implementations must return query
// hits sorted by similarity, highest first.
type VectorStore interface {
	Store(ctx context.Context, rec Record) error
	Query(ctx context.Context, embedding []float32, limit int) ([]ScoredRecord, error)

	// Clear drops every record. Called at session start so recall never
	// crosses session boundaries.
	Clear(ctx context.Context) error

	Count() int
	Close() error
}

// CosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths and zero vectors score 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(na) * math.Sqrt(nb)))
}

// Normalize scales vec to unit length in place and returns it. Zero vectors
// pass through unchanged.
func Normalize(vec []float32) []float32 {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	inv := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= inv
	}
	return vec
}

// CombineWeighted merges per-chunk embeddings into one vector: a weighted
// average by chunk length, normalized to unit length. Used when a text
// exceeds the embedder's input limit and must be embedded piecewise.
func CombineWeighted(embeddings [][]float32, weights []int) []float32 {
	if len(embeddings) == 0 || len(embeddings) != len(weights) {
		return nil
	}
	dims := len(embeddings[0])
	sum := make([]float32, dims)
	var total float64
	for i, emb := range embeddings {
		if len(emb) != dims {
			return nil
		}
		w := float32(weights[i])
		total += float64(weights[i])
		for j, v := range emb {
			sum[j] += v * w
		}
	}
	if total == 0 {
		return nil
	}
	inv := float32(1 / total)
	for j := range sum {
		sum[j] *= inv
	}
	return Normalize(sum)
}
