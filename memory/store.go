package memory

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/google/uuid"

	"github.com/becomeliminal/pilot-go-sdk/chunk"
	"github.com/becomeliminal/pilot-go-sdk/core"
	"github.com/becomeliminal/pilot-go-sdk/llm"
)

// Config holds Store tuning.
type Config struct {
	// ChunkSize is the maximum chunk length in runes for stored text.
	// Default: 4000.
	ChunkSize int

	// ChunkOverlap is the rune overlap between adjacent chunks.
	// Default: 200.
	ChunkOverlap int

	// EmbedCharLimit is the longest text the embedder accepts in one call.
	// Longer texts are embedded piecewise and combined. Default: 8000.
	EmbedCharLimit int

	// CacheSize bounds the embedding cache in bytes. Default: 32 MiB.
	CacheSize int64
}

// DefaultConfig returns the defaults used when no config is given.
func DefaultConfig() *Config {
	return &Config{
		ChunkSize:      4000,
		ChunkOverlap:   200,
		EmbedCharLimit: 8000,
		CacheSize:      32 << 20,
	}
}

// Store orchestrates chunking, embedding, persistence, and recall. It is the
// memory facade the agent loop talks to.
type Store struct {
	backend  VectorStore
	embedder Embedder
	cfg      *Config

	// caller, when set, retries embedding calls with backoff.
	caller *llm.Caller

	cache *ristretto.Cache
	seq   atomic.Int64
}

// Option configures a Store.
type Option func(*Store)

// WithCaller routes embedding calls through a retrying caller.
func WithCaller(c *llm.Caller) Option {
	return func(s *Store) { s.caller = c }
}

// NewStore creates a Store over the given backend and embedder.
func NewStore(backend VectorStore, embedder Embedder, cfg *Config, opts ...Option) (*Store, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	def := DefaultConfig()
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = def.ChunkSize
	}
	if cfg.EmbedCharLimit == 0 {
		cfg.EmbedCharLimit = def.EmbedCharLimit
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = def.CacheSize
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     cfg.CacheSize,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	s := &Store{
		backend:  backend,
		embedder: embedder,
		cfg:      cfg,
		cache:    cache,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Add splits text into chunks, embeds each, and persists one record per
// chunk. Chunks share a Source ID so a stored text can be traced back.
// Empty text is a no-op.
func (s *Store) Add(ctx context.Context, text string) error {
	chunks, err := chunk.Split(text, s.cfg.ChunkSize, s.cfg.ChunkOverlap)
	if err != nil {
		return fmt.Errorf("chunk text: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	source := uuid.NewString()
	for i, c := range chunks {
		emb, err := s.EmbedText(ctx, c)
		if err != nil {
			return fmt.Errorf("embed chunk %d/%d: %w", i+1, len(chunks), err)
		}
		rec := Record{
			ID:        uuid.NewString(),
			Text:      c,
			Embedding: emb,
			Source:    source,
			Seq:       s.seq.Add(1),
			CreatedAt: time.Now(),
		}
		if err := s.backend.Store(ctx, rec); err != nil {
			return fmt.Errorf("store chunk %d/%d: %w", i+1, len(chunks), err)
		}
	}
	log.Printf("[MEMORY] Added %d chunk(s), source=%s", len(chunks), source)
	return nil
}

// GetRelevant returns the topK most similar records to the query, highest
// similarity first. Equal similarities order by insertion (Seq ascending).
// topK < 1 is an invalid argument.
func (s *Store) GetRelevant(ctx context.Context, query string, topK int) ([]ScoredRecord, error) {
	if topK < 1 {
		return nil, fmt.Errorf("topK must be >= 1, got %d: %w", topK, core.ErrInvalidArgument)
	}

	emb, err := s.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.backend.Query(ctx, emb, topK)
	if err != nil {
		return nil, fmt.Errorf("query backend: %w", err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].Seq < hits[j].Seq
	})

	log.Printf("[MEMORY] Retrieved %d of topK=%d for query: %q", len(hits), topK, truncateLog(query, 50))
	return hits, nil
}

// Clear drops every record. Called at session start.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.backend.Clear(ctx); err != nil {
		return fmt.Errorf("clear backend: %w", err)
	}
	log.Printf("[MEMORY] Cleared")
	return nil
}

// Stats reports store size and embedding dimensionality.
type Stats struct {
	RecordCount int
	Dimension   int
}

// Stats returns current store statistics.
func (s *Store) Stats() Stats {
	return Stats{
		RecordCount: s.backend.Count(),
		Dimension:   s.embedder.Dimensions(),
	}
}

// EmbedText embeds one text, transparently splitting texts longer than the
// embedder's input limit and combining the piece embeddings into a single
// length-weighted unit vector.
func (s *Store) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if cached, ok := s.cache.Get(text); ok {
		if emb, ok := cached.([]float32); ok {
			return emb, nil
		}
	}

	var emb []float32
	var err error
	if len([]rune(text)) <= s.cfg.EmbedCharLimit {
		emb, err = s.embed(ctx, text)
	} else {
		emb, err = s.embedLong(ctx, text)
	}
	if err != nil {
		return nil, err
	}

	s.cache.Set(text, emb, int64(len(text)))
	return emb, nil
}

func (s *Store) embed(ctx context.Context, text string) ([]float32, error) {
	if s.caller == nil {
		return s.embedder.Embed(ctx, text)
	}
	return llm.Invoke(ctx, s.caller, "embedding", func(ctx context.Context) ([]float32, error) {
		return s.embedder.Embed(ctx, text)
	})
}

func (s *Store) embedLong(ctx context.Context, text string) ([]float32, error) {
	pieces, err := chunk.Split(text, s.cfg.EmbedCharLimit, 0)
	if err != nil {
		return nil, err
	}
	embeddings := make([][]float32, 0, len(pieces))
	weights := make([]int, 0, len(pieces))
	for _, p := range pieces {
		emb, err := s.embed(ctx, p)
		if err != nil {
			return nil, err
		}
		embeddings = append(embeddings, emb)
		weights = append(weights, len([]rune(p)))
	}
	combined := CombineWeighted(embeddings, weights)
	if combined == nil {
		return nil, fmt.Errorf("combine %d piece embeddings: inconsistent dimensions", len(pieces))
	}
	return combined, nil
}

func truncateLog(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
