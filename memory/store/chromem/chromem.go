// Package chromem persists memory records in chromem-go, a pure Go embedded
// vector database.
package chromem

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"

	"github.com/becomeliminal/pilot-go-sdk/memory"
)

const collectionName = "memory"

// ChromemStore implements memory.VectorStore on chromem-go. All records live
// in a single session-scoped collection.
type ChromemStore struct {
	db  *chromem.DB
	mu  sync.RWMutex
	col *chromem.Collection
}

// New creates an in-memory chromem store.
func New() (*ChromemStore, error) {
	db := chromem.NewDB()
	col, err := db.CreateCollection(collectionName, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}
	return &ChromemStore{db: db, col: col}, nil
}

// Store saves one record with its embedding.
func (s *ChromemStore) Store(ctx context.Context, rec memory.Record) error {
	s.mu.RLock()
	col := s.col
	s.mu.RUnlock()

	doc := chromem.Document{
		ID:        rec.ID,
		Content:   rec.Text,
		Embedding: rec.Embedding,
		Metadata: map[string]string{
			"source":     rec.Source,
			"seq":        strconv.FormatInt(rec.Seq, 10),
			"created_at": rec.CreatedAt.Format(time.RFC3339Nano),
		},
	}
	if err := col.AddDocument(ctx, doc); err != nil {
		return fmt.Errorf("add document: %w", err)
	}
	return nil
}

// Query returns up to limit records by cosine similarity, highest first.
// chromem requires nResults <= collection size, so the limit steps down
// until the query fits.
func (s *ChromemStore) Query(ctx context.Context, embedding []float32, limit int) ([]memory.ScoredRecord, error) {
	s.mu.RLock()
	col := s.col
	s.mu.RUnlock()

	// chromem rejects nResults > collection size, so clamp before querying.
	// The step-down loop stays as a fallback for concurrent shrinkage.
	if count := col.Count(); limit > count {
		limit = count
	}
	if limit < 1 {
		return nil, nil
	}

	var results []chromem.Result
	for n := limit; n >= 1; n-- {
		var err error
		results, err = col.QueryEmbedding(ctx, embedding, n, nil, nil)
		if err == nil {
			break
		}
		if isInsufficientDocsError(err) {
			if n == 1 {
				log.Printf("[CHROMEM] Collection is empty")
				return nil, nil
			}
			continue
		}
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	records := make([]memory.ScoredRecord, 0, len(results))
	for i, res := range results {
		rec, err := recordFromResult(res)
		if err != nil {
			log.Printf("[CHROMEM] Skipping result #%d: %v", i+1, err)
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// Clear drops the collection and recreates it empty.
func (s *ChromemStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.db.DeleteCollection(collectionName); err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	col, err := s.db.CreateCollection(collectionName, nil, nil)
	if err != nil {
		return fmt.Errorf("recreate collection: %w", err)
	}
	s.col = col
	return nil
}

// Count returns the number of stored records.
func (s *ChromemStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.col.Count()
}

// Close releases resources. chromem keeps everything in memory, nothing to do.
func (s *ChromemStore) Close() error {
	return nil
}

func recordFromResult(res chromem.Result) (memory.ScoredRecord, error) {
	seq, err := strconv.ParseInt(res.Metadata["seq"], 10, 64)
	if err != nil {
		return memory.ScoredRecord{}, fmt.Errorf("parse seq: %w", err)
	}
	createdAt, _ := time.Parse(time.RFC3339Nano, res.Metadata["created_at"])

	return memory.ScoredRecord{
		Record: memory.Record{
			ID:        res.ID,
			Text:      res.Content,
			Embedding: res.Embedding,
			Source:    res.Metadata["source"],
			Seq:       seq,
			CreatedAt: createdAt,
		},
		Similarity: res.Similarity,
	}, nil
}

func isInsufficientDocsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "nResults must be") || strings.Contains(msg, "number of documents")
}
