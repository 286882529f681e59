package repository

import (
	"context"
	"encoding/json"
	"fmt"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	"go.uber.org/zap"

	"fabula/internal/embedding"
)

// DefaultSearchLimit bounds result counts when callers pass limit <= 0.
const DefaultSearchLimit = 5

// Search returns URIs ranked by similarity to the query, nearest first.
func (s *Store) Search(ctx context.Context, query, aspect string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	queryVec, err := s.engine.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.vecExt {
		results, err := s.searchVec(ctx, queryVec, aspect, limit)
		if err == nil {
			return results, nil
		}
		s.log.Warn("vec0 search failed, falling back to cosine ranking", zap.Error(err))
	}
	return s.searchCosine(ctx, queryVec, aspect, limit)
}

// searchVec runs a KNN query against the vec0 virtual table. Aspect
// filtering happens after the KNN pass, so the candidate set is widened
// when a filter is present.
func (s *Store) searchVec(ctx context.Context, queryVec []float32, aspect string, limit int) ([]SearchResult, error) {
	serialized, err := vec.SerializeFloat32(queryVec)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize query vector: %w", err)
	}

	k := limit
	if aspect != "" {
		k = limit * 4
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT e.uri, e.aspect, v.distance
		 FROM vec_elements v
		 JOIN elements e ON e.rowid = v.element_id
		 WHERE v.embedding MATCH ? AND k = ?
		 ORDER BY v.distance`,
		serialized, k,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var uri, elAspect string
		var distance float64
		if err := rows.Scan(&uri, &elAspect, &distance); err != nil {
			return nil, err
		}
		if aspect != "" && elAspect != aspect {
			continue
		}
		results = append(results, SearchResult{URI: uri, Distance: distance})
		if len(results) >= limit {
			break
		}
	}
	return results, rows.Err()
}

// searchCosine ranks stored JSON embeddings in process. Works without the
// sqlite-vec extension.
func (s *Store) searchCosine(ctx context.Context, queryVec []float32, aspect string, limit int) ([]SearchResult, error) {
	q := `SELECT uri, embedding FROM elements WHERE embedding IS NOT NULL`
	args := []any{}
	if aspect != "" {
		q += ` AND aspect = ?`
		args = append(args, aspect)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load embeddings: %w", err)
	}
	defer rows.Close()

	var uris []string
	var corpus [][]float32
	for rows.Next() {
		var uri, embJSON string
		if err := rows.Scan(&uri, &embJSON); err != nil {
			return nil, err
		}
		var v []float32
		if err := json.Unmarshal([]byte(embJSON), &v); err != nil {
			s.log.Warn("skipping corrupt embedding", zap.String("uri", uri))
			continue
		}
		uris = append(uris, uri)
		corpus = append(corpus, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	top := embedding.FindTopK(queryVec, corpus, limit)
	results := make([]SearchResult, 0, len(top))
	for _, hit := range top {
		results = append(results, SearchResult{
			URI:      uris[hit.Index],
			Distance: 1 - hit.Similarity,
		})
	}
	return results, nil
}

// embedElement computes the embedding for an element, returning both the
// JSON form stored on the row and the raw vector for the vec0 index.
func (s *Store) embedElement(ctx context.Context, el Element) (string, []float32, error) {
	v, err := s.engine.Embed(ctx, EmbedText(el))
	if err != nil {
		return "", nil, fmt.Errorf("failed to embed %s: %w", el.URI, err)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return "", nil, fmt.Errorf("failed to serialize embedding: %w", err)
	}
	return string(raw), v, nil
}

// indexVector upserts the element's vector into the vec0 table. Failures
// degrade to the cosine fallback and are logged, not returned.
func (s *Store) indexVector(ctx context.Context, uri string, v []float32) {
	if !s.vecExt {
		return
	}

	var rowid int64
	if err := s.db.QueryRowContext(ctx, `SELECT rowid FROM elements WHERE uri = ?`, uri).Scan(&rowid); err != nil {
		s.log.Warn("failed to resolve rowid for vector index", zap.String("uri", uri), zap.Error(err))
		return
	}
	serialized, err := vec.SerializeFloat32(v)
	if err != nil {
		s.log.Warn("failed to serialize vector", zap.String("uri", uri), zap.Error(err))
		return
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO vec_elements (element_id, embedding) VALUES (?, ?)`,
		rowid, serialized,
	); err != nil {
		s.log.Warn("failed to index vector", zap.String("uri", uri), zap.Error(err))
	}
}
