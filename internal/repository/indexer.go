package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"fabula/internal/logging"
)

// embedWorkers bounds concurrent embedding calls during indexing.
const embedWorkers = 4

// Indexer loads content manifests into a Store, embedding elements with
// bounded parallelism.
type Indexer struct {
	store *Store
	log   *zap.Logger
}

// NewIndexer creates an indexer over the given store.
func NewIndexer(store *Store) *Indexer {
	return &Indexer{store: store, log: logging.L(logging.CategoryIndex)}
}

// IndexDir loads every aspect file under dir and upserts the result.
func (ix *Indexer) IndexDir(ctx context.Context, dir string) (int, error) {
	manifest, err := LoadContentDir(dir)
	if err != nil {
		return 0, err
	}
	return ix.IndexManifest(ctx, manifest)
}

// IndexFile loads a single aspect file and upserts the result.
func (ix *Indexer) IndexFile(ctx context.Context, path string) (int, error) {
	manifest, err := LoadContentFile(path)
	if err != nil {
		return 0, err
	}
	return ix.IndexManifest(ctx, manifest)
}

// IndexManifest embeds every element of the manifest in parallel, then
// upserts elements, vectors and relations. Returns the element count.
func (ix *Indexer) IndexManifest(ctx context.Context, manifest *Manifest) (int, error) {
	start := time.Now()

	vectors := make([][]float32, len(manifest.Elements))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedWorkers)
	for i, el := range manifest.Elements {
		g.Go(func() error {
			v, err := ix.store.engine.Embed(gctx, EmbedText(el))
			if err != nil {
				return fmt.Errorf("failed to embed %s: %w", el.URI, err)
			}
			vectors[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	if err := ix.store.upsertBatch(ctx, manifest, vectors); err != nil {
		return 0, err
	}

	ix.log.Info("indexed manifest",
		zap.Int("elements", len(manifest.Elements)),
		zap.Int("relations", len(manifest.Relations)),
		zap.Duration("took", time.Since(start)))
	return len(manifest.Elements), nil
}

// upsertBatch writes pre-embedded elements and their relations.
func (s *Store) upsertBatch(ctx context.Context, manifest *Manifest, vectors [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, el := range manifest.Elements {
		props := el.Props
		if props == nil {
			props = map[string]any{}
		}
		propsJSON, err := json.Marshal(props)
		if err != nil {
			return fmt.Errorf("failed to serialize props for %s: %w", el.URI, err)
		}
		embJSON, err := json.Marshal(vectors[i])
		if err != nil {
			return fmt.Errorf("failed to serialize embedding for %s: %w", el.URI, err)
		}

		uri := NormalizeURI(el.URI)
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO elements (uri, parent_uri, aspect, name, props, embedding)
			 VALUES (?, ?, ?, ?, ?, ?)
			 ON CONFLICT(uri) DO UPDATE SET
				aspect = excluded.aspect,
				name = excluded.name,
				props = excluded.props,
				embedding = excluded.embedding,
				updated_at = CURRENT_TIMESTAMP`,
			uri, ParentURI(uri), el.Aspect, el.Name, string(propsJSON), string(embJSON),
		); err != nil {
			return fmt.Errorf("failed to upsert %s: %w", uri, err)
		}
		s.indexVector(ctx, uri, vectors[i])
	}

	for _, rel := range manifest.Relations {
		if _, err := s.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO relations (source_uri, target_uri, description) VALUES (?, ?, ?)`,
			NormalizeURI(rel.SourceURI), NormalizeURI(rel.TargetURI), rel.Description,
		); err != nil {
			return fmt.Errorf("failed to upsert relation %s -> %s: %w", rel.SourceURI, rel.TargetURI, err)
		}
	}
	return nil
}
