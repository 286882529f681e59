package repository

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"fabula/internal/embedding"
	"fabula/internal/logging"
)

func init() {
	// Register the sqlite-vec extension with the mattn/go-sqlite3 driver so
	// every connection can create and query vec0 virtual tables.
	vec.Auto()
}

// Store is the SQLite-backed Repository implementation.
type Store struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	engine embedding.Engine
	vecExt bool
	log    *zap.Logger
}

// NewStore opens (creating if needed) the repository database at path and
// prepares the schema. The embedding engine is required; search quality
// depends on it.
func NewStore(path string, engine embedding.Engine) (*Store, error) {
	if engine == nil {
		return nil, fmt.Errorf("embedding engine is required")
	}

	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.L(logging.CategoryRepository).Debug("failed to set busy_timeout", zap.Error(err))
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.L(logging.CategoryRepository).Debug("failed to set journal_mode", zap.Error(err))
	}

	s := &Store{
		db:     db,
		path:   path,
		engine: engine,
		log:    logging.L(logging.CategoryRepository),
	}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	s.probeVec()
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// VecEnabled reports whether sqlite-vec ANN search is active.
func (s *Store) VecEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.vecExt
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS elements (
			uri TEXT PRIMARY KEY,
			parent_uri TEXT NOT NULL DEFAULT '/',
			aspect TEXT NOT NULL,
			name TEXT NOT NULL,
			props TEXT NOT NULL DEFAULT '{}',
			embedding TEXT,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_elements_parent ON elements(parent_uri)`,
		`CREATE INDEX IF NOT EXISTS idx_elements_aspect ON elements(aspect)`,
		`CREATE TABLE IF NOT EXISTS relations (
			source_uri TEXT NOT NULL,
			target_uri TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			UNIQUE(source_uri, target_uri)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_relations_source ON relations(source_uri)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// probeVec checks whether the sqlite-vec extension loaded and, if so,
// creates the ANN table. Absence is not an error: search falls back to
// in-process cosine ranking over the stored JSON embeddings.
func (s *Store) probeVec() {
	var version string
	if err := s.db.QueryRow("SELECT vec_version()").Scan(&version); err != nil {
		s.log.Warn("sqlite-vec extension unavailable, using cosine fallback", zap.Error(err))
		return
	}

	create := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS vec_elements USING vec0(
			element_id INTEGER PRIMARY KEY,
			embedding float[%d]
		)`, s.engine.Dimensions())
	if _, err := s.db.Exec(create); err != nil {
		s.log.Warn("failed to create vec0 table, using cosine fallback", zap.Error(err))
		return
	}

	s.vecExt = true
	s.log.Info("sqlite-vec enabled", zap.String("version", version), zap.Int("dims", s.engine.Dimensions()))
}
