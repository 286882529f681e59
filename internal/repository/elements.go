package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// CreateElement inserts a new element and indexes it for search.
func (s *Store) CreateElement(ctx context.Context, el Element) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	uri := NormalizeURI(el.URI)
	if uri == "/" {
		return fmt.Errorf("cannot create element at root URI")
	}
	if el.Aspect == "" {
		return fmt.Errorf("element aspect is required")
	}
	name := el.Name
	if name == "" {
		name = ChildID(uri)
	}

	props := el.Props
	if props == nil {
		props = map[string]any{}
	}
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("failed to serialize props: %w", err)
	}

	embJSON, embVec, err := s.embedElement(ctx, Element{URI: uri, Aspect: el.Aspect, Name: name, Props: props})
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO elements (uri, parent_uri, aspect, name, props, embedding) VALUES (?, ?, ?, ?, ?, ?)`,
		uri, ParentURI(uri), el.Aspect, name, string(propsJSON), embJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to insert element %s: %w", uri, err)
	}

	s.indexVector(ctx, uri, embVec)
	s.log.Debug("element created", zap.String("uri", uri), zap.String("aspect", el.Aspect))
	return nil
}

// UpdateProperty sets one property of an existing element and refreshes its
// search index entry.
func (s *Store) UpdateProperty(ctx context.Context, uri, property string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	uri = NormalizeURI(uri)
	if property == "" {
		return fmt.Errorf("property name is required")
	}

	var aspect, name, propsJSON string
	err := s.db.QueryRowContext(ctx,
		`SELECT aspect, name, props FROM elements WHERE uri = ?`, uri,
	).Scan(&aspect, &name, &propsJSON)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", ErrNotFound, uri)
	}
	if err != nil {
		return fmt.Errorf("failed to load element %s: %w", uri, err)
	}

	props := map[string]any{}
	if err := json.Unmarshal([]byte(propsJSON), &props); err != nil {
		return fmt.Errorf("corrupt props for %s: %w", uri, err)
	}
	props[property] = value

	updated, err := json.Marshal(props)
	if err != nil {
		return fmt.Errorf("failed to serialize props: %w", err)
	}

	embJSON, embVec, err := s.embedElement(ctx, Element{URI: uri, Aspect: aspect, Name: name, Props: props})
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE elements SET props = ?, embedding = ?, updated_at = ? WHERE uri = ?`,
		string(updated), embJSON, time.Now().UTC(), uri,
	)
	if err != nil {
		return fmt.Errorf("failed to update element %s: %w", uri, err)
	}

	s.indexVector(ctx, uri, embVec)
	s.log.Debug("property updated", zap.String("uri", uri), zap.String("property", property))
	return nil
}

// FindByURI returns the element at uri with its children and relations
// resolved, or ErrNotFound.
func (s *Store) FindByURI(ctx context.Context, uri string) (*Element, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	uri = NormalizeURI(uri)

	el := &Element{URI: uri}
	if uri == "/" {
		// The root is virtual: it only lists top-level children.
		el.Aspect = "root"
		el.Name = "root"
		el.Props = map[string]any{}
	} else {
		var propsJSON string
		err := s.db.QueryRowContext(ctx,
			`SELECT aspect, name, props, updated_at FROM elements WHERE uri = ?`, uri,
		).Scan(&el.Aspect, &el.Name, &propsJSON, &el.UpdatedAt)
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, uri)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load element %s: %w", uri, err)
		}
		el.Props = map[string]any{}
		if err := json.Unmarshal([]byte(propsJSON), &el.Props); err != nil {
			return nil, fmt.Errorf("corrupt props for %s: %w", uri, err)
		}
	}

	children, err := s.childIDs(ctx, uri)
	if err != nil {
		return nil, err
	}
	el.ChildIDs = children

	relations, err := s.relations(ctx, uri)
	if err != nil {
		return nil, err
	}
	el.Relations = relations
	return el, nil
}

// Relations returns the outgoing relations of uri.
func (s *Store) Relations(ctx context.Context, uri string) ([]Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.relations(ctx, NormalizeURI(uri))
}

// LinkRelation records a relation between two existing elements.
func (s *Store) LinkRelation(ctx context.Context, rel Relation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	source := NormalizeURI(rel.SourceURI)
	target := NormalizeURI(rel.TargetURI)
	for _, uri := range []string{source, target} {
		var one int
		err := s.db.QueryRowContext(ctx, `SELECT 1 FROM elements WHERE uri = ?`, uri).Scan(&one)
		if err == sql.ErrNoRows {
			return fmt.Errorf("%w: %s", ErrNotFound, uri)
		}
		if err != nil {
			return fmt.Errorf("failed to check element %s: %w", uri, err)
		}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO relations (source_uri, target_uri, description) VALUES (?, ?, ?)`,
		source, target, rel.Description,
	)
	if err != nil {
		return fmt.Errorf("failed to link %s -> %s: %w", source, target, err)
	}
	return nil
}

func (s *Store) childIDs(ctx context.Context, uri string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT uri FROM elements WHERE parent_uri = ? ORDER BY uri`, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to list children of %s: %w", uri, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var child string
		if err := rows.Scan(&child); err != nil {
			return nil, err
		}
		ids = append(ids, ChildID(child))
	}
	return ids, rows.Err()
}

func (s *Store) relations(ctx context.Context, uri string) ([]Relation, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source_uri, target_uri, description FROM relations WHERE source_uri = ? ORDER BY target_uri`, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to list relations of %s: %w", uri, err)
	}
	defer rows.Close()

	var rels []Relation
	for rows.Next() {
		var rel Relation
		if err := rows.Scan(&rel.SourceURI, &rel.TargetURI, &rel.Description); err != nil {
			return nil, err
		}
		rels = append(rels, rel)
	}
	return rels, rows.Err()
}
