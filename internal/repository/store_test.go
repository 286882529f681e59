package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fabula/internal/embedding"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "test.db"), embedding.NewLocalEngine(0))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestCreateAndFindElement(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.CreateElement(ctx, Element{
		URI:    "lore/dragon/",
		Aspect: "lore",
		Name:   "ancient dragon",
		Props:  map[string]any{"temperament": "wrathful"},
	})
	require.NoError(t, err)

	el, err := store.FindByURI(ctx, "/lore/dragon")
	require.NoError(t, err)
	assert.Equal(t, "/lore/dragon", el.URI)
	assert.Equal(t, "lore", el.Aspect)
	assert.Equal(t, "ancient dragon", el.Name)
	assert.Equal(t, "wrathful", el.Props["temperament"])
}

func TestCreateElementValidation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	err := store.CreateElement(ctx, Element{URI: "/", Aspect: "lore"})
	require.Error(t, err)

	err = store.CreateElement(ctx, Element{URI: "/lore/dragon"})
	require.Error(t, err, "aspect is required")

	require.NoError(t, store.CreateElement(ctx, Element{URI: "/lore/dragon", Aspect: "lore"}))
	err = store.CreateElement(ctx, Element{URI: "/lore/dragon", Aspect: "lore"})
	require.Error(t, err, "duplicate URI must be rejected")
}

func TestCreateElementDefaultsNameToChildID(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateElement(ctx, Element{URI: "/npc/innkeeper", Aspect: "npc"}))

	el, err := store.FindByURI(ctx, "/npc/innkeeper")
	require.NoError(t, err)
	assert.Equal(t, "innkeeper", el.Name)
}

func TestFindByURIListsChildren(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateElement(ctx, Element{URI: "/lore", Aspect: "lore"}))
	require.NoError(t, store.CreateElement(ctx, Element{URI: "/lore/dragon", Aspect: "lore"}))
	require.NoError(t, store.CreateElement(ctx, Element{URI: "/lore/castle", Aspect: "lore"}))

	el, err := store.FindByURI(ctx, "/lore")
	require.NoError(t, err)
	assert.Equal(t, []string{"/lore/castle", "/lore/dragon"}, el.ChildIDs)
}

func TestFindByURIVirtualRoot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateElement(ctx, Element{URI: "/lore", Aspect: "lore"}))
	require.NoError(t, store.CreateElement(ctx, Element{URI: "/npc", Aspect: "npc"}))

	root, err := store.FindByURI(ctx, "/")
	require.NoError(t, err)
	assert.Equal(t, "root", root.Aspect)
	assert.Equal(t, []string{"/lore", "/npc"}, root.ChildIDs)
}

func TestFindByURINotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.FindByURI(context.Background(), "/missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestUpdateProperty(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateElement(ctx, Element{
		URI:    "/npc/innkeeper",
		Aspect: "npc",
		Props:  map[string]any{"mood": "cheerful", "location": "tavern"},
	}))

	require.NoError(t, store.UpdateProperty(ctx, "/npc/innkeeper", "mood", "suspicious"))

	el, err := store.FindByURI(ctx, "/npc/innkeeper")
	require.NoError(t, err)
	assert.Equal(t, "suspicious", el.Props["mood"])
	assert.Equal(t, "tavern", el.Props["location"], "other properties survive")

	err = store.UpdateProperty(ctx, "/npc/ghost", "mood", "sad")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLinkRelation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateElement(ctx, Element{URI: "/npc/innkeeper", Aspect: "npc"}))
	require.NoError(t, store.CreateElement(ctx, Element{URI: "/lore/castle", Aspect: "lore"}))

	rel := Relation{SourceURI: "/npc/innkeeper", TargetURI: "/lore/castle", Description: "grew up near"}
	require.NoError(t, store.LinkRelation(ctx, rel))

	got, err := store.Relations(ctx, "/npc/innkeeper")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "/lore/castle", got[0].TargetURI)
	assert.Equal(t, "grew up near", got[0].Description)

	// Relinking the same pair replaces the description.
	rel.Description = "was banished from"
	require.NoError(t, store.LinkRelation(ctx, rel))
	got, err = store.Relations(ctx, "/npc/innkeeper")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "was banished from", got[0].Description)
}

func TestLinkRelationRequiresBothEndpoints(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateElement(ctx, Element{URI: "/npc/innkeeper", Aspect: "npc"}))

	err := store.LinkRelation(ctx, Relation{SourceURI: "/npc/innkeeper", TargetURI: "/lore/void"})
	assert.True(t, errors.Is(err, ErrNotFound))

	err = store.LinkRelation(ctx, Relation{SourceURI: "/lore/void", TargetURI: "/npc/innkeeper"})
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestSearchRanksLexicalOverlap(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateElement(ctx, Element{
		URI: "/lore/dragon", Aspect: "lore", Name: "ancient dragon",
		Props: map[string]any{"note": "the dragon sleeps beneath the mountain"},
	}))
	require.NoError(t, store.CreateElement(ctx, Element{
		URI: "/lore/harvest", Aspect: "lore", Name: "harvest festival",
		Props: map[string]any{"note": "celebrated every autumn"},
	}))
	require.NoError(t, store.CreateElement(ctx, Element{
		URI: "/npc/blacksmith", Aspect: "npc", Name: "village blacksmith",
	}))

	results, err := store.Search(ctx, "ancient dragon beneath the mountain", "", 2)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, "/lore/dragon", results[0].URI)
	assert.LessOrEqual(t, len(results), 2)
}

func TestSearchAspectFilter(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateElement(ctx, Element{
		URI: "/lore/blacksmith", Aspect: "lore", Name: "legend of the blacksmith",
	}))
	require.NoError(t, store.CreateElement(ctx, Element{
		URI: "/npc/blacksmith", Aspect: "npc", Name: "village blacksmith",
	}))

	results, err := store.Search(ctx, "blacksmith", "npc", 5)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	for _, r := range results {
		assert.Equal(t, "/npc/blacksmith", r.URI)
	}
}

func TestNormalizeURI(t *testing.T) {
	cases := map[string]string{
		"":              "/",
		"/":             "/",
		"lore":          "/lore",
		"/lore/":        "/lore",
		"//lore//gate":  "/lore/gate",
		" /lore/gate ":  "/lore/gate",
		"/lore/./gate":  "/lore/gate",
		"/lore/a/../b":  "/lore/b",
		"/lore/gate/x/": "/lore/gate/x",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeURI(in), "input %q", in)
	}

	assert.Equal(t, "/lore", ParentURI("/lore/gate"))
	assert.Equal(t, "/", ParentURI("/lore"))
	assert.Equal(t, "gate", ChildID("/lore/gate"))
}
