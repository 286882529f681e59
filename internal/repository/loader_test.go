package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const loreAspectYAML = `aspect: lore
elements:
  - id: dragon
    name: ancient dragon
    props:
      temperament: wrathful
    children:
      - id: hoard
        props:
          contents: gold and bones
    relations:
      - target: /npc/innkeeper
        description: terrorizes
`

const npcAspectYAML = `aspect: npc
elements:
  - id: innkeeper
    name: village innkeeper
`

func writeContentDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	return dir
}

func TestLoadContentDirFlattensHierarchy(t *testing.T) {
	dir := writeContentDir(t, map[string]string{
		"lore.yaml": loreAspectYAML,
		"npc.yaml":  npcAspectYAML,
	})

	manifest, err := LoadContentDir(dir)
	require.NoError(t, err)

	var uris []string
	for _, el := range manifest.Elements {
		uris = append(uris, el.URI)
	}
	assert.Equal(t, []string{"/lore", "/lore/dragon", "/lore/dragon/hoard", "/npc", "/npc/innkeeper"}, uris)

	byURI := map[string]Element{}
	for _, el := range manifest.Elements {
		byURI[el.URI] = el
	}
	assert.Equal(t, "ancient dragon", byURI["/lore/dragon"].Name)
	assert.Equal(t, "wrathful", byURI["/lore/dragon"].Props["temperament"])
	assert.Equal(t, "hoard", byURI["/lore/dragon/hoard"].Name, "name defaults to id")
	assert.Equal(t, "lore", byURI["/lore/dragon/hoard"].Aspect)

	require.Len(t, manifest.Relations, 1)
	assert.Equal(t, "/lore/dragon", manifest.Relations[0].SourceURI)
	assert.Equal(t, "/npc/innkeeper", manifest.Relations[0].TargetURI)
	assert.Equal(t, "terrorizes", manifest.Relations[0].Description)
}

func TestLoadContentDirSkipsNonYAML(t *testing.T) {
	dir := writeContentDir(t, map[string]string{
		"npc.yml":    npcAspectYAML,
		"README.txt": "not content",
	})

	manifest, err := LoadContentDir(dir)
	require.NoError(t, err)
	assert.Len(t, manifest.Elements, 2)
}

func TestLoadContentFileRejectsMissingAspect(t *testing.T) {
	dir := writeContentDir(t, map[string]string{
		"broken.yaml": "elements:\n  - id: orphan\n",
	})

	_, err := LoadContentFile(filepath.Join(dir, "broken.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing aspect")
}

func TestLoadContentFileRejectsMissingID(t *testing.T) {
	dir := writeContentDir(t, map[string]string{
		"broken.yaml": "aspect: lore\nelements:\n  - name: nameless\n",
	})

	_, err := LoadContentFile(filepath.Join(dir, "broken.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing an id")
}

func TestIndexDirUpserts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	dir := writeContentDir(t, map[string]string{
		"lore.yaml": loreAspectYAML,
		"npc.yaml":  npcAspectYAML,
	})

	indexer := NewIndexer(store)
	count, err := indexer.IndexDir(ctx, dir)
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	el, err := store.FindByURI(ctx, "/lore/dragon")
	require.NoError(t, err)
	assert.Equal(t, "ancient dragon", el.Name)
	assert.Equal(t, []string{"/lore/dragon/hoard"}, el.ChildIDs)
	require.Len(t, el.Relations, 1)
	assert.Equal(t, "/npc/innkeeper", el.Relations[0].TargetURI)

	// Re-indexing an edited file updates in place instead of duplicating.
	edited := "aspect: lore\nelements:\n  - id: dragon\n    name: elder dragon\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lore.yaml"), []byte(edited), 0o644))

	count, err = indexer.IndexFile(ctx, filepath.Join(dir, "lore.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	el, err = store.FindByURI(ctx, "/lore/dragon")
	require.NoError(t, err)
	assert.Equal(t, "elder dragon", el.Name)
}

func TestContentWatcherReindexesOnWrite(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	dir := writeContentDir(t, map[string]string{"npc.yaml": npcAspectYAML})

	indexer := NewIndexer(store)
	_, err := indexer.IndexDir(ctx, dir)
	require.NoError(t, err)

	watcher, err := NewContentWatcher(dir, indexer)
	require.NoError(t, err)
	require.NoError(t, watcher.Start(ctx))
	defer watcher.Stop()

	edited := "aspect: npc\nelements:\n  - id: innkeeper\n    name: retired innkeeper\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "npc.yaml"), []byte(edited), 0o644))

	require.Eventually(t, func() bool {
		el, err := store.FindByURI(ctx, "/npc/innkeeper")
		return err == nil && el.Name == "retired innkeeper"
	}, 5*time.Second, 50*time.Millisecond)
}
