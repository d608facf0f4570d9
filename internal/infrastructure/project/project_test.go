package project

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/oncomn/internal/domain"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "db", "projects.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteStore_CRUD(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	now := time.Date(2025, 4, 16, 10, 30, 0, 0, time.UTC)

	project := domain.NewProject("p-1", "Landing page", now)
	require.NoError(t, store.Create(ctx, project))

	got, err := store.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Landing page", got.Name)
	assert.True(t, got.CreatedAt.Equal(now))
	assert.Equal(t, domain.WelcomeCode(), got.Code)
	assert.Empty(t, got.Prompts)

	later := now.Add(time.Minute)
	got.RecordGeneration("a pricing table", domain.ExtractedResult{HTML: "<table></table>", CSS: "table{}"}, later)
	require.NoError(t, store.Update(ctx, got))

	reloaded, err := store.Get(ctx, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "<table></table>", reloaded.Code.HTML)
	assert.True(t, reloaded.LastModified.Equal(later))
	require.Len(t, reloaded.Prompts, 1)
	assert.Equal(t, domain.SenderUser, reloaded.Prompts[0].Sender)
	assert.Equal(t, "a pricing table", reloaded.Prompts[0].Message)

	require.NoError(t, store.Delete(ctx, "p-1"))
	_, err = store.Get(ctx, "p-1")
	assert.True(t, errors.Is(err, domain.ErrProjectNotFound))
}

func TestSQLiteStore_DuplicateCreate(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	project := domain.NewProject("dup", "", time.Now())

	require.NoError(t, store.Create(ctx, project))
	assert.Error(t, store.Create(ctx, project))
}

func TestSQLiteStore_MissingProject(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)

	err := store.Update(ctx, domain.Project{ID: "ghost"})
	assert.True(t, errors.Is(err, domain.ErrProjectNotFound), "update: %v", err)

	err = store.Delete(ctx, "ghost")
	assert.True(t, errors.Is(err, domain.ErrProjectNotFound), "delete: %v", err)

	_, err = store.Get(ctx, "ghost")
	assert.True(t, errors.Is(err, domain.ErrProjectNotFound), "get: %v", err)
}

func TestSQLiteStore_ListOrdersByLastModified(t *testing.T) {
	ctx := context.Background()
	store := newStore(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"old", "newest", "middle"} {
		offsets := []time.Duration{0, 2 * time.Hour, time.Hour}
		project := domain.NewProject(id, id, base)
		project.LastModified = base.Add(offsets[i])
		require.NoError(t, store.Create(ctx, project))
	}

	all, err := store.List(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"newest", "middle", "old"}, ids(all))

	limited, err := store.List(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"newest", "middle"}, ids(limited))
}

func TestSQLiteStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "projects.db")

	first, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Create(ctx, domain.NewProject("keep", "kept", time.Now())))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.Get(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Name)
	assert.Equal(t, path, second.Path())
}

func TestExport(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	result := domain.ExtractedResult{
		HTML: `<button class="btn">Go</button>`,
		CSS:  `.btn { color: red; }`,
		JS:   `document.querySelector(".btn")`,
	}

	written, err := Export(result, `Tom & "Jerry"`, dir)
	require.NoError(t, err)
	assert.Len(t, written, 4)

	index := readFile(t, filepath.Join(dir, IndexFile))
	assert.Contains(t, index, `<title>Tom &amp; &quot;Jerry&quot;</title>`)
	assert.Contains(t, index, `<link rel="stylesheet" href="style.css">`)
	assert.Contains(t, index, `<button class="btn">Go</button>`)
	assert.Contains(t, index, `<script src="script.js"></script>`)

	assert.Equal(t, result.CSS, readFile(t, filepath.Join(dir, StyleFile)))
	assert.Equal(t, result.JS, readFile(t, filepath.Join(dir, ScriptFile)))
	assert.Equal(t, result.PreviewDocument(), readFile(t, filepath.Join(dir, PreviewFile)))
}

func ids(projects []domain.Project) []string {
	out := make([]string, 0, len(projects))
	for _, p := range projects {
		out = append(out, p.ID)
	}
	return out
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(raw)
}
