package retrieval

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartedupay/aicore/internal/log"
	"github.com/smartedupay/aicore/internal/store"
	"github.com/smartedupay/aicore/internal/vecindex"
)

// fakeEmbedder maps known texts to fixed unit vectors.
type fakeEmbedder struct {
	vectors map[string][]float32
}

func (f *fakeEmbedder) EmbedOne(_ context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return []float32{1, 0}, nil
}

func (f *fakeEmbedder) Model(context.Context) (string, error) { return "fake-v1", nil }

func (f *fakeEmbedder) Dimension(context.Context) (int, error) { return 2, nil }

func saveScope(t *testing.T, dir string, embs [][]float32, texts []string, meta []store.ChunkMeta) *store.Store {
	t.Helper()
	ix, err := vecindex.Fit(embs, 8)
	require.NoError(t, err)
	st := store.New(dir, log.NewNop())
	require.NoError(t, st.Save(&store.Snapshot{
		Embeddings: embs,
		Texts:      texts,
		Meta:       meta,
		Index:      ix,
		Manifest: store.Manifest{
			Model: "fake-v1", Dimension: 2, Chunks: len(texts), CreatedAt: time.Now().UTC(),
		},
	}))
	return st
}

func projectScope(t *testing.T, root string) *store.Store {
	return saveScope(t, filepath.Join(root, "project"),
		[][]float32{{1, 0}, {0, 1}},
		[]string{"balance handler", "login handler"},
		[]store.ChunkMeta{
			{Path: "routes/wallet.py", StartLine: 1},
			{Path: "routes/auth.py", StartLine: 71},
		})
}

func userScope(t *testing.T, root string) *store.Store {
	return saveScope(t, filepath.Join(root, "user"),
		[][]float32{{0.9999, 0.01}},
		[]string{"my balance notes"},
		[]store.ChunkMeta{{Path: "notes.md", StartLine: 1}})
}

func TestRetrieveMergesScopesSorted(t *testing.T) {
	root := t.TempDir()
	svc := NewService(&fakeEmbedder{}, log.NewNop(), map[string]*store.Store{
		"project": projectScope(t, root),
		"user":    userScope(t, root),
	})

	results, err := svc.Retrieve(context.Background(), "balance", 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Query vector is (1,0): exact project match first, near user match
	// second, orthogonal chunk last.
	assert.Equal(t, "routes/wallet.py", results[0].Path)
	assert.Equal(t, "notes.md", results[1].Path)
	assert.Equal(t, "routes/auth.py", results[2].Path)
	assert.Less(t, results[0].Distance, results[1].Distance)
	assert.Less(t, results[1].Distance, results[2].Distance)
}

func TestRetrieveTruncatesToK(t *testing.T) {
	root := t.TempDir()
	svc := NewService(&fakeEmbedder{}, log.NewNop(), map[string]*store.Store{
		"project": projectScope(t, root),
		"user":    userScope(t, root),
	})

	results, err := svc.Retrieve(context.Background(), "balance", 2)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestRetrieveEmptyWithoutScopes(t *testing.T) {
	svc := NewService(&fakeEmbedder{}, log.NewNop(), map[string]*store.Store{
		"project": store.New(filepath.Join(t.TempDir(), "missing"), log.NewNop()),
	})

	results, err := svc.Retrieve(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.NotNil(t, results)
	assert.Empty(t, results)
}

func TestRetrieveSkipsUnavailableScope(t *testing.T) {
	root := t.TempDir()
	svc := NewService(&fakeEmbedder{}, log.NewNop(), map[string]*store.Store{
		"project": projectScope(t, root),
		"user":    store.New(filepath.Join(root, "never-built"), log.NewNop()),
	})

	results, err := svc.Retrieve(context.Background(), "balance", 3)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestRetrieveRejectsModelMismatch(t *testing.T) {
	root := t.TempDir()
	st := saveScope(t, filepath.Join(root, "project"),
		[][]float32{{1, 0}}, []string{"chunk"},
		[]store.ChunkMeta{{Path: "a.py", StartLine: 1}})

	// Rewrite the scope under a different model name.
	snap, ok, err := st.Load()
	require.NoError(t, err)
	require.True(t, ok)
	snap.Manifest.Model = "other-model"
	require.NoError(t, st.Save(snap))

	svc := NewService(&fakeEmbedder{}, log.NewNop(), map[string]*store.Store{"project": st})
	results, err := svc.Retrieve(context.Background(), "q", 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFormatContext(t *testing.T) {
	got := FormatContext([]Result{
		{Path: "routes/wallet.py", StartLine: 71, Text: "def balance():\n    pass"},
		{Path: "notes.md", StartLine: 1, Text: "remember fees"},
	})
	want := "[Source: routes/wallet.py:71]\ndef balance():\n    pass\n\n[Source: notes.md:1]\nremember fees"
	assert.Equal(t, want, got)

	assert.Empty(t, FormatContext(nil))
}

func TestClassify(t *testing.T) {
	assert.Equal(t, IntentCode, Classify("Which function handles login?"))
	assert.Equal(t, IntentData, Classify("What columns does the invoice table have?"))
	assert.Equal(t, IntentGeneral, Classify("How do I get started?"))
}
