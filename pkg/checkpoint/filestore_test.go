package checkpoint

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokengraph/transfer-indexer/pkg/graph"
)

func TestFileStoreContract(t *testing.T) {
	t.Parallel()
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	runStoreContract(t, store)
}

func TestNewFileStoreRequiresDirectory(t *testing.T) {
	t.Parallel()
	_, err := NewFileStore("")
	require.ErrorIs(t, err, ErrNoDirectory)
}

func TestNewFileStoreCreatesDirectory(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "nested", "checkpoints")
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	assert.Equal(t, dir, store.Dir())
	assert.DirExists(t, dir)
}

func TestFileStoreWireFormat(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	root := buildTree()
	require.NoError(t, store.Write(context.Background(), 1, root, []string{"A", "B"}))

	data, err := os.ReadFile(filepath.Join(dir, "step_1.json"))
	require.NoError(t, err)

	// The depth-1 record of the M -> {A, B} expansion, exactly as external
	// consumers see it. Child and frontier order are not contractual, so
	// compare as sets.
	var rec struct {
		Root struct {
			Address  string `json:"address"`
			Children []struct {
				Address  string            `json:"address"`
				Children []json.RawMessage `json:"children"`
			} `json:"children"`
		} `json:"root"`
		Frontier []string `json:"frontier"`
	}
	require.NoError(t, json.Unmarshal(data, &rec))

	assert.Equal(t, "M", rec.Root.Address)
	childAddrs := make([]string, 0, len(rec.Root.Children))
	for _, child := range rec.Root.Children {
		childAddrs = append(childAddrs, child.Address)
		assert.Empty(t, child.Children)
	}
	sort.Strings(childAddrs)
	assert.Equal(t, []string{"A", "B"}, childAddrs)

	frontier := append([]string(nil), rec.Frontier...)
	sort.Strings(frontier)
	assert.Equal(t, []string{"A", "B"}, frontier)
}

func TestFileStoreReadMalformed(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data string
	}{
		{name: "not json", data: "not json at all"},
		{name: "missing root address", data: `{"root":{"children":[]},"frontier":[]}`},
		{name: "missing root children", data: `{"root":{"address":"M"},"frontier":[]}`},
		{name: "wrong root type", data: `{"root":[],"frontier":[]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			store, err := NewFileStore(dir)
			require.NoError(t, err)

			path := filepath.Join(dir, "step_3.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.data), 0o644))

			_, _, err = store.Read(context.Background(), 3)
			require.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestFileStoreIdempotentWriteBytes(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	root := buildTree()
	require.NoError(t, store.Write(context.Background(), 1, root, []string{"A", "B"}))
	first, err := os.ReadFile(filepath.Join(dir, "step_1.json"))
	require.NoError(t, err)

	require.NoError(t, store.Write(context.Background(), 1, root, []string{"A", "B"}))
	second, err := os.ReadFile(filepath.Join(dir, "step_1.json"))
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, store.Write(context.Background(), 0, graph.New("M"), []string{"M"}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "step_0.json", entries[0].Name())
}
