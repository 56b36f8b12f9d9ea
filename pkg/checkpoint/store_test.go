package checkpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tokengraph/transfer-indexer/pkg/graph"
)

// buildTree creates M -> {A, B}.
func buildTree() *graph.Node {
	root := graph.New("M")
	root.Attach(graph.New("A"))
	root.Attach(graph.New("B"))
	return root
}

// runStoreContract exercises the behavior every Store implementation must
// share: existence probing, round-tripping, not-found reporting and
// idempotent overwrites.
func runStoreContract(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	exists, err := store.Exists(ctx, 0)
	require.NoError(t, err)
	assert.False(t, exists)

	_, _, err = store.Read(ctx, 0)
	require.ErrorIs(t, err, ErrNotFound)

	root := buildTree()
	require.NoError(t, store.Write(ctx, 1, root, []string{"A", "B"}))

	exists, err = store.Exists(ctx, 1)
	require.NoError(t, err)
	assert.True(t, exists)

	loaded, frontier, err := store.Read(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "M", loaded.Address)
	require.Len(t, loaded.Children, 2)
	assert.Equal(t, "A", loaded.Children[0].Address)
	assert.Equal(t, "B", loaded.Children[1].Address)
	assert.Equal(t, []string{"A", "B"}, frontier)

	// Idempotent overwrite with unchanged content.
	require.NoError(t, store.Write(ctx, 1, root, []string{"A", "B"}))
	reloaded, refrontier, err := store.Read(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, graph.Serialize(loaded), graph.Serialize(reloaded))
	assert.Equal(t, frontier, refrontier)

	// A nil frontier is persisted as an empty list, not null.
	require.NoError(t, store.Write(ctx, 2, root, nil))
	_, frontier, err = store.Read(ctx, 2)
	require.NoError(t, err)
	assert.NotNil(t, frontier)
	assert.Empty(t, frontier)
}
