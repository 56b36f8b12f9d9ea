package crawler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tokengraph/transfer-indexer/internal/solscan"
	"github.com/tokengraph/transfer-indexer/pkg/checkpoint"
	"github.com/tokengraph/transfer-indexer/pkg/graph"
)

// fakeSource serves canned transfer destinations per source address and
// counts calls. Addresses in errs fail their fetch.
type fakeSource struct {
	mu    sync.Mutex
	dests map[string][]string
	errs  map[string]error
	calls int
}

func (f *fakeSource) Transfers(ctx context.Context, address, _ string, _, _ int64) ([]solscan.Transfer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if err := f.errs[address]; err != nil {
		return nil, err
	}
	transfers := make([]solscan.Transfer, 0, len(f.dests[address]))
	for _, to := range f.dests[address] {
		transfers = append(transfers, solscan.Transfer{FromAddress: address, ToAddress: to})
	}
	return transfers, nil
}

func (f *fakeSource) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testToken() Token {
	return Token{Address: "TOK", Minter: "M", MintTime: 1700000000, Name: "Example"}
}

func newTestCrawler(t *testing.T, store checkpoint.Store, source TransferSource, opts Options) *Crawler {
	t.Helper()
	c, err := New(zaptest.NewLogger(t).Sugar(), store, source, testToken(), opts)
	require.NoError(t, err)
	return c
}

func fileStore(t *testing.T) *checkpoint.FileStore {
	t.Helper()
	store, err := checkpoint.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return store
}

func childAddresses(n *graph.Node) []string {
	addrs := make([]string, 0, len(n.Children))
	for _, child := range n.Children {
		addrs = append(addrs, child.Address)
	}
	sort.Strings(addrs)
	return addrs
}

func TestNewValidation(t *testing.T) {
	t.Parallel()
	log := zaptest.NewLogger(t).Sugar()
	store := fileStore(t)
	source := &fakeSource{}

	tests := []struct {
		name    string
		build   func() (*Crawler, error)
		wantErr error
	}{
		{
			name:    "nil logger",
			build:   func() (*Crawler, error) { return New(nil, store, source, testToken(), Options{MaxSteps: 1}) },
			wantErr: ErrInvalidLogger,
		},
		{
			name:    "nil store",
			build:   func() (*Crawler, error) { return New(log, nil, source, testToken(), Options{MaxSteps: 1}) },
			wantErr: ErrInvalidStore,
		},
		{
			name:    "nil source",
			build:   func() (*Crawler, error) { return New(log, store, nil, testToken(), Options{MaxSteps: 1}) },
			wantErr: ErrInvalidSource,
		},
		{
			name:    "zero max steps",
			build:   func() (*Crawler, error) { return New(log, store, source, testToken(), Options{}) },
			wantErr: ErrInvalidMaxSteps,
		},
		{
			name: "empty minter",
			build: func() (*Crawler, error) {
				return New(log, store, source, Token{Address: "TOK"}, Options{MaxSteps: 1})
			},
			wantErr: ErrInvalidMinter,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build()
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestFreshCrawl(t *testing.T) {
	t.Parallel()
	store := fileStore(t)
	source := &fakeSource{dests: map[string][]string{
		"M": {"A", "B"},
		"A": {"C"},
	}}

	c := newTestCrawler(t, store, source, Options{MaxSteps: 4})
	root, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "M", root.Address)
	assert.Equal(t, []string{"A", "B"}, childAddresses(root))
	a := root.Find("A")
	require.NotNil(t, a)
	assert.Equal(t, []string{"C"}, childAddresses(a))
	assert.Empty(t, root.Find("B").Children)
	assert.Equal(t, 4, root.DistinctCount())

	ctx := context.Background()
	for depth := 0; depth <= 3; depth++ {
		exists, err := store.Exists(ctx, depth)
		require.NoError(t, err)
		assert.True(t, exists, "checkpoint %d must exist", depth)
	}
	// Depth 3 found an empty frontier fresh, so depth 4 is never attempted.
	exists, err := store.Exists(ctx, 4)
	require.NoError(t, err)
	assert.False(t, exists)

	// Fetches: depth 1 (M), depth 2 (A, B), depth 3 (C). Depth 4 none.
	assert.Equal(t, 4, source.callCount())
}

func TestStepOneCheckpointScenario(t *testing.T) {
	t.Parallel()
	store := fileStore(t)
	source := &fakeSource{dests: map[string][]string{"M": {"A", "B"}}}

	c := newTestCrawler(t, store, source, Options{MaxSteps: 1})
	_, err := c.Run(context.Background())
	require.NoError(t, err)

	root, frontier, err := store.Read(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, "M", root.Address)
	assert.Equal(t, []string{"A", "B"}, childAddresses(root))
	for _, child := range root.Children {
		assert.Empty(t, child.Children)
	}
	sort.Strings(frontier)
	assert.Equal(t, []string{"A", "B"}, frontier)
}

func TestResumabilityZeroFetches(t *testing.T) {
	t.Parallel()
	store := fileStore(t)
	first := &fakeSource{dests: map[string][]string{
		"M": {"A", "B"},
		"A": {"C"},
	}}

	c := newTestCrawler(t, store, first, Options{MaxSteps: 4})
	firstRoot, err := c.Run(context.Background())
	require.NoError(t, err)

	// Re-run against the populated store: no fetches, identical tree.
	second := &fakeSource{}
	resumed := newTestCrawler(t, store, second, Options{MaxSteps: 4})
	secondRoot, err := resumed.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 0, second.callCount())
	assert.Equal(t, graph.Serialize(firstRoot), graph.Serialize(secondRoot))
}

func TestPartialResumeFetchesOnlyMissingDepths(t *testing.T) {
	t.Parallel()
	store := fileStore(t)
	source := &fakeSource{dests: map[string][]string{
		"M": {"A", "B"},
		"A": {"C"},
	}}

	// First run covers depth 1 only.
	c := newTestCrawler(t, store, source, Options{MaxSteps: 1})
	_, err := c.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, source.callCount())

	// Second run resumes from depth 2: one fetch each for A and B, then C.
	resumed := newTestCrawler(t, store, source, Options{MaxSteps: 3})
	root, err := resumed.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, source.callCount())
	assert.Equal(t, 4, root.DistinctCount())
}

func TestFetchFailureResolvesToLeaf(t *testing.T) {
	t.Parallel()
	store := fileStore(t)
	source := &fakeSource{
		dests: map[string][]string{"M": {"A", "B"}, "B": {"D"}},
		errs:  map[string]error{"A": errors.New("rate limited")},
	}

	c := newTestCrawler(t, store, source, Options{MaxSteps: 2})
	root, err := c.Run(context.Background())
	require.NoError(t, err, "per-node fetch failures must not abort the run")

	assert.Empty(t, root.Find("A").Children)
	assert.Equal(t, []string{"D"}, childAddresses(root.Find("B")))
}

func TestDestinationsDedupedPerSource(t *testing.T) {
	t.Parallel()
	store := fileStore(t)
	source := &fakeSource{dests: map[string][]string{
		"M": {"A", "B", "A", "B", "A"},
	}}

	c := newTestCrawler(t, store, source, Options{MaxSteps: 1})
	root, err := c.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"A", "B"}, childAddresses(root))
}

func TestFrontierCorrectness(t *testing.T) {
	t.Parallel()
	store := fileStore(t)
	source := &fakeSource{dests: map[string][]string{
		"M": {"A", "B"},
		"A": {"X", "Y"},
		"B": {"Y", "Z"},
	}}

	c := newTestCrawler(t, store, source, Options{MaxSteps: 2})
	_, err := c.Run(context.Background())
	require.NoError(t, err)

	_, frontier, err := store.Read(context.Background(), 2)
	require.NoError(t, err)
	sort.Strings(frontier)
	// Dedup is per source node: Y appears under both A and B.
	assert.Equal(t, []string{"X", "Y", "Y", "Z"}, frontier)
}

func TestEarlyStopStillVisitsCheckpointedDepths(t *testing.T) {
	t.Parallel()
	store := fileStore(t)
	ctx := context.Background()

	// Hand-build a checkpoint history where growth stopped at depth 1 but a
	// depth-2 checkpoint exists on disk (left by a prior, diverging run).
	rootOnly := graph.New("M")
	require.NoError(t, store.Write(ctx, 0, rootOnly, []string{"M"}))
	require.NoError(t, store.Write(ctx, 1, rootOnly, []string{}))

	deeper := graph.New("M")
	x := graph.New("X")
	deeper.Attach(x)
	x.Attach(graph.New("A"))
	require.NoError(t, store.Write(ctx, 2, deeper, []string{"A"}))

	source := &fakeSource{dests: map[string][]string{"A": {"B"}}}
	var depths []int
	c := newTestCrawler(t, store, source, Options{
		MaxSteps: 5,
		Observer: func(event StepEvent, _ *graph.Node) {
			depths = append(depths, event.Depth)
		},
	})

	root, err := c.Run(ctx)
	require.NoError(t, err)

	// Depth 1: loaded, empty frontier. Depth 2: loaded anyway since the
	// checkpoint exists, and its frontier revives the crawl. Depth 3: fresh
	// expansion of A reaching B. Depth 4: fresh expansion of B, no transfers.
	// Depth 5: fresh with an empty frontier, the run stops.
	assert.Equal(t, []int{1, 2, 3, 4}, depths)
	assert.Equal(t, 2, source.callCount())
	assert.NotNil(t, root.Find("B"))

	exists, err := store.Exists(ctx, 5)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestResumeDropsFrontierAddressMissingFromTree(t *testing.T) {
	t.Parallel()
	store := fileStore(t)
	ctx := context.Background()

	root := graph.New("M")
	root.Attach(graph.New("A"))
	require.NoError(t, store.Write(ctx, 0, graph.New("M"), []string{"M"}))
	// Frontier names GHOST, which the tree does not contain.
	require.NoError(t, store.Write(ctx, 1, root, []string{"A", "GHOST"}))

	source := &fakeSource{dests: map[string][]string{"A": {"B"}}}
	c := newTestCrawler(t, store, source, Options{MaxSteps: 2})

	got, err := c.Run(ctx)
	require.NoError(t, err)

	// Only A was expanded; GHOST was dropped, not fetched.
	assert.Equal(t, 1, source.callCount())
	assert.NotNil(t, got.Find("B"))
}

func TestResumeExpandsDuplicateFrontierAddressesSeparately(t *testing.T) {
	t.Parallel()
	// Y is reached from both A and B, so the depth-2 frontier holds it twice
	// and the tree holds two structural Y nodes.
	dests := map[string][]string{
		"M": {"A", "B"},
		"A": {"Y"},
		"B": {"Y"},
		"Y": {"Z"},
	}

	uninterrupted := fileStore(t)
	full := newTestCrawler(t, uninterrupted, &fakeSource{dests: dests}, Options{MaxSteps: 3})
	fullRoot, err := full.Run(context.Background())
	require.NoError(t, err)

	// Same crawl, interrupted after depth 2 and resumed for depth 3.
	store := fileStore(t)
	first := newTestCrawler(t, store, &fakeSource{dests: dests}, Options{MaxSteps: 2})
	_, err = first.Run(context.Background())
	require.NoError(t, err)

	_, frontier, err := store.Read(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, []string{"Y", "Y"}, frontier)

	source := &fakeSource{dests: dests}
	resumed := newTestCrawler(t, store, source, Options{MaxSteps: 3})
	resumedRoot, err := resumed.Run(context.Background())
	require.NoError(t, err)

	// Each frontier occurrence must expand its own node: two Y fetches at
	// depth 3, one Z under each structural Y, never both under the first.
	assert.Equal(t, 2, source.callCount())
	assert.Equal(t, graph.Serialize(fullRoot), graph.Serialize(resumedRoot))
	for _, y := range resumedRoot.NodesAtDepth(2) {
		assert.Equal(t, []string{"Z"}, childAddresses(y))
	}
}

func TestMalformedCheckpointIsFatal(t *testing.T) {
	t.Parallel()
	store := fileStore(t)
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, 0, graph.New("M"), []string{"M"}))
	// Plant a depth-1 record the tree decoder rejects: the root node record
	// is missing its address field.
	require.NoError(t, overwriteCheckpoint(store, 1, `{"root":{"children":[]},"frontier":[]}`))

	source := &fakeSource{}
	c := newTestCrawler(t, store, source, Options{MaxSteps: 2})

	_, err := c.Run(ctx)
	require.ErrorIs(t, err, checkpoint.ErrMalformed)
	assert.Equal(t, 0, source.callCount())
}

func TestObserverSeesDistinctCounts(t *testing.T) {
	t.Parallel()
	store := fileStore(t)
	// B and C both send to D: two structural D nodes, one distinct address.
	source := &fakeSource{dests: map[string][]string{
		"M": {"B", "C"},
		"B": {"D"},
		"C": {"D"},
	}}

	var events []StepEvent
	c := newTestCrawler(t, store, source, Options{
		MaxSteps: 2,
		Observer: func(event StepEvent, root *graph.Node) {
			events = append(events, event)
			assert.Equal(t, "M", root.Address)
		},
	})

	_, err := c.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, events, 2)
	assert.Equal(t, 1, events[0].Depth)
	assert.Equal(t, 3, events[0].TotalNodes)
	assert.Equal(t, 2, events[0].FrontierSize)
	assert.False(t, events[0].Resumed)

	assert.Equal(t, 2, events[1].Depth)
	assert.Equal(t, 4, events[1].TotalNodes, "duplicate D must count once")
	assert.Equal(t, 5, events[1].TreeSize, "structurally D appears twice")
	assert.Equal(t, 2, events[1].FrontierSize)
	assert.Equal(t, testToken(), events[1].Token)
}

func TestObserverReportsResumedSteps(t *testing.T) {
	t.Parallel()
	store := fileStore(t)
	source := &fakeSource{dests: map[string][]string{"M": {"A"}}}

	c := newTestCrawler(t, store, source, Options{MaxSteps: 1})
	_, err := c.Run(context.Background())
	require.NoError(t, err)

	var events []StepEvent
	resumed := newTestCrawler(t, store, &fakeSource{}, Options{
		MaxSteps: 1,
		Observer: func(event StepEvent, _ *graph.Node) {
			events = append(events, event)
		},
	})
	_, err = resumed.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, events, 1)
	assert.True(t, events[0].Resumed)
}

func TestConcurrentExpansionMatchesSequential(t *testing.T) {
	t.Parallel()
	dests := map[string][]string{
		"M": {"A", "B", "C", "D"},
		"A": {"E"},
		"B": {"F", "G"},
		"C": {},
		"D": {"H"},
	}

	runWith := func(concurrency int) *graph.Node {
		store := fileStore(t)
		c := newTestCrawler(t, store, &fakeSource{dests: dests}, Options{
			MaxSteps:    3,
			Concurrency: concurrency,
		})
		root, err := c.Run(context.Background())
		require.NoError(t, err)
		return root
	}

	sequential := runWith(1)
	concurrent := runWith(4)

	// Same shape modulo child order, which set-based dedup already leaves
	// unspecified.
	assert.Equal(t, sequential.DistinctCount(), concurrent.DistinctCount())
	assert.Equal(t, sequential.Size(), concurrent.Size())
	assert.Equal(t, childAddresses(sequential), childAddresses(concurrent))
	for _, addr := range []string{"A", "B", "C", "D"} {
		assert.Equal(t,
			childAddresses(sequential.Find(addr)),
			childAddresses(concurrent.Find(addr)),
			"children of %s", addr)
	}
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	t.Parallel()
	store := fileStore(t)
	source := &fakeSource{dests: map[string][]string{"M": {"A"}}}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestCrawler(t, store, source, Options{MaxSteps: 3})
	_, err := c.Run(ctx)
	require.Error(t, err)
}

// overwriteCheckpoint replaces a file-store checkpoint with raw content.
func overwriteCheckpoint(store *checkpoint.FileStore, depth int, data string) error {
	name := filepath.Join(store.Dir(), fmt.Sprintf("step_%d.json", depth))
	return os.WriteFile(name, []byte(data), 0o644)
}
