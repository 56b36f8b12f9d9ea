// Package crawler implements the frontier-based breadth-first traversal that
// discovers a token's transfer graph one depth at a time, checkpointing every
// fully computed depth so an interrupted crawl resumes without repeating
// network calls.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tokengraph/transfer-indexer/internal/solscan"
	"github.com/tokengraph/transfer-indexer/pkg/checkpoint"
	"github.com/tokengraph/transfer-indexer/pkg/graph"
	"github.com/tokengraph/transfer-indexer/pkg/metrics"
)

// DefaultWindow is the half-width of the fetch time window around the token's
// minting time.
const DefaultWindow = 24 * time.Hour

var (
	ErrInvalidLogger   = errors.New("invalid logger: must not be nil")
	ErrInvalidStore    = errors.New("invalid checkpoint store: must not be nil")
	ErrInvalidSource   = errors.New("invalid transfer source: must not be nil")
	ErrInvalidMaxSteps = errors.New("invalid max steps: must be greater than 0")
	ErrInvalidMinter   = errors.New("invalid token context: minter address must not be empty")
)

// TransferSource is the transfer-fetch collaborator: given an account, the
// token and a time window, it returns outgoing transfer records. Errors are
// absorbed by the crawler as "no children"; they never abort a run.
type TransferSource interface {
	Transfers(ctx context.Context, address, tokenAddress string, from, to int64) ([]solscan.Transfer, error)
}

// Options tune a crawl. Zero values fall back to defaults where noted.
type Options struct {
	MaxSteps    int              // Number of BFS depths to advance (required, > 0)
	Concurrency int              // Fetch workers per depth; 0 or 1 keeps strictly sequential fetching
	Window      time.Duration    // Fetch window half-width around MintTime; 0 means DefaultWindow
	Observer    Observer         // Optional per-step callback
	Metrics     *metrics.Metrics // Optional metrics; nil disables
}

// Crawler advances the transfer graph one breadth-first depth at a time. A
// Crawler instance owns its tree and frontier exclusively for the duration of
// a run; Run must not be called concurrently.
type Crawler struct {
	log    *zap.SugaredLogger
	store  checkpoint.Store
	source TransferSource
	token  Token
	opts   Options

	root     *graph.Node
	frontier []*graph.Node
}

// New creates a Crawler for the given token context.
func New(log *zap.SugaredLogger, store checkpoint.Store, source TransferSource, token Token, opts Options) (*Crawler, error) {
	if log == nil {
		return nil, ErrInvalidLogger
	}
	if store == nil {
		return nil, ErrInvalidStore
	}
	if source == nil {
		return nil, ErrInvalidSource
	}
	if opts.MaxSteps <= 0 {
		return nil, ErrInvalidMaxSteps
	}
	if token.Minter == "" {
		return nil, ErrInvalidMinter
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}

	return &Crawler{
		log:    log,
		store:  store,
		source: source,
		token:  token,
		opts:   opts,
	}, nil
}

// Run executes the crawl and returns the final tree. Depths that already have
// a checkpoint are loaded without any network fetch; the first depth without
// one resumes fresh expansion. Store failures are fatal; transfer fetch
// failures are downgraded to zero children.
func (c *Crawler) Run(ctx context.Context) (*graph.Node, error) {
	if err := c.init(ctx); err != nil {
		return nil, err
	}

	for depth := 1; depth <= c.opts.MaxSteps; depth++ {
		exists, err := c.store.Exists(ctx, depth)
		if err != nil {
			return nil, fmt.Errorf("probe checkpoint %d: %w", depth, err)
		}

		var resumed bool
		switch {
		case exists:
			if err := c.loadStep(ctx, depth); err != nil {
				return nil, err
			}
			resumed = true
		case len(c.frontier) == 0:
			// Growth stopped at the previous depth and nothing deeper is
			// checkpointed; the crawl is complete.
			return c.root, nil
		default:
			if err := c.expandStep(ctx, depth); err != nil {
				return nil, err
			}
		}

		c.notify(depth, resumed)
	}

	return c.root, nil
}

// Root returns the tree of the last completed run.
func (c *Crawler) Root() *graph.Node { return c.root }

// init establishes the crawl root: loaded from the depth-0 checkpoint when
// one exists (resumption, possibly of a tree with more than a single node),
// created fresh from the minter address and persisted otherwise.
func (c *Crawler) init(ctx context.Context) error {
	exists, err := c.store.Exists(ctx, 0)
	if err != nil {
		return fmt.Errorf("probe checkpoint 0: %w", err)
	}

	if exists {
		root, addrs, err := c.store.Read(ctx, 0)
		if err != nil {
			return fmt.Errorf("load checkpoint 0: %w", err)
		}
		c.opts.Metrics.IncCheckpointLoad()
		c.root = root
		c.frontier = c.resolveFrontier(addrs, 0)
		c.log.Infow("resumed crawl root from checkpoint",
			"minter", root.Address, "frontier", len(c.frontier))
		return nil
	}

	c.root = graph.New(c.token.Minter)
	c.frontier = []*graph.Node{c.root}
	if err := c.store.Write(ctx, 0, c.root, []string{c.root.Address}); err != nil {
		return fmt.Errorf("write checkpoint 0: %w", err)
	}
	c.opts.Metrics.IncCheckpointWrite()
	c.log.Infow("created crawl root", "minter", c.root.Address)
	return nil
}

// loadStep replaces the working tree with the checkpointed one and resolves
// the checkpointed frontier addresses against it. No network fetch occurs.
func (c *Crawler) loadStep(ctx context.Context, depth int) error {
	root, addrs, err := c.store.Read(ctx, depth)
	if err != nil {
		return fmt.Errorf("load checkpoint %d: %w", depth, err)
	}
	c.opts.Metrics.IncCheckpointLoad()
	c.opts.Metrics.IncStepResumed()

	c.root = root
	c.frontier = c.resolveFrontier(addrs, depth)
	return nil
}

// resolveFrontier maps checkpointed frontier addresses to live nodes of the
// current tree. The frontier at a depth is exactly the set of nodes the tree
// holds at that level, written in attachment order, so resolution claims one
// level node per address occurrence: an address appearing twice (reached from
// two different sources) resolves to two distinct nodes, the same ones an
// uninterrupted run would expand. An address with no level node left to claim
// is dropped with a warning: it signals a checkpoint written by a diverging
// run, and keeping it would mean expanding a node the tree does not contain.
func (c *Crawler) resolveFrontier(addrs []string, depth int) []*graph.Node {
	remaining := make(map[string][]*graph.Node)
	for _, node := range c.root.NodesAtDepth(depth) {
		remaining[node.Address] = append(remaining[node.Address], node)
	}

	nodes := make([]*graph.Node, 0, len(addrs))
	for _, addr := range addrs {
		pool := remaining[addr]
		if len(pool) == 0 {
			c.log.Warnw("frontier address missing from checkpointed tree, dropping",
				"depth", depth, "address", addr)
			continue
		}
		nodes = append(nodes, pool[0])
		remaining[addr] = pool[1:]
	}
	return nodes
}

// expandStep fetches outgoing transfers for every frontier node, attaches one
// child per unique destination, and persists the fully computed depth. The
// fetches fan out across at most Concurrency workers sharing the source's
// rate limiter; results are attached in frontier order afterwards, so the
// persisted tree does not depend on goroutine scheduling.
func (c *Crawler) expandStep(ctx context.Context, depth int) error {
	from := c.token.MintTime - int64(c.opts.Window.Seconds())
	to := c.token.MintTime + int64(c.opts.Window.Seconds())

	destinations := make([][]string, len(c.frontier))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.opts.Concurrency)
	for i, node := range c.frontier {
		g.Go(func() error {
			transfers, err := c.source.Transfers(gctx, node.Address, c.token.Address, from, to)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				// Per-node fetch failures resolve to "no children" for this
				// run; re-running the crawl is the only retry mechanism.
				c.log.Warnw("transfer fetch failed, treating as leaf",
					"depth", depth, "address", node.Address, "error", err)
				c.opts.Metrics.IncFetchFailure()
				return nil
			}
			destinations[i] = uniqueDestinations(transfers)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("expand depth %d: %w", depth, err)
	}

	next := make([]*graph.Node, 0)
	nextAddrs := make([]string, 0)
	for i, node := range c.frontier {
		for _, addr := range destinations[i] {
			child := graph.New(addr)
			node.Attach(child)
			next = append(next, child)
			nextAddrs = append(nextAddrs, addr)
		}
	}

	if err := c.store.Write(ctx, depth, c.root, nextAddrs); err != nil {
		return fmt.Errorf("write checkpoint %d: %w", depth, err)
	}
	c.opts.Metrics.IncCheckpointWrite()
	c.opts.Metrics.IncStepExpanded()

	c.frontier = next
	c.log.Infow("expanded depth",
		"depth", depth, "frontier", len(next), "tree_size", c.root.Size())
	return nil
}

// uniqueDestinations dedups destination addresses of one source node. The
// order of the result is set-iteration-defined and deliberately not part of
// the checkpoint contract.
func uniqueDestinations(transfers []solscan.Transfer) []string {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, t := range transfers {
		if t.ToAddress != "" {
			set.Add(t.ToAddress)
		}
	}
	return set.ToSlice()
}

// notify invokes the observer and updates the crawl state gauges after a
// resolved depth.
func (c *Crawler) notify(depth int, resumed bool) {
	totalNodes := c.root.DistinctCount()
	treeSize := c.root.Size()

	c.opts.Metrics.UpdateCrawlState(depth, totalNodes, treeSize, len(c.frontier))

	if c.opts.Observer == nil {
		return
	}
	c.opts.Observer(StepEvent{
		Depth:        depth,
		TotalNodes:   totalNodes,
		TreeSize:     treeSize,
		FrontierSize: len(c.frontier),
		Resumed:      resumed,
		Token:        c.token,
	}, c.root)
}
