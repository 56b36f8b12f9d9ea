// Package checkpoint persists depth-indexed snapshots of a crawl so that a
// partially completed run can resume without repeating network calls.
//
// A checkpoint at depth d encodes every node discovered at depths 0..d plus
// the frontier, the set of addresses newly introduced at depth d. Depth 0 is
// the crawl root and its frontier is always the root address alone. A
// checkpoint is written only once fully computed; no partially expanded depth
// is ever persisted.
package checkpoint

import (
	"context"
	"errors"
	"fmt"

	"github.com/tokengraph/transfer-indexer/pkg/graph"
)

var (
	// ErrNotFound indicates that no checkpoint exists for the requested depth.
	ErrNotFound = errors.New("checkpoint not found")

	// ErrMalformed indicates checkpoint data that cannot be decoded into a
	// tree and frontier. A run hitting this on a required read must abort.
	ErrMalformed = errors.New("malformed checkpoint")

	// ErrNoDirectory indicates that no checkpoint directory was configured.
	ErrNoDirectory = errors.New("checkpoint directory not configured")
)

// Record is the wire format of a single checkpoint: the serialized tree as of
// the record's depth plus the addresses newly added at that depth.
type Record struct {
	Root     graph.Record `json:"root"`
	Frontier []string     `json:"frontier"`
}

// Store abstracts checkpoint persistence across different backends. All
// implementations share the Record encoding, so crawls are portable between
// them depth by depth.
type Store interface {
	// Exists reports whether a checkpoint has been written for the depth.
	Exists(ctx context.Context, depth int) (bool, error)

	// Write persists the tree and frontier as the checkpoint for the depth.
	// Re-writing a depth with unchanged content is idempotent.
	Write(ctx context.Context, depth int, root *graph.Node, frontier []string) error

	// Read loads the checkpoint for the depth. It returns ErrNotFound when
	// the depth was never written and ErrMalformed when the stored data
	// cannot be rebuilt into a tree.
	Read(ctx context.Context, depth int) (*graph.Node, []string, error)

	// Close releases any resources held by the store.
	Close() error
}

// decodeRecord rebuilds a tree and frontier from a decoded Record. Shared by
// all Store implementations.
func decodeRecord(rec Record) (*graph.Node, []string, error) {
	root, err := graph.Deserialize(rec.Root)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	frontier := rec.Frontier
	if frontier == nil {
		frontier = []string{}
	}
	return root, frontier, nil
}

// encodeRecord builds the wire Record for a tree and frontier.
func encodeRecord(root *graph.Node, frontier []string) Record {
	if frontier == nil {
		frontier = []string{}
	}
	return Record{
		Root:     graph.Serialize(root),
		Frontier: frontier,
	}
}
