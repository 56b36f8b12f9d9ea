package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/tokengraph/transfer-indexer/pkg/graph"
)

// LevelDBStore keeps checkpoints in an embedded LevelDB database, one record
// per depth under the key step/<depth>. Useful when a crawl produces many
// depths and per-file overhead matters, or when the checkpoint set should
// travel as a single directory handled by LevelDB.
type LevelDBStore struct {
	db *leveldb.DB
}

var _ Store = (*LevelDBStore)(nil)

// NewLevelDBStore opens (or creates) a LevelDB database at path.
func NewLevelDBStore(path string) (*LevelDBStore, error) {
	if path == "" {
		return nil, ErrNoDirectory
	}
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open leveldb checkpoint store %s: %w", path, err)
	}
	return &LevelDBStore{db: db}, nil
}

func levelDBKey(depth int) []byte {
	return []byte(fmt.Sprintf("step/%d", depth))
}

// Exists reports whether a checkpoint has been written for the depth.
func (s *LevelDBStore) Exists(_ context.Context, depth int) (bool, error) {
	ok, err := s.db.Has(levelDBKey(depth), nil)
	if err != nil {
		return false, fmt.Errorf("check checkpoint %d: %w", depth, err)
	}
	return ok, nil
}

// Write persists the checkpoint record for the depth.
func (s *LevelDBStore) Write(_ context.Context, depth int, root *graph.Node, frontier []string) error {
	data, err := json.Marshal(encodeRecord(root, frontier))
	if err != nil {
		return fmt.Errorf("encode checkpoint %d: %w", depth, err)
	}
	if err := s.db.Put(levelDBKey(depth), data, nil); err != nil {
		return fmt.Errorf("write checkpoint %d: %w", depth, err)
	}
	return nil
}

// Read loads and decodes the checkpoint record for the depth.
func (s *LevelDBStore) Read(_ context.Context, depth int) (*graph.Node, []string, error) {
	data, err := s.db.Get(levelDBKey(depth), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: depth %d", ErrNotFound, depth)
		}
		return nil, nil, fmt.Errorf("read checkpoint %d: %w", depth, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, nil, fmt.Errorf("%w: depth %d: %w", ErrMalformed, depth, err)
	}
	return decodeRecord(rec)
}

// Close closes the underlying database.
func (s *LevelDBStore) Close() error {
	return s.db.Close()
}
