package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/tokengraph/transfer-indexer/pkg/graph"
)

// FileStore keeps one step_<depth>.json file per depth under a directory.
// This is the canonical store: its files match the external checkpoint format
// byte for byte and can be inspected or edited by hand.
type FileStore struct {
	dir string
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a file-backed store rooted at dir, creating the
// directory if needed. An empty dir is a configuration error.
func NewFileStore(dir string) (*FileStore, error) {
	if dir == "" {
		return nil, ErrNoDirectory
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create checkpoint directory %s: %w", dir, err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the directory the store writes to.
func (s *FileStore) Dir() string { return s.dir }

func (s *FileStore) path(depth int) string {
	return filepath.Join(s.dir, fmt.Sprintf("step_%d.json", depth))
}

// Exists reports whether a checkpoint file has been written for the depth.
func (s *FileStore) Exists(_ context.Context, depth int) (bool, error) {
	_, err := os.Stat(s.path(depth))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat checkpoint %d: %w", depth, err)
}

// Write persists the checkpoint via a temp file and rename so that a torn
// write never leaves a malformed file at the final path.
func (s *FileStore) Write(_ context.Context, depth int, root *graph.Node, frontier []string) error {
	data, err := json.MarshalIndent(encodeRecord(root, frontier), "", "  ")
	if err != nil {
		return fmt.Errorf("encode checkpoint %d: %w", depth, err)
	}

	tmp, err := os.CreateTemp(s.dir, fmt.Sprintf("step_%d_*.tmp", depth))
	if err != nil {
		return fmt.Errorf("create temp checkpoint %d: %w", depth, err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write checkpoint %d: %w", depth, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close checkpoint %d: %w", depth, err)
	}
	if err := os.Rename(tmpName, s.path(depth)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("commit checkpoint %d: %w", depth, err)
	}
	return nil
}

// Read loads and decodes the checkpoint file for the depth.
func (s *FileStore) Read(_ context.Context, depth int) (*graph.Node, []string, error) {
	data, err := os.ReadFile(s.path(depth))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
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

// Close is a no-op for the file store.
func (s *FileStore) Close() error { return nil }
