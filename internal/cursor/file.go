package cursor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// fileStore keeps the last run as a JSON document on disk.
type fileStore struct {
	path string
}

// NewFileStore returns a Store backed by the JSON file at path. The parent
// directory is created if needed.
func NewFileStore(path string) (Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cursor directory: %w", err)
	}
	return &fileStore{path: path}, nil
}

// Load returns the start of the last recorded run.
func (f *fileStore) Load(ctx context.Context) (time.Time, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return time.Time{}, ErrNoCursor
		}
		return time.Time{}, fmt.Errorf("reading sync cursor: %w", err)
	}
	var run Run
	if err := json.Unmarshal(data, &run); err != nil {
		return time.Time{}, fmt.Errorf("parsing sync cursor: %w", err)
	}
	if run.Start.IsZero() {
		return time.Time{}, ErrNoCursor
	}
	return run.Start, nil
}

// Save writes run atomically via a temp file and rename.
func (f *fileStore) Save(ctx context.Context, run Run) (err error) {
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("encoding sync cursor: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), "cursor-*.json.tmp")
	if err != nil {
		return fmt.Errorf("writing sync cursor: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing sync cursor: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("writing sync cursor: %w", err)
	}
	if err = os.Rename(tmpName, f.path); err != nil {
		return fmt.Errorf("writing sync cursor: %w", err)
	}
	return nil
}
