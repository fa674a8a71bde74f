package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cam3ron2/devboard/internal/report"
)

// SnapshotStore persists report snapshots keyed by cache key. Freshness is
// decided by the manager from the generatedAt field embedded in the document,
// never from storage metadata.
type SnapshotStore interface {
	Load(ctx context.Context, key Key) (*report.AggregatedReport, bool, error)
	Save(ctx context.Context, key Key, rep *report.AggregatedReport) error
	Clear(ctx context.Context) (int, error)
}

// FileStore writes one JSON snapshot per key under a period directory with an
// ISO date-stamped filename.
type FileStore struct {
	dir string
}

// NewFileStore creates a file-backed snapshot store rooted at dir.
func NewFileStore(dir string) (*FileStore, error) {
	trimmed := strings.TrimSpace(dir)
	if trimmed == "" {
		return nil, fmt.Errorf("snapshot directory is required")
	}
	if err := os.MkdirAll(trimmed, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}
	return &FileStore{dir: trimmed}, nil
}

// Load reads one snapshot. A missing file is not an error.
func (s *FileStore) Load(_ context.Context, key Key) (*report.AggregatedReport, bool, error) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read snapshot: %w", err)
	}

	var rep report.AggregatedReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, false, fmt.Errorf("decode snapshot: %w", err)
	}
	return &rep, true, nil
}

// Save writes one snapshot atomically via a temp file rename.
func (s *FileStore) Save(_ context.Context, key Key, rep *report.AggregatedReport) error {
	path := s.path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create period directory: %w", err)
	}

	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return fmt.Errorf("create snapshot temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close snapshot temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

// Clear deletes every persisted snapshot and reports how many were removed.
func (s *FileStore) Clear(_ context.Context) (int, error) {
	removed := 0
	err := filepath.WalkDir(s.dir, func(path string, entry os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			return nil
		}
		if err := os.Remove(path); err != nil {
			return err
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, fmt.Errorf("clear snapshots: %w", err)
	}
	return removed, nil
}

func (s *FileStore) path(key Key) string {
	name := key.Date
	if key.Scope == ScopeSingle {
		name += "_" + strings.ReplaceAll(key.Repo, "/", "_")
	}
	return filepath.Join(s.dir, string(key.Period), name+".json")
}
