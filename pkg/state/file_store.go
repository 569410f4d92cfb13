package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// FileStore keeps one JSON document per plugin under a root directory, at
// `<dir>/plugins/<id>.json`. Writes go to a temp file that is renamed over the
// target.
type FileStore struct {
	dir    string
	logger *zap.Logger
	mu     sync.Mutex
	now    func() time.Time
}

type fileEnvelope struct {
	Meta    Meta            `json:"meta"`
	Storage json.RawMessage `json:"storage"`
}

// NewFileStore creates dir when missing. A nil logger discards output.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if dir == "" {
		return nil, fmt.Errorf("state: file store directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("state: creating store directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{
		dir:    dir,
		logger: logger.With(zap.String("component", "state"), zap.String("store", "file")),
		now:    time.Now,
	}, nil
}

func (s *FileStore) Load(_ context.Context, ref Ref) (map[string]any, Meta, bool, error) {
	path, err := s.path(ref)
	if err != nil {
		return nil, Meta{}, false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	envelope, ok, err := s.read(path)
	if err != nil || !ok {
		return nil, Meta{}, false, err
	}
	storage, err := decodeStorage(envelope.Storage)
	if err != nil {
		return nil, Meta{}, false, fmt.Errorf("%w (%s)", err, path)
	}
	return storage, envelope.Meta, true, nil
}

func (s *FileStore) Save(_ context.Context, ref Ref, storage map[string]any, meta Meta) (Meta, error) {
	path, err := s.path(ref)
	if err != nil {
		return Meta{}, err
	}
	payload, etag, err := encodeStorage(storage)
	if err != nil {
		return Meta{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok, err := s.read(path)
	if err != nil {
		return Meta{}, err
	}
	if ok {
		if err := checkETag(meta.ETag, current.Meta.ETag); err != nil {
			return current.Meta, err
		}
	}

	saved := nextMeta(meta, etag, s.now())
	document, err := json.MarshalIndent(fileEnvelope{Meta: saved, Storage: payload}, "", "  ")
	if err != nil {
		return Meta{}, fmt.Errorf("state: encode envelope: %w", err)
	}
	if err := writeFileAtomic(path, document); err != nil {
		return Meta{}, err
	}
	s.logger.Debug("saved plugin storage", zap.String("plugin", ref.Plugin), zap.String("etag", saved.ETag), zap.Int("size", len(payload)))
	return cloneMeta(saved), nil
}

func (s *FileStore) path(ref Ref) (string, error) {
	id, err := ref.Identifier()
	if err != nil {
		return "", err
	}
	return filepath.Join(s.dir, filepath.FromSlash(id)+".json"), nil
}

func (s *FileStore) read(path string) (fileEnvelope, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fileEnvelope{}, false, nil
	}
	if err != nil {
		return fileEnvelope{}, false, fmt.Errorf("state: reading %s: %w", path, err)
	}
	var envelope fileEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return fileEnvelope{}, false, fmt.Errorf("state: decoding %s: %w", path, err)
	}
	return envelope, true, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("state: creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		return fmt.Errorf("state: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("state: writing %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("state: closing %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("state: renaming %s: %w", tmpName, err)
	}
	return nil
}
