package state

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrETagMismatch = errors.New("state: etag mismatch")

var ErrInvalidRef = errors.New("state: invalid ref")

// Ref identifies the persisted backing object of one plugin.
type Ref struct {
	Plugin string
}

// Identifier returns the canonical storage key `plugins/<id>`.
func (r Ref) Identifier() (string, error) {
	id := strings.TrimSpace(r.Plugin)
	if id == "" {
		return "", fmt.Errorf("%w: plugin id is required", ErrInvalidRef)
	}
	if id != r.Plugin {
		return "", fmt.Errorf("%w: plugin id %q has surrounding whitespace", ErrInvalidRef, r.Plugin)
	}
	for _, ch := range id {
		switch {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case ch == '-', ch == '_', ch == '.':
		default:
			return "", fmt.Errorf("%w: plugin id %q contains %q", ErrInvalidRef, id, ch)
		}
	}
	if strings.Trim(id, ".") == "" {
		return "", fmt.Errorf("%w: plugin id %q", ErrInvalidRef, id)
	}
	return "plugins/" + id, nil
}

// Meta is storage-owned metadata used for audit and concurrency control.
//
// On Save, a non-empty ETag is the version the caller expects to overwrite;
// the returned Meta carries the new ETag.
type Meta struct {
	SnapshotID string            `json:"snapshot_id,omitempty"`
	ETag       string            `json:"etag,omitempty"`
	UpdatedAt  time.Time         `json:"updated_at,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Store loads and saves one raw backing object per plugin.
type Store interface {
	Load(ctx context.Context, ref Ref) (storage map[string]any, meta Meta, ok bool, err error)
	Save(ctx context.Context, ref Ref, storage map[string]any, meta Meta) (Meta, error)
}

// encodeStorage renders storage as JSON and derives its content ETag.
func encodeStorage(storage map[string]any) ([]byte, string, error) {
	if storage == nil {
		storage = map[string]any{}
	}
	payload, err := json.Marshal(storage)
	if err != nil {
		return nil, "", fmt.Errorf("state: encode: %w", err)
	}
	sum := sha256.Sum256(payload)
	return payload, hex.EncodeToString(sum[:16]), nil
}

func decodeStorage(payload []byte) (map[string]any, error) {
	storage := map[string]any{}
	if len(payload) == 0 {
		return storage, nil
	}
	if err := json.Unmarshal(payload, &storage); err != nil {
		return nil, fmt.Errorf("state: decode: %w", err)
	}
	if storage == nil {
		storage = map[string]any{}
	}
	return storage, nil
}

// checkETag fails when the caller expects a different stored version.
func checkETag(expected, current string) error {
	if expected == "" || current == "" || expected == current {
		return nil
	}
	return fmt.Errorf("%w: expected %q, got %q", ErrETagMismatch, expected, current)
}

// nextMeta stamps a fresh snapshot id, etag and timestamp over in.
func nextMeta(in Meta, etag string, now time.Time) Meta {
	out := cloneMeta(in)
	out.SnapshotID = uuid.NewString()
	out.ETag = etag
	out.UpdatedAt = now.UTC()
	return out
}

func mergeMeta(base, override Meta) Meta {
	out := base
	if override.SnapshotID != "" {
		out.SnapshotID = override.SnapshotID
	}
	if override.ETag != "" {
		out.ETag = override.ETag
	}
	if !override.UpdatedAt.IsZero() {
		out.UpdatedAt = override.UpdatedAt
	}
	if override.Extra != nil {
		out.Extra = override.Extra
	}
	return out
}

func cloneMeta(meta Meta) Meta {
	out := meta
	if meta.Extra == nil {
		return out
	}
	out.Extra = make(map[string]string, len(meta.Extra))
	for k, v := range meta.Extra {
		out.Extra[k] = v
	}
	return out
}
