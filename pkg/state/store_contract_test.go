package state_test

import (
	"context"
	"errors"
	"testing"

	"github.com/goliatone/go-settings/pkg/state"
)

// runStoreContract checks the behavior every Store implementation shares.
func runStoreContract(t *testing.T, store state.Store) {
	t.Helper()
	ctx := context.Background()
	ref := state.Ref{Plugin: "better-calls"}

	t.Run("missing", func(t *testing.T) {
		_, _, ok, err := store.Load(ctx, state.Ref{Plugin: "absent"})
		if err != nil || ok {
			t.Fatalf("expected missing record, got ok=%v err=%v", ok, err)
		}
	})

	t.Run("round trip", func(t *testing.T) {
		input := map[string]any{
			"version":    2,
			"silentCall": map[string]any{"enabled": true, "users": map[string]any{"42": false}},
		}
		saved, err := store.Save(ctx, ref, input, state.Meta{Extra: map[string]string{"source": "test"}})
		if err != nil {
			t.Fatalf("save: %v", err)
		}
		if saved.SnapshotID == "" || saved.ETag == "" || saved.UpdatedAt.IsZero() {
			t.Fatalf("expected stamped meta, got %+v", saved)
		}

		input["silentCall"].(map[string]any)["enabled"] = false

		got, meta, ok, err := store.Load(ctx, ref)
		if err != nil || !ok {
			t.Fatalf("load: ok=%v err=%v", ok, err)
		}
		if meta.ETag != saved.ETag || meta.SnapshotID != saved.SnapshotID {
			t.Fatalf("expected loaded meta %+v, got %+v", saved, meta)
		}
		if meta.Extra["source"] != "test" {
			t.Fatalf("expected extra preserved, got %+v", meta.Extra)
		}
		silent := got["silentCall"].(map[string]any)
		if silent["enabled"] != true {
			t.Fatalf("expected stored copy detached from input, got %v", silent["enabled"])
		}
	})

	t.Run("etag mismatch", func(t *testing.T) {
		_, current, _, err := store.Load(ctx, ref)
		if err != nil {
			t.Fatalf("load: %v", err)
		}
		_, err = store.Save(ctx, ref, map[string]any{"version": 3}, state.Meta{ETag: "stale"})
		if !errors.Is(err, state.ErrETagMismatch) {
			t.Fatalf("expected ErrETagMismatch, got %v", err)
		}
		next, err := store.Save(ctx, ref, map[string]any{"version": 3}, state.Meta{ETag: current.ETag})
		if err != nil {
			t.Fatalf("save with current etag: %v", err)
		}
		if next.ETag == current.ETag {
			t.Fatalf("expected etag to change with content")
		}
	})

	t.Run("invalid ref", func(t *testing.T) {
		if _, err := store.Save(ctx, state.Ref{}, map[string]any{}, state.Meta{}); !errors.Is(err, state.ErrInvalidRef) {
			t.Fatalf("expected ErrInvalidRef, got %v", err)
		}
	})
}
