package settings

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func callsDefaults() map[string]any {
	return map[string]any{
		"silentCall": map[string]any{
			"enabled": true,
			"default": false,
			"users":   map[string]any{},
		},
		"rememberOutputDevice": map[string]any{
			"enabled": false,
			"device":  nil,
		},
	}
}

func TestNewInitializesEmptyStorage(t *testing.T) {
	storage := map[string]any{}
	calls := 0
	m, err := New(Config{
		Storage: storage,
		Version: 1,
		Initialize: func() map[string]any {
			calls++
			return callsDefaults()
		},
		Migrations: Migrations{1: func(map[string]any) (map[string]any, error) {
			t.Fatalf("migrations must not run during initialization")
			return nil, nil
		}},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected initializer called once, got %d", calls)
	}
	want := callsDefaults()
	want[VersionKey] = 1
	if diff := cmp.Diff(want, storage); diff != "" {
		t.Fatalf("initialized storage mismatch (-want +got):\n%s", diff)
	}
	if m.Version() != 1 {
		t.Fatalf("expected version 1, got %d", m.Version())
	}
}

func TestNewKeepsCallerReference(t *testing.T) {
	storage := map[string]any{}
	m, err := New(Config{Storage: storage, Version: 1, Initialize: callsDefaults})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := m.Set("silentCall.users.42", true); err != nil {
		t.Fatalf("set: %v", err)
	}
	if storage["silentCall"].(map[string]any)["users"].(map[string]any)["42"] != true {
		t.Fatalf("expected mutation visible through the caller's map")
	}
	m.Storage()["extra"] = 1
	if storage["extra"] != 1 {
		t.Fatalf("expected Storage to return the live reference")
	}
}

func TestNewAllocatesNilStorage(t *testing.T) {
	m, err := New(Config{Version: 2, Initialize: callsDefaults})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if m.Storage()[VersionKey] != 2 {
		t.Fatalf("expected allocated storage at version 2, got %v", m.Storage())
	}
}

func TestNewVersionZeroIsPresent(t *testing.T) {
	// version: 0 is present, so it migrates rather than reinitializing.
	storage := map[string]any{VersionKey: 0, "legacy": true}
	_, err := New(Config{
		Storage:    storage,
		Version:    1,
		Initialize: callsDefaults,
		Migrations: Migrations{0: func(old map[string]any) (map[string]any, error) {
			return map[string]any{"adopted": old["legacy"]}, nil
		}},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if storage["adopted"] != true || storage[VersionKey] != 1 {
		t.Fatalf("expected migration from version 0, got %v", storage)
	}
}

func TestNewCurrentVersionIsUntouched(t *testing.T) {
	storage := map[string]any{VersionKey: 3, "a": map[string]any{"b": 1}}
	before := cloneForTest(storage)
	_, err := New(Config{
		Storage:    storage,
		Version:    3,
		Initialize: func() map[string]any { t.Fatalf("initializer must not run"); return nil },
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if diff := cmp.Diff(before, storage); diff != "" {
		t.Fatalf("storage changed (-before +after):\n%s", diff)
	}
}

func TestNewMigratesInOrder(t *testing.T) {
	var order []int
	step := func(n int) Migration {
		return func(old map[string]any) (map[string]any, error) {
			order = append(order, n)
			if got, _ := toVersion(old[VersionKey]); got != n {
				t.Fatalf("step %d received version %v", n, old[VersionKey])
			}
			next := map[string]any{}
			for k, v := range old {
				next[k] = v
			}
			next["steps"] = append(toSlice(old["steps"]), n)
			return next, nil
		}
	}
	storage := map[string]any{VersionKey: 1}
	_, err := New(Config{
		Storage:    storage,
		Version:    4,
		Initialize: callsDefaults,
		Migrations: Migrations{1: step(1), 2: step(2), 3: step(3)},
	})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if diff := cmp.Diff([]int{1, 2, 3}, order); diff != "" {
		t.Fatalf("migration order mismatch:\n%s", diff)
	}
	if storage[VersionKey] != 4 {
		t.Fatalf("expected version 4, got %v", storage[VersionKey])
	}
	if diff := cmp.Diff([]any{1, 2, 3}, storage["steps"]); diff != "" {
		t.Fatalf("accumulated steps mismatch:\n%s", diff)
	}
}

func TestNewMigrateShallowMergeKeepsStaleKeys(t *testing.T) {
	migrations := Migrations{1: func(old map[string]any) (map[string]any, error) {
		return map[string]any{"silentCall": map[string]any{"enabled": old["silent"]}}, nil
	}}

	merged := map[string]any{VersionKey: 1, "silent": true}
	if _, err := New(Config{Storage: merged, Version: 2, Initialize: callsDefaults, Migrations: migrations}); err != nil {
		t.Fatalf("new: %v", err)
	}
	if merged["silent"] != true {
		t.Fatalf("expected stale key kept by shallow merge, got %v", merged)
	}

	pruned := map[string]any{VersionKey: 1, "silent": true}
	if _, err := New(Config{Storage: pruned, Version: 2, Initialize: callsDefaults, Migrations: migrations}, WithPruneMigratedKeys()); err != nil {
		t.Fatalf("new: %v", err)
	}
	want := map[string]any{VersionKey: 2, "silentCall": map[string]any{"enabled": true}}
	if diff := cmp.Diff(want, pruned); diff != "" {
		t.Fatalf("pruned storage mismatch (-want +got):\n%s", diff)
	}
}

func TestNewMigrationDoesNotSeeBackingObject(t *testing.T) {
	storage := map[string]any{VersionKey: 1, "nested": map[string]any{"x": 1}}
	_, err := New(Config{
		Storage:    storage,
		Version:    2,
		Initialize: callsDefaults,
		Migrations: Migrations{1: func(old map[string]any) (map[string]any, error) {
			old["nested"].(map[string]any)["x"] = 99
			return nil, errors.New("boom")
		}},
	})
	if err == nil {
		t.Fatalf("expected migration error")
	}
	if storage["nested"].(map[string]any)["x"] != 1 || storage[VersionKey] != 1 {
		t.Fatalf("expected backing object untouched on failure, got %v", storage)
	}
}

func TestNewErrors(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		target  error
		errType any
	}{
		{
			name:    "downgrade",
			cfg:     Config{Storage: map[string]any{VersionKey: 3}, Version: 2, Initialize: callsDefaults},
			target:  ErrUnsupportedDowngrade,
			errType: &ConfigurationError{},
		},
		{
			name:    "target below one",
			cfg:     Config{Version: 0, Initialize: callsDefaults},
			target:  ErrInvalidVersion,
			errType: &ConfigurationError{},
		},
		{
			name:    "nil initializer",
			cfg:     Config{Version: 1},
			target:  ErrInitializerRequired,
			errType: &ConfigurationError{},
		},
		{
			name:    "non integer version",
			cfg:     Config{Storage: map[string]any{VersionKey: "2"}, Version: 2, Initialize: callsDefaults},
			target:  ErrInvalidVersion,
			errType: &ConfigurationError{},
		},
		{
			name:    "fractional version",
			cfg:     Config{Storage: map[string]any{VersionKey: 1.5}, Version: 2, Initialize: callsDefaults},
			target:  ErrInvalidVersion,
			errType: &ConfigurationError{},
		},
		{
			name:    "float version beyond int range",
			cfg:     Config{Storage: map[string]any{VersionKey: 1e20}, Version: 2, Initialize: callsDefaults},
			target:  ErrInvalidVersion,
			errType: &ConfigurationError{},
		},
		{
			name:    "negative float version beyond int range",
			cfg:     Config{Storage: map[string]any{VersionKey: -1e20}, Version: 2, Initialize: callsDefaults},
			target:  ErrInvalidVersion,
			errType: &ConfigurationError{},
		},
		{
			name:    "uint64 version beyond int range",
			cfg:     Config{Storage: map[string]any{VersionKey: uint64(math.MaxUint64)}, Version: 2, Initialize: callsDefaults},
			target:  ErrInvalidVersion,
			errType: &ConfigurationError{},
		},
		{
			name:    "json number version beyond int range",
			cfg:     Config{Storage: map[string]any{VersionKey: json.Number("100000000000000000000")}, Version: 2, Initialize: callsDefaults},
			target:  ErrInvalidVersion,
			errType: &ConfigurationError{},
		},
		{
			name: "initializer version mismatch",
			cfg: Config{Version: 2, Initialize: func() map[string]any {
				return map[string]any{VersionKey: 1}
			}},
			target:  ErrInvalidVersion,
			errType: &ConfigurationError{},
		},
		{
			name:    "missing migration",
			cfg:     Config{Storage: map[string]any{VersionKey: 1}, Version: 3, Initialize: callsDefaults, Migrations: Migrations{1: identityMigration}},
			target:  ErrMissingMigration,
			errType: &MigrationError{},
		},
		{
			name: "not serializable result",
			cfg: Config{Storage: map[string]any{VersionKey: 1}, Version: 2, Initialize: callsDefaults, Migrations: Migrations{
				1: func(map[string]any) (map[string]any, error) { return map[string]any{"fn": func() {}}, nil },
			}},
			target:  ErrNotSerializable,
			errType: &MigrationError{},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := cloneForTest(tc.cfg.Storage)
			m, err := New(tc.cfg)
			if m != nil {
				t.Fatalf("expected nil manager on error")
			}
			if !errors.Is(err, tc.target) {
				t.Fatalf("expected %v, got %v", tc.target, err)
			}
			switch tc.errType.(type) {
			case *ConfigurationError:
				var cfgErr *ConfigurationError
				if !errors.As(err, &cfgErr) {
					t.Fatalf("expected ConfigurationError, got %T", err)
				}
			case *MigrationError:
				var migErr *MigrationError
				if !errors.As(err, &migErr) {
					t.Fatalf("expected MigrationError, got %T", err)
				}
			}
			if diff := cmp.Diff(before, tc.cfg.Storage); diff != "" {
				t.Fatalf("storage changed on error (-before +after):\n%s", diff)
			}
		})
	}
}

func TestMigrationErrorCarriesStep(t *testing.T) {
	boom := errors.New("boom")
	_, err := New(Config{
		Storage:    map[string]any{VersionKey: 1},
		Version:    3,
		Initialize: callsDefaults,
		Migrations: Migrations{
			1: identityMigration,
			2: func(map[string]any) (map[string]any, error) { return nil, boom },
		},
	}, WithPlugin("better-calls"))
	var migErr *MigrationError
	if !errors.As(err, &migErr) {
		t.Fatalf("expected MigrationError, got %v", err)
	}
	if migErr.From != 2 || migErr.To != 3 || migErr.Plugin != "better-calls" || !errors.Is(err, boom) {
		t.Fatalf("unexpected migration error: %+v", migErr)
	}
}

func TestAcceptsNumericVersionKinds(t *testing.T) {
	for _, raw := range []any{int64(2), float64(2), uint8(2), float32(2)} {
		storage := map[string]any{VersionKey: raw}
		if _, err := New(Config{Storage: storage, Version: 2, Initialize: callsDefaults}); err != nil {
			t.Fatalf("version %T: %v", raw, err)
		}
	}
}

func TestSnapshotIsDetached(t *testing.T) {
	m, err := New(Config{Version: 1, Initialize: callsDefaults})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	snapshot := m.Snapshot()
	snapshot["silentCall"].(map[string]any)["enabled"] = false
	if got, _ := m.Get("silentCall.enabled"); got != true {
		t.Fatalf("expected snapshot detached from storage")
	}
}

func TestBackfillFillsOnlyAbsent(t *testing.T) {
	storage := map[string]any{VersionKey: 1, "silentCall": map[string]any{"enabled": false}}
	m, err := New(Config{Storage: storage, Version: 1, Initialize: callsDefaults})
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	filled, err := m.Backfill(callsDefaults())
	if err != nil {
		t.Fatalf("backfill: %v", err)
	}
	want := []string{
		"rememberOutputDevice",
		"silentCall.default",
		"silentCall.users",
	}
	if diff := cmp.Diff(want, filled); diff != "" {
		t.Fatalf("filled paths mismatch:\n%s", diff)
	}
	if got, _ := m.Get("silentCall.enabled"); got != false {
		t.Fatalf("expected present value kept, got %v", got)
	}
}

func identityMigration(old map[string]any) (map[string]any, error) {
	return old, nil
}

func toSlice(value any) []any {
	items, _ := value.([]any)
	return append([]any(nil), items...)
}

func cloneForTest(src map[string]any) map[string]any {
	if src == nil {
		return nil
	}
	out := make(map[string]any, len(src))
	for key, value := range src {
		if nested, ok := value.(map[string]any); ok {
			out[key] = cloneForTest(nested)
			continue
		}
		out[key] = value
	}
	return out
}
