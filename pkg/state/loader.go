package state

import (
	"context"
	"fmt"
	"sync"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/pkg/activity"
	"go.uber.org/zap"
)

// Mutator edits a managed plugin object.
type Mutator func(*settings.Manager) error

// Loader opens settings managers over objects held in a Store.
type Loader struct {
	Store  Store
	Logger *zap.Logger
	// WriteThrough attaches a WriteThrough hook to managers returned by Open,
	// so every later mutation is saved immediately.
	WriteThrough bool
}

// Open loads the object for ref (an empty object when none is stored),
// constructs a manager over it and saves the object when construction
// initialized or migrated it.
func (l Loader) Open(ctx context.Context, ref Ref, cfg settings.Config, opts ...settings.Option) (*settings.Manager, Meta, error) {
	if l.Store == nil {
		return nil, Meta{}, fmt.Errorf("state: store is required")
	}
	storage, meta, ok, err := l.load(ctx, ref)
	if err != nil {
		return nil, Meta{}, err
	}
	before, _, _ := settings.StoredVersion(storage)

	var hook *WriteThrough
	opts = append([]settings.Option{settings.WithPlugin(ref.Plugin), settings.WithLogger(l.logger())}, opts...)
	if l.WriteThrough {
		hook = NewWriteThrough(l.Store, ref, storage, meta, l.logger())
		opts = append(opts, settings.WithActivityHooks(hook))
	}

	cfg.Storage = storage
	manager, err := settings.New(cfg, opts...)
	if err != nil {
		return nil, meta, fmt.Errorf("state: open %q: %w", ref.Plugin, err)
	}
	if hook != nil {
		// Construction events already went through the hook.
		if err := hook.Err(); err != nil {
			return nil, meta, err
		}
		return manager, hook.Meta(), nil
	}
	if ok && before == manager.Version() {
		return manager, meta, nil
	}

	saved, err := l.Store.Save(ctx, ref, manager.Storage(), meta)
	if err != nil {
		return nil, meta, fmt.Errorf("state: save %q: %w", ref.Plugin, err)
	}
	l.logger().Debug("plugin storage normalized", zap.String("plugin", ref.Plugin), zap.Int("from", before), zap.Int("to", manager.Version()))
	return manager, saved, nil
}

// Mutate loads the object for ref, opens a manager over it, applies fn and
// saves the result. A non-empty meta.ETag that no longer matches the stored
// object fails with ErrETagMismatch before fn runs. Nothing is saved when fn
// fails.
func (l Loader) Mutate(ctx context.Context, ref Ref, meta Meta, cfg settings.Config, fn Mutator, opts ...settings.Option) (*settings.Manager, Meta, error) {
	if l.Store == nil {
		return nil, Meta{}, fmt.Errorf("state: store is required")
	}
	if fn == nil {
		return nil, Meta{}, fmt.Errorf("state: mutator is required")
	}
	storage, loadedMeta, _, err := l.load(ctx, ref)
	if err != nil {
		return nil, Meta{}, err
	}
	if err := checkETag(meta.ETag, loadedMeta.ETag); err != nil {
		return nil, loadedMeta, err
	}

	opts = append([]settings.Option{settings.WithPlugin(ref.Plugin), settings.WithLogger(l.logger())}, opts...)
	cfg.Storage = storage
	manager, err := settings.New(cfg, opts...)
	if err != nil {
		return nil, loadedMeta, fmt.Errorf("state: open %q: %w", ref.Plugin, err)
	}
	if err := fn(manager); err != nil {
		return nil, loadedMeta, err
	}

	saved, err := l.Store.Save(ctx, ref, manager.Storage(), mergeMeta(loadedMeta, meta))
	if err != nil {
		return nil, loadedMeta, fmt.Errorf("state: save %q: %w", ref.Plugin, err)
	}
	return manager, saved, nil
}

// SaveHook returns a WriteThrough hook persisting storage under ref. Pass the
// same map as settings.Config.Storage and register the hook with
// settings.WithActivityHooks.
func (l Loader) SaveHook(ref Ref, storage map[string]any, meta Meta) *WriteThrough {
	return NewWriteThrough(l.Store, ref, storage, meta, l.logger())
}

func (l Loader) load(ctx context.Context, ref Ref) (map[string]any, Meta, bool, error) {
	storage, meta, ok, err := l.Store.Load(ctx, ref)
	if err != nil {
		return nil, Meta{}, false, fmt.Errorf("state: load %q: %w", ref.Plugin, err)
	}
	if !ok || storage == nil {
		storage = map[string]any{}
	}
	return storage, meta, ok, nil
}

func (l Loader) logger() *zap.Logger {
	if l.Logger == nil {
		return zap.NewNop()
	}
	return l.Logger
}

// WriteThrough is an activity hook that saves a live backing object after
// each settings event. It tracks the latest Meta so successive saves pass the
// store's ETag check.
type WriteThrough struct {
	store   Store
	ref     Ref
	storage map[string]any
	logger  *zap.Logger

	mu   sync.Mutex
	meta Meta
	err  error
}

var _ activity.ActivityHook = (*WriteThrough)(nil)

func NewWriteThrough(store Store, ref Ref, storage map[string]any, meta Meta, logger *zap.Logger) *WriteThrough {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WriteThrough{store: store, ref: ref, storage: storage, meta: meta, logger: logger}
}

// Notify saves the object. Events for other plugins are ignored.
func (w *WriteThrough) Notify(ctx context.Context, event activity.Event) error {
	if !activity.MatchPlugin(w.ref.Plugin)(event) {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.store == nil {
		w.err = fmt.Errorf("state: store is required")
		return w.err
	}
	saved, err := w.store.Save(ctx, w.ref, w.storage, w.meta)
	if err != nil {
		w.err = fmt.Errorf("state: save %q after %s: %w", w.ref.Plugin, event.Verb, err)
		return w.err
	}
	w.meta = saved
	w.err = nil
	w.logger.Debug("plugin storage written through", zap.String("plugin", w.ref.Plugin), zap.String("verb", event.Verb))
	return nil
}

// Meta returns the metadata of the latest successful save.
func (w *WriteThrough) Meta() Meta {
	w.mu.Lock()
	defer w.mu.Unlock()
	return cloneMeta(w.meta)
}

// Err returns the error of the latest save attempt, if it failed.
func (w *WriteThrough) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
