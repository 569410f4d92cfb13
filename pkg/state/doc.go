// Package state persists plugin backing objects between host sessions.
//
// The settings manager itself never saves: it mutates the caller-owned map in
// place. A Store loads and saves one raw object per plugin Ref, and a Loader
// glues a Store to settings.New so that freshly initialized or migrated
// objects are written back.
//
// Data flow:
//
//	Store.Load -> settings.New(Config{Storage: raw}) -> Store.Save
//
// Write-through persistence is driven by activity events: WriteThrough is an
// activity.ActivityHook that saves the live object after every settings
// event emitted by the manager that owns it.
//
// Deterministic keys:
//
//	Ref.Identifier() returns `plugins/<id>`. Stores use it as their primary
//	key (MemoryStore, SQLiteStore) or relative file path (FileStore).
package state
