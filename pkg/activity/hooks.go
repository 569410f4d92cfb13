package activity

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Event is one settings lifecycle occurrence. Settings builders put the
// owning plugin and the key path into Metadata under "plugin" and "path".
type Event struct {
	Verb           string
	ActorID        string
	UserID         string
	TenantID       string
	ObjectType     string
	ObjectID       string
	Channel        string
	DefinitionCode string
	Recipients     []string
	Metadata       map[string]any
	OccurredAt     time.Time
}

// Plugin returns the plugin recorded in the event metadata.
func (e Event) Plugin() string {
	plugin, _ := e.Metadata["plugin"].(string)
	return plugin
}

// Path returns the key path recorded in the event metadata, empty for
// whole-object events such as initialization.
func (e Event) Path() string {
	path, _ := e.Metadata["path"].(string)
	return path
}

// IsSettings reports whether the event describes plugin storage.
func (e Event) IsSettings() bool {
	return e.ObjectType == ObjectTypeSettings
}

func (e Event) deliverable() bool {
	return e.Verb != "" && e.ObjectType != "" && e.ObjectID != ""
}

// ActivityHook receives normalized events.
type ActivityHook interface {
	Notify(ctx context.Context, event Event) error
}

// HookFunc adapts a function to ActivityHook.
type HookFunc func(ctx context.Context, event Event) error

func (fn HookFunc) Notify(ctx context.Context, event Event) error {
	if fn == nil {
		return nil
	}
	return fn(ctx, event)
}

// Hooks delivers each event to every member.
type Hooks []ActivityHook

// Enabled reports whether at least one hook is registered.
func (h Hooks) Enabled() bool {
	return len(h) > 0
}

// Notify normalizes event and hands it to each hook in order. Events without
// a verb, object type or object id are dropped. Every hook runs even when an
// earlier one fails; failures come back joined.
func (h Hooks) Notify(ctx context.Context, event Event) error {
	if len(h) == 0 {
		return nil
	}
	event = NormalizeEvent(event)
	if !event.deliverable() {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var errs []error
	for _, hook := range h {
		if hook == nil {
			continue
		}
		if err := hook.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Matcher selects events.
type Matcher func(Event) bool

// MatchSettings selects settings events.
func MatchSettings() Matcher {
	return Event.IsSettings
}

// MatchPlugin selects settings events owned by plugin.
func MatchPlugin(plugin string) Matcher {
	plugin = strings.TrimSpace(plugin)
	return func(e Event) bool {
		return e.IsSettings() && e.Plugin() == plugin
	}
}

// MatchPath selects settings events at path or below it. Whole-object events
// (no path) always match, since they may have rewritten path too.
func MatchPath(path string) Matcher {
	path = strings.TrimSpace(path)
	return func(e Event) bool {
		if !e.IsSettings() {
			return false
		}
		got := e.Path()
		return got == "" || got == path || strings.HasPrefix(got, path+".")
	}
}

// MatchVerbs selects events carrying one of verbs.
func MatchVerbs(verbs ...string) Matcher {
	set := make(map[string]struct{}, len(verbs))
	for _, verb := range verbs {
		set[strings.TrimSpace(verb)] = struct{}{}
	}
	return func(e Event) bool {
		_, ok := set[e.Verb]
		return ok
	}
}

// Filter forwards to hook only the events accepted by every matcher.
func Filter(hook ActivityHook, matchers ...Matcher) ActivityHook {
	return HookFunc(func(ctx context.Context, event Event) error {
		if hook == nil {
			return nil
		}
		for _, match := range matchers {
			if match != nil && !match(event) {
				return nil
			}
		}
		return hook.Notify(ctx, event)
	})
}

// NormalizeEvent trims identifiers, copies metadata and recipients, stamps
// the time when missing and derives the object id of settings events from
// their plugin and path.
func NormalizeEvent(event Event) Event {
	out := event
	for _, field := range []*string{
		&out.Verb, &out.ActorID, &out.UserID, &out.TenantID,
		&out.ObjectType, &out.ObjectID, &out.Channel, &out.DefinitionCode,
	} {
		*field = strings.TrimSpace(*field)
	}
	out.Metadata = cloneMap(event.Metadata)
	out.Recipients = nil
	if len(event.Recipients) > 0 {
		out.Recipients = append([]string{}, event.Recipients...)
	}
	if out.ObjectID == "" && out.IsSettings() && (out.Plugin() != "" || out.Path() != "") {
		out.ObjectID = settingsObjectID(out.Plugin(), out.Path())
	}
	if out.OccurredAt.IsZero() {
		out.OccurredAt = time.Now()
	}
	return out
}

func cloneMap(src map[string]any) map[string]any {
	if len(src) == 0 {
		return nil
	}
	dst := make(map[string]any, len(src))
	for key, value := range src {
		dst[key] = value
	}
	return dst
}
