package activity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestNormalizeEventTrimsAndCopies(t *testing.T) {
	meta := map[string]any{"plugin": "calls", "path": "silentCall.enabled"}
	recipients := []string{" ops@example.com "}
	evt := Event{
		Verb:       " " + VerbSettingsUpdated + " ",
		ActorID:    " actor ",
		ObjectType: " settings ",
		Channel:    " audit ",
		Recipients: recipients,
		Metadata:   meta,
	}

	got := NormalizeEvent(evt)

	if got.Verb != VerbSettingsUpdated || got.ActorID != "actor" || got.Channel != "audit" {
		t.Fatalf("unexpected trimming: %+v", got)
	}
	if got.ObjectID != "calls:silentCall.enabled" {
		t.Fatalf("expected object id derived from plugin and path, got %q", got.ObjectID)
	}
	if got.OccurredAt.IsZero() {
		t.Fatalf("expected OccurredAt to be set")
	}
	got.Metadata["path"] = "changed"
	if evt.Metadata["path"] != "silentCall.enabled" {
		t.Fatalf("expected original metadata untouched: %+v", evt.Metadata)
	}
	got.Recipients[0] = "changed"
	if recipients[0] != " ops@example.com " {
		t.Fatalf("expected original recipients untouched: %+v", recipients)
	}
}

func TestNormalizeEventKeepsExplicitObjectID(t *testing.T) {
	got := NormalizeEvent(Event{
		Verb:       VerbSettingsDeleted,
		ObjectType: ObjectTypeSettings,
		ObjectID:   "row-7",
		Metadata:   map[string]any{"plugin": "calls"},
	})
	if got.ObjectID != "row-7" {
		t.Fatalf("expected explicit object id kept, got %q", got.ObjectID)
	}
}

func TestHooksNotifyDropsUndeliverableEvents(t *testing.T) {
	capture := &CaptureHook{}
	hooks := Hooks{capture}

	if err := hooks.Notify(context.Background(), Event{}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if err := hooks.Notify(context.Background(), Event{ObjectType: ObjectTypeSettings, ObjectID: "calls"}); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(capture.Events) != 0 {
		t.Fatalf("expected no events captured, got %d", len(capture.Events))
	}
}

func TestHooksNotifyFanOutAndJoinErrors(t *testing.T) {
	errAudit := errors.New("audit sink offline")
	errCache := errors.New("cache sink offline")

	capture := &CaptureHook{}
	var ctxSeen bool
	hooks := Hooks{
		HookFunc(func(ctx context.Context, _ Event) error {
			ctxSeen = ctx != nil
			return nil
		}),
		HookFunc(func(_ context.Context, _ Event) error { return errAudit }),
		nil,
		capture,
		HookFunc(func(_ context.Context, _ Event) error { return errCache }),
	}

	var ctx context.Context
	err := hooks.Notify(ctx, BuildSettingsUpdatedEvent(SettingsEventInput{Plugin: "calls", Path: "volume"}))
	if !errors.Is(err, errAudit) || !errors.Is(err, errCache) {
		t.Fatalf("expected both hook errors joined, got %v", err)
	}
	if !ctxSeen {
		t.Fatalf("expected context fallback to be non-nil")
	}
	if len(capture.Events) != 1 {
		t.Fatalf("expected hooks after a failing one to run, got %d events", len(capture.Events))
	}
}

func TestMatchers(t *testing.T) {
	calls := BuildSettingsUpdatedEvent(SettingsEventInput{Plugin: "calls", Path: "silentCall.enabled"})
	callsInit := BuildSettingsInitializedEvent(SettingsEventInput{Plugin: "calls", ToVersion: 2})
	notes := BuildSettingsDeletedEvent(SettingsEventInput{Plugin: "notes", Path: "silentCallLog"})
	user := Event{Verb: VerbSettingsUpdated, ObjectType: "user", ObjectID: "u1", Metadata: map[string]any{"plugin": "calls"}}

	cases := []struct {
		name  string
		match Matcher
		want  []bool
	}{
		{"settings", MatchSettings(), []bool{true, true, true, false}},
		{"plugin", MatchPlugin(" calls "), []bool{true, true, false, false}},
		{"path subtree", MatchPath("silentCall"), []bool{true, true, false, false}},
		{"path is not a string prefix", MatchPath("silent"), []bool{false, true, false, false}},
		{"verbs", MatchVerbs(VerbSettingsDeleted, VerbSettingsInitialized), []bool{false, true, true, false}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got []bool
			for _, evt := range []Event{calls, callsInit, notes, user} {
				got = append(got, tc.match(evt))
			}
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Fatalf("match mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFilterForwardsMatchingEvents(t *testing.T) {
	capture := &CaptureHook{}
	hook := Filter(capture, MatchPlugin("calls"), MatchVerbs(VerbSettingsUpdated))
	ctx := context.Background()

	events := []Event{
		BuildSettingsUpdatedEvent(SettingsEventInput{Plugin: "calls", Path: "volume"}),
		BuildSettingsDeletedEvent(SettingsEventInput{Plugin: "calls", Path: "volume"}),
		BuildSettingsUpdatedEvent(SettingsEventInput{Plugin: "notes", Path: "volume"}),
	}
	for _, evt := range events {
		if err := hook.Notify(ctx, evt); err != nil {
			t.Fatalf("notify: %v", err)
		}
	}
	if diff := cmp.Diff([]string{VerbSettingsUpdated}, capture.Verbs()); diff != "" {
		t.Fatalf("verbs mismatch (-want +got):\n%s", diff)
	}
	if last, ok := capture.Last(); !ok || last.Plugin() != "calls" {
		t.Fatalf("expected last event from calls, got %+v", last)
	}
}

func TestCaptureHookAccessors(t *testing.T) {
	capture := &CaptureHook{Err: errors.New("recorded anyway")}
	ctx := context.Background()

	_ = capture.Notify(ctx, BuildSettingsInitializedEvent(SettingsEventInput{Plugin: "calls"}))
	err := capture.Notify(ctx, BuildSettingsUpdatedEvent(SettingsEventInput{Plugin: "calls", Path: "a.b"}))
	if err == nil {
		t.Fatalf("expected configured error")
	}

	if diff := cmp.Diff([]string{"a.b"}, capture.Paths()); diff != "" {
		t.Fatalf("paths mismatch (-want +got):\n%s", diff)
	}
	if got := capture.Matching(MatchVerbs(VerbSettingsInitialized)); len(got) != 1 {
		t.Fatalf("expected one initialized event, got %d", len(got))
	}
	capture.Reset()
	if _, ok := capture.Last(); ok {
		t.Fatalf("expected no events after reset")
	}
}

func TestEmitterDisabledAndEnabled(t *testing.T) {
	capture := &CaptureHook{}
	input := SettingsEventInput{Path: "volume", NewValue: 3}

	disabled := NewEmitter(Hooks{capture}, Config{Enabled: false, Plugin: "calls"})
	if disabled.Enabled() {
		t.Fatalf("expected emitter to be disabled")
	}
	if err := disabled.EmitSettings(context.Background(), VerbSettingsUpdated, input); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(capture.Events) != 0 {
		t.Fatalf("expected no events captured when disabled")
	}

	if NewEmitter(Hooks{nil}, Config{Enabled: true}).Enabled() {
		t.Fatalf("expected emitter without hooks to be disabled")
	}

	enabled := NewEmitter(Hooks{capture}, Config{Enabled: true, Plugin: "calls"})
	if err := enabled.EmitSettings(context.Background(), VerbSettingsUpdated, input); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(capture.Events) != 1 {
		t.Fatalf("expected one event captured, got %d", len(capture.Events))
	}
	got := capture.Events[0]
	if got.Channel != DefaultChannel {
		t.Fatalf("expected default channel applied, got %q", got.Channel)
	}
	if got.Plugin() != "calls" || got.ObjectID != "calls:volume" {
		t.Fatalf("expected configured plugin stamped, got %+v", got)
	}
}

func TestEmitterKeepsExplicitFields(t *testing.T) {
	capture := &CaptureHook{}
	emitter := NewEmitter(Hooks{capture}, Config{Enabled: true, Channel: "default", Plugin: "calls"})
	at := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	err := emitter.EmitSettings(context.Background(), VerbSettingsDeleted, SettingsEventInput{
		Plugin:     "notes",
		Path:       "draft",
		Channel:    "custom",
		OccurredAt: at,
	})
	if err != nil {
		t.Fatalf("emit: %v", err)
	}
	got := capture.Events[0]
	if got.Channel != "custom" {
		t.Fatalf("expected explicit channel preserved, got %q", got.Channel)
	}
	if got.Plugin() != "notes" {
		t.Fatalf("expected explicit plugin preserved, got %q", got.Plugin())
	}
	if !got.OccurredAt.Equal(at) {
		t.Fatalf("expected occurred_at preserved, got %v", got.OccurredAt)
	}
}
