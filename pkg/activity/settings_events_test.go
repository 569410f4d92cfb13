package activity

import (
	"context"
	"testing"
)

func TestBuildSettingsUpdatedEventIncludesPathMetadata(t *testing.T) {
	meta := map[string]any{"custom": "value"}
	input := SettingsEventInput{
		Plugin:         "better-calls",
		Path:           "silentCall.enabled",
		ActorID:        " actor ",
		UserID:         " user ",
		TenantID:       " tenant ",
		Metadata:       meta,
		OldValue:       false,
		NewValue:       true,
		DefinitionCode: "settings:update",
		Recipients:     []string{"user@example.com"},
		Channel:        "settings",
	}

	event := BuildSettingsUpdatedEvent(input)

	if event.Verb != VerbSettingsUpdated {
		t.Fatalf("expected verb %s got %s", VerbSettingsUpdated, event.Verb)
	}
	if event.ObjectType != "settings" || event.ObjectID != "better-calls:silentCall.enabled" {
		t.Fatalf("unexpected object fields: %+v", event)
	}
	if event.ActorID != "actor" || event.UserID != "user" || event.TenantID != "tenant" {
		t.Fatalf("unexpected identity fields: %+v", event)
	}
	if event.Metadata["path"] != "silentCall.enabled" || event.Metadata["plugin"] != "better-calls" {
		t.Fatalf("expected path and plugin metadata, got %+v", event.Metadata)
	}
	if event.Metadata["old_value"] != false || event.Metadata["new_value"] != true {
		t.Fatalf("expected old/new values, got %v %v", event.Metadata["old_value"], event.Metadata["new_value"])
	}
	event.Recipients[0] = "changed"
	if input.Recipients[0] != "user@example.com" {
		t.Fatalf("expected input recipients untouched, got %v", input.Recipients)
	}
	if _, ok := meta["path"]; ok {
		t.Fatalf("expected input metadata untouched, got %+v", meta)
	}
}

func TestBuildSettingsMigratedEventRecordsVersions(t *testing.T) {
	event := BuildSettingsMigratedEvent(SettingsEventInput{Plugin: "better-calls", FromVersion: 1, ToVersion: 3})
	if event.Verb != VerbSettingsMigrated || event.ObjectID != "better-calls" {
		t.Fatalf("unexpected event: %+v", event)
	}
	if event.Metadata["from_version"] != 1 || event.Metadata["to_version"] != 3 {
		t.Fatalf("expected version metadata, got %+v", event.Metadata)
	}
}

func TestSettingsObjectIDFallbacks(t *testing.T) {
	cases := []struct {
		name  string
		input SettingsEventInput
		want  string
	}{
		{name: "empty", input: SettingsEventInput{}, want: "settings"},
		{name: "path only", input: SettingsEventInput{Path: "a.b"}, want: "a.b"},
		{name: "plugin only", input: SettingsEventInput{Plugin: " p "}, want: "p"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := BuildSettingsDeletedEvent(tc.input).ObjectID; got != tc.want {
				t.Fatalf("expected %q got %q", tc.want, got)
			}
		})
	}
}

func TestInitializedEventPassesHooks(t *testing.T) {
	capture := &CaptureHook{}
	emitter := NewEmitter(Hooks{capture}, Config{Enabled: true})
	if err := emitter.Emit(context.Background(), BuildSettingsInitializedEvent(SettingsEventInput{Plugin: "p", ToVersion: 1})); err != nil {
		t.Fatalf("emit: %v", err)
	}
	if len(capture.Events) != 1 || capture.Events[0].Channel != "settings" {
		t.Fatalf("expected one event on settings channel, got %+v", capture.Events)
	}
}
