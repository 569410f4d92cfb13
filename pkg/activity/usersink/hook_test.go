package usersink_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-settings/pkg/activity"
	"github.com/goliatone/go-settings/pkg/activity/usersink"
	usertypes "github.com/goliatone/go-users/pkg/types"
	"github.com/google/uuid"
)

type recordingSink struct {
	records []usertypes.ActivityRecord
	err     error
}

func (s *recordingSink) Log(_ context.Context, record usertypes.ActivityRecord) error {
	s.records = append(s.records, record)
	return s.err
}

func TestHookNotifyMapsSettingsUpdate(t *testing.T) {
	sink := &recordingSink{}
	hook := usersink.Hook{Sink: sink}

	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	actorID := uuid.New()
	tenantID := uuid.New()

	event := activity.BuildSettingsUpdatedEvent(activity.SettingsEventInput{
		Plugin:         "better-calls",
		Path:           "silentCall.enabled",
		OldValue:       false,
		NewValue:       true,
		ActorID:        actorID.String(),
		UserID:         "not-a-uuid",
		TenantID:       tenantID.String(),
		Channel:        "settings",
		DefinitionCode: "settings:update",
		Recipients:     []string{"ops@example.com"},
		OccurredAt:     now,
	})

	if err := hook.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(sink.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(sink.records))
	}
	record := sink.records[0]
	if record.ActorID != actorID || record.TenantID != tenantID {
		t.Fatalf("unexpected identity fields: %+v", record)
	}
	if record.UserID != uuid.Nil {
		t.Fatalf("expected non-uuid user to map to Nil, got %s", record.UserID)
	}
	if record.Verb != activity.VerbSettingsUpdated || record.ObjectType != activity.ObjectTypeSettings {
		t.Fatalf("unexpected record payload: %+v", record)
	}
	if record.ObjectID != "better-calls:silentCall.enabled" {
		t.Fatalf("expected plugin:path object id, got %q", record.ObjectID)
	}
	if !record.OccurredAt.Equal(now) {
		t.Fatalf("expected occurred_at %v got %v", now, record.OccurredAt)
	}
	if record.Data["path"] != "silentCall.enabled" || record.Data["plugin"] != "better-calls" {
		t.Fatalf("expected settings metadata passthrough, got %v", record.Data)
	}
	if record.Data["old_value"] != false || record.Data["new_value"] != true {
		t.Fatalf("expected values recorded, got %v", record.Data)
	}
	if record.Data["definition_code"] != "settings:update" {
		t.Fatalf("expected definition_code, got %v", record.Data["definition_code"])
	}
	recipients, ok := record.Data["recipients"].([]string)
	if !ok || len(recipients) != 1 || recipients[0] != "ops@example.com" {
		t.Fatalf("expected recipients, got %v", record.Data["recipients"])
	}
}

func TestHookNotifyRedactsValues(t *testing.T) {
	sink := &recordingSink{}
	hook := usersink.Hook{Sink: sink, Redact: true}

	event := activity.BuildSettingsUpdatedEvent(activity.SettingsEventInput{
		Plugin:   "smtp",
		Path:     "auth.password",
		OldValue: "hunter2",
		NewValue: "correct horse",
	})
	if err := hook.Notify(context.Background(), event); err != nil {
		t.Fatalf("notify: %v", err)
	}

	data := sink.records[0].Data
	if data["old_value"] != "[redacted]" || data["new_value"] != "[redacted]" {
		t.Fatalf("expected values redacted, got %v", data)
	}
	if data["path"] != "auth.password" {
		t.Fatalf("expected path kept, got %v", data["path"])
	}
	if event.Metadata["new_value"] != "correct horse" {
		t.Fatalf("expected source event untouched, got %v", event.Metadata)
	}
}

func TestHookNotifyMatchLimitsForwarding(t *testing.T) {
	sink := &recordingSink{}
	hook := usersink.Hook{Sink: sink, Match: activity.MatchPlugin("calls")}
	ctx := context.Background()

	_ = hook.Notify(ctx, activity.BuildSettingsDeletedEvent(activity.SettingsEventInput{Plugin: "notes", Path: "draft"}))
	_ = hook.Notify(ctx, activity.BuildSettingsDeletedEvent(activity.SettingsEventInput{Plugin: "calls", Path: "draft"}))

	if len(sink.records) != 1 || sink.records[0].ObjectID != "calls:draft" {
		t.Fatalf("expected only the calls event, got %+v", sink.records)
	}
}

func TestHookNotifySkipsIncompleteEvents(t *testing.T) {
	sink := &recordingSink{}
	hook := usersink.Hook{Sink: sink}

	_ = hook.Notify(context.Background(), activity.Event{})
	_ = hook.Notify(context.Background(), activity.Event{ObjectType: activity.ObjectTypeSettings, ObjectID: "calls"})

	if len(sink.records) != 0 {
		t.Fatalf("expected no records, got %d", len(sink.records))
	}
}

func TestHookNotifyDefaultsTimestampAndReturnsSinkError(t *testing.T) {
	sinkErr := errors.New("activity store down")
	sink := &recordingSink{err: sinkErr}
	hook := usersink.Hook{Sink: sink}

	err := hook.Notify(context.Background(), activity.BuildSettingsInitializedEvent(activity.SettingsEventInput{
		Plugin:    "calls",
		ToVersion: 2,
	}))
	if !errors.Is(err, sinkErr) {
		t.Fatalf("expected sink error, got %v", err)
	}
	if len(sink.records) != 1 || sink.records[0].OccurredAt.IsZero() {
		t.Fatalf("expected one record with occurred_at defaulted, got %+v", sink.records)
	}
	if sink.records[0].Data["to_version"] != 2 {
		t.Fatalf("expected to_version, got %v", sink.records[0].Data)
	}
}
