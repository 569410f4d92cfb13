package usersink

import (
	"context"
	"strings"

	"github.com/goliatone/go-settings/pkg/activity"
	usertypes "github.com/goliatone/go-users/pkg/types"
	"github.com/google/uuid"
)

// valueKeys are the metadata entries that carry setting payloads.
var valueKeys = []string{"old_value", "new_value"}

// Hook forwards settings events to a go-users ActivitySink.
type Hook struct {
	Sink usertypes.ActivitySink
	// Redact drops old and new values from the record so secrets held in
	// settings never reach the activity log.
	Redact bool
	// Match, when set, limits the events forwarded to the sink.
	Match activity.Matcher
}

func (h Hook) Notify(ctx context.Context, event activity.Event) error {
	if h.Sink == nil {
		return nil
	}
	event = activity.NormalizeEvent(event)
	if event.Verb == "" || event.ObjectType == "" || event.ObjectID == "" {
		return nil
	}
	if h.Match != nil && !h.Match(event) {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return h.Sink.Log(ctx, h.toRecord(event))
}

func (h Hook) toRecord(event activity.Event) usertypes.ActivityRecord {
	data := make(map[string]any, len(event.Metadata)+2)
	for key, value := range event.Metadata {
		data[key] = value
	}
	if h.Redact {
		for _, key := range valueKeys {
			if _, ok := data[key]; ok {
				data[key] = "[redacted]"
			}
		}
	}
	if event.DefinitionCode != "" {
		data["definition_code"] = event.DefinitionCode
	}
	if len(event.Recipients) > 0 {
		data["recipients"] = append([]string{}, event.Recipients...)
	}
	if len(data) == 0 {
		data = nil
	}

	return usertypes.ActivityRecord{
		ActorID:    parseUUID(event.ActorID),
		UserID:     parseUUID(event.UserID),
		TenantID:   parseUUID(event.TenantID),
		Verb:       event.Verb,
		ObjectType: event.ObjectType,
		ObjectID:   event.ObjectID,
		Channel:    event.Channel,
		Data:       data,
		OccurredAt: event.OccurredAt,
	}
}

// parseUUID maps identifiers that are not UUIDs to uuid.Nil.
func parseUUID(input string) uuid.UUID {
	id, err := uuid.Parse(strings.TrimSpace(input))
	if err != nil {
		return uuid.Nil
	}
	return id
}
