package activity

import (
	"strings"
	"time"
)

const (
	VerbSettingsInitialized = "settings.initialized"
	VerbSettingsMigrated    = "settings.migrated"
	VerbSettingsUpdated     = "settings.updated"
	VerbSettingsDeleted     = "settings.deleted"

	ObjectTypeSettings = "settings"
)

// SettingsEventInput describes the common fields for plugin storage events.
type SettingsEventInput struct {
	Plugin         string
	Path           string
	OldValue       any
	NewValue       any
	FromVersion    int
	ToVersion      int
	ActorID        string
	UserID         string
	TenantID       string
	Channel        string
	DefinitionCode string
	Recipients     []string
	Metadata       map[string]any
	OccurredAt     time.Time
}

// BuildSettingsInitializedEvent describes storage populated from defaults.
func BuildSettingsInitializedEvent(input SettingsEventInput) Event {
	return buildSettingsEvent(VerbSettingsInitialized, input)
}

// BuildSettingsMigratedEvent describes storage moved between versions.
func BuildSettingsMigratedEvent(input SettingsEventInput) Event {
	return buildSettingsEvent(VerbSettingsMigrated, input)
}

// BuildSettingsUpdatedEvent describes a value written at a path.
func BuildSettingsUpdatedEvent(input SettingsEventInput) Event {
	return buildSettingsEvent(VerbSettingsUpdated, input)
}

// BuildSettingsDeletedEvent describes a value removed at a path.
func BuildSettingsDeletedEvent(input SettingsEventInput) Event {
	return buildSettingsEvent(VerbSettingsDeleted, input)
}

func buildSettingsEvent(verb string, input SettingsEventInput) Event {
	metadata := cloneMap(input.Metadata)
	plugin := strings.TrimSpace(input.Plugin)
	path := strings.TrimSpace(input.Path)
	if plugin != "" {
		metadata = ensureMetadata(metadata)
		metadata["plugin"] = plugin
	}
	if path != "" {
		metadata = ensureMetadata(metadata)
		metadata["path"] = path
	}
	if input.FromVersion > 0 {
		metadata = ensureMetadata(metadata)
		metadata["from_version"] = input.FromVersion
	}
	if input.ToVersion > 0 {
		metadata = ensureMetadata(metadata)
		metadata["to_version"] = input.ToVersion
	}
	if input.OldValue != nil {
		metadata = ensureMetadata(metadata)
		metadata["old_value"] = input.OldValue
	}
	if input.NewValue != nil {
		metadata = ensureMetadata(metadata)
		metadata["new_value"] = input.NewValue
	}

	recipients := input.Recipients
	if len(recipients) > 0 {
		recipients = append([]string{}, input.Recipients...)
	}

	return Event{
		Verb:           verb,
		ActorID:        strings.TrimSpace(input.ActorID),
		UserID:         strings.TrimSpace(input.UserID),
		TenantID:       strings.TrimSpace(input.TenantID),
		ObjectType:     ObjectTypeSettings,
		ObjectID:       settingsObjectID(plugin, path),
		Channel:        strings.TrimSpace(input.Channel),
		DefinitionCode: strings.TrimSpace(input.DefinitionCode),
		Recipients:     recipients,
		Metadata:       metadata,
		OccurredAt:     input.OccurredAt,
	}
}

// settingsObjectID is "<plugin>:<path>", dropping whichever half is empty.
func settingsObjectID(plugin, path string) string {
	switch {
	case plugin != "" && path != "":
		return plugin + ":" + path
	case plugin != "":
		return plugin
	case path != "":
		return path
	default:
		return ObjectTypeSettings
	}
}

func ensureMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return map[string]any{}
	}
	return meta
}
