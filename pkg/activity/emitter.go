package activity

import (
	"context"
	"strings"
)

// DefaultChannel is the channel stamped on events that carry none.
const DefaultChannel = "settings"

// Config controls how an Emitter stamps events.
type Config struct {
	Enabled bool
	// Channel defaults to DefaultChannel.
	Channel string
	// Plugin is recorded on settings events built without one.
	Plugin string
}

// Emitter builds settings events and hands them to hooks.
type Emitter struct {
	hooks   Hooks
	enabled bool
	channel string
	plugin  string
}

// NewEmitter drops nil hooks. An emitter without hooks is disabled.
func NewEmitter(hooks Hooks, cfg Config) *Emitter {
	var kept Hooks
	for _, hook := range hooks {
		if hook != nil {
			kept = append(kept, hook)
		}
	}
	channel := strings.TrimSpace(cfg.Channel)
	if channel == "" {
		channel = DefaultChannel
	}
	return &Emitter{
		hooks:   kept,
		enabled: cfg.Enabled && len(kept) > 0,
		channel: channel,
		plugin:  strings.TrimSpace(cfg.Plugin),
	}
}

// Enabled reports whether Emit delivers anything.
func (e *Emitter) Enabled() bool {
	return e != nil && e.enabled
}

// Emit delivers event, filling in the default channel.
func (e *Emitter) Emit(ctx context.Context, event Event) error {
	if !e.Enabled() {
		return nil
	}
	if strings.TrimSpace(event.Channel) == "" {
		event.Channel = e.channel
	}
	return e.hooks.Notify(ctx, event)
}

// EmitSettings builds a settings event for verb from input and delivers it.
// The configured plugin is used when input names none.
func (e *Emitter) EmitSettings(ctx context.Context, verb string, input SettingsEventInput) error {
	if !e.Enabled() {
		return nil
	}
	if strings.TrimSpace(input.Plugin) == "" {
		input.Plugin = e.plugin
	}
	return e.Emit(ctx, buildSettingsEvent(verb, input))
}
