package settings

import "github.com/goliatone/go-settings/pkg/activity"

// WithActivityHooks registers hooks notified after initialization, migration
// and every mutation. Hook failures are logged and never fail the mutation.
func WithActivityHooks(hooks ...activity.ActivityHook) Option {
	return func(cfg *managerConfig) {
		for _, hook := range hooks {
			if hook != nil {
				cfg.activityHooks = append(cfg.activityHooks, hook)
			}
		}
	}
}
