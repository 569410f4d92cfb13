package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	settings "github.com/goliatone/go-settings"
	"github.com/goliatone/go-settings/pkg/migration"
	"github.com/goliatone/go-settings/pkg/state"
)

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "settingsctl",
		Short:         "Inspect and edit persisted plugin storage",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.noColor {
				color.NoColor = true
			}
			return a.setup(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			a.teardown()
		},
	}
	root.PersistentFlags().StringVarP(&a.configFile, "config", "c", "", "config file (default ./settingsctl.yaml)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "debug logging")
	root.PersistentFlags().BoolVar(&a.noColor, "no-color", false, "disable colored output")

	root.AddCommand(
		newGetCmd(a),
		newSetCmd(a),
		newUnsetCmd(a),
		newSchemaCmd(a),
		newEvalCmd(a),
		newMigrateCmd(a),
	)
	return root
}

func newGetCmd(a *app) *cobra.Command {
	var fallbacks []string
	cmd := &cobra.Command{
		Use:   "get <plugin> <path>",
		Short: "Print the value stored at a key path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := a.open(cmd, args[0])
			if err != nil {
				return err
			}
			paths := append([]string{args[1]}, fallbacks...)
			value, trace, err := manager.ResolveWithTrace(paths...)
			if err != nil {
				return err
			}
			if trace.Resolved < 0 {
				return fmt.Errorf("%s: %w", args[1], settings.ErrPathNotFound)
			}
			if trace.Resolved > 0 {
				color.New(color.FgYellow).Fprintf(cmd.ErrOrStderr(), "resolved from %s\n", trace.Candidates[trace.Resolved].Path)
			}
			return printJSON(cmd.OutOrStdout(), value)
		},
	}
	cmd.Flags().StringSliceVar(&fallbacks, "fallback", nil, "paths tried in order when the first is absent")
	return cmd
}

func newSetCmd(a *app) *cobra.Command {
	var (
		ifAbsent bool
		ifMatch  string
	)
	cmd := &cobra.Command{
		Use:   "set <plugin> <path> <json>",
		Short: "Write a JSON value at a key path",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var value any
			if err := json.Unmarshal([]byte(args[2]), &value); err != nil {
				return fmt.Errorf("value must be JSON: %w", err)
			}
			return a.mutate(cmd, args[0], ifMatch, func(m *settings.Manager) error {
				if ifAbsent {
					return m.SetIfNotDefined(args[1], func() any { return value })
				}
				return m.Set(args[1], value)
			})
		},
	}
	cmd.Flags().BoolVar(&ifAbsent, "if-absent", false, "only write when the path holds no value")
	cmd.Flags().StringVar(&ifMatch, "if-match", "", "only write when the stored object still has this etag")
	return cmd
}

func newUnsetCmd(a *app) *cobra.Command {
	var ifMatch string
	cmd := &cobra.Command{
		Use:   "unset <plugin> <path>",
		Short: "Delete the value at a key path",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.mutate(cmd, args[0], ifMatch, func(m *settings.Manager) error {
				if !m.Unset(args[1]) {
					return fmt.Errorf("%s: parent is missing or not a mapping", args[1])
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&ifMatch, "if-match", "", "only write when the stored object still has this etag")
	return cmd
}

func newSchemaCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "schema <plugin>",
		Short: "List the key paths and value types of a stored object",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := a.open(cmd, args[0])
			if err != nil {
				return err
			}
			doc, err := manager.Schema()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			cyan := color.New(color.FgCyan)
			fmt.Fprintf(out, "%s v%d\n", args[0], doc.Version)
			fields, _ := doc.Document.([]settings.FieldDescriptor)
			for _, field := range fields {
				cyan.Fprintf(out, "  %s", field.Path)
				fmt.Fprintf(out, "  %s\n", field.Type)
			}
			return nil
		},
	}
}

func newEvalCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "eval <plugin> <expr>",
		Short: "Evaluate an expression against a stored object",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := a.open(cmd, args[0])
			if err != nil {
				return err
			}
			value, err := manager.Evaluate(args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), value)
		},
	}
}

func newMigrateCmd(a *app) *cobra.Command {
	var (
		planFile string
		prune    bool
	)
	cmd := &cobra.Command{
		Use:   "migrate <plugin>",
		Short: "Initialize or migrate a stored object with a YAML plan",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			plan, err := migration.LoadPlan(planFile)
			if err != nil {
				return err
			}
			cfg, err := plan.Config(a.evaluator)
			if err != nil {
				return err
			}
			opts := a.managerOptions()
			if prune {
				opts = append(opts, settings.WithPruneMigratedKeys())
			}
			manager, meta, err := a.loader().Open(cmd.Context(), state.Ref{Plugin: args[0]}, cfg, opts...)
			if err != nil {
				return err
			}
			color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "%s at version %d", args[0], manager.Version())
			fmt.Fprintf(cmd.OutOrStdout(), " (etag %s)\n", meta.ETag)
			return nil
		},
	}
	cmd.Flags().StringVarP(&planFile, "plan", "p", "", "migration plan file")
	cmd.Flags().BoolVar(&prune, "prune", false, "drop top-level keys the migrated shape no longer carries")
	_ = cmd.MarkFlagRequired("plan")
	return cmd
}

// open builds a read-only manager; nothing it does is saved.
func (a *app) open(cmd *cobra.Command, plugin string) (*settings.Manager, error) {
	storage, _, cfg, err := a.passthrough(cmd.Context(), plugin)
	if err != nil {
		return nil, err
	}
	cfg.Storage = storage
	opts := append([]settings.Option{settings.WithPlugin(plugin), settings.WithLogger(a.logger)}, a.managerOptions()...)
	return settings.New(cfg, opts...)
}

// mutate applies fn and saves. The config is derived from the object as it
// was first read, so the save is guarded by that read's ETag unless ifMatch
// names an earlier one.
func (a *app) mutate(cmd *cobra.Command, plugin, ifMatch string, fn state.Mutator) error {
	_, read, cfg, err := a.passthrough(cmd.Context(), plugin)
	if err != nil {
		return err
	}
	if ifMatch != "" {
		read.ETag = ifMatch
	}
	_, meta, err := a.loader().Mutate(cmd.Context(), state.Ref{Plugin: plugin}, read, cfg, fn, a.managerOptions()...)
	if err != nil {
		return err
	}
	color.New(color.FgGreen).Fprint(cmd.OutOrStdout(), "saved")
	fmt.Fprintf(cmd.OutOrStdout(), " %s (etag %s)\n", plugin, meta.ETag)
	return nil
}

func printJSON(out io.Writer, value any) error {
	encoded, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, string(encoded))
	return err
}
