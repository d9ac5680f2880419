package main

import (
	"database/sql"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/JamesWemyss/psyclone/config"
	"github.com/JamesWemyss/psyclone/mcp"
	"github.com/JamesWemyss/psyclone/memory"
	"github.com/JamesWemyss/psyclone/migrations"
	"github.com/JamesWemyss/psyclone/runtime"
	"github.com/JamesWemyss/psyclone/tools"
)

func newMCPCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the action tools over MCP on stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			st, err := openStorage(cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck // No remedy for db close errors

			srv, err := mcp.NewServer(st.tools, version, logger)
			if err != nil {
				return err
			}
			return srv.ServeStdio(cmd.Context(), os.Stdin, cmd.OutOrStdout())
		},
	}
}

// withDB opens the configured database without migrating it.
func (o *rootOptions) withDB(fn func(db *sql.DB, logger zerolog.Logger) error) error {
	cfg, logger, err := o.load()
	if err != nil {
		return err
	}
	db, err := memory.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close() //nolint:errcheck // No remedy for db close errors
	return fn(db, logger)
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withDB(func(db *sql.DB, logger zerolog.Logger) error {
					if err := migrations.RunMigrations(db, logger); err != nil {
						return err
					}
					return printVersion(cmd, db)
				})
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back every migration",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				return opts.withDB(migrations.Down)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the applied schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return opts.withDB(func(db *sql.DB, _ zerolog.Logger) error {
					return printVersion(cmd, db)
				})
			},
		},
	)
	return cmd
}

func printVersion(cmd *cobra.Command, db *sql.DB) error {
	v, dirty, err := migrations.Version(db)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "schema version %d (dirty: %t)\n", v, dirty)
	return err
}

func newRemindCmd(opts *rootOptions) *cobra.Command {
	var lookahead int
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "remind",
		Short: "Send reminders for upcoming birthdays and key dates once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := opts.load()
			if err != nil {
				return err
			}
			if lookahead <= 0 {
				lookahead = cfg.Reminders.LookaheadDays
			}
			st, err := openStorage(cfg, logger)
			if err != nil {
				return err
			}
			defer st.Close() //nolint:errcheck // No remedy for db close errors

			var notifier tools.Notifier = tools.NewDesktopNotifier(logger)
			if dryRun {
				notifier = tools.NotifierFunc(func(string, string) error { return nil })
			}
			scheduler, err := runtime.NewScheduler(st.store, notifier, cfg.Reminders.Schedule, lookahead, cfg.Location(), logger)
			if err != nil {
				return err
			}
			reminders, err := scheduler.RunOnce(cmd.Context())
			if err != nil {
				return err
			}
			for _, r := range reminders {
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), r.Message()); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&lookahead, "days", 0, "Lookahead window in days (default from config)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Print reminders without sending notifications")
	return cmd
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the config file",
	}
	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := os.Stat(opts.configPath); err == nil && !force {
				return fmt.Errorf("config file %s already exists (use --force to overwrite)", opts.configPath)
			}
			cfg := config.Defaults()
			if err := config.SaveServerConfig(&cfg, opts.configPath); err != nil {
				return err
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", opts.configPath)
			return err
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := opts.load()
			if err != nil {
				return err
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(redacted(*cfg)); err != nil {
				return err
			}
			return enc.Close()
		},
	}
	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

func redacted(cfg config.ServerConfig) config.ServerConfig {
	for _, key := range []*string{&cfg.Anthropic.APIKey, &cfg.Gemini.APIKey, &cfg.OpenAI.APIKey} {
		if *key != "" {
			*key = "***"
		}
	}
	return cfg
}
