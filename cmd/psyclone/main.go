// Command psyclone runs the psyclone daemon and talks to it.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/JamesWemyss/psyclone/config"
	psylogger "github.com/JamesWemyss/psyclone/logger"
)

// version is set at build time.
var version = "dev"

type rootOptions struct {
	configPath string
	logFile    string
	pretty     bool
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:           "psyclone",
		Short:         "Conversational front end over a personal memory and task store",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.logFile != "" && opts.pretty {
				return fmt.Errorf("--logfile and --pretty are mutually exclusive")
			}
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", config.GetServerConfigPath(), "Path to the YAML config file")
	flags.StringVar(&opts.logFile, "logfile", "", "Path to log file. If not set, logs to stderr")
	flags.BoolVar(&opts.pretty, "pretty", false, "Use pretty console output (only valid when logfile is not set)")

	root.AddCommand(
		newServeCmd(opts),
		newAskCmd(opts),
		newChatCmd(opts),
		newAssistantCmd(opts),
		newListsCmd(opts),
		newMCPCmd(opts),
		newMigrateCmd(opts),
		newRemindCmd(opts),
		newConfigCmd(opts),
	)
	return root
}

func (o *rootOptions) logger() (zerolog.Logger, error) {
	logger, err := psylogger.InitWithOptions(o.logFile, o.pretty)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

func (o *rootOptions) load() (*config.ServerConfig, zerolog.Logger, error) {
	logger, err := o.logger()
	if err != nil {
		return nil, logger, err
	}
	cfg, err := config.LoadServerConfig(o.configPath)
	if err != nil {
		return nil, logger, fmt.Errorf("failed to load server configuration: %w", err)
	}
	return cfg, logger, nil
}
