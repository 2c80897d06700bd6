package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/dshills/procvm/internal/logging"
)

type rootFlags struct {
	logLevel string
	logHuman bool
	history  string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "procvm",
		Short:         "Run BPMN-style process definitions on a process virtual machine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&flags.logHuman, "log-human", false, "Human-readable log output instead of JSON lines")
	cmd.PersistentFlags().StringVar(&flags.history, "history", "memory",
		`History store: "memory", "sqlite:<path>" or "mysql://<dsn>"`)

	cmd.AddCommand(newRunCmd(flags))
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newHistoryCmd(flags))
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// logger builds the command's logger; log output goes to stderr.
func (f *rootFlags) logger(cmd *cobra.Command) (zerolog.Logger, error) {
	return logging.New(logging.Options{
		Level:         f.logLevel,
		HumanReadable: f.logHuman,
		Writer:        cmd.ErrOrStderr(),
	})
}
