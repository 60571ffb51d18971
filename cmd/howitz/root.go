package main

import (
	"sync"

	"github.com/howitz/howitz/internal/logging"
	"github.com/spf13/cobra"
)

// annotationStructuredLog marks commands whose output is slog records.
const annotationStructuredLog = "howitz/structured-log"

var rootCmd = &cobra.Command{
	Use:           "howitz",
	Short:         "Howitz is a web front-end for Zino network events.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ctx := commandExecutionContext{
			CommandPath:       cmd.CommandPath(),
			UsesStructuredLog: commandUsesStructuredLogging(cmd),
		}
		setCommandExecutionContext(ctx)
		if !ctx.UsesStructuredLog {
			return nil
		}
		_, err := logging.BootstrapFromEnv(logging.BootstrapOptions{
			Command: ctx.CommandPath,
			Writer:  cmd.ErrOrStderr(),
			DevMode: devMode(),
		})
		return err
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, usersCmd)
}

type commandExecutionContext struct {
	CommandPath       string
	UsesStructuredLog bool
}

var (
	commandContextMu sync.RWMutex
	commandContext   commandExecutionContext
)

func setCommandExecutionContext(ctx commandExecutionContext) {
	commandContextMu.Lock()
	defer commandContextMu.Unlock()
	commandContext = ctx
}

func currentCommandExecutionContext() commandExecutionContext {
	commandContextMu.RLock()
	defer commandContextMu.RUnlock()
	return commandContext
}

func resetCommandExecutionContext() {
	setCommandExecutionContext(commandExecutionContext{})
}

func commandUsesStructuredLogging(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations[annotationStructuredLog] == "true" {
			return true
		}
	}
	return false
}

func structuredLog() map[string]string {
	return map[string]string{annotationStructuredLog: "true"}
}
