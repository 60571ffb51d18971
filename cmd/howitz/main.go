package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/howitz/howitz/internal/config"
	"github.com/howitz/howitz/internal/logging"
	"github.com/jackc/pgx/v5/pgconn"
)

const exitCanceled = 130

func main() {
	if code := runMain(Execute, os.Stderr); code != 0 {
		os.Exit(code)
	}
}

func runMain(execute func() error, stderr io.Writer) int {
	err := execute()
	if err == nil {
		return 0
	}

	var ee *exitError
	switch {
	case errors.As(err, &ee):
		if !ee.silent {
			if ee.err != nil {
				err = ee.err
			}
			emitCommandError(err, "command failed", ee.code, stderr)
		}
		return ee.code
	case errors.Is(err, context.Canceled):
		emitCommandError(err, "command canceled", exitCanceled, stderr)
		return exitCanceled
	default:
		emitCommandError(err, "command failed", 1, stderr)
		return 1
	}
}

// commandHint names the usual operator fix for err, or "" when there is none.
func commandHint(err error) string {
	if errors.Is(err, config.ErrMissingDatabaseURL) {
		return "set DATABASE_URL in the environment or in .env"
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42P01":
			return "the users or sessions table is missing; run `howitz migrate`"
		case "3D000":
			return "the database named in DATABASE_URL does not exist"
		case "28P01":
			return "check the credentials in DATABASE_URL"
		}
	}
	return ""
}

// emitCommandError writes a JSON or text log record for serve and migrate,
// and a plain line for the interactive users commands.
func emitCommandError(err error, message string, exitCode int, stderr io.Writer) {
	cmdCtx := currentCommandExecutionContext()
	hint := commandHint(err)

	if cmdCtx.UsesStructuredLog {
		attrs := []any{"exit_code", exitCode, "error", err}
		if hint != "" {
			attrs = append(attrs, "hint", hint)
		}
		fatalLogger(cmdCtx, stderr).Error(message, attrs...)
		return
	}

	if exitCode == exitCanceled {
		fmt.Fprintln(stderr, "canceled")
		return
	}
	fmt.Fprintln(stderr, err)
	if hint != "" {
		fmt.Fprintf(stderr, "hint: %s\n", hint)
	}
}

func fatalLogger(cmdCtx commandExecutionContext, stderr io.Writer) *slog.Logger {
	cfg, err := logging.LoadConfigFromEnv()
	if err != nil {
		cfg = logging.DefaultConfig()
	}
	return logging.NewLogger(cfg, stderr, cmdCtx.CommandPath)
}
