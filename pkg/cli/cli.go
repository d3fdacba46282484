package cli

import (
	"context"
	"os"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/nova/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

type Error struct {
	Code    int
	Message string
}

func Run(ctx context.Context, argv []string) *Error {
	var (
		logLevel  string
		logFormat string
	)

	cmd := &cli.Command{
		Name:  "nova",
		Usage: "Conversational assistant with long-term memory",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "log-level",
				Aliases:     []string{"l"},
				Usage:       "Log level (debug, info, warn, error)",
				Value:       "info",
				Sources:     cli.EnvVars("NOVA_LOG_LEVEL"),
				Destination: &logLevel,
			},
			&cli.StringFlag{
				Name:        "log-format",
				Usage:       "Log format (console, json)",
				Value:       string(logging.FormatConsole),
				Sources:     cli.EnvVars("NOVA_LOG_FORMAT"),
				Destination: &logFormat,
			},
		},
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			format, err := logging.ParseFormat(logFormat)
			if err != nil {
				return ctx, err
			}
			logger := logging.NewWithFormat(logLevel, format, os.Stderr)
			logging.SetDefault(logger)
			return logging.With(ctx, logger), nil
		},
		Commands: []*cli.Command{
			serveCommand(),
			chatCommand(),
			historyCommand(),
			chatsCommand(),
			exportCommand(),
			tokenCommand(),
		},
	}

	if err := cmd.Run(ctx, argv); err != nil {
		logging.Default().Error("command failed", "error", err)
		return &Error{
			Code:    1,
			Message: err.Error(),
		}
	}

	return nil
}

// requireFlag reports a missing value in the same shape for every command
func requireFlag(name, value string) error {
	if value == "" {
		return goerr.New("flag is required", goerr.V("flag", name))
	}
	return nil
}
