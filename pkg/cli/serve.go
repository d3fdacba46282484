package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/nova/pkg/controller/ws"
	"github.com/m-mizutani/nova/pkg/usecase/history"
	"github.com/m-mizutani/nova/pkg/utils/logging"
	"github.com/urfave/cli/v3"
)

const shutdownTimeout = 30 * time.Second

func serveCommand() *cli.Command {
	var (
		cfg            config
		addr           string
		jwtSecret      string
		allowedOrigins []string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "addr",
			Usage:       "Listen address",
			Value:       ":8080",
			Sources:     cli.EnvVars("NOVA_ADDR"),
			Destination: &addr,
		},
		&cli.StringFlag{
			Name:        "jwt-secret",
			Usage:       "HMAC secret used to verify session tokens",
			Sources:     cli.EnvVars("NOVA_JWT_SECRET", "JWT_SECRET"),
			Destination: &jwtSecret,
			Required:    true,
		},
		&cli.StringSliceFlag{
			Name:        "allowed-origin",
			Usage:       "Origin allowed to open websocket sessions (repeatable)",
			Sources:     cli.EnvVars("NOVA_ALLOWED_ORIGINS"),
			Destination: &allowedOrigins,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, chatFlags(&cfg)...)

	return &cli.Command{
		Name:  "serve",
		Usage: "Run the realtime session gateway",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			logger := logging.From(ctx)

			auth, err := ws.NewAuthenticator(jwtSecret)
			if err != nil {
				return err
			}

			uc, repos, cleanup, err := cfg.newChatUseCase(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			srv := ws.New(auth, uc,
				ws.WithHistory(history.New(repos.store)),
				ws.WithAllowedOrigins(allowedOrigins),
			)

			httpServer := &http.Server{
				Addr:              addr,
				Handler:           srv,
				ReadHeaderTimeout: 10 * time.Second,
				BaseContext: func(_ net.Listener) context.Context {
					return ctx
				},
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("gateway listening", "addr", addr)
				if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return goerr.Wrap(err, "gateway stopped", goerr.V("addr", addr))
				}
			case <-ctx.Done():
				logger.Info("shutting down gateway")
			}

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				return goerr.Wrap(err, "failed to shut down gateway")
			}

			// cleanup waits for replies still being persisted
			return nil
		},
	}
}
