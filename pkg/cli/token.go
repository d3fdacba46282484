package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/nova/pkg/controller/ws"
	"github.com/m-mizutani/nova/pkg/model"
	"github.com/urfave/cli/v3"
)

func tokenCommand() *cli.Command {
	var (
		userID    string
		jwtSecret string
		ttl       time.Duration
	)

	return &cli.Command{
		Name:  "token",
		Usage: "Issue a session token for local testing",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "user-id",
				Aliases:     []string{"u"},
				Usage:       "User ID embedded in the token",
				Sources:     cli.EnvVars("NOVA_USER_ID"),
				Destination: &userID,
				Required:    true,
			},
			&cli.StringFlag{
				Name:        "jwt-secret",
				Usage:       "HMAC secret used to sign the token",
				Sources:     cli.EnvVars("NOVA_JWT_SECRET", "JWT_SECRET"),
				Destination: &jwtSecret,
				Required:    true,
			},
			&cli.DurationFlag{
				Name:        "ttl",
				Usage:       "Token lifetime (0 for no expiry)",
				Value:       24 * time.Hour,
				Destination: &ttl,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			auth, err := ws.NewAuthenticator(jwtSecret)
			if err != nil {
				return err
			}

			token, err := auth.Issue(model.UserID(userID), ttl)
			if err != nil {
				return err
			}

			fmt.Fprintln(c.Root().Writer, token)
			return nil
		},
	}
}
