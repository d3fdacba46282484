package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/nova/pkg/model"
	"github.com/m-mizutani/nova/pkg/usecase/history"
	"github.com/urfave/cli/v3"
)

func historyCommand() *cli.Command {
	var (
		cfg    config
		chatID string
		userID string
		limit  int64
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "chat-id",
			Aliases:     []string{"c"},
			Usage:       "Chat to show",
			Sources:     cli.EnvVars("NOVA_CHAT_ID"),
			Destination: &chatID,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "user-id",
			Aliases:     []string{"u"},
			Usage:       "Only show the chat if it belongs to this user",
			Sources:     cli.EnvVars("NOVA_USER_ID"),
			Destination: &userID,
		},
		&cli.IntFlag{
			Name:        "limit",
			Usage:       "Maximum number of messages to show",
			Value:       history.DefaultListLimit,
			Sources:     cli.EnvVars("NOVA_HISTORY_LIST_LIMIT"),
			Destination: &limit,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "history",
		Usage: "Show recent messages of a chat",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			repos, err := cfg.newRepositories(ctx)
			if err != nil {
				return err
			}
			defer repos.close()

			msgs, err := history.New(repos.store).List(ctx, model.ChatID(chatID), model.UserID(userID), int(limit))
			if err != nil {
				return goerr.Wrap(err, "failed to list history")
			}

			for _, msg := range msgs {
				fmt.Fprintf(c.Root().Writer, "%s\t%s\t%s\n",
					msg.CreatedAt.Format(time.RFC3339), msg.Role, msg.Content)
			}
			return nil
		},
	}
}

func exportCommand() *cli.Command {
	var (
		cfg    config
		chatID string
		userID string
		bucket string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "chat-id",
			Aliases:     []string{"c"},
			Usage:       "Chat to export",
			Sources:     cli.EnvVars("NOVA_CHAT_ID"),
			Destination: &chatID,
			Required:    true,
		},
		&cli.StringFlag{
			Name:        "user-id",
			Aliases:     []string{"u"},
			Usage:       "Only export the chat if it belongs to this user",
			Sources:     cli.EnvVars("NOVA_USER_ID"),
			Destination: &userID,
		},
		&cli.StringFlag{
			Name:        "bucket",
			Aliases:     []string{"b"},
			Usage:       "Cloud Storage bucket for transcripts",
			Sources:     cli.EnvVars("NOVA_EXPORT_BUCKET"),
			Destination: &bucket,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "export",
		Usage: "Export a chat transcript to Cloud Storage",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			if err := requireFlag("bucket", bucket); err != nil {
				return err
			}

			repos, err := cfg.newRepositories(ctx)
			if err != nil {
				return err
			}
			defer repos.close()

			storage, err := cfg.newStorage(ctx, bucket)
			if err != nil {
				return err
			}

			key, err := history.New(repos.store, history.WithStorage(storage)).Export(ctx, model.ChatID(chatID), model.UserID(userID))
			if err != nil {
				return goerr.Wrap(err, "failed to export chat")
			}

			fmt.Fprintf(c.Root().Writer, "gs://%s/%s\n", bucket, key)
			return nil
		},
	}
}

func chatsCommand() *cli.Command {
	var (
		cfg    config
		userID string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "user-id",
			Aliases:     []string{"u"},
			Usage:       "Owner of the chats",
			Sources:     cli.EnvVars("NOVA_USER_ID"),
			Destination: &userID,
			Required:    true,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)

	return &cli.Command{
		Name:  "chats",
		Usage: "List chats of a user, most recently updated first",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			repos, err := cfg.newRepositories(ctx)
			if err != nil {
				return err
			}
			defer repos.close()

			chats, err := history.New(repos.store).ListChats(ctx, model.UserID(userID))
			if err != nil {
				return goerr.Wrap(err, "failed to list chats")
			}

			for _, chat := range chats {
				fmt.Fprintf(c.Root().Writer, "%s\t%s\t%s\n",
					chat.UpdatedAt.Format(time.RFC3339), chat.ID, chat.Title)
			}
			return nil
		},
	}
}
