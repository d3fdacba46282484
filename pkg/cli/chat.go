package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/chzyer/readline"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/nova/pkg/interfaces"
	"github.com/m-mizutani/nova/pkg/model"
	"github.com/m-mizutani/nova/pkg/usecase/chat"
	"github.com/urfave/cli/v3"
)

func chatCommand() *cli.Command {
	var (
		cfg    config
		chatID string
		userID string
	)

	flags := []cli.Flag{
		&cli.StringFlag{
			Name:        "chat-id",
			Aliases:     []string{"c"},
			Usage:       "Chat to continue (a new chat is started if empty)",
			Sources:     cli.EnvVars("NOVA_CHAT_ID"),
			Destination: &chatID,
		},
		&cli.StringFlag{
			Name:        "user-id",
			Aliases:     []string{"u"},
			Usage:       "User whose memories are recalled",
			Value:       "local",
			Sources:     cli.EnvVars("NOVA_USER_ID"),
			Destination: &userID,
		},
	}
	flags = append(flags, globalFlags(&cfg)...)
	flags = append(flags, llmFlags(&cfg)...)
	flags = append(flags, chatFlags(&cfg)...)

	return &cli.Command{
		Name:  "chat",
		Usage: "Interactive chat through the memory pipeline",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, _, cleanup, err := cfg.newChatUseCase(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			if chatID == "" {
				chatID = string(model.NewMessageID())
			}

			rl, err := readline.NewEx(&readline.Config{
				Prompt:          "> ",
				InterruptPrompt: "^C",
				EOFPrompt:       "exit",
				Stdout:          c.Root().Writer,
			})
			if err != nil {
				return goerr.Wrap(err, "failed to initialize readline")
			}
			defer rl.Close()

			w := c.Root().Writer
			fmt.Fprintf(w, "Chat %s started. Type 'exit' to quit.\n", chatID)

			for {
				line, err := rl.Readline()
				if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
					break
				}
				if err != nil {
					return goerr.Wrap(err, "failed to read input")
				}

				message := strings.TrimSpace(line)
				if message == "exit" {
					break
				}
				if message == "" {
					continue
				}

				if err := send(ctx, uc, w, chat.InboundInput{
					ChatID: model.ChatID(chatID),
					UserID: model.UserID(userID),
					Text:   message,
				}); err != nil {
					fmt.Fprintf(w, "error: %s\n", model.ErrorCode(err))
				}
			}

			fmt.Fprintf(w, "\nChat session completed\n")
			return nil
		},
	}
}

// send runs one turn and prints the reply. A spinner is shown while the
// reply is being generated.
func send(ctx context.Context, uc *chat.UseCase, w io.Writer, input chat.InboundInput) error {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = " thinking..."
	s.Start()

	emitter := interfaces.EmitterFunc(func(ctx context.Context, event model.OutboundEvent) error {
		s.Stop()
		_, err := fmt.Fprintf(w, "%s\n\n", event.Text)
		return err
	})

	_, err := uc.HandleInboundMessage(ctx, input, emitter)
	s.Stop()
	return err
}
