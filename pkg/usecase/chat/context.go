package chat

import (
	"bytes"
	"context"
	_ "embed"
	"strings"
	"text/template"

	"github.com/m-mizutani/nova/pkg/model"
	"github.com/m-mizutani/nova/pkg/utils/logging"
)

//go:embed prompt/memory.md
var memoryPromptRaw string

var memoryPromptTmpl = template.Must(template.New("memory").Parse(memoryPromptRaw))

// memoryTurn renders recalled memories as one user turn framed as optional
// background. It returns false when there is nothing to include.
func memoryTurn(ctx context.Context, matches []*model.MemoryMatch) (model.Turn, bool) {
	var memories []string
	for _, m := range matches {
		if text := strings.TrimSpace(m.Text()); text != "" {
			memories = append(memories, text)
		}
	}
	if len(memories) == 0 {
		return model.Turn{}, false
	}

	var buf bytes.Buffer
	if err := memoryPromptTmpl.Execute(&buf, struct{ Memories []string }{memories}); err != nil {
		logging.From(ctx).Warn("failed to render memory prompt, continuing without memories",
			"error", err,
			"memories", len(memories),
		)
		return model.Turn{}, false
	}

	return model.Turn{Role: model.RoleUser, Text: buf.String()}, true
}

// assembleContext builds the context window: memory hint first, then history
// in chronological order. Messages with blank content are skipped.
func assembleContext(ctx context.Context, matches []*model.MemoryMatch, history []*model.Message) []model.Turn {
	turns := make([]model.Turn, 0, len(history)+1)
	if turn, ok := memoryTurn(ctx, matches); ok {
		turns = append(turns, turn)
	}

	for _, msg := range history {
		if strings.TrimSpace(msg.Content) == "" {
			continue
		}
		turns = append(turns, model.Turn{Role: msg.Role, Text: msg.Content})
	}

	return turns
}

// withInbound makes sure the stored inbound message is the newest entry of
// history. A store that has not caught up with its own write returns history
// without it.
func withInbound(history []*model.Message, inbound *model.Message, limit int) []*model.Message {
	for _, msg := range history {
		if msg.ID == inbound.ID {
			return history
		}
	}

	history = append(history, inbound)
	if len(history) > limit {
		history = history[len(history)-limit:]
	}
	return history
}
