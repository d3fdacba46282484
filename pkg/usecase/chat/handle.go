package chat

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/nova/pkg/interfaces"
	"github.com/m-mizutani/nova/pkg/model"
	"github.com/m-mizutani/nova/pkg/policy"
	"github.com/m-mizutani/nova/pkg/utils/logging"
	"golang.org/x/sync/errgroup"
)

// InboundInput is one user message arriving on a session
type InboundInput struct {
	ChatID model.ChatID
	UserID model.UserID
	Text   string
}

// Result describes a handled inbound message
type Result struct {
	Inbound  *model.Message
	Reply    string
	Memories []*model.MemoryMatch
	Turns    []model.Turn
}

// ensureChat checks that the sender owns the chat. An unknown chat is created
// on its first message and owned by its sender. A chat owned by someone else
// is reported as not found so that its existence is not disclosed.
func (uc *UseCase) ensureChat(ctx context.Context, input InboundInput) error {
	chat, err := uc.store.GetChat(ctx, input.ChatID)
	if err != nil {
		if !goerr.HasTag(err, model.ErrTagNotFound) {
			return goerr.Wrap(err, "failed to get chat",
				goerr.V("chat_id", input.ChatID),
				goerr.T(model.ErrTagStoreUnavailable))
		}

		chat, err = uc.store.CreateChat(ctx, &model.Chat{
			ID:     input.ChatID,
			UserID: input.UserID,
			Title:  model.TitleFromText(input.Text),
		})
		if err != nil {
			return goerr.Wrap(err, "failed to create chat",
				goerr.V("chat_id", input.ChatID),
				goerr.T(model.ErrTagStoreUnavailable))
		}
		logging.From(ctx).Info("chat created", "title", chat.Title)
	}

	if !chat.OwnedBy(input.UserID) {
		return goerr.New("chat not found",
			goerr.V("chat_id", input.ChatID),
			goerr.V("user_id", input.UserID),
			goerr.T(model.ErrTagNotFound))
	}
	return nil
}

type embedResult struct {
	vector []float32
	err    error
}

// HandleInboundMessage runs one conversational turn for the owner of the
// chat: it stores the inbound message, recalls long-term memories and recent
// history concurrently, asks the generator for a reply and delivers it via
// emitter. Persisting and indexing the reply happens after emission in a
// background tail whose failures never reach the caller.
func (uc *UseCase) HandleInboundMessage(ctx context.Context, input InboundInput, emitter interfaces.Emitter) (*Result, error) {
	logger := logging.From(ctx).With("chat_id", input.ChatID, "user_id", input.UserID)
	ctx = logging.With(ctx, logger)

	if input.ChatID == "" || input.UserID == "" {
		return nil, goerr.New("chat ID and user ID are required",
			goerr.V("chat_id", input.ChatID),
			goerr.V("user_id", input.UserID),
			goerr.T(model.ErrTagInvalidInput))
	}
	if strings.TrimSpace(input.Text) == "" {
		return nil, goerr.New("message text is empty",
			goerr.V("chat_id", input.ChatID),
			goerr.T(model.ErrTagInvalidInput))
	}

	if err := uc.ensureChat(ctx, input); err != nil {
		return nil, err
	}

	if uc.policy != nil {
		if err := uc.policy.Evaluate(ctx, policy.Input{
			ChatID: string(input.ChatID),
			UserID: string(input.UserID),
			Text:   input.Text,
		}); err != nil {
			return nil, err
		}
	}

	// Embedding has no dependency on the stored message, so it starts first
	// and overlaps with persistence and history retrieval.
	embedCh := make(chan embedResult, 1)
	go func() {
		vector, err := uc.embedder.Embed(ctx, input.Text)
		embedCh <- embedResult{vector: vector, err: err}
	}()

	inbound, err := uc.store.CreateMessage(ctx, &model.Message{
		ChatID:  input.ChatID,
		UserID:  input.UserID,
		Role:    model.RoleUser,
		Content: input.Text,
	})
	if err != nil {
		return nil, goerr.Wrap(err, "failed to store inbound message",
			goerr.V("chat_id", input.ChatID),
			goerr.T(model.ErrTagStoreUnavailable))
	}
	logger.Debug("inbound message stored", "message_id", inbound.ID)

	var (
		matches  []*model.MemoryMatch
		history  []*model.Message
		inEmbed  embedResult
		embedded bool
	)

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		select {
		case inEmbed = <-embedCh:
			embedded = true
		case <-egCtx.Done():
			return nil
		}
		if inEmbed.err != nil {
			logger.Warn("failed to embed inbound message, continuing without memories", "error", inEmbed.err)
			return nil
		}

		found, err := uc.index.QueryMemory(egCtx, inEmbed.vector, uc.memoryTopK, model.UserFilter(input.UserID))
		if err != nil {
			logger.Warn("failed to query memories, continuing without memories", "error", err)
			return nil
		}
		matches = found
		return nil
	})

	eg.Go(func() error {
		msgs, err := uc.store.ListRecentMessages(egCtx, input.ChatID, uc.historyLimit)
		if err != nil {
			return goerr.Wrap(err, "failed to list recent messages",
				goerr.V("chat_id", input.ChatID),
				goerr.T(model.ErrTagStoreUnavailable))
		}
		history = msgs
		return nil
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	logger.Debug("context recalled", "memories", len(matches), "history", len(history))

	turns := assembleContext(ctx, matches, withInbound(history, inbound, uc.historyLimit))

	reply, err := uc.generator.Generate(ctx, turns)
	if err != nil {
		if !goerr.HasTag(err, model.ErrTagGenerationRejected) && !goerr.HasTag(err, model.ErrTagGenerationUnavailable) {
			err = goerr.Wrap(err, "failed to generate reply", goerr.T(model.ErrTagGenerationUnavailable))
		}
		return nil, goerr.Wrap(err, "generation failed", goerr.V("chat_id", input.ChatID))
	}

	// A caller that gave up during generation gets no reply and no assistant message
	if err := ctx.Err(); err != nil {
		return nil, goerr.Wrap(err, "turn cancelled before emission", goerr.V("chat_id", input.ChatID))
	}

	result := &Result{
		Inbound:  inbound,
		Reply:    reply,
		Memories: matches,
		Turns:    turns,
	}

	emitErr := emitter.Emit(ctx, model.OutboundEvent{ChatID: input.ChatID, Text: reply})
	if emitErr != nil {
		logger.Warn("failed to emit reply", "error", emitErr)
	}

	var inboundVector []float32
	if embedded && inEmbed.err == nil {
		inboundVector = inEmbed.vector
	}
	uc.startTail(ctx, inbound, inboundVector, reply)

	if emitErr != nil {
		return result, goerr.Wrap(emitErr, "failed to emit reply",
			goerr.V("chat_id", input.ChatID),
			goerr.T(model.ErrTagEmitFailed))
	}

	return result, nil
}
