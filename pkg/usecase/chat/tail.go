package chat

import (
	"context"
	"sync"

	"github.com/m-mizutani/nova/pkg/model"
	"github.com/m-mizutani/nova/pkg/utils/logging"
)

// startTail persists and indexes the reply, and indexes the inbound message,
// without blocking the caller. It is detached from ctx cancellation so a
// closed session does not abort it, and bounded by tailTimeout instead.
func (uc *UseCase) startTail(ctx context.Context, inbound *model.Message, inboundVector []float32, reply string) {
	uc.tails.Add(1)
	go func() {
		defer uc.tails.Done()

		tailCtx := context.WithoutCancel(ctx)
		if uc.tailTimeout > 0 {
			var cancel context.CancelFunc
			tailCtx, cancel = context.WithTimeout(tailCtx, uc.tailTimeout)
			defer cancel()
		}

		uc.runTail(tailCtx, inbound, inboundVector, reply)
	}()
}

func (uc *UseCase) runTail(ctx context.Context, inbound *model.Message, inboundVector []float32, reply string) {
	logger := logging.From(ctx)

	if inboundVector != nil {
		if err := uc.index.UpsertMemory(ctx, model.NewMemoryRecord(inbound, inboundVector)); err != nil {
			logger.Warn("failed to index inbound message", "error", err, "message_id", inbound.ID)
		}
	}

	var (
		wg       sync.WaitGroup
		stored   *model.Message
		storeErr error
		vector   []float32
		embedErr error
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		stored, storeErr = uc.store.CreateMessage(ctx, &model.Message{
			ChatID:  inbound.ChatID,
			UserID:  inbound.UserID,
			Role:    model.RoleAssistant,
			Content: reply,
		})
	}()
	go func() {
		defer wg.Done()
		vector, embedErr = uc.embedder.Embed(ctx, reply)
	}()
	wg.Wait()

	if storeErr != nil {
		logger.Warn("failed to store reply", "error", storeErr)
	}
	if embedErr != nil {
		logger.Warn("failed to embed reply", "error", embedErr)
	}
	if storeErr != nil || embedErr != nil {
		return
	}

	if err := uc.index.UpsertMemory(ctx, model.NewMemoryRecord(stored, vector)); err != nil {
		logger.Warn("failed to index reply", "error", err, "message_id", stored.ID)
		return
	}
	logger.Debug("reply persisted", "message_id", stored.ID)
}
