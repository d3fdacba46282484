package interfaces

import (
	"context"

	"github.com/m-mizutani/nova/pkg/model"
)

// Embedder turns text into a fixed-length vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Generator turns an ordered list of turns into a reply
type Generator interface {
	Generate(ctx context.Context, turns []model.Turn) (string, error)
}

// Emitter delivers an outbound event to the originating session
type Emitter interface {
	Emit(ctx context.Context, event model.OutboundEvent) error
}

// EmitterFunc adapts a function to Emitter
type EmitterFunc func(ctx context.Context, event model.OutboundEvent) error

func (f EmitterFunc) Emit(ctx context.Context, event model.OutboundEvent) error {
	return f(ctx, event)
}
