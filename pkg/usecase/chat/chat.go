package chat

import (
	"sync"
	"time"

	"github.com/m-mizutani/nova/pkg/interfaces"
	"github.com/m-mizutani/nova/pkg/policy"
)

const (
	DefaultHistoryLimit = 20
	DefaultMemoryTopK   = 1
	DefaultTailTimeout  = 30 * time.Second
)

// UseCase is the memory orchestrator. It keeps no per-request state between
// calls; concurrent calls for the same chat are independent.
type UseCase struct {
	store     interfaces.MessageStore
	index     interfaces.MemoryIndex
	embedder  interfaces.Embedder
	generator interfaces.Generator
	policy    *policy.Policy

	historyLimit int
	memoryTopK   int
	tailTimeout  time.Duration

	// tails tracks post-emission persistence running in the background
	tails sync.WaitGroup
}

// Option is a functional option for UseCase
type Option func(*UseCase)

// WithHistoryLimit sets how many recent messages form the short-term context
func WithHistoryLimit(n int) Option {
	return func(uc *UseCase) {
		uc.historyLimit = n
	}
}

// WithMemoryTopK sets how many long-term memories are recalled per message
func WithMemoryTopK(k int) Option {
	return func(uc *UseCase) {
		uc.memoryTopK = k
	}
}

// WithPolicy sets an admission policy evaluated before an inbound message is stored
func WithPolicy(p *policy.Policy) Option {
	return func(uc *UseCase) {
		uc.policy = p
	}
}

// WithTailTimeout bounds the background persistence that follows each reply
func WithTailTimeout(d time.Duration) Option {
	return func(uc *UseCase) {
		uc.tailTimeout = d
	}
}

// New creates a new chat UseCase instance
func New(
	store interfaces.MessageStore,
	index interfaces.MemoryIndex,
	embedder interfaces.Embedder,
	generator interfaces.Generator,
	opts ...Option,
) *UseCase {
	uc := &UseCase{
		store:        store,
		index:        index,
		embedder:     embedder,
		generator:    generator,
		historyLimit: DefaultHistoryLimit,
		memoryTopK:   DefaultMemoryTopK,
		tailTimeout:  DefaultTailTimeout,
	}

	for _, opt := range opts {
		opt(uc)
	}

	if uc.historyLimit <= 0 {
		uc.historyLimit = DefaultHistoryLimit
	}
	if uc.memoryTopK <= 0 {
		uc.memoryTopK = DefaultMemoryTopK
	}

	return uc
}

// Wait blocks until every background tail started so far has finished
func (uc *UseCase) Wait() {
	uc.tails.Wait()
}
