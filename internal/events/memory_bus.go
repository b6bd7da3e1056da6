package events

import (
	"context"
	"sync"

	"github.com/datalinker/correlation-backend/internal/domain"
)

// MemoryBus is an in-process Bus for tests and single-node runs.
type MemoryBus struct {
	mu        sync.Mutex
	closed    bool
	published []domain.Event
	handlers  []func(ev domain.Event)
}

func NewMemoryBus() *MemoryBus { return &MemoryBus{} }

func (b *MemoryBus) Publish(_ context.Context, ev domain.Event) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.published = append(b.published, ev)
	handlers := append([]func(ev domain.Event){}, b.handlers...)
	b.mu.Unlock()

	for _, h := range handlers {
		h(ev)
	}
	return nil
}

func (b *MemoryBus) Subscribe(_ context.Context, onEvent func(ev domain.Event)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, onEvent)
	return nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

// Published returns a copy of every event seen so far.
func (b *MemoryBus) Published() []domain.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]domain.Event, len(b.published))
	copy(out, b.published)
	return out
}
