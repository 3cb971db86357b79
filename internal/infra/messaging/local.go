package messaging

import (
	"context"
	"sync"

	domain "github.com/bryanwahyu/mediscan/internal/domain/consultations"
)

// LocalBroker delivers messages inside one process.
type LocalBroker struct {
	mu   sync.RWMutex
	next int
	subs map[domain.ID]map[int]func(*domain.Message)
}

func NewLocalBroker() *LocalBroker {
	return &LocalBroker{subs: map[domain.ID]map[int]func(*domain.Message){}}
}

func (b *LocalBroker) Publish(_ context.Context, m *domain.Message) error {
	b.mu.RLock()
	fns := make([]func(*domain.Message), 0, len(b.subs[m.ConsultationID]))
	for _, fn := range b.subs[m.ConsultationID] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		fn(m)
	}
	return nil
}

func (b *LocalBroker) Subscribe(ctx context.Context, id domain.ID, fn func(*domain.Message)) (func(), error) {
	b.mu.Lock()
	b.next++
	n := b.next
	if b.subs[id] == nil {
		b.subs[id] = map[int]func(*domain.Message){}
	}
	b.subs[id][n] = fn
	b.mu.Unlock()

	return unsubscribeOnDone(ctx, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs[id], n)
		if len(b.subs[id]) == 0 {
			delete(b.subs, id)
		}
	}), nil
}

// unsubscribeOnDone runs stop once, either when the returned func is called
// or when ctx ends.
func unsubscribeOnDone(ctx context.Context, stop func()) func() {
	var once sync.Once
	done := make(chan struct{})
	cancel := func() {
		once.Do(func() {
			stop()
			close(done)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-done:
		}
	}()
	return cancel
}
