package consultations

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("consultation not found")

type Repository interface {
	Save(ctx context.Context, c *Consultation) error
	Get(ctx context.Context, id ID) (*Consultation, error)
	SaveMessage(ctx context.Context, m *Message) error
	// ListMessages returns messages oldest first.
	ListMessages(ctx context.Context, id ID, limit int) ([]*Message, error)
}

// Broker fans stored messages out to live subscribers.
type Broker interface {
	Publish(ctx context.Context, m *Message) error
	// Subscribe calls fn for each message published on id until the returned
	// cancel func is called or ctx ends.
	Subscribe(ctx context.Context, id ID, fn func(*Message)) (func(), error)
}
