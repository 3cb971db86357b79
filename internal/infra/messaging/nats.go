// Package messaging fans consultation messages out to live subscribers.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	domain "github.com/bryanwahyu/mediscan/internal/domain/consultations"
)

type NATSOptions struct {
	ConnectTimeout time.Duration
	ReconnectWait  time.Duration
	MaxReconnects  int
}

// NATSBroker publishes each message on "<prefix>.<consultation id>".
type NATSBroker struct {
	conn   *nats.Conn
	prefix string
	log    logrus.FieldLogger
}

func NewNATSBroker(url, prefix string, opts NATSOptions, log logrus.FieldLogger) (*NATSBroker, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 2 * time.Second
	}
	if opts.ReconnectWait <= 0 {
		opts.ReconnectWait = 2 * time.Second
	}
	if opts.MaxReconnects <= 0 {
		opts.MaxReconnects = 60
	}
	if prefix == "" {
		prefix = "consultations"
	}

	conn, err := nats.Connect(
		url,
		nats.Name("mediscan"),
		nats.Timeout(opts.ConnectTimeout),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.WithError(err).Warn("nats disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.WithField("url", nc.ConnectedUrl()).Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSBroker{conn: conn, prefix: prefix, log: log}, nil
}

func (b *NATSBroker) subject(id domain.ID) string {
	return b.prefix + "." + string(id)
}

func (b *NATSBroker) Publish(_ context.Context, m *domain.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	if err := b.conn.Publish(b.subject(m.ConsultationID), data); err != nil {
		return fmt.Errorf("nats publish: %w", err)
	}
	return nil
}

func (b *NATSBroker) Subscribe(ctx context.Context, id domain.ID, fn func(*domain.Message)) (func(), error) {
	sub, err := b.conn.Subscribe(b.subject(id), func(msg *nats.Msg) {
		var m domain.Message
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			b.log.WithError(err).Warn("drop undecodable consultation message")
			return
		}
		fn(&m)
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe: %w", err)
	}
	if err := b.conn.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return nil, fmt.Errorf("nats flush: %w", err)
	}
	return unsubscribeOnDone(ctx, func() { _ = sub.Unsubscribe() }), nil
}

// Check implements middleware.HealthChecker.
func (b *NATSBroker) Check(context.Context) error {
	if !b.conn.IsConnected() {
		return fmt.Errorf("nats status %s", b.conn.Status())
	}
	return nil
}

func (b *NATSBroker) Close() {
	if b.conn != nil {
		b.conn.Close()
	}
}
