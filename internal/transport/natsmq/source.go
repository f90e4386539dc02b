package natsmq

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/driverpulse/sentiment-server/internal/ingest"
	"github.com/nats-io/nats.go/jetstream"
)

const fetchMaxWait = 5 * time.Second

// Source adapts a durable JetStream consumer to the ingest.Source contract.
type Source struct {
	consumer jetstream.Consumer
}

// NewSource creates or updates the durable pull consumer on the feedback
// subject with explicit acknowledgements.
func (c *Client) NewSource(ctx context.Context) (*Source, error) {
	consumer, err := c.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		Durable:       c.opts.ConsumerName,
		FilterSubject: c.opts.Subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       c.opts.AckWait,
		MaxDeliver:    c.opts.MaxDeliveries,
	})
	if err != nil {
		return nil, fmt.Errorf("ensure consumer %s: %w", c.opts.ConsumerName, err)
	}
	return &Source{consumer: consumer}, nil
}

// Fetch pulls up to batch messages, waiting briefly when the stream is
// idle. An empty batch is not an error.
func (s *Source) Fetch(ctx context.Context, batch int) ([]ingest.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	msgs, err := s.consumer.Fetch(batch, jetstream.FetchMaxWait(fetchMaxWait))
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	var out []ingest.Message
	for msg := range msgs.Messages() {
		out = append(out, &message{msg: msg})
	}
	if err := msgs.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return out, fmt.Errorf("message batch: %w", err)
	}
	return out, nil
}

// message wraps a jetstream.Msg as an ingest.Message.
type message struct {
	msg jetstream.Msg
}

func (m *message) Data() []byte {
	return m.msg.Data()
}

// Deliveries reports how many times the broker has delivered this message.
func (m *message) Deliveries() uint64 {
	meta, err := m.msg.Metadata()
	if err != nil {
		return 1
	}
	return meta.NumDelivered
}

func (m *message) Ack() error {
	return m.msg.Ack()
}

func (m *message) Nak() error {
	return m.msg.Nak()
}

func (m *message) Term() error {
	return m.msg.Term()
}
