// Package natsmq wires the pipeline to NATS JetStream: the durable inbound
// feedback stream, the dead-letter subject and the alert subject.
package natsmq

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

const (
	DefaultStreamName    = "FEEDBACK"
	DefaultSubject       = "feedback.events"
	DefaultDLQSubject    = "feedback.dlq"
	DefaultAlertSubject  = "feedback.alerts"
	DefaultConsumerName  = "sentiment-processor"
	defaultAckWait       = 60 * time.Second
	defaultConnectWait   = 5 * time.Second
	defaultMaxDeliveries = 5
)

// Options describe the JetStream topology the client ensures on connect.
type Options struct {
	URL           string
	StreamName    string
	Subject       string
	DLQSubject    string
	AlertSubject  string
	ConsumerName  string
	AckWait       time.Duration
	MaxDeliveries int
}

// Option overrides a single field of Options.
type Option func(*Options)

func WithURL(url string) Option {
	return func(o *Options) { o.URL = url }
}

func WithStream(name, subject string) Option {
	return func(o *Options) {
		o.StreamName = name
		o.Subject = subject
	}
}

func WithDLQSubject(subject string) Option {
	return func(o *Options) { o.DLQSubject = subject }
}

func WithAlertSubject(subject string) Option {
	return func(o *Options) { o.AlertSubject = subject }
}

func WithConsumerName(name string) Option {
	return func(o *Options) { o.ConsumerName = name }
}

func WithAckWait(d time.Duration) Option {
	return func(o *Options) { o.AckWait = d }
}

func WithMaxDeliveries(n int) Option {
	return func(o *Options) { o.MaxDeliveries = n }
}

// Client owns the NATS connection and the ensured stream.
type Client struct {
	opts   Options
	conn   *nats.Conn
	js     jetstream.JetStream
	stream jetstream.Stream
	logger *zap.Logger
}

// Connect dials NATS, ensures the feedback stream covering the inbound and
// dead-letter subjects and returns a ready client.
func Connect(ctx context.Context, logger *zap.Logger, opts ...Option) (*Client, error) {
	options := Options{
		URL:           nats.DefaultURL,
		StreamName:    DefaultStreamName,
		Subject:       DefaultSubject,
		DLQSubject:    DefaultDLQSubject,
		AlertSubject:  DefaultAlertSubject,
		ConsumerName:  DefaultConsumerName,
		AckWait:       defaultAckWait,
		MaxDeliveries: defaultMaxDeliveries,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	conn, err := nats.Connect(options.URL,
		nats.Timeout(defaultConnectWait),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", options.URL, err)
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("init jetstream: %w", err)
	}

	stream, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:     options.StreamName,
		Subjects: []string{options.Subject, options.DLQSubject},
		Storage:  jetstream.FileStorage,
	})
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ensure stream %s: %w", options.StreamName, err)
	}

	logger.Info("jetstream ready",
		zap.String("url", options.URL),
		zap.String("stream", options.StreamName),
		zap.String("subject", options.Subject))

	return &Client{
		opts:   options,
		conn:   conn,
		js:     js,
		stream: stream,
		logger: logger.Named("natsmq"),
	}, nil
}

// Close drains the connection.
func (c *Client) Close() error {
	return c.conn.Drain()
}
