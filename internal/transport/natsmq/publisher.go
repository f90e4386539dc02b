package natsmq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/driverpulse/sentiment-server/internal/domain"
	"go.uber.org/zap"
)

// DeadLetterPublisher republishes failed messages, with their error
// classification, to the dead-letter subject.
type DeadLetterPublisher struct {
	client *Client
}

func (c *Client) NewDeadLetterPublisher() *DeadLetterPublisher {
	return &DeadLetterPublisher{client: c}
}

func (p *DeadLetterPublisher) Publish(ctx context.Context, dl domain.DeadLetter) error {
	data, err := json.Marshal(dl)
	if err != nil {
		return fmt.Errorf("marshal dead letter: %w", err)
	}
	if _, err := p.client.js.Publish(ctx, p.client.opts.DLQSubject, data); err != nil {
		return fmt.Errorf("publish dead letter: %w", err)
	}
	return nil
}

// AlertNotifier publishes fired alerts to the alert subject for downstream
// consumers (dashboards, paging) and mirrors them to the log.
type AlertNotifier struct {
	client *Client
	logger *zap.Logger
}

func (c *Client) NewAlertNotifier(logger *zap.Logger) *AlertNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AlertNotifier{client: c, logger: logger.Named("alert-notifier")}
}

func (n *AlertNotifier) Notify(ctx context.Context, a domain.Alert) error {
	data, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	// Alerts ride core NATS: losing one is acceptable, alert state lives in
	// the score store and the cooldown lock.
	if err := n.client.conn.Publish(n.client.opts.AlertSubject, data); err != nil {
		return fmt.Errorf("publish alert: %w", err)
	}
	n.logger.Warn("alert published",
		zap.Int64("driver_id", a.DriverID),
		zap.Float64("average", a.Average),
		zap.Float64("threshold", a.Threshold))
	return nil
}
