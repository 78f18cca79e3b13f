// Package notify publishes billing notification events to RabbitMQ. A
// downstream notification service consumes them and renders the actual
// customer emails; this service only emits the facts.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/novalabs/billing-service/internal/domain/ports"
)

const (
	// Exchange is the topic exchange billing events are published to.
	Exchange = "billing.events"

	routingKeyReceipt = "billing.payment.succeeded"
	routingKeyFailure = "billing.payment.failed"
)

// AMQPNotifier implements ports.Notifier over a RabbitMQ topic exchange.
type AMQPNotifier struct {
	conn    *amqp091.Connection
	channel *amqp091.Channel
	logger  *zap.Logger
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.TrimSpace(raw)
	clean = strings.Trim(clean, "\"'")
	if !strings.HasSuffix(clean, "/") {
		clean += "/"
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", err
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("AMQP scheme must be either 'amqp://' or 'amqps://'")
	}
	return clean, nil
}

// NewAMQPNotifier connects to RabbitMQ and declares the billing exchange.
func NewAMQPNotifier(amqpURL string, logger *zap.Logger) (*AMQPNotifier, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}

	conn, err := amqp091.Dial(cleanURL)
	if err != nil {
		return nil, err
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, err
	}

	err = channel.ExchangeDeclare(
		Exchange, // name
		"topic",  // type
		true,     // durable
		false,    // auto-deleted
		false,    // internal
		false,    // no-wait
		nil,      // arguments
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, err
	}

	logger.Info("RabbitMQ notifier initialized", zap.String("exchange", Exchange))

	return &AMQPNotifier{
		conn:    conn,
		channel: channel,
		logger:  logger,
	}, nil
}

type receiptEvent struct {
	AccountID string        `json:"account_id"`
	EmittedAt time.Time     `json:"emitted_at"`
	Receipt   ports.Receipt `json:"receipt"`
}

type failureEvent struct {
	AccountID string              `json:"account_id"`
	EmittedAt time.Time           `json:"emitted_at"`
	Notice    ports.FailureNotice `json:"notice"`
}

// SendReceipt publishes a successful-charge event.
func (n *AMQPNotifier) SendReceipt(ctx context.Context, accountID string, receipt ports.Receipt) error {
	event := receiptEvent{
		AccountID: accountID,
		EmittedAt: time.Now().UTC(),
		Receipt:   receipt,
	}
	return n.publish(ctx, routingKeyReceipt, event)
}

// SendFailureNotice publishes a failed-charge or suspension event.
func (n *AMQPNotifier) SendFailureNotice(ctx context.Context, accountID string, notice ports.FailureNotice) error {
	event := failureEvent{
		AccountID: accountID,
		EmittedAt: time.Now().UTC(),
		Notice:    notice,
	}
	return n.publish(ctx, routingKeyFailure, event)
}

func (n *AMQPNotifier) publish(ctx context.Context, routingKey string, body interface{}) error {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return err
	}

	err = n.channel.PublishWithContext(ctx,
		Exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		amqp091.Publishing{
			ContentType: "application/json",
			Body:        jsonBody,
		})
	if err != nil {
		return err
	}

	n.logger.Debug("published billing event",
		zap.String("routing_key", routingKey),
	)
	return nil
}

// Close gracefully closes the channel and connection.
func (n *AMQPNotifier) Close() {
	if n.channel != nil {
		n.channel.Close()
	}
	if n.conn != nil {
		n.conn.Close()
	}
}
