// Package rabbitmq publishes product lifecycle events to a RabbitMQ topic exchange.
package rabbitmq

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	amqp "github.com/streadway/amqp"
)

// Client holds the RabbitMQ connection and channel.
type Client struct {
	conn     *amqp.Connection
	channel  *amqp.Channel
	exchange string
	logger   zerolog.Logger
	// amqp channels are not safe for concurrent publishes.
	mu sync.Mutex
}

// Config holds RabbitMQ connection details.
type Config struct {
	URL      string
	Exchange string
}

// NewClient connects to RabbitMQ, opens a channel and declares the exchange.
func NewClient(cfg Config, logger zerolog.Logger) (*Client, error) {
	logger = logger.With().Str("component", "rabbitmq").Logger()

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	if err := DeclareExchange(ch, cfg.Exchange); err != nil {
		ch.Close()
		conn.Close()
		return nil, err
	}

	logger.Info().Str("exchange", cfg.Exchange).Msg("RabbitMQ client connected")

	return &Client{
		conn:     conn,
		channel:  ch,
		exchange: cfg.Exchange,
		logger:   logger,
	}, nil
}

// Declarer is the part of *amqp.Channel used to declare the exchange.
type Declarer interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
}

// DeclareExchange declares a durable topic exchange named name.
func DeclareExchange(ch Declarer, name string) error {
	err := ch.ExchangeDeclare(
		name,    // name
		"topic", // kind
		true,    // durable
		false,   // delete when unused
		false,   // internal
		false,   // no-wait
		nil,     // arguments
	)
	if err != nil {
		return fmt.Errorf("failed to declare exchange %s: %w", name, err)
	}
	return nil
}

// Exchange returns the exchange events are published to.
func (c *Client) Exchange() string {
	return c.exchange
}

// Close closes the RabbitMQ connection and channel.
func (c *Client) Close() error {
	var errs []error
	if c.channel != nil {
		if err := c.channel.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close channel: %w", err))
		}
	}
	if c.conn != nil {
		if err := c.conn.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close connection: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("multiple errors occurred during RabbitMQ client close: %v", errs)
	}
	return nil
}

// Publish sends a persistent JSON message to exchange with routingKey.
func (c *Client) Publish(exchange, routingKey string, body []byte) error {
	if c.channel == nil {
		return fmt.Errorf("RabbitMQ channel is not available")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.channel.Publish(
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		NewPublishing(body, time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	c.logger.Debug().Str("exchange", exchange).Str("routing_key", routingKey).Int("bytes", len(body)).Msg("event published")
	return nil
}

// NewPublishing wraps a JSON body in a persistent message.
func NewPublishing(body []byte, at time.Time) amqp.Publishing {
	return amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    at,
	}
}
