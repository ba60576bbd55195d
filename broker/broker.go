// Package broker provides an in-process stand-in for an AMQP broker
// connection, so publish/consume logic can be exercised in tests without a
// live server. The Fake implementation keeps all state in memory; the AMQP
// implementation drives a real broker through the same interface.
package broker

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DefaultExchange is used when a publish names no exchange.
const DefaultExchange = "amq.direct"

// Message represents a broker-agnostic payload.
type Message struct {
	Body       []byte
	RoutingKey string
	Exchange   string
	Props      amqp.Table
}

// Delivery is a message handed back by Get or Recv. The extra fields are
// stamped at retrieval time and never stored with the queued message.
type Delivery struct {
	Message
	DeliveryTag  uint64
	Redelivered  bool
	MessageCount int
	ConsumerTag  string
	ContentType  string
}

// PublishOptions defines routing metadata for a publish call.
type PublishOptions struct {
	Exchange  string // destination exchange, DefaultExchange when empty
	Mandatory bool
	Immediate bool
}

// ExchangeOptions defines exchange declaration settings.
type ExchangeOptions struct {
	Kind       string
	Durable    bool
	AutoDelete bool
	Internal   bool
	NoWait     bool
	Arguments  amqp.Table
}

// QueueOptions defines queue declaration settings.
type QueueOptions struct {
	Durable    bool
	AutoDelete bool
	Exclusive  bool
	NoWait     bool
	Arguments  amqp.Table
}

// QueueInfo exposes broker queue metadata.
type QueueInfo struct {
	Name      string
	Messages  int
	Consumers int
}

// ConsumeOptions defines subscription settings. Passing nil to Consume
// applies DefaultConsumeOptions.
type ConsumeOptions struct {
	NoLocal   bool
	AutoAck   bool
	Exclusive bool
}

// DefaultConsumeOptions returns the options applied when a consumer
// supplies none. Auto-acknowledgement is the default because manual
// acknowledgement tracking is not part of the contract.
func DefaultConsumeOptions() ConsumeOptions {
	return ConsumeOptions{AutoAck: true}
}

// Broker defines the contract shared by the in-memory fake and the
// AMQP-backed client. Channel ids are caller-chosen tokens; a channel must
// be opened before channel-scoped operations succeed.
type Broker interface {
	Connect(ctx context.Context) error
	Disconnect() error

	ChannelOpen(channel int) error
	ChannelClose(channel int) error

	ExchangeDeclare(ctx context.Context, channel int, name string, opts ExchangeOptions) error
	QueueDeclare(ctx context.Context, channel int, name string, opts QueueOptions) (QueueInfo, error)
	QueueBind(ctx context.Context, channel int, queue, exchange, pattern string) error
	QueueUnbind(ctx context.Context, channel int, queue, exchange, routingKey string) error

	Publish(ctx context.Context, channel int, msg Message, opts PublishOptions) error

	TxSelect(channel int) error
	TxCommit(channel int) error
	TxRollback(channel int) error

	Consume(channel int, queue string, opts *ConsumeOptions) error
	Get(channel int, queue string) (Delivery, bool, error)
	Recv() (Delivery, bool, error)
}
