package broker

import (
	"context"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/arosenfeld2003/fakemq/internal/logger"
)

// PublishedMessage captures routed publish calls for assertions.
type PublishedMessage struct {
	Message Message
	Options PublishOptions
}

// FakeConfig controls fake broker behavior.
type FakeConfig struct {
	Connectable *bool           // nil means connectable
	Debug       bool            // log every publish-match
	Logger      *zerolog.Logger // defaults to a debug logger when Debug is set
}

// Fake is an in-memory Broker implementation for tests. All state lives
// behind a single mutex; operations never block, so callers poll for
// messages instead of waiting on deliveries.
type Fake struct {
	mu sync.Mutex

	connectable bool
	connected   bool
	debug       bool
	log         zerolog.Logger

	channels  map[int]struct{}
	exchanges map[string]ExchangeOptions
	queues    map[string][]Message
	bindings  map[string]map[string]binding // exchange -> literal pattern
	tx        map[int][]bufferedPublish     // key present = tx active

	deliveryTag  uint64
	currentQueue string
	hasCurrent   bool

	published []PublishedMessage
}

// bufferedPublish holds one publish call deferred by an open transaction.
type bufferedPublish struct {
	msg  Message
	opts PublishOptions
}

// NewFake constructs an in-memory broker.
func NewFake(cfg FakeConfig) *Fake {
	connectable := true
	if cfg.Connectable != nil {
		connectable = *cfg.Connectable
	}

	log := zerolog.Nop()
	if cfg.Logger != nil {
		log = *cfg.Logger
	} else if cfg.Debug {
		log = logger.Setup(logger.Config{Component: "fakemq", Level: "debug"})
	}

	return &Fake{
		connectable: connectable,
		debug:       cfg.Debug,
		log:         log,
		channels:    map[int]struct{}{},
		exchanges:   map[string]ExchangeOptions{},
		queues:      map[string][]Message{},
		bindings:    map[string]map[string]binding{},
		tx:          map[int][]bufferedPublish{},
	}
}

// Connect marks the broker as connected. It fails when the fake was
// configured as not connectable, and is a no-op when already connected.
func (f *Fake) Connect(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connectable {
		return fmt.Errorf("connect: %w", ErrNotConnectable)
	}
	f.connected = true
	return nil
}

// Disconnect marks the broker as disconnected.
func (f *Fake) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return fmt.Errorf("disconnect: %w", ErrNotConnected)
	}
	f.connected = false
	return nil
}

// ChannelOpen marks a channel id as open. Re-opening an open channel is a
// no-op success.
func (f *Fake) ChannelOpen(channel int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return fmt.Errorf("channel open: %w", ErrNotConnected)
	}
	f.channels[channel] = struct{}{}
	return nil
}

// ChannelClose removes a channel from the open set. It does not cascade:
// exchanges, queues, bindings, and any pending transaction buffer for the
// channel are left untouched.
func (f *Fake) ChannelClose(channel int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return fmt.Errorf("channel close: %w", ErrNotConnected)
	}
	if _, ok := f.channels[channel]; !ok {
		return fmt.Errorf("channel close: %w: %d", ErrUnknownChannel, channel)
	}
	delete(f.channels, channel)
	return nil
}

// ExchangeDeclare registers an exchange name. Re-declaring is idempotent.
// Options are accepted for API parity and otherwise unused by the fake.
func (f *Fake) ExchangeDeclare(_ context.Context, channel int, name string, opts ExchangeOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.requireChannel(channel); err != nil {
		return fmt.Errorf("declare exchange %q: %w", name, err)
	}
	f.exchanges[name] = opts
	return nil
}

// QueueDeclare registers a queue. Declaring an existing queue leaves its
// pending messages untouched.
func (f *Fake) QueueDeclare(_ context.Context, channel int, name string, opts QueueOptions) (QueueInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.requireChannel(channel); err != nil {
		return QueueInfo{}, fmt.Errorf("declare queue %q: %w", name, err)
	}
	if _, ok := f.queues[name]; !ok {
		f.queues[name] = nil
	}
	return QueueInfo{Name: name, Messages: len(f.queues[name])}, nil
}

// QueueBind compiles the pattern and binds the queue to the exchange.
// Binding an identical literal pattern again overwrites the previous
// destination queue for that pattern.
func (f *Fake) QueueBind(_ context.Context, channel int, queue, exchange, pattern string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.requireChannel(channel); err != nil {
		return fmt.Errorf("bind queue %q to %q: %w", queue, exchange, err)
	}
	if _, ok := f.queues[queue]; !ok {
		return fmt.Errorf("bind queue: %w: %q", ErrUnknownQueue, queue)
	}
	if _, ok := f.exchanges[exchange]; !ok {
		return fmt.Errorf("bind queue: %w: %q", ErrUnknownExchange, exchange)
	}

	if _, ok := f.bindings[exchange]; !ok {
		f.bindings[exchange] = map[string]binding{}
	}
	f.bindings[exchange][pattern] = compileBinding(pattern, queue)
	return nil
}

// QueueUnbind removes the binding registered under the literal routing key.
func (f *Fake) QueueUnbind(_ context.Context, channel int, queue, exchange, routingKey string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.requireChannel(channel); err != nil {
		return fmt.Errorf("unbind queue %q from %q: %w", queue, exchange, err)
	}
	if _, ok := f.queues[queue]; !ok {
		return fmt.Errorf("unbind queue: %w: %q", ErrUnknownQueue, queue)
	}
	if _, ok := f.exchanges[exchange]; !ok {
		return fmt.Errorf("unbind queue: %w: %q", ErrUnknownExchange, exchange)
	}
	if _, ok := f.bindings[exchange][routingKey]; !ok {
		return fmt.Errorf("unbind queue: %w: %q on exchange %q", ErrUnknownBinding, routingKey, exchange)
	}
	delete(f.bindings[exchange], routingKey)
	return nil
}

// Publish routes a message to every queue whose binding matches the routing
// key. While the channel has an open transaction the call is only buffered;
// routing and all validation happen at commit time.
func (f *Fake) Publish(_ context.Context, channel int, msg Message, opts PublishOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if buf, ok := f.tx[channel]; ok {
		f.tx[channel] = append(buf, bufferedPublish{msg: copyMessage(msg), opts: opts})
		return nil
	}
	return f.route(channel, msg, opts)
}

// route performs immediate routing. Callers must hold f.mu.
func (f *Fake) route(channel int, msg Message, opts PublishOptions) error {
	if err := f.requireChannel(channel); err != nil {
		return fmt.Errorf("publish: %w", err)
	}

	exchange := opts.Exchange
	if exchange == "" {
		exchange = DefaultExchange
	}
	if _, ok := f.exchanges[exchange]; !ok {
		return fmt.Errorf("publish: %w: %q", ErrUnknownExchange, exchange)
	}

	for _, b := range f.bindings[exchange] {
		if !b.matches(msg.RoutingKey) {
			continue
		}
		queued := copyMessage(msg)
		queued.Exchange = exchange
		f.queues[b.queue] = append(f.queues[b.queue], queued)

		if f.debug {
			f.log.Debug().
				Str("exchange", exchange).
				Str("routing_key", msg.RoutingKey).
				Str("queue", b.queue).
				Msg("routing key matched binding")
		}
	}

	recorded := copyMessage(msg)
	recorded.Exchange = exchange
	f.published = append(f.published, PublishedMessage{Message: recorded, Options: opts})
	return nil
}

// TxSelect starts a transaction on the channel. Publishes on the channel
// are buffered until TxCommit or TxRollback.
func (f *Fake) TxSelect(channel int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.requireChannel(channel); err != nil {
		return fmt.Errorf("tx select: %w", err)
	}
	if _, ok := f.tx[channel]; ok {
		return fmt.Errorf("tx select: %w: channel %d", ErrTxAlreadyStarted, channel)
	}
	f.tx[channel] = nil
	return nil
}

// TxCommit replays the channel's buffered publishes in order through the
// immediate-routing path, so exchange and binding errors surface here, then
// discards the buffer. On a replay error the remaining buffer is kept so
// the caller can still roll back.
func (f *Fake) TxCommit(channel int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.requireChannel(channel); err != nil {
		return fmt.Errorf("tx commit: %w", err)
	}
	buf, ok := f.tx[channel]
	if !ok {
		return fmt.Errorf("tx commit: %w: channel %d", ErrNoTx, channel)
	}
	for _, p := range buf {
		if err := f.route(channel, p.msg, p.opts); err != nil {
			return fmt.Errorf("tx commit: %w", err)
		}
	}
	delete(f.tx, channel)
	return nil
}

// TxRollback discards the channel's buffered publishes without routing any.
func (f *Fake) TxRollback(channel int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.requireChannel(channel); err != nil {
		return fmt.Errorf("tx rollback: %w", err)
	}
	if _, ok := f.tx[channel]; !ok {
		return fmt.Errorf("tx rollback: %w: channel %d", ErrNoTx, channel)
	}
	delete(f.tx, channel)
	return nil
}

// Consume selects the queue for subsequent Recv calls. The selection is
// broker-wide, not per channel; a later Consume overwrites it. Manual
// acknowledgement is not implemented, so the effective options must keep
// AutoAck enabled.
func (f *Fake) Consume(channel int, queue string, opts *ConsumeOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.requireChannel(channel); err != nil {
		return fmt.Errorf("consume: %w", err)
	}
	if _, ok := f.queues[queue]; !ok {
		return fmt.Errorf("consume: %w: %q", ErrUnknownQueue, queue)
	}

	effective := DefaultConsumeOptions()
	if opts != nil {
		effective = *opts
	}
	if !effective.AutoAck {
		return fmt.Errorf("consume: %w: manual acknowledgement", ErrUnsupportedOption)
	}

	f.currentQueue = queue
	f.hasCurrent = true
	return nil
}

// Get pops the oldest message from the named queue. The second return is
// false when the queue is empty; an empty queue is not an error.
func (f *Fake) Get(channel int, queue string) (Delivery, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.requireChannel(channel); err != nil {
		return Delivery{}, false, fmt.Errorf("get: %w", err)
	}
	msgs, ok := f.queues[queue]
	if !ok {
		return Delivery{}, false, fmt.Errorf("get: %w: %q", ErrUnknownQueue, queue)
	}
	if len(msgs) == 0 {
		return Delivery{}, false, nil
	}
	return f.pop(queue, msgs), true, nil
}

// Recv pops the oldest message from the queue selected by Consume. It
// never blocks; the second return is false when the queue is empty.
func (f *Fake) Recv() (Delivery, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !f.connected {
		return Delivery{}, false, fmt.Errorf("recv: %w", ErrNotConnected)
	}
	if !f.hasCurrent {
		return Delivery{}, false, fmt.Errorf("recv: %w", ErrNoQueueSelected)
	}
	msgs, ok := f.queues[f.currentQueue]
	if !ok {
		return Delivery{}, false, fmt.Errorf("recv: %w: %q", ErrUnknownQueue, f.currentQueue)
	}
	if len(msgs) == 0 {
		return Delivery{}, false, nil
	}
	return f.pop(f.currentQueue, msgs), true, nil
}

// pop removes the head of the queue and stamps retrieval fields. The
// delivery tag counter is broker-global and only increases. Callers must
// hold f.mu and guarantee msgs is non-empty.
func (f *Fake) pop(queue string, msgs []Message) Delivery {
	head := msgs[0]
	f.queues[queue] = msgs[1:]
	f.deliveryTag++
	return Delivery{
		Message:     copyMessage(head),
		DeliveryTag: f.deliveryTag,
	}
}

// Published returns a snapshot of every successfully routed publish,
// including ones that matched no binding.
func (f *Fake) Published() []PublishedMessage {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]PublishedMessage, len(f.published))
	copy(out, f.published)
	return out
}

// QueuePurge drops all pending messages from a queue and returns how many
// were dropped.
func (f *Fake) QueuePurge(channel int, queue string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.requireChannel(channel); err != nil {
		return 0, fmt.Errorf("purge queue %q: %w", queue, err)
	}
	msgs, ok := f.queues[queue]
	if !ok {
		return 0, fmt.Errorf("purge queue: %w: %q", ErrUnknownQueue, queue)
	}
	f.queues[queue] = nil
	return len(msgs), nil
}

// QueueDelete removes a queue together with every binding pointing at it
// and returns how many pending messages were discarded. Deleting the queue
// currently selected by Consume clears the selection.
func (f *Fake) QueueDelete(channel int, queue string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.requireChannel(channel); err != nil {
		return 0, fmt.Errorf("delete queue %q: %w", queue, err)
	}
	msgs, ok := f.queues[queue]
	if !ok {
		return 0, fmt.Errorf("delete queue: %w: %q", ErrUnknownQueue, queue)
	}

	delete(f.queues, queue)
	for _, patterns := range f.bindings {
		for pattern, b := range patterns {
			if b.queue == queue {
				delete(patterns, pattern)
			}
		}
	}
	if f.hasCurrent && f.currentQueue == queue {
		f.hasCurrent = false
		f.currentQueue = ""
	}
	return len(msgs), nil
}

// MessageCount reports the pending depth of a queue without consuming.
func (f *Fake) MessageCount(queue string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	msgs, ok := f.queues[queue]
	if !ok {
		return 0, fmt.Errorf("message count: %w: %q", ErrUnknownQueue, queue)
	}
	return len(msgs), nil
}

// Reset wipes all broker state back to post-construction, keeping the
// configured connectable and debug settings. Intended for reuse of one
// fake across test cases.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.connected = false
	f.channels = map[int]struct{}{}
	f.exchanges = map[string]ExchangeOptions{}
	f.queues = map[string][]Message{}
	f.bindings = map[string]map[string]binding{}
	f.tx = map[int][]bufferedPublish{}
	f.deliveryTag = 0
	f.currentQueue = ""
	f.hasCurrent = false
	f.published = nil
}

// requireChannel checks the connected and open-channel preconditions.
// Callers must hold f.mu.
func (f *Fake) requireChannel(channel int) error {
	if !f.connected {
		return ErrNotConnected
	}
	if _, ok := f.channels[channel]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownChannel, channel)
	}
	return nil
}

func copyMessage(msg Message) Message {
	out := msg
	if msg.Body != nil {
		out.Body = append([]byte(nil), msg.Body...)
	}
	out.Props = cloneTable(msg.Props)
	return out
}

func cloneTable(t amqp.Table) amqp.Table {
	if len(t) == 0 {
		return nil
	}
	out := make(amqp.Table, len(t))
	for key, value := range t {
		out[key] = value
	}
	return out
}

var _ Broker = (*Fake)(nil)
