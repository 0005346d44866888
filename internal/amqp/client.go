// Package amqp publishes expense work to RabbitMQ and consumes it in the worker.
package amqp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"gastos/internal/core"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures = 5
	openTimeout = 30 * time.Second
	maxBackoff  = 30 * time.Second
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type Client struct {
	url          string
	exchangeName string
	queueName    string

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  time.Time
}

func NewClient(url, exchangeName, queueName string) (*Client, error) {
	c := &Client{url: url, exchangeName: exchangeName, queueName: queueName}
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Client) connect() error {
	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := setup(channel, c.exchangeName, c.queueName); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.mu.Lock()
	c.conn, c.channel = conn, channel
	c.mu.Unlock()
	return nil
}

func setup(ch *amqp091.Channel, exchange, queue string) error {
	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	// The routing key is the queue name on a direct exchange.
	if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

func (c *Client) ensureChannel() (*amqp091.Channel, error) {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch != nil && !ch.IsClosed() {
		return ch, nil
	}
	if err := c.connect(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel, nil
}

func (c *Client) PublishExpenseSync(ctx context.Context, id string, version int64) error {
	return c.publish(ctx, TypeExpenseSync, NewExpenseSyncMessage(id, version))
}

func (c *Client) PublishExpenseDelete(ctx context.Context, id, userID string) error {
	return c.publish(ctx, TypeExpenseDelete, NewExpenseDeleteMessage(id, userID))
}

func (c *Client) PublishSharedExpense(ctx context.Context, e core.Expense, owner core.User) error {
	return c.publish(ctx, TypeSharedExpense, NewSharedExpenseMessage(e, owner))
}

func (c *Client) publish(ctx context.Context, kind string, msg any) error {
	if c.isCircuitOpen() {
		return fmt.Errorf("publish %s: %w", kind, ErrCircuitOpen)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(exponentialBackoff(attempt - 1)):
			}
		}

		ch, err := c.ensureChannel()
		if err == nil {
			err = ch.PublishWithContext(ctx, c.exchangeName, c.queueName, false, false, amqp091.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp091.Persistent,
				Timestamp:    time.Now(),
				Type:         kind,
				Body:         body,
			})
		}
		if err == nil {
			c.recordSuccess()
			slog.DebugContext(ctx, "Published message", "type", kind, "queue", c.queueName)
			return nil
		}

		lastErr = err
		c.recordFailure()
		if !isConnectionError(err) {
			break
		}
		slog.WarnContext(ctx, "AMQP publish failed, retrying", "type", kind, "attempt", attempt+1, "error", err)
	}
	return fmt.Errorf("publish %s: %w", kind, lastErr)
}

// Handlers receive decoded messages. A nil handler acknowledges and drops
// messages of its type.
type Handlers struct {
	Sync   func(ctx context.Context, msg *ExpenseSyncMessage) error
	Delete func(ctx context.Context, msg *ExpenseDeleteMessage) error
	Shared func(ctx context.Context, msg *SharedExpenseMessage) error
}

// Consume dispatches deliveries to h until ctx is done. Malformed messages
// are rejected; handler failures are requeued.
func (c *Client) Consume(ctx context.Context, h Handlers) error {
	ch, err := c.ensureChannel()
	if err != nil {
		return err
	}
	msgs, err := ch.Consume(c.queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	slog.InfoContext(ctx, "Started consuming messages", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			slog.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("message channel closed")
			}
			dispatch(ctx, d.Type, d.Body, d, h)
		}
	}
}

type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func dispatch(ctx context.Context, kind string, body []byte, ack acknowledger, h Handlers) {
	var err error
	switch kind {
	case TypeExpenseSync:
		err = run(ctx, body, h.Sync)
	case TypeExpenseDelete:
		err = run(ctx, body, h.Delete)
	case TypeSharedExpense:
		err = run(ctx, body, h.Shared)
	default:
		err = fmt.Errorf("%w: unknown message type %q", errMalformed, kind)
	}

	switch {
	case err == nil:
		_ = ack.Ack(false)
	case errors.Is(err, errMalformed):
		slog.ErrorContext(ctx, "Rejecting malformed message", "type", kind, "error", err)
		_ = ack.Nack(false, false)
	default:
		slog.ErrorContext(ctx, "Failed to handle message", "type", kind, "error", err)
		_ = ack.Nack(false, true)
	}
}

var errMalformed = errors.New("malformed message")

func run[T any](ctx context.Context, body []byte, fn func(context.Context, *T) error) error {
	msg, err := decode[T](body)
	if err != nil {
		return fmt.Errorf("%w: %v", errMalformed, err)
	}
	if fn == nil {
		return nil
	}
	return fn(ctx, msg)
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.CompareAndSwapInt32(&c.state, StateOpen, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

func (c *Client) recordFailure() {
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if atomic.AddInt64(&c.failureCount, 1) >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		atomic.StoreInt32(&c.state, StateOpen)
	}
}

func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection", "eof", "broken pipe", "closed network"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
