package messaging

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

var (
	ErrCircuitOpen  = errors.New("rabbitmq: circuit breaker is open")
	ErrNotConnected = errors.New("rabbitmq: connection is not available")
)

// Config holds configuration for the RabbitMQ client.
type Config struct {
	URL       string
	TLSConfig *tls.Config

	ReconnectDelay    time.Duration
	MaxReconnectDelay time.Duration
	MaxRetries        int // -1 for infinite
	HeartbeatTimeout  time.Duration

	// Prefetch bounds unacknowledged deliveries per consumer.
	Prefetch int

	CircuitBreakerEnabled   bool
	CircuitBreakerThreshold int
	CircuitBreakerTimeout   time.Duration

	Logger *zap.Logger
}

func DefaultConfig() Config {
	return Config{
		ReconnectDelay:          time.Second,
		MaxReconnectDelay:       time.Minute,
		MaxRetries:              -1,
		HeartbeatTimeout:        10 * time.Second,
		Prefetch:                10,
		CircuitBreakerEnabled:   true,
		CircuitBreakerThreshold: 5,
		CircuitBreakerTimeout:   30 * time.Second,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = d.ReconnectDelay
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = d.MaxReconnectDelay
	}
	if c.HeartbeatTimeout <= 0 {
		c.HeartbeatTimeout = d.HeartbeatTimeout
	}
	if c.Prefetch <= 0 {
		c.Prefetch = d.Prefetch
	}
	if c.CircuitBreakerThreshold <= 0 {
		c.CircuitBreakerThreshold = d.CircuitBreakerThreshold
	}
	if c.CircuitBreakerTimeout <= 0 {
		c.CircuitBreakerTimeout = d.CircuitBreakerTimeout
	}
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
}

// RabbitMQClient publishes to and consumes from durable queues on the default
// exchange, reconnecting with exponential backoff when the broker goes away.
type RabbitMQClient struct {
	config  Config
	log     *zap.Logger
	breaker *CircuitBreaker

	mu     sync.RWMutex
	conn   *amqp.Connection
	pubCh  *amqp.Channel
	ready  bool
	closed bool
	done   chan struct{}
}

func NewRabbitMQClient(config Config) (*RabbitMQClient, error) {
	config.applyDefaults()

	client := &RabbitMQClient{
		config:  config,
		log:     config.Logger.Named("rabbitmq"),
		breaker: NewCircuitBreaker(config.CircuitBreakerThreshold, config.CircuitBreakerTimeout),
		done:    make(chan struct{}),
	}

	closed, err := client.dial()
	if err != nil {
		return nil, err
	}
	go client.watch(closed)

	return client, nil
}

// dial opens a connection and its publishing channel and returns the channel
// that reports the connection closing.
func (r *RabbitMQClient) dial() (chan *amqp.Error, error) {
	r.log.Info("connecting", zap.String("url", maskURL(r.config.URL)))

	cfg := amqp.Config{Heartbeat: r.config.HeartbeatTimeout, TLSClientConfig: r.config.TLSConfig}
	conn, err := amqp.DialConfig(r.config.URL, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open a channel: %w", err)
	}

	closed := conn.NotifyClose(make(chan *amqp.Error, 1))

	r.mu.Lock()
	r.conn, r.pubCh, r.ready = conn, ch, true
	r.mu.Unlock()

	r.log.Info("connected")
	return closed, nil
}

// watch redials each time the connection drops until Close is called or the
// retry budget runs out.
func (r *RabbitMQClient) watch(closed chan *amqp.Error) {
	for {
		select {
		case <-r.done:
			return
		case amqpErr, ok := <-closed:
			if !ok && amqpErr == nil {
				r.mu.RLock()
				shutdown := r.closed
				r.mu.RUnlock()
				if shutdown {
					return
				}
			}
			r.log.Warn("connection closed, reconnecting", zap.Any("reason", amqpErr))
		}

		r.mu.Lock()
		r.ready = false
		r.mu.Unlock()

		next, ok := r.redial()
		if !ok {
			return
		}
		closed = next
	}
}

func (r *RabbitMQClient) redial() (chan *amqp.Error, bool) {
	delay := r.config.ReconnectDelay
	for attempt := 1; r.config.MaxRetries < 0 || attempt <= r.config.MaxRetries; attempt++ {
		select {
		case <-r.done:
			return nil, false
		case <-time.After(delay):
		}

		closed, err := r.dial()
		if err == nil {
			r.log.Info("reconnected", zap.Int("attempt", attempt))
			return closed, true
		}
		r.log.Warn("reconnect failed", zap.Int("attempt", attempt), zap.Duration("backoff", delay), zap.Error(err))

		delay = min(delay*2, r.config.MaxReconnectDelay)
	}
	r.log.Error("max reconnect attempts reached", zap.Int("retries", r.config.MaxRetries))
	return nil, false
}

// channel returns the shared publishing channel when connected.
func (r *RabbitMQClient) channel() (*amqp.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.ready || r.pubCh == nil {
		return nil, ErrNotConnected
	}
	return r.pubCh, nil
}

func (r *RabbitMQClient) DeclareQueue(name string) (amqp.Queue, error) {
	ch, err := r.channel()
	if err != nil {
		return amqp.Queue{}, err
	}
	return ch.QueueDeclare(name, true, false, false, false, nil)
}

// DeclareQueueWithDLQ declares name and a companion "<name>.dlq" queue that
// receives messages rejected without requeue.
func (r *RabbitMQClient) DeclareQueueWithDLQ(name string) (amqp.Queue, error) {
	ch, err := r.channel()
	if err != nil {
		return amqp.Queue{}, err
	}

	dlq := name + ".dlq"
	if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
		return amqp.Queue{}, fmt.Errorf("failed to declare DLQ %s: %w", dlq, err)
	}
	return ch.QueueDeclare(name, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlq,
	})
}

// Publish sends a persistent JSON message to queueName.
func (r *RabbitMQClient) Publish(ctx context.Context, queueName string, body []byte) error {
	if r.config.CircuitBreakerEnabled && !r.breaker.Allow() {
		return ErrCircuitOpen
	}

	ch, err := r.channel()
	if err != nil {
		return err
	}

	err = ch.PublishWithContext(ctx, "", queueName, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Body:         body,
	})

	if r.config.CircuitBreakerEnabled {
		if err != nil {
			r.breaker.Failure()
		} else {
			r.breaker.Success()
		}
	}
	if err != nil {
		return fmt.Errorf("publishing to %s: %w", queueName, err)
	}
	return nil
}

// ConsumeWithContext delivers messages from queueName to handler until ctx is
// cancelled. A nil handler result acks the message; an error rejects it
// without requeue so the broker dead-letters it. Consumption resumes after a
// reconnect.
func (r *RabbitMQClient) ConsumeWithContext(ctx context.Context, queueName string, handler func(body []byte) error) error {
	for {
		if err := r.consumeOnce(ctx, queueName, handler); err != nil {
			r.log.Warn("consumer interrupted", zap.String("queue", queueName), zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(r.config.ReconnectDelay):
		}
	}
}

func (r *RabbitMQClient) consumeOnce(ctx context.Context, queueName string, handler func(body []byte) error) error {
	r.mu.RLock()
	conn, ready := r.conn, r.ready
	r.mu.RUnlock()
	if !ready || conn == nil {
		return ErrNotConnected
	}

	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("opening consumer channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(r.config.Prefetch, 0, false); err != nil {
		return fmt.Errorf("setting prefetch: %w", err)
	}

	msgs, err := ch.Consume(queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("registering consumer: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("delivery channel closed")
			}
			if err := handler(d.Body); err != nil {
				r.log.Warn("handler failed, dead-lettering", zap.String("queue", queueName), zap.Error(err))
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func (r *RabbitMQClient) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	r.ready = false
	close(r.done)
	if r.pubCh != nil {
		r.pubCh.Close()
	}
	if r.conn != nil {
		r.conn.Close()
	}
}

func (r *RabbitMQClient) IsHealthy() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ready && r.conn != nil && !r.conn.IsClosed()
}

// maskURL hides credentials in a broker URL for logging.
func maskURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	return u.Redacted()
}
