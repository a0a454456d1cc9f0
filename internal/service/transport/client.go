// Package transport keeps a publish/subscribe session to the message broker
// alive and re-establishes subscriptions after every reconnect.
package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"edgecounter/internal/logger"
)

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("transport closed")

// State is the connection state of a Client.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// MessageHandler receives inbound messages on the session's delivery goroutine.
// It must not block and must not publish synchronously.
type MessageHandler func(topic string, payload []byte)

// Session is one live broker connection.
type Session interface {
	Publish(ctx context.Context, topic string, payload []byte) error
	Subscribe(ctx context.Context, topic string, handler MessageHandler) error
	Close() error
}

// DialFunc opens a session. onLost must be called at most once, when the
// session drops without Close being called.
type DialFunc func(ctx context.Context, onLost func(error)) (Session, error)

// Option configures a Client.
type Option func(*Client)

// WithRetryInterval sets the pause between failed connection attempts.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) { c.retry = d }
}

// WithStateListener registers fn to be called on every state transition.
func WithStateListener(fn func(State)) Option {
	return func(c *Client) { c.listener = fn }
}

// WithPublishTimeout bounds each publish.
func WithPublishTimeout(d time.Duration) Option {
	return func(c *Client) { c.publishTimeout = d }
}

// WithQueueSize sets how many publishes may wait for the broker before new
// ones are dropped.
func WithQueueSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.queueSize = n
		}
	}
}

type outbound struct {
	topic   string
	payload []byte
}

type lostSignal struct {
	gen uint64
	err error
}

// Client owns the session lifecycle. Only the maintenance goroutine dials.
type Client struct {
	dial           DialFunc
	logger         *logger.Logger
	retry          time.Duration
	publishTimeout time.Duration
	queueSize      int
	listener       func(State)

	mu          sync.Mutex
	session     Session
	stopSending context.CancelFunc
	gen         uint64
	state   atomic.Int32

	// subMu serializes registration with resubscription so no topic is missed.
	subMu    sync.Mutex
	topics   []string
	handlers map[string]MessageHandler

	lost    chan lostSignal
	outbox  chan outbound
	dropped atomic.Uint64

	startOnce sync.Once
	closeOnce sync.Once
	cancel    context.CancelFunc
	done      chan struct{}
	closed    atomic.Bool
}

// New creates a disconnected client. Call Start to begin connecting.
func New(dial DialFunc, log *logger.Logger, opts ...Option) *Client {
	if log == nil {
		log = logger.Discard()
	}
	c := &Client{
		dial:           dial,
		logger:         log,
		retry:          500 * time.Millisecond,
		publishTimeout: 5 * time.Second,
		queueSize:      64,
		handlers:       make(map[string]MessageHandler),
		lost:           make(chan lostSignal, 4),
		done:           make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.outbox = make(chan outbound, c.queueSize)
	return c
}

// Start launches the maintenance goroutine. It returns immediately; an
// unreachable broker is retried in the background.
func (c *Client) Start(ctx context.Context) error {
	if c.closed.Load() {
		return ErrClosed
	}
	c.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		c.mu.Lock()
		c.cancel = cancel
		c.mu.Unlock()
		go c.maintain(ctx)
	})
	return nil
}

// State returns the current connection state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// Dropped returns how many publishes were discarded.
func (c *Client) Dropped() uint64 {
	return c.dropped.Load()
}

// Subscribe registers handler for topic. The subscription is made now when
// connected and repeated after every reconnect.
func (c *Client) Subscribe(topic string, handler MessageHandler) {
	c.subMu.Lock()
	defer c.subMu.Unlock()

	if _, exists := c.handlers[topic]; !exists {
		c.topics = append(c.topics, topic)
	}
	c.handlers[topic] = handler

	sess := c.currentSession()
	if sess == nil || c.State() != Connected {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.publishTimeout)
	defer cancel()
	if err := sess.Subscribe(ctx, topic, handler); err != nil {
		c.logger.Warning("Subscribe to %s failed, will retry on reconnect: %v", topic, err)
	}
}

// Publish queues payload for topic and returns without waiting for the
// broker. When not connected, or when the queue is full, the payload is
// dropped and logged.
func (c *Client) Publish(topic string, payload []byte) {
	if c.currentSession() == nil || c.State() != Connected {
		c.dropped.Add(1)
		c.logger.Warning("Dropped publish to %s: transport %s", topic, c.State())
		return
	}

	select {
	case c.outbox <- outbound{topic: topic, payload: payload}:
	default:
		c.dropped.Add(1)
		c.logger.Warning("Dropped publish to %s: %d publishes already queued", topic, c.queueSize)
	}
}

// send drains the outbox into sess until ctx ends. One send loop runs per
// session; a stalled broker only delays this goroutine.
func (c *Client) send(ctx context.Context, sess Session) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.outbox:
			pubCtx, cancel := context.WithTimeout(ctx, c.publishTimeout)
			err := sess.Publish(pubCtx, msg.topic, msg.payload)
			cancel()
			if err != nil {
				c.dropped.Add(1)
				c.logger.Warning("Dropped publish to %s: %v", msg.topic, err)
			}
		}
	}
}

// Close stops reconnecting and disconnects. It is safe to call more than once.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)

		c.mu.Lock()
		cancel := c.cancel
		c.mu.Unlock()
		if cancel != nil {
			cancel()
			<-c.done
		}

		c.mu.Lock()
		sess := c.session
		c.session = nil
		stop := c.stopSending
		c.stopSending = nil
		c.gen++
		c.mu.Unlock()
		if stop != nil {
			stop()
		}
		if sess != nil {
			err = sess.Close()
		}
		c.setState(Disconnected)
	})
	return err
}

func (c *Client) maintain(ctx context.Context) {
	defer close(c.done)

	for {
		if err := c.connect(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Warning("Broker connection failed, retrying in %v: %v", c.retry, err)
			timer := time.NewTimer(c.retry)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
			continue
		}

		if !c.awaitLoss(ctx) {
			return
		}
	}
}

// awaitLoss blocks until the current session drops. It returns false when ctx ends.
func (c *Client) awaitLoss(ctx context.Context) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case sig := <-c.lost:
			c.mu.Lock()
			if sig.gen != c.gen {
				c.mu.Unlock()
				continue
			}
			sess := c.session
			c.session = nil
			stop := c.stopSending
			c.stopSending = nil
			c.mu.Unlock()

			if stop != nil {
				stop()
			}
			c.logger.Warning("Broker connection lost: %v", sig.err)
			if sess != nil {
				_ = sess.Close()
			}
			c.setState(Disconnected)
			return true
		}
	}
}

func (c *Client) connect(ctx context.Context) error {
	c.setState(Connecting)

	c.mu.Lock()
	c.gen++
	gen := c.gen
	c.mu.Unlock()

	sess, err := c.dial(ctx, func(err error) {
		select {
		case c.lost <- lostSignal{gen: gen, err: err}:
		case <-ctx.Done():
		}
	})
	if err != nil {
		c.setState(Disconnected)
		return err
	}

	c.subMu.Lock()
	defer c.subMu.Unlock()

	for _, topic := range c.topics {
		subCtx, cancel := context.WithTimeout(ctx, c.publishTimeout)
		err := sess.Subscribe(subCtx, topic, c.handlers[topic])
		cancel()
		if err != nil {
			_ = sess.Close()
			c.setState(Disconnected)
			return err
		}
	}

	sendCtx, stop := context.WithCancel(ctx)
	c.mu.Lock()
	c.session = sess
	c.stopSending = stop
	c.mu.Unlock()
	go c.send(sendCtx, sess)
	c.setState(Connected)
	c.logger.Info("Connected to broker, %d subscriptions restored", len(c.topics))
	return nil
}

func (c *Client) currentSession() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Client) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	if c.listener != nil {
		c.listener(s)
	}
}
