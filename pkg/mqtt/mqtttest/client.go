// Package mqtttest provides an in-memory mqtt.Client for tests.
package mqtttest

import (
	"context"
	"errors"
	"sync"

	"github.com/autopeer-io/bootwatch/pkg/mqtt"
)

var _ mqtt.Client = (*Client)(nil)

var (
	// ErrNotStarted mirrors the error of a real client used before Start.
	ErrNotStarted = errors.New("client not started")

	// ErrConnectionDown mirrors the error of a real client whose Start context
	// has ended: the connection manager has disconnected and stopped.
	ErrConnectionDown = errors.New("connection down")
)

// Message is a publication recorded by Client.
type Message struct {
	Topic   string
	QoS     int
	Retain  bool
	Payload []byte
}

// Client records publications and lets tests inject messages on subscribed topics.
type Client struct {
	mu         sync.Mutex
	started    bool
	runCtx     context.Context
	connected  bool
	connCh     chan struct{}
	handlers   map[string]mqtt.MessageHandler
	published  []Message
	publishErr error

	subscribed chan string
	publishCh  chan Message
}

// NewClient returns a client that connects as soon as Start is called.
func NewClient() *Client {
	return &Client{
		connCh:     make(chan struct{}),
		handlers:   make(map[string]mqtt.MessageHandler),
		subscribed: make(chan string, 16),
		publishCh:  make(chan Message, 64),
	}
}

// Start connects the client. Like the real client, it stays usable only while
// ctx is live.
func (c *Client) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started = true
	c.runCtx = ctx
	c.setConnectedLocked(true)
	return nil
}

func (c *Client) Disconnect(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setConnectedLocked(false)
}

// SetConnected simulates the broker connection going up or down.
func (c *Client) SetConnected(up bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.setConnectedLocked(up)
}

func (c *Client) setConnectedLocked(up bool) {
	if up == c.connected {
		return
	}
	c.connected = up
	if up {
		close(c.connCh)
	} else {
		c.connCh = make(chan struct{})
	}
}

// FailPublish makes every following Publish return err. A nil err restores success.
func (c *Client) FailPublish(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.publishErr = err
}

func (c *Client) Publish(_ context.Context, topic string, qos int, retain bool, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.started {
		return ErrNotStarted
	}
	if c.runCtx.Err() != nil {
		return ErrConnectionDown
	}
	if c.publishErr != nil {
		return c.publishErr
	}

	m := Message{Topic: topic, QoS: qos, Retain: retain, Payload: append([]byte(nil), payload...)}
	c.published = append(c.published, m)
	select {
	case c.publishCh <- m:
	default:
	}
	return nil
}

func (c *Client) Subscribe(_ context.Context, topic string, _ int, handler mqtt.MessageHandler) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return ErrNotStarted
	}
	c.handlers[topic] = handler
	c.mu.Unlock()

	c.subscribed <- topic
	return nil
}

func (c *Client) Unsubscribe(_ context.Context, topic string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, topic)
	return nil
}

func (c *Client) AwaitConnection(ctx context.Context) error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return ErrNotStarted
	}
	ch := c.connCh
	c.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Deliver hands payload to every handler whose filter matches topic, inline,
// as the real client's router does. It reports whether any handler matched.
func (c *Client) Deliver(topic string, payload []byte) bool {
	c.mu.Lock()
	var matched []mqtt.MessageHandler
	for filter, h := range c.handlers {
		if mqtt.TopicMatches(filter, topic) {
			matched = append(matched, h)
		}
	}
	c.mu.Unlock()

	for _, h := range matched {
		h(context.Background(), topic, payload)
	}
	return len(matched) > 0
}

// Subscribed yields every topic filter passed to Subscribe.
func (c *Client) Subscribed() <-chan string {
	return c.subscribed
}

// Publications yields messages as they are published.
func (c *Client) Publications() <-chan Message {
	return c.publishCh
}

// Published returns every message published so far.
func (c *Client) Published() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Message(nil), c.published...)
}

// Handlers returns the number of active subscriptions.
func (c *Client) Handlers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.handlers)
}
