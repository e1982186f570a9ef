package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"

	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/domain"
)

const (
	writeWait = 10 * time.Second
	readWait  = 75 * time.Second
)

var (
	ErrQueueFull        = errors.New("client send queue full")
	ErrAlreadyConnected = errors.New("client already connected")
	ErrClosed           = errors.New("client closed")
)

// Handler receives the raw data of an inbound frame.
type Handler func(data json.RawMessage)

type Options struct {
	URL   string
	Token string
	// QueueSize bounds frames waiting to be written. Defaults to 64.
	QueueSize int
	// MaxBackoff caps the delay between reconnect attempts. Defaults to 10s.
	MaxBackoff time.Duration
	Dialer     *websocket.Dialer
}

// outbound is a queued frame tagged with the session it was emitted in.
type outbound struct {
	session uint64
	data    []byte
}

// Conn is a reconnecting websocket client speaking the relay protocol.
// Handlers run on the read goroutine in arrival order. A Conn connects once;
// after Close it cannot be reused.
type Conn struct {
	opts      Options
	out       chan outbound
	connected atomic.Bool
	session   atomic.Uint64

	mu           sync.RWMutex
	handlers     map[string][]Handler
	onConnect    []func()
	onDisconnect []func(error)
	ws           *websocket.Conn
	started      bool
	closed       bool
	cancel       context.CancelFunc
	done         chan struct{}
}

func New(opts Options) *Conn {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 10 * time.Second
	}
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	return &Conn{
		opts:     opts,
		out:      make(chan outbound, opts.QueueSize),
		handlers: make(map[string][]Handler),
		done:     make(chan struct{}),
	}
}

// On adds a handler for an event. Handlers of one event run in the order
// they were added.
func (c *Conn) On(event string, h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[event] = append(c.handlers[event], h)
}

// OnConnect registers fn to run after every successful (re)connect.
func (c *Conn) OnConnect(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onConnect = append(c.onConnect, fn)
}

func (c *Conn) OnDisconnect(fn func(error)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onDisconnect = append(c.onDisconnect, fn)
}

func (c *Conn) Connected() bool {
	return c.connected.Load()
}

// Emit queues a frame without waiting for the network. A frame queued while
// a connection goes down is discarded, never sent on the next one.
func (c *Conn) Emit(event string, payload any) error {
	session := c.session.Load()
	if !c.Connected() {
		return domain.ErrNotConnected
	}
	data, err := domain.EncodeFrame(event, payload)
	if err != nil {
		return err
	}
	select {
	case c.out <- outbound{session: session, data: data}:
		return nil
	default:
		return ErrQueueFull
	}
}

// Connect dials once and then keeps the connection alive in the background,
// reconnecting with exponential backoff until ctx is done or Close is called.
// Only the first successful call starts a connection.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return ErrClosed
	case c.started:
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.started = true
	c.mu.Unlock()

	ws, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.started = false
		c.mu.Unlock()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		cancel()
		ws.Close()
		return ErrClosed
	}
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(ctx, ws)
	return nil
}

// Close stops reconnecting and closes the current connection.
func (c *Conn) Close() error {
	c.mu.Lock()
	c.closed = true
	cancel, ws := c.cancel, c.ws
	c.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()
	if ws != nil {
		ws.Close()
	}
	<-c.done
	return nil
}

func (c *Conn) run(ctx context.Context, ws *websocket.Conn) {
	defer close(c.done)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 250 * time.Millisecond
	b.MaxInterval = c.opts.MaxBackoff
	b.MaxElapsedTime = 0

	for {
		err := c.serve(ctx, ws)
		c.notifyDisconnect(err)
		if ctx.Err() != nil {
			return
		}

		b.Reset()
		err = backoff.RetryNotify(func() error {
			var dialErr error
			ws, dialErr = c.dial(ctx)
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return dialErr
		}, backoff.WithContext(b, ctx), func(err error, wait time.Duration) {
			slog.Warn("reconnect failed", "url", c.opts.URL, "retryIn", wait, "error", err)
		})
		if err != nil {
			return
		}
	}
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	target, err := url.Parse(c.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("parse relay url: %w", err)
	}
	if c.opts.Token != "" {
		q := target.Query()
		q.Set("token", c.opts.Token)
		target.RawQuery = q.Encode()
	}

	ws, resp, err := c.opts.Dialer.DialContext(ctx, target.String(), nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial relay: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial relay: %w", err)
	}
	return ws, nil
}

func (c *Conn) serve(ctx context.Context, ws *websocket.Conn) error {
	session := c.session.Add(1)
	c.drain()

	c.mu.Lock()
	c.ws = ws
	hooks := append([]func(){}, c.onConnect...)
	c.mu.Unlock()
	if ctx.Err() != nil {
		ws.Close()
		return ctx.Err()
	}

	stop := make(chan struct{})
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(ws, session, stop)
	}()

	c.connected.Store(true)
	slog.Info("connected to relay", "url", c.opts.URL)
	for _, fn := range hooks {
		fn()
	}

	err := c.readLoop(ws)

	c.connected.Store(false)
	close(stop)
	ws.Close()
	<-writerDone
	c.drain()

	c.mu.Lock()
	c.ws = nil
	c.mu.Unlock()
	return err
}

func (c *Conn) readLoop(ws *websocket.Conn) error {
	ws.SetReadDeadline(time.Now().Add(readWait))
	ws.SetPingHandler(func(appData string) error {
		ws.SetReadDeadline(time.Now().Add(readWait))
		return ws.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return err
		}
		ws.SetReadDeadline(time.Now().Add(readWait))

		var frame domain.Frame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Warn("invalid frame from relay", "error", err)
			continue
		}
		c.mu.RLock()
		handlers := c.handlers[frame.Event]
		c.mu.RUnlock()
		for _, h := range handlers {
			h(frame.Data)
		}
	}
}

func (c *Conn) writeLoop(ws *websocket.Conn, session uint64, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case frame := <-c.out:
			if frame.session != session {
				continue
			}
			ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(websocket.TextMessage, frame.data); err != nil {
				slog.Warn("write to relay failed", "error", err)
				ws.Close()
				return
			}
		}
	}
}

// drain discards frames queued for a connection that is gone.
func (c *Conn) drain() {
	for {
		select {
		case <-c.out:
		default:
			return
		}
	}
}

func (c *Conn) notifyDisconnect(err error) {
	c.mu.RLock()
	hooks := append([]func(error){}, c.onDisconnect...)
	c.mu.RUnlock()

	slog.Info("disconnected from relay", "url", c.opts.URL, "error", err)
	for _, fn := range hooks {
		fn(err)
	}
}
