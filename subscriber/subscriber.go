package subscriber

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/client"
	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/domain"
)

// DefaultFallback is shown until the first update arrives.
var DefaultFallback = domain.Position{Lat: 12.9716, Lng: 77.5946}

var validate = validator.New()

// locationPayload is a receive_location body. Updates missing a coordinate
// or out of range never reach the map.
type locationPayload struct {
	Lat *float64 `json:"lat" validate:"required,latitude"`
	Lng *float64 `json:"lng" validate:"required,longitude"`
}

// Transport is the buyer's side of the relay connection.
type Transport interface {
	Emit(event string, payload any) error
	On(event string, h client.Handler)
	OnConnect(fn func())
	OnDisconnect(fn func(error))
	Connected() bool
}

type Update struct {
	Position  domain.Position
	UpdatedAt time.Time
}

type Option func(*Subscriber)

func WithClock(now func() time.Time) Option {
	return func(s *Subscriber) { s.now = now }
}

// WithConnectionHandler is told about every connectivity change.
func WithConnectionHandler(fn func(connected bool)) Option {
	return func(s *Subscriber) { s.onConnection = fn }
}

// Subscriber follows the position of one order. Membership does not survive
// a reconnect, so the room is joined again on every connect.
//
// Location frames carry no order id. After switching orders on a live
// connection, updates are ignored until the relay answers a ping sent behind
// the leave and join, so a position queued for the old order is never shown
// for the new one.
type Subscriber struct {
	transport    Transport
	view         MapView
	now          func() time.Time
	onConnection func(bool)

	mu          sync.Mutex
	orderID     string
	position    domain.Position
	lastUpdated time.Time
	handler     func(Update)
	barrier     int64
	seq         int64
}

func New(t Transport, view MapView, opts ...Option) *Subscriber {
	if view == nil {
		view = NewViewport(DefaultZoom)
	}
	s := &Subscriber{
		transport: t,
		view:      view,
		now:       time.Now,
		seq:       time.Now().UnixNano(),
	}
	for _, opt := range opts {
		opt(s)
	}

	t.On(domain.EventReceiveLocation, s.receive)
	t.On(domain.EventPong, s.pong)
	t.OnConnect(s.connected)
	t.OnDisconnect(s.disconnected)
	return s
}

// Subscribe joins the order room and shows fallback until the first update.
// Joining while offline is deferred to the next connect.
func (s *Subscriber) Subscribe(orderID string, fallback domain.Position) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return fmt.Errorf("%w: empty order id", domain.ErrInvalidPayload)
	}

	s.mu.Lock()
	previous := s.orderID
	switching := previous != "" && previous != orderID
	s.orderID = orderID
	s.position = fallback
	s.lastUpdated = time.Time{}
	s.barrier = 0
	if switching {
		s.seq++
		s.barrier = s.seq
	}
	barrier := s.barrier
	s.mu.Unlock()

	if switching {
		s.emit(domain.EventLeaveOrderRoom, previous)
	}
	s.view.Recenter(fallback)
	if err := s.emit(domain.EventJoinOrderRoom, orderID); err != nil {
		s.lift(barrier)
		return err
	}
	if barrier != 0 {
		s.settle(barrier)
	}
	return nil
}

// OnUpdate registers the callback run after every position update.
func (s *Subscriber) OnUpdate(handler func(Update)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = handler
}

func (s *Subscriber) Connected() bool {
	return s.transport.Connected()
}

// Position returns the displayed position and when it was last updated. The
// time is zero while the fallback is shown.
func (s *Subscriber) Position() (domain.Position, time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position, s.lastUpdated
}

func (s *Subscriber) OrderID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orderID
}

// Unsubscribe leaves the room and drops the update handler. Calling it
// again, or without a subscription, does nothing.
func (s *Subscriber) Unsubscribe() {
	s.mu.Lock()
	orderID := s.orderID
	s.orderID = ""
	s.handler = nil
	s.barrier = 0
	s.mu.Unlock()

	if orderID == "" {
		return
	}
	s.emit(domain.EventLeaveOrderRoom, orderID)
}

func (s *Subscriber) receive(data json.RawMessage) {
	var payload locationPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		slog.Warn("invalid location update", "error", err)
		return
	}
	if err := validate.Struct(payload); err != nil {
		slog.Warn("invalid location update", "error", err)
		return
	}
	p := domain.Position{Lat: *payload.Lat, Lng: *payload.Lng}

	s.mu.Lock()
	if s.orderID == "" || s.barrier != 0 {
		s.mu.Unlock()
		return
	}
	s.position = p
	s.lastUpdated = s.now()
	update := Update{Position: p, UpdatedAt: s.lastUpdated}
	handler := s.handler
	s.mu.Unlock()

	s.view.Recenter(p)
	if handler != nil {
		handler(update)
	}
}

// settle sends the ping that ends the switch window. Without a live
// connection there is nothing left from the old room to wait for.
func (s *Subscriber) settle(barrier int64) {
	if err := s.transport.Emit(domain.EventPing, domain.Ping{Timestamp: barrier}); err != nil {
		s.lift(barrier)
	}
}

func (s *Subscriber) pong(data json.RawMessage) {
	var p domain.Ping
	if err := json.Unmarshal(data, &p); err != nil {
		return
	}
	s.lift(p.Timestamp)
}

func (s *Subscriber) lift(barrier int64) {
	if barrier == 0 {
		return
	}
	s.mu.Lock()
	if s.barrier == barrier {
		s.barrier = 0
	}
	s.mu.Unlock()
}

func (s *Subscriber) connected() {
	s.mu.Lock()
	orderID := s.orderID
	s.barrier = 0
	s.mu.Unlock()

	if orderID != "" {
		s.emit(domain.EventJoinOrderRoom, orderID)
	}
	if s.onConnection != nil {
		s.onConnection(true)
	}
}

func (s *Subscriber) disconnected(error) {
	if s.onConnection != nil {
		s.onConnection(false)
	}
}

func (s *Subscriber) emit(event, orderID string) error {
	err := s.transport.Emit(event, orderID)
	if errors.Is(err, domain.ErrNotConnected) {
		slog.Debug("offline, deferring", "event", event, "orderId", orderID)
		return nil
	}
	if err != nil {
		slog.Warn("emit failed", "event", event, "orderId", orderID, "error", err)
	}
	return err
}
