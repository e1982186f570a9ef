package subscriber

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/client"
	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/domain"
)

type emitted struct {
	event   string
	orderID string
}

type fakeTransport struct {
	mu           sync.Mutex
	online       bool
	emitted      []emitted
	pings        []int64
	handlers     map[string]client.Handler
	onConnect    []func()
	onDisconnect []func(error)
}

func newFakeTransport(online bool) *fakeTransport {
	return &fakeTransport{online: online, handlers: make(map[string]client.Handler)}
}

func (f *fakeTransport) Emit(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.online {
		return domain.ErrNotConnected
	}
	if ping, ok := payload.(domain.Ping); ok {
		f.pings = append(f.pings, ping.Timestamp)
	}
	id, _ := payload.(string)
	f.emitted = append(f.emitted, emitted{event: event, orderID: id})
	return nil
}

func (f *fakeTransport) On(event string, h client.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[event] = h
}

func (f *fakeTransport) OnConnect(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onConnect = append(f.onConnect, fn)
}

func (f *fakeTransport) OnDisconnect(fn func(error)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onDisconnect = append(f.onDisconnect, fn)
}

func (f *fakeTransport) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.online
}

func (f *fakeTransport) connect() {
	f.mu.Lock()
	f.online = true
	hooks := append([]func(){}, f.onConnect...)
	f.mu.Unlock()
	for _, fn := range hooks {
		fn()
	}
}

func (f *fakeTransport) drop() {
	f.mu.Lock()
	f.online = false
	hooks := append([]func(error){}, f.onDisconnect...)
	f.mu.Unlock()
	for _, fn := range hooks {
		fn(errors.New("connection reset"))
	}
}

func (f *fakeTransport) deliver(t *testing.T, p domain.Position) {
	t.Helper()
	data, err := json.Marshal(p)
	require.NoError(t, err)
	f.fire(t, domain.EventReceiveLocation, data)
}

func (f *fakeTransport) fire(t *testing.T, event string, data json.RawMessage) {
	t.Helper()
	f.mu.Lock()
	h := f.handlers[event]
	f.mu.Unlock()
	require.NotNil(t, h)
	h(data)
}

func (f *fakeTransport) pong(t *testing.T, timestamp int64) {
	t.Helper()
	data, err := json.Marshal(domain.Ping{Timestamp: timestamp})
	require.NoError(t, err)
	f.fire(t, domain.EventPong, data)
}

func (f *fakeTransport) lastPing(t *testing.T) int64 {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.pings)
	return f.pings[len(f.pings)-1]
}

func (f *fakeTransport) sent() []emitted {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]emitted(nil), f.emitted...)
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func TestSubscriber_SubscribeShowsFallback(t *testing.T) {
	tr := newFakeTransport(true)
	view := NewViewport(DefaultZoom)
	s := New(tr, view)

	require.NoError(t, s.Subscribe("order_42", DefaultFallback))

	pos, updated := s.Position()
	assert.Equal(t, DefaultFallback, pos)
	assert.True(t, updated.IsZero())
	assert.Equal(t, DefaultFallback, view.Center())
	assert.Equal(t, []emitted{{domain.EventJoinOrderRoom, "order_42"}}, tr.sent())
}

func TestSubscriber_UpdateReplacesPositionAndRecenters(t *testing.T) {
	tr := newFakeTransport(true)
	clock := &fakeClock{now: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)}
	view := NewViewport(DefaultZoom)
	view.SetZoom(12)
	s := New(tr, view, WithClock(clock.Now))

	var updates []Update
	s.OnUpdate(func(u Update) { updates = append(updates, u) })
	require.NoError(t, s.Subscribe("order_42", DefaultFallback))

	tr.deliver(t, domain.Position{Lat: 9.9252, Lng: 78.1198})
	clock.advance(3 * time.Second)
	tr.deliver(t, domain.Position{Lat: 9.9265, Lng: 78.1210})

	require.Len(t, updates, 2)
	assert.Equal(t, domain.Position{Lat: 9.9252, Lng: 78.1198}, updates[0].Position)
	assert.Equal(t, clock.now.Add(-3*time.Second), updates[0].UpdatedAt)

	pos, updated := s.Position()
	assert.Equal(t, domain.Position{Lat: 9.9265, Lng: 78.1210}, pos)
	assert.Equal(t, clock.now, updated)
	assert.Equal(t, pos, view.Center())
	assert.Equal(t, 12, view.Zoom())
}

func TestSubscriber_ConnectionState(t *testing.T) {
	tr := newFakeTransport(true)
	var states []bool
	s := New(tr, nil, WithConnectionHandler(func(c bool) { states = append(states, c) }))
	require.NoError(t, s.Subscribe("order_7", DefaultFallback))
	assert.True(t, s.Connected())

	tr.drop()
	assert.False(t, s.Connected())

	tr.connect()
	assert.True(t, s.Connected())
	assert.Equal(t, []bool{false, true}, states)
	assert.Equal(t, []emitted{
		{domain.EventJoinOrderRoom, "order_7"},
		{domain.EventJoinOrderRoom, "order_7"},
	}, tr.sent())
}

func TestSubscriber_SubscribeWhileOffline(t *testing.T) {
	tr := newFakeTransport(false)
	s := New(tr, nil)

	require.NoError(t, s.Subscribe("order_7", DefaultFallback))
	assert.Empty(t, tr.sent())

	tr.connect()
	assert.Equal(t, []emitted{{domain.EventJoinOrderRoom, "order_7"}}, tr.sent())
}

func TestSubscriber_SwitchOrder(t *testing.T) {
	tr := newFakeTransport(true)
	s := New(tr, nil)

	require.NoError(t, s.Subscribe("order_1", DefaultFallback))
	require.NoError(t, s.Subscribe("order_2", DefaultFallback))

	assert.Equal(t, "order_2", s.OrderID())
	assert.Equal(t, []emitted{
		{domain.EventJoinOrderRoom, "order_1"},
		{domain.EventLeaveOrderRoom, "order_1"},
		{domain.EventJoinOrderRoom, "order_2"},
		{domain.EventPing, ""},
	}, tr.sent())
}

func TestSubscriber_SwitchIgnoresOldRoomUntilPong(t *testing.T) {
	tr := newFakeTransport(true)
	s := New(tr, nil)

	calls := 0
	s.OnUpdate(func(Update) { calls++ })
	require.NoError(t, s.Subscribe("order_1", DefaultFallback))
	fallback := domain.Position{Lat: 9.93, Lng: 78.12}
	require.NoError(t, s.Subscribe("order_2", fallback))

	tr.deliver(t, domain.Position{Lat: 1, Lng: 1})
	tr.pong(t, tr.lastPing(t)+1)
	tr.deliver(t, domain.Position{Lat: 2, Lng: 2})

	pos, updated := s.Position()
	assert.Equal(t, fallback, pos)
	assert.True(t, updated.IsZero())
	assert.Zero(t, calls)

	tr.pong(t, tr.lastPing(t))
	tr.deliver(t, domain.Position{Lat: 3, Lng: 3})

	pos, _ = s.Position()
	assert.Equal(t, domain.Position{Lat: 3, Lng: 3}, pos)
	assert.Equal(t, 1, calls)
}

func TestSubscriber_SwitchWhileOfflineNeedsNoPong(t *testing.T) {
	tr := newFakeTransport(true)
	s := New(tr, nil)
	require.NoError(t, s.Subscribe("order_1", DefaultFallback))

	tr.drop()
	require.NoError(t, s.Subscribe("order_2", DefaultFallback))
	tr.connect()
	tr.deliver(t, domain.Position{Lat: 4, Lng: 4})

	pos, _ := s.Position()
	assert.Equal(t, domain.Position{Lat: 4, Lng: 4}, pos)
	assert.Equal(t, []emitted{
		{domain.EventJoinOrderRoom, "order_1"},
		{domain.EventJoinOrderRoom, "order_2"},
	}, tr.sent())
}

func TestSubscriber_Unsubscribe(t *testing.T) {
	tr := newFakeTransport(true)
	s := New(tr, nil)

	s.Unsubscribe()
	assert.Empty(t, tr.sent())

	calls := 0
	s.OnUpdate(func(Update) { calls++ })
	require.NoError(t, s.Subscribe("order_42", DefaultFallback))
	s.Unsubscribe()
	s.Unsubscribe()

	tr.deliver(t, domain.Position{Lat: 1, Lng: 1})
	tr.drop()
	tr.connect()

	assert.Zero(t, calls)
	assert.Equal(t, []emitted{
		{domain.EventJoinOrderRoom, "order_42"},
		{domain.EventLeaveOrderRoom, "order_42"},
	}, tr.sent())
}

func TestSubscriber_IgnoresMalformedUpdate(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "not an object", data: `"somewhere"`},
		{name: "empty object", data: `{}`},
		{name: "missing lng", data: `{"lat":1}`},
		{name: "missing lat", data: `{"lng":1}`},
		{name: "null coordinates", data: `{"lat":null,"lng":null}`},
		{name: "non numeric", data: `{"lat":"north","lng":2}`},
		{name: "lat out of range", data: `{"lat":90.5,"lng":2}`},
		{name: "lng out of range", data: `{"lat":1,"lng":181}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newFakeTransport(true)
			view := NewViewport(DefaultZoom)
			s := New(tr, view)
			calls := 0
			s.OnUpdate(func(Update) { calls++ })
			require.NoError(t, s.Subscribe("order_42", DefaultFallback))

			tr.fire(t, domain.EventReceiveLocation, json.RawMessage(tt.data))

			pos, updated := s.Position()
			assert.Equal(t, DefaultFallback, pos)
			assert.True(t, updated.IsZero())
			assert.Equal(t, DefaultFallback, view.Center())
			assert.Zero(t, calls)
		})
	}
}

func TestSubscriber_EmptyOrder(t *testing.T) {
	s := New(newFakeTransport(true), nil)
	assert.ErrorIs(t, s.Subscribe("  ", DefaultFallback), domain.ErrInvalidPayload)
}

func TestViewport_RecenterKeepsZoom(t *testing.T) {
	v := NewViewport(0)
	assert.Equal(t, DefaultZoom, v.Zoom())

	v.SetZoom(17)
	v.Recenter(domain.Position{Lat: 9.93, Lng: 78.12})
	assert.Equal(t, domain.Position{Lat: 9.93, Lng: 78.12}, v.Center())
	assert.Equal(t, 17, v.Zoom())
}
