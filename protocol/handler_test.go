package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/domain"
)

type mockConn struct {
	id        string
	principal domain.Principal
	sent      [][]byte
	mu        sync.Mutex
}

func (m *mockConn) ID() string                  { return m.id }
func (m *mockConn) Principal() domain.Principal { return m.principal }

func (m *mockConn) Send(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, data)
	return nil
}

func (m *mockConn) Close() error { return nil }

func (m *mockConn) getSent() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sent
}

type publishCall struct {
	senderID string
	room     string
	data     []byte
}

type mockRelay struct {
	joins     []string
	leaves    []string
	publishes []publishCall
	mu        sync.Mutex
}

func (m *mockRelay) Join(conn domain.Connection, room string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.joins = append(m.joins, room)
	return true
}

func (m *mockRelay) Leave(conn domain.Connection, room string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.leaves = append(m.leaves, room)
}

func (m *mockRelay) Publish(sender domain.Connection, room string, data []byte) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishes = append(m.publishes, publishCall{senderID: sender.ID(), room: room, data: data})
	return 1
}

func (m *mockRelay) Deliver(string, []byte) int   { return 0 }
func (m *mockRelay) Disconnect(domain.Connection) {}
func (m *mockRelay) Stats() (rooms, clients int)  { return 0, 0 }

func (m *mockRelay) getPublishes() []publishCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.publishes
}

type denyAll struct{}

func (denyAll) CanJoin(context.Context, domain.Principal, string) error {
	return fmt.Errorf("%w: test", domain.ErrForbidden)
}

func (denyAll) CanPublish(context.Context, domain.Principal, string) error {
	return fmt.Errorf("%w: test", domain.ErrForbidden)
}

type allowAll struct{}

func (allowAll) CanJoin(context.Context, domain.Principal, string) error    { return nil }
func (allowAll) CanPublish(context.Context, domain.Principal, string) error { return nil }

func frame(t *testing.T, event string, payload any) []byte {
	t.Helper()
	data, err := domain.EncodeFrame(event, payload)
	require.NoError(t, err)
	return data
}

func decode(t *testing.T, data []byte) (domain.Frame, map[string]any) {
	t.Helper()
	var f domain.Frame
	require.NoError(t, json.Unmarshal(data, &f))
	var body map[string]any
	if len(f.Data) > 0 {
		require.NoError(t, json.Unmarshal(f.Data, &body))
	}
	return f, body
}

func TestHandler_PingPong(t *testing.T) {
	relay := &mockRelay{}
	handler := NewHandler(relay, allowAll{}, nil)
	conn := &mockConn{id: "client1"}

	handler.Handle(conn, frame(t, domain.EventPing, domain.Ping{Timestamp: 12345}))

	sent := conn.getSent()
	require.Len(t, sent, 1)

	f, body := decode(t, sent[0])
	assert.Equal(t, domain.EventPong, f.Event)
	assert.Equal(t, float64(12345), body["timestamp"])
	assert.Equal(t, "client1", body["clientId"])
	assert.Empty(t, relay.getPublishes())
}

func TestHandler_JoinOrderRoom(t *testing.T) {
	relay := &mockRelay{}
	handler := NewHandler(relay, allowAll{}, nil)
	conn := &mockConn{id: "buyer"}

	handler.Handle(conn, frame(t, domain.EventJoinOrderRoom, "order_42"))
	handler.Handle(conn, frame(t, domain.EventJoinFarmerRoom, "farmer@example.com"))
	handler.Handle(conn, frame(t, domain.EventLeaveOrderRoom, "order_42"))
	handler.Handle(conn, frame(t, domain.EventLeaveFarmerRoom, "farmer@example.com"))

	assert.Equal(t, []string{"order:order_42", "farmer:farmer@example.com"}, relay.joins)
	assert.Equal(t, []string{"order:order_42", "farmer:farmer@example.com"}, relay.leaves)
	assert.Empty(t, conn.getSent())
}

func TestHandler_SendLocation(t *testing.T) {
	relay := &mockRelay{}
	handler := NewHandler(relay, allowAll{}, nil)
	conn := &mockConn{id: "driver"}

	handler.Handle(conn, []byte(`{"event":"send_location","data":{"orderId":"order_42","lat":9.9252,"lng":78.1198}}`))

	publishes := relay.getPublishes()
	require.Len(t, publishes, 1)
	assert.Equal(t, "driver", publishes[0].senderID)
	assert.Equal(t, "order:order_42", publishes[0].room)

	f, body := decode(t, publishes[0].data)
	assert.Equal(t, domain.EventReceiveLocation, f.Event)
	assert.Equal(t, map[string]any{"lat": 9.9252, "lng": 78.1198}, body)
	assert.Empty(t, conn.getSent())
}

func TestHandler_SendLocationAtOrigin(t *testing.T) {
	relay := &mockRelay{}
	handler := NewHandler(relay, allowAll{}, nil)
	conn := &mockConn{id: "driver"}

	handler.Handle(conn, []byte(`{"event":"send_location","data":{"orderId":"o","lat":0,"lng":0}}`))

	assert.Len(t, relay.getPublishes(), 1)
	assert.Empty(t, conn.getSent())
}

func TestHandler_Rejections(t *testing.T) {
	tests := []struct {
		name     string
		authz    domain.Authorizer
		data     string
		wantCode string
	}{
		{name: "invalid json", authz: allowAll{}, data: "not json", wantCode: domain.CodeInvalidPayload},
		{name: "unknown event", authz: allowAll{}, data: `{"event":"teleport","data":{}}`, wantCode: domain.CodeUnknownEvent},
		{name: "missing order id", authz: allowAll{}, data: `{"event":"send_location","data":{"lat":1,"lng":2}}`, wantCode: domain.CodeInvalidPayload},
		{name: "missing lat", authz: allowAll{}, data: `{"event":"send_location","data":{"orderId":"o","lng":2}}`, wantCode: domain.CodeInvalidPayload},
		{name: "non numeric lng", authz: allowAll{}, data: `{"event":"send_location","data":{"orderId":"o","lat":1,"lng":"east"}}`, wantCode: domain.CodeInvalidPayload},
		{name: "lat out of range", authz: allowAll{}, data: `{"event":"send_location","data":{"orderId":"o","lat":91,"lng":2}}`, wantCode: domain.CodeInvalidPayload},
		{name: "lng out of range", authz: allowAll{}, data: `{"event":"send_location","data":{"orderId":"o","lat":1,"lng":-180.5}}`, wantCode: domain.CodeInvalidPayload},
		{name: "join with object", authz: allowAll{}, data: `{"event":"join_order_room","data":{"id":1}}`, wantCode: domain.CodeInvalidPayload},
		{name: "join with blank id", authz: allowAll{}, data: `{"event":"join_order_room","data":"  "}`, wantCode: domain.CodeInvalidPayload},
		{name: "leave farmer room without id", authz: allowAll{}, data: `{"event":"leave_farmer_room"}`, wantCode: domain.CodeInvalidPayload},
		{name: "join forbidden", authz: denyAll{}, data: `{"event":"join_order_room","data":"order_42"}`, wantCode: domain.CodeForbidden},
		{name: "publish forbidden", authz: denyAll{}, data: `{"event":"send_location","data":{"orderId":"o","lat":1,"lng":2}}`, wantCode: domain.CodeForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			relay := &mockRelay{}
			handler := NewHandler(relay, tt.authz, nil)
			conn := &mockConn{id: "client1"}

			handler.Handle(conn, []byte(tt.data))

			assert.Empty(t, relay.getPublishes())
			assert.Empty(t, relay.joins)

			sent := conn.getSent()
			require.Len(t, sent, 1)
			f, body := decode(t, sent[0])
			assert.Equal(t, domain.EventError, f.Event)
			assert.Equal(t, tt.wantCode, body["code"])
			assert.NotEmpty(t, body["message"])
		})
	}
}
