package domain

import (
	"context"
	"encoding/json"
)

// Frame is the envelope of every websocket message in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type Position struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// LocationUpdate is the send_location payload. Pointers let validation
// tell a missing coordinate apart from a zero one.
type LocationUpdate struct {
	OrderID string   `json:"orderId" validate:"required"`
	Lat     *float64 `json:"lat" validate:"required,latitude"`
	Lng     *float64 `json:"lng" validate:"required,longitude"`
}

func (u LocationUpdate) Position() Position {
	return Position{Lat: *u.Lat, Lng: *u.Lng}
}

type Ping struct {
	Timestamp int64  `json:"timestamp"`
	ClientID  string `json:"clientId,omitempty"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}

type Notification struct {
	Type    string `json:"type" validate:"omitempty,oneof=success error info"`
	Title   string `json:"title" validate:"required"`
	Message string `json:"message" validate:"required"`
}

type Principal struct {
	UserID string
	Role   string
}

type Connection interface {
	ID() string
	Principal() Principal
	Send(data []byte) error
	Close() error
}

// Relay owns room membership. Publish never echoes to the sender.
type Relay interface {
	Join(conn Connection, room string) bool
	Leave(conn Connection, room string)
	Publish(sender Connection, room string, data []byte) int
	Deliver(room string, data []byte) int
	Disconnect(conn Connection)
	Stats() (rooms, clients int)
}

type MessageHandler interface {
	Handle(conn Connection, data []byte)
}

type Authorizer interface {
	CanJoin(ctx context.Context, p Principal, room string) error
	CanPublish(ctx context.Context, p Principal, orderID string) error
}

// Forwarder carries locally published frames to other relay instances.
// Forward runs on the publisher's read path and must not block.
type Forwarder interface {
	Forward(room string, data []byte)
}
