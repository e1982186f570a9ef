package domain

import (
	"encoding/json"
	"errors"
	"strings"
)

const (
	EventJoinOrderRoom   = "join_order_room"
	EventLeaveOrderRoom  = "leave_order_room"
	EventSendLocation    = "send_location"
	EventReceiveLocation = "receive_location"
	EventJoinFarmerRoom  = "join_farmer_room"
	EventLeaveFarmerRoom = "leave_farmer_room"
	EventNotification    = "notification"
	EventPing            = "ping"
	EventPong            = "pong"
	EventError           = "error"
)

const (
	CodeInvalidPayload = "invalid_payload"
	CodeUnknownEvent   = "unknown_event"
	CodeForbidden      = "forbidden"
)

var (
	ErrInvalidPayload    = errors.New("invalid payload")
	ErrUnknownEvent      = errors.New("unknown event")
	ErrForbidden         = errors.New("forbidden")
	ErrOrderNotFound     = errors.New("order not found")
	ErrNotConnected      = errors.New("not connected")
	ErrAlreadyPublishing = errors.New("already publishing")
	ErrPathExhausted     = errors.New("path exhausted")
)

const (
	orderRoomPrefix  = "order:"
	farmerRoomPrefix = "farmer:"
)

func OrderRoom(orderID string) string   { return orderRoomPrefix + orderID }
func FarmerRoom(farmerID string) string { return farmerRoomPrefix + farmerID }

// OrderFromRoom returns the order id of an order room.
func OrderFromRoom(room string) (string, bool) {
	if !strings.HasPrefix(room, orderRoomPrefix) {
		return "", false
	}
	return strings.TrimPrefix(room, orderRoomPrefix), true
}

// EncodeFrame marshals payload and wraps it in a Frame.
func EncodeFrame(event string, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}
