package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/domain"
	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/metrics"
)

const authTimeout = 2 * time.Second

var tracer = otel.Tracer("relay-protocol")

// Handler turns inbound frames into relay operations. Failures are answered
// with an error frame to the sender and never reach other room members.
type Handler struct {
	relay    domain.Relay
	authz    domain.Authorizer
	validate *validator.Validate
	metrics  *metrics.Metrics
}

func NewHandler(r domain.Relay, authz domain.Authorizer, m *metrics.Metrics) *Handler {
	if m == nil {
		m = metrics.New(nil)
	}
	return &Handler{
		relay:    r,
		authz:    authz,
		validate: validator.New(),
		metrics:  m,
	}
}

func (h *Handler) Handle(conn domain.Connection, data []byte) {
	var frame domain.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		slog.Warn("invalid message", "clientId", conn.ID(), "error", err)
		h.reject(conn, "", domain.CodeInvalidPayload, "message is not a valid frame")
		return
	}

	ctx, span := tracer.Start(context.Background(), "relay."+frame.Event, trace.WithAttributes(
		attribute.String("relay.client_id", conn.ID()),
		attribute.String("relay.event", frame.Event),
	))
	defer span.End()

	var err error
	switch frame.Event {
	case domain.EventPing:
		err = h.ping(conn, frame.Data)
	case domain.EventJoinOrderRoom:
		err = h.join(ctx, conn, frame.Event, frame.Data, domain.OrderRoom)
	case domain.EventJoinFarmerRoom:
		err = h.join(ctx, conn, frame.Event, frame.Data, domain.FarmerRoom)
	case domain.EventLeaveOrderRoom:
		err = h.leave(conn, frame.Data, domain.OrderRoom)
	case domain.EventLeaveFarmerRoom:
		err = h.leave(conn, frame.Data, domain.FarmerRoom)
	case domain.EventSendLocation:
		err = h.sendLocation(ctx, conn, frame.Data)
	default:
		err = fmt.Errorf("%w: %q", domain.ErrUnknownEvent, frame.Event)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("event rejected", "clientId", conn.ID(), "event", frame.Event, "error", err)
		h.reject(conn, frame.Event, errorCode(err), err.Error())
	}
}

func (h *Handler) ping(conn domain.Connection, data json.RawMessage) error {
	var ping domain.Ping
	if len(data) > 0 {
		if err := json.Unmarshal(data, &ping); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
		}
	}
	h.send(conn, domain.EventPong, domain.Ping{Timestamp: ping.Timestamp, ClientID: conn.ID()})
	return nil
}

func (h *Handler) join(ctx context.Context, conn domain.Connection, event string, data json.RawMessage, roomOf func(string) string) error {
	id, err := decodeID(data)
	if err != nil {
		return err
	}
	room := roomOf(id)

	authCtx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()
	if err := h.authz.CanJoin(authCtx, conn.Principal(), room); err != nil {
		return err
	}

	h.relay.Join(conn, room)
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("relay.room", room))
	slog.Debug("join handled", "clientId", conn.ID(), "event", event, "room", room)
	return nil
}

func (h *Handler) leave(conn domain.Connection, data json.RawMessage, roomOf func(string) string) error {
	id, err := decodeID(data)
	if err != nil {
		return err
	}
	h.relay.Leave(conn, roomOf(id))
	return nil
}

func (h *Handler) sendLocation(ctx context.Context, conn domain.Connection, data json.RawMessage) error {
	var update domain.LocationUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	update.OrderID = strings.TrimSpace(update.OrderID)
	if err := h.validate.Struct(update); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	authCtx, cancel := context.WithTimeout(ctx, authTimeout)
	defer cancel()
	if err := h.authz.CanPublish(authCtx, conn.Principal(), update.OrderID); err != nil {
		return err
	}

	out, err := domain.EncodeFrame(domain.EventReceiveLocation, update.Position())
	if err != nil {
		return err
	}
	n := h.relay.Publish(conn, domain.OrderRoom(update.OrderID), out)
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("relay.order_id", update.OrderID),
		attribute.Int("relay.delivered", n),
	)
	slog.Debug("location relayed", "clientId", conn.ID(), "orderId", update.OrderID, "delivered", n)
	return nil
}

func (h *Handler) reject(conn domain.Connection, event, code, message string) {
	h.metrics.Rejected.WithLabelValues(event, code).Inc()
	h.send(conn, domain.EventError, domain.ErrorPayload{Code: code, Event: event, Message: message})
}

func (h *Handler) send(conn domain.Connection, event string, payload any) {
	resp, err := domain.EncodeFrame(event, payload)
	if err != nil {
		slog.Warn("marshal error", "clientId", conn.ID(), "error", err)
		return
	}
	if err := conn.Send(resp); err != nil {
		slog.Warn("send failed", "clientId", conn.ID(), "event", event, "error", err)
	}
}

func decodeID(data json.RawMessage) (string, error) {
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		return "", fmt.Errorf("%w: expected a string identifier", domain.ErrInvalidPayload)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("%w: empty identifier", domain.ErrInvalidPayload)
	}
	return id, nil
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, domain.ErrForbidden):
		return domain.CodeForbidden
	case errors.Is(err, domain.ErrUnknownEvent):
		return domain.CodeUnknownEvent
	case errors.Is(err, domain.ErrInvalidPayload):
		return domain.CodeInvalidPayload
	default:
		return "internal"
	}
}
