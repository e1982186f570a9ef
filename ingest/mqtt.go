package ingest

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/go-playground/validator/v10"

	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/domain"
)

const connectTimeout = 10 * time.Second

type Options struct {
	Broker   string
	ClientID string
	// Topic may contain one '+' wildcard that stands for the order id.
	Topic string
}

// MQTT relays device positions published on a broker into order rooms.
// Every relay instance subscribes, so positions are delivered locally only.
type MQTT struct {
	client   mqtt.Client
	topic    string
	relay    domain.Relay
	validate *validator.Validate
}

func New(opts Options, relay domain.Relay) *MQTT {
	m := &MQTT{
		topic:    opts.Topic,
		relay:    relay,
		validate: validator.New(),
	}

	clientID := opts.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("order-relay-%d", time.Now().UnixNano())
	}
	co := mqtt.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetOrderMatters(true).
		SetOnConnectHandler(m.subscribe).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			slog.Warn("mqtt connection lost", "error", err)
		})
	m.client = mqtt.NewClient(co)
	return m
}

func (m *MQTT) Start() error {
	token := m.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		return errors.New("mqtt connect timed out")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

func (m *MQTT) Stop() {
	m.client.Disconnect(250)
}

func (m *MQTT) subscribe(c mqtt.Client) {
	token := c.Subscribe(m.topic, 0, m.onMessage)
	if token.WaitTimeout(connectTimeout) && token.Error() == nil {
		slog.Info("mqtt subscribed", "topic", m.topic)
		return
	}
	slog.Error("mqtt subscribe failed", "topic", m.topic, "error", token.Error())
}

func (m *MQTT) onMessage(_ mqtt.Client, msg mqtt.Message) {
	n, err := m.Ingest(msg.Topic(), msg.Payload())
	if err != nil {
		slog.Warn("mqtt position dropped", "topic", msg.Topic(), "error", err)
		return
	}
	slog.Debug("mqtt position relayed", "topic", msg.Topic(), "delivered", n)
}

// Ingest decodes one position message and delivers it to the order room.
// The order id in the payload wins over the one in the topic.
func (m *MQTT) Ingest(topic string, payload []byte) (int, error) {
	var update domain.LocationUpdate
	if err := json.Unmarshal(payload, &update); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}
	update.OrderID = strings.TrimSpace(update.OrderID)
	if update.OrderID == "" {
		update.OrderID = wildcardSegment(m.topic, topic)
	}
	if err := m.validate.Struct(update); err != nil {
		return 0, fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	frame, err := domain.EncodeFrame(domain.EventReceiveLocation, update.Position())
	if err != nil {
		return 0, err
	}
	return m.relay.Deliver(domain.OrderRoom(update.OrderID), frame), nil
}

// wildcardSegment returns the topic level matched by the first '+' of filter.
func wildcardSegment(filter, topic string) string {
	fl := strings.Split(filter, "/")
	tl := strings.Split(topic, "/")
	for i, level := range fl {
		if i >= len(tl) {
			return ""
		}
		if level == "+" {
			return tl[i]
		}
	}
	return ""
}
