package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/client"
	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/domain"
	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/logging"
	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/subscriber"
)

func main() {
	relayURL := flag.String("url", "ws://localhost:8080/ws", "Relay websocket URL")
	orderID := flag.String("order", "", "Order to follow")
	token := flag.String("token", "", "Buyer access token, if the relay requires one")
	lat := flag.Float64("lat", subscriber.DefaultFallback.Lat, "Latitude shown until the first update")
	lng := flag.Float64("lng", subscriber.DefaultFallback.Lng, "Longitude shown until the first update")
	zoom := flag.Int("zoom", subscriber.DefaultZoom, "Map zoom level")
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Parse()

	logging.Setup(os.Stdout, *logLevel, "text")
	if *orderID == "" {
		slog.Error("order is required")
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn := client.New(client.Options{URL: *relayURL, Token: *token})
	view := subscriber.NewViewport(*zoom)
	sub := subscriber.New(conn, view, subscriber.WithConnectionHandler(func(connected bool) {
		slog.Info("connection state", "connected", connected)
	}))
	conn.On(domain.EventError, func(data json.RawMessage) {
		slog.Warn("relay rejected request", "error", string(data))
	})

	sub.OnUpdate(func(u subscriber.Update) {
		center := view.Center()
		slog.Info("driver location",
			"lat", u.Position.Lat,
			"lng", u.Position.Lng,
			"updatedAt", u.UpdatedAt.Format("15:04:05"),
			"center", center,
			"zoom", view.Zoom(),
		)
	})

	if err := conn.Connect(ctx); err != nil {
		slog.Error("failed to connect to relay", "url", *relayURL, "error", err)
		os.Exit(1)
	}
	if err := sub.Subscribe(*orderID, domain.Position{Lat: *lat, Lng: *lng}); err != nil {
		slog.Error("subscribe failed", "orderId", *orderID, "error", err)
		conn.Close()
		os.Exit(1)
	}
	slog.Info("tracking order", "orderId", *orderID)

	<-ctx.Done()
	sub.Unsubscribe()
	conn.Close()
}
