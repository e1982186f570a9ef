package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/client"
	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/logging"
	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/publisher"
)

func main() {
	relayURL := flag.String("url", "ws://localhost:8080/ws", "Relay websocket URL")
	orderID := flag.String("order", "test_order_12345", "Order to publish positions for")
	token := flag.String("token", "", "Driver access token, if the relay requires one")
	interval := flag.Duration("interval", 3*time.Second, "Interval between published positions")
	grace := flag.Duration("grace", 2*time.Second, "Delay before disconnecting once the path is done")
	logLevel := flag.String("log-level", "info", "debug, info, warn or error")
	flag.Parse()

	if flag.NArg() > 0 {
		*orderID = flag.Arg(0)
	}
	logging.Setup(os.Stdout, *logLevel, "text")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn := client.New(client.Options{URL: *relayURL, Token: *token})
	conn.OnDisconnect(func(err error) {
		slog.Warn("relay connection lost", "error", err)
	})

	path := publisher.MaduraiPath()
	pub := publisher.New(conn, publisher.NewPathProvider(path))

	if err := conn.Connect(ctx); err != nil {
		slog.Error("failed to connect to relay", "url", *relayURL, "error", err)
		os.Exit(1)
	}
	slog.Info("driver simulation started", "orderId", *orderID, "waypoints", len(path))

	if err := pub.StartPublishing(ctx, *orderID, *interval); err != nil {
		slog.Error("failed to start publishing", "error", err)
		conn.Close()
		os.Exit(1)
	}

	select {
	case <-pub.Done():
		slog.Info("path complete, disconnecting", "grace", *grace)
		select {
		case <-time.After(*grace):
		case <-ctx.Done():
		}
	case <-ctx.Done():
		slog.Info("received shutdown signal, stopping")
		pub.StopPublishing()
	}
	conn.Close()
}
