package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/auth"
	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/config"
	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/logging"
	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/orders"
)

const usage = `usage:
  relay-admin assign -order ID [-buyer ID] [-driver ID] [-farmer ID] [-status placed|in_transit|delivered]
  relay-admin token -user ID -role buyer|driver|farmer|admin [-ttl 24h]`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logging.Setup(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	switch os.Args[1] {
	case "assign":
		err = assign(cfg, os.Args[2:])
	case "token":
		err = token(cfg, os.Args[2:])
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		slog.Error(os.Args[1]+" failed", "error", err)
		os.Exit(1)
	}
}

func assign(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("assign", flag.ExitOnError)
	orderID := fs.String("order", "", "Order id")
	buyer := fs.String("buyer", "", "Buyer user id")
	driver := fs.String("driver", "", "Driver user id")
	farmer := fs.String("farmer", "", "Farmer user id")
	status := fs.String("status", orders.StatusPlaced, "Delivery status")
	fs.Parse(args)

	if *orderID == "" {
		return fmt.Errorf("-order is required")
	}
	switch *status {
	case orders.StatusPlaced, orders.StatusInTransit, orders.StatusDelivered:
	default:
		return fmt.Errorf("unknown status %q", *status)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	store, err := orders.Open(ctx, cfg.Orders.Driver, cfg.Orders.DSN)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("ORDERS_DRIVER is not configured")
	}
	defer store.Close()

	a := orders.Assignment{
		OrderID:  *orderID,
		BuyerID:  *buyer,
		DriverID: *driver,
		FarmerID: *farmer,
		Status:   *status,
	}
	if err := store.Assign(ctx, a); err != nil {
		return err
	}
	slog.Info("order assigned", "orderId", a.OrderID, "buyer", a.BuyerID, "driver", a.DriverID, "status", a.Status)
	return nil
}

func token(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("token", flag.ExitOnError)
	user := fs.String("user", "", "User id")
	role := fs.String("role", auth.RoleBuyer, "Role")
	ttl := fs.Duration("ttl", cfg.Auth.TokenTTL, "Token lifetime")
	fs.Parse(args)

	if cfg.Auth.Secret == "" {
		return fmt.Errorf("JWT_SECRET is not set")
	}
	if *user == "" {
		return fmt.Errorf("-user is required")
	}
	switch *role {
	case auth.RoleBuyer, auth.RoleDriver, auth.RoleFarmer, auth.RoleAdmin:
	default:
		return fmt.Errorf("unknown role %q", *role)
	}

	tok, err := auth.NewTokenService(cfg.Auth.Secret, *ttl).GenerateToken(*user, *role)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
