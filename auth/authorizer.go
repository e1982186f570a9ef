package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/domain"
	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/orders"
)

// OpenAuthorizer lets any connection join any room and publish to any order.
type OpenAuthorizer struct{}

func (OpenAuthorizer) CanJoin(context.Context, domain.Principal, string) error    { return nil }
func (OpenAuthorizer) CanPublish(context.Context, domain.Principal, string) error { return nil }

type Assignments interface {
	Assignment(ctx context.Context, orderID string) (orders.Assignment, error)
}

// OrderAuthorizer restricts order rooms to the order's buyer and driver and
// publishing to the assigned driver while the delivery is active.
type OrderAuthorizer struct {
	assignments Assignments
}

func NewOrderAuthorizer(a Assignments) *OrderAuthorizer {
	return &OrderAuthorizer{assignments: a}
}

func (o *OrderAuthorizer) CanJoin(ctx context.Context, p domain.Principal, room string) error {
	if p.Role == RoleAdmin {
		return nil
	}
	if p.UserID == "" {
		return fmt.Errorf("%w: anonymous connection", domain.ErrForbidden)
	}

	if orderID, ok := domain.OrderFromRoom(room); ok {
		a, err := o.load(ctx, orderID)
		if err != nil {
			return err
		}
		if a.BuyerID == p.UserID || a.DriverID == p.UserID {
			return nil
		}
		return fmt.Errorf("%w: %s is not a participant of order %s", domain.ErrForbidden, p.UserID, orderID)
	}

	if domain.FarmerRoom(p.UserID) == room {
		return nil
	}
	return fmt.Errorf("%w: room %s", domain.ErrForbidden, strings.TrimSpace(room))
}

func (o *OrderAuthorizer) CanPublish(ctx context.Context, p domain.Principal, orderID string) error {
	if p.Role == RoleAdmin {
		return nil
	}
	a, err := o.load(ctx, orderID)
	if err != nil {
		return err
	}
	if !a.Active() {
		return fmt.Errorf("%w: order %s is %s", domain.ErrForbidden, orderID, a.Status)
	}
	if a.DriverID == "" || a.DriverID != p.UserID {
		return fmt.Errorf("%w: %s is not the driver of order %s", domain.ErrForbidden, p.UserID, orderID)
	}
	return nil
}

func (o *OrderAuthorizer) load(ctx context.Context, orderID string) (orders.Assignment, error) {
	a, err := o.assignments.Assignment(ctx, orderID)
	if errors.Is(err, domain.ErrOrderNotFound) {
		return orders.Assignment{}, fmt.Errorf("%w: %v", domain.ErrForbidden, err)
	}
	if err != nil {
		return orders.Assignment{}, err
	}
	return a, nil
}
