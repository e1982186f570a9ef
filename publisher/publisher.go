package publisher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/domain"
)

// Emitter is the driver's side of the relay connection.
type Emitter interface {
	Emit(event string, payload any) error
	OnConnect(fn func())
}

// Publisher sends the driver position for one order on a fixed cadence.
// Ticks are paced by the wall clock; Emit only queues, so a slow network
// never delays the next sample.
type Publisher struct {
	emitter  Emitter
	provider LocationProvider

	mu      sync.Mutex
	orderID string
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(e Emitter, p LocationProvider) *Publisher {
	pub := &Publisher{emitter: e, provider: p}
	e.OnConnect(pub.rejoin)
	return pub
}

func (p *Publisher) StartPublishing(ctx context.Context, orderID string, interval time.Duration) error {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return fmt.Errorf("%w: empty order id", domain.ErrInvalidPayload)
	}
	if interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", domain.ErrInvalidPayload)
	}

	p.mu.Lock()
	if p.cancel != nil {
		p.mu.Unlock()
		return domain.ErrAlreadyPublishing
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.orderID, p.cancel, p.done = orderID, cancel, done
	p.mu.Unlock()

	p.join(orderID)
	slog.Info("publishing started", "orderId", orderID, "interval", interval)
	go p.run(ctx, orderID, interval, done)
	return nil
}

// StopPublishing cancels the timer and waits for the loop to exit. It is a
// no-op when nothing is running.
func (p *Publisher) StopPublishing() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.orderID = nil, ""
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	slog.Info("publishing stopped")
}

func (p *Publisher) Publishing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Done is closed when the current run ends, either by StopPublishing or
// because the provider ran out of positions.
func (p *Publisher) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return p.done
}

func (p *Publisher) run(ctx context.Context, orderID string, interval time.Duration, done chan struct{}) {
	defer close(done)
	defer p.finish(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !p.tick(ctx, orderID) {
				return
			}
		}
	}
}

func (p *Publisher) tick(ctx context.Context, orderID string) bool {
	pos, err := p.provider.Location(ctx)
	if errors.Is(err, domain.ErrPathExhausted) {
		slog.Info("destination reached", "orderId", orderID)
		return false
	}
	if err != nil {
		slog.Warn("location unavailable", "orderId", orderID, "error", err)
		return true
	}

	lat, lng := pos.Lat, pos.Lng
	update := domain.LocationUpdate{OrderID: orderID, Lat: &lat, Lng: &lng}
	if err := p.emitter.Emit(domain.EventSendLocation, update); err != nil {
		slog.Warn("location not sent", "orderId", orderID, "error", err)
		return true
	}
	slog.Debug("location sent", "orderId", orderID, "lat", lat, "lng", lng)
	return true
}

func (p *Publisher) finish(done chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == done && p.cancel != nil {
		p.cancel()
		p.cancel, p.orderID = nil, ""
	}
}

// rejoin restores the room membership a reconnect drops.
func (p *Publisher) rejoin() {
	p.mu.Lock()
	orderID := p.orderID
	p.mu.Unlock()
	if orderID != "" {
		p.join(orderID)
	}
}

func (p *Publisher) join(orderID string) {
	err := p.emitter.Emit(domain.EventJoinOrderRoom, orderID)
	if err != nil && !errors.Is(err, domain.ErrNotConnected) {
		slog.Warn("join failed", "orderId", orderID, "error", err)
	}
}
