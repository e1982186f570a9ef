package publisher

import (
	"context"
	"sync"

	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/domain"
)

// LocationProvider reports the device position on every tick.
type LocationProvider interface {
	Location(ctx context.Context) (domain.Position, error)
}

type ProviderFunc func(ctx context.Context) (domain.Position, error)

func (f ProviderFunc) Location(ctx context.Context) (domain.Position, error) { return f(ctx) }

// PathProvider walks a fixed list of waypoints and then reports
// domain.ErrPathExhausted.
type PathProvider struct {
	mu   sync.Mutex
	path []domain.Position
	next int
}

func NewPathProvider(path []domain.Position) *PathProvider {
	return &PathProvider{path: append([]domain.Position(nil), path...)}
}

func (p *PathProvider) Location(context.Context) (domain.Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.next >= len(p.path) {
		return domain.Position{}, domain.ErrPathExhausted
	}
	pos := p.path[p.next]
	p.next++
	return pos, nil
}

func (p *PathProvider) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.path) - p.next
}

// MaduraiPath is a short drive through Madurai used by the simulator.
func MaduraiPath() []domain.Position {
	return []domain.Position{
		{Lat: 9.9252, Lng: 78.1198},
		{Lat: 9.9265, Lng: 78.1210},
		{Lat: 9.9280, Lng: 78.1225},
		{Lat: 9.9300, Lng: 78.1240},
		{Lat: 9.9320, Lng: 78.1260},
		{Lat: 9.9340, Lng: 78.1280},
		{Lat: 9.9360, Lng: 78.1300},
		{Lat: 9.9380, Lng: 78.1320},
		{Lat: 9.9400, Lng: 78.1340},
		{Lat: 9.9420, Lng: 78.1360},
	}
}
