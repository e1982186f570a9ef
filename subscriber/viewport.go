package subscriber

import (
	"sync"

	"github.com/rohith-kanna-jr-2006/Agro-direct-mobile-app-sub001/domain"
)

const DefaultZoom = 15

// MapView is the map the subscriber drives.
type MapView interface {
	// Recenter moves the view to p without changing the zoom level.
	Recenter(p domain.Position)
}

// Viewport is an in-memory MapView.
type Viewport struct {
	mu     sync.RWMutex
	center domain.Position
	zoom   int
}

func NewViewport(zoom int) *Viewport {
	if zoom <= 0 {
		zoom = DefaultZoom
	}
	return &Viewport{zoom: zoom}
}

func (v *Viewport) Recenter(p domain.Position) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.center = p
}

func (v *Viewport) SetZoom(zoom int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.zoom = zoom
}

func (v *Viewport) Center() domain.Position {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.center
}

func (v *Viewport) Zoom() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.zoom
}
