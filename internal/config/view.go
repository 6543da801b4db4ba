package config

import "sync"

// ViewConfig is the YAML form of the view settings.
type ViewConfig struct {
	Distance       int     `yaml:"distance"`        // in chunks
	UpdateDistance float32 `yaml:"update_distance"` // viewer travel before the resident set is recomputed
}

// ViewSettings holds the runtime-adjustable viewing range of a session.
type ViewSettings struct {
	mu             sync.RWMutex
	distance       int
	updateDistance float32
}

// NewViewSettings builds runtime view settings from their YAML form.
func NewViewSettings(c ViewConfig) *ViewSettings {
	v := &ViewSettings{updateDistance: c.UpdateDistance}
	v.SetDistance(c.Distance)
	return v
}

// Distance returns the current view distance in chunks
func (v *ViewSettings) Distance() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.distance
}

// SetDistance sets the view distance in chunks
func (v *ViewSettings) SetDistance(distance int) {
	v.mu.Lock()
	defer v.mu.Unlock()

	// Clamp to reasonable values
	if distance < 1 {
		distance = 1
	}
	if distance > 32 {
		distance = 32
	}

	v.distance = distance
}

// EvictDistance returns the radius beyond which resident chunks are unloaded.
func (v *ViewSettings) EvictDistance() int {
	return v.Distance() + 1
}

// UpdateDistance returns how far the viewer moves before a resident set refresh.
func (v *ViewSettings) UpdateDistance() float32 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.updateDistance
}
