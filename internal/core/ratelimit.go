package core

import "time"

// WindowKey identifies one rate window.
type WindowKey struct {
	Client string
	Route  string
}

// RateWindow captures fixed-window counting state for one key.
type RateWindow struct {
	Count       int
	WindowStart time.Time
	Window      time.Duration
}

// Expired reports whether the window has fully elapsed at now.
// The boundary instant still belongs to the window.
func (w RateWindow) Expired(now time.Time) bool {
	return now.Sub(w.WindowStart) > w.Window
}

// ResetAt is the first instant at which the window is considered expired.
func (w RateWindow) ResetAt() time.Time {
	return w.WindowStart.Add(w.Window)
}

// Decision is the outcome of one rate check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is whole seconds until the window resets; set when rejected.
	RetryAfter int
	ResetAt    time.Time
}
