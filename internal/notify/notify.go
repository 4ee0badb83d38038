// Package notify pushes high-risk conjunction alerts to external channels.
package notify

import (
	"context"
	"time"

	"github.com/signalsfoundry/conjunction-engine/model"
)

// Event is the payload for one alert: a conjunction event joined with the
// object names a human recipient needs.
type Event struct {
	BatchID        string
	Object1ID      int
	Object2ID      int
	Object1Name    string
	Object2Name    string
	TCA            time.Time
	MissKm         float64
	RelVelocityKmS float64
	RiskScore      float64
	EventType      model.EventType
}

// Notifier delivers one conjunction alert. Implementations must be safe for
// concurrent use.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// Noop discards alerts. Used whenever notifications are disabled.
type Noop struct{}

// Notify implements Notifier by doing nothing.
func (Noop) Notify(context.Context, Event) error { return nil }
