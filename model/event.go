package model

import "time"

// EventType distinguishes a genuine collision risk from intentional
// close-formation flight.
type EventType string

const (
	EventCollision EventType = "COLLISION"
	EventDocking   EventType = "DOCKING"
)

// ConjunctionEvent is one refined close approach between two objects,
// produced by a screening pass. Immutable once created.
type ConjunctionEvent struct {
	Object1ID      int
	Object2ID      int
	TCA            time.Time
	MissKm         float64
	RelVelocityKmS float64
	RiskScore      float64
	EventType      EventType
}
