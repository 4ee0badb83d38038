package model

import "time"

// Priority classifies how aggressively an object is protected when
// planning avoidance maneuvers.
type Priority string

const (
	PriorityPrimary   Priority = "PRIMARY"
	PrioritySecondary Priority = "SECONDARY"
)

// MissionClass marks whether an object is flying a mission that warrants
// widened safety margins.
type MissionClass string

const (
	MissionNormal   MissionClass = "NORMAL"
	MissionCritical MissionClass = "CRITICAL"
)

// SpaceObject is one catalog entry: a pair of orbital element lines plus
// the classification tags attached by the intelligence pipeline. The
// screening core reads elements and tags, never mutates them.
type SpaceObject struct {
	NoradID   int
	Name      string
	Line1     string
	Line2     string
	Country   string
	Priority  Priority
	Mission   MissionClass
	UpdatedAt time.Time
}

// IsHomeNation reports whether the object belongs to the given operator
// nation. Comparison is exact; catalog ingestion normalizes country codes.
func (o SpaceObject) IsHomeNation(country string) bool {
	return country != "" && o.Country == country
}
