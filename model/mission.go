package model

import "time"

// MissionContext is the mission override scoped to a single screening or
// planning call. While Active, margin policy treats every object as flying
// a CRITICAL mission. The currently active context is persisted by the
// catalog store and injected per call; the engine holds no process-wide
// mission state.
type MissionContext struct {
	Active      bool
	Name        string
	ActivatedAt time.Time
}
