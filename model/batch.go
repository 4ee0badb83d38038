package model

import "time"

// Screening batch statuses.
const (
	BatchCompleted        = "completed"
	BatchInsufficientData = "insufficient_data"
)

// ScreeningBatch records one screening pass over the catalog. Persisted
// events reference their batch; the most recent completed batch is the
// current view served to callers.
type ScreeningBatch struct {
	ID             string
	RunAt          time.Time
	WindowSeconds  float64
	CandidatePairs int
	SavedEvents    int
	Status         string
}
