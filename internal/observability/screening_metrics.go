package observability

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ScreeningCollector exposes Prometheus metrics for the screening and
// maneuver-planning pipeline.
type ScreeningCollector struct {
	gatherer prometheus.Gatherer

	Runs               *prometheus.CounterVec
	PassDuration       prometheus.Histogram
	CandidatePairs     prometheus.Gauge
	EventsSaved        *prometheus.CounterVec
	RefinementFailures prometheus.Counter
	ManeuverPlans      *prometheus.CounterVec
	Notifications      *prometheus.CounterVec
}

// NewScreeningCollector registers screening metrics against the provided
// registerer.
func NewScreeningCollector(reg prometheus.Registerer) (*ScreeningCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "screening_runs_total",
		Help: "Completed screening passes, labeled by terminal status.",
	}, []string{"status"})
	runs, err := registerCounterVec(reg, runs, "screening_runs_total")
	if err != nil {
		return nil, err
	}

	passDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "screening_pass_duration_seconds",
		Help:    "Wall-clock duration of a full screening pass.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
	})
	passDuration, err = registerHistogram(reg, passDuration, "screening_pass_duration_seconds")
	if err != nil {
		return nil, err
	}

	candidatePairs := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "screening_candidate_pairs",
		Help: "Candidate pairs produced by the broad phase of the most recent pass.",
	})
	candidatePairs, err = registerGauge(reg, candidatePairs, "screening_candidate_pairs")
	if err != nil {
		return nil, err
	}

	eventsSaved := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "conjunction_events_saved_total",
		Help: "Conjunction events persisted by screening passes, labeled by event type.",
	}, []string{"event_type"})
	eventsSaved, err = registerCounterVec(reg, eventsSaved, "conjunction_events_saved_total")
	if err != nil {
		return nil, err
	}

	refinementFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "screening_refinement_failures_total",
		Help: "Candidate pairs dropped because narrow-phase refinement failed.",
	})
	refinementFailures, err = registerCounter(reg, refinementFailures, "screening_refinement_failures_total")
	if err != nil {
		return nil, err
	}

	maneuverPlans := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "maneuver_plans_total",
		Help: "Avoidance maneuver planning requests, labeled by outcome.",
	}, []string{"outcome"})
	maneuverPlans, err = registerCounterVec(reg, maneuverPlans, "maneuver_plans_total")
	if err != nil {
		return nil, err
	}

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "High-risk event notifications, labeled by delivery status.",
	}, []string{"status"})
	notifications, err = registerCounterVec(reg, notifications, "notifications_total")
	if err != nil {
		return nil, err
	}

	return &ScreeningCollector{
		gatherer:           gatherer,
		Runs:               runs,
		PassDuration:       passDuration,
		CandidatePairs:     candidatePairs,
		EventsSaved:        eventsSaved,
		RefinementFailures: refinementFailures,
		ManeuverPlans:      maneuverPlans,
		Notifications:      notifications,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *ScreeningCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// RecordRun records one finished screening pass.
func (c *ScreeningCollector) RecordRun(status string, d time.Duration, candidatePairs int) {
	if c == nil {
		return
	}
	if c.Runs != nil {
		c.Runs.WithLabelValues(status).Inc()
	}
	if c.PassDuration != nil {
		c.PassDuration.Observe(d.Seconds())
	}
	if c.CandidatePairs != nil {
		c.CandidatePairs.Set(float64(candidatePairs))
	}
}

// AddSavedEvents counts events persisted for one event type.
func (c *ScreeningCollector) AddSavedEvents(eventType string, n int) {
	if c == nil || c.EventsSaved == nil || n <= 0 {
		return
	}
	c.EventsSaved.WithLabelValues(eventType).Add(float64(n))
}

// IncRefinementFailures counts one dropped candidate pair.
func (c *ScreeningCollector) IncRefinementFailures() {
	if c == nil || c.RefinementFailures == nil {
		return
	}
	c.RefinementFailures.Inc()
}

// RecordManeuverPlan counts one planning request by outcome.
func (c *ScreeningCollector) RecordManeuverPlan(success bool) {
	if c == nil || c.ManeuverPlans == nil {
		return
	}
	outcome := "failure"
	if success {
		outcome = "success"
	}
	c.ManeuverPlans.WithLabelValues(outcome).Inc()
}

// RecordNotification counts one notification attempt by delivery status.
func (c *ScreeningCollector) RecordNotification(delivered bool) {
	if c == nil || c.Notifications == nil {
		return
	}
	status := "failed"
	if delivered {
		status = "sent"
	}
	c.Notifications.WithLabelValues(status).Inc()
}

func registerHistogram(reg prometheus.Registerer, hist prometheus.Histogram, name string) (prometheus.Histogram, error) {
	if err := reg.Register(hist); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Histogram); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return hist, nil
}

func registerCounter(reg prometheus.Registerer, counter prometheus.Counter, name string) (prometheus.Counter, error) {
	if err := reg.Register(counter); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
			return nil, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return nil, err
	}
	return counter, nil
}
