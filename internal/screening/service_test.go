package screening

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/signalsfoundry/conjunction-engine/core"
	"github.com/signalsfoundry/conjunction-engine/internal/catalog"
	"github.com/signalsfoundry/conjunction-engine/internal/logging"
	"github.com/signalsfoundry/conjunction-engine/internal/notify"
	"github.com/signalsfoundry/conjunction-engine/model"
)

var refTime = time.Date(2021, 10, 2, 12, 0, 0, 0, time.UTC)

// linearEphemeris moves in a straight line from p0 at t0. Exact finite
// differences make every screening quantity analytic.
type linearEphemeris struct {
	p0 core.Vec3
	v  core.Vec3
	t0 time.Time
}

func (l linearEphemeris) PositionAt(t time.Time) (core.Vec3, error) {
	return l.p0.Add(l.v.Scale(t.Sub(l.t0).Seconds())), nil
}

func (l linearEphemeris) StateAt(t time.Time) (core.OrbitalState, error) {
	p, _ := l.PositionAt(t)
	return core.OrbitalState{Position: p, Velocity: l.v, Epoch: t}, nil
}

// failAfterEphemeris behaves linearly until cutoff, then fails. Snapshots
// succeed while refinement near the close approach does not.
type failAfterEphemeris struct {
	inner  linearEphemeris
	cutoff time.Time
}

func (f failAfterEphemeris) PositionAt(t time.Time) (core.Vec3, error) {
	if t.After(f.cutoff) {
		return core.Vec3{}, core.ErrPropagationFailed
	}
	return f.inner.PositionAt(t)
}

func (f failAfterEphemeris) StateAt(t time.Time) (core.OrbitalState, error) {
	if t.After(f.cutoff) {
		return core.OrbitalState{}, core.ErrPropagationFailed
	}
	return f.inner.StateAt(t)
}

func static(x, y, z float64) linearEphemeris {
	return linearEphemeris{p0: core.Vec3{X: x, Y: y, Z: z}, t0: refTime}
}

func moving(p0, v core.Vec3) linearEphemeris {
	return linearEphemeris{p0: p0, v: v, t0: refTime}
}

type fakeMetrics struct {
	mu            sync.Mutex
	runs          []string
	pairs         []int
	savedByType   map[string]int
	refineFails   int
	notifications []bool
}

func (m *fakeMetrics) RecordRun(status string, _ time.Duration, candidatePairs int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, status)
	m.pairs = append(m.pairs, candidatePairs)
}

func (m *fakeMetrics) AddSavedEvents(eventType string, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.savedByType == nil {
		m.savedByType = make(map[string]int)
	}
	m.savedByType[eventType] += n
}

func (m *fakeMetrics) IncRefinementFailures() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refineFails++
}

func (m *fakeMetrics) RecordNotification(delivered bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, delivered)
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notify.Event
	err    error
}

func (n *fakeNotifier) Notify(_ context.Context, ev notify.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.events = append(n.events, ev)
	return nil
}

func newTestService(t *testing.T, ephs map[int]core.Ephemeris, opts ...Option) (*Service, *catalog.Store) {
	t.Helper()
	store, err := catalog.Open(":memory:", 0)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	factory := func(obj model.SpaceObject) (core.Ephemeris, error) {
		e, ok := ephs[obj.NoradID]
		if !ok {
			return nil, fmt.Errorf("no elements for %d", obj.NoradID)
		}
		return e, nil
	}
	opts = append([]Option{WithEphemerisFactory(factory), WithWorkers(2)}, opts...)
	return NewService(store, logging.Noop(), opts...), store
}

func seedObjects(t *testing.T, store *catalog.Store, ids ...int) {
	t.Helper()
	objs := make([]model.SpaceObject, 0, len(ids))
	for _, id := range ids {
		objs = append(objs, model.SpaceObject{
			NoradID:  id,
			Name:     fmt.Sprintf("SAT-%d", id),
			Line1:    "1 unused",
			Line2:    "2 unused",
			Priority: model.PrioritySecondary,
			Mission:  model.MissionNormal,
		})
	}
	if _, err := store.UpsertObjects(context.Background(), objs); err != nil {
		t.Fatalf("seed objects: %v", err)
	}
}

func TestRun_DetectsCollision(t *testing.T) {
	// 1002 crosses 1001's fixed position 1000 s after the reference epoch.
	svc, store := newTestService(t, map[int]core.Ephemeris{
		1001: static(7000, 0, 0),
		1002: moving(core.Vec3{X: 7000, Y: 100}, core.Vec3{Y: -0.1}),
	})
	seedObjects(t, store, 1001, 1002)

	res, err := svc.Run(context.Background(), Request{ReferenceTime: refTime})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != model.BatchCompleted {
		t.Fatalf("status = %s, want completed", res.Status)
	}
	if res.ObjectsTotal != 2 || res.ObjectsUsable != 2 {
		t.Errorf("objects = %d/%d, want 2/2", res.ObjectsUsable, res.ObjectsTotal)
	}
	if res.CandidatePairs != 1 || res.SavedEvents != 1 || res.RefineFailures != 0 {
		t.Errorf("pairs/saved/failures = %d/%d/%d, want 1/1/0",
			res.CandidatePairs, res.SavedEvents, res.RefineFailures)
	}

	events, err := store.Events(context.Background(), catalog.EventQuery{})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	ev := events[0]
	if ev.BatchID != res.BatchID {
		t.Errorf("event batch = %s, want %s", ev.BatchID, res.BatchID)
	}
	if ev.Object1ID != 1001 || ev.Object2ID != 1002 {
		t.Errorf("pair = (%d,%d)", ev.Object1ID, ev.Object2ID)
	}
	if ev.EventType != model.EventCollision || ev.RiskScore != 1.0 {
		t.Errorf("type/score = %s/%v, want COLLISION/1.0", ev.EventType, ev.RiskScore)
	}
	if ev.MissKm > 0.01 {
		t.Errorf("miss = %v km, want near zero", ev.MissKm)
	}
	wantTCA := refTime.Add(1000 * time.Second)
	if gap := ev.TCA.Sub(wantTCA); gap < -time.Second || gap > time.Second {
		t.Errorf("tca = %v, want ~%v", ev.TCA, wantTCA)
	}
	if ev.Object1Name != "SAT-1001" || ev.Object2Name != "SAT-1002" {
		t.Errorf("names = %q/%q", ev.Object1Name, ev.Object2Name)
	}

	latest, err := store.LatestBatch(context.Background())
	if err != nil {
		t.Fatalf("LatestBatch: %v", err)
	}
	if latest.ID != res.BatchID || latest.CandidatePairs != 1 || latest.SavedEvents != 1 {
		t.Errorf("batch row = %+v", latest)
	}
}

func TestRun_InsufficientData(t *testing.T) {
	cases := []struct {
		name string
		ephs map[int]core.Ephemeris
		ids  []int
	}{
		{"single object", map[int]core.Ephemeris{1001: static(7000, 0, 0)}, []int{1001}},
		{"one of two unusable", map[int]core.Ephemeris{1001: static(7000, 0, 0)}, []int{1001, 1002}},
		{"empty catalog", map[int]core.Ephemeris{}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			metrics := &fakeMetrics{}
			svc, store := newTestService(t, tc.ephs, WithMetrics(metrics))
			if len(tc.ids) > 0 {
				seedObjects(t, store, tc.ids...)
			}

			res, err := svc.Run(context.Background(), Request{ReferenceTime: refTime})
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if res.Status != model.BatchInsufficientData {
				t.Fatalf("status = %s, want insufficient_data", res.Status)
			}
			if res.CandidatePairs != 0 || res.SavedEvents != 0 {
				t.Errorf("pairs/saved = %d/%d, want 0/0", res.CandidatePairs, res.SavedEvents)
			}

			latest, err := store.LatestBatch(context.Background())
			if err != nil {
				t.Fatalf("LatestBatch: %v", err)
			}
			if latest.ID != res.BatchID || latest.Status != model.BatchInsufficientData {
				t.Errorf("batch row = %+v", latest)
			}
			if len(metrics.runs) != 1 || metrics.runs[0] != model.BatchInsufficientData {
				t.Errorf("metrics runs = %v", metrics.runs)
			}
		})
	}
}

func TestRun_GatedPairNotSaved(t *testing.T) {
	// Static 200 km separation: inside the prune radius, outside the save
	// threshold, so the pass completes with nothing persisted.
	svc, store := newTestService(t, map[int]core.Ephemeris{
		1001: static(7000, 0, 0),
		1002: static(7000, 200, 0),
	})
	seedObjects(t, store, 1001, 1002)

	res, err := svc.Run(context.Background(), Request{ReferenceTime: refTime})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != model.BatchCompleted {
		t.Fatalf("status = %s, want completed", res.Status)
	}
	if res.CandidatePairs != 1 || res.SavedEvents != 0 {
		t.Errorf("pairs/saved = %d/%d, want 1/0", res.CandidatePairs, res.SavedEvents)
	}

	events, err := store.Events(context.Background(), catalog.EventQuery{})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 0 {
		t.Errorf("got %d events, want none", len(events))
	}
}

func TestRun_DockingSaved(t *testing.T) {
	// Slow overtake passing within a kilometre: formation flight, saved
	// regardless of the collision policy.
	svc, store := newTestService(t, map[int]core.Ephemeris{
		1001: static(7000, 0, 0),
		1002: moving(core.Vec3{X: 6999.91, Y: 0.99}, core.Vec3{X: 0.009}),
	})
	seedObjects(t, store, 1001, 1002)

	res, err := svc.Run(context.Background(), Request{ReferenceTime: refTime})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.SavedEvents != 1 {
		t.Fatalf("saved = %d, want 1", res.SavedEvents)
	}

	events, err := store.Events(context.Background(), catalog.EventQuery{})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 1 || events[0].EventType != model.EventDocking {
		t.Fatalf("events = %+v, want one DOCKING", events)
	}
	if events[0].RiskScore != 1.0 {
		t.Errorf("docking score = %v, want 1.0", events[0].RiskScore)
	}
}

func TestRun_SavePolicyKeepsScoredCollisions(t *testing.T) {
	// Closest approach 50 km: scored but below the notification threshold.
	notifier := &fakeNotifier{}
	svc, store := newTestService(t, map[int]core.Ephemeris{
		1001: static(7000, 0, 0),
		1002: moving(core.Vec3{X: 7000, Y: -100, Z: 50}, core.Vec3{Y: 0.1}),
	}, WithNotifier(notifier, 0.8))
	seedObjects(t, store, 1001, 1002)

	res, err := svc.Run(context.Background(), Request{ReferenceTime: refTime})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.SavedEvents != 1 {
		t.Fatalf("saved = %d, want 1", res.SavedEvents)
	}

	events, err := store.Events(context.Background(), catalog.EventQuery{})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if got := events[0].MissKm; got < 49.9 || got > 50.1 {
		t.Errorf("miss = %v km, want ~50", got)
	}
	wantScore := (75.0 - 50.0) / 65.0
	if got := events[0].RiskScore; got < wantScore-0.01 || got > wantScore+0.01 {
		t.Errorf("score = %v, want ~%.4f", got, wantScore)
	}
	if len(notifier.events) != 0 {
		t.Errorf("notified %d events below threshold", len(notifier.events))
	}
}

func TestRun_NotifiesHighRisk(t *testing.T) {
	notifier := &fakeNotifier{}
	metrics := &fakeMetrics{}
	svc, store := newTestService(t, map[int]core.Ephemeris{
		1001: static(7000, 0, 0),
		1002: moving(core.Vec3{X: 7000, Y: 100}, core.Vec3{Y: -0.1}),
	}, WithNotifier(notifier, 0.8), WithMetrics(metrics))
	seedObjects(t, store, 1001, 1002)

	res, err := svc.Run(context.Background(), Request{ReferenceTime: refTime})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(notifier.events) != 1 {
		t.Fatalf("got %d alerts, want 1", len(notifier.events))
	}
	alert := notifier.events[0]
	if alert.BatchID != res.BatchID {
		t.Errorf("alert batch = %s, want %s", alert.BatchID, res.BatchID)
	}
	if alert.Object1Name != "SAT-1001" || alert.Object2Name != "SAT-1002" {
		t.Errorf("alert names = %q/%q", alert.Object1Name, alert.Object2Name)
	}
	if alert.RiskScore != 1.0 || alert.EventType != model.EventCollision {
		t.Errorf("alert = %+v", alert)
	}
	if len(metrics.notifications) != 1 || !metrics.notifications[0] {
		t.Errorf("notification metrics = %v, want [true]", metrics.notifications)
	}
}

func TestRun_NotifierFailureDoesNotAbort(t *testing.T) {
	notifier := &fakeNotifier{err: fmt.Errorf("telegram unreachable")}
	metrics := &fakeMetrics{}
	svc, store := newTestService(t, map[int]core.Ephemeris{
		1001: static(7000, 0, 0),
		1002: moving(core.Vec3{X: 7000, Y: 100}, core.Vec3{Y: -0.1}),
	}, WithNotifier(notifier, 0.8), WithMetrics(metrics))
	seedObjects(t, store, 1001, 1002)

	res, err := svc.Run(context.Background(), Request{ReferenceTime: refTime})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.SavedEvents != 1 {
		t.Errorf("saved = %d, want 1 despite delivery failure", res.SavedEvents)
	}
	if len(metrics.notifications) != 1 || metrics.notifications[0] {
		t.Errorf("notification metrics = %v, want [false]", metrics.notifications)
	}
}

func TestRun_RefinementFailureCounted(t *testing.T) {
	// The moving object's ephemeris dies 500 s in, after the gate but
	// before the close approach at 1000 s can be sampled.
	metrics := &fakeMetrics{}
	svc, store := newTestService(t, map[int]core.Ephemeris{
		1001: static(7000, 0, 0),
		1002: failAfterEphemeris{
			inner:  moving(core.Vec3{X: 7000, Y: 100}, core.Vec3{Y: -0.1}),
			cutoff: refTime.Add(500 * time.Second),
		},
	}, WithMetrics(metrics))
	seedObjects(t, store, 1001, 1002)

	res, err := svc.Run(context.Background(), Request{ReferenceTime: refTime})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != model.BatchCompleted {
		t.Fatalf("status = %s, want completed", res.Status)
	}
	if res.RefineFailures != 1 || res.SavedEvents != 0 {
		t.Errorf("failures/saved = %d/%d, want 1/0", res.RefineFailures, res.SavedEvents)
	}
	if metrics.refineFails != 1 {
		t.Errorf("metrics failures = %d, want 1", metrics.refineFails)
	}
}

func TestRun_ClusterThroughWorkerPool(t *testing.T) {
	// Five static objects 50 km apart on a line: ten candidate pairs, of
	// which only the four 50 km neighbours score above zero.
	ephs := make(map[int]core.Ephemeris, 5)
	ids := make([]int, 0, 5)
	for i := 0; i < 5; i++ {
		id := 2000 + i
		ephs[id] = static(7000, float64(i)*50, 0)
		ids = append(ids, id)
	}
	metrics := &fakeMetrics{}
	svc, store := newTestService(t, ephs, WithMetrics(metrics), WithWorkers(3))
	seedObjects(t, store, ids...)

	res, err := svc.Run(context.Background(), Request{ReferenceTime: refTime})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.CandidatePairs != 10 {
		t.Errorf("pairs = %d, want 10", res.CandidatePairs)
	}
	if res.SavedEvents != 4 {
		t.Errorf("saved = %d, want 4", res.SavedEvents)
	}
	if len(metrics.pairs) != 1 || metrics.pairs[0] != 10 {
		t.Errorf("metrics pairs = %v, want [10]", metrics.pairs)
	}
	if metrics.savedByType[string(model.EventCollision)] != 4 {
		t.Errorf("saved by type = %v", metrics.savedByType)
	}

	events, err := store.Events(context.Background(), catalog.EventQuery{})
	if err != nil {
		t.Fatalf("Events: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4", len(events))
	}
	for _, ev := range events {
		if ev.Object2ID-ev.Object1ID != 1 {
			t.Errorf("unexpected non-neighbour pair (%d,%d)", ev.Object1ID, ev.Object2ID)
		}
		if got := ev.MissKm; got < 49.9 || got > 50.1 {
			t.Errorf("pair (%d,%d) miss = %v, want ~50", ev.Object1ID, ev.Object2ID, got)
		}
	}
}

func TestRun_NoPairsWithinRadius(t *testing.T) {
	svc, store := newTestService(t, map[int]core.Ephemeris{
		1001: static(7000, 0, 0),
		1002: static(7000, 1000, 0),
	})
	seedObjects(t, store, 1001, 1002)

	res, err := svc.Run(context.Background(), Request{ReferenceTime: refTime})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Status != model.BatchCompleted || res.CandidatePairs != 0 || res.SavedEvents != 0 {
		t.Errorf("result = %+v, want completed with no pairs", res)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	svc, store := newTestService(t, map[int]core.Ephemeris{
		1001: static(7000, 0, 0),
		1002: static(7000, 50, 0),
	})
	seedObjects(t, store, 1001, 1002)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Run(ctx, Request{ReferenceTime: refTime}); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
