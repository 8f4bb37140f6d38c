package signal

import (
	"io"
	"log/slog"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/gridsim/internal/world"
)

type recorder struct {
	events []Event
}

func (r *recorder) Record(e Event) { r.events = append(r.events, e) }

func (r *recorder) kinds(k EventKind) []Event {
	var out []Event
	for _, e := range r.events {
		if e.Kind == k {
			out = append(out, e)
		}
	}
	return out
}

func newTestIntersection(t *testing.T, initial Phase) (*Intersection, *recorder) {
	t.Helper()
	rec := &recorder{}
	in, err := NewIntersection(Config{
		ID:           "TL-test",
		Position:     world.Coord{X: 1, Y: 1},
		InitialPhase: initial,
		Sink:         rec,
		Logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)
	return in, rec
}

func TestNewIntersectionErrors(t *testing.T) {
	_, err := NewIntersection(Config{InitialPhase: PhaseRed})
	assert.ErrorIs(t, err, ErrEmptyID)

	_, err = NewIntersection(Config{ID: "a"})
	assert.ErrorIs(t, err, ErrNoRand)

	_, err = NewIntersection(Config{ID: "a", InitialPhase: Phase(7)})
	assert.ErrorIs(t, err, ErrInvalidPhase)
}

func TestNewIntersectionRandomPhase(t *testing.T) {
	seen := map[Phase]bool{}
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 60; i++ {
		in, err := NewIntersection(Config{ID: "a", Rand: rng})
		require.NoError(t, err)
		st := in.State()
		require.True(t, st.Phase.Valid())
		assert.Zero(t, st.PhaseTimer)
		assert.Equal(t, DefaultGreenDuration, st.GreenDuration)
		seen[st.Phase] = true
	}
	assert.Len(t, seen, 3)
}

func TestAdjustmentScenario(t *testing.T) {
	in, rec := newTestIntersection(t, PhaseGreen)

	in.Step(&Observation{VehiclesNS: 10, VehiclesEW: 2})
	assert.Equal(t, 25, in.State().GreenDuration)

	in.Step(&Observation{VehiclesNS: 2, VehiclesEW: 10})
	assert.Equal(t, 30, in.State().GreenDuration)

	adj := rec.kinds(EventDurationAdjusted)
	require.Len(t, adj, 2)
	assert.Equal(t, ReasonNorthSouthCongestion, adj[0].Reason)
	assert.Equal(t, 30, adj[0].PrevDuration)
	assert.Equal(t, 25, adj[0].GreenDuration)
	assert.Equal(t, ReasonEastWestCongestion, adj[1].Reason)
	assert.Equal(t, "TL-test", adj[1].IntersectionID)
	assert.Equal(t, uint64(2), adj[1].Step)
}

func TestBalancedTrafficKeepsGreen(t *testing.T) {
	in, rec := newTestIntersection(t, PhaseGreen)
	in.Step(&Observation{VehiclesNS: 4, VehiclesEW: 5})
	in.Step(&Observation{})
	assert.Equal(t, DefaultGreenDuration, in.State().GreenDuration)
	assert.Empty(t, rec.kinds(EventDurationAdjusted))
}

func TestObservationIgnoredOutsideGreen(t *testing.T) {
	for _, p := range []Phase{PhaseRed, PhaseYellow} {
		in, rec := newTestIntersection(t, p)
		for i := 0; i < 3; i++ {
			in.Step(&Observation{VehiclesNS: 20, VehiclesEW: 0})
		}
		assert.Equal(t, DefaultGreenDuration, in.State().GreenDuration, p.String())
		assert.Empty(t, rec.kinds(EventDurationAdjusted))
		assert.Greater(t, in.State().CongestionLevel, 0.0, "level still tracks traffic")
	}
}

func TestGreenStaysInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	in, _ := newTestIntersection(t, PhaseGreen)

	for i := 0; i < 2000; i++ {
		obs := Observation{VehiclesNS: rng.Intn(25) - 5, VehiclesEW: rng.Intn(25) - 5}
		if rng.Intn(10) == 0 {
			in.Step(nil)
		} else {
			in.Step(&obs)
		}
		st := in.State()
		require.GreaterOrEqual(t, st.GreenDuration, MinGreenDuration)
		require.LessOrEqual(t, st.GreenDuration, MaxGreenDuration)
		require.GreaterOrEqual(t, st.CongestionLevel, 0.0)
		require.LessOrEqual(t, st.CongestionLevel, 10.0)
	}
}

func TestSaturatesAtBounds(t *testing.T) {
	in, rec := newTestIntersection(t, PhaseGreen)
	// Each tick shortens by five until the floor; the phase is long enough
	// to see it.
	for i := 0; i < 5; i++ {
		in.Step(&Observation{VehiclesNS: 9})
	}
	assert.Equal(t, MinGreenDuration, in.State().GreenDuration)
	assert.Len(t, rec.kinds(EventDurationAdjusted), 3)
}

func TestNoObservationCycle(t *testing.T) {
	in, rec := newTestIntersection(t, PhaseGreen)
	total := DefaultGreenDuration + YellowDuration + RedDuration
	for i := 0; i < total; i++ {
		in.Step(nil)
	}

	changes := rec.kinds(EventPhaseChanged)
	require.Len(t, changes, 3)
	assert.Equal(t, []Phase{PhaseYellow, PhaseRed, PhaseGreen},
		[]Phase{changes[0].To, changes[1].To, changes[2].To})
	assert.Equal(t, uint64(DefaultGreenDuration), changes[0].Step)
	assert.Equal(t, uint64(DefaultGreenDuration+YellowDuration), changes[1].Step)
	assert.Equal(t, uint64(total), changes[2].Step)
	assert.Equal(t, EastWest, changes[2].Direction)
	assert.Equal(t, PhaseGreen, in.State().Phase)
	assert.Zero(t, in.State().PhaseTimer)
}

func TestAdjustedGreenEndsEarlier(t *testing.T) {
	in, rec := newTestIntersection(t, PhaseGreen)
	in.Step(&Observation{VehiclesNS: 10, VehiclesEW: 2})
	for i := 1; i < 25; i++ {
		in.Step(nil)
	}
	changes := rec.kinds(EventPhaseChanged)
	require.Len(t, changes, 1)
	assert.Equal(t, PhaseYellow, changes[0].To)
	assert.Equal(t, uint64(25), changes[0].Step)
}

func TestAnalyzerOncePerStep(t *testing.T) {
	m := newMachine(PhaseGreen)
	var a Analyzer

	_, ok := a.Apply(&m, Observation{VehiclesNS: 10}, 1)
	require.True(t, ok)
	_, ok = a.Apply(&m, Observation{VehiclesNS: 10}, 1)
	assert.False(t, ok)
	assert.Equal(t, 25, m.Green())

	_, ok = a.Apply(&m, Observation{VehiclesNS: 10}, 2)
	assert.True(t, ok)
	assert.Equal(t, 20, m.Green())
}

func TestCongestionLevelSmoothing(t *testing.T) {
	var a Analyzer
	m := newMachine(PhaseRed)

	a.Apply(&m, Observation{VehiclesNS: 4, VehiclesEW: 0}, 1)
	assert.InDelta(t, 5.0, a.CongestionLevel(), 1e-9)
	a.Apply(&m, Observation{VehiclesNS: 4, VehiclesEW: 0}, 2)
	assert.InDelta(t, 7.5, a.CongestionLevel(), 1e-9)
	a.Apply(&m, Observation{VehiclesNS: 3, VehiclesEW: 3}, 3)
	assert.InDelta(t, 3.75, a.CongestionLevel(), 1e-9)
}

func TestObservationInput(t *testing.T) {
	assert.Equal(t, Observation{VehiclesNS: 3}, ObservationFromMap(map[string]int{"vehicles_ns": 3}))
	assert.Equal(t, Observation{}, ObservationFromMap(nil))

	o, changed := Observation{VehiclesNS: -2, VehiclesEW: 4}.clamped()
	assert.True(t, changed)
	assert.Equal(t, Observation{VehiclesEW: 4}, o)
}

func TestStateDoesNotMutate(t *testing.T) {
	in, _ := newTestIntersection(t, PhaseRed)
	in.Step(nil)
	a := in.State()
	b := in.State()
	assert.Equal(t, a, b)
	assert.Equal(t, 1, a.PhaseTimer)
	assert.Equal(t, uint64(1), a.Steps)
}

func TestMultiSink(t *testing.T) {
	var a, b recorder
	var n int
	sink := MultiSink{&a, nil, SinkFunc(func(Event) { n++ }), &b}
	sink.Record(Event{Kind: EventPhaseChanged})
	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
	assert.Equal(t, 1, n)
	assert.Equal(t, "phase_changed", EventPhaseChanged.String())
}
