package engine

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"

	"github.com/talgya/gridsim/internal/agents"
	"github.com/talgya/gridsim/internal/signal"
	"github.com/talgya/gridsim/internal/world"
)

// Stats aggregates per-run counters. Counters only grow; gauges are
// recomputed every tick.
type Stats struct {
	Tick             uint64  `json:"tick" msgpack:"tick"`
	PhaseChanges     int     `json:"phase_changes" msgpack:"phase_changes"`
	Adjustments      int     `json:"adjustments" msgpack:"adjustments"`
	CongestionEvents int     `json:"congestion_events" msgpack:"congestion_events"`
	Incidents        int     `json:"incidents" msgpack:"incidents"`
	Arrived          int     `json:"arrived" msgpack:"arrived"`
	Waiting          int     `json:"waiting" msgpack:"waiting"`
	Moving           int     `json:"moving" msgpack:"moving"`
	GreenLights      int     `json:"green_lights" msgpack:"green_lights"`
	AvgWait          float64 `json:"avg_wait" msgpack:"avg_wait"`
	AvgTravel        float64 `json:"avg_travel" msgpack:"avg_travel"`
	MeanCongestion   float64 `json:"mean_congestion" msgpack:"mean_congestion"`
	LowBatteryDrones int     `json:"low_battery_drones" msgpack:"low_battery_drones"`
}

func (s *Simulation) updateStats() {
	st := &s.Stats
	st.Tick = s.LastTick

	counts := lo.CountValuesBy(s.Vehicles, func(v *agents.Vehicle) agents.VehicleStatus { return v.Status })
	st.Arrived = counts[agents.VehicleArrived]
	st.Waiting = counts[agents.VehicleWaiting]
	st.Moving = len(s.Vehicles) - st.Arrived - st.Waiting

	st.AvgWait, st.AvgTravel = 0, 0
	if n := len(s.Vehicles); n > 0 {
		st.AvgWait = float64(lo.SumBy(s.Vehicles, func(v *agents.Vehicle) int { return v.WaitingTime })) / float64(n)
		st.AvgTravel = float64(lo.SumBy(s.Vehicles, func(v *agents.Vehicle) int { return v.TravelTime })) / float64(n)
	}

	states := lo.Map(s.Intersections, func(in *signal.Intersection, _ int) signal.State { return in.State() })
	st.GreenLights = lo.CountBy(states, func(x signal.State) bool { return x.Phase == signal.PhaseGreen })
	st.MeanCongestion = 0
	if len(states) > 0 {
		st.MeanCongestion = lo.SumBy(states, func(x signal.State) float64 { return x.CongestionLevel }) / float64(len(states))
	}

	st.LowBatteryDrones = lo.CountBy(s.Drones, func(d *agents.Drone) bool { return d.Status == agents.DroneReturning })
}

// Snapshot is a consistent copy of the simulation taken at the end of a tick.
type Snapshot struct {
	Seed          int64                    `json:"seed" msgpack:"seed"`
	Tick          uint64                   `json:"tick" msgpack:"tick"`
	Grid          world.Grid               `json:"grid" msgpack:"grid"`
	Intersections []signal.State           `json:"intersections" msgpack:"intersections"`
	Vehicles      []agents.VehicleSnapshot `json:"vehicles" msgpack:"vehicles"`
	Drones        []agents.DroneSnapshot   `json:"drones" msgpack:"drones"`
	Events        []Event                  `json:"events" msgpack:"events"`
	Stats         Stats                    `json:"stats" msgpack:"stats"`
}

// snapshotEvents caps how many recent events a snapshot carries.
const snapshotEvents = 200

func (s *Simulation) publishSnapshot() {
	events := s.Events
	if len(events) > snapshotEvents {
		events = events[len(events)-snapshotEvents:]
	}

	snap := Snapshot{
		Seed:          s.Seed,
		Tick:          s.LastTick,
		Grid:          s.Grid,
		Intersections: lo.Map(s.Intersections, func(in *signal.Intersection, _ int) signal.State { return in.State() }),
		Vehicles:      lo.Map(s.Vehicles, func(v *agents.Vehicle, _ int) agents.VehicleSnapshot { return v.Snapshot() }),
		Drones:        lo.Map(s.Drones, func(d *agents.Drone, _ int) agents.DroneSnapshot { return d.Snapshot() }),
		Events:        slices.Clone(events),
		Stats:         s.Stats,
	}

	s.mu.Lock()
	s.snapshot = snap
	s.mu.Unlock()
}

// Snapshot returns the state as of the last completed tick. It is safe to
// call while Step runs on another goroutine.
func (s *Simulation) Snapshot() Snapshot {
	s.mu.RLock()
	snap := s.snapshot
	s.mu.RUnlock()

	snap.Intersections = slices.Clone(snap.Intersections)
	snap.Vehicles = slices.Clone(snap.Vehicles)
	snap.Drones = slices.Clone(snap.Drones)
	snap.Events = slices.Clone(snap.Events)
	return snap
}

// Summary writes a short human-readable report of the run to w.
func (s *Simulation) Summary(w io.Writer) error {
	st := s.Stats
	var b strings.Builder

	fmt.Fprintf(&b, "Simulation summary after %s ticks (seed %d)\n", humanize.Comma(int64(st.Tick)), s.Seed)
	fmt.Fprintf(&b, "  grid:            %s with %d intersections\n", s.Grid, len(s.Intersections))
	fmt.Fprintf(&b, "  vehicles:        %d arrived, %d waiting, %d moving of %d\n", st.Arrived, st.Waiting, st.Moving, len(s.Vehicles))
	fmt.Fprintf(&b, "  avg wait:        %s ticks\n", humanize.FtoaWithDigits(st.AvgWait, 2))
	fmt.Fprintf(&b, "  avg travel:      %s ticks\n", humanize.FtoaWithDigits(st.AvgTravel, 2))
	fmt.Fprintf(&b, "  phase changes:   %s\n", humanize.Comma(int64(st.PhaseChanges)))
	fmt.Fprintf(&b, "  adjustments:     %s\n", humanize.Comma(int64(st.Adjustments)))
	fmt.Fprintf(&b, "  congestion:      %s reports, mean level %s\n", humanize.Comma(int64(st.CongestionEvents)), humanize.FtoaWithDigits(st.MeanCongestion, 2))
	fmt.Fprintf(&b, "  incidents:       %s\n", humanize.Comma(int64(st.Incidents)))

	for _, in := range s.Intersections {
		x := in.State()
		fmt.Fprintf(&b, "  %-6s %-8s %s green=%ds level=%s\n",
			x.ID, x.Position, x.Phase, x.GreenDuration, humanize.FtoaWithDigits(x.CongestionLevel, 2))
	}

	_, err := io.WriteString(w, b.String())
	return err
}
