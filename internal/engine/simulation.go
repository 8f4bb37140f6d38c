// Simulation ties the signals, vehicles, drones and message bus together and
// runs them each tick.
package engine

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/samber/lo"

	"github.com/talgya/gridsim/internal/agents"
	"github.com/talgya/gridsim/internal/comms"
	"github.com/talgya/gridsim/internal/entropy"
	"github.com/talgya/gridsim/internal/signal"
	"github.com/talgya/gridsim/internal/world"
)

// Neighbourhood radii used by the controller.
const (
	observeRadius = 2 // Vehicles a signal counts
	lightRadius   = 1 // Signals a vehicle can see
)

const maxEvents = 1000

var (
	ErrNoIntersections = errors.New("engine: grid has no intersection sites")
	ErrInvalidConfig   = errors.New("engine: invalid config")
)

// Config holds the simulation setup parameters.
type Config struct {
	GridSize   int
	Vehicles   int
	Drones     int
	Seed       int64 // 0 draws a random seed
	BusHistory int
	Demand     world.DemandConfig
}

// DefaultConfig returns the settings of a small demonstration run.
func DefaultConfig() Config {
	return Config{
		GridSize:   5,
		Vehicles:   10,
		Drones:     2,
		BusHistory: comms.DefaultHistory,
		Demand:     world.DefaultDemandConfig(),
	}
}

func (c Config) validate() error {
	switch {
	case c.GridSize < 2:
		return fmt.Errorf("%w: grid size %d, need at least 2", ErrInvalidConfig, c.GridSize)
	case c.Vehicles < 0:
		return fmt.Errorf("%w: negative vehicle count %d", ErrInvalidConfig, c.Vehicles)
	case c.Drones < 0:
		return fmt.Errorf("%w: negative drone count %d", ErrInvalidConfig, c.Drones)
	}
	return nil
}

// Event is a notable occurrence in the simulation.
type Event struct {
	Tick        uint64 `json:"tick" msgpack:"tick"`
	Description string `json:"description" msgpack:"description"`
	Category    string `json:"category" msgpack:"category"` // "signal", "vehicle", "drone", "anomaly"
}

// Simulation holds the complete world state and wires systems together.
// Step must only be called from one goroutine; Snapshot may be called from
// any goroutine.
type Simulation struct {
	Seed          int64
	Grid          world.Grid
	Demand        *world.DemandField
	Occupancy     *world.Occupancy
	Bus           *comms.Bus
	Intersections []*signal.Intersection
	Vehicles      []*agents.Vehicle
	Drones        []*agents.Drone
	Events        []Event // Recent events, oldest first
	LastTick      uint64
	Stats         Stats

	// OnEvent, when set, receives every event as it is added, including
	// those later trimmed from Events.
	OnEvent func(Event)

	tripRng    *rand.Rand
	congestion []agents.CongestionReport // Reports from the previous tick
	logger     *slog.Logger

	mu       sync.RWMutex
	snapshot Snapshot
}

// NewSimulation builds the grid, places the signals and spawns agents.
// Extra sinks receive every signal event after the built-in ones.
func NewSimulation(cfg Config, logger *slog.Logger, sinks ...signal.Sink) (*Simulation, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	seed := entropy.ResolveSeed(cfg.Seed)
	grid := world.NewGrid(cfg.GridSize)

	demandCfg := cfg.Demand
	demandCfg.Seed = entropy.DerivedSeed(seed, entropy.StreamDemand)
	demand := world.NewDemandField(grid, demandCfg)

	s := &Simulation{
		Seed:      seed,
		Grid:      grid,
		Demand:    demand,
		Occupancy: world.NewOccupancy(grid),
		Bus:       comms.NewBus(cfg.BusHistory),
		tripRng:   entropy.New(seed, entropy.StreamTrips),
		logger:    logger,
	}

	sink := append(signal.MultiSink{signal.SinkFunc(s.recordSignal)}, sinks...)
	if err := s.placeIntersections(entropy.New(seed, entropy.StreamSignals), sink); err != nil {
		return nil, err
	}

	spawner := agents.NewSpawner(s.tripRng, grid, demand)
	s.Vehicles = spawner.SpawnVehicles(cfg.Vehicles)
	s.Drones = agents.NewSpawner(entropy.New(seed, entropy.StreamDrones), grid, nil).SpawnDrones(cfg.Drones)

	logger.Info("simulation ready",
		"seed", seed,
		"grid", grid.String(),
		"intersections", len(s.Intersections),
		"vehicles", len(s.Vehicles),
		"drones", len(s.Drones),
		"demand_hotspot", demand.Hottest().String(),
	)

	s.refreshOccupancy()
	s.updateStats()
	s.publishSnapshot()
	return s, nil
}

func (s *Simulation) placeIntersections(rng *rand.Rand, sink signal.Sink) error {
	sites := s.Grid.IntersectionSites()
	if len(sites) == 0 {
		return fmt.Errorf("%s: %w", s.Grid, ErrNoIntersections)
	}
	for i, pos := range sites {
		in, err := signal.NewIntersection(signal.Config{
			ID:       fmt.Sprintf("TL-%d", i+1),
			Position: pos,
			Rand:     rng,
			Sink:     sink,
			Logger:   s.logger,
		})
		if err != nil {
			return fmt.Errorf("place intersection at %s: %w", pos, err)
		}
		s.Intersections = append(s.Intersections, in)
	}
	return nil
}

// Step runs one tick: signals, then vehicles, then drones, then message
// processing, occupancy and statistics.
func (s *Simulation) Step(tick uint64) {
	s.LastTick = tick
	s.Bus.SetTick(tick)

	s.stepIntersections()
	s.stepVehicles(tick)
	s.stepDrones(tick)
	s.processCommunications(tick)
	s.refreshOccupancy()
	s.updateStats()
	s.publishSnapshot()
}

func (s *Simulation) activeVehicles() []*agents.Vehicle {
	return lo.Filter(s.Vehicles, func(v *agents.Vehicle, _ int) bool { return !v.Arrived() })
}

// Observe counts the vehicles near in by heading. The result is computed
// fresh on every call.
func (s *Simulation) Observe(in *signal.Intersection) signal.Observation {
	var obs signal.Observation
	for _, v := range s.activeVehicles() {
		if world.Manhattan(in.Position(), v.Position) > observeRadius {
			continue
		}
		if v.MovingNorthSouth() {
			obs.VehiclesNS++
		} else {
			obs.VehiclesEW++
		}
	}
	return obs
}

func (s *Simulation) stepIntersections() {
	for _, in := range s.Intersections {
		obs := s.Observe(in)
		in.Step(&obs)
		s.Bus.Publish(comms.TopicTrafficLight, in.State())
	}
}

func (s *Simulation) stepVehicles(tick uint64) {
	states := lo.Map(s.Intersections, func(in *signal.Intersection, _ int) signal.State { return in.State() })

	for _, v := range s.activeVehicles() {
		view := agents.VehicleView{
			Lights: lo.Filter(states, func(st signal.State, _ int) bool {
				return world.Manhattan(st.Position, v.Position) <= lightRadius
			}),
			Congestion: s.congestion,
		}
		for _, desc := range v.Step(view, s.tripRng) {
			s.addEvent(tick, desc, "vehicle")
		}
		s.Bus.Publish(comms.TopicVehicle, v.Snapshot())
	}
}

func (s *Simulation) stepDrones(tick uint64) {
	vehicles := lo.Map(s.activeVehicles(), func(v *agents.Vehicle, _ int) agents.VehicleSnapshot { return v.Snapshot() })

	for _, d := range s.Drones {
		anomalies, events := d.Step(vehicles)
		for _, desc := range events {
			s.addEvent(tick, desc, "drone")
		}
		for _, a := range anomalies {
			s.Bus.Publish(comms.TopicAnomaly, a)
		}
		s.Bus.Publish(comms.TopicDrone, d.Snapshot())
	}
}

// processCommunications turns this tick's anomaly reports into statistics
// and the congestion map vehicles see next tick, then clears the bus.
func (s *Simulation) processCommunications(tick uint64) {
	s.congestion = s.congestion[:0]

	for _, msg := range s.Bus.Messages(comms.TopicAnomaly, 0) {
		a, ok := msg.Payload.(agents.Anomaly)
		if !ok {
			continue
		}
		switch a.Kind {
		case agents.AnomalyCongestion:
			s.Stats.CongestionEvents++
			s.congestion = append(s.congestion, agents.CongestionReport{Position: a.Position, Level: a.Severity})
			s.addEvent(tick, fmt.Sprintf("congestion at %s with severity %d (%s)", a.Position, a.Severity, a.DroneID), "anomaly")
			s.logger.Info("congestion detected", "position", a.Position.String(), "severity", a.Severity, "drone", a.DroneID)
		case agents.AnomalyIncident:
			s.Stats.Incidents++
			s.addEvent(tick, fmt.Sprintf("incident: vehicle %s waiting %d ticks at %s", a.VehicleID, a.WaitingTime, a.Position), "anomaly")
			s.logger.Info("incident detected", "vehicle", a.VehicleID, "waiting", a.WaitingTime, "drone", a.DroneID)
		}
	}

	s.Bus.Clear()
}

// recordSignal is the built-in sink for intersection events: a log line, an
// event log entry and a bus message.
func (s *Simulation) recordSignal(e signal.Event) {
	var desc string
	switch e.Kind {
	case signal.EventPhaseChanged:
		s.Stats.PhaseChanges++
		desc = fmt.Sprintf("%s at %s changed to %s", e.IntersectionID, e.Position, e.To)
		if e.To == signal.PhaseGreen {
			desc += " for " + e.Direction.String()
		}
		s.logger.Info("signal phase changed",
			"intersection", e.IntersectionID,
			"position", e.Position.String(),
			"from", e.From.String(),
			"to", e.To.String(),
			"direction", e.Direction.String(),
		)
	case signal.EventDurationAdjusted:
		s.Stats.Adjustments++
		desc = fmt.Sprintf("%s at %s green time %d -> %d due to %s",
			e.IntersectionID, e.Position, e.PrevDuration, e.GreenDuration, e.Reason)
		s.logger.Info("green duration adjusted",
			"intersection", e.IntersectionID,
			"position", e.Position.String(),
			"from", e.PrevDuration,
			"to", e.GreenDuration,
			"reason", e.Reason,
		)
	}
	s.addEvent(s.LastTick, desc, "signal")
	s.Bus.Publish(comms.TopicSignalEvent, e)
}

func (s *Simulation) addEvent(tick uint64, desc, category string) {
	e := Event{Tick: tick, Description: desc, Category: category}
	if s.OnEvent != nil {
		s.OnEvent(e)
	}
	s.Events = append(s.Events, e)
	// Trim old events to prevent unbounded growth.
	if len(s.Events) > maxEvents {
		s.Events = s.Events[len(s.Events)-maxEvents:]
	}
}

func (s *Simulation) refreshOccupancy() {
	s.Occupancy.Clear()
	for _, in := range s.Intersections {
		s.Occupancy.Add(in.Position(), world.Occupant{ID: in.ID(), Kind: world.KindIntersection, State: in.State().Phase.String()})
	}
	for _, v := range s.activeVehicles() {
		s.Occupancy.Add(v.Position, world.Occupant{ID: v.ID, Kind: world.KindVehicle, State: v.Status.String()})
	}
	for _, d := range s.Drones {
		s.Occupancy.Add(d.Position, world.Occupant{ID: d.ID, Kind: world.KindDrone, State: d.Status.String()})
	}
}

// IntersectionByID returns the intersection with the given id.
func (s *Simulation) IntersectionByID(id string) (*signal.Intersection, bool) {
	return lo.Find(s.Intersections, func(in *signal.Intersection) bool { return in.ID() == id })
}
