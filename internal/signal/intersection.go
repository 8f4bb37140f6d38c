package signal

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"

	"github.com/talgya/gridsim/internal/world"
)

var (
	ErrEmptyID      = errors.New("signal: empty intersection id")
	ErrInvalidPhase = errors.New("signal: invalid phase")
	ErrNoRand       = errors.New("signal: random initial phase requires a generator")
)

// Config describes one intersection at construction time.
type Config struct {
	ID       string
	Position world.Coord

	// InitialPhase is used as given when set. When left zero the phase is
	// drawn uniformly from Rand.
	InitialPhase Phase
	Rand         *rand.Rand

	Sink   Sink         // Optional event receiver
	Logger *slog.Logger // Defaults to slog.Default()
}

// State is the read-only snapshot handed to vehicles, drones and observers.
type State struct {
	ID              string      `json:"id"`
	Position        world.Coord `json:"position"`
	Phase           Phase       `json:"phase"`
	Direction       Direction   `json:"direction"`
	GreenDuration   int         `json:"green_duration"`
	CongestionLevel float64     `json:"congestion_level"`
	PhaseTimer      int         `json:"phase_timer"`
	Steps           uint64      `json:"steps"`
}

// Intersection is the signal-timing agent for one grid intersection. Step
// must not be called concurrently on the same Intersection.
type Intersection struct {
	id       string
	position world.Coord

	machine  Machine
	analyzer Analyzer
	steps    uint64

	sink   Sink
	logger *slog.Logger
}

// NewIntersection validates cfg and builds an intersection with its timer at
// zero and the default green duration.
func NewIntersection(cfg Config) (*Intersection, error) {
	if cfg.ID == "" {
		return nil, ErrEmptyID
	}

	initial := cfg.InitialPhase
	switch {
	case initial == phaseNone && cfg.Rand == nil:
		return nil, fmt.Errorf("intersection %s: %w", cfg.ID, ErrNoRand)
	case initial == phaseNone:
		initial = Phases[cfg.Rand.Intn(len(Phases))]
	case !initial.Valid():
		return nil, fmt.Errorf("intersection %s: %w", cfg.ID, ErrInvalidPhase)
	}

	sink := cfg.Sink
	if sink == nil {
		sink = discard{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Intersection{
		id:       cfg.ID,
		position: cfg.Position,
		machine:  newMachine(initial),
		sink:     sink,
		logger:   logger.With("intersection", cfg.ID),
	}, nil
}

// ID returns the intersection identifier.
func (in *Intersection) ID() string { return in.id }

// Position returns the fixed grid position.
func (in *Intersection) Position() world.Coord { return in.position }

// Step advances the intersection by one tick. A non-nil obs is offered to the
// analyzer before the transition rule runs; nil skips adaptation.
func (in *Intersection) Step(obs *Observation) {
	in.steps++
	in.machine.tick()

	if obs != nil {
		o, clamped := obs.clamped()
		if clamped {
			in.logger.Debug("negative vehicle count clamped",
				"vehicles_ns", obs.VehiclesNS, "vehicles_ew", obs.VehiclesEW)
		}
		if in.machine.Phase() != PhaseGreen {
			in.logger.Debug("observation ignored outside green", "phase", in.machine.Phase())
		}
		if adj, ok := in.analyzer.Apply(&in.machine, o, in.steps); ok {
			in.sink.Record(Event{
				Kind:           EventDurationAdjusted,
				IntersectionID: in.id,
				Position:       in.position,
				Step:           in.steps,
				Direction:      in.machine.Direction(),
				GreenDuration:  adj.Current,
				PrevDuration:   adj.Previous,
				Reason:         adj.Reason,
			})
		}
	}

	if tr, ok := in.machine.settle(); ok {
		in.sink.Record(Event{
			Kind:           EventPhaseChanged,
			IntersectionID: in.id,
			Position:       in.position,
			Step:           in.steps,
			From:           tr.From,
			To:             tr.To,
			Direction:      tr.Direction,
			GreenDuration:  in.machine.Green(),
		})
	}
}

// State returns a snapshot. It does not mutate the intersection.
func (in *Intersection) State() State {
	return State{
		ID:              in.id,
		Position:        in.position,
		Phase:           in.machine.Phase(),
		Direction:       in.machine.Direction(),
		GreenDuration:   in.machine.Green(),
		CongestionLevel: in.analyzer.CongestionLevel(),
		PhaseTimer:      in.machine.Timer(),
		Steps:           in.steps,
	}
}
