// Package signal provides the per-intersection signal controller: the phase
// state machine, the congestion-adaptive green timing, and the agent that
// composes them for the simulation controller.
package signal

import "fmt"

// Phase is the signal's current display state.
type Phase uint8

const (
	phaseNone Phase = iota // Zero value, never held by a running machine
	PhaseRed
	PhaseYellow
	PhaseGreen
)

// Phases lists every valid phase.
var Phases = [3]Phase{PhaseRed, PhaseYellow, PhaseGreen}

// Valid reports whether p is one of the three signal phases.
func (p Phase) Valid() bool {
	return p == PhaseRed || p == PhaseYellow || p == PhaseGreen
}

// Next returns the phase that follows p in the cycle.
func (p Phase) Next() Phase {
	switch p {
	case PhaseRed:
		return PhaseGreen
	case PhaseGreen:
		return PhaseYellow
	case PhaseYellow:
		return PhaseRed
	}
	return phaseNone
}

func (p Phase) String() string {
	switch p {
	case PhaseRed:
		return "RED"
	case PhaseYellow:
		return "YELLOW"
	case PhaseGreen:
		return "GREEN"
	}
	return fmt.Sprintf("Phase(%d)", uint8(p))
}

// MarshalText encodes the phase as RED, YELLOW or GREEN.
func (p Phase) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("marshal %v: %w", p, ErrInvalidPhase)
	}
	return []byte(p.String()), nil
}

// UnmarshalText accepts RED, YELLOW or GREEN.
func (p *Phase) UnmarshalText(b []byte) error {
	parsed, err := ParsePhase(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// ParsePhase converts the text form back into a Phase.
func ParsePhase(s string) (Phase, error) {
	switch s {
	case "RED":
		return PhaseRed, nil
	case "YELLOW":
		return PhaseYellow, nil
	case "GREEN":
		return PhaseGreen, nil
	}
	return phaseNone, fmt.Errorf("parse phase %q: %w", s, ErrInvalidPhase)
}

// Direction labels which road axis the current green serves.
//
// The label is derived from the parity of the green duration when a green
// phase starts, not from any road geometry. Consumers treat it as a coarse
// hint only.
type Direction uint8

const (
	NorthSouth Direction = iota
	EastWest
)

func (d Direction) String() string {
	if d == EastWest {
		return "East-West"
	}
	return "North-South"
}

// MarshalText encodes the direction as "North-South" or "East-West".
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText accepts "North-South" or "East-West".
func (d *Direction) UnmarshalText(b []byte) error {
	switch string(b) {
	case "North-South":
		*d = NorthSouth
	case "East-West":
		*d = EastWest
	default:
		return fmt.Errorf("parse direction %q: unknown label", string(b))
	}
	return nil
}

// directionForGreen applies the parity rule used on every RED to GREEN change.
func directionForGreen(greenDuration int) Direction {
	if greenDuration%2 == 0 {
		return EastWest
	}
	return NorthSouth
}
