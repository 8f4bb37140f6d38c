package signal

import "github.com/talgya/gridsim/internal/world"

// EventKind distinguishes the two diagnostics an intersection emits.
type EventKind uint8

const (
	EventPhaseChanged EventKind = iota + 1
	EventDurationAdjusted
)

func (k EventKind) String() string {
	switch k {
	case EventPhaseChanged:
		return "phase_changed"
	case EventDurationAdjusted:
		return "duration_adjusted"
	}
	return "unknown"
}

// MarshalText encodes the kind by name.
func (k EventKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Event is a structured record of a phase change or green adjustment.
type Event struct {
	Kind           EventKind   `json:"kind"`
	IntersectionID string      `json:"intersection_id"`
	Position       world.Coord `json:"position"`
	Step           uint64      `json:"step"`
	From           Phase       `json:"from,omitempty"`
	To             Phase       `json:"to,omitempty"`
	Direction      Direction   `json:"direction"`
	GreenDuration  int         `json:"green_duration"`
	PrevDuration   int         `json:"prev_duration,omitempty"`
	Reason         string      `json:"reason,omitempty"`
}

// Sink receives intersection events. Implementations must not call back
// into the emitting intersection.
type Sink interface {
	Record(Event)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Event)

// Record calls f(e).
func (f SinkFunc) Record(e Event) { f(e) }

// MultiSink fans each event out to every non-nil sink in order.
type MultiSink []Sink

// Record forwards e to each sink.
func (ms MultiSink) Record(e Event) {
	for _, s := range ms {
		if s != nil {
			s.Record(e)
		}
	}
}

type discard struct{}

func (discard) Record(Event) {}
