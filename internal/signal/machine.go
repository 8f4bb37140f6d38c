package signal

// Fixed phase lengths and green bounds, in ticks.
const (
	RedDuration          = 30
	YellowDuration       = 5
	DefaultGreenDuration = 30
	MinGreenDuration     = 15
	MaxGreenDuration     = 45
)

// Transition records one phase change made by Machine.Advance.
type Transition struct {
	From      Phase
	To        Phase
	Direction Direction // Direction after the change
}

// Machine is the RED → GREEN → YELLOW → RED cycle for one intersection.
// The green length is owned by the machine but only changed through
// setGreen, which the Analyzer calls.
type Machine struct {
	phase     Phase
	timer     int // Ticks elapsed in the current phase
	green     int
	direction Direction
}

func newMachine(initial Phase) Machine {
	return Machine{
		phase:     initial,
		green:     DefaultGreenDuration,
		direction: NorthSouth,
	}
}

// Phase returns the active phase.
func (m *Machine) Phase() Phase { return m.phase }

// Timer returns the ticks spent in the active phase.
func (m *Machine) Timer() int { return m.timer }

// Green returns the current green duration.
func (m *Machine) Green() int { return m.green }

// Direction returns the current direction label.
func (m *Machine) Direction() Direction { return m.direction }

// durationOf returns how long the given phase lasts right now.
func (m *Machine) durationOf(p Phase) int {
	switch p {
	case PhaseRed:
		return RedDuration
	case PhaseYellow:
		return YellowDuration
	}
	return m.green
}

// tick counts one elapsed step in the current phase.
func (m *Machine) tick() {
	m.timer++
}

// settle applies the transition rule to the already advanced timer. At most
// one transition happens per call.
func (m *Machine) settle() (Transition, bool) {
	if m.timer < m.durationOf(m.phase) {
		return Transition{}, false
	}

	from := m.phase
	m.phase = from.Next()
	m.timer = 0
	if m.phase == PhaseGreen {
		m.direction = directionForGreen(m.green)
	}
	return Transition{From: from, To: m.phase, Direction: m.direction}, true
}

// Advance runs one full step of the transition rule: increment the timer,
// then change phase if the current one has run its length.
func (m *Machine) Advance() (Transition, bool) {
	m.tick()
	return m.settle()
}

// setGreen stores a new green duration, saturating at the bounds.
func (m *Machine) setGreen(d int) {
	m.green = clampGreen(d)
}

func clampGreen(d int) int {
	if d < MinGreenDuration {
		return MinGreenDuration
	}
	if d > MaxGreenDuration {
		return MaxGreenDuration
	}
	return d
}
