package signal

import "math"

// Imbalance thresholds for the green timing policy.
const (
	imbalanceRatio = 1.5
	greenStep      = 5
)

// Adjustment reasons reported on duration events.
const (
	ReasonNorthSouthCongestion = "N-S congestion"
	ReasonEastWestCongestion   = "E-W congestion"
)

// Observation is one tick's directional vehicle counts near an intersection.
type Observation struct {
	VehiclesNS int `json:"vehicles_ns"`
	VehiclesEW int `json:"vehicles_ew"`
}

// ObservationFromMap reads the keyed form used by the controller contract.
// Missing keys count as zero.
func ObservationFromMap(m map[string]int) Observation {
	return Observation{
		VehiclesNS: m["vehicles_ns"],
		VehiclesEW: m["vehicles_ew"],
	}
}

// clamped returns the observation with negative counts raised to zero.
func (o Observation) clamped() (Observation, bool) {
	changed := false
	if o.VehiclesNS < 0 {
		o.VehiclesNS = 0
		changed = true
	}
	if o.VehiclesEW < 0 {
		o.VehiclesEW = 0
		changed = true
	}
	return o, changed
}

// Adjustment is a green duration change made by the Analyzer.
type Adjustment struct {
	Previous int
	Current  int
	Reason   string
}

// Analyzer adapts the green duration of a Machine from directional counts.
// It evaluates at most once per step number.
type Analyzer struct {
	lastStep  uint64
	evaluated bool
	level     float64
}

// CongestionLevel returns the smoothed 0–10 imbalance score.
func (a *Analyzer) CongestionLevel() float64 { return a.level }

// Apply evaluates obs for the given step. The level is refreshed on every
// first call for a step; the green duration only moves while m is GREEN.
// Repeated calls with the same step are ignored.
func (a *Analyzer) Apply(m *Machine, obs Observation, step uint64) (Adjustment, bool) {
	if a.evaluated && a.lastStep == step {
		return Adjustment{}, false
	}
	a.lastStep = step
	a.evaluated = true

	a.updateLevel(obs)

	if m.Phase() != PhaseGreen {
		return Adjustment{}, false
	}

	ns := float64(obs.VehiclesNS)
	ew := float64(obs.VehiclesEW)
	prev := m.Green()

	switch {
	case ns > imbalanceRatio*ew && prev > MinGreenDuration:
		// Green is taken to serve East-West here, so a heavier cross
		// flow shortens it.
		m.setGreen(prev - greenStep)
		return Adjustment{Previous: prev, Current: m.Green(), Reason: ReasonNorthSouthCongestion}, true
	case ew > imbalanceRatio*ns && prev < MaxGreenDuration:
		m.setGreen(prev + greenStep)
		return Adjustment{Previous: prev, Current: m.Green(), Reason: ReasonEastWestCongestion}, true
	}
	return Adjustment{}, false
}

func (a *Analyzer) updateLevel(obs Observation) {
	total := obs.VehiclesNS + obs.VehiclesEW
	if total < 1 {
		total = 1
	}
	instant := 10 * math.Abs(float64(obs.VehiclesNS-obs.VehiclesEW)) / float64(total)
	a.level = 0.5*a.level + 0.5*instant
}
