package agents

import (
	"fmt"
	"math/rand"

	"github.com/talgya/gridsim/internal/signal"
	"github.com/talgya/gridsim/internal/world"
)

// Rerouting behaviour under reported congestion.
const (
	severeCongestion = 7   // Reports above this level affect vehicles
	rerouteChance    = 0.3 // Otherwise the vehicle is slowed for the tick
	detourChance     = 0.2 // Per remaining path cell
	detourAttempts   = 3
)

// Vehicle drives one trip from its start to its destination along the
// streets, stopping at signals that do not serve its heading.
type Vehicle struct {
	ID          string
	Position    world.Coord
	Destination world.Coord
	Status      VehicleStatus

	path      []world.Coord
	pathIndex int
	grid      world.Grid

	WaitingTime int
	TravelTime  int
	Stops       int
}

// NewVehicle creates a vehicle with an x-then-y street path to dest.
func NewVehicle(id string, start, dest world.Coord, g world.Grid) *Vehicle {
	return &Vehicle{
		ID:          id,
		Position:    start,
		Destination: dest,
		Status:      VehicleMoving,
		path:        manhattanPath(start, dest),
		grid:        g,
	}
}

// manhattanPath walks along x first, then y.
func manhattanPath(from, to world.Coord) []world.Coord {
	var path []world.Coord
	cur := from

	dx := 1
	if to.X < cur.X {
		dx = -1
	}
	for cur.X != to.X {
		cur.X += dx
		path = append(path, cur)
	}

	dy := 1
	if to.Y < cur.Y {
		dy = -1
	}
	for cur.Y != to.Y {
		cur.Y += dy
		path = append(path, cur)
	}
	return path
}

// Arrived reports whether the trip is over.
func (v *Vehicle) Arrived() bool {
	return v.Status == VehicleArrived
}

// MovingNorthSouth reports whether the next move keeps the same x.
// Vehicles with no move left count as east-west.
func (v *Vehicle) MovingNorthSouth() bool {
	if v.pathIndex >= len(v.path) {
		return false
	}
	return v.path[v.pathIndex].X == v.Position.X
}

// Path returns the remaining cells still to drive.
func (v *Vehicle) Path() []world.Coord {
	return v.path[v.pathIndex:]
}

// Step advances the vehicle one tick and returns notable happenings.
func (v *Vehicle) Step(view VehicleView, rng *rand.Rand) []string {
	if v.Status == VehicleArrived {
		return nil
	}
	v.TravelTime++

	for _, light := range view.Lights {
		if light.Position != v.Position {
			continue
		}
		if v.blockedBy(light) {
			v.WaitingTime++
			if v.Status == VehicleWaiting {
				return nil
			}
			v.Status = VehicleWaiting
			return []string{fmt.Sprintf("vehicle %s waiting at %s", v.ID, light.ID)}
		}
	}

	var events []string
	for _, area := range view.Congestion {
		if area.Position != v.Position || area.Level <= severeCongestion {
			continue
		}
		if rng.Float64() < rerouteChance {
			v.Status = VehicleRerouting
			v.reroute(rng)
			events = append(events, fmt.Sprintf("vehicle %s rerouting around congestion at %s", v.ID, v.Position))
			break
		}
		v.WaitingTime++
		return []string{fmt.Sprintf("vehicle %s slowed by congestion at %s", v.ID, v.Position)}
	}

	if v.Status == VehicleWaiting {
		v.Stops++
	}
	v.Status = VehicleMoving

	if v.pathIndex < len(v.path) {
		v.Position = v.path[v.pathIndex]
		v.pathIndex++
		if v.pathIndex == len(v.path) {
			v.Status = VehicleArrived
			events = append(events, fmt.Sprintf("vehicle %s arrived at %s", v.ID, v.Destination))
		}
	} else {
		v.Status = VehicleArrived
		events = append(events, fmt.Sprintf("vehicle %s completed its journey", v.ID))
	}
	return events
}

// blockedBy reports whether the light stops this vehicle: anything but green,
// or green labelled for the other axis.
func (v *Vehicle) blockedBy(light signal.State) bool {
	if light.Phase != signal.PhaseGreen {
		return true
	}
	ns := v.MovingNorthSouth()
	return (light.Direction == signal.EastWest && ns) || (light.Direction == signal.NorthSouth && !ns)
}

// reroute inserts random out-and-back detours into the remaining path. The
// path stays a sequence of adjacent cells.
func (v *Vehicle) reroute(rng *rand.Rand) {
	remaining := v.path[v.pathIndex:]
	rerouted := make([]world.Coord, 0, len(remaining)*2)
	cur := v.Position

	for _, next := range remaining {
		if rng.Float64() < detourChance {
			for i := 0; i < detourAttempts; i++ {
				detour := cur.Add(world.Steps[rng.Intn(len(world.Steps))])
				if v.grid.InBounds(detour) && detour != next {
					rerouted = append(rerouted, detour, cur)
					break
				}
			}
		}
		rerouted = append(rerouted, next)
		cur = next
	}

	v.path = append(v.path[:v.pathIndex:v.pathIndex], rerouted...)
}

// Snapshot returns the read-only view of the vehicle.
func (v *Vehicle) Snapshot() VehicleSnapshot {
	progress := 100
	if len(v.path) > 0 {
		progress = min(100, v.pathIndex*100/len(v.path))
	}
	return VehicleSnapshot{
		ID:          v.ID,
		Position:    v.Position,
		Destination: v.Destination,
		Status:      v.Status,
		WaitingTime: v.WaitingTime,
		TravelTime:  v.TravelTime,
		Stops:       v.Stops,
		Progress:    progress,
		MovingNS:    v.MovingNorthSouth(),
	}
}
