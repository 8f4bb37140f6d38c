// Agent spawning: vehicles get demand-weighted trips and drones get
// quadrant patrol areas.
package agents

import (
	"fmt"
	"math/rand"

	"github.com/talgya/gridsim/internal/world"
)

// Spawner creates agents for the simulation.
type Spawner struct {
	rng         *rand.Rand
	grid        world.Grid
	demand      *world.DemandField
	nextVehicle int
	nextDrone   int
}

// NewSpawner creates an agent spawner drawing from rng. A nil demand field
// places trips uniformly.
func NewSpawner(rng *rand.Rand, g world.Grid, demand *world.DemandField) *Spawner {
	return &Spawner{
		rng:         rng,
		grid:        g,
		demand:      demand,
		nextVehicle: 1,
		nextDrone:   1,
	}
}

// SpawnVehicles creates count vehicles, each with a destination different
// from its start.
func (s *Spawner) SpawnVehicles(count int) []*Vehicle {
	vehicles := make([]*Vehicle, 0, count)
	for i := 0; i < count; i++ {
		start := s.pick()
		dest := s.pickOther(start)

		id := fmt.Sprintf("V-%d", s.nextVehicle)
		s.nextVehicle++
		vehicles = append(vehicles, NewVehicle(id, start, dest, s.grid))
	}
	return vehicles
}

// SpawnDrones creates count drones, assigning grid quadrants in turn.
func (s *Spawner) SpawnDrones(count int) []*Drone {
	drones := make([]*Drone, 0, count)
	for i := 0; i < count; i++ {
		start := s.uniform()
		id := fmt.Sprintf("D-%d", s.nextDrone)
		s.nextDrone++
		drones = append(drones, NewDrone(id, start, QuadrantArea(s.grid, i%4), s.grid, s.rng))
	}
	return drones
}

// QuadrantArea returns the patrol rectangle for quadrant 0–3: top-left,
// top-right, bottom-left, bottom-right.
func QuadrantArea(g world.Grid, quadrant int) PatrolArea {
	half := g.Size / 2
	left := quadrant == 0 || quadrant == 2
	top := quadrant == 0 || quadrant == 1

	area := PatrolArea{}
	if left {
		area.Min.X, area.Max.X = 0, half-1
	} else {
		area.Min.X, area.Max.X = half, g.Size-1
	}
	if top {
		area.Min.Y, area.Max.Y = 0, half-1
	} else {
		area.Min.Y, area.Max.Y = half, g.Size-1
	}

	// A one-cell grid has an empty first half; fall back to the whole grid.
	if area.Max.X < area.Min.X || area.Max.Y < area.Min.Y {
		area = PatrolArea{Max: world.Coord{X: g.Size - 1, Y: g.Size - 1}}
	}
	return area
}

func (s *Spawner) pick() world.Coord {
	if s.demand != nil {
		return s.demand.Sample(s.rng)
	}
	return s.uniform()
}

func (s *Spawner) pickOther(c world.Coord) world.Coord {
	if s.demand != nil {
		return s.demand.SampleOther(s.rng, c)
	}
	if s.grid.CellCount() < 2 {
		return c
	}
	for {
		if d := s.uniform(); d != c {
			return d
		}
	}
}

func (s *Spawner) uniform() world.Coord {
	return world.Coord{X: s.rng.Intn(s.grid.Size), Y: s.rng.Intn(s.grid.Size)}
}
