package agents

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/gridsim/internal/signal"
	"github.com/talgya/gridsim/internal/world"
)

func light(pos world.Coord, phase signal.Phase, dir signal.Direction) signal.State {
	return signal.State{ID: "TL-x", Position: pos, Phase: phase, Direction: dir}
}

func TestManhattanPath(t *testing.T) {
	path := manhattanPath(world.Coord{X: 2, Y: 0}, world.Coord{X: 0, Y: 2})
	assert.Equal(t, []world.Coord{{X: 1, Y: 0}, {X: 0, Y: 0}, {X: 0, Y: 1}, {X: 0, Y: 2}}, path)
	assert.Empty(t, manhattanPath(world.Coord{X: 1, Y: 1}, world.Coord{X: 1, Y: 1}))
}

func TestVehicleDrivesToDestination(t *testing.T) {
	g := world.NewGrid(5)
	v := NewVehicle("V-1", world.Coord{X: 0, Y: 0}, world.Coord{X: 2, Y: 1}, g)
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 3; i++ {
		require.False(t, v.Arrived())
		v.Step(VehicleView{}, rng)
	}
	assert.True(t, v.Arrived())
	assert.Equal(t, world.Coord{X: 2, Y: 1}, v.Position)
	assert.Equal(t, 3, v.TravelTime)
	assert.Equal(t, 100, v.Snapshot().Progress)

	assert.Nil(t, v.Step(VehicleView{}, rng))
	assert.Equal(t, 3, v.TravelTime)
}

func TestVehicleHeading(t *testing.T) {
	g := world.NewGrid(5)
	ew := NewVehicle("ew", world.Coord{X: 0, Y: 0}, world.Coord{X: 2, Y: 2}, g)
	assert.False(t, ew.MovingNorthSouth())

	ns := NewVehicle("ns", world.Coord{X: 1, Y: 0}, world.Coord{X: 1, Y: 3}, g)
	assert.True(t, ns.MovingNorthSouth())
}

func TestVehicleStopsAtLights(t *testing.T) {
	g := world.NewGrid(5)
	rng := rand.New(rand.NewSource(1))
	here := world.Coord{X: 1, Y: 1}

	tests := []struct {
		name    string
		light   signal.State
		blocked bool
	}{
		{"red", light(here, signal.PhaseRed, signal.EastWest), true},
		{"yellow", light(here, signal.PhaseYellow, signal.EastWest), true},
		{"green wrong axis", light(here, signal.PhaseGreen, signal.NorthSouth), true},
		{"green right axis", light(here, signal.PhaseGreen, signal.EastWest), false},
		{"light elsewhere", light(world.Coord{X: 2, Y: 1}, signal.PhaseRed, signal.EastWest), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewVehicle("V-1", here, world.Coord{X: 3, Y: 1}, g)
			v.Step(VehicleView{Lights: []signal.State{tt.light}}, rng)
			if tt.blocked {
				assert.Equal(t, VehicleWaiting, v.Status)
				assert.Equal(t, here, v.Position)
				assert.Equal(t, 1, v.WaitingTime)
			} else {
				assert.Equal(t, VehicleMoving, v.Status)
				assert.Equal(t, world.Coord{X: 2, Y: 1}, v.Position)
			}
		})
	}
}

func TestVehicleCountsStopWhenReleased(t *testing.T) {
	g := world.NewGrid(5)
	rng := rand.New(rand.NewSource(1))
	here := world.Coord{X: 1, Y: 1}
	v := NewVehicle("V-1", here, world.Coord{X: 3, Y: 1}, g)

	v.Step(VehicleView{Lights: []signal.State{light(here, signal.PhaseRed, signal.EastWest)}}, rng)
	v.Step(VehicleView{Lights: []signal.State{light(here, signal.PhaseRed, signal.EastWest)}}, rng)
	v.Step(VehicleView{Lights: []signal.State{light(here, signal.PhaseGreen, signal.EastWest)}}, rng)

	assert.Equal(t, 2, v.WaitingTime)
	assert.Equal(t, 1, v.Stops)
	assert.Equal(t, 3, v.TravelTime)
}

func TestVehicleReportsWaitingOncePerStop(t *testing.T) {
	g := world.NewGrid(5)
	rng := rand.New(rand.NewSource(1))
	here := world.Coord{X: 1, Y: 1}
	v := NewVehicle("V-1", here, world.Coord{X: 3, Y: 1}, g)
	red := VehicleView{Lights: []signal.State{light(here, signal.PhaseRed, signal.EastWest)}}

	assert.Equal(t, []string{"vehicle V-1 waiting at TL-x"}, v.Step(red, rng))
	for i := 0; i < 5; i++ {
		assert.Empty(t, v.Step(red, rng))
	}
	assert.Equal(t, 6, v.WaitingTime)
	assert.Equal(t, VehicleWaiting, v.Status)

	v.Step(VehicleView{}, rng)
	assert.Equal(t, VehicleMoving, v.Status)

	// Blocked again at the next light after moving on.
	next := VehicleView{Lights: []signal.State{light(v.Position, signal.PhaseRed, signal.EastWest)}}
	assert.Equal(t, []string{"vehicle V-1 waiting at TL-x"}, v.Step(next, rng))
}

func TestVehicleRerouteKeepsPathConnected(t *testing.T) {
	g := world.NewGrid(6)
	rng := rand.New(rand.NewSource(5))
	start := world.Coord{X: 2, Y: 2}
	dest := world.Coord{X: 5, Y: 5}

	for i := 0; i < 50; i++ {
		v := NewVehicle("V-1", start, dest, g)
		v.reroute(rng)

		prev := v.Position
		for _, c := range v.Path() {
			require.True(t, g.InBounds(c))
			require.Equal(t, 1, world.Manhattan(prev, c), "path jumps from %s to %s", prev, c)
			prev = c
		}
		require.Equal(t, dest, prev)
	}
}

func TestVehicleReactsToSevereCongestion(t *testing.T) {
	g := world.NewGrid(5)
	here := world.Coord{X: 1, Y: 1}
	view := VehicleView{Congestion: []CongestionReport{{Position: here, Level: 9}}}
	rng := rand.New(rand.NewSource(2))

	slowed, rerouted := 0, 0
	for i := 0; i < 200; i++ {
		v := NewVehicle("V-1", here, world.Coord{X: 4, Y: 4}, g)
		v.Step(view, rng)
		if v.Position == here {
			slowed++
			assert.Equal(t, 1, v.WaitingTime)
		} else {
			rerouted++
		}
	}
	assert.Positive(t, slowed)
	assert.Positive(t, rerouted)

	mild := VehicleView{Congestion: []CongestionReport{{Position: here, Level: 5}}}
	v := NewVehicle("V-2", here, world.Coord{X: 4, Y: 4}, g)
	v.Step(mild, rng)
	assert.NotEqual(t, here, v.Position)
}

func TestDroneDetectsCongestionAndIncidents(t *testing.T) {
	g := world.NewGrid(10)
	rng := rand.New(rand.NewSource(1))
	d := NewDrone("D-1", world.Coord{X: 5, Y: 5}, PatrolArea{Max: world.Coord{X: 9, Y: 9}}, g, rng)

	vehicles := []VehicleSnapshot{
		{ID: "a", Position: world.Coord{X: 5, Y: 5}},
		{ID: "b", Position: world.Coord{X: 5, Y: 6}},
		{ID: "c", Position: world.Coord{X: 6, Y: 6}},
		{ID: "d", Position: world.Coord{X: 4, Y: 5}, Status: VehicleWaiting, WaitingTime: 11},
		{ID: "far", Position: world.Coord{X: 0, Y: 0}, Status: VehicleWaiting, WaitingTime: 50},
	}

	found := d.watch(vehicles)
	require.Len(t, found, 2)
	assert.Equal(t, AnomalyCongestion, found[0].Kind)
	assert.Equal(t, 4, found[0].Vehicles)
	assert.Equal(t, 4, found[0].Severity)
	assert.Equal(t, AnomalyIncident, found[1].Kind)
	assert.Equal(t, "d", found[1].VehicleID)

	anomalies, _ := d.Step(vehicles)
	assert.Len(t, anomalies, 2)
	assert.Equal(t, DroneReporting, d.Status)
	assert.Equal(t, 2, d.Snapshot().Reported)

	d.Step(nil)
	assert.Equal(t, DronePatrolling, d.Status)
}

func TestDroneReturnsAndRecharges(t *testing.T) {
	g := world.NewGrid(6)
	rng := rand.New(rand.NewSource(1))
	d := NewDrone("D-1", world.Coord{X: 3, Y: 3}, PatrolArea{Min: world.Coord{X: 3, Y: 3}, Max: world.Coord{X: 5, Y: 5}}, g, rng)
	d.Battery = lowBattery

	events := []string{}
	for i := 0; i < 20 && len(events) < 2; i++ {
		_, ev := d.Step(nil)
		events = append(events, ev...)
		require.True(t, g.InBounds(d.Position))
	}
	require.Len(t, events, 2)
	assert.Contains(t, events[0], "battery low")
	assert.Contains(t, events[1], "recharged")
	assert.Equal(t, DronePatrolling, d.Status)
	assert.Equal(t, fullBattery, d.Battery)
}

func TestDroneStaysInGridWhilePatrolling(t *testing.T) {
	g := world.NewGrid(7)
	rng := rand.New(rand.NewSource(11))
	d := NewDrone("D-1", world.Coord{X: 6, Y: 6}, QuadrantArea(g, 3), g, rng)
	for i := 0; i < 500; i++ {
		d.Step(nil)
		require.True(t, g.InBounds(d.Position))
		require.GreaterOrEqual(t, d.Battery, 0.0)
	}
}

func TestQuadrantArea(t *testing.T) {
	g := world.NewGrid(6)
	assert.Equal(t, PatrolArea{Max: world.Coord{X: 2, Y: 2}}, QuadrantArea(g, 0))
	assert.Equal(t, PatrolArea{Min: world.Coord{X: 3, Y: 0}, Max: world.Coord{X: 5, Y: 2}}, QuadrantArea(g, 1))
	assert.Equal(t, PatrolArea{Min: world.Coord{X: 0, Y: 3}, Max: world.Coord{X: 2, Y: 5}}, QuadrantArea(g, 2))
	assert.Equal(t, PatrolArea{Min: world.Coord{X: 3, Y: 3}, Max: world.Coord{X: 5, Y: 5}}, QuadrantArea(g, 3))

	tiny := world.NewGrid(1)
	assert.Equal(t, PatrolArea{}, QuadrantArea(tiny, 0))
}

func TestSpawner(t *testing.T) {
	g := world.NewGrid(5)
	rng := rand.New(rand.NewSource(3))
	demand := world.NewDemandField(g, world.DefaultDemandConfig())
	s := NewSpawner(rng, g, demand)

	vehicles := s.SpawnVehicles(30)
	require.Len(t, vehicles, 30)
	assert.Equal(t, "V-1", vehicles[0].ID)
	assert.Equal(t, "V-30", vehicles[29].ID)
	for _, v := range vehicles {
		assert.NotEqual(t, v.Position, v.Destination)
		assert.True(t, g.InBounds(v.Destination))
	}

	drones := NewSpawner(rng, g, nil).SpawnDrones(5)
	require.Len(t, drones, 5)
	assert.Equal(t, "D-5", drones[4].ID)
	assert.Equal(t, QuadrantArea(g, 0), drones[4].Area)
}
