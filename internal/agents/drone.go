package agents

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/talgya/gridsim/internal/world"
)

// Drone battery and detection thresholds.
const (
	fullBattery       = 100.0
	batteryDrain      = 0.5
	lowBattery        = 20.0
	watchRadius       = 2 // Manhattan radius a drone can see
	congestionCrowd   = 3 // More vehicles than this is congestion
	maxSeverity       = 10
	incidentWaitTicks = 10 // A vehicle waiting longer is an incident
	minExtraWaypoints = 3
	maxExtraWaypoints = 6
)

// Base is where drones recharge.
var Base = world.Coord{X: 0, Y: 0}

// PatrolArea is an inclusive rectangle of cells.
type PatrolArea struct {
	Min world.Coord `json:"min"`
	Max world.Coord `json:"max"`
}

// Drone patrols an area, watches nearby vehicles, and reports anomalies.
type Drone struct {
	ID       string
	Position world.Coord
	Status   DroneStatus
	Battery  float64
	Area     PatrolArea

	grid      world.Grid
	home      world.Coord
	waypoints []world.Coord
	waypoint  int
	reported  int

	rng *rand.Rand
}

// NewDrone creates a patrolling drone with a fresh waypoint loop.
func NewDrone(id string, start world.Coord, area PatrolArea, g world.Grid, rng *rand.Rand) *Drone {
	d := &Drone{
		ID:       id,
		Position: start,
		Status:   DronePatrolling,
		Battery:  fullBattery,
		Area:     area,
		grid:     g,
		home:     start,
		rng:      rng,
	}
	d.waypoints = d.patrolWaypoints()
	return d
}

// patrolWaypoints visits the area's corners and a few random cells in
// shuffled order, then closes the loop at the drone's starting cell.
func (d *Drone) patrolWaypoints() []world.Coord {
	lo, hi := d.Area.Min, d.Area.Max
	points := []world.Coord{
		{X: lo.X, Y: lo.Y}, {X: hi.X, Y: lo.Y},
		{X: hi.X, Y: hi.Y}, {X: lo.X, Y: hi.Y},
	}
	extra := minExtraWaypoints + d.rng.Intn(maxExtraWaypoints-minExtraWaypoints+1)
	for i := 0; i < extra; i++ {
		points = append(points, world.Coord{
			X: lo.X + d.rng.Intn(hi.X-lo.X+1),
			Y: lo.Y + d.rng.Intn(hi.Y-lo.Y+1),
		})
	}
	d.rng.Shuffle(len(points), func(i, j int) { points[i], points[j] = points[j], points[i] })
	return append(points, d.home)
}

// Step drains the battery, watches the given vehicles, and moves one cell.
// It returns anomalies found this tick and notable happenings.
func (d *Drone) Step(vehicles []VehicleSnapshot) ([]Anomaly, []string) {
	var events []string

	if d.Status == DroneReporting {
		d.Status = DronePatrolling
	}

	d.Battery = math.Max(0, d.Battery-batteryDrain)
	if d.Battery < lowBattery && d.Status != DroneReturning {
		d.Status = DroneReturning
		events = append(events, fmt.Sprintf("drone %s battery low (%.1f%%), returning to base", d.ID, d.Battery))
	}
	if d.Status == DroneReturning && d.Position == Base {
		d.Battery = fullBattery
		d.Status = DronePatrolling
		d.waypoints = d.patrolWaypoints()
		d.waypoint = 0
		events = append(events, fmt.Sprintf("drone %s recharged, resuming patrol", d.ID))
	}

	anomalies := d.watch(vehicles)
	d.reported += len(anomalies)
	if len(anomalies) > 0 && d.Status != DroneReturning {
		d.Status = DroneReporting
	}

	if d.Status == DroneReturning {
		d.moveToward(Base)
		return anomalies, events
	}

	target := d.waypoints[d.waypoint]
	d.moveToward(target)
	if abs(d.Position.X-target.X) <= 1 && abs(d.Position.Y-target.Y) <= 1 {
		d.waypoint++
		if d.waypoint >= len(d.waypoints) {
			d.waypoint = 0
			d.waypoints = d.patrolWaypoints()
		}
	}
	return anomalies, events
}

// watch looks for crowds and long waits within the watch radius.
func (d *Drone) watch(vehicles []VehicleSnapshot) []Anomaly {
	var nearby []VehicleSnapshot
	for _, v := range vehicles {
		if world.Manhattan(d.Position, v.Position) <= watchRadius {
			nearby = append(nearby, v)
		}
	}

	var found []Anomaly
	if len(nearby) > congestionCrowd {
		found = append(found, Anomaly{
			Kind:     AnomalyCongestion,
			DroneID:  d.ID,
			Position: d.Position,
			Vehicles: len(nearby),
			Severity: min(maxSeverity, len(nearby)),
		})
	}
	for _, v := range nearby {
		if v.Status == VehicleWaiting && v.WaitingTime > incidentWaitTicks {
			found = append(found, Anomaly{
				Kind:        AnomalyIncident,
				DroneID:     d.ID,
				Position:    v.Position,
				VehicleID:   v.ID,
				WaitingTime: v.WaitingTime,
			})
		}
	}
	return found
}

// moveToward takes one rounded unit step toward target, staying on the grid.
func (d *Drone) moveToward(target world.Coord) {
	dx := float64(target.X - d.Position.X)
	dy := float64(target.Y - d.Position.Y)
	dist := math.Max(1, math.Hypot(dx, dy))
	next := world.Coord{
		X: d.Position.X + int(math.Round(dx/dist)),
		Y: d.Position.Y + int(math.Round(dy/dist)),
	}
	d.Position = d.grid.Clamp(next)
}

// Snapshot returns the read-only view of the drone.
func (d *Drone) Snapshot() DroneSnapshot {
	s := DroneSnapshot{
		ID:       d.ID,
		Position: d.Position,
		Status:   d.Status,
		Battery:  d.Battery,
		Reported: d.reported,
	}
	if d.Status == DroneReturning {
		base := Base
		s.Waypoint = &base
	} else if d.waypoint < len(d.waypoints) {
		wp := d.waypoints[d.waypoint]
		s.Waypoint = &wp
	}
	return s
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
