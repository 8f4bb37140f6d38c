// Package agents provides the mobile agents that share the street grid with
// the signals: vehicles that drive trips and drones that patrol and report.
// Both only read intersection snapshots; neither mutates signal state.
package agents

import (
	"github.com/talgya/gridsim/internal/signal"
	"github.com/talgya/gridsim/internal/world"
)

// VehicleStatus is a vehicle's driving state.
type VehicleStatus uint8

const (
	VehicleMoving VehicleStatus = iota
	VehicleWaiting
	VehicleRerouting
	VehicleArrived
)

func (s VehicleStatus) String() string {
	switch s {
	case VehicleMoving:
		return "MOVING"
	case VehicleWaiting:
		return "WAITING"
	case VehicleRerouting:
		return "REROUTING"
	case VehicleArrived:
		return "ARRIVED"
	}
	return "UNKNOWN"
}

// MarshalText encodes the status by name.
func (s VehicleStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// DroneStatus is a drone's patrol state.
type DroneStatus uint8

const (
	DronePatrolling DroneStatus = iota
	DroneReporting
	DroneReturning
)

func (s DroneStatus) String() string {
	switch s {
	case DronePatrolling:
		return "PATROLLING"
	case DroneReporting:
		return "REPORTING"
	case DroneReturning:
		return "RETURNING"
	}
	return "UNKNOWN"
}

// MarshalText encodes the status by name.
func (s DroneStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// AnomalyKind classifies what a drone reported.
type AnomalyKind uint8

const (
	AnomalyCongestion AnomalyKind = iota + 1
	AnomalyIncident
)

func (k AnomalyKind) String() string {
	switch k {
	case AnomalyCongestion:
		return "congestion"
	case AnomalyIncident:
		return "incident"
	}
	return "unknown"
}

// MarshalText encodes the kind by name.
func (k AnomalyKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Anomaly is a drone observation worth telling the controller about.
type Anomaly struct {
	Kind        AnomalyKind `json:"type"`
	DroneID     string      `json:"drone_id"`
	Position    world.Coord `json:"position"`
	Vehicles    int         `json:"vehicles,omitempty"` // Congestion only
	Severity    int         `json:"severity,omitempty"` // Congestion only, 0–10
	VehicleID   string      `json:"vehicle_id,omitempty"`
	WaitingTime int         `json:"waiting_time,omitempty"`
}

// CongestionReport is the part of a congestion anomaly vehicles act on.
type CongestionReport struct {
	Position world.Coord `json:"position"`
	Level    int         `json:"level"`
}

// VehicleView is what the controller shows a vehicle each tick.
type VehicleView struct {
	Lights     []signal.State     // Intersections within one cell
	Congestion []CongestionReport // Reports from the previous tick
}

// VehicleSnapshot is the read-only view of a vehicle.
type VehicleSnapshot struct {
	ID          string        `json:"id"`
	Position    world.Coord   `json:"position"`
	Destination world.Coord   `json:"destination"`
	Status      VehicleStatus `json:"state"`
	WaitingTime int           `json:"waiting_time"`
	TravelTime  int           `json:"total_travel_time"`
	Stops       int           `json:"stops"`
	Progress    int           `json:"progress"` // Percent of path covered
	MovingNS    bool          `json:"moving_north_south"`
}

// DroneSnapshot is the read-only view of a drone.
type DroneSnapshot struct {
	ID       string       `json:"id"`
	Position world.Coord  `json:"position"`
	Status   DroneStatus  `json:"state"`
	Battery  float64      `json:"battery"`
	Reported int          `json:"anomalies_detected"`
	Waypoint *world.Coord `json:"current_waypoint,omitempty"`
}
