// Package world provides the square street grid, grid coordinates, per-tick
// cell occupancy, and the traffic demand field used to seed trips.
package world

import "fmt"

// Coord is a cell on the street grid. X grows east, Y grows south.
type Coord struct {
	X int `json:"x" msgpack:"x"`
	Y int `json:"y" msgpack:"y"`
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d, %d)", c.X, c.Y)
}

// Add returns c shifted by d.
func (c Coord) Add(d Coord) Coord {
	return Coord{X: c.X + d.X, Y: c.Y + d.Y}
}

// Steps are the four unit moves along the streets.
var Steps = [4]Coord{
	{X: 0, Y: 1},
	{X: 1, Y: 0},
	{X: 0, Y: -1},
	{X: -1, Y: 0},
}

// Manhattan returns the street distance between two cells.
func Manhattan(a, b Coord) int {
	return abs(a.X-b.X) + abs(a.Y-b.Y)
}

// Grid is an N×N street grid.
type Grid struct {
	Size int `json:"size"`
}

// NewGrid creates a grid with the given side length.
func NewGrid(size int) Grid {
	return Grid{Size: size}
}

// InBounds returns true if c lies on the grid.
func (g Grid) InBounds(c Coord) bool {
	return c.X >= 0 && c.X < g.Size && c.Y >= 0 && c.Y < g.Size
}

// Clamp pulls c back onto the grid.
func (g Grid) Clamp(c Coord) Coord {
	return Coord{X: clamp(c.X, 0, g.Size-1), Y: clamp(c.Y, 0, g.Size-1)}
}

// CellCount returns the total number of cells.
func (g Grid) CellCount() int {
	return g.Size * g.Size
}

// IntersectionSites returns the cells that carry a signal: every
// max(1, size/3) cells along both axes, excluding the border at 0.
func (g Grid) IntersectionSites() []Coord {
	interval := g.Size / 3
	if interval < 1 {
		interval = 1
	}
	var sites []Coord
	for x := interval; x < g.Size; x += interval {
		for y := interval; y < g.Size; y += interval {
			sites = append(sites, Coord{X: x, Y: y})
		}
	}
	return sites
}

// String returns a summary of the grid.
func (g Grid) String() string {
	return fmt.Sprintf("Grid(%dx%d)", g.Size, g.Size)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
