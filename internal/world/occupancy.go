package world

// Kind tags what sort of agent occupies a cell.
type Kind uint8

const (
	KindIntersection Kind = iota
	KindVehicle
	KindDrone
)

func (k Kind) String() string {
	switch k {
	case KindIntersection:
		return "traffic_light"
	case KindVehicle:
		return "vehicle"
	case KindDrone:
		return "drone"
	}
	return "unknown"
}

// Occupant is one agent placed on a cell for the current tick.
type Occupant struct {
	ID    string `json:"id"`
	Kind  Kind   `json:"kind"`
	State string `json:"state"`
}

// Occupancy indexes agents by cell. It is rebuilt from scratch every tick.
type Occupancy struct {
	grid  Grid
	cells map[Coord][]Occupant
	where map[string]Coord
}

// NewOccupancy creates an empty index for g.
func NewOccupancy(g Grid) *Occupancy {
	return &Occupancy{
		grid:  g,
		cells: make(map[Coord][]Occupant),
		where: make(map[string]Coord),
	}
}

// Add places an occupant at c. Off-grid positions are ignored.
func (o *Occupancy) Add(c Coord, occ Occupant) bool {
	if !o.grid.InBounds(c) {
		return false
	}
	o.cells[c] = append(o.cells[c], occ)
	o.where[occ.ID] = c
	return true
}

// Remove drops the occupant with the given id.
func (o *Occupancy) Remove(id string) {
	c, ok := o.where[id]
	if !ok {
		return
	}
	list := o.cells[c]
	for i, occ := range list {
		if occ.ID == id {
			o.cells[c] = append(list[:i], list[i+1:]...)
			break
		}
	}
	delete(o.where, id)
}

// At returns the occupants of c.
func (o *Occupancy) At(c Coord) []Occupant {
	return o.cells[c]
}

// Locate returns where the occupant with id was placed.
func (o *Occupancy) Locate(id string) (Coord, bool) {
	c, ok := o.where[id]
	return c, ok
}

// Len returns the number of placed occupants.
func (o *Occupancy) Len() int {
	return len(o.where)
}

// Clear empties the index.
func (o *Occupancy) Clear() {
	clear(o.cells)
	clear(o.where)
}

// Grid returns the grid this index covers.
func (o *Occupancy) Grid() Grid {
	return o.grid
}
