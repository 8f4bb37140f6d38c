// Package render draws the street grid as text for verbose runs.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/talgya/gridsim/internal/world"
)

// Cell glyphs. Signals show their phase initial; a cell with several
// occupants shows the highest-priority one.
const (
	glyphEmpty   = '.'
	glyphVehicle = 'v'
	glyphCrowd   = 'V' // Two or more vehicles
	glyphDrone   = 'D'
)

// Grid writes one row per grid line with a legend underneath.
func Grid(w io.Writer, occ *world.Occupancy, tick uint64) error {
	g := occ.Grid()
	var b strings.Builder

	fmt.Fprintf(&b, "tick %d\n", tick)
	for y := 0; y < g.Size; y++ {
		for x := 0; x < g.Size; x++ {
			if x > 0 {
				b.WriteByte(' ')
			}
			b.WriteRune(glyph(occ.At(world.Coord{X: x, Y: y})))
		}
		b.WriteByte('\n')
	}
	b.WriteString("R/Y/G signal  v vehicle  V crowd  D drone\n")

	_, err := io.WriteString(w, b.String())
	return err
}

func glyph(occupants []world.Occupant) rune {
	vehicles := 0
	drone := false
	for _, o := range occupants {
		switch o.Kind {
		case world.KindIntersection:
			if o.State != "" {
				return rune(o.State[0])
			}
		case world.KindVehicle:
			vehicles++
		case world.KindDrone:
			drone = true
		}
	}
	switch {
	case drone:
		return glyphDrone
	case vehicles > 1:
		return glyphCrowd
	case vehicles == 1:
		return glyphVehicle
	}
	return glyphEmpty
}
