// Traffic demand using layered simplex noise.
// High-demand cells are where trips tend to start and end.
package world

import (
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"
)

// DemandConfig holds demand field generation parameters.
type DemandConfig struct {
	Seed        int64
	Octaves     int     // Noise layers
	Frequency   float64 // Base frequency in cells⁻¹
	Persistence float64 // Amplitude falloff per octave
	Floor       float64 // Minimum weight so no cell is unreachable
}

// DefaultDemandConfig returns a field with a few broad hot spots.
func DefaultDemandConfig() DemandConfig {
	return DemandConfig{
		Octaves:     3,
		Frequency:   0.35,
		Persistence: 0.5,
		Floor:       0.05,
	}
}

// DemandField is a normalized [0, 1] weight per grid cell.
type DemandField struct {
	grid    Grid
	weights []float64 // Row-major, index y*size+x
	total   float64
}

// NewDemandField samples the noise for every cell of g.
func NewDemandField(g Grid, cfg DemandConfig) *DemandField {
	noise := opensimplex.NewNormalized(cfg.Seed)

	f := &DemandField{
		grid:    g,
		weights: make([]float64, g.CellCount()),
	}
	for y := 0; y < g.Size; y++ {
		for x := 0; x < g.Size; x++ {
			w := octaveNoise(noise, float64(x), float64(y), cfg.Octaves, cfg.Frequency, cfg.Persistence)
			if w < cfg.Floor {
				w = cfg.Floor
			}
			f.weights[y*g.Size+x] = w
			f.total += w
		}
	}
	return f
}

// At returns the demand weight of c, or 0 off the grid.
func (f *DemandField) At(c Coord) float64 {
	if !f.grid.InBounds(c) {
		return 0
	}
	return f.weights[c.Y*f.grid.Size+c.X]
}

// Sample draws a cell with probability proportional to its weight.
func (f *DemandField) Sample(rng *rand.Rand) Coord {
	target := rng.Float64() * f.total
	for i, w := range f.weights {
		target -= w
		if target < 0 {
			return Coord{X: i % f.grid.Size, Y: i / f.grid.Size}
		}
	}
	last := len(f.weights) - 1
	return Coord{X: last % f.grid.Size, Y: last / f.grid.Size}
}

// SampleOther draws a cell different from c. On a one-cell grid it returns c.
func (f *DemandField) SampleOther(rng *rand.Rand, c Coord) Coord {
	if f.grid.CellCount() < 2 {
		return c
	}
	for i := 0; i < 64; i++ {
		if d := f.Sample(rng); d != c {
			return d
		}
	}
	for _, s := range Steps {
		if d := c.Add(s); f.grid.InBounds(d) {
			return d
		}
	}
	return c
}

// Hottest returns the cell with the highest weight.
func (f *DemandField) Hottest() Coord {
	best := 0
	for i, w := range f.weights {
		if w > f.weights[best] {
			best = i
		}
	}
	return Coord{X: best % f.grid.Size, Y: best / f.grid.Size}
}

func octaveNoise(noise opensimplex.Noise, x, y float64, octaves int, frequency, persistence float64) float64 {
	if octaves < 1 {
		octaves = 1
	}
	total := 0.0
	amplitude := 1.0
	maxVal := 0.0

	for i := 0; i < octaves; i++ {
		total += noise.Eval2(x*frequency, y*frequency) * amplitude
		maxVal += amplitude
		amplitude *= persistence
		frequency *= 2
	}

	return total / maxVal
}
