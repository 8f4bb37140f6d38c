package signal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runUntilChange advances m until it changes phase and returns the
// transition and how many ticks it took.
func runUntilChange(t *testing.T, m *Machine) (Transition, int) {
	t.Helper()
	for n := 1; n <= MaxGreenDuration+RedDuration; n++ {
		if tr, ok := m.Advance(); ok {
			return tr, n
		}
	}
	t.Fatalf("no transition from %s", m.Phase())
	return Transition{}, 0
}

func TestPhaseCycle(t *testing.T) {
	assert.Equal(t, PhaseGreen, PhaseRed.Next())
	assert.Equal(t, PhaseYellow, PhaseGreen.Next())
	assert.Equal(t, PhaseRed, PhaseYellow.Next())
	assert.False(t, phaseNone.Valid())
	assert.False(t, Phase(9).Valid())
}

func TestPhaseText(t *testing.T) {
	for _, p := range Phases {
		b, err := p.MarshalText()
		require.NoError(t, err)
		got, err := ParsePhase(string(b))
		require.NoError(t, err)
		assert.Equal(t, p, got)
	}

	_, err := ParsePhase("BLUE")
	assert.ErrorIs(t, err, ErrInvalidPhase)
	_, err = phaseNone.MarshalText()
	assert.ErrorIs(t, err, ErrInvalidPhase)

	b, err := json.Marshal(struct {
		P Phase     `json:"p"`
		D Direction `json:"d"`
	}{PhaseYellow, EastWest})
	require.NoError(t, err)
	assert.JSONEq(t, `{"p":"YELLOW","d":"East-West"}`, string(b))
}

func TestMachineCycleLengths(t *testing.T) {
	m := newMachine(PhaseGreen)

	tr, n := runUntilChange(t, &m)
	assert.Equal(t, Transition{From: PhaseGreen, To: PhaseYellow, Direction: NorthSouth}, tr)
	assert.Equal(t, DefaultGreenDuration, n)

	tr, n = runUntilChange(t, &m)
	assert.Equal(t, PhaseRed, tr.To)
	assert.Equal(t, YellowDuration, n)

	tr, n = runUntilChange(t, &m)
	assert.Equal(t, PhaseGreen, tr.To)
	assert.Equal(t, RedDuration, n)
	assert.Zero(t, m.Timer())
}

func TestMachineRedToGreenSetsDirectionByParity(t *testing.T) {
	m := newMachine(PhaseRed)
	for i := 0; i < RedDuration-1; i++ {
		_, ok := m.Advance()
		require.False(t, ok)
	}
	assert.Equal(t, RedDuration-1, m.Timer())

	tr, ok := m.Advance()
	require.True(t, ok)
	assert.Equal(t, PhaseGreen, m.Phase())
	assert.Zero(t, m.Timer())
	assert.Equal(t, EastWest, tr.Direction, "even green duration")

	m = newMachine(PhaseRed)
	m.setGreen(25)
	tr, _ = runUntilChange(t, &m)
	assert.Equal(t, NorthSouth, tr.Direction, "odd green duration")
}

func TestMachineOneTransitionPerAdvance(t *testing.T) {
	m := newMachine(PhaseGreen)
	m.timer = 100
	tr, ok := m.Advance()
	require.True(t, ok)
	assert.Equal(t, PhaseYellow, tr.To)
	assert.Equal(t, PhaseYellow, m.Phase())
}

func TestClampGreen(t *testing.T) {
	assert.Equal(t, MinGreenDuration, clampGreen(-4))
	assert.Equal(t, MinGreenDuration, clampGreen(MinGreenDuration))
	assert.Equal(t, 33, clampGreen(33))
	assert.Equal(t, MaxGreenDuration, clampGreen(90))
}
