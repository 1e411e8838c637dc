package lf

// DefaultBroadcastMax is the default number of full-frame repetitions
// between field-presence re-checks while emulating (spec.md §4.3's
// tunable "≈65").
const DefaultBroadcastMax = 65

// State is the LF emulator's field-sense state.
type State int

const (
	Sensing State = iota
	Emulating
)

// FieldSensor reports whether the 125 kHz field is currently present
// (backed by the LPCOMP comparator on real hardware).
type FieldSensor func() bool

// Emulator drives the LF modulator GPIO from a precomputed Manchester
// symbol stream, alternating between waiting for a field (Sensing) and
// pumping the frame (Emulating).
type Emulator struct {
	state        State
	symbols      []byte
	pos          int
	reps         int
	broadcastMax int
	sense        FieldSensor
}

// NewEmulator builds an Emulator over a 64-bit frame (as produced by
// EncodeEM410x or EncodeViking), polling sense to detect field presence.
func NewEmulator(frame [64]byte, sense FieldSensor) *Emulator {
	return &Emulator{
		state:        Sensing,
		symbols:      ManchesterEncode(frame[:]),
		broadcastMax: DefaultBroadcastMax,
		sense:        sense,
	}
}

// SetBroadcastMax overrides the repetition count between field re-checks.
func (e *Emulator) SetBroadcastMax(n int) {
	e.broadcastMax = n
}

// State returns the emulator's current field-sense state.
func (e *Emulator) State() State {
	return e.state
}

// Tick advances the modulation timer by one half-bit period and returns
// the symbol to drive this tick. While Sensing it returns
// SymbolUnmodulated and polls sense for a rising edge.
func (e *Emulator) Tick() byte {
	switch e.state {
	case Sensing:
		if e.sense() {
			e.state = Emulating
			e.pos = 0
			e.reps = 0
		}
		return SymbolUnmodulated

	case Emulating:
		sym := e.symbols[e.pos]
		e.pos++
		if e.pos == len(e.symbols) {
			e.pos = 0
			e.reps++
			if e.reps >= e.broadcastMax {
				if e.sense() {
					e.reps = 0
				} else {
					e.state = Sensing
				}
			}
		}
		return sym
	}
	return SymbolUnmodulated
}
