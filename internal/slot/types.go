// Package slot implements the eight-slot model and its flash-backed
// persistence (component C7): per-slot dual-carrier tag-type
// configuration, the active slot's LF/HF data buffers, and CRC-gated
// save/load, grounded on the original firmware's
// rfid/nfctag/tag_emulation.c and tag_persistence.c.
package slot

import "fmt"

// SenseType is the RF carrier a specific tag type belongs to.
type SenseType int

const (
	SenseNone SenseType = iota
	SenseLF
	SenseHF
)

// SpecificType is the closed enumeration of emulatable tag types.
type SpecificType int

const (
	TypeUndefined SpecificType = iota

	TypeEM410X
	TypeViking

	TypeMifareMini
	TypeMifare1K
	TypeMifare2K
	TypeMifare4K

	TypeMF0ICU1
	TypeMF0ICU2
	TypeMF0UL11
	TypeMF0UL21

	TypeNTAG210
	TypeNTAG212
	TypeNTAG213
	TypeNTAG215
	TypeNTAG216
)

// Sense returns the RF carrier a specific type belongs to.
func (t SpecificType) Sense() SenseType {
	switch t {
	case TypeEM410X, TypeViking:
		return SenseLF
	case TypeMifareMini, TypeMifare1K, TypeMifare2K, TypeMifare4K,
		TypeMF0ICU1, TypeMF0ICU2, TypeMF0UL11, TypeMF0UL21,
		TypeNTAG210, TypeNTAG212, TypeNTAG213, TypeNTAG215, TypeNTAG216:
		return SenseHF
	default:
		return SenseNone
	}
}

// Valid reports whether t is a member of the closed type set (including
// Undefined, which is always valid as the "nothing configured" value).
func (t SpecificType) Valid() bool {
	return t >= TypeUndefined && t <= TypeNTAG216
}

func (t SpecificType) String() string {
	names := map[SpecificType]string{
		TypeUndefined:  "UNDEFINED",
		TypeEM410X:     "EM410X",
		TypeViking:     "VIKING",
		TypeMifareMini: "MIFARE_Mini",
		TypeMifare1K:   "MIFARE_1K",
		TypeMifare2K:   "MIFARE_2K",
		TypeMifare4K:   "MIFARE_4K",
		TypeMF0ICU1:    "MF0ICU1",
		TypeMF0ICU2:    "MF0ICU2",
		TypeMF0UL11:    "MF0UL11",
		TypeMF0UL21:    "MF0UL21",
		TypeNTAG210:    "NTAG_210",
		TypeNTAG212:    "NTAG_212",
		TypeNTAG213:    "NTAG_213",
		TypeNTAG215:    "NTAG_215",
		TypeNTAG216:    "NTAG_216",
	}
	if n, ok := names[t]; ok {
		return n
	}
	return fmt.Sprintf("SpecificType(%d)", int(t))
}

// NumSlots is the number of configurable slots.
const NumSlots = 8

// Slot is the per-slot dual-carrier configuration.
//
// Invariant (P1 in spec.md §8): EnabledHF implies TagHF != TypeUndefined,
// and symmetrically for LF.
type Slot struct {
	EnabledHF bool
	EnabledLF bool
	TagHF     SpecificType
	TagLF     SpecificType
}

// normalize enforces P1 by clearing the enable flag whenever its type is
// undefined; it never sets an enable flag on its own.
func (s *Slot) normalize() {
	if s.TagHF == TypeUndefined {
		s.EnabledHF = false
	}
	if s.TagLF == TypeUndefined {
		s.EnabledLF = false
	}
}

// Valid reports whether the slot satisfies P1.
func (s Slot) Valid() bool {
	if s.EnabledHF && s.TagHF == TypeUndefined {
		return false
	}
	if s.EnabledLF && s.TagLF == TypeUndefined {
		return false
	}
	return true
}

// CurrentConfigVersion is the slot-config schema version this core reads
// and writes. Earlier versions (v0..v7) are migrated forward on load.
const CurrentConfigVersion = 8

// Config is the persisted, versioned collection of all slots plus the
// active-slot index.
type Config struct {
	Version     int
	ActiveSlot  int
	Slots       [NumSlots]Slot
}

// DefaultConfig returns the factory configuration: slot 0 holds a MIFARE
// 1K tag on HF and an EM410x tag on LF, both enabled; every other slot is
// empty. Matches the original firmware's factory default.
func DefaultConfig() Config {
	cfg := Config{Version: CurrentConfigVersion, ActiveSlot: 0}
	cfg.Slots[0] = Slot{
		EnabledHF: true,
		EnabledLF: true,
		TagHF:     TypeMifare1K,
		TagLF:     TypeEM410X,
	}
	return cfg
}
