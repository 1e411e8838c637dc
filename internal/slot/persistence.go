package slot

import (
	"encoding/binary"
	"fmt"
)

// encodeConfig serializes cfg into the flash blob layout: a version byte,
// an active-slot byte, then 8 slots of 4 bytes each
// {enabled_hf, enabled_lf, tag_hf, tag_lf}.
func encodeConfig(cfg Config) []byte {
	buf := make([]byte, 2+NumSlots*4)
	buf[0] = byte(cfg.Version)
	buf[1] = byte(cfg.ActiveSlot)
	for i, s := range cfg.Slots {
		off := 2 + i*4
		buf[off] = b2b(s.EnabledHF)
		buf[off+1] = b2b(s.EnabledLF)
		buf[off+2] = byte(s.TagHF)
		buf[off+3] = byte(s.TagLF)
	}
	return buf
}

func b2b(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// decodeConfig parses a flash blob into a Config, running migrateConfig
// if its version predates CurrentConfigVersion.
func decodeConfig(buf []byte) (Config, error) {
	if len(buf) < 2 {
		return Config{}, fmt.Errorf("slot: config blob too short (%d bytes)", len(buf))
	}
	version := int(buf[0])
	cfg := Config{Version: version, ActiveSlot: int(buf[1])}

	body := buf[2:]
	// Versions 0..7 stored 3 bytes/slot (no separate tag_lf byte — LF was
	// EM410x-only and implied); migrateBody widens them to the current
	// 4-byte layout before the main decode loop runs.
	if version < CurrentConfigVersion {
		body = migrateBody(version, body)
		cfg.Version = CurrentConfigVersion
	}

	for i := 0; i < NumSlots; i++ {
		off := i * 4
		if off+4 > len(body) {
			break
		}
		s := Slot{
			EnabledHF: body[off] != 0,
			EnabledLF: body[off+1] != 0,
			TagHF:     SpecificType(body[off+2]),
			TagLF:     SpecificType(body[off+3]),
		}
		s.normalize()
		cfg.Slots[i] = s
	}
	if cfg.ActiveSlot < 0 || cfg.ActiveSlot >= NumSlots {
		cfg.ActiveSlot = 0
	}
	return cfg, nil
}

// migrateBody widens a pre-v8 3-byte-per-slot record
// {enabled_hf, enabled_lf, tag_hf} (LF tag type was implicitly EM410x
// whenever enabled_lf was set) into the current 4-byte-per-slot layout.
func migrateBody(fromVersion int, body []byte) []byte {
	out := make([]byte, NumSlots*4)
	for i := 0; i < NumSlots; i++ {
		oldOff := i * 3
		newOff := i * 4
		if oldOff+3 > len(body) {
			break
		}
		enabledHF := body[oldOff]
		enabledLF := body[oldOff+1]
		tagHF := body[oldOff+2]
		out[newOff] = enabledHF
		out[newOff+1] = enabledLF
		out[newOff+2] = tagHF
		if enabledLF != 0 {
			out[newOff+3] = byte(TypeEM410X)
		} else {
			out[newOff+3] = byte(TypeUndefined)
		}
	}
	_ = fromVersion
	return out
}

// encodeUint16 is a small helper kept alongside the rest
// of the blob (de)serialization for symmetry with the frame package.
func encodeUint16(v uint16) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, v)
	return b
}
