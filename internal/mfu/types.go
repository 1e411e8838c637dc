// Package mfu implements the MIFARE Ultralight / NTAG state machine
// (component C6): GET_VERSION, READ/FAST_READ, WRITE/COMPAT_WRITE,
// one-way counters, PWD_AUTH, dynamic lock bytes and UID-magic mode.
// Grounded on the original firmware's rfid/nfctag/hf/nfc_mf0_ntag.c.
package mfu

import "github.com/chameleonultra/chamelgo/internal/picc"

// SubType identifies the emulated Ultralight/NTAG variant.
type SubType int

const (
	TypeUL11 SubType = iota
	TypeUL21
	TypeNTAG213
	TypeNTAG215
	TypeNTAG216
)

// PageCount returns the number of 4-byte pages in this sub-type's Memory
// image; counters, signature and version are held as separate Tag fields,
// not as memory rows.
func (t SubType) PageCount() int {
	switch t {
	case TypeUL11:
		return 20 + 5
	case TypeUL21:
		return 41 + 5
	case TypeNTAG213:
		return 45
	case TypeNTAG215:
		return 135
	case TypeNTAG216:
		return 231
	}
	return 0
}

// HasGetVersion reports whether this sub-type answers GET_VERSION (only
// the EV1 Ultralight family and the NTAG 21x family do).
func (t SubType) HasGetVersion() bool {
	switch t {
	case TypeUL21, TypeNTAG213, TypeNTAG215, TypeNTAG216:
		return true
	}
	return false
}

// HasIncrCnt reports whether INCR_CNT is supported (Ultralight only).
func (t SubType) HasIncrCnt() bool {
	return t == TypeUL11 || t == TypeUL21
}

// versionBlocks are the canonical 8-byte GET_VERSION replies, matching
// the public NXP datasheets for each family (vendor ID 0x04 NXP, product
// type 0x03 for Ultralight and 0x04 for NTAG, byte 6 the storage size
// code, byte 7 protocol type 0x03).
var versionBlocks = map[SubType][8]byte{
	TypeUL21:    {0x00, 0x04, 0x03, 0x01, 0x01, 0x00, 0x0E, 0x03},
	TypeNTAG213: {0x00, 0x04, 0x04, 0x02, 0x01, 0x00, 0x0F, 0x03},
	TypeNTAG215: {0x00, 0x04, 0x04, 0x02, 0x01, 0x00, 0x11, 0x03},
	TypeNTAG216: {0x00, 0x04, 0x04, 0x02, 0x01, 0x00, 0x13, 0x03},
}

// WriteMode mirrors mf1.WriteMode for the MF0/NTAG write path.
type WriteMode int

const (
	WriteNormal WriteMode = iota
	WriteDenied
	WriteDeceive
	WriteShadow
)

// Config mirrors the per-slot MfuConfig of spec.md §3.
type Config struct {
	Type            SubType
	UIDMagic        bool
	DetectionEnable bool
	WriteMode       WriteMode
}

var _ picc.TypeHandler = (*Tag)(nil)
