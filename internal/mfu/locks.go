package mfu

// lockLayout describes one sub-type's static/dynamic lock-byte geometry.
// Static locks live in page 2, bytes 2-3: byte 2 bits 0-7 lock pages 3-10
// and byte 3 bits 0-1 also lock pages 9-10. Pages 11 up to
// staticLockLimit have no static lock bit; they are locked only through
// the dynamic lock bytes, and only when at or past dynamicLockPage.
// Dynamic locks start at dynamicLockPage and repeat
// every dynamicLockStride pages, per the Open Question resolution in
// DESIGN.md (cross-checked against public NXP datasheets rather than
// mirrored verbatim from the firmware).
type lockLayout struct {
	staticLockLimit  int
	dynamicLockPage  int
	dynamicLockStride int
	cfgLckPage       int // page whose bit 3 of byte 3 is the CFGLCK
}

var lockLayouts = map[SubType]lockLayout{
	TypeUL11:    {staticLockLimit: 15, dynamicLockPage: -1, dynamicLockStride: 0, cfgLckPage: -1},
	TypeUL21:    {staticLockLimit: 15, dynamicLockPage: 39, dynamicLockStride: 16, cfgLckPage: 42},
	TypeNTAG213: {staticLockLimit: 15, dynamicLockPage: 40, dynamicLockStride: 2, cfgLckPage: 41},
	TypeNTAG215: {staticLockLimit: 15, dynamicLockPage: 130, dynamicLockStride: 16, cfgLckPage: 131},
	TypeNTAG216: {staticLockLimit: 15, dynamicLockPage: 226, dynamicLockStride: 16, cfgLckPage: 227},
}

// IsPageLocked reports whether page is currently write-protected, given
// the tag's current memory image (so it can inspect live lock bytes).
func IsPageLocked(t SubType, mem [][4]byte, page int) bool {
	layout, ok := lockLayouts[t]
	if !ok || page >= len(mem) {
		return false
	}
	if page <= 1 {
		return true // UID/internal pages are always read-only
	}
	if page <= layout.staticLockLimit {
		lockBytes := mem[2]
		bitIdx := page - 3
		if bitIdx < 0 {
			return false
		}
		if bitIdx < 8 {
			return lockBytes[2]&(1<<uint(bitIdx)) != 0 || (bitIdx >= 6 && lockBytes[3]&(1<<uint(bitIdx-6)) != 0)
		}
	}
	if layout.dynamicLockPage < 0 || page < layout.dynamicLockPage {
		return false
	}
	return dynamicLockBit(mem, layout, page)
}

func dynamicLockBit(mem [][4]byte, layout lockLayout, page int) bool {
	if layout.dynamicLockPage >= len(mem) {
		return false
	}
	rel := (page - layout.dynamicLockPage) / layout.dynamicLockStride
	if rel < 0 || rel > 15 {
		return false
	}
	row := mem[layout.dynamicLockPage]
	byteIdx := 0
	if rel >= 8 {
		byteIdx = 1
		rel -= 8
	}
	return row[byteIdx]&(1<<uint(rel)) != 0
}

// IsConfigLocked reports whether CFGLCK has been set for this tag (once
// set, PWD/PACK/AUTH0/ACCESS pages become permanently read-only).
func IsConfigLocked(t SubType, mem [][4]byte) bool {
	layout, ok := lockLayouts[t]
	if !ok || layout.cfgLckPage < 0 || layout.cfgLckPage >= len(mem) {
		return false
	}
	return mem[layout.cfgLckPage][3]&0x08 != 0
}
