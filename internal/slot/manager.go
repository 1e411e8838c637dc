package slot

import (
	"sync"

	"github.com/chameleonultra/chamelgo/internal/core"
	"github.com/chameleonultra/chamelgo/internal/kvstore"
)

// LF/HF buffer sizes, per spec.md §3.
const (
	LFBufferSize = 12
	HFBufferSize = 4500
)

// TagImage provides the per-type capability set a slot's tag data needs
// to participate in save/load/factory-init, matching DESIGN NOTES §9's
// "closed sum type... each implementing {on_load, on_save, factory_init}".
type TagImage interface {
	// FactoryInit fills buf with this type's default image, returning the
	// number of bytes written.
	FactoryInit(buf []byte) int
}

// Manager owns the eight-slot configuration, the active slot's LF/HF
// buffers, and their CRC-gated persistence, per spec.md §4.7.
type Manager struct {
	mu sync.Mutex

	store kvstore.Store
	cfg   Config

	lfBuf    [LFBufferSize]byte
	lfLen    int
	lfCRC    uint16
	hfBuf    [HFBufferSize]byte
	hfLen    int
	hfCRC    uint16
	cfgCRC   uint16

	// factories provides default images per specific type, for
	// factory_data; types with no registered factory get an empty
	// (zero-length) image.
	factories map[SpecificType]TagImage
}

// NewManager constructs a Manager over store, without yet loading state;
// call Init to load (or initialize) the slot configuration.
func NewManager(store kvstore.Store) *Manager {
	return &Manager{store: store, factories: make(map[SpecificType]TagImage)}
}

// RegisterFactory associates a TagImage factory with a specific type, used
// by FactoryData.
func (m *Manager) RegisterFactory(t SpecificType, img TagImage) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.factories[t] = img
}

// Init loads SlotConfig from flash (or uses DefaultConfig if absent),
// migrating forward if its version is stale, then loads the active
// slot's LF/HF buffers.
func (m *Manager) Init() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := make([]byte, 2+NumSlots*4)
	n, ok := m.store.Read(kvstore.SlotConfigFileID, kvstore.SlotConfigKey, buf)
	if !ok {
		m.cfg = DefaultConfig()
	} else {
		cfg, err := decodeConfig(buf[:n])
		if err != nil {
			return core.Wrap(core.ErrCodeFlashRead, "slot.Init", "decode slot config", err)
		}
		m.cfg = cfg
		if cfg.Version < CurrentConfigVersion {
			// decodeConfig already migrated the in-memory form; persist it.
			m.store.Write(kvstore.SlotConfigFileID, kvstore.SlotConfigKey, encodeConfig(m.cfg))
		}
	}
	m.cfgCRC = core.CRC16A(encodeConfig(m.cfg))
	return m.loadActiveLocked()
}

// dumpKey is the per-carrier record key within a slot's dump file: the
// sense type itself, per spec.md §3's "(DUMP_ID_BASE+slot, sense_type)".
func (m *Manager) dumpKey(sense SenseType) uint16 {
	return uint16(sense)
}

func (m *Manager) loadActiveLocked() error {
	active := m.cfg.ActiveSlot
	hfID := kvstore.DumpIDBase + uint16(active)
	lfID := kvstore.DumpIDBase + uint16(active)

	m.hfLen = 0
	if n, ok := m.store.Read(hfID, m.dumpKey(SenseHF), m.hfBuf[:]); ok {
		m.hfLen = n
	}
	m.hfCRC = core.CRC16A(m.hfBuf[:m.hfLen])

	m.lfLen = 0
	if n, ok := m.store.Read(lfID, m.dumpKey(SenseLF), m.lfBuf[:]); ok {
		m.lfLen = n
	}
	m.lfCRC = core.CRC16A(m.lfBuf[:m.lfLen])
	return nil
}

// Config returns a copy of the current slot configuration.
func (m *Manager) Config() Config {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg
}

// ActiveSlot returns the index of the currently active slot.
func (m *Manager) ActiveSlot() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cfg.ActiveSlot
}

// LFBuffer returns the active slot's LF data (read-only view).
func (m *Manager) LFBuffer() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, m.lfLen)
	copy(out, m.lfBuf[:m.lfLen])
	return out
}

// HFBuffer returns the active slot's HF data (read-only view).
func (m *Manager) HFBuffer() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]byte, m.hfLen)
	copy(out, m.hfBuf[:m.hfLen])
	return out
}

// SetHFBuffer replaces the active slot's in-memory HF buffer (e.g. after a
// reader-driven emulation write); it is not persisted until Save is called.
func (m *Manager) SetHFBuffer(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hfLen = copy(m.hfBuf[:], data)
}

// SetLFBuffer is the LF counterpart of SetHFBuffer.
func (m *Manager) SetLFBuffer(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lfLen = copy(m.lfBuf[:], data)
}

// Save writes SlotConfig, the LF buffer and the HF buffer to flash, but
// only the ones whose CRC has changed since the last successful write
// (§4.7's CRC-gated write).
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	cfgBlob := encodeConfig(m.cfg)
	if crc := core.CRC16A(cfgBlob); crc != m.cfgCRC {
		if !m.store.Write(kvstore.SlotConfigFileID, kvstore.SlotConfigKey, cfgBlob) {
			return core.New(core.ErrCodeFlashWrite, "slot.Save", "write slot config")
		}
		m.cfgCRC = crc
	}

	active := m.cfg.ActiveSlot
	if crc := core.CRC16A(m.hfBuf[:m.hfLen]); crc != m.hfCRC {
		if !m.store.Write(kvstore.DumpIDBase+uint16(active), m.dumpKey(SenseHF), m.hfBuf[:m.hfLen]) {
			return core.New(core.ErrCodeFlashWrite, "slot.Save", "write HF dump")
		}
		m.hfCRC = crc
	}
	if crc := core.CRC16A(m.lfBuf[:m.lfLen]); crc != m.lfCRC {
		if !m.store.Write(kvstore.DumpIDBase+uint16(active), m.dumpKey(SenseLF), m.lfBuf[:m.lfLen]) {
			return core.New(core.ErrCodeFlashWrite, "slot.Save", "write LF dump")
		}
		m.lfCRC = crc
	}
	return nil
}

// ChangeSlot saves the current slot (if dirty), sets the active slot to
// i, and reloads its buffers. withSenseDisable documents the caller's
// intent to have already quiesced HF/LF sensing; this package does not
// itself own sensing (that is the responsibility of the picc/lf
// packages, wired together in cmd/chamelgo).
func (m *Manager) ChangeSlot(i int, withSenseDisable bool) error {
	if i < 0 || i >= NumSlots {
		return core.New(core.ErrCodeInvalidParams, "slot.ChangeSlot", "slot index out of range")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_ = withSenseDisable
	if err := m.saveLocked(); err != nil {
		return err
	}
	m.cfg.ActiveSlot = i
	return m.loadActiveLocked()
}

// SlotSetEnable toggles a slot's per-carrier enable flag, enforcing P1.
func (m *Manager) SlotSetEnable(i int, sense SenseType, enable bool) error {
	if i < 0 || i >= NumSlots {
		return core.New(core.ErrCodeInvalidParams, "slot.SlotSetEnable", "slot index out of range")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &m.cfg.Slots[i]
	switch sense {
	case SenseHF:
		s.EnabledHF = enable
	case SenseLF:
		s.EnabledLF = enable
	}
	s.normalize()
	return nil
}

// DeleteData clears a slot's data for sense: disables it and resets its
// specific type to Undefined.
func (m *Manager) DeleteData(i int, sense SenseType) error {
	if i < 0 || i >= NumSlots {
		return core.New(core.ErrCodeInvalidParams, "slot.DeleteData", "slot index out of range")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &m.cfg.Slots[i]
	switch sense {
	case SenseHF:
		s.EnabledHF = false
		s.TagHF = TypeUndefined
	case SenseLF:
		s.EnabledLF = false
		s.TagLF = TypeUndefined
	}
	return nil
}

// ChangeType updates a slot's specific type for whichever sense t belongs
// to, reloading the active buffers if i is the active slot.
func (m *Manager) ChangeType(i int, t SpecificType) error {
	if i < 0 || i >= NumSlots {
		return core.New(core.ErrCodeInvalidParams, "slot.ChangeType", "slot index out of range")
	}
	if !t.Valid() {
		return core.New(core.ErrCodeInvalidSlotType, "slot.ChangeType", "unknown specific type")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &m.cfg.Slots[i]
	switch t.Sense() {
	case SenseHF:
		s.TagHF = t
	case SenseLF:
		s.TagLF = t
	default:
		return core.New(core.ErrCodeInvalidSlotType, "slot.ChangeType", "type has no sense mapping")
	}
	s.normalize()
	if i == m.cfg.ActiveSlot {
		return m.loadActiveLocked()
	}
	return nil
}

// FactoryData writes t's default image to flash for slot i (via a
// registered TagImage factory) and reloads if i is active.
func (m *Manager) FactoryData(i int, t SpecificType) bool {
	if i < 0 || i >= NumSlots {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	factory, ok := m.factories[t]
	var buf []byte
	var n int
	switch t.Sense() {
	case SenseHF:
		buf = make([]byte, HFBufferSize)
	case SenseLF:
		buf = make([]byte, LFBufferSize)
	default:
		return false
	}
	if ok {
		n = factory.FactoryInit(buf)
	}
	key := m.dumpKey(t.Sense())
	if !m.store.Write(kvstore.DumpIDBase+uint16(i), key, buf[:n]) {
		return false
	}
	if i == m.cfg.ActiveSlot {
		m.loadActiveLocked()
	}
	return true
}

// FindNext performs a circular search, starting after i, for a slot with
// either carrier enabled. It returns i itself if none is found.
func (m *Manager) FindNext(i int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findLocked(i, +1)
}

// FindPrev is the symmetric backward search.
func (m *Manager) FindPrev(i int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.findLocked(i, -1)
}

func (m *Manager) findLocked(i, dir int) int {
	for step := 1; step <= NumSlots; step++ {
		cand := ((i+dir*step)%NumSlots + NumSlots) % NumSlots
		s := m.cfg.Slots[cand]
		if s.EnabledHF || s.EnabledLF {
			return cand
		}
	}
	return i
}
