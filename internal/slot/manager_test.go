package slot

import (
	"bytes"
	"testing"

	"github.com/chameleonultra/chamelgo/internal/kvstore"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(kvstore.NewMemStore())
	if err := m.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return m
}

func TestDefaultConfigSatisfiesP1(t *testing.T) {
	cfg := DefaultConfig()
	for i, s := range cfg.Slots {
		if !s.Valid() {
			t.Errorf("slot %d violates P1: %+v", i, s)
		}
	}
}

func TestSlotSetEnableEnforcesP1(t *testing.T) {
	m := newTestManager(t)
	// Slot 1 starts empty (TagHF/TagLF undefined); enabling should not
	// stick because normalize() clears it back off.
	if err := m.SlotSetEnable(1, SenseHF, true); err != nil {
		t.Fatalf("SlotSetEnable: %v", err)
	}
	cfg := m.Config()
	if cfg.Slots[1].EnabledHF {
		t.Fatalf("P1 violated: enabled_hf=true with tag_hf=UNDEFINED")
	}
}

func TestChangeTypeThenEnable(t *testing.T) {
	m := newTestManager(t)
	if err := m.ChangeType(2, TypeNTAG215); err != nil {
		t.Fatalf("ChangeType: %v", err)
	}
	if err := m.SlotSetEnable(2, SenseHF, true); err != nil {
		t.Fatalf("SlotSetEnable: %v", err)
	}
	cfg := m.Config()
	if !cfg.Slots[2].EnabledHF || cfg.Slots[2].TagHF != TypeNTAG215 {
		t.Fatalf("slot 2 = %+v, want enabled HF NTAG215", cfg.Slots[2])
	}
}

func TestSaveLoadIdentityP2(t *testing.T) {
	store := kvstore.NewMemStore()
	m1 := NewManager(store)
	if err := m1.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := m1.ChangeType(0, TypeMifare4K); err != nil {
		t.Fatalf("ChangeType: %v", err)
	}
	if err := m1.SlotSetEnable(0, SenseHF, true); err != nil {
		t.Fatalf("SlotSetEnable: %v", err)
	}
	hfData := bytes.Repeat([]byte{0x42}, 64)
	m1.SetHFBuffer(hfData)
	if err := m1.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	m2 := NewManager(store)
	if err := m2.Init(); err != nil {
		t.Fatalf("Init (reload): %v", err)
	}
	if got := m2.Config(); got.Slots[0] != m1.Config().Slots[0] {
		t.Fatalf("config not identical after reload: got %+v, want %+v", got.Slots[0], m1.Config().Slots[0])
	}
	if got := m2.HFBuffer(); !bytes.Equal(got, hfData) {
		t.Fatalf("HF buffer not identical after reload: got %x, want %x", got, hfData)
	}
}

func TestChangeSlotSavesAndReloads(t *testing.T) {
	store := kvstore.NewMemStore()
	m := NewManager(store)
	if err := m.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	m.SetHFBuffer([]byte{1, 2, 3})
	if err := m.ChangeType(1, TypeMifare1K); err != nil {
		t.Fatalf("ChangeType: %v", err)
	}
	if err := m.ChangeSlot(1, true); err != nil {
		t.Fatalf("ChangeSlot: %v", err)
	}
	if m.ActiveSlot() != 1 {
		t.Fatalf("ActiveSlot = %d, want 1", m.ActiveSlot())
	}
	// slot 1's HF buffer was never written, so it should now read back
	// empty rather than carrying over slot 0's data.
	if got := m.HFBuffer(); len(got) != 0 {
		t.Fatalf("expected empty HF buffer after switching to fresh slot, got %x", got)
	}
}

func TestFindNextPrevCircular(t *testing.T) {
	store := kvstore.NewMemStore()
	m := NewManager(store)
	if err := m.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	// Only slot 0 enabled (default). FindNext/FindPrev from any slot
	// should land back on 0.
	for i := 0; i < NumSlots; i++ {
		if got := m.FindNext(i); got != 0 {
			t.Errorf("FindNext(%d) = %d, want 0", i, got)
		}
		if got := m.FindPrev(i); got != 0 {
			t.Errorf("FindPrev(%d) = %d, want 0", i, got)
		}
	}
}

func TestFindNextNoneEnabledReturnsSelf(t *testing.T) {
	store := kvstore.NewMemStore()
	m := NewManager(store)
	if err := m.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if err := m.DeleteData(0, SenseHF); err != nil {
		t.Fatalf("DeleteData HF: %v", err)
	}
	if err := m.DeleteData(0, SenseLF); err != nil {
		t.Fatalf("DeleteData LF: %v", err)
	}
	if got := m.FindNext(3); got != 3 {
		t.Errorf("FindNext(3) with no slots enabled = %d, want 3", got)
	}
}

func TestMigrateV0Layout(t *testing.T) {
	// Build a v0-style 3-bytes/slot blob by hand and confirm decodeConfig
	// widens it to the current layout without losing the HF type or the
	// implied EM410x LF type.
	old := make([]byte, 2+NumSlots*3)
	old[0] = 0
	old[1] = 0
	old[2] = 1 // slot 0 enabled_hf
	old[3] = 1 // slot 0 enabled_lf
	old[4] = byte(TypeMifare1K)

	cfg, err := decodeConfig(old)
	if err != nil {
		t.Fatalf("decodeConfig: %v", err)
	}
	if cfg.Version != CurrentConfigVersion {
		t.Fatalf("version not migrated: got %d, want %d", cfg.Version, CurrentConfigVersion)
	}
	s0 := cfg.Slots[0]
	if !s0.EnabledHF || !s0.EnabledLF || s0.TagHF != TypeMifare1K || s0.TagLF != TypeEM410X {
		t.Fatalf("migrated slot 0 = %+v, want enabled HF/LF Mifare1K/EM410X", s0)
	}
}
