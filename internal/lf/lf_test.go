package lf

import "testing"

func TestEM410xEncodeDecodeRoundTrip(t *testing.T) {
	ids := [][5]byte{
		{0xDE, 0xAD, 0xBE, 0xEF, 0x88},
		{0x00, 0x00, 0x00, 0x00, 0x00},
		{0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
		{0x12, 0x34, 0x56, 0x78, 0x9A},
	}
	for _, id := range ids {
		frame := EncodeEM410x(id)
		got, valid := DecodeEM410x(frame)
		if !valid {
			t.Fatalf("id %x: frame failed to validate: %v", id, frame)
		}
		if got != id {
			t.Fatalf("id %x: decoded %x", id, got)
		}
	}
}

// TestEM410xParityProperty is the (P6) property: for any 5-byte ID, the
// emitted frame has valid per-nibble odd parity, valid column parity, and
// a trailing 0.
func TestEM410xParityProperty(t *testing.T) {
	for b0 := 0; b0 < 256; b0 += 37 {
		id := [5]byte{byte(b0), byte(b0 * 3), byte(b0 + 7), byte(b0 ^ 0x5A), byte(255 - b0)}
		frame := EncodeEM410x(id)

		for i := 0; i < 9; i++ {
			if frame[i] != 1 {
				t.Fatalf("id %x: header bit %d = %d, want 1", id, i, frame[i])
			}
		}
		idx := 9
		var col [4]byte
		for n := 0; n < 10; n++ {
			var bits [4]byte
			for k := 0; k < 4; k++ {
				bits[k] = frame[idx]
				idx++
				col[k] ^= bits[k]
			}
			parity := frame[idx]
			idx++
			total := bits[0] ^ bits[1] ^ bits[2] ^ bits[3] ^ parity
			if total != 1 {
				t.Fatalf("id %x: nibble %d row parity not odd", id, n)
			}
		}
		for k := 0; k < 4; k++ {
			total := col[k] ^ frame[idx]
			idx++
			if total != 1 {
				t.Fatalf("id %x: column %d parity not odd", id, k)
			}
		}
		if frame[63] != 0 {
			t.Fatalf("id %x: stop bit = %d, want 0", id, frame[63])
		}
	}
}

func TestVikingEncodeDecodeRoundTrip(t *testing.T) {
	ids := []uint32{0x00000000, 0xFFFFFFFF, 0xDEADBEEF, 0x12345678}
	for _, id := range ids {
		frame := EncodeViking(id)
		got, valid := DecodeViking(frame)
		if !valid {
			t.Fatalf("id %x: frame failed to validate", id)
		}
		if got != id {
			t.Fatalf("id %x: decoded %x", id, got)
		}
	}
}

func TestVikingHeaderBits(t *testing.T) {
	frame := EncodeViking(0x11223344)
	want := []byte{1, 1, 1, 0, 1, 0, 0, 0}
	for i, b := range want {
		if frame[i] != b {
			t.Fatalf("header bit %d = %d, want %d", i, frame[i], b)
		}
	}
	for i := 8; i < 24; i++ {
		if frame[i] != 0 {
			t.Fatalf("header padding bit %d = %d, want 0", i, frame[i])
		}
	}
}

func TestManchesterEncodeExpandsEachBit(t *testing.T) {
	sym := ManchesterEncode([]byte{1, 0})
	want := []byte{SymbolModulated, SymbolUnmodulated, SymbolUnmodulated, SymbolModulated}
	if len(sym) != len(want) {
		t.Fatalf("len = %d, want %d", len(sym), len(want))
	}
	for i := range want {
		if sym[i] != want[i] {
			t.Fatalf("symbol %d = %d, want %d", i, sym[i], want[i])
		}
	}
}

func TestEmulatorSensesFieldBeforeEmulating(t *testing.T) {
	present := false
	e := NewEmulator(EncodeEM410x([5]byte{1, 2, 3, 4, 5}), func() bool { return present })

	for i := 0; i < 10; i++ {
		e.Tick()
	}
	if e.State() != Sensing {
		t.Fatalf("state = %v, want Sensing while field absent", e.State())
	}

	present = true
	e.Tick()
	if e.State() != Emulating {
		t.Fatalf("state = %v, want Emulating once field appears", e.State())
	}
}

func TestEmulatorReturnsToSensingWhenFieldDrops(t *testing.T) {
	present := true
	e := NewEmulator(EncodeEM410x([5]byte{1, 2, 3, 4, 5}), func() bool { return present })
	e.SetBroadcastMax(1)
	e.Tick() // enters Emulating

	frameLen := len(e.symbols)
	present = false
	for i := 0; i < frameLen; i++ {
		e.Tick()
	}
	if e.State() != Sensing {
		t.Fatalf("state = %v, want Sensing after field drop at rep boundary", e.State())
	}
}

func TestEmulatorContinuesWhileFieldPresent(t *testing.T) {
	e := NewEmulator(EncodeEM410x([5]byte{1, 2, 3, 4, 5}), func() bool { return true })
	e.SetBroadcastMax(1)
	e.Tick()
	frameLen := len(e.symbols)
	for i := 0; i < frameLen*3; i++ {
		e.Tick()
	}
	if e.State() != Emulating {
		t.Fatal("emulator should keep emulating while field stays present")
	}
}
