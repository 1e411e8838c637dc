package crypto1

import "testing"

func TestEncryptDecryptRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		key  [6]byte
		uid  [4]byte
		nt   [4]byte
		msg  [16]byte
	}{
		{
			name: "default key, zero nonce",
			key:  [6]byte{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
			uid:  [4]byte{0x11, 0x22, 0x33, 0x44},
			nt:   [4]byte{0, 0, 0, 0},
			msg:  [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		},
		{
			name: "arbitrary key and nonce",
			key:  [6]byte{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5},
			uid:  [4]byte{0xDE, 0xAD, 0xBE, 0xEF},
			nt:   [4]byte{0x12, 0x34, 0x56, 0x78},
			msg:  [16]byte{0xAA, 0xBB, 0xCC, 0xDD, 1, 2, 3, 4, 5, 6, 7, 8, 9, 0, 0xFF, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encCipher := Setup(tt.key, tt.uid, tt.nt)
			buf := tt.msg
			var parity [16]byte
			encCipher.Encrypt(buf[:], parity[:])

			decCipher := Setup(tt.key, tt.uid, tt.nt)
			decCipher.Decrypt(buf[:])

			if buf != tt.msg {
				t.Fatalf("round trip failed: got %x, want %x", buf, tt.msg)
			}
		})
	}
}

func TestPRNGSuccessorAdditive(t *testing.T) {
	nt := uint32(0x12345678)
	for _, pair := range [][2]uint32{{0, 0}, {1, 1}, {16, 16}, {32, 32}, {64, 32}} {
		a, b := pair[0], pair[1]
		got := PRNGSuccessor(PRNGSuccessor(nt, a), b)
		want := PRNGSuccessor(nt, (a+b)%65535)
		if got != want {
			t.Errorf("PRNGSuccessor(PRNGSuccessor(nt,%d),%d) = %#x, want %#x", a, b, got, want)
		}
	}
}

func TestPRNGSuccessorZeroIsIdentity(t *testing.T) {
	nt := uint32(0xCAFEBABE)
	if got := PRNGSuccessor(nt, 0); got != nt {
		t.Errorf("PRNGSuccessor(nt, 0) = %#x, want %#x", got, nt)
	}
}

func TestInitLoadsDistinctStates(t *testing.T) {
	k1 := [6]byte{1, 2, 3, 4, 5, 6}
	k2 := [6]byte{1, 2, 3, 4, 5, 7}
	c1 := Init(k1)
	c2 := Init(k2)
	o1, e1 := c1.State()
	o2, e2 := c2.State()
	if o1 == o2 && e1 == e2 {
		t.Fatalf("distinct keys produced identical LFSR state")
	}
}
