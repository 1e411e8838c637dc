package mf1

import "testing"

func TestObfuscatedDictionaryRoundTrips(t *testing.T) {
	keys := [][6]byte{
		{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF},
		{0xA0, 0xA1, 0xA2, 0xA3, 0xA4, 0xA5},
		{0x00, 0x00, 0x00, 0x00, 0x00, 0x00},
	}
	raw := SaveObfuscatedDictionary(keys, "hunter2")

	got, err := LoadObfuscatedDictionary(raw, "hunter2")
	if err != nil {
		t.Fatalf("LoadObfuscatedDictionary: %v", err)
	}
	if len(got) != len(keys) {
		t.Fatalf("got %d keys, want %d", len(got), len(keys))
	}
	for i := range keys {
		if got[i] != keys[i] {
			t.Fatalf("key %d = %x, want %x", i, got[i], keys[i])
		}
	}
}

func TestObfuscatedDictionaryWrongPassphraseMismatches(t *testing.T) {
	keys := [][6]byte{{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}}
	raw := SaveObfuscatedDictionary(keys, "correct-horse")

	got, err := LoadObfuscatedDictionary(raw, "wrong-passphrase")
	if err != nil {
		t.Fatalf("LoadObfuscatedDictionary: %v", err)
	}
	if got[0] == keys[0] {
		t.Fatalf("decrypting with the wrong passphrase should not reproduce the original key")
	}
}

func TestLoadObfuscatedDictionaryRejectsNonMultipleOf6(t *testing.T) {
	if _, err := LoadObfuscatedDictionary(make([]byte, 7), "x"); err == nil {
		t.Fatal("expected an error for a length not a multiple of 6")
	}
}
