package mf1

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// dictionarySalt is fixed rather than per-file: obfuscated dictionaries
// are a convenience format (keep a shared key list out of plaintext
// grep/strings output), not a secrecy boundary, so there is no secret
// salt to protect.
var dictionarySalt = []byte("chamelgo-mf1-dictionary-v1")

// LoadObfuscatedDictionary decrypts a dictionary file produced by
// SaveObfuscatedDictionary: a PBKDF2-HMAC-SHA256-derived keystream XORed
// over consecutive 6-byte MIFARE Classic keys. It exists so a shared
// well-known-keys list can ship as a resource file without every key
// being readable by a casual "strings" pass.
func LoadObfuscatedDictionary(raw []byte, passphrase string) ([][6]byte, error) {
	if len(raw)%6 != 0 {
		return nil, fmt.Errorf("mf1: dictionary length %d is not a multiple of 6", len(raw))
	}
	stream := pbkdf2.Key([]byte(passphrase), dictionarySalt, 4096, len(raw), sha256.New)
	out := make([][6]byte, len(raw)/6)
	for i := range out {
		for j := 0; j < 6; j++ {
			out[i][j] = raw[i*6+j] ^ stream[i*6+j]
		}
	}
	return out, nil
}

// SaveObfuscatedDictionary is LoadObfuscatedDictionary's inverse, used by
// provisioning tooling to turn a plaintext key list into a shippable
// dictionary file.
func SaveObfuscatedDictionary(keys [][6]byte, passphrase string) []byte {
	raw := make([]byte, len(keys)*6)
	stream := pbkdf2.Key([]byte(passphrase), dictionarySalt, 4096, len(raw), sha256.New)
	for i, k := range keys {
		for j := 0; j < 6; j++ {
			raw[i*6+j] = k[j] ^ stream[i*6+j]
		}
	}
	return raw
}
