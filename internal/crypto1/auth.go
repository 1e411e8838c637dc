package crypto1

import "encoding/binary"

// Setup initializes a cipher for the first-auth (plain nt) handshake:
// load the key, then clock the LFSR once against uid^nt with no
// feedback, matching Crypto1Setup(Key, Uid, CardNonce).
func Setup(key [6]byte, uid [4]byte, nt [4]byte) *Cipher {
	c := Init(key)
	mixed := binary.BigEndian.Uint32(uid[:]) ^ binary.BigEndian.Uint32(nt[:])
	c.Word(mixed, false)
	return c
}

// SetupNested initializes a cipher for the nested-auth handshake: load
// the key, then encrypt the already-known card nonce through the
// cipher, mixing uid^nt in per byte as the feed while that same byte's
// keystream is generated — the nonce encrypts itself, rather than the
// keystream coming from a nonce-independent state — matching the
// original firmware's nested-auth path (nfc_mf1.c's
// m_auth_nt_keystream = UID ^ CardNonce fed through
// mf_crypto1_encryptEx(pcs, CardNonce, m_auth_nt_keystream, ...)).
// Returns the four ciphertext bytes and their parity.
func SetupNested(key [6]byte, uid [4]byte, nt [4]byte) (c *Cipher, ntEnc [4]byte, parity [4]byte) {
	c = Init(key)
	for i, b := range nt {
		mixed := uid[i] ^ b
		ksBit := c.FilterOutput()
		ks := c.Byte(mixed, false)
		parity[i] = oddParityByte(b) ^ ksBit
		ntEnc[i] = b ^ ks
	}
	return c, ntEnc, parity
}

// DecryptNestedNonce is SetupNested run in reverse: it recovers the
// tag's second nonce from its ciphertext for an already-known key and
// uid. Byte i's keystream bit is sampled before uid[i]^nt[i] is fed
// back, so each plaintext bit can be recovered, and its feed
// reconstructed, before the next bit is produced — the same
// self-referential property that lets the tag encrypt the nonce
// through itself lets a key-holder decrypt it one bit at a time.
func DecryptNestedNonce(key [6]byte, uid [4]byte, ntEnc [4]byte) (c *Cipher, nt [4]byte, parity [4]byte) {
	c = Init(key)
	for i, b := range ntEnc {
		var plain byte
		firstBit := c.FilterOutput()
		for pos := 7; pos >= 0; pos-- {
			ks := c.FilterOutput()
			ctBit := (b >> uint(pos)) & 1
			ptBit := ctBit ^ ks
			uidBit := (uid[i] >> uint(pos)) & 1
			c.Bit(uidBit^ptBit, false)
			plain = plain<<1 | ptBit
		}
		nt[i] = plain
		parity[i] = oddParityByte(plain) ^ firstBit
	}
	return c, nt, parity
}

// FeedReaderNonce decrypts the reader's encrypted nonce (nr_enc) in
// encrypted mode, feeding the recovered plaintext bits back into the
// LFSR, matching Crypto1Auth(EncryptedReaderNonce).
func (c *Cipher) FeedReaderNonce(nrEnc [4]byte) (nr [4]byte) {
	for i, b := range nrEnc {
		ks := c.Byte(b, true)
		nr[i] = b ^ ks
	}
	return nr
}
