// Package lf implements the 125 kHz low-frequency tag emulator
// (component C3): EM410x and Viking frame encoding, Manchester bit
// pumping, and the field-sense/broadcast state machine. Grounded on the
// original firmware's rfid/nfctag/lf/lf_tag_em.c and lf_tag_viking.c.
package lf

// oddParityBit returns the bit that, appended to bits, makes their total
// count of set bits odd.
func oddParityBit(bits ...byte) byte {
	var p byte
	for _, b := range bits {
		p ^= b & 1
	}
	return p ^ 1
}

// EM410xNibbles splits a 5-byte EM410x ID into its ten big-endian 4-bit
// nibbles (id[0]'s high nibble first).
func EM410xNibbles(id [5]byte) [10]byte {
	var n [10]byte
	for i := 0; i < 5; i++ {
		n[2*i] = (id[i] >> 4) & 0xF
		n[2*i+1] = id[i] & 0xF
	}
	return n
}

// EncodeEM410x builds the 64-bit EM410x frame for id: 9 header ones, ten
// 4-bit nibbles each followed by an odd row-parity bit, four column
// parity bits, and a trailing stop bit 0. The result is MSB-first, one
// byte (0 or 1) per frame bit.
func EncodeEM410x(id [5]byte) [64]byte {
	var frame [64]byte
	idx := 0
	for i := 0; i < 9; i++ {
		frame[idx] = 1
		idx++
	}

	nibbles := EM410xNibbles(id)
	var col [4]byte
	for _, nib := range nibbles {
		bits := [4]byte{(nib >> 3) & 1, (nib >> 2) & 1, (nib >> 1) & 1, nib & 1}
		for k, b := range bits {
			frame[idx] = b
			idx++
			col[k] ^= b
		}
		frame[idx] = oddParityBit(bits[:]...)
		idx++
	}

	for _, c := range col {
		frame[idx] = oddParityBit(c)
		idx++
	}

	frame[idx] = 0 // stop bit
	return frame
}

// DecodeEM410x recovers the 5-byte ID from a 64-bit frame built by
// EncodeEM410x, and reports whether every row and column parity bit (and
// the header/stop bits) checks out.
func DecodeEM410x(frame [64]byte) (id [5]byte, valid bool) {
	for i := 0; i < 9; i++ {
		if frame[i] != 1 {
			return id, false
		}
	}
	idx := 9
	var col [4]byte
	var nibbles [10]byte
	for n := 0; n < 10; n++ {
		var bits [4]byte
		for k := 0; k < 4; k++ {
			bits[k] = frame[idx]
			idx++
			col[k] ^= bits[k]
		}
		parity := frame[idx]
		idx++
		if oddParityBit(bits[:]...) != parity {
			return id, false
		}
		nibbles[n] = bits[0]<<3 | bits[1]<<2 | bits[2]<<1 | bits[3]
	}
	for k := 0; k < 4; k++ {
		if oddParityBit(col[k]) != frame[idx] {
			return id, false
		}
		idx++
	}
	if frame[idx] != 0 {
		return id, false
	}

	for i := 0; i < 5; i++ {
		id[i] = nibbles[2*i]<<4 | nibbles[2*i+1]
	}
	return id, true
}
