// Package mf1 implements the MIFARE Classic state machine (component C5):
// access-bit decoding, the auth handshake over Crypto1, authenticated
// data/value-block operations, Gen1a/Gen2 magic modes, and the auth-
// attempt log. Grounded on the original firmware's
// rfid/nfctag/hf/nfc_mf1.c.
package mf1

// WriteMode controls how authenticated writes are applied to memory.
type WriteMode int

const (
	WriteNormal WriteMode = iota
	WriteDenied
	WriteDeceive
	WriteShadow
)

// Config mirrors the per-slot Mf1Config of spec.md §3.
type Config struct {
	WriteMode        WriteMode
	UseMf1CollRes    bool
	Gen1aMagic       bool
	Gen2Magic        bool
	DetectionEnable  bool
}

// KeyType distinguishes MIFARE Key A from Key B.
type KeyType int

const (
	KeyA KeyType = iota
	KeyB
)

// trailerPerm is the 6-bit permission mask for a sector trailer row:
// {ReadKeyA, WriteKeyA, ReadAcc, WriteAcc, ReadKeyB, WriteKeyB}.
type trailerPerm struct {
	ReadKeyA, WriteKeyA   bool
	ReadAcc, WriteAcc     bool
	ReadKeyB, WriteKeyB   bool
}

// dataPerm is the 4-bit permission mask for a data block:
// {Read, Write, Increment, Decrement}.
type dataPerm struct {
	Read, Write, Increment, Decrement bool
}

// trailerTable is the canonical 8-row MIFARE Classic access-condition
// table keyed by (C1,C2,C3), reproduced from nfc_mf1.c's
// check_block_permission / the public MIFARE Classic datasheet. Index =
// C1<<2 | C2<<1 | C3.
var trailerTable = [8]trailerPerm{
	// C1 C2 C3   keyA read/write   acc read/write   keyB read/write
	0: {ReadKeyA: false, WriteKeyA: true, ReadAcc: true, WriteAcc: false, ReadKeyB: false, WriteKeyB: true},
	1: {ReadKeyA: false, WriteKeyA: false, ReadAcc: true, WriteAcc: false, ReadKeyB: false, WriteKeyB: false},
	2: {ReadKeyA: false, WriteKeyA: true, ReadAcc: true, WriteAcc: true, ReadKeyB: false, WriteKeyB: true},
	3: {ReadKeyA: false, WriteKeyA: false, ReadAcc: true, WriteAcc: true, ReadKeyB: false, WriteKeyB: false},
	4: {ReadKeyA: false, WriteKeyA: true, ReadAcc: true, WriteAcc: false, ReadKeyB: true, WriteKeyB: true},
	5: {ReadKeyA: false, WriteKeyA: false, ReadAcc: true, WriteAcc: false, ReadKeyB: false, WriteKeyB: false},
	6: {ReadKeyA: false, WriteKeyA: false, ReadAcc: true, WriteAcc: true, ReadKeyB: false, WriteKeyB: false},
	7: {ReadKeyA: false, WriteKeyA: false, ReadAcc: true, WriteAcc: false, ReadKeyB: false, WriteKeyB: false},
}

var dataTable = [8]dataPerm{
	0: {Read: true, Write: true, Increment: true, Decrement: true},
	1: {Read: true, Write: false, Increment: false, Decrement: true},
	2: {Read: true, Write: false, Increment: false, Decrement: false},
	3: {Read: true, Write: true, Increment: false, Decrement: false},
	4: {Read: true, Write: true, Increment: true, Decrement: true},
	5: {Read: true, Write: true, Increment: false, Decrement: false},
	6: {Read: true, Write: true, Increment: true, Decrement: true},
	7: {Read: true, Write: false, Increment: false, Decrement: false},
}

// decodeAccessBits extracts C1/C2/C3 indices for blocks 0-2 and the
// trailer from the trailer row's access bytes (bytes 6-9 of a 16-byte
// trailer block).
func decodeAccessBits(access [4]byte) (c123 [4]int) {
	b6, b7, b8 := access[0], access[1], access[2]
	for block := 0; block < 4; block++ {
		c1 := (b7 >> (4 + uint(block))) & 1
		c2 := (b8 >> uint(block)) & 1
		c3 := (b8 >> (4 + uint(block))) & 1
		_ = b6
		c123[block] = int(c1)<<2 | int(c2)<<1 | int(c3)
	}
	return c123
}

// TrailerAccess returns the permission mask for the sector trailer itself
// (block index 3 within decodeAccessBits' 0..3 convention).
func TrailerAccess(access [4]byte) trailerPerm {
	c123 := decodeAccessBits(access)
	return trailerTable[c123[3]]
}

// DataBlockAccess returns the permission mask for data block relBlock
// (0, 1 or 2 within the sector).
func DataBlockAccess(access [4]byte, relBlock int) dataPerm {
	c123 := decodeAccessBits(access)
	if relBlock < 0 || relBlock > 2 {
		return dataPerm{}
	}
	return dataTable[c123[relBlock]]
}
