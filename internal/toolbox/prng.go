package toolbox

import (
	"encoding/binary"

	"github.com/chameleonultra/chamelgo/internal/crypto1"
)

// maxPRNGSearch bounds the brute-force clock-distance search to one full
// 16-bit LFSR period (spec.md §4.8's "16-bit LFSR linearity check").
const maxPRNGSearch = 1 << 16

func firstAuthNonce(ex Exchanger, block byte, isKeyB bool) (uint32, bool) {
	rx, ok := ex.Exchange([]byte{keyOpcode(isKeyB), block})
	if !ok || len(rx) != 4 {
		return 0, false
	}
	return binary.BigEndian.Uint32(rx), true
}

// findPRNGDistance searches for n in [0, limit) such that clocking from
// nt1 by n steps of the free-running successor reaches nt2.
func findPRNGDistance(nt1, nt2 uint32, limit uint32) (uint32, bool) {
	x := nt1
	if x == nt2 {
		return 0, true
	}
	for n := uint32(1); n < limit; n++ {
		x = crypto1.PRNGSuccessor(x, 1)
		if x == nt2 {
			return n, true
		}
	}
	return 0, false
}

// CheckPRNGType classifies the nonce generator behind block by comparing
// two first-auth nonces taken across a field reset: identical nonces mean
// Static, nonces reachable from one another via the free-running 16-bit
// LFSR mean Weak, and anything else is treated as Hard (spec.md §4.8's
// check_std_mifare_nt_support / check_prng_type).
func CheckPRNGType(ex Exchanger, block byte, isKeyB bool) (PRNGType, Status) {
	nt1, ok := firstAuthNonce(ex, block, isKeyB)
	if !ok {
		return Hard, TagLost
	}
	ex.ResetField()
	nt2, ok := firstAuthNonce(ex, block, isKeyB)
	if !ok {
		return Hard, TagLost
	}
	if nt1 == nt2 {
		return Static, Ok
	}
	if _, found := findPRNGDistance(nt1, nt2, maxPRNGSearch); found {
		return Weak, Ok
	}
	return Hard, Ok
}
