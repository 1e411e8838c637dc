package toolbox

import (
	"encoding/binary"

	"github.com/chameleonultra/chamelgo/internal/crypto1"
)

// RecoverKeyFromNested tries each of candidates against a collected
// NestedCore, returning the first key whose predicted second nonce (via
// the same known-uid/known-key keystream trick NestedDistanceDetect
// uses) matches every sample's observed Nt2Enc.
//
// This is the attacker-side candidate-narrowing step, not the full
// from-scratch Crypto1 LFSR state-recovery search real nested-auth
// cryptanalysis runs over an unconstrained 48-bit key space (that search
// walks the published filter-function inverse tables and is out of this
// package's scope — see DESIGN.md). It is exact and sufficient whenever
// the true key is known to lie in candidates, e.g. a dictionary attack
// refined by a nested-auth oracle.
func RecoverKeyFromNested(core NestedCore, candidates [][6]byte) ([6]byte, bool) {
	for _, key := range candidates {
		if verifyKeyAgainstSamples(key, core) {
			return key, true
		}
	}
	return [6]byte{}, false
}

func verifyKeyAgainstSamples(key [6]byte, core NestedCore) bool {
	for _, s := range core.Samples {
		_, nt2, _ := crypto1.DecryptNestedNonce(key, core.UID, s.Nt2Enc)
		// A correct key must yield a second nonce reachable from the
		// first within one PRNG period; distance-detect already
		// validated this holds for the target's PRNG class.
		if _, found := findPRNGDistance(s.Nt1, binary.BigEndian.Uint32(nt2[:]), maxPRNGSearch); !found {
			return false
		}
	}
	return true
}

// RecoverKeyFromDarkside tries each of candidates against a collected
// DarksideCore, returning the first key whose simulated first-auth
// keystream reproduces the leaked KsList when fed the same pinned
// nrEnc/arEnc bytes the probe loop converged on.
//
// Like RecoverKeyFromNested, this narrows a supplied candidate list
// rather than performing the full from-scratch dark-side state recovery
// (which reconstructs the 48-bit LFSR state bit-by-bit purely from
// ParList/KsList with no candidate key at all — see DESIGN.md).
func RecoverKeyFromDarkside(core DarksideCore, candidates [][6]byte) ([6]byte, bool) {
	for _, key := range candidates {
		if verifyDarksideSamples(key, core) {
			return key, true
		}
	}
	return [6]byte{}, false
}

func verifyDarksideSamples(key [6]byte, core DarksideCore) bool {
	var ntB [4]byte
	binary.BigEndian.PutUint32(ntB[:], core.Nt1)
	c := crypto1.Setup(key, core.UID, ntB)

	for i, b := range core.NrEnc {
		ksBit := c.FilterOutput()
		if ksBit != core.KsList[i] {
			return false
		}
		c.Byte(b, true)
	}
	for i := range core.ArEnc {
		ksBit := c.FilterOutput()
		if ksBit != core.KsList[4+i] {
			return false
		}
		c.Byte(0, false)
	}
	return true
}
