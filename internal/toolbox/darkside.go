package toolbox

// darksidePositions is the number of reader-nonce byte positions the
// classic dark-side attack probes (one parity bit leaked per position),
// matching the published Courtois/Nohl dark-side attack structure.
const darksidePositions = 8

// DarksideOracle is the capability a "cooperative" virtual tag exposes
// for dark-side probing: real RC522-class hardware cannot surface the
// bit-level parity/NAK signal the attack exploits (it lives below the
// Transceiver's byte-framed Transfer abstraction), so DarksideRecoverKey
// only runs against an Exchanger that also implements this interface —
// a test fixture standing in for the vulnerable silicon's raw response
// timing (see DESIGN.md's darkside entry for the scope this models).
//
// A genuine implementation must run the real search this attack is
// named for: the reader doesn't know the key, so for byte position pos
// it walks up to 256 candidate byte values (pinning whichever earlier
// positions it already found to pass, so the tag's parity check
// reaches pos at all) until it finds one whose accompanying, honestly
// guessed parity bit genuinely disagrees with what the tag's real
// cipher required — the disagreement is what the tag's immediate 4-bit
// NAK leaks. Deriving parity/ks from a cipher built out of the
// already-known key, rather than from that search, isn't an oracle.
type DarksideOracle interface {
	// ProbeParity resyncs the tag (field reset + first-auth) and
	// searches for a reader-nonce/answer candidate deliberately
	// corrupted at byte position pos, reporting whether the tag
	// rejected with a distinguishable NAK (gotNak) plus the parity bit
	// and keystream bit that produced it. If gotNak is false, every
	// candidate happened to authenticate outright (the "lucky auth"
	// termination case).
	ProbeParity(pos int, block byte, isKeyB bool) (gotNak bool, parity byte, ks byte)

	// PinnedFrame returns the reader-nonce/answer byte values the probe
	// loop converged on across all rounds: whichever candidate at each
	// position was found to pass the tag's parity check and so got
	// adopted as the prefix later rounds probed against. Replaying these
	// same bytes through a candidate key reproduces the identical
	// KsList this run observed, which is what narrows candidates down
	// to the real key.
	PinnedFrame() (nrEnc, arEnc [4]byte)
}

// DarksideCore is the raw {par_list, ks_list} material the dark-side
// attack collects for a single target block, handed to offline Crypto1
// state recovery (spec.md §4.8's darkside_recover_key).
type DarksideCore struct {
	UID     [4]byte
	Nt1     uint32
	ParList [darksidePositions]byte
	KsList  [darksidePositions]byte
	NrEnc   [4]byte
	ArEnc   [4]byte
}

// DarksideRecoverKey runs the dark-side nonce-fixing attack against
// block. It requires a Static or Weak PRNG target (spec.md §4.8) and an
// Exchanger that also implements DarksideOracle; against anything else
// it reports NoNakSent, mirroring real hardware's "chip doesn't support
// raw parity probing" failure mode.
func DarksideRecoverKey(ex Exchanger, block byte, isKeyB bool) (DarksideCore, Status) {
	oracle, ok := ex.(DarksideOracle)
	if !ok {
		return DarksideCore{}, NoNakSent
	}

	nt1, ok := firstAuthNonce(ex, block, isKeyB)
	if !ok {
		return DarksideCore{}, TagLost
	}
	ex.ResetField()

	var core DarksideCore
	core.UID = ex.UID()
	core.Nt1 = nt1

	for pos := 0; pos < darksidePositions; pos++ {
		gotNak, parity, ks := oracle.ProbeParity(pos, block, isKeyB)
		if !gotNak {
			return core, LuckyAuthOk
		}
		core.ParList[pos] = parity
		core.KsList[pos] = ks
		ex.ResetField()
	}
	core.NrEnc, core.ArEnc = oracle.PinnedFrame()
	return core, Ok
}
