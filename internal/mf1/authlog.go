package mf1

// AuthLogCapacity is the maximum number of retained auth attempts.
const AuthLogCapacity = 1000

// UninitializedSentinel marks a freshly power-on retained-RAM region
// before it has been zeroed, per DESIGN NOTES §9.
const UninitializedSentinel = 0xFFFFFFFF

// AuthLogEntry records one auth attempt's observable nonces, enough to
// mount Darkside/Nested-style key recovery offline.
type AuthLogEntry struct {
	Block    byte
	IsKeyB   bool
	IsNested bool
	UID      [4]byte
	Nt       [4]byte
	Nr       [4]byte
	Ar       [4]byte
}

// AuthLog is the retained-RAM ring buffer of auth attempts (§3, §5 of the
// spec). It is populated only while the active slot's DetectionEnable is
// set. Count keeps increasing with every recorded attempt; once the ring
// holds AuthLogCapacity entries, new entries overwrite the oldest (ring
// semantics), matching a fixed-size retained region that cannot be
// resized at runtime.
type AuthLog struct {
	count   uint32
	entries [AuthLogCapacity]AuthLogEntry
	pending AuthLogEntry
}

// NewAuthLog returns an AuthLog that has already run its first-touch
// reset (count == 0), as if count had been observed == UninitializedSentinel
// and zeroed.
func NewAuthLog() *AuthLog {
	return &AuthLog{}
}

// ResetIfUninitialized implements the count==0xFFFFFFFF sentinel check
// described in DESIGN NOTES §9, for logs restored from a raw retained-RAM
// region rather than constructed fresh.
func (l *AuthLog) ResetIfUninitialized() {
	if l.count == UninitializedSentinel {
		l.count = 0
	}
}

// Count returns the number of attempts recorded so far; it can exceed
// AuthLogCapacity, of which only the most recent entries are kept.
func (l *AuthLog) Count() uint32 {
	return l.count
}

// Clear empties the log.
func (l *AuthLog) Clear() {
	l.count = 0
	l.pending = AuthLogEntry{}
}

// Entries returns a copy of the recorded entries (up to Count(), capped
// at AuthLogCapacity).
func (l *AuthLog) Entries() []AuthLogEntry {
	n := l.count
	if n > AuthLogCapacity {
		n = AuthLogCapacity
	}
	out := make([]AuthLogEntry, n)
	copy(out, l.entries[:n])
	return out
}

// BeginAttempt records step 1 of an auth handshake (block/keytype/nested
// flag, uid, nt) into a pending slot, not yet committed to the ring.
func (l *AuthLog) BeginAttempt(block byte, isKeyB, isNested bool, uid, nt [4]byte) {
	l.pending = AuthLogEntry{Block: block, IsKeyB: isKeyB, IsNested: isNested, UID: uid, Nt: nt}
}

// RecordReaderAnswer records step 2: the reader's {nr, ar}.
func (l *AuthLog) RecordReaderAnswer(nr, ar [4]byte) {
	l.pending.Nr = nr
	l.pending.Ar = ar
}

// Finalize commits the pending entry to the ring (step 3, always called
// regardless of auth success, per spec.md §4.5 step 6).
func (l *AuthLog) Finalize() {
	idx := l.count % AuthLogCapacity
	l.entries[idx] = l.pending
	l.count++
}
