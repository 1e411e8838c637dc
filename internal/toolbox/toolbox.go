// Package toolbox implements the MIFARE Classic Crypto1 attack suite
// (component C8): PRNG classification, nested-auth nonce distance
// measurement, the Darkside and Nested key-recovery attacks, and bulk
// sector key checking. Component C8, grounded on the original
// firmware's reader/hf/mf1_toolbox.c, using the classical Crypto1
// reference algorithm from internal/crypto1.
package toolbox

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Status classifies a toolbox operation's outcome.
type Status int

const (
	Ok Status = iota
	TagLost
	AuthFail
	CantFixNt
	LuckyAuthOk
	NoNakSent
	TagChanged
)

// PRNGType classifies a tag's nonce generator.
type PRNGType int

const (
	Static PRNGType = iota
	Weak
	Hard
)

// Exchanger is the raw-frame interface toolbox attacks drive directly,
// bypassing any reader-chip hardware auth engine (those attacks need the
// actual nonce bytes on the wire, which a hardware Crypto1 engine never
// exposes to software — spec.md §4.2/§4.8).
type Exchanger interface {
	// Exchange sends tx and returns the response; ok is false for a
	// timeout/NAK (no usable reply), true with rx populated otherwise.
	Exchange(tx []byte) (rx []byte, ok bool)
	// ResetField cycles the RF field (field-reset between attempts).
	ResetField()
	// UID returns the currently selected tag's 4-byte UID.
	UID() [4]byte
}

const (
	opAuthA = 0x60
	opAuthB = 0x61
)

func keyOpcode(isKeyB bool) byte {
	if isKeyB {
		return opAuthB
	}
	return opAuthA
}

// fieldResetBackoff is the retry policy for the field-reset loops that
// Darkside and nested-distance measurement perform between attempts
// (spec.md §5's "100ms tunable" field-reset delay).
func fieldResetBackoff() backoff.BackOff {
	b := backoff.NewConstantBackOff(100 * time.Millisecond)
	return backoff.WithMaxRetries(b, 15)
}
