package toolbox

import (
	"errors"

	"github.com/cenkalti/backoff/v4"
)

var errTagLost = errors.New("toolbox: tag lost")

// SectorKeyResult reports which of a sector's two keys (if any) from a
// supplied dictionary authenticated successfully.
type SectorKeyResult struct {
	Sector int
	KeyA   [6]byte
	FoundA bool
	KeyB   [6]byte
	FoundB bool
}

// trailerBlockForSector maps a sector index to its trailer block number,
// covering the standard 1K/4K mixed 4-block/16-block layout (mirrors
// internal/mf1's sectorOf).
func trailerBlockForSector(sector int) byte {
	if sector < 32 {
		return byte(sector*4 + 3)
	}
	return byte(128 + (sector-32)*16 + 15)
}

// tryKey runs one known-key first-auth attempt, retrying only on a
// transient communication failure (TagLost) via a bounded field-reset
// backoff; a clean auth rejection (wrong key) is never retried. After
// every attempt that reaches the tag, success or rejection, the field is
// reset so the next attempt starts from a fresh first-auth rather than
// landing on an Authed session as a nested auth.
func tryKey(ex Exchanger, uid [4]byte, block byte, isKeyB bool, key [6]byte) (bool, Status) {
	var ok bool
	err := backoff.Retry(func() error {
		_, _, status := completeFirstAuth(ex, uid, key, block, isKeyB)
		if status == TagLost {
			ex.ResetField()
			return errTagLost
		}
		ok = status == Ok
		ex.ResetField()
		return nil
	}, fieldResetBackoff())
	if err != nil {
		return false, TagLost
	}
	return ok, Ok
}

// CheckKeysOfSectors trial-authenticates every key in dict against key A
// and key B of each requested sector, stopping only on TagLost (spec.md
// §4.8's check_keys_of_sectors: "fail-fast only on TagLost, field-reset
// and retry otherwise").
func CheckKeysOfSectors(ex Exchanger, sectors []int, dict [][6]byte) ([]SectorKeyResult, Status) {
	uid := ex.UID()
	results := make([]SectorKeyResult, 0, len(sectors))

	for _, sector := range sectors {
		block := trailerBlockForSector(sector)
		res := SectorKeyResult{Sector: sector}

		for _, key := range dict {
			if !res.FoundA {
				ok, status := tryKey(ex, uid, block, false, key)
				if status == TagLost {
					return results, TagLost
				}
				if ok {
					res.FoundA, res.KeyA = true, key
				}
			}
			if !res.FoundB {
				ok, status := tryKey(ex, uid, block, true, key)
				if status == TagLost {
					return results, TagLost
				}
				if ok {
					res.FoundB, res.KeyB = true, key
				}
			}
			if res.FoundA && res.FoundB {
				break
			}
		}
		results = append(results, res)
	}
	return results, Ok
}
