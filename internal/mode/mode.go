// Package mode implements the Reader/Tag/None mode controller (component
// C11): mutual exclusion between the 14A reader role and tag-emulation
// role, gating antenna steering, the reader-power rail, and the RC522
// init/reset sequence. Grounded on spec.md §4.11 and, for the
// hardware-abstraction-via-interface shape, the teacher's
// nfc/device_pcsc.go pattern of putting every side-effecting step behind
// a narrow interface.
package mode

import (
	"sync"

	"github.com/chameleonultra/chamelgo/internal/core"
)

// Mode is the controller's mutually-exclusive global state.
type Mode int

const (
	None Mode = iota
	Reader
	Tag
)

func (m Mode) String() string {
	switch m {
	case Reader:
		return "reader"
	case Tag:
		return "tag"
	default:
		return "none"
	}
}

// Hardware is the side-effecting half of a mode transition: every step
// spec.md §4.11 names, expressed as a narrow capability a caller supplies
// (a real nRF52 HAL, or a fake in tests). Reset and Init on reader entry
// are spec.md's "init and reset the RC522"; StopTagSense/StartTagSense
// are the tag-emulation field-sense machinery (internal/picc +
// internal/lf) being paused/resumed, not owned by this package.
type Hardware interface {
	SetReaderPower(on bool)
	SteerAntenna(toReader bool)
	InitLFReaderPath()
	ResetRC522()
	UninitReaderChip()
	StartTagSense()
	StopTagSense()
}

// Controller owns the current Mode and drives Hardware through the
// transitions spec.md §4.11 defines. Only one mode is ever active.
type Controller struct {
	mu   sync.Mutex
	mode Mode
	hw   Hardware
}

// New returns a Controller in mode None, driving hw.
func New(hw Hardware) *Controller {
	return &Controller{hw: hw, mode: None}
}

// Current returns the active mode.
func (c *Controller) Current() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// EnterReader transitions to Reader mode, a no-op if already there.
func (c *Controller) EnterReader() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == Reader {
		return
	}
	if c.mode == Tag {
		c.hw.StopTagSense()
	}
	c.hw.SetReaderPower(true)
	c.hw.SteerAntenna(true)
	c.hw.InitLFReaderPath()
	c.hw.ResetRC522()
	c.mode = Reader
}

// EnterTag transitions to Tag mode, a no-op if already there.
func (c *Controller) EnterTag() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == Tag {
		return
	}
	if c.mode == Reader {
		c.hw.UninitReaderChip()
		c.hw.SetReaderPower(false)
	}
	c.hw.SteerAntenna(false)
	c.hw.StartTagSense()
	c.mode = Tag
}

// EnterNone quiesces both roles, a no-op if already there.
func (c *Controller) EnterNone() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == None {
		return
	}
	if c.mode == Reader {
		c.hw.UninitReaderChip()
		c.hw.SetReaderPower(false)
	}
	if c.mode == Tag {
		c.hw.StopTagSense()
	}
	c.mode = None
}

// RequireReader returns a DEVICE_MODE_ERROR CoreError unless the
// controller is currently in Reader mode, matching spec.md §4.11's
// "reader-dependent commands require Reader and otherwise reply
// DEVICE_MODE_ERROR."
func (c *Controller) RequireReader(op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != Reader {
		return core.New(core.ErrCodeDeviceMode, op, "reader mode not active")
	}
	return nil
}
