// Package dispatch implements the table-driven command dispatcher
// (component C10): a static `(cmd_code, pre?, handler, post?)` table
// keyed by 16-bit command code, command-code range partitioning, and
// transport auto-selection. Grounded on the teacher's
// server/handler_registry.go (`Handle`/`Get`, duplicate-registration
// rejection, RWMutex-guarded map) generalized from its string message
// types to spec.md §4.10's numeric command codes and pre/post hooks.
package dispatch

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chameleonultra/chamelgo/internal/core"
	"github.com/chameleonultra/chamelgo/internal/frame"
	"github.com/chameleonultra/chamelgo/internal/mode"
	"github.com/chameleonultra/chamelgo/internal/transport"
)

// Request is what a handler, pre, or post hook is given.
type Request struct {
	Cmd    uint16
	Status uint16
	Data   []byte
}

// Response is what a handler or pre hook returns; it becomes the
// outgoing frame's status/data.
type Response struct {
	Status uint16
	Data   []byte
}

// HandlerFunc implements one command's behavior.
type HandlerFunc func(req Request) Response

// PreFunc runs before HandlerFunc. A non-nil return short-circuits the
// command: HandlerFunc and PostFunc are both skipped and the returned
// Response is sent as-is.
type PreFunc func(req Request) *Response

// PostFunc runs after HandlerFunc, observing its Response (e.g. for
// logging); it cannot alter what was already sent.
type PostFunc func(req Request, resp Response)

// Range is the decimal command-code partition spec.md §4.10 assigns.
type Range int

const (
	RangeUnknown Range = iota
	RangeDevice
	RangeHFReader
	RangeLFReader
	RangeHFEmulator
	RangeLFEmulator
)

// ClassifyCmd maps a command code to its range by the fixed boundaries:
// device 1000-1999, HF reader 2000-2999, LF reader 3000-3999, HF
// emulator 4000-4999, LF emulator 5000-5999.
func ClassifyCmd(cmd uint16) Range {
	switch {
	case cmd >= 1000 && cmd <= 1999:
		return RangeDevice
	case cmd >= 2000 && cmd <= 2999:
		return RangeHFReader
	case cmd >= 3000 && cmd <= 3999:
		return RangeLFReader
	case cmd >= 4000 && cmd <= 4999:
		return RangeHFEmulator
	case cmd >= 5000 && cmd <= 5999:
		return RangeLFEmulator
	default:
		return RangeUnknown
	}
}

// ReaderPrep is the per-command HF priming step spec.md §4.10 describes:
// "pre for reader-mode commands... for HF, resets the RC522 + turns on
// the antenna + delays 8ms; post for HF turns the antenna off." This is
// distinct from internal/mode's Reader/Tag transition hardware — it runs
// once per HF-reader command, not once per mode switch.
type ReaderPrep interface {
	ResetRC522()
	AntennaOn()
	AntennaOff()
}

type entry struct {
	pre     PreFunc
	handler HandlerFunc
	post    PostFunc
}

// Dispatcher is the static command table plus the transports it can
// answer on.
type Dispatcher struct {
	mu    sync.RWMutex
	table map[uint16]entry

	transportsMu sync.RWMutex
	transports   []transport.Transport

	modeCtl      *mode.Controller
	readerPrep   ReaderPrep
	antennaDelay time.Duration

	log *log.Logger
}

// New returns a Dispatcher gating reader-range commands on modeCtl and
// priming HF-reader commands through readerPrep (nil disables priming,
// e.g. in tests with no simulated RC522).
func New(modeCtl *mode.Controller, readerPrep ReaderPrep, antennaDelay time.Duration, logger *log.Logger) *Dispatcher {
	if logger == nil {
		logger = log.New(log.Writer(), "[dispatch] ", log.LstdFlags)
	}
	return &Dispatcher{
		table:        make(map[uint16]entry),
		modeCtl:      modeCtl,
		readerPrep:   readerPrep,
		antennaDelay: antennaDelay,
		log:          logger,
	}
}

// Register adds a (cmd, pre?, handler, post?) entry to the table. pre
// and post may be nil. Returns an error if handler is nil or cmd is
// already registered, mirroring handler_registry.Handle's guards.
func (d *Dispatcher) Register(cmd uint16, pre PreFunc, handler HandlerFunc, post PostFunc) error {
	if handler == nil {
		return core.New(core.ErrCodeParamErr, "dispatch.Register", "handler cannot be nil")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.table[cmd]; exists {
		return core.New(core.ErrCodeParamErr, "dispatch.Register", "command already registered")
	}
	d.table[cmd] = entry{pre: pre, handler: handler, post: post}
	return nil
}

// AddTransport registers a transport the dispatcher may answer on.
func (d *Dispatcher) AddTransport(t transport.Transport) {
	d.transportsMu.Lock()
	defer d.transportsMu.Unlock()
	d.transports = append(d.transports, t)
}

// activeTransport picks the first registered transport whose IsOpen is
// true (§6's transport auto-select).
func (d *Dispatcher) activeTransport() transport.Transport {
	d.transportsMu.RLock()
	defer d.transportsMu.RUnlock()
	for _, t := range d.transports {
		if t.IsOpen() {
			return t
		}
	}
	return nil
}

// Dispatch runs req through the table: range-gated mode check, HF
// priming, pre/handler/post, per spec.md §4.10. Unknown codes yield
// INVALID_CMD.
func (d *Dispatcher) Dispatch(req Request) Response {
	reqID := uuid.NewString()

	d.mu.RLock()
	e, ok := d.table[req.Cmd]
	d.mu.RUnlock()
	if !ok {
		d.log.Printf("req=%s cmd=%d unknown command", reqID, req.Cmd)
		return Response{Status: core.StatusInvalidCmd}
	}

	rng := ClassifyCmd(req.Cmd)
	if (rng == RangeHFReader || rng == RangeLFReader) && d.modeCtl != nil {
		if err := d.modeCtl.RequireReader("dispatch.Dispatch"); err != nil {
			d.log.Printf("req=%s cmd=%d rejected: %v", reqID, req.Cmd, err)
			return Response{Status: core.StatusDeviceModeError}
		}
	}

	if rng == RangeHFReader && d.readerPrep != nil {
		d.readerPrep.ResetRC522()
		d.readerPrep.AntennaOn()
		if d.antennaDelay > 0 {
			time.Sleep(d.antennaDelay)
		}
		defer d.readerPrep.AntennaOff()
	}

	if e.pre != nil {
		if resp := e.pre(req); resp != nil {
			d.log.Printf("req=%s cmd=%d short-circuited by pre", reqID, req.Cmd)
			return *resp
		}
	}

	resp := e.handler(req)
	if e.post != nil {
		e.post(req, resp)
	}
	d.log.Printf("req=%s cmd=%d status=0x%02x", reqID, req.Cmd, resp.Status)
	return resp
}

// HandleFrame decodes an incoming frame, dispatches it, and sends the
// response frame on the first open transport (dropping it with a log
// line if none is open, per spec.md §6's "log-and-drop").
func (d *Dispatcher) HandleFrame(f *frame.Frame) {
	resp := d.Dispatch(Request{Cmd: f.Cmd, Status: f.Status, Data: f.Data})
	out, err := frame.Encode(f.Cmd, resp.Status, resp.Data)
	if err != nil {
		d.log.Printf("cmd=%d encode error: %v", f.Cmd, err)
		return
	}
	t := d.activeTransport()
	if t == nil {
		d.log.Printf("cmd=%d no open transport, dropping response", f.Cmd)
		return
	}
	if err := t.Send(out); err != nil {
		d.log.Printf("cmd=%d send error on %s: %v", f.Cmd, t.Name(), err)
	}
}
