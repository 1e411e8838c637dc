package main

import (
	"log"

	"github.com/chameleonultra/chamelgo/internal/core"
	"github.com/chameleonultra/chamelgo/internal/dispatch"
	"github.com/chameleonultra/chamelgo/internal/lf"
	"github.com/chameleonultra/chamelgo/internal/mode"
	"github.com/chameleonultra/chamelgo/internal/pcd"
	"github.com/chameleonultra/chamelgo/internal/slot"
	"github.com/chameleonultra/chamelgo/internal/toolbox"
)

// Command codes. Ranges follow dispatch.ClassifyCmd's fixed boundaries:
// device 1000-1999, HF reader 2000-2999, LF reader 3000-3999, HF
// emulator 4000-4999, LF emulator 5000-5999. This table is representative
// of each range rather than an exhaustive reproduction of every original
// firmware command.
const (
	cmdGetDeviceMode = 1001
	cmdSetDeviceMode = 1002
	cmdGetActiveSlot = 1010
	cmdSetActiveSlot = 1011

	cmdHF14aScan             = 2000
	cmdMf1CheckKeysOfSectors = 2010
	cmdMf1CheckPRNGType      = 2020

	cmdLF125khzScan = 3000

	cmdHFGetSlotData = 4000
	cmdHFSetSlotData = 4001

	cmdLFGetSlotData = 5000
	cmdLFSetEM410xID = 5001
)

func must(err error, logger *log.Logger, what string) {
	if err != nil {
		logger.Fatalf("register %s: %v", what, err)
	}
}

func registerCommands(disp *dispatch.Dispatcher, mgr *slot.Manager, modeCtl *mode.Controller, rs *virtualReaderStack, lfEmu *lfEmulatorHolder, logger *log.Logger) {
	must(disp.Register(cmdGetDeviceMode, nil, func(req dispatch.Request) dispatch.Response {
		return dispatch.Response{Status: core.StatusSuccess, Data: []byte{byte(modeCtl.Current())}}
	}, nil), logger, "GetDeviceMode")

	must(disp.Register(cmdSetDeviceMode, nil, func(req dispatch.Request) dispatch.Response {
		if len(req.Data) < 1 {
			return dispatch.Response{Status: core.StatusInvalidParams}
		}
		switch mode.Mode(req.Data[0]) {
		case mode.Reader:
			modeCtl.EnterReader()
		case mode.Tag:
			modeCtl.EnterTag()
		case mode.None:
			modeCtl.EnterNone()
		default:
			return dispatch.Response{Status: core.StatusInvalidParams}
		}
		return dispatch.Response{Status: core.StatusSuccess}
	}, nil), logger, "SetDeviceMode")

	must(disp.Register(cmdGetActiveSlot, nil, func(req dispatch.Request) dispatch.Response {
		return dispatch.Response{Status: core.StatusSuccess, Data: []byte{byte(mgr.ActiveSlot())}}
	}, nil), logger, "GetActiveSlot")

	must(disp.Register(cmdSetActiveSlot, nil, func(req dispatch.Request) dispatch.Response {
		if len(req.Data) < 1 {
			return dispatch.Response{Status: core.StatusInvalidParams}
		}
		if err := mgr.ChangeSlot(int(req.Data[0]), false); err != nil {
			return dispatch.Response{Status: core.StatusInvalidParams}
		}
		return dispatch.Response{Status: core.StatusSuccess}
	}, nil), logger, "SetActiveSlot")

	must(disp.Register(cmdHF14aScan, nil, func(req dispatch.Request) dispatch.Response {
		tag, status := rs.Scan()
		if status != pcd.Ok {
			return dispatch.Response{Status: core.StatusHfTagNo}
		}
		out := append([]byte{byte(tag.UIDLen), tag.SAK}, tag.UID[:tag.UIDLen]...)
		return dispatch.Response{Status: core.StatusSuccess, Data: out}
	}, nil), logger, "HF14aScan")

	must(disp.Register(cmdMf1CheckKeysOfSectors, nil, func(req dispatch.Request) dispatch.Response {
		sectors, dict, ok := decodeSectorKeyCheckRequest(req.Data)
		if !ok {
			return dispatch.Response{Status: core.StatusInvalidParams}
		}
		results, status := toolbox.CheckKeysOfSectors(rs, sectors, dict)
		if status == toolbox.TagLost {
			return dispatch.Response{Status: core.StatusHfTagNo}
		}
		return dispatch.Response{Status: core.StatusSuccess, Data: encodeSectorKeyResults(results)}
	}, nil), logger, "Mf1CheckKeysOfSectors")

	must(disp.Register(cmdMf1CheckPRNGType, nil, func(req dispatch.Request) dispatch.Response {
		if len(req.Data) < 2 {
			return dispatch.Response{Status: core.StatusInvalidParams}
		}
		prng, status := toolbox.CheckPRNGType(rs, req.Data[0], req.Data[1] != 0)
		if status == toolbox.TagLost {
			return dispatch.Response{Status: core.StatusHfTagNo}
		}
		return dispatch.Response{Status: core.StatusSuccess, Data: []byte{byte(prng)}}
	}, nil), logger, "Mf1CheckPRNGType")

	// There is no LF reader demodulator in this tree (only the LF
	// emulator direction is implemented); this command exists so the
	// range partition and its reader-mode gate are both exercised, and
	// fails honestly rather than faking a scan result.
	must(disp.Register(cmdLF125khzScan, nil, func(req dispatch.Request) dispatch.Response {
		return dispatch.Response{Status: core.StatusNotImplemented}
	}, nil), logger, "LF125khzScan")

	must(disp.Register(cmdHFGetSlotData, nil, func(req dispatch.Request) dispatch.Response {
		return dispatch.Response{Status: core.StatusSuccess, Data: mgr.HFBuffer()}
	}, nil), logger, "HFGetSlotData")

	must(disp.Register(cmdHFSetSlotData, nil, func(req dispatch.Request) dispatch.Response {
		mgr.SetHFBuffer(req.Data)
		if err := mgr.Save(); err != nil {
			return dispatch.Response{Status: core.StatusFlashWriteFail}
		}
		return dispatch.Response{Status: core.StatusSuccess}
	}, nil), logger, "HFSetSlotData")

	must(disp.Register(cmdLFGetSlotData, nil, func(req dispatch.Request) dispatch.Response {
		return dispatch.Response{Status: core.StatusSuccess, Data: mgr.LFBuffer()}
	}, nil), logger, "LFGetSlotData")

	must(disp.Register(cmdLFSetEM410xID, nil, func(req dispatch.Request) dispatch.Response {
		if len(req.Data) != 5 {
			return dispatch.Response{Status: core.StatusInvalidParams}
		}
		var id [5]byte
		copy(id[:], req.Data)
		lfEmu.SetFrame(lf.EncodeEM410x(id))
		mgr.SetLFBuffer(id[:])
		if err := mgr.Save(); err != nil {
			return dispatch.Response{Status: core.StatusFlashWriteFail}
		}
		return dispatch.Response{Status: core.StatusSuccess}
	}, nil), logger, "LFSetEM410xID")
}

// decodeSectorKeyCheckRequest parses: numSectors(1) sector(1)... numKeys(1) key(6)...
func decodeSectorKeyCheckRequest(data []byte) (sectors []int, dict [][6]byte, ok bool) {
	if len(data) < 1 {
		return nil, nil, false
	}
	n := int(data[0])
	off := 1
	if len(data) < off+n {
		return nil, nil, false
	}
	for i := 0; i < n; i++ {
		sectors = append(sectors, int(data[off+i]))
	}
	off += n
	if len(data) < off+1 {
		return nil, nil, false
	}
	numKeys := int(data[off])
	off++
	if len(data) < off+numKeys*6 {
		return nil, nil, false
	}
	for i := 0; i < numKeys; i++ {
		var k [6]byte
		copy(k[:], data[off+i*6:off+i*6+6])
		dict = append(dict, k)
	}
	return sectors, dict, true
}

func encodeSectorKeyResults(results []toolbox.SectorKeyResult) []byte {
	out := make([]byte, 0, len(results)*15)
	for _, r := range results {
		out = append(out, byte(r.Sector), b2b(r.FoundA))
		out = append(out, r.KeyA[:]...)
		out = append(out, b2b(r.FoundB))
		out = append(out, r.KeyB[:]...)
	}
	return out
}

func b2b(b bool) byte {
	if b {
		return 1
	}
	return 0
}
