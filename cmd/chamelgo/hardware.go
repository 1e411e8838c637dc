package main

import "log"

// loggingHardware is the mode.Hardware stand-in used when no real nRF52
// GPIO/RC522 wiring is present: it logs each side-effecting step instead
// of driving silicon. Real hardware control is an explicit non-goal of
// this repo; this keeps internal/mode fully exercised without it.
type loggingHardware struct {
	log *log.Logger
}

func newLoggingHardware(l *log.Logger) *loggingHardware {
	return &loggingHardware{log: l}
}

func (h *loggingHardware) SetReaderPower(on bool) {
	h.log.Printf("hw: reader power = %v", on)
}

func (h *loggingHardware) SteerAntenna(toReader bool) {
	if toReader {
		h.log.Printf("hw: antenna steered to reader path")
	} else {
		h.log.Printf("hw: antenna steered to emulator path")
	}
}

func (h *loggingHardware) InitLFReaderPath() {
	h.log.Printf("hw: LF reader path initialized")
}

func (h *loggingHardware) ResetRC522() {
	h.log.Printf("hw: RC522 reset")
}

func (h *loggingHardware) UninitReaderChip() {
	h.log.Printf("hw: reader chip uninitialized")
}

func (h *loggingHardware) StartTagSense() {
	h.log.Printf("hw: tag-emulation field sense started")
}

func (h *loggingHardware) StopTagSense() {
	h.log.Printf("hw: tag-emulation field sense stopped")
}
