// Command chamelgo is the process entry point: it parses the device
// configuration, constructs every component (kvstore, slot manager, mode
// controller, reader/emulator stack, transports, dispatcher) and runs the
// core.Runner main loop until interrupted. This is the "process wiring"
// location spec.md's component-mapping table names alongside
// internal/core: every concrete type the rest of the tree only reaches
// through structural interfaces is instantiated here.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chameleonultra/chamelgo/internal/core"
	"github.com/chameleonultra/chamelgo/internal/dispatch"
	"github.com/chameleonultra/chamelgo/internal/kvstore"
	"github.com/chameleonultra/chamelgo/internal/lf"
	"github.com/chameleonultra/chamelgo/internal/mode"
	"github.com/chameleonultra/chamelgo/internal/slot"
	"github.com/chameleonultra/chamelgo/internal/transport"
)

// Config is the device's ambient configuration surface, parsed from flags
// (standing in for the original firmware's compiled-in constants and its
// BLE/USB host-negotiated settings).
type Config struct {
	ListenAddr     string
	KVPath         string
	ReaderTimeout  time.Duration
	AntennaDelay   time.Duration
	LFTickInterval time.Duration
	HFTickInterval time.Duration
}

func parseConfig() Config {
	listenAddr := flag.String("listen", "", "address to serve the netbridge websocket transport on (empty disables it)")
	kvPath := flag.String("kv-path", "", "directory for flash-backed key/value persistence (empty uses an in-memory store)")
	readerTimeoutMS := flag.Int("reader-timeout-ms", 25, "RC522 transceive timeout in milliseconds")
	antennaDelayMS := flag.Int("antenna-delay-ms", 100, "delay after priming the antenna before an HF-reader command runs")
	lfTickMS := flag.Int("lf-tick-ms", 1, "LF modulation timer tick interval in milliseconds")
	hfTickMS := flag.Int("hf-tick-ms", 1, "HF/NFCT field-sense tick interval in milliseconds")
	flag.Parse()

	return Config{
		ListenAddr:     *listenAddr,
		KVPath:         *kvPath,
		ReaderTimeout:  time.Duration(*readerTimeoutMS) * time.Millisecond,
		AntennaDelay:   time.Duration(*antennaDelayMS) * time.Millisecond,
		LFTickInterval: time.Duration(*lfTickMS) * time.Millisecond,
		HFTickInterval: time.Duration(*hfTickMS) * time.Millisecond,
	}
}

func main() {
	cfg := parseConfig()
	logger := log.New(os.Stdout, "[chamelgo] ", log.LstdFlags|log.Lmicroseconds)

	store, err := openStore(cfg.KVPath)
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}

	mgr := slot.NewManager(store)
	mgr.RegisterFactory(slot.TypeMifare1K, mifare1KImage{})
	mgr.RegisterFactory(slot.TypeNTAG213, ntag213Image{})
	if err := mgr.Init(); err != nil {
		logger.Fatalf("slot manager init: %v", err)
	}

	hw := newLoggingHardware(logger)
	modeCtl := mode.New(hw)

	readerStack := newVirtualReaderStack(cfg.ReaderTimeout)
	readerStack.tr.Reset()

	lfEmu := newLFEmulatorHolder(lf.EncodeEM410x([5]byte{0xDE, 0xAD, 0xBE, 0xEF, 0x01}), func() bool {
		return modeCtl.Current() == mode.Tag
	})

	disp := dispatch.New(modeCtl, readerStack, cfg.AntennaDelay, logger)
	registerCommands(disp, mgr, modeCtl, readerStack, lfEmu, logger)

	loopbackA, loopbackB := transport.NewLoopbackPair("local-a", "local-b")
	_ = loopbackB // the peer end a host-side test harness would dial into
	disp.AddTransport(loopbackA)

	if cfg.ListenAddr != "" {
		bridge := transport.NewNetBridge("netbridge")
		disp.AddTransport(bridge)
		go serveNetBridge(cfg.ListenAddr, bridge, logger)
	}

	runner := core.NewRunner(disp,
		func() { lfEmu.Tick() },
		func() {},
		cfg.LFTickInterval, cfg.HFTickInterval,
		logger,
	)
	runner.AddSource(loopbackA)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Printf("chamelgo starting: active slot %d", mgr.ActiveSlot())
	runner.Run(ctx)
	logger.Printf("chamelgo shutting down")
}

func openStore(path string) (kvstore.Store, error) {
	if path == "" {
		return kvstore.NewMemStore(), nil
	}
	return kvstore.NewFileStore(path)
}

// mifare1KImage and ntag213Image are minimal slot.TagImage factories: a
// freshly enabled slot gets a zeroed memory image of the right size
// rather than leftover data from whatever type previously occupied it.
type mifare1KImage struct{}

func (mifare1KImage) FactoryInit(buf []byte) int { return len(buf) }

type ntag213Image struct{}

func (ntag213Image) FactoryInit(buf []byte) int { return len(buf) }
