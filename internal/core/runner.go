package core

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/chameleonultra/chamelgo/internal/frame"
)

// ByteSource is anything a Runner can drain raw bytes from — satisfied
// structurally by internal/transport.Transport's Recv() method, named
// here rather than imported to keep this package (imported by nearly
// every other package for CoreError/CRC16A) free of a dependency back
// onto the higher-level packages it would otherwise cycle with.
type ByteSource interface {
	Name() string
	Recv() <-chan []byte
}

// Dispatcher is the command-dispatch capability a Runner drives once a
// complete frame is assembled — satisfied structurally by
// internal/dispatch.Dispatcher.HandleFrame, named here for the same
// cycle-avoidance reason as ByteSource.
type Dispatcher interface {
	HandleFrame(f *frame.Frame)
}

// Runner is the single-goroutine main loop spec.md §5 describes: one
// goroutine drains an internal event channel fed by (a) one byte-feeder
// goroutine per registered ByteSource, (b) a simulated LF field-sense
// ticker, (c) a simulated HF/NFCT field-sense ticker — mirroring the
// teacher's NFCReader worker/channel pattern, generalized from one
// device-polling goroutine to N transport feeders plus two field-sense
// tickers. Each event is a closure executed while holding mu, matching
// spec.md §5's "interrupt context" critical sections: short, never
// blocking.
type Runner struct {
	mu sync.Mutex

	dispatcher Dispatcher
	sources    []ByteSource
	parsers    map[ByteSource]*frame.Parser

	lfTick     func()
	hfTick     func()
	lfInterval time.Duration
	hfInterval time.Duration

	events chan func()
	log    *log.Logger
}

// NewRunner returns a Runner driving dispatcher. lfTick/hfTick may be nil
// to disable that field-sense source (e.g. in tests exercising only the
// transport path).
func NewRunner(dispatcher Dispatcher, lfTick, hfTick func(), lfInterval, hfInterval time.Duration, logger *log.Logger) *Runner {
	if logger == nil {
		logger = log.New(log.Writer(), "[core] ", log.LstdFlags)
	}
	return &Runner{
		dispatcher: dispatcher,
		parsers:    make(map[ByteSource]*frame.Parser),
		lfTick:     lfTick,
		hfTick:     hfTick,
		lfInterval: lfInterval,
		hfInterval: hfInterval,
		events:     make(chan func(), 64),
		log:        logger,
	}
}

// AddSource registers a ByteSource to be fed into the frame parser once
// Run starts; it must be called before Run.
func (r *Runner) AddSource(s ByteSource) {
	r.sources = append(r.sources, s)
	r.parsers[s] = frame.NewParser()
}

// Run starts one feeder goroutine per registered source plus the LF/HF
// tickers (if configured), then services the shared event channel until
// ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, s := range r.sources {
		wg.Add(1)
		go func(s ByteSource) {
			defer wg.Done()
			r.feed(ctx, s)
		}(s)
	}
	if r.lfTick != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.runTicker(ctx, r.lfInterval, r.lfTick)
		}()
	}
	if r.hfTick != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.runTicker(ctx, r.hfInterval, r.hfTick)
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	for {
		select {
		case fn := <-r.events:
			r.mu.Lock()
			fn()
			r.mu.Unlock()
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) feed(ctx context.Context, s ByteSource) {
	p := r.parsers[s]
	for {
		select {
		case b, ok := <-s.Recv():
			if !ok {
				return
			}
			r.feedBytes(ctx, s, p, b)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Runner) feedBytes(ctx context.Context, s ByteSource, p *frame.Parser, b []byte) {
	for _, by := range b {
		f, err := p.Feed(by)
		if err != nil {
			r.log.Printf("%s: frame parse error: %v", s.Name(), err)
			continue
		}
		if f == nil {
			continue
		}
		ff := f
		select {
		case r.events <- func() {
			r.dispatcher.HandleFrame(ff)
			p.Done()
		}:
		case <-ctx.Done():
			return
		}
	}
}

// jitterWarnThreshold is how far a tick may drift from its nominal
// interval (queue backpressure, GC pause) before runTicker logs it —
// the software analogue of the LF modulation timer's hardware counter
// falling behind.
const jitterWarnThreshold = 50 * time.Millisecond

func (r *Runner) runTicker(ctx context.Context, interval time.Duration, fn func()) {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	last := MonotonicNow()
	for {
		select {
		case <-t.C:
			now := MonotonicNow()
			if drift := now - last - interval; drift > jitterWarnThreshold {
				r.log.Printf("field-sense tick drifted %v past its %v interval", drift, interval)
			}
			last = now
			select {
			case r.events <- fn:
			case <-ctx.Done():
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
