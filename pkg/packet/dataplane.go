package packet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/gopacket"

	"github.com/newtron-network/dropcheck/pkg/dropcheck"
	"github.com/newtron-network/dropcheck/pkg/util"
)

// DefaultNegativeWindow is how long AssertNotForwarded waits for stray
// copies before looking at the capture queues.
const DefaultNegativeWindow = 2 * time.Second

// maxQueued caps the frames kept per port between flushes.
const maxQueued = 4096

// portIO is a raw frame socket on one traffic generator port. Reads must
// time out periodically so capture can notice Close; Close is only called
// once the reader has stopped.
type portIO interface {
	ReadPacketData() ([]byte, gopacket.CaptureInfo, error)
	WritePacketData([]byte) error
	Close()
}

type port struct {
	name string
	io   portIO

	mu     sync.Mutex
	frames [][]byte
	stop   chan struct{}
	done   chan struct{}
}

// Dataplane injects frames on traffic generator ports and keeps every frame
// received on them so drops can be checked after the fact.
type Dataplane struct {
	ports map[string]*port
	// Window is the negative-check wait of AssertNotForwarded.
	Window time.Duration
	sleep  func(ctx context.Context, d time.Duration) error
}

// Open opens a raw socket on every named interface and starts capturing.
func Open(names []string) (*Dataplane, error) {
	return open(names, openPort, readTimedOut)
}

func open(names []string, opener func(string) (portIO, error), timedOut func(error) bool) (*Dataplane, error) {
	dp := &Dataplane{ports: make(map[string]*port), Window: DefaultNegativeWindow}
	for _, name := range names {
		if _, ok := dp.ports[name]; ok {
			continue
		}
		h, err := opener(name)
		if err != nil {
			dp.Close()
			return nil, fmt.Errorf("opening %s: %w", name, err)
		}
		p := &port{name: name, io: h, stop: make(chan struct{}), done: make(chan struct{})}
		dp.ports[name] = p
		go p.capture(timedOut)
	}
	util.Logger.Debugf("Dataplane capturing on %d ports", len(dp.ports))
	return dp, nil
}

func (p *port) capture(timedOut func(error) bool) {
	defer close(p.done)
	for {
		select {
		case <-p.stop:
			return
		default:
		}
		data, _, err := p.io.ReadPacketData()
		if err != nil {
			if timedOut(err) {
				continue
			}
			util.Logger.Debugf("Capture on %s stopped: %v", p.name, err)
			return
		}
		p.mu.Lock()
		if len(p.frames) < maxQueued {
			p.frames = append(p.frames, append([]byte(nil), data...))
		}
		p.mu.Unlock()
	}
}

func (p *port) flush() {
	p.mu.Lock()
	p.frames = nil
	p.mu.Unlock()
}

func (p *port) matches(m dropcheck.PacketMatcher) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, f := range p.frames {
		if m.Match(f) {
			n++
		}
	}
	return n
}

// Inject clears every capture queue, then sends count copies of frame on
// the named port.
func (dp *Dataplane) Inject(ctx context.Context, frame []byte, name string, count int) error {
	p, ok := dp.ports[name]
	if !ok {
		return fmt.Errorf("inject: port %s not opened", name)
	}
	for _, q := range dp.ports {
		q.flush()
	}
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.io.WritePacketData(frame); err != nil {
			return fmt.Errorf("inject on %s after %d frames: %w", name, i, err)
		}
	}
	util.Logger.Debugf("Injected %d frames of %d bytes on %s", count, len(frame), name)
	return nil
}

// AssertNotForwarded waits Window, then fails with dropcheck.ErrPacketForwarded
// if any of the named ports captured a frame matching m.
func (dp *Dataplane) AssertNotForwarded(ctx context.Context, m dropcheck.PacketMatcher, names []string) error {
	sleep := dp.sleep
	if sleep == nil {
		sleep = util.SleepContext
	}
	if err := sleep(ctx, dp.Window); err != nil {
		return err
	}

	hits := make(map[string]int)
	for _, name := range names {
		p, ok := dp.ports[name]
		if !ok {
			return fmt.Errorf("sniff: port %s not opened", name)
		}
		if n := p.matches(m); n > 0 {
			hits[name] = n
		}
	}
	if len(hits) == 0 {
		return nil
	}
	seen := make([]string, 0, len(hits))
	for name, n := range hits {
		seen = append(seen, fmt.Sprintf("%s (%d)", name, n))
	}
	sort.Strings(seen)
	return fmt.Errorf("%w: received on %v", dropcheck.ErrPacketForwarded, seen)
}

// Close stops capturing and closes every port. A port whose capture does
// not stop within a second is left open rather than closed under a reader.
func (dp *Dataplane) Close() error {
	for _, p := range dp.ports {
		close(p.stop)
	}
	var errs []error
	for name, p := range dp.ports {
		select {
		case <-p.done:
			p.io.Close()
		case <-time.After(time.Second):
			errs = append(errs, fmt.Errorf("%s: capture did not stop", name))
		}
	}
	dp.ports = nil
	return errors.Join(errs...)
}
