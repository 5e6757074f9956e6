package signaling

import (
	"context"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/pion/transport/v3/test"
)

// NetworkCondition configures signaling link simulation. Use it to test
// call behavior under adverse network conditions.
type NetworkCondition struct {
	// DropRate is the probability of dropping a frame (0.0 - 1.0).
	DropRate float64

	// DelayMin is the minimum delay to add to each frame.
	DelayMin time.Duration

	// DelayMax is the maximum delay to add to each frame.
	// Actual delay is uniformly distributed between DelayMin and DelayMax.
	DelayMax time.Duration

	// DuplicateRate is the probability of delivering a frame twice
	// (0.0 - 1.0).
	DuplicateRate float64
}

// PipeConfig configures a Pipe.
type PipeConfig struct {
	// AutoProcess enables automatic frame delivery in a background
	// goroutine. Default: true
	AutoProcess bool

	// ProcessInterval is how often the auto-processor checks for frames.
	// Default: 1ms
	ProcessInterval time.Duration
}

// DefaultPipeConfig returns the default pipe configuration.
func DefaultPipeConfig() PipeConfig {
	return PipeConfig{
		AutoProcess:     true,
		ProcessInterval: 1 * time.Millisecond,
	}
}

// Pipe provides bidirectional in-memory signaling between two endpoints.
// Frame boundaries are preserved: each Send arrives as one Handler call.
//
// By default, Pipe automatically delivers frames in a background goroutine.
// Use SetAutoProcess(false) or NewPipeWithConfig for manual control; manual
// ticking gives tests deterministic delivery orderings.
type Pipe struct {
	bridge *test.Bridge
	ends   [2]*PipeEnd

	mu              sync.RWMutex
	condition       NetworkCondition
	closed          bool
	rngMu           sync.Mutex
	rng             *rand.Rand
	autoProcess     bool
	processInterval time.Duration
	stopCh          chan struct{}
	wg              sync.WaitGroup
}

// NewPipe creates a new bidirectional pipe with auto-processing enabled.
func NewPipe() *Pipe {
	return NewPipeWithConfig(DefaultPipeConfig())
}

// NewPipeWithConfig creates a new pipe with the given configuration.
func NewPipeWithConfig(config PipeConfig) *Pipe {
	p := &Pipe{
		bridge:          test.NewBridge(),
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		autoProcess:     config.AutoProcess,
		processInterval: config.ProcessInterval,
		stopCh:          make(chan struct{}),
	}

	if config.ProcessInterval == 0 {
		p.processInterval = 1 * time.Millisecond
	}

	p.ends[0] = newPipeEnd(p, p.bridge.GetConn0())
	p.ends[1] = newPipeEnd(p, p.bridge.GetConn1())

	if p.autoProcess {
		p.startAutoProcess()
	}

	return p
}

// End0 returns the transport endpoint for peer 0.
func (p *Pipe) End0() *PipeEnd { return p.ends[0] }

// End1 returns the transport endpoint for peer 1.
func (p *Pipe) End1() *PipeEnd { return p.ends[1] }

func (p *Pipe) startAutoProcess() {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.processInterval)
		defer ticker.Stop()

		for {
			select {
			case <-p.stopCh:
				return
			case <-ticker.C:
				p.bridge.Tick()
			}
		}
	}()
}

// SetAutoProcess enables or disables automatic frame delivery.
// When disabled, you must call Tick() or Process() manually.
func (p *Pipe) SetAutoProcess(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed || p.autoProcess == enabled {
		return
	}

	p.autoProcess = enabled

	if enabled {
		p.stopCh = make(chan struct{})
		p.startAutoProcess()
	} else {
		close(p.stopCh)
	}
}

// AutoProcess returns whether auto-processing is enabled.
func (p *Pipe) AutoProcess() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.autoProcess
}

// SetCondition configures network condition simulation.
// The conditions apply to frames in both directions.
func (p *Pipe) SetCondition(cond NetworkCondition) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.condition = cond
}

// Condition returns the current network condition configuration.
func (p *Pipe) Condition() NetworkCondition {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.condition
}

// roll draws one sample. Ends send concurrently and rand.Rand is not
// goroutine-safe, so sampling is serialized.
func (p *Pipe) roll() float64 {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return p.rng.Float64()
}

func (p *Pipe) jitter(span time.Duration) time.Duration {
	p.rngMu.Lock()
	defer p.rngMu.Unlock()
	return time.Duration(p.rng.Int63n(int64(span)))
}

// Tick delivers one queued frame in each direction (if available).
// Returns the number of frames delivered (0, 1, or 2).
func (p *Pipe) Tick() int {
	return p.bridge.Tick()
}

// Process delivers all queued frames and returns how many were delivered.
func (p *Pipe) Process() int {
	count := 0
	for {
		n := p.Tick()
		if n == 0 {
			break
		}
		count += n
	}
	return count
}

// Close closes both endpoints and stops auto-processing. Frames still
// queued inside the pipe are discarded.
func (p *Pipe) Close() error {
	p.mu.Lock()

	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true

	if p.autoProcess {
		close(p.stopCh)
	}
	p.mu.Unlock()

	err0 := p.ends[0].Close()
	err1 := p.ends[1].Close()

	// Wait for the processor and both readers outside the lock.
	p.wg.Wait()

	if err0 != nil {
		return err0
	}
	return err1
}

// PipeEnd is one endpoint of a Pipe. It implements Transport; the to
// argument of Send is ignored since the pipe has exactly one peer.
type PipeEnd struct {
	pipe *Pipe
	conn net.Conn

	mu      sync.Mutex
	handler Handler
	closed  bool
}

func newPipeEnd(p *Pipe, conn net.Conn) *PipeEnd {
	e := &PipeEnd{pipe: p, conn: conn}
	p.wg.Add(1)
	go e.readLoop()
	return e
}

func (e *PipeEnd) readLoop() {
	defer e.pipe.wg.Done()

	buf := make([]byte, 64*1024)
	for {
		n, err := e.conn.Read(buf)
		if err != nil {
			return
		}

		frame := make([]byte, n)
		copy(frame, buf[:n])

		e.mu.Lock()
		h := e.handler
		e.mu.Unlock()

		if h != nil {
			h(frame)
		}
	}
}

// Send queues one frame for the peer endpoint, subject to the pipe's
// network conditions.
func (e *PipeEnd) Send(ctx context.Context, to string, data []byte) error {
	_ = to

	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	closed := e.closed
	e.mu.Unlock()
	if closed {
		return ErrTransportClosed
	}

	e.pipe.mu.RLock()
	cond := e.pipe.condition
	e.pipe.mu.RUnlock()

	if cond.DropRate > 0 && e.pipe.roll() < cond.DropRate {
		return nil // Silently drop
	}

	if cond.DelayMax > 0 {
		delay := cond.DelayMin
		if cond.DelayMax > cond.DelayMin {
			delay += e.pipe.jitter(cond.DelayMax - cond.DelayMin)
		}
		if delay > 0 {
			time.Sleep(delay)
		}
	}

	if cond.DuplicateRate > 0 && e.pipe.roll() < cond.DuplicateRate {
		if _, err := e.conn.Write(data); err != nil {
			return err
		}
	}

	_, err := e.conn.Write(data)
	return err
}

// SetHandler registers the receive callback for this endpoint.
func (e *PipeEnd) SetHandler(h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handler = h
}

// Close closes this endpoint. The peer's reads fail afterwards.
func (e *PipeEnd) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()

	return e.conn.Close()
}

// Verify PipeEnd implements Transport.
var _ Transport = (*PipeEnd)(nil)
