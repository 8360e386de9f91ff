// Package pool keeps a bounded set of idle store handles for reuse and
// closes the ones that sit unused for too long.
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Domenick1991/restobooking/internal/metrics"
	"go.uber.org/multierr"
)

var ErrPoolClosed = errors.New("pool: closed")

const closeTimeout = 5 * time.Second

// Handle is anything the pool can hand out and later close.
type Handle interface {
	Close(ctx context.Context) error
}

// Dialer opens a new handle to the store.
type Dialer[H Handle] func(ctx context.Context) (H, error)

type Options[H Handle] struct {
	// MaxIdle bounds the idle set; released handles beyond it are closed.
	MaxIdle       int
	IdleTimeout   time.Duration
	EvictInterval time.Duration
	// Alive reports whether a handle is still usable. Nil means always.
	Alive   func(H) bool
	Metrics *metrics.PoolMetrics
	Now     func() time.Time
}

// Conn wraps a handle checked out of the pool.
type Conn[H Handle] struct {
	handle   H
	lastUsed atomic.Int64
}

func (c *Conn[H]) Handle() H {
	return c.handle
}

type Pool[H Handle] struct {
	dial    Dialer[H]
	opts    Options[H]
	idle    chan *Conn[H]
	closed  atomic.Bool
	stop    chan struct{}
	done    chan struct{}
	stopped sync.Once
}

func New[H Handle](dial Dialer[H], opts Options[H]) *Pool[H] {
	if opts.MaxIdle <= 0 {
		opts.MaxIdle = 1
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	p := &Pool[H]{
		dial: dial,
		opts: opts,
		idle: make(chan *Conn[H], opts.MaxIdle),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	if opts.IdleTimeout > 0 && opts.EvictInterval > 0 {
		go p.evictLoop()
	} else {
		close(p.done)
	}
	return p
}

// Acquire returns an idle handle when one is available and dials otherwise.
func (p *Pool[H]) Acquire(ctx context.Context) (*Conn[H], error) {
	if p.closed.Load() {
		return nil, ErrPoolClosed
	}
	for {
		select {
		case c := <-p.idle:
			p.opts.Metrics.SetIdle(len(p.idle))
			if !p.alive(c) {
				p.discard(c, metrics.PoolEventDiscarded)
				continue
			}
			p.opts.Metrics.Inc(metrics.PoolEventReused)
			return c, nil
		default:
		}

		h, err := p.dial(ctx)
		if err != nil {
			return nil, fmt.Errorf("pool: dial: %w", err)
		}
		p.opts.Metrics.Inc(metrics.PoolEventDialed)
		c := &Conn[H]{handle: h}
		c.lastUsed.Store(p.opts.Now().UnixNano())
		return c, nil
	}
}

// Release hands c back to the idle set. Dead handles and handles that do not
// fit are closed. Safe to call with nil.
func (p *Pool[H]) Release(c *Conn[H]) {
	if c == nil {
		return
	}
	if p.closed.Load() || !p.alive(c) {
		p.discard(c, metrics.PoolEventDiscarded)
		return
	}
	c.lastUsed.Store(p.opts.Now().UnixNano())
	select {
	case p.idle <- c:
		p.opts.Metrics.SetIdle(len(p.idle))
	default:
		p.discard(c, metrics.PoolEventDiscarded)
		return
	}
	// Shutdown may have drained the set between the check above and the send.
	if p.closed.Load() {
		_ = p.drain()
	}
}

// Shutdown stops eviction and closes every idle handle. Handles still checked
// out are closed when they are released.
func (p *Pool[H]) Shutdown(ctx context.Context) error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	p.stopped.Do(func() { close(p.stop) })
	select {
	case <-p.done:
	case <-ctx.Done():
		return ctx.Err()
	}
	return p.drain()
}

// Idle reports how many handles are waiting in the idle set.
func (p *Pool[H]) Idle() int {
	return len(p.idle)
}

func (p *Pool[H]) evictLoop() {
	defer close(p.done)
	ticker := time.NewTicker(p.opts.EvictInterval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			p.evict()
		}
	}
}

// evict drains the idle set once, closing stale handles and putting the rest back.
func (p *Pool[H]) evict() {
	now := p.opts.Now().UnixNano()
	limit := p.opts.IdleTimeout.Nanoseconds()
	n := len(p.idle)
	for i := 0; i < n; i++ {
		var c *Conn[H]
		select {
		case c = <-p.idle:
		default:
			p.opts.Metrics.SetIdle(len(p.idle))
			return
		}
		if now-c.lastUsed.Load() >= limit {
			p.discard(c, metrics.PoolEventEvicted)
			continue
		}
		select {
		case p.idle <- c:
		default:
			p.discard(c, metrics.PoolEventDiscarded)
		}
	}
	p.opts.Metrics.SetIdle(len(p.idle))
}

func (p *Pool[H]) drain() error {
	var errs error
	for {
		select {
		case c := <-p.idle:
			errs = multierr.Append(errs, p.closeHandle(c))
		default:
			p.opts.Metrics.SetIdle(0)
			return errs
		}
	}
}

func (p *Pool[H]) alive(c *Conn[H]) bool {
	if p.opts.Alive == nil {
		return true
	}
	return p.opts.Alive(c.handle)
}

func (p *Pool[H]) discard(c *Conn[H], event string) {
	p.opts.Metrics.Inc(event)
	_ = p.closeHandle(c)
}

func (p *Pool[H]) closeHandle(c *Conn[H]) error {
	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	return c.handle.Close(ctx)
}
