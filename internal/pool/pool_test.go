package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHandle struct {
	id     int64
	closed atomic.Bool
	dead   atomic.Bool
}

func (h *fakeHandle) Close(context.Context) error {
	h.closed.Store(true)
	return nil
}

type fakeDialer struct {
	mu      sync.Mutex
	dialed  []*fakeHandle
	counter atomic.Int64
	err     error
}

func (d *fakeDialer) Dial(context.Context) (*fakeHandle, error) {
	if d.err != nil {
		return nil, d.err
	}
	h := &fakeHandle{id: d.counter.Add(1)}
	d.mu.Lock()
	d.dialed = append(d.dialed, h)
	d.mu.Unlock()
	return h, nil
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dialed)
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestPool_ReusesReleasedHandle(t *testing.T) {
	dialer := &fakeDialer{}
	p := New(dialer.Dial, Options[*fakeHandle]{MaxIdle: 2})
	defer p.Shutdown(context.Background())

	first, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(first)

	second, err := p.Acquire(context.Background())
	require.NoError(t, err)

	assert.Same(t, first.Handle(), second.Handle())
	assert.Equal(t, 1, dialer.count())
}

func TestPool_DiscardsWhenIdleSetFull(t *testing.T) {
	dialer := &fakeDialer{}
	p := New(dialer.Dial, Options[*fakeHandle]{MaxIdle: 1})
	defer p.Shutdown(context.Background())

	a, err := p.Acquire(context.Background())
	require.NoError(t, err)
	b, err := p.Acquire(context.Background())
	require.NoError(t, err)

	p.Release(a)
	p.Release(b)

	assert.Equal(t, 1, p.Idle())
	assert.False(t, a.Handle().closed.Load())
	assert.True(t, b.Handle().closed.Load())
}

func TestPool_DropsDeadHandles(t *testing.T) {
	dialer := &fakeDialer{}
	p := New(dialer.Dial, Options[*fakeHandle]{
		MaxIdle: 2,
		Alive:   func(h *fakeHandle) bool { return !h.dead.Load() },
	})
	defer p.Shutdown(context.Background())

	c, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(c)
	c.Handle().dead.Store(true)

	next, err := p.Acquire(context.Background())
	require.NoError(t, err)

	assert.NotSame(t, c.Handle(), next.Handle())
	assert.True(t, c.Handle().closed.Load())
	assert.Equal(t, 2, dialer.count())
}

func TestPool_AcquirePropagatesDialError(t *testing.T) {
	dialErr := errors.New("connection refused")
	p := New((&fakeDialer{err: dialErr}).Dial, Options[*fakeHandle]{MaxIdle: 1})
	defer p.Shutdown(context.Background())

	_, err := p.Acquire(context.Background())
	assert.ErrorIs(t, err, dialErr)
}

func TestPool_EvictClosesStaleHandles(t *testing.T) {
	clock := &manualClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	dialer := &fakeDialer{}
	p := New(dialer.Dial, Options[*fakeHandle]{
		MaxIdle:     4,
		IdleTimeout: time.Minute,
		Now:         clock.Now,
	})
	defer p.Shutdown(context.Background())

	stale, _ := p.Acquire(context.Background())
	fresh, _ := p.Acquire(context.Background())
	p.Release(stale)
	clock.Advance(50 * time.Second)
	p.Release(fresh)
	clock.Advance(20 * time.Second)

	p.evict()

	assert.True(t, stale.Handle().closed.Load())
	assert.False(t, fresh.Handle().closed.Load())
	assert.Equal(t, 1, p.Idle())
}

func TestPool_BackgroundEviction(t *testing.T) {
	dialer := &fakeDialer{}
	p := New(dialer.Dial, Options[*fakeHandle]{
		MaxIdle:       2,
		IdleTimeout:   10 * time.Millisecond,
		EvictInterval: 5 * time.Millisecond,
	})
	defer p.Shutdown(context.Background())

	c, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(c)

	assert.Eventually(t, func() bool {
		return c.Handle().closed.Load() && p.Idle() == 0
	}, time.Second, 5*time.Millisecond)
}

func TestPool_ShutdownClosesIdleAndRejectsAcquire(t *testing.T) {
	dialer := &fakeDialer{}
	p := New(dialer.Dial, Options[*fakeHandle]{
		MaxIdle:       2,
		IdleTimeout:   time.Hour,
		EvictInterval: time.Hour,
	})

	idle, _ := p.Acquire(context.Background())
	busy, _ := p.Acquire(context.Background())
	p.Release(idle)

	require.NoError(t, p.Shutdown(context.Background()))
	assert.True(t, idle.Handle().closed.Load())

	_, err := p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)

	p.Release(busy)
	assert.True(t, busy.Handle().closed.Load())
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestPool_ConcurrentAcquireRelease(t *testing.T) {
	dialer := &fakeDialer{}
	p := New(dialer.Dial, Options[*fakeHandle]{
		MaxIdle:       4,
		IdleTimeout:   time.Millisecond,
		EvictInterval: time.Millisecond,
	})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c, err := p.Acquire(context.Background())
				if err != nil {
					t.Error(err)
					return
				}
				p.Release(c)
			}
		}()
	}
	wg.Wait()

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Equal(t, 0, p.Idle())
	dialer.mu.Lock()
	defer dialer.mu.Unlock()
	for _, h := range dialer.dialed {
		assert.True(t, h.closed.Load(), "handle %d left open", h.id)
	}
}
