package service

import (
	"context"
	"sync"
	"time"

	"github.com/itsobito471-bot/thebottlestories/internal/domain"
)

// snapshot is the state handed to a save. Both lists are always current;
// the dirty flags say which of them changed since the last save.
type snapshot struct {
	cart        domain.Cart
	direct      domain.Cart
	cartDirty   bool
	directDirty bool
	// cartCleared asks for the device cart key to go even when the cart is
	// saved to the server.
	cartCleared bool
}

// supersede folds an older pending snapshot into next.
func (next snapshot) supersede(older snapshot) snapshot {
	next.cartDirty = next.cartDirty || older.cartDirty
	next.directDirty = next.directDirty || older.directDirty
	next.cartCleared = next.cartCleared || older.cartCleared
	return next
}

// autosaver runs saves on a single worker goroutine. At most one snapshot
// waits behind the save in flight; newer snapshots replace it.
type autosaver struct {
	mu         sync.Mutex
	pending    *snapshot
	idle       chan struct{}
	idleClosed bool
	stopped    bool

	wake     chan struct{}
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	debounce time.Duration
	save     func(snapshot)
}

func newAutosaver(debounce time.Duration, save func(snapshot)) *autosaver {
	idle := make(chan struct{})
	close(idle)
	a := &autosaver{
		idle:       idle,
		idleClosed: true,
		wake:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		debounce:   debounce,
		save:       save,
	}
	go a.run()
	return a
}

// schedule queues s, replacing any snapshot not yet picked up. It returns
// false once the saver has been closed.
func (a *autosaver) schedule(s snapshot) bool {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return false
	}
	if a.pending != nil {
		s = s.supersede(*a.pending)
	}
	a.pending = &s
	if a.idleClosed {
		a.idle = make(chan struct{})
		a.idleClosed = false
	}
	a.mu.Unlock()

	select {
	case a.wake <- struct{}{}:
	default:
	}
	return true
}

func (a *autosaver) run() {
	defer close(a.done)
	for {
		select {
		case <-a.wake:
		case <-a.stop:
			a.drain()
			return
		}

		if a.debounce > 0 {
			t := time.NewTimer(a.debounce)
			select {
			case <-t.C:
			case <-a.stop:
				t.Stop()
				a.drain()
				return
			}
		}
		a.drain()
	}
}

// drain saves pending snapshots until none is left, then marks the saver
// idle.
func (a *autosaver) drain() {
	for {
		a.mu.Lock()
		next := a.pending
		a.pending = nil
		if next == nil {
			if !a.idleClosed {
				close(a.idle)
				a.idleClosed = true
			}
			a.mu.Unlock()
			return
		}
		a.mu.Unlock()

		a.save(*next)
	}
}

// flush waits until everything scheduled so far has been saved.
func (a *autosaver) flush(ctx context.Context) error {
	a.mu.Lock()
	idle := a.idle
	a.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// close rejects further snapshots, saves the pending one and stops the
// worker.
func (a *autosaver) close(ctx context.Context) error {
	a.mu.Lock()
	a.stopped = true
	a.mu.Unlock()
	a.stopOnce.Do(func() { close(a.stop) })

	select {
	case <-a.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
