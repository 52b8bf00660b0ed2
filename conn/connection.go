// Package conn implements Connection[R, W]: a full-duplex wrapper over two
// frame.Codec directions, with a background read pump, a background write
// pump backed by an unbounded write queue, and multicast event hooks.
package conn

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alephtx/shmipc/frame"
)

// State is one stage in the Connection lifecycle: New -> Open -> Closing -> Closed.
type State int32

const (
	StateNew State = iota
	StateOpen
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Connection owns one read-direction frame.Codec[R] and one write-direction
// frame.Codec[W], plus the two background pumps and write queue that drive
// them. Closing the connection terminates both pumps and closes both
// underlying streams.
type Connection[R, W any] struct {
	reader *frame.Codec[R]
	writer *frame.Codec[W]
	queue  *queue[W]

	state atomic.Int32
	wg    sync.WaitGroup

	openOnce  sync.Once
	closeOnce sync.Once
	discOnce  sync.Once

	openCh   chan struct{}
	closedCh chan struct{}

	mu           sync.Mutex
	onMessage    []func(*Connection[R, W], R)
	onDisconnect []func(*Connection[R, W])
	onError      []func(*Connection[R, W], error)
}

// New builds a Connection around an already-constructed read and write
// direction. It does not start the pumps; call Open for that.
func New[R, W any](reader *frame.Codec[R], writer *frame.Codec[W]) *Connection[R, W] {
	c := &Connection[R, W]{
		reader:   reader,
		writer:   writer,
		queue:    newQueue[W](),
		openCh:   make(chan struct{}),
		closedCh: make(chan struct{}),
	}
	c.state.Store(int32(StateNew))
	return c
}

// OnMessage registers a listener fired, in arrival order, for every frame
// the read pump decodes.
func (c *Connection[R, W]) OnMessage(fn func(*Connection[R, W], R)) {
	c.mu.Lock()
	c.onMessage = append(c.onMessage, fn)
	c.mu.Unlock()
}

// OnDisconnect registers a listener fired exactly once, after the last
// on_message delivery, when the connection reaches StateClosed.
func (c *Connection[R, W]) OnDisconnect(fn func(*Connection[R, W])) {
	c.mu.Lock()
	c.onDisconnect = append(c.onDisconnect, fn)
	c.mu.Unlock()
}

// OnError registers a listener fired for every non-fatal error the pumps
// swallow (serialization failures, write timeouts) plus the fatal error
// that triggers a close, if any.
func (c *Connection[R, W]) OnError(fn func(*Connection[R, W], error)) {
	c.mu.Lock()
	c.onError = append(c.onError, fn)
	c.mu.Unlock()
}

// Open starts the read and write pumps. Calling Open more than once has no
// additional effect.
func (c *Connection[R, W]) Open() {
	c.openOnce.Do(func() {
		c.state.Store(int32(StateOpen))
		close(c.openCh)

		c.wg.Add(2)
		go c.readPump()
		go c.writePump()

		go func() {
			c.wg.Wait()
			c.state.Store(int32(StateClosed))
			close(c.closedCh)
			c.fireDisconnect()
		}()
	})
}

// PushMessage enqueues w for the write pump. It never blocks for I/O and
// is a silent no-op once the connection is closing or closed.
func (c *Connection[R, W]) PushMessage(w W) {
	c.queue.push(w)
}

// IsConnected reports whether the connection is in StateOpen.
func (c *Connection[R, W]) IsConnected() bool {
	return State(c.state.Load()) == StateOpen
}

// State returns the current lifecycle state.
func (c *Connection[R, W]) State() State {
	return State(c.state.Load())
}

// WaitOpen blocks until Open has been called or timeout elapses.
func (c *Connection[R, W]) WaitOpen(timeout time.Duration) bool {
	select {
	case <-c.openCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// WaitClosed blocks until both pumps have exited or timeout elapses.
func (c *Connection[R, W]) WaitClosed(timeout time.Duration) bool {
	select {
	case <-c.closedCh:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Done returns a channel closed once both pumps have exited, for use in a
// select statement alongside other events (teacher analogue: smux's
// Session.CloseChan).
func (c *Connection[R, W]) Done() <-chan struct{} {
	return c.closedCh
}

// Close is idempotent: it moves the connection to StateClosing, wakes the
// write pump, and closes both underlying streams so the read pump's
// blocking ReadFrame call unblocks with ErrClosed.
func (c *Connection[R, W]) Close() {
	c.closeOnce.Do(func() {
		c.state.Store(int32(StateClosing))
		c.queue.closeQueue()
		c.reader.Close()
		c.writer.Close()
	})
}

func (c *Connection[R, W]) readPump() {
	defer c.wg.Done()
	for {
		msg, ok, err := c.reader.ReadFrame()
		if err != nil {
			if isFatal(err) {
				c.fireError(err)
				c.Close()
				return
			}
			c.fireError(err)
			continue
		}
		if !ok {
			c.Close()
			return
		}
		c.fireMessage(msg)
	}
}

func (c *Connection[R, W]) writePump() {
	defer c.wg.Done()
	for {
		w, ok := c.queue.pop()
		if !ok {
			return
		}
		if err := c.writer.WriteFrame(w); err != nil {
			if isFatal(err) {
				c.fireError(err)
				c.Close()
				return
			}
			c.fireError(err)
		}
	}
}

// isFatal reports whether err should terminate the connection, as opposed
// to being swallowed and routed to on_error while the pump continues.
// Serialization failures (bad payload) and no-space write failures are
// recoverable; a closed ring or any other unexpected I/O error is fatal.
func isFatal(err error) bool {
	if errors.Is(err, frame.ErrSerialization) || errors.Is(err, frame.ErrNoSpace) {
		return false
	}
	return true
}

func (c *Connection[R, W]) fireMessage(msg R) {
	c.mu.Lock()
	handlers := append([]func(*Connection[R, W], R){}, c.onMessage...)
	c.mu.Unlock()
	for _, h := range handlers {
		h := h
		c.safeCall(func() { h(c, msg) }, func(r any) {
			c.fireError(fmt.Errorf("conn: on_message listener panic: %v", r))
		})
	}
}

func (c *Connection[R, W]) fireError(err error) {
	c.mu.Lock()
	handlers := append([]func(*Connection[R, W], error){}, c.onError...)
	c.mu.Unlock()
	for _, h := range handlers {
		h := h
		c.safeCall(func() { h(c, err) }, nil)
	}
}

func (c *Connection[R, W]) fireDisconnect() {
	c.discOnce.Do(func() {
		c.mu.Lock()
		handlers := append([]func(*Connection[R, W]){}, c.onDisconnect...)
		c.mu.Unlock()
		for _, h := range handlers {
			h := h
			c.safeCall(func() { h(c) }, nil)
		}
	})
}

// safeCall runs fn, recovering a panic so one misbehaving listener cannot
// kill a pump goroutine, matching the source's exception-swallowing pumps.
// onPanic, if non-nil, is called with the recovered value so it can be
// routed to on_error; it is itself panic-safe by construction (fireError
// wraps each handler in its own safeCall with a nil onPanic).
func (c *Connection[R, W]) safeCall(fn func(), onPanic func(any)) {
	defer func() {
		if r := recover(); r != nil && onPanic != nil {
			onPanic(r)
		}
	}()
	fn()
}
