// Package stream implements MessageStream: a byte-stream facade over a
// ring.Buffer that enforces per-direction mutual exclusion via spin and
// exposes plain Read/Write with configurable timeouts.
package stream

import (
	"time"

	"github.com/alephtx/shmipc/ring"
	"github.com/alephtx/shmipc/spin"
)

const (
	DefaultReadTimeout        = time.Second
	DefaultWriteTimeout       = time.Second
	DefaultSpinAcquireTimeout = 30 * time.Second
)

// Stream adapts one ring.Buffer into a byte stream with read/write
// timeouts and named-spin exclusion per direction.
type Stream struct {
	buf  *ring.Buffer
	name string

	readTimeout  time.Duration
	writeTimeout time.Duration
	spinTimeout  time.Duration

	scratch  []byte
	leftover []byte // bytes read from the ring but not yet delivered to the caller
}

// Option configures a Stream at construction time.
type Option func(*Stream)

func WithReadTimeout(d time.Duration) Option  { return func(s *Stream) { s.readTimeout = d } }
func WithWriteTimeout(d time.Duration) Option { return func(s *Stream) { s.writeTimeout = d } }
func WithSpinTimeout(d time.Duration) Option  { return func(s *Stream) { s.spinTimeout = d } }

// New wraps buf as a byte stream. name identifies the stream's two spins,
// "<name>_read" and "<name>_write", independent from any other stream's.
// Construction never blocks.
func New(buf *ring.Buffer, name string, opts ...Option) *Stream {
	s := &Stream{
		buf:          buf,
		name:         name,
		readTimeout:  DefaultReadTimeout,
		writeTimeout: DefaultWriteTimeout,
		spinTimeout:  DefaultSpinAcquireTimeout,
		scratch:      make([]byte, buf.PayloadSize()),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Stream) readSpinName() string  { return s.name + "_read" }
func (s *Stream) writeSpinName() string { return s.name + "_write" }

// Write acquires the write spin, then loops calling Buffer.Write until all
// of p has been written, the ring reports closed, or the configured write
// timeout elapses overall.
func (s *Stream) Write(p []byte) (int, error) {
	if !spin.Acquire(s.writeSpinName(), s.spinTimeout) {
		return 0, ring.ErrTimeout
	}
	defer spin.Release(s.writeSpinName())

	deadline := time.Now().Add(s.writeTimeout)
	written := 0
	for written < len(p) {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return written, ring.ErrTimeout
		}
		n, err := s.buf.Write(p[written:], remaining)
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

// Read acquires the read spin, then serves any leftover bytes from a
// previously over-read node before pulling a fresh node from the ring.
// A ring-level timeout with no data available is not an error at this
// layer: it is reported as (0, nil), and the caller (typically
// frame.Codec) is expected to loop.
func (s *Stream) Read(dst []byte) (int, error) {
	if !spin.Acquire(s.readSpinName(), s.spinTimeout) {
		return 0, ring.ErrTimeout
	}
	defer spin.Release(s.readSpinName())

	if len(s.leftover) > 0 {
		n := copy(dst, s.leftover)
		s.leftover = s.leftover[n:]
		return n, nil
	}

	n, err := s.buf.Read(s.scratch, s.readTimeout)
	if err == ring.ErrTimeout {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	copied := copy(dst, s.scratch[:n])
	if copied < n {
		leftover := make([]byte, n-copied)
		copy(leftover, s.scratch[copied:n])
		s.leftover = leftover
	}
	return copied, nil
}

// Flush is a no-op: the ring advances cursors on every node write.
func (s *Stream) Flush() error { return nil }

// Close closes the underlying ring.
func (s *Stream) Close() error { return s.buf.Close() }
