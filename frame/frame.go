// Package frame implements FrameCodec: length-prefixed framing over a
// stream.Stream, integrating a pluggable codec.Codec[T] for the payload.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/alephtx/shmipc/codec"
	"github.com/alephtx/shmipc/ring"
	"github.com/alephtx/shmipc/stream"
)

// ErrNoSpace is returned by WriteFrame when the stream could not fit the
// frame within its write deadline.
var ErrNoSpace = errors.New("frame: no space available within write timeout")

// ErrSerialization marks a codec encode/decode failure: recoverable, since
// one bad message should not kill the connection.
var ErrSerialization = errors.New("frame: serialization failure")

const lengthPrefixSize = 4

// Codec frames typed messages of type T over a byte stream using a
// 4-byte big-endian length prefix ahead of the encoded payload.
type Codec[T any] struct {
	s *stream.Stream
	c codec.Codec[T]
}

// New binds a frame codec to a byte stream and a payload codec.
func New[T any](s *stream.Stream, c codec.Codec[T]) *Codec[T] {
	return &Codec[T]{s: s, c: c}
}

// Close closes the underlying stream (and its ring).
func (fc *Codec[T]) Close() error { return fc.s.Close() }

// WriteFrame encodes msg, prepends its length, and writes length then
// payload as two stream segments.
func (fc *Codec[T]) WriteFrame(msg T) error {
	payload, err := fc.c.Encode(msg)
	if err != nil {
		return fmt.Errorf("%w: encode: %v", ErrSerialization, err)
	}

	var lenBuf [lengthPrefixSize]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))

	if _, err := fc.s.Write(lenBuf[:]); err != nil {
		return wrapWriteErr(err)
	}
	if len(payload) > 0 {
		if _, err := fc.s.Write(payload); err != nil {
			return wrapWriteErr(err)
		}
	}
	return nil
}

func wrapWriteErr(err error) error {
	if errors.Is(err, ring.ErrTimeout) {
		return ErrNoSpace
	}
	return err
}

// ReadFrame reads one frame. It returns ok=false, err=nil iff the stream
// closed before any bytes of a new frame arrived. A zero-length frame is
// a legal no-op: it is silently skipped and the read continues.
func (fc *Codec[T]) ReadFrame() (msg T, ok bool, err error) {
	for {
		lenBuf, closed, rerr := fc.readExact(lengthPrefixSize)
		if rerr != nil {
			return msg, false, rerr
		}
		if closed {
			if len(lenBuf) > 0 {
				return msg, false, fmt.Errorf("frame: stream closed mid-frame")
			}
			return msg, false, nil
		}

		length := binary.BigEndian.Uint32(lenBuf)
		if length == 0 {
			continue
		}

		payload, closed, rerr := fc.readExact(int(length))
		if rerr != nil {
			return msg, false, rerr
		}
		if closed {
			return msg, false, fmt.Errorf("frame: stream closed mid-frame")
		}

		v, derr := fc.c.Decode(payload)
		if derr != nil {
			return msg, false, fmt.Errorf("%w: decode: %v", ErrSerialization, derr)
		}
		return v, true, nil
	}
}

// readExact accumulates exactly n bytes from the stream, looping through
// the legal "no data yet" (0, nil) outcome. closed reports whether the
// stream reported ErrClosed before n bytes were collected.
func (fc *Codec[T]) readExact(n int) (buf []byte, closed bool, err error) {
	buf = make([]byte, 0, n)
	tmp := make([]byte, n)
	for len(buf) < n {
		read, rerr := fc.s.Read(tmp[:n-len(buf)])
		if rerr != nil {
			if errors.Is(rerr, ring.ErrClosed) {
				return buf, true, nil
			}
			return buf, false, rerr
		}
		buf = append(buf, tmp[:read]...)
	}
	return buf, false, nil
}
