// Package rendezvous implements the handshake a server listening on a
// well-known buffer name uses to hand each new client a unique
// per-connection ring-pair name over a short-lived handshake buffer;
// both sides then open that ring pair and build a conn.Connection.
//
// Two rings back each Connection: "<name>.c2s" for client-to-server
// traffic, "<name>.s2c" for the reverse direction. A Server's R is what
// it receives (client requests); its W is what it sends (server
// responses). A Client inverts this: its R is what it receives (server
// responses), its W is what it sends (client requests).
package rendezvous

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/alephtx/shmipc/codec"
	"github.com/alephtx/shmipc/frame"
	"github.com/alephtx/shmipc/ring"
	"github.com/alephtx/shmipc/stream"
)

const (
	handshakeNodeCount = 3
	handshakeNodeSize  = 4096
)

// Options configures the ring and stream dimensions used for both the
// handshake buffer and every per-connection ring pair.
type Options struct {
	NodeCount    uint32
	NodeSize     uint32
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	SpinTimeout  time.Duration
}

// DefaultOptions mirrors shmipccfg.Defaults's ring and timeout values.
func DefaultOptions() Options {
	return Options{
		NodeCount:    ring.DefaultNodeCount,
		NodeSize:     ring.DefaultNodeSize,
		ReadTimeout:  stream.DefaultReadTimeout,
		WriteTimeout: stream.DefaultWriteTimeout,
		SpinTimeout:  stream.DefaultSpinAcquireTimeout,
	}
}

func (o Options) streamOpts() []stream.Option {
	return []stream.Option{
		stream.WithReadTimeout(o.ReadTimeout),
		stream.WithWriteTimeout(o.WriteTimeout),
		stream.WithSpinTimeout(o.SpinTimeout),
	}
}

var handshakeSeq atomic.Uint64

func nextConnName(listenName string) string {
	id := handshakeSeq.Add(1)
	return fmt.Sprintf("%s.conn%d.%d", listenName, time.Now().UnixNano(), id)
}

func openNameCodec(buf *ring.Buffer, spinName string, opts Options) *frame.Codec[string] {
	s := stream.New(buf, spinName, opts.streamOpts()...)
	return frame.New[string](s, codec.String{})
}

func openDirection[T any](name string, opts Options, c codec.Codec[T]) (*frame.Codec[T], error) {
	buf, err := ring.OpenOrCreate(name, opts.NodeCount, opts.NodeSize)
	if err != nil {
		return nil, fmt.Errorf("rendezvous: open ring %s: %w", name, err)
	}
	s := stream.New(buf, name, opts.streamOpts()...)
	return frame.New[T](s, c), nil
}

func pollClosed(ctx context.Context, interval time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(interval):
		return nil
	}
}
