package rendezvous

import (
	"context"
	"fmt"
	"time"

	"github.com/alephtx/shmipc/codec"
	"github.com/alephtx/shmipc/conn"
	"github.com/alephtx/shmipc/ring"
)

const dialPollInterval = 20 * time.Millisecond

// Client dials a Server listening at a well-known buffer name. R is the
// type the client receives (the server's W); W is the type the client
// sends (the server's R).
type Client[R, W any] struct {
	codecR codec.Codec[R]
	codecW codec.Codec[W]
	opts   Options
}

// NewClient builds a client for dialing listenName with the given
// receive/send codecs.
func NewClient[R, W any](codecR codec.Codec[R], codecW codec.Codec[W], opts Options) *Client[R, W] {
	return &Client[R, W]{codecR: codecR, codecW: codecW, opts: opts}
}

// Dial performs the client side of the handshake: it polls for the
// well-known handshake buffer (which the server creates per Accept call),
// reads the per-connection ring-pair name, then opens that pair. The
// returned Connection is not yet open — the caller must register its
// listeners and call Open before any frame can be delivered or dropped.
func (cl *Client[R, W]) Dial(ctx context.Context, listenName string) (*conn.Connection[R, W], error) {
	handshake, err := cl.openHandshake(ctx, listenName)
	if err != nil {
		return nil, err
	}
	hc := openNameCodec(handshake, listenName+"_handshake", cl.opts)

	connName, ok, err := hc.ReadFrame()
	handshake.Close()
	if err != nil {
		return nil, fmt.Errorf("rendezvous: read handshake: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("rendezvous: handshake closed before a connection name arrived")
	}

	c2s := connName + ".c2s"
	s2c := connName + ".s2c"

	// Client writes on c2s, reads on s2c: the inverse of the server's roles.
	writerCodec, err := openDirection(c2s, cl.opts, cl.codecW)
	if err != nil {
		return nil, err
	}
	readerCodec, err := openDirection(s2c, cl.opts, cl.codecR)
	if err != nil {
		writerCodec.Close()
		return nil, err
	}

	c := conn.New(readerCodec, writerCodec)
	return c, nil
}

func (cl *Client[R, W]) openHandshake(ctx context.Context, listenName string) (*ring.Buffer, error) {
	for {
		buf, err := ring.OpenOrCreate(listenName, cl.opts.NodeCount, cl.opts.NodeSize)
		if err == nil {
			return buf, nil
		}
		if perr := pollClosed(ctx, dialPollInterval); perr != nil {
			return nil, fmt.Errorf("rendezvous: dial %s: %w", listenName, perr)
		}
	}
}
