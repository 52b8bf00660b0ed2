package rendezvous

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alephtx/shmipc/codec"
	"github.com/alephtx/shmipc/conn"
	"github.com/alephtx/shmipc/ring"
)

// Server listens on a well-known buffer name and hands each connecting
// client a fresh per-connection ring pair. R is the type the server
// receives; W is the type the server sends.
type Server[R, W any] struct {
	listenName string
	codecR     codec.Codec[R]
	codecW     codec.Codec[W]
	opts       Options

	mu      sync.RWMutex
	conns   map[string]*conn.Connection[R, W]
	closing bool
}

// NewServer builds a server that will listen on listenName.
func NewServer[R, W any](listenName string, codecR codec.Codec[R], codecW codec.Codec[W], opts Options) *Server[R, W] {
	return &Server[R, W]{
		listenName: listenName,
		codecR:     codecR,
		codecW:     codecW,
		opts:       opts,
		conns:      make(map[string]*conn.Connection[R, W]),
	}
}

// Accept performs one handshake rendezvous: it creates (or reuses) the
// well-known handshake buffer, publishes a fresh per-connection ring-pair
// name, and opens that pair. The returned Connection is not yet open —
// its internal conns-map cleanup is already attached, but the caller
// must register its own listeners and call Open before any frame can be
// delivered or dropped.
//
// Accept keeps the handshake buffer open until a client has read the
// published name, so a server that created the buffer does not unlink it
// before the client joins. ctx bounds that wait; the handshake write
// itself is bounded by Options' own write timeout.
func (srv *Server[R, W]) Accept(ctx context.Context) (*conn.Connection[R, W], error) {
	srv.mu.RLock()
	closing := srv.closing
	srv.mu.RUnlock()
	if closing {
		return nil, fmt.Errorf("rendezvous: server closed")
	}

	handshake, err := ring.OpenOrCreate(srv.listenName, handshakeNodeCount, handshakeNodeSize)
	if err != nil {
		return nil, fmt.Errorf("rendezvous: handshake ring: %w", err)
	}
	hc := openNameCodec(handshake, srv.listenName+"_handshake", srv.opts)

	connName := nextConnName(srv.listenName)
	if err := hc.WriteFrame(connName); err != nil {
		handshake.Close()
		return nil, fmt.Errorf("rendezvous: publish handshake: %w", err)
	}
	for handshake.HasNodeToRead() {
		if err := pollClosed(ctx, dialPollInterval); err != nil {
			handshake.Close()
			return nil, fmt.Errorf("rendezvous: wait for client: %w", err)
		}
	}
	handshake.Close()

	c2s := connName + ".c2s"
	s2c := connName + ".s2c"

	readerCodec, err := openDirection(c2s, srv.opts, srv.codecR)
	if err != nil {
		return nil, err
	}
	writerCodec, err := openDirection(s2c, srv.opts, srv.codecW)
	if err != nil {
		readerCodec.Close()
		return nil, err
	}

	c := conn.New(readerCodec, writerCodec)

	// Attach the conns-map bookkeeping before the caller ever has a chance
	// to call Open, so a disconnect in the window before the caller
	// registers its own listeners still cleans up srv.conns.
	c.OnDisconnect(func(*conn.Connection[R, W]) {
		srv.mu.Lock()
		delete(srv.conns, connName)
		srv.mu.Unlock()
	})

	srv.mu.Lock()
	srv.conns[connName] = c
	srv.mu.Unlock()

	return c, nil
}

// Serve loops Accept, handing each new connection to onAccept so it can
// register listeners, then opens it, until ctx is cancelled or the server
// is closed.
func (srv *Server[R, W]) Serve(ctx context.Context, onAccept func(*conn.Connection[R, W])) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		c, err := srv.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			srv.mu.RLock()
			closing := srv.closing
			srv.mu.RUnlock()
			if closing {
				return err
			}
			if err := pollClosed(ctx, 100*time.Millisecond); err != nil {
				return err
			}
			continue
		}
		onAccept(c)
		c.Open()
	}
}

// Broadcast pushes w onto every currently connected client's write queue.
func (srv *Server[R, W]) Broadcast(w W) {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	for _, c := range srv.conns {
		c.PushMessage(w)
	}
}

// Connections returns a snapshot of currently tracked connections.
func (srv *Server[R, W]) Connections() []*conn.Connection[R, W] {
	srv.mu.RLock()
	defer srv.mu.RUnlock()
	out := make([]*conn.Connection[R, W], 0, len(srv.conns))
	for _, c := range srv.conns {
		out = append(out, c)
	}
	return out
}

// Close stops accepting new connections and closes every tracked one.
func (srv *Server[R, W]) Close() {
	srv.mu.Lock()
	srv.closing = true
	conns := make([]*conn.Connection[R, W], 0, len(srv.conns))
	for _, c := range srv.conns {
		conns = append(conns, c)
	}
	srv.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}
}
