// Package reconnect provides the infinite reconnect/backoff loop used by
// the demo client around rendezvous.Client.Dial, adapted from the
// teacher's exchanges.RunConnectionLoop (feeder websocket reconnects)
// to drive a shmipc dial-and-serve session instead of an exchange feed.
package reconnect

import (
	"context"
	"time"

	"github.com/alephtx/shmipc/shmipclog"
)

// SessionFunc runs one dial-and-serve session; a non-nil return triggers
// a backoff-and-retry unless ctx is already done.
type SessionFunc func(ctx context.Context) error

// Loop runs session repeatedly, waiting backoff between failed attempts,
// until a session returns nil, ctx is cancelled, or enabled reports false.
func Loop(ctx context.Context, name string, backoff time.Duration, enabled func() bool, session SessionFunc) error {
	log := shmipclog.New(name)
	for {
		err := session(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("session ended (%v), reconnecting in %s...", err, backoff)
		if !enabled() {
			return ctx.Err()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}
