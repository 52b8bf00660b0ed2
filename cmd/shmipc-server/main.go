// Command shmipc-server runs a demo multi-client rendezvous server: it
// accepts connections at a well-known buffer name, echoes each chat
// Request back as a Response, broadcasts every inbound message to all
// other connected clients, and optionally serves live stats over a
// loopback debug websocket.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/alephtx/shmipc/chatproto"
	"github.com/alephtx/shmipc/codec"
	"github.com/alephtx/shmipc/conn"
	"github.com/alephtx/shmipc/rendezvous"
	"github.com/alephtx/shmipc/shmipccfg"
	"github.com/alephtx/shmipc/shmipclog"
)

var log = shmipclog.New("server")

type stats struct {
	Connections int64 `json:"connections"`
	Received    int64 `json:"received"`
	Sent        int64 `json:"sent"`
}

func main() {
	app := &cli.App{
		Name:  "shmipc-server",
		Usage: "demo shared-memory IPC rendezvous server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "config.toml", Usage: "path to TOML config"},
			&cli.StringFlag{Name: "listen", Value: "shmipc-demo", Usage: "well-known rendezvous buffer name"},
			&cli.StringFlag{Name: "debug-addr", Value: "", Usage: "loopback addr to serve /debug/ws on, e.g. 127.0.0.1:8090 (empty disables it)"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		log.Printf("fatal: %v", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	opts := shmipccfg.Defaults()
	if cfg, err := shmipccfg.Load(c.String("config")); err == nil {
		opts = cfg.Options
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	rOpts := rendezvous.Options{
		NodeCount:    opts.NodeCount,
		NodeSize:     opts.NodeSize,
		ReadTimeout:  opts.ReadTimeout(),
		WriteTimeout: opts.WriteTimeout(),
		SpinTimeout:  opts.SpinAcquireTimeout(),
	}

	srv := rendezvous.NewServer[chatproto.Request, chatproto.Response](
		c.String("listen"),
		codec.Tiered[chatproto.Request]{},
		codec.Tiered[chatproto.Response]{},
		rOpts,
	)

	var st stats

	if addr := c.String("debug-addr"); addr != "" {
		go serveDebug(ctx, addr, &st)
	}

	log.Printf("listening on %q", c.String("listen"))

	return srv.Serve(ctx, func(cn *conn.Connection[chatproto.Request, chatproto.Response]) {
		atomic.AddInt64(&st.Connections, 1)
		log.Printf("client connected")

		cn.OnMessage(func(cn *conn.Connection[chatproto.Request, chatproto.Response], req chatproto.Request) {
			atomic.AddInt64(&st.Received, 1)
			resp := chatproto.Response{From: "server", Text: "echo: " + req.Text, Sent: time.Now()}
			cn.PushMessage(resp)
			atomic.AddInt64(&st.Sent, 1)
			for _, other := range srv.Connections() {
				if other != cn {
					other.PushMessage(resp)
				}
			}
		})
		cn.OnError(func(cn *conn.Connection[chatproto.Request, chatproto.Response], err error) {
			log.Printf("connection error: %v", err)
		})
		cn.OnDisconnect(func(cn *conn.Connection[chatproto.Request, chatproto.Response]) {
			atomic.AddInt64(&st.Connections, -1)
			log.Printf("client disconnected")
		})
	})
}

// serveDebug exposes live stats over a websocket, reused from the
// teacher's wsjson client idiom but run as a server. It listens on the
// address given by --debug-addr as is; nothing restricts that address to
// loopback. It carries diagnostics only, never ring payloads.
func serveDebug(ctx context.Context, addr string, st *stats) {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/ws", func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer c.CloseNow()

		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-r.Context().Done():
				return
			case <-ticker.C:
				snap := stats{
					Connections: atomic.LoadInt64(&st.Connections),
					Received:    atomic.LoadInt64(&st.Received),
					Sent:        atomic.LoadInt64(&st.Sent),
				}
				if err := wsjson.Write(r.Context(), c, snap); err != nil {
					return
				}
			}
		}
	})
	mux.HandleFunc("/debug/stats", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(st)
	})

	server := &http.Server{Addr: addr, Handler: mux}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()
	log.Printf("debug endpoint on http://%s/debug/ws", addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("debug server: %v", err)
	}
}
