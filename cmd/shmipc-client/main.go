// Command shmipc-client dials a shmipc-server rendezvous point, sends
// lines of text read from stdin as chat Requests, and prints every
// Response it receives. When auto_reconnect is enabled it keeps retrying
// the dial loop on disconnect via the reconnect package.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/alephtx/shmipc/chatproto"
	"github.com/alephtx/shmipc/codec"
	"github.com/alephtx/shmipc/conn"
	"github.com/alephtx/shmipc/reconnect"
	"github.com/alephtx/shmipc/rendezvous"
	"github.com/alephtx/shmipc/shmipccfg"
	"github.com/alephtx/shmipc/shmipclog"
)

var log = shmipclog.New("client")

func main() {
	app := &cli.App{
		Name:  "shmipc-client",
		Usage: "demo shared-memory IPC rendezvous client",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "config.toml", Usage: "path to TOML config"},
			&cli.StringFlag{Name: "dial", Value: "shmipc-demo", Usage: "well-known rendezvous buffer name"},
			&cli.StringFlag{Name: "name", Value: "client", Usage: "display name attached to outgoing messages"},
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

	cl := rendezvous.NewClient[chatproto.Response, chatproto.Request](
		codec.Tiered[chatproto.Response]{},
		codec.Tiered[chatproto.Request]{},
		rOpts,
	)

	dialName, displayName := c.String("dial"), c.String("name")
	enabled := func() bool { return opts.AutoReconnect }
	return reconnect.Loop(ctx, "client", 3*time.Second, enabled, func(ctx context.Context) error {
		return runSession(ctx, cl, dialName, displayName)
	})
}

func runSession(ctx context.Context, cl *rendezvous.Client[chatproto.Response, chatproto.Request], dialName, displayName string) error {
	connection, err := cl.Dial(ctx, dialName)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer connection.Close()

	connection.OnMessage(func(_ *conn.Connection[chatproto.Response, chatproto.Request], resp chatproto.Response) {
		fmt.Printf("%s: %s\n", resp.From, resp.Text)
	})
	connection.OnError(func(_ *conn.Connection[chatproto.Response, chatproto.Request], err error) {
		log.Printf("connection error: %v", err)
	})
	connection.Open()

	log.Printf("connected to %q", dialName)

	scanner := bufio.NewScanner(os.Stdin)
	lines := make(chan string)
	go func() {
		defer close(lines)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-connection.Done():
			return fmt.Errorf("connection closed")
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			connection.PushMessage(chatproto.Request{From: displayName, Text: line, Sent: time.Now()})
		}
	}
}
