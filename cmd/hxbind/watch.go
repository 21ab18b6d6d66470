package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pthm/hxbind"
	"github.com/pthm/hxbind/client"
	"github.com/pthm/hxbind/internal/logger"
	"github.com/pthm/hxbind/lib/wire"
)

func runWatch(args []string) error {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	url := fs.String("url", "http://localhost:8080/_b/", "session endpoint")
	click := fs.Int("click", -1, "bar to click after the first render")
	level := fs.String("log-level", "warn", "log level")
	if err := fs.Parse(args); err != nil {
		return err
	}

	log := logger.New(*level, "text", os.Stderr)
	sink := hxbind.LogSink(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	remote := client.NewRemote(*url, nil)
	info, err := remote.Create(ctx)
	if err != nil {
		return err
	}
	defer remote.End(context.Background(), info.Handle)

	events := client.NewEventChannel(remote.Sender(info.Handle), client.WithEventSink(sink), client.WithEventLogger(log))
	host := client.NewHost(client.WithSink(sink), client.WithLogger(log), client.WithEvents(events))
	defer host.Close()

	host.Register(chartRenderer, barsScript(os.Stdout, *click))
	for _, b := range info.Bindings {
		if err := host.Mount(b.Name, client.ElementID(hxbind.ContainerID(b.Name)), 0, 0); err != nil {
			return err
		}
	}

	msgs := make(chan wire.RenderMessage)
	streamErr := make(chan error, 1)
	go func() {
		streamErr <- remote.Stream(ctx, info.Handle, msgs)
		close(msgs)
	}()

	if err := host.Run(ctx, msgs); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	if err := <-streamErr; err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("stream: %w", err)
	}
	return nil
}
