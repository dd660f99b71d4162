package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/drake/carremote/config"
	"github.com/drake/carremote/event"
	"github.com/drake/carremote/internal/logging"
	"github.com/drake/carremote/network"
	"github.com/drake/carremote/peers"
	"github.com/drake/carremote/publish"
	"github.com/drake/carremote/sim"
	"github.com/drake/carremote/transport"
)

// app holds what every subcommand needs: configuration with flag overrides
// applied, the logger and the transport.
type app struct {
	cfg       config.Config
	log       *slog.Logger
	transport transport.Transport
	publisher *publish.Redis
	closers   []io.Closer
}

func newApp(cmd *cobra.Command) (*app, error) {
	flags := cmd.Flags()

	path, _ := flags.GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	if v, _ := flags.GetString("transport"); v != "" {
		cfg.Transport = v
	}
	if v, _ := flags.GetString("peer"); v != "" {
		cfg.Peer = v
	}
	if v, _ := flags.GetString("log-level"); v != "" {
		cfg.LogLevel = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	log := logging.New(level)

	opts := transport.Options{
		Logger:   log.With("component", "transport"),
		BaudRate: cfg.Serial.Baud,
	}
	if cfg.Transport == transport.KindSim {
		// The simulator answers like a real controller.
		opts.Handler = sim.New(log.With("component", "sim")).Handler()
		if cfg.Peer == "" {
			cfg.Peer = "sim"
		}
	}
	t, err := transport.ForName(cfg.Transport, opts)
	if err != nil {
		return nil, err
	}

	return &app{cfg: cfg, log: log, transport: t}, nil
}

// newLink builds the supervisor. Events go to sink and, when Redis is
// configured, to the publisher as well.
func (a *app) newLink(sink event.Sink) *network.Supervisor {
	if a.cfg.Redis.Addr != "" {
		a.publisher = publish.New(a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB,
			publish.WithPrefix(a.cfg.Redis.Prefix),
			publish.WithLogger(a.log.With("component", "redis")),
		)
		sink = event.Multi(sink, a.publisher)
	}

	link := network.New(a.transport, sink,
		network.WithLogger(a.log.With("component", "link")),
		network.WithConnectTimeout(a.cfg.ConnectTimeout),
		network.WithReadTimeout(a.cfg.ReadTimeout),
		network.WithWriteTimeout(a.cfg.WriteTimeout),
	)
	if a.publisher != nil {
		a.publisher.SetPeerSource(link.Peer)
	}
	return link
}

// history loads the recent peer list. A damaged file is logged and ignored.
func (a *app) history() *peers.History {
	h := peers.New(config.PeersFile(), a.cfg.HistorySize)
	if err := h.Load(); err != nil {
		a.log.Warn("loading peer history", "path", h.Path(), "err", err)
	}
	return h
}

// peer is the configured peer, else the most recently used one.
func (a *app) peer() (string, error) {
	if a.cfg.Peer != "" {
		return a.cfg.Peer, nil
	}
	if p, ok := a.history().Last(); ok {
		return p.Address, nil
	}
	return "", fmt.Errorf("no peer: pass --peer or set peer in %s", config.File())
}

func (a *app) close() {
	for _, c := range a.closers {
		c.Close()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn("closing redis", "err", err)
		}
	}
	if c, ok := a.transport.(io.Closer); ok {
		c.Close()
	}
}
