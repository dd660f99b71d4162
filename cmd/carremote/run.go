package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/drake/carremote/api"
	"github.com/drake/carremote/config"
	"github.com/drake/carremote/debug"
	"github.com/drake/carremote/event"
	"github.com/drake/carremote/network"
	"github.com/drake/carremote/session"
	"github.com/drake/carremote/ui"
	"github.com/drake/carremote/ui/style"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the interactive console (default)",
	Long: `Connects to the configured peer and reads commands from standard input.
Type "help" for the command list. With --http the session is also exposed
over HTTP, including Prometheus metrics on /metrics.`,
	RunE: runConsole,
}

func init() {
	rootCmd.AddCommand(runCmd)
	addRunFlags(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().String("http", "", "serve the HTTP API on this address (overrides http_addr)")
	cmd.Flags().String("script", "", "Lua script to load at startup (overrides script)")
	cmd.Flags().Bool("no-color", false, "disable styled output")
	cmd.Flags().Bool("no-auto-connect", false, "do not connect at startup")
}

func runConsole(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	if v, _ := cmd.Flags().GetString("http"); v != "" {
		a.cfg.HTTPAddr = v
	}
	if v, _ := cmd.Flags().GetString("script"); v != "" {
		a.cfg.Script = v
	}
	if v, _ := cmd.Flags().GetBool("no-auto-connect"); v {
		a.cfg.AutoConnect = false
	}

	styles := style.DefaultStyles()
	if v, _ := cmd.Flags().GetBool("no-color"); v || os.Getenv("NO_COLOR") != "" {
		styles = style.Plain()
	}

	events := event.NewChannel(0)
	link := a.newLink(events)
	defer func() {
		link.Close()
		events.Close()
	}()

	console := a.console(cmd, styles)
	sess := session.New(link, events.Events(), console, a.history(), session.Config{
		Peer:           a.cfg.Peer,
		AutoConnect:    a.cfg.AutoConnect,
		BatteryPoll:    a.cfg.BatteryPoll,
		StarterSeconds: a.cfg.StarterSeconds,
		Script:         a.cfg.ScriptPath(),
	}, a.log.With("component", "session"))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.cfg.HTTPAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			network.NewCollector(link),
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		handler := api.NewHandler(sess, reg, a.log.With("component", "api"))

		go func() {
			err := api.ListenAndServe(ctx, a.cfg.HTTPAddr, handler, a.log)
			if err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error("http api stopped", "err", err)
			}
		}()
	}

	go debug.NewMonitor(link, a.log.With("component", "debug")).Run(ctx)
	go func() {
		<-ctx.Done()
		sess.Quit()
	}()

	return sess.Run()
}

// historyLimit bounds the console command history file.
const historyLimit = 500

// console uses a line editor when standard input is a terminal.
func (a *app) console(cmd *cobra.Command, styles style.Styles) *ui.Console {
	if cmd.InOrStdin() == os.Stdin && ui.IsInteractive(os.Stdin) {
		history := ""
		if err := os.MkdirAll(config.Dir(), 0o755); err == nil {
			history = filepath.Join(config.Dir(), "history")
		}
		ed, err := ui.NewEditor("car> ", history, historyLimit)
		if err == nil {
			a.closers = append(a.closers, ed)
			return ui.NewConsoleFrom(ed, cmd.OutOrStdout(), styles)
		}
		a.log.Warn("line editor unavailable, using plain input", "err", err)
	}
	return ui.NewConsole(cmd.InOrStdin(), cmd.OutOrStdout(), styles)
}
