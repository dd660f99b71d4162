package main

import (
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/drake/carremote/debug"
	"github.com/drake/carremote/event"
	"github.com/drake/carremote/protocol"
	"github.com/drake/carremote/ui"
	"github.com/drake/carremote/ui/style"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Connect and print every frame the device sends",
	Long: `Connects to the peer and prints incoming frames until interrupted or the
connection drops. The device is greeted on connect so it dumps its state.`,
	Args: cobra.NoArgs,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().Bool("no-hello", false, "do not greet the device on connect")
	monitorCmd.Flags().Bool("no-color", false, "disable styled output")
}

var errConnectionLost = errors.New("connection lost")

func runMonitor(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	peer, err := a.peer()
	if err != nil {
		return err
	}
	noHello, _ := cmd.Flags().GetBool("no-hello")

	styles := style.DefaultStyles()
	if v, _ := cmd.Flags().GetBool("no-color"); v || os.Getenv("NO_COLOR") != "" {
		styles = style.Plain()
	}
	out := ui.NewConsole(strings.NewReader(""), cmd.OutOrStdout(), styles)

	events := event.NewChannel(0)
	link := a.newLink(events)
	defer func() {
		link.Close()
		events.Close()
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go debug.NewMonitor(link, a.log.With("component", "debug")).Run(ctx)

	link.Start()
	link.Connect(peer)

	var (
		wasConnected bool
		lastErr      error
	)
	for {
		select {
		case <-ctx.Done():
			link.Stop()
			return nil
		case ev := <-events.Events():
			switch ev.Type {
			case event.StateChanged:
				switch ev.State {
				case event.Connecting:
					out.ShowState(ev.State, peer, "")
				case event.Connected:
					wasConnected = true
				case event.Idle:
					if wasConnected {
						return errConnectionLost
					}
					if lastErr != nil {
						return lastErr
					}
				}
			case event.DeviceName:
				out.ShowState(event.Connected, peer, ev.Payload)
				if !noHello {
					link.Send(protocol.Hello().Encode())
				}
			case event.MessageReceived:
				out.Received(ev.Payload)
			case event.Error:
				lastErr = ev.Err
				out.Error(ev.Err)
			}
		}
	}
}
