package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/drake/carremote/event"
	"github.com/drake/carremote/network"
	"github.com/drake/carremote/protocol"
)

var sendCmd = &cobra.Command{
	Use:   "send <command...>",
	Short: "Connect, send one command and print the reply",
	Long: `Connects to the peer, sends a single command such as "engine on",
"starter 5" or a raw verb like "IgnitionOFF", and prints the first frame the
device answers with. Exits non-zero if the command could not be delivered.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().Duration("wait", 5*time.Second, "how long to wait for the reply after sending")
}

var errNoReply = errors.New("no reply from device")

func runSend(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	command, err := protocol.ParseCommand(strings.Join(args, " "), a.cfg.StarterSeconds)
	if err != nil {
		return err
	}
	peer, err := a.peer()
	if err != nil {
		return err
	}
	wait, _ := cmd.Flags().GetDuration("wait")

	events := event.NewChannel(0)
	link := a.newLink(events)
	defer func() {
		link.Close()
		events.Close()
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	link.Start()
	link.Connect(peer)

	reply, err := sendAndWait(ctx, link, events.Events(), command, wait)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), reply)
	link.Stop()
	return nil
}

// sendAndWait sends command once the device is identified, then returns the
// first frame received after it. The reply can be read before the write is
// reported, so MessageSent is not waited for.
func sendAndWait(ctx context.Context, link *network.Supervisor, events <-chan event.Event, command protocol.Command, wait time.Duration) (string, error) {
	var (
		sent     bool
		deadline <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline:
			return "", fmt.Errorf("%s: %w", command, errNoReply)
		case ev, ok := <-events:
			if !ok {
				return "", errors.New("link closed")
			}
			switch ev.Type {
			case event.DeviceName:
				link.Send(command.Encode())
				sent = true
				deadline = time.After(wait)
			case event.MessageReceived:
				if sent {
					return ev.Payload, nil
				}
			case event.Error:
				return "", ev.Err
			}
		}
	}
}
