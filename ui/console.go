package ui

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/mattn/go-runewidth"

	"github.com/drake/carremote/event"
	"github.com/drake/carremote/peers"
	"github.com/drake/carremote/protocol"
	"github.com/drake/carremote/ui/style"
)

// LineSource yields input lines. ReadLine returns io.EOF at end of input.
type LineSource interface {
	ReadLine() (string, error)
}

type scannerSource struct {
	scanner *bufio.Scanner
}

func (s scannerSource) ReadLine() (string, error) {
	if s.scanner.Scan() {
		return s.scanner.Text(), nil
	}
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// Console implements UI over a line source and a writer.
type Console struct {
	in     LineSource
	out    io.Writer
	styles style.Styles

	inputChan chan string
	done      chan struct{}
	doneOnce  sync.Once

	mu sync.Mutex // Serializes writes to out
}

// NewConsole creates a console reading commands from in and writing to out.
func NewConsole(in io.Reader, out io.Writer, styles style.Styles) *Console {
	return NewConsoleFrom(scannerSource{bufio.NewScanner(in)}, out, styles)
}

// NewConsoleFrom creates a console reading commands from src.
func NewConsoleFrom(in LineSource, out io.Writer, styles style.Styles) *Console {
	return &Console{
		in:        in,
		out:       out,
		styles:    styles,
		inputChan: make(chan string, 64),
		done:      make(chan struct{}),
	}
}

// Run reads input lines until EOF or Quit.
func (c *Console) Run() error {
	scanDone := make(chan error, 1)

	go func() {
		for {
			line, err := c.in.ReadLine()
			if err != nil {
				if errors.Is(err, io.EOF) {
					err = nil
				}
				scanDone <- err
				return
			}
			select {
			case c.inputChan <- line:
			case <-c.done:
				scanDone <- nil
				return
			}
		}
	}()

	select {
	case <-c.done:
		return nil
	case err := <-scanDone:
		c.Quit()
		return err
	}
}

// Input returns the channel of typed lines.
func (c *Console) Input() <-chan string {
	return c.inputChan
}

// Done returns a channel that closes when the console is done.
func (c *Console) Done() <-chan struct{} {
	return c.done
}

// Quit requests the console to exit.
func (c *Console) Quit() {
	c.doneOnce.Do(func() {
		close(c.done)
	})
}

// Print writes a line of local output.
func (c *Console) Print(text string) {
	c.writeln(text)
}

// Echo shows bytes written to the device.
func (c *Console) Echo(data []byte) {
	c.writeln(c.styles.Sent.Render("> " + sanitize(string(data))))
}

// Received shows a frame from the device. Terminal control sequences in the
// frame are removed before display.
func (c *Console) Received(frame string) {
	c.writeln(c.styles.Received.Render("< " + sanitize(frame)))
}

// Error shows a failure.
func (c *Console) Error(err error) {
	c.writeln(c.styles.Error.Render("error: " + sanitize(err.Error())))
}

// ShowState shows the link state.
func (c *Console) ShowState(state event.State, peer, device string) {
	var s string
	switch state {
	case event.Connected:
		name := device
		if name == "" {
			name = "unknown device"
		}
		s = c.styles.StatusConnected.Render(fmt.Sprintf("connected to %s (%s)", sanitize(name), peer))
	case event.Connecting:
		s = c.styles.StatusConnecting.Render("connecting to " + peer + "...")
	default:
		s = c.styles.StatusDisconnected.Render("not connected")
	}
	c.writeln(s)
}

// ShowTelemetry renders the readings as an aligned table.
func (c *Console) ShowTelemetry(t protocol.Telemetry) {
	rows := t.Fields()
	width := 0
	for _, r := range rows {
		width = max(width, runewidth.StringWidth(r[0]))
	}

	var b strings.Builder
	b.WriteString(c.styles.Heading.Render("Telemetry"))
	for _, r := range rows {
		b.WriteString("\n  ")
		b.WriteString(c.styles.Label.Render(runewidth.FillRight(r[0], width)))
		b.WriteString("  ")
		b.WriteString(c.valueStyle(r[1]).Render(valueOrDash(sanitize(r[1]))))
	}
	if !t.Updated.IsZero() {
		b.WriteString("\n  ")
		b.WriteString(c.styles.Muted.Render("updated " + t.Updated.Format(time.TimeOnly)))
	}
	c.writeln(b.String())
}

// ShowPeers lists remembered devices, most recent first.
func (c *Console) ShowPeers(list []peers.Peer) {
	if len(list) == 0 {
		c.writeln(c.styles.Muted.Render("no recent devices"))
		return
	}

	width := 0
	for _, p := range list {
		width = max(width, runewidth.StringWidth(p.Address))
	}

	var b strings.Builder
	b.WriteString(c.styles.Heading.Render("Recent devices"))
	for i, p := range list {
		fmt.Fprintf(&b, "\n  %d. %s  %s", i+1,
			runewidth.FillRight(p.Address, width),
			c.styles.Muted.Render(sanitize(p.Name)))
	}
	c.writeln(b.String())
}

func (c *Console) valueStyle(v string) lipgloss.Style {
	switch v {
	case "ON", "High":
		return c.styles.On
	case "OFF", "Low":
		return c.styles.Off
	}
	return c.styles.Value
}

func (c *Console) writeln(s string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintln(c.out, s)
}

// sanitize strips escape sequences and trailing line breaks from device or
// user supplied text.
func sanitize(s string) string {
	return strings.TrimRight(ansi.Strip(s), "\r\n")
}

func valueOrDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}
