//go:build linux

package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	dbus "github.com/godbus/dbus/v5"
	"golang.org/x/sys/unix"
)

// SPPUUID is the Serial Port Profile UUID used for RFCOMM connections.
const SPPUUID = "00001101-0000-1000-8000-00805f9b34fb"

const (
	bluezService         = "org.bluez"
	profileInterfaceName = "org.bluez.Profile1"
	profileManagerIface  = "org.bluez.ProfileManager1"
	deviceIface          = "org.bluez.Device1"
	objManagerIface      = "org.freedesktop.DBus.ObjectManager"
)

var profileCounter uint64

// RFCOMM connects to Bluetooth SPP peers through BlueZ over the system D-Bus.
// The peer string is the device MAC address ("00:14:03:05:F1:97"). The device
// must already be paired.
//
// A client-role Profile1 is registered on first use; BlueZ hands the RFCOMM
// socket over through Profile1.NewConnection.
type RFCOMM struct {
	log *slog.Logger

	mu     sync.Mutex
	closed bool
	bus    *dbus.Conn
	prof   *profile
	path   dbus.ObjectPath
}

// NewRFCOMM creates an RFCOMM transport. No D-Bus traffic happens until Open.
func NewRFCOMM(log *slog.Logger) *RFCOMM {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &RFCOMM{log: log}
}

// profile implements org.bluez.Profile1 and routes each incoming FD to the
// Open call waiting for that device.
type profile struct {
	mu      sync.Mutex
	waiting map[dbus.ObjectPath]chan dbus.UnixFD
}

// Release is called by BlueZ when the profile is being released.
func (p *profile) Release() *dbus.Error { return nil }

// Cancel may be called to indicate a canceled request.
func (p *profile) Cancel() *dbus.Error { return nil }

// RequestDisconnection is ignored; the link layer notices the closed socket.
func (p *profile) RequestDisconnection(_ dbus.ObjectPath) *dbus.Error { return nil }

// NewConnection delivers the RFCOMM socket FD to the waiting Open call.
func (p *profile) NewConnection(dev dbus.ObjectPath, fd dbus.UnixFD, _ map[string]dbus.Variant) *dbus.Error {
	p.mu.Lock()
	ch, ok := p.waiting[dev]
	if ok {
		delete(p.waiting, dev)
	}
	p.mu.Unlock()

	if ok {
		select {
		case ch <- fd:
			return nil
		default:
		}
	}
	// No receiver; close the FD so it does not leak.
	unix.Close(int(fd))
	return &dbus.Error{Name: "org.bluez.Error.Rejected", Body: []interface{}{"no pending connect"}}
}

func (p *profile) wait(dev dbus.ObjectPath) chan dbus.UnixFD {
	ch := make(chan dbus.UnixFD, 1)
	p.mu.Lock()
	p.waiting[dev] = ch
	p.mu.Unlock()
	return ch
}

func (p *profile) unwait(dev dbus.ObjectPath, ch chan dbus.UnixFD) {
	p.mu.Lock()
	if p.waiting[dev] == ch {
		delete(p.waiting, dev)
	}
	p.mu.Unlock()
}

// ensureProfileLocked connects to the system bus and registers the client
// profile if not yet done.
func (r *RFCOMM) ensureProfileLocked() error {
	if r.closed {
		return errors.New("rfcomm: closed")
	}
	if r.prof != nil {
		return nil
	}

	if r.bus == nil {
		c, err := dbus.SystemBus()
		if err != nil {
			return fmt.Errorf("rfcomm: connect system bus: %w", classifyBusError(err))
		}
		r.bus = c
	}

	prof := &profile{waiting: make(map[dbus.ObjectPath]chan dbus.UnixFD)}
	id := atomic.AddUint64(&profileCounter, 1)
	path := dbus.ObjectPath("/org/carremote/rfcomm/client/p" + strconv.FormatUint(id, 10))
	if err := r.bus.Export(prof, path, profileInterfaceName); err != nil {
		return fmt.Errorf("rfcomm: export client profile: %w", classifyBusError(err))
	}

	pm := r.bus.Object(bluezService, dbus.ObjectPath("/org/bluez"))
	opts := map[string]dbus.Variant{
		"Role": dbus.MakeVariant("client"),
	}
	if call := pm.Call(profileManagerIface+".RegisterProfile", 0, path, SPPUUID, opts); call.Err != nil {
		_ = r.bus.Export(nil, path, profileInterfaceName)
		return fmt.Errorf("rfcomm: RegisterProfile: %w", classifyBusError(call.Err))
	}

	r.prof = prof
	r.path = path
	return nil
}

// Open connects the SPP profile of the paired device with the given MAC.
func (r *RFCOMM) Open(ctx context.Context, peer string) (Conn, error) {
	r.mu.Lock()
	if err := r.ensureProfileLocked(); err != nil {
		r.mu.Unlock()
		return nil, err
	}
	bus, prof := r.bus, r.prof
	r.mu.Unlock()

	devPath, label, err := findDevice(ctx, bus, peer)
	if err != nil {
		return nil, err
	}

	ch := prof.wait(devPath)
	defer prof.unwait(devPath, ch)

	r.log.Debug("rfcomm connect", "peer", peer, "device", devPath)
	call := bus.Object(bluezService, devPath).CallWithContext(ctx, deviceIface+".ConnectProfile", 0, SPPUUID)
	if call.Err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("rfcomm: ConnectProfile %s: %w", peer, classifyBusError(call.Err))
	}

	var fd dbus.UnixFD
	select {
	case <-ctx.Done():
		// An FD may have raced in; it would otherwise leak.
		prof.unwait(devPath, ch)
		select {
		case late := <-ch:
			unix.Close(int(late))
		default:
		}
		return nil, ctx.Err()
	case fd = <-ch:
	}

	// Non-blocking mode lets os.File use the runtime poller, so Close
	// unblocks a pending Read and deadlines work.
	if err := unix.SetNonblock(int(fd), true); err != nil {
		unix.Close(int(fd))
		return nil, fmt.Errorf("rfcomm: set nonblock: %w: %w", ErrIO, err)
	}
	f := os.NewFile(uintptr(fd), "rfcomm:"+peer)
	return &fileConn{File: f, peer: peer, label: label}, nil
}

// Close unregisters the profile and releases the bus connection.
// Safe for redundant calls.
func (r *RFCOMM) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	if r.bus == nil {
		return nil
	}
	if r.prof != nil {
		pm := r.bus.Object(bluezService, dbus.ObjectPath("/org/bluez"))
		_ = pm.Call(profileManagerIface+".UnregisterProfile", 0, r.path).Err
		_ = r.bus.Export(nil, r.path, profileInterfaceName)
	}
	return r.bus.Close()
}

// findDevice resolves a MAC address to its BlueZ Device1 object path and label.
func findDevice(ctx context.Context, bus *dbus.Conn, mac string) (dbus.ObjectPath, string, error) {
	var objs map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	call := bus.Object(bluezService, dbus.ObjectPath("/")).CallWithContext(ctx, objManagerIface+".GetManagedObjects", 0)
	if call.Err != nil {
		return "", "", fmt.Errorf("rfcomm: GetManagedObjects: %w", classifyBusError(call.Err))
	}
	if err := call.Store(&objs); err != nil {
		return "", "", fmt.Errorf("rfcomm: decode GetManagedObjects: %w: %w", ErrIO, err)
	}

	for path, ifaces := range objs {
		props, ok := ifaces[deviceIface]
		if !ok {
			continue
		}
		addr := variantString(props, "Address")
		if addr == "" {
			addr = macFromPath(path)
		}
		if !strings.EqualFold(addr, mac) {
			continue
		}
		label := variantString(props, "Alias")
		if label == "" {
			label = variantString(props, "Name")
		}
		if label == "" {
			label = mac
		}
		return path, label, nil
	}
	return "", "", fmt.Errorf("rfcomm: device %s: %w: not known to bluez (pair it first)", mac, ErrUnreachable)
}

func variantString(props map[string]dbus.Variant, key string) string {
	v, ok := props[key]
	if !ok {
		return ""
	}
	s, _ := v.Value().(string)
	return s
}

func macFromPath(p dbus.ObjectPath) string {
	s := string(p)
	// Expect .../dev_XX_XX_XX_XX_XX_XX
	idx := strings.LastIndex(s, "/dev_")
	if idx < 0 {
		return ""
	}
	return strings.ReplaceAll(s[idx+5:], "_", ":")
}

// classifyBusError maps D-Bus and BlueZ error names onto the failure classes.
func classifyBusError(err error) error {
	switch name := dbusErrorName(err); name {
	case "org.freedesktop.DBus.Error.AccessDenied",
		"org.bluez.Error.NotPermitted",
		"org.bluez.Error.NotAuthorized",
		"org.bluez.Error.AuthenticationFailed",
		"org.bluez.Error.AuthenticationRejected":
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	case "":
		if errors.Is(err, os.ErrPermission) {
			return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
		}
		return fmt.Errorf("%w: %w", ErrIO, err)
	default:
		return fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
}

func dbusErrorName(err error) string {
	var v dbus.Error
	if errors.As(err, &v) {
		return v.Name
	}
	var p *dbus.Error
	if errors.As(err, &p) && p != nil {
		return p.Name
	}
	return ""
}

// fileConn adapts an RFCOMM socket wrapped in an *os.File. *os.File provides
// deadlines and a Close that wakes blocked readers.
type fileConn struct {
	*os.File
	peer  string
	label string

	closeOnce sync.Once
	closeErr  error
}

func (c *fileConn) Peer() string  { return c.peer }
func (c *fileConn) Label() string { return c.label }

func (c *fileConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.File.Close()
	})
	return c.closeErr
}
