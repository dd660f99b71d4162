//go:build linux

package transport

import (
	"errors"
	"fmt"
	"testing"

	dbus "github.com/godbus/dbus/v5"
	"github.com/stretchr/testify/assert"
)

func TestMacFromPath(t *testing.T) {
	assert.Equal(t, "00:14:03:05:F1:97", macFromPath("/org/bluez/hci0/dev_00_14_03_05_F1_97"))
	assert.Equal(t, "", macFromPath("/org/bluez/hci0"))
}

func TestClassifyBusError(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{dbus.Error{Name: "org.freedesktop.DBus.Error.AccessDenied"}, ErrPermissionDenied},
		{&dbus.Error{Name: "org.bluez.Error.NotPermitted"}, ErrPermissionDenied},
		{fmt.Errorf("wrapped: %w", dbus.Error{Name: "org.bluez.Error.AuthenticationFailed"}), ErrPermissionDenied},
		{dbus.Error{Name: "org.bluez.Error.Failed", Body: []interface{}{"Host is down"}}, ErrUnreachable},
		{errors.New("broken pipe"), ErrIO},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, classifyBusError(tt.err), tt.want, tt.err.Error())
	}
}

func TestProfileRejectsUnexpectedConnection(t *testing.T) {
	p := &profile{waiting: make(map[dbus.ObjectPath]chan dbus.UnixFD)}

	dev := dbus.ObjectPath("/org/bluez/hci0/dev_00_14_03_05_F1_97")
	ch := p.wait(dev)
	p.unwait(dev, ch)

	// -1 is never a valid descriptor, so closing it is harmless.
	derr := p.NewConnection(dev, dbus.UnixFD(-1), nil)
	if assert.NotNil(t, derr) {
		assert.Equal(t, "org.bluez.Error.Rejected", derr.Name)
	}
}

func TestProfileDeliversToWaiter(t *testing.T) {
	p := &profile{waiting: make(map[dbus.ObjectPath]chan dbus.UnixFD)}
	dev := dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF")
	ch := p.wait(dev)

	assert.Nil(t, p.NewConnection(dev, dbus.UnixFD(42), nil))
	assert.Equal(t, dbus.UnixFD(42), <-ch)
}
