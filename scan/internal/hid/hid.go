// Package hid reads product codes from USB scanners speaking the HID
// keyboard protocol.
//
// Host access goes through the Bus interface so the listener can run
// against a real HID stack or a fake in tests. The Listener polls the bus
// for matching devices, attaches to new ones, decodes their key reports
// into keystrokes and forwards them to the same hooks the keyboard wedge
// uses.
package hid

import (
	"context"
	"errors"
)

// Classified bus failures. A Bus implementation wraps its host errors so
// the listener can tell a missing device from a denied one.
var (
	// ErrNoDevice means no device matched the request.
	ErrNoDevice = errors.New("hid: no matching device")
	// ErrPermissionDenied means the host refused access to the device.
	ErrPermissionDenied = errors.New("hid: access denied")
	// ErrAborted means the user or host cancelled the device request.
	ErrAborted = errors.New("hid: request aborted")
)

// Device identifies one attached HID device.
type Device struct {
	VendorID  uint16
	ProductID uint16
	Product   string
}

// Key returns a stable identity for attach/detach tracking.
func (d Device) Key() uint32 {
	return uint32(d.VendorID)<<16 | uint32(d.ProductID)
}

// Report is one input report from a device.
type Report struct {
	Data []byte
}

// Conn is an open device. Reports delivers input reports until the device
// detaches or Close is called, then the channel closes.
type Conn interface {
	Reports() <-chan Report
	Close() error
}

// Bus abstracts host HID access.
type Bus interface {
	// Devices lists currently attached devices.
	Devices(ctx context.Context) ([]Device, error)
	// Open opens a device for reading.
	Open(ctx context.Context, d Device) (Conn, error)
}

// Filter decides whether a device is a scanner worth attaching.
type Filter func(Device) bool

// AnyKeyboardScanner accepts every device. Deployments narrow this with
// vendor allowlists.
func AnyKeyboardScanner(Device) bool { return true }

// VendorFilter accepts devices from the listed vendor ids.
func VendorFilter(vendors ...uint16) Filter {
	set := make(map[uint16]struct{}, len(vendors))
	for _, v := range vendors {
		set[v] = struct{}{}
	}
	return func(d Device) bool {
		_, ok := set[d.VendorID]
		return ok
	}
}
