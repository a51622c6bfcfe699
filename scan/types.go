package scan

import (
	"context"
	"time"

	"github.com/tillworks/scanpipe/catalog"
	"github.com/tillworks/scanpipe/scan/internal/decode"
	"github.com/tillworks/scanpipe/scan/internal/frame"
	"github.com/tillworks/scanpipe/scan/internal/hid"
	"github.com/tillworks/scanpipe/scan/internal/vision"
)

// Source identifies which capture path produced a code.
type Source string

const (
	SourceCamera Source = "camera"
	SourceWedge  Source = "wedge"
	SourceHID    Source = "hid"
	SourceVision Source = "vision"
	SourceManual Source = "manual"
)

// Scan is one captured code entering the pipeline.
type Scan struct {
	Code      string
	Source    Source
	Symbology string
	At        time.Time
}

// Aliases for the collaborator contracts callers implement or consume.
// The implementations live in internal packages; these keep the public
// surface in one place.
type (
	// CameraDevice opens camera capture streams.
	CameraDevice = frame.Device
	// CameraStream delivers frames.
	CameraStream = frame.Stream
	// CameraConstraints describe one acquisition attempt.
	CameraConstraints = frame.Constraints
	// Frame is one captured camera image.
	Frame = frame.Frame
	// HIDBus abstracts host USB/HID access.
	HIDBus = hid.Bus
	// HIDDevice identifies an attached HID device.
	HIDDevice = hid.Device
	// VisionIdentifier submits frames to a vision model.
	VisionIdentifier = vision.Identifier
	// Identification is a vision model answer.
	Identification = vision.Identification
	// DecodeResult is one symbology decode.
	DecodeResult = decode.Result
)

// Registrar adds a product the vision path identified without a code.
// Returning an error drops the identification; the cart only ever holds
// catalog products.
type Registrar interface {
	Register(ctx context.Context, id *Identification) (*catalog.Product, error)
}

// RegistrarFunc adapts a function to the Registrar interface.
type RegistrarFunc func(ctx context.Context, id *Identification) (*catalog.Product, error)

func (f RegistrarFunc) Register(ctx context.Context, id *Identification) (*catalog.Product, error) {
	return f(ctx, id)
}

// Status is the live pipeline state for the status surface.
type Status struct {
	Running      bool      `json:"running"`
	CameraActive bool      `json:"camera_active"`
	CameraMode   string    `json:"camera_mode"`
	GunListening bool      `json:"gun_listening"`
	USBConnected bool      `json:"usb_connected"`
	USBDevice    string    `json:"usb_device,omitempty"`
	Lines        int       `json:"lines"`
	Units        int       `json:"units"`
	Total        int64     `json:"total"`
	LastScanAt   time.Time `json:"last_scan_at,omitzero"`
	LastCode     string    `json:"last_code,omitempty"`
	LastSource   Source    `json:"last_source,omitempty"`
	SalesFlushed int64     `json:"sales_flushed"`
}
