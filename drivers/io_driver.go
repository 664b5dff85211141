package drivers

import (
	"context"
)

// PinMode selects the electrical configuration of a pin. Not every driver
// supports every mode; drivers that can't honour a request return an error
// from SetPinMode.
type PinMode int

const (
	ModeInput PinMode = iota
	ModeInputPullup
	ModeOutput
)

type IoDriver interface {
	Setup(ctx context.Context, inputs []uint16, outputs []uint16) error
	Close() error
	NameId() string
	IsReady() bool
	GetInput(pin uint16) (DigitalInput, error)
	GetOutput(pin uint16) (DigitalOutput, error)
	GetAllIo() (inputs []uint16, outputs []uint16)
}

// Refresher is implemented by buffered drivers: a single Refresh moves state
// between hardware and the driver's buffer, and all reads between refreshes
// observe that buffer only. The poll loop calls Refresh once per cycle,
// before any element reads.
type Refresher interface {
	Refresh() error
}

// PinModer is the optional per-pin mode capability. Elements call it during
// their one-time Init, never during Sync.
type PinModer interface {
	SetPinMode(pin uint16, mode PinMode) error
}

// BlockSized drivers own a fixed count of pins and can claim a contiguous
// block in a PinSpace.
type BlockSized interface {
	PinCount() uint16
}

// MotionDriver is implemented by drivers that can turn a pair of input pins
// into an accumulating position counter.
type MotionDriver interface {
	GetMotion(pinA uint16, pinB uint16) (MotionInput, error)
}

type DigitalInput interface {
	GetState() (bool, error)
}

type DigitalOutput interface {
	GetState() (bool, error)
	Set(bool) error
}

// AnalogInput reads a raw analog value. Drivers without analog hardware
// return a defined constant zero rather than an error.
type AnalogInput interface {
	GetValue() (uint16, error)
}

// MotionInput is a monotonically accumulating signed position counter,
// consumed by rotary encoder elements.
type MotionInput interface {
	Position() (int64, error)
}
