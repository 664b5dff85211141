package drivers

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

const shiftregDriverName = "shiftreg"
const maxShiftRegBits = 16

// ShiftRegIn presents up to 16 digital inputs multiplexed onto four control
// lines of a serial-in parallel-out shift register (CD74HC165 and alike).
// The lines are not owned directly: they are resolved from another IoDriver,
// so the register can sit behind native GPIO, an expander or a mock.
//
// Reads never touch hardware. Refresh shifts the parallel inputs into an
// internal buffer and every GetState call between refreshes inspects that
// buffer only; before the first Refresh all pins read low.
type ShiftRegIn struct {
	Bits       uint16
	LineDriver string

	DataPin        uint16
	ClockPin       uint16
	ClockEnablePin uint16
	LatchPin       uint16

	// BitDelayUs is an optional settle delay applied after every control
	// line transition. The required minimum depends on the register chip
	// and wiring; zero means no delay.
	BitDelayUs int

	lines       IoDriver
	data        DigitalInput
	clock       DigitalOutput
	clockEnable DigitalOutput
	latch       DigitalOutput

	buffer  uint16
	inputs  []*ShiftInput
	isReady bool
}

// ShiftInput is a single virtual pin of the register. It doubles as an
// AnalogInput returning a constant zero, since the register has no analog
// capability.
type ShiftInput struct {
	pin uint16
	reg *ShiftRegIn
}

func (si *ShiftInput) GetState() (bool, error) {
	return si.reg.buffer>>si.pin&1 == 1, nil
}

func (si *ShiftInput) GetValue() (uint16, error) {
	// no analog hardware behind the register, zero is the defined result
	return 0, nil
}

func (sr *ShiftRegIn) NameId() string {
	return shiftregDriverName
}

func (sr *ShiftRegIn) IsReady() bool {
	return sr.isReady
}

func (sr *ShiftRegIn) PinCount() uint16 {
	return sr.Bits
}

// SetLineDriver hands over the driver owning the four control lines. Must be
// called before Setup, with the line driver already set up.
func (sr *ShiftRegIn) SetLineDriver(driver IoDriver) {
	sr.lines = driver
}

// ControlPins reports the pins the register needs on its line driver: the
// data line as input, clock, clock-enable and latch as outputs.
func (sr *ShiftRegIn) ControlPins() (inputs []uint16, outputs []uint16) {
	inputs = []uint16{sr.DataPin}
	outputs = []uint16{sr.ClockPin, sr.ClockEnablePin, sr.LatchPin}
	return
}

func (sr *ShiftRegIn) Setup(ctx context.Context, inputs []uint16, outputs []uint16) error {
	if len(outputs) > 0 {
		return errors.Errorf("shiftreg is an input-only device, cannot setup output pins: %v", outputs)
	}

	if sr.Bits == 0 || sr.Bits > maxShiftRegBits {
		return errors.Errorf("shiftreg Bits = %d out of range [1, %d]", sr.Bits, maxShiftRegBits)
	}

	if sr.lines == nil {
		return errors.New("shiftreg line driver not set")
	}
	if !sr.lines.IsReady() {
		return errors.Errorf("shiftreg line driver (%s) not ready", sr.lines.NameId())
	}

	var err error
	sr.data, err = sr.lines.GetInput(sr.DataPin)
	if err != nil {
		return errors.Wrap(err, "shiftreg failed to get data line")
	}
	sr.clock, err = sr.lines.GetOutput(sr.ClockPin)
	if err != nil {
		return errors.Wrap(err, "shiftreg failed to get clock line")
	}
	sr.clockEnable, err = sr.lines.GetOutput(sr.ClockEnablePin)
	if err != nil {
		return errors.Wrap(err, "shiftreg failed to get clock enable line")
	}
	sr.latch, err = sr.lines.GetOutput(sr.LatchPin)
	if err != nil {
		return errors.Wrap(err, "shiftreg failed to get latch line")
	}

	for _, pin := range inputs {
		if pin >= sr.Bits {
			return errors.Errorf("shiftreg input pin %d out of range (%d bits)", pin, sr.Bits)
		}
		sr.inputs = append(sr.inputs, &ShiftInput{pin: pin, reg: sr})
	}

	// idle state: clock low, latch high, clock disabled
	err = sr.setIdle()
	if err != nil {
		return errors.Wrap(err, "shiftreg failed to drive idle state")
	}

	sr.isReady = true
	return nil
}

func (sr *ShiftRegIn) setIdle() error {
	if err := sr.clock.Set(false); err != nil {
		return err
	}
	if err := sr.latch.Set(true); err != nil {
		return err
	}
	return sr.clockEnable.Set(true)
}

func (sr *ShiftRegIn) settle() {
	if sr.BitDelayUs > 0 {
		time.Sleep(time.Duration(sr.BitDelayUs) * time.Microsecond)
	}
}

// Refresh captures the parallel inputs and shifts them into the buffer,
// least significant bit first. The bit order matches the register chip's
// shift convention; reordering here would scramble every pin mapping.
func (sr *ShiftRegIn) Refresh() error {
	if !sr.isReady {
		return errors.New("shiftreg Refresh called before Setup")
	}

	// latch pulse captures the parallel inputs into the register
	if err := sr.latch.Set(false); err != nil {
		return errors.Wrap(err, "shiftreg latch pulse failed")
	}
	sr.settle()
	if err := sr.latch.Set(true); err != nil {
		return errors.Wrap(err, "shiftreg latch pulse failed")
	}

	if err := sr.clockEnable.Set(false); err != nil {
		return errors.Wrap(err, "shiftreg clock enable failed")
	}

	var value uint16
	for bit := uint16(0); bit < sr.Bits; bit++ {
		state, err := sr.data.GetState()
		if err != nil {
			sr.clockEnable.Set(true)
			return errors.Wrapf(err, "shiftreg failed reading bit %d", bit)
		}
		if state {
			value |= 1 << bit
		}

		if err := sr.clock.Set(true); err != nil {
			sr.clockEnable.Set(true)
			return errors.Wrap(err, "shiftreg clock pulse failed")
		}
		sr.settle()
		if err := sr.clock.Set(false); err != nil {
			sr.clockEnable.Set(true)
			return errors.Wrap(err, "shiftreg clock pulse failed")
		}
		sr.settle()
	}

	sr.buffer = value

	return errors.Wrap(sr.clockEnable.Set(true), "shiftreg clock disable failed")
}

// SetPinMode forwards pull configuration to the single physical data line,
// regardless of which virtual pin was named: per-pin input characteristics
// cannot exist on a shift register. Output mode is rejected.
func (sr *ShiftRegIn) SetPinMode(pin uint16, mode PinMode) error {
	if mode == ModeOutput {
		return errors.Errorf("shiftreg pin %d cannot be an output", pin)
	}

	if pm, ok := sr.lines.(PinModer); ok {
		return pm.SetPinMode(sr.DataPin, mode)
	}

	return nil
}

func (sr *ShiftRegIn) GetInput(pin uint16) (DigitalInput, error) {
	for _, input := range sr.inputs {
		if input.pin == pin {
			return input, nil
		}
	}

	return nil, errors.Errorf("shiftreg input %d not found", pin)
}

func (sr *ShiftRegIn) GetOutput(pin uint16) (DigitalOutput, error) {
	return nil, errors.Errorf("shiftreg has no outputs (pin %d requested)", pin)
}

func (sr *ShiftRegIn) GetAllIo() (inputs []uint16, outputs []uint16) {
	for _, input := range sr.inputs {
		inputs = append(inputs, input.pin)
	}
	return
}

func (sr *ShiftRegIn) Close() error {
	if !sr.isReady {
		return nil
	}
	sr.isReady = false
	return sr.setIdle()
}
