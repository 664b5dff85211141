package drivers

import (
	"context"
	"testing"
)

// fakeShiftChip behaves like a parallel-load shift register wired to a line
// driver: pulling the latch low loads the parallel value, rising clock edges
// (with the clock enabled) shift the next bit onto the data line.
type fakeShiftChip struct {
	parallel uint16

	shiftBuf    uint16
	clock       bool
	clockEnable bool
	latch       bool
}

type chipDataLine struct{ chip *fakeShiftChip }

func (cd *chipDataLine) GetState() (bool, error) {
	return cd.chip.shiftBuf&1 == 1, nil
}

type chipClockLine struct{ chip *fakeShiftChip }

func (cc *chipClockLine) GetState() (bool, error) { return cc.chip.clock, nil }

func (cc *chipClockLine) Set(state bool) error {
	if state && !cc.chip.clock && !cc.chip.clockEnable {
		cc.chip.shiftBuf >>= 1
	}
	cc.chip.clock = state
	return nil
}

type chipClockEnableLine struct{ chip *fakeShiftChip }

func (ce *chipClockEnableLine) GetState() (bool, error) { return ce.chip.clockEnable, nil }

func (ce *chipClockEnableLine) Set(state bool) error {
	ce.chip.clockEnable = state
	return nil
}

type chipLatchLine struct{ chip *fakeShiftChip }

func (cl *chipLatchLine) GetState() (bool, error) { return cl.chip.latch, nil }

func (cl *chipLatchLine) Set(state bool) error {
	if !state {
		cl.chip.shiftBuf = cl.chip.parallel
	}
	cl.chip.latch = state
	return nil
}

// fakeLineDriver exposes the chip's four lines through the driver contract,
// on pins data=0, clock=1, clock enable=2, latch=3.
type fakeLineDriver struct {
	chip *fakeShiftChip
}

func (fl *fakeLineDriver) Setup(ctx context.Context, inputs []uint16, outputs []uint16) error {
	return nil
}
func (fl *fakeLineDriver) Close() error   { return nil }
func (fl *fakeLineDriver) NameId() string { return "fake_lines" }
func (fl *fakeLineDriver) IsReady() bool  { return true }

func (fl *fakeLineDriver) GetInput(pin uint16) (DigitalInput, error) {
	return &chipDataLine{chip: fl.chip}, nil
}

func (fl *fakeLineDriver) GetOutput(pin uint16) (DigitalOutput, error) {
	switch pin {
	case 1:
		return &chipClockLine{chip: fl.chip}, nil
	case 2:
		return &chipClockEnableLine{chip: fl.chip}, nil
	default:
		return &chipLatchLine{chip: fl.chip}, nil
	}
}

func (fl *fakeLineDriver) GetAllIo() (inputs []uint16, outputs []uint16) {
	return []uint16{0}, []uint16{1, 2, 3}
}

func makeShiftReg(t testing.TB, bits uint16, pins []uint16) (*ShiftRegIn, *fakeShiftChip) {
	t.Helper()

	chip := &fakeShiftChip{}
	reg := &ShiftRegIn{
		Bits:           bits,
		DataPin:        0,
		ClockPin:       1,
		ClockEnablePin: 2,
		LatchPin:       3,
	}
	reg.SetLineDriver(&fakeLineDriver{chip: chip})

	err := reg.Setup(context.Background(), pins, []uint16{})
	if err != nil {
		t.Fatalf("shiftreg Setup returned err: %v", err)
	}

	return reg, chip
}

func allPins(bits uint16) (pins []uint16) {
	for pin := uint16(0); pin < bits; pin++ {
		pins = append(pins, pin)
	}
	return
}

func TestShiftRegSetupRejectsOutputs(t *testing.T) {
	reg := &ShiftRegIn{Bits: 8}
	reg.SetLineDriver(&fakeLineDriver{chip: &fakeShiftChip{}})

	err := reg.Setup(context.Background(), []uint16{}, []uint16{2})
	if err == nil {
		t.Error("expected error when requesting output pins on shiftreg")
	}
}

func TestShiftRegSetupBitsRange(t *testing.T) {
	for _, bits := range []uint16{0, 17} {
		reg := &ShiftRegIn{Bits: bits}
		reg.SetLineDriver(&fakeLineDriver{chip: &fakeShiftChip{}})

		err := reg.Setup(context.Background(), []uint16{}, []uint16{})
		if err == nil {
			t.Errorf("expected error for Bits = %d", bits)
		}
	}
}

func TestShiftRegSetupPinRange(t *testing.T) {
	reg := &ShiftRegIn{Bits: 8}
	reg.SetLineDriver(&fakeLineDriver{chip: &fakeShiftChip{}})

	err := reg.Setup(context.Background(), []uint16{8}, []uint16{})
	if err == nil {
		t.Error("expected error for input pin beyond Bits")
	}
}

func TestShiftRegIdleState(t *testing.T) {
	_, chip := makeShiftReg(t, 8, allPins(8))

	assertBools(t, chip.clock, false)
	assertBools(t, chip.latch, true)
	assertBools(t, chip.clockEnable, true)
}

func TestShiftRegReadBeforeRefresh(t *testing.T) {
	reg, chip := makeShiftReg(t, 8, allPins(8))
	chip.parallel = 0xFF

	for pin := uint16(0); pin < 8; pin++ {
		input, err := reg.GetInput(pin)
		if err != nil {
			t.Fatalf("GetInput returned err: %v", err)
		}
		state, _ := input.GetState()
		assertBools(t, state, false)
	}
}

func TestShiftRegReadBack(t *testing.T) {
	reg, chip := makeShiftReg(t, 8, allPins(8))

	value := uint16(0b10110010)
	chip.parallel = value

	err := reg.Refresh()
	if err != nil {
		t.Fatalf("Refresh returned err: %v", err)
	}

	for pin := uint16(0); pin < 8; pin++ {
		input, _ := reg.GetInput(pin)
		state, _ := input.GetState()
		assertBools(t, state, value>>pin&1 == 1)
	}

	// lines back in idle after the transfer
	assertBools(t, chip.clockEnable, true)
	assertBools(t, chip.latch, true)
}

func TestShiftRegWiderRegister(t *testing.T) {
	reg, chip := makeShiftReg(t, 16, allPins(16))

	value := uint16(0xA5C3)
	chip.parallel = value
	reg.Refresh()

	for pin := uint16(0); pin < 16; pin++ {
		input, _ := reg.GetInput(pin)
		state, _ := input.GetState()
		assertBools(t, state, value>>pin&1 == 1)
	}
}

func TestShiftRegRefreshIdempotent(t *testing.T) {
	reg, chip := makeShiftReg(t, 8, allPins(8))
	chip.parallel = 0b01011001

	reg.Refresh()
	first := make([]bool, 8)
	for pin := uint16(0); pin < 8; pin++ {
		input, _ := reg.GetInput(pin)
		first[pin], _ = input.GetState()
	}

	reg.Refresh()
	for pin := uint16(0); pin < 8; pin++ {
		input, _ := reg.GetInput(pin)
		state, _ := input.GetState()
		assertBools(t, state, first[pin])
	}
}

func TestShiftRegReadIsBufferedOnly(t *testing.T) {
	reg, chip := makeShiftReg(t, 8, allPins(8))
	chip.parallel = 0b00000001
	reg.Refresh()

	// physical inputs change, reads keep serving the old snapshot
	chip.parallel = 0b10000000
	input, _ := reg.GetInput(0)
	state, _ := input.GetState()
	assertBools(t, state, true)

	reg.Refresh()
	state, _ = input.GetState()
	assertBools(t, state, false)
	input, _ = reg.GetInput(7)
	state, _ = input.GetState()
	assertBools(t, state, true)
}

func TestShiftRegNoWriteCapability(t *testing.T) {
	reg, chip := makeShiftReg(t, 8, allPins(8))
	chip.parallel = 0b11001100
	reg.Refresh()

	_, err := reg.GetOutput(2)
	if err == nil {
		t.Error("expected error getting output from shiftreg")
	}
	_, err = reg.GetOutput(2)
	if err == nil {
		t.Error("expected error getting output from shiftreg")
	}

	// rejected write attempts leave buffer and lines untouched
	for pin := uint16(0); pin < 8; pin++ {
		input, _ := reg.GetInput(pin)
		state, _ := input.GetState()
		assertBools(t, state, uint16(0b11001100)>>pin&1 == 1)
	}
	assertBools(t, chip.clock, false)
	assertBools(t, chip.latch, true)
	assertBools(t, chip.clockEnable, true)
}

func TestShiftRegAnalogReadsZero(t *testing.T) {
	reg, chip := makeShiftReg(t, 8, allPins(8))
	chip.parallel = 0xFF
	reg.Refresh()

	input, _ := reg.GetInput(3)
	analog, ok := input.(AnalogInput)
	if !ok {
		t.Fatal("shiftreg input should expose analog capability")
	}

	value, err := analog.GetValue()
	if err != nil {
		t.Errorf("analog read returned err: %v", err)
	}
	if value != 0 {
		t.Errorf("analog read = %d, want constant 0", value)
	}
}

func TestShiftRegSetPinModeRejectsOutput(t *testing.T) {
	reg, _ := makeShiftReg(t, 8, allPins(8))

	err := reg.SetPinMode(2, ModeOutput)
	if err == nil {
		t.Error("expected error setting output mode on shiftreg pin")
	}

	err = reg.SetPinMode(2, ModeInputPullup)
	if err != nil {
		t.Errorf("input pull mode should be accepted, got err: %v", err)
	}
}
