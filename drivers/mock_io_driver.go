package drivers

import (
	"context"
	"fmt"
	"io"
)

const mockDriverName = "mock_driver"
const mockPinCount = 64

type MockOutput struct {
	state            bool
	pin              uint16
	writeTo          io.Writer
	writeStateChange bool
}

func (mo *MockOutput) GetState() (bool, error) {
	return mo.state, nil
}

func (mo *MockOutput) Set(state bool) error {
	if mo.writeStateChange && state != mo.state {
		fmt.Fprintf(mo.writeTo, "[pin %d] state changed to %v\n", mo.pin, state)
	}
	mo.state = state
	return nil
}

type MockInput struct {
	State bool
	pin   uint16
}

func (mi *MockInput) GetState() (bool, error) {
	return mi.State, nil
}

// MockMotion is a settable position counter for tests and the mock binary.
type MockMotion struct {
	PositionValue int64

	pinA uint16
	pinB uint16
}

func (mm *MockMotion) Position() (int64, error) {
	return mm.PositionValue, nil
}

func (mm *MockMotion) Advance(pulses int64) {
	mm.PositionValue += pulses
}

type MockIoDriver struct {
	inputs  []*MockInput
	outputs []*MockOutput
	motions []*MockMotion
	ready   bool
}

func (md *MockIoDriver) Setup(ctx context.Context, inputs []uint16, outputs []uint16) error {
	for _, inPin := range inputs {
		md.inputs = append(md.inputs, &MockInput{pin: inPin})
	}
	for _, outPin := range outputs {
		md.outputs = append(md.outputs, &MockOutput{pin: outPin})
	}
	md.ready = true
	return nil
}

func (md *MockIoDriver) Close() error {
	md.ready = false
	return nil
}

func (md *MockIoDriver) NameId() string {
	return mockDriverName
}

func (md *MockIoDriver) IsReady() bool {
	return md.ready
}

func (md *MockIoDriver) PinCount() uint16 {
	return mockPinCount
}

func (md *MockIoDriver) GetInput(pin uint16) (DigitalInput, error) {
	for _, input := range md.inputs {
		if pin == input.pin {
			return input, nil
		}
	}
	return nil, fmt.Errorf("mock input %d not found", pin)
}

func (md *MockIoDriver) GetOutput(pin uint16) (DigitalOutput, error) {
	for _, output := range md.outputs {
		if pin == output.pin {
			return output, nil
		}
	}
	return nil, fmt.Errorf("mock output %d not found", pin)
}

func (md *MockIoDriver) GetMotion(pinA uint16, pinB uint16) (MotionInput, error) {
	for _, motion := range md.motions {
		if motion.pinA == pinA && motion.pinB == pinB {
			return motion, nil
		}
	}

	motion := &MockMotion{pinA: pinA, pinB: pinB}
	md.motions = append(md.motions, motion)
	return motion, nil
}

// FindMotion returns a previously handed out motion counter so tests and
// the mock binary can drive it.
func (md *MockIoDriver) FindMotion(pinA uint16, pinB uint16) (*MockMotion, error) {
	for _, motion := range md.motions {
		if motion.pinA == pinA && motion.pinB == pinB {
			return motion, nil
		}
	}
	return nil, fmt.Errorf("mock motion (%d, %d) not found", pinA, pinB)
}

// SetInputState flips a mock input level, simulating the physical control.
func (md *MockIoDriver) SetInputState(pin uint16, state bool) error {
	for _, input := range md.inputs {
		if input.pin == pin {
			input.State = state
			return nil
		}
	}
	return fmt.Errorf("mock input %d not found", pin)
}

func (md *MockIoDriver) GetAllIo() (inputs []uint16, outputs []uint16) {
	for _, input := range md.inputs {
		inputs = append(inputs, input.pin)
	}
	for _, output := range md.outputs {
		outputs = append(outputs, output.pin)
	}
	return
}

func (md *MockIoDriver) MonitorStateChanges(writer io.Writer) {
	for _, out := range md.outputs {
		out.writeTo = writer
		out.writeStateChange = true
	}
}
