package ctrlkit

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/hubertat/ctrlkit/drivers"
)

const defaultPulsesPerStep = 4
const defaultSpeedMultiply = 1

// RotaryEncoder turns raw relative motion pulses into scaled relative events
// at a bank-computed address. PulsesPerStep pulses make one step; each step
// emits SpeedMultiply through the attached sender.
type RotaryEncoder struct {
	Name        string
	DriverName  string
	PinA        uint16
	PinB        uint16
	VirtualPinA uint16
	VirtualPinB uint16

	BaseAddress   uint16
	BankName      string
	Stride        uint16
	SpeedMultiply int
	PulsesPerStep int

	motion drivers.MotionInput
	bank   BankConfig
	sender Sender

	// previousPosition tracks the last position a step was emitted at, not
	// the last raw position: the difference below one full step must carry
	// over to the next poll, or slow rotation gets truncated away.
	previousPosition int64
}

func (re *RotaryEncoder) GetDriverName() string {
	return re.DriverName
}

func (re *RotaryEncoder) AttachBank(bank Selectable) {
	re.bank = NewBankConfig(bank, re.Stride)
}

func (re *RotaryEncoder) AttachSender(sender Sender) {
	re.sender = sender
}

func (re *RotaryEncoder) Init(driver drivers.IoDriver) error {
	if !strings.EqualFold(driver.NameId(), re.DriverName) {
		return errors.Errorf("encoder %s Init failed, mismatched or incorrect driver (%s)", re.Name, driver.NameId())
	}

	if !driver.IsReady() {
		return errors.Errorf("encoder %s Init failed, driver not ready", re.Name)
	}

	if re.sender == nil {
		return errors.Errorf("encoder %s Init failed, no sender attached", re.Name)
	}

	if re.PulsesPerStep == 0 {
		re.PulsesPerStep = defaultPulsesPerStep
	}
	if re.SpeedMultiply == 0 {
		re.SpeedMultiply = defaultSpeedMultiply
	}
	if re.PulsesPerStep < 0 || re.SpeedMultiply < 0 {
		return errors.Errorf("encoder %s Init failed, negative PulsesPerStep or SpeedMultiply", re.Name)
	}

	motionDriver, ok := driver.(drivers.MotionDriver)
	if !ok {
		return errors.Errorf("encoder %s Init failed, driver %s has no motion support", re.Name, driver.NameId())
	}

	motion, err := motionDriver.GetMotion(re.PinA, re.PinB)
	if err != nil {
		return errors.Wrapf(err, "encoder %s Init failed on getting motion input", re.Name)
	}

	re.motion = motion
	return nil
}

func (re *RotaryEncoder) Sync() error {
	position, err := re.motion.Position()
	if err != nil {
		return errors.Wrapf(err, "encoder %s failed reading position", re.Name)
	}

	delta := (position - re.previousPosition) / int64(re.PulsesPerStep)
	if delta == 0 {
		return nil
	}

	address := re.bank.Address(re.BaseAddress)

	// the consumed pulses are gone whether or not the send worked, so the
	// position advances first; a failed send is reported, not replayed
	re.previousPosition += delta * int64(re.PulsesPerStep)

	err = re.sender.Send(address, int(delta)*re.SpeedMultiply)
	if err != nil {
		return errors.Wrapf(err, "encoder %s failed to send event (address %d)", re.Name, address)
	}

	return nil
}
