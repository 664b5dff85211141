package ctrlkit

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/hubertat/ctrlkit/drivers"
)

// Selectors are edge-triggered controllers over a Selectable: all input
// sampling and index mutation happens inside Sync, driven by the kit's poll
// loop. Init is the one-time setup.

type IncrementSelector struct {
	Name       string
	DriverName string
	InPin      uint16
	VirtualPin uint16
	BankName   string
	Wrap       bool

	input     drivers.DigitalInput
	target    Selectable
	lastState bool
}

func (is *IncrementSelector) GetDriverName() string {
	return is.DriverName
}

func (is *IncrementSelector) AttachBank(target Selectable) {
	is.target = target
}

func (is *IncrementSelector) Init(driver drivers.IoDriver) error {
	input, err := selectorInit(driver, is.DriverName, is.InPin, is.target)
	if err != nil {
		return errors.Wrapf(err, "increment selector %s Init failed", is.Name)
	}

	is.input = input
	return nil
}

func (is *IncrementSelector) Sync() error {
	state, err := is.input.GetState()
	if err != nil {
		return errors.Wrapf(err, "increment selector %s failed reading input", is.Name)
	}

	rising := state && !is.lastState
	is.lastState = state

	if rising {
		return is.increment()
	}
	return nil
}

func (is *IncrementSelector) increment() error {
	next := is.target.GetIndex() + 1
	if next >= is.target.Length() {
		if is.Wrap {
			next = 0
		} else {
			next = is.target.Length() - 1
		}
	}

	return is.target.SetIndex(next)
}

type DecrementSelector struct {
	Name       string
	DriverName string
	InPin      uint16
	VirtualPin uint16
	BankName   string
	Wrap       bool

	input     drivers.DigitalInput
	target    Selectable
	lastState bool
}

func (ds *DecrementSelector) GetDriverName() string {
	return ds.DriverName
}

func (ds *DecrementSelector) AttachBank(target Selectable) {
	ds.target = target
}

func (ds *DecrementSelector) Init(driver drivers.IoDriver) error {
	input, err := selectorInit(driver, ds.DriverName, ds.InPin, ds.target)
	if err != nil {
		return errors.Wrapf(err, "decrement selector %s Init failed", ds.Name)
	}

	ds.input = input
	return nil
}

func (ds *DecrementSelector) Sync() error {
	state, err := ds.input.GetState()
	if err != nil {
		return errors.Wrapf(err, "decrement selector %s failed reading input", ds.Name)
	}

	rising := state && !ds.lastState
	ds.lastState = state

	if rising {
		return ds.decrement()
	}
	return nil
}

func (ds *DecrementSelector) decrement() error {
	index := ds.target.GetIndex()
	if index == 0 {
		if !ds.Wrap {
			return nil
		}
		return ds.target.SetIndex(ds.target.Length() - 1)
	}

	return ds.target.SetIndex(index - 1)
}

// ToggleSelector flips a two setting bank between settings 0 and 1 on every
// rising input edge.
type ToggleSelector struct {
	Name       string
	DriverName string
	InPin      uint16
	VirtualPin uint16
	BankName   string

	input     drivers.DigitalInput
	target    Selectable
	lastState bool
}

func (ts *ToggleSelector) GetDriverName() string {
	return ts.DriverName
}

func (ts *ToggleSelector) AttachBank(target Selectable) {
	ts.target = target
}

func (ts *ToggleSelector) Init(driver drivers.IoDriver) error {
	input, err := selectorInit(driver, ts.DriverName, ts.InPin, ts.target)
	if err != nil {
		return errors.Wrapf(err, "toggle selector %s Init failed", ts.Name)
	}

	if ts.target.Length() != 2 {
		return errors.Errorf("toggle selector %s needs a bank with exactly 2 settings, got %d", ts.Name, ts.target.Length())
	}

	ts.input = input
	return nil
}

func (ts *ToggleSelector) Sync() error {
	state, err := ts.input.GetState()
	if err != nil {
		return errors.Wrapf(err, "toggle selector %s failed reading input", ts.Name)
	}

	rising := state && !ts.lastState
	ts.lastState = state

	if rising {
		return ts.target.SetIndex(1 - ts.target.GetIndex())
	}
	return nil
}

func selectorInit(driver drivers.IoDriver, driverName string, pin uint16, target Selectable) (input drivers.DigitalInput, err error) {
	if !strings.EqualFold(driver.NameId(), driverName) {
		err = errors.Errorf("mismatched or incorrect driver (%s)", driver.NameId())
		return
	}

	if !driver.IsReady() {
		err = errors.New("driver not ready")
		return
	}

	if target == nil {
		err = errors.New("no bank attached")
		return
	}

	input, err = driver.GetInput(pin)
	if err != nil {
		err = errors.Wrap(err, "failed on getting input")
		return
	}

	if pinModer, ok := driver.(drivers.PinModer); ok {
		err = pinModer.SetPinMode(pin, drivers.ModeInputPullup)
		if err != nil {
			err = errors.Wrap(err, "failed to set input pin mode")
		}
	}

	return
}
