package drivers

import (
	"github.com/pkg/errors"
)

// DefaultVirtualPinStart leaves room for the native controller's own pin
// numbers below the first extended block.
const DefaultVirtualPinStart uint16 = 64

type pinBlock struct {
	driver string
	base   uint16
	size   uint16
}

// PinSpace assigns every driver-owned pin a stable identity inside one
// shared namespace. Identities below the start value map directly onto the
// native driver's pin numbers; extended drivers claim contiguous blocks
// above it, in registration order. Assignments never change after setup.
type PinSpace struct {
	nativeDriver string
	start        uint16
	next         uint16
	blocks       []pinBlock
}

func NewPinSpace(nativeDriver string, start uint16) *PinSpace {
	if start == 0 {
		start = DefaultVirtualPinStart
	}
	return &PinSpace{
		nativeDriver: nativeDriver,
		start:        start,
		next:         start,
	}
}

// Register claims the next free contiguous block of size pins for the named
// driver and returns its base identity.
func (ps *PinSpace) Register(driver string, size uint16) (base uint16, err error) {
	if size == 0 {
		err = errors.Errorf("pin space: driver %s requested a zero sized block", driver)
		return
	}

	for _, block := range ps.blocks {
		if block.driver == driver {
			err = errors.Errorf("pin space: driver %s already registered", driver)
			return
		}
	}

	base = ps.next
	ps.blocks = append(ps.blocks, pinBlock{driver: driver, base: base, size: size})
	ps.next += size

	return
}

// Resolve translates a virtual pin identity into the owning driver and its
// local pin number.
func (ps *PinSpace) Resolve(pin uint16) (driver string, local uint16, err error) {
	if pin < ps.start {
		if len(ps.nativeDriver) == 0 {
			err = errors.Errorf("pin space: pin %d is below the extended range and no native driver is configured", pin)
			return
		}
		driver = ps.nativeDriver
		local = pin
		return
	}

	for _, block := range ps.blocks {
		if pin >= block.base && pin < block.base+block.size {
			driver = block.driver
			local = pin - block.base
			return
		}
	}

	err = errors.Errorf("pin space: pin %d not claimed by any driver", pin)
	return
}

// VirtualPin is the inverse of Resolve.
func (ps *PinSpace) VirtualPin(driver string, local uint16) (uint16, error) {
	if driver == ps.nativeDriver {
		if local >= ps.start {
			return 0, errors.Errorf("pin space: native pin %d collides with the extended range", local)
		}
		return local, nil
	}

	for _, block := range ps.blocks {
		if block.driver == driver {
			if local >= block.size {
				return 0, errors.Errorf("pin space: pin %d out of range for driver %s (%d pins)", local, driver, block.size)
			}
			return block.base + local, nil
		}
	}

	return 0, errors.Errorf("pin space: driver %s not registered", driver)
}

// Blocks reports the claimed ranges, for status printing.
func (ps *PinSpace) Blocks() (drivers []string, bases []uint16, sizes []uint16) {
	for _, block := range ps.blocks {
		drivers = append(drivers, block.driver)
		bases = append(bases, block.base)
		sizes = append(sizes, block.size)
	}
	return
}
