package ctrlkit

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

// Selectable is anything holding an indexed setting: an index to read, an
// index to change and a fixed number of settings. Banks implement it;
// selectors mutate it.
type Selectable interface {
	GetIndex() uint8
	SetIndex(uint8) error
	Length() uint8
}

// Bank is shared selection state: an index into a fixed number of settings.
// It is a passive value - it does not know its readers. Selectors mutate the
// index from the poll goroutine; the mqtt receive goroutine may set it too,
// so the index is atomic. Bankable outputs read it on demand, every time
// they emit.
type Bank struct {
	Name     string
	Settings uint8

	index atomic.Uint32
}

func (bk *Bank) Init() error {
	if bk.Settings == 0 {
		return errors.Errorf("bank %s configured with zero settings", bk.Name)
	}

	return nil
}

func (bk *Bank) GetIndex() uint8 {
	return uint8(bk.index.Load())
}

// SetIndex rejects out-of-range values: producing only in-range indices is
// the selector's job, via its own wrap logic.
func (bk *Bank) SetIndex(index uint8) error {
	if index >= bk.Settings {
		return errors.Errorf("bank %s index %d out of range (%d settings)", bk.Name, index, bk.Settings)
	}

	bk.index.Store(uint32(index))
	return nil
}

func (bk *Bank) Length() uint8 {
	return bk.Settings
}

// BankConfig computes the per-bank address offset for a bankable output.
// The zero value is a valid non-banked config with a constant zero offset.
type BankConfig struct {
	bank   Selectable
	stride uint16
}

func NewBankConfig(bank Selectable, stride uint16) BankConfig {
	return BankConfig{bank: bank, stride: stride}
}

func (bc BankConfig) Offset() uint16 {
	if bc.bank == nil {
		return 0
	}
	return uint16(bc.bank.GetIndex()) * bc.stride
}

// Address computes the effective address for the currently selected bank
// index. Recomputed on every call: the bank may have changed since the last
// emission, so the result is never cached.
func (bc BankConfig) Address(base uint16) uint16 {
	return base + bc.Offset()
}
