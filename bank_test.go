package ctrlkit

import (
	"testing"
)

func assertIndex(t testing.TB, bank *Bank, expected uint8) {
	t.Helper()

	if bank.GetIndex() != expected {
		t.Errorf("bank index = %d, expected %d", bank.GetIndex(), expected)
	}
}

func TestBankInit(t *testing.T) {
	bank := &Bank{Name: "main", Settings: 4}
	err := bank.Init()
	if err != nil {
		t.Errorf("Init returned err: %v", err)
	}

	empty := &Bank{Name: "broken"}
	err = empty.Init()
	if err == nil {
		t.Error("expected error for bank with zero settings")
	}
}

func TestBankSetIndex(t *testing.T) {
	bank := &Bank{Name: "main", Settings: 4}

	assertIndex(t, bank, 0)

	err := bank.SetIndex(3)
	if err != nil {
		t.Errorf("SetIndex returned err: %v", err)
	}
	assertIndex(t, bank, 3)

	err = bank.SetIndex(4)
	if err == nil {
		t.Error("expected error setting out of range index")
	}
	assertIndex(t, bank, 3)
}

func TestBankConfigAddress(t *testing.T) {
	bank := &Bank{Name: "main", Settings: 3}
	config := NewBankConfig(bank, 5)

	for index, expected := range []uint16{10, 15, 20} {
		bank.SetIndex(uint8(index))
		if config.Address(10) != expected {
			t.Errorf("address at index %d = %d, expected %d", index, config.Address(10), expected)
		}
	}
}

func TestBankConfigZeroValue(t *testing.T) {
	var config BankConfig

	if config.Offset() != 0 {
		t.Errorf("zero value offset = %d, expected 0", config.Offset())
	}
	if config.Address(42) != 42 {
		t.Errorf("zero value address = %d, expected 42", config.Address(42))
	}
}
