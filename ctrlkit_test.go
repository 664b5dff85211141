package ctrlkit

import (
	"context"
	"sync"
	"testing"

	"github.com/eclipse/paho.golang/paho"

	"github.com/hubertat/ctrlkit/drivers"
)

func makeTestKit(t testing.TB) (*CtrlKit, *recordingSender) {
	t.Helper()

	ck := &CtrlKit{
		Name:  "test kit",
		Banks: []*Bank{{Name: "main", Settings: 4}},
		IncrementSelectors: []*IncrementSelector{
			{Name: "next", DriverName: "mock_driver", InPin: 1, BankName: "main", Wrap: true},
		},
		Encoders: []*RotaryEncoder{
			{Name: "volume", DriverName: "mock_driver", PinA: 2, PinB: 3,
				BaseAddress: 10, BankName: "main", Stride: 8, PulsesPerStep: 4},
		},
		FakeDriver: &drivers.MockIoDriver{},
	}

	err := ck.InitDrivers(context.Background())
	if err != nil {
		t.Fatalf("InitDrivers returned err: %v", err)
	}

	sender := &recordingSender{}
	ck.sender = sender

	err = ck.InitIos()
	if err != nil {
		t.Fatalf("InitIos returned err: %v", err)
	}

	return ck, sender
}

func TestKitInit(t *testing.T) {
	ck, _ := makeTestKit(t)

	inputs, _ := ck.FakeDriver.GetAllIo()
	if len(inputs) != 3 {
		t.Fatalf("fake driver got %d input pins, expected 3 (%v)", len(inputs), inputs)
	}
	for pos, pin := range []uint16{1, 2, 3} {
		if inputs[pos] != pin {
			t.Errorf("input pin %d = %d, expected %d", pos, inputs[pos], pin)
		}
	}

	if !ck.FakeDriver.IsReady() {
		t.Error("fake driver should be ready after InitDrivers")
	}
}

func TestKitSelectorThenEncoderSameCycle(t *testing.T) {
	ck, sender := makeTestKit(t)

	motion, err := ck.FakeDriver.FindMotion(2, 3)
	if err != nil {
		t.Fatalf("FindMotion returned err: %v", err)
	}

	// motion and a bank press land in the same poll: the selector syncs
	// first, so the emission already carries the new bank offset
	ck.FakeDriver.SetInputState(1, true)
	motion.Advance(4)
	ck.syncAll()

	assertEvents(t, sender, []sentEvent{{address: 18, value: 1}})

	ck.FakeDriver.SetInputState(1, false)
	motion.Advance(4)
	ck.syncAll()

	assertEvents(t, sender, []sentEvent{
		{address: 18, value: 1},
		{address: 18, value: 1},
	})
}

func TestKitVirtualPinConfig(t *testing.T) {
	start := drivers.DefaultVirtualPinStart

	ck := &CtrlKit{
		Banks: []*Bank{{Name: "main", Settings: 4}},
		IncrementSelectors: []*IncrementSelector{
			{Name: "next", VirtualPin: start + 1, BankName: "main", Wrap: true},
		},
		Encoders: []*RotaryEncoder{
			{Name: "volume", VirtualPinA: start + 2, VirtualPinB: start + 3,
				BaseAddress: 10, BankName: "main", Stride: 8},
		},
		FakeDriver: &drivers.MockIoDriver{},
	}

	err := ck.InitDrivers(context.Background())
	if err != nil {
		t.Fatalf("InitDrivers returned err: %v", err)
	}

	// virtual pin identities resolve to the mock block above the start
	if ck.IncrementSelectors[0].DriverName != "mock_driver" || ck.IncrementSelectors[0].InPin != 1 {
		t.Errorf("selector resolved to (%s, %d), expected (mock_driver, 1)",
			ck.IncrementSelectors[0].DriverName, ck.IncrementSelectors[0].InPin)
	}
	if ck.Encoders[0].PinA != 2 || ck.Encoders[0].PinB != 3 {
		t.Errorf("encoder resolved to pins (%d, %d), expected (2, 3)",
			ck.Encoders[0].PinA, ck.Encoders[0].PinB)
	}

	input, err := ck.GetInput(start + 1)
	if err != nil {
		t.Fatalf("GetInput returned err: %v", err)
	}
	ck.FakeDriver.SetInputState(1, true)
	state, _ := input.GetState()
	if !state {
		t.Error("input reached through its virtual pin should read high")
	}
}

func TestKitShiftRegisterLineDriverCase(t *testing.T) {
	ck := &CtrlKit{
		FakeDriver: &drivers.MockIoDriver{},
		ShiftRegister: &drivers.ShiftRegIn{
			Bits:           8,
			LineDriver:     "Mock_Driver",
			DataPin:        4,
			ClockPin:       5,
			ClockEnablePin: 6,
			LatchPin:       7,
		},
	}

	// config driver names match case insensitively everywhere, the line
	// driver lookup included
	err := ck.InitDrivers(context.Background())
	if err != nil {
		t.Fatalf("InitDrivers returned err: %v", err)
	}

	if !ck.ShiftRegister.IsReady() {
		t.Error("shift register should be ready after InitDrivers")
	}
}

func TestKitUnknownBank(t *testing.T) {
	ck := &CtrlKit{
		Banks: []*Bank{{Name: "main", Settings: 4}},
		IncrementSelectors: []*IncrementSelector{
			{Name: "next", DriverName: "mock_driver", InPin: 1, BankName: "missing"},
		},
		FakeDriver: &drivers.MockIoDriver{},
	}

	err := ck.InitDrivers(context.Background())
	if err != nil {
		t.Fatalf("InitDrivers returned err: %v", err)
	}

	ck.sender = &recordingSender{}
	err = ck.InitIos()
	if err == nil {
		t.Error("expected error for selector naming an unknown bank")
	}
}

func TestKitEncoderWithoutBank(t *testing.T) {
	ck := &CtrlKit{
		Encoders: []*RotaryEncoder{
			{Name: "volume", DriverName: "mock_driver", PinA: 2, PinB: 3, BaseAddress: 7},
		},
		FakeDriver: &drivers.MockIoDriver{},
	}

	err := ck.InitDrivers(context.Background())
	if err != nil {
		t.Fatalf("InitDrivers returned err: %v", err)
	}

	sender := &recordingSender{}
	ck.sender = sender
	err = ck.InitIos()
	if err != nil {
		t.Fatalf("InitIos returned err: %v", err)
	}

	motion, _ := ck.FakeDriver.FindMotion(2, 3)
	motion.Advance(4)
	ck.syncAll()

	assertEvents(t, sender, []sentEvent{{address: 7, value: 1}})
}

func TestBankSetHandler(t *testing.T) {
	bank := &Bank{Name: "main", Settings: 4}
	handler := &bankSetHandler{bank: bank, topic: "ctrlkit/bank/main/set", logger: (&CtrlKit{}).log()}

	handler.MqttHandle(&paho.Publish{Topic: handler.topic, Payload: []byte("2")})
	assertIndex(t, bank, 2)

	// rejected payloads leave the selection alone
	for _, payload := range []string{"9", "-1", "next", ""} {
		handler.MqttHandle(&paho.Publish{Topic: handler.topic, Payload: []byte(payload)})
		assertIndex(t, bank, 2)
	}

	handler.MqttHandle(&paho.Publish{Topic: handler.topic, Payload: []byte(" 0\n")})
	assertIndex(t, bank, 0)
}

// The handler runs on the mqtt receive goroutine while the poll goroutine
// reads the bank through BankConfig; the index has to stay race free between
// the two.
func TestBankSetFromAnotherGoroutine(t *testing.T) {
	bank := &Bank{Name: "main", Settings: 4}
	handler := &bankSetHandler{bank: bank, topic: "ctrlkit/bank/main/set", logger: (&CtrlKit{}).log()}
	config := NewBankConfig(bank, 8)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for count := 0; count < 500; count++ {
			payload := []byte("2")
			if count%2 == 0 {
				payload = []byte("1")
			}
			handler.MqttHandle(&paho.Publish{Topic: handler.topic, Payload: payload})
		}
	}()

	for count := 0; count < 500; count++ {
		address := config.Address(10)
		if address != 10 && address != 18 && address != 26 {
			t.Fatalf("address = %d, expected one of the configured bank offsets", address)
		}
	}

	wg.Wait()
}
