package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/hubertat/ctrlkit"
	"github.com/hubertat/ctrlkit/drivers"
)

var (
	Version string
	Build   string
)

func main() {
	log.Println("ctrlkit started")
	log.Println("mock instance for testing purposes, no hardware needed")

	syncDuration := 20 * time.Millisecond
	log.Println("syncDuration is ", syncDuration)

	ck := &ctrlkit.CtrlKit{Name: "ctrlkit-mock"}

	ck.Banks = append(ck.Banks, &ctrlkit.Bank{Name: "main", Settings: 4})
	ck.IncrementSelectors = append(ck.IncrementSelectors, &ctrlkit.IncrementSelector{
		Name:       "fake bank button",
		DriverName: "mock_driver",
		InPin:      1,
		BankName:   "main",
		Wrap:       true,
	})
	ck.Encoders = append(ck.Encoders, &ctrlkit.RotaryEncoder{
		Name:        "fake dial",
		DriverName:  "mock_driver",
		PinA:        2,
		PinB:        3,
		BaseAddress: 10,
		BankName:    "main",
		Stride:      8,
	})
	ck.FakeDriver = &drivers.MockIoDriver{}

	log.Println("will init ctrlkit drivers...")
	err := ck.InitDrivers(context.Background())
	defer ck.Close()
	if err != nil {
		panic(err)
	}
	log.Println("will init ctrlkit IOs...")
	err = ck.InitIos()
	if err != nil {
		panic(err)
	}

	ck.PrintIoStatus(os.Stdout)

	go ck.StartTicker(syncDuration)

	motion, err := ck.FakeDriver.FindMotion(2, 3)
	if err != nil {
		panic(err)
	}

	// simulate a slow clockwise turn and a bank press every few seconds
	pressed := false
	for i := 0; ; i++ {
		time.Sleep(500 * time.Millisecond)
		motion.Advance(2)

		if i%6 == 5 {
			pressed = !pressed
			ck.FakeDriver.SetInputState(1, pressed)
		}

		buttonInput, err := ck.GetInput(drivers.DefaultVirtualPinStart + 1)
		if err != nil {
			log.Println("virtual pin lookup failed:", err)
			continue
		}
		state, _ := buttonInput.GetState()
		log.Printf("bank button (virtual pin %d) state: %v\n", drivers.DefaultVirtualPinStart+1, state)
	}
}
