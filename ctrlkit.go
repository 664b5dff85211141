package ctrlkit

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/eclipse/paho.golang/paho"
	"github.com/pkg/errors"

	"github.com/hubertat/ctrlkit/drivers"
	"github.com/hubertat/ctrlkit/mqtt"
)

const defaultMqttPrefix = "ctrlkit"

// CtrlKit virtualizes a heterogeneous set of physical inputs behind one pin
// space and drives bank-remapped control elements off a single poll loop.
// The whole configuration is literal values unmarshalled from JSON; nothing
// is rewired after init.
type CtrlKit struct {
	Name string

	Banks []*Bank

	IncrementSelectors []*IncrementSelector
	DecrementSelectors []*DecrementSelector
	ToggleSelectors    []*ToggleSelector
	Encoders           []*RotaryEncoder

	MqttBroker string
	MqttPrefix string
	Influx     *InfluxSender

	VirtualPinStart uint16

	Gpio          *drivers.GpIO
	Mcp23017      *drivers.McpIO
	ShiftRegister *drivers.ShiftRegIn
	Remote        *drivers.RemoteIO
	RemoteSlave   *drivers.RemoteIoSlave
	FakeDriver    *drivers.MockIoDriver

	ioDrivers  map[string]drivers.IoDriver
	pinSpace   *drivers.PinSpace
	mqttClient *mqtt.MqttClient
	sender     Sender
	logger     *log.Logger
	ticker     *time.Ticker
}

// IO is a poll-driven control element bound to one driver.
type IO interface {
	Init(driver drivers.IoDriver) error
	GetDriverName() string
	Sync() error
}

func (ck *CtrlKit) log() *log.Logger {
	if ck.logger == nil {
		ck.logger = log.NewWithOptions(os.Stderr, log.Options{
			Prefix: "ctrlkit: ",
			Level:  log.GetLevel(),
		})
	}
	return ck.logger
}

// driverList returns the configured drivers in a fixed order. The shift
// register comes last: its control lines live on another driver that has to
// be set up first.
func (ck *CtrlKit) driverList() (list []drivers.IoDriver) {
	if ck.Gpio != nil {
		list = append(list, ck.Gpio)
	}
	if ck.Mcp23017 != nil {
		list = append(list, ck.Mcp23017)
	}
	if ck.FakeDriver != nil {
		list = append(list, ck.FakeDriver)
	}
	if ck.Remote != nil {
		list = append(list, ck.Remote)
	}
	if ck.RemoteSlave != nil {
		list = append(list, ck.RemoteSlave)
	}
	if ck.ShiftRegister != nil {
		list = append(list, ck.ShiftRegister)
	}

	return
}

func (ck *CtrlKit) getInPins(driverName string) (pins []uint16) {
	for _, io := range ck.IncrementSelectors {
		if strings.EqualFold(io.DriverName, driverName) {
			pins = append(pins, io.InPin)
		}
	}
	for _, io := range ck.DecrementSelectors {
		if strings.EqualFold(io.DriverName, driverName) {
			pins = append(pins, io.InPin)
		}
	}
	for _, io := range ck.ToggleSelectors {
		if strings.EqualFold(io.DriverName, driverName) {
			pins = append(pins, io.InPin)
		}
	}
	for _, io := range ck.Encoders {
		if strings.EqualFold(io.DriverName, driverName) {
			pins = append(pins, io.PinA, io.PinB)
		}
	}

	if ck.ShiftRegister != nil && strings.EqualFold(ck.ShiftRegister.LineDriver, driverName) {
		controlIns, _ := ck.ShiftRegister.ControlPins()
		pins = append(pins, controlIns...)
	}

	return
}

func (ck *CtrlKit) getOutPins(driverName string) (pins []uint16) {
	if ck.ShiftRegister != nil && strings.EqualFold(ck.ShiftRegister.LineDriver, driverName) {
		_, controlOuts := ck.ShiftRegister.ControlPins()
		pins = append(pins, controlOuts...)
	}

	return
}

// getIos returns elements in sync order: selectors first, bankable outputs
// after, so a bank change requested by a selector takes effect in the same
// poll cycle the outputs emit in.
func (ck *CtrlKit) getIos() []IO {
	ios := []IO{}
	for _, io := range ck.IncrementSelectors {
		ios = append(ios, io)
	}
	for _, io := range ck.DecrementSelectors {
		ios = append(ios, io)
	}
	for _, io := range ck.ToggleSelectors {
		ios = append(ios, io)
	}
	for _, io := range ck.Encoders {
		ios = append(ios, io)
	}

	return ios
}

func (ck *CtrlKit) findBank(name string) (*Bank, error) {
	for _, bank := range ck.Banks {
		if strings.EqualFold(bank.Name, name) {
			return bank, nil
		}
	}

	return nil, errors.Errorf("bank %s not found", name)
}

func (ck *CtrlKit) findDriver(name string) (drivers.IoDriver, error) {
	for driverName, driver := range ck.ioDrivers {
		if strings.EqualFold(driverName, name) {
			return driver, nil
		}
	}

	return nil, errors.Errorf("driver %s not found", name)
}

func (ck *CtrlKit) buildPinSpace() error {
	nativeName := ""
	if ck.Gpio != nil {
		nativeName = ck.Gpio.NameId()
	}

	ck.pinSpace = drivers.NewPinSpace(nativeName, ck.VirtualPinStart)

	for _, driver := range ck.driverList() {
		if driver == ck.Gpio {
			continue
		}
		sized, ok := driver.(drivers.BlockSized)
		if !ok {
			continue
		}
		_, err := ck.pinSpace.Register(driver.NameId(), sized.PinCount())
		if err != nil {
			return errors.Wrap(err, "failed to build pin space")
		}
	}

	return nil
}

// resolveVirtualPins rewrites elements configured with a bare virtual pin
// identity into the owning driver and its local pin number, making the two
// addressing forms interchangeable in config.
func (ck *CtrlKit) resolveVirtualPins() error {
	resolve := func(virtual uint16) (string, uint16, error) {
		driverName, local, err := ck.pinSpace.Resolve(virtual)
		if err != nil {
			return "", 0, errors.Wrap(err, "failed to resolve virtual pin")
		}
		return driverName, local, nil
	}

	for _, io := range ck.IncrementSelectors {
		if len(io.DriverName) == 0 {
			name, local, err := resolve(io.VirtualPin)
			if err != nil {
				return err
			}
			io.DriverName, io.InPin = name, local
		}
	}
	for _, io := range ck.DecrementSelectors {
		if len(io.DriverName) == 0 {
			name, local, err := resolve(io.VirtualPin)
			if err != nil {
				return err
			}
			io.DriverName, io.InPin = name, local
		}
	}
	for _, io := range ck.ToggleSelectors {
		if len(io.DriverName) == 0 {
			name, local, err := resolve(io.VirtualPin)
			if err != nil {
				return err
			}
			io.DriverName, io.InPin = name, local
		}
	}
	for _, io := range ck.Encoders {
		if len(io.DriverName) == 0 {
			nameA, localA, err := resolve(io.VirtualPinA)
			if err != nil {
				return err
			}
			nameB, localB, err := resolve(io.VirtualPinB)
			if err != nil {
				return err
			}
			if !strings.EqualFold(nameA, nameB) {
				return errors.Errorf("encoder %s virtual pins resolve to different drivers (%s, %s)", io.Name, nameA, nameB)
			}
			io.DriverName, io.PinA, io.PinB = nameA, localA, localB
		}
	}

	return nil
}

func (ck *CtrlKit) InitDrivers(ctx context.Context) error {
	ck.ioDrivers = make(map[string]drivers.IoDriver)
	for _, driver := range ck.driverList() {
		ck.ioDrivers[driver.NameId()] = driver
	}

	err := ck.buildPinSpace()
	if err != nil {
		return err
	}

	err = ck.resolveVirtualPins()
	if err != nil {
		return err
	}

	for _, driver := range ck.driverList() {
		if driver == ck.ShiftRegister {
			lineDriver, err := ck.findDriver(ck.ShiftRegister.LineDriver)
			if err != nil {
				return errors.Wrap(err, "shift register line driver not configured")
			}
			ck.ShiftRegister.SetLineDriver(lineDriver)
		}

		err := driver.Setup(ctx, ck.getInPins(driver.NameId()), ck.getOutPins(driver.NameId()))
		if err != nil {
			return errors.Wrapf(err, "failed to setup %s driver", driver.NameId())
		}
	}

	for _, io := range ck.getIos() {
		_, err := ck.findDriver(io.GetDriverName())
		if err != nil {
			return errors.Wrap(err, "io element names a driver that is not set up")
		}
	}

	return nil
}

func (ck *CtrlKit) mqttPrefix() string {
	if len(ck.MqttPrefix) > 0 {
		return ck.MqttPrefix
	}
	return defaultMqttPrefix
}

func (ck *CtrlKit) buildSender() error {
	senders := []Sender{}

	if ck.mqttClient != nil {
		senders = append(senders, NewMqttSender(ck.mqttClient, ck.mqttPrefix()))
	}

	if ck.Influx != nil {
		err := ck.Influx.Setup()
		if err != nil {
			return errors.Wrap(err, "failed to setup influx sender")
		}
		senders = append(senders, ck.Influx)
	}

	switch len(senders) {
	case 0:
		ck.sender = NewLogSender(ck.log())
	case 1:
		ck.sender = senders[0]
	default:
		ck.sender = NewMultiSender(senders...)
	}

	return nil
}

func (ck *CtrlKit) InitIos() error {
	for _, bank := range ck.Banks {
		err := bank.Init()
		if err != nil {
			return errors.Wrap(err, "failed to init bank")
		}
	}

	if ck.sender == nil {
		err := ck.buildSender()
		if err != nil {
			return err
		}
	}

	for _, io := range ck.IncrementSelectors {
		bank, err := ck.findBank(io.BankName)
		if err != nil {
			return errors.Wrapf(err, "increment selector %s", io.Name)
		}
		io.AttachBank(bank)
	}
	for _, io := range ck.DecrementSelectors {
		bank, err := ck.findBank(io.BankName)
		if err != nil {
			return errors.Wrapf(err, "decrement selector %s", io.Name)
		}
		io.AttachBank(bank)
	}
	for _, io := range ck.ToggleSelectors {
		bank, err := ck.findBank(io.BankName)
		if err != nil {
			return errors.Wrapf(err, "toggle selector %s", io.Name)
		}
		io.AttachBank(bank)
	}
	for _, io := range ck.Encoders {
		if len(io.BankName) > 0 {
			bank, err := ck.findBank(io.BankName)
			if err != nil {
				return errors.Wrapf(err, "encoder %s", io.Name)
			}
			io.AttachBank(bank)
		}
		io.AttachSender(ck.sender)
	}

	for _, io := range ck.getIos() {
		driver, err := ck.findDriver(io.GetDriverName())
		if err != nil {
			return errors.Wrap(err, "failed to init io")
		}
		err = io.Init(driver)
		if err != nil {
			return errors.Wrapf(err, "failed to init io")
		}
	}

	return nil
}

// GetInput exposes any input through its virtual pin identity, whichever
// driver owns it.
func (ck *CtrlKit) GetInput(virtualPin uint16) (drivers.DigitalInput, error) {
	if ck.pinSpace == nil {
		return nil, errors.New("pin space not built, call InitDrivers first")
	}

	driverName, local, err := ck.pinSpace.Resolve(virtualPin)
	if err != nil {
		return nil, err
	}

	driver, found := ck.ioDrivers[driverName]
	if !found {
		return nil, errors.Errorf("driver %s not set up", driverName)
	}

	return driver.GetInput(local)
}

func (ck *CtrlKit) syncAll() {
	for _, driver := range ck.driverList() {
		refresher, ok := driver.(drivers.Refresher)
		if !ok {
			continue
		}
		err := refresher.Refresh()
		if err != nil {
			ck.log().Error("driver refresh failed", "driver", driver.NameId(), "err", err)
		}
	}

	for _, io := range ck.getIos() {
		err := io.Sync()
		if err != nil {
			ck.log().Error("io sync failed", "err", err)
		}
	}
}

func (ck *CtrlKit) StartTicker(interval time.Duration) {
	ck.ticker = time.NewTicker(interval)

	for range ck.ticker.C {
		ck.syncAll()
	}
}

func (ck *CtrlKit) Close() (err error) {
	if ck.ticker != nil {
		ck.ticker.Stop()
	}

	for _, driver := range ck.ioDrivers {
		if driver != nil {
			closeErr := driver.Close()
			if closeErr != nil {
				if err == nil {
					err = closeErr
				} else {
					err = errors.Wrap(err, closeErr.Error())
				}
			}
		}
	}

	return
}

func (ck *CtrlKit) InitMqtt() (err error) {
	if len(ck.MqttBroker) == 0 {
		err = errors.New("mqtt broker not set")
		return
	}

	mc, err := mqtt.NewMqttClient(ck.MqttBroker, ck.Name)
	if err != nil {
		err = errors.Wrap(err, "failed to create mqtt client")
		return
	}

	ck.mqttClient = mc

	mqttHandlers := []mqtt.MqttHandler{}
	for _, bank := range ck.Banks {
		mqttHandlers = append(mqttHandlers, &bankSetHandler{
			bank:   bank,
			topic:  fmt.Sprintf("%s/bank/%s/set", ck.mqttPrefix(), bank.Name),
			logger: ck.log(),
		})
	}

	err = mc.Connect(mqttHandlers)
	if err != nil {
		err = errors.Wrap(err, "failed to connect to mqtt broker")
	}

	return
}

// bankSetHandler lets the network select a bank: a decimal index published
// on the bank's set topic. Out-of-range payloads are rejected by the bank
// itself and only logged here.
type bankSetHandler struct {
	bank   *Bank
	topic  string
	logger *log.Logger
}

func (bh *bankSetHandler) MqttSubscribeTopic() string {
	return bh.topic
}

func (bh *bankSetHandler) MqttHandle(pub *paho.Publish) {
	index, err := strconv.Atoi(strings.TrimSpace(string(pub.Payload)))
	if err != nil || index < 0 || index > 255 {
		bh.logger.Warn("discarding bank set message", "topic", pub.Topic, "payload", string(pub.Payload))
		return
	}

	err = bh.bank.SetIndex(uint8(index))
	if err != nil {
		bh.logger.Warn("bank set rejected", "topic", pub.Topic, "err", err)
	}
}

func (ck *CtrlKit) PrintIoStatus(writer io.Writer) {
	fmt.Fprintln(writer)
	fmt.Fprintln(writer, "=== active io drivers ===")
	for driverName, driver := range ck.ioDrivers {
		fmt.Fprintln(writer, "________")
		fmt.Fprintf(writer, "| driver: %s\n", driverName)
		inputs, outputs := driver.GetAllIo()
		fmt.Fprintf(writer, "| in pins: ")
		for _, inpin := range inputs {
			fmt.Fprintf(writer, "%d, ", inpin)
		}
		fmt.Fprintf(writer, "\n| out pins: ")
		for _, outpin := range outputs {
			fmt.Fprintf(writer, "%d, ", outpin)
		}
		fmt.Fprintln(writer)
		fmt.Fprintln(writer, "--------")
	}
	if ck.pinSpace != nil {
		fmt.Fprintln(writer, "=== virtual pin blocks ===")
		names, bases, sizes := ck.pinSpace.Blocks()
		for i := range names {
			fmt.Fprintf(writer, "| %s: pins %d - %d\n", names[i], bases[i], bases[i]+sizes[i]-1)
		}
	}
	fmt.Fprintln(writer, "-----------------------------")
	fmt.Fprintln(writer)
}
