package ctrlkit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/pkg/errors"

	"github.com/hubertat/ctrlkit/mqtt"
)

const influxPingTimeout = 5 * time.Second
const defaultInfluxMeasurement = "control_event"

// Sender carries an emitted (effective address, scaled value) tuple to the
// outside world. The strategy is injected into each output element once at
// Init, never re-selected per call.
type Sender interface {
	Send(address uint16, value int) error
}

// LogSender is the fallback emission target when no transport is configured.
type LogSender struct {
	logger *log.Logger
}

func NewLogSender(logger *log.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (ls *LogSender) Send(address uint16, value int) error {
	ls.logger.Info("control event", "address", address, "value", value)
	return nil
}

// MqttSender publishes every event on <prefix>/out/<address> with the value
// as a decimal payload.
type MqttSender struct {
	prefix    string
	publisher mqtt.Publisher
}

func NewMqttSender(publisher mqtt.Publisher, prefix string) *MqttSender {
	return &MqttSender{prefix: prefix, publisher: publisher}
}

func (ms *MqttSender) Send(address uint16, value int) error {
	topic := fmt.Sprintf("%s/out/%d", ms.prefix, address)
	err := ms.publisher.Publish(topic, []byte(strconv.Itoa(value)))
	if err != nil {
		return errors.Wrapf(err, "mqtt sender failed to publish to %s", topic)
	}
	return nil
}

// InfluxSender records every event as a point, useful as a telemetry sink
// next to (or instead of) a live transport.
type InfluxSender struct {
	Host         string
	Organization string
	Bucket       string
	Measurement  string
	Token        string

	writeApi api.WriteAPIBlocking
}

func (is *InfluxSender) Setup() error {
	if len(is.Measurement) == 0 {
		is.Measurement = defaultInfluxMeasurement
	}

	client := influxdb2.NewClient(is.Host, is.Token)

	ctx, cancel := context.WithTimeout(context.Background(), influxPingTimeout)
	defer cancel()

	ok, err := client.Ping(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to ping influx server")
	}
	if !ok {
		return errors.Errorf("influx server (%s) not ready", is.Host)
	}

	is.writeApi = client.WriteAPIBlocking(is.Organization, is.Bucket)
	return nil
}

func (is *InfluxSender) Send(address uint16, value int) error {
	if is.writeApi == nil {
		return errors.New("influx sender used before Setup")
	}

	point := influxdb2.NewPoint(is.Measurement,
		map[string]string{"address": strconv.Itoa(int(address))},
		map[string]interface{}{"value": value},
		time.Now())

	err := is.writeApi.WritePoint(context.Background(), point)
	if err != nil {
		return errors.Wrap(err, "influx sender failed to write point")
	}
	return nil
}

// MultiSender fans one event out to every configured sender; all of them
// are attempted even when some fail.
type MultiSender struct {
	senders []Sender
}

func NewMultiSender(senders ...Sender) *MultiSender {
	return &MultiSender{senders: senders}
}

func (ms *MultiSender) Send(address uint16, value int) (err error) {
	for _, sender := range ms.senders {
		sendErr := sender.Send(address, value)
		if sendErr != nil {
			if err == nil {
				err = sendErr
			} else {
				err = errors.Wrap(err, sendErr.Error())
			}
		}
	}
	return
}
