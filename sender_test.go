package ctrlkit

import (
	"testing"

	"github.com/pkg/errors"
)

type recordedPublish struct {
	topic   string
	payload string
}

type fakePublisher struct {
	published []recordedPublish
}

func (fp *fakePublisher) Publish(topic string, payload []byte) error {
	fp.published = append(fp.published, recordedPublish{topic: topic, payload: string(payload)})
	return nil
}

func TestMqttSender(t *testing.T) {
	publisher := &fakePublisher{}
	sender := NewMqttSender(publisher, "ctrlkit")

	err := sender.Send(26, -3)
	if err != nil {
		t.Fatalf("Send returned err: %v", err)
	}

	if len(publisher.published) != 1 {
		t.Fatalf("got %d published messages, expected 1", len(publisher.published))
	}

	expected := recordedPublish{topic: "ctrlkit/out/26", payload: "-3"}
	if publisher.published[0] != expected {
		t.Errorf("published %v, expected %v", publisher.published[0], expected)
	}
}

type failingSender struct{}

func (fs *failingSender) Send(address uint16, value int) error {
	return errors.New("sink down")
}

func TestMultiSender(t *testing.T) {
	first := &recordingSender{}
	second := &recordingSender{}

	sender := NewMultiSender(first, second)
	err := sender.Send(10, 1)
	if err != nil {
		t.Fatalf("Send returned err: %v", err)
	}

	assertEvents(t, first, []sentEvent{{address: 10, value: 1}})
	assertEvents(t, second, []sentEvent{{address: 10, value: 1}})
}

func TestMultiSenderPartialFailure(t *testing.T) {
	working := &recordingSender{}
	sender := NewMultiSender(&failingSender{}, working)

	err := sender.Send(10, 1)
	if err == nil {
		t.Error("expected error from failing sink")
	}

	// remaining sinks still receive the event
	assertEvents(t, working, []sentEvent{{address: 10, value: 1}})
}

func TestInfluxSenderBeforeSetup(t *testing.T) {
	sender := &InfluxSender{Host: "http://localhost:8086"}

	err := sender.Send(10, 1)
	if err == nil {
		t.Error("expected error sending before Setup")
	}
}
