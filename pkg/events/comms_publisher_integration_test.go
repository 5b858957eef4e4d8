package events

import (
	"context"
	"testing"
	"time"

	commsserver "github.com/nats-io/nats-server/v2/server"
	comms "github.com/nats-io/nats.go"

	"github.com/morezero/service-mirror/pkg/commsutil"
)

// startTestServer starts an in-process NATS server for testing.
func startTestServer(t *testing.T, port int) (*comms.Conn, func()) {
	t.Helper()

	opts := &commsserver.Options{
		Host:   "127.0.0.1",
		Port:   port,
		NoLog:  true,
		NoSigs: true,
	}

	ns, err := commsserver.NewServer(opts)
	if err != nil {
		t.Fatalf("events:comms_publisher_integration_test - failed to create server: %v", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(10 * time.Second) {
		t.Fatal("events:comms_publisher_integration_test - server failed to start")
	}

	nc, err := comms.Connect(ns.ClientURL(), comms.Timeout(5*time.Second))
	if err != nil {
		ns.Shutdown()
		t.Fatalf("events:comms_publisher_integration_test - failed to connect: %v", err)
	}

	cleanup := func() {
		nc.Close()
		ns.Shutdown()
		ns.WaitForShutdown()
	}

	return nc, cleanup
}

func TestCommsPublisher_PublishChanged_KindSubject(t *testing.T) {
	nc, cleanup := startTestServer(t, 14240)
	defer cleanup()

	publisher := NewCommsPublisher(nc, nil)

	received := make(chan *ChangeEvent, 1)
	sub, err := nc.Subscribe("mirror.changed.released", func(msg *comms.Msg) {
		var event ChangeEvent
		if err := commsutil.DecodePayload(msg.Data, &event); err != nil {
			t.Errorf("events:comms_publisher_integration_test - failed to unmarshal: %v", err)
			return
		}
		received <- &event
	})
	if err != nil {
		t.Fatalf("events:comms_publisher_integration_test - subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()
	nc.Flush()

	err = publisher.PublishChanged(context.Background(), &ChangeEvent{
		Kind:      KindReleased,
		Name:      "servo1",
		Timestamp: Now(),
	})
	if err != nil {
		t.Fatalf("events:comms_publisher_integration_test - publish failed: %v", err)
	}

	select {
	case event := <-received:
		if event.Kind != KindReleased {
			t.Errorf("events:comms_publisher_integration_test - expected kind released, got %s", event.Kind)
		}
		if event.Name != "servo1" {
			t.Errorf("events:comms_publisher_integration_test - expected name servo1, got %s", event.Name)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("events:comms_publisher_integration_test - timed out waiting for event")
	}
}

func TestCommsPublisher_CustomPrefixAndCodec(t *testing.T) {
	nc, cleanup := startTestServer(t, 14241)
	defer cleanup()

	publisher := NewCommsPublisher(nc, &CommsPublisherOpts{
		SubjectPrefix: "observers.changed",
		Codec:         commsutil.CodecCBOR,
	})

	received := make(chan *ChangeEvent, 1)
	sub, err := nc.Subscribe("observers.changed.>", func(msg *comms.Msg) {
		var event ChangeEvent
		if err := commsutil.CodecCBOR.Decode(msg.Data, &event); err != nil {
			t.Errorf("events:comms_publisher_integration_test - failed to decode: %v", err)
			return
		}
		received <- &event
	})
	if err != nil {
		t.Fatalf("events:comms_publisher_integration_test - subscribe failed: %v", err)
	}
	defer sub.Unsubscribe()
	nc.Flush()

	err = publisher.PublishChanged(context.Background(), &ChangeEvent{
		Kind:   KindStatus,
		Level:  "warn",
		Key:    "LowVoltage",
		Detail: "5.9V",
	})
	if err != nil {
		t.Fatalf("events:comms_publisher_integration_test - publish failed: %v", err)
	}

	select {
	case event := <-received:
		if event.Kind != KindStatus || event.Key != "LowVoltage" {
			t.Errorf("events:comms_publisher_integration_test - got %+v", event)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("events:comms_publisher_integration_test - timed out waiting for event")
	}
}
