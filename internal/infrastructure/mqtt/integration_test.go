//go:build integration

package mqtt

import (
	"context"
	"sync"
	"testing"
	"time"
)

// Integration tests require a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -v ./internal/infrastructure/mqtt/...

func TestIntegration_ConnectClose(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "graylogic-actuator-int-connect"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if !client.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
}

func TestIntegration_IngressRoundtrip(t *testing.T) {
	cfg := testConfig()

	cfg.Broker.ClientID = "graylogic-actuator-int-pub"
	pub, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pub.Close()

	cfg.Broker.ClientID = "graylogic-actuator-int-sub"
	sub, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer sub.Close()

	type received struct{ room, kind, payload string }
	ch := make(chan received, 1)
	var once sync.Once

	err = sub.SubscribeIngress(func(room, kind string, payload []byte) error {
		once.Do(func() { ch <- received{room, kind, string(payload)} })
		return nil
	})
	if err != nil {
		t.Fatalf("SubscribeIngress() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	topic := Topics{}.EventIngress("kitchen", "peopleChanged")
	if err := pub.publishJSON(topic, map[string]string{"people": "1"}, false); err != nil {
		t.Fatalf("publishJSON() error = %v", err)
	}

	select {
	case got := <-ch:
		if got.room != "kitchen" || got.kind != "peopleChanged" || got.payload != `{"people":"1"}` {
			t.Errorf("received %+v", got)
		}
	case <-time.After(5 * time.Second):
		t.Error("Timeout waiting for message")
	}
}

func TestIntegration_PublishStreamState(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.ClientID = "graylogic-actuator-int-state"

	client, err := Connect(cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	if err := client.PublishStreamState("kitchen", "peopleChanged", map[string]string{"status": "connected"}); err != nil {
		t.Errorf("PublishStreamState() error = %v", err)
	}
	if err := client.PublishActuation("kitchen-lamp", map[string]string{"result": "changed"}); err != nil {
		t.Errorf("PublishActuation() error = %v", err)
	}
}
