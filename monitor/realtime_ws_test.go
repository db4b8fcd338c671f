package monitor

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"linfit/sgd"
)

func TestHubBroadcastToSubscriber(t *testing.T) {
	hub := NewHub()
	go hub.Start()
	defer hub.Stop()

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	// Registration goes through the hub goroutine; wait for it.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	tm := NewTrainingMonitor(hub)
	rec := sgd.EpochRecord{
		Epoch: 3,
		Start: sgd.Parameters{Bias: 1, Weight: 2},
		End:   sgd.Parameters{Bias: 1.1, Weight: 2.1},
		Loss:  12.5,
	}
	tm.SendEpoch(7, rec)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		t.Fatalf("failed to decode envelope: %v", err)
	}
	if msg.Type != EpochCompleted {
		t.Fatalf("expected %s message, got %s", EpochCompleted, msg.Type)
	}

	var epoch EpochMessage
	if err := json.Unmarshal(msg.Data, &epoch); err != nil {
		t.Fatalf("failed to decode epoch message: %v", err)
	}
	if epoch.SessionID != 7 {
		t.Errorf("session id: got %d, want 7", epoch.SessionID)
	}
	if epoch.Record != rec {
		t.Errorf("record: got %+v, want %+v", epoch.Record, rec)
	}
}

func TestHandleWebSocketAfterStop(t *testing.T) {
	hub := NewHub()
	go hub.Start()
	hub.Stop()

	server := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		// The connection may already be gone during the handshake, which is
		// an acceptable way to refuse a client after shutdown.
		return
	}
	defer conn.Close()

	// The handler must drop the connection instead of waiting on the stopped
	// hub; a read timeout here means it is still blocked on registration.
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected connection to close after hub stop")
	} else {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			t.Fatal("connection stayed open; handler blocked on stopped hub")
		}
	}
}
