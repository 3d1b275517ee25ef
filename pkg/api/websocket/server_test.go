package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/0xmhha/stealth-monitor-go/internal/testutil"
	"github.com/0xmhha/stealth-monitor-go/pkg/types"
)

func testEvent(kind types.EventKind, logIndex uint) *types.StealthEvent {
	return &types.StealthEvent{
		Kind:        kind,
		ChainID:     11155111,
		ChainName:   "sepolia",
		BlockNumber: 100,
		TxHash:      testutil.TestTxHash(100, logIndex),
		LogIndex:    logIndex,
		Subject:     common.HexToAddress("0x1111111111111111111111111111111111111111"),
	}
}

// subscribe sends a subscribe frame and consumes the success response.
func subscribe(t *testing.T, conn *websocket.Conn, kinds ...types.EventKind) {
	t.Helper()

	payload, _ := json.Marshal(SubscribeRequest{Kinds: kinds})
	if err := conn.WriteJSON(Message{Type: "subscribe", Payload: payload}); err != nil {
		t.Fatalf("failed to send subscribe: %v", err)
	}

	var resp Message
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if err := conn.ReadJSON(&resp); err != nil {
		t.Fatalf("failed to read subscribe response: %v", err)
	}
	if resp.Type != "success" {
		t.Fatalf("subscribe response = %q, want success", resp.Type)
	}
}

func TestWebSocketServer(t *testing.T) {
	server := NewServer(zap.NewNop())
	defer server.Stop()

	ts := httptest.NewServer(http.HandlerFunc(server.ServeHTTP))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")

	t.Run("Connect", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("failed to connect: %v", err)
		}
		defer conn.Close()

		time.Sleep(100 * time.Millisecond)
		if count := server.Hub().ClientCount(); count != 1 {
			t.Errorf("expected 1 client, got %d", count)
		}
	})

	t.Run("SubscribeAndReceive", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("failed to connect: %v", err)
		}
		defer conn.Close()

		subscribe(t, conn, types.EventKindAnnouncement)

		event := testEvent(types.EventKindAnnouncement, 0)
		server.Broadcast(event)

		var resp Message
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatalf("failed to read broadcast: %v", err)
		}
		if resp.Type != "event" {
			t.Fatalf("message type = %q, want event", resp.Type)
		}

		var got types.StealthEvent
		if err := json.Unmarshal(resp.Payload, &got); err != nil {
			t.Fatalf("failed to unmarshal event: %v", err)
		}
		if got.Kind != types.EventKindAnnouncement {
			t.Errorf("event kind = %q, want announcement", got.Kind)
		}
		if got.TxHash != event.TxHash {
			t.Errorf("event tx hash = %s, want %s", got.TxHash, event.TxHash)
		}
	})

	t.Run("KindFilter", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("failed to connect: %v", err)
		}
		defer conn.Close()

		// Only registrations; the announcement must not arrive.
		subscribe(t, conn, types.EventKindRegistration)

		server.Broadcast(testEvent(types.EventKindAnnouncement, 1))
		server.Broadcast(testEvent(types.EventKindRegistration, 2))

		var resp Message
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatalf("failed to read broadcast: %v", err)
		}

		var got types.StealthEvent
		if err := json.Unmarshal(resp.Payload, &got); err != nil {
			t.Fatalf("failed to unmarshal event: %v", err)
		}
		if got.Kind != types.EventKindRegistration {
			t.Errorf("event kind = %q, want registration", got.Kind)
		}
	})

	t.Run("EmptyKindsMeansBoth", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("failed to connect: %v", err)
		}
		defer conn.Close()

		subscribe(t, conn)

		server.Broadcast(testEvent(types.EventKindAnnouncement, 3))
		server.Broadcast(testEvent(types.EventKindRegistration, 4))

		for i := 0; i < 2; i++ {
			var resp Message
			_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			if err := conn.ReadJSON(&resp); err != nil {
				t.Fatalf("failed to read broadcast %d: %v", i, err)
			}
			if resp.Type != "event" {
				t.Errorf("message %d type = %q, want event", i, resp.Type)
			}
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("failed to connect: %v", err)
		}
		defer conn.Close()

		subscribe(t, conn, types.EventKindAnnouncement, types.EventKindRegistration)

		payload, _ := json.Marshal(SubscribeRequest{Kinds: []types.EventKind{types.EventKindAnnouncement}})
		if err := conn.WriteJSON(Message{Type: "unsubscribe", Payload: payload}); err != nil {
			t.Fatalf("failed to send unsubscribe: %v", err)
		}

		var resp Message
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatalf("failed to read unsubscribe response: %v", err)
		}
		if resp.Type != "success" {
			t.Errorf("unsubscribe response = %q, want success", resp.Type)
		}

		// Announcements are filtered out now, registrations still flow.
		server.Broadcast(testEvent(types.EventKindAnnouncement, 5))
		server.Broadcast(testEvent(types.EventKindRegistration, 6))

		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatalf("failed to read broadcast: %v", err)
		}
		var got types.StealthEvent
		if err := json.Unmarshal(resp.Payload, &got); err != nil {
			t.Fatalf("failed to unmarshal event: %v", err)
		}
		if got.Kind != types.EventKindRegistration {
			t.Errorf("event kind = %q, want registration", got.Kind)
		}
	})

	t.Run("InvalidKind", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("failed to connect: %v", err)
		}
		defer conn.Close()

		payload, _ := json.Marshal(SubscribeRequest{Kinds: []types.EventKind{"block"}})
		if err := conn.WriteJSON(Message{Type: "subscribe", Payload: payload}); err != nil {
			t.Fatalf("failed to send subscribe: %v", err)
		}

		var resp Message
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatalf("failed to read response: %v", err)
		}
		if resp.Type != "error" {
			t.Errorf("response type = %q, want error", resp.Type)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("failed to connect: %v", err)
		}
		defer conn.Close()

		if err := conn.WriteJSON(Message{Type: "ping"}); err != nil {
			t.Fatalf("failed to send ping: %v", err)
		}

		var resp Message
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatalf("failed to read pong: %v", err)
		}
		if resp.Type != "pong" {
			t.Errorf("response type = %q, want pong", resp.Type)
		}
	})

	t.Run("UnknownMessageType", func(t *testing.T) {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("failed to connect: %v", err)
		}
		defer conn.Close()

		if err := conn.WriteJSON(Message{Type: "query"}); err != nil {
			t.Fatalf("failed to send message: %v", err)
		}

		var resp Message
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		if err := conn.ReadJSON(&resp); err != nil {
			t.Fatalf("failed to read response: %v", err)
		}
		if resp.Type != "error" {
			t.Errorf("response type = %q, want error", resp.Type)
		}
	})
}

func TestWebSocketServerStop(t *testing.T) {
	server := NewServer(zap.NewNop())

	ts := httptest.NewServer(http.HandlerFunc(server.ServeHTTP))
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	time.Sleep(100 * time.Millisecond)
	server.Stop()

	if count := server.Hub().ClientCount(); count != 0 {
		t.Errorf("expected 0 clients after stop, got %d", count)
	}

	// Broadcasting into a stopped hub must not block or panic.
	server.Broadcast(testEvent(types.EventKindAnnouncement, 9))
}
