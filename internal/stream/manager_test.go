package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/dexpulse/dexpulse/pkg/types"
)

func testManagerConfig(endpoints ...types.Endpoint) Config {
	return Config{
		Endpoints:         endpoints,
		DexName:           "uniswap-v2",
		DialTimeout:       2 * time.Second,
		PingInterval:      time.Minute,
		ReadTimeout:       5 * time.Second,
		MessageBufferSize: 16,
		Backoff: BackoffConfig{
			BaseDelay:   time.Millisecond,
			MaxDelay:    10 * time.Millisecond,
			Multiplier:  2.0,
			MaxAttempts: 2,
		},
		Logger: zap.NewNop(),
	}
}

func TestNew_SortsEndpointsByPriority(t *testing.T) {
	m := New(testManagerConfig(
		types.Endpoint{URL: "wss://c.example.test", Priority: 2},
		types.Endpoint{URL: "wss://a.example.test", Priority: 0},
		types.Endpoint{URL: "wss://b.example.test", Priority: 1},
	))
	defer m.Close()

	want := []string{"wss://a.example.test", "wss://b.example.test", "wss://c.example.test"}
	for i, endpoint := range m.endpoints {
		if endpoint.URL != want[i] {
			t.Errorf("endpoints[%d] = %s, want %s", i, endpoint.URL, want[i])
		}
	}
}

func TestSubscribePool_DeferredWhenDisconnected(t *testing.T) {
	m := New(testManagerConfig(types.Endpoint{URL: "wss://a.example.test", Priority: 0}))
	defer m.Close()

	pool := common.HexToAddress("0xb4e16d0168e52d35cacd2c6185b44281ec28c9dc")

	err := m.SubscribePool(context.Background(), pool)
	if err != nil {
		t.Fatalf("SubscribePool() error = %v", err)
	}

	status := m.Status()
	if status.SubscribedPools != 1 {
		t.Errorf("SubscribedPools = %d, want 1", status.SubscribedPools)
	}
	if status.Connected {
		t.Error("Connected = true without a connection")
	}
}

func TestSubscribePool_Idempotent(t *testing.T) {
	m := New(testManagerConfig(types.Endpoint{URL: "wss://a.example.test", Priority: 0}))
	defer m.Close()

	pool := common.HexToAddress("0xb4e16d0168e52d35cacd2c6185b44281ec28c9dc")

	for i := 0; i < 3; i++ {
		err := m.SubscribePool(context.Background(), pool)
		if err != nil {
			t.Fatalf("SubscribePool() call %d error = %v", i, err)
		}
	}

	if got := m.Status().SubscribedPools; got != 1 {
		t.Errorf("SubscribedPools = %d, want 1", got)
	}
}

func TestConnect_AllEndpointsUnreachable(t *testing.T) {
	m := New(testManagerConfig(
		types.Endpoint{URL: "ws://127.0.0.1:1", Priority: 0},
		types.Endpoint{URL: "ws://127.0.0.1:2", Priority: 1},
	))
	defer m.Close()

	err := m.Connect()
	if !errors.Is(err, types.ErrEndpointsExhausted) {
		t.Errorf("Connect() error = %v, want ErrEndpointsExhausted", err)
	}
}

func TestClose_ClosesEventChannel(t *testing.T) {
	m := New(testManagerConfig(types.Endpoint{URL: "wss://a.example.test", Priority: 0}))

	err := m.Close()
	if err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	select {
	case _, ok := <-m.Events():
		if ok {
			t.Error("Events() delivered an event after Close")
		}
	case <-time.After(time.Second):
		t.Error("Events() not closed after Close")
	}
}

// mockNode is a minimal JSON-RPC websocket endpoint. It confirms
// subscriptions and pushes the frames given to it.
type mockNode struct {
	server *httptest.Server
	frames chan string
}

func newMockNode(t *testing.T) *mockNode {
	t.Helper()

	node := &mockNode{frames: make(chan string, 16)}
	upgrader := websocket.Upgrader{}

	node.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()

		// The loop below is the connection's only writer; the reader
		// goroutine hands RPC replies to it over a channel.
		done := make(chan struct{})
		replies := make(chan string, 16)
		go func() {
			defer close(done)
			for {
				var req rpcRequest
				if err := ws.ReadJSON(&req); err != nil {
					return
				}
				var response string
				switch req.Method {
				case "eth_subscribe":
					response = fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":"0xsub1"}`, req.ID)
				case "eth_unsubscribe":
					response = fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":true}`, req.ID)
				default:
					response = fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":null}`, req.ID)
				}
				replies <- response
			}
		}()

		for {
			var frame string
			select {
			case <-done:
				return
			case frame = <-replies:
			case frame = <-node.frames:
			}
			if err := ws.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(node.server.Close)

	return node
}

func (n *mockNode) url() string {
	return "ws" + strings.TrimPrefix(n.server.URL, "http")
}

func TestManager_ReceivesEventsFromNode(t *testing.T) {
	node := newMockNode(t)

	m := New(testManagerConfig(types.Endpoint{URL: node.url(), Priority: 0}))
	defer m.Close()

	err := m.Connect()
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	if !m.Status().Connected {
		t.Fatal("Status().Connected = false after Connect")
	}

	node.frames <- syncNotification("0xb4e16d0168e52d35cacd2c6185b44281ec28c9dc", "0x10", "0x1", 1000, 2000)

	select {
	case event := <-m.Events():
		if event.Kind != types.EventSync {
			t.Errorf("Kind = %v, want sync", event.Kind)
		}
		if event.BlockNumber != 0x10 {
			t.Errorf("BlockNumber = %d, want 16", event.BlockNumber)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received from mock node")
	}
}

func TestManager_MalformedFrameIsCountedNotFatal(t *testing.T) {
	node := newMockNode(t)

	m := New(testManagerConfig(types.Endpoint{URL: node.url(), Priority: 0}))
	defer m.Close()

	err := m.Connect()
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// A frame the parser rejects, then a valid one. The stream must
	// survive the first and deliver the second.
	node.frames <- syncNotification("not-an-address", "0x10", "0x1", 1, 1)
	node.frames <- syncNotification("0xb4e16d0168e52d35cacd2c6185b44281ec28c9dc", "0x11", "0x1", 1000, 2000)

	select {
	case event := <-m.Events():
		if event.BlockNumber != 0x11 {
			t.Errorf("BlockNumber = %d, want 17", event.BlockNumber)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("valid event not delivered after malformed frame")
	}

	if got := m.Status().MalformedDropped; got != 1 {
		t.Errorf("MalformedDropped = %d, want 1", got)
	}
}

func TestManager_SubscribeLongAfterConnect(t *testing.T) {
	node := newMockNode(t)

	cfg := testManagerConfig(types.Endpoint{URL: node.url(), Priority: 0})
	cfg.DialTimeout = 300 * time.Millisecond
	m := New(cfg)
	defer m.Close()

	err := m.Connect()
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// Well past the dial deadline; the socket must not have kept it.
	time.Sleep(600 * time.Millisecond)

	pool := common.HexToAddress("0xb4e16d0168e52d35cacd2c6185b44281ec28c9dc")
	err = m.SubscribePool(context.Background(), pool)
	if err != nil {
		t.Fatalf("SubscribePool() after dial deadline error = %v", err)
	}

	node.frames <- syncNotification("0xb4e16d0168e52d35cacd2c6185b44281ec28c9dc", "0x10", "0x1", 1000, 2000)

	select {
	case event := <-m.Events():
		if event.Kind != types.EventSync {
			t.Errorf("Kind = %v, want sync", event.Kind)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered after late subscribe")
	}
}

func TestConnectTo_ClosesReplacedConnection(t *testing.T) {
	node := newMockNode(t)
	endpoint := types.Endpoint{URL: node.url(), Priority: 0}

	m := New(testManagerConfig(endpoint))
	defer m.Close()

	old, err := dial(context.Background(), endpoint, time.Second)
	if err != nil {
		t.Fatalf("dial() error = %v", err)
	}
	m.mu.Lock()
	m.conn = old
	m.mu.Unlock()

	err = m.connectTo(context.Background(), endpoint)
	if err != nil {
		t.Fatalf("connectTo() error = %v", err)
	}

	if err := old.ping(); err == nil {
		t.Error("replaced connection still writable, want closed")
	}
}

func TestManager_SubscribeWhileConnected(t *testing.T) {
	node := newMockNode(t)

	m := New(testManagerConfig(types.Endpoint{URL: node.url(), Priority: 0}))
	defer m.Close()

	err := m.Connect()
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	pool := common.HexToAddress("0xb4e16d0168e52d35cacd2c6185b44281ec28c9dc")
	err = m.SubscribePool(context.Background(), pool)
	if err != nil {
		t.Fatalf("SubscribePool() error = %v", err)
	}

	if got := m.Status().SubscribedPools; got != 1 {
		t.Errorf("SubscribedPools = %d, want 1", got)
	}
}
