package websocket

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabtweak/internal/shared/testutil"
	"tabtweak/pkg/contracts/events"
)

func decode(t *testing.T, data []byte) events.Message {
	t.Helper()
	var msg events.Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_RegisterAndBroadcast(t *testing.T) {
	logger, handler := testutil.NewTestLogger(t)
	hub := NewHub(logger)
	hub.Start()
	defer hub.Stop()

	conn := newMockConnection()
	client := NewClient(hub, conn, "trace-abc", logger)
	hub.Register(client)
	go client.WritePump()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	hub.BroadcastUpdate(string(events.TypeOperationSnapshot), "op-1", "running", map[string]int{"progress": 40})

	require.Eventually(t, func() bool { return len(conn.messages()) >= 2 }, time.Second, 5*time.Millisecond)
	msgs := conn.messages()

	first := decode(t, msgs[0].Data)
	assert.Equal(t, events.TypeConnection, first.Type)
	assert.Equal(t, "trace-abc", first.TraceID)

	second := decode(t, msgs[1].Data)
	assert.Equal(t, events.TypeOperationSnapshot, second.Type)
	assert.Equal(t, "op-1", second.Subject)
	assert.Equal(t, "running", second.Status)
	assert.Equal(t, map[string]interface{}{"progress": float64(40)}, second.Data)

	testutil.AssertLogContains(t, handler, slog.LevelInfo, "client registered")
	assert.EqualValues(t, 1, hub.GetHubMetrics()["total_connections"])
}

func TestHub_UnregisterClosesClient(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	defer hub.Stop()

	conn := newMockConnection()
	client := NewClient(hub, conn, "", nil)
	hub.Register(client)
	go client.ReadPump()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	// a failing read unregisters the client
	conn.Close()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)

	_, open := <-client.send
	for open {
		_, open = <-client.send
	}
}

func TestHub_HeartbeatIgnored(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	defer hub.Stop()

	conn := newMockConnection()
	client := NewClient(hub, conn, "", nil)
	hub.Register(client)
	go client.ReadPump()

	conn.reads <- mockMessage{Type: websocket.TextMessage, Data: []byte(`{"type":"heartbeat"}`)}
	conn.reads <- mockMessage{Type: websocket.TextMessage, Data: []byte("hello")}
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, hub.ClientCount(), "client messages never disconnect")
}

func TestHub_PublishWithoutRun(t *testing.T) {
	hub := NewHub(nil)
	for i := 0; i < broadcastBuffer+10; i++ {
		hub.BroadcastUpdate("operation:snapshot", "op", "running", nil)
	}
	assert.EqualValues(t, 10, hub.GetHubMetrics()["messages_dropped"])

	hub.Start()
	hub.Stop()
	hub.BroadcastUpdate("operation:snapshot", "op", "running", nil)
}

func TestServeWS(t *testing.T) {
	hub := NewHub(nil)
	hub.Start()
	defer hub.Stop()

	upgrader := NewUpgrader([]string{"http://allowed.example"}, nil)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWS(hub, upgrader, w, r)
	}))
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	header := http.Header{"Origin": []string{"http://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "http://allowed.example")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, events.TypeConnection, decode(t, data).Type)

	hub.BroadcastUpdate(string(events.TypeDatasetTweaked), "nyc", "completed", events.DatasetTweakedData{Dataset: "nyc", Rows: 3})
	_, data, err = conn.ReadMessage()
	require.NoError(t, err)
	msg := decode(t, data)
	assert.Equal(t, events.TypeDatasetTweaked, msg.Type)
	assert.Equal(t, "nyc", msg.Subject)
}
