package transport

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"github.com/stretchr/testify/require"

	"github.com/collabcore/editorcore/pkg/auth"
	"github.com/collabcore/editorcore/pkg/session"
	"github.com/collabcore/editorcore/pkg/store"
)

// testServer builds a Server over an in-memory store and an allow-all
// verifier, for connection-level tests that don't need persistence.
func testServer(t *testing.T) *Server {
	t.Helper()
	registry := session.NewRegistry(store.NewMemory(), session.DefaultConfig())
	return NewServer(registry, auth.AllowAllVerifier{}, DefaultConfig())
}

// connectWebSocket dials doc/token against a running test server.
func connectWebSocket(t *testing.T, ts *httptest.Server, documentID, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?doc=" + documentID + "&token=" + token
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

// readFrame reads one text frame and decodes it into a generic map, since
// protocol.ServerMsg's fields are write-only from the server's side.
func readFrame(t *testing.T, conn *websocket.Conn) map[string]interface{} {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var m map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &m))
	return m
}

func sendFrame(t *testing.T, conn *websocket.Conn, frame map[string]interface{}) {
	t.Helper()
	data, err := json.Marshal(frame)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func TestHandshakeRejectsMissingToken(t *testing.T) {
	server := testServer(t)
	ts := httptest.NewServer(server)
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?doc=doc1&token="
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	_, _, err = conn.Read(ctx)
	require.Error(t, err)
	require.Equal(t, websocket.StatusCode(4401), websocket.CloseStatus(err))
}

func TestSingleClientReceivesSyncOnJoin(t *testing.T) {
	server := testServer(t)
	ts := httptest.NewServer(server)
	defer ts.Close()

	conn := connectWebSocket(t, ts, "doc1", "alice")
	frame := readFrame(t, conn)
	require.Equal(t, "sync", frame["type"])
	require.Equal(t, float64(0), frame["version"])
}

func TestTwoClientsSeeEachOtherJoin(t *testing.T) {
	server := testServer(t)
	ts := httptest.NewServer(server)
	defer ts.Close()

	conn1 := connectWebSocket(t, ts, "doc1", "alice")
	readFrame(t, conn1) // sync

	conn2 := connectWebSocket(t, ts, "doc1", "bob")
	readFrame(t, conn2) // bob's own sync

	joined := readFrame(t, conn1)
	require.Equal(t, "user_joined", joined["type"])
	require.Equal(t, "bob", joined["user_id"])
}

func TestOpIsBroadcastToOtherClient(t *testing.T) {
	server := testServer(t)
	ts := httptest.NewServer(server)
	defer ts.Close()

	conn1 := connectWebSocket(t, ts, "doc1", "alice")
	readFrame(t, conn1) // sync

	conn2 := connectWebSocket(t, ts, "doc1", "bob")
	readFrame(t, conn2) // sync
	readFrame(t, conn1) // user_joined for bob

	sendFrame(t, conn1, map[string]interface{}{
		"type":         "op",
		"base_version": 0,
		"author_id":    "alice",
		"client_seq":   1,
		"components":   []interface{}{"hi"},
	})

	remote := readFrame(t, conn2)
	require.Equal(t, "remote_op", remote["type"])

	ack := readFrame(t, conn1)
	require.Equal(t, "ack", ack["type"])
}

func TestMalformedFrameClosesWithProtocolViolation(t *testing.T) {
	server := testServer(t)
	ts := httptest.NewServer(server)
	defer ts.Close()

	conn := connectWebSocket(t, ts, "doc1", "alice")
	readFrame(t, conn) // sync

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"not-a-real-type"}`)))

	_, _, err := conn.Read(ctx)
	require.Error(t, err)
	require.Equal(t, websocket.StatusCode(4008), websocket.CloseStatus(err))
}
