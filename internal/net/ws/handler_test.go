package ws

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"arena/server"
	"arena/server/internal/net/proto"
)

type serverFrame struct {
	Type  string     `json:"type"`
	Name  string     `json:"name"`
	Pos   [2]float64 `json:"pos"`
	Speed [2]float64 `json:"speed"`
	Hits  int        `json:"hits"`
}

func newTestServer(t *testing.T) (*server.Hub, string) {
	t.Helper()
	hub := server.NewHubWithConfig(server.DefaultHubConfig())
	handler := NewHandler(hub, HandlerConfig{})
	srv := httptest.NewServer(http.HandlerFunc(handler.Handle))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		t.Fatalf("failed to open websocket connection: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
		if resp != nil {
			resp.Body.Close()
		}
	})
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) serverFrame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	messageType, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read frame: %v", err)
	}
	if messageType != websocket.TextMessage {
		t.Fatalf("expected a text frame, got %d", messageType)
	}
	var frame serverFrame
	if err := json.Unmarshal(payload, &frame); err != nil {
		t.Fatalf("failed to decode %q: %v", payload, err)
	}
	return frame
}

func send(t *testing.T, conn *websocket.Conn, text string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		t.Fatalf("failed to write %q: %v", text, err)
	}
}

func expectFrame(t *testing.T, conn *websocket.Conn, msgType, name string) serverFrame {
	t.Helper()
	frame := readFrame(t, conn)
	if frame.Type != msgType || frame.Name != name {
		t.Fatalf("expected %s for %q, got %+v", msgType, name, frame)
	}
	return frame
}

func TestHandleJoinCatchUpAndMove(t *testing.T) {
	_, url := newTestServer(t)

	alice := dial(t, url)
	send(t, alice, "alice")
	expectFrame(t, alice, proto.TypePlayerNew, "alice")

	bob := dial(t, url)
	send(t, bob, "bob")
	expectFrame(t, bob, proto.TypePlayerNew, "alice")
	own := expectFrame(t, bob, proto.TypePlayerNew, "bob")
	if own.Pos != [2]float64{100, 100} {
		t.Fatalf("expected spawn at the world center, got %v", own.Pos)
	}
	expectFrame(t, alice, proto.TypePlayerNew, "bob")

	send(t, alice, `{"action":"move","speed":[5,0]}`)
	for _, conn := range []*websocket.Conn{alice, bob} {
		state := expectFrame(t, conn, proto.TypePlayerState, "alice")
		if state.Speed != [2]float64{5, 0} {
			t.Fatalf("unexpected speed %v", state.Speed)
		}
	}
}

func TestHandleUnsupportedActionKeepsConnection(t *testing.T) {
	_, url := newTestServer(t)

	conn := dial(t, url)
	send(t, conn, "alice")
	expectFrame(t, conn, proto.TypePlayerNew, "alice")

	send(t, conn, `{"action":"dance"}`)
	send(t, conn, `{"action":"move","speed":[0,1]}`)
	expectFrame(t, conn, proto.TypePlayerState, "alice")
}

func TestHandleBinaryFrameClosesWithProtocolError(t *testing.T) {
	hub, url := newTestServer(t)

	watcher := dial(t, url)
	send(t, watcher, "watcher")
	expectFrame(t, watcher, proto.TypePlayerNew, "watcher")

	offender := dial(t, url)
	send(t, offender, "offender")
	expectFrame(t, offender, proto.TypePlayerNew, "watcher")
	expectFrame(t, offender, proto.TypePlayerNew, "offender")
	expectFrame(t, watcher, proto.TypePlayerNew, "offender")

	if err := offender.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3}); err != nil {
		t.Fatalf("failed to write binary frame: %v", err)
	}

	offender.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := offender.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.CloseProtocolError {
		t.Fatalf("expected protocol error close, got %v", err)
	}

	expectFrame(t, watcher, proto.TypePlayerPart, "offender")
	if hub.Registry().Len() != 1 {
		t.Fatalf("expected only the watcher to remain, got %d", hub.Registry().Len())
	}
}

func TestHandleBinaryNameClosesWithProtocolError(t *testing.T) {
	hub, url := newTestServer(t)

	conn := dial(t, url)
	if err := conn.WriteMessage(websocket.BinaryMessage, []byte("alice")); err != nil {
		t.Fatalf("failed to write binary frame: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.CloseProtocolError {
		t.Fatalf("expected protocol error close, got %v", err)
	}
	if !hub.Registry().Empty() {
		t.Fatalf("expected no registered players")
	}
	if hub.TelemetrySnapshot().MalformedMessages != 1 {
		t.Fatalf("expected the binary name to be counted as malformed")
	}
}

func TestHandleEmptyNameIsRejected(t *testing.T) {
	hub, url := newTestServer(t)

	conn := dial(t, url)
	send(t, conn, "")

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) || closeErr.Code != websocket.CloseProtocolError {
		t.Fatalf("expected protocol error close, got %v", err)
	}
	if !hub.Registry().Empty() {
		t.Fatalf("expected no registered players")
	}
}

func TestHandleClientDisconnectBroadcastsPart(t *testing.T) {
	hub, url := newTestServer(t)

	stay := dial(t, url)
	send(t, stay, "stay")
	expectFrame(t, stay, proto.TypePlayerNew, "stay")

	leave := dial(t, url)
	send(t, leave, "leave")
	expectFrame(t, stay, proto.TypePlayerNew, "leave")

	leave.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	leave.Close()

	expectFrame(t, stay, proto.TypePlayerPart, "leave")
	if hub.Registry().Len() != 1 {
		t.Fatalf("expected one player left, got %d", hub.Registry().Len())
	}
}
