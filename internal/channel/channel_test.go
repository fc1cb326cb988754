package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"EMOTISENSE/go-client/internal/models"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// peerBehavior runs the server side of one connection.
type peerBehavior func(t *testing.T, conn *websocket.Conn, r *http.Request)

func startPeer(t *testing.T, behavior peerBehavior) (string, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade failed: %v", err)
			return
		}
		defer conn.Close()
		behavior(t, conn, r)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http"), srv
}

func dialTest(t *testing.T, baseURL string) *Channel {
	t.Helper()
	ch, err := Dial(context.Background(), Config{
		BaseURL:   baseURL,
		SessionID: "session-1",
		ClientID:  "client-1",
		Token:     "secret",
	})
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { ch.Close() })
	return ch
}

func TestDialSendsCredentialsAndRoundTrips(t *testing.T) {
	gotQuery := make(chan map[string]string, 1)
	reply := []byte(`{"face_detected":true,"emotion":"calm","confidence":0.9,"stress_score":0.2}`)

	url, _ := startPeer(t, func(t *testing.T, conn *websocket.Conn, r *http.Request) {
		q := r.URL.Query()
		gotQuery <- map[string]string{
			"sessionId": q.Get("sessionId"),
			"clientId":  q.Get("clientId"),
			"token":     q.Get("token"),
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Errorf("server read failed: %v", err)
			return
		}
		var frame models.FrameMessage
		if err := json.Unmarshal(data, &frame); err != nil || frame.Frame == "" {
			t.Errorf("server got %q, want a frame message", data)
		}
		if err := conn.WriteMessage(websocket.TextMessage, reply); err != nil {
			t.Errorf("server write failed: %v", err)
		}
		// hold the connection until the client goes away
		conn.ReadMessage()
	})

	ch := dialTest(t, url)
	if !ch.Open() {
		t.Errorf("Open = false right after Dial")
	}

	q := <-gotQuery
	if q["sessionId"] != "session-1" || q["clientId"] != "client-1" || q["token"] != "secret" {
		t.Errorf("connection query = %v", q)
	}

	if err := ch.Send(models.FrameMessage{Frame: "cGF5bG9hZA=="}); err != nil {
		t.Fatalf("Send failed: %v", err)
	}

	select {
	case data := <-ch.Incoming():
		msg, err := models.ParsePeerMessage(data)
		if err != nil {
			t.Fatalf("inbound message unparseable: %v", err)
		}
		if msg.Emotion == nil || *msg.Emotion != models.LabelCalm {
			t.Errorf("inbound emotion = %v, want calm", msg.Emotion)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for inbound message")
	}
}

func TestSendControlWritesTypedMessage(t *testing.T) {
	got := make(chan string, 1)
	url, _ := startPeer(t, func(t *testing.T, conn *websocket.Conn, r *http.Request) {
		var msg models.ControlMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Errorf("server read failed: %v", err)
			return
		}
		got <- msg.Type
		conn.ReadMessage()
	})

	ch := dialTest(t, url)
	if err := ch.SendControl(models.TypeReset); err != nil {
		t.Fatalf("SendControl failed: %v", err)
	}

	select {
	case typ := <-got:
		if typ != models.TypeReset {
			t.Errorf("control type = %s, want reset", typ)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for control message")
	}
}

func TestPeerCloseIsClean(t *testing.T) {
	url, _ := startPeer(t, func(t *testing.T, conn *websocket.Conn, r *http.Request) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
		conn.ReadMessage() // wait for the client's close reply
	})

	ch := dialTest(t, url)

	select {
	case _, ok := <-ch.Incoming():
		if ok {
			t.Fatalf("expected Incoming to close without data")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for Incoming to close")
	}
	if err := ch.Err(); err != nil {
		t.Errorf("Err after clean close = %v, want nil", err)
	}
}

func TestAbnormalDropSetsErr(t *testing.T) {
	url, _ := startPeer(t, func(t *testing.T, conn *websocket.Conn, r *http.Request) {
		// drop the TCP connection without a close handshake
		conn.UnderlyingConn().Close()
	})

	ch := dialTest(t, url)

	select {
	case _, ok := <-ch.Incoming():
		if ok {
			t.Fatalf("expected Incoming to close without data")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for Incoming to close")
	}
	if err := ch.Err(); err == nil {
		t.Errorf("Err after abnormal drop = nil, want an error")
	}
}

func TestLocalCloseIsCleanAndIdempotent(t *testing.T) {
	url, _ := startPeer(t, func(t *testing.T, conn *websocket.Conn, r *http.Request) {
		conn.ReadMessage()
	})

	ch := dialTest(t, url)
	ch.Close()
	ch.Close()

	select {
	case _, ok := <-ch.Incoming():
		if ok {
			t.Fatalf("expected Incoming to close without data")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for Incoming to close")
	}
	if err := ch.Err(); err != nil {
		t.Errorf("Err after local close = %v, want nil", err)
	}
	if ch.Open() {
		t.Errorf("Open after Close = true, want false")
	}
	if err := ch.Send(models.FrameMessage{Frame: "x"}); err == nil {
		t.Errorf("Send after Close should fail")
	}
}

func TestOpenFalseOncePeerHasClosed(t *testing.T) {
	url, _ := startPeer(t, func(t *testing.T, conn *websocket.Conn, r *http.Request) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"))
		conn.ReadMessage()
	})

	ch := dialTest(t, url)

	select {
	case _, ok := <-ch.Incoming():
		if ok {
			t.Fatalf("expected Incoming to close without data")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for Incoming to close")
	}

	// once Incoming has closed, nothing may pass the transmit gate
	if ch.Open() {
		t.Errorf("Open = true after the peer closed the connection")
	}
	if err := ch.Send(models.FrameMessage{Frame: "x"}); err == nil {
		t.Errorf("Send after peer close should fail")
	}
}

func TestCloseUnblocksReaderWithUndrainedBacklog(t *testing.T) {
	sent := make(chan struct{})
	url, _ := startPeer(t, func(t *testing.T, conn *websocket.Conn, r *http.Request) {
		// more messages than the incoming buffer holds, with no consumer
		for i := 0; i < 64; i++ {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"face_detected":true}`)); err != nil {
				return
			}
		}
		close(sent)
		conn.ReadMessage()
	})

	ch := dialTest(t, url)
	select {
	case <-sent:
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for the peer to flood the connection")
	}

	ch.Close()

	// the reader must give up on the full buffer and close Incoming
	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch.Incoming():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatalf("Incoming never closed; reader is stuck on a full buffer")
		}
	}
}

func TestDialFailure(t *testing.T) {
	if _, err := Dial(context.Background(), Config{BaseURL: "ws://127.0.0.1:1/ws"}); err == nil {
		t.Fatalf("Dial to a dead endpoint should fail")
	}
}
