package dashboard

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"guildkeeper/pkg/plugin"
)

func TestEventsRequireToken(t *testing.T) {
	s, _ := newTestServer(t)

	for _, target := range []string{"/api/events", "/api/events?token=bogus"} {
		if rec := doRequest(t, s, http.MethodGet, target, "", ""); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", target, rec.Code)
		}
	}
}

func TestEventsStreamLifecycle(t *testing.T) {
	s, h := newTestServer(t)
	h.Install("echo", newEcho, "")

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/events?token=" + adminToken(t, s)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	read := func() eventMessage {
		t.Helper()
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		var msg eventMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read: %v", err)
		}
		return msg
	}

	if msg := read(); msg.Type != "connected" {
		t.Fatalf("expected connected message, got %+v", msg)
	}

	if !h.Loader.LoadOne(context.Background(), "echo") {
		t.Fatal("load echo")
	}
	msg := read()
	if msg.Type != "lifecycle" || msg.Event == nil {
		t.Fatalf("expected lifecycle message, got %+v", msg)
	}
	if msg.Event.Type != plugin.EventLoaded || msg.Event.Plugin != "echo" {
		t.Fatalf("unexpected event: %+v", msg.Event)
	}

	h.Loader.Unload(context.Background(), "echo")
	if msg := read(); msg.Event == nil || msg.Event.Type != plugin.EventUnloaded {
		t.Fatalf("expected unloaded event, got %+v", msg)
	}
}
