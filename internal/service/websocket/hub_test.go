package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"edgecounter/internal/dto"
	"edgecounter/internal/logger"
)

func startHub(t *testing.T) (*HubService, string) {
	t.Helper()
	hub := NewHubService(logger.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if !hub.Register(conn) {
			conn.Close()
			return
		}
		defer hub.Unregister(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))

	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) dto.DisplayMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg dto.DisplayMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func TestHub_BroadcastReachesViewers(t *testing.T) {
	hub, url := startHub(t)

	a := dial(t, url)
	b := dial(t, url)
	require.Eventually(t, func() bool { return hub.GetClientCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	hub.Broadcast(dto.DisplayMessage{Type: dto.MessageSummary, Observation: 3, Smoothed: 2.5})

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, conn)
		require.Equal(t, dto.MessageSummary, msg.Type)
		require.Equal(t, 2.5, msg.Smoothed)
	}
}

func TestHub_ReplaysLatestToNewViewer(t *testing.T) {
	hub, url := startHub(t)

	hub.Broadcast(dto.DisplayMessage{Type: dto.MessageSummary, Smoothed: 1})
	hub.Broadcast(dto.DisplayMessage{Type: dto.MessageSummary, Smoothed: 4})

	conn := dial(t, url)
	msg := readMessage(t, conn)
	require.Equal(t, 4.0, msg.Smoothed)
}

func TestHub_UnregisterOnClose(t *testing.T) {
	hub, url := startHub(t)

	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool { return hub.GetClientCount() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_BroadcastWithoutRunDoesNotBlock(t *testing.T) {
	hub := NewHubService(logger.Discard())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			hub.Broadcast(dto.DisplayMessage{Type: dto.MessageFrame})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked with no hub loop running")
	}
}
