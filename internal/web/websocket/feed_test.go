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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-lang/datarest/internal/rest/event"
	"github.com/conduit-lang/datarest/internal/rest/repository"
)

func startHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(nil)
	go hub.Run(context.Background())
	t.Cleanup(hub.Shutdown)
	return hub
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/events" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFeed(t *testing.T, conn *websocket.Conn) FeedMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg FeedMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func widget(id int64) *repository.Document {
	d := repository.NewDocument()
	d.ID = id
	d.Version = 1
	d.Attributes["name"] = "x"
	return d
}

func TestRooms(t *testing.T) {
	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{AllRooms}},
		{"?resource=widgets", []string{"widgets"}},
		{"?resource=widgets,gadgets&resource=widgets", []string{"widgets", "gadgets"}},
		{"?resource=%20", []string{AllRooms}},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/events"+tt.query, nil)
			assert.Equal(t, tt.want, Rooms(r))
		})
	}
}

func TestFeedDeliversToRooms(t *testing.T) {
	hub := startHub(t)
	server := httptest.NewServer(NewHandler(hub, nil))
	defer server.Close()

	widgets := dial(t, server, "?resource=widgets")
	gadgets := dial(t, server, "?resource=gadgets")
	all := dial(t, server, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 3 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, hub.RoomSize("widgets"))
	assert.Equal(t, 1, hub.RoomSize(AllRooms))

	reg := event.NewRegistry()
	feed := NewFeedListener(hub)
	reg.OnEach(feed, feed.Kinds()...)
	bus := event.NewBus(reg)

	require.NoError(t, bus.Publish(context.Background(), event.New(event.BeforeSave, "widgets", widget(1))))
	require.NoError(t, bus.Publish(context.Background(), event.New(event.AfterSave, "widgets", widget(1))))

	for _, conn := range []*websocket.Conn{widgets, all} {
		msg := readFeed(t, conn)
		assert.Equal(t, "after_save", msg.Type)
		assert.Equal(t, "widgets", msg.Resource)
		assert.Equal(t, "1", msg.ID)
		assert.JSONEq(t, `{"id":1,"version":1,"name":"x"}`, string(msg.Entity))
	}

	require.NoError(t, bus.Publish(context.Background(), event.New(event.AfterDelete, "gadgets", widget(4))))
	msg := readFeed(t, gadgets)
	assert.Equal(t, "after_delete", msg.Type)
	assert.Equal(t, "4", msg.ID)
}

func TestHandlerRejectsUnknownResource(t *testing.T) {
	hub := startHub(t)
	server := httptest.NewServer(NewHandler(hub, func(name string) bool { return name == "widgets" }))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/events?resource=nope"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestShutdownClosesClients(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run(context.Background())
	server := httptest.NewServer(NewHandler(hub, nil))
	defer server.Close()

	conn := dial(t, server, "")
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	hub.Shutdown()
	assert.Equal(t, 0, hub.ClientCount())

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseGoingAway))

	hub.Broadcast("widgets", []byte("ignored"))
}
