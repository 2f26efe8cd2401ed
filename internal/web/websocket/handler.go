package websocket

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/conduit-lang/datarest/internal/web/response"
)

// Handler upgrades /events requests and subscribes the connection to the
// rooms named by the resource query parameter. Without one the client
// follows every resource.
type Handler struct {
	hub      *Hub
	upgrader websocket.Upgrader
	known    func(resource string) bool
}

// NewHandler creates a Handler. known reports whether a resource name can
// be subscribed to; nil accepts every name.
func NewHandler(hub *Hub, known func(resource string) bool) *Handler {
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		known: known,
	}
}

// Rooms parses the resource query parameter. Values may repeat or be comma
// separated.
func Rooms(r *http.Request) []string {
	var rooms []string
	seen := make(map[string]struct{})
	for _, value := range r.URL.Query()["resource"] {
		for _, name := range strings.Split(value, ",") {
			name = strings.TrimSpace(name)
			if name == "" {
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			seen[name] = struct{}{}
			rooms = append(rooms, name)
		}
	}
	if len(rooms) == 0 {
		return []string{AllRooms}
	}
	return rooms
}

// ServeHTTP handles websocket upgrade requests
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rooms := Rooms(r)
	if h.known != nil {
		for _, room := range rooms {
			if room != AllRooms && !h.known(room) {
				response.RenderStatus(w, r, http.StatusNotFound, "unknown resource "+room)
				return
			}
		}
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.logger.Debug("feed upgrade failed", zap.Error(err))
		return
	}

	client := NewClient(uuid.NewString(), conn, h.hub, rooms)
	if !h.hub.Register(client) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}
