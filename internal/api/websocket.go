package api

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"signal-trader/internal/events"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsMessage tags each feed entry with the event that produced it.
type wsMessage struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// websocket streams position changes, fills and emergency-close events to
// operator dashboards.
func (s *Server) websocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}
	defer conn.Close()

	if s.Bus == nil {
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"error":"bus not ready"}`))
		return
	}

	feed := make(chan wsMessage, 100)
	done := make(chan struct{})
	defer close(done)

	for _, ev := range []events.Event{
		events.EventPositionChange,
		events.EventOrderFilled,
		events.EventEmergencyClose,
		events.EventRiskAlert,
	} {
		stream, unsub := s.Bus.Subscribe(ev, 100)
		go func(ev events.Event, stream <-chan any, unsub func()) {
			defer unsub()
			for {
				select {
				case <-done:
					return
				case msg, ok := <-stream:
					if !ok {
						return
					}
					select {
					case feed <- wsMessage{Event: string(ev), Payload: msg}:
					case <-done:
						return
					}
				}
			}
		}(ev, stream, unsub)
	}

	for msg := range feed {
		if err := conn.WriteJSON(msg); err != nil {
			log.Printf("ws write error: %v", err)
			return
		}
	}
}
