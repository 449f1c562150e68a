package server

import (
	"encoding/json"
	"net/http"

	"market-data-server/src/models"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

func (s *FastAPIServer) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := newClient(s, conn)
	client.id = s.admit(client)

	go client.writePump()
	go client.readPump()
}

// admit queues the connected frame and only then registers conn, so no
// broadcast can be queued ahead of it
func (s *FastAPIServer) admit(conn Conn) string {
	id := uuid.NewString()
	if err := conn.Send(models.MConnectedFrame{
		Type:     models.FrameConnected,
		ClientID: id,
		Message:  "Connected to data server",
	}); err != nil {
		s.Logger.Warning("Greeting %s dropped: %v", id, err)
	}
	s.Subscriptions.Register(id, conn)
	return id
}

// -----------------------------------------------------------------------------
// Client Message Handling
// -----------------------------------------------------------------------------

func (s *FastAPIServer) HandleClientMessage(client *Client, message []byte) {
	reply := func(msg interface{}) {
		if err := client.Send(msg); err != nil {
			s.Logger.Warning("Reply to %s dropped: %v", client.id, err)
		}
	}

	var cmd models.MClientMessage
	if err := json.Unmarshal(message, &cmd); err != nil {
		reply(models.MErrorFrame{Type: models.FrameError, Message: "Invalid JSON"})
		return
	}

	switch cmd.Type {
	case "subscribe":
		if len(cmd.Tickers) == 0 {
			return
		}
		tickers, _ := s.Subscriptions.Subscribe(client.id, cmd.Tickers)
		s.Logger.Debug("Client %s subscribed to %v", client.id, tickers)
		reply(models.MTickersFrame{Type: models.FrameSubscribed, Tickers: tickers})

	case "unsubscribe":
		if len(cmd.Tickers) == 0 {
			return
		}
		tickers, _ := s.Subscriptions.Unsubscribe(client.id, cmd.Tickers)
		s.Logger.Debug("Client %s unsubscribed from %v", client.id, tickers)
		reply(models.MTickersFrame{Type: models.FrameUnsubscribed, Tickers: tickers})

	case "ping":
		reply(models.MTypeFrame{Type: models.FramePong})

	case "get_subscriptions":
		reply(models.MTickersFrame{Type: models.FrameSubscriptions, Tickers: s.Subscriptions.Subscriptions(client.id)})

	default:
		s.Logger.Warning("Unknown message type from %s: %q", client.id, cmd.Type)
		reply(models.MErrorFrame{Type: models.FrameError, Message: "Unknown message type: " + cmd.Type})
	}
}
