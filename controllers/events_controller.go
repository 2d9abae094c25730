package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/yeremiapane/pix-checkout/hub"
	"github.com/yeremiapane/pix-checkout/utils"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Status pushes carry no secrets; the session cookie still guards
		// the charge itself.
		return true
	},
}

// EventsController upgrades checkout clients to a websocket that receives
// charge status transitions, sparing them the polling loop.
type EventsController struct {
	hub *hub.ChargeHub
}

func NewEventsController(h *hub.ChargeHub) *EventsController {
	return &EventsController{hub: h}
}

// HandleEvents handles GET /charge/events.
func (ctrl *EventsController) HandleEvents(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		utils.ErrorLogger.Printf("Error upgrading websocket: %v", err)
		return
	}

	ctrl.hub.RegisterClient(conn)
	go func() {
		defer ctrl.hub.UnregisterClient(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}
