package hub

import (
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/yeremiapane/pix-checkout/models"
	"github.com/yeremiapane/pix-checkout/utils"
)

// Event types pushed to checkout clients.
const (
	EventChargeCreated = "charge_created"
	EventChargeUpdate  = "charge_update"
)

type Message struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

// ChargeHub holds every connected checkout client and broadcasts charge
// status transitions so the page does not have to poll.
type ChargeHub struct {
	clients map[*websocket.Conn]struct{}
	mutex   sync.Mutex
}

func NewChargeHub() *ChargeHub {
	return &ChargeHub{
		clients: make(map[*websocket.Conn]struct{}),
	}
}

// RegisterClient adds a connection to the broadcast set.
func (h *ChargeHub) RegisterClient(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.clients[conn] = struct{}{}
}

// UnregisterClient removes and closes a connection.
func (h *ChargeHub) UnregisterClient(conn *websocket.Conn) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	delete(h.clients, conn)
	conn.Close()
}

// BroadcastChargeCreated announces a freshly created charge.
func (h *ChargeHub) BroadcastChargeCreated(charge *models.Charge) {
	h.broadcast(Message{Event: EventChargeCreated, Data: charge})
}

// BroadcastChargeUpdate announces a status transition.
func (h *ChargeHub) BroadcastChargeUpdate(charge *models.Charge) {
	h.broadcast(Message{Event: EventChargeUpdate, Data: charge})
}

func (h *ChargeHub) broadcast(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		utils.ErrorLogger.Printf("Error marshaling hub message: %v", err)
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()

	for conn := range h.clients {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			// Dead connection, drop it.
			delete(h.clients, conn)
			conn.Close()
		}
	}
}
