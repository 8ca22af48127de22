// Package hub owns the set of live websocket connections and the
// broadcast fan-out. Who a connection belongs to is tracked by the
// identity directory, not here.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/bera-tech-ai/gramX/pkg/log"
)

type Hub struct {
	clients    map[string]*Client // clientID -> client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastFrame
	mu         sync.RWMutex
}

type broadcastFrame struct {
	message []byte
	exclude string // client ID to exclude
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastFrame, 256),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			log.L().Debug().Str(log.FieldConnID, client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				client.closeSend()
			}
			h.mu.Unlock()
			log.L().Debug().Str(log.FieldConnID, client.ID).Msg("client unregistered")

		case frame := <-h.broadcast:
			h.mu.RLock()
			for clientID, client := range h.clients {
				if clientID == frame.exclude {
					continue
				}
				select {
				case client.Send <- frame.message:
				default:
					go h.removeClient(client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

// Broadcast sends v to every connected client except the excluded one.
// Pass an empty exclude id to reach everyone.
func (h *Hub) Broadcast(v interface{}, exclude string) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	h.broadcast <- &broadcastFrame{message: data, exclude: exclude}
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) removeClient(client *Client) {
	h.unregister <- client
}
