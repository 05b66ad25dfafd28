package ws

import (
	"context"
	"sync"

	"detective_game/internal/logger"
)

// Hub fans events out to the websocket clients of this instance. Clients
// subscribe to named channels; a message published on a channel reaches
// every client subscribed to it.
type Hub struct {
	mu      sync.RWMutex
	subs    map[string]map[*Client]struct{}
	clients map[*Client][]string
}

func NewHub() *Hub {
	return &Hub{
		subs:    make(map[string]map[*Client]struct{}),
		clients: make(map[*Client][]string),
	}
}

// Subscribe adds c to channels.
func (h *Hub) Subscribe(c *Client, channels ...string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range channels {
		set, ok := h.subs[ch]
		if !ok {
			set = make(map[*Client]struct{})
			h.subs[ch] = set
		}
		if _, dup := set[c]; dup {
			continue
		}
		set[c] = struct{}{}
		h.clients[c] = append(h.clients[c], ch)
	}
	logger.Debug("ws client subscribed", "fid", c.FID, "channels", channels)
}

// Publish delivers an event to the local subscribers of channel.
func (h *Hub) Publish(_ context.Context, channel, eventType string, payload any) error {
	msg, err := encodeEvent(channel, eventType, payload)
	if err != nil {
		return err
	}
	h.Deliver(channel, msg)
	return nil
}

// Deliver queues an encoded frame for every subscriber of channel and
// returns how many took it. Clients whose buffer is full are dropped.
func (h *Hub) Deliver(channel string, msg []byte) int {
	var slow []*Client
	sent := 0

	h.mu.RLock()
	for c := range h.subs[channel] {
		if c.queue(msg) {
			sent++
		} else {
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		logger.Warn("ws client too slow, dropping", "fid", c.FID, "channel", channel)
		h.OnDisconnect(c)
	}
	return sent
}

// OnDisconnect removes c from every channel and closes its send buffer.
func (h *Hub) OnDisconnect(c *Client) {
	h.mu.Lock()
	for _, ch := range h.clients[c] {
		if set, ok := h.subs[ch]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(h.subs, ch)
			}
		}
	}
	delete(h.clients, c)
	h.mu.Unlock()

	c.close()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.mu.RUnlock()

	for _, c := range all {
		h.OnDisconnect(c)
	}
}
