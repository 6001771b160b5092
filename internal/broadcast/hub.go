package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"studyhub/backend/internal/model"
)

var ErrHubFull = errors.New("broadcast queue full")

type HubConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int
	QueueSize       int
	CheckOrigin     func(r *http.Request) bool
}

func DefaultHubConfig() HubConfig {
	return HubConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		MaxMessageSize:  1024,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      64,
		QueueSize:       1024,
	}
}

type client struct {
	id     string
	userID string
	roomID string
	conn   *websocket.Conn
	send   chan []byte
	hub    *Hub
}

// Hub fans timer events out to the websocket clients of each room. Slow
// clients are dropped rather than allowed to stall the room.
type Hub struct {
	mu       sync.RWMutex
	rooms    map[string]map[*client]struct{}
	upgrader websocket.Upgrader
	cfg      HubConfig
	queue    chan Event
}

func NewHub(cfg HubConfig) *Hub {
	defaults := DefaultHubConfig()
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaults.SendBuffer
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaults.QueueSize
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaults.PingInterval
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = defaults.WriteTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = defaults.ReadTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaults.MaxMessageSize
	}
	return &Hub{
		rooms: make(map[string]map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
			CheckOrigin:     cfg.CheckOrigin,
		},
		cfg:   cfg,
		queue: make(chan Event, cfg.QueueSize),
	}
}

func (h *Hub) Run(ctx context.Context) {
	log.Info().Msg("broadcast hub started")
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			log.Info().Msg("broadcast hub stopped")
			return
		case evt := <-h.queue:
			h.dispatch(evt)
		}
	}
}

func (h *Hub) Publish(_ context.Context, roomID, event string, state model.TimerState) error {
	return h.Deliver(NewEvent(roomID, event, state, time.Now()))
}

func (h *Hub) Deliver(evt Event) error {
	select {
	case h.queue <- evt:
		return nil
	default:
		return fmt.Errorf("deliver %s to room %s: %w", evt.Event, evt.RoomID, ErrHubFull)
	}
}

// Serve upgrades the request and subscribes it to the room. The initial
// event, when given, is the first frame the client receives.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, roomID, userID string, initial *Event) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrade websocket: %w", err)
	}

	c := &client{
		id:     uuid.NewString(),
		userID: userID,
		roomID: roomID,
		conn:   conn,
		send:   make(chan []byte, h.cfg.SendBuffer),
		hub:    h,
	}
	if initial != nil {
		payload, err := json.Marshal(initial)
		if err == nil {
			c.send <- payload
		}
	}
	h.register(c)

	go c.writePump()
	go c.readPump()

	log.Info().Str("connection_id", c.id).Str("user_id", userID).Str("room_id", roomID).Msg("websocket connected")
	return nil
}

func (h *Hub) Connections(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

// CloseRoom disconnects every client of the room.
func (h *Hub) CloseRoom(roomID string) {
	h.mu.RLock()
	targets := make([]*client, 0, len(h.rooms[roomID]))
	for c := range h.rooms[roomID] {
		targets = append(targets, c)
	}
	h.mu.RUnlock()
	for _, c := range targets {
		h.unregister(c)
	}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.rooms[c.roomID] == nil {
		h.rooms[c.roomID] = make(map[*client]struct{})
	}
	h.rooms[c.roomID][c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.rooms[c.roomID]
	if !ok {
		return
	}
	if _, ok := clients[c]; !ok {
		return
	}
	delete(clients, c)
	close(c.send)
	if len(clients) == 0 {
		delete(h.rooms, c.roomID)
	}
	log.Info().Str("connection_id", c.id).Str("room_id", c.roomID).Msg("websocket disconnected")
}

func (h *Hub) closeAll() {
	h.mu.RLock()
	var targets []*client
	for _, clients := range h.rooms {
		for c := range clients {
			targets = append(targets, c)
		}
	}
	h.mu.RUnlock()
	for _, c := range targets {
		h.unregister(c)
	}
}

func (h *Hub) dispatch(evt Event) {
	if h.Connections(evt.RoomID) == 0 {
		return
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		log.Error().Err(err).Str("room_id", evt.RoomID).Msg("marshal timer event")
		return
	}

	var slow []*client
	h.mu.RLock()
	for c := range h.rooms[evt.RoomID] {
		select {
		case c.send <- payload:
		default:
			slow = append(slow, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range slow {
		log.Warn().Str("connection_id", c.id).Str("room_id", evt.RoomID).Msg("client send buffer full, disconnecting")
		h.unregister(c)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(c.hub.cfg.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		c.hub.unregister(c)
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Debug().Err(err).Str("connection_id", c.id).Msg("websocket write failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.hub.cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(c.hub.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.hub.cfg.ReadTimeout))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Debug().Err(err).Str("connection_id", c.id).Msg("unexpected websocket close")
			}
			return
		}
	}
}
