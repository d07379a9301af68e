package ws

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Vandu-Shre/synapse/internal/diagram"
	"github.com/Vandu-Shre/synapse/internal/protocol"
	"github.com/Vandu-Shre/synapse/internal/room"
)

// Owns the room registry and feeds it one event at a time
type Hub struct {
	registry *room.Registry
	config   Config
	logger   *slog.Logger

	// Connected clients, joined or not
	clients map[*Client]bool

	// Inbound messages from clients
	inbound chan *Message

	// Register requests from clients
	register chan *Client

	// Unregister requests from clients
	unregister chan *Client

	// Grace timer callbacks, run on the hub goroutine
	timers chan func()

	stop     chan struct{}
	stopOnce sync.Once

	mu sync.RWMutex
}

type Message struct {
	Client *Client
	Data   []byte
}

func NewHub(config Config, logger *slog.Logger, observers ...room.Observer) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	config = config.withDefaults()
	h := &Hub{
		config:     config,
		logger:     logger,
		clients:    make(map[*Client]bool),
		inbound:    make(chan *Message),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		timers:     make(chan func()),
		stop:       make(chan struct{}),
	}
	h.registry = room.NewRegistry(room.Options{
		GracePeriod:  config.GracePeriod,
		HistoryLimit: config.HistoryLimit,
		Scheduler:    h.schedule,
		Logger:       logger,
		Observers:    observers,
	})
	return h
}

// The timer goroutine only hands the callback over; the registry is touched from Run.
func (h *Hub) schedule(d time.Duration, fire func()) room.Timer {
	return time.AfterFunc(d, func() {
		select {
		case h.timers <- fire:
		case <-h.stop:
		}
	})
}

func (h *Hub) Run() {
	for {
		select {
		case <-h.stop:
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			clientCount := len(h.clients)
			h.mu.Unlock()

			h.logger.Debug("client connected", slog.String("conn", client.id), slog.Int("clients", clientCount))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				h.registry.Disconnect(client)
				close(client.send)
			}
			h.mu.Unlock()

			h.logger.Debug("client disconnected", slog.String("conn", client.id))

		case message := <-h.inbound:
			h.mu.Lock()
			if h.clients[message.Client] {
				h.handle(message.Client, message.Data)
			}
			h.mu.Unlock()

		case fire := <-h.timers:
			h.mu.Lock()
			fire()
			h.mu.Unlock()
		}
	}
}

// Stop ends Run. Pending grace timers are abandoned.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

func (h *Hub) post(ch chan *Client, c *Client) {
	select {
	case ch <- c:
	case <-h.stop:
	}
}

func (h *Hub) deliver(m *Message) {
	select {
	case h.inbound <- m:
	case <-h.stop:
	}
}

func (h *Hub) handle(c *Client, data []byte) {
	in, err := protocol.Parse(data)
	if errors.Is(err, protocol.ErrUnknownType) {
		h.logger.Debug("ignoring message", slog.String("conn", c.id), slog.String("type", string(in.Type)))
		return
	}
	if err != nil {
		h.logger.Warn("dropping malformed message", slog.String("conn", c.id), slog.Any("error", err))
		return
	}

	switch in.Type {
	case protocol.TypeJoinRoom:
		if in.RoomID == "" {
			h.logger.Warn("join without room id", slog.String("conn", c.id))
			return
		}
		userID := in.UserID
		if userID == "" {
			userID = c.id
		}
		h.registry.Join(c, in.RoomID, userID)

	case protocol.TypeAction:
		a, err := in.DecodeAction()
		if errors.Is(err, diagram.ErrUnknownKind) {
			h.logger.Debug("ignoring action", slog.String("conn", c.id), slog.Any("error", err))
			return
		}
		if err != nil {
			h.logger.Warn("dropping malformed action", slog.String("conn", c.id), slog.Any("error", err))
			return
		}
		h.reject(c, in, h.registry.Submit(c, in.RoomID, a))

	case protocol.TypeUndo:
		h.reject(c, in, h.registry.Undo(c, in.RoomID, in.UserID))

	case protocol.TypeRedo:
		h.reject(c, in, h.registry.Redo(c, in.RoomID, in.UserID))
	}
}

func (h *Hub) reject(c *Client, in protocol.Inbound, err error) {
	if err == nil {
		return
	}
	h.logger.Warn("dropping message",
		slog.String("conn", c.id),
		slog.String("type", string(in.Type)),
		slog.String("room", in.RoomID),
		slog.Any("error", err))
}

// Returns the number of live rooms, including ones waiting out their grace period
func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.registry.RoomCount()
}

// Returns the number of connected clients
func (h *Hub) GetClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Returns room id -> connection count for every live room
func (h *Hub) GetActiveRooms() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.registry.ActiveRooms()
}

// IsLive reports whether the room currently exists in memory.
func (h *Hub) IsLive(roomID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.registry.Get(roomID)
	return ok
}
