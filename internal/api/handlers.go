package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/Vandu-Shre/synapse/internal/db"
	"github.com/Vandu-Shre/synapse/internal/ratelimit"
	"github.com/Vandu-Shre/synapse/internal/ws"
)

const maxRoomIDLength = 128

type API struct {
	hub      *ws.Hub
	database *db.Database
	limiter  *ratelimit.ClientLimiters
	logger   *slog.Logger
}

func New(hub *ws.Hub, database *db.Database, limiter *ratelimit.ClientLimiters, logger *slog.Logger) *API {
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		hub:      hub,
		database: database,
		limiter:  limiter,
		logger:   logger,
	}
}

// Router builds the HTTP surface: the websocket endpoint, health, and the /api group.
func (a *API) Router(allowedOrigins []string) *gin.Engine {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOriginFunc: func(origin string) bool {
			return len(allowedOrigins) == 0 ||
				slices.Contains(allowedOrigins, "*") ||
				slices.Contains(allowedOrigins, origin)
		},
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}))

	r.GET("/ws", func(c *gin.Context) {
		ws.ServeWs(a.hub, c.Writer, c.Request)
	})
	r.GET("/health", a.HealthHandler)

	group := r.Group("/api")
	if a.limiter != nil {
		group.Use(a.limiter.Middleware())
	}
	group.GET("/stats", a.StatsHandler)
	group.GET("/rooms", a.ListRoomsHandler)
	group.POST("/rooms", a.CreateRoomHandler)
	group.GET("/rooms/:id", a.GetRoomHandler)
	group.DELETE("/rooms/:id", a.DeleteRoomHandler)

	return r
}

func errorResponse(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

func (a *API) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(c *gin.Context) {
	stats := gin.H{
		"active_rooms":   a.hub.GetRoomCount(),
		"active_clients": a.hub.GetClientCount(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	if a.database != nil {
		dbStats, err := a.database.GetStats()
		if err != nil {
			a.logger.Warn("directory stats failed", slog.Any("error", err))
		} else {
			stats["total_rooms"] = dbStats["room_count"]
		}
	}

	c.JSON(http.StatusOK, stats)
}

// Room handlers

type RoomResponse struct {
	RoomID      string     `json:"roomId"`
	Name        string     `json:"name,omitempty"`
	Exists      *bool      `json:"exists,omitempty"`
	ActiveUsers int        `json:"activeUsers"`
	CreatedAt   *time.Time `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time `json:"updatedAt,omitempty"`
}

type CreateRoomRequest struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func validRoomID(id string) bool {
	return id != "" && len(id) <= maxRoomIDLength && strings.TrimSpace(id) == id
}

func (a *API) ListRoomsHandler(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	offset, _ := strconv.Atoi(c.Query("offset"))
	if offset < 0 {
		offset = 0
	}

	rooms, err := a.database.ListRooms(limit, offset)
	if err != nil {
		a.logger.Error("list rooms", slog.Any("error", err))
		errorResponse(c, http.StatusInternalServerError, "Failed to list rooms")
		return
	}

	activeRooms := a.hub.GetActiveRooms()

	response := make([]RoomResponse, len(rooms))
	for i, room := range rooms {
		response[i] = RoomResponse{
			RoomID:      room.ID,
			Name:        room.Name,
			ActiveUsers: activeRooms[room.ID],
			CreatedAt:   &room.CreatedAt,
			UpdatedAt:   &room.UpdatedAt,
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"rooms":  response,
		"limit":  limit,
		"offset": offset,
	})
}

// CreateRoomHandler allocates a room id. The body is optional; a caller may pick the
// id, otherwise a random one is issued.
func (a *API) CreateRoomHandler(c *gin.Context) {
	var req CreateRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		errorResponse(c, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.ID == "" {
		req.ID = uuid.NewString()
	} else if !validRoomID(req.ID) {
		errorResponse(c, http.StatusBadRequest, "Invalid room ID")
		return
	}

	if err := a.database.CreateRoom(req.ID, req.Name); err != nil {
		a.logger.Error("create room", slog.String("room", req.ID), slog.Any("error", err))
		errorResponse(c, http.StatusInternalServerError, "Failed to create room")
		return
	}

	room, err := a.database.GetRoom(req.ID)
	if err != nil || room == nil {
		errorResponse(c, http.StatusInternalServerError, "Failed to get room")
		return
	}

	a.logger.Info("room allocated", slog.String("room", room.ID))
	c.JSON(http.StatusCreated, RoomResponse{
		RoomID:    room.ID,
		Name:      room.Name,
		CreatedAt: &room.CreatedAt,
	})
}

// GetRoomHandler reports whether a room is known, either from the directory or because
// it is live right now.
func (a *API) GetRoomHandler(c *gin.Context) {
	roomID := c.Param("id")
	if !validRoomID(roomID) {
		errorResponse(c, http.StatusBadRequest, "Invalid room ID")
		return
	}

	room, err := a.database.GetRoom(roomID)
	if err != nil {
		a.logger.Error("get room", slog.String("room", roomID), slog.Any("error", err))
		errorResponse(c, http.StatusInternalServerError, "Failed to get room")
		return
	}

	exists := room != nil || a.hub.IsLive(roomID)
	response := RoomResponse{
		RoomID:      roomID,
		Exists:      &exists,
		ActiveUsers: a.hub.GetActiveRooms()[roomID],
	}
	if room != nil {
		response.Name = room.Name
		response.CreatedAt = &room.CreatedAt
		response.UpdatedAt = &room.UpdatedAt
	}

	c.JSON(http.StatusOK, response)
}

func (a *API) DeleteRoomHandler(c *gin.Context) {
	roomID := c.Param("id")
	if !validRoomID(roomID) {
		errorResponse(c, http.StatusBadRequest, "Invalid room ID")
		return
	}

	if err := a.database.DeleteRoom(roomID); err != nil {
		a.logger.Error("delete room", slog.String("room", roomID), slog.Any("error", err))
		errorResponse(c, http.StatusInternalServerError, "Failed to delete room")
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Room deleted"})
}
