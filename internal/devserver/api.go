package devserver

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/matheus3301/pchat/internal/restapi"
	"github.com/matheus3301/pchat/internal/store"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error string `json:"error"`
}

type api struct {
	db     *store.DB
	logger *zap.Logger
}

// checkRoom answers {message, room: "<id>"} when it creates the room and
// {room: {_id}} when the room already existed.
func (a *api) checkRoom(c *gin.Context) {
	var req restapi.CheckRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.FirstUser == 0 || req.SecondUser == 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "firstUser and secondUser are required"})
		return
	}
	if req.FirstUser == req.SecondUser {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "a room needs two distinct users"})
		return
	}

	room, created, err := a.db.FindOrCreateRoom(req.FirstUser, req.SecondUser)
	if err != nil {
		a.logger.Error("find or create room", zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}
	if created {
		a.logger.Info("room created", zap.String("room", room.ID), zap.Int64("first", room.FirstUser), zap.Int64("second", room.SecondUser))
		c.JSON(http.StatusOK, gin.H{"message": "Room created", "room": room.ID})
		return
	}
	c.JSON(http.StatusOK, gin.H{"room": gin.H{"_id": room.ID}})
}

func (a *api) getMessages(c *gin.Context) {
	roomID := c.Param("room")
	if !a.roomExists(c, roomID) {
		return
	}
	msgs, err := a.db.ListMessages(roomID)
	if err != nil {
		a.logger.Error("list messages", zap.String("room", roomID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}
	out := make([]restapi.StoredMessage, 0, len(msgs))
	for _, m := range msgs {
		isRead := m.IsRead
		out = append(out, restapi.StoredMessage{
			User:      m.UserID,
			Content:   m.Content,
			Timestamp: time.UnixMilli(m.Timestamp).UTC(),
			IsRead:    &isRead,
		})
	}
	c.JSON(http.StatusOK, gin.H{"messages": out})
}

func (a *api) addMessage(c *gin.Context) {
	var req restapi.AddMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Room == "" || req.Content == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "room, user and content are required"})
		return
	}
	if !a.roomExists(c, req.Room) {
		return
	}
	ts := req.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	m := &store.Message{RoomID: req.Room, UserID: req.User, Content: req.Content, Timestamp: ts.UnixMilli()}
	if err := a.db.AddMessage(m); err != nil {
		a.logger.Error("add message", zap.String("room", req.Room), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Message added", "id": m.ID})
}

func (a *api) markMessagesAsRead(c *gin.Context) {
	roomID := c.Param("room")
	var req struct {
		UserID int64 `json:"userId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "userId is required"})
		return
	}
	if !a.roomExists(c, roomID) {
		return
	}
	n, err := a.db.MarkRead(roomID, req.UserID)
	if err != nil {
		a.logger.Error("mark read", zap.String("room", roomID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Messages marked as read", "updated": n})
}

func (a *api) takeUserData(c *gin.Context) {
	var req struct {
		TelegramID int64 `json:"telegramId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.TelegramID == 0 {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "telegramId is required"})
		return
	}
	u, err := a.db.GetUser(req.TelegramID)
	if err != nil {
		a.logger.Error("get user", zap.Int64("user", req.TelegramID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}
	if u == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "user not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": restapi.UserData{Name: u.Name, BirthDate: u.BirthDate, City: u.City}})
}

func (a *api) roomExists(c *gin.Context, roomID string) bool {
	room, err := a.db.GetRoom(roomID)
	if err != nil {
		a.logger.Error("get room", zap.String("room", roomID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return false
	}
	if room == nil {
		c.JSON(http.StatusNotFound, errorResponse{Error: "room not found"})
		return false
	}
	return true
}
