package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/tasknotify/internal/notifications"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type createNotificationPayload struct {
	UserID            uint   `json:"userId"`
	Title             string `json:"title"`
	Message           string `json:"message"`
	Type              string `json:"type"`
	RelatedTeamID     *uint  `json:"relatedTeamId"`
	RelatedActivityID *uint  `json:"relatedActivityId"`
}

type settingsPayload struct {
	MaxPerUser     int `json:"maxPerUser"`
	ConnectedUsers int `json:"connectedUsers"`
}

type sweepSummaryPayload struct {
	Users   int `json:"users"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

func (h *httpHandler) handleList(c *gin.Context) {
	records, err := h.inbox.List(c.Request.Context(), callerID(c))
	h.respondList(c, records, err)
}

func (h *httpHandler) handleUnread(c *gin.Context) {
	records, err := h.inbox.Unread(c.Request.Context(), callerID(c))
	h.respondList(c, records, err)
}

func (h *httpHandler) handleListByType(c *gin.Context) {
	notificationType := strings.TrimSpace(c.Param("type"))
	if notificationType == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_type"})
		return
	}
	records, err := h.inbox.ByType(c.Request.Context(), callerID(c), notificationType)
	h.respondList(c, records, err)
}

func (h *httpHandler) handleListByTeam(c *gin.Context) {
	teamID, ok := pathID(c, "teamId")
	if !ok {
		return
	}
	records, err := h.inbox.ByTeam(c.Request.Context(), callerID(c), teamID)
	h.respondList(c, records, err)
}

func (h *httpHandler) handleListByActivity(c *gin.Context) {
	activityID, ok := pathID(c, "activityId")
	if !ok {
		return
	}
	records, err := h.inbox.ByActivity(c.Request.Context(), callerID(c), activityID)
	h.respondList(c, records, err)
}

func (h *httpHandler) respondList(c *gin.Context, records []notifications.Notification, err error) {
	if err != nil {
		h.respondError(c, "list notifications", err)
		return
	}
	c.JSON(http.StatusOK, records)
}

func (h *httpHandler) handleCounts(c *gin.Context) {
	counts, err := h.inbox.Counts(c.Request.Context(), callerID(c))
	if err != nil {
		h.respondError(c, "count notifications", err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

func (h *httpHandler) handleMarkRead(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	record, err := h.inbox.MarkRead(c.Request.Context(), id, callerID(c))
	if err != nil {
		h.respondError(c, "mark notification read", err)
		return
	}
	c.JSON(http.StatusOK, record)
}

func (h *httpHandler) handleMarkAllRead(c *gin.Context) {
	updated, err := h.inbox.MarkAllRead(c.Request.Context(), callerID(c))
	if err != nil {
		h.respondError(c, "mark all notifications read", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (h *httpHandler) handleDelete(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	deleted, err := h.inbox.Delete(c.Request.Context(), id, callerID(c))
	if err != nil {
		h.respondError(c, "delete notification", err)
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *httpHandler) handleSendTest(c *gin.Context) {
	record, err := h.dispatcher.SendTest(c.Request.Context(), callerID(c))
	if err != nil {
		h.respondError(c, "send test notification", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"notification": record,
		"connected":    h.registry.IsConnected(record.UserID),
	})
}

func (h *httpHandler) handleAdminCreate(c *gin.Context) {
	var request createNotificationPayload
	if err := c.ShouldBindJSON(&request); err != nil || request.UserID == 0 || strings.TrimSpace(request.Title) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	record, err := h.dispatcher.Create(c.Request.Context(), notifications.CreateRequest{
		UserID:            request.UserID,
		Title:             request.Title,
		Message:           request.Message,
		Type:              request.Type,
		RelatedTeamID:     request.RelatedTeamID,
		RelatedActivityID: request.RelatedActivityID,
	})
	if err != nil {
		h.respondError(c, "create notification", err)
		return
	}
	c.JSON(http.StatusCreated, record)
}

func (h *httpHandler) handleCleanupUser(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	deleted, err := h.retention.Sweep(c.Request.Context(), userID)
	if err != nil {
		h.respondError(c, "sweep user notifications", err)
		return
	}
	h.logger.Info("notification cleanup completed", zap.Uint("user_id", userID), zap.Int("deleted", deleted))
	c.JSON(http.StatusOK, gin.H{"userId": userID, "deleted": deleted})
}

func (h *httpHandler) handleCleanupAllUsers(c *gin.Context) {
	summary, err := h.retention.SweepAllUsers(c.Request.Context())
	if err != nil {
		h.respondError(c, "sweep all notifications", err)
		return
	}
	h.logger.Info("notification cleanup completed",
		zap.Int("users", summary.Users),
		zap.Int("deleted", summary.Deleted),
		zap.Int("failed", summary.Failed))
	c.JSON(http.StatusOK, sweepSummaryPayload{Users: summary.Users, Deleted: summary.Deleted, Failed: summary.Failed})
}

func (h *httpHandler) handleDeleteOlderThan(c *gin.Context) {
	days, err := strconv.Atoi(c.Param("days"))
	if err != nil || days <= 0 || days > notifications.MaxAgeDays {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_days"})
		return
	}
	cutoff := notifications.AgeCutoff(h.clock(), days)
	deleted, err := h.store.DeleteOlderThan(c.Request.Context(), cutoff)
	if err != nil {
		h.respondError(c, "purge old notifications", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted, "cutoff": cutoff})
}

func (h *httpHandler) handleDeleteByTeam(c *gin.Context) {
	teamID, ok := pathID(c, "teamId")
	if !ok {
		return
	}
	deleted, err := h.store.DeleteByRelatedTeam(c.Request.Context(), teamID)
	if err != nil {
		h.respondError(c, "purge team notifications", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (h *httpHandler) handleDeleteByActivity(c *gin.Context) {
	activityID, ok := pathID(c, "activityId")
	if !ok {
		return
	}
	deleted, err := h.store.DeleteByRelatedActivity(c.Request.Context(), activityID)
	if err != nil {
		h.respondError(c, "purge activity notifications", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (h *httpHandler) handleSettings(c *gin.Context) {
	c.JSON(http.StatusOK, settingsPayload{
		MaxPerUser:     h.retention.MaxPerUser(),
		ConnectedUsers: h.registry.ConnectedCount(),
	})
}

func (h *httpHandler) respondError(c *gin.Context, action string, err error) {
	switch {
	case errors.Is(err, notifications.ErrUnknownUser):
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown_user"})
	case errors.Is(err, notifications.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
	case errors.Is(err, notifications.ErrAccessDenied):
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
	case errors.Is(err, notifications.ErrInvalidNotification):
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
	default:
		h.logger.Error("failed to "+action, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
	}
}

func pathID(c *gin.Context, name string) (uint, bool) {
	value, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || value == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_" + name})
		return 0, false
	}
	return uint(value), true
}
