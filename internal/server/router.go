package server

import (
	"errors"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/tasknotify/internal/auth"
	"github.com/MarcoPoloResearchLab/tasknotify/internal/notifications"
	"github.com/MarcoPoloResearchLab/tasknotify/internal/realtime"
	"github.com/MarcoPoloResearchLab/tasknotify/internal/users"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	userIDContextKey = "tasknotify_user_id"
	roleContextKey   = "tasknotify_role"
)

var (
	errMissingTokenValidator = errors.New("token validator dependency required")
	errMissingInbox          = errors.New("inbox dependency required")
	errMissingDispatcher     = errors.New("dispatcher dependency required")
	errMissingRetention      = errors.New("retention enforcer dependency required")
	errMissingStore          = errors.New("notification store dependency required")
	errMissingRegistry       = errors.New("connection registry dependency required")
	errMissingRealtime       = errors.New("realtime handler dependency required")
	errInvalidAuthorization  = errors.New("authorization header missing or invalid")
)

type TokenValidator interface {
	ValidateToken(token string) (auth.Claims, error)
}

type Dependencies struct {
	TokenValidator TokenValidator
	Inbox          *notifications.Inbox
	Dispatcher     *notifications.Dispatcher
	Retention      *notifications.RetentionEnforcer
	Store          *notifications.Store
	Registry       *realtime.Registry
	Realtime       http.Handler
	AllowedOrigins []string
	Clock          func() time.Time
	Logger         *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	switch {
	case deps.TokenValidator == nil:
		return nil, errMissingTokenValidator
	case deps.Inbox == nil:
		return nil, errMissingInbox
	case deps.Dispatcher == nil:
		return nil, errMissingDispatcher
	case deps.Retention == nil:
		return nil, errMissingRetention
	case deps.Store == nil:
		return nil, errMissingStore
	case deps.Registry == nil:
		return nil, errMissingRegistry
	case deps.Realtime == nil:
		return nil, errMissingRealtime
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		tokens:     deps.TokenValidator,
		inbox:      deps.Inbox,
		dispatcher: deps.Dispatcher,
		retention:  deps.Retention,
		store:      deps.Store,
		registry:   deps.Registry,
		clock:      clock,
		logger:     logger,
	}

	router.GET("/healthz", handler.handleHealth)
	router.GET("/ws/notifications", gin.WrapH(deps.Realtime))

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)

	inbox := protected.Group("/notifications")
	inbox.GET("", handler.handleList)
	inbox.GET("/unread", handler.handleUnread)
	inbox.GET("/count", handler.handleCounts)
	inbox.GET("/type/:type", handler.handleListByType)
	inbox.GET("/team/:teamId", handler.handleListByTeam)
	inbox.GET("/activity/:activityId", handler.handleListByActivity)
	inbox.PUT("/:id/read", handler.handleMarkRead)
	inbox.PUT("/read-all", handler.handleMarkAllRead)
	inbox.DELETE("/:id", handler.handleDelete)
	inbox.POST("/test", handler.handleSendTest)

	admin := protected.Group("/admin/notifications")
	admin.Use(handler.requireAdmin)
	admin.POST("", handler.handleAdminCreate)
	admin.POST("/cleanup/users/:userId", handler.handleCleanupUser)
	admin.POST("/cleanup/all-users", handler.handleCleanupAllUsers)
	admin.DELETE("/older-than/:days", handler.handleDeleteOlderThan)
	admin.DELETE("/teams/:teamId", handler.handleDeleteByTeam)
	admin.DELETE("/activities/:activityId", handler.handleDeleteByActivity)
	admin.GET("/settings", handler.handleSettings)

	return router, nil
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}
	if len(allowedOrigins) == 0 || slices.Contains(allowedOrigins, "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = allowedOrigins
		config.AllowCredentials = true
	}
	return cors.New(config)
}

type httpHandler struct {
	tokens     TokenValidator
	inbox      *notifications.Inbox
	dispatcher *notifications.Dispatcher
	retention  *notifications.RetentionEnforcer
	store      *notifications.Store
	registry   *realtime.Registry
	clock      func() time.Time
	logger     *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	claims, err := h.tokens.ValidateToken(token)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredToken) {
			h.logger.Info("token validation failed", zap.Error(err))
		} else {
			h.logger.Warn("token validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(userIDContextKey, claims.UserID)
	c.Set(roleContextKey, claims.Role)
	c.Next()
}

func (h *httpHandler) requireAdmin(c *gin.Context) {
	if c.GetString(roleContextKey) != users.RoleAdmin {
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.Next()
}

func callerID(c *gin.Context) uint {
	return c.GetUint(userIDContextKey)
}
