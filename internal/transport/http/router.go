package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"vn.io.arda/realtime/internal/logging"
	"vn.io.arda/realtime/internal/transport/mw"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	// APIToken, when set, must accompany every request except /health.
	APIToken string
	// AllowOrigins defaults to "*".
	AllowOrigins []string
}

// NewRouter sets up all Echo routes and middleware.
func NewRouter(h *Handler, opts RouterOptions) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	origins := opts.AllowOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(mw.RequestLogger(logging.Component("http")))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowHeaders: []string{"Authorization", "Content-Type", mw.APITokenHeader},
		AllowMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
	}))

	// Health (no auth required)
	e.GET("/health", h.Health)

	api := e.Group("")
	api.Use(mw.APIToken(opts.APIToken))

	api.GET("/status", h.Status)
	api.POST("/session", h.StartSession)
	api.DELETE("/session", h.EndSession)
	api.POST("/refresh", h.Refresh)

	api.GET("/notifications", h.ListNotifications)
	api.GET("/notifications/unread-count", h.GetUnreadCount)
	api.PATCH("/notifications/:id/read", h.MarkRead)
	api.POST("/notifications/read-all", h.MarkAllRead)
	api.DELETE("/notifications", h.Clear)

	api.POST("/messages", h.SendMessage)
	api.POST("/events/:id/join", h.JoinEvent)
	api.POST("/events/:id/leave", h.LeaveEvent)

	// SSE endpoint
	api.GET("/notifications/stream", h.Stream)

	return e
}
