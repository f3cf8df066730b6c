package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"vn.io.arda/realtime/internal/application"
	"vn.io.arda/realtime/internal/connection"
	"vn.io.arda/realtime/internal/domain"
	"vn.io.arda/realtime/internal/transport/mw"
)

// maxMessageBody caps POST /messages bodies.
const maxMessageBody = 64 << 10

// Handler holds all HTTP handler methods.
type Handler struct {
	coord *application.Coordinator
	hub   *Hub
	// base outlives requests; sessions activated over HTTP run on it.
	base context.Context
}

// NewHandler creates a new Handler. Sessions started through POST /session
// live until DELETE /session, a replacing session, or cancellation of base.
func NewHandler(base context.Context, coord *application.Coordinator, hub *Hub) *Handler {
	return &Handler{coord: coord, hub: hub, base: base}
}

// --- Session ---

type statusResponse struct {
	Status    string        `json:"status"`
	Connected bool          `json:"connected"`
	Active    bool          `json:"active"`
	UserID    string        `json:"userId,omitempty"`
	ExpiresAt *time.Time    `json:"expiresAt,omitempty"`
	Unread    int           `json:"unread"`
	Poll      *pollResponse `json:"poll,omitempty"`
}

type pollResponse struct {
	Loading       bool       `json:"loading"`
	HasData       bool       `json:"hasData"`
	LastFetchedAt *time.Time `json:"lastFetchedAt,omitempty"`
	Error         string     `json:"error,omitempty"`
}

// Status GET /status
func (h *Handler) Status(c echo.Context) error {
	return c.JSON(http.StatusOK, h.status())
}

// StartSession POST /session. The bearer token becomes the session credential.
func (h *Handler) StartSession(c echo.Context) error {
	token, ok := mw.BearerToken(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
	}

	sess, err := application.SessionFromToken(token)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	if sess.Expired(time.Now()) {
		return echo.NewHTTPError(http.StatusUnauthorized, "token expired")
	}

	if err := h.coord.Activate(h.base, sess); err != nil {
		if errors.Is(err, application.ErrNoTransport) {
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		log.Error().Err(err).Msg("activate session")
		return echo.ErrInternalServerError
	}
	return c.JSON(http.StatusCreated, h.status())
}

// EndSession DELETE /session
func (h *Handler) EndSession(c echo.Context) error {
	h.coord.Deactivate()
	return c.NoContent(http.StatusNoContent)
}

// Refresh POST /refresh triggers an out-of-band poll.
func (h *Handler) Refresh(c echo.Context) error {
	h.coord.Refresh()
	return c.NoContent(http.StatusAccepted)
}

// --- Notifications ---

// ListNotifications GET /notifications?unread=true&limit=N
func (h *Handler) ListNotifications(c echo.Context) error {
	all := h.coord.Notifications()

	list := all
	if c.QueryParam("unread") == "true" {
		list = make([]domain.Notification, 0, len(all))
		for _, n := range all {
			if !n.Read {
				list = append(list, n)
			}
		}
	}
	if limit := parseIntQuery(c, "limit", 0); limit > 0 && limit < len(list) {
		list = list[:limit]
	}

	return c.JSON(http.StatusOK, map[string]any{
		"data":   list,
		"total":  len(all),
		"unread": h.coord.UnreadCount(),
	})
}

// GetUnreadCount GET /notifications/unread-count
func (h *Handler) GetUnreadCount(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]int{"count": h.coord.UnreadCount()})
}

// MarkRead PATCH /notifications/:id/read
func (h *Handler) MarkRead(c echo.Context) error {
	if !h.coord.MarkAsRead(c.Param("id")) {
		return echo.NewHTTPError(http.StatusNotFound, "notification not found")
	}
	return c.NoContent(http.StatusNoContent)
}

// MarkAllRead POST /notifications/read-all
func (h *Handler) MarkAllRead(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]int{"marked": h.coord.MarkAllAsRead()})
}

// Clear DELETE /notifications
func (h *Handler) Clear(c echo.Context) error {
	h.coord.ClearNotifications()
	return c.NoContent(http.StatusNoContent)
}

// --- Outbound ---

// SendMessage POST /messages with a {"type": ..., ...} body.
func (h *Handler) SendMessage(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxMessageBody))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "read body")
	}
	msg, err := domain.ParseMessage(body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.coord.SendMessage(c.Request().Context(), msg); err != nil {
		return sendError(err)
	}
	return c.NoContent(http.StatusAccepted)
}

// JoinEvent POST /events/:id/join
func (h *Handler) JoinEvent(c echo.Context) error {
	if err := h.coord.JoinEvent(c.Request().Context(), c.Param("id")); err != nil {
		return sendError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// LeaveEvent POST /events/:id/leave
func (h *Handler) LeaveEvent(c echo.Context) error {
	if err := h.coord.LeaveEvent(c.Request().Context(), c.Param("id")); err != nil {
		return sendError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// --- SSE Handler ---

// Stream GET /notifications/stream is the SSE endpoint.
func (h *Handler) Stream(c echo.Context) error {
	// SSE headers
	w := c.Response()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	sendCh := make(chan []byte, 32)
	client := h.hub.Register(sendCh)
	defer h.hub.Unregister(client)

	// Initial "connected" event, then the current status.
	fmt.Fprintf(w, "event: %s\ndata: {\"status\":\"ok\"}\n\n", EventConnected)
	s := h.status()
	_, _ = w.Write(buildSSEMessage(EventStatus, StatusPayload{Status: s.Status, Connected: s.Connected}))
	w.Flush()

	log.Info().Msg("SSE stream opened")

	ctx := c.Request().Context()
	for {
		select {
		case msg, ok := <-sendCh:
			if !ok {
				return nil
			}
			if _, err := w.Write(msg); err != nil {
				return nil
			}
			w.Flush()

		case <-ctx.Done():
			log.Info().Msg("SSE stream closed by client")
			return nil
		}
	}
}

// --- Healthcheck ---

// Health GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":      "ok",
		"sse_clients": h.hub.ConnectedCount(),
	})
}

// --- Helpers ---

func (h *Handler) status() statusResponse {
	resp := statusResponse{
		Status:    h.coord.Status(),
		Connected: h.coord.Connected(),
		Unread:    h.coord.UnreadCount(),
	}
	if s := h.coord.Session(); s != nil {
		resp.Active = true
		resp.UserID = s.UserID
		if !s.ExpiresAt.IsZero() {
			exp := s.ExpiresAt
			resp.ExpiresAt = &exp
		}
	}
	if r, ok := h.coord.PollResult(); ok {
		p := &pollResponse{Loading: r.Loading, HasData: r.HasData}
		if !r.LastFetchedAt.IsZero() {
			at := r.LastFetchedAt
			p.LastFetchedAt = &at
		}
		if r.Err != nil {
			p.Error = r.Err.Error()
		}
		resp.Poll = p
	}
	return resp
}

// sendError maps outbound failures to HTTP errors.
func sendError(err error) error {
	switch {
	case errors.Is(err, connection.ErrNotConnected):
		return echo.NewHTTPError(http.StatusConflict, "not connected")
	case errors.Is(err, application.ErrNotActive):
		return echo.NewHTTPError(http.StatusConflict, "no active session")
	case errors.Is(err, application.ErrInvalidEventID):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrMalformedMessage):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		log.Warn().Err(err).Msg("send failed")
		return echo.NewHTTPError(http.StatusBadGateway, "send failed")
	}
}

func parseIntQuery(c echo.Context, key string, def int) int {
	v, err := strconv.Atoi(c.QueryParam(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}
