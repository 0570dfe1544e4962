// Package v1 serves the chat HTTP API.
package v1

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	errs "github.com/hrygo/intellichat/server/internal/errors"
	"github.com/hrygo/intellichat/server/internal/observability"
	"github.com/hrygo/intellichat/server/middleware"
	"github.com/hrygo/intellichat/server/service/chat"
	"github.com/hrygo/intellichat/store"
)

// HeaderUserID carries the caller identity set by the trusted auth gateway.
const HeaderUserID = "X-User-ID"

const userIDContextKey = "user_id"

type APIV1Service struct {
	Store       *store.Store
	ChatService *chat.Service
	Metrics     *observability.Metrics

	rateLimiter *middleware.RateLimiter
}

// NewAPIV1Service creates the API. limiter and metrics may be nil.
func NewAPIV1Service(s *store.Store, chatService *chat.Service, metrics *observability.Metrics, limiter *middleware.RateLimiter) *APIV1Service {
	return &APIV1Service{
		Store:       s,
		ChatService: chatService,
		Metrics:     metrics,
		rateLimiter: limiter,
	}
}

// Register mounts the routes on the echo server.
func (s *APIV1Service) Register(e *echo.Echo) {
	e.GET("/healthz", s.Healthz)
	if s.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(s.Metrics.Handler()))
	}

	group := e.Group("/api/v1", authenticate)
	if s.rateLimiter != nil {
		// Keyed on the parsed id, so "7" and "07" share a bucket.
		group.Use(s.rateLimiter.Middleware(func(c echo.Context) string {
			return strconv.Itoa(int(currentUserID(c)))
		}))
	}

	group.POST("/chats", s.CreateChat)
	group.GET("/chats", s.ListChats)
	group.DELETE("/chats/:id", s.DeleteChat)
	group.GET("/chats/:id/messages", s.ListMessages)
	group.POST("/chats/:id/messages", s.SendMessage)
	group.GET("/chats/:id/transcript", s.GetTranscript)
}

// Healthz reports whether the store is reachable.
func (s *APIV1Service) Healthz(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// authenticate resolves the caller from HeaderUserID.
func authenticate(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		raw := c.Request().Header.Get(HeaderUserID)
		id, err := strconv.ParseInt(raw, 10, 32)
		if err != nil || id <= 0 {
			return writeError(c, errs.Unauthorized("missing or invalid "+HeaderUserID+" header"))
		}
		c.Set(userIDContextKey, int32(id))
		return next(c)
	}
}

func currentUserID(c echo.Context) int32 {
	id, _ := c.Get(userIDContextKey).(int32)
	return id
}

func chatIDParam(c echo.Context) (int32, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil || id <= 0 {
		return 0, errs.InvalidArgument("invalid chat id " + strconv.Quote(c.Param("id")))
	}
	return int32(id), nil
}

// requestID returns the id assigned by echo's RequestID middleware, if any.
func requestID(c echo.Context) string {
	if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
		return id
	}
	return c.Request().Header.Get(echo.HeaderXRequestID)
}

type errorResponse struct {
	Code    errs.ErrorCode `json:"code"`
	Message string         `json:"message"`
}

func writeError(c echo.Context, err error) error {
	var aiErr *errs.AIError
	if errors.As(err, &aiErr) {
		return c.JSON(aiErr.HTTPStatus(), errorResponse{Code: aiErr.Code, Message: aiErr.Message})
	}
	c.Logger().Error(err)
	return c.JSON(http.StatusInternalServerError, errorResponse{Code: "INTERNAL", Message: "internal error"})
}
