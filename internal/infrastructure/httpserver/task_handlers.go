package httpserver

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/xhit/go-str2duration/v2"

	"github.com/canner-app/canner/go/internal/application/services"
	"github.com/canner-app/canner/go/internal/core/domain/task"
	"github.com/canner-app/canner/go/internal/infrastructure/httpserver/helpers"
)

const defaultWaitTimeout = 30 * time.Second

type submitTaskResponse struct {
	TaskID    string `json:"task_id"`
	Mode      string `json:"mode"`
	StatusURL string `json:"status_url"`
}

func (s *Server) submitTask(c echo.Context) error {
	kind := task.Kind(c.Param("kind"))
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	var payload json.RawMessage
	if len(body) > 0 {
		if !json.Valid(body) {
			return echo.NewHTTPError(http.StatusBadRequest, "request body must be JSON")
		}
		payload = body
	}

	id, err := s.taskService.Submit(c.Request().Context(), kind, payload, helpers.GetClientID(c))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUnknownTaskKind), errors.Is(err, services.ErrInvalidPayload):
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		case errors.Is(err, services.ErrKindUnavailable):
			return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
		}
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusAccepted, submitTaskResponse{
		TaskID:    id,
		Mode:      s.taskService.ModeOf(id),
		StatusURL: "/api/v1/tasks/" + id,
	})
}

func taskResponse(c echo.Context, res task.Result) error {
	if res.Status == task.StatusNotFound {
		return c.JSON(http.StatusNotFound, res)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *Server) getTaskStatus(c echo.Context) error {
	return taskResponse(c, s.taskService.GetStatus(c.Request().Context(), c.Param("id")))
}

// waitForTask blocks until the task finishes or the timeout elapses. The
// timeout is given in seconds or as a duration ("30s", "2m").
func (s *Server) waitForTask(c echo.Context) error {
	timeout := defaultWaitTimeout
	if raw := c.QueryParam("timeout"); raw != "" {
		d, err := parseTimeout(raw)
		if err != nil || d < 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "invalid timeout")
		}
		timeout = d
	}
	if timeout > s.config.MaxWait {
		timeout = s.config.MaxWait
	}
	return taskResponse(c, s.taskService.Wait(c.Request().Context(), c.Param("id"), timeout))
}

func parseTimeout(raw string) (time.Duration, error) {
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return str2duration.ParseDuration(raw)
}

func (s *Server) cancelTask(c echo.Context) error {
	id := c.Param("id")
	cancelled := s.taskService.Cancel(c.Request().Context(), id)
	return c.JSON(http.StatusOK, map[string]any{"task_id": id, "cancelled": cancelled})
}

func (s *Server) listActiveTasks(c echo.Context) error {
	active := s.taskService.ActiveTasks(c.Request().Context())
	return c.JSON(http.StatusOK, map[string]any{
		"mode":  s.taskService.Mode(),
		"count": len(active),
		"tasks": active,
	})
}
