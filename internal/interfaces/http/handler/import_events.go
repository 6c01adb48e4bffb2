package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/erp/ingest/internal/domain/ingest"
	"github.com/erp/ingest/internal/infrastructure/logger"
)

// ProgressSubscriber yields the progress events of one session
type ProgressSubscriber interface {
	Subscribe(sessionID string) (<-chan ingest.ProgressEvent, func())
}

// ImportEventsHandler streams progress events as Server-Sent Events
type ImportEventsHandler struct {
	BaseHandler
	service    ImportService
	subscriber ProgressSubscriber
	heartbeat  time.Duration
}

// NewImportEventsHandler creates the SSE handler. A non-positive heartbeat
// uses 15 seconds.
func NewImportEventsHandler(service ImportService, subscriber ProgressSubscriber, heartbeat time.Duration) *ImportEventsHandler {
	if heartbeat <= 0 {
		heartbeat = 15 * time.Second
	}
	return &ImportEventsHandler{service: service, subscriber: subscriber, heartbeat: heartbeat}
}

// Stream godoc
// @Summary      Stream import progress
// @Description  Server-Sent Events. The stream ends after a completed, error or cancelled event.
// @Tags         imports
// @Produce      text/event-stream
// @Param        id path string true "Session ID"
// @Success      200 {string} string "SSE stream"
// @Failure      404 {object} dto.Response
// @Router       /imports/{id}/events [get]
func (h *ImportEventsHandler) Stream(c *gin.Context) {
	id := c.Param("id")
	ctx := c.Request.Context()
	log := logger.L(ctx)

	session, err := h.service.Session(ctx, id)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	events, cancel := h.subscriber.Subscribe(id)
	defer cancel()

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	// streams outlive the server write timeout
	_ = http.NewResponseController(c.Writer).SetWriteDeadline(time.Time{})
	c.Status(http.StatusOK)

	// A session that finished before this process started has no live
	// events; report its stored outcome instead.
	if session.IsTerminal() {
		select {
		case ev, ok := <-events:
			if ok {
				c.SSEvent(string(ev.Type), ev)
				c.Writer.Flush()
				return
			}
		default:
		}
		ev := terminalEvent(session)
		c.SSEvent(string(ev.Type), ev)
		c.Writer.Flush()
		return
	}

	log.Debug("SSE client connected")
	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Debug("SSE client disconnected")
			return
		case <-ticker.C:
			c.SSEvent("heartbeat", gin.H{"timestamp": time.Now().Unix()})
			c.Writer.Flush()
		case ev, ok := <-events:
			if !ok {
				return
			}
			c.SSEvent(string(ev.Type), ev)
			c.Writer.Flush()
			if ev.IsFinal() {
				log.Debug("SSE stream finished", zap.String("event_type", string(ev.Type)))
				return
			}
		}
	}
}

func terminalEvent(s *ingest.ImportSession) ingest.ProgressEvent {
	t := ingest.EventCompleted
	if s.Status == ingest.StatusFailed {
		t = ingest.EventError
	}
	ev := ingest.NewProgressEvent(t, s.ID)
	snap := s.Progress()
	ev.Progress = &snap
	if t == ingest.EventError && len(s.ErrorLog) > 0 {
		ev.Error = s.ErrorLog[len(s.ErrorLog)-1].Message
	}
	return ev
}
