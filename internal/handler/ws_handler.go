package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-proctor/internal/middleware"
	"github.com/stemsi/exam-proctor/internal/model"
	"github.com/stemsi/exam-proctor/internal/response"
	"github.com/stemsi/exam-proctor/internal/service"
	ws "github.com/stemsi/exam-proctor/internal/websocket"
)

// EventSubscriber streams session events. *service.RedisEventBus satisfies it.
type EventSubscriber interface {
	Subscribe(ctx context.Context, sessionID uuid.UUID) (<-chan service.SessionEvent, func() error)
}

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allow list permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler serves the live session stream.
type WSHandler struct {
	sessions SessionDriver
	events   EventSubscriber
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler. events may be nil, in which case only
// replies to the client's own actions are sent.
func NewWSHandler(sessions SessionDriver, events EventSubscriber, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		events:   events,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// streamConn is one connected client.
type streamConn struct {
	h      *WSHandler
	conn   *ws.Conn
	id     uuid.UUID
	log    zerolog.Logger
	graded atomic.Bool
}

// SessionStream godoc
// WS /ws/v1/sessions/:id/stream?token=...
// Actions: heartbeat, sync, violation, submit, ping. Events: state, graded, error, pong.
func (h *WSHandler) SessionStream(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, response.ErrTokenRequired)
		return
	}

	raw, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	sc := &streamConn{
		h:    h,
		conn: ws.Wrap(raw),
		id:   claims.SessionID,
		log:  h.log.With().Str("session_id", claims.SessionID.String()).Logger(),
	}
	defer sc.conn.Close(websocket.CloseNormalClosure, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sess, err := h.sessions.State(ctx, sc.id)
	if err != nil {
		sc.fail(err)
		return
	}
	sc.log.Info().Str("status", string(sess.Status)).Msg("Client connected")
	if sc.sendSession(sess, "") {
		return
	}

	go sc.pump(ctx)
	sc.readLoop(ctx)
}

// pump forwards bus events and keeps the connection alive with pings.
func (sc *streamConn) pump(ctx context.Context) {
	var events <-chan service.SessionEvent
	if sc.h.events != nil {
		var closeSub func() error
		events, closeSub = sc.h.events.Subscribe(ctx, sc.id)
		defer closeSub()
	}

	ticker := time.NewTicker(ws.PingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sc.conn.Ping(); err != nil {
				return
			}
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if sc.forward(ctx, ev) {
				// Unblocks readLoop, which ends the handler.
				_ = sc.conn.Close(websocket.CloseNormalClosure, "")
				return
			}
		}
	}
}

// forward relays one bus event and reports whether the grade has been delivered.
func (sc *streamConn) forward(ctx context.Context, ev service.SessionEvent) bool {
	switch ev.Type {
	case service.EventGraded:
		if sc.graded.CompareAndSwap(false, true) {
			_ = sc.conn.WriteTyped(ws.GradedEvent{Event: ws.EventGraded, Status: ev.Status, Outcome: ev.Outcome})
		}
		return true
	case service.EventState:
		sess, err := sc.h.sessions.State(ctx, sc.id)
		if err != nil {
			return false
		}
		_ = sc.conn.WriteTyped(ws.StateEvent{Event: ws.EventState, Session: sess, Trigger: ev.Trigger})
	}
	return false
}

func (sc *streamConn) readLoop(ctx context.Context) {
	for {
		var req ws.Request
		if err := sc.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				sc.log.Warn().Err(err).Msg("Unexpected close")
			} else {
				sc.log.Debug().Msg("Connection closed")
			}
			return
		}

		var (
			sess *model.ExamSession
			err  error
		)
		switch req.Action {
		case ws.ActionPing:
			_ = sc.conn.WriteTyped(ws.PongEvent{Event: ws.EventPong})
			continue
		case ws.ActionHeartbeat:
			sess, err = sc.h.sessions.Heartbeat(ctx, sc.id)
		case ws.ActionSync:
			if len(req.Answers) == 0 {
				_ = sc.conn.WriteError(string(response.ErrValidation), "answers are required")
				continue
			}
			sess, err = sc.h.sessions.SyncAnswers(ctx, sc.id, req.Answers)
		case ws.ActionViolation:
			if strings.TrimSpace(req.Type) == "" {
				_ = sc.conn.WriteError(string(response.ErrValidation), "type is required")
				continue
			}
			var res *service.ViolationResult
			res, err = sc.h.sessions.ReportViolation(ctx, sc.id, &model.ReportViolationRequest{Type: req.Type, Detail: req.Detail})
			if res != nil {
				sess = res.Session
			}
		case ws.ActionSubmit:
			sess, err = sc.h.sessions.Submit(ctx, sc.id)
		default:
			sc.log.Warn().Str("action", string(req.Action)).Msg("Unknown action")
			_ = sc.conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(req.Action))
			continue
		}

		if err != nil && !(errors.Is(err, service.ErrSessionTerminal) && sess != nil) {
			sc.fail(err)
			continue
		}
		if sc.sendSession(sess, string(req.Action)) {
			return
		}
	}
}

// sendSession writes the session and, once it is terminal, its grade.
// It reports whether the stream is finished.
func (sc *streamConn) sendSession(sess *model.ExamSession, trigger string) bool {
	if err := sc.conn.WriteTyped(ws.StateEvent{Event: ws.EventState, Session: sess, Trigger: trigger}); err != nil {
		return true
	}
	if !sess.Status.Terminal() {
		return false
	}
	if sess.SubmissionResult != nil && sc.graded.CompareAndSwap(false, true) {
		_ = sc.conn.WriteTyped(ws.GradedEvent{Event: ws.EventGraded, Status: sess.Status, Outcome: sess.SubmissionResult})
	}
	sc.log.Info().Str("status", string(sess.Status)).Msg("Session finished, closing stream")
	return true
}

func (sc *streamConn) fail(err error) {
	code, _ := errCode(err)
	if code == response.ErrInternal {
		sc.log.Error().Err(err).Msg("Stream action failed")
	}
	_ = sc.conn.WriteError(string(code), errMessage(err, code))
}
