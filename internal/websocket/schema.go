package websocket

import (
	"encoding/json"

	"github.com/stemsi/exam-proctor/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionHeartbeat Action = "heartbeat"
	ActionSync      Action = "sync"
	ActionViolation Action = "violation"
	ActionSubmit    Action = "submit"
	ActionPing      Action = "ping"
)

// Request is a single client message. Only the fields for Action are read.
type Request struct {
	Action  Action                     `json:"action"`
	Answers map[string]json.RawMessage `json:"answers,omitempty"`
	Type    string                     `json:"type,omitempty"`
	Detail  string                     `json:"detail,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState  Event = "state"
	EventGraded Event = "graded"
	EventError  Event = "error"
	EventPong   Event = "pong"
)

// StateEvent carries the session after any change.
type StateEvent struct {
	Event   Event              `json:"event"`
	Session *model.ExamSession `json:"session"`
	Trigger string             `json:"trigger,omitempty"`
}

// GradedEvent is sent once the attempt has been graded (or refused).
type GradedEvent struct {
	Event   Event                    `json:"event"`
	Status  model.SessionStatus      `json:"status"`
	Outcome *model.SubmissionOutcome `json:"outcome"`
}

type ErrorEvent struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongEvent struct {
	Event Event `json:"event"`
}
