package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-proctor/internal/model"
	"github.com/stemsi/exam-proctor/internal/response"
	"github.com/stemsi/exam-proctor/internal/service"
	"github.com/stemsi/exam-proctor/internal/validator"
)

// SessionDriver is the session API surface. *service.ExamSessionService satisfies it.
type SessionDriver interface {
	Start(ctx context.Context, examID uuid.UUID, req *model.StartSessionRequest) (*service.StartResult, error)
	State(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
	Heartbeat(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
	SyncAnswers(ctx context.Context, id uuid.UUID, answers map[string]json.RawMessage) (*model.ExamSession, error)
	ReportViolation(ctx context.Context, id uuid.UUID, req *model.ReportViolationRequest) (*service.ViolationResult, error)
	Submit(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
	Result(ctx context.Context, id uuid.UUID) (*model.SubmissionDetail, error)
}

// SessionHandler serves the live session endpoints.
type SessionHandler struct {
	sessions SessionDriver
	log      zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions SessionDriver, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		log:      log.With().Str("component", "session_handler").Logger(),
	}
}

// StartSession godoc
// @Summary Start or rejoin an exam attempt
// @Description Runs the attempt checks and returns the session, the student view of the exam and a session token. Calling it again while the attempt is open returns the same session.
// @Tags Sessions
// @Accept json
// @Produce json
// @Param exam_id path string true "Exam ID"
// @Param body body model.StartSessionRequest true "Student identity"
// @Success 201 {object} response.Response{data=service.StartResult}
// @Success 200 {object} response.Response{data=service.StartResult} "Existing attempt resumed"
// @Failure 400 {object} response.Response
// @Failure 403 {object} response.Response "EXAM_NOT_STARTED, EXAM_ENDED, ATTEMPT_LIMIT or INVALID_QUIZ_CODE"
// @Failure 404 {object} response.Response
// @Router /exams/{exam_id}/sessions [post]
func (h *SessionHandler) StartSession(c *gin.Context) {
	examID, ok := parseID(c, "exam_id")
	if !ok {
		return
	}

	var req model.StartSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, response.ErrValidation, fields)
		return
	}

	res, err := h.sessions.Start(c.Request.Context(), examID, &req)
	if err != nil {
		failErr(c, h.log, err)
		return
	}

	status := http.StatusCreated
	if res.Resumed {
		status = http.StatusOK
	}
	response.Success(c, status, res)
}

// GetSession godoc
// @Summary Get session state
// @Description Returns the session with its remaining time. A session whose timer ran out is finalized first.
// @Tags Sessions
// @Produce json
// @Security SessionToken
// @Param id path string true "Session ID"
// @Success 200 {object} response.Response{data=model.ExamSession}
// @Failure 401 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	sess, err := h.sessions.State(c.Request.Context(), id)
	if err != nil {
		failErr(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, sess)
}

// GetResult godoc
// @Summary Get graded submission
// @Description Returns the stored submission of a finished session with its per-question results.
// @Tags Sessions
// @Produce json
// @Security SessionToken
// @Param id path string true "Session ID"
// @Success 200 {object} response.Response{data=model.SubmissionDetail}
// @Failure 401 {object} response.Response
// @Failure 404 {object} response.Response
// @Router /sessions/{id}/submission [get]
func (h *SessionHandler) GetResult(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	res, err := h.sessions.Result(c.Request.Context(), id)
	if err != nil {
		failErr(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// Heartbeat godoc
// @Summary Record client liveness
// @Description Resumes a disconnected session. Returns 409 with the final session once the attempt is over.
// @Tags Sessions
// @Produce json
// @Security SessionToken
// @Param id path string true "Session ID"
// @Success 200 {object} response.Response{data=model.ExamSession}
// @Failure 409 {object} response.Response{data=model.ExamSession} "SESSION_TERMINAL"
// @Router /sessions/{id}/heartbeat [post]
func (h *SessionHandler) Heartbeat(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	sess, err := h.sessions.Heartbeat(c.Request.Context(), id)
	h.respondSession(c, sess, err)
}

// SyncAnswers godoc
// @Summary Save answers
// @Description Merges answers into the session. Later values overwrite earlier ones per question.
// @Tags Sessions
// @Accept json
// @Produce json
// @Security SessionToken
// @Param id path string true "Session ID"
// @Param body body model.SyncAnswersRequest true "Answers keyed by question ID"
// @Success 200 {object} response.Response{data=model.ExamSession}
// @Failure 409 {object} response.Response{data=model.ExamSession} "SESSION_TERMINAL"
// @Router /sessions/{id}/answers [put]
func (h *SessionHandler) SyncAnswers(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req model.SyncAnswersRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, response.ErrValidation, fields)
		return
	}
	sess, err := h.sessions.SyncAnswers(c.Request.Context(), id, req.Answers)
	h.respondSession(c, sess, err)
}

// ReportViolation godoc
// @Summary Report a proctoring violation
// @Description Appends a violation. Exceeding the exam limit auto-submits the attempt.
// @Tags Sessions
// @Accept json
// @Produce json
// @Security SessionToken
// @Param id path string true "Session ID"
// @Param body body model.ReportViolationRequest true "Violation"
// @Success 200 {object} response.Response{data=service.ViolationResult}
// @Failure 409 {object} response.Response{data=model.ExamSession} "SESSION_TERMINAL"
// @Router /sessions/{id}/violations [post]
func (h *SessionHandler) ReportViolation(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req model.ReportViolationRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, response.ErrValidation, fields)
		return
	}
	res, err := h.sessions.ReportViolation(c.Request.Context(), id, &req)
	if errors.Is(err, service.ErrSessionTerminal) && res != nil {
		response.FailWithData(c, response.ErrSessionTerminal, res.Session)
		return
	}
	if err != nil {
		failErr(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, res)
}

// SubmitSession godoc
// @Summary Submit the attempt
// @Description Ends the attempt and grades it. Submitting a finished attempt returns it unchanged.
// @Tags Sessions
// @Produce json
// @Security SessionToken
// @Param id path string true "Session ID"
// @Success 200 {object} response.Response{data=model.ExamSession}
// @Router /sessions/{id}/submit [post]
func (h *SessionHandler) SubmitSession(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	sess, err := h.sessions.Submit(c.Request.Context(), id)
	if err != nil {
		failErr(c, h.log, err)
		return
	}
	response.Success(c, http.StatusOK, sess)
}

func (h *SessionHandler) respondSession(c *gin.Context, sess *model.ExamSession, err error) {
	switch {
	case errors.Is(err, service.ErrSessionTerminal) && sess != nil:
		response.FailWithData(c, response.ErrSessionTerminal, sess)
	case err != nil:
		failErr(c, h.log, err)
	default:
		response.Success(c, http.StatusOK, sess)
	}
}
