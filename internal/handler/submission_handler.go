package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-proctor/internal/grading"
	"github.com/stemsi/exam-proctor/internal/model"
	"github.com/stemsi/exam-proctor/internal/response"
	"github.com/stemsi/exam-proctor/internal/service"
	"github.com/stemsi/exam-proctor/internal/validator"
)

// Grader is the grading entry point. *service.GradingService satisfies it.
type Grader interface {
	Submit(ctx context.Context, req *model.SubmitExamRequest) (*service.GradeOutcome, error)
}

// SubmissionHandler serves the flat-JSON grading endpoint used by
// clients that keep their own session state.
type SubmissionHandler struct {
	grading Grader
	log     zerolog.Logger
}

// NewSubmissionHandler creates a new SubmissionHandler.
func NewSubmissionHandler(grading Grader, log zerolog.Logger) *SubmissionHandler {
	return &SubmissionHandler{
		grading: grading,
		log:     log.With().Str("component", "submission_handler").Logger(),
	}
}

// SubmissionResult is the success body of POST /submissions.
type SubmissionResult struct {
	Success         bool                     `json:"success"`
	SubmissionID    uuid.UUID                `json:"submission_id"`
	Score           float64                  `json:"score"`
	MaxScore        float64                  `json:"max_score"`
	Percentage      float64                  `json:"percentage"`
	ViolationsCount int                      `json:"violations_count"`
	DetailedResults []grading.QuestionResult `json:"detailed_results,omitempty"`
}

// SubmissionError is the failure body of POST /submissions.
type SubmissionError struct {
	Error    string            `json:"error"`
	Code     response.ErrCode  `json:"code,omitempty"`
	Attempts int               `json:"attempts,omitempty"`
	Fields   map[string]string `json:"fields,omitempty"`
}

// SubmitExam godoc
// @Summary Grade a submission
// @Description Checks the attempt policy, grades every auto-graded question and stores the submission.
// @Tags Submissions
// @Accept json
// @Produce json
// @Param body body model.SubmitExamRequest true "Submission"
// @Success 200 {object} SubmissionResult
// @Failure 400 {object} SubmissionError
// @Failure 403 {object} SubmissionError "EXAM_NOT_STARTED, EXAM_ENDED, ATTEMPT_LIMIT or INVALID_QUIZ_CODE"
// @Failure 404 {object} SubmissionError
// @Failure 500 {object} SubmissionError
// @Router /submissions [post]
func (h *SubmissionHandler) SubmitExam(c *gin.Context) {
	var req model.SubmitExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		c.JSON(http.StatusBadRequest, SubmissionError{
			Error:  response.GetMessage(response.ErrValidation),
			Code:   response.ErrValidation,
			Fields: fields,
		})
		return
	}

	out, err := h.grading.Submit(c.Request.Context(), &req)
	if err != nil {
		code, attempts := errCode(err)
		if code == response.ErrInternal {
			h.log.Error().Err(err).Str("exam_id", req.ExamID.String()).Msg("Submission failed")
		}
		c.JSON(response.StatusOf(code), SubmissionError{Error: errMessage(err, code), Code: code, Attempts: attempts})
		return
	}

	res := SubmissionResult{
		Success:         true,
		SubmissionID:    out.Submission.ID,
		Score:           out.Result.Score,
		MaxScore:        out.Result.MaxScore,
		Percentage:      out.Result.Percentage,
		ViolationsCount: out.Submission.ViolationsCount,
	}
	if out.ShowDetails {
		res.DetailedResults = out.Result.Questions
	}
	c.JSON(http.StatusOK, res)
}
