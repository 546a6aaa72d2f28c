package handler

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exam-proctor/internal/response"
	"github.com/stemsi/exam-proctor/internal/service"
)

// errCode maps a service error to its API code. Attempts is set for attempt-limit rejections.
func errCode(err error) (code response.ErrCode, attempts int) {
	if pe, ok := service.AsPolicyError(err); ok {
		return pe.Code, pe.Attempts
	}
	switch {
	case errors.Is(err, service.ErrExamNotFound):
		return response.ErrExamNotFound, 0
	case errors.Is(err, service.ErrSessionNotFound):
		return response.ErrSessionNotFound, 0
	case errors.Is(err, service.ErrSubmissionNotFound):
		return response.ErrSubmissionNotFound, 0
	case errors.Is(err, service.ErrSessionTerminal):
		return response.ErrSessionTerminal, 0
	case errors.Is(err, service.ErrValidation):
		return response.ErrValidation, 0
	default:
		return response.ErrInternal, 0
	}
}

// failErr writes the envelope for err, logging anything that is not a domain error.
func failErr(c *gin.Context, log zerolog.Logger, err error) {
	code, attempts := errCode(err)
	if code == response.ErrInternal {
		log.Error().Err(err).
			Str("request_id", response.RequestID(c)).
			Str("route", c.FullPath()).
			Msg("Request failed")
	}
	response.FailWith(c, response.StatusOf(code), &response.ErrorBody{Code: code, Message: errMessage(err, code), Attempts: attempts})
}

// errMessage prefers a policy reason over the generic code message.
func errMessage(err error, code response.ErrCode) string {
	if pe, ok := service.AsPolicyError(err); ok && pe.Reason != "" {
		return pe.Reason
	}
	return response.GetMessage(code)
}

func parseID(c *gin.Context, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(param))
	if err != nil {
		response.Fail(c, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
