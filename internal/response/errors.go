package response

import "net/http"

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"
	ErrForbidden     ErrCode = "FORBIDDEN"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound           ErrCode = "NOT_FOUND"
	ErrExamNotFound       ErrCode = "EXAM_NOT_FOUND"
	ErrSessionNotFound    ErrCode = "SESSION_NOT_FOUND"
	ErrSubmissionNotFound ErrCode = "SUBMISSION_NOT_FOUND"

	// ─── Attempt policy ────────────────────────────────────────────────
	ErrExamNotStarted  ErrCode = "EXAM_NOT_STARTED"
	ErrExamEnded       ErrCode = "EXAM_ENDED"
	ErrAttemptLimit    ErrCode = "ATTEMPT_LIMIT"
	ErrInvalidQuizCode ErrCode = "INVALID_QUIZ_CODE"

	// ─── Session ───────────────────────────────────────────────────────
	ErrSessionTerminal ErrCode = "SESSION_TERMINAL"

	// ─── Server ────────────────────────────────────────────────────────
	ErrRateLimited ErrCode = "RATE_LIMITED"
	ErrInternal    ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Session token is required."
	case ErrTokenInvalid:
		return "Session token is invalid."
	case ErrTokenExpired:
		return "Session token has expired."
	case ErrForbidden:
		return "You do not have access to this session."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrExamNotFound:
		return "Exam not found."
	case ErrSessionNotFound:
		return "Exam session not found."
	case ErrSubmissionNotFound:
		return "This session has not been graded yet."

	// ─── Attempt policy ────────────────────────────────────────────────
	case ErrExamNotStarted:
		return "This exam has not started yet."
	case ErrExamEnded:
		return "This exam has ended."
	case ErrAttemptLimit:
		return "Maximum number of attempts reached."
	case ErrInvalidQuizCode:
		return "Invalid quiz code."

	// ─── Session ───────────────────────────────────────────────────────
	case ErrSessionTerminal:
		return "This exam session has already finished."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrRateLimited:
		return "Too many requests. Please slow down."
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}

// StatusOf maps an error code to its HTTP status.
func StatusOf(code ErrCode) int {
	switch code {
	case ErrTokenRequired, ErrTokenInvalid, ErrTokenExpired:
		return http.StatusUnauthorized
	case ErrForbidden, ErrExamNotStarted, ErrExamEnded, ErrAttemptLimit, ErrInvalidQuizCode:
		return http.StatusForbidden
	case ErrValidation, ErrInvalidID, ErrInvalidPayload:
		return http.StatusBadRequest
	case ErrNotFound, ErrExamNotFound, ErrSessionNotFound, ErrSubmissionNotFound:
		return http.StatusNotFound
	case ErrSessionTerminal:
		return http.StatusConflict
	case ErrRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
