package service

import (
	"errors"
	"fmt"

	"github.com/stemsi/exam-proctor/internal/response"
)

// Domain Errors
var (
	ErrExamNotFound       = errors.New("exam not found")
	ErrSessionNotFound    = errors.New("exam session not found")
	ErrSessionTerminal    = errors.New("exam session already finished")
	ErrSubmissionNotFound = errors.New("submission not found")
	ErrValidation         = errors.New("validation failed")
	ErrPersistence        = errors.New("failed to persist submission")
)

// PolicyError is a request rejected by the gatekeeper or by answer
// validation. It always carries a machine-readable code.
type PolicyError struct {
	Code     response.ErrCode
	Attempts int
	Reason   string
}

func (e *PolicyError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Reason)
	}
	return string(e.Code)
}

// Is lets errors.Is(err, ErrValidation) match identity failures.
func (e *PolicyError) Is(target error) bool {
	return target == ErrValidation && e.Code == response.ErrValidation
}

// AsPolicyError unwraps err into a *PolicyError if it is one.
func AsPolicyError(err error) (*PolicyError, bool) {
	var pe *PolicyError
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
