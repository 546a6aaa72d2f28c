package response

import (
	"time"

	"github.com/gin-gonic/gin"
)

// Response is the envelope used by the session API.
type Response struct {
	Data     any        `json:"data"`
	Error    *ErrorBody `json:"error,omitempty"`
	Metadata Metadata   `json:"metadata"`
}

// ErrorBody represents a structured error response.
type ErrorBody struct {
	Code     ErrCode           `json:"code"`
	Message  string            `json:"message"`
	Fields   map[string]string `json:"fields,omitempty"`
	Attempts int               `json:"attempts,omitempty"`
}

// Metadata includes request tracing and timing.
type Metadata struct {
	RequestID string `json:"request_id"`
	Timestamp string `json:"timestamp"`
}

// Success sends a successful JSON response with the given status code and data.
func Success(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, Response{
		Data:     data,
		Metadata: buildMetadata(c),
	})
}

// Fail sends an error response with the status derived from code.
func Fail(c *gin.Context, code ErrCode) {
	FailWith(c, StatusOf(code), &ErrorBody{Code: code})
}

// FailWithFields sends a validation error with field-level details.
func FailWithFields(c *gin.Context, code ErrCode, fields map[string]string) {
	FailWith(c, StatusOf(code), &ErrorBody{Code: code, Fields: fields})
}

// FailWith sends body as-is; an empty message is filled from the code.
func FailWith(c *gin.Context, statusCode int, body *ErrorBody) {
	if body.Message == "" {
		body.Message = GetMessage(body.Code)
	}
	c.JSON(statusCode, Response{Error: body, Metadata: buildMetadata(c)})
}

// FailWithData sends an error alongside the current state of the resource,
// e.g. the finished session on SESSION_TERMINAL.
func FailWithData(c *gin.Context, code ErrCode, data any) {
	c.JSON(StatusOf(code), Response{
		Data:     data,
		Error:    &ErrorBody{Code: code, Message: GetMessage(code)},
		Metadata: buildMetadata(c),
	})
}

// AbortFail aborts the middleware chain and sends an error response.
func AbortFail(c *gin.Context, code ErrCode) {
	c.AbortWithStatusJSON(StatusOf(code), Response{
		Error:    &ErrorBody{Code: code, Message: GetMessage(code)},
		Metadata: buildMetadata(c),
	})
}

func buildMetadata(c *gin.Context) Metadata {
	return Metadata{
		RequestID: RequestID(c),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
