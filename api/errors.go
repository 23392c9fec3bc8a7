package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/thesisdesk/thesisdesk"
)

// Error codes returned in the response body.
const (
	CodeBadRequest    = "BAD_REQUEST"
	CodeUnauthorized  = "UNAUTHORIZED"
	CodeForbidden     = "FORBIDDEN"
	CodeNotFound      = "NOT_FOUND"
	CodeConflict      = "CONFLICT"
	CodeRejected      = "REJECTED"
	CodeTooLarge      = "PAYLOAD_TOO_LARGE"
	CodeRateLimited   = "RATE_LIMITED"
	CodeInternalError = "INTERNAL_ERROR"
)

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// statusFor maps the desk error taxonomy onto HTTP.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, CodeUnauthorized
	case thesisdesk.IsValidation(err):
		return http.StatusBadRequest, CodeBadRequest
	case thesisdesk.IsNotFound(err):
		return http.StatusNotFound, CodeNotFound
	case errors.Is(err, thesisdesk.ErrAttachmentTooLarge):
		return http.StatusRequestEntityTooLarge, CodeTooLarge
	case errors.Is(err, thesisdesk.ErrConflict),
		errors.Is(err, thesisdesk.ErrDuplicateChapterNumber),
		errors.Is(err, thesisdesk.ErrAlreadyExists),
		errors.Is(err, thesisdesk.ErrChapterAlreadyPaid):
		return http.StatusConflict, CodeConflict
	case thesisdesk.IsRejected(err):
		return http.StatusUnprocessableEntity, CodeRejected
	default:
		return http.StatusInternalServerError, CodeInternalError
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status, code := statusFor(err)
	detail := ErrorDetail{Code: code, Message: err.Error()}

	var ve thesisdesk.ValidationError
	if errors.As(err, &ve) {
		detail.Field = ve.Field
	}
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
		detail.Message = "internal error"
	}

	c.AbortWithStatusJSON(status, ErrorBody{Error: detail})
}

func badRequest(c *gin.Context, field, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorBody{Error: ErrorDetail{
		Code:    CodeBadRequest,
		Message: message,
		Field:   field,
	}})
}
