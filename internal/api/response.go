package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jason-c-dev/harmonia-memory/internal/apperr"
)

// Response is the envelope every endpoint returns: a success flag, a
// wall-clock timestamp, and either the payload or a short error code
// plus a human message.
type Response struct {
	Success   bool        `json:"success"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Error     *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody is the error half of a Response.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func respond(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Timestamp: time.Now(), Data: data})
}

// OK sends a 200 response with data.
func OK(c *gin.Context, data interface{}) { respond(c, http.StatusOK, data) }

// Created sends a 201 response with data.
func Created(c *gin.Context, data interface{}) { respond(c, http.StatusCreated, data) }

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, Response{Success: false, Timestamp: time.Now(), Error: &ErrorBody{Code: code, Message: message}})
}

// BadRequest sends a 400 validation error.
func BadRequest(c *gin.Context, message string) { respondError(c, http.StatusBadRequest, "HTTP400", message) }

// Unauthorized sends a 401 auth error.
func Unauthorized(c *gin.Context, message string) {
	respondError(c, http.StatusUnauthorized, "AUTH001", message)
}

// NotFound sends a 404 not-found error.
func NotFound(c *gin.Context, message string) { respondError(c, http.StatusNotFound, "HTTP404", message) }

// TooManyRequests sends a 429 rate-limit error.
func TooManyRequests(c *gin.Context, message string) {
	respondError(c, http.StatusTooManyRequests, "SYS004", message)
}

// PayloadTooLarge sends a 413 body-size error.
func PayloadTooLarge(c *gin.Context, message string) {
	respondError(c, http.StatusRequestEntityTooLarge, "HTTP413", message)
}

// kindStatus maps the closed apperr.Kind taxonomy to an HTTP status
// and a short error code.
func kindStatus(kind apperr.Kind) (int, string) {
	switch kind {
	case apperr.Validation, apperr.InvalidUser:
		return http.StatusBadRequest, "HTTP400"
	case apperr.NotFound:
		return http.StatusNotFound, "HTTP404"
	case apperr.Duplicate:
		return http.StatusConflict, "HTTP409"
	case apperr.ConflictUserRequired:
		return http.StatusConflict, "CONFLICT001"
	case apperr.LLMUnavailable, apperr.LLMModelMissing:
		return http.StatusServiceUnavailable, "SYS001"
	case apperr.ExtractionParseError:
		return http.StatusUnprocessableEntity, "SYS002"
	case apperr.DBBusy:
		return http.StatusServiceUnavailable, "SYS003"
	case apperr.RateLimited:
		return http.StatusTooManyRequests, "SYS004"
	case apperr.Auth:
		return http.StatusUnauthorized, "AUTH001"
	case apperr.DBError:
		return http.StatusInternalServerError, "SYS000"
	default:
		return http.StatusInternalServerError, "SYS000"
	}
}

// RespondError inspects err for a carried apperr.Kind and writes the
// matching status and code. Errors with no recognized kind fall back to
// a generic 500.
func RespondError(c *gin.Context, err error) {
	status, code := kindStatus(apperr.KindOf(err))
	respondError(c, status, code, err.Error())
}
