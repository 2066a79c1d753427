package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/adamwilson22/Velaa-Backend/internal/billing"
	"github.com/adamwilson22/Velaa-Backend/internal/logger"
)

// FieldError describes one rejected request field.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type envelope struct {
	Success   bool         `json:"success"`
	Message   string       `json:"message"`
	Data      any          `json:"data,omitempty"`
	Errors    []FieldError `json:"errors,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

func respond(c *gin.Context, status int, message string, data any) {
	c.JSON(status, envelope{Success: true, Message: message, Data: data, Timestamp: time.Now().UTC()})
}

func fail(c *gin.Context, status int, message string, fields ...FieldError) {
	c.AbortWithStatusJSON(status, envelope{Success: false, Message: message, Errors: fields, Timestamp: time.Now().UTC()})
}

// statusFor maps a service error to an HTTP status code.
func statusFor(err error) int {
	switch {
	case billing.IsNotFound(err):
		return http.StatusNotFound
	case billing.IsConflict(err):
		return http.StatusConflict
	case billing.IsInvalidState(err), billing.IsClientError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// failWith writes the error envelope for a service error.
func failWith(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		_ = c.Error(err)
		logger.WithContext(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		fail(c, status, "Internal server error")
		return
	}
	var ve *billing.ValidationError
	if errors.As(err, &ve) {
		fail(c, status, err.Error(), FieldError{Field: ve.Field, Reason: ve.Reason})
		return
	}
	fail(c, status, err.Error())
}

// failBinding writes a 400 for a request that did not bind or validate.
func failBinding(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, FieldError{Field: fe.Field(), Reason: fe.Tag()})
		}
		fail(c, http.StatusBadRequest, "Validation failed", fields...)
		return
	}
	fail(c, http.StatusBadRequest, "Invalid request: "+err.Error())
}
