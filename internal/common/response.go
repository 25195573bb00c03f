package common

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIResponse is the standardized JSON response envelope.
type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

// APIError contains error details in the response.
type APIError struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Success sends a successful JSON response with data.
func Success(c *gin.Context, statusCode int, data any) {
	c.JSON(statusCode, APIResponse{Success: true, Data: data})
}

// Error sends an error JSON response tagged with the request id, if any.
func Error(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, APIResponse{
		Error: &APIError{
			Code:      statusCode,
			Message:   message,
			RequestID: c.GetString("requestID"),
		},
	})
}

// HandleError maps a typed error anywhere in the chain to an HTTP response.
func HandleError(c *gin.Context, err error) {
	var (
		notFound     *NotFoundError
		validation   *ValidationError
		unauthorized *UnauthorizedError
		provider     *ProviderError
		configErr    *ConfigurationError
		queueErr     *QueueError
	)

	switch {
	case errors.As(err, &notFound):
		Error(c, http.StatusNotFound, notFound.Error())
	case errors.As(err, &validation):
		Error(c, http.StatusBadRequest, validation.Error())
	case errors.As(err, &unauthorized):
		Error(c, http.StatusUnauthorized, unauthorized.Error())
	case errors.As(err, &configErr):
		Error(c, http.StatusUnprocessableEntity, configErr.Error())
	case errors.As(err, &provider):
		Error(c, http.StatusBadGateway, "upstream provider failed")
	case errors.As(err, &queueErr):
		Error(c, http.StatusServiceUnavailable, "dispatch queue unavailable")
	default:
		Error(c, http.StatusInternalServerError, "internal server error")
	}
}
