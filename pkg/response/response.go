package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// MessageResponse is the success body for write endpoints.
type MessageResponse struct {
	Message string `json:"message"`
}

// ErrorResponse is the body for every error status.
type ErrorResponse struct {
	Error string `json:"error"`
}

// OK sends a 200 with the given payload
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, data)
}

// Created sends a 201 with a message body
func Created(c *gin.Context, message string) {
	c.JSON(http.StatusCreated, MessageResponse{Message: message})
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message})
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: message})
}

// TooManyRequests sends a 429 response
func TooManyRequests(c *gin.Context, message string) {
	c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: message})
}
