package status

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// ErrorInfo contains error information to be returned to the user. The
// contents of the error MUST only contain user visible state, never internal
// details.
type ErrorInfo struct {
	// StatusCode contains the HTTP status code.
	StatusCode int `json:"-"`

	// Message contains the error message to return to the user.
	Message string `json:"error"`
}

func NewErrorInfo(statusCode int, message string) *ErrorInfo {
	return &ErrorInfo{
		StatusCode: statusCode,
		Message:    message,
	}
}

func (e *ErrorInfo) Error() string {
	return fmt.Sprintf(
		"%s (%d): %s",
		strings.ToLower(http.StatusText(e.StatusCode)),
		e.StatusCode,
		e.Message,
	)
}

// WriteError writes the error as a JSON response. If the error isn't an
// ErrorInfo it is treated as an internal error and its message is not
// returned.
func WriteError(c *gin.Context, err error) {
	var errorInfo *ErrorInfo
	if errors.As(err, &errorInfo) {
		c.JSON(errorInfo.StatusCode, errorInfo)
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
}
