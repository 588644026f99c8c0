package platform

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrNoWorkflows is returned when a site has no workflows at all.
var ErrNoWorkflows = errors.New("site has no workflows")

// ErrEnvironmentNotFound is returned when a site exists but has no
// environment with the requested id.
var ErrEnvironmentNotFound = errors.New("environment not found")

// APIError represents a non-2xx response from the platform API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("platform: HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("platform: HTTP %d: %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is a platform 404 response.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// WorkflowError reports a workflow that reached the failed state.
type WorkflowError struct {
	Description string
	Message     string
}

func (e *WorkflowError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("workflow %q failed", e.Description)
	}
	return fmt.Sprintf("workflow %q failed: %s", e.Description, e.Message)
}

// extractError pulls a message out of an error payload. The API uses a
// JSON object with "message" or "error", or a bare JSON string.
func extractError(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64*1024))
	if err != nil || len(data) == 0 {
		return ""
	}

	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(data, &payload); err == nil {
		if payload.Message != "" {
			return payload.Message
		}
		if payload.Error != "" {
			return payload.Error
		}
	}

	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		return text
	}

	return strings.TrimSpace(string(data))
}
