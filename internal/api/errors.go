package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrAuthentication is returned when the login exchange is rejected or
// cannot be completed. The session must be left anonymous.
var ErrAuthentication = errors.New("authentication failed")

const maxErrorBody = 4 << 10

// StatusError describes a non-2xx backend response.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.StatusCode)
	}
	return fmt.Sprintf("server returned %d: %s", e.StatusCode, e.Message)
}

// NewStatusError reads a bounded amount of resp.Body and extracts the
// backend's "detail" message when present. The caller closes the body.
func NewStatusError(resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var payload struct {
		Detail any `json:"detail"`
	}
	msg := strings.TrimSpace(string(body))
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != nil {
		if s, ok := payload.Detail.(string); ok {
			msg = s
		} else if b, err := json.Marshal(payload.Detail); err == nil {
			msg = string(b)
		}
	}
	return &StatusError{StatusCode: resp.StatusCode, Message: msg}
}

// IsStatus reports whether err carries a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}
