package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrUnauthorized matches any *Error carrying a 401 status.
var ErrUnauthorized = errors.New("unauthorized")

// fallbackMessage is shown when the server gave no usable reason.
const fallbackMessage = "An error occurred"

// Error is a non-2xx API response.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api status %d", e.Status)
	}
	return fmt.Sprintf("api status %d: %s", e.Status, e.Message)
}

func (e *Error) Is(target error) bool {
	return target == ErrUnauthorized && e.Status == http.StatusUnauthorized
}

func decodeError(resp *http.Response) error {
	apiErr := &Error{Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		apiErr.Message = body.Message
	}
	return apiErr
}

// Describe returns the user-facing reason of err: the server's message when
// there is one, a generic text otherwise.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if errors.Is(err, errMissingCredentials) || errors.Is(err, errMissingUsername) {
		return err.Error()
	}
	return fallbackMessage
}
