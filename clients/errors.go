package clients

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/jrsteele09/go-tenant-session/internal/errors"
	"github.com/jrsteele09/go-tenant-session/oauth2"
)

// StatusError is a non-2xx service response.
type StatusError struct {
	Service     string
	Method      string
	URL         string
	StatusCode  int
	Code        string // Machine readable error code when the body carried one
	Description string
	Body        []byte
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s %s: %d %s", e.Service, e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Code != "" {
		msg += ": " + e.Code
	}
	if e.Description != "" {
		msg += ": " + e.Description
	}
	return msg
}

// Unwrap maps 401 to errors.ErrAuthExpired so callers can test with errors.Is.
func (e *StatusError) Unwrap() error {
	if e.StatusCode == http.StatusUnauthorized {
		return errors.ErrAuthExpired
	}
	return nil
}

// IsStatus reports whether err is a *StatusError with the given status code.
func IsStatus(err error, statusCode int) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == statusCode
}

func newStatusError(service string, req *http.Request, resp *http.Response, body []byte) *StatusError {
	e := &StatusError{
		Service:    service,
		Method:     req.Method,
		URL:        req.URL.String(),
		StatusCode: resp.StatusCode,
		Body:       body,
	}

	// Services answer either OAuth2 style {error, error_description} or {message}.
	var errResp struct {
		oauth2.ErrorResponse
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &errResp); err == nil {
		e.Code = errResp.Error
		e.Description = errResp.ErrorDescription
		if e.Description == "" {
			e.Description = errResp.Message
		}
	}
	return e
}
