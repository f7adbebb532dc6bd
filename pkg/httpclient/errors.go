package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/authgate/pkg/errors"
)

// apiErrorBody covers the error shapes common mail APIs return.
type apiErrorBody struct {
	Message string `json:"message"`
	Error   any    `json:"error"`
}

func (b apiErrorBody) text() string {
	if b.Message != "" {
		return b.Message
	}
	switch e := b.Error.(type) {
	case string:
		return e
	case map[string]any:
		if msg, ok := e["message"].(string); ok {
			return msg
		}
	}
	return ""
}

// ParseResponseError consumes and closes the body of a non-2xx response and
// maps it to an AppError. Throttling and server-side failures become
// Unavailable so callers can retry later; other 4xx become InvalidInput.
func ParseResponseError(resp *http.Response, service string) error {
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", service, resp.StatusCode, err)
	}

	detail := string(raw)
	var body apiErrorBody
	if json.Unmarshal(raw, &body) == nil && body.text() != "" {
		detail = body.text()
	}
	cause := fmt.Errorf("%s returned status %d: %s", service, resp.StatusCode, detail)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		return apperrors.Unavailable(service+" is unavailable", cause)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return apperrors.Internal(fmt.Errorf("%s rejected credentials: %w", service, cause))
	case IsClientError(resp.StatusCode):
		return &apperrors.AppError{
			Code:    "INVALID_INPUT",
			Message: service + ": " + detail,
			Status:  http.StatusBadRequest,
			Err:     errors.Join(apperrors.ErrInvalidInput, cause),
		}
	default:
		return cause
	}
}

// IsClientError reports whether status is 4xx.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
