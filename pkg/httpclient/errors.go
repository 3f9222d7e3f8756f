package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/itsobito471-bot/thebottlestories/pkg/errors"
)

// upstreamErrorBody covers the error shapes the storefront API emits:
// {"message": "..."}, {"msg": "..."}, {"error": "..."} and
// {"error": {"code": "...", "message": "..."}}.
type upstreamErrorBody struct {
	Message string          `json:"message"`
	Msg     string          `json:"msg"`
	Error   json.RawMessage `json:"error"`
}

type nestedError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ParseResponseError reads the body of a non-2xx HTTP response and translates
// it into an AppError whose Message is the upstream message verbatim. When no
// message can be extracted, a generic message naming the service and status
// is used. The response body is fully consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20)) // 1 MB limit
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	code, message := extractMessage(bodyBytes)
	if message == "" {
		message = fmt.Sprintf("%s returned status %d", serviceName, resp.StatusCode)
	}
	return mapUpstreamError(resp.StatusCode, code, message)
}

func extractMessage(body []byte) (code, message string) {
	var parsed upstreamErrorBody
	if json.Unmarshal(body, &parsed) != nil {
		return "", ""
	}

	if len(parsed.Error) > 0 {
		var nested nestedError
		if json.Unmarshal(parsed.Error, &nested) == nil && nested.Message != "" {
			return nested.Code, nested.Message
		}
		var plain string
		if json.Unmarshal(parsed.Error, &plain) == nil && strings.TrimSpace(plain) != "" {
			return "", plain
		}
	}
	if parsed.Message != "" {
		return "", parsed.Message
	}
	return "", parsed.Msg
}

// mapUpstreamError keeps the upstream message and attaches the sentinel that
// matches the status, so callers can branch with errors.Is.
func mapUpstreamError(status int, code, message string) error {
	appErr := apperrors.Upstream(status, code, message)

	switch {
	case status == http.StatusNotFound:
		appErr.Err = apperrors.ErrNotFound
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		appErr.Err = apperrors.ErrInvalidInput
	case status == http.StatusUnauthorized:
		appErr.Err = apperrors.ErrUnauthorized
	case status == http.StatusForbidden:
		appErr.Err = apperrors.ErrForbidden
	case status == http.StatusConflict:
		appErr.Err = apperrors.ErrConflict
	case status == http.StatusGone:
		appErr.Err = apperrors.ErrGone
	case status == http.StatusServiceUnavailable:
		appErr.Err = apperrors.ErrServiceUnavail
	case status >= 500:
		appErr.Status = http.StatusBadGateway
	}
	return appErr
}

// IsClientError returns true if the HTTP status code is a 4xx client error.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
