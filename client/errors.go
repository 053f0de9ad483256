package client

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-rail-auth/internal/utils"
)

// Kind categorises a failed request.
type Kind int

const (
	KindBadRequest Kind = iota + 1
	KindAuthentication
	KindAuthorization
	KindNotFound
	KindRateLimited
	KindServer
	KindNetwork
	KindUnexpected
)

func (k Kind) String() string {
	switch k {
	case KindBadRequest:
		return "bad_request"
	case KindAuthentication:
		return "authentication"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindRateLimited:
		return "rate_limited"
	case KindServer:
		return "server"
	case KindNetwork:
		return "network"
	default:
		return "unexpected"
	}
}

// Sentinels matched with errors.Is against any *Error.
var (
	ErrBadRequest     = errors.New("bad request")
	ErrAuthentication = errors.New("authentication failed")
	ErrAuthorization  = errors.New("access forbidden")
	ErrNotFound       = errors.New("resource not found")
	ErrRateLimited    = errors.New("rate limited")
	ErrServer         = errors.New("server error")
	ErrNetwork        = errors.New("network unreachable")
	ErrUnexpected     = errors.New("unexpected response")

	// ErrNoSessionHandler is the cause of an authentication failure when a
	// 401 arrives and nothing is attached to refresh the session.
	ErrNoSessionHandler = errors.New("no session handler attached")
)

func (k Kind) sentinel() error {
	switch k {
	case KindBadRequest:
		return ErrBadRequest
	case KindAuthentication:
		return ErrAuthentication
	case KindAuthorization:
		return ErrAuthorization
	case KindNotFound:
		return ErrNotFound
	case KindRateLimited:
		return ErrRateLimited
	case KindServer:
		return ErrServer
	case KindNetwork:
		return ErrNetwork
	default:
		return ErrUnexpected
	}
}

// Error is returned for every failed call made through the Client.
type Error struct {
	Kind       Kind
	StatusCode int // zero when no response was received
	Method     string
	Path       string
	Message    string // user facing, already shown as a notification
	Err        error  // underlying cause, if any

	toast string
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

// KindOf returns the Kind of a client error, or zero for anything else.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

const (
	msgBadRequest     = "Bad request"
	msgSessionExpired = "Session expired. Please log in again."
	msgForbidden      = "Access forbidden"
	msgNotFound       = "Resource not found"
	msgRateLimited    = "Too many requests. Please try again later."
	msgServer         = "Internal server error. Please try again."
	msgDefault        = "An error occurred"
	msgNetwork        = "Network error. Please check your connection."
)

// kindForStatus maps an HTTP status onto the error taxonomy.
func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusBadRequest:
		return KindBadRequest
	case status == http.StatusUnauthorized:
		return KindAuthentication
	case status == http.StatusForbidden:
		return KindAuthorization
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServer
	default:
		return KindUnexpected
	}
}

// notificationText picks the toast for a failed response. Only 400 and
// unmapped statuses prefer the server's own message.
func notificationText(status int, serverMsg string) string {
	switch status {
	case http.StatusBadRequest:
		return firstNonEmpty(serverMsg, msgBadRequest)
	case http.StatusUnauthorized:
		return msgSessionExpired
	case http.StatusForbidden:
		return msgForbidden
	case http.StatusNotFound:
		return msgNotFound
	case http.StatusTooManyRequests:
		return msgRateLimited
	case http.StatusInternalServerError:
		return msgServer
	default:
		return firstNonEmpty(serverMsg, msgDefault)
	}
}

func responseError(c *call, resp *Response) *Error {
	serverMsg := serverMessage(resp.Body)
	return &Error{
		Kind:       kindForStatus(resp.StatusCode),
		StatusCode: resp.StatusCode,
		Method:     c.req.Method,
		Path:       c.req.Path,
		Message:    firstNonEmpty(serverMsg, notificationText(resp.StatusCode, "")),
		toast:      notificationText(resp.StatusCode, serverMsg),
	}
}

func networkError(c *call, err error) *Error {
	return &Error{
		Kind:    KindNetwork,
		Method:  c.req.Method,
		Path:    c.req.Path,
		Message: msgNetwork,
		Err:     err,
		toast:   msgNetwork,
	}
}

func authenticationError(c *call, status int, cause error) *Error {
	return &Error{
		Kind:       KindAuthentication,
		StatusCode: status,
		Method:     c.req.Method,
		Path:       c.req.Path,
		Message:    msgSessionExpired,
		Err:        cause,
		toast:      msgSessionExpired,
	}
}

// serverMessage extracts a human readable message from an error body: the
// message/error field of a JSON object, or the body itself when it is plain
// text.
func serverMessage(body []byte) string {
	text := strings.TrimSpace(string(body))
	if text == "" {
		return ""
	}

	if strings.HasPrefix(text, "{") {
		var payload struct {
			Message          string `json:"message"`
			Error            any    `json:"error"`
			ErrorDescription string `json:"error_description"`
		}
		if json.Unmarshal(body, &payload) != nil {
			return ""
		}
		if payload.Message != "" {
			return payload.Message
		}
		if payload.ErrorDescription != "" {
			return payload.ErrorDescription
		}
		if s, ok := payload.Error.(string); ok {
			return s
		}
		return ""
	}

	if strings.HasPrefix(text, "<") {
		return ""
	}
	return utils.Truncate(text, 200)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
