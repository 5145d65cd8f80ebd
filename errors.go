// Copyright (c) 2024 RoseLoverX

package hybridgram

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
)

var (
	// ErrRouteNotFound is returned by route resolution when no route matched
	// and no fallback (bot specific, wildcard or default) is available.
	ErrRouteNotFound = errors.New("telegram route not found")

	// ErrCallbackDataSize is returned when encoded callback data is outside 1..64 bytes.
	ErrCallbackDataSize = errors.New("callback data must be between 1 and 64 bytes")

	// ErrLockTimeout is returned by lockers when the wait budget ran out.
	ErrLockTimeout = errors.New("lock acquisition timed out")
)

// RemoteAPIError is a structured failure returned by the Bot API.
type RemoteAPIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  int // seconds, 0 when not present
	StatusCode  int // HTTP status
	Body        string
}

func (e *RemoteAPIError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Telegram API request failed for method '%s' with error code %d: %s", e.Method, e.Code, e.Description)
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (HTTP %d)", e.StatusCode)
	}
	if e.RetryAfter > 0 {
		fmt.Fprintf(&b, " [Parameters: retry_after: %d]", e.RetryAfter)
	}
	return b.String()
}

// Terminal reports whether retrying the same request cannot succeed.
// Every 4xx except 429 is terminal.
func (e *RemoteAPIError) Terminal() bool {
	return e.Code >= 400 && e.Code < 500 && e.Code != 429
}

// NewRemoteAPIError builds a RemoteAPIError, expanding the retry hint from
// the description when the response carried no parameters.
func NewRemoteAPIError(method string, code int, description string, retryAfter, status int, body string) *RemoteAPIError {
	if retryAfter == 0 {
		if name, data := TryExpandError(description); name != description {
			if v, ok := data.(int); ok {
				retryAfter = v
			}
		}
	}
	if friendly, ok := errorMessages[code]; ok && description == "" {
		description = friendly
	}
	return &RemoteAPIError{
		Method:      method,
		Code:        code,
		Description: description,
		RetryAfter:  retryAfter,
		StatusCode:  status,
		Body:        body,
	}
}

type prefixSuffix struct {
	prefix string
	suffix string
}

var specificErrors = []prefixSuffix{
	{"Too Many Requests: retry after ", ""},
	{"Flood control exceeded. Retry in ", " seconds"},
}

// TryExpandError extracts the numeric hint carried inside well known
// descriptions, e.g. "Too Many Requests: retry after 35".
func TryExpandError(errStr string) (nativeErrorName string, additionalData any) {
	var chosen *prefixSuffix

	for _, errCase := range specificErrors {
		if strings.HasPrefix(errStr, errCase.prefix) && strings.HasSuffix(errStr, errCase.suffix) {
			errCase := errCase
			chosen = &errCase
			break
		}
	}

	if chosen == nil {
		return errStr, nil
	}

	trimmed := strings.TrimSuffix(strings.TrimPrefix(errStr, chosen.prefix), chosen.suffix)
	n, err := strconv.Atoi(strings.TrimSpace(trimmed))
	if err != nil {
		return errStr, nil
	}

	return chosen.prefix + "X" + chosen.suffix, n
}

var errorMessages = map[int]string{
	400: "Bad Request",
	401: "Unauthorized: the bot token is invalid",
	403: "Forbidden: the bot cannot act in this chat",
	404: "Not Found: the method does not exist",
	409: "Conflict: another getUpdates or webhook is active",
	413: "Request Entity Too Large",
	429: "Too Many Requests",
	500: "Internal Server Error",
	502: "Bad Gateway",
}

// RateLimitedError is returned by the synchronous dispatcher when the
// outgoing budget stayed exhausted for longer than the allowed wait.
type RateLimitedError struct {
	BotID string
	Delay time.Duration
}

func (e *RateLimitedError) Error() string {
	ms := e.Delay.Milliseconds()
	return fmt.Sprintf("Outgoing Telegram rate limit exceeded for bot '%s'. Wait ~%ds (%dms)",
		e.BotID, int64(math.Ceil(float64(ms)/1000)), ms)
}

// InvalidRouteActionError is raised when a route action cannot be turned
// into a callable handler.
type InvalidRouteActionError struct {
	Action any
}

func (e *InvalidRouteActionError) Error() string {
	switch a := e.Action.(type) {
	case string:
		return fmt.Sprintf("invalid route action: %q is not a registered action", a)
	case nil:
		return "invalid route action: action is nil"
	default:
		return fmt.Sprintf("invalid route action of type %T", a)
	}
}

// IsTerminal reports whether err is a remote rejection that must not be retried.
func IsTerminal(err error) bool {
	var apiErr *RemoteAPIError
	if errors.As(err, &apiErr) {
		return apiErr.Terminal()
	}
	return false
}

// RetryAfter returns the retry hint carried by err, if any.
func RetryAfter(err error) time.Duration {
	var apiErr *RemoteAPIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return time.Duration(apiErr.RetryAfter) * time.Second
	}
	return 0
}

// IsRateLimited reports whether err is a *RateLimitedError.
func IsRateLimited(err error) bool {
	var rl *RateLimitedError
	return errors.As(err, &rl)
}
