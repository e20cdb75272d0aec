// Package retry classifies broker API failures into a typed taxonomy and
// provides the backoff executor and session error tracker built on it.
package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrorType is the failure taxonomy of the broker API surface.
type ErrorType string

const (
	TypeTimeout           ErrorType = "TIMEOUT"
	TypeNetwork           ErrorType = "NETWORK_ERROR"
	TypeUnauthorized      ErrorType = "UNAUTHORIZED"
	TypeRateLimit         ErrorType = "RATE_LIMIT"
	TypeServerError       ErrorType = "SERVER_ERROR"
	TypeBadRequest        ErrorType = "BAD_REQUEST"
	TypeOrderRejected     ErrorType = "ORDER_REJECTED"
	TypeInvalidSymbol     ErrorType = "INVALID_SYMBOL"
	TypeInsufficientFunds ErrorType = "INSUFFICIENT_FUNDS"
	TypeUnknown           ErrorType = "UNKNOWN"
)

// Severity ranks how bad a classified error is for the session.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "LOW"
	case SeverityMedium:
		return "MEDIUM"
	case SeverityHigh:
		return "HIGH"
	case SeverityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// HTTPError carries a non-2xx broker response for classification.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	msg := e.Message()
	if msg == "" {
		return fmt.Sprintf("http status %d", e.StatusCode)
	}
	return fmt.Sprintf("http status %d: %s", e.StatusCode, msg)
}

// Message extracts the human-readable error text from the response body.
// Broker errors arrive either as {"message": ...} or {"errors": [...]};
// anything unparseable is returned verbatim.
func (e *HTTPError) Message() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return ""
	}
	if msg := gjson.Get(body, "message"); msg.Exists() {
		return msg.String()
	}
	if errs := gjson.Get(body, "errors"); errs.IsArray() {
		var parts []string
		errs.ForEach(func(_, v gjson.Result) bool {
			if s := v.Get("message").String(); s != "" {
				parts = append(parts, s)
			} else if s := v.String(); s != "" {
				parts = append(parts, s)
			}
			return true
		})
		if len(parts) > 0 {
			return strings.Join(parts, "; ")
		}
	}
	return body
}

// ClassifiedError is a failure annotated with type, severity and whether a
// retry can help.
type ClassifiedError struct {
	Type      ErrorType
	Severity  Severity
	Retryable bool
	Symbol    string
	Message   string
	Err       error
}

func (e *ClassifiedError) Error() string {
	if e.Symbol != "" {
		return fmt.Sprintf("[%s/%s] %s: %s", e.Type, e.Severity, e.Symbol, e.Message)
	}
	return fmt.Sprintf("[%s/%s] %s", e.Type, e.Severity, e.Message)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Classify maps an error onto the taxonomy. When the error carries an HTTP
// response the status code decides; otherwise the message text does.
func Classify(err error, symbol string) *ClassifiedError {
	if err == nil {
		return nil
	}
	var already *ClassifiedError
	if errors.As(err, &already) {
		return already
	}
	out := &ClassifiedError{
		Type:      TypeUnknown,
		Severity:  SeverityMedium,
		Retryable: false,
		Symbol:    symbol,
		Message:   err.Error(),
		Err:       err,
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		classifyStatus(out, httpErr)
		return out
	}
	if errors.Is(err, context.DeadlineExceeded) {
		out.Type = TypeTimeout
		out.Retryable = true
		return out
	}
	classifyMessage(out, strings.ToLower(err.Error()))
	return out
}

func classifyStatus(out *ClassifiedError, httpErr *HTTPError) {
	out.Message = httpErr.Error()
	switch {
	case httpErr.StatusCode == 401:
		out.Type = TypeUnauthorized
		out.Severity = SeverityCritical
	case httpErr.StatusCode == 400:
		msg := strings.ToLower(httpErr.Message())
		switch {
		case strings.Contains(msg, "insufficient") || strings.Contains(msg, "funds"):
			out.Type = TypeInsufficientFunds
			out.Severity = SeverityHigh
		case strings.Contains(msg, "symbol"):
			out.Type = TypeInvalidSymbol
			out.Severity = SeverityHigh
		case strings.Contains(msg, "reject"):
			out.Type = TypeOrderRejected
			out.Severity = SeverityHigh
		default:
			out.Type = TypeBadRequest
		}
	case httpErr.StatusCode == 429:
		out.Type = TypeRateLimit
		out.Retryable = true
	case httpErr.StatusCode >= 500:
		out.Type = TypeServerError
		out.Retryable = true
	}
}

func classifyMessage(out *ClassifiedError, msg string) {
	switch {
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out"):
		out.Type = TypeTimeout
		out.Retryable = true
	case strings.Contains(msg, "connection") || strings.Contains(msg, "network"):
		out.Type = TypeNetwork
		out.Retryable = true
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "auth"):
		out.Type = TypeUnauthorized
		out.Severity = SeverityCritical
	case strings.Contains(msg, "insufficient") || strings.Contains(msg, "funds"):
		out.Type = TypeInsufficientFunds
		out.Severity = SeverityHigh
	case strings.Contains(msg, "reject"):
		out.Type = TypeOrderRejected
		out.Severity = SeverityHigh
	}
}

var staleRefKeywords = []string{"invalid", "hash", "account", "not found"}

// IsStaleAccountRef reports whether the failure looks like a stale account
// routing token rather than a real request problem. The caller refreshes the
// token once and retries the whole pass.
func IsStaleAccountRef(err error) bool {
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) {
		return false
	}
	switch httpErr.StatusCode {
	case 400, 401, 403, 404:
	default:
		return false
	}
	msg := strings.ToLower(httpErr.Message())
	for _, kw := range staleRefKeywords {
		if strings.Contains(msg, kw) {
			return true
		}
	}
	return false
}
