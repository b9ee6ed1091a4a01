package retry

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// HTTPError is a transport failure carrying an HTTP-like status. Producers
// may fill either Status or StatusCode; Status wins when both are set.
type HTTPError struct {
	Message    string
	Status     int
	StatusCode int
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return "http error"
}

func (e *HTTPError) Unwrap() error { return e.Err }

// HTTPStatus implements StatusCarrier.
func (e *HTTPError) HTTPStatus() int {
	if e.Status != 0 {
		return e.Status
	}
	return e.StatusCode
}

// StatusCarrier is implemented by errors that expose an HTTP status.
type StatusCarrier interface {
	HTTPStatus() int
}

// ErrorShape is the normalized view of an error that the classifiers read.
type ErrorShape struct {
	Message    string
	Status     int
	StatusCode int
}

// EffectiveStatus returns Status, falling back to StatusCode.
func (s ErrorShape) EffectiveStatus() int {
	if s.Status != 0 {
		return s.Status
	}
	return s.StatusCode
}

// ShapeOf normalizes err for classification. It reports false for nil.
func ShapeOf(err error) (ErrorShape, bool) {
	if err == nil {
		return ErrorShape{}, false
	}
	shape := ErrorShape{Message: err.Error()}

	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		shape.Status = httpErr.Status
		shape.StatusCode = httpErr.StatusCode
	} else {
		var carrier StatusCarrier
		if errors.As(err, &carrier) {
			shape.Status = carrier.HTTPStatus()
		}
	}

	if code := networkCode(err); code != "" && !strings.Contains(shape.Message, code) {
		shape.Message += " (" + code + ")"
	}
	return shape, true
}

// networkCode maps Go network failures onto the errno names used in messages
// by other runtimes, so the substring rules cover both.
func networkCode(err error) string {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ""
	}
	switch {
	case errors.Is(err, syscall.ECONNRESET):
		return "ECONNRESET"
	case errors.Is(err, syscall.ECONNREFUSED):
		return "ECONNREFUSED"
	case errors.Is(err, syscall.ETIMEDOUT):
		return "ETIMEDOUT"
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return "ENOTFOUND"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "ETIMEDOUT"
	}
	return ""
}

var networkMarkers = []string{"ECONNRESET", "ENOTFOUND", "ETIMEDOUT", "ECONNREFUSED"}

const claudeRequestFailed = "Claude API request failed"

// IsRetryable reports whether err is a transient failure worth another attempt:
// a network failure, HTTP 429, or any 5xx.
func IsRetryable(err error) bool {
	shape, ok := ShapeOf(err)
	if !ok {
		return false
	}
	for _, marker := range networkMarkers {
		if strings.Contains(shape.Message, marker) {
			return true
		}
	}
	status := shape.EffectiveStatus()
	if status == 429 || (status >= 500 && status < 600) {
		return true
	}
	if strings.Contains(shape.Message, claudeRequestFailed) && status >= 500 {
		return true
	}
	return false
}

var logicalMarkers = []string{
	"Schema validation failed",
	"Invalid tool response",
	"Expected tool_use content",
	"Invalid item count",
	"Missing required fields",
	"Tool response validation failed",
}

// IsLogicalValidation reports whether err describes a response whose content
// did not match the expected shape.
func IsLogicalValidation(err error) bool {
	shape, ok := ShapeOf(err)
	if !ok {
		return false
	}
	for _, marker := range logicalMarkers {
		if strings.Contains(shape.Message, marker) {
			return true
		}
	}
	return false
}
