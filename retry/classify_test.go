package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

type carrierErr struct{ status int }

func (e carrierErr) Error() string   { return fmt.Sprintf("status %d", e.status) }
func (e carrierErr) HTTPStatus() int { return e.status }

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"econnreset", errors.New("ECONNRESET"), true},
		{"enotfound", errors.New("ENOTFOUND"), true},
		{"etimedout", errors.New("ETIMEDOUT"), true},
		{"econnrefused", errors.New("ECONNREFUSED"), true},
		{"status 500", &HTTPError{Message: "boom", Status: 500}, true},
		{"statusCode 502", &HTTPError{Message: "bad gateway", StatusCode: 502}, true},
		{"status 429", &HTTPError{Message: "slow down", Status: 429}, true},
		{"status 599", &HTTPError{Message: "edge", Status: 599}, true},
		{"status 600", &HTTPError{Message: "edge", Status: 600}, false},
		{"status 401", &HTTPError{Message: "unauthorized", Status: 401}, false},
		{"status 404", &HTTPError{Message: "not found", Status: 404}, false},
		{"status wins over statusCode", &HTTPError{Message: "x", Status: 400, StatusCode: 503}, false},
		{"claude 5xx", &HTTPError{Message: "Claude API request failed: 503 overloaded", Status: 503}, true},
		{"claude 4xx", &HTTPError{Message: "Claude API request failed: 400 invalid", Status: 400}, false},
		{"plain error", errors.New("Authentication failed"), false},
		{"carrier 503", carrierErr{503}, true},
		{"wrapped carrier", fmt.Errorf("call: %w", carrierErr{429}), true},
		{"wrapped http error", fmt.Errorf("call: %w", &HTTPError{Status: 500}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestIsRetryable_GoNetworkErrors(t *testing.T) {
	reset := &net.OpError{Op: "read", Net: "tcp", Err: os.NewSyscallError("read", syscall.ECONNRESET)}
	refused := &net.OpError{Op: "dial", Net: "tcp", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
	dns := &net.DNSError{Err: "no such host", Name: "api.example.invalid", IsNotFound: true}

	assert.True(t, IsRetryable(reset))
	assert.True(t, IsRetryable(refused))
	assert.True(t, IsRetryable(dns))
	assert.True(t, IsRetryable(fmt.Errorf("post: %w", refused)))

	assert.False(t, IsRetryable(context.Canceled))
	assert.False(t, IsRetryable(context.DeadlineExceeded))
}

func TestShapeOf(t *testing.T) {
	_, ok := ShapeOf(nil)
	assert.False(t, ok)

	shape, ok := ShapeOf(&HTTPError{Message: "m", StatusCode: 502})
	assert.True(t, ok)
	assert.Equal(t, "m", shape.Message)
	assert.Equal(t, 502, shape.EffectiveStatus())

	shape, _ = ShapeOf(&net.DNSError{Err: "no such host", Name: "x", IsNotFound: true})
	assert.Contains(t, shape.Message, "ENOTFOUND")
}

func TestIsLogicalValidation(t *testing.T) {
	for _, msg := range []string{
		"Schema validation failed",
		"Invalid tool response",
		"Expected tool_use content",
		"Invalid item count",
		"Missing required fields",
		"Tool response validation failed",
		"recommend: Invalid item count: expected 10, got 7",
	} {
		assert.True(t, IsLogicalValidation(errors.New(msg)), msg)
	}

	assert.False(t, IsLogicalValidation(errors.New("ECONNRESET")))
	assert.False(t, IsLogicalValidation(errors.New("Authentication failed")))
	assert.False(t, IsLogicalValidation(nil))
}
