// Package transport wraps the upstream scheduling API. Every call returns the
// API's uniform success envelope or a structured *Error; callers never see raw
// net/http failures.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	json "github.com/goccy/go-json"
)

// Envelope is the uniform response shape of the upstream API.
type Envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// DecodeData unmarshals the envelope payload into dst.
func (e *Envelope) DecodeData(dst any) error {
	if e == nil || len(e.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(e.Data, dst); err != nil {
		return fmt.Errorf("decode envelope data: %w", err)
	}
	return nil
}

// Client issues authenticated calls against the scheduling API.
type Client interface {
	Get(ctx context.Context, path string, query url.Values) (*Envelope, error)
	Post(ctx context.Context, path string, body any) (*Envelope, error)
	Put(ctx context.Context, path string, body any) (*Envelope, error)
	Delete(ctx context.Context, path string, query url.Values) (*Envelope, error)
}

// ErrCircuitOpen reports that the circuit breaker is rejecting calls.
var ErrCircuitOpen = errors.New("transport: circuit open")

// Error is the structured failure raised on non-2xx responses, malformed
// bodies, or network problems. It is safe to retry and is never cached.
type Error struct {
	StatusCode int
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		if e.StatusCode > 0 {
			return fmt.Sprintf("transport: %s (status %d)", e.Message, e.StatusCode)
		}
		return "transport: " + e.Message
	}
	if e.Err != nil {
		return "transport: " + e.Err.Error()
	}
	return "transport: request failed"
}

// Unwrap exposes the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsTransportError reports whether err originated at the transport boundary.
func IsTransportError(err error) bool {
	var tErr *Error
	return errors.As(err, &tErr) || errors.Is(err, ErrCircuitOpen)
}
