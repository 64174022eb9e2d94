// Package errors provides the error taxonomy for the relay pipeline.
// Every error class has a defined local recovery: upstream connectivity
// errors are retried, transform rejections are skipped, and delivery
// failures isolate a single consumer. Nothing here is ever process-fatal.
package errors

import (
	"errors"
	"fmt"
)

// New returns an error that formats as the given text.
// It's an alias for the standard library errors.New for convenience.
var New = errors.New

// Is reports whether any error in err's tree matches target.
// It's an alias for the standard library errors.Is.
var Is = errors.Is

// As finds the first error in err's tree that matches target.
// It's an alias for the standard library errors.As.
var As = errors.As

// Sentinel errors for the relay error classes.
var (
	// ErrUpstreamConnect indicates the transport-level connection to the
	// upstream feed could not be established.
	ErrUpstreamConnect = errors.New("upstream connect failed")

	// ErrUpstreamSubscribe indicates the upstream accepted the connection
	// but rejected the subscription request.
	ErrUpstreamSubscribe = errors.New("upstream subscription rejected")

	// ErrRejected indicates a notification could not be transformed into a
	// canonical event. Rejections are skipped, never escalated.
	ErrRejected = errors.New("notification rejected")

	// ErrDelivery indicates a specific downstream consumer could not be
	// reached. Only that consumer is affected.
	ErrDelivery = errors.New("delivery failed")
)

// ConnectError represents a failure to open the upstream connection.
type ConnectError struct {
	Endpoint string
	Err      error
}

// Error implements the error interface.
func (e *ConnectError) Error() string {
	return fmt.Sprintf("connecting to %s: %v", e.Endpoint, e.Err)
}

// Unwrap implements errors.Unwrap.
func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support.
func (e *ConnectError) Is(target error) bool {
	return target == ErrUpstreamConnect
}

// NewConnectError creates a new ConnectError.
func NewConnectError(endpoint string, err error) *ConnectError {
	return &ConnectError{Endpoint: endpoint, Err: err}
}

// SubscriptionError represents an upstream rejection of the subscription
// request (malformed filter, rate limit, etc.).
type SubscriptionError struct {
	Code    int
	Message string
}

// Error implements the error interface.
func (e *SubscriptionError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("subscription rejected (code %d): %s", e.Code, e.Message)
	}
	return fmt.Sprintf("subscription rejected: %s", e.Message)
}

// Is implements errors.Is support.
func (e *SubscriptionError) Is(target error) bool {
	return target == ErrUpstreamSubscribe
}

// NewSubscriptionError creates a new SubscriptionError.
func NewSubscriptionError(code int, message string) *SubscriptionError {
	return &SubscriptionError{Code: code, Message: message}
}

// RejectionError represents a notification the transformer refused.
// Stage names the decode step that failed; extraction is all-or-nothing,
// so a rejection always discards the entire notification.
type RejectionError struct {
	Stage  string
	Reason string
}

// Error implements the error interface.
func (e *RejectionError) Error() string {
	return fmt.Sprintf("rejected at %s: %s", e.Stage, e.Reason)
}

// Is implements errors.Is support.
func (e *RejectionError) Is(target error) bool {
	return target == ErrRejected
}

// NewRejectionError creates a new RejectionError.
func NewRejectionError(stage, reason string) *RejectionError {
	return &RejectionError{Stage: stage, Reason: reason}
}

// DeliveryError represents a failure to deliver to one downstream consumer.
type DeliveryError struct {
	ConnectionID uint64
	Err          error
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to connection %d failed: %v", e.ConnectionID, e.Err)
}

// Unwrap implements errors.Unwrap.
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// Is implements errors.Is support.
func (e *DeliveryError) Is(target error) bool {
	return target == ErrDelivery
}
