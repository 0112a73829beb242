package types

import (
	"errors"
	"fmt"
)

var (
	// ErrEndpointsExhausted is returned when every configured stream
	// endpoint failed within one failover round. Fatal for the
	// connection manager; the owning process decides what to do next.
	ErrEndpointsExhausted = errors.New("all stream endpoints exhausted")

	// ErrQueueFull is the synchronous backpressure signal returned by
	// the pipeline queue under the DropNone policy. The producer must
	// decide whether to retry or propagate; the event is never silently
	// lost.
	ErrQueueFull = errors.New("backpressure queue full")

	// ErrNotConnected is returned for operations that require a live
	// stream connection.
	ErrNotConnected = errors.New("not connected")

	// ErrNoGasPrice is returned when the oracle has never successfully
	// fetched and therefore has nothing to fall back to.
	ErrNoGasPrice = errors.New("no gas price available")
)

// EndpointError wraps a failure against a specific stream endpoint.
// Permanent marks the endpoint unusable for the current failover
// rotation (e.g. an authentication rejection).
type EndpointError struct {
	URL       string
	Permanent bool
	Err       error
}

func (e *EndpointError) Error() string {
	if e.Permanent {
		return fmt.Sprintf("endpoint %s permanently unusable: %v", e.URL, e.Err)
	}
	return fmt.Sprintf("endpoint %s: %v", e.URL, e.Err)
}

func (e *EndpointError) Unwrap() error {
	return e.Err
}
