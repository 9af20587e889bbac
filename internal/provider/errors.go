package provider

import (
	"errors"
	"fmt"
)

// ErrInvalidRequest is returned when an inbound request cannot be turned
// into an upstream call, e.g. an empty message list.
var ErrInvalidRequest = errors.New("invalid request")

var (
	errInvalidJSON = errors.New("payload is not valid JSON")
	errNotObject   = errors.New("payload is not a JSON object")
)

// UpstreamError reports a failed upstream call: either a non-2xx HTTP status
// or a 2xx body carrying a non-zero business code.
type UpstreamError struct {
	StatusCode int
	Body       string

	// Code and Msg are the upstream's in-band error fields, when present.
	Code int64
	Msg  string
}

func (e *UpstreamError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("upstream error (status %d, code %d): %s", e.StatusCode, e.Code, e.Msg)
	}
	return fmt.Sprintf("upstream error (status %d): %s", e.StatusCode, e.Body)
}

// StreamDecodeError reports a stream frame whose payload could not be parsed
// as an event object. It terminates the stream.
type StreamDecodeError struct {
	Payload string
	Err     error
}

func (e *StreamDecodeError) Error() string {
	return fmt.Sprintf("decoding stream frame %q: %v", truncate(e.Payload, 120), e.Err)
}

func (e *StreamDecodeError) Unwrap() error { return e.Err }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
