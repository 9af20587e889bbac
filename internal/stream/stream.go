// Package stream translates upstream responses into OpenAI-compatible
// chat-completion objects and relays streamed events to the client as
// server-sent events.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/howard-nolan/cozegate/internal/provider"
)

// Framing selects how chunks are laid out on the wire.
type Framing string

const (
	// FramingSSE writes "data: {json}\n\n" per chunk, the format OpenAI SDKs
	// parse, followed by "data: [DONE]\n\n" unless Options.SkipDone is set.
	FramingSSE Framing = "sse"
	// FramingJSONL writes "{json}\n" per chunk with no sentinel.
	FramingJSONL Framing = "jsonl"
)

// Valid reports whether f is a known framing.
func (f Framing) Valid() bool {
	return f == FramingSSE || f == FramingJSONL
}

// Options controls the streamed wire format.
type Options struct {
	Framing  Framing
	SkipDone bool
}

// Result summarizes a finished relay.
type Result struct {
	// Chunks is the number of chunks written to the client.
	Chunks int
	// Terminated is true when the upstream sent its terminal event. A
	// stream that ended any other way is incomplete.
	Terminated bool
	// Committed is true once the status line and headers went out. Until
	// then the caller may still answer with an error response.
	Committed bool
}

// Write runs relay over events and writes every chunk it produces to w,
// flushing after each one so the client sees tokens as they arrive:
//
//	provider goroutine → events → Relay → Write → http.ResponseWriter → client
//
// Headers are committed with the first chunk. If the stream fails before
// anything was written, Write returns the error with Result.Committed unset
// and the caller is still free to send an error response. After the first chunk
// the status code is fixed, so a later failure just ends the stream: the
// client notices because no terminal chunk (and no [DONE]) arrives.
func Write(ctx context.Context, w http.ResponseWriter, relay *Relay, events <-chan provider.Event, opts Options) (Result, error) {
	var res Result

	flusher, ok := w.(http.Flusher)
	if !ok {
		return res, fmt.Errorf("response writer does not support flushing (http.Flusher)")
	}

	if opts.Framing == "" {
		opts.Framing = FramingSSE
	}

	commit := func() {
		if res.Committed {
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no")
		w.WriteHeader(http.StatusOK)
		res.Committed = true
	}

	emit := func(chunk Chunk) error {
		jsonBytes, err := json.Marshal(chunk)
		if err != nil {
			return fmt.Errorf("marshaling chunk: %w", err)
		}

		commit()
		if err := writeFrame(w, opts.Framing, jsonBytes); err != nil {
			return fmt.Errorf("writing chunk: %w", err)
		}
		flusher.Flush()
		res.Chunks++
		return nil
	}

	if err := relay.Run(ctx, events, emit); err != nil {
		return res, err
	}

	commit()
	res.Terminated = relay.State() == StateTerminated

	if res.Terminated && opts.Framing == FramingSSE && !opts.SkipDone {
		if _, err := fmt.Fprint(w, "data: [DONE]\n\n"); err != nil {
			return res, fmt.Errorf("writing done marker: %w", err)
		}
		flusher.Flush()
	}

	return res, nil
}

func writeFrame(w http.ResponseWriter, framing Framing, payload []byte) error {
	var err error
	switch framing {
	case FramingJSONL:
		_, err = fmt.Fprintf(w, "%s\n", payload)
	default:
		_, err = fmt.Fprintf(w, "data: %s\n\n", payload)
	}
	return err
}
