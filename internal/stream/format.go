package stream

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/howard-nolan/cozegate/internal/provider"
)

// ErrMissingContent is returned by FormatComplete when the upstream answered
// successfully but sent no message to turn into a completion.
var ErrMissingContent = errors.New("upstream response contains no messages")

// Object kinds.
const (
	ObjectCompletion = "chat.completion"
	ObjectChunk      = "chat.completion.chunk"
)

// FinishStop is the only finish reason the gateway produces. The upstream
// does not say why it stopped.
const FinishStop = "stop"

// ---------------------------------------------------------------------------
// OpenAI-compatible response types
// ---------------------------------------------------------------------------

// Chunk is the client-facing object: a whole completion (ObjectCompletion)
// or one streamed piece of one (ObjectChunk).
type Chunk struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`

	// Usage is copied verbatim from the upstream and only set on a
	// non-streamed completion that had one.
	Usage json.RawMessage `json:"usage,omitempty"`
}

// Choice is one entry of Chunk.Choices. Exactly one of Delta (streamed) and
// Message (complete) is set.
type Choice struct {
	Index   int      `json:"index"`
	Delta   *Delta   `json:"delta,omitempty"`
	Message *Message `json:"message,omitempty"`

	// Logprobs is always null; the upstream does not report them. A nil
	// RawMessage marshals as null.
	Logprobs json.RawMessage `json:"logprobs"`

	// FinishReason is null on every chunk except the last one of a stream,
	// hence the pointer.
	FinishReason *string `json:"finish_reason"`
}

// Delta is the incremental part of a streamed chunk. The terminal chunk
// carries an empty Delta, which serializes as {}.
type Delta struct {
	Role    string  `json:"role,omitempty"`
	Content *string `json:"content,omitempty"`
}

// Message is the full assistant message of a non-streamed completion.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ---------------------------------------------------------------------------
// Formatter
// ---------------------------------------------------------------------------

// Formatter builds client chunks. Every chunk gets a fresh id and the
// formatting time; neither is inherited from the request. The zero value is
// ready to use.
type Formatter struct {
	// NewID and Now are overridable for tests.
	NewID func() string
	Now   func() time.Time
}

func (f Formatter) newChunk(object, model string, choice Choice) Chunk {
	newID, now := f.NewID, f.Now
	if newID == nil {
		newID = newChunkID
	}
	if now == nil {
		now = time.Now
	}
	return Chunk{
		ID:      newID(),
		Object:  object,
		Created: now().Unix(),
		Model:   model,
		Choices: []Choice{choice},
	}
}

func newChunkID() string {
	return "chatcmpl-" + uuid.NewString()
}

// FormatComplete turns a blocking upstream response into a chat.completion
// carrying the first message's content. A response with no messages is an
// error, never an empty completion.
func (f Formatter) FormatComplete(resp *provider.Response, model string) (Chunk, error) {
	if resp == nil || len(resp.Messages) == 0 {
		return Chunk{}, ErrMissingContent
	}

	msg := resp.Messages[0]

	role := msg.Role
	if role == "" {
		role = "assistant"
	}

	stop := FinishStop
	chunk := f.newChunk(ObjectCompletion, model, Choice{
		Message:      &Message{Role: role, Content: msg.Content},
		FinishReason: &stop,
	})
	if len(resp.Usage) > 0 {
		chunk.Usage = resp.Usage
	}
	return chunk, nil
}

// FormatDelta turns one upstream stream event into a chat.completion.chunk.
//
// Role resolution has two tiers and must stay that way: some upstream event
// shapes put role at the top level, others nest it under message. The
// top-level role wins unless it is empty; the nested one is the fallback;
// with neither, role is omitted. Content is message.content, or "" when
// absent.
func (f Formatter) FormatDelta(ev provider.Event, model string) Chunk {
	var delta Delta

	if role, ok := ev.Role(); ok && role != "" {
		delta.Role = role
	} else if role, ok := ev.MessageRole(); ok {
		delta.Role = role
	}

	content, _ := ev.MessageContent()
	delta.Content = &content

	return f.newChunk(ObjectChunk, model, Choice{Delta: &delta})
}

// FormatTerminal returns the synthetic last chunk of a stream: empty delta,
// finish_reason "stop".
func (f Formatter) FormatTerminal(model string) Chunk {
	stop := FinishStop
	return f.newChunk(ObjectChunk, model, Choice{
		Delta:        &Delta{},
		FinishReason: &stop,
	})
}
