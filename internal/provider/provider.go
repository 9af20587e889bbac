// Package provider defines the upstream Provider interface, the request
// translator, and the Coze adapter.
//
// The gateway speaks OpenAI's chat-completions dialect to its clients and
// Coze's bot chat dialect to the upstream. Everything that knows about the
// upstream's wire shape lives here; the stream package only sees Events and
// Responses.
package provider

import (
	"context"
	"encoding/json"
)

// Provider is the interface the gateway uses to reach the upstream chat API.
// Implementations must be safe for concurrent use: one Provider serves every
// inbound request.
type Provider interface {
	// Name returns the provider identifier, e.g. "coze". Used as a metrics
	// label and in log fields.
	Name() string

	// Chat sends a blocking request and returns the complete upstream
	// response. token is the bearer credential forwarded verbatim.
	Chat(ctx context.Context, token string, req *UpstreamRequest) (*Response, error)

	// ChatStream opens a streamed request and returns a channel that delivers
	// one Event per upstream frame as it arrives.
	//
	// The channel is closed when the upstream closes the connection, when a
	// frame fails to decode (the last Event then carries Err), or when ctx is
	// cancelled. Cancelling ctx is how the caller releases the connection
	// early, e.g. after the terminal event or on client disconnect.
	ChatStream(ctx context.Context, token string, req *UpstreamRequest) (<-chan Event, error)
}

// ---------------------------------------------------------------------------
// Client-facing request types
// ---------------------------------------------------------------------------

// ChatRequest is the inbound OpenAI-format chat completion request. The
// sampling parameters are accepted so that stock OpenAI clients can talk to
// the gateway, but the upstream has no equivalent and they are ignored.
type ChatRequest struct {
	Model            string    `json:"model"`
	Messages         []Message `json:"messages"`
	Stream           bool      `json:"stream"`
	User             string    `json:"user,omitempty"`
	Temperature      *float64  `json:"temperature,omitempty"`
	MaxTokens        *int      `json:"max_tokens,omitempty"`
	TopP             *float64  `json:"top_p,omitempty"`
	FrequencyPenalty *float64  `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64  `json:"presence_penalty,omitempty"`
}

// Message is a single role/content pair. The same shape is used inbound
// (OpenAI messages) and outbound (Coze chat_history entries).
type Message struct {
	Role    string `json:"role"`    // "system", "user", or "assistant"
	Content string `json:"content"` // the message text
}

// ---------------------------------------------------------------------------
// Upstream-facing types
// ---------------------------------------------------------------------------

// UpstreamRequest is the provider-neutral form of one upstream call: the
// active query plus the turns that preceded it. It is built once per inbound
// request by ToUpstreamRequest and discarded after the provider sends it.
type UpstreamRequest struct {
	User    string
	Query   string
	History []Message
	Stream  bool
}

// Response is a complete (blocking) upstream response.
type Response struct {
	Messages []ResponseMessage `json:"messages"`

	// Usage is kept as raw JSON so it can be handed to the client verbatim.
	// It is nil when the upstream sent no usage block.
	Usage json.RawMessage `json:"usage,omitempty"`

	ConversationID string `json:"conversation_id,omitempty"`
}

// ResponseMessage is one entry of Response.Messages. Coze returns several
// messages per reply (the answer plus follow-up suggestions and verbose
// traces); Type tells them apart.
type ResponseMessage struct {
	Role        string `json:"role,omitempty"`
	Type        string `json:"type,omitempty"`
	Content     string `json:"content"`
	ContentType string `json:"content_type,omitempty"`
}
