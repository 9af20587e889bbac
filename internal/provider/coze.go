package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ---------------------------------------------------------------------------
// CozeProvider struct + constructor
// ---------------------------------------------------------------------------

// CozeProvider implements Provider for the Coze bot chat API
// (POST {baseURL}/open_api/v2/chat). The bot to talk to is fixed at
// construction; the bearer token is supplied per call so the gateway can
// forward each caller's own credential.
type CozeProvider struct {
	botID   string
	baseURL string // e.g. "https://api.coze.com"
	client  *http.Client
}

// NewCozeProvider creates a CozeProvider. client is used as-is for blocking
// calls; streaming calls reuse its transport but drop its overall Timeout,
// which would otherwise cut long streams off mid-answer.
func NewCozeProvider(botID, baseURL string, client *http.Client) *CozeProvider {
	if client == nil {
		client = http.DefaultClient
	}
	return &CozeProvider{
		botID:   botID,
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
	}
}

// Name returns the provider identifier.
func (c *CozeProvider) Name() string {
	return "coze"
}

// ---------------------------------------------------------------------------
// Coze API types (unexported)
// ---------------------------------------------------------------------------

// cozeChatPath is the chat endpoint, shared by blocking and streaming calls.
// The "stream" body field picks the mode.
const cozeChatPath = "/open_api/v2/chat"

// maxFrameSize caps a single SSE line. Coze sends whole messages in one frame
// when verbose tracing is on, which can exceed bufio's 64 KiB default.
const maxFrameSize = 1 << 20

// maxErrorBody bounds how much of a failed response we keep for the error.
const maxErrorBody = 64 << 10

// cozeRequest is the request body. Stream is set per call, so the same
// translated request can be sent in either mode.
type cozeRequest struct {
	BotID       string    `json:"bot_id"`
	User        string    `json:"user"`
	Query       string    `json:"query"`
	ChatHistory []Message `json:"chat_history"`
	Stream      bool      `json:"stream"`
}

// cozeResponse is the blocking response body. Code and Msg report in-band
// errors: Coze answers some failures (bad bot id, exhausted quota) with HTTP
// 200 and a non-zero code.
type cozeResponse struct {
	Code int64  `json:"code"`
	Msg  string `json:"msg"`
	Response
}

// ---------------------------------------------------------------------------
// Request encoding
// ---------------------------------------------------------------------------

func (c *CozeProvider) encodeRequest(req *UpstreamRequest, stream bool) ([]byte, error) {
	history := req.History
	if history == nil {
		history = []Message{}
	}

	body, err := json.Marshal(cozeRequest{
		BotID:       c.botID,
		User:        req.User,
		Query:       req.Query,
		ChatHistory: history,
		Stream:      stream,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	return body, nil
}

func (c *CozeProvider) newRequest(ctx context.Context, token string, body []byte, stream bool) (*http.Request, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+cozeChatPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if stream {
		httpReq.Header.Set("Accept", "text/event-stream")
	} else {
		httpReq.Header.Set("Accept", "*/*")
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	return httpReq, nil
}

// readUpstreamError drains a non-2xx response into an UpstreamError.
func readUpstreamError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &UpstreamError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(raw)),
	}
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

// ---------------------------------------------------------------------------
// Non-streaming: Chat
// ---------------------------------------------------------------------------

// Chat sends a blocking request and returns the decoded response. The stream
// flag on the wire is always false, whatever req.Stream says.
func (c *CozeProvider) Chat(ctx context.Context, token string, req *UpstreamRequest) (*Response, error) {
	body, err := c.encodeRequest(req, false)
	if err != nil {
		return nil, err
	}

	httpReq, err := c.newRequest(ctx, token, body, false)
	if err != nil {
		return nil, err
	}

	httpResp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request to coze: %w", err)
	}
	defer httpResp.Body.Close()

	if !isSuccess(httpResp.StatusCode) {
		return nil, readUpstreamError(httpResp)
	}

	var cozeResp cozeResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&cozeResp); err != nil {
		return nil, fmt.Errorf("decoding coze response: %w", err)
	}
	if cozeResp.Code != 0 {
		return nil, &UpstreamError{
			StatusCode: httpResp.StatusCode,
			Code:       cozeResp.Code,
			Msg:        cozeResp.Msg,
		}
	}

	resp := cozeResp.Response
	if string(resp.Usage) == "null" {
		resp.Usage = nil
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// Streaming: ChatStream
// ---------------------------------------------------------------------------

// ChatStream opens a streaming request and returns a channel of Events.
//
// Frames are line-delimited. Only "data:" lines carry payloads; the prefix is
// stripped, blank payloads are skipped, and each remaining payload must be a
// JSON object. "event:", "id:" and comment lines are ignored. The goroutine
// owns the response body and closes it on every exit path; the channel is
// unbuffered so the upstream is read no faster than the caller consumes.
func (c *CozeProvider) ChatStream(ctx context.Context, token string, req *UpstreamRequest) (<-chan Event, error) {
	body, err := c.encodeRequest(req, true)
	if err != nil {
		return nil, err
	}

	httpReq, err := c.newRequest(ctx, token, body, true)
	if err != nil {
		return nil, err
	}

	// Same transport (and proxy settings) as blocking calls, no overall
	// timeout: ctx bounds the stream instead.
	streamClient := &http.Client{
		Transport:     c.client.Transport,
		CheckRedirect: c.client.CheckRedirect,
		Jar:           c.client.Jar,
	}

	httpResp, err := streamClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sending request to coze: %w", err)
	}

	if !isSuccess(httpResp.StatusCode) {
		defer httpResp.Body.Close()
		return nil, readUpstreamError(httpResp)
	}

	ch := make(chan Event)

	go func() {
		defer close(ch)
		defer httpResp.Body.Close()

		send := func(ev Event) bool {
			select {
			case ch <- ev:
				return true
			case <-ctx.Done():
				return false
			}
		}

		scanner := bufio.NewScanner(httpResp.Body)
		scanner.Buffer(make([]byte, 0, 64<<10), maxFrameSize)

		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())

			rest, ok := strings.CutPrefix(line, "data:")
			if !ok {
				continue
			}
			payload := strings.TrimSpace(rest)
			if payload == "" {
				continue
			}
			if payload == "[DONE]" {
				return
			}

			ev, err := ParseEvent([]byte(payload))
			if err != nil {
				send(Event{Err: err})
				return
			}

			// An in-stream error event ends the stream the same way a
			// failed handshake would have.
			if ev.Name() == "error" {
				send(Event{Err: streamErrorEvent(httpResp.StatusCode, ev)})
				return
			}

			if !send(ev) {
				return
			}
		}

		if err := scanner.Err(); err != nil && ctx.Err() == nil {
			// An oversized frame is a malformed frame, not a transport failure.
			if errors.Is(err, bufio.ErrTooLong) {
				err = &StreamDecodeError{
					Payload: fmt.Sprintf("<frame over %d bytes>", maxFrameSize),
					Err:     err,
				}
			} else {
				err = fmt.Errorf("reading coze stream: %w", err)
			}
			send(Event{Err: err})
		}
	}()

	return ch, nil
}

// streamErrorEvent converts an "event":"error" frame into an UpstreamError.
func streamErrorEvent(status int, ev Event) error {
	info := ev.raw.Get("error_information")
	return &UpstreamError{
		StatusCode: status,
		Body:       ev.Raw(),
		Code:       info.Get("code").Int(),
		Msg:        info.Get("msg").String(),
	}
}
