package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/howard-nolan/cozegate/internal/metrics"
	"github.com/howard-nolan/cozegate/internal/provider"
	"github.com/howard-nolan/cozegate/internal/stream"
	log "github.com/sirupsen/logrus"
)

const maxRequestBody = 8 << 20

// handleHealth is a liveness probe. It does not call the upstream.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type modelList struct {
	Object string      `json:"object"`
	Data   []modelInfo `json:"data"`
}

type modelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// handleModels lists the configured model names in the OpenAI shape so
// clients that probe /v1/models before chatting find something to pick.
func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	list := modelList{Object: "list", Data: make([]modelInfo, 0, len(s.cfg.Models))}
	for _, m := range s.cfg.Models {
		list.Data = append(list.Data, modelInfo{ID: m, Object: "model", OwnedBy: s.provider.Name()})
	}
	writeJSON(w, http.StatusOK, list)
}

// bearerToken returns the caller's bearer credential, or "" when there is
// none.
func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if rest, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(rest)
	}
	return ""
}

// handleChatCompletions handles POST /v1/chat/completions.
//
// The request is translated once into the upstream shape, then either
// answered with a single chat.completion or relayed as a stream of
// chat.completion.chunk objects, depending on "stream".
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	// The caller's credential is forwarded as-is; the configured token is
	// the fallback for callers that don't send one.
	token := bearerToken(r)
	if token == "" {
		token = s.cfg.Upstream.Token
	}
	if token == "" {
		writeError(w, http.StatusUnauthorized, errTypeAuthentication, "missing bearer credential")
		return
	}

	var req provider.ChatRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeFailure(w, fmt.Errorf("%w: decoding body: %v", provider.ErrInvalidRequest, err))
		return
	}
	if req.Model == "" {
		writeFailure(w, fmt.Errorf("%w: model is required", provider.ErrInvalidRequest))
		return
	}

	user := req.User
	if user == "" {
		user = s.cfg.Upstream.DefaultUser
	}

	upstreamReq, err := provider.ToUpstreamRequest(req.Messages, user, req.Stream)
	if err != nil {
		writeFailure(w, err)
		return
	}

	logger := s.logger.WithFields(log.Fields{
		"request_id": middleware.GetReqID(r.Context()),
		"model":      req.Model,
		"stream":     req.Stream,
		"history":    len(upstreamReq.History),
	})

	if req.Stream {
		s.streamCompletion(w, r, logger, req.Model, token, upstreamReq)
		return
	}
	s.completion(w, r, logger, req.Model, token, upstreamReq)
}

// completion serves the non-streaming path: one blocking upstream call,
// one chat.completion back.
func (s *Server) completion(w http.ResponseWriter, r *http.Request, logger log.FieldLogger, model, token string, req *provider.UpstreamRequest) {
	start := time.Now()
	resp, err := s.provider.Chat(r.Context(), token, req)
	s.metrics.ObserveUpstream(metrics.ModeBlocking, start, err)
	if err != nil {
		logger.WithError(err).Error("upstream chat failed")
		writeFailure(w, err)
		return
	}

	chunk, err := s.format.FormatComplete(resp, model)
	if err != nil {
		logger.WithError(err).Error("formatting completion")
		writeFailure(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chunk)
}

// streamCompletion serves the streaming path:
//
//	provider goroutine → events → Relay → stream.Write → client
//
// The upstream call runs under a context this handler cancels on return.
// That is what closes the upstream connection once the relay has seen the
// terminal event, or when the client goes away first.
func (s *Server) streamCompletion(w http.ResponseWriter, r *http.Request, logger log.FieldLogger, model, token string, req *provider.UpstreamRequest) {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)
	if d := s.cfg.Upstream.StreamTimeout; d > 0 {
		ctx, cancel = context.WithTimeout(r.Context(), d)
	} else {
		ctx, cancel = context.WithCancel(r.Context())
	}
	defer cancel()

	start := time.Now()
	events, err := s.provider.ChatStream(ctx, token, req)
	s.metrics.ObserveUpstream(metrics.ModeStreaming, start, err)
	if err != nil {
		logger.WithError(err).Error("opening upstream stream failed")
		writeFailure(w, err)
		return
	}

	done := s.metrics.StreamStarted()
	defer done()

	relay := stream.NewRelay(model, s.format)
	res, err := stream.Write(ctx, w, relay, events, s.cfg.Stream.StreamOptions())
	s.metrics.ObserveStream(res, err)

	entry := logger.WithFields(log.Fields{
		"chunks":      res.Chunks,
		"relay_state": relay.State().String(),
		"duration_ms": time.Since(start).Milliseconds(),
	})

	switch {
	case err != nil && !res.Committed:
		// Nothing reached the client yet, so it still gets a proper error.
		entry.WithError(err).Error("stream failed before first chunk")
		writeFailure(w, err)
	case errors.Is(err, context.Canceled) && r.Context().Err() != nil:
		entry.Info("client disconnected mid-stream")
	case err != nil:
		// Headers are out; the client notices the missing terminal chunk.
		entry.WithError(err).Error("stream failed mid-flight")
	case !res.Terminated:
		entry.Warn("upstream closed the stream without a terminal event")
	default:
		entry.Debug("stream completed")
	}
}
