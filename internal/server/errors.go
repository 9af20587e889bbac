package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/howard-nolan/cozegate/internal/provider"
	"github.com/howard-nolan/cozegate/internal/stream"
)

// Error types reported in the "type" field of the error envelope.
const (
	errTypeInvalidRequest = "invalid_request_error"
	errTypeAuthentication = "authentication_error"
	errTypeUpstream       = "upstream_error"
	errTypeStreamDecode   = "stream_decode_error"
	errTypeMissingContent = "missing_content_error"
	errTypeServer         = "server_error"
)

// errorBody is the OpenAI-style error envelope:
//
//	{"error": {"message": "...", "type": "..."}}
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// errorType names the kind of err for the envelope.
func errorType(err error) string {
	var (
		upstreamErr *provider.UpstreamError
		decodeErr   *provider.StreamDecodeError
	)
	switch {
	case errors.Is(err, provider.ErrInvalidRequest):
		return errTypeInvalidRequest
	case errors.As(err, &upstreamErr):
		return errTypeUpstream
	case errors.As(err, &decodeErr):
		return errTypeStreamDecode
	case errors.Is(err, stream.ErrMissingContent):
		return errTypeMissingContent
	}
	return errTypeServer
}

// writeFailure answers with the generic failure status. Every error kind
// shares it; the envelope's type tells them apart.
func writeFailure(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, errorType(err), err.Error())
}

func writeError(w http.ResponseWriter, status int, errType, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Message: message, Type: errType}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
