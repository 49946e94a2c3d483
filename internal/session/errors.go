package session

import (
	"errors"

	"github.com/pipboy3000/usual-tone-of-voice/internal/capture"
	"github.com/pipboy3000/usual-tone-of-voice/internal/delivery"
	"github.com/pipboy3000/usual-tone-of-voice/internal/llm"
	"github.com/pipboy3000/usual-tone-of-voice/internal/silence"
	"github.com/pipboy3000/usual-tone-of-voice/internal/stt"
)

var (
	ErrPermissionDenied    = errors.New("microphone access denied")
	ErrResourceUnavailable = errors.New("resource unavailable")
	ErrNothingToRecopy     = errors.New("no transcript to copy")
	ErrClosed              = errors.New("session controller stopped")
	ErrUnknownAction       = errors.New("unknown control action")
)

// Kind is the user-facing error category.
type Kind string

const (
	KindNone                Kind = ""
	KindPermissionDenied    Kind = "permission_denied"
	KindResourceUnavailable Kind = "resource_unavailable"
	KindDecode              Kind = "decode_error"
	KindEngine              Kind = "engine_failure"
	KindRewriteRequest      Kind = "rewrite_request_error"
	KindRewriteEmpty        Kind = "rewrite_empty_output"
	KindDelivery            Kind = "delivery_error"
	KindUnknown             Kind = "unknown"
)

// Classify maps an error from any pipeline stage to its Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	var reqErr *llm.RequestError
	var emptyErr *llm.EmptyOutputError
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return KindPermissionDenied
	case errors.Is(err, ErrResourceUnavailable),
		errors.Is(err, capture.ErrNoAudio),
		errors.Is(err, capture.ErrUnavailable),
		errors.Is(err, stt.ErrModelMissing),
		errors.Is(err, stt.ErrEngineUnavailable):
		return KindResourceUnavailable
	case errors.Is(err, silence.ErrDecode):
		return KindDecode
	case errors.Is(err, stt.ErrEngine):
		return KindEngine
	case errors.As(err, &reqErr):
		return KindRewriteRequest
	case errors.As(err, &emptyErr):
		return KindRewriteEmpty
	case errors.Is(err, delivery.ErrDelivery):
		return KindDelivery
	default:
		return KindUnknown
	}
}
