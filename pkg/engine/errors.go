package engine

import (
	"context"
	"errors"

	"github.com/Qiheena/playernix/pkg/cache"
	"github.com/Qiheena/playernix/pkg/race"
	"github.com/Qiheena/playernix/pkg/resolver"
)

// The engine's error taxonomy. Provider-level failures are converted into
// one of these kinds at the resolver/race boundary; no raw provider error
// crosses the facade unwrapped.
var (
	ErrNoResults       = resolver.ErrNoResults
	ErrInvalidQuery    = resolver.ErrInvalidQuery
	ErrPayloadTooLarge = cache.ErrPayloadTooLarge
	ErrEmptyPayload    = cache.ErrEmptyPayload
)

// Kind buckets an engine error for user-facing presentation.
type Kind int

const (
	KindUnknown Kind = iota
	KindInvalidQuery
	KindNoResults
	KindAllProvidersFailed
	KindPayloadTooLarge
	KindEmptyPayload
	KindTimeout
)

func (k Kind) String() string {
	switch k {
	case KindInvalidQuery:
		return "invalid_query"
	case KindNoResults:
		return "no_results"
	case KindAllProvidersFailed:
		return "all_providers_failed"
	case KindPayloadTooLarge:
		return "payload_too_large"
	case KindEmptyPayload:
		return "empty_payload"
	case KindTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Message returns the human-readable summary the calling layer presents.
// It distinguishes "nothing found" from "found but could not stream" from
// "request malformed".
func (k Kind) Message() string {
	switch k {
	case KindInvalidQuery:
		return "The request is malformed or empty."
	case KindNoResults:
		return "Nothing was found for that query."
	case KindAllProvidersFailed:
		return "A track was found, but no source could stream it."
	case KindPayloadTooLarge:
		return "The track is too large to download."
	case KindEmptyPayload:
		return "The source returned an empty stream."
	case KindTimeout:
		return "The source took too long to respond."
	default:
		return "Something went wrong."
	}
}

// ClassifyError maps an error returned by the engine to its Kind.
func ClassifyError(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case errors.Is(err, ErrInvalidQuery):
		return KindInvalidQuery
	case errors.Is(err, ErrNoResults):
		return KindNoResults
	case errors.Is(err, ErrPayloadTooLarge):
		return KindPayloadTooLarge
	case errors.Is(err, ErrEmptyPayload):
		return KindEmptyPayload
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	default:
		var allFailed *race.AllFailedError
		if errors.As(err, &allFailed) {
			return KindAllProvidersFailed
		}
		return KindUnknown
	}
}
