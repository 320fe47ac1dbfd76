package resolver

import (
	"errors"
	"strings"

	"github.com/Qiheena/playernix/pkg/provider"
)

// Taxonomy errors surfaced at the resolver boundary.
var (
	// ErrInvalidQuery means the caller passed an empty or unclassifiable query.
	ErrInvalidQuery = errors.New("invalid query")

	// ErrNoResults means every provider and fallback yielded nothing.
	ErrNoResults = errors.New("no results found")
)

// QueryKind classifies an incoming query.
type QueryKind int

const (
	// KindFreeText is a plain text search.
	KindFreeText QueryKind = iota
	// KindDirectURL is a URL on a platform that can stream it.
	KindDirectURL
	// KindCrossPlatform is a URL on a metadata-only platform; it gets
	// re-searched on a streaming platform.
	KindCrossPlatform
)

func (k QueryKind) String() string {
	switch k {
	case KindFreeText:
		return "free_text"
	case KindDirectURL:
		return "direct_url"
	case KindCrossPlatform:
		return "cross_platform"
	default:
		return "unknown"
	}
}

// Query is a classified user request. Immutable once built.
type Query struct {
	Text        string
	Kind        QueryKind
	Provider    string // owning provider for URL kinds
	RequestedBy string // opaque, passed through
}

// IsURL reports whether the string looks like a URL.
func IsURL(str string) bool {
	return strings.HasPrefix(str, "http://") || strings.HasPrefix(str, "https://") ||
		strings.HasPrefix(str, "www.")
}

// Classify builds a Query from raw text. Precedence: direct platform URL,
// then cross-platform URL, then free text. Unrecognized URLs fall through
// to free text.
func Classify(text, requestedBy string, registry *provider.Registry) (Query, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Query{}, ErrInvalidQuery
	}

	q := Query{Text: text, Kind: KindFreeText, RequestedBy: requestedBy}
	if !IsURL(text) {
		return q, nil
	}

	p, ok := registry.ForURL(text)
	if !ok {
		return q, nil
	}

	q.Provider = p.Name()
	if p.Searchable() {
		q.Kind = KindDirectURL
	} else {
		q.Kind = KindCrossPlatform
	}
	return q, nil
}
