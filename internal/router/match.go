package router

import (
	"net/http"
	"strings"

	"example.com/assethttp/internal/assets"
)

// ListPrefix introduces a directory listing request: /list_<asset name>.
const ListPrefix = "/list_"

// MatchKind tags the outcome of classifying a request path.
type MatchKind int

const (
	// Fallback hands the request to the static responder.
	Fallback MatchKind = iota
	// SingletonMatch serves one fixed file.
	SingletonMatch
	// ListMatch returns the JSON listing of an asset root.
	ListMatch
	// AssetMatch serves a confined file from an asset root.
	AssetMatch
)

func (k MatchKind) String() string {
	switch k {
	case SingletonMatch:
		return "singleton"
	case ListMatch:
		return "list"
	case AssetMatch:
		return "asset"
	default:
		return "fallback"
	}
}

// Match is the classification of one request. Only the fields relevant to
// Kind are set: Singleton for SingletonMatch, Asset for ListMatch and
// AssetMatch, Candidate (the client-supplied file name) for AssetMatch.
type Match struct {
	Kind      MatchKind
	Singleton assets.SingletonRoute
	Asset     assets.AssetRoute
	Candidate string
}

type matcher func(t *assets.Table, path string) (Match, bool)

// matchers is the precedence chain. The first matcher that reports a hit
// decides the request; nothing matched means Fallback.
var matchers = []matcher{
	matchSingleton,
	matchList,
	matchAsset,
}

// Classify maps a request to its route. Only GET requests are eligible for
// the asset surface; every other method is left to the fallback.
func Classify(t *assets.Table, method, path string) Match {
	if method != http.MethodGet {
		return Match{Kind: Fallback}
	}
	for _, m := range matchers {
		if match, ok := m(t, path); ok {
			return match
		}
	}
	return Match{Kind: Fallback}
}

func matchSingleton(t *assets.Table, path string) (Match, bool) {
	sr, ok := t.Singleton(path)
	if !ok {
		return Match{}, false
	}
	return Match{Kind: SingletonMatch, Singleton: sr}, true
}

// matchList only hits for known names; /list_<unknown> falls through so a
// literal static file of that name can still be served.
func matchList(t *assets.Table, path string) (Match, bool) {
	name, ok := strings.CutPrefix(path, ListPrefix)
	if !ok {
		return Match{}, false
	}
	ar, ok := t.Asset(name)
	if !ok {
		return Match{}, false
	}
	return Match{Kind: ListMatch, Asset: ar}, true
}

func matchAsset(t *assets.Table, path string) (Match, bool) {
	for _, ar := range t.Assets() {
		prefix := "/" + ar.Name + "/"
		if candidate, ok := strings.CutPrefix(path, prefix); ok {
			return Match{Kind: AssetMatch, Asset: ar, Candidate: candidate}, true
		}
	}
	return Match{}, false
}
