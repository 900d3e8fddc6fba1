// Package uri parses scheme-qualified identifiers of the streaming
// service's message bus into path tuples, and provides the two trie
// structures (HandlerMap, SubscriberMap) the dealer indexes them with.
package uri

import (
	"strings"

	"lyra/lyraerr"
)

// schemes lists the recognised (prefix, separator) pairs, longest prefix
// first so "hm://" isn't mistaken for a colon-separated scheme.
var schemes = []struct {
	prefix string
	sep    string
}{
	{"hm://", "/"},
	{"hm:", ":"},
}

// Split parses a scheme-qualified identifier into its path components,
// the first of which is the scheme tag (e.g. "hm"). A trailing separator
// is stripped before splitting. Returns an InvalidArgument error if no
// known scheme prefixes the string, or if the path is empty.
func Split(identifier string) ([]string, error) {
	if identifier == "" {
		return nil, lyraerr.New(lyraerr.InvalidArgument, "empty uri")
	}
	for _, s := range schemes {
		if !strings.HasPrefix(identifier, s.prefix) {
			continue
		}
		scheme := strings.TrimRight(s.prefix, ":/")
		rest := strings.TrimPrefix(identifier, s.prefix)
		rest = strings.TrimSuffix(rest, s.sep)
		parts := []string{scheme}
		if rest != "" {
			parts = append(parts, strings.Split(rest, s.sep)...)
		}
		return parts, nil
	}
	return nil, lyraerr.New(lyraerr.InvalidArgument, "unrecognised uri scheme: "+identifier)
}

// Join is the inverse of Split using the "scheme://a/b/c" form; it is used
// only by tests to check the round-trip property, since a single path
// tuple can't tell which of the two accepted wire forms produced it.
func Join(parts []string) string {
	if len(parts) == 0 {
		return ""
	}
	if len(parts) == 1 {
		return parts[0] + "://"
	}
	return parts[0] + "://" + strings.Join(parts[1:], "/")
}
