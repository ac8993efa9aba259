// Package key builds deterministic cache keys.
//
// A key is the resource family, optionally followed by ':' and a canonical
// serialization of the request arguments:
//
//	stats
//	doctors:page=2&search=smith
//	http:GET /api/doctors?limit=20&page=2
package key

import (
	"net/url"
	"sort"
	"strings"
)

// Separator splits the family from the argument part of a key.
const Separator = ":"

// HTTPFamily is the family used for request-level deduplication keys.
const HTTPFamily = "http"

// New joins resource with its params. Params are sorted by name so that two
// maps with the same content always yield the same key. Empty values are kept;
// "page=" and no page at all are different requests.
func New(resource string, params map[string]string) string {
	if len(params) == 0 {
		return resource
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString(resource)
	b.WriteString(Separator)
	for i, name := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(params[name]))
	}
	return b.String()
}

// Request builds the key for a raw HTTP call. url.Values.Encode sorts by
// parameter name; the order of repeated values is meaningful and kept.
func Request(method, path string, query url.Values) string {
	k := HTTPFamily + Separator + strings.ToUpper(method) + " " + path
	if enc := query.Encode(); enc != "" {
		k += "?" + enc
	}
	return k
}

// Family returns the resource family of k.
func Family(k string) string {
	if i := strings.Index(k, Separator); i >= 0 {
		return k[:i]
	}
	return k
}

// InFamily reports whether k belongs to family. Unlike a bare prefix check
// "doctors" does not match "doctorsArchive:...".
func InFamily(k, family string) bool {
	return k == family || strings.HasPrefix(k, family+Separator)
}
