package urlutil

import (
	"net/url"
	"strings"
)

// Canonicalize applies a deterministic normalization to a URL, producing
// the canonical form used for dedup, digests, and storage decisions.
//
// The normalization follows these rules:
//   - Scheme and host are lowercased
//   - Default ports are omitted (e.g., :80 for http, :443 for https)
//   - Fragments are removed
//   - Path and query are preserved byte-for-byte (two URLs differing only
//     in query string are different pages)
//
// Properties:
//   - Pure: no state, no memory
//   - Deterministic: same input always produces same output
//   - Idempotent: Canonicalize(Canonicalize(url)) == Canonicalize(url)
//   - Context-free: does not depend on crawl history
func Canonicalize(sourceUrl url.URL) url.URL {
	// Create a copy to avoid mutating the original
	canonical := sourceUrl

	// Lowercase scheme and host
	canonical.Scheme = lowerASCII(canonical.Scheme)
	canonical.Host = lowerASCII(canonical.Host)

	// Remove default port if present
	if host, port := canonical.Hostname(), canonical.Port(); port != "" {
		if (canonical.Scheme == "http" && port == "80") ||
			(canonical.Scheme == "https" && port == "443") {
			canonical.Host = host
		}
	}

	// Remove fragment (anchor)
	canonical.Fragment = ""
	canonical.RawFragment = ""

	return canonical
}

// CanonicalString parses a raw URL and returns its canonical string form.
func CanonicalString(raw string) (string, error) {
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	canonical := Canonicalize(*parsed)
	return canonical.String(), nil
}

// Resolve absolutizes ref against base. Returns false when ref does not
// parse; a parseable ref always yields an absolute URL.
func Resolve(base *url.URL, ref string) (*url.URL, bool) {
	parsed, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return nil, false
	}
	return base.ResolveReference(parsed), true
}

// StripFragment removes the fragment portion of a raw URL string without
// requiring the rest of the URL to parse. Asset references in the wild
// frequently contain characters net/url rejects.
func StripFragment(raw string) string {
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		return raw[:i]
	}
	return raw
}

// Host returns the lowercased host (including port, if any) of a raw URL,
// or "" when the URL does not parse.
func Host(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return lowerASCII(parsed.Host)
}

// Origin returns "scheme://host" for the given URL. Robots caching and
// per-origin accounting key on this value.
func Origin(u *url.URL) string {
	return lowerASCII(u.Scheme) + "://" + lowerASCII(u.Host)
}

// lowerASCII converts ASCII characters to lowercase without allocating.
// This is faster than strings.ToLower for ASCII-only strings.
func lowerASCII(s string) string {
	var needsLower bool
	for i := 0; i < len(s); i++ {
		if s[i] >= 'A' && s[i] <= 'Z' {
			needsLower = true
			break
		}
	}
	if !needsLower {
		return s
	}
	b := make([]byte, len(s))
	copy(b, s)
	for i := 0; i < len(b); i++ {
		if b[i] >= 'A' && b[i] <= 'Z' {
			b[i] += 'a' - 'A'
		}
	}
	return string(b)
}
