// Package source defines the Source entity (spec.md §3) shared by every
// retrieval lane and the Fusion stage, plus the normalization helpers
// used to detect duplicates across lanes.
package source

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"strings"
)

// Lane identifies which retrieval lane produced a Source.
type Lane string

const (
	LaneWeb    Lane = "web"
	LaneVector Lane = "vector"
	LaneKG     Lane = "kg"
)

// MaxSnippetBytes bounds Source.Snippet (spec.md §3: "snippet (≤1 KB)").
const MaxSnippetBytes = 1024

// Source is a single retrieved item (spec.md §3).
type Source struct {
	ID         string
	Title      string
	URL        string
	Snippet    string
	Score      float64
	OriginLane Lane
	Metadata   map[string]any

	// EntityRef identifies a knowledge-graph entity/fact when URL is
	// empty; spec.md §3's invariant requires one of URL or EntityRef
	// (for kg-origin sources) to be non-empty.
	EntityRef string
}

// Valid reports whether s satisfies spec.md §3's non-empty-locator
// invariant: (url ∨ (origin_lane=kg ∧ entity_ref)).
func (s Source) Valid() bool {
	if s.URL != "" {
		return true
	}
	return s.OriginLane == LaneKG && s.EntityRef != ""
}

// Truncated returns s with Snippet clamped to MaxSnippetBytes.
func (s Source) Truncated() Source {
	if len(s.Snippet) <= MaxSnippetBytes {
		return s
	}
	s.Snippet = s.Snippet[:MaxSnippetBytes]
	return s
}

// NormalizeURL lowercases scheme/host, strips a trailing slash, fragment,
// and common tracking query parameters, so that the same page reached by
// different query strings still dedups to one key.
func NormalizeURL(raw string) string {
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(raw))
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	if u.RawQuery != "" {
		q := u.Query()
		for _, tracking := range []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content", "ref"} {
			q.Del(tracking)
		}
		u.RawQuery = q.Encode()
	}

	s := u.String()
	s = strings.TrimSuffix(s, "/")
	return s
}

// NormalizeTitle lowercases and collapses whitespace for title-based
// dedup keys.
func NormalizeTitle(title string) string {
	fields := strings.Fields(strings.ToLower(title))
	return strings.Join(fields, " ")
}

// DedupKey returns the key used to detect duplicate sources: the
// normalized URL when present, else the normalized title plus origin
// lane (spec.md §3: "identical normalized URL or (normalized-title +
// origin_lane)").
func DedupKey(s Source) string {
	if norm := NormalizeURL(s.URL); norm != "" {
		return "url:" + norm
	}
	key := NormalizeTitle(s.Title) + "|" + string(s.OriginLane)
	sum := sha1.Sum([]byte(key))
	return "title:" + hex.EncodeToString(sum[:])
}
