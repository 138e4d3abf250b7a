package source

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidRequiresURLOrKGEntityRef(t *testing.T) {
	assert.True(t, Source{URL: "https://example.com"}.Valid())
	assert.True(t, Source{OriginLane: LaneKG, EntityRef: "Q42"}.Valid())
	assert.False(t, Source{OriginLane: LaneKG}.Valid())
	assert.False(t, Source{OriginLane: LaneWeb}.Valid())
}

func TestNormalizeURLStripsTrackingParamsAndFragment(t *testing.T) {
	a := NormalizeURL("https://Example.com/Page/?utm_source=x&id=7#section")
	b := NormalizeURL("https://example.com/Page?id=7")
	assert.Equal(t, b, a)
}

func TestNormalizeTitleCollapsesWhitespaceAndCase(t *testing.T) {
	assert.Equal(t, "what is photosynthesis", NormalizeTitle("  What   is\tPhotosynthesis "))
}

func TestDedupKeyMatchesAcrossEquivalentURLs(t *testing.T) {
	a := Source{URL: "https://example.com/a?utm_source=foo", OriginLane: LaneWeb}
	b := Source{URL: "https://example.com/a", OriginLane: LaneVector}
	assert.Equal(t, DedupKey(a), DedupKey(b))
}

func TestDedupKeyFallsBackToTitleForKGSources(t *testing.T) {
	a := Source{Title: "Marie Curie", OriginLane: LaneKG, EntityRef: "Q7186"}
	b := Source{Title: "marie   curie", OriginLane: LaneKG, EntityRef: "Q7186"}
	assert.Equal(t, DedupKey(a), DedupKey(b))
}

func TestTruncatedClampsSnippetLength(t *testing.T) {
	long := make([]byte, MaxSnippetBytes+100)
	for i := range long {
		long[i] = 'x'
	}
	s := Source{Snippet: string(long)}.Truncated()
	assert.Len(t, s.Snippet, MaxSnippetBytes)
}
