package extract

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adscope/harvester/internal/metrics"
)

const sampleMarkdown = `
# Acme Shoes

Library ID: 111222333

Started running on Jan 15, 2024

Run faster this spring with the new Acme Cloudstriders.

Headline: Spring Sale Starts Now

![ad creative](https://scontent.example.fbcdn.net/creative1.jpg)

## Beta Gadgets

Library ID: 444555666

Started running on Feb 2, 2024

The last phone stand you will ever buy, guaranteed for life.
`

func TestMarkupExtractSplitsOnDateMarkers(t *testing.T) {
	extractor := NewMarkupExtractor(zerolog.Nop())
	candidates := extractor.Extract(sampleMarkdown)
	require.Len(t, candidates, 2)

	first := candidates[0]
	assert.Equal(t, "111222333", first.String("ad_library_id"))
	assert.Equal(t, "Acme Shoes", first.String("page_name"))
	assert.Equal(t, "2024-01-15", first.String("start_date"))
	assert.Equal(t, "Spring Sale Starts Now", first.String("headline"))
	assert.Contains(t, first.String("primary_text"), "Cloudstriders")
	assert.Equal(t, "https://scontent.example.fbcdn.net/creative1.jpg", first.String("media_url"))

	second := candidates[1]
	assert.Equal(t, "444555666", second.String("ad_library_id"))
	assert.Equal(t, "Beta Gadgets", second.String("page_name"))
	assert.Contains(t, second.String("primary_text"), "phone stand")
}

func TestMarkupExtractCountsCandidates(t *testing.T) {
	counter := metrics.AdsExtracted.WithLabelValues("markup")
	before := testutil.ToFloat64(counter)

	candidates := NewMarkupExtractor(zerolog.Nop()).Extract(sampleMarkdown)

	require.Len(t, candidates, 2)
	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestMarkupExtractPageNameFallbacks(t *testing.T) {
	t.Run("bold name when no heading", func(t *testing.T) {
		content := "**Gamma Fitness**\n\nStarted running on Mar 1, 2024\n\nGet stronger with our twelve week plan.\n"
		candidates := NewMarkupExtractor(zerolog.Nop()).Extract(content)
		require.Len(t, candidates, 1)
		assert.Equal(t, "Gamma Fitness", candidates[0].String("page_name"))
	})

	t.Run("line before sponsored label", func(t *testing.T) {
		content := "Delta Coffee\nSponsored\n\nStarted running on Mar 1, 2024\n\nSmall batch roasts delivered every week.\n"
		candidates := NewMarkupExtractor(zerolog.Nop()).Extract(content)
		require.Len(t, candidates, 1)
		assert.Equal(t, "Delta Coffee", candidates[0].String("page_name"))
	})
}

func TestMarkupExtractDropsNoiseBlocks(t *testing.T) {
	// A date marker with nothing identifiable around it is noise.
	content := "Started running on Jan 1, 2024\n\nhttp://tracking.example.com/x\n"
	candidates := NewMarkupExtractor(zerolog.Nop()).Extract(content)
	assert.Empty(t, candidates)
}

func TestMarkupExtractEmptyAndMarkerless(t *testing.T) {
	extractor := NewMarkupExtractor(zerolog.Nop())

	assert.Empty(t, extractor.Extract(""))
	assert.Empty(t, extractor.Extract("   \n\t  "))
	assert.Empty(t, extractor.Extract("A page full of prose with no ad cards in it at all."))
}

func TestMarkupExtractHandlesHTML(t *testing.T) {
	content := `<html><body>
		<div><h2>Epsilon Travel</h2></div>
		<div>Library ID: 777888999</div>
		<div>Started running on Apr 10, 2024</div>
		<div>See the fjords before everyone else does this summer.</div>
		<script>console.log("ignore me")</script>
	</body></html>`

	candidates := NewMarkupExtractor(zerolog.Nop()).Extract(content)
	require.Len(t, candidates, 1)
	assert.Equal(t, "777888999", candidates[0].String("ad_library_id"))
	assert.Contains(t, candidates[0].String("primary_text"), "fjords")
}

func TestMarkupExtractUnparseableDateStillEmits(t *testing.T) {
	content := "# Zeta Corp\n\nStarted running on someday maybe\n\nA perfectly good primary text line for the ad.\n"
	candidates := NewMarkupExtractor(zerolog.Nop()).Extract(content)
	require.Len(t, candidates, 1)
	assert.Equal(t, "Zeta Corp", candidates[0].String("page_name"))
	assert.Empty(t, candidates[0].String("start_date"))
}
