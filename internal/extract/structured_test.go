package extract

import (
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adscope/harvester/internal/metrics"
)

func searchPayload(results ...string) string {
	collated := ""
	for i, r := range results {
		if i > 0 {
			collated += ","
		}
		collated += r
	}
	return fmt.Sprintf(`{
		"data": {
			"ad_library_main": {
				"search_results_connection": {
					"edges": [
						{"node": {"collated_results": [%s]}}
					]
				}
			}
		}
	}`, collated)
}

func TestStructuredExtractWalksSearchShape(t *testing.T) {
	payload := searchPayload(`{
		"ad_archive_id": "111222333",
		"page_name": "Acme Shoes",
		"page_id": 44556677,
		"start_date": 1704067200,
		"is_active": true,
		"publisher_platform": ["FACEBOOK", "INSTAGRAM"],
		"targeted_or_reached_countries": ["US", "CA"],
		"snapshot": {
			"body": {"text": "Run faster in Acme."},
			"title": "Spring Sale",
			"cta_text": "Shop Now",
			"videos": [],
			"images": [{"original_image_url": "https://cdn.example.com/a.jpg"}],
			"cards": []
		}
	}`)

	extractor := NewStructuredExtractor(zerolog.Nop())
	candidates := extractor.Extract([]byte(payload))
	require.Len(t, candidates, 1)

	c := candidates[0]
	assert.Equal(t, "111222333", c.String("ad_archive_id"))
	assert.Equal(t, "Acme Shoes", c.String("page_name"))
	assert.Equal(t, "44556677", c.String("page_id"), "numeric page id is stringified")
	assert.Equal(t, "1704067200", c.String("start_date"), "unix date kept as string for the normalizer")
	assert.Equal(t, "facebook", c.String("publisher_platform"), "first platform, lower-cased")
	assert.Equal(t, "Run faster in Acme.", c.String("primary_text"))
	assert.Equal(t, "Spring Sale", c.String("headline"))
	assert.Equal(t, "Shop Now", c.String("cta_text"))
	assert.Equal(t, "https://cdn.example.com/a.jpg", c.String("media_url"))
	assert.Equal(t, []string{"US", "CA"}, c.Strings("countries"))
	assert.Equal(t, 0, c.Int("video_count"))
}

func TestStructuredExtractCountsCandidates(t *testing.T) {
	counter := metrics.AdsExtracted.WithLabelValues("structured")
	before := testutil.ToFloat64(counter)

	payload := searchPayload(
		`{"ad_archive_id": "1", "snapshot": {}}`,
		`{"ad_archive_id": "2", "snapshot": {}}`,
	)
	candidates := NewStructuredExtractor(zerolog.Nop()).Extract([]byte(payload))

	require.Len(t, candidates, 2)
	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestStructuredExtractMediaPriority(t *testing.T) {
	t.Run("video hd beats images", func(t *testing.T) {
		payload := searchPayload(`{
			"ad_archive_id": "1",
			"snapshot": {
				"videos": [{"video_hd_url": "https://cdn/v-hd.mp4", "video_sd_url": "https://cdn/v-sd.mp4"}],
				"images": [{"original_image_url": "https://cdn/i.jpg"}]
			}
		}`)
		candidates := NewStructuredExtractor(zerolog.Nop()).Extract([]byte(payload))
		require.Len(t, candidates, 1)
		assert.Equal(t, "https://cdn/v-hd.mp4", candidates[0].String("media_url"))
		assert.Equal(t, 1, candidates[0].Int("video_count"))
	})

	t.Run("sd fallback when hd missing", func(t *testing.T) {
		payload := searchPayload(`{
			"ad_archive_id": "1",
			"snapshot": {"videos": [{"video_sd_url": "https://cdn/v-sd.mp4"}]}
		}`)
		candidates := NewStructuredExtractor(zerolog.Nop()).Extract([]byte(payload))
		require.Len(t, candidates, 1)
		assert.Equal(t, "https://cdn/v-sd.mp4", candidates[0].String("media_url"))
	})

	t.Run("card image and copy fallback", func(t *testing.T) {
		payload := searchPayload(`{
			"ad_archive_id": "1",
			"snapshot": {
				"cards": [
					{"original_image_url": "https://cdn/c1.jpg", "body": "Card copy", "title": "Card title"},
					{"original_image_url": "https://cdn/c2.jpg"}
				]
			}
		}`)
		candidates := NewStructuredExtractor(zerolog.Nop()).Extract([]byte(payload))
		require.Len(t, candidates, 1)
		c := candidates[0]
		assert.Equal(t, "https://cdn/c1.jpg", c.String("media_url"))
		assert.Equal(t, "Card copy", c.String("primary_text"))
		assert.Equal(t, "Card title", c.String("headline"))
		assert.Equal(t, 2, c.Int("card_count"))
	})
}

func TestStructuredExtractGeneratesFallbackID(t *testing.T) {
	payload := searchPayload(`{"page_name": "No ID Inc", "snapshot": {}}`)

	candidates := NewStructuredExtractor(zerolog.Nop()).Extract([]byte(payload))
	require.Len(t, candidates, 1)
	assert.Contains(t, candidates[0].String("ad_archive_id"), "gen_")
}

func TestStructuredExtractAntiHijackPrefix(t *testing.T) {
	payload := "for (;;);" + searchPayload(`{"ad_archive_id": "42", "snapshot": {}}`)

	candidates := NewStructuredExtractor(zerolog.Nop()).Extract([]byte(payload))
	require.Len(t, candidates, 1)
	assert.Equal(t, "42", candidates[0].String("ad_archive_id"))
}

func TestStructuredExtractChunkedDocuments(t *testing.T) {
	doc := `{"data":{"ad_library_main":{"search_results_connection":{"edges":[{"node":{"collated_results":[{"ad_archive_id":"%s","snapshot":{}}]}}]}}}}`
	payload := fmt.Sprintf(doc, "1") + "\n" +
		`{"other": "chunk"}` + "\n" +
		fmt.Sprintf(doc, "2")

	candidates := NewStructuredExtractor(zerolog.Nop()).Extract([]byte(payload))
	require.Len(t, candidates, 2)
	assert.Equal(t, "1", candidates[0].String("ad_archive_id"))
	assert.Equal(t, "2", candidates[1].String("ad_archive_id"))
}

func TestStructuredExtractToleratesGarbage(t *testing.T) {
	extractor := NewStructuredExtractor(zerolog.Nop())

	assert.Empty(t, extractor.Extract(nil))
	assert.Empty(t, extractor.Extract([]byte("   ")))
	assert.Empty(t, extractor.Extract([]byte("<html>not json</html>")))
	assert.Empty(t, extractor.Extract([]byte(`{"data": {"unrelated": true}}`)))
	assert.Empty(t, extractor.Extract([]byte(`{"data": null}`)))
}
