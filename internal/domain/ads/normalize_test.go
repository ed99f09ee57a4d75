package ads

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRejectsCandidateWithoutExternalID(t *testing.T) {
	candidate := RawCandidate{
		"page_name":    "Acme Shoes",
		"primary_text": "Buy now",
	}

	_, err := Normalize(candidate, SourceWebhook, Defaults{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoExternalID)
}

func TestNormalizeExternalIDPrecedence(t *testing.T) {
	tests := []struct {
		name      string
		candidate RawCandidate
		want      string
	}{
		{
			name:      "ad_library_id wins over id",
			candidate: RawCandidate{"ad_library_id": "111", "id": "222"},
			want:      "111",
		},
		{
			name:      "ad_archive_id wins over id",
			candidate: RawCandidate{"ad_archive_id": "333", "id": "444"},
			want:      "333",
		},
		{
			name:      "plain id as fallback",
			candidate: RawCandidate{"id": "555"},
			want:      "555",
		},
		{
			name:      "numeric id is coerced",
			candidate: RawCandidate{"id": float64(123456789)},
			want:      "123456789",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := Normalize(tt.candidate, SourceUploadJSON, Defaults{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, record.ExternalID)
		})
	}
}

func TestNormalizeMediaType(t *testing.T) {
	tests := []struct {
		name      string
		candidate RawCandidate
		want      MediaType
	}{
		{
			name:      "explicit video",
			candidate: RawCandidate{"id": "1", "media_type": "video"},
			want:      MediaVideo,
		},
		{
			name:      "explicit carousel",
			candidate: RawCandidate{"id": "1", "media_type": "carousel"},
			want:      MediaCarousel,
		},
		{
			name:      "video count wins without explicit type",
			candidate: RawCandidate{"id": "1", "video_count": 2},
			want:      MediaVideo,
		},
		{
			name:      "multiple cards mean carousel",
			candidate: RawCandidate{"id": "1", "card_count": 3},
			want:      MediaCarousel,
		},
		{
			name:      "single card is an image",
			candidate: RawCandidate{"id": "1", "card_count": 1},
			want:      MediaImage,
		},
		{
			name:      "nothing at all defaults to image",
			candidate: RawCandidate{"id": "1"},
			want:      MediaImage,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := Normalize(tt.candidate, SourceScrape, Defaults{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, record.MediaType)
		})
	}
}

func TestNormalizeStatus(t *testing.T) {
	tests := []struct {
		name      string
		candidate RawCandidate
		want      AdStatus
	}{
		{
			name:      "explicit inactive string",
			candidate: RawCandidate{"id": "1", "status": "inactive"},
			want:      StatusInactive,
		},
		{
			name:      "is_active false",
			candidate: RawCandidate{"id": "1", "is_active": false},
			want:      StatusInactive,
		},
		{
			name:      "status string beats is_active",
			candidate: RawCandidate{"id": "1", "status": "active", "is_active": false},
			want:      StatusActive,
		},
		{
			name:      "default is active",
			candidate: RawCandidate{"id": "1"},
			want:      StatusActive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			record, err := Normalize(tt.candidate, SourceAPI, Defaults{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, record.Status)
		})
	}
}

func TestNormalizeCountries(t *testing.T) {
	t.Run("sorted unique uppercase", func(t *testing.T) {
		record, err := Normalize(RawCandidate{
			"id":        "1",
			"countries": []any{"us", "GB", "us", " de "},
		}, SourceWebhook, Defaults{})
		require.NoError(t, err)
		assert.Equal(t, []string{"DE", "GB", "US"}, record.Countries)
	})

	t.Run("default country applies when candidate is silent", func(t *testing.T) {
		record, err := Normalize(RawCandidate{"id": "1"}, SourceScrape, Defaults{Country: "ca"})
		require.NoError(t, err)
		assert.Equal(t, []string{"CA"}, record.Countries)
	})

	t.Run("candidate country beats default", func(t *testing.T) {
		record, err := Normalize(RawCandidate{"id": "1", "country": "FR"}, SourceScrape, Defaults{Country: "US"})
		require.NoError(t, err)
		assert.Equal(t, []string{"FR"}, record.Countries)
	})

	t.Run("never nil", func(t *testing.T) {
		record, err := Normalize(RawCandidate{"id": "1"}, SourceScrape, Defaults{})
		require.NoError(t, err)
		assert.NotNil(t, record.Countries)
		assert.Empty(t, record.Countries)
	})
}

func TestNormalizeDates(t *testing.T) {
	t.Run("unix seconds", func(t *testing.T) {
		record, err := Normalize(RawCandidate{
			"id":         "1",
			"start_date": "1704067200",
		}, SourceScrape, Defaults{})
		require.NoError(t, err)
		require.NotNil(t, record.StartDate)
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), *record.StartDate)
	})

	t.Run("iso date", func(t *testing.T) {
		record, err := Normalize(RawCandidate{
			"id":       "1",
			"end_date": "2024-06-15",
		}, SourceUploadCSV, Defaults{})
		require.NoError(t, err)
		require.NotNil(t, record.EndDate)
		assert.Equal(t, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC), *record.EndDate)
	})

	t.Run("unparseable date is nil, not an error", func(t *testing.T) {
		record, err := Normalize(RawCandidate{
			"id":         "1",
			"start_date": "whenever",
		}, SourceUploadCSV, Defaults{})
		require.NoError(t, err)
		assert.Nil(t, record.StartDate)
	})
}

func TestNormalizePlatformDefault(t *testing.T) {
	record, err := Normalize(RawCandidate{"id": "1"}, SourceScrape, Defaults{})
	require.NoError(t, err)
	assert.Equal(t, "facebook", record.Platform)

	record, err = Normalize(RawCandidate{"id": "1"}, SourceScrape, Defaults{Platform: "instagram"})
	require.NoError(t, err)
	assert.Equal(t, "instagram", record.Platform)

	record, err = Normalize(RawCandidate{"id": "1", "platform": "messenger"}, SourceScrape, Defaults{Platform: "instagram"})
	require.NoError(t, err)
	assert.Equal(t, "messenger", record.Platform)
}

func TestNormalizeAPIShape(t *testing.T) {
	record, err := Normalize(RawCandidate{
		"id":                     "9876",
		"page_name":              "Acme Shoes",
		"page_id":                "555",
		"ad_creative_body":       "Run faster.",
		"ad_creative_link_title": "Shop the sale",
		"ad_delivery_start_time": "2024-03-01T00:00:00Z",
		"publisher_platform":     "facebook",
	}, SourceAPI, Defaults{})
	require.NoError(t, err)

	assert.Equal(t, "9876", record.ExternalID)
	assert.Equal(t, "Acme Shoes", record.AdvertiserName)
	assert.Equal(t, "555", record.AdvertiserExternalID)
	assert.Equal(t, "Run faster.", record.PrimaryText)
	assert.Equal(t, "Shop the sale", record.Headline)
	require.NotNil(t, record.StartDate)
	assert.Equal(t, 2024, record.StartDate.Year())
}
