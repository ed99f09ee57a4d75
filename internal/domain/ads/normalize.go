package ads

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ErrNoExternalID signals that a raw candidate carries no usable natural key
// under any of the known alternate names. Such records are rejected at
// normalization and never reach import.
var ErrNoExternalID = errors.New("candidate has no external id")

// Defaults supplies request-context values applied when the candidate is
// silent: the single-country inference and the source platform.
type Defaults struct {
	Country  string
	Platform string
}

// keyChain is an ordered list of alternate upstream key names for one
// canonical field. Evaluation order is the precedence order; first non-empty
// value wins. Extending support for a new upstream shape means appending a
// key here, not touching control flow.
type keyChain []string

var (
	externalIDKeys   = keyChain{"ad_library_id", "ad_archive_id", "id", "_id"}
	pageNameKeys     = keyChain{"page_name", "advertiser_name", "pageName", "advertiser"}
	pageIDKeys       = keyChain{"page_id", "advertiser_external_id", "pageId"}
	primaryTextKeys  = keyChain{"primary_text", "body", "ad_creative_body", "text"}
	headlineKeys     = keyChain{"headline", "title", "link_title", "ad_creative_link_title"}
	callToActionKeys = keyChain{"cta_text", "call_to_action", "cta_type", "ad_creative_link_caption"}
	mediaURLKeys     = keyChain{"media_url", "video_url", "image_url", "creative_url"}
	mediaTypeKeys    = keyChain{"media_type", "display_format"}
	startDateKeys    = keyChain{"start_date", "ad_delivery_start_time", "started_running_on", "startDate"}
	endDateKeys      = keyChain{"end_date", "ad_delivery_stop_time", "endDate"}
	statusKeys       = keyChain{"status", "ad_status"}
	platformKeys     = keyChain{"platform", "publisher_platform"}
)

// Normalize maps one raw candidate into the canonical AdRecord shape.
// It is pure: all I/O happens in adjacent components. The sourceFormat is
// recorded for diagnostics only; every format flows through the same chains.
func Normalize(c RawCandidate, sourceFormat SourceFormat, d Defaults) (AdRecord, error) {
	externalID := c.String(externalIDKeys...)
	if externalID == "" {
		return AdRecord{}, fmt.Errorf("normalize %s candidate: %w", sourceFormat, ErrNoExternalID)
	}

	record := AdRecord{
		ExternalID:           externalID,
		AdvertiserName:       c.String(pageNameKeys...),
		AdvertiserExternalID: c.String(pageIDKeys...),
		PrimaryText:          c.String(primaryTextKeys...),
		Headline:             c.String(headlineKeys...),
		CallToAction:         c.String(callToActionKeys...),
		MediaURL:             c.String(mediaURLKeys...),
		MediaType:            normalizeMediaType(c),
		StartDate:            parseCandidateDate(c.String(startDateKeys...)),
		EndDate:              parseCandidateDate(c.String(endDateKeys...)),
		Countries:            normalizeCountries(c, d),
		Status:               normalizeStatus(c),
		Platform:             c.String(platformKeys...),
	}

	if record.Platform == "" {
		if d.Platform != "" {
			record.Platform = d.Platform
		} else {
			record.Platform = "facebook"
		}
	}

	return record, nil
}

// normalizeMediaType uses an explicit media_type when it names a known value
// and otherwise infers from video/card counts: any video wins, more than one
// card means carousel, everything else is an image.
func normalizeMediaType(c RawCandidate) MediaType {
	switch strings.ToLower(c.String(mediaTypeKeys...)) {
	case "video":
		return MediaVideo
	case "carousel", "dco", "multi_images":
		return MediaCarousel
	case "image", "":
		// fall through to inference
	default:
		return MediaImage
	}

	if c.Int("video_count", "videos") > 0 {
		return MediaVideo
	}
	if c.Int("card_count", "cards") > 1 {
		return MediaCarousel
	}
	return MediaImage
}

// normalizeStatus defaults to active; an explicit is_active=false wins over
// the default, and a recognizable status string wins over both.
func normalizeStatus(c RawCandidate) AdStatus {
	switch strings.ToLower(c.String(statusKeys...)) {
	case "active":
		return StatusActive
	case "inactive", "paused", "ended":
		return StatusInactive
	}
	if active, ok := c.Bool("is_active"); ok && !active {
		return StatusInactive
	}
	return StatusActive
}

// normalizeCountries returns a sorted, de-duplicated, upper-cased country
// set. Missing countries fall back to the request-context country or an
// empty set, never nil.
func normalizeCountries(c RawCandidate, d Defaults) []string {
	raw := c.Strings("countries")
	if len(raw) == 0 {
		raw = c.Strings("country")
	}
	if len(raw) == 0 && d.Country != "" {
		raw = []string{d.Country}
	}

	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, code := range raw {
		code = strings.ToUpper(strings.TrimSpace(code))
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// candidateDateLayouts covers the formats seen across live scrape output,
// the ad library API, and user uploads.
var candidateDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
	"Jan 2, 2006",
	"January 2, 2006",
	"2/1/2006",
}

func parseCandidateDate(value string) *time.Time {
	if value == "" {
		return nil
	}
	// Unix seconds: the GraphQL payload uses them for delivery dates.
	if secs, err := strconv.ParseInt(value, 10, 64); err == nil && secs > 1e8 {
		t := time.Unix(secs, 0).UTC()
		return &t
	}
	for _, layout := range candidateDateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
