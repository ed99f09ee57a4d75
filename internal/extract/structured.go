// Package extract pulls ad candidates out of raw page payloads. The
// upstream schema is unstable and undocumented, so every extraction here is
// tolerant and best-effort: a parse failure yields an empty result plus a
// logged diagnostic, never an error that could abort a harvest run.
package extract

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/adscope/harvester/internal/domain/ads"
	"github.com/adscope/harvester/internal/metrics"
)

// antiHijackPrefix precedes some intercepted GraphQL responses.
const antiHijackPrefix = "for (;;);"

// StructuredExtractor walks the ad library's GraphQL search-results shape:
// connection → edges → node → collated results → snapshot.
type StructuredExtractor struct {
	logger zerolog.Logger
	now    func() time.Time
}

func NewStructuredExtractor(logger zerolog.Logger) *StructuredExtractor {
	return &StructuredExtractor{logger: logger, now: time.Now}
}

// Extract returns every ad candidate found in payload. It never fails: any
// shape mismatch is logged and skipped. Multiple JSON documents separated by
// newlines (a chunked-response artifact) are each walked independently.
func (e *StructuredExtractor) Extract(payload []byte) []ads.RawCandidate {
	text := strings.TrimSpace(string(payload))
	text = strings.TrimPrefix(text, antiHijackPrefix)
	if text == "" {
		return nil
	}

	var candidates []ads.RawCandidate
	for _, doc := range splitDocuments(text) {
		extracted, err := e.extractDocument([]byte(doc))
		if err != nil {
			e.logger.Debug().Err(err).Int("bytes", len(doc)).
				Msg("extract: skipping unparseable payload document")
			continue
		}
		candidates = append(candidates, extracted...)
	}
	metrics.AdsExtracted.WithLabelValues("structured").Add(float64(len(candidates)))
	return candidates
}

// splitDocuments separates newline-delimited JSON documents. A payload that
// is a single document passes through untouched.
func splitDocuments(text string) []string {
	if !strings.Contains(text, "\n{") {
		return []string{text}
	}
	var docs []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && (line[0] == '{' || line[0] == '[') {
			docs = append(docs, line)
		}
	}
	return docs
}

// Envelope types peek one nesting level at a time with json.RawMessage so a
// malformed branch never discards siblings.

type searchEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type dataEnvelope struct {
	AdLibraryMain json.RawMessage `json:"ad_library_main"`
}

type mainEnvelope struct {
	SearchResults json.RawMessage `json:"search_results_connection"`
}

type connectionEnvelope struct {
	Edges []json.RawMessage `json:"edges"`
}

type edgeEnvelope struct {
	Node json.RawMessage `json:"node"`
}

type nodeEnvelope struct {
	CollatedResults []json.RawMessage `json:"collated_results"`
}

func (e *StructuredExtractor) extractDocument(data []byte) ([]ads.RawCandidate, error) {
	var envelope searchEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if len(envelope.Data) == 0 {
		return nil, nil
	}

	var dataEnv dataEnvelope
	if err := json.Unmarshal(envelope.Data, &dataEnv); err != nil || len(dataEnv.AdLibraryMain) == 0 {
		return nil, nil
	}

	var mainEnv mainEnvelope
	if err := json.Unmarshal(dataEnv.AdLibraryMain, &mainEnv); err != nil || len(mainEnv.SearchResults) == 0 {
		return nil, nil
	}

	var conn connectionEnvelope
	if err := json.Unmarshal(mainEnv.SearchResults, &conn); err != nil {
		return nil, nil
	}

	var candidates []ads.RawCandidate
	for _, rawEdge := range conn.Edges {
		var edge edgeEnvelope
		if err := json.Unmarshal(rawEdge, &edge); err != nil || len(edge.Node) == 0 {
			continue
		}
		var node nodeEnvelope
		if err := json.Unmarshal(edge.Node, &node); err != nil {
			continue
		}
		for _, rawResult := range node.CollatedResults {
			if candidate := e.extractResult(rawResult); candidate != nil {
				candidates = append(candidates, candidate)
			}
		}
	}
	return candidates, nil
}

// collatedResult is the per-ad leaf of the search payload. Field types vary
// across upstream versions, hence json.RawMessage for anything unstable.
type collatedResult struct {
	AdArchiveID       json.RawMessage `json:"ad_archive_id"`
	ID                json.RawMessage `json:"id"`
	PageName          string          `json:"page_name"`
	PageID            json.RawMessage `json:"page_id"`
	StartDate         json.RawMessage `json:"start_date"`
	EndDate           json.RawMessage `json:"end_date"`
	IsActive          json.RawMessage `json:"is_active"`
	PublisherPlatform json.RawMessage `json:"publisher_platform"`
	TargetedCountries []string        `json:"targeted_or_reached_countries"`
	Snapshot          json.RawMessage `json:"snapshot"`
}

type snapshot struct {
	Body     json.RawMessage `json:"body"`
	Title    string          `json:"title"`
	CTAText  string          `json:"cta_text"`
	PageName string          `json:"page_name"`
	LinkURL  string          `json:"link_url"`
	Videos   []snapshotVideo `json:"videos"`
	Images   []snapshotImage `json:"images"`
	Cards    []snapshotCard  `json:"cards"`
}

type snapshotVideo struct {
	VideoHDURL      string `json:"video_hd_url"`
	VideoSDURL      string `json:"video_sd_url"`
	PreviewImageURL string `json:"video_preview_image_url"`
}

type snapshotImage struct {
	OriginalImageURL string `json:"original_image_url"`
	ResizedImageURL  string `json:"resized_image_url"`
}

type snapshotCard struct {
	OriginalImageURL string `json:"original_image_url"`
	ResizedImageURL  string `json:"resized_image_url"`
	Body             string `json:"body"`
	Title            string `json:"title"`
}

func (e *StructuredExtractor) extractResult(raw json.RawMessage) ads.RawCandidate {
	var result collatedResult
	if err := json.Unmarshal(raw, &result); err != nil {
		e.logger.Debug().Err(err).Msg("extract: skipping malformed collated result")
		return nil
	}

	candidate := ads.RawCandidate{}

	// Natural key: ad_archive_id, then id, then a generated fallback so the
	// record is still traceable through the run.
	externalID := rawString(result.AdArchiveID)
	if externalID == "" {
		externalID = rawString(result.ID)
	}
	if externalID == "" {
		externalID = fmt.Sprintf("gen_%d", e.now().UnixNano())
	}
	candidate["ad_archive_id"] = externalID

	if result.PageName != "" {
		candidate["page_name"] = result.PageName
	}
	if pageID := rawString(result.PageID); pageID != "" {
		candidate["page_id"] = pageID
	}
	if start := rawString(result.StartDate); start != "" {
		candidate["start_date"] = start
	}
	if end := rawString(result.EndDate); end != "" {
		candidate["end_date"] = end
	}
	if len(result.IsActive) > 0 && string(result.IsActive) != "null" {
		var active bool
		if err := json.Unmarshal(result.IsActive, &active); err == nil {
			candidate["is_active"] = active
		}
	}
	if platform := firstStringOf(result.PublisherPlatform); platform != "" {
		candidate["publisher_platform"] = strings.ToLower(platform)
	}
	if len(result.TargetedCountries) > 0 {
		candidate["countries"] = result.TargetedCountries
	}

	e.applySnapshot(candidate, result.Snapshot)
	return candidate
}

// applySnapshot merges creative fields. Media URL priority is fixed: video
// HD URL, then first image, then first carousel card image.
func (e *StructuredExtractor) applySnapshot(candidate ads.RawCandidate, raw json.RawMessage) {
	if len(raw) == 0 || string(raw) == "null" {
		return
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		e.logger.Debug().Err(err).Msg("extract: skipping malformed snapshot")
		return
	}

	if body := snapshotBodyText(snap.Body); body != "" {
		candidate["primary_text"] = body
	}
	if snap.Title != "" {
		candidate["headline"] = snap.Title
	}
	if snap.CTAText != "" {
		candidate["cta_text"] = snap.CTAText
	}
	if _, ok := candidate["page_name"]; !ok && snap.PageName != "" {
		candidate["page_name"] = snap.PageName
	}

	candidate["video_count"] = len(snap.Videos)
	candidate["card_count"] = len(snap.Cards)

	switch {
	case len(snap.Videos) > 0 && snap.Videos[0].VideoHDURL != "":
		candidate["media_url"] = snap.Videos[0].VideoHDURL
	case len(snap.Videos) > 0 && snap.Videos[0].VideoSDURL != "":
		candidate["media_url"] = snap.Videos[0].VideoSDURL
	case len(snap.Images) > 0:
		if url := firstNonEmpty(snap.Images[0].OriginalImageURL, snap.Images[0].ResizedImageURL); url != "" {
			candidate["media_url"] = url
		}
	case len(snap.Cards) > 0:
		if url := firstNonEmpty(snap.Cards[0].OriginalImageURL, snap.Cards[0].ResizedImageURL); url != "" {
			candidate["media_url"] = url
		}
	}

	// Carousel cards carry their own copy; use the first card's when the
	// top-level snapshot is bare.
	if _, ok := candidate["primary_text"]; !ok && len(snap.Cards) > 0 && snap.Cards[0].Body != "" {
		candidate["primary_text"] = snap.Cards[0].Body
	}
	if _, ok := candidate["headline"]; !ok && len(snap.Cards) > 0 && snap.Cards[0].Title != "" {
		candidate["headline"] = snap.Cards[0].Title
	}
}

// snapshotBodyText handles body as {"text":"..."} or a plain string.
func snapshotBodyText(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var obj struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Text != "" {
		return obj.Text
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// rawString extracts a string from a value that may be a JSON string or
// number (ids and unix dates flip between the two upstream).
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

// firstStringOf handles a value that may be a plain string or an array of
// strings, returning the first entry.
func firstStringOf(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var arr []string
	if err := json.Unmarshal(raw, &arr); err == nil && len(arr) > 0 {
		return arr[0]
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
