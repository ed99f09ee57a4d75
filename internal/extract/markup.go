package extract

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/markusmobius/go-dateparser"
	"github.com/rs/zerolog"

	"github.com/adscope/harvester/internal/domain/ads"
	"github.com/adscope/harvester/internal/metrics"
)

// MarkupExtractor pulls ad candidates out of unstructured scraped content
// (markdown from external scrapers or server-rendered HTML). The grammar is
// deliberately loose: this code degrades gracefully over an adversarial,
// unversioned format instead of asserting structure it cannot rely on.
type MarkupExtractor struct {
	logger zerolog.Logger
}

func NewMarkupExtractor(logger zerolog.Logger) *MarkupExtractor {
	return &MarkupExtractor{logger: logger}
}

// Per-ad delimiter: the library renders one "Started running on <date>"
// marker per ad card.
var startedRunningRe = regexp.MustCompile(`(?i)started running on\s+([^\n·|]+)`)

var (
	libraryIDRe  = regexp.MustCompile(`(?i)library id[:\s]+(\d+)`)
	headingRe    = regexp.MustCompile(`(?m)^#{1,4}\s+(.+)$`)
	boldNameRe   = regexp.MustCompile(`\*\*([^*\n]{2,80})\*\*`)
	sponsoredRe  = regexp.MustCompile(`(?m)^(.{2,80})\n+Sponsored\b`)
	headlinePtRe = regexp.MustCompile(`(?im)^headline[:\s]+(.+)$`)
	mdImageRe    = regexp.MustCompile(`!\[[^\]]*\]\((https?://[^)\s]+)\)`)
	mediaLinkRe  = regexp.MustCompile(`https?://[^\s)"']+(?:fbcdn|video)[^\s)"']*`)
)

// Extract splits content into candidate blocks on the per-ad date markers
// and applies a fixed sequence of tolerant pattern extractions per block. A
// block is only emitted when at least one of page name, primary text, or
// headline was found; pure noise is dropped silently.
func (e *MarkupExtractor) Extract(content string) []ads.RawCandidate {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	if looksLikeHTML(content) {
		content = htmlToText(content)
	}

	markers := startedRunningRe.FindAllStringSubmatchIndex(content, -1)
	if len(markers) == 0 {
		return nil
	}

	var candidates []ads.RawCandidate
	dropped := 0
	for i, marker := range markers {
		blockStart := marker[0]
		blockEnd := len(content)
		if i+1 < len(markers) {
			blockEnd = markers[i+1][0]
		}
		// Include a little leading context: the page name usually renders
		// above the date marker.
		leadStart := blockStart - 400
		if i > 0 && markers[i-1][1] > leadStart {
			leadStart = markers[i-1][1]
		}
		if leadStart < 0 {
			leadStart = 0
		}

		block := content[leadStart:blockEnd]
		dateText := strings.TrimSpace(content[marker[2]:marker[3]])

		candidate := e.extractBlock(block, dateText)
		if candidate == nil {
			dropped++
			continue
		}
		candidates = append(candidates, candidate)
	}

	if dropped > 0 {
		e.logger.Debug().Int("dropped", dropped).Int("kept", len(candidates)).
			Msg("extract: markup blocks dropped as noise")
	}
	metrics.AdsExtracted.WithLabelValues("markup").Add(float64(len(candidates)))
	return candidates
}

func (e *MarkupExtractor) extractBlock(block, dateText string) ads.RawCandidate {
	candidate := ads.RawCandidate{}

	if id := firstMatch(libraryIDRe, block); id != "" {
		candidate["ad_library_id"] = id
	}

	// Page name: heading, then bold text, then the line preceding a
	// "Sponsored" label, in that order.
	pageName := firstMatch(headingRe, block)
	if pageName == "" {
		pageName = firstMatch(boldNameRe, block)
	}
	if pageName == "" {
		pageName = firstMatch(sponsoredRe, block)
	}
	if pageName != "" {
		candidate["page_name"] = strings.TrimSpace(pageName)
	}

	if parsed, err := dateparser.Parse(nil, dateText); err == nil && !parsed.Time.IsZero() {
		candidate["start_date"] = parsed.Time.UTC().Format("2006-01-02")
	}

	if headline := firstMatch(headlinePtRe, block); headline != "" {
		candidate["headline"] = strings.TrimSpace(headline)
	}
	if text := primaryTextFromBlock(block); text != "" {
		candidate["primary_text"] = text
	}

	if url := firstMatch(mdImageRe, block); url != "" {
		candidate["media_url"] = url
	} else if url := mediaLinkRe.FindString(block); url != "" {
		candidate["media_url"] = url
	}

	if candidate["page_name"] == nil && candidate["primary_text"] == nil && candidate["headline"] == nil {
		return nil
	}
	return candidate
}

// primaryTextFromBlock returns the first plain prose paragraph after the
// date marker: not a link, not an image, not a UI label.
func primaryTextFromBlock(block string) string {
	marker := startedRunningRe.FindStringIndex(block)
	rest := block
	if marker != nil {
		rest = block[marker[1]:]
	}
	for _, para := range strings.Split(rest, "\n") {
		line := strings.TrimSpace(para)
		if len(line) < 20 {
			continue
		}
		if strings.HasPrefix(line, "#") || strings.HasPrefix(line, "![") ||
			strings.HasPrefix(line, "http") || strings.HasPrefix(line, "[") {
			continue
		}
		if libraryIDRe.MatchString(line) || headlinePtRe.MatchString(line) {
			continue
		}
		return line
	}
	return ""
}

func firstMatch(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return ""
}

func looksLikeHTML(content string) bool {
	lower := strings.ToLower(content)
	return strings.Contains(lower, "<html") || strings.Contains(lower, "<body") ||
		strings.Contains(lower, "<div")
}

// htmlToText flattens server-rendered HTML into line-oriented text so the
// same block grammar applies to both scraped markdown and raw pages.
func htmlToText(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return content
	}
	doc.Find("script, style, noscript").Remove()
	var b strings.Builder
	doc.Find("body *").Each(func(_ int, s *goquery.Selection) {
		if s.Children().Length() > 0 {
			return
		}
		text := strings.TrimSpace(s.Text())
		if text != "" {
			b.WriteString(text)
			b.WriteByte('\n')
		}
	})
	if b.Len() == 0 {
		return doc.Text()
	}
	return b.String()
}
