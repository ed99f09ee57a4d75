package harvest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/rs/zerolog"
	"github.com/temoto/robotstxt"

	"github.com/adscope/harvester/internal/domain/ads"
	"github.com/adscope/harvester/internal/retry"
)

const staticUserAgent = "Mozilla/5.0 (compatible; adscope-harvester/1.0)"

// StaticDriver is the no-browser fallback: it fetches the rendered library
// page once per target and hands the markup to the extractor. It yields a
// single pagination step, since the library only renders the first result
// page without JavaScript.
type StaticDriver struct {
	logger zerolog.Logger
}

func NewStaticDriver(logger zerolog.Logger) *StaticDriver {
	return &StaticDriver{logger: logger}
}

// MarkupExtractor adapts a text/markup extractor to the payload interface
// the controller consumes.
type MarkupExtractor struct {
	Inner interface {
		Extract(content string) []ads.RawCandidate
	}
}

func (m MarkupExtractor) Extract(payload []byte) []ads.RawCandidate {
	return m.Inner.Extract(string(payload))
}

func (d *StaticDriver) Open(ctx context.Context, target Target) (Session, error) {
	pageURL := libraryURL(target)

	allowed, err := allowedByRobots(ctx, pageURL, staticUserAgent)
	if err != nil {
		d.logger.Debug().Err(err).Msg("harvest: robots.txt unavailable, proceeding")
	} else if !allowed {
		return nil, retry.Classified(retry.ClassPermission,
			fmt.Errorf("robots.txt disallows fetching %s", pageURL))
	}

	collector := colly.NewCollector(
		colly.UserAgent(staticUserAgent),
		colly.MaxDepth(1),
	)
	collector.SetRequestTimeout(30 * time.Second)

	var body []byte
	var fetchErr error
	collector.OnResponse(func(r *colly.Response) {
		body = r.Body
	})
	collector.OnError(func(r *colly.Response, err error) {
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		fetchErr = retry.Classified(retry.ClassifyStatus(status),
			fmt.Errorf("fetch %s: %w", pageURL, err))
	})

	if err := collector.Visit(pageURL); err != nil {
		return nil, retry.Classified(retry.ClassTransient, fmt.Errorf("visit %s: %w", pageURL, err))
	}
	collector.Wait()

	if fetchErr != nil {
		return nil, fetchErr
	}
	if len(body) == 0 {
		return nil, retry.Classified(retry.ClassTransient, fmt.Errorf("empty response from %s", pageURL))
	}

	return &staticSession{payload: body}, nil
}

// allowedByRobots fetches the site's robots.txt and tests the page path.
func allowedByRobots(ctx context.Context, pageURL, userAgent string) (bool, error) {
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return false, err
	}
	robotsURL := parsed.Scheme + "://" + parsed.Host + "/robots.txt"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false, err
	}
	defer func() { _ = resp.Body.Close() }()

	robots, err := robotstxt.FromResponse(resp)
	if err != nil {
		return false, err
	}
	return robots.FindGroup(userAgent).Test(parsed.Path), nil
}

type staticSession struct {
	payload []byte
	served  bool
}

func (s *staticSession) LoadMore(ctx context.Context) ([][]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	if s.served {
		return nil, false, nil
	}
	s.served = true
	return [][]byte{s.payload}, false, nil
}

func (s *staticSession) Close() error { return nil }
