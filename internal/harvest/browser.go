package harvest

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog"

	"github.com/adscope/harvester/internal/config"
	"github.com/adscope/harvester/internal/retry"
)

const adLibraryBase = "https://www.facebook.com/ads/library/"

// BrowserDriver opens live ad library pages through a remote DevTools
// endpoint and captures the graphql responses the page makes while
// scrolling. The structured extractor parses the captured payloads.
type BrowserDriver struct {
	cfg    config.BrowserConfig
	logger zerolog.Logger
}

func NewBrowserDriver(cfg config.BrowserConfig, logger zerolog.Logger) *BrowserDriver {
	return &BrowserDriver{cfg: cfg, logger: logger}
}

func (d *BrowserDriver) Open(ctx context.Context, target Target) (Session, error) {
	if d.cfg.ControlURL == "" {
		return nil, retry.Classified(retry.ClassUnknown,
			fmt.Errorf("browser harvesting disabled: no control URL configured"))
	}

	browser := rod.New().ControlURL(d.cfg.ControlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, retry.Classified(retry.ClassTransient, fmt.Errorf("connect browser: %w", err))
	}

	page, err := stealth.Page(browser)
	if err != nil {
		_ = browser.Close()
		return nil, retry.Classified(retry.ClassTransient, fmt.Errorf("open stealth page: %w", err))
	}

	session := &browserSession{
		cfg:     d.cfg,
		browser: browser,
		page:    page,
		logger:  d.logger.With().Str("target", target.Name).Logger(),
	}
	session.intercept()

	if err := page.Timeout(d.cfg.NavTimeout).Navigate(libraryURL(target)); err != nil {
		_ = session.Close()
		return nil, retry.Classified(retry.ClassTransient, fmt.Errorf("navigate: %w", err))
	}
	if err := page.Timeout(d.cfg.NavTimeout).WaitLoad(); err != nil {
		_ = session.Close()
		return nil, retry.Classified(retry.ClassTransient, fmt.Errorf("wait for page load: %w", err))
	}

	return session, nil
}

// libraryURL builds the public search URL for a target. Page targets pin
// view_all_page_id; term targets use the q parameter.
func libraryURL(target Target) string {
	query := url.Values{}
	query.Set("active_status", "active")
	query.Set("ad_type", "all")
	country := target.Country
	if country == "" {
		country = "ALL"
	}
	query.Set("country", country)
	if target.PageID != "" {
		query.Set("view_all_page_id", target.PageID)
	} else {
		query.Set("q", target.Term)
		query.Set("search_type", "keyword_unordered")
	}
	return adLibraryBase + "?" + query.Encode()
}

type browserSession struct {
	cfg     config.BrowserConfig
	browser *rod.Browser
	page    *rod.Page
	router  *rod.HijackRouter
	logger  zerolog.Logger

	mu       sync.Mutex
	captured [][]byte
	scrolls  int
	idle     int
}

// intercept captures graphql XHR responses. The page streams search results
// through graphql as the user scrolls; everything else passes through.
func (s *browserSession) intercept() {
	s.router = s.page.HijackRequests()
	s.router.MustAdd("*/api/graphql/*", func(h *rod.Hijack) {
		if h.Request.Type() != proto.NetworkResourceTypeXHR {
			h.ContinueRequest(&proto.FetchContinueRequest{})
			return
		}
		if err := h.LoadResponse(http.DefaultClient, true); err != nil {
			s.logger.Debug().Err(err).Msg("harvest: failed to load intercepted response")
			return
		}
		body := h.Response.Body()
		if body == "" {
			return
		}
		s.mu.Lock()
		s.captured = append(s.captured, []byte(body))
		s.mu.Unlock()
	})
	go s.router.Run()
}

// LoadMore scrolls one step, waits for the page to fetch, and drains the
// captured payloads. The stream ends after the scroll ceiling or when three
// consecutive scrolls produce nothing new.
func (s *browserSession) LoadMore(ctx context.Context) ([][]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	if _, err := s.page.Eval(`() => window.scrollBy(0, window.innerHeight * 2)`); err != nil {
		return nil, false, retry.Classified(retry.ClassTransient, fmt.Errorf("scroll: %w", err))
	}
	s.scrolls++

	select {
	case <-ctx.Done():
		return nil, false, ctx.Err()
	case <-time.After(s.cfg.ScrollDelay):
	}

	s.mu.Lock()
	payloads := s.captured
	s.captured = nil
	s.mu.Unlock()

	if len(payloads) == 0 {
		s.idle++
	} else {
		s.idle = 0
	}

	more := s.scrolls < s.cfg.MaxScrolls && s.idle < 3
	return payloads, more, nil
}

func (s *browserSession) Close() error {
	if s.router != nil {
		_ = s.router.Stop()
	}
	if s.page != nil {
		_ = s.page.Close()
	}
	if s.browser != nil {
		return s.browser.Close()
	}
	return nil
}
