package browser

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
)

// RodOptions mirror the Chrome flags the portal is scraped with. The
// window size and automation-controlled flag matter: the portal serves
// a degraded page to obvious headless defaults.
type RodOptions struct {
	UserAgent string
	Headless  bool
	// Bin overrides browser binary discovery, mainly for CI.
	Bin string
}

func DefaultRodOptions() RodOptions {
	return RodOptions{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/137.0.0.0 Safari/537.36",
		Headless:  true,
	}
}

// RodFactory launches one dedicated Chrome per session. Heavier than a
// shared browser with one page per session, but a crashed or blocked
// session then can't poison the next attempt.
type RodFactory struct {
	opts RodOptions
}

func NewRodFactory(opts RodOptions) *RodFactory {
	return &RodFactory{opts: opts}
}

func (f *RodFactory) Acquire(ctx context.Context) (Session, error) {
	l := launcher.New().
		Headless(f.opts.Headless).
		Set(flags.Flag("incognito")).
		Set(flags.Flag("disable-blink-features"), "AutomationControlled").
		Set(flags.Flag("window-size"), "920,600")
	if f.opts.Bin != "" {
		l = l.Bin(f.opts.Bin)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, err
	}

	b := rod.New().Context(ctx).ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, err
	}

	page, err := b.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		b.Close()
		l.Kill()
		return nil, err
	}
	if f.opts.UserAgent != "" {
		err = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: f.opts.UserAgent})
		if err != nil {
			b.Close()
			l.Kill()
			return nil, err
		}
	}

	return &rodSession{launcher: l, browser: b, page: page}, nil
}

type rodSession struct {
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

func (s *rodSession) Load(ctx context.Context, url string) error {
	page := s.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return err
	}
	return page.WaitLoad()
}

func (s *rodSession) WaitFor(ctx context.Context, selector string, timeout time.Duration) bool {
	// rod's Element blocks until the element exists; the timeout turns
	// that wait into a bounded one
	_, err := s.page.Context(ctx).Timeout(timeout).Element(selector)
	return err == nil
}

func (s *rodSession) DOM(ctx context.Context) (*goquery.Document, error) {
	html, err := s.page.Context(ctx).HTML()
	if err != nil {
		return nil, err
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func (s *rodSession) Close() error {
	var errs []error
	if err := s.page.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := s.browser.Close(); err != nil {
		errs = append(errs, err)
	}
	s.launcher.Kill()
	s.launcher.Cleanup()
	return errors.Join(errs...)
}
