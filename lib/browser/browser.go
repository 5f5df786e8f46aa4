// Package browser owns browser-session acquisition, per-navigation
// retry, and teardown. Extractors never see a session, only the
// immutable DOM snapshot a successful navigation returns.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"
	random "github.com/mazen160/go-random"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-art3mis/judex-mini/lib/telemetry"
)

var tracer = telemetry.Tracer("judex.browser")

// Session is one live page-loading context. Sessions are single-use
// per navigation attempt and never shared.
type Session interface {
	// Load navigates the session to url.
	Load(ctx context.Context, url string) error
	// WaitFor blocks until an element matching selector exists, or
	// the timeout passes. It reports whether the marker appeared.
	WaitFor(ctx context.Context, selector string, timeout time.Duration) bool
	// DOM snapshots the current page into a parsed document.
	DOM(ctx context.Context) (*goquery.Document, error)
	Close() error
}

// Factory acquires fresh sessions. A new session is created for every
// navigation attempt; a session that served a poisoned response is
// never reused.
type Factory interface {
	Acquire(ctx context.Context) (Session, error)
}

// Backoff selects the delay strategy between attempts.
type Backoff string

const (
	BackoffFixed       Backoff = "fixed"
	BackoffExponential Backoff = "exponential"
)

// RetryPolicy is the explicit knob set for Navigate. It exists as a
// value so the backoff strategy can change without touching the
// navigation loop.
type RetryPolicy struct {
	// MaxRetries is the number of attempts after the first.
	MaxRetries int
	Backoff    Backoff
	// Delay is the fixed delay, or the exponential base.
	Delay    time.Duration
	MaxDelay time.Duration
	Jitter   bool
	// WaitTimeout bounds the wait for the expected content marker.
	// Render time varies with how many movements a case has, so this
	// is the dominant tunable.
	WaitTimeout time.Duration
	// SettleDelay is slept after load before the marker wait, giving
	// the portal's scripts time to fill the summary panes.
	SettleDelay time.Duration
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:  5,
		Backoff:     BackoffExponential,
		Delay:       time.Second,
		MaxDelay:    10 * time.Second,
		Jitter:      true,
		WaitTimeout: 10 * time.Second,
		SettleDelay: time.Second,
	}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.Delay
	if p.Backoff == BackoffExponential {
		for i := 1; i < attempt; i++ {
			d *= 2
			if p.MaxDelay > 0 && d >= p.MaxDelay {
				d = p.MaxDelay
				break
			}
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter {
		ms, err := random.IntRange(0, 500)
		if err == nil {
			d += time.Duration(ms) * time.Millisecond
		}
	}
	return d
}

// NavigationExhaustedError reports that every attempt for one target
// failed. It carries the last underlying error.
type NavigationExhaustedError struct {
	URL      string
	Attempts int
	Last     error
}

func (e *NavigationExhaustedError) Error() string {
	return fmt.Sprintf("navigation to %s exhausted after %d attempts: %v", e.URL, e.Attempts, e.Last)
}

func (e *NavigationExhaustedError) Unwrap() error {
	return e.Last
}

// PageCheck inspects a loaded DOM for portal-specific failure
// responses; a non-nil error retries the navigation on a new session.
type PageCheck func(doc *goquery.Document) error

// Navigate produces a DOM snapshot for url, masking transient
// failures. Each attempt runs on a freshly acquired session which is
// always closed before the next one starts. Returns the snapshot and
// the number of retries consumed (0 when the first attempt succeeds).
func Navigate(
	ctx context.Context,
	factory Factory,
	url string,
	marker string,
	policy RetryPolicy,
	check PageCheck,
) (*goquery.Document, int, error) {
	ctx, span := tracer.Start(ctx, "Navigate")
	defer span.End()
	span.SetAttributes(attribute.String("url", url))

	attempts := policy.MaxRetries + 1
	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			wait := policy.delay(attempt - 1)
			slog.DebugContext(ctx, "retrying navigation",
				"url", url, "attempt", attempt, "delay", wait)
			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return nil, attempt - 1, ctx.Err()
			}
		}

		doc, err := attemptOnce(ctx, factory, url, marker, policy, check)
		if err == nil {
			span.SetAttributes(attribute.Int("retries", attempt-1))
			return doc, attempt - 1, nil
		}
		last = err
		slog.WarnContext(ctx, "navigation attempt failed",
			"url", url, "attempt", attempt, "err", err)
	}

	exhausted := &NavigationExhaustedError{URL: url, Attempts: attempts, Last: last}
	span.RecordError(exhausted)
	span.SetStatus(codes.Error, "retries exhausted")
	return nil, policy.MaxRetries, exhausted
}

var errMarkerNotFound = errors.New("expected content marker did not appear")

func attemptOnce(
	ctx context.Context,
	factory Factory,
	url string,
	marker string,
	policy RetryPolicy,
	check PageCheck,
) (*goquery.Document, error) {
	session, err := factory.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire session: %w", err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			slog.WarnContext(ctx, "session teardown failed", "err", err)
		}
	}()

	if err := session.Load(ctx, url); err != nil {
		return nil, fmt.Errorf("load: %w", err)
	}
	if policy.SettleDelay > 0 {
		select {
		case <-time.After(policy.SettleDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if marker != "" && !session.WaitFor(ctx, marker, policy.WaitTimeout) {
		return nil, errMarkerNotFound
	}

	doc, err := session.DOM(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot dom: %w", err)
	}
	if check != nil {
		if err := check(doc); err != nil {
			return nil, err
		}
	}
	return doc, nil
}
