package browser

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

// stubFactory fails Load a configured number of times before serving
// the page, and records how many sessions were created.
type stubFactory struct {
	failures int
	html     string

	acquired int
	closed   int
}

func (f *stubFactory) Acquire(ctx context.Context) (Session, error) {
	f.acquired++
	return &stubSession{factory: f}, nil
}

type stubSession struct {
	factory *stubFactory
	doc     *goquery.Document
}

func (s *stubSession) Load(ctx context.Context, url string) error {
	if s.factory.failures > 0 {
		s.factory.failures--
		return errors.New("transient: empty response")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s.factory.html))
	if err != nil {
		return err
	}
	s.doc = doc
	return nil
}

func (s *stubSession) WaitFor(_ context.Context, selector string, _ time.Duration) bool {
	return s.doc != nil && s.doc.Find(selector).Length() > 0
}

func (s *stubSession) DOM(context.Context) (*goquery.Document, error) {
	return s.doc, nil
}

func (s *stubSession) Close() error {
	s.factory.closed++
	return nil
}

func fastPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:  maxRetries,
		Backoff:     BackoffFixed,
		Delay:       time.Millisecond,
		WaitTimeout: time.Millisecond,
	}
}

const casePage = `<html><body><div id="conteudo">ok</div></body></html>`

func TestNavigateFirstTry(t *testing.T) {
	factory := &stubFactory{html: casePage}

	doc, retries, err := Navigate(context.Background(), factory, "http://x", "#conteudo", fastPolicy(5), nil)
	require.NoError(t, err)
	require.Equal(t, 0, retries)
	require.Equal(t, 1, doc.Find("#conteudo").Length())
	require.Equal(t, 1, factory.acquired)
}

func TestNavigateRecoversWithinBudget(t *testing.T) {
	const k = 3
	factory := &stubFactory{failures: k, html: casePage}

	doc, retries, err := Navigate(context.Background(), factory, "http://x", "#conteudo", fastPolicy(5), nil)
	require.NoError(t, err)
	require.Equal(t, k, retries)
	require.NotNil(t, doc)
	// a fresh session per attempt, every one torn down
	require.Equal(t, k+1, factory.acquired)
	require.Equal(t, k+1, factory.closed)
}

func TestNavigateExhaustsBudget(t *testing.T) {
	const k = 3
	factory := &stubFactory{failures: k, html: casePage}

	_, retries, err := Navigate(context.Background(), factory, "http://x", "#conteudo", fastPolicy(k-1), nil)
	var exhausted *NavigationExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, k-1, retries)
	require.Equal(t, "http://x", exhausted.URL)
	require.Equal(t, k, exhausted.Attempts)
	require.Contains(t, exhausted.Last.Error(), "transient")
	// every attempted session was still released
	require.Equal(t, factory.acquired, factory.closed)
}

func TestNavigateMissingMarker(t *testing.T) {
	factory := &stubFactory{html: `<html><body><h1>wrong page</h1></body></html>`}

	_, _, err := Navigate(context.Background(), factory, "http://x", "#conteudo", fastPolicy(1), nil)
	var exhausted *NavigationExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.ErrorIs(t, err, errMarkerNotFound)
}

func TestNavigatePageCheckRetries(t *testing.T) {
	factory := &stubFactory{html: casePage}
	calls := 0
	check := func(doc *goquery.Document) error {
		calls++
		if calls == 1 {
			return errors.New("403 Forbidden")
		}
		return nil
	}

	_, retries, err := Navigate(context.Background(), factory, "http://x", "#conteudo", fastPolicy(3), check)
	require.NoError(t, err)
	require.Equal(t, 1, retries)
	require.Equal(t, 2, calls)
}

func TestNavigateContextCancelled(t *testing.T) {
	factory := &stubFactory{failures: 100, html: casePage}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	policy := fastPolicy(5)
	policy.Delay = time.Second
	_, _, err := Navigate(ctx, factory, "http://x", "#conteudo", policy, nil)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRetryPolicyDelays(t *testing.T) {
	fixed := RetryPolicy{Backoff: BackoffFixed, Delay: time.Second}
	require.Equal(t, time.Second, fixed.delay(1))
	require.Equal(t, time.Second, fixed.delay(4))

	exp := RetryPolicy{Backoff: BackoffExponential, Delay: time.Second, MaxDelay: 10 * time.Second}
	require.Equal(t, time.Second, exp.delay(1))
	require.Equal(t, 2*time.Second, exp.delay(2))
	require.Equal(t, 4*time.Second, exp.delay(3))
	require.Equal(t, 10*time.Second, exp.delay(10))
}

func TestRetryPolicyJitterBounded(t *testing.T) {
	p := RetryPolicy{Backoff: BackoffFixed, Delay: time.Second, Jitter: true}
	for i := 0; i < 20; i++ {
		d := p.delay(1)
		require.GreaterOrEqual(t, d, time.Second)
		require.Less(t, d, time.Second+600*time.Millisecond)
	}
}
