package browser

import (
	"bytes"
	"context"
	"fmt"
	"net/http/cookiejar"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"

	"github.com/noah-art3mis/judex-mini/lib/telemetry"
)

// HTTPFactory serves sessions that fetch the page over plain HTTP
// instead of driving a browser. The portal renders the summary panes
// server side, so for most case classes this is a much cheaper path;
// script-filled panes simply come back absent.
type HTTPFactory struct {
	client *resty.Client
}

type HTTPOptions struct {
	UserAgent string
	Timeout   time.Duration
}

func NewHTTPFactory(opts HTTPOptions) (*HTTPFactory, error) {
	client := resty.New()
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	if opts.UserAgent != "" {
		client.SetHeader("user-agent", opts.UserAgent)
	}
	timeout := opts.Timeout
	if timeout == 0 {
		timeout = time.Second * 30
	}
	client.SetTimeout(timeout)

	telemetry.InstrumentResty(client, "judex.browser.http")

	return &HTTPFactory{client: client}, nil
}

func (f *HTTPFactory) Acquire(ctx context.Context) (Session, error) {
	return &httpSession{client: f.client}, nil
}

type httpSession struct {
	client *resty.Client
	doc    *goquery.Document
}

func (s *httpSession) Load(ctx context.Context, url string) error {
	res, err := s.client.R().
		SetContext(ctx).
		Get(url)
	if err != nil {
		return err
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		return err
	}
	s.doc = doc
	return nil
}

// WaitFor on a static fetch is a plain existence check; there is no
// render to wait for.
func (s *httpSession) WaitFor(_ context.Context, selector string, _ time.Duration) bool {
	return s.doc != nil && s.doc.Find(selector).Length() > 0
}

func (s *httpSession) DOM(_ context.Context) (*goquery.Document, error) {
	if s.doc == nil {
		return nil, fmt.Errorf("no page loaded")
	}
	return s.doc, nil
}

func (s *httpSession) Close() error {
	s.doc = nil
	return nil
}
