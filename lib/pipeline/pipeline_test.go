package pipeline

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/noah-art3mis/judex-mini/lib/browser"
	"github.com/noah-art3mis/judex-mini/lib/export"
	"github.com/noah-art3mis/judex-mini/lib/groundtruth"
	"github.com/noah-art3mis/judex-mini/lib/scrapers/stf"
)

// fixtureFactory replays canned page sources instead of driving a
// real browser. Load failures are injected by count.
type fixtureFactory struct {
	html     string
	failures int
	loads    int
}

func (f *fixtureFactory) Acquire(ctx context.Context) (browser.Session, error) {
	return &fixtureSession{factory: f}, nil
}

type fixtureSession struct {
	factory *fixtureFactory
	doc     *goquery.Document
}

func (s *fixtureSession) Load(ctx context.Context, url string) error {
	s.factory.loads++
	if s.factory.failures > 0 {
		s.factory.failures--
		return errors.New("transient: connection reset")
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s.factory.html))
	if err != nil {
		return err
	}
	s.doc = doc
	return nil
}

func (s *fixtureSession) WaitFor(_ context.Context, selector string, _ time.Duration) bool {
	return s.doc != nil && s.doc.Find(selector).Length() > 0
}

func (s *fixtureSession) DOM(context.Context) (*goquery.Document, error) {
	return s.doc, nil
}

func (s *fixtureSession) Close() error {
	s.doc = nil
	return nil
}

func fixtureHTML(t *testing.T) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("..", "scrapers", "stf", "testdata", "AI_772309.html"))
	require.NoError(t, err)
	return string(raw)
}

func fixedClock() time.Time {
	return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
}

func fastPolicy(maxRetries int) browser.RetryPolicy {
	return browser.RetryPolicy{
		MaxRetries:  maxRetries,
		Backoff:     browser.BackoffFixed,
		Delay:       time.Millisecond,
		WaitTimeout: time.Millisecond,
	}
}

func testConfig(t *testing.T, first, last int) Config {
	t.Helper()
	r, err := stf.NewRange("AI", first, last)
	require.NoError(t, err)
	return Config{
		Range:     r,
		OutputDir: t.TempDir(),
		Format:    export.FormatJSON,
		Policy:    fastPolicy(2),
		Clock:     fixedClock,
	}
}

func TestRunMatchesGroundTruth(t *testing.T) {
	factory := &fixtureFactory{html: fixtureHTML(t)}
	cfg := testConfig(t, 772309, 772309)

	var out bytes.Buffer
	report, err := NewRunner(factory, cfg).Run(context.Background(), &out)
	require.NoError(t, err)
	require.Equal(t, 1, report.Summary.Total)
	require.Equal(t, 1, report.Summary.Succeeded)
	require.Equal(t, 0, report.Summary.Failed)
	require.Len(t, report.Outputs, 1)

	records, err := export.ReadRecords(report.Outputs[0])
	require.NoError(t, err)
	require.Len(t, records, 1)

	res, err := groundtruth.Test(
		filepath.Join("testdata", "ground_truth"),
		stf.CaseIdentifier{Class: "AI", Number: 772309},
		records[0],
	)
	require.NoError(t, err)
	for field, diff := range res.Diffs {
		t.Logf("field %s:\n%s", field, diff)
	}
	require.Equal(t, groundtruth.StatusPassed, res.Status)

	// the summary table reached the caller's writer
	require.Contains(t, out.String(), "Succeeded")
}

func TestRunRecordIsReproducible(t *testing.T) {
	html := fixtureHTML(t)
	cfg := testConfig(t, 772309, 772309)

	runOnce := func(dir string) stf.CaseRecord {
		c := cfg
		c.OutputDir = dir
		report, err := NewRunner(&fixtureFactory{html: html}, c).Run(context.Background(), nil)
		require.NoError(t, err)
		records, err := export.ReadRecords(report.Outputs[0])
		require.NoError(t, err)
		require.Len(t, records, 1)
		return records[0]
	}

	first := runOnce(t.TempDir())
	second := runOnce(t.TempDir())
	require.Equal(t, first, second)
	require.Equal(t, "2024-05-01T12:00:00Z", first.Extraido)
}

func TestRunJournalsFailure(t *testing.T) {
	// a permanently failing identifier fails the case, not the run
	factory := &fixtureFactory{html: fixtureHTML(t), failures: 1 << 20}
	cfg := testConfig(t, 772309, 772309)
	cfg.Policy = fastPolicy(1)

	report, err := NewRunner(factory, cfg).Run(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, report.Summary.Total)
	require.Equal(t, 1, report.Summary.Failed)
}

func TestRunNotFoundPageFails(t *testing.T) {
	notFound := `<html><body><div id="conteudo">Processo não encontrado</div></body></html>`
	factory := &fixtureFactory{html: notFound}
	cfg := testConfig(t, 772309, 772309)
	cfg.Policy = fastPolicy(1)

	report, err := NewRunner(factory, cfg).Run(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, report.Summary.Failed)
	// a failed identifier writes nothing to the export
	_, statErr := os.Stat(report.Outputs[0])
	require.True(t, os.IsNotExist(statErr))
}

func TestRunRetrySweepRecovers(t *testing.T) {
	// one poisoned load, zero in-navigation retries: only the sweep
	// can save the identifier
	factory := &fixtureFactory{html: fixtureHTML(t), failures: 1}
	cfg := testConfig(t, 772309, 772309)
	cfg.Policy = fastPolicy(0)
	cfg.MissingSweeps = 2

	report, err := NewRunner(factory, cfg).Run(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 1, report.Summary.Total)
	require.Equal(t, 1, report.Summary.Succeeded)
	require.Equal(t, 2, factory.loads)
}

func TestRunRefusesExistingOutput(t *testing.T) {
	factory := &fixtureFactory{html: fixtureHTML(t)}
	cfg := testConfig(t, 772309, 772310)

	existing := filepath.Join(cfg.OutputDir, export.BaseName(cfg.Range)+".json")
	require.NoError(t, os.WriteFile(existing, []byte("[]"), 0o644))

	_, err := NewRunner(factory, cfg).Run(context.Background(), nil)
	var conflict *export.ExportConflictError
	require.ErrorAs(t, err, &conflict)
	// refused before any portal traffic
	require.Equal(t, 0, factory.loads)
}

func TestRunAllFormats(t *testing.T) {
	factory := &fixtureFactory{html: fixtureHTML(t)}
	cfg := testConfig(t, 772309, 772309)
	cfg.Format = export.FormatAll

	report, err := NewRunner(factory, cfg).Run(context.Background(), nil)
	require.NoError(t, err)
	require.Len(t, report.Outputs, 3)
	for _, path := range report.Outputs {
		_, err := os.Stat(path)
		require.NoError(t, err)
	}
}
