// Package pipeline drives a full scrape run: iterate a case range,
// navigate each identifier, assemble and validate its record, append
// it to the exports, and journal the outcome. Identifiers fail
// independently; only setup errors abort the run.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-art3mis/judex-mini/lib/browser"
	"github.com/noah-art3mis/judex-mini/lib/export"
	"github.com/noah-art3mis/judex-mini/lib/runlog"
	"github.com/noah-art3mis/judex-mini/lib/scrapers/stf"
	"github.com/noah-art3mis/judex-mini/lib/telemetry"
)

var tracer = telemetry.Tracer("judex.pipeline")

// DefaultBaseURL is the portal root; identifiers build their own
// case-status path on top of it.
const DefaultBaseURL = stf.PortalBaseURL

// caseMarker is the element whose presence means the case-status
// page finished rendering.
const caseMarker = "#conteudo"

// Config is everything one run needs. Zero values get filled in by
// Run: base URL, retry policy, clock and journal path all have
// working defaults.
type Config struct {
	Range     stf.Range
	BaseURL   string
	OutputDir string
	Format    export.Format
	Overwrite bool
	Policy    browser.RetryPolicy
	// MissingSweeps bounds how many times identifiers without a
	// successful outcome are re-processed after the main pass.
	MissingSweeps int
	// JournalPath defaults to an in-memory journal, which still
	// powers the retry sweeps within the run.
	JournalPath string
	// Clock is swappable for reproducible records in tests.
	Clock func() time.Time
}

// Report is what a finished run hands back to the CLI.
type Report struct {
	Summary runlog.Summary
	// Outputs lists every file the run produced.
	Outputs []string
	Elapsed time.Duration
}

// Runner executes runs against one navigator.
type Runner struct {
	factory browser.Factory
	cfg     Config
}

func NewRunner(factory browser.Factory, cfg Config) *Runner {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Policy == (browser.RetryPolicy{}) {
		cfg.Policy = browser.DefaultRetryPolicy()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.JournalPath == "" {
		cfg.JournalPath = ":memory:"
	}
	if cfg.Format == "" {
		cfg.Format = export.FormatJSON
	}
	return &Runner{factory: factory, cfg: cfg}
}

// Run processes the whole range, then sweeps identifiers that still
// have no successful outcome. The summary table is rendered to out.
func (r *Runner) Run(ctx context.Context, out io.Writer) (Report, error) {
	ctx, span := tracer.Start(ctx, "Run")
	defer span.End()
	span.SetAttributes(
		attribute.String("range", fmt.Sprintf("%s %d-%d", r.cfg.Range.Class, r.cfg.Range.First, r.cfg.Range.Last)),
	)

	// conflicts surface before any page is loaded, so a refused run
	// costs no portal traffic
	var writers []*export.Writer
	for _, format := range r.cfg.Format.Formats() {
		w, err := export.NewWriter(r.cfg.OutputDir, r.cfg.Range, format, r.cfg.Overwrite)
		if err != nil {
			return Report{}, err
		}
		writers = append(writers, w)
	}

	journal, err := runlog.Open(ctx, r.cfg.JournalPath)
	if err != nil {
		return Report{}, err
	}
	defer journal.Close()

	timer := NewTimer(r.cfg.Clock)

	slog.InfoContext(ctx, "starting run",
		"class", r.cfg.Range.Class,
		"first", r.cfg.Range.First,
		"last", r.cfg.Range.Last,
		"cases", r.cfg.Range.Len())

	if err := r.processAll(ctx, r.cfg.Range.Identifiers(), writers, journal, timer); err != nil {
		return Report{}, err
	}

	for sweep := 1; sweep <= r.cfg.MissingSweeps; sweep++ {
		missing, err := journal.Missing(ctx, r.cfg.Range)
		if err != nil {
			return Report{}, err
		}
		if len(missing) == 0 {
			break
		}
		slog.InfoContext(ctx, "retrying unfinished cases",
			"sweep", sweep, "remaining", len(missing))
		if err := r.processAll(ctx, missing, writers, journal, timer); err != nil {
			return Report{}, err
		}
	}

	summary, err := journal.Summary(ctx)
	if err != nil {
		return Report{}, err
	}

	report := Report{Summary: summary, Elapsed: timer.Elapsed()}
	for _, w := range writers {
		report.Outputs = append(report.Outputs, w.Path())
	}
	if out != nil {
		timer.RenderSummary(out, summary.Succeeded, summary.Failed)
	}

	span.SetAttributes(
		attribute.Int("succeeded", summary.Succeeded),
		attribute.Int("failed", summary.Failed),
	)
	return report, nil
}

func (r *Runner) processAll(
	ctx context.Context,
	ids []stf.CaseIdentifier,
	writers []*export.Writer,
	journal *runlog.Store,
	timer *Timer,
) error {
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return err
		}

		started := r.cfg.Clock()
		retries, caseErr := r.processOne(ctx, id, writers)
		duration := r.cfg.Clock().Sub(started)
		timer.Observe(duration)

		outcome := runlog.Outcome{
			Identifier: id,
			OK:         caseErr == nil,
			Retries:    retries,
			Duration:   duration,
			FinishedAt: r.cfg.Clock(),
		}
		if caseErr != nil {
			outcome.Error = caseErr.Error()
			slog.WarnContext(ctx, "case failed",
				"case", id.String(), "err", caseErr)
		} else {
			slog.InfoContext(ctx, "case finished",
				"case", id.String(), "retries", retries, "duration", duration)
		}
		if err := journal.Record(ctx, outcome); err != nil {
			return err
		}
	}
	return nil
}

// processOne takes one identifier from URL to appended record. Its
// error is a per-case outcome, not a run failure.
func (r *Runner) processOne(ctx context.Context, id stf.CaseIdentifier, writers []*export.Writer) (int, error) {
	ctx, span := tracer.Start(ctx, "processOne")
	defer span.End()
	span.SetAttributes(attribute.String("case", id.String()))

	doc, retries, err := browser.Navigate(
		ctx, r.factory, id.URL(r.cfg.BaseURL), caseMarker, r.cfg.Policy, stf.CheckLoadedPage)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "navigation failed")
		return retries, err
	}

	rec, _, err := stf.Assemble(ctx, doc, id, r.cfg.Clock(), retries)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "assembly failed")
		return retries, err
	}

	if result := stf.Validate(rec); !result.Accepted {
		err := &stf.ValidationRejectedError{Identifier: id, Violations: result.Violations}
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation rejected")
		return retries, err
	}

	for _, w := range writers {
		if err := w.Append(rec); err != nil {
			return retries, fmt.Errorf("append %s: %w", id, err)
		}
	}
	return retries, nil
}
