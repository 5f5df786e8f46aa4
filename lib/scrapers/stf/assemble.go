package stf

import (
	"context"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-art3mis/judex-mini/lib/textutil"
)

// Assemble runs every registered extractor against one case page and
// folds their outcomes into a schema-closed record plus provenance
// metadata. It either completes all extractors or fails the whole
// identifier with a PageStructureError; no partial record escapes.
//
// The clock is a parameter so re-assembling an unchanged DOM at the
// same instant produces a byte-identical record.
func Assemble(
	ctx context.Context,
	doc *goquery.Document,
	id CaseIdentifier,
	now time.Time,
	retriesUsed int,
) (CaseRecord, Meta, error) {
	ctx, span := tracer.Start(ctx, "Assemble")
	defer span.End()
	span.SetAttributes(attribute.String("case", id.String()))

	if err := checkCasePage(doc); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "not a case-status page")
		return CaseRecord{}, Meta{}, err
	}

	rec := CaseRecord{
		// identity comes from the iteration, not the page; the page
		// renders it inconsistently across class variants
		Classe:     strPtr(id.Class),
		ProcessoID: intPtr(id.Number),

		// rendered behind tabs the scraper does not open
		SessaoVirtual: []SessaoVirtual{},
		Pautas:        []SessaoVirtual{},

		Status:   200,
		Extraido: now.UTC().Format(time.RFC3339),
	}

	meta := Meta{
		Identifier:  id,
		ExtractedAt: now,
		RetriesUsed: retriesUsed,
	}

	for _, ex := range extractors {
		outcome := ex.run(doc, &rec)
		if outcome.Err != nil {
			slog.WarnContext(ctx, "field extraction diagnostic",
				"case", id.String(), "field", ex.name, "err", outcome.Err)
		}
		if outcome.Absent {
			meta.AbsentFields = append(meta.AbsentFields, ex.name)
		}
	}

	if html, err := doc.Html(); err == nil {
		rec.HTML = normalizeHTML(html)
	}

	span.SetAttributes(attribute.Int("absent_fields", len(meta.AbsentFields)))
	return rec, meta, nil
}

// normalizeHTML collapses whitespace in the archived page source so
// two renders of the same content hash identically.
func normalizeHTML(html string) string {
	return textutil.NormalizeSpaces(html)
}
