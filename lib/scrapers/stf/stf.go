// Package stf scrapes case records from the STF case-tracking portal.
//
// The package is split the way the portal is: an identifier addresses
// one case page, a fixed set of independent field extractors pull
// values out of the rendered page, and an assembler folds their
// outcomes into a schema-closed record.
package stf

import (
	"fmt"
	"net/url"

	"github.com/noah-art3mis/judex-mini/lib/telemetry"
)

var tracer = telemetry.Tracer("judex.scrapers.stf")

// PortalBaseURL is the production portal root. Relative decision links
// inside movement rows are resolved against it.
const PortalBaseURL = "https://portal.stf.jus.br"

// CaseIdentifier addresses one case on the portal.
type CaseIdentifier struct {
	Class  string
	Number int
}

func (id CaseIdentifier) String() string {
	return fmt.Sprintf("%s %d", id.Class, id.Number)
}

// Key is the `{class}_{number}` form used for ground-truth fixture
// file names.
func (id CaseIdentifier) Key() string {
	return fmt.Sprintf("%s_%d", id.Class, id.Number)
}

// URL builds the case-status page address on the given portal base.
func (id CaseIdentifier) URL(baseURL string) string {
	return fmt.Sprintf(
		"%s/processos/listarProcessos.asp?classe=%s&numeroProcesso=%d",
		baseURL, url.QueryEscape(id.Class), id.Number,
	)
}

// InvalidRangeError reports an unusable case-number range.
type InvalidRangeError struct {
	Class string
	First int
	Last  int
	Why   string
}

func (e *InvalidRangeError) Error() string {
	return fmt.Sprintf("invalid case range %s %d-%d: %s", e.Class, e.First, e.Last, e.Why)
}

// Range is a finite, re-enumerable sequence of case identifiers,
// ascending and inclusive of both endpoints.
type Range struct {
	Class string
	First int
	Last  int
}

// NewRange validates bounds and the class code.
func NewRange(class string, first, last int) (Range, error) {
	if !ValidClass(class) {
		return Range{}, &InvalidRangeError{Class: class, First: first, Last: last, Why: "unknown class code"}
	}
	if first <= 0 || last <= 0 {
		return Range{}, &InvalidRangeError{Class: class, First: first, Last: last, Why: "case numbers must be positive"}
	}
	if first > last {
		return Range{}, &InvalidRangeError{Class: class, First: first, Last: last, Why: "first exceeds last"}
	}
	return Range{Class: class, First: first, Last: last}, nil
}

// Len is the number of identifiers the range yields.
func (r Range) Len() int {
	return r.Last - r.First + 1
}

// Each calls fn for every identifier in ascending order, stopping
// early if fn returns false. Enumeration always restarts from First.
func (r Range) Each(fn func(CaseIdentifier) bool) {
	for n := r.First; n <= r.Last; n++ {
		if !fn(CaseIdentifier{Class: r.Class, Number: n}) {
			return
		}
	}
}

// Identifiers materializes the full sequence.
func (r Range) Identifiers() []CaseIdentifier {
	ids := make([]CaseIdentifier, 0, r.Len())
	r.Each(func(id CaseIdentifier) bool {
		ids = append(ids, id)
		return true
	})
	return ids
}

// classCodes is the portal's published set of case classes.
var classCodes = map[string]bool{
	"AC": true, "ACO": true, "ADC": true, "ADI": true, "ADO": true,
	"ADPF": true, "AI": true, "AImp": true, "AO": true, "AOE": true,
	"AP": true, "AR": true, "ARE": true, "AS": true, "CC": true,
	"Cm": true, "EI": true, "EL": true, "EP": true, "Ext": true,
	"HC": true, "HD": true, "IF": true, "Inq": true, "MI": true,
	"MS": true, "PADM": true, "Pet": true, "PPE": true, "PSV": true,
	"RC": true, "Rcl": true, "RE": true, "RHC": true, "RHD": true,
	"RMI": true, "RMS": true, "RvC": true, "SE": true, "SIRDR": true,
	"SL": true, "SS": true, "STA": true, "STP": true, "TPA": true,
}

// ValidClass reports whether class is a known portal class code.
func ValidClass(class string) bool {
	return classCodes[class]
}
