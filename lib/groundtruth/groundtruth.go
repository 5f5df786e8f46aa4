// Package groundtruth compares freshly assembled case records against
// hand-verified reference fixtures. It is the regression oracle for
// the extractor suite: a fixture diff that is not empty means the
// portal changed or an extractor regressed.
package groundtruth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/go-cmp/cmp"

	"github.com/noah-art3mis/judex-mini/lib/scrapers/stf"
)

// Fields whose values change on every run and carry no extraction
// signal. They are present in fixtures but never diffed.
var volatileFields = map[string]bool{
	"extraido": true,
	"html":     true,
}

// Status classifies one comparison.
type Status string

const (
	StatusPassed Status = "passed"
	StatusFailed Status = "failed"
	// StatusNoFixture means no reference exists for the identifier.
	// That is an inconclusive outcome, not a failure.
	StatusNoFixture Status = "no_fixture"
)

// Result is one identifier's comparison outcome.
type Result struct {
	Identifier stf.CaseIdentifier
	Status     Status
	// Mismatched lists fields present on both sides with differing
	// values, sorted by name.
	Mismatched []string
	// OnlyGenerated and OnlyReference list schema drift between the
	// two sides.
	OnlyGenerated []string
	OnlyReference []string
	// Diffs holds a human-readable diff per mismatched field.
	Diffs map[string]string
}

// FixturePath is where the reference record for an identifier lives.
func FixturePath(dir string, id stf.CaseIdentifier) string {
	return filepath.Join(dir, id.Key()+".json")
}

// Load reads a reference fixture. Returns os.ErrNotExist (wrapped)
// when no fixture exists for the identifier.
func Load(dir string, id stf.CaseIdentifier) (map[string]json.RawMessage, error) {
	raw, err := os.ReadFile(FixturePath(dir, id))
	if err != nil {
		return nil, fmt.Errorf("read fixture for %s: %w", id, err)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode fixture for %s: %w", id, err)
	}
	return fields, nil
}

// Compare diffs a generated record against reference fields, one
// schema field at a time. Volatile fields are skipped. Values are
// compared structurally after JSON normalization, so formatting
// differences in the fixture file do not count as mismatches.
func Compare(generated stf.CaseRecord, reference map[string]json.RawMessage) (Result, error) {
	raw, err := json.Marshal(generated)
	if err != nil {
		return Result{}, fmt.Errorf("encode generated record: %w", err)
	}
	var genFields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &genFields); err != nil {
		return Result{}, fmt.Errorf("reshape generated record: %w", err)
	}

	res := Result{Status: StatusPassed, Diffs: map[string]string{}}

	for _, field := range unionKeys(genFields, reference) {
		if volatileFields[field] {
			continue
		}
		genVal, inGen := genFields[field]
		refVal, inRef := reference[field]
		switch {
		case !inRef:
			res.OnlyGenerated = append(res.OnlyGenerated, field)
		case !inGen:
			res.OnlyReference = append(res.OnlyReference, field)
		default:
			diff, err := diffValues(genVal, refVal)
			if err != nil {
				return Result{}, fmt.Errorf("field %s: %w", field, err)
			}
			if diff != "" {
				res.Mismatched = append(res.Mismatched, field)
				res.Diffs[field] = diff
			}
		}
	}

	if len(res.Mismatched) > 0 || len(res.OnlyGenerated) > 0 || len(res.OnlyReference) > 0 {
		res.Status = StatusFailed
	}
	return res, nil
}

// Test runs the full oracle for one identifier: load the fixture if
// one exists, compare, classify.
func Test(dir string, id stf.CaseIdentifier, generated stf.CaseRecord) (Result, error) {
	reference, err := Load(dir, id)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Result{Identifier: id, Status: StatusNoFixture}, nil
		}
		return Result{}, err
	}
	res, err := Compare(generated, reference)
	if err != nil {
		return Result{}, err
	}
	res.Identifier = id
	return res, nil
}

func unionKeys(a, b map[string]json.RawMessage) []string {
	seen := map[string]bool{}
	for k := range a {
		seen[k] = true
	}
	for k := range b {
		seen[k] = true
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// diffValues compares two JSON values structurally. An empty string
// means equal.
func diffValues(gen, ref json.RawMessage) (string, error) {
	var genVal, refVal any
	if err := json.Unmarshal(gen, &genVal); err != nil {
		return "", fmt.Errorf("decode generated value: %w", err)
	}
	if err := json.Unmarshal(ref, &refVal); err != nil {
		return "", fmt.Errorf("decode reference value: %w", err)
	}
	return cmp.Diff(refVal, genVal), nil
}
