package groundtruth

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-art3mis/judex-mini/lib/scrapers/stf"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func baseRecord() stf.CaseRecord {
	return stf.CaseRecord{
		Incidente:     intPtr(3797539),
		Classe:        strPtr("AI"),
		ProcessoID:    intPtr(772309),
		NumeroUnico:   strPtr("0127023-36.2009.8.26.0000"),
		Meio:          strPtr("FISICO"),
		Publicidade:   strPtr("PUBLICO"),
		Badges:        []string{},
		Assuntos:      []string{"DIREITO TRIBUTÁRIO"},
		NumeroOrigem:  []string{},
		Relator:       strPtr("CELSO DE MELLO"),
		Partes:        []stf.Parte{},
		Andamentos:    []stf.Andamento{},
		SessaoVirtual: []stf.SessaoVirtual{},
		Deslocamentos: []stf.Deslocamento{},
		Peticoes:      []stf.Peticao{},
		Recursos:      []stf.Recurso{},
		Pautas:        []stf.SessaoVirtual{},
		Status:        200,
		Extraido:      "2024-05-01T12:00:00Z",
		HTML:          "<html>run A</html>",
	}
}

func writeFixture(t *testing.T, dir string, id stf.CaseIdentifier, rec stf.CaseRecord) {
	t.Helper()
	raw, err := json.MarshalIndent(rec, "", "  ")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(FixturePath(dir, id), raw, 0o644))
}

func mustID(t *testing.T, class string, number int) stf.CaseIdentifier {
	t.Helper()
	return stf.CaseIdentifier{Class: class, Number: number}
}

func TestCompareEqualRecordsPass(t *testing.T) {
	dir := t.TempDir()
	id := mustID(t, "AI", 772309)

	reference := baseRecord()
	writeFixture(t, dir, id, reference)

	res, err := Test(dir, id, baseRecord())
	require.NoError(t, err)
	require.Equal(t, StatusPassed, res.Status)
	require.Empty(t, res.Mismatched)
	require.Empty(t, res.OnlyGenerated)
	require.Empty(t, res.OnlyReference)
}

func TestCompareIgnoresVolatileFields(t *testing.T) {
	dir := t.TempDir()
	id := mustID(t, "AI", 772309)

	reference := baseRecord()
	reference.Extraido = "2020-01-01T00:00:00Z"
	reference.HTML = "<html>run B</html>"
	writeFixture(t, dir, id, reference)

	res, err := Test(dir, id, baseRecord())
	require.NoError(t, err)
	require.Equal(t, StatusPassed, res.Status)
}

func TestCompareReportsMismatchedFields(t *testing.T) {
	dir := t.TempDir()
	id := mustID(t, "AI", 772309)

	reference := baseRecord()
	reference.Relator = strPtr("GILMAR MENDES")
	reference.Assuntos = []string{"DIREITO PENAL"}
	writeFixture(t, dir, id, reference)

	res, err := Test(dir, id, baseRecord())
	require.NoError(t, err)
	require.Equal(t, StatusFailed, res.Status)
	require.Equal(t, []string{"assuntos", "relator"}, res.Mismatched)
	require.Contains(t, res.Diffs["relator"], "GILMAR MENDES")
	require.Contains(t, res.Diffs["relator"], "CELSO DE MELLO")
}

func TestCompareNullVersusEmptyList(t *testing.T) {
	generated := baseRecord()
	generated.Badges = nil

	raw, err := json.Marshal(baseRecord())
	require.NoError(t, err)
	var reference map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &reference))

	res, err := Compare(generated, reference)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, res.Status)
	require.Contains(t, res.Mismatched, "badges")
}

func TestCompareSchemaDrift(t *testing.T) {
	raw, err := json.Marshal(baseRecord())
	require.NoError(t, err)
	var reference map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &reference))
	delete(reference, "relator")
	reference["legacy_field"] = json.RawMessage(`"x"`)

	res, err := Compare(baseRecord(), reference)
	require.NoError(t, err)
	require.Equal(t, StatusFailed, res.Status)
	require.Equal(t, []string{"relator"}, res.OnlyGenerated)
	require.Equal(t, []string{"legacy_field"}, res.OnlyReference)
}

func TestNoFixtureIsInconclusive(t *testing.T) {
	dir := t.TempDir()
	id := mustID(t, "RE", 1234567)

	res, err := Test(dir, id, baseRecord())
	require.NoError(t, err)
	require.Equal(t, StatusNoFixture, res.Status)
	require.Equal(t, id, res.Identifier)
}

func TestFixturePath(t *testing.T) {
	got := FixturePath("ground_truth", mustID(t, "AI", 772309))
	require.Equal(t, filepath.Join("ground_truth", "AI_772309.json"), got)
}
