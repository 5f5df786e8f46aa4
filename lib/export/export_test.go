package export

import (
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/noah-art3mis/judex-mini/lib/scrapers/stf"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func sampleRecord(n int) stf.CaseRecord {
	return stf.CaseRecord{
		Incidente:     intPtr(3797539),
		Classe:        strPtr("AI"),
		ProcessoID:    intPtr(n),
		NumeroUnico:   strPtr("0127023-36.2009.8.26.0000"),
		Meio:          strPtr("FISICO"),
		Publicidade:   strPtr("PUBLICO"),
		Badges:        []string{"Maior de 60 anos"},
		Assuntos:      []string{"DIREITO TRIBUTÁRIO"},
		DataProtocolo: strPtr("21/10/2009"),
		NumeroOrigem:  []string{"994092749653"},
		Relator:       strPtr("CELSO DE MELLO"),
		PrimeiroAutor: strPtr("ESTADO DE SÃO PAULO"),
		Partes: []stf.Parte{
			{Index: 1, Tipo: "RECTE.(S)", Nome: "ESTADO DE SÃO PAULO"},
		},
		Andamentos:     []stf.Andamento{},
		SessaoVirtual:  []stf.SessaoVirtual{},
		Deslocamentos:  []stf.Deslocamento{},
		Peticoes:       []stf.Peticao{},
		Recursos:       []stf.Recurso{},
		Pautas:         []stf.SessaoVirtual{},
		Status:         200,
		Extraido:       "2024-05-01T12:00:00Z",
		HTML:           "<html></html>",
	}
}

func mustRange(t *testing.T, first, last int) stf.Range {
	t.Helper()
	r, err := stf.NewRange("AI", first, last)
	require.NoError(t, err)
	return r
}

func TestFormatFromString(t *testing.T) {
	for input, want := range map[string]Format{
		"json":  FormatJSON,
		"JSONL": FormatJSONL,
		" csv ": FormatCSV,
		"all":   FormatAll,
	} {
		got, err := FormatFromString(input)
		require.NoError(t, err, input)
		require.Equal(t, want, got)
	}

	_, err := FormatFromString("xml")
	require.Error(t, err)
}

func TestFormatAllExpands(t *testing.T) {
	require.ElementsMatch(t,
		[]Format{FormatJSON, FormatJSONL, FormatCSV},
		FormatAll.Formats())
	require.Equal(t, []Format{FormatCSV}, FormatCSV.Formats())
}

func TestBaseName(t *testing.T) {
	require.Equal(t, "judex-mini_AI_772309-772311", BaseName(mustRange(t, 772309, 772311)))
}

func TestJSONRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, mustRange(t, 772309, 772310), FormatJSON, false)
	require.NoError(t, err)

	first := sampleRecord(772309)
	second := sampleRecord(772310)
	require.NoError(t, w.Append(first))
	require.NoError(t, w.Append(second))

	records, err := ReadRecords(w.Path())
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Empty(t, cmp.Diff(first, records[0]))
	require.Empty(t, cmp.Diff(second, records[1]))
}

func TestJSONLRoundTrip(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, mustRange(t, 772309, 772310), FormatJSONL, false)
	require.NoError(t, err)

	first := sampleRecord(772309)
	second := sampleRecord(772310)
	require.NoError(t, w.Append(first))
	require.NoError(t, w.Append(second))

	records, err := ReadRecords(w.Path())
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Empty(t, cmp.Diff(first, records[0]))
	require.Empty(t, cmp.Diff(second, records[1]))
}

func TestCSVShape(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, mustRange(t, 772309, 772310), FormatCSV, false)
	require.NoError(t, err)

	require.NoError(t, w.Append(sampleRecord(772309)))
	require.NoError(t, w.Append(sampleRecord(772310)))

	f, err := os.Open(w.Path())
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, stf.SchemaFields(), rows[0])

	byField := map[string]string{}
	for i, field := range rows[0] {
		byField[field] = rows[1][i]
	}
	require.Equal(t, "772309", byField["processo_id"])
	require.Equal(t, "FISICO", byField["meio"])
	// null scalars become empty cells
	require.Equal(t, "", byField["volumes"])
	// nested values stay lossless as embedded JSON
	require.True(t, strings.HasPrefix(byField["partes"], "["))
	require.Contains(t, byField["partes"], "ESTADO DE SÃO PAULO")
}

func TestConflictLeavesFileUntouched(t *testing.T) {
	dir := t.TempDir()
	r := mustRange(t, 772309, 772310)
	path := filepath.Join(dir, BaseName(r)+".json")
	original := []byte(`[{"processo_id": 1}]` + "\n")
	require.NoError(t, os.WriteFile(path, original, 0o644))

	_, err := NewWriter(dir, r, FormatJSON, false)
	var conflict *ExportConflictError
	require.ErrorAs(t, err, &conflict)
	require.Equal(t, path, conflict.Path)

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, original, after)
}

func TestOverwriteTruncates(t *testing.T) {
	dir := t.TempDir()
	r := mustRange(t, 772309, 772310)
	path := filepath.Join(dir, BaseName(r)+".json")
	require.NoError(t, os.WriteFile(path, []byte(`[{"stale": true}]`), 0o644))

	w, err := NewWriter(dir, r, FormatJSON, true)
	require.NoError(t, err)
	require.NoError(t, w.Append(sampleRecord(772309)))

	records, err := ReadRecords(w.Path())
	require.NoError(t, err)
	require.Len(t, records, 1)
	require.Equal(t, 772309, *records[0].ProcessoID)
}

func TestNewWriterCreatesDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "out")
	w, err := NewWriter(dir, mustRange(t, 1, 2), FormatJSONL, false)
	require.NoError(t, err)
	require.NoError(t, w.Append(sampleRecord(1)))

	_, err = os.Stat(w.Path())
	require.NoError(t, err)
}

func TestReadRecordsUnsupported(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "records.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b\n"), 0o644))

	_, err := ReadRecords(path)
	require.Error(t, err)
	require.False(t, errors.Is(err, os.ErrNotExist))
}
