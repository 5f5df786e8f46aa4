package htmlutil

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, fragment string) *goquery.Document {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestText(t *testing.T) {
	doc := parse(t, `<div class="row"><div>Classe:</div><div>AI</div></div>`)
	require.Equal(t, "Classe: AI", Text(doc.Find(".row")))
}

func TestTextInlineElements(t *testing.T) {
	doc := parse(t, `<p>Relator(a): <span>MIN.</span> <b>CELSO</b></p>`)
	require.Equal(t, "Relator(a): MIN. CELSO", Text(doc.Find("p")))
}

func TestGetText(t *testing.T) {
	doc := parse(t, `<ul><li>um</li><li>dois</li></ul>`)
	sel := doc.Find("li")
	require.Len(t, sel.Nodes, 2)
	require.Equal(t, "um", GetText(sel.Nodes[0]))
	require.Equal(t, "dois", GetText(sel.Nodes[1]))
}

func TestLabeledValue(t *testing.T) {
	doc := parse(t, `
		<div class="processo-dados">Tipo: Processo Físico</div>
		<div class="processo-dados">Relator(a): MIN. CELSO DE MELLO</div>`)

	value, ok := LabeledValue(doc, ".processo-dados", "Relator(a):")
	require.True(t, ok)
	require.Equal(t, "MIN. CELSO DE MELLO", value)

	_, ok = LabeledValue(doc, ".processo-dados", "Origem:")
	require.False(t, ok)
}

func TestAttr(t *testing.T) {
	doc := parse(t, `<input id="incidente" value="1527533">`)
	value, ok := Attr(doc.Find("#incidente"), "value")
	require.True(t, ok)
	require.Equal(t, "1527533", value)

	_, ok = Attr(doc.Find("#incidente"), "missing")
	require.False(t, ok)
}
