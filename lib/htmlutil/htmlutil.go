package htmlutil

import (
	"bytes"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/noah-art3mis/judex-mini/lib/textutil"
)

// GetText concatenates the text nodes under node, depth first.
func GetText(node *html.Node) string {
	var buffer bytes.Buffer
	getTextRecursive(node, &buffer)
	return buffer.String()
}

func getTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	child := node.FirstChild
	for child != nil {
		getTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

// Text returns the normalized text content of a selection. Block
// elements are joined with a space so "Classe:</div><div>AI" does not
// glue into "Classe:AI".
func Text(sel *goquery.Selection) string {
	parts := make([]string, 0, len(sel.Nodes))
	for _, n := range sel.Nodes {
		parts = append(parts, blockText(n))
	}
	return textutil.NormalizeSpaces(strings.Join(parts, " "))
}

func blockText(node *html.Node) string {
	var buffer bytes.Buffer
	blockTextRecursive(node, &buffer)
	return buffer.String()
}

func blockTextRecursive(node *html.Node, buffer *bytes.Buffer) {
	if node == nil {
		return
	}
	if node.Type == html.TextNode {
		buffer.WriteString(node.Data)
		return
	}
	if node.Type == html.ElementNode && node.Data != "span" && node.Data != "a" &&
		node.Data != "b" && node.Data != "strong" && node.Data != "i" && node.Data != "em" {
		buffer.WriteString(" ")
	}
	child := node.FirstChild
	for child != nil {
		blockTextRecursive(child, buffer)
		child = child.NextSibling
	}
}

// Attr returns an attribute value and whether it was present on the
// first node of the selection.
func Attr(sel *goquery.Selection, name string) (string, bool) {
	return sel.Attr(name)
}

// LabeledValue finds, among the nodes matched by selector, the first one
// whose text starts with label and returns the remainder after the
// label, normalized. Portal summary rows render as "Relator(a): MIN. X".
func LabeledValue(doc *goquery.Document, selector string, label string) (string, bool) {
	var value string
	found := false
	doc.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		text := Text(sel)
		if !strings.HasPrefix(text, label) {
			return true
		}
		value = textutil.NormalizeSpaces(strings.TrimPrefix(text, label))
		found = true
		return false
	})
	return value, found
}
