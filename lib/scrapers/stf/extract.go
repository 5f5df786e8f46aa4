package stf

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/noah-art3mis/judex-mini/lib/htmlutil"
	"github.com/noah-art3mis/judex-mini/lib/textutil"
)

// Errors the navigator treats as transient: the portal intermittently
// serves these under load and a fresh session usually clears them.
var (
	ErrAccessDenied  = errors.New("403 Forbidden - access denied")
	ErrCaptcha       = errors.New("CAPTCHA detected")
	ErrBadGateway    = errors.New("502 Bad Gateway")
	ErrCaseNotFound  = errors.New("case not found")
	ErrOriginMissing = errors.New("origin description not rendered")
)

// PageStructureError means the DOM is not the expected case-status
// page at all. It fails the whole identifier, not a single field.
type PageStructureError struct {
	Why string
}

func (e *PageStructureError) Error() string {
	return fmt.Sprintf("unexpected page structure: %s", e.Why)
}

// CheckLoadedPage inspects a freshly navigated DOM for the portal's
// known failure responses. The navigator runs it after every load so a
// poisoned page is retried instead of extracted.
func CheckLoadedPage(doc *goquery.Document) error {
	body := doc.Find("body").Text()
	switch {
	case strings.Contains(body, "403 Forbidden"):
		return ErrAccessDenied
	case strings.Contains(body, "CAPTCHA"):
		return ErrCaptcha
	case strings.Contains(body, "502 Bad Gateway"):
		return ErrBadGateway
	case strings.Contains(body, "Processo não encontrado"):
		return ErrCaseNotFound
	}
	if textutil.NormalizeSpaces(doc.Find("#descricao-procedencia").Text()) == "" {
		return ErrOriginMissing
	}
	return nil
}

func checkCasePage(doc *goquery.Document) error {
	if doc.Find("#conteudo").Length() == 0 {
		return &PageStructureError{Why: "missing #conteudo container"}
	}
	return nil
}

// Outcome is the per-field extraction result. Absence of the target
// element is a value, not an error; Err carries a diagnostic for logs
// without failing the record.
type Outcome struct {
	Absent bool
	Err    error
}

func present() Outcome             { return Outcome{} }
func absent() Outcome              { return Outcome{Absent: true} }
func absentWith(err error) Outcome { return Outcome{Absent: true, Err: err} }

// extractor is the uniform capability every field conforms to. run
// writes at most its own field on rec; extractors never read fields
// written by other extractors, so their order is irrelevant.
type extractor struct {
	name string
	run  func(doc *goquery.Document, rec *CaseRecord) Outcome
}

var extractors = []extractor{
	{"incidente", extractIncidente},
	{"numero_unico", extractNumeroUnico},
	{"meio", extractMeio},
	{"publicidade", extractPublicidade},
	{"badges", extractBadges},
	{"assuntos", extractAssuntos},
	{"data_protocolo", extractDataProtocolo},
	{"orgao_origem", extractOrgaoOrigem},
	{"origem", extractOrigem},
	{"numero_origem", extractNumeroOrigem},
	{"volumes_folhas_apensos", extractQuadros},
	{"relator", extractRelator},
	{"primeiro_autor", extractPrimeiroAutor},
	{"partes", extractPartes},
	{"andamentos", extractAndamentos},
	{"deslocamentos", extractDeslocamentos},
	{"peticoes", extractPeticoes},
	{"recursos", extractRecursos},
}

func extractIncidente(doc *goquery.Document, rec *CaseRecord) Outcome {
	value, ok := htmlutil.Attr(doc.Find("input#incidente"), "value")
	if !ok {
		return absent()
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return absentWith(fmt.Errorf("non-numeric incidente %q", value))
	}
	rec.Incidente = intPtr(n)
	return present()
}

func extractNumeroUnico(doc *goquery.Document, rec *CaseRecord) Outcome {
	text := htmlutil.Text(doc.Find(".processo-rotulo").First())
	if !strings.Contains(text, "Número Único:") {
		return absent()
	}
	value := textutil.NormalizeSpaces(strings.SplitN(text, "Número Único:", 2)[1])
	// the portal renders "Sem número único" for older physical cases
	if value == "" || textutil.ContainsFold(value, "sem número único") {
		return absent()
	}
	rec.NumeroUnico = strPtr(value)
	return present()
}

func tipoProcesso(doc *goquery.Document) (string, bool) {
	return htmlutil.LabeledValue(doc, ".processo-dados", "Tipo:")
}

func extractMeio(doc *goquery.Document, rec *CaseRecord) Outcome {
	tipo, ok := tipoProcesso(doc)
	if !ok {
		return absent()
	}
	switch {
	case textutil.ContainsFold(tipo, "Físico"):
		rec.Meio = strPtr("FISICO")
	case textutil.ContainsFold(tipo, "Eletrônico"):
		rec.Meio = strPtr("ELETRONICO")
	default:
		return absentWith(fmt.Errorf("unrecognized tipo %q", tipo))
	}
	return present()
}

func extractPublicidade(doc *goquery.Document, rec *CaseRecord) Outcome {
	sigiloso := false
	publico := false
	doc.Find(".badge").Each(func(_ int, sel *goquery.Selection) {
		text := textutil.FoldKey(sel.Text())
		if strings.Contains(text, "SIGILOSO") {
			sigiloso = true
		}
		if strings.Contains(text, "PUBLICO") {
			publico = true
		}
	})
	switch {
	case sigiloso:
		rec.Publicidade = strPtr("SIGILOSO")
	case publico:
		rec.Publicidade = strPtr("PUBLICO")
	default:
		return absent()
	}
	return present()
}

// priority badges the portal attaches to cases with legal precedence
var priorityBadges = []string{"MAIOR DE 60 ANOS", "DOENÇA GRAVE"}

func extractBadges(doc *goquery.Document, rec *CaseRecord) Outcome {
	var labels []string
	doc.Find(".badge").Each(func(_ int, sel *goquery.Selection) {
		text := htmlutil.Text(sel)
		if text == "" {
			return
		}
		for _, want := range priorityBadges {
			if textutil.ContainsFold(text, want) {
				labels = append(labels, text)
				return
			}
		}
	})
	if labels == nil {
		rec.Badges = []string{}
		return present()
	}
	rec.Badges = labels
	return present()
}

func extractAssuntos(doc *goquery.Document, rec *CaseRecord) Outcome {
	list := doc.Find("#informacoes-completas > div:nth-child(1) > div:nth-child(2) li")
	if list.Length() == 0 {
		return absent()
	}
	var assuntos []string
	list.Each(func(_ int, sel *goquery.Selection) {
		text := htmlutil.Text(sel)
		if text != "" {
			assuntos = append(assuntos, text)
		}
	})
	if len(assuntos) == 0 {
		return absent()
	}
	rec.Assuntos = assuntos
	return present()
}

const infoDetailSelector = "#informacoes-completas > div:nth-child(2) > div:nth-child(1) > div:nth-child(2)"

func extractDataProtocolo(doc *goquery.Document, rec *CaseRecord) Outcome {
	text := htmlutil.Text(doc.Find(infoDetailSelector + " > div:nth-child(2)"))
	if text == "" {
		return absent()
	}
	rec.DataProtocolo = strPtr(text)
	return present()
}

func extractOrgaoOrigem(doc *goquery.Document, rec *CaseRecord) Outcome {
	text := htmlutil.Text(doc.Find(infoDetailSelector + " > div:nth-child(4)"))
	if text == "" {
		return absent()
	}
	rec.OrgaoOrigem = strPtr(text)
	return present()
}

func extractOrigem(doc *goquery.Document, rec *CaseRecord) Outcome {
	text := htmlutil.Text(doc.Find("#descricao-procedencia"))
	if text == "" {
		return absent()
	}
	rec.Origem = strPtr(text)
	return present()
}

var numeroOrigemRegex = regexp.MustCompile(`(?i)Número de Origem:\s*([0-9./-]+)`)

func extractNumeroOrigem(doc *goquery.Document, rec *CaseRecord) Outcome {
	text := htmlutil.Text(doc.Find(infoDetailSelector))
	groups := numeroOrigemRegex.FindStringSubmatch(text)
	if len(groups) < 2 {
		return absent()
	}
	rec.NumeroOrigem = []string{strings.TrimSpace(groups[1])}
	return present()
}

func extractQuadros(doc *goquery.Document, rec *CaseRecord) Outcome {
	boxes := doc.Find("#informacoes .processo-quadro")
	if boxes.Length() == 0 {
		return absent()
	}
	found := false
	boxes.Each(func(_ int, box *goquery.Selection) {
		label := textutil.FoldKey(box.Find(".rotulo").Text())
		value := textutil.NormalizeSpaces(box.Find(".numero").Text())
		n, err := strconv.Atoi(value)
		if err != nil {
			return
		}
		switch {
		case strings.Contains(label, "VOLUME"):
			rec.Volumes = intPtr(n)
			found = true
		case strings.Contains(label, "FOLHA"):
			rec.Folhas = intPtr(n)
			found = true
		case strings.Contains(label, "APENSO"):
			rec.Apensos = intPtr(n)
			found = true
		}
	})
	if !found {
		return absent()
	}
	return present()
}

func extractRelator(doc *goquery.Document, rec *CaseRecord) Outcome {
	value, ok := htmlutil.LabeledValue(doc, ".processo-dados", "Relator(a):")
	if !ok {
		return absent()
	}
	value = strings.TrimPrefix(value, "MIN. ")
	if value == "" {
		return absent()
	}
	rec.Relator = strPtr(value)
	return present()
}

// parsePartes is shared by the partes and primeiro_autor extractors so
// both stay pure functions of the DOM.
func parsePartes(doc *goquery.Document) []Parte {
	cells := doc.Find("#resumo-partes div[class*='processo-partes']")
	var partes []Parte
	nodes := cells.Nodes
	for i := 0; i+1 < len(nodes); i += 2 {
		tipo := htmlutil.Text(cells.Eq(i))
		nome := htmlutil.Text(cells.Eq(i + 1))
		if tipo == "" || nome == "" {
			continue
		}
		partes = append(partes, Parte{
			Index: len(partes) + 1,
			Tipo:  tipo,
			Nome:  nome,
		})
	}
	return partes
}

func extractPartes(doc *goquery.Document, rec *CaseRecord) Outcome {
	partes := parsePartes(doc)
	if len(partes) == 0 {
		return absent()
	}
	rec.Partes = partes
	return present()
}

// role prefixes marking the petitioning side
var authorRoles = []string{"RECTE", "REQTE", "AUTOR"}

func extractPrimeiroAutor(doc *goquery.Document, rec *CaseRecord) Outcome {
	for _, parte := range parsePartes(doc) {
		for _, role := range authorRoles {
			if strings.HasPrefix(parte.Tipo, role) {
				rec.PrimeiroAutor = strPtr(parte.Nome)
				return present()
			}
		}
	}
	return absent()
}

// movement names carry a trailing transfer-guide artifact on some rows
var guiaArtifactRegex = regexp.MustCompile(`(?i),\s*GUIA\s*N[ºOo0]?[^,]*$`)

func cleanAndamentoNome(nome string) string {
	return strings.TrimSpace(guiaArtifactRegex.ReplaceAllString(nome, ""))
}

// andamentoLink resolves the first anchor of a movement row. Relative
// hrefs are rooted at the portal's processos path; the anchor text
// becomes the uppercased link description.
func andamentoLink(item *goquery.Selection) (link, descricao *string) {
	anchor := item.Find("a").First()
	if anchor.Length() == 0 {
		return nil, nil
	}
	if href, ok := anchor.Attr("href"); ok && href != "" {
		if strings.HasPrefix(href, "http") {
			link = strPtr(href)
		} else {
			link = strPtr(PortalBaseURL + "/processos/" + strings.ReplaceAll(href, "amp;", ""))
		}
	}
	if text := textutil.NormalizeSpaces(anchor.Text()); text != "" {
		descricao = strPtr(strings.ToUpper(text))
	}
	return link, descricao
}

func extractAndamentos(doc *goquery.Document, rec *CaseRecord) Outcome {
	items := doc.Find(".processo-andamentos .andamento-item")
	if items.Length() == 0 {
		return absent()
	}
	total := items.Length()
	var andamentos []Andamento
	items.Each(func(i int, item *goquery.Selection) {
		data := item.Find(".andamento-data")
		nome := item.Find(".andamento-nome")
		if data.Length() == 0 || nome.Length() == 0 {
			return
		}
		a := Andamento{
			// newest rows render first; index counts from the oldest
			IndexNum:    total - i,
			Data:        htmlutil.Text(data),
			Nome:        strings.ToUpper(cleanAndamentoNome(htmlutil.Text(nome))),
			Complemento: htmlutil.Text(item.Find(".col-md-9")),
		}
		if julgador := item.Find(".andamento-julgador"); julgador.Length() > 0 {
			a.Julgador = strPtr(htmlutil.Text(julgador))
		}
		a.Link, a.LinkDescricao = andamentoLink(item)
		andamentos = append(andamentos, a)
	})
	if len(andamentos) == 0 {
		return absent()
	}
	rec.Andamentos = andamentos
	return present()
}

var (
	recebidoPorRegex = regexp.MustCompile(`^Recebido por `)
	enviadoPorRegex  = regexp.MustCompile(`^Enviado por `)
	personDateRegex  = regexp.MustCompile(` em \d{2}/\d{2}/\d{4}$`)
)

func cleanDeslocamentoPessoa(text string, prefix *regexp.Regexp) string {
	text = prefix.ReplaceAllString(textutil.NormalizeSpaces(text), "")
	return strings.TrimSpace(personDateRegex.ReplaceAllString(text, ""))
}

func cleanDeslocamentoData(text string, prefix string) string {
	text = strings.ReplaceAll(textutil.NormalizeSpaces(text), prefix, "")
	return strings.TrimSpace(strings.ReplaceAll(text, " em ", ""))
}

func extractDeslocamentos(doc *goquery.Document, rec *CaseRecord) Outcome {
	items := doc.Find("#deslocamentos .lista-dados")
	if items.Length() == 0 {
		return absent()
	}
	total := items.Length()
	var deslocamentos []Deslocamento
	items.Each(func(i int, item *goquery.Selection) {
		guia := htmlutil.Text(item.Find(".text-right span.processo-detalhes").First())
		guia = strings.ReplaceAll(guia, "Guia: ", "")
		guia = strings.ReplaceAll(guia, "Guia ", "")
		guia = strings.TrimSpace(strings.ReplaceAll(guia, "Nº ", ""))

		// the transfer dates carry colored-background marker classes;
		// the plain detail span is the receiving party
		recebidoPor := htmlutil.Text(
			item.Find(".processo-detalhes:not(.bg-font-success):not(.bg-font-info)").First())
		enviadoPor := htmlutil.Text(item.Find(".processo-detalhes-bold").First())

		deslocamentos = append(deslocamentos, Deslocamento{
			IndexNum:     total - i,
			Guia:         guia,
			RecebidoPor:  cleanDeslocamentoPessoa(recebidoPor, recebidoPorRegex),
			DataRecebido: cleanDeslocamentoData(htmlutil.Text(item.Find(".processo-detalhes.bg-font-success").First()), "Recebido em "),
			EnviadoPor:   cleanDeslocamentoPessoa(enviadoPor, enviadoPorRegex),
			DataEnviado:  cleanDeslocamentoData(htmlutil.Text(item.Find(".processo-detalhes.bg-font-info").First()), "Enviado em "),
		})
	})
	rec.Deslocamentos = deslocamentos
	return present()
}

var (
	detailBoldRegex = regexp.MustCompile(`processo-detalhes-bold">([^<]+)`)
	detailRegex     = regexp.MustCompile(`processo-detalhes">([^<]+)`)
	recebidoRegex   = regexp.MustCompile(`Recebido em ([^<]+)`)
)

func extractPeticoes(doc *goquery.Document, rec *CaseRecord) Outcome {
	items := doc.Find("#peticoes .lista-dados")
	if items.Length() == 0 {
		return absent()
	}
	total := items.Length()
	var peticoes []Peticao
	items.Each(func(i int, item *goquery.Selection) {
		html, err := item.Html()
		if err != nil {
			return
		}
		// newest entries render first; index counts from the oldest
		peticao := Peticao{Index: total - i}

		if groups := detailBoldRegex.FindStringSubmatch(html); len(groups) > 1 {
			peticao.ID = strPtr(textutil.NormalizeSpaces(groups[1]))
		}
		if groups := detailRegex.FindStringSubmatch(html); len(groups) > 1 {
			data := textutil.NormalizeSpaces(groups[1])
			data = strings.TrimPrefix(data, "Peticionado em ")
			peticao.Data = strPtr(data)
		}
		if groups := recebidoRegex.FindStringSubmatch(html); len(groups) > 1 {
			recebido := textutil.NormalizeSpaces(groups[1])
			parts := strings.SplitN(recebido, " por ", 2)
			if len(parts) == 2 {
				peticao.RecebidoData = strPtr(strings.TrimSpace(parts[0]))
				peticao.RecebidoPor = strPtr(strings.TrimSpace(parts[1]))
			} else {
				peticao.RecebidoData = strPtr(recebido)
			}
		}
		peticoes = append(peticoes, peticao)
	})
	rec.Peticoes = peticoes
	return present()
}

func extractRecursos(doc *goquery.Document, rec *CaseRecord) Outcome {
	items := doc.Find("#recursos .lista-dados")
	if items.Length() == 0 {
		return absent()
	}
	total := items.Length()
	var recursos []Recurso
	items.Each(func(i int, item *goquery.Selection) {
		html, err := item.Html()
		if err != nil {
			return
		}
		recurso := Recurso{Index: total - i}
		if groups := detailBoldRegex.FindStringSubmatch(html); len(groups) > 1 {
			recurso.Data = strPtr(textutil.NormalizeSpaces(groups[1]))
		}
		recursos = append(recursos, recurso)
	})
	rec.Recursos = recursos
	return present()
}
