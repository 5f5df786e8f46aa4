package stf

import "time"

// CaseRecord is the schema-closed output for one case. Every field is
// always present when serialized; pointer and slice fields encode
// explicit absence as JSON null, which is distinct from an empty
// string or an empty list.
type CaseRecord struct {
	Incidente   *int    `json:"incidente"`
	Classe      *string `json:"classe"`
	ProcessoID  *int    `json:"processo_id"`
	NumeroUnico *string `json:"numero_unico"`

	Meio        *string  `json:"meio"`
	Publicidade *string  `json:"publicidade"`
	Badges      []string `json:"badges"`

	Assuntos      []string `json:"assuntos"`
	DataProtocolo *string  `json:"data_protocolo"`
	OrgaoOrigem   *string  `json:"orgao_origem"`
	Origem        *string  `json:"origem"`
	NumeroOrigem  []string `json:"numero_origem"`

	Volumes *int `json:"volumes"`
	Folhas  *int `json:"folhas"`
	Apensos *int `json:"apensos"`

	Relator       *string `json:"relator"`
	PrimeiroAutor *string `json:"primeiro_autor"`
	Partes        []Parte `json:"partes"`

	Andamentos    []Andamento     `json:"andamentos"`
	SessaoVirtual []SessaoVirtual `json:"sessao_virtual"`
	Deslocamentos []Deslocamento  `json:"deslocamentos"`
	Peticoes      []Peticao       `json:"peticoes"`
	Recursos      []Recurso       `json:"recursos"`
	Pautas        []SessaoVirtual `json:"pautas"`

	Status   int    `json:"status"`
	Extraido string `json:"extraido"`
	HTML     string `json:"html"`
}

// Parte is one party to the case, in document order.
type Parte struct {
	Index int    `json:"index"`
	Tipo  string `json:"tipo"`
	Nome  string `json:"nome"`
}

// Andamento is one procedural movement. Movements are chronological
// and their source order is meaningful.
type Andamento struct {
	IndexNum      int     `json:"index_num"`
	Data          string  `json:"data"`
	Nome          string  `json:"nome"`
	Complemento   string  `json:"complemento"`
	Julgador      *string `json:"julgador"`
	LinkDescricao *string `json:"link_descricao"`
	Link          *string `json:"link"`
}

// Deslocamento is one physical-file transfer entry.
type Deslocamento struct {
	IndexNum     int    `json:"index_num"`
	Guia         string `json:"guia"`
	RecebidoPor  string `json:"recebido_por"`
	DataRecebido string `json:"data_recebido"`
	EnviadoPor   string `json:"enviado_por"`
	DataEnviado  string `json:"data_enviado"`
}

// Peticao is one petition entry from the petitions tab.
type Peticao struct {
	Index        int     `json:"index"`
	ID           *string `json:"id"`
	Data         *string `json:"data"`
	RecebidoData *string `json:"recebido_data"`
	RecebidoPor  *string `json:"recebido_por"`
}

// Recurso is one appeal entry from the appeals tab.
type Recurso struct {
	Index int     `json:"index"`
	Data  *string `json:"data"`
}

// SessaoVirtual is one virtual-session entry. The portal renders these
// behind a tab the scraper does not open, so the list ships empty, but
// the field stays in the schema for fixture compatibility.
type SessaoVirtual struct {
	Data   *string `json:"data"`
	Tipo   *string `json:"tipo"`
	Numero *string `json:"numero"`
	Status *string `json:"status"`
}

// SchemaFields lists every record field name in serialization order.
// This is the contract the schema-closure checks and the CSV column
// mapping are built on.
func SchemaFields() []string {
	return []string{
		"incidente", "classe", "processo_id", "numero_unico",
		"meio", "publicidade", "badges",
		"assuntos", "data_protocolo", "orgao_origem", "origem", "numero_origem",
		"volumes", "folhas", "apensos",
		"relator", "primeiro_autor", "partes",
		"andamentos", "sessao_virtual", "deslocamentos", "peticoes", "recursos", "pautas",
		"status", "extraido", "html",
	}
}

// Meta is assembly provenance. It travels next to the record, never
// inside it, so the record only holds portal content.
type Meta struct {
	Identifier   CaseIdentifier
	ExtractedAt  time.Time
	RetriesUsed  int
	AbsentFields []string
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
