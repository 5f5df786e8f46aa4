package stf

import (
	"fmt"
	"regexp"
	"strings"
)

// ValidationResult reports which schema invariants a record violates.
type ValidationResult struct {
	Accepted   bool
	Violations []string
}

// ValidationRejectedError marks a per-identifier validation failure.
// The run continues past it.
type ValidationRejectedError struct {
	Identifier CaseIdentifier
	Violations []string
}

func (e *ValidationRejectedError) Error() string {
	return fmt.Sprintf("record for %s rejected: %s",
		e.Identifier, strings.Join(e.Violations, ", "))
}

var protocolDateRegex = regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`)

// Validate enforces required-field and shape invariants. Only the
// identifying fields are required; the portal legitimately leaves most
// others unpopulated depending on case type.
func Validate(rec CaseRecord) ValidationResult {
	var violations []string

	if rec.Classe == nil || *rec.Classe == "" {
		violations = append(violations, "classe")
	}
	if rec.ProcessoID == nil || *rec.ProcessoID <= 0 {
		violations = append(violations, "processo_id")
	}

	if rec.DataProtocolo != nil && !protocolDateRegex.MatchString(*rec.DataProtocolo) {
		violations = append(violations, "data_protocolo")
	}

	if hasConsecutiveDuplicate(len(rec.Assuntos), func(i int) string {
		return rec.Assuntos[i]
	}) {
		violations = append(violations, "assuntos")
	}
	if hasConsecutiveDuplicate(len(rec.Partes), func(i int) string {
		return rec.Partes[i].Tipo + "\x00" + rec.Partes[i].Nome
	}) {
		violations = append(violations, "partes")
	}
	if hasConsecutiveDuplicate(len(rec.Andamentos), func(i int) string {
		a := rec.Andamentos[i]
		return a.Data + "\x00" + a.Nome + "\x00" + a.Complemento
	}) {
		violations = append(violations, "andamentos")
	}
	if hasConsecutiveDuplicate(len(rec.Deslocamentos), func(i int) string {
		d := rec.Deslocamentos[i]
		return d.Guia + "\x00" + d.DataEnviado + "\x00" + d.DataRecebido
	}) {
		violations = append(violations, "deslocamentos")
	}

	return ValidationResult{
		Accepted:   len(violations) == 0,
		Violations: violations,
	}
}

// hasConsecutiveDuplicate reports adjacent equal entries. The portal
// never repeats an entry back to back; when a page half-renders during
// load, rows get parsed twice.
func hasConsecutiveDuplicate(n int, key func(int) string) bool {
	for i := 1; i < n; i++ {
		if key(i) == key(i-1) {
			return true
		}
	}
	return false
}
