package service

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/cloo-solutions/datalens/internal/domain"
)

// identifierRegex validates SQL identifiers (table references in generated
// queries). Must start with a letter or underscore, followed by alphanumeric
// or underscore.
var identifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// forbiddenKeywords are statement types a generated query must never
// contain, checked as standalone words after comment stripping.
var forbiddenKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true,
	"DROP": true, "CREATE": true, "ALTER": true, "TRUNCATE": true,
	"GRANT": true, "REVOKE": true, "EXEC": true, "EXECUTE": true,
	"CALL": true, "COPY": true, "VACUUM": true, "ANALYZE": true,
	"SET": true, "RESET": true, "LOCK": true, "LISTEN": true, "NOTIFY": true,
	"PREPARE": true, "DEALLOCATE": true, "DO": true, "COMMENT": true,
}

var (
	lineCommentRegex  = regexp.MustCompile(`--[^\n]*`)
	blockCommentRegex = regexp.MustCompile(`(?s)/\*.*?\*/`)
	wordRegex         = regexp.MustCompile(`[a-zA-Z_][a-zA-Z0-9_]*`)
	fromJoinRegex     = regexp.MustCompile(`(?i)\b(?:FROM|JOIN)\s+([a-zA-Z_][a-zA-Z0-9_]*(?:\.[a-zA-Z_][a-zA-Z0-9_]*)?)`)
	limitRegex        = regexp.MustCompile(`(?i)\bLIMIT\s+\d+`)
)

// SQLValidator is the gate between generated SQL and the tenant database.
// It admits exactly one SELECT statement that references only tables the
// discovery step surfaced, and bounds its result size.
type SQLValidator struct {
	maxRows int
}

// NewSQLValidator creates a validator that caps results at maxRows.
func NewSQLValidator(maxRows int) *SQLValidator {
	if maxRows <= 0 {
		maxRows = 500
	}
	return &SQLValidator{maxRows: maxRows}
}

// Validate checks a generated statement and returns a normalized form with a
// row limit enforced. The allowed set holds the qualified and bare names of
// the tables discovery surfaced for this question. Rejections are
// VALIDATION_REJECTED domain errors naming the reason.
func (v *SQLValidator) Validate(sql string, allowed map[string]bool) (string, error) {
	stripped := blockCommentRegex.ReplaceAllString(sql, " ")
	stripped = lineCommentRegex.ReplaceAllString(stripped, " ")
	stripped = strings.TrimSpace(stripped)
	stripped = strings.TrimSuffix(stripped, ";")
	stripped = strings.TrimSpace(stripped)

	if stripped == "" {
		return "", reject("statement is empty")
	}
	if strings.Contains(stripped, ";") {
		return "", reject("multiple statements are not allowed")
	}

	upper := strings.ToUpper(stripped)
	if !strings.HasPrefix(upper, "SELECT") && !strings.HasPrefix(upper, "WITH") {
		return "", reject("only SELECT statements are allowed")
	}

	for _, word := range wordRegex.FindAllString(upper, -1) {
		if forbiddenKeywords[word] {
			return "", reject(fmt.Sprintf("forbidden keyword %s", word))
		}
	}

	tables := referencedTables(stripped)
	if len(tables) == 0 {
		return "", reject("statement references no tables")
	}
	for _, t := range tables {
		for _, part := range strings.Split(t, ".") {
			if !identifierRegex.MatchString(part) {
				return "", reject(fmt.Sprintf("invalid identifier %q", part))
			}
		}
		if len(allowed) > 0 && !tableAllowed(t, allowed) {
			return "", reject(fmt.Sprintf("table %q was not discovered for this question", t))
		}
	}

	// The injected limit is one past the cap so the executor, which scans at
	// most maxRows rows, can still observe an overflow row and set the
	// truncated flag.
	if !limitRegex.MatchString(stripped) {
		stripped = fmt.Sprintf("%s LIMIT %d", stripped, v.maxRows+1)
	}
	return stripped, nil
}

// referencedTables extracts table names following FROM and JOIN. CTE names
// defined in a WITH clause are excluded so they are not checked against the
// discovered set.
func referencedTables(sql string) []string {
	cteNames := map[string]bool{}
	for _, m := range regexp.MustCompile(`(?i)(?:WITH|,)\s*([a-zA-Z_][a-zA-Z0-9_]*)\s+AS\s*\(`).FindAllStringSubmatch(sql, -1) {
		cteNames[strings.ToLower(m[1])] = true
	}

	seen := map[string]bool{}
	var tables []string
	for _, m := range fromJoinRegex.FindAllStringSubmatch(sql, -1) {
		name := strings.ToLower(m[1])
		if cteNames[name] || seen[name] {
			continue
		}
		seen[name] = true
		tables = append(tables, name)
	}
	return tables
}

// tableAllowed matches a referenced name against the allowed set, accepting
// both bare and schema-qualified forms of the same table.
func tableAllowed(name string, allowed map[string]bool) bool {
	if allowed[name] {
		return true
	}
	if i := strings.LastIndex(name, "."); i >= 0 {
		return allowed[name[i+1:]]
	}
	return allowed["public."+name]
}

func reject(reason string) error {
	return domain.NewDomainError(domain.ErrCodeValidationRejected, reason)
}
