package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"iter"
	"math"
	"strconv"
	"strings"
	"unicode"

	xunicode "golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"transit-classifier-service/internal/core/domain"
)

// FeatureTable is the result of ingesting one delimited file. The column
// mapping is fixed at ingest time; records are built on demand.
type FeatureTable struct {
	rows    [][]string
	columns [domain.NumFeatures]int
	missing []domain.FeatureKey
}

// Len returns the number of data rows
func (t *FeatureTable) Len() int {
	return len(t.rows)
}

// Missing lists the canonical keys that were zero-filled.
func (t *FeatureTable) Missing() []domain.FeatureKey {
	return append([]domain.FeatureKey(nil), t.missing...)
}

// Records yields (row index, record) pairs in file order. The sequence is
// finite and may be ranged over any number of times.
func (t *FeatureTable) Records() iter.Seq2[int, domain.FeatureRecord] {
	return func(yield func(int, domain.FeatureRecord) bool) {
		for i, row := range t.rows {
			if !yield(i, t.record(row)) {
				return
			}
		}
	}
}

func (t *FeatureTable) record(row []string) domain.FeatureRecord {
	var rec domain.FeatureRecord
	for i, col := range t.columns {
		if col < 0 || col >= len(row) {
			continue
		}
		rec[i] = coerce(row[col])
	}
	return rec
}

// IngestionService turns uploaded tables and JSON feature maps into canonical
// feature records.
type IngestionService struct {
	aliases domain.FeatureAliasMap
}

func NewIngestionService(aliases domain.FeatureAliasMap) *IngestionService {
	if aliases == nil {
		aliases = domain.DefaultFeatureAliases()
	}
	return &IngestionService{aliases: aliases}
}

// Aliases returns the alias table in use.
func (s *IngestionService) Aliases() domain.FeatureAliasMap {
	return s.aliases.Clone()
}

// Ingest parses a delimited blob with a header row.
func (s *IngestionService) Ingest(blob []byte) (*FeatureTable, error) {
	text, err := decodeText(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmptyOrInvalidTable, err)
	}

	r := csv.NewReader(strings.NewReader(text))
	r.Comma = sniffDelimiter(text)
	r.Comment = '#'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmptyOrInvalidTable, err)
	}
	records = dropBlankRows(records)
	if len(records) < 2 {
		return nil, fmt.Errorf("%w: no data rows", domain.ErrEmptyOrInvalidTable)
	}

	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = NormalizeColumnName(h)
	}

	table := &FeatureTable{rows: records[1:]}
	found := 0
	for i, key := range domain.CanonicalFeatures {
		col := s.lookupColumn(header, key)
		table.columns[i] = col
		if col < 0 {
			table.missing = append(table.missing, key)
			continue
		}
		found++
	}
	if found == 0 {
		return nil, domain.ErrNoRecognizedColumns
	}

	return table, nil
}

// lookupColumn returns the header index serving key: the canonical name if
// present, otherwise the first alternate in alias order.
func (s *IngestionService) lookupColumn(header []string, key domain.FeatureKey) int {
	if i := indexOf(header, string(key)); i >= 0 {
		return i
	}
	for _, alt := range s.aliases[key] {
		if i := indexOf(header, alt); i >= 0 {
			return i
		}
	}
	return -1
}

// RecordFromMap builds a record from a JSON feature object. Keys go through
// the same normalization and alias lookup as table headers; unknown keys are
// ignored and missing keys are zero-filled. Two keys that normalize to the
// same name are rejected.
func (s *IngestionService) RecordFromMap(features map[string]any) (domain.FeatureRecord, []domain.FeatureKey, error) {
	var rec domain.FeatureRecord

	normalized := make(map[string]any, len(features))
	names := make([]string, 0, len(features))
	for k, v := range features {
		nk := NormalizeColumnName(k)
		if _, dup := normalized[nk]; dup {
			return rec, nil, fmt.Errorf("%w: duplicate key %q", domain.ErrInvalidFeatures, nk)
		}
		names = append(names, nk)
		normalized[nk] = v
	}

	var missing []domain.FeatureKey
	for i, key := range domain.CanonicalFeatures {
		col := s.lookupColumn(names, key)
		if col < 0 {
			missing = append(missing, key)
			continue
		}
		rec[i] = coerceAny(normalized[names[col]])
	}
	if len(missing) == domain.NumFeatures {
		return rec, missing, domain.ErrInvalidFeatures
	}
	return rec, missing, nil
}

// ============================================================================
// helpers
// ============================================================================

// NormalizeColumnName applies NFKC, strips control characters, trims and
// lowercases a header cell.
func NormalizeColumnName(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == '\uFEFF' {
			return -1
		}
		return r
	}, s)
	return strings.ToLower(strings.TrimSpace(s))
}

// decodeText strips a UTF-8 or UTF-16 byte order mark and returns the content
// as UTF-8.
func decodeText(blob []byte) (string, error) {
	out, _, err := transform.Bytes(xunicode.BOMOverride(transform.Nop), blob)
	return string(out), err
}

// sniffDelimiter picks the most frequent of comma, tab and semicolon in the
// first non-comment line. Comma wins ties.
func sniffDelimiter(text string) rune {
	line := ""
	for l := range strings.Lines(text) {
		trimmed := strings.TrimSpace(l)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		line = l
		break
	}
	best, bestN := ',', strings.Count(line, ",")
	for _, d := range []rune{'\t', ';'} {
		if n := strings.Count(line, string(d)); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

// dropBlankRows removes rows made only of delimiters, as left behind by
// spreadsheet exports.
func dropBlankRows(records [][]string) [][]string {
	out := records[:0]
	for _, rec := range records {
		blank := true
		for _, cell := range rec {
			if strings.TrimSpace(cell) != "" {
				blank = false
				break
			}
		}
		if !blank {
			out = append(out, rec)
		}
	}
	return out
}

func indexOf(list []string, s string) int {
	for i, v := range list {
		if v == s {
			return i
		}
	}
	return -1
}

// coerce parses a numeric cell. Anything unparseable or non-finite is 0.
func coerce(cell string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return 0
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func coerceAny(v any) float64 {
	switch x := v.(type) {
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return 0
		}
		return x
	case float32:
		return coerceAny(float64(x))
	case int:
		return float64(x)
	case int64:
		return float64(x)
	case string:
		return coerce(x)
	case fmt.Stringer:
		return coerce(x.String())
	}
	return 0
}
