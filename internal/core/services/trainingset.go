package services

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"slices"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"transit-classifier-service/internal/core/domain"
)

// TrainingSource names the upstream catalog a raw export comes from.
type TrainingSource string

const (
	SourceKepler TrainingSource = "kepler"
	SourceTESS   TrainingSource = "tess"
)

// ParseTrainingSource parses a source name
func ParseTrainingSource(s string) (TrainingSource, error) {
	switch TrainingSource(strings.ToLower(strings.TrimSpace(s))) {
	case SourceKepler, "koi":
		return SourceKepler, nil
	case SourceTESS, "toi":
		return SourceTESS, nil
	}
	return "", fmt.Errorf("unknown training source %q (want kepler or tess)", s)
}

// TrainingSet is a labelled, fully imputed canonical dataset.
type TrainingSet struct {
	Source  TrainingSource
	Records []domain.FeatureRecord
	Labels  []int
}

// Positives counts rows labelled 1
func (t *TrainingSet) Positives() int {
	n := 0
	for _, l := range t.Labels {
		n += l
	}
	return n
}

// WriteCSV writes the canonical columns followed by a label column.
func (t *TrainingSet) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, domain.NumFeatures+1)
	for _, k := range domain.CanonicalFeatures {
		header = append(header, string(k))
	}
	header = append(header, "label")
	if err := cw.Write(header); err != nil {
		return err
	}

	row := make([]string, domain.NumFeatures+1)
	for i, rec := range t.Records {
		for j, v := range rec {
			row[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		row[domain.NumFeatures] = strconv.Itoa(t.Labels[i])
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// TrainingSetBuilder converts raw KOI and TOI exports into the canonical
// labelled layout consumed by the training engine. Unlike request ingestion it
// fills missing cells with the column median over the retained rows.
type TrainingSetBuilder struct {
	ingest *IngestionService
}

func NewTrainingSetBuilder(ingest *IngestionService) *TrainingSetBuilder {
	return &TrainingSetBuilder{ingest: ingest}
}

// Build reads a raw catalog export and returns the labelled training set.
func (b *TrainingSetBuilder) Build(source TrainingSource, r io.Reader) (*TrainingSet, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read %s export: %w", source, err)
	}
	text, err := decodeText(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmptyOrInvalidTable, err)
	}

	cr := csv.NewReader(strings.NewReader(text))
	cr.Comma = sniffDelimiter(text)
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmptyOrInvalidTable, err)
	}
	rows = dropBlankRows(rows)
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: no data rows", domain.ErrEmptyOrInvalidTable)
	}

	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = NormalizeColumnName(h)
	}

	labeler, err := newLabeler(source, header)
	if err != nil {
		return nil, err
	}

	var cols [domain.NumFeatures]int
	found := 0
	for i, key := range domain.CanonicalFeatures {
		cols[i] = b.ingest.lookupColumn(header, key)
		if cols[i] >= 0 {
			found++
		}
	}
	if found == 0 {
		return nil, domain.ErrNoRecognizedColumns
	}

	snrIdx, _ := domain.FeatureIndex(domain.FeatureSNR)
	deriveSNR := source == SourceTESS && cols[snrIdx] < 0
	depthCol, err1Col, err2Col := indexOf(header, "pl_trandep"), indexOf(header, "pl_trandeperr1"), indexOf(header, "pl_trandeperr2")

	set := &TrainingSet{Source: source}
	var cells [][domain.NumFeatures]*float64
	for _, row := range rows[1:] {
		label, keep := labeler(row)
		if !keep {
			continue
		}

		var vals [domain.NumFeatures]*float64
		for i, col := range cols {
			if v, ok := parseCell(row, col); ok {
				vals[i] = &v
			}
		}
		if deriveSNR {
			v := estimateSNR(row, depthCol, err1Col, err2Col)
			vals[snrIdx] = &v
		}

		cells = append(cells, vals)
		set.Labels = append(set.Labels, label)
	}
	if len(cells) == 0 {
		return nil, fmt.Errorf("%w: no labelled rows", domain.ErrEmptyOrInvalidTable)
	}

	set.Records = medianFill(cells)

	log.WithFields(log.Fields{
		"source":    source,
		"rows":      len(set.Records),
		"positives": set.Positives(),
	}).Info("training set built")
	return set, nil
}

// newLabeler returns a function mapping a raw row to its binary label, or
// keep=false for rows outside the training population.
func newLabeler(source TrainingSource, header []string) (func(row []string) (int, bool), error) {
	switch source {
	case SourceKepler:
		disp := indexOf(header, "koi_disposition")
		if disp < 0 {
			return nil, fmt.Errorf("%w: missing koi_disposition column", domain.ErrNoRecognizedColumns)
		}
		ntFlag, ssFlag := indexOf(header, "koi_fpflag_nt"), indexOf(header, "koi_fpflag_ss")
		return func(row []string) (int, bool) {
			switch strings.ToUpper(cell(row, disp)) {
			case "CONFIRMED", "CANDIDATE":
				return 1, true
			case "FALSE POSITIVE":
				if flagSet(row, ntFlag) || flagSet(row, ssFlag) {
					return 0, true
				}
			}
			return 0, false
		}, nil
	case SourceTESS:
		disp := indexOf(header, "tfopwg_disp")
		if disp < 0 {
			return nil, fmt.Errorf("%w: missing tfopwg_disp column", domain.ErrNoRecognizedColumns)
		}
		return func(row []string) (int, bool) {
			switch strings.ToUpper(cell(row, disp)) {
			case "CP":
				return 1, true
			case "FP":
				return 0, true
			}
			return 0, false
		}, nil
	}
	return nil, fmt.Errorf("unknown training source %q", source)
}

// estimateSNR derives a signal to noise ratio from the transit depth and its
// asymmetric errors. Non-finite results are 0.
func estimateSNR(row []string, depthCol, err1Col, err2Col int) float64 {
	depth, ok1 := parseCell(row, depthCol)
	e1, ok2 := parseCell(row, err1Col)
	e2, ok3 := parseCell(row, err2Col)
	if !ok1 || !ok2 || !ok3 {
		return 0
	}
	snr := depth / ((e1 - e2) / 2)
	if math.IsNaN(snr) || math.IsInf(snr, 0) {
		return 0
	}
	return snr
}

func medianFill(cells [][domain.NumFeatures]*float64) []domain.FeatureRecord {
	var medians [domain.NumFeatures]float64
	for i := range domain.NumFeatures {
		var present []float64
		for _, row := range cells {
			if row[i] != nil {
				present = append(present, *row[i])
			}
		}
		medians[i] = median(present)
	}

	out := make([]domain.FeatureRecord, len(cells))
	for r, row := range cells {
		for i, v := range row {
			if v != nil {
				out[r][i] = *v
			} else {
				out[r][i] = medians[i]
			}
		}
	}
	return out
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	s := slices.Clone(vals)
	slices.Sort(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

func cell(row []string, col int) string {
	if col < 0 || col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

func parseCell(row []string, col int) (float64, bool) {
	s := cell(row, col)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func flagSet(row []string, col int) bool {
	v, ok := parseCell(row, col)
	return ok && v == 1
}
