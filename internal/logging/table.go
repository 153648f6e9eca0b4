package logging

import (
	"fmt"
	"math"
	"strings"

	"github.com/linuxmatters/takemaster/internal/audio"
)

// MetricRow is one row of a MetricTable. Values are pre-formatted so a row
// can mix precisions and placeholders.
type MetricRow struct {
	Label          string
	Values         []string // one per column
	Unit           string
	Interpretation string

	// change is last minus first column, NaN when either is not a number.
	change   float64
	decimals int
}

// MetricTable lays out metrics side by side, one column per processing
// point. Units follow the values and the interpretation column is only
// drawn when some row has one.
type MetricTable struct {
	Headers []string
	Rows    []MetricRow

	// ShowChange adds a signed column with the difference between the last
	// and first value of rows added through AddMetricRow.
	ShowChange bool
}

// MissingValue is the placeholder for unavailable measurements
const MissingValue = "-"

// DigitalSilenceThreshold is the level at or below which a value reads as
// digital silence. Measurements clamp true digital zero to audio.SilenceDB.
const DigitalSilenceThreshold = audio.SilenceDB

// LUFSMeasurementFloor is the BS.1770 absolute gate. Values below it mean
// the signal was too quiet to measure.
const LUFSMeasurementFloor = -70.0

// NewMetricTable creates a MetricTable with the given headers, defaulting
// to the per-take Input / Output columns.
func NewMetricTable(headers ...string) *MetricTable {
	if len(headers) == 0 {
		headers = []string{"Input", "Output"}
	}
	return &MetricTable{Headers: headers}
}

// AddRow adds a row of pre-formatted values. It has no change value.
func (t *MetricTable) AddRow(label string, values []string, unit string, interpretation string) {
	t.Rows = append(t.Rows, MetricRow{
		Label:          label,
		Values:         values,
		Unit:           unit,
		Interpretation: interpretation,
		change:         math.NaN(),
	})
}

// AddMetricRow adds a row of numbers formatted with format. NaN shows as
// MissingValue.
func (t *MetricTable) AddMetricRow(label string, values []float64, format func(float64, int) string, decimals int, unit string, interpretation string) {
	formatted := make([]string, len(values))
	for i, v := range values {
		formatted[i] = format(v, decimals)
	}
	row := MetricRow{
		Label:          label,
		Values:         formatted,
		Unit:           unit,
		Interpretation: interpretation,
		change:         math.NaN(),
		decimals:       decimals,
	}
	if n := len(values); n > 1 && measurable(values[0]) && measurable(values[n-1]) {
		row.change = values[n-1] - values[0]
	}
	t.Rows = append(t.Rows, row)
}

// measurable reports whether v is a real reading rather than a floor or a gap.
func measurable(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > DigitalSilenceThreshold
}

func (t *MetricTable) columns() []string {
	if t.ShowChange {
		return append(append([]string(nil), t.Headers...), "Change")
	}
	return t.Headers
}

func (t *MetricTable) cells(row MetricRow) []string {
	out := make([]string, 0, len(t.Headers)+1)
	for i := range t.Headers {
		v := MissingValue
		if i < len(row.Values) && row.Values[i] != "" {
			v = row.Values[i]
		}
		out = append(out, v)
	}
	if t.ShowChange {
		out = append(out, formatMetricSigned(row.change, row.decimals))
	}
	return out
}

// String renders the table: labels left-aligned, values right-aligned in
// their columns.
func (t *MetricTable) String() string {
	if len(t.Rows) == 0 {
		return ""
	}

	columns := t.columns()
	widths := make([]int, len(columns))
	for i, h := range columns {
		widths[i] = len(h)
	}
	var labelWidth, unitWidth int
	interpret := false
	for _, row := range t.Rows {
		labelWidth = max(labelWidth, len(row.Label))
		unitWidth = max(unitWidth, len(row.Unit))
		interpret = interpret || row.Interpretation != ""
		for i, c := range t.cells(row) {
			widths[i] = max(widths[i], len(c))
		}
	}

	var sb strings.Builder
	writeLine := func(label string, cells []string, unit, interpretation string) {
		line := fmt.Sprintf("%-*s  ", labelWidth, label)
		for i, c := range cells {
			line += fmt.Sprintf("%*s  ", widths[i], c)
		}
		if unitWidth > 0 {
			line += fmt.Sprintf("%-*s ", unitWidth, unit)
		}
		if interpret {
			line += interpretation
		}
		sb.WriteString(line)
		sb.WriteString("\n")
	}

	header := ""
	if interpret {
		header = "Interpretation"
	}
	writeLine("", columns, "", header)
	for _, row := range t.Rows {
		writeLine(row.Label, t.cells(row), row.Unit, row.Interpretation)
	}
	return sb.String()
}

// isDigitalSilence reports whether value is at or below the silence floor.
func isDigitalSilence(value float64) bool {
	return math.IsInf(value, -1) || value <= DigitalSilenceThreshold
}

// formatMetric formats value to decimals places, switching to scientific
// notation for tiny non-zero values.
func formatMetric(value float64, decimals int) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return MissingValue
	}
	if value != 0 && math.Abs(value) < 0.0001 {
		return fmt.Sprintf("%.2e", value)
	}
	return fmt.Sprintf("%.*f", decimals, value)
}

// formatMetricDB formats a level, showing "< -120" for digital silence.
func formatMetricDB(value float64, decimals int) string {
	if math.IsNaN(value) || math.IsInf(value, 1) {
		return MissingValue
	}
	if isDigitalSilence(value) {
		return "< -120"
	}
	return fmt.Sprintf("%.*f", decimals, value)
}

// formatMetricLUFS formats loudness, showing "< -70" below the absolute gate.
func formatMetricLUFS(value float64, decimals int) string {
	if math.IsNaN(value) || math.IsInf(value, 1) {
		return MissingValue
	}
	if value < LUFSMeasurementFloor {
		return "< -70"
	}
	return fmt.Sprintf("%.*f", decimals, value)
}

// formatMetricSigned formats a difference with an explicit sign.
func formatMetricSigned(value float64, decimals int) string {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return MissingValue
	}
	return fmt.Sprintf("%+.*f", decimals, value)
}
