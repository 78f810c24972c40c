package export

import "fmt"

// Dataset is the tabular content of a report. Rows are keyed by header.
type Dataset struct {
	Headers []string
	Rows    []map[string]string
	// Numeric lists the headers holding amounts or counts.
	Numeric []string
	// Totals, when set, is rendered as a closing row.
	Totals map[string]string
}

func (d Dataset) validate(format string) error {
	if len(d.Headers) == 0 {
		return fmt.Errorf("%s requires at least one header", format)
	}
	return nil
}

func (d Dataset) isNumeric(header string) bool {
	for _, h := range d.Numeric {
		if h == header {
			return true
		}
	}
	return false
}

// records returns the body rows, plus the totals row when present, in header order.
func (d Dataset) records() [][]string {
	out := make([][]string, 0, len(d.Rows)+1)
	for _, row := range d.Rows {
		out = append(out, d.record(row))
	}
	if len(d.Totals) > 0 {
		out = append(out, d.record(d.Totals))
	}
	return out
}

func (d Dataset) record(row map[string]string) []string {
	rec := make([]string, len(d.Headers))
	for i, h := range d.Headers {
		rec[i] = row[h]
	}
	return rec
}
