package members

import (
	"encoding/csv"
	"io"
)

// ResolveColumns returns selected, or catalog when nothing was selected.
// Names outside the catalog pass through as ordinary columns.
func ResolveColumns(selected, catalog []string) []string {
	if len(selected) == 0 {
		return catalog
	}
	return selected
}

// WriteCSV writes a header row of fields followed by one row per member.
func WriteCSV(w io.Writer, ms []*Member, fields []string) error {
	writer := csv.NewWriter(w)
	if err := writeRow(w, writer, fields); err != nil {
		return err
	}
	row := make([]string, len(fields))
	for _, m := range ms {
		for i, field := range fields {
			row[i] = m.Value(field)
		}
		if err := writeRow(w, writer, row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// writeRow writes record, quoting a lone empty value explicitly since
// csv.Writer emits it as a blank line, which readers skip.
func writeRow(w io.Writer, writer *csv.Writer, record []string) error {
	if len(record) != 1 || record[0] != "" {
		return writer.Write(record)
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\"\"\n")
	return err
}
