package codes

import (
	"strings"

	"classgate/internal/domain"
)

// The export format is two columns with header "code,name". A field
// containing a comma, quote, or line break is wrapped in quotes with
// internal quotes doubled. ParseCSV reverses it losslessly, so
// export-then-import round-trips byte-identical fields.

// ExportCSV renders the two-column format.
func ExportCSV(items []*domain.AccessCode) string {
	rows := make([]string, 0, len(items)+1)
	rows = append(rows, "code,name")
	for _, it := range items {
		rows = append(rows, quoteField(it.Code)+","+quoteField(it.Name))
	}
	return strings.Join(rows, "\n")
}

// ExportCodesOnly renders the single-column format used for quick
// downloads right after a bulk generation.
func ExportCodesOnly(codeList []string) string {
	rows := make([]string, 0, len(codeList)+1)
	rows = append(rows, "code")
	rows = append(rows, codeList...)
	return strings.Join(rows, "\n")
}

func quoteField(s string) string {
	if !strings.ContainsAny(s, "\",\n\r") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// ParseCSV accepts rows with a "code" column and an optional "name"
// column, matching headers case-insensitively. Without a header row the
// first column is the code and the second the name. Codes are stripped of
// whitespace and uppercased on ingest; rows without a usable code are
// skipped.
func ParseCSV(text string) []ImportItem {
	var rows [][]string
	for _, line := range splitLines(text) {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, splitRow(line))
	}
	if len(rows) == 0 {
		return nil
	}

	codeIdx, nameIdx := 0, 1
	headerCode, headerName := -1, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "code":
			headerCode = i
		case "name":
			headerName = i
		}
	}
	if headerCode >= 0 {
		codeIdx, nameIdx = headerCode, headerName
		rows = rows[1:]
	}

	out := make([]ImportItem, 0, len(rows))
	for _, cols := range rows {
		if codeIdx >= len(cols) {
			continue
		}
		code := domain.NormalizeCode(cols[codeIdx])
		if code == "" {
			continue
		}
		item := ImportItem{Code: code}
		if nameIdx >= 0 && nameIdx < len(cols) {
			name := strings.TrimSpace(cols[nameIdx])
			item.Name = &name
		}
		out = append(out, item)
	}
	return out
}

// splitLines splits on newlines outside quoted fields, so names may
// contain line breaks.
func splitLines(text string) []string {
	var out []string
	var cur strings.Builder
	inQuotes := false
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == '"':
			inQuotes = !inQuotes
			cur.WriteByte(c)
		case (c == '\n' || c == '\r') && !inQuotes:
			if c == '\r' && i+1 < len(text) && text[i+1] == '\n' {
				i++
			}
			out = append(out, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	out = append(out, cur.String())
	return out
}

// splitRow splits one physical row on commas, honoring quoted fields and
// doubled quotes.
func splitRow(line string) []string {
	var cols []string
	var cur strings.Builder
	inQuotes := false
	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case c == '"':
			if inQuotes && i+1 < len(line) && line[i+1] == '"' {
				cur.WriteByte('"')
				i++
				continue
			}
			inQuotes = !inQuotes
		case c == ',' && !inQuotes:
			cols = append(cols, cur.String())
			cur.Reset()
		default:
			cur.WriteByte(c)
		}
	}
	cols = append(cols, cur.String())
	return cols
}
