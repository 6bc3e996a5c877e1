package codes

import (
	"strings"
	"testing"

	"classgate/internal/domain"
)

func TestExportParseRoundTrip(t *testing.T) {
	items := []*domain.AccessCode{
		{Code: "PLAIN234", Name: "Alice"},
		{Code: "COMMA567", Name: "Last, First"},
		{Code: "QUOTE890", Name: `The "One"`},
		{Code: "NEWLINE2", Name: "line one\nline two"},
		{Code: "EMPTY345", Name: ""},
	}

	parsed := ParseCSV(ExportCSV(items))
	if len(parsed) != len(items) {
		t.Fatalf("parsed %d rows, want %d", len(parsed), len(items))
	}
	for i, it := range items {
		if parsed[i].Code != it.Code {
			t.Errorf("row %d code = %q, want %q", i, parsed[i].Code, it.Code)
		}
		if parsed[i].Name == nil {
			t.Fatalf("row %d name missing", i)
		}
		if *parsed[i].Name != it.Name {
			t.Errorf("row %d name = %q, want %q", i, *parsed[i].Name, it.Name)
		}
	}
}

func TestExportQuoting(t *testing.T) {
	csv := ExportCSV([]*domain.AccessCode{{Code: "ABCD2345", Name: `a,"b"`}})
	want := "code,name\nABCD2345,\"a,\"\"b\"\"\""
	if csv != want {
		t.Errorf("export = %q, want %q", csv, want)
	}
}

func TestParseHeaderless(t *testing.T) {
	parsed := ParseCSV("abcd2345,Alice\nefgh6789")
	if len(parsed) != 2 {
		t.Fatalf("parsed %d rows, want 2", len(parsed))
	}
	if parsed[0].Code != "ABCD2345" || parsed[0].Name == nil || *parsed[0].Name != "Alice" {
		t.Errorf("row 0 = %+v", parsed[0])
	}
	if parsed[1].Code != "EFGH6789" || parsed[1].Name != nil {
		t.Errorf("row 1 = %+v", parsed[1])
	}
}

func TestParseHeaderCaseInsensitive(t *testing.T) {
	parsed := ParseCSV("Name,CODE\nBob, wxyz 2345 ")
	if len(parsed) != 1 {
		t.Fatalf("parsed %d rows, want 1", len(parsed))
	}
	if parsed[0].Code != "WXYZ2345" {
		t.Errorf("code = %q, want whitespace-stripped uppercase", parsed[0].Code)
	}
	if parsed[0].Name == nil || *parsed[0].Name != "Bob" {
		t.Errorf("name = %v, want Bob", parsed[0].Name)
	}
}

func TestParseHeaderWithoutNameColumn(t *testing.T) {
	parsed := ParseCSV("code\nabcd2345")
	if len(parsed) != 1 {
		t.Fatalf("parsed %d rows, want 1", len(parsed))
	}
	if parsed[0].Name != nil {
		t.Errorf("name = %v, want nil when no name column", parsed[0].Name)
	}
}

func TestParseSkipsUnusableRows(t *testing.T) {
	parsed := ParseCSV("code,name\n,NoCode\n\n  \nGOOD2345,Fine")
	if len(parsed) != 1 {
		t.Fatalf("parsed %d rows, want 1", len(parsed))
	}
	if parsed[0].Code != "GOOD2345" {
		t.Errorf("code = %q", parsed[0].Code)
	}
}

func TestParseCRLF(t *testing.T) {
	parsed := ParseCSV("code,name\r\nabcd2345,Alice\r\n")
	if len(parsed) != 1 {
		t.Fatalf("parsed %d rows, want 1", len(parsed))
	}
	if parsed[0].Code != "ABCD2345" {
		t.Errorf("code = %q", parsed[0].Code)
	}
}

func TestExportCodesOnly(t *testing.T) {
	csv := ExportCodesOnly([]string{"AAAA2222", "BBBB3333"})
	lines := strings.Split(csv, "\n")
	if len(lines) != 3 || lines[0] != "code" || lines[1] != "AAAA2222" || lines[2] != "BBBB3333" {
		t.Errorf("export = %q", csv)
	}
}
