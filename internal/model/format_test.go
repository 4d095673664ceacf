package model

import (
	"errors"
	"testing"
)

func TestParseFormat(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		input   string
		want    Format
		wantErr bool
	}{
		{name: "html", input: "html", want: FormatHTML},
		{name: "markdown", input: "markdown", want: FormatMarkdown},
		{name: "md alias", input: "MD", want: FormatMarkdown},
		{name: "pdf", input: " pdf ", want: FormatPDF},
		{name: "structured markup", input: "structured-markup", want: FormatHTML},
		{name: "readable text", input: "readable-text", want: FormatMarkdown},
		{name: "paginated document", input: "paginated-document", want: FormatPDF},
		{name: "unknown", input: "docx", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedFormat) {
					t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %q, expected %q", got, tt.want)
			}
		})
	}
}

func TestParseFormats(t *testing.T) {
	t.Parallel()

	t.Run("deduplicates and keeps order", func(t *testing.T) {
		t.Parallel()

		got, err := ParseFormats([]string{"pdf", "markdown,html", "md"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		want := []Format{FormatPDF, FormatMarkdown, FormatHTML}
		if len(got) != len(want) {
			t.Fatalf("got %v, expected %v", got, want)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Errorf("index %d: got %q, expected %q", i, got[i], want[i])
			}
		}
	})

	t.Run("rejects unknown format", func(t *testing.T) {
		t.Parallel()

		if _, err := ParseFormats([]string{"markdown", "epub"}); !errors.Is(err, ErrUnsupportedFormat) {
			t.Errorf("expected ErrUnsupportedFormat, got %v", err)
		}
	})
}

func TestFormatExtension(t *testing.T) {
	t.Parallel()

	cases := map[Format]string{
		FormatHTML:     "html",
		FormatMarkdown: "md",
		FormatPDF:      "pdf",
	}
	for f, ext := range cases {
		if got := f.Extension(); got != ext {
			t.Errorf("%s: got %q, expected %q", f, got, ext)
		}
		if !f.Valid() {
			t.Errorf("%s should be valid", f)
		}
	}
	if Format("epub").Valid() {
		t.Error("epub should not be valid")
	}
}
