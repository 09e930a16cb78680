package format

import "testing"

func TestEscapeMarkdown(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		version int
		entity  string
		want    string
	}{
		{"v1 specials", "a_b*c`d[e]", MarkdownV1, "", `a\_b\*c\` + "`" + `d\[e]`},
		{"v1 plain", "Anna 15:00", MarkdownV1, "", "Anna 15:00"},
		{"v2 specials", "1.5 (ok)!", MarkdownV2, "", `1\.5 \(ok\)\!`},
		{"v2 backslash", `a\b`, MarkdownV2, "", `a\\b`},
		{"v2 code", "x_y`z", MarkdownV2, "code", "x_y\\`z"},
		{"v2 link", "https://e.x/(a)", MarkdownV2, "text_link", `https://e.x/(a\)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EscapeMarkdown(tt.text, tt.version, tt.entity)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("EscapeMarkdown(%q) = %q, want %q", tt.text, got, tt.want)
			}
		})
	}
	if _, err := EscapeMarkdown("x", 3, ""); err == nil {
		t.Fatal("expected error for unknown version")
	}
}
