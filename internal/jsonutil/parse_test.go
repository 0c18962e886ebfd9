package jsonutil

import "testing"

type labels struct {
	Labels []struct {
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	} `json:"labels"`
}

func TestStripMarkdownFences(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n[1,2]\n```", `[1,2]`},
		{"single line", "```{}```", "```{}```"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripMarkdownFences(tt.in); got != tt.want {
				t.Errorf("StripMarkdownFences() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseJSON(t *testing.T) {
	raw := "Here you go:\n```json\n{\"labels\":[{\"label\":\"Glas\",\"confidence\":0.91}]}\n```\nLet me know!"
	got, err := ParseJSON[labels](raw)
	if err != nil {
		t.Fatalf("ParseJSON() error = %v", err)
	}
	if len(got.Labels) != 1 || got.Labels[0].Label != "Glas" || got.Labels[0].Confidence != 0.91 {
		t.Errorf("ParseJSON() = %+v", got)
	}
}

func TestParseJSONProseAfterValue(t *testing.T) {
	got, err := ParseJSON[labels](`Result: {"labels":[]} (no litter visible, see {notes})`)
	if err != nil {
		t.Fatalf("ParseJSON() error = %v", err)
	}
	if got.Labels == nil || len(got.Labels) != 0 {
		t.Errorf("Labels = %#v, want empty non-nil slice", got.Labels)
	}
}

func TestParseJSONErrors(t *testing.T) {
	if _, err := ParseJSON[labels]("no json here"); err == nil {
		t.Error("expected error for text without JSON")
	}
	if _, err := ParseJSON[labels](`{"labels": [`); err == nil {
		t.Error("expected error for truncated JSON")
	}
}
