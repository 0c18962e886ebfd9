package assets

import (
	"strings"
	"testing"
)

func TestClassificationSystemPromptListsCategories(t *testing.T) {
	got, err := ClassificationSystemPrompt([]string{"Glas", "Papier en karton"})
	if err != nil {
		t.Fatalf("ClassificationSystemPrompt() error = %v", err)
	}
	for _, want := range []string{"- Glas\n", "- Papier en karton\n", `"labels"`} {
		if !strings.Contains(got, want) {
			t.Errorf("prompt missing %q:\n%s", want, got)
		}
	}
}

func TestClassificationUserPromptEmbedded(t *testing.T) {
	if strings.TrimSpace(ClassificationUserPrompt) == "" {
		t.Error("ClassificationUserPrompt is empty")
	}
}
