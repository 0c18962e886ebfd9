// Package assets provides prompt templates embedded at compile time.
package assets

import (
	"bytes"
	_ "embed"
	"text/template"
)

//go:embed prompts/classification-system.txt
var classificationSystemTemplate string

// ClassificationUserPrompt accompanies each photo sent for classification.
//
//go:embed prompts/classification-user.txt
var ClassificationUserPrompt string

var classificationSystemTmpl = template.Must(template.New("classification-system").Parse(classificationSystemTemplate))

// ClassificationSystemPrompt renders the system instruction listing the
// waste categories the model may answer with.
func ClassificationSystemPrompt(categories []string) (string, error) {
	var buf bytes.Buffer
	if err := classificationSystemTmpl.Execute(&buf, struct{ Categories []string }{categories}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
