// Package classify turns a litter photo into advisory waste-type labels.
// Results never gate the workflow; callers treat every error as "not
// classified".
package classify

import (
	"context"
	"math"
	"sort"
	"strings"

	"github.com/fpang/litter-report/internal/report"
)

// Service classifies one encoded image.
type Service interface {
	Classify(ctx context.Context, image []byte, mimeType string) ([]report.Label, error)
}

// DefaultCategories are the waste types the municipality sorts reports into.
var DefaultCategories = []string{
	"Grofvuil",
	"Restafval",
	"Glas",
	"Papier en karton",
	"Organisch",
	"Textiel",
	"Elektronisch afval",
	"Bouw- en sloopafval",
	"Chemisch afval",
	"Overig",
	"Geen afval",
}

// Normalize drops labels whose confidence is outside (0, 1] and, when
// categories is non-empty, labels that are not one of them (matched case
// insensitively and rewritten to the canonical spelling). Duplicates keep
// their highest confidence. The result is ordered by confidence, highest
// first, and is never nil.
func Normalize(labels []report.Label, categories []string) []report.Label {
	canonical := make(map[string]string, len(categories))
	for _, c := range categories {
		canonical[strings.ToLower(strings.TrimSpace(c))] = c
	}

	best := make(map[string]float64)
	var order []string
	for _, l := range labels {
		c := l.Confidence
		if math.IsNaN(c) || c <= 0 || c > 1 {
			continue
		}
		name := strings.TrimSpace(l.Name)
		if len(canonical) > 0 {
			var ok bool
			if name, ok = canonical[strings.ToLower(name)]; !ok {
				continue
			}
		}
		if name == "" {
			continue
		}
		prev, seen := best[name]
		if !seen {
			order = append(order, name)
		}
		if !seen || c > prev {
			best[name] = c
		}
	}

	out := make([]report.Label, 0, len(order))
	for _, name := range order {
		out = append(out, report.Label{Name: name, Confidence: best[name]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}
