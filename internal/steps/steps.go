// Package steps defines the fixed, ordered list of wizard steps and the
// predicate that gates leaving each one forward.
package steps

import (
	"fmt"

	"github.com/fpang/litter-report/internal/report"
)

// ID names a step.
type ID string

const (
	Introduction ID = "introduction"
	Photo        ID = "photo"
	Location     ID = "location"
	Contact      ID = "contact"
	Review       ID = "review"
	Confirmation ID = "confirmation"
)

// Definition is one immutable step. IsSatisfied must be a pure function of
// the draft.
type Definition struct {
	ID          ID
	Label       string
	IsSatisfied func(d report.Draft) bool
}

// Registry is an ordered, closed list of step definitions.
type Registry struct {
	defs  []Definition
	index map[ID]int
}

// New builds a registry from defs in order. It rejects an empty list,
// duplicate IDs and missing predicates.
func New(defs ...Definition) (*Registry, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("step registry needs at least one step")
	}
	r := &Registry{defs: make([]Definition, len(defs)), index: make(map[ID]int, len(defs))}
	for i, d := range defs {
		if d.IsSatisfied == nil {
			return nil, fmt.Errorf("step %q has no predicate", d.ID)
		}
		if _, dup := r.index[d.ID]; dup {
			return nil, fmt.Errorf("duplicate step %q", d.ID)
		}
		r.defs[i] = d
		r.index[d.ID] = i
	}
	return r, nil
}

func always(report.Draft) bool { return true }

// PhotoSatisfied reports whether a photo has been captured or imported.
func PhotoSatisfied(d report.Draft) bool { return d.HasPhoto() }

// LocationSatisfied reports whether an in-region location is set.
func LocationSatisfied(d report.Draft) bool { return d.HasValidLocation() }

// ReviewSatisfied requires both the photo and the location gates.
func ReviewSatisfied(d report.Draft) bool {
	return PhotoSatisfied(d) && LocationSatisfied(d)
}

// Default returns the citizen report flow:
// introduction, photo, location, contact, review, confirmation.
func Default() *Registry {
	r, err := New(
		Definition{ID: Introduction, Label: "Introduction", IsSatisfied: always},
		Definition{ID: Photo, Label: "Photo", IsSatisfied: PhotoSatisfied},
		Definition{ID: Location, Label: "Location", IsSatisfied: LocationSatisfied},
		Definition{ID: Contact, Label: "Contact details", IsSatisfied: always},
		Definition{ID: Review, Label: "Review", IsSatisfied: ReviewSatisfied},
		Definition{ID: Confirmation, Label: "Confirmation", IsSatisfied: always},
	)
	if err != nil {
		panic(err)
	}
	return r
}

// Steps returns a copy of the ordered definitions.
func (r *Registry) Steps() []Definition {
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	return out
}

// At returns the step at index i. It panics when i is out of range.
func (r *Registry) At(i int) Definition {
	return r.defs[i]
}

// Count returns the number of steps.
func (r *Registry) Count() int {
	return len(r.defs)
}

// IndexOf returns the position of id, or -1 when it is not registered.
func (r *Registry) IndexOf(id ID) int {
	if i, ok := r.index[id]; ok {
		return i
	}
	return -1
}
