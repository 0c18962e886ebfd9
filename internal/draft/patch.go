package draft

import (
	"time"

	"github.com/fpang/litter-report/internal/report"
)

// Patch updates whole fields of a draft and reports whether anything changed.
// A patch that returns false must leave the draft untouched.
type Patch func(d *report.Draft) bool

// WithPhoto replaces the photo. A different photo drops the previous
// classification and any upload id, since both belong to the old image.
func WithPhoto(p report.Photo) Patch {
	return func(d *report.Draft) bool {
		if d.Photo != nil && d.Photo.ID != p.ID {
			d.Classification = nil
			d.SubmissionID = ""
		}
		photo := p
		if p.Position != nil {
			pos := *p.Position
			photo.Position = &pos
		}
		d.Photo = &photo
		return true
	}
}

// WithClassification records labels for photoID. It is discarded when the
// draft's current photo is no longer photoID.
func WithClassification(photoID string, labels []report.Label, at time.Time) Patch {
	return func(d *report.Draft) bool {
		if d.Photo == nil || d.Photo.ID != photoID {
			return false
		}
		ls := make([]report.Label, len(labels))
		copy(ls, labels)
		d.Classification = &report.Classification{PhotoID: photoID, Labels: ls, ClassifiedAt: at}
		return true
	}
}

// ClearClassification marks the draft as not yet classified.
func ClearClassification() Patch {
	return func(d *report.Draft) bool {
		if d.Classification == nil {
			return false
		}
		d.Classification = nil
		return true
	}
}

// WithLocation replaces the location.
func WithLocation(l report.Location) Patch {
	return func(d *report.Draft) bool {
		if d.Location != nil && *d.Location == l {
			return false
		}
		loc := l
		d.Location = &loc
		return true
	}
}

// WithContact replaces the contact details. Nil or all-empty contact is
// stored as absent (anonymous).
func WithContact(c *report.Contact) Patch {
	return func(d *report.Draft) bool {
		if c == nil || c.IsEmpty() {
			if d.Contact == nil {
				return false
			}
			d.Contact = nil
			return true
		}
		if d.Contact != nil && *d.Contact == *c {
			return false
		}
		cc := *c
		d.Contact = &cc
		return true
	}
}

// WithComment replaces the free-text comment.
func WithComment(comment string) Patch {
	return func(d *report.Draft) bool {
		if d.Comment == comment {
			return false
		}
		d.Comment = comment
		return true
	}
}

// WithSubmissionID records the server-assigned id of the uploaded photo.
func WithSubmissionID(id string) Patch {
	return func(d *report.Draft) bool {
		if d.SubmissionID == id {
			return false
		}
		d.SubmissionID = id
		return true
	}
}

// WithStatus moves the draft to status. Submitted is refused unless the
// photo, location and submission id are all present.
func WithStatus(status report.Status) Patch {
	return func(d *report.Draft) bool {
		if d.Status == status {
			return false
		}
		if status == report.StatusSubmitted && (d.Photo == nil || d.Location == nil || d.SubmissionID == "") {
			return false
		}
		d.Status = status
		return true
	}
}
