// Package report defines the in-progress litter report (the draft) and the
// values that flow into it from the capture, location and contact steps.
package report

import (
	"time"
)

// Status is the lifecycle state of a draft.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusSubmitting Status = "submitting"
	StatusSubmitted  Status = "submitted"
	StatusFailed     Status = "failed"
)

// Photo source values.
const (
	SourceCamera = "camera"
	SourceImport = "import"
)

// Location source values.
const (
	LocationFromDevice = "device"
	LocationFromSearch = "search"
	LocationFromMap    = "map"
	LocationFromPhoto  = "photo"
)

// DegradedAddress is used when reverse geocoding fails. Coordinates remain
// authoritative.
const DegradedAddress = "Selected location"

// Position is a WGS84 coordinate pair.
type Position struct {
	Latitude  float64 `json:"lat" dynamodbav:"lat"`
	Longitude float64 `json:"lon" dynamodbav:"lon"`
}

// Photo references a stored still image and its derived preview.
type Photo struct {
	ID         string    `json:"id" dynamodbav:"id"`
	Key        string    `json:"key" dynamodbav:"key"`
	PreviewKey string    `json:"previewKey" dynamodbav:"previewKey"`
	MIMEType   string    `json:"mimeType" dynamodbav:"mimeType"`
	Size       int64     `json:"size" dynamodbav:"size"`
	Width      int       `json:"width,omitempty" dynamodbav:"width,omitempty"`
	Height     int       `json:"height,omitempty" dynamodbav:"height,omitempty"`
	Source     string    `json:"source" dynamodbav:"source"`
	CapturedAt time.Time `json:"capturedAt" dynamodbav:"capturedAt"`
	// Position is the EXIF GPS position of an imported photo, if any.
	Position *Position `json:"position,omitempty" dynamodbav:"position,omitempty"`
}

// Label is one waste-type guess from the classifier.
type Label struct {
	Name       string  `json:"label" dynamodbav:"label"`
	Confidence float64 `json:"confidence" dynamodbav:"confidence"`
}

// Classification holds the labels produced for a specific photo. A nil
// *Classification means "not yet classified"; an empty Labels slice means the
// classifier found nothing.
type Classification struct {
	PhotoID      string    `json:"photoId" dynamodbav:"photoId"`
	Labels       []Label   `json:"labels" dynamodbav:"labels"`
	ClassifiedAt time.Time `json:"classifiedAt" dynamodbav:"classifiedAt"`
}

// Location is a region-checked coordinate pair with a display address.
type Location struct {
	Latitude            float64 `json:"lat" dynamodbav:"lat"`
	Longitude           float64 `json:"lon" dynamodbav:"lon"`
	Address             string  `json:"address" dynamodbav:"address"`
	WithinAllowedRegion bool    `json:"withinAllowedRegion" dynamodbav:"withinAllowedRegion"`
	Source              string  `json:"source,omitempty" dynamodbav:"source,omitempty"`
}

// Contact is optional reporter contact info. A nil *Contact on the draft is
// the anonymous state.
type Contact struct {
	Name  string `json:"name,omitempty" dynamodbav:"name,omitempty" validate:"max=100"`
	Email string `json:"email,omitempty" dynamodbav:"email,omitempty" validate:"omitempty,email,max=254"`
}

// IsEmpty reports whether neither field is set.
func (c Contact) IsEmpty() bool {
	return c.Name == "" && c.Email == ""
}

// Draft is the single in-progress report.
type Draft struct {
	ID             string          `json:"id" dynamodbav:"id"`
	Photo          *Photo          `json:"photo,omitempty" dynamodbav:"photo,omitempty"`
	Classification *Classification `json:"classification,omitempty" dynamodbav:"classification,omitempty"`
	Location       *Location       `json:"location,omitempty" dynamodbav:"location,omitempty"`
	Contact        *Contact        `json:"contact,omitempty" dynamodbav:"contact,omitempty"`
	Comment        string          `json:"comment,omitempty" dynamodbav:"comment,omitempty"`
	SubmissionID   string          `json:"submissionId,omitempty" dynamodbav:"submissionId,omitempty"`
	Status         Status          `json:"status" dynamodbav:"status"`
	CreatedAt      time.Time       `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt" dynamodbav:"updatedAt"`
}

// HasPhoto reports whether a photo has been captured or imported.
func (d Draft) HasPhoto() bool { return d.Photo != nil }

// HasValidLocation reports whether a location inside the allowed region is set.
func (d Draft) HasValidLocation() bool {
	return d.Location != nil && d.Location.WithinAllowedRegion
}

// IsEmpty reports whether the citizen has entered nothing yet.
func (d Draft) IsEmpty() bool {
	return d.Photo == nil && d.Location == nil && d.Contact == nil && d.Comment == ""
}

// IsAnonymous reports whether the reporter left no contact details.
func (d Draft) IsAnonymous() bool { return d.Contact == nil }

// Clone returns a deep copy so callers cannot mutate shared state.
func (d Draft) Clone() Draft {
	out := d
	if d.Photo != nil {
		p := *d.Photo
		if d.Photo.Position != nil {
			pos := *d.Photo.Position
			p.Position = &pos
		}
		out.Photo = &p
	}
	if d.Classification != nil {
		c := *d.Classification
		if d.Classification.Labels != nil {
			c.Labels = append([]Label{}, d.Classification.Labels...)
		}
		out.Classification = &c
	}
	if d.Location != nil {
		l := *d.Location
		out.Location = &l
	}
	if d.Contact != nil {
		c := *d.Contact
		out.Contact = &c
	}
	return out
}
