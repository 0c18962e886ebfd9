// Package submission sends a completed draft to the reporting backend in two
// calls: a photo upload that returns the report id, then the final record.
package submission

import (
	"context"
	"errors"
	"fmt"
)

// Record is the final report body sent after the photo upload.
type Record struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
	Email     string  `json:"email"`
	Name      string  `json:"naam"`
	Comment   string  `json:"comment"`
	ImageID   int64   `json:"imageId"`
	Address   string  `json:"address,omitempty"`
	Labels    []Label `json:"labels,omitempty"`
}

// Label is a classification hint attached to the record.
type Label struct {
	Type       string  `json:"afval_type"`
	Confidence float64 `json:"confidence"`
}

// Backend is the reporting service.
type Backend interface {
	// UploadPhoto stores the photo and returns the server-assigned report id.
	UploadPhoto(ctx context.Context, data []byte, mimeType string) (string, error)
	// Finalize attaches the record to the report id.
	Finalize(ctx context.Context, id string, rec Record) error
}

// StatusError is returned by a Backend when the service answers with a
// non-success status.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// IsRejection reports whether err is a 4xx answer, meaning the request itself
// was refused and resending it unchanged will not help.
func IsRejection(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode >= 400 && se.StatusCode < 500
}
