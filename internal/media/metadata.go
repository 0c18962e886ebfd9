package media

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/evanoberholster/imagemeta"
	"github.com/fpang/litter-report/internal/report"
	"github.com/rs/zerolog/log"
)

// Metadata is the subset of EXIF used by the report flow.
type Metadata struct {
	Position    *report.Position
	DateTaken   time.Time
	CameraMake  string
	CameraModel string
}

// ExtractMetadata decodes EXIF from an in-memory image. JPEG, HEIC and TIFF
// carry EXIF; other formats usually return an error, which callers treat as
// "no metadata".
func ExtractMetadata(data []byte) (*Metadata, error) {
	exifData, err := imagemeta.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode EXIF metadata: %w", err)
	}

	meta := &Metadata{
		CameraMake:  strings.TrimSpace(exifData.Make),
		CameraModel: strings.TrimSpace(exifData.Model),
	}

	gps := exifData.GPS
	if gps.Latitude() != 0 || gps.Longitude() != 0 {
		meta.Position = &report.Position{Latitude: gps.Latitude(), Longitude: gps.Longitude()}
	}

	// DateTimeOriginal > CreateDate > ModifyDate
	switch {
	case !exifData.DateTimeOriginal().IsZero():
		meta.DateTaken = exifData.DateTimeOriginal()
	case !exifData.CreateDate().IsZero():
		meta.DateTaken = exifData.CreateDate()
	case !exifData.ModifyDate().IsZero():
		meta.DateTaken = exifData.ModifyDate()
	}

	log.Debug().
		Bool("has_gps", meta.Position != nil).
		Bool("has_date", !meta.DateTaken.IsZero()).
		Msg("Image metadata extraction complete")

	return meta, nil
}
