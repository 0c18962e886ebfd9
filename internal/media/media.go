// Package media inspects and transforms still images: content sniffing,
// EXIF metadata, preview generation and JPEG encoding.
package media

import (
	"fmt"

	"github.com/gabriel-vasile/mimetype"
)

// MaxImportSize is the largest accepted imported image, in bytes.
const MaxImportSize = 10 << 20

// SupportedImageTypes maps accepted MIME types to the file extension used
// when storing them.
var SupportedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
	"image/webp": ".webp",
	"image/heic": ".heic",
	"image/heif": ".heif",
}

// Detect sniffs data and returns its MIME type. ok is false when the content
// is not one of SupportedImageTypes. The file name is never trusted.
func Detect(data []byte) (mime string, ok bool) {
	m := mimetype.Detect(data)
	for cur := m; cur != nil; cur = cur.Parent() {
		if _, supported := SupportedImageTypes[cur.String()]; supported {
			return cur.String(), true
		}
	}
	return m.String(), false
}

// ExtensionFor returns the storage extension for mime, defaulting to ".bin".
func ExtensionFor(mime string) string {
	if ext, ok := SupportedImageTypes[mime]; ok {
		return ext
	}
	return ".bin"
}

// CoordinatesToDMS converts decimal degrees to degrees, minutes, seconds format.
func CoordinatesToDMS(lat, lon float64) string {
	latDir := "N"
	if lat < 0 {
		latDir = "S"
		lat = -lat
	}
	lonDir := "E"
	if lon < 0 {
		lonDir = "W"
		lon = -lon
	}

	latDeg, latMin, latSec := splitDegrees(lat)
	lonDeg, lonMin, lonSec := splitDegrees(lon)

	return fmt.Sprintf("%d°%d'%.2f\"%s, %d°%d'%.2f\"%s",
		latDeg, latMin, latSec, latDir,
		lonDeg, lonMin, lonSec, lonDir)
}

func splitDegrees(v float64) (int, int, float64) {
	deg := int(v)
	minutes := (v - float64(deg)) * 60
	m := int(minutes)
	return deg, m, (minutes - float64(m)) * 60
}
