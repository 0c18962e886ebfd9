package media

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"

	"github.com/rs/zerolog/log"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

// PreviewMaxDimension bounds the longer side of a preview image.
const PreviewMaxDimension = 1024

// CaptureQuality is the JPEG quality used for camera stills.
const CaptureQuality = 85

// PreviewQuality is the JPEG quality used for previews.
const PreviewQuality = 80

// EncodeJPEG encodes img as JPEG at the given quality (1-100).
func EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	if buf.Len() == 0 {
		return nil, fmt.Errorf("JPEG encoding produced no data")
	}
	return buf.Bytes(), nil
}

// Decode decodes JPEG, PNG, GIF or WebP data.
func Decode(data []byte) (image.Image, string, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("failed to decode image: %w", err)
	}
	return img, format, nil
}

// Resize scales img so neither side exceeds maxDimension, keeping the aspect
// ratio. Images already within bounds are returned unchanged.
func Resize(img image.Image, maxDimension int) image.Image {
	bounds := img.Bounds()
	w, h := calculateDimensions(bounds.Dx(), bounds.Dy(), maxDimension)
	if w == bounds.Dx() && h == bounds.Dy() {
		return img
	}
	resized := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
	return resized
}

func calculateDimensions(w, h, maxDimension int) (int, int) {
	if w <= maxDimension && h <= maxDimension {
		return w, h
	}
	if w >= h {
		nh := h * maxDimension / w
		if nh < 1 {
			nh = 1
		}
		return maxDimension, nh
	}
	nw := w * maxDimension / h
	if nw < 1 {
		nw = 1
	}
	return nw, maxDimension
}

// Preview builds a JPEG preview from an encoded image. Formats the standard
// decoders cannot read (HEIC) fall back to the original bytes.
func Preview(data []byte, mime string) (preview []byte, previewMIME string, width, height int, err error) {
	img, _, decErr := Decode(data)
	if decErr != nil {
		if mime == "image/heic" || mime == "image/heif" {
			log.Warn().Str("mime_type", mime).Msg("No decoder for format, using original as preview")
			return data, mime, 0, 0, nil
		}
		return nil, "", 0, 0, decErr
	}

	b := img.Bounds()
	out, err := EncodeJPEG(Resize(img, PreviewMaxDimension), PreviewQuality)
	if err != nil {
		return nil, "", 0, 0, err
	}
	log.Debug().
		Int("orig_width", b.Dx()).
		Int("orig_height", b.Dy()).
		Int("output_size", len(out)).
		Msg("Preview generated")
	return out, "image/jpeg", b.Dx(), b.Dy(), nil
}
