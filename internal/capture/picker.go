package capture

import (
	"context"
	"errors"

	"github.com/ncruces/zenity"
)

// ErrPickCanceled is returned by a Picker when the user dismisses it.
var ErrPickCanceled = errors.New("file selection canceled")

// Picker lets the user choose an image file on the device.
type Picker interface {
	Pick(ctx context.Context) (path string, err error)
}

// ZenityPicker shows the native file dialog of the machine running the
// process.
type ZenityPicker struct {
	Title string
}

func (z ZenityPicker) Pick(ctx context.Context) (string, error) {
	title := z.Title
	if title == "" {
		title = "Select a photo of the litter"
	}
	path, err := zenity.SelectFile(
		zenity.Title(title),
		zenity.Context(ctx),
		zenity.FileFilters{
			{
				Name: "Images",
				Patterns: []string{
					"*.jpg", "*.jpeg", "*.png", "*.gif", "*.webp", "*.heic", "*.heif",
					"*.JPG", "*.JPEG", "*.PNG", "*.HEIC",
				},
			},
		},
	)
	if errors.Is(err, zenity.ErrCanceled) {
		return "", ErrPickCanceled
	}
	return path, err
}
