package camera

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/fpang/litter-report/internal/media"
)

// StillDevice is a Device whose stream always shows the same picture. It
// stands in for a webcam on machines without one and when the web server
// runs headless. Like a real camera it admits one open stream at a time.
type StillDevice struct {
	img       image.Image
	facings   map[Facing]bool
	maxWidth  int
	maxHeight int

	mu   sync.Mutex
	open bool
}

// NewStillDevice serves img from a camera facing each of facings.
func NewStillDevice(img image.Image, facings ...Facing) *StillDevice {
	b := img.Bounds()
	d := &StillDevice{img: img, facings: make(map[Facing]bool), maxWidth: b.Dx(), maxHeight: b.Dy()}
	for _, f := range facings {
		d.facings[f] = true
	}
	return d
}

// LoadStillDevice decodes the image at path.
func LoadStillDevice(path string, facings ...Facing) (*StillDevice, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read still image %s: %w", path, err)
	}
	img, _, err := media.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode still image %s: %w", path, err)
	}
	return NewStillDevice(img, facings...), nil
}

func (d *StillDevice) Open(_ context.Context, c Constraints) (Stream, error) {
	if c.Facing != FacingAny && !d.facings[c.Facing] {
		return nil, fmt.Errorf("facing %q: %w", c.Facing, ErrConstraints)
	}
	if c.Width > d.maxWidth || c.Height > d.maxHeight {
		return nil, fmt.Errorf("%dx%d exceeds %dx%d: %w", c.Width, c.Height, d.maxWidth, d.maxHeight, ErrConstraints)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.open {
		return nil, ErrDeviceBusy
	}
	d.open = true
	return &stillStream{dev: d}, nil
}

// InUse reports whether a stream is currently open.
func (d *StillDevice) InUse() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.open
}

type stillStream struct {
	dev  *StillDevice
	once sync.Once
}

func (s *stillStream) Frame(ctx context.Context) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.dev.img, nil
}

func (s *stillStream) Stop() {
	s.once.Do(func() {
		s.dev.mu.Lock()
		s.dev.open = false
		s.dev.mu.Unlock()
	})
}

// NoDevice is a Device for machines with no camera configured.
type NoDevice struct{}

func (NoDevice) Open(context.Context, Constraints) (Stream, error) {
	return nil, ErrNoDevice
}
