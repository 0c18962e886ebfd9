// Package camera abstracts a video capture device behind a small
// open/frame/stop contract and implements the constraint fallback ladder.
package camera

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/fpang/litter-report/internal/report"
	"github.com/rs/zerolog/log"
)

// Facing selects the front or rear camera.
type Facing string

const (
	FacingEnvironment Facing = "environment"
	FacingUser        Facing = "user"
	FacingAny         Facing = ""
)

// Ideal capture resolution requested first.
const (
	IdealWidth  = 1920
	IdealHeight = 1080
)

// Device errors. Devices wrap one of these so the ladder can classify them.
var (
	ErrPermissionDenied = errors.New("camera permission denied")
	ErrNoDevice         = errors.New("no camera found")
	ErrDeviceBusy       = errors.New("camera is in use by another application")
	ErrConstraints      = errors.New("camera does not support the requested settings")
)

// Constraints describe a stream request. Zero values mean "no preference".
type Constraints struct {
	Width  int
	Height int
	Facing Facing
}

func (c Constraints) String() string {
	if c.Width == 0 && c.Height == 0 && c.Facing == FacingAny {
		return "any"
	}
	return fmt.Sprintf("%dx%d facing=%q", c.Width, c.Height, c.Facing)
}

// Ladder returns the constraint sets to try, most preferred first.
func Ladder(facing Facing) []Constraints {
	ladder := []Constraints{{Width: IdealWidth, Height: IdealHeight, Facing: facing}}
	if facing != FacingAny {
		ladder = append(ladder, Constraints{Facing: facing})
	}
	return append(ladder, Constraints{})
}

// Stream is an open video stream.
type Stream interface {
	// Frame returns the current video frame.
	Frame(ctx context.Context) (image.Image, error)
	// Stop returns the device to the OS.
	Stop()
}

// Device opens streams.
type Device interface {
	Open(ctx context.Context, c Constraints) (Stream, error)
}

// CauseOf maps a device error to a report cause.
func CauseOf(err error) report.Cause {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return report.CausePermissionDenied
	case errors.Is(err, ErrDeviceBusy):
		return report.CauseDeviceBusy
	case errors.Is(err, ErrConstraints):
		return report.CauseConstraintsUnsatisfiable
	default:
		return report.CauseNoDevice
	}
}

var causeMessages = map[report.Cause]string{
	report.CausePermissionDenied:         "camera access was denied",
	report.CauseNoDevice:                 "no camera was found on this device",
	report.CauseDeviceBusy:               "the camera is in use by another application",
	report.CauseConstraintsUnsatisfiable: "the camera does not support the requested settings",
}

// Open walks the constraint ladder for facing and returns the first stream
// that opens. A permission denial ends the walk, since relaxing constraints
// cannot change the answer. When every attempt fails the error is a
// CameraUnavailable report error carrying the last attempt's cause.
func Open(ctx context.Context, dev Device, facing Facing) (Stream, Constraints, error) {
	var lastErr error
	for _, c := range Ladder(facing) {
		if err := ctx.Err(); err != nil {
			return nil, Constraints{}, err
		}
		s, err := dev.Open(ctx, c)
		if err == nil {
			log.Debug().Str("constraints", c.String()).Msg("Camera stream opened")
			return s, c, nil
		}
		lastErr = err
		log.Debug().Err(err).Str("constraints", c.String()).Msg("Camera constraints rejected")
		if errors.Is(err, ErrPermissionDenied) {
			break
		}
	}
	cause := CauseOf(lastErr)
	return nil, Constraints{}, report.NewError(report.ErrCameraUnavailable, cause, causeMessages[cause], lastErr)
}

// Session is an acquired camera stream. Release is idempotent.
type Session struct {
	stream      Stream
	constraints Constraints
	openedAt    time.Time

	once sync.Once
}

// NewSession wraps an open stream.
func NewSession(s Stream, c Constraints) *Session {
	return &Session{stream: s, constraints: c, openedAt: time.Now()}
}

// Constraints returns the constraints the stream was opened with.
func (s *Session) Constraints() Constraints { return s.constraints }

// Frame grabs the current frame.
func (s *Session) Frame(ctx context.Context) (image.Image, error) {
	return s.stream.Frame(ctx)
}

// Release stops the stream once.
func (s *Session) Release() {
	s.once.Do(func() {
		s.stream.Stop()
		log.Debug().Dur("held", time.Since(s.openedAt)).Msg("Camera released")
	})
}
