// Package capture owns the camera lifecycle and turns camera frames or
// imported files into the draft's photo, then classifies it in the
// background.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fpang/litter-report/internal/blob"
	"github.com/fpang/litter-report/internal/camera"
	"github.com/fpang/litter-report/internal/classify"
	"github.com/fpang/litter-report/internal/draft"
	"github.com/fpang/litter-report/internal/media"
	"github.com/fpang/litter-report/internal/metrics"
	"github.com/fpang/litter-report/internal/report"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// DefaultClassifyTimeout bounds one background classification call.
const DefaultClassifyTimeout = 60 * time.Second

// Pipeline is the single owner of the camera. At most one camera session is
// active at any time.
type Pipeline struct {
	device          camera.Device
	drafts          *draft.Store
	blobs           blob.Store
	classifier      classify.Service
	picker          Picker
	classifyTimeout time.Duration
	now             func() time.Time

	// acquireMu serialises device opens so a superseded open finishes
	// (and stops its stream) before the next one starts.
	acquireMu sync.Mutex

	mu         sync.Mutex
	session    *camera.Session
	generation uint64
	inflight   map[string]bool

	wg sync.WaitGroup
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClassifier enables background classification.
func WithClassifier(c classify.Service) Option {
	return func(p *Pipeline) { p.classifier = c }
}

// WithPicker enables ImportFromDevicePicker.
func WithPicker(pk Picker) Option {
	return func(p *Pipeline) { p.picker = pk }
}

// WithClassifyTimeout overrides DefaultClassifyTimeout.
func WithClassifyTimeout(d time.Duration) Option {
	return func(p *Pipeline) { p.classifyTimeout = d }
}

// New creates a pipeline writing photos to blobs and the draft.
func New(device camera.Device, drafts *draft.Store, blobs blob.Store, opts ...Option) *Pipeline {
	if device == nil {
		device = camera.NoDevice{}
	}
	p := &Pipeline{
		device:          device,
		drafts:          drafts,
		blobs:           blobs,
		classifyTimeout: DefaultClassifyTimeout,
		now:             time.Now,
		inflight:        make(map[string]bool),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// AcquireCamera opens the camera, releasing any existing session first.
// A later AcquireCamera or ReleaseCamera supersedes this call; the stream it
// would have returned is stopped and the call fails with cause superseded.
func (p *Pipeline) AcquireCamera(ctx context.Context, facing camera.Facing) error {
	p.mu.Lock()
	p.generation++
	gen := p.generation
	old := p.session
	p.session = nil
	p.mu.Unlock()
	if old != nil {
		old.Release()
	}

	p.acquireMu.Lock()
	defer p.acquireMu.Unlock()

	if p.superseded(gen) {
		return supersededErr()
	}

	start := time.Now()
	stream, c, err := camera.Open(ctx, p.device, facing)
	m := metrics.New(metrics.Namespace).
		Dimension("Operation", "camera").
		Latency("CameraAcquireLatencyMs", start).
		Count("CameraAcquireCalls")
	if err != nil {
		m.Count("CameraAcquireErrors").Property("cause", string(report.CauseOf(err))).Flush()
		if report.IsKind(err, report.ErrCameraUnavailable) {
			return err
		}
		return report.NewError(report.ErrCameraUnavailable, report.CauseCanceled, "camera acquisition canceled", err)
	}
	m.Flush()

	p.mu.Lock()
	if p.generation != gen {
		p.mu.Unlock()
		stream.Stop()
		log.Debug().Msg("Camera acquisition superseded, stream stopped")
		return supersededErr()
	}
	p.session = camera.NewSession(stream, c)
	p.mu.Unlock()

	log.Info().Str("constraints", c.String()).Msg("Camera acquired")
	return nil
}

func (p *Pipeline) superseded(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation != gen
}

func supersededErr() error {
	return report.NewError(report.ErrCameraUnavailable, report.CauseSuperseded, "camera acquisition superseded", nil)
}

// ReleaseCamera stops the active session, if any, and cancels the effect of
// an in-flight AcquireCamera. It is safe to call at any time.
func (p *Pipeline) ReleaseCamera() {
	p.mu.Lock()
	p.generation++
	s := p.session
	p.session = nil
	p.mu.Unlock()
	if s != nil {
		s.Release()
	}
}

// CameraActive reports whether a camera session is open.
func (p *Pipeline) CameraActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.session != nil
}

// CaptureStill grabs the current frame, stores it as the draft photo,
// releases the camera and starts classification.
func (p *Pipeline) CaptureStill(ctx context.Context) (report.Photo, error) {
	p.mu.Lock()
	s := p.session
	p.mu.Unlock()
	if s == nil {
		return report.Photo{}, report.NewError(report.ErrCaptureFailed, report.CauseNoActiveCamera, "no active camera", nil)
	}

	frame, err := s.Frame(ctx)
	if err != nil {
		return report.Photo{}, report.NewError(report.ErrCaptureFailed, report.CauseUnavailable, "read camera frame", err)
	}
	data, err := media.EncodeJPEG(frame, media.CaptureQuality)
	if err != nil {
		return report.Photo{}, report.NewError(report.ErrCaptureFailed, report.CauseEncoding, "encode still", err)
	}

	pv, err := newRendition(data, "image/jpeg")
	if err != nil {
		return report.Photo{}, report.NewError(report.ErrCaptureFailed, report.CauseEncoding, "render preview", err)
	}
	photo, err := p.storePhoto(ctx, data, "image/jpeg", report.SourceCamera, nil, pv)
	if err != nil {
		return report.Photo{}, report.NewError(report.ErrCaptureFailed, report.CauseStorage, "store still", err)
	}

	p.mu.Lock()
	if p.session == s {
		p.session = nil
		p.generation++
	}
	p.mu.Unlock()
	s.Release()

	p.classifyBytes(photo, data)
	return photo, nil
}

// Import validates an image supplied by the user and makes it the draft
// photo. Only content-sniffed image types up to media.MaxImportSize are
// accepted.
func (p *Pipeline) Import(ctx context.Context, name string, r io.Reader) (report.Photo, error) {
	data, err := io.ReadAll(io.LimitReader(r, media.MaxImportSize+1))
	if err != nil {
		return report.Photo{}, report.NewError(report.ErrInvalidMedia, report.CauseUnavailable, "read imported file", err)
	}
	if len(data) > media.MaxImportSize {
		return report.Photo{}, report.NewError(report.ErrInvalidMedia, report.CauseTooLarge,
			fmt.Sprintf("image is larger than %d MB", media.MaxImportSize>>20), nil)
	}
	mime, ok := media.Detect(data)
	if !ok {
		log.Debug().Str("name", name).Str("detected", mime).Msg("Rejected import")
		return report.Photo{}, report.NewError(report.ErrInvalidMedia, report.CauseUnsupportedType, "file is not a supported image", nil)
	}

	// Sniffing only checks the header; a truncated or corrupt body fails here.
	pv, err := newRendition(data, mime)
	if err != nil {
		log.Debug().Err(err).Str("name", name).Str("mime_type", mime).Msg("Rejected undecodable import")
		return report.Photo{}, report.NewError(report.ErrInvalidMedia, report.CauseUnsupportedType, "file is not a readable image", err)
	}

	var meta *media.Metadata
	if m, err := media.ExtractMetadata(data); err != nil {
		log.Debug().Err(err).Str("name", name).Msg("No EXIF metadata in imported image")
	} else {
		meta = m
	}

	photo, err := p.storePhoto(ctx, data, mime, report.SourceImport, meta, pv)
	if err != nil {
		return report.Photo{}, report.NewError(report.ErrPersistence, report.CauseStorage, "store imported image", err)
	}
	log.Info().
		Str("name", name).
		Str("photoId", photo.ID).
		Str("mime_type", mime).
		Bool("has_gps", photo.Position != nil).
		Msg("Photo imported")

	p.classifyBytes(photo, data)
	return photo, nil
}

// ImportFromDevicePicker asks the configured Picker for a file and imports it.
func (p *Pipeline) ImportFromDevicePicker(ctx context.Context) (report.Photo, error) {
	if p.picker == nil {
		return report.Photo{}, report.NewError(report.ErrInvalidMedia, report.CauseUnavailable, "no file picker available", nil)
	}
	path, err := p.picker.Pick(ctx)
	if errors.Is(err, ErrPickCanceled) {
		return report.Photo{}, report.NewError(report.ErrInvalidMedia, report.CauseCanceled, "no file selected", err)
	}
	if err != nil {
		return report.Photo{}, report.NewError(report.ErrInvalidMedia, report.CauseUnavailable, "file picker failed", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return report.Photo{}, report.NewError(report.ErrInvalidMedia, report.CauseUnavailable, "open selected file", err)
	}
	defer f.Close()
	return p.Import(ctx, filepath.Base(path), f)
}

// rendition is the decoded size and preview of a photo.
type rendition struct {
	preview       []byte
	mime          string
	width, height int
}

func newRendition(data []byte, mime string) (rendition, error) {
	preview, previewMIME, w, h, err := media.Preview(data, mime)
	if err != nil {
		return rendition{}, err
	}
	return rendition{preview: preview, mime: previewMIME, width: w, height: h}, nil
}

// storePhoto writes the original and preview blobs, points the draft at the
// new photo and removes the blobs of the photo it replaces.
func (p *Pipeline) storePhoto(ctx context.Context, data []byte, mime, source string, meta *media.Metadata, pv rendition) (report.Photo, error) {
	current := p.drafts.Current()
	id := uuid.NewString()
	prefix := "photos/" + current.ID + "/" + id
	photo := report.Photo{
		ID:         id,
		Key:        prefix + media.ExtensionFor(mime),
		PreviewKey: prefix + "-preview" + media.ExtensionFor(pv.mime),
		MIMEType:   mime,
		Size:       int64(len(data)),
		Width:      pv.width,
		Height:     pv.height,
		Source:     source,
		CapturedAt: p.now().UTC(),
	}
	if meta != nil {
		photo.Position = meta.Position
		if !meta.DateTaken.IsZero() {
			photo.CapturedAt = meta.DateTaken.UTC()
		}
	}

	if err := p.blobs.Put(ctx, photo.Key, data, mime); err != nil {
		return report.Photo{}, err
	}
	if err := p.blobs.Put(ctx, photo.PreviewKey, pv.preview, pv.mime); err != nil {
		p.deleteBlobs(ctx, photo)
		return report.Photo{}, err
	}

	if _, err := p.drafts.Save(ctx, draft.WithPhoto(photo)); err != nil {
		log.Warn().Err(err).Str("photoId", photo.ID).Msg("Photo kept in memory, draft not persisted")
	}
	if current.Photo != nil && current.Photo.ID != photo.ID {
		p.deleteBlobs(ctx, *current.Photo)
	}
	return photo, nil
}

func (p *Pipeline) deleteBlobs(ctx context.Context, photo report.Photo) {
	for _, key := range []string{photo.Key, photo.PreviewKey} {
		if err := p.blobs.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to delete superseded photo blob")
		}
	}
}

// PhotoBytes returns the stored original of photo.
func (p *Pipeline) PhotoBytes(ctx context.Context, photo report.Photo) ([]byte, error) {
	data, _, err := p.blobs.Get(ctx, photo.Key)
	return data, err
}

// PreviewBytes returns the stored preview of photo.
func (p *Pipeline) PreviewBytes(ctx context.Context, photo report.Photo) ([]byte, string, error) {
	return p.blobs.Get(ctx, photo.PreviewKey)
}

// Classify starts a background classification of photo. The result is
// written to the draft only if photo is still the draft's photo when it
// arrives; failures are logged and leave the draft unclassified.
func (p *Pipeline) Classify(photo report.Photo) {
	if p.classifier == nil {
		return
	}
	data, _, err := p.blobs.Get(context.Background(), photo.Key)
	if err != nil {
		log.Warn().Err(err).Str("photoId", photo.ID).Msg("Cannot classify, photo bytes unavailable")
		return
	}
	p.classifyBytes(photo, data)
}

func (p *Pipeline) classifyBytes(photo report.Photo, data []byte) {
	if p.classifier == nil {
		return
	}
	p.mu.Lock()
	if p.inflight[photo.ID] {
		p.mu.Unlock()
		return
	}
	p.inflight[photo.ID] = true
	p.mu.Unlock()

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() {
			p.mu.Lock()
			delete(p.inflight, photo.ID)
			p.mu.Unlock()
		}()

		ctx, cancel := context.WithTimeout(context.Background(), p.classifyTimeout)
		defer cancel()

		labels, err := p.classifier.Classify(ctx, data, photo.MIMEType)
		if err != nil {
			log.Warn().Err(err).Str("photoId", photo.ID).Msg("Classification failed, continuing without labels")
			return
		}
		changed, err := p.drafts.Save(ctx, draft.WithClassification(photo.ID, labels, p.now().UTC()))
		if err != nil {
			log.Warn().Err(err).Str("photoId", photo.ID).Msg("Classification kept in memory, draft not persisted")
		}
		if !changed {
			log.Debug().Str("photoId", photo.ID).Msg("Discarded classification for superseded photo")
			return
		}
		log.Info().Str("photoId", photo.ID).Int("labels", len(labels)).Msg("Photo classified")
	}()
}

// Wait blocks until background classifications finish.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Close releases the camera and waits for background work.
func (p *Pipeline) Close() {
	p.ReleaseCamera()
	p.Wait()
}
