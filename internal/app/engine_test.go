package app

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fpang/litter-report/internal/blob"
	"github.com/fpang/litter-report/internal/camera"
	"github.com/fpang/litter-report/internal/config"
	"github.com/fpang/litter-report/internal/draft"
	"github.com/fpang/litter-report/internal/geo"
	"github.com/fpang/litter-report/internal/logging"
	"github.com/fpang/litter-report/internal/metrics"
	"github.com/fpang/litter-report/internal/report"
	"github.com/fpang/litter-report/internal/steps"
	"github.com/fpang/litter-report/internal/submission"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	metrics.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type recordingBackend struct {
	mu      sync.Mutex
	records []submission.Record
}

func (b *recordingBackend) UploadPhoto(ctx context.Context, data []byte, mimeType string) (string, error) {
	return "7", nil
}

func (b *recordingBackend) Finalize(ctx context.Context, id string, rec submission.Record) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.records = append(b.records, rec)
	return nil
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 32, 24))
	for y := 0; y < 24; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{uint8(x * 8), uint8(y * 10), 40, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fixture struct {
	engine  *Engine
	drafts  *draft.Memory
	blobs   *blob.Memory
	backend *recordingBackend
}

func newFixture(t *testing.T, mutate func(*Components)) fixture {
	t.Helper()
	f := fixture{drafts: draft.NewMemory(), blobs: blob.NewMemory(), backend: &recordingBackend{}}
	c := Components{
		Drafts:     f.drafts,
		Blobs:      f.blobs,
		Submission: f.backend,
		Region:     geo.DefaultRegion(),
	}
	if mutate != nil {
		mutate(&c)
	}
	e, err := New(context.Background(), c)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	f.engine = e
	return f
}

func TestNewRequiresBackends(t *testing.T) {
	_, err := New(context.Background(), Components{Drafts: draft.NewMemory()})
	assert.Error(t, err)
}

func TestFullReport(t *testing.T) {
	f := newFixture(t, nil)
	e := f.engine
	ctx := context.Background()

	assert.Equal(t, steps.Introduction, e.View().ActiveStep)
	require.True(t, e.Advance())
	assert.False(t, e.Advance(), "photo step needs a photo")

	photo, err := e.UploadPhoto(ctx, "litter.png", bytes.NewReader(testPNG(t)))
	require.NoError(t, err)
	assert.Equal(t, report.SourceImport, photo.Source)
	require.True(t, e.Advance())

	loc, err := e.PickOnMap(ctx, 53.2194, 6.5665)
	require.NoError(t, err)
	assert.Equal(t, report.DegradedAddress, loc.Address)
	require.True(t, e.Advance())

	require.NoError(t, e.SetContact(ctx, &report.Contact{Name: " Sam ", Email: "sam@example.nl"}))
	require.NoError(t, e.SetComment(ctx, "  bags near the bench  "))
	require.True(t, e.Advance())
	assert.Equal(t, steps.Review, e.View().ActiveStep)

	d, err := e.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, report.StatusSubmitted, d.Status)
	assert.Equal(t, "7", d.SubmissionID)

	v := e.View()
	assert.Equal(t, steps.Confirmation, v.ActiveStep)
	assert.True(t, v.IsTerminal)
	assert.Equal(t, report.StatusSubmitted, v.Draft.Status)

	require.Len(t, f.backend.records, 1)
	rec := f.backend.records[0]
	assert.Equal(t, "Sam", rec.Name)
	assert.Equal(t, "bags near the bench", rec.Comment)

	persisted, err := f.drafts.GetDraft(ctx, draft.DefaultKey)
	require.NoError(t, err)
	assert.Nil(t, persisted, "submitted draft is purged from persistence")
}

func TestOperationsOutOfSequence(t *testing.T) {
	f := newFixture(t, nil)
	e := f.engine
	ctx := context.Background()

	_, err := e.UploadPhoto(ctx, "x.png", bytes.NewReader(testPNG(t)))
	assert.True(t, report.IsKind(err, report.ErrOutOfSequence))

	_, err = e.PickOnMap(ctx, 53.2194, 6.5665)
	assert.True(t, report.IsKind(err, report.ErrOutOfSequence))

	_, err = e.Submit(ctx)
	assert.True(t, report.IsKind(err, report.ErrOutOfSequence))

	err = e.StartCamera(ctx, camera.FacingEnvironment)
	assert.True(t, report.IsKind(err, report.ErrOutOfSequence))
}

func TestLeavingPhotoStepReleasesCamera(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	dev := camera.NewStillDevice(img, camera.FacingEnvironment)
	f := newFixture(t, func(c *Components) { c.Device = dev })
	e := f.engine
	ctx := context.Background()

	require.True(t, e.Advance())
	require.NoError(t, e.StartCamera(ctx, camera.FacingEnvironment))
	assert.True(t, e.CameraActive())
	assert.True(t, dev.InUse())

	require.True(t, e.Retreat())
	assert.False(t, e.CameraActive())
	assert.False(t, dev.InUse())
}

func TestCapturePhotoFromCamera(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 16, 16))
	dev := camera.NewStillDevice(img, camera.FacingEnvironment)
	f := newFixture(t, func(c *Components) { c.Device = dev })
	e := f.engine
	ctx := context.Background()

	require.True(t, e.Advance())
	require.NoError(t, e.StartCamera(ctx, camera.FacingEnvironment))
	photo, err := e.CapturePhoto(ctx)
	require.NoError(t, err)
	assert.Equal(t, report.SourceCamera, photo.Source)
	assert.False(t, dev.InUse(), "capture releases the camera")

	preview, mimeType, err := e.Preview(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, preview)
	assert.NotEmpty(t, mimeType)
}

func TestResumeRestoresStep(t *testing.T) {
	ctx := context.Background()
	drafts := draft.NewMemory()
	now := time.Now().UTC()
	require.NoError(t, drafts.PutDraft(ctx, draft.DefaultKey, &report.Draft{
		ID:        "d1",
		Photo:     &report.Photo{ID: "p1", Key: "photos/d1/p1.jpg", MIMEType: "image/jpeg"},
		Status:    report.StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}))

	f := newFixture(t, func(c *Components) { c.Drafts = drafts })
	v := f.engine.View()
	assert.Equal(t, steps.Location, v.ActiveStep)
	assert.Equal(t, "p1", v.Draft.Photo.ID)
}

func TestRegionViolationBlocksLocationStep(t *testing.T) {
	f := newFixture(t, nil)
	e := f.engine
	ctx := context.Background()

	require.True(t, e.Advance())
	_, err := e.UploadPhoto(ctx, "x.png", bytes.NewReader(testPNG(t)))
	require.NoError(t, err)
	require.True(t, e.Advance())

	_, err = e.PickOnMap(ctx, 52.3676, 4.9041)
	assert.True(t, report.IsKind(err, report.ErrRegionViolation))
	assert.False(t, e.Advance())
	assert.Nil(t, e.Draft().Location)
}

func TestSetContactAndComment(t *testing.T) {
	f := newFixture(t, nil)
	e := f.engine
	ctx := context.Background()

	err := e.SetContact(ctx, &report.Contact{Email: "not-an-email"})
	assert.True(t, report.IsKind(err, report.ErrInvalidInput))

	require.NoError(t, e.SetContact(ctx, &report.Contact{Email: "a@b.nl"}))
	require.NotNil(t, e.Draft().Contact)
	require.NoError(t, e.SetContact(ctx, nil))
	assert.True(t, e.Draft().IsAnonymous())

	err = e.SetComment(ctx, strings.Repeat("x", MaxCommentLength+1))
	assert.True(t, report.IsKind(err, report.ErrInvalidInput))
	require.NoError(t, e.SetComment(ctx, strings.Repeat("é", MaxCommentLength)))
}

func TestRestartDeletesPhoto(t *testing.T) {
	f := newFixture(t, nil)
	e := f.engine
	ctx := context.Background()

	require.True(t, e.Advance())
	_, err := e.UploadPhoto(ctx, "x.png", bytes.NewReader(testPNG(t)))
	require.NoError(t, err)
	require.Equal(t, 2, f.blobs.Len())

	require.NoError(t, e.Restart(ctx))
	assert.Equal(t, 0, f.blobs.Len())
	assert.Equal(t, steps.Introduction, e.View().ActiveStep)
	assert.Nil(t, e.Draft().Photo)
}

func TestBuilderMemoryComponents(t *testing.T) {
	cfg := &config.Config{
		Drafts:     config.DraftsConfig{Backend: "memory", Key: "current"},
		Photos:     config.PhotosConfig{Backend: "memory"},
		Classifier: config.ClassifierConfig{Provider: "none"},
		Geocoder:   config.GeocoderConfig{URL: geo.DefaultNominatimURL, UserAgent: geo.DefaultUserAgent},
		Submission: config.SubmissionConfig{BaseURL: "http://localhost:9999", Timeout: time.Second},
	}
	b := NewBuilder(cfg, logging.NewStartupLogger("test"))
	c, err := b.Components(context.Background(), geo.NewPushSource(0), false)
	require.NoError(t, err)
	assert.NotNil(t, c.Geocoder)
	assert.Nil(t, c.Classifier)
	assert.Nil(t, c.Picker)
	assert.Equal(t, "Groningen", c.Region.Name)

	e, err := New(context.Background(), c)
	require.NoError(t, err)
	assert.NoError(t, e.Close())
}

func TestBuilderRejectsUnknownBackend(t *testing.T) {
	cfg := &config.Config{Drafts: config.DraftsConfig{Backend: "etcd"}}
	_, err := NewBuilder(cfg, nil).DraftBackend(context.Background())
	assert.Error(t, err)
}

type gatedSubmission struct {
	recordingBackend
	entered chan struct{}
	release chan struct{}
}

func (g *gatedSubmission) UploadPhoto(ctx context.Context, data []byte, mimeType string) (string, error) {
	close(g.entered)
	<-g.release
	return "8", nil
}

func TestStateReportsSubmitting(t *testing.T) {
	backend := &gatedSubmission{entered: make(chan struct{}), release: make(chan struct{})}
	f := newFixture(t, func(c *Components) { c.Submission = backend })
	e := f.engine
	ctx := context.Background()

	require.True(t, e.Advance())
	_, err := e.UploadPhoto(ctx, "x.png", bytes.NewReader(testPNG(t)))
	require.NoError(t, err)
	require.True(t, e.Advance())
	_, err = e.PickOnMap(ctx, 53.2194, 6.5665)
	require.NoError(t, err)
	require.True(t, e.Advance())
	require.True(t, e.Advance())
	assert.False(t, e.State().Submitting)

	done := make(chan error, 1)
	go func() {
		_, err := e.Submit(ctx)
		done <- err
	}()
	<-backend.entered
	assert.True(t, e.State().Submitting)
	assert.Equal(t, steps.Review, e.State().ActiveStep)

	close(backend.release)
	require.NoError(t, <-done)
	assert.False(t, e.State().Submitting)
	assert.Equal(t, steps.Confirmation, e.State().ActiveStep)
}

func TestStepIndex(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, 0, f.engine.StepIndex(steps.Introduction))
	assert.Equal(t, 4, f.engine.StepIndex(steps.Review))
	assert.Equal(t, -1, f.engine.StepIndex("unknown"))
}

func TestBuilderRequiresSubmissionURL(t *testing.T) {
	cfg := &config.Config{
		Drafts:     config.DraftsConfig{Backend: "memory", Key: "current"},
		Photos:     config.PhotosConfig{Backend: "memory"},
		Classifier: config.ClassifierConfig{Provider: "none"},
	}
	_, err := NewBuilder(cfg, nil).Components(context.Background(), nil, false)
	assert.ErrorIs(t, err, ErrNoSubmissionURL)
}
