// Package app wires the workflow engine together and exposes it as one
// in-process API. Surfaces (the web server, the CLI) talk only to Engine.
package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/fpang/litter-report/internal/blob"
	"github.com/fpang/litter-report/internal/camera"
	"github.com/fpang/litter-report/internal/capture"
	"github.com/fpang/litter-report/internal/classify"
	"github.com/fpang/litter-report/internal/config"
	"github.com/fpang/litter-report/internal/draft"
	"github.com/fpang/litter-report/internal/geo"
	"github.com/fpang/litter-report/internal/report"
	"github.com/fpang/litter-report/internal/steps"
	"github.com/fpang/litter-report/internal/submission"
	"github.com/fpang/litter-report/internal/workflow"
	"github.com/rs/zerolog/log"
)

// MaxCommentLength bounds the free-text comment, in characters.
const MaxCommentLength = 1000

// Components are the pluggable parts of an Engine. Nil optional parts
// disable the matching feature.
type Components struct {
	Drafts     draft.Backend      // required
	Blobs      blob.Store         // required
	Submission submission.Backend // required
	Region     *geo.Region        // nil rejects every location

	DraftKey   string
	Registry   *steps.Registry
	Device     camera.Device
	Classifier classify.Service
	Picker     capture.Picker
	Geocoder   geo.Provider
	Position   geo.PositionSource

	// ClassifyTimeout bounds each classification; zero keeps the default.
	ClassifyTimeout time.Duration

	// Closers run on Engine.Close, after background work has drained.
	Closers []io.Closer
}

// Engine is the submission workflow for a single citizen report.
type Engine struct {
	registry *steps.Registry
	drafts   *draft.Store
	blobs    blob.Store
	flow     *workflow.Controller
	capture  *capture.Pipeline
	location *geo.Resolver
	submit   *submission.Coordinator
	closers  []io.Closer
}

// New builds an Engine, restores the persisted draft and positions the
// workflow on the step the citizen left off at. A draft that cannot be
// loaded is logged and a fresh one is used.
func New(ctx context.Context, c Components) (*Engine, error) {
	if c.Drafts == nil || c.Blobs == nil || c.Submission == nil {
		return nil, fmt.Errorf("drafts, blobs and submission backends are required")
	}
	registry := c.Registry
	if registry == nil {
		registry = steps.Default()
	}
	var storeOpts []draft.Option
	if c.DraftKey != "" {
		storeOpts = append(storeOpts, draft.WithKey(c.DraftKey))
	}
	store := draft.New(c.Drafts, storeOpts...)
	if _, err := store.Load(ctx); err != nil {
		log.Warn().Err(err).Msg("Could not restore draft, starting fresh")
	}

	var captureOpts []capture.Option
	if c.Classifier != nil {
		captureOpts = append(captureOpts, capture.WithClassifier(c.Classifier))
	}
	if c.ClassifyTimeout > 0 {
		captureOpts = append(captureOpts, capture.WithClassifyTimeout(c.ClassifyTimeout))
	}
	if c.Picker != nil {
		captureOpts = append(captureOpts, capture.WithPicker(c.Picker))
	}
	var geoOpts []geo.ResolverOption
	if c.Position != nil {
		geoOpts = append(geoOpts, geo.WithPositionSource(c.Position))
	}

	e := &Engine{
		registry: registry,
		drafts:   store,
		blobs:    c.Blobs,
		flow:     workflow.New(registry, store),
		capture:  capture.New(c.Device, store, c.Blobs, captureOpts...),
		location: geo.NewResolver(c.Region, c.Geocoder, store, geoOpts...),
		submit:   submission.NewCoordinator(store, c.Blobs, c.Submission),
		closers:  c.Closers,
	}
	e.flow.OnLeave(steps.Photo, e.capture.ReleaseCamera)
	e.flow.Resume()
	return e, nil
}

// View returns the derived workflow state including the draft.
func (e *Engine) View() workflow.View { return e.flow.State() }

// State is the view plus engine activity a UI needs to enable controls.
type State struct {
	workflow.View
	Submitting bool `json:"submitting"`
}

// State returns the view and whether a submission is running.
func (e *Engine) State() State {
	return State{View: e.flow.State(), Submitting: e.submit.InProgress()}
}

// Subscribe calls fn with a fresh view after every draft change.
func (e *Engine) Subscribe(fn func(workflow.View)) func() { return e.flow.Subscribe(fn) }

// Advance moves to the next step when the active one is satisfied.
func (e *Engine) Advance() bool { return e.flow.Advance() }

// Retreat moves to the previous step.
func (e *Engine) Retreat() bool { return e.flow.Retreat() }

// JumpTo moves back to step i.
func (e *Engine) JumpTo(i int) bool { return e.flow.JumpTo(i) }

// StepIndex returns the position of step id, or -1 when it is unknown.
func (e *Engine) StepIndex(id steps.ID) int { return e.registry.IndexOf(id) }

// Restart discards the draft and its stored photo and returns to the first
// step.
func (e *Engine) Restart(ctx context.Context) error {
	d := e.drafts.Current()
	e.capture.ReleaseCamera()
	if err := e.flow.Restart(ctx); err != nil {
		return err
	}
	if d.Photo != nil {
		for _, key := range []string{d.Photo.Key, d.Photo.PreviewKey} {
			if err := e.blobs.Delete(ctx, key); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("Failed to delete photo of discarded draft")
			}
		}
	}
	return nil
}

// StartCamera acquires the camera for the Photo step.
func (e *Engine) StartCamera(ctx context.Context, facing camera.Facing) error {
	if err := e.requireStep(steps.Photo); err != nil {
		return err
	}
	return e.capture.AcquireCamera(ctx, facing)
}

// StopCamera releases the camera.
func (e *Engine) StopCamera() { e.capture.ReleaseCamera() }

// CameraActive reports whether the camera is held.
func (e *Engine) CameraActive() bool { return e.capture.CameraActive() }

// CapturePhoto takes the still for the report.
func (e *Engine) CapturePhoto(ctx context.Context) (report.Photo, error) {
	if err := e.requireStep(steps.Photo); err != nil {
		return report.Photo{}, err
	}
	return e.capture.CaptureStill(ctx)
}

// UploadPhoto imports an image supplied by the citizen.
func (e *Engine) UploadPhoto(ctx context.Context, name string, r io.Reader) (report.Photo, error) {
	if err := e.requireStep(steps.Photo); err != nil {
		return report.Photo{}, err
	}
	return e.capture.Import(ctx, name, r)
}

// PickPhoto imports an image chosen with the device file picker.
func (e *Engine) PickPhoto(ctx context.Context) (report.Photo, error) {
	if err := e.requireStep(steps.Photo); err != nil {
		return report.Photo{}, err
	}
	return e.capture.ImportFromDevicePicker(ctx)
}

// Preview returns the preview image of the draft's photo.
func (e *Engine) Preview(ctx context.Context) ([]byte, string, error) {
	d := e.drafts.Current()
	if d.Photo == nil {
		return nil, "", blob.ErrNotFound
	}
	return e.capture.PreviewBytes(ctx, *d.Photo)
}

// UseCurrentPosition sets the location from the device position.
func (e *Engine) UseCurrentPosition(ctx context.Context) (report.Location, error) {
	if err := e.requireStep(steps.Location); err != nil {
		return report.Location{}, err
	}
	return e.location.ResolveCurrentPosition(ctx)
}

// SearchAddress returns candidates for a free-text address.
func (e *Engine) SearchAddress(ctx context.Context, query string) ([]geo.Candidate, error) {
	return e.location.SearchAddress(ctx, query)
}

// SelectCandidate sets the location from a search result.
func (e *Engine) SelectCandidate(ctx context.Context, c geo.Candidate) (report.Location, error) {
	if err := e.requireStep(steps.Location); err != nil {
		return report.Location{}, err
	}
	return e.location.SelectCandidate(ctx, c)
}

// PickOnMap sets the location from a map click.
func (e *Engine) PickOnMap(ctx context.Context, lat, lon float64) (report.Location, error) {
	if err := e.requireStep(steps.Location); err != nil {
		return report.Location{}, err
	}
	return e.location.PickOnMap(ctx, lat, lon)
}

// UsePhotoPosition sets the location from the photo's GPS tag.
func (e *Engine) UsePhotoPosition(ctx context.Context) (report.Location, error) {
	if err := e.requireStep(steps.Location); err != nil {
		return report.Location{}, err
	}
	return e.location.UsePhotoPosition(ctx)
}

// Region returns the allowed region.
func (e *Engine) Region() *geo.Region { return e.location.Region() }

// SetContact stores optional contact details. Nil or empty means anonymous.
func (e *Engine) SetContact(ctx context.Context, c *report.Contact) error {
	if c != nil {
		trimmed := report.Contact{Name: strings.TrimSpace(c.Name), Email: strings.TrimSpace(c.Email)}
		if err := config.Validator().Struct(trimmed); err != nil {
			return report.NewError(report.ErrInvalidInput, "", "contact details are not valid", err)
		}
		c = &trimmed
	}
	_, err := e.drafts.Save(ctx, draft.WithContact(c))
	return err
}

// SetComment stores the free-text comment.
func (e *Engine) SetComment(ctx context.Context, comment string) error {
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > MaxCommentLength {
		return report.NewError(report.ErrInvalidInput, "",
			fmt.Sprintf("comment is longer than %d characters", MaxCommentLength), nil)
	}
	_, err := e.drafts.Save(ctx, draft.WithComment(comment))
	return err
}

// Submit sends the report from the Review step and, on success, moves to the
// confirmation step and removes the persisted draft. The in-memory draft is
// kept so the confirmation can show what was sent.
func (e *Engine) Submit(ctx context.Context) (report.Draft, error) {
	if err := e.requireStep(steps.Review); err != nil {
		return e.drafts.Current(), err
	}
	d, err := e.submit.Submit(ctx)
	if err != nil {
		return d, err
	}
	if !e.flow.Advance() {
		log.Warn().Str("step", string(e.flow.ActiveStep())).Msg("Submitted but could not advance to confirmation")
	}
	if err := e.drafts.Purge(ctx); err != nil {
		log.Warn().Err(err).Msg("Submitted draft left in persistence")
	}
	return d, nil
}

// Draft returns a copy of the current draft.
func (e *Engine) Draft() report.Draft { return e.drafts.Current() }

// Wait blocks until background classification finishes.
func (e *Engine) Wait() { e.capture.Wait() }

// Close releases the camera, drains background work and closes backends.
func (e *Engine) Close() error {
	e.capture.Close()
	var firstErr error
	for _, c := range e.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Engine) requireStep(id steps.ID) error {
	if active := e.flow.ActiveStep(); active != id {
		return report.NewError(report.ErrOutOfSequence, "",
			fmt.Sprintf("%s is not possible on the %s step", id, active), nil)
	}
	return nil
}
