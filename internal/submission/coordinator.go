package submission

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/fpang/litter-report/internal/blob"
	"github.com/fpang/litter-report/internal/draft"
	"github.com/fpang/litter-report/internal/metrics"
	"github.com/fpang/litter-report/internal/report"
	"github.com/rs/zerolog/log"
)

// Coordinator submits the current draft. It never retries on its own; a
// failed submission leaves the draft intact (status Failed) so Submit can
// simply be called again.
type Coordinator struct {
	drafts  *draft.Store
	blobs   blob.Store
	backend Backend

	mu         sync.Mutex
	submitting bool
}

// NewCoordinator creates a Coordinator reading photo bytes from blobs.
func NewCoordinator(drafts *draft.Store, blobs blob.Store, backend Backend) *Coordinator {
	return &Coordinator{drafts: drafts, blobs: blobs, backend: backend}
}

// InProgress reports whether a Submit call is running.
func (c *Coordinator) InProgress() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.submitting
}

// Submit uploads the photo (unless an earlier attempt already did) and sends
// the final record. It returns the draft as left by the attempt.
func (c *Coordinator) Submit(ctx context.Context) (report.Draft, error) {
	d := c.drafts.Current()
	if d.Photo == nil || d.Location == nil {
		return d, report.NewError(report.ErrIncompleteDraft, "", "a photo and a location are required", nil)
	}
	if d.Status == report.StatusSubmitted {
		return d, nil
	}

	c.mu.Lock()
	if c.submitting {
		c.mu.Unlock()
		return d, report.NewError(report.ErrSubmissionInProgress, "", "submission already in progress", nil)
	}
	c.submitting = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.submitting = false
		c.mu.Unlock()
	}()

	start := time.Now()
	c.save(ctx, draft.WithStatus(report.StatusSubmitting))

	err := c.send(ctx, d)

	m := metrics.New(metrics.Namespace).
		Dimension("Operation", "submit").
		Latency("SubmitLatencyMs", start).
		Count("SubmitCalls")
	if err != nil {
		c.save(context.WithoutCancel(ctx), draft.WithStatus(report.StatusFailed))
		m.Count("SubmitErrors").Property("cause", string(report.CauseOf(err))).Flush()
		log.Warn().Err(err).Str("draftId", d.ID).Msg("Submission failed")
		return c.drafts.Current(), err
	}
	m.Flush()

	c.save(ctx, draft.WithStatus(report.StatusSubmitted))
	out := c.drafts.Current()
	log.Info().
		Str("draftId", out.ID).
		Str("submissionId", out.SubmissionID).
		Bool("anonymous", out.IsAnonymous()).
		Msg("Report submitted")
	return out, nil
}

func (c *Coordinator) send(ctx context.Context, d report.Draft) error {
	id := d.SubmissionID
	if id == "" {
		data, _, err := c.blobs.Get(ctx, d.Photo.Key)
		if err != nil {
			return report.NewError(report.ErrSubmissionFailed, report.CauseStorage, "photo is no longer available", err)
		}
		id, err = c.backend.UploadPhoto(ctx, data, d.Photo.MIMEType)
		if err != nil {
			return failure("photo upload failed", err)
		}
		c.save(ctx, draft.WithSubmissionID(id))
	} else {
		log.Debug().Str("submissionId", id).Msg("Photo already uploaded, skipping upload")
	}

	if err := c.backend.Finalize(ctx, id, buildRecord(id, d)); err != nil {
		return failure("sending the report failed", err)
	}
	return nil
}

func buildRecord(id string, d report.Draft) Record {
	rec := Record{
		Latitude:  d.Location.Latitude,
		Longitude: d.Location.Longitude,
		Address:   d.Location.Address,
		Comment:   d.Comment,
	}
	rec.ImageID, _ = strconv.ParseInt(id, 10, 64)
	if d.Contact != nil {
		rec.Name = d.Contact.Name
		rec.Email = d.Contact.Email
	}
	if d.Classification != nil && d.Classification.PhotoID == d.Photo.ID {
		for _, l := range d.Classification.Labels {
			rec.Labels = append(rec.Labels, Label{Type: l.Name, Confidence: l.Confidence})
		}
	}
	return rec
}

func failure(msg string, err error) error {
	cause := report.CauseNetwork
	if IsRejection(err) {
		cause = report.CauseRejected
	}
	return report.NewError(report.ErrSubmissionFailed, cause, msg, err)
}

// save applies patches, logging rather than failing on persistence errors:
// the in-memory draft stays authoritative for this attempt.
func (c *Coordinator) save(ctx context.Context, patches ...draft.Patch) {
	if _, err := c.drafts.Save(ctx, patches...); err != nil {
		log.Warn().Err(err).Msg("Draft not persisted during submission")
	}
}
