package submission

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fpang/litter-report/internal/blob"
	"github.com/fpang/litter-report/internal/draft"
	"github.com/fpang/litter-report/internal/metrics"
	"github.com/fpang/litter-report/internal/report"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	metrics.SetOutput(io.Discard)
	os.Exit(m.Run())
}

// fakeBackend records calls and fails on demand.
type fakeBackend struct {
	mu          sync.Mutex
	uploads     int
	finalized   []Record
	uploadErr   error
	finalizeErr error
	block       chan struct{}
}

func (f *fakeBackend) UploadPhoto(ctx context.Context, data []byte, mimeType string) (string, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	return "42", nil
}

func (f *fakeBackend) Finalize(ctx context.Context, id string, rec Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.finalizeErr != nil {
		return f.finalizeErr
	}
	f.finalized = append(f.finalized, rec)
	return nil
}

func readyDraft(t *testing.T) (*draft.Store, *blob.Memory) {
	t.Helper()
	ctx := context.Background()
	store := draft.New(draft.NewMemory())
	blobs := blob.NewMemory()
	require.NoError(t, blobs.Put(ctx, "photos/p1.jpg", []byte("jpeg bytes"), "image/jpeg"))
	_, err := store.Save(ctx,
		draft.WithPhoto(report.Photo{ID: "p1", Key: "photos/p1.jpg", MIMEType: "image/jpeg"}),
		draft.WithLocation(report.Location{Latitude: 53.2194, Longitude: 6.5665, Address: "Grote Markt 1", WithinAllowedRegion: true}),
	)
	require.NoError(t, err)
	return store, blobs
}

func TestSubmitSuccess(t *testing.T) {
	store, blobs := readyDraft(t)
	ctx := context.Background()
	_, err := store.Save(ctx,
		draft.WithContact(&report.Contact{Name: "Sam", Email: "sam@example.nl"}),
		draft.WithComment("behind the bench"),
		draft.WithClassification("p1", []report.Label{{Name: "Glas", Confidence: 0.8}}, time.Now()),
	)
	require.NoError(t, err)

	be := &fakeBackend{}
	c := NewCoordinator(store, blobs, be)
	d, err := c.Submit(ctx)
	require.NoError(t, err)

	assert.Equal(t, report.StatusSubmitted, d.Status)
	assert.Equal(t, "42", d.SubmissionID)
	require.Len(t, be.finalized, 1)
	rec := be.finalized[0]
	assert.Equal(t, int64(42), rec.ImageID)
	assert.Equal(t, "Sam", rec.Name)
	assert.Equal(t, "sam@example.nl", rec.Email)
	assert.Equal(t, "behind the bench", rec.Comment)
	assert.InDelta(t, 53.2194, rec.Latitude, 1e-9)
	require.Len(t, rec.Labels, 1)
	assert.Equal(t, "Glas", rec.Labels[0].Type)

	// Already submitted: no further I/O.
	_, err = c.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, be.uploads)
	assert.Len(t, be.finalized, 1)
}

func TestSubmitIncompleteDraft(t *testing.T) {
	store := draft.New(draft.NewMemory())
	be := &fakeBackend{}
	c := NewCoordinator(store, blob.NewMemory(), be)

	_, err := c.Submit(context.Background())
	require.Error(t, err)
	assert.True(t, report.IsKind(err, report.ErrIncompleteDraft))
	assert.Equal(t, 0, be.uploads)
	assert.Equal(t, report.StatusDraft, store.Current().Status)
}

func TestSubmitRetryAfterFinalizeFailureSkipsUpload(t *testing.T) {
	store, blobs := readyDraft(t)
	be := &fakeBackend{finalizeErr: errors.New("connection reset")}
	c := NewCoordinator(store, blobs, be)
	ctx := context.Background()

	d, err := c.Submit(ctx)
	require.Error(t, err)
	assert.True(t, report.IsKind(err, report.ErrSubmissionFailed))
	assert.Equal(t, report.CauseNetwork, report.CauseOf(err))
	assert.Equal(t, report.StatusFailed, d.Status)
	assert.Equal(t, "42", d.SubmissionID)
	assert.NotNil(t, d.Photo)
	assert.NotNil(t, d.Location)

	be.finalizeErr = nil
	d, err = c.Submit(ctx)
	require.NoError(t, err)
	assert.Equal(t, report.StatusSubmitted, d.Status)
	assert.Equal(t, 1, be.uploads, "upload is not repeated")
}

func TestSubmitRejected(t *testing.T) {
	store, blobs := readyDraft(t)
	be := &fakeBackend{uploadErr: &StatusError{Op: "upload photo", StatusCode: http.StatusRequestEntityTooLarge}}
	c := NewCoordinator(store, blobs, be)

	d, err := c.Submit(context.Background())
	require.Error(t, err)
	assert.Equal(t, report.CauseRejected, report.CauseOf(err))
	assert.Equal(t, report.StatusFailed, d.Status)
	assert.Empty(t, d.SubmissionID)
}

func TestSubmitConcurrentCallRejected(t *testing.T) {
	store, blobs := readyDraft(t)
	be := &fakeBackend{block: make(chan struct{})}
	c := NewCoordinator(store, blobs, be)

	done := make(chan error, 1)
	go func() {
		_, err := c.Submit(context.Background())
		done <- err
	}()
	require.Eventually(t, func() bool {
		return c.InProgress() && store.Current().Status == report.StatusSubmitting
	}, time.Second, time.Millisecond)

	_, err := c.Submit(context.Background())
	require.Error(t, err)
	assert.True(t, report.IsKind(err, report.ErrSubmissionInProgress))

	close(be.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, be.uploads)
}

func TestHTTPBackend(t *testing.T) {
	var finalized atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/image":
			f, hdr, err := r.FormFile("file")
			if !assert.NoError(t, err) {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			defer f.Close()
			data, _ := io.ReadAll(f)
			assert.Equal(t, "jpeg bytes", string(data))
			assert.Equal(t, "foto.jpg", hdr.Filename)
			io.WriteString(w, `{"id": 7}`)
		case r.Method == http.MethodPut && r.URL.Path == "/api/melding/7":
			var rec map[string]interface{}
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&rec))
			assert.Equal(t, "Sam", rec["naam"])
			assert.Equal(t, float64(7), rec["imageId"])
			finalized.Store(true)
			w.WriteHeader(http.StatusNoContent)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	b := NewHTTPBackend(srv.URL+"/", nil)
	ctx := context.Background()
	id, err := b.UploadPhoto(ctx, []byte("jpeg bytes"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "7", id)

	require.NoError(t, b.Finalize(ctx, id, Record{Name: "Sam", ImageID: 7}))
	assert.True(t, finalized.Load())
}

func TestHTTPBackendBareID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "123\n")
	}))
	defer srv.Close()

	id, err := NewHTTPBackend(srv.URL, nil).UploadPhoto(context.Background(), []byte("x"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "123", id)
}

func TestHTTPBackendStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "melding not found", http.StatusNotFound)
	}))
	defer srv.Close()

	err := NewHTTPBackend(srv.URL, nil).Finalize(context.Background(), "9", Record{})
	require.Error(t, err)
	assert.True(t, IsRejection(err))
	assert.ErrorContains(t, err, "melding not found")

	assert.False(t, IsRejection(&StatusError{StatusCode: 502}))
	assert.False(t, IsRejection(errors.New("dial tcp")))
}
