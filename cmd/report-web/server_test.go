package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/fpang/litter-report/internal/app"
	"github.com/fpang/litter-report/internal/blob"
	"github.com/fpang/litter-report/internal/draft"
	"github.com/fpang/litter-report/internal/geo"
	"github.com/fpang/litter-report/internal/metrics"
	"github.com/fpang/litter-report/internal/report"
	"github.com/fpang/litter-report/internal/steps"
	"github.com/fpang/litter-report/internal/submission"
	"github.com/fpang/litter-report/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	metrics.SetOutput(io.Discard)
	os.Exit(m.Run())
}

type okBackend struct{}

func (okBackend) UploadPhoto(context.Context, []byte, string) (string, error) { return "11", nil }
func (okBackend) Finalize(context.Context, string, submission.Record) error { return nil }

func newTestServer(t *testing.T) (*httptest.Server, *geo.PushSource) {
	t.Helper()
	position := geo.NewPushSource(0)
	e, err := app.New(context.Background(), app.Components{
		Drafts:     draft.NewMemory(),
		Blobs:      blob.NewMemory(),
		Submission: okBackend{},
		Region:     geo.DefaultRegion(),
		Position:   position,
	})
	require.NoError(t, err)
	ts := httptest.NewServer(newServer(e, position).routes())
	t.Cleanup(func() {
		ts.Close()
		_ = e.Close()
	})
	return ts, position
}

func do(t *testing.T, ts *httptest.Server, method, path, body string) *http.Response {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, ts.URL+path, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func uploadPNG(t *testing.T, ts *httptest.Server) *http.Response {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 20, 20))
	for i := 0; i < 20; i++ {
		img.Set(i, i, color.RGBA{200, 10, 10, 255})
	}
	var pngBuf bytes.Buffer
	require.NoError(t, png.Encode(&pngBuf, img))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "litter.png")
	require.NoError(t, err)
	_, err = fw.Write(pngBuf.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	resp, err := ts.Client().Post(ts.URL+"/api/photo/upload", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestWorkflowOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := do(t, ts, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var v workflow.View
	decodeBody(t, resp, &v)
	assert.Equal(t, steps.Introduction, v.ActiveStep)

	require.Equal(t, http.StatusOK, do(t, ts, http.MethodPost, "/api/advance", "").StatusCode)
	assert.Equal(t, http.StatusConflict, do(t, ts, http.MethodPost, "/api/advance", "").StatusCode)

	require.Equal(t, http.StatusOK, uploadPNG(t, ts).StatusCode)
	preview := do(t, ts, http.MethodGet, "/api/photo/preview", "")
	require.Equal(t, http.StatusOK, preview.StatusCode)
	assert.True(t, strings.HasPrefix(preview.Header.Get("Content-Type"), "image/"))
	require.Equal(t, http.StatusOK, do(t, ts, http.MethodPost, "/api/advance", "").StatusCode)

	require.Equal(t, http.StatusNoContent, do(t, ts, http.MethodPost, "/api/position", `{"lat":53.2194,"lon":6.5665}`).StatusCode)
	resp = do(t, ts, http.MethodPost, "/api/location/current", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var loc report.Location
	decodeBody(t, resp, &loc)
	assert.True(t, loc.WithinAllowedRegion)
	require.Equal(t, http.StatusOK, do(t, ts, http.MethodPost, "/api/advance", "").StatusCode)

	require.Equal(t, http.StatusOK, do(t, ts, http.MethodPut, "/api/contact", `null`).StatusCode)
	require.Equal(t, http.StatusOK, do(t, ts, http.MethodPut, "/api/comment", `{"comment":"bottles"}`).StatusCode)
	require.Equal(t, http.StatusOK, do(t, ts, http.MethodPost, "/api/advance", "").StatusCode)

	resp = do(t, ts, http.MethodPost, "/api/submit", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &v)
	assert.Equal(t, steps.Confirmation, v.ActiveStep)
	assert.Equal(t, report.StatusSubmitted, v.Draft.Status)
	assert.Equal(t, "11", v.Draft.SubmissionID)
}

func TestErrorMapping(t *testing.T) {
	ts, _ := newTestServer(t)

	resp := do(t, ts, http.MethodPost, "/api/submit", "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "out_of_sequence", body["kind"])

	resp = do(t, ts, http.MethodGet, "/api/location/search?q=ab", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	assert.Equal(t, http.StatusNotFound, do(t, ts, http.MethodGet, "/api/photo/preview", "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, do(t, ts, http.MethodPost, "/api/jump/x", "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, do(t, ts, http.MethodPost, "/api/jump/-1", "").StatusCode)
	assert.Equal(t, http.StatusBadRequest, do(t, ts, http.MethodPut, "/api/comment", `{`).StatusCode)
}

func TestRegionViolationOverHTTP(t *testing.T) {
	ts, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, do(t, ts, http.MethodPost, "/api/advance", "").StatusCode)
	require.Equal(t, http.StatusOK, uploadPNG(t, ts).StatusCode)
	require.Equal(t, http.StatusOK, do(t, ts, http.MethodPost, "/api/advance", "").StatusCode)

	resp := do(t, ts, http.MethodPost, "/api/location/pick", `{"lat":52.3676,"lon":4.9041}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var body map[string]string
	decodeBody(t, resp, &body)
	assert.Equal(t, "region_violation", body["kind"])
}

func TestPositionDenied(t *testing.T) {
	ts, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, do(t, ts, http.MethodPost, "/api/advance", "").StatusCode)
	require.Equal(t, http.StatusOK, uploadPNG(t, ts).StatusCode)
	require.Equal(t, http.StatusOK, do(t, ts, http.MethodPost, "/api/advance", "").StatusCode)

	require.Equal(t, http.StatusNoContent, do(t, ts, http.MethodPost, "/api/position/deny", "").StatusCode)
	resp := do(t, ts, http.MethodPost, "/api/location/current", "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	ts, _ := newTestServer(t)
	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/submit", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestJumpByStepID(t *testing.T) {
	ts, _ := newTestServer(t)
	require.Equal(t, http.StatusOK, do(t, ts, http.MethodPost, "/api/advance", "").StatusCode)

	resp := do(t, ts, http.MethodPost, "/api/jump/introduction", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var v workflow.View
	decodeBody(t, resp, &v)
	assert.Equal(t, steps.Introduction, v.ActiveStep)

	assert.Equal(t, http.StatusConflict, do(t, ts, http.MethodPost, "/api/jump/review", "").StatusCode)
}

func TestStateReportsSubmitting(t *testing.T) {
	ts, _ := newTestServer(t)
	resp := do(t, ts, http.MethodGet, "/api/state", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]interface{}
	decodeBody(t, resp, &body)
	assert.Equal(t, false, body["submitting"])
	assert.Equal(t, "introduction", body["activeStep"])
}
