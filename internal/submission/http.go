package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/fpang/litter-report/internal/media"
	"github.com/rs/zerolog/log"
)

// DefaultTimeout is the HTTP client timeout for backend calls.
const DefaultTimeout = 30 * time.Second

// HTTPBackend talks to the reporting REST API:
//
//	POST {base}/api/image          multipart field "file", answers {"id": N}
//	PUT  {base}/api/melding/{id}   JSON Record
type HTTPBackend struct {
	baseURL string
	client  *http.Client
}

var _ Backend = (*HTTPBackend)(nil)

// NewHTTPBackend creates a client for baseURL. A nil client gets DefaultTimeout.
func NewHTTPBackend(baseURL string, client *http.Client) *HTTPBackend {
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &HTTPBackend{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type uploadResponse struct {
	ID json.Number `json:"id"`
}

func (b *HTTPBackend) UploadPhoto(ctx context.Context, data []byte, mimeType string) (string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="foto%s"`, media.ExtensionFor(mimeType)))
	hdr.Set("Content-Type", mimeType)
	part, err := w.CreatePart(hdr)
	if err != nil {
		return "", fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return "", fmt.Errorf("write multipart file: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.baseURL+"/api/image", &buf)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	body, err := b.do(req, "upload photo")
	if err != nil {
		return "", err
	}

	var resp uploadResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.ID == "" {
		// Some deployments answer with the bare id.
		id := strings.TrimSpace(string(body))
		if _, convErr := strconv.ParseInt(id, 10, 64); convErr != nil {
			return "", fmt.Errorf("upload photo: unexpected response %q", truncate(string(body), 120))
		}
		return id, nil
	}
	log.Debug().Str("id", resp.ID.String()).Int("bytes", len(data)).Msg("Photo uploaded")
	return resp.ID.String(), nil
}

func (b *HTTPBackend) Finalize(ctx context.Context, id string, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	u := b.baseURL + "/api/melding/" + url.PathEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, u, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build finalize request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if _, err := b.do(req, "finalize report"); err != nil {
		return err
	}
	log.Debug().Str("id", id).Msg("Report finalized")
	return nil
}

func (b *HTTPBackend) do(req *http.Request, op string) ([]byte, error) {
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: read response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Op: op, StatusCode: resp.StatusCode, Body: truncate(strings.TrimSpace(string(body)), 200)}
	}
	return body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
