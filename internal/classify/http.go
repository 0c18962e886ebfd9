package classify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fpang/litter-report/internal/media"
	"github.com/fpang/litter-report/internal/metrics"
	"github.com/fpang/litter-report/internal/report"
	"github.com/rs/zerolog/log"
)

// HTTP calls a classification microservice that accepts a multipart "image"
// field and answers {"afval_typen": [{"afval_type": ..., "confidence": ...}]}.
type HTTP struct {
	endpoint   string
	client     *http.Client
	categories []string
	maxRetries uint64
	newBackOff func() backoff.BackOff
}

var _ Service = (*HTTP)(nil)

// HTTPOption configures an HTTP classifier.
type HTTPOption func(*HTTP)

// WithHTTPClient replaces the default client (30s timeout).
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(h *HTTP) { h.client = c }
}

// WithRetries sets how many times a 429/5xx or transport failure is retried.
func WithRetries(n uint64, newBackOff func() backoff.BackOff) HTTPOption {
	return func(h *HTTP) {
		h.maxRetries = n
		if newBackOff != nil {
			h.newBackOff = newBackOff
		}
	}
}

// WithCategories restricts accepted labels.
func WithCategories(categories []string) HTTPOption {
	return func(h *HTTP) { h.categories = categories }
}

// NewHTTP creates a client for endpoint (the full analyze URL).
func NewHTTP(endpoint string, opts ...HTTPOption) *HTTP {
	h := &HTTP{
		endpoint:   endpoint,
		client:     &http.Client{Timeout: 30 * time.Second},
		categories: DefaultCategories,
		maxRetries: 2,
		newBackOff: func() backoff.BackOff { return backoff.NewExponentialBackOff() },
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

type serviceResponse struct {
	Types []struct {
		Type       string  `json:"afval_type"`
		Confidence float64 `json:"confidence"`
	} `json:"afval_typen"`
}

func (h *HTTP) Classify(ctx context.Context, image []byte, mimeType string) ([]report.Label, error) {
	body, contentType, err := multipartImage(image, mimeType)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	var parsed serviceResponse
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, bytes.NewReader(body))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")

		resp, err := h.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("classification service returned status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return backoff.Permanent(fmt.Errorf("classification service returned status %d: %s", resp.StatusCode, msg))
		}
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return backoff.Permanent(fmt.Errorf("decode classification response: %w", err))
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(h.newBackOff(), h.maxRetries), ctx)
	err = backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		log.Debug().Err(err).Dur("wait", wait).Msg("Retrying classification request")
	})

	m := metrics.New(metrics.Namespace).
		Dimension("Operation", "classify").
		Dimension("Provider", "http").
		Latency("ClassifyLatencyMs", start).
		Count("ClassifyCalls")
	if err != nil {
		m.Count("ClassifyErrors")
	}
	m.Flush()

	if err != nil {
		return nil, err
	}

	labels := make([]report.Label, 0, len(parsed.Types))
	for _, t := range parsed.Types {
		labels = append(labels, report.Label{Name: t.Type, Confidence: t.Confidence})
	}
	return Normalize(labels, h.categories), nil
}

func multipartImage(image []byte, mimeType string) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="image"; filename="photo%s"`, media.ExtensionFor(mimeType)))
	hdr.Set("Content-Type", mimeType)
	part, err := w.CreatePart(hdr)
	if err != nil {
		return nil, "", fmt.Errorf("create multipart part: %w", err)
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", fmt.Errorf("write multipart image: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}
