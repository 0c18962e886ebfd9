package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/fpang/litter-report/internal/blob"
	"github.com/fpang/litter-report/internal/boot"
	"github.com/fpang/litter-report/internal/camera"
	"github.com/fpang/litter-report/internal/capture"
	"github.com/fpang/litter-report/internal/classify"
	"github.com/fpang/litter-report/internal/config"
	"github.com/fpang/litter-report/internal/draft"
	"github.com/fpang/litter-report/internal/geo"
	"github.com/fpang/litter-report/internal/logging"
	"github.com/fpang/litter-report/internal/submission"
	"github.com/rs/zerolog/log"
)

// ErrNoSubmissionURL is returned when the reporting backend is not configured.
var ErrNoSubmissionURL = errors.New("submission.base_url is not set (LITTER_SUBMISSION_BASE_URL)")

// Builder turns configuration into Components. AWS clients are created only
// when a configured backend needs them.
type Builder struct {
	cfg     *config.Config
	startup *logging.StartupLogger
	aws     *boot.AWSClients
}

// NewBuilder creates a Builder recording what it builds on startup.
func NewBuilder(cfg *config.Config, startup *logging.StartupLogger) *Builder {
	if startup == nil {
		startup = logging.NewStartupLogger("litter-report")
	}
	return &Builder{cfg: cfg, startup: startup}
}

func (b *Builder) awsClients(ctx context.Context) (boot.AWSClients, error) {
	if b.aws != nil {
		return *b.aws, nil
	}
	c, err := boot.InitAWS(ctx, b.cfg.AWS.Region)
	if err != nil {
		return boot.AWSClients{}, err
	}
	b.aws = &c
	b.startup.Config("awsRegion", c.Config.Region)
	return c, nil
}

// Components builds every part of the engine. position may be nil; picker
// enables the native file dialog.
func (b *Builder) Components(ctx context.Context, position geo.PositionSource, picker bool) (Components, error) {
	var c Components
	var err error
	if b.cfg.Submission.BaseURL == "" {
		return c, ErrNoSubmissionURL
	}

	region, err := b.cfg.Region()
	if err != nil {
		return c, err
	}
	c.Region = region
	b.startup.Config("region", region.Name)

	if c.Drafts, err = b.DraftBackend(ctx); err != nil {
		return c, err
	}
	if closer, ok := c.Drafts.(*draft.SQLite); ok {
		c.Closers = append(c.Closers, closer)
	}
	c.DraftKey = b.cfg.Drafts.Key

	if c.Blobs, err = b.BlobStore(ctx); err != nil {
		return c, err
	}
	if c.Classifier, err = b.Classifier(ctx); err != nil {
		return c, err
	}
	c.ClassifyTimeout = b.cfg.Classifier.Timeout
	if c.Geocoder, err = b.Geocoder(region); err != nil {
		return c, err
	}

	c.Submission = submission.NewHTTPBackend(b.cfg.Submission.BaseURL, &http.Client{Timeout: b.cfg.Submission.Timeout})
	b.startup.Config("submissionURL", b.cfg.Submission.BaseURL)

	c.Device = camera.NoDevice{}
	if b.cfg.Camera.StillImage != "" {
		dev, err := camera.LoadStillDevice(b.cfg.Camera.StillImage, camera.FacingEnvironment, camera.FacingUser)
		if err != nil {
			return c, err
		}
		c.Device = dev
	}
	b.startup.Feature("camera", b.cfg.Camera.StillImage != "")

	if picker {
		c.Picker = capture.ZenityPicker{}
	}
	b.startup.Feature("filePicker", picker)

	c.Position = position
	b.startup.Feature("devicePosition", position != nil)
	return c, nil
}

// DraftBackend opens the configured draft persistence.
func (b *Builder) DraftBackend(ctx context.Context) (draft.Backend, error) {
	cfg := b.cfg.Drafts
	b.startup.Store("drafts", cfg.Backend)
	switch cfg.Backend {
	case "memory":
		return draft.NewMemory(), nil
	case "sqlite":
		b.startup.Config("sqlitePath", cfg.SQLitePath)
		db, err := draft.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return db, nil
	case "dynamodb":
		aws, err := b.awsClients(ctx)
		if err != nil {
			return nil, err
		}
		b.startup.DynamoTable("drafts", cfg.DynamoTable)
		return draft.NewDynamo(boot.NewDynamo(aws.Config, b.cfg.AWS.DynamoEndpoint), cfg.DynamoTable), nil
	default:
		return nil, fmt.Errorf("unknown drafts backend %q", cfg.Backend)
	}
}

// BlobStore opens the configured photo storage.
func (b *Builder) BlobStore(ctx context.Context) (blob.Store, error) {
	cfg := b.cfg.Photos
	b.startup.Store("photos", cfg.Backend)
	switch cfg.Backend {
	case "memory":
		return blob.NewMemory(), nil
	case "disk":
		b.startup.Config("photoDir", cfg.Dir)
		disk, err := blob.NewDisk(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return disk, nil
	case "s3":
		aws, err := b.awsClients(ctx)
		if err != nil {
			return nil, err
		}
		b.startup.S3Bucket("photos", cfg.Bucket)
		return blob.NewS3(boot.NewS3(aws.Config, b.cfg.AWS.S3Endpoint), cfg.Bucket, cfg.Prefix), nil
	case "minio":
		b.startup.S3Bucket("photos", cfg.Bucket)
		mc, err := blob.NewMinIO(blob.MinIOConfig{
			Endpoint:  cfg.MinIO.Endpoint,
			AccessKey: cfg.MinIO.AccessKey,
			SecretKey: cfg.MinIO.SecretKey,
			Bucket:    cfg.Bucket,
			UseSSL:    cfg.MinIO.UseSSL,
			Region:    b.cfg.AWS.Region,
		})
		if err != nil {
			return nil, err
		}
		return mc, nil
	default:
		return nil, fmt.Errorf("unknown photos backend %q", cfg.Backend)
	}
}

// Classifier builds the configured classifier, or nil when disabled.
func (b *Builder) Classifier(ctx context.Context) (classify.Service, error) {
	cfg := b.cfg.Classifier
	categories := cfg.Categories
	if len(categories) == 0 {
		categories = classify.DefaultCategories
	}
	b.startup.Feature("classification", cfg.Provider != "none")

	switch cfg.Provider {
	case "none":
		return nil, nil
	case "http":
		b.startup.Config("classifierURL", cfg.URL)
		return classify.NewHTTP(cfg.URL, classify.WithCategories(categories)), nil
	case "gemini":
		key, err := b.GeminiKey(ctx)
		if err != nil {
			return nil, err
		}
		client, err := classify.NewGeminiClient(ctx, key)
		if err != nil {
			return nil, err
		}
		b.startup.Config("geminiModel", cfg.Model)
		g, err := classify.NewGemini(client.Models, cfg.Model, categories)
		if err != nil {
			return nil, err
		}
		return g, nil
	default:
		return nil, fmt.Errorf("unknown classifier provider %q", cfg.Provider)
	}
}

// GeminiKey resolves the Gemini API key, consulting SSM only when a
// parameter is configured.
func (b *Builder) GeminiKey(ctx context.Context) (string, error) {
	param := b.cfg.Classifier.GeminiKeyParam
	if param == "" {
		return boot.GeminiKey(ctx, nil, "")
	}
	b.startup.SSMParam("geminiKey", param)
	aws, err := b.awsClients(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("AWS unavailable, Gemini key limited to local sources")
		return boot.GeminiKey(ctx, nil, "")
	}
	return boot.GeminiKey(ctx, aws.SSM, param)
}

// Geocoder builds the cached Nominatim provider.
func (b *Builder) Geocoder(region *geo.Region) (geo.Provider, error) {
	cfg := b.cfg.Geocoder
	b.startup.Config("geocoderURL", cfg.URL)
	n := geo.NewNominatim(region, geo.WithBaseURL(cfg.URL), geo.WithUserAgent(cfg.UserAgent))
	cached, err := geo.NewCachedProvider(n, cfg.CacheSize)
	if err != nil {
		return nil, err
	}
	return cached, nil
}
