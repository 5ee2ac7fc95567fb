package generation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"musicgen/internal/domain"
	"musicgen/internal/infra"
	"musicgen/internal/observability"
)

const (
	defaultMigrationTimeout = 2 * time.Minute
	defaultMaxAssetBytes    = 64 << 20
)

// ObjectStore is the durable object storage the migrator copies audio into.
type ObjectStore interface {
	Upload(ctx context.Context, data []byte, key string) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// MigratorOptions configures a Migrator.
type MigratorOptions struct {
	Repo          domain.JobRepository
	Store         ObjectStore
	HTTPClient    *http.Client
	Logger        *infra.Logger
	Timeout       time.Duration
	MaxAssetBytes int64
	Now           func() time.Time
}

// Migrator copies a completed job's transient provider audio into durable
// storage and swaps the job's result URL. Failures are logged and never
// change the job's state.
type Migrator struct {
	repo       domain.JobRepository
	store      ObjectStore
	httpClient *http.Client
	logger     *infra.Logger
	timeout    time.Duration
	maxBytes   int64
	now        func() time.Time
}

func NewMigrator(opts MigratorOptions) (*Migrator, error) {
	if opts.Repo == nil {
		return nil, errors.New("generation: migrator repository is required")
	}
	if opts.Store == nil {
		return nil, errors.New("generation: migrator object store is required")
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = infra.NewProviderHTTPClient(0, 0)
	}
	logger := opts.Logger
	if logger == nil {
		l := infra.Logger(zerolog.New(io.Discard))
		logger = &l
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultMigrationTimeout
	}
	maxBytes := opts.MaxAssetBytes
	if maxBytes <= 0 {
		maxBytes = defaultMaxAssetBytes
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Migrator{
		repo:       opts.Repo,
		store:      opts.Store,
		httpClient: httpClient,
		logger:     logger,
		timeout:    timeout,
		maxBytes:   maxBytes,
		now:        now,
	}, nil
}

// Run migrates job and logs the outcome. It is the background entry point.
func (m *Migrator) Run(job *domain.Job) {
	started := m.now()
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	updated, err := m.Migrate(ctx, job)
	observability.MigrationDuration.Observe(m.now().Sub(started).Seconds())
	if err != nil {
		observability.Migrations.WithLabelValues("failed").Inc()
		m.logger.Warn().
			Err(err).
			Str("job_id", job.ID).
			Str("transient_url", job.ResultURL).
			Msg("generation: durable migration failed, transient url kept")
		return
	}
	observability.Migrations.WithLabelValues("ok").Inc()
	m.logger.Info().
		Str("job_id", job.ID).
		Str("durable_ref", updated.DurableStorageRef).
		Msg("generation: audio migrated to durable storage")
}

// Migrate downloads the job's audio, stores it under a key unique to this
// attempt, verifies it and records the durable URL. Errors wrap
// domain.ErrStorageMigration.
func (m *Migrator) Migrate(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	if job.State != domain.JobStateCompleted {
		return nil, fmt.Errorf("%w: job %s is %s", domain.ErrStorageMigration, job.ID, job.State)
	}
	data, contentType, err := m.download(ctx, job.ResultURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrStorageMigration, err)
	}
	key := m.objectKey(job.ID, job.ResultURL, contentType)
	publicURL, err := m.store.Upload(ctx, data, key)
	if err != nil {
		return nil, fmt.Errorf("%w: upload: %w", domain.ErrStorageMigration, err)
	}
	ok, err := m.store.Exists(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("%w: verify: %w", domain.ErrStorageMigration, err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: object %s missing after upload", domain.ErrStorageMigration, key)
	}
	updated, err := m.repo.UpdateState(context.WithoutCancel(ctx), job.ID, domain.JobStateCompleted, domain.JobUpdate{
		ResultURL:         domain.Ptr(publicURL),
		DurableStorageRef: domain.Ptr(key),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: record durable url: %w", domain.ErrStorageMigration, err)
	}
	return updated, nil
}

func (m *Migrator) download(ctx context.Context, assetURL string) ([]byte, string, error) {
	parsed, err := url.Parse(strings.TrimSpace(assetURL))
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, "", fmt.Errorf("invalid audio url: %q", assetURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("build download request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download audio: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("download status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, m.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read audio: %w", err)
	}
	if int64(len(data)) > m.maxBytes {
		return nil, "", fmt.Errorf("audio exceeds %d bytes", m.maxBytes)
	}
	if len(data) == 0 {
		return nil, "", errors.New("downloaded audio is empty")
	}
	return data, resp.Header.Get("Content-Type"), nil
}

// objectKey is songs/{jobID}/{unixnano}{ext}. The timestamp keeps retried
// migrations from overwriting each other.
func (m *Migrator) objectKey(jobID, assetURL, contentType string) string {
	return fmt.Sprintf("songs/%s/%d%s", jobID, m.now().UnixNano(), audioExtension(assetURL, contentType))
}

func audioExtension(assetURL, contentType string) string {
	if parsed, err := url.Parse(assetURL); err == nil {
		switch ext := strings.ToLower(path.Ext(parsed.Path)); ext {
		case ".mp3", ".wav", ".m4a", ".ogg", ".flac", ".aac":
			return ext
		}
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		switch mediaType {
		case "audio/wav", "audio/x-wav", "audio/wave":
			return ".wav"
		case "audio/mp4", "audio/x-m4a":
			return ".m4a"
		case "audio/ogg":
			return ".ogg"
		case "audio/flac":
			return ".flac"
		}
	}
	return ".mp3"
}
