// Package objectstore wraps Google Cloud Storage for the pipeline's
// create-new/use-existing bucket lifecycle. It collapses a multi-bucket,
// multi-category storage surface down to the single working bucket this
// pipeline needs per job.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/hoichoi-opensource/video-subtitle-generator/internal/apierr"
	"github.com/hoichoi-opensource/video-subtitle-generator/internal/logger"
)

// BucketMode selects how the working bucket is obtained.
type BucketMode string

const (
	ModeCreateNew       BucketMode = "create_new"
	ModeUseExisting     BucketMode = "use_existing"
	lifecycleDeleteDays            = 7
)

// Port is the object-store port: one working bucket per run, created or
// adopted according to Mode.
type Port struct {
	log    *logger.Logger
	client *storage.Client
	bucket string
}

// Options configures bucket acquisition.
type Options struct {
	Mode           BucketMode
	ProjectID      string
	Region         string
	BucketPrefix   string
	ExistingBucket string
	CredentialPath string
}

// ClientOptionsFromEnv resolves GCP credentials from the environment: an
// inline JSON blob takes priority over a file path, and an explicit
// CredentialPath argument overrides both.
func ClientOptionsFromEnv(credentialPath string) []option.ClientOption {
	if credentialPath != "" {
		return []option.ClientOption{option.WithCredentialsFile(credentialPath)}
	}
	creds := strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS_JSON"))
	if creds == "" {
		creds = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if creds == "" {
		return nil
	}
	if strings.HasPrefix(creds, "{") {
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	}
	return []option.ClientOption{option.WithCredentialsFile(creds)}
}

// New constructs the storage client and resolves the working bucket per
// opts.Mode.
func New(ctx context.Context, log *logger.Logger, opts Options) (*Port, error) {
	slog := log.With("service", "objectstore.Port")

	client, err := storage.NewClient(ctx, ClientOptionsFromEnv(opts.CredentialPath)...)
	if err != nil {
		return nil, apierr.Store("client", err)
	}

	p := &Port{log: slog, client: client}

	switch opts.Mode {
	case ModeCreateNew:
		name := fmt.Sprintf("%s-%s-%d", opts.BucketPrefix, opts.ProjectID, time.Now().Unix())
		if err := p.createBucket(ctx, name, opts.ProjectID, opts.Region); err != nil {
			return nil, err
		}
		p.bucket = name
	case ModeUseExisting:
		if strings.TrimSpace(opts.ExistingBucket) == "" {
			return nil, apierr.Configuration("gcp.existing_bucket", nil, fmt.Errorf("bucket_mode=use_existing requires existing_bucket"))
		}
		if err := p.verifyBucket(ctx, opts.ExistingBucket); err != nil {
			return nil, err
		}
		p.bucket = opts.ExistingBucket
	default:
		return nil, apierr.Configuration("gcp.bucket_mode", []string{string(ModeCreateNew), string(ModeUseExisting)}, fmt.Errorf("unsupported bucket mode %q", opts.Mode))
	}

	slog.Info("object store ready", "bucket", p.bucket, "mode", opts.Mode)
	return p, nil
}

// Bucket returns the working bucket name, for callers that need to build
// gs:// URIs themselves (e.g. the model port).
func (p *Port) Bucket() string { return p.bucket }

func (p *Port) createBucket(ctx context.Context, name, projectID, region string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	attrs := &storage.BucketAttrs{
		Location: region,
		Lifecycle: storage.Lifecycle{
			Rules: []storage.LifecycleRule{
				{
					Action:    storage.LifecycleAction{Type: storage.DeleteAction},
					Condition: storage.LifecycleCondition{AgeInDays: lifecycleDeleteDays},
				},
			},
		},
	}
	if err := p.client.Bucket(name).Create(ctx, projectID, attrs); err != nil {
		return apierr.Store(name, fmt.Errorf("create bucket: %w", err))
	}
	return nil
}

func (p *Port) verifyBucket(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if _, err := p.client.Bucket(name).Attrs(ctx); err != nil {
		return apierr.Store(name, fmt.Errorf("bucket not accessible: %w", err))
	}
	return nil
}

// Upload writes localPath's contents to blobName in the working bucket.
func (p *Port) Upload(ctx context.Context, localPath, blobName string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return apierr.Store(blobName, err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	w := p.client.Bucket(p.bucket).Object(blobName).NewWriter(ctx)
	if _, err := io.Copy(w, f); err != nil {
		_ = w.Close()
		return apierr.Store(blobName, fmt.Errorf("upload write: %w", err))
	}
	if err := w.Close(); err != nil {
		return apierr.Store(blobName, fmt.Errorf("upload close: %w", err))
	}
	return nil
}

// Download reads blobName from the working bucket into memory.
func (p *Port) Download(ctx context.Context, blobName string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	r, err := p.client.Bucket(p.bucket).Object(blobName).NewReader(ctx)
	if err != nil {
		return nil, apierr.Store(blobName, fmt.Errorf("download open: %w", err))
	}
	defer r.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, r); err != nil {
		return nil, apierr.Store(blobName, fmt.Errorf("download read: %w", err))
	}
	return buf.Bytes(), nil
}

// List returns blob names with the given prefix in the working bucket.
func (p *Port) List(ctx context.Context, prefix string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	it := p.client.Bucket(p.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	out := []string{}
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, apierr.Store(prefix, err)
		}
		out = append(out, attrs.Name)
	}
	return out, nil
}

// Delete removes a single blob from the working bucket.
func (p *Port) Delete(ctx context.Context, blobName string) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := p.client.Bucket(p.bucket).Object(blobName).Delete(ctx); err != nil {
		return apierr.Store(blobName, err)
	}
	return nil
}

// Cleanup best-effort deletes every blob under each of prefixes. It never
// returns an error to the caller: cleanup must not block a job
// from reaching its terminal state over a leftover GCS object.
func (p *Port) Cleanup(ctx context.Context, prefixes ...string) {
	for _, prefix := range prefixes {
		keys, err := p.List(ctx, prefix)
		if err != nil {
			p.log.Warn("cleanup list failed", "prefix", prefix, "error", err)
			continue
		}
		for _, k := range keys {
			if err := p.Delete(ctx, k); err != nil {
				p.log.Warn("cleanup delete failed", "key", k, "error", err)
			}
		}
	}
}

// Close releases the underlying storage client.
func (p *Port) Close() error {
	if p.client == nil {
		return nil
	}
	return p.client.Close()
}
