package audit

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/platinummonkey/portalgate/pkg/audit")

const retentionBatchSize = 1000

// Archiver stores expired entries before they are deleted. Cleanup calls it
// once per batch, numbering batches from zero within a run.
type Archiver interface {
	Archive(ctx context.Context, cutoff time.Time, batch int, entries []*Entry) error
}

// ObjectPutter is the subset of the S3 client used by S3Archiver
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3ArchiveConfig configures the S3 archive destination
type S3ArchiveConfig struct {
	Bucket       string
	Prefix       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// S3Archiver uploads expired entries to S3 as one NDJSON object per batch
type S3Archiver struct {
	client ObjectPutter
	bucket string
	prefix string
}

// NewS3Archiver builds an archiver from the default AWS credential chain, or
// static credentials when both keys are set.
func NewS3Archiver(ctx context.Context, cfg S3ArchiveConfig) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("archive bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return NewS3ArchiverWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

// NewS3ArchiverWithClient builds an archiver around an existing client
func NewS3ArchiverWithClient(client ObjectPutter, bucket, prefix string) *S3Archiver {
	if prefix == "" {
		prefix = "audit-archive"
	}
	return &S3Archiver{client: client, bucket: bucket, prefix: prefix}
}

// ObjectKey returns the key one batch of an archive run for cutoff is written to
func (a *S3Archiver) ObjectKey(cutoff time.Time, batch int) string {
	name := fmt.Sprintf("audit-%d-%05d.ndjson", cutoff.UTC().Unix(), batch)
	return path.Join(a.prefix, cutoff.UTC().Format("2006/01/02"), name)
}

// Archive uploads entries as NDJSON
func (a *S3Archiver) Archive(ctx context.Context, cutoff time.Time, batch int, entries []*Entry) error {
	key := a.ObjectKey(cutoff, batch)
	ctx, span := tracer.Start(ctx, "S3.PutObject",
		trace.WithAttributes(
			attribute.String("s3.operation", "PutObject"),
			attribute.String("s3.bucket", a.bucket),
			attribute.String("s3.key", key),
			attribute.Int("audit.batch", batch),
			attribute.Int("audit.entries", len(entries)),
		),
	)
	defer span.End()

	var buf bytes.Buffer
	if err := WriteNDJSON(&buf, entries); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to encode archive")
		return err
	}

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String(ExportFormatNDJSON.ContentType()),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload archive")
		return fmt.Errorf("failed to upload audit archive: %w", err)
	}

	span.SetStatus(codes.Ok, "archive uploaded")
	return nil
}

// Retention deletes expired entries according to a policy
type Retention struct {
	store     Store
	archiver  Archiver
	logger    logrus.FieldLogger
	now       func() time.Time
	batchSize int
}

// NewRetention creates a retention runner. archiver may be nil, in which case
// policies asking for archival fail instead of deleting unarchived entries.
func NewRetention(store Store, archiver Archiver, logger logrus.FieldLogger) *Retention {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Retention{
		store:     store,
		archiver:  archiver,
		logger:    logger.WithField("component", "audit_retention"),
		now:       time.Now,
		batchSize: retentionBatchSize,
	}
}

// Cleanup removes entries older than the policy's retention period and
// returns the number deleted. With archival, each batch is uploaded and then
// deleted before the next is read, so a failure keeps every entry that was
// not yet archived.
func (r *Retention) Cleanup(ctx context.Context, policy RetentionPolicy) (int64, error) {
	if policy.RetentionDays <= 0 {
		return 0, fmt.Errorf("retention days must be positive, got %d", policy.RetentionDays)
	}

	cutoff := r.now().AddDate(0, 0, -policy.RetentionDays)
	logger := r.logger.WithFields(logrus.Fields{
		"cutoff":  cutoff,
		"archive": policy.Archive,
	})

	if policy.Archive {
		if r.archiver == nil {
			return 0, fmt.Errorf("archive requested but no archiver configured")
		}
		deleted, err := r.archiveAndDelete(ctx, cutoff, logger)
		if err != nil {
			return deleted, err
		}
		logger.WithField("deleted", deleted).Info("archived and deleted expired audit entries")
		return deleted, nil
	}

	deleted, err := r.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	logger.WithField("deleted", deleted).Info("deleted expired audit entries")
	return deleted, nil
}

func (r *Retention) archiveAndDelete(ctx context.Context, cutoff time.Time, logger logrus.FieldLogger) (int64, error) {
	var deleted int64
	for batch := 0; ; batch++ {
		// Archived entries are deleted before the next read, so the oldest
		// remaining entries are always at offset zero.
		entries, err := r.store.ListBefore(ctx, cutoff, r.batchSize, 0)
		if err != nil {
			return deleted, fmt.Errorf("failed to list expired entries: %w", err)
		}
		if len(entries) == 0 {
			if batch == 0 {
				logger.Debug("no expired audit entries")
			}
			return deleted, nil
		}

		if err := r.archiver.Archive(ctx, cutoff, batch, entries); err != nil {
			return deleted, err
		}

		ids := make([]string, len(entries))
		for i, e := range entries {
			ids[i] = e.ID
		}
		n, err := r.store.DeleteEntries(ctx, ids)
		if err != nil {
			return deleted, err
		}
		if n == 0 {
			return deleted, fmt.Errorf("archived batch %d but deleted no entries", batch)
		}
		deleted += n

		logger.WithFields(logrus.Fields{
			"batch":    batch,
			"archived": len(entries),
		}).Debug("archived expired audit batch")

		if len(entries) < r.batchSize {
			return deleted, nil
		}
	}
}
