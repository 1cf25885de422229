package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/portalgate/pkg/async"
	"github.com/platinummonkey/portalgate/pkg/contextkeys"
	"github.com/platinummonkey/portalgate/pkg/observability"
)

const (
	// DefaultWriteTimeout bounds a single store write
	DefaultWriteTimeout = 5 * time.Second

	writeStatusWritten = "written"
	writeStatusFailed  = "failed"
	writeStatusDropped = "dropped"
)

// Recorder writes audit entries without ever failing the caller
type Recorder struct {
	store        Store
	logger       logrus.FieldLogger
	metrics      *observability.Metrics
	writeTimeout time.Duration
	now          func() time.Time
	pool         *async.WorkerPool
}

// RecorderOption configures a Recorder
type RecorderOption func(*recorderOptions)

type recorderOptions struct {
	metrics      *observability.Metrics
	writeTimeout time.Duration
	now          func() time.Time
	workers      int
	queueSize    int
}

// WithMetrics counts write outcomes
func WithMetrics(m *observability.Metrics) RecorderOption {
	return func(o *recorderOptions) {
		o.metrics = m
	}
}

// WithWriteTimeout bounds each store write
func WithWriteTimeout(d time.Duration) RecorderOption {
	return func(o *recorderOptions) {
		if d > 0 {
			o.writeTimeout = d
		}
	}
}

// WithClock overrides the time source used for CreatedAt
func WithClock(now func() time.Time) RecorderOption {
	return func(o *recorderOptions) {
		o.now = now
	}
}

// WithAsync hands writes to a bounded worker pool. Entries are dropped when
// the queue is full.
func WithAsync(workers, queueSize int) RecorderOption {
	return func(o *recorderOptions) {
		o.workers = workers
		o.queueSize = queueSize
	}
}

// NewRecorder creates a recorder writing to store
func NewRecorder(store Store, logger logrus.FieldLogger, opts ...RecorderOption) *Recorder {
	o := recorderOptions{
		writeTimeout: DefaultWriteTimeout,
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	r := &Recorder{
		store:        store,
		logger:       logger.WithField("component", "audit"),
		metrics:      o.metrics,
		writeTimeout: o.writeTimeout,
		now:          o.now,
	}
	if o.workers > 0 {
		r.pool = async.NewWorkerPool(r.logger, o.workers, o.queueSize, "audit_write", o.writeTimeout)
	}
	return r
}

// Log records entry. ID, CreatedAt and request metadata missing from the
// entry are filled from the recorder clock and ctx. Failures are logged and
// counted, never returned.
func (r *Recorder) Log(ctx context.Context, entry *Entry) {
	if entry == nil {
		return
	}
	r.prepare(ctx, entry)

	if r.pool != nil {
		submitted := r.pool.TrySubmit(func(writeCtx context.Context) error {
			r.write(writeCtx, entry)
			return nil
		})
		if !submitted {
			r.metrics.ObserveAuditWrite(writeStatusDropped)
			r.entryLogger(entry).Warn("audit queue full, entry dropped")
		}
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.writeTimeout)
	defer cancel()
	r.write(writeCtx, entry)
}

func (r *Recorder) prepare(ctx context.Context, entry *Entry) {
	now := r.now()
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now
	}
	if entry.Metadata.Timestamp.IsZero() {
		entry.Metadata.Timestamp = entry.CreatedAt
	}
	if entry.Metadata.IPAddress == "" {
		entry.Metadata.IPAddress = contextkeys.GetClientIP(ctx)
	}
	if entry.Metadata.UserAgent == "" {
		entry.Metadata.UserAgent = contextkeys.GetUserAgent(ctx)
	}
	if entry.Metadata.RequestID == "" {
		entry.Metadata.RequestID = contextkeys.GetRequestID(ctx)
	}
	if entry.Metadata.DurationMS == nil {
		if start, ok := contextkeys.GetRequestStartTime(ctx); ok {
			ms := now.Sub(start).Milliseconds()
			entry.Metadata.DurationMS = &ms
		}
	}
}

func (r *Recorder) write(ctx context.Context, entry *Entry) {
	if err := r.store.Insert(ctx, entry); err != nil {
		r.metrics.ObserveAuditWrite(writeStatusFailed)
		r.entryLogger(entry).WithError(err).Error("failed to write audit entry")
		return
	}
	r.metrics.ObserveAuditWrite(writeStatusWritten)
}

func (r *Recorder) entryLogger(entry *Entry) logrus.FieldLogger {
	return r.logger.WithFields(logrus.Fields{
		"audit_id":    entry.ID,
		"action":      entry.Action,
		"org_id":      entry.OrgID,
		"entity_type": entry.EntityType,
		"entity_id":   entry.EntityID,
	})
}

// Close drains queued writes in async mode
func (r *Recorder) Close(timeout time.Duration) error {
	if r.pool == nil {
		return nil
	}
	return r.pool.Shutdown(timeout)
}
