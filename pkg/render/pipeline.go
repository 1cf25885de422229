package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/platinummonkey/portalgate/pkg/access"
	"github.com/platinummonkey/portalgate/pkg/async"
	"github.com/platinummonkey/portalgate/pkg/audit"
	"github.com/platinummonkey/portalgate/pkg/contextkeys"
	"github.com/platinummonkey/portalgate/pkg/middleware"
	"github.com/platinummonkey/portalgate/pkg/observability"
	"github.com/platinummonkey/portalgate/pkg/pages"
	"github.com/platinummonkey/portalgate/pkg/portal"
)

var tracer = otel.Tracer("github.com/platinummonkey/portalgate/pkg/render")

// DefaultViewBumpTimeout bounds the background view count update
const DefaultViewBumpTimeout = 5 * time.Second

const outcomeAllowed = "allowed"

// Config wires a Pipeline. Limiter may be nil to disable guest rate
// limiting; Metrics may be nil.
type Config struct {
	Pages           pages.Reader
	Decider         *access.Decider
	Filter          *access.Filter
	Limiter         middleware.GuestLimiter
	Recorder        *audit.Recorder
	Logger          logrus.FieldLogger
	Metrics         *observability.Metrics
	ViewBumpTimeout time.Duration
	Clock           func() time.Time
}

// Pipeline renders pages for principals
type Pipeline struct {
	pages       pages.Reader
	decider     *access.Decider
	filter      *access.Filter
	limiter     middleware.GuestLimiter
	recorder    *audit.Recorder
	logger      logrus.FieldLogger
	metrics     *observability.Metrics
	viewTimeout time.Duration
	now         func() time.Time
}

// NewPipeline creates a render pipeline
func NewPipeline(cfg Config) *Pipeline {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.ViewBumpTimeout <= 0 {
		cfg.ViewBumpTimeout = DefaultViewBumpTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Pipeline{
		pages:       cfg.Pages,
		decider:     cfg.Decider,
		filter:      cfg.Filter,
		limiter:     cfg.Limiter,
		recorder:    cfg.Recorder,
		logger:      cfg.Logger,
		metrics:     cfg.Metrics,
		viewTimeout: cfg.ViewBumpTimeout,
		now:         cfg.Clock,
	}
}

// Request identifies the page to render and who is asking. A nil Principal
// is an anonymous visitor.
type Request struct {
	Principal *portal.Principal
	OrgID     string
	Slug      string
	IPAddress string
	UserAgent string
}

// Outcome is the result of a render. Exactly one of Page and Reason is set.
type Outcome struct {
	Page   *portal.Page
	Reason portal.Reason
	// ResetAt is when a rate limited guest may retry
	ResetAt time.Time
}

// Allowed reports whether the render produced a page
func (o Outcome) Allowed() bool {
	return o.Reason == portal.ReasonNone && o.Page != nil
}

func denied(reason portal.Reason) Outcome {
	return Outcome{Reason: reason}
}

// Render looks up, authorizes, rate limits and prunes a published page. The
// returned page is a copy; the stored page is never modified.
func (p *Pipeline) Render(ctx context.Context, req Request) (Outcome, error) {
	start := p.now()
	ctx, span := tracer.Start(ctx, "render.Render",
		trace.WithAttributes(
			attribute.String("portal.org_id", req.OrgID),
			attribute.String("portal.slug", req.Slug),
			attribute.Bool("portal.anonymous", req.Principal == nil),
		),
	)
	defer span.End()

	ctx = withRequestMetadata(ctx, req.IPAddress, req.UserAgent)

	outcome, err := p.render(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "render failed")
		p.metrics.ObserveRender("error", p.now().Sub(start).Seconds())
		return Outcome{}, err
	}

	label := outcomeAllowed
	if !outcome.Allowed() {
		label = string(outcome.Reason)
		span.SetAttributes(attribute.String("portal.reason", label))
	}
	p.metrics.ObserveRender(label, p.now().Sub(start).Seconds())
	return outcome, nil
}

func (p *Pipeline) render(ctx context.Context, req Request) (Outcome, error) {
	page, err := p.pages.FindPublished(ctx, req.OrgID, req.Slug)
	if errors.Is(err, pages.ErrNotFound) {
		return denied(portal.ReasonNotFound), nil
	}
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to load page %s/%s: %w", req.OrgID, req.Slug, err)
	}

	decision := p.decider.Decide(ctx, req.Principal, page)
	if !decision.Allowed {
		p.recorder.LogUnauthorizedAccess(ctx, page.OrgID, req.Principal,
			audit.Subject{ID: page.ID, Name: page.Title}, decision.Reason)
		return denied(decision.Reason), nil
	}

	viewer := access.ScopeToOrg(req.Principal, page.OrgID)
	if page.IsPublic && viewer == nil && req.IPAddress != "" {
		if result, limited := p.checkGuest(ctx, req.IPAddress); limited {
			return Outcome{Reason: portal.ReasonRateLimited, ResetAt: result.ResetAt}, nil
		}
	}

	blocks := p.filter.Filter(ctx, viewer, page.Blocks)

	p.bumpViews(ctx, page.ID)

	return Outcome{Page: page.WithBlocks(blocks)}, nil
}

// checkGuest charges one request to ip's guest budget. Limiter failures
// allow the request.
func (p *Pipeline) checkGuest(ctx context.Context, ip string) (middleware.RateLimitResult, bool) {
	if p.limiter == nil {
		return middleware.RateLimitResult{Allowed: true}, false
	}

	result, err := p.limiter.CheckAndIncrement(ctx, ip)
	if err != nil {
		p.metrics.IncGuestLimiterError()
		p.logger.WithError(err).WithField("client_ip", ip).Warn("Guest rate limiter unavailable, allowing request")
		return result, false
	}
	return result, !result.Allowed
}

func (p *Pipeline) bumpViews(ctx context.Context, pageID string) {
	at := p.now()
	async.SafeGo(ctx, p.logger, p.viewTimeout, "page_view_bump", func(ctx context.Context) error {
		if err := p.pages.RecordView(ctx, pageID, at); err != nil {
			p.metrics.IncViewBumpFailure()
			return fmt.Errorf("record view of page %s: %w", pageID, err)
		}
		return nil
	})
}

func withRequestMetadata(ctx context.Context, ip, userAgent string) context.Context {
	if ip != "" && contextkeys.GetClientIP(ctx) == "" {
		ctx = contextkeys.WithClientIP(ctx, ip)
	}
	if userAgent != "" && contextkeys.GetUserAgent(ctx) == "" {
		ctx = contextkeys.WithUserAgent(ctx, userAgent)
	}
	return ctx
}
